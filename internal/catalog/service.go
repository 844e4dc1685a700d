package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"foodbridge.org/internal/ids"
)

// Service defines catalog operations. Implementations own the offer and
// claim records exclusively; callers never hold independent copies.
type Service interface {
	CreateOffer(ctx context.Context, offer Offer) (Offer, error)
	GetOffer(ctx context.Context, id string) (Offer, error)
	ListAvailable(ctx context.Context, filter ListFilter) ([]Offer, error)
	ListFeatured(ctx context.Context) ([]Offer, error)
	ListByDonor(ctx context.Context, email string) ([]Offer, error)
	UpdateOffer(ctx context.Context, id string, patch OfferPatch) (Offer, error)
	DeleteOffer(ctx context.Context, id string) (int64, error)
	FileClaim(ctx context.Context, offerID string, claim Claim) (Claim, error)
	ListClaimsByRequester(ctx context.Context, email string) ([]Claim, error)
}

// InMemory implements Service with in-process concurrency safety. It is
// the no-infrastructure mode and the test double for the Postgres store;
// holding the write lock across the claim insert and the status update
// makes the pair atomic to readers.
type InMemory struct {
	mu     sync.RWMutex
	offers map[string]*Offer
	claims []Claim
	policy Policy
}

// NewInMemory creates an empty catalog with the given policy.
func NewInMemory(policy Policy) *InMemory {
	return &InMemory{
		offers: make(map[string]*Offer),
		policy: policy,
	}
}

func (s *InMemory) CreateOffer(ctx context.Context, offer Offer) (Offer, error) {
	if err := offer.Validate(); err != nil {
		return Offer{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	offer.ID = ids.New()
	// Status is store-assigned; any caller-supplied value is ignored.
	offer.Status = StatusAvailable
	offer.CreatedAt = now
	offer.UpdatedAt = now
	s.offers[offer.ID] = &offer
	return offer, nil
}

func (s *InMemory) GetOffer(ctx context.Context, id string) (Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	offer, ok := s.offers[id]
	if !ok {
		return Offer{}, ErrNotFound
	}
	return *offer, nil
}

func (s *InMemory) ListAvailable(ctx context.Context, filter ListFilter) ([]Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []Offer
	for _, offer := range s.offers {
		if offer.Status != StatusAvailable {
			continue
		}
		if !matchesSearch(offer.Name, filter.Search) {
			continue
		}
		res = append(res, *offer)
	}
	if filter.SortByExpiry {
		sort.Slice(res, func(i, j int) bool { return res[i].ExpiresAt.Before(res[j].ExpiresAt) })
	} else {
		sortByID(res)
	}
	return res, nil
}

func (s *InMemory) ListFeatured(ctx context.Context) ([]Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []Offer
	for _, offer := range s.offers {
		if offer.Status != StatusAvailable {
			continue
		}
		res = append(res, *offer)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Quantity != res[j].Quantity {
			return res[i].Quantity > res[j].Quantity
		}
		return res[i].ID < res[j].ID
	})
	if len(res) > FeaturedLimit {
		res = res[:FeaturedLimit]
	}
	return res, nil
}

func (s *InMemory) ListByDonor(ctx context.Context, email string) ([]Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []Offer
	for _, offer := range s.offers {
		if !sameEmail(offer.Donor.Email, email) {
			continue
		}
		res = append(res, *offer)
	}
	sortByID(res)
	return res, nil
}

func (s *InMemory) UpdateOffer(ctx context.Context, id string, patch OfferPatch) (Offer, error) {
	if err := patch.Validate(); err != nil {
		return Offer{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, ok := s.offers[id]
	if !ok {
		return Offer{}, ErrNotFound
	}
	// Full replace of the editable fields; id, donor and status stay.
	offer.Name = patch.Name
	offer.ImageURL = patch.ImageURL
	offer.Quantity = patch.Quantity
	offer.PickupLocation = patch.PickupLocation
	offer.ExpiresAt = patch.ExpiresAt
	offer.Notes = patch.Notes
	offer.UpdatedAt = time.Now().UTC()
	return *offer, nil
}

func (s *InMemory) DeleteOffer(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.offers[id]; !ok {
		return 0, nil
	}
	delete(s.offers, id)
	return 1, nil
}

func (s *InMemory) FileClaim(ctx context.Context, offerID string, claim Claim) (Claim, error) {
	if sameEmail(claim.Requester.Email, "") {
		return Claim{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, ok := s.offers[offerID]
	if !ok {
		return Claim{}, ErrNotFound
	}
	if !s.policy.AllowOwnClaim && sameEmail(claim.Requester.Email, offer.Donor.Email) {
		return Claim{}, ErrOwnClaim
	}
	// The transition is conditioned on the current status, so a losing
	// concurrent claim is rejected and records nothing.
	if offer.Status != StatusAvailable {
		return Claim{}, ErrAlreadyRequested
	}

	now := time.Now().UTC()
	claim.ID = ids.New()
	claim.OfferID = offer.ID
	claim.OfferName = offer.Name
	claim.OfferImageURL = offer.ImageURL
	claim.PickupLocation = offer.PickupLocation
	claim.Donor = offer.Donor
	claim.CreatedAt = now

	s.claims = append(s.claims, claim)
	offer.Status = StatusRequested
	offer.UpdatedAt = now
	return claim, nil
}

func (s *InMemory) ListClaimsByRequester(ctx context.Context, email string) ([]Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []Claim
	for _, claim := range s.claims {
		if !sameEmail(claim.Requester.Email, email) {
			continue
		}
		res = append(res, claim)
	}
	return res, nil
}

func sortByID(offers []Offer) {
	// ULID ids are time-ordered, so this is insertion order.
	sort.Slice(offers, func(i, j int) bool { return offers[i].ID < offers[j].ID })
}
