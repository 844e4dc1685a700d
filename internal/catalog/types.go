package catalog

import (
	"errors"
	"strings"
	"time"
)

// Status is the lifecycle state of an offer. The transition is one-way
// and one-shot: available -> requested. No further states are modeled.
type Status string

const (
	StatusAvailable Status = "available"
	StatusRequested Status = "requested"
)

// FeaturedLimit caps the featured-foods listing.
const FeaturedLimit = 6

// Person references a user by the fields the frontend renders. Email is
// the owner identity used for authorization.
type Person struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// Offer is a posted food item available for donation.
type Offer struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ImageURL       string    `json:"image_url,omitempty"`
	Quantity       int       `json:"quantity"`
	PickupLocation string    `json:"pickup_location"`
	ExpiresAt      time.Time `json:"expires_at"`
	Notes          string    `json:"notes,omitempty"`
	Donor          Person    `json:"donor"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OfferPatch carries the caller-editable fields of an offer. ID, donor
// and status are not editable through this path.
type OfferPatch struct {
	Name           string    `json:"name"`
	ImageURL       string    `json:"image_url,omitempty"`
	Quantity       int       `json:"quantity"`
	PickupLocation string    `json:"pickup_location"`
	ExpiresAt      time.Time `json:"expires_at"`
	Notes          string    `json:"notes,omitempty"`
}

// Claim is a request by a user to receive a specific offer. It carries a
// snapshot of the offer fields at claim time so the requester's list
// renders without a join; claims are never updated or deleted.
type Claim struct {
	ID               string    `json:"id"`
	OfferID          string    `json:"offer_id"`
	Requester        Person    `json:"requester"`
	Note             string    `json:"note,omitempty"`
	ExpectedPickupAt time.Time `json:"expected_pickup_at,omitempty"`
	OfferName        string    `json:"offer_name"`
	OfferImageURL    string    `json:"offer_image_url,omitempty"`
	PickupLocation   string    `json:"pickup_location"`
	Donor            Person    `json:"donor"`
	CreatedAt        time.Time `json:"created_at"`
}

// ListFilter narrows ListAvailable. Search is treated as literal text,
// never as a pattern.
type ListFilter struct {
	Search       string
	SortByExpiry bool
}

// Policy holds the explicit lifecycle policy choices.
type Policy struct {
	// AllowOwnClaim permits a donor to claim their own offer.
	AllowOwnClaim bool
}

var (
	ErrNotFound         = errors.New("catalog: not found")
	ErrAlreadyRequested = errors.New("catalog: offer already requested")
	ErrOwnClaim         = errors.New("catalog: donor cannot claim own offer")
	ErrInvalidInput     = errors.New("catalog: invalid input")
)

// Validate checks the invariants a stored offer must satisfy.
func (o Offer) Validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return ErrInvalidInput
	}
	if strings.TrimSpace(o.Donor.Email) == "" {
		return ErrInvalidInput
	}
	if o.Quantity <= 0 {
		return ErrInvalidInput
	}
	if strings.TrimSpace(o.PickupLocation) == "" {
		return ErrInvalidInput
	}
	return nil
}

// Validate checks the invariants an edit must satisfy.
func (p OfferPatch) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrInvalidInput
	}
	if p.Quantity <= 0 {
		return ErrInvalidInput
	}
	if strings.TrimSpace(p.PickupLocation) == "" {
		return ErrInvalidInput
	}
	return nil
}

func matchesSearch(name, search string) bool {
	search = strings.TrimSpace(search)
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(search))
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
