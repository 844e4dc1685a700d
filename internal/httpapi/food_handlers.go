package httpapi

import (
	"net/http"
	"strings"
	"time"

	"foodbridge.org/internal/audit"
	"foodbridge.org/internal/auth"
	"foodbridge.org/internal/catalog"
	"foodbridge.org/internal/stream"
)

type offerRequest struct {
	Name           string    `json:"name"`
	ImageURL       string    `json:"image_url"`
	Quantity       int       `json:"quantity"`
	PickupLocation string    `json:"pickup_location"`
	ExpiresAt      time.Time `json:"expires_at"`
	Notes          string    `json:"notes"`
}

func (a *API) handleAddFood(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized access")
		return
	}

	var req offerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if msg := validateOfferRequest(req); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	// The donor is always the verified caller, never a payload field.
	offer, err := a.catalog.CreateOffer(r.Context(), catalog.Offer{
		Name:           strings.TrimSpace(req.Name),
		ImageURL:       strings.TrimSpace(req.ImageURL),
		Quantity:       req.Quantity,
		PickupLocation: strings.TrimSpace(req.PickupLocation),
		ExpiresAt:      req.ExpiresAt,
		Notes:          req.Notes,
		Donor: catalog.Person{
			Name:     identity.Name,
			Email:    identity.Email,
			PhotoURL: identity.PhotoURL,
		},
	})
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}

	a.publish(stream.Event{
		Kind:           stream.KindOfferPosted,
		OfferID:        offer.ID,
		OfferName:      offer.Name,
		Quantity:       offer.Quantity,
		PickupLocation: offer.PickupLocation,
		Timestamp:      time.Now().UTC(),
	})
	_ = audit.LogEvent(r.Context(), "food.offer.create", map[string]any{
		"offer_id": offer.ID,
		"name":     offer.Name,
	})

	w.Header().Set("Location", "/food/"+offer.ID)
	writeJSON(w, http.StatusCreated, offer)
}

func (a *API) handleAvailableFoods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	q := r.URL.Query()
	sortParam := q.Get("sort_by")
	if sortParam == "" {
		sortParam = q.Get("sortBy")
	}

	offers, err := a.catalog.ListAvailable(r.Context(), catalog.ListFilter{
		Search:       q.Get("search"),
		SortByExpiry: strings.EqualFold(sortParam, "expiry"),
	})
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(offers))
}

func (a *API) handleFeaturedFoods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	offers, err := a.catalog.ListFeatured(r.Context())
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(offers))
}

func (a *API) handleFoodResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/food/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getFood(w, r, id)
	case http.MethodPut:
		a.editFood(w, r, id)
	case http.MethodDelete:
		a.deleteFood(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) getFood(w http.ResponseWriter, r *http.Request, id string) {
	offer, err := a.catalog.GetOffer(r.Context(), id)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func (a *API) editFood(w http.ResponseWriter, r *http.Request, id string) {
	offer, err := a.catalog.GetOffer(r.Context(), id)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	if err := auth.EnsureOwner(r.Context(), offer.Donor.Email); err != nil {
		handleAuthError(w, r, err)
		return
	}

	var req offerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if msg := validateOfferRequest(req); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	updated, err := a.catalog.UpdateOffer(r.Context(), id, catalog.OfferPatch{
		Name:           strings.TrimSpace(req.Name),
		ImageURL:       strings.TrimSpace(req.ImageURL),
		Quantity:       req.Quantity,
		PickupLocation: strings.TrimSpace(req.PickupLocation),
		ExpiresAt:      req.ExpiresAt,
		Notes:          req.Notes,
	})
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "food.offer.update", map[string]any{
		"offer_id": updated.ID,
	})
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteFood(w http.ResponseWriter, r *http.Request, id string) {
	offer, err := a.catalog.GetOffer(r.Context(), id)
	if err != nil {
		if handleMissingDelete(w, r, err) {
			return
		}
		handleCatalogError(w, r, err)
		return
	}
	if err := auth.EnsureOwner(r.Context(), offer.Donor.Email); err != nil {
		handleAuthError(w, r, err)
		return
	}

	deleted, err := a.catalog.DeleteOffer(r.Context(), id)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "food.offer.delete", map[string]any{
		"offer_id": id,
		"deleted":  deleted,
	})
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (a *API) handleManageFoods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	email := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/manage-foods/"), "/")
	if email == "" || strings.Contains(email, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if err := auth.EnsureOwner(r.Context(), email); err != nil {
		handleAuthError(w, r, err)
		return
	}

	offers, err := a.catalog.ListByDonor(r.Context(), email)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(offers))
}

func (a *API) publish(evt stream.Event) {
	if a.events == nil {
		return
	}
	a.events.Publish(evt)
}

// handleMissingDelete keeps deletion idempotent: a missing id is a
// zero-affected success, not an error.
func handleMissingDelete(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return false
	}
	if err != catalog.ErrNotFound {
		return false
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": int64(0)})
	return true
}

func validateOfferRequest(req offerRequest) string {
	if strings.TrimSpace(req.Name) == "" {
		return "name is required"
	}
	if req.Quantity <= 0 {
		return "quantity must be > 0"
	}
	if strings.TrimSpace(req.PickupLocation) == "" {
		return "pickup_location is required"
	}
	if req.ExpiresAt.IsZero() {
		return "expires_at is required"
	}
	return ""
}

// listResponse keeps empty lists serialized as [] rather than null.
func listResponse(offers []catalog.Offer) []catalog.Offer {
	if offers == nil {
		return []catalog.Offer{}
	}
	return offers
}
