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

type claimRequest struct {
	FoodID           string    `json:"food_id"`
	Note             string    `json:"note"`
	ExpectedPickupAt time.Time `json:"expected_pickup_at"`
}

func (a *API) handleRequestFood(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized access")
		return
	}

	var req claimRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.FoodID) == "" {
		writeError(w, r, http.StatusBadRequest, "food_id is required")
		return
	}

	claim, err := a.catalog.FileClaim(r.Context(), req.FoodID, catalog.Claim{
		Requester: catalog.Person{
			Name:     identity.Name,
			Email:    identity.Email,
			PhotoURL: identity.PhotoURL,
		},
		Note:             req.Note,
		ExpectedPickupAt: req.ExpectedPickupAt,
	})
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}

	a.publish(stream.Event{
		Kind:      stream.KindOfferClaimed,
		OfferID:   claim.OfferID,
		OfferName: claim.OfferName,
		Timestamp: time.Now().UTC(),
	})
	_ = audit.LogEvent(r.Context(), "food.claim.file", map[string]any{
		"claim_id": claim.ID,
		"offer_id": claim.OfferID,
	})

	writeJSON(w, http.StatusCreated, claim)
}

func (a *API) handleMyRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	email := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/my-requests/"), "/")
	if email == "" || strings.Contains(email, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if err := auth.EnsureOwner(r.Context(), email); err != nil {
		handleAuthError(w, r, err)
		return
	}

	claims, err := a.catalog.ListClaimsByRequester(r.Context(), email)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	if claims == nil {
		claims = []catalog.Claim{}
	}
	writeJSON(w, http.StatusOK, claims)
}
