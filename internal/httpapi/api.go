package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"foodbridge.org/internal/auth"
	"foodbridge.org/internal/catalog"
	"foodbridge.org/internal/obs"
	"foodbridge.org/internal/stream"
)

// ReadyProbe is a simple readiness check (for example, a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the deployment knobs the HTTP layer needs.
type Options struct {
	Version        string
	SecureCookies  bool
	SessionTTL     time.Duration
	AllowedOrigins []string
	RateBurst      int
	RatePerSec     int
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	issuer     *auth.Issuer
	catalog    catalog.Service
	events     *stream.Stream
	version    string

	secureCookies  bool
	sessionTTL     time.Duration
	allowedOrigins []string
	rateBurst      int
	ratePerSec     int
}

func New(rp ReadyProbe, issuer *auth.Issuer, svc catalog.Service, events *stream.Stream, opts Options) *API {
	a := &API{
		mux:            http.NewServeMux(),
		readyProbe:     rp,
		issuer:         issuer,
		catalog:        svc,
		events:         events,
		version:        opts.Version,
		secureCookies:  opts.SecureCookies,
		sessionTTL:     opts.SessionTTL,
		allowedOrigins: opts.AllowedOrigins,
		rateBurst:      opts.RateBurst,
		ratePerSec:     opts.RatePerSec,
	}
	if a.sessionTTL <= 0 {
		a.sessionTTL = 5 * time.Hour
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}

	// session
	a.mux.HandleFunc("/jwt", a.handleIssueSession)
	a.mux.HandleFunc("/logout", a.handleLogout)

	// offers
	a.mux.HandleFunc("/add-food", a.handleAddFood)
	a.mux.HandleFunc("/available-foods", a.handleAvailableFoods)
	a.mux.HandleFunc("/all-foods", a.handleAvailableFoods) // legacy alias
	a.mux.HandleFunc("/featured-foods", a.handleFeaturedFoods)
	a.mux.HandleFunc("/food/", a.handleFoodResource)
	a.mux.HandleFunc("/manage-foods/", a.handleManageFoods)

	// claims
	a.mux.HandleFunc("/request-food", a.handleRequestFood)
	a.mux.HandleFunc("/my-requests/", a.handleMyRequests)

	// activity stream
	a.mux.HandleFunc("/events", a.Stream)

	// health/ready/metrics
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", a.handleRoot)

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h, a.allowedOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- service handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "foodbridge-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "foodbridge-api",
		"message": "food sharing server is running",
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid payload")
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "food not found")
	case errors.Is(err, catalog.ErrAlreadyRequested):
		writeError(w, r, http.StatusConflict, "food already requested")
	case errors.Is(err, catalog.ErrOwnClaim):
		writeError(w, r, http.StatusConflict, "cannot request your own food")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden access")
	default:
		writeError(w, r, http.StatusUnauthorized, "unauthorized access")
	}
}
