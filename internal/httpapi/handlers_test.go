package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"foodbridge.org/internal/auth"
	"foodbridge.org/internal/catalog"
	"foodbridge.org/internal/stream"
)

func newTestAPI(t *testing.T, policy catalog.Policy) *API {
	t.Helper()
	issuer, err := auth.NewIssuer("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return New(ReadyProbe{}, issuer, catalog.NewInMemory(policy), stream.New(), Options{
		Version:    "test",
		SessionTTL: time.Hour,
		RateBurst:  1000,
		RatePerSec: 1000,
	})
}

type apiClient struct {
	t    *testing.T
	base string
	http *http.Client
}

func newClient(t *testing.T, base string) *apiClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &apiClient{t: t, base: base, http: &http.Client{Jar: jar}}
}

func (c *apiClient) do(method, path string, body any) (*http.Response, []byte) {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (c *apiClient) login(email, name string) {
	c.t.Helper()
	resp, body := c.do(http.MethodPost, "/jwt", map[string]string{
		"email": email,
		"name":  name,
	})
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login %s: status %d body %s", email, resp.StatusCode, body)
	}
}

func sampleOffer(name string) map[string]any {
	return map[string]any{
		"name":            name,
		"image_url":       "https://img.example/" + name,
		"quantity":        3,
		"pickup_location": "Main St 1",
		"expires_at":      time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		"notes":           "still warm",
	}
}

func TestIssueSessionSetsCookie(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	resp, body := newClient(t, srv.URL).do(http.MethodPost, "/jwt", map[string]string{
		"email": "a@x.com",
		"name":  "Alice",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d body %s", resp.StatusCode, body)
	}

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "token" {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("token cookie not set")
	}
	if !cookie.HttpOnly {
		t.Error("cookie must be HttpOnly")
	}
	if cookie.Path != "/" {
		t.Errorf("cookie path = %q, want /", cookie.Path)
	}
	if cookie.Secure {
		t.Error("cookie must not be Secure outside production")
	}
	if cookie.SameSite != http.SameSiteStrictMode {
		t.Errorf("cookie SameSite = %v, want Strict", cookie.SameSite)
	}
	if cookie.MaxAge <= 0 {
		t.Errorf("cookie MaxAge = %d, want > 0", cookie.MaxAge)
	}
}

func TestIssueSessionRequiresEmail(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	resp, _ := newClient(t, srv.URL).do(http.MethodPost, "/jwt", map[string]string{"name": "Alice"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	c := newClient(t, srv.URL)
	c.login("a@x.com", "Alice")

	resp, _ := c.do(http.MethodPost, "/logout", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var cleared *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == "token" {
			cleared = ck
		}
	}
	if cleared == nil {
		t.Fatal("logout must rewrite the token cookie")
	}
	if cleared.MaxAge >= 0 {
		t.Errorf("cleared cookie MaxAge = %d, want negative", cleared.MaxAge)
	}
	if cleared.Value != "" {
		t.Errorf("cleared cookie value = %q, want empty", cleared.Value)
	}

	// The session is gone for subsequent protected calls.
	resp, _ = c.do(http.MethodPost, "/add-food", sampleOffer("Bread"))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("post-logout status = %d, want 401", resp.StatusCode)
	}
}

func TestAddFoodCreatesAvailableOffer(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	c := newClient(t, srv.URL)
	c.login("a@x.com", "Alice")

	resp, body := c.do(http.MethodPost, "/add-food", sampleOffer("Bread"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d body %s", resp.StatusCode, body)
	}
	var offer catalog.Offer
	if err := json.Unmarshal(body, &offer); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if offer.ID == "" {
		t.Fatal("offer id missing")
	}
	if offer.Status != catalog.StatusAvailable {
		t.Errorf("status = %s, want available", offer.Status)
	}
	if offer.Donor.Email != "a@x.com" || offer.Donor.Name != "Alice" {
		t.Errorf("donor must come from the session, got %+v", offer.Donor)
	}
	if loc := resp.Header.Get("Location"); loc != "/food/"+offer.ID {
		t.Errorf("Location = %q", loc)
	}

	// Point read agrees.
	resp, body = c.do(http.MethodGet, "/food/"+offer.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var fetched catalog.Offer
	if err := json.Unmarshal(body, &fetched); err != nil {
		t.Fatal(err)
	}
	if fetched.ID != offer.ID || fetched.Status != catalog.StatusAvailable {
		t.Errorf("unexpected offer: %+v", fetched)
	}
}

func TestAddFoodRejectsUnknownFields(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	c := newClient(t, srv.URL)
	c.login("a@x.com", "Alice")

	payload := sampleOffer("Bread")
	payload["status"] = "requested"
	resp, _ := c.do(http.MethodPost, "/add-food", payload)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown field", resp.StatusCode)
	}
}

func TestAvailableFoodsSearchAndSort(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	c := newClient(t, srv.URL)
	c.login("a@x.com", "Alice")

	soon := sampleOffer("Pizza Soon")
	soon["expires_at"] = time.Now().Add(2 * time.Hour).UTC().Format(time.RFC3339)
	c.do(http.MethodPost, "/add-food", sampleOffer("Bread"))
	c.do(http.MethodPost, "/add-food", sampleOffer("Pizza Late"))
	c.do(http.MethodPost, "/add-food", soon)

	resp, body := c.do(http.MethodGet, "/available-foods?search=piz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var offers []catalog.Offer
	if err := json.Unmarshal(body, &offers); err != nil {
		t.Fatal(err)
	}
	if len(offers) != 2 {
		t.Fatalf("search results = %d, want 2", len(offers))
	}

	resp, body = c.do(http.MethodGet, "/available-foods?search=piz&sort_by=expiry", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &offers); err != nil {
		t.Fatal(err)
	}
	if len(offers) != 2 || offers[0].Name != "Pizza Soon" {
		t.Fatalf("expiry sort broken: %+v", offers)
	}
}

func TestAvailableFoodsEmptyIsJSONArray(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	resp, body := newClient(t, srv.URL).do(http.MethodGet, "/available-foods", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := string(bytes.TrimSpace(body)); got != "[]" {
		t.Fatalf("empty list serialized as %s, want []", got)
	}
}

func TestFoodNotFound(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	resp, body := newClient(t, srv.URL).do(http.MethodGet, "/food/does-not-exist", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d body %s", resp.StatusCode, body)
	}
}

func TestUpdateFoodOwnerOnly(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	owner := newClient(t, srv.URL)
	owner.login("a@x.com", "Alice")
	_, body := owner.do(http.MethodPost, "/add-food", sampleOffer("Bread"))
	var offer catalog.Offer
	if err := json.Unmarshal(body, &offer); err != nil {
		t.Fatal(err)
	}

	intruder := newClient(t, srv.URL)
	intruder.login("b@x.com", "Bob")
	resp, _ := intruder.do(http.MethodPut, "/food/"+offer.ID, sampleOffer("Stolen"))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("intruder status = %d, want 403", resp.StatusCode)
	}

	update := sampleOffer("Sourdough")
	update["quantity"] = 7
	resp, body = owner.do(http.MethodPut, "/food/"+offer.ID, update)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner status = %d body %s", resp.StatusCode, body)
	}
	var updated catalog.Offer
	if err := json.Unmarshal(body, &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Name != "Sourdough" || updated.Quantity != 7 {
		t.Errorf("update not applied: %+v", updated)
	}
	if updated.Donor.Email != "a@x.com" {
		t.Errorf("donor must be immutable, got %+v", updated.Donor)
	}
}

func TestDeleteFoodIdempotent(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	c := newClient(t, srv.URL)
	c.login("a@x.com", "Alice")
	_, body := c.do(http.MethodPost, "/add-food", sampleOffer("Bread"))
	var offer catalog.Offer
	if err := json.Unmarshal(body, &offer); err != nil {
		t.Fatal(err)
	}

	resp, body := c.do(http.MethodDelete, "/food/"+offer.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first delete status = %d", resp.StatusCode)
	}
	var res struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if res.Deleted != 1 {
		t.Fatalf("first delete affected %d, want 1", res.Deleted)
	}

	resp, body = c.do(http.MethodDelete, "/food/"+offer.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second delete status = %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if res.Deleted != 0 {
		t.Fatalf("second delete affected %d, want 0", res.Deleted)
	}
}

func TestManageFoodsOwnerOnly(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	c := newClient(t, srv.URL)
	c.login("a@x.com", "Alice")
	c.do(http.MethodPost, "/add-food", sampleOffer("Bread"))
	c.do(http.MethodPost, "/add-food", sampleOffer("Pizza"))

	resp, _ := c.do(http.MethodGet, "/manage-foods/b@x.com", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign inventory status = %d, want 403", resp.StatusCode)
	}

	resp, body := c.do(http.MethodGet, "/manage-foods/a@x.com", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("own inventory status = %d", resp.StatusCode)
	}
	var offers []catalog.Offer
	if err := json.Unmarshal(body, &offers); err != nil {
		t.Fatal(err)
	}
	if len(offers) != 2 {
		t.Fatalf("inventory size = %d, want 2", len(offers))
	}
}

func TestRequestFoodFlow(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	donor := newClient(t, srv.URL)
	donor.login("a@x.com", "Alice")
	_, body := donor.do(http.MethodPost, "/add-food", sampleOffer("Bread"))
	var offer catalog.Offer
	if err := json.Unmarshal(body, &offer); err != nil {
		t.Fatal(err)
	}

	requester := newClient(t, srv.URL)
	requester.login("b@x.com", "Bob")
	resp, body := requester.do(http.MethodPost, "/request-food", map[string]any{
		"food_id": offer.ID,
		"note":    "picking up after work",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("claim status = %d body %s", resp.StatusCode, body)
	}
	var claim catalog.Claim
	if err := json.Unmarshal(body, &claim); err != nil {
		t.Fatal(err)
	}
	if claim.OfferID != offer.ID || claim.Requester.Email != "b@x.com" {
		t.Fatalf("unexpected claim: %+v", claim)
	}
	if claim.OfferName != "Bread" || claim.Donor.Email != "a@x.com" {
		t.Fatalf("offer snapshot missing: %+v", claim)
	}

	// The offer left the available pool.
	resp, body = requester.do(http.MethodGet, "/food/"+offer.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var after catalog.Offer
	if err := json.Unmarshal(body, &after); err != nil {
		t.Fatal(err)
	}
	if after.Status != catalog.StatusRequested {
		t.Fatalf("status = %s, want requested", after.Status)
	}

	// A second claimant is turned away.
	other := newClient(t, srv.URL)
	other.login("c@x.com", "Carol")
	resp, _ = other.do(http.MethodPost, "/request-food", map[string]any{"food_id": offer.ID})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second claim status = %d, want 409", resp.StatusCode)
	}

	// The claim shows up only for its requester.
	resp, body = requester.do(http.MethodGet, "/my-requests/b@x.com", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("my-requests status = %d", resp.StatusCode)
	}
	var mine []catalog.Claim
	if err := json.Unmarshal(body, &mine); err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].ID != claim.ID {
		t.Fatalf("unexpected claims: %+v", mine)
	}

	resp, _ = other.do(http.MethodGet, "/my-requests/b@x.com", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign claim list status = %d, want 403", resp.StatusCode)
	}
}

func TestRequestOwnFoodRejected(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	c := newClient(t, srv.URL)
	c.login("a@x.com", "Alice")
	_, body := c.do(http.MethodPost, "/add-food", sampleOffer("Bread"))
	var offer catalog.Offer
	if err := json.Unmarshal(body, &offer); err != nil {
		t.Fatal(err)
	}

	resp, _ := c.do(http.MethodPost, "/request-food", map[string]any{"food_id": offer.ID})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("own claim status = %d, want 409", resp.StatusCode)
	}
}

func TestRequestMissingFood(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	c := newClient(t, srv.URL)
	c.login("b@x.com", "Bob")
	resp, _ := c.do(http.MethodPost, "/request-food", map[string]any{"food_id": "missing"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestFeaturedFoodsCapped(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	c := newClient(t, srv.URL)
	c.login("a@x.com", "Alice")
	for i := 0; i < 8; i++ {
		offer := sampleOffer("Meal")
		offer["quantity"] = i + 1
		c.do(http.MethodPost, "/add-food", offer)
	}

	resp, body := c.do(http.MethodGet, "/featured-foods", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var offers []catalog.Offer
	if err := json.Unmarshal(body, &offers); err != nil {
		t.Fatal(err)
	}
	if len(offers) != catalog.FeaturedLimit {
		t.Fatalf("featured size = %d, want %d", len(offers), catalog.FeaturedLimit)
	}
	if offers[0].Quantity != 8 {
		t.Fatalf("featured must rank by quantity, got %+v", offers[0])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	c := newClient(t, srv.URL)
	resp, _ := c.do(http.MethodDelete, "/available-foods", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodGet {
		t.Errorf("Allow = %q, want GET", allow)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, catalog.Policy{}).Handler())
	defer srv.Close()

	c := newClient(t, srv.URL)
	resp, _ := c.do(http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	resp, _ = c.do(http.MethodGet, "/readyz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d", resp.StatusCode)
	}
}
