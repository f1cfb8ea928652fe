package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/storefront/libs/es"
	"github.com/md-rashed-zaman/storefront/services/customer-write/internal/app"
)

func newMux(t *testing.T) *http.ServeMux {
	t.Helper()
	repo, err := app.NewRepository(es.NewMemoryStore(), es.RepositoryConfig{})
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	New(app.NewService(repo), slog.New(slog.NewTextHandler(io.Discard, nil))).
		Register(mux, func(h http.Handler) http.Handler { return h })
	return mux
}

func call(t *testing.T, mux *http.ServeMux, method string, path string, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec.Code, out
}

func TestCustomerOverHTTP(t *testing.T) {
	mux := newMux(t)

	code, out := call(t, mux, http.MethodPost, "/api/v1/customers", `{"email":"jan@example.com","firstName":"Jan","lastName":"Nowak"}`)
	if code != http.StatusCreated {
		t.Fatalf("register: %d %v", code, out)
	}
	base := "/api/v1/customers/" + out["id"].(string)

	code, out = call(t, mux, http.MethodPost, base+"/addresses",
		`{"addressId":"home","addressType":"SHIPPING","street":"Długa","city":"Gdańsk","postalCode":"80-001","country":"PL"}`)
	if code != http.StatusCreated || out["version"] != float64(2) {
		t.Fatalf("add address: %d %v", code, out)
	}

	code, out = call(t, mux, http.MethodDelete, base+"/addresses/home", "")
	if code != http.StatusUnprocessableEntity || out["code"] != "default-address-removal" {
		t.Fatalf("expected default-address-removal, got %d %v", code, out)
	}

	code, _ = call(t, mux, http.MethodPost, base+"/deactivate", "")
	if code != http.StatusOK {
		t.Fatalf("deactivate: %d", code)
	}
	code, out = call(t, mux, http.MethodPut, base+"/preferences", `{"preferredLanguage":"pl"}`)
	if code != http.StatusUnprocessableEntity || out["code"] != "customer-not-active" {
		t.Fatalf("expected customer-not-active, got %d %v", code, out)
	}

	code, out = call(t, mux, http.MethodGet, base, "")
	if code != http.StatusOK || out["status"] != "INACTIVE" || out["defaultShippingAddressId"] != "home" {
		t.Fatalf("get: %d %v", code, out)
	}
}

func TestCustomerNotFound(t *testing.T) {
	code, out := call(t, newMux(t), http.MethodPost, "/api/v1/customers/missing/email/verify", "")
	if code != http.StatusNotFound || out["code"] != "not-found" {
		t.Fatalf("expected 404, got %d %v", code, out)
	}
}
