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
	"github.com/md-rashed-zaman/storefront/services/vendor-write/internal/app"
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

func do(t *testing.T, mux *http.ServeMux, method string, path string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestVendorLifecycleOverHTTP(t *testing.T) {
	mux := newMux(t)

	rec, out := do(t, mux, http.MethodPost, "/api/v1/vendors", `{"name":"Acme","businessName":"Acme GmbH","email":"a@b.com"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	id, _ := out["id"].(string)
	if id == "" || out["version"] != float64(1) {
		t.Fatalf("unexpected register response %v", out)
	}
	base := "/api/v1/vendors/" + id

	rec, out = do(t, mux, http.MethodPost, base+"/categories", `{"categoryId":"shoes"}`)
	if rec.Code != http.StatusUnprocessableEntity || out["code"] != "vendor-not-active" {
		t.Fatalf("expected vendor-not-active, got %d %v", rec.Code, out)
	}

	rec, _ = do(t, mux, http.MethodPost, base+"/verify", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: %d %s", rec.Code, rec.Body.String())
	}
	rec, _ = do(t, mux, http.MethodPost, base+"/categories", `{"categoryId":"shoes"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("assign: %d %s", rec.Code, rec.Body.String())
	}
	rec, out = do(t, mux, http.MethodDelete, base+"/categories/shoes", "")
	if rec.Code != http.StatusOK || out["version"] != float64(4) {
		t.Fatalf("remove: %d %v", rec.Code, out)
	}

	rec, out = do(t, mux, http.MethodGet, base, "")
	if rec.Code != http.StatusOK || out["status"] != "ACTIVE" || out["email"] != "a@b.com" || out["id"] != id {
		t.Fatalf("get: %d %v", rec.Code, out)
	}
}

func TestHTTPErrors(t *testing.T) {
	mux := newMux(t)

	rec, out := do(t, mux, http.MethodPost, "/api/v1/vendors", `{"name":"Acme","businessName":"B","email":"a@b.com"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d", rec.Code)
	}
	rec, out = do(t, mux, http.MethodPost, "/api/v1/vendors", `{"name":"Other","businessName":"B","email":"a@b.com"}`)
	if rec.Code != http.StatusConflict || out["code"] != "duplicate-email" {
		t.Fatalf("expected duplicate-email conflict, got %d %v", rec.Code, out)
	}
	rec, _ = do(t, mux, http.MethodPost, "/api/v1/vendors", `{"nme":"typo"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
	rec, _ = do(t, mux, http.MethodPut, "/api/v1/vendors/nope/status", `{"status":"ACTIVE"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
