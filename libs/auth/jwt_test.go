package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret", "storefront")
	token, err := v.Sign("ops-1", "operator", time.Hour)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "ops-1" || claims.Role != "operator" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if _, err := NewVerifier("wrong-secret", "storefront").Verify(token); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
	if _, err := NewVerifier("test-secret", "someone-else").Verify(token); err == nil {
		t.Fatal("expected verification error with wrong issuer")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewVerifier("test-secret", "")
	token, err := v.Sign("ops-1", "operator", -time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestRequireRole(t *testing.T) {
	v := NewVerifier("test-secret", "")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims.Subject == "" {
			t.Fatal("claims missing from context")
		}
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireRole(v, "operator", "admin")(next)

	operator, _ := v.Sign("ops-1", "operator", time.Hour)
	viewer, _ := v.Sign("viewer-1", "viewer", time.Hour)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + viewer, http.StatusForbidden},
		{"operator", "Bearer " + operator, http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/dlq/summary", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
	}
}
