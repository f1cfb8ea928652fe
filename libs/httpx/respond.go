package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/md-rashed-zaman/storefront/libs/es"
)

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code string, msg string) {
	WriteJSON(w, status, errorBody{Error: msg, Code: code, RequestID: RequestIDFromContext(r.Context())})
}

// WriteDomainError maps event-sourcing error kinds to HTTP statuses.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if v, ok := es.AsValidation(err); ok {
		status := http.StatusUnprocessableEntity
		if v.Rule == "duplicate-email" {
			status = http.StatusConflict
		}
		WriteError(w, r, status, v.Rule, v.Message)
		return
	}
	switch {
	case errors.Is(err, es.ErrNotFound):
		WriteError(w, r, http.StatusNotFound, "not-found", err.Error())
	case errors.Is(err, es.ErrVersionConflict):
		WriteError(w, r, http.StatusConflict, "version-conflict", err.Error())
	default:
		WriteError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

// DecodeJSON reads a JSON body, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
