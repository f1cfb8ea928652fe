package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/storefront/libs/es"
	"github.com/md-rashed-zaman/storefront/libs/httpx"
	"github.com/md-rashed-zaman/storefront/services/customer-write/internal/app"
	"github.com/md-rashed-zaman/storefront/services/customer-write/internal/customer"
)

type Commander interface {
	Handle(ctx context.Context, cmd customer.Command) (app.Result, error)
	Get(ctx context.Context, id string) (*customer.Customer, error)
}

type Handler struct {
	svc    Commander
	logger *slog.Logger
}

func New(svc Commander, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	routes := map[string]http.HandlerFunc{
		"POST /api/v1/customers":                              h.register,
		"PUT /api/v1/customers/{id}":                          h.update,
		"PUT /api/v1/customers/{id}/email":                    h.changeEmail,
		"POST /api/v1/customers/{id}/email/verify":            h.verifyEmail,
		"POST /api/v1/customers/{id}/phone/verify":            h.verifyPhone,
		"POST /api/v1/customers/{id}/addresses":               h.addAddress,
		"PUT /api/v1/customers/{id}/addresses/{addressId}":    h.updateAddress,
		"DELETE /api/v1/customers/{id}/addresses/{addressId}": h.removeAddress,
		"PUT /api/v1/customers/{id}/preferences":              h.updatePreferences,
		"POST /api/v1/customers/{id}/deactivate":              h.deactivate,
		"POST /api/v1/customers/{id}/reactivate":              h.reactivate,
		"DELETE /api/v1/customers/{id}":                       h.delete,
	}
	for pattern, fn := range routes {
		mux.Handle(pattern, wrap(fn))
	}
	mux.HandleFunc("GET /api/v1/customers/{id}", h.get)
}

type customerResponse struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	*customer.Customer
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, customerResponse{ID: c.ID(), Version: c.Version(), Customer: c})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var cmd customer.RegisterCustomer
	if decode(w, r, &cmd, true) {
		h.run(w, r, cmd, http.StatusCreated)
	}
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var cmd customer.UpdateCustomer
	if decode(w, r, &cmd, true) {
		cmd.CustomerID = r.PathValue("id")
		h.run(w, r, cmd, http.StatusOK)
	}
}

func (h *Handler) changeEmail(w http.ResponseWriter, r *http.Request) {
	var cmd customer.ChangeEmail
	if decode(w, r, &cmd, true) {
		cmd.CustomerID = r.PathValue("id")
		h.run(w, r, cmd, http.StatusOK)
	}
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, customer.VerifyEmail{CustomerID: r.PathValue("id")}, http.StatusOK)
}

func (h *Handler) verifyPhone(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, customer.VerifyPhone{CustomerID: r.PathValue("id")}, http.StatusOK)
}

func (h *Handler) addAddress(w http.ResponseWriter, r *http.Request) {
	var cmd customer.AddAddress
	if decode(w, r, &cmd, true) {
		cmd.CustomerID = r.PathValue("id")
		h.run(w, r, cmd, http.StatusCreated)
	}
}

func (h *Handler) updateAddress(w http.ResponseWriter, r *http.Request) {
	var cmd customer.UpdateAddress
	if decode(w, r, &cmd, true) {
		cmd.CustomerID = r.PathValue("id")
		cmd.AddressID = r.PathValue("addressId")
		h.run(w, r, cmd, http.StatusOK)
	}
}

func (h *Handler) removeAddress(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, customer.RemoveAddress{CustomerID: r.PathValue("id"), AddressID: r.PathValue("addressId")}, http.StatusOK)
}

func (h *Handler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var cmd customer.UpdatePreferences
	if decode(w, r, &cmd, true) {
		cmd.CustomerID = r.PathValue("id")
		h.run(w, r, cmd, http.StatusOK)
	}
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	var cmd customer.DeactivateCustomer
	if decode(w, r, &cmd, false) {
		cmd.CustomerID = r.PathValue("id")
		h.run(w, r, cmd, http.StatusOK)
	}
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, customer.ReactivateCustomer{CustomerID: r.PathValue("id")}, http.StatusOK)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	var cmd customer.DeleteCustomer
	if decode(w, r, &cmd, false) {
		cmd.CustomerID = r.PathValue("id")
		h.run(w, r, cmd, http.StatusOK)
	}
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, cmd customer.Command, status int) {
	res, err := h.svc.Handle(r.Context(), cmd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, status, res)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if _, ok := es.AsValidation(err); !ok && !errors.Is(err, es.ErrNotFound) && !errors.Is(err, es.ErrVersionConflict) {
		h.logger.Error("customer command failed", "err", err, "path", r.URL.Path)
	}
	httpx.WriteDomainError(w, r, err)
}

func decode(w http.ResponseWriter, r *http.Request, dst any, required bool) bool {
	err := httpx.DecodeJSON(r, dst)
	if err == nil || (!required && errors.Is(err, io.EOF)) {
		return true
	}
	httpx.WriteError(w, r, http.StatusBadRequest, "invalid-body", "invalid json body")
	return false
}
