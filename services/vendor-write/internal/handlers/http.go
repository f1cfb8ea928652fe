package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/storefront/libs/es"
	"github.com/md-rashed-zaman/storefront/libs/httpx"
	"github.com/md-rashed-zaman/storefront/services/vendor-write/internal/app"
	"github.com/md-rashed-zaman/storefront/services/vendor-write/internal/vendor"
)

// Commander runs vendor commands.
type Commander interface {
	Handle(ctx context.Context, cmd vendor.Command) (app.Result, error)
	Get(ctx context.Context, id string) (*vendor.Vendor, error)
}

type Handler struct {
	svc    Commander
	logger *slog.Logger
}

func New(svc Commander, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the vendor routes. Command routes go through wrap.
func (h *Handler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	command := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, wrap(fn))
	}
	command("POST /api/v1/vendors", h.register)
	command("PUT /api/v1/vendors/{id}", h.update)
	command("POST /api/v1/vendors/{id}/verify", h.verify)
	command("PUT /api/v1/vendors/{id}/status", h.changeStatus)
	command("POST /api/v1/vendors/{id}/categories", h.assignCategory)
	command("DELETE /api/v1/vendors/{id}/categories/{categoryId}", h.removeCategory)
	command("PUT /api/v1/vendors/{id}/bank-details", h.updateBankDetails)
	command("DELETE /api/v1/vendors/{id}", h.delete)
	mux.HandleFunc("GET /api/v1/vendors/{id}", h.get)
}

type vendorResponse struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	*vendor.Vendor
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, vendorResponse{ID: v.ID(), Version: v.Version(), Vendor: v})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var cmd vendor.RegisterVendor
	if !decode(w, r, &cmd, true) {
		return
	}
	h.run(w, r, cmd, http.StatusCreated)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var cmd vendor.UpdateVendor
	if !decode(w, r, &cmd, true) {
		return
	}
	cmd.VendorID = r.PathValue("id")
	h.run(w, r, cmd, http.StatusOK)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var cmd vendor.VerifyVendor
	if !decode(w, r, &cmd, false) {
		return
	}
	cmd.VendorID = r.PathValue("id")
	h.run(w, r, cmd, http.StatusOK)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	var cmd vendor.ChangeVendorStatus
	if !decode(w, r, &cmd, true) {
		return
	}
	cmd.VendorID = r.PathValue("id")
	h.run(w, r, cmd, http.StatusOK)
}

func (h *Handler) assignCategory(w http.ResponseWriter, r *http.Request) {
	var cmd vendor.AssignCategory
	if !decode(w, r, &cmd, true) {
		return
	}
	cmd.VendorID = r.PathValue("id")
	h.run(w, r, cmd, http.StatusOK)
}

func (h *Handler) removeCategory(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, vendor.RemoveCategory{VendorID: r.PathValue("id"), CategoryID: r.PathValue("categoryId")}, http.StatusOK)
}

func (h *Handler) updateBankDetails(w http.ResponseWriter, r *http.Request) {
	var cmd vendor.UpdateBankDetails
	if !decode(w, r, &cmd, true) {
		return
	}
	cmd.VendorID = r.PathValue("id")
	h.run(w, r, cmd, http.StatusOK)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	var cmd vendor.DeleteVendor
	if !decode(w, r, &cmd, false) {
		return
	}
	cmd.VendorID = r.PathValue("id")
	h.run(w, r, cmd, http.StatusOK)
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, cmd vendor.Command, status int) {
	res, err := h.svc.Handle(r.Context(), cmd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, status, res)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if _, ok := es.AsValidation(err); !ok && !errors.Is(err, es.ErrNotFound) && !errors.Is(err, es.ErrVersionConflict) {
		h.logger.Error("vendor command failed", "err", err, "path", r.URL.Path)
	}
	httpx.WriteDomainError(w, r, err)
}

// decode reads the JSON body into dst. Optional bodies may be empty.
func decode(w http.ResponseWriter, r *http.Request, dst any, required bool) bool {
	err := httpx.DecodeJSON(r, dst)
	if err == nil || (!required && errors.Is(err, io.EOF)) {
		return true
	}
	httpx.WriteError(w, r, http.StatusBadRequest, "invalid-body", "invalid json body")
	return false
}
