package dlq

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/md-rashed-zaman/storefront/libs/auth"
	"github.com/md-rashed-zaman/storefront/libs/httpx"
)

// Admin exposes DLQ records to operators.
type Admin struct {
	store   Store
	sweeper *Sweeper
	logger  *slog.Logger
}

func NewAdmin(store Store, sweeper *Sweeper, logger *slog.Logger) *Admin {
	return &Admin{store: store, sweeper: sweeper, logger: logger}
}

// Register mounts the admin routes on mux behind guard.
func (a *Admin) Register(mux *http.ServeMux, guard httpx.Middleware) {
	mux.Handle("GET /api/admin/dlq/summary", guard(http.HandlerFunc(a.summary)))
	mux.Handle("GET /api/admin/dlq/messages", guard(http.HandlerFunc(a.list)))
	mux.Handle("GET /api/admin/dlq/messages/{id}", guard(http.HandlerFunc(a.get)))
	mux.Handle("POST /api/admin/dlq/sweep", guard(http.HandlerFunc(a.sweep)))
}

type summaryResponse struct {
	Counts       map[Status]int `json:"counts"`
	Total        int            `json:"total"`
	SweepRunning bool           `json:"sweepRunning"`
}

func (a *Admin) summary(w http.ResponseWriter, r *http.Request) {
	counts, err := a.store.CountByStatus(r.Context())
	if err != nil {
		a.logger.Error("dlq summary failed", "err", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal", "failed to load dlq summary")
		return
	}
	resp := summaryResponse{Counts: map[Status]int{}}
	for _, s := range Statuses {
		resp.Counts[s] = counts[s]
		resp.Total += counts[s]
	}
	if a.sweeper != nil {
		resp.SweepRunning = a.sweeper.Running()
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (a *Admin) list(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid-status", "unknown status "+string(status))
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			httpx.WriteError(w, r, http.StatusBadRequest, "invalid-limit", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	records, err := a.store.List(r.Context(), status, limit)
	if err != nil {
		a.logger.Error("dlq list failed", "err", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal", "failed to list dlq messages")
		return
	}
	if records == nil {
		records = []Record{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"messages": records})
}

type detailResponse struct {
	Record
	Payload string       `json:"payload"`
	History []Transition `json:"history"`
}

func (a *Admin) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := a.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httpx.WriteError(w, r, http.StatusNotFound, "not-found", "dlq message not found")
		return
	}
	if err != nil {
		a.logger.Error("dlq get failed", "err", err, "message_id", id)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal", "failed to load dlq message")
		return
	}
	history, err := a.store.History(r.Context(), id)
	if err != nil {
		a.logger.Error("dlq history failed", "err", err, "message_id", id)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal", "failed to load dlq history")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, detailResponse{Record: rec, Payload: string(rec.Payload), History: history})
}

func (a *Admin) sweep(w http.ResponseWriter, r *http.Request) {
	if a.sweeper == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "dlq-disabled", "dlq sweeper is not running")
		return
	}
	operator := "unknown"
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		operator = claims.Subject
	}
	a.logger.Info("manual dlq sweep requested", "operator", operator, "request_id", httpx.RequestIDFromContext(r.Context()))
	res, err := a.sweeper.Sweep(r.Context())
	if errors.Is(err, ErrSweepInProgress) {
		httpx.WriteError(w, r, http.StatusConflict, "sweep-in-progress", err.Error())
		return
	}
	if err != nil {
		a.logger.Error("manual dlq sweep failed", "err", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal", "dlq sweep failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}
