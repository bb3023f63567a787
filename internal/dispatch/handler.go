package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Enqueuer schedules a deferred dispatch for a key.
type Enqueuer interface {
	EnqueueDispatch(ctx context.Context, key Key) error
}

// Handler exposes the operator surface: open failures and manual retry.
type Handler struct {
	failures FailureStore
	enqueuer Enqueuer
	logger   *slog.Logger
}

func NewHandler(logger *slog.Logger, failures FailureStore, enqueuer Enqueuer) *Handler {
	return &Handler{failures: failures, enqueuer: enqueuer, logger: logger}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/failures", h.listFailures)
	r.Post("/failures/{id}/retry", h.retry)
}

func (h *Handler) listFailures(w http.ResponseWriter, r *http.Request) {
	records, err := h.failures.ListOpen(r.Context())
	if err != nil {
		h.logger.Error("list failures", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		h.logger.Error("encode failures", slog.Any("error", err))
	}
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	record, err := h.failures.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "failure record not found", http.StatusNotFound)
		return
	}
	key := Key{EntityType: record.EntityType, EntityID: record.EntityID, EventType: record.EventType}
	if err := h.enqueuer.EnqueueDispatch(r.Context(), key); err != nil {
		h.logger.Error("enqueue retry", slog.String("key", key.String()), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"status":"scheduled"}`))
}
