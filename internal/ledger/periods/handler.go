package periods

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the fiscal period admin surface.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/periods", h.list)
	r.Post("/periods/{id}/close", h.close)
	r.Post("/periods/{id}/reopen", h.reopen)
}

type periodView struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Status    Status `json:"status"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list periods", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	views := make([]periodView, 0, len(list))
	for _, p := range list {
		views = append(views, periodView{
			ID:        p.ID,
			Code:      p.Code,
			StartDate: p.StartDate.Format("2006-01-02"),
			EndDate:   p.EndDate.Format("2006-01-02"),
			Status:    p.Status,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"periods": views})
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.service.Close)
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.service.Reopen)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid period id", http.StatusBadRequest)
		return
	}
	if err := op(r.Context(), id); err != nil {
		h.logger.Warn("period status change rejected", slog.Int64("period_id", id), slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
