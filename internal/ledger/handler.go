package ledger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Handler exposes the synchronous engine surface: manual entries,
// administrative backfill, and reversal. Unlike deferred dispatch, errors
// here propagate straight to the caller.
type Handler struct {
	engine    *Engine
	logger    *slog.Logger
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{engine: engine, logger: logger, validator: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/journals", h.list)
	r.Post("/journals", h.create)
	r.Get("/journals/{id}", h.get)
	r.Post("/journals/{id}/reverse", h.reverse)
}

type entryLineForm struct {
	AccountID int64  `json:"account_id" validate:"required"`
	Debit     string `json:"debit" validate:"omitempty,numeric"`
	Credit    string `json:"credit" validate:"omitempty,numeric"`
}

type entryForm struct {
	EntryDate   string          `json:"entry_date" validate:"required,datetime=2006-01-02"`
	SourceType  string          `json:"source_type" validate:"required"`
	SourceID    *int64          `json:"source_id"`
	EventType   string          `json:"event_type" validate:"required"`
	Description string          `json:"description" validate:"required,max=500"`
	Lines       []entryLineForm `json:"lines" validate:"required,min=2,dive"`
	CreatedBy   int64           `json:"created_by" validate:"required"`
	AutoPost    bool            `json:"auto_post"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form entryForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(form); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	entryDate, err := time.Parse("2006-01-02", form.EntryDate)
	if err != nil {
		http.Error(w, "invalid entry date", http.StatusUnprocessableEntity)
		return
	}
	lines := make([]LineInput, 0, len(form.Lines))
	for _, l := range form.Lines {
		debit, err := parseAmount(l.Debit)
		if err != nil {
			http.Error(w, "invalid debit amount", http.StatusUnprocessableEntity)
			return
		}
		credit, err := parseAmount(l.Credit)
		if err != nil {
			http.Error(w, "invalid credit amount", http.StatusUnprocessableEntity)
			return
		}
		lines = append(lines, LineInput{AccountID: l.AccountID, Debit: debit, Credit: credit})
	}
	entry, err := h.engine.CreateEntry(r.Context(), EntryInput{
		EntryDate:   entryDate,
		SourceType:  SourceType(form.SourceType),
		SourceID:    form.SourceID,
		EventType:   form.EventType,
		Description: form.Description,
		Lines:       lines,
		CreatedBy:   form.CreatedBy,
		AutoPost:    form.AutoPost,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.engine.ListEntries(r.Context(), limit)
	if err != nil {
		h.logger.Error("list journals", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	entry, err := h.engine.GetEntry(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var body struct {
		ActorID int64 `json:"actor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	reversal, err := h.engine.Reverse(r.Context(), id, body.ActorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, reversal)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("encode response", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrEntryNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrUnbalancedEntry), errors.Is(err, ErrTooFewLines),
		errors.Is(err, ErrPeriodClosed), errors.Is(err, ErrReversalState):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ErrNumberConflict), errors.Is(err, ErrSourceConflict):
		status = http.StatusConflict
	default:
		h.logger.Error("ledger request failed", slog.Any("error", err))
	}
	http.Error(w, err.Error(), status)
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
