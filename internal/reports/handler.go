package reports

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

const requestTimeout = 5 * time.Second

// Handler serves the read-only report endpoints. Everything here is
// GET-only and keyed off posted journal state.
type Handler struct {
	logger  *slog.Logger
	service *Service
	now     func() time.Time
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, now: time.Now}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts/{id}/balance", h.balance)
	r.Get("/accounts/{id}/transactions", h.transactions)
	r.Get("/cash-book", h.cashBook)
	r.Get("/ar-aging", h.arAging)
	r.Get("/ap-aging", h.apAging)
	r.Get("/trial-balance", h.trialBalance)
	r.Get("/balance-sheet", h.balanceSheet)
	r.Get("/profit-loss", h.profitAndLoss)
	r.Get("/financials", h.financials)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return
	}
	asOf, ok := h.dateParam(w, r, "as_of", h.now())
	if !ok {
		return
	}
	bal, err := h.service.BalanceAsOf(r.Context(), accountID, asOf)
	if err != nil {
		h.fail(w, r, "balance as of", err)
		return
	}
	h.writeJSON(w, bal)
}

func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return
	}
	from, ok := h.dateParam(w, r, "from", time.Time{})
	if !ok {
		return
	}
	to, ok := h.dateParam(w, r, "to", h.now())
	if !ok {
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 1000 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}
	txns, err := h.service.Transactions(r.Context(), accountID, from, to, limit)
	if err != nil {
		h.fail(w, r, "transactions", err)
		return
	}
	h.writeJSON(w, map[string]interface{}{"transactions": txns})
}

func (h *Handler) cashBook(w http.ResponseWriter, r *http.Request) {
	from, ok := h.dateParam(w, r, "from", h.now().AddDate(0, -1, 0))
	if !ok {
		return
	}
	to, ok := h.dateParam(w, r, "to", h.now())
	if !ok {
		return
	}
	if to.Before(from) {
		http.Error(w, "to precedes from", http.StatusBadRequest)
		return
	}
	book, err := h.service.CashBook(r.Context(), from, to)
	if err != nil {
		h.fail(w, r, "cash book", err)
		return
	}
	h.writeJSON(w, book)
}

func (h *Handler) arAging(w http.ResponseWriter, r *http.Request) {
	h.aging(w, r, h.service.ARAging)
}

func (h *Handler) apAging(w http.ResponseWriter, r *http.Request) {
	h.aging(w, r, h.service.APAging)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request, build func(context.Context, time.Time) (AgingReport, error)) {
	asOf, ok := h.dateParam(w, r, "as_of", h.now())
	if !ok {
		return
	}
	report, err := build(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, "aging", err)
		return
	}
	h.writeJSON(w, report)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.dateParam(w, r, "as_of", h.now())
	if !ok {
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, "trial balance", err)
		return
	}
	h.writeJSON(w, tb)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.dateParam(w, r, "as_of", h.now())
	if !ok {
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, "balance sheet", err)
		return
	}
	h.writeJSON(w, bs)
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	from, ok := h.dateParam(w, r, "from", time.Time{})
	if !ok {
		return
	}
	to, ok := h.dateParam(w, r, "to", h.now())
	if !ok {
		return
	}
	pl, err := h.service.ProfitAndLoss(r.Context(), from, to)
	if err != nil {
		h.fail(w, r, "profit and loss", err)
		return
	}
	h.writeJSON(w, pl)
}

// financialsResponse bundles the period-end statements fetched in one call.
type financialsResponse struct {
	TrialBalance  TrialBalance  `json:"trial_balance"`
	BalanceSheet  BalanceSheet  `json:"balance_sheet"`
	ProfitAndLoss ProfitAndLoss `json:"profit_loss"`
}

func (h *Handler) financials(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.dateParam(w, r, "as_of", h.now())
	if !ok {
		return
	}
	from, ok := h.dateParam(w, r, "from", time.Time{})
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var resp financialsResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tb, err := h.service.TrialBalance(gctx, asOf)
		if err == nil {
			resp.TrialBalance = tb
		}
		return err
	})
	g.Go(func() error {
		bs, err := h.service.BalanceSheet(gctx, asOf)
		if err == nil {
			resp.BalanceSheet = bs
		}
		return err
	})
	g.Go(func() error {
		pl, err := h.service.ProfitAndLoss(gctx, from, asOf)
		if err == nil {
			resp.ProfitAndLoss = pl
		}
		return err
	})
	if err := g.Wait(); err != nil {
		h.fail(w, r, "financials", err)
		return
	}
	h.writeJSON(w, resp)
}

func (h *Handler) dateParam(w http.ResponseWriter, r *http.Request, name string, fallback time.Time) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		http.Error(w, "invalid "+name+" date", http.StatusBadRequest)
		return time.Time{}, false
	}
	return t, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode report response", slog.String("error", err.Error()))
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error("report query failed",
		slog.String("op", op),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))
	http.Error(w, "report unavailable", http.StatusInternalServerError)
}
