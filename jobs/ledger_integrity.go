package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/halftone-erp/halftone/internal/reports"
)

// TrialBalancer produces the netted trial balance as of a date.
type TrialBalancer interface {
	TrialBalance(ctx context.Context, asOf time.Time) (reports.TrialBalance, error)
}

// LedgerIntegrityCheck verifies that total posted debits equal total
// posted credits across all accounts.
type LedgerIntegrityCheck struct {
	reports TrialBalancer
	logger  *slog.Logger
}

func NewLedgerIntegrityCheck(reports TrialBalancer, logger *slog.Logger) *LedgerIntegrityCheck {
	return &LedgerIntegrityCheck{reports: reports, logger: logger}
}

// Run evaluates the trial balance at the current date.
func (c *LedgerIntegrityCheck) Run(ctx context.Context) error {
	tb, err := c.reports.TrialBalance(ctx, time.Now())
	if err != nil {
		return err
	}
	if !tb.Balanced {
		c.logger.Error("ledger out of balance",
			slog.String("total_debit", tb.TotalDebit.StringFixed(2)),
			slog.String("total_credit", tb.TotalCredit.StringFixed(2)))
		return nil
	}
	c.logger.Info("ledger integrity check passed",
		slog.Int("accounts", len(tb.Rows)),
		slog.String("total_debit", tb.TotalDebit.StringFixed(2)))
	return nil
}

// NewLedgerIntegrityHandler adapts the check to an Asynq handler.
func NewLedgerIntegrityHandler(check *LedgerIntegrityCheck) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		return check.Run(ctx)
	}
}
