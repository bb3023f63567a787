package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halftone-erp/halftone/internal/ledger/roles"
)

// RoleResolver maps semantic roles to account ids for the cash book.
type RoleResolver interface {
	Account(role roles.Role) (int64, error)
}

// Service is the read-only ledger query surface. It never writes posted
// state; every aggregation filters to posted entries.
type Service struct {
	repo     Repository
	cache    *Cache
	resolver RoleResolver
}

func NewService(repo Repository, cache *Cache, resolver RoleResolver) *Service {
	return &Service{repo: repo, cache: cache, resolver: resolver}
}

// AccountBalance is an account's sign-adjusted balance at a cutoff.
type AccountBalance struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	AsOf      string          `json:"as_of"`
	Balance   decimal.Decimal `json:"balance"`
}

// BalanceAsOf computes the sign-adjusted sum of an account's posted lines
// up to the cutoff.
func (s *Service) BalanceAsOf(ctx context.Context, accountID int64, asOf time.Time) (AccountBalance, error) {
	summary, err := s.repo.AccountSummary(ctx, accountID, asOf)
	if err != nil {
		return AccountBalance{}, err
	}
	return AccountBalance{
		AccountID: summary.AccountID,
		Code:      summary.Code,
		Name:      summary.Name,
		AsOf:      asOf.Format("2006-01-02"),
		Balance:   summary.Balance(),
	}, nil
}

// Transactions lists an account's posted lines chronologically, with an
// optional date range and limit.
func (s *Service) Transactions(ctx context.Context, accountID int64, from, to time.Time, limit int) ([]LedgerTransaction, error) {
	if to.IsZero() {
		to = time.Now()
	}
	return s.repo.Transactions(ctx, accountID, from, to, limit)
}

// CashBookLine is one dated receipt or payment with the running balance.
type CashBookLine struct {
	EntryNumber string          `json:"entry_number"`
	EntryDate   time.Time       `json:"entry_date"`
	Description string          `json:"description"`
	Receipt     decimal.Decimal `json:"receipt"`
	Payment     decimal.Decimal `json:"payment"`
	Running     decimal.Decimal `json:"running"`
}

// CashBook is the cash and bank movement over a range.
type CashBook struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	Opening decimal.Decimal `json:"opening"`
	Lines   []CashBookLine  `json:"lines"`
	Closing decimal.Decimal `json:"closing"`
}

// CashBook builds the cash book over the cash and bank accounts: opening
// balance, ordered receipts and payments, and a running balance.
func (s *Service) CashBook(ctx context.Context, from, to time.Time) (CashBook, error) {
	cashID, err := s.resolver.Account(roles.RoleCash)
	if err != nil {
		return CashBook{}, err
	}
	bankID, err := s.resolver.Account(roles.RoleBank)
	if err != nil {
		return CashBook{}, err
	}
	accountIDs := []int64{cashID, bankID}

	opening := decimal.Zero
	for _, id := range accountIDs {
		summary, err := s.repo.AccountSummary(ctx, id, from.AddDate(0, 0, -1))
		if err != nil {
			return CashBook{}, err
		}
		opening = opening.Add(summary.Balance())
	}

	txns, err := s.repo.TransactionsForAccounts(ctx, accountIDs, from, to)
	if err != nil {
		return CashBook{}, err
	}

	book := CashBook{
		From:    from.Format("2006-01-02"),
		To:      to.Format("2006-01-02"),
		Opening: opening,
	}
	running := opening
	for _, txn := range txns {
		running = running.Add(txn.Debit).Sub(txn.Credit)
		book.Lines = append(book.Lines, CashBookLine{
			EntryNumber: txn.EntryNumber,
			EntryDate:   txn.EntryDate,
			Description: txn.Description,
			Receipt:     txn.Debit,
			Payment:     txn.Credit,
			Running:     running,
		})
	}
	book.Closing = running
	return book, nil
}

// ARAging buckets outstanding customer invoice balances.
func (s *Service) ARAging(ctx context.Context, asOf time.Time) (AgingReport, error) {
	return s.aging(ctx, "aging_ar", asOf, s.repo.OutstandingInvoices)
}

// APAging buckets outstanding supplier bill balances.
func (s *Service) APAging(ctx context.Context, asOf time.Time) (AgingReport, error) {
	return s.aging(ctx, "aging_ap", asOf, s.repo.OutstandingBills)
}

func (s *Service) aging(ctx context.Context, prefix string, asOf time.Time, fetch func(context.Context, time.Time) ([]OutstandingDoc, error)) (AgingReport, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC().Truncate(24 * time.Hour)
	}
	loader := func(ctx context.Context) (interface{}, error) {
		docs, err := fetch(ctx, asOf)
		if err != nil {
			return nil, err
		}
		return BuildAging(docs, asOf), nil
	}
	key, err := s.cache.BuildKey(ctx, prefix, asOf.Format("2006-01-02"))
	if err != nil {
		return AgingReport{}, err
	}
	var report AgingReport
	if err := s.cache.FetchJSON(ctx, key, &report, loader); err != nil {
		return AgingReport{}, err
	}
	return report, nil
}

// TrialBalance nets every active transactable account as of a date.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	loader := func(ctx context.Context) (interface{}, error) {
		summaries, err := s.repo.AccountSummaries(ctx, time.Time{}, asOf)
		if err != nil {
			return nil, err
		}
		tb := BuildTrialBalance(summaries)
		tb.AsOf = asOf.Format("2006-01-02")
		return tb, nil
	}
	key, err := s.cache.BuildKey(ctx, "trial_balance", asOf.Format("2006-01-02"))
	if err != nil {
		return TrialBalance{}, err
	}
	var tb TrialBalance
	if err := s.cache.FetchJSON(ctx, key, &tb, loader); err != nil {
		return TrialBalance{}, err
	}
	return tb, nil
}

// BalanceSheet reports the accounting equation as of a date.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	summaries, err := s.repo.AccountSummaries(ctx, time.Time{}, asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	bs := BuildBalanceSheet(summaries)
	bs.AsOf = asOf.Format("2006-01-02")
	return bs, nil
}

// ProfitAndLoss reports income and expense movement over a range.
func (s *Service) ProfitAndLoss(ctx context.Context, from, to time.Time) (ProfitAndLoss, error) {
	if to.IsZero() {
		to = time.Now()
	}
	summaries, err := s.repo.AccountSummaries(ctx, from, to)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	pl := BuildProfitAndLoss(summaries)
	pl.From = from.Format("2006-01-02")
	pl.To = to.Format("2006-01-02")
	return pl, nil
}

// InvalidateCache bumps the report cache version after a posting.
func (s *Service) InvalidateCache(ctx context.Context) error {
	if err := s.cache.Bump(ctx); err != nil {
		return fmt.Errorf("reports: bump cache: %w", err)
	}
	return nil
}
