package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/halftone-erp/halftone/internal/ledger"
)

// AccountSummary is one account's posted debit/credit aggregate over a
// window, with the metadata needed to sign-adjust and classify it.
type AccountSummary struct {
	AccountID  int64
	Code       string
	Name       string
	Category   ledger.CategoryCode
	NormalSide ledger.NormalSide
	Debit      decimal.Decimal
	Credit     decimal.Decimal
}

// Balance returns the sign-adjusted net for the account.
func (a AccountSummary) Balance() decimal.Decimal {
	return ledger.BalanceDelta(a.NormalSide, a.Debit, a.Credit)
}

// LedgerTransaction is one posted line in an account's history.
type LedgerTransaction struct {
	EntryID     int64
	EntryNumber string
	EntryDate   time.Time
	SourceType  ledger.SourceType
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// OutstandingDoc is an unpaid source record (invoice or bill) carrying its
// own balance field; aging buckets use this balance, never a re-derivation
// from journal lines.
type OutstandingDoc struct {
	ID      int64
	PartyID int64
	DueDate time.Time
	Balance decimal.Decimal
}

// Repository aggregates posted ledger state. Read-only.
type Repository interface {
	AccountSummaries(ctx context.Context, from, to time.Time) ([]AccountSummary, error)
	AccountSummary(ctx context.Context, accountID int64, upTo time.Time) (AccountSummary, error)
	Transactions(ctx context.Context, accountID int64, from, to time.Time, limit int) ([]LedgerTransaction, error)
	TransactionsForAccounts(ctx context.Context, accountIDs []int64, from, to time.Time) ([]LedgerTransaction, error)
	OutstandingInvoices(ctx context.Context, asOf time.Time) ([]OutstandingDoc, error)
	OutstandingBills(ctx context.Context, asOf time.Time) ([]OutstandingDoc, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// zeroTime sentinel means "no lower bound".
var zeroTime time.Time

const summarySelect = `SELECT a.id, a.code, a.name, c.code, c.normal_side,
COALESCE(SUM(l.debit) FILTER (WHERE e.is_posted AND e.entry_date >= $1 AND e.entry_date <= $2), 0)::text,
COALESCE(SUM(l.credit) FILTER (WHERE e.is_posted AND e.entry_date >= $1 AND e.entry_date <= $2), 0)::text
FROM accounts a
JOIN account_categories c ON c.id = a.category_id
LEFT JOIN journal_lines l ON l.account_id = a.id
LEFT JOIN journal_entries e ON e.id = l.entry_id
WHERE a.is_active AND a.allow_transactions`

func (r *repository) AccountSummaries(ctx context.Context, from, to time.Time) ([]AccountSummary, error) {
	if from.Equal(zeroTime) {
		from = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	rows, err := r.db.Query(ctx, summarySelect+`
GROUP BY a.id, a.code, a.name, c.code, c.normal_side
ORDER BY a.code`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repository) AccountSummary(ctx context.Context, accountID int64, upTo time.Time) (AccountSummary, error) {
	from := time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	row := r.db.QueryRow(ctx, summarySelect+` AND a.id = $3
GROUP BY a.id, a.code, a.name, c.code, c.normal_side`, from, upTo, accountID)
	s, err := scanSummary(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return AccountSummary{}, ledger.ErrAccountNotConfigured
		}
		return AccountSummary{}, err
	}
	return s, nil
}

const transactionSelect = `SELECT e.id, e.journal_number, e.entry_date, e.source_type, e.description, l.debit::text, l.credit::text
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.is_posted AND e.entry_date >= $1 AND e.entry_date <= $2`

func (r *repository) Transactions(ctx context.Context, accountID int64, from, to time.Time, limit int) ([]LedgerTransaction, error) {
	if from.Equal(zeroTime) {
		from = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Query(ctx, transactionSelect+` AND l.account_id = $3
ORDER BY e.entry_date, e.id, l.id LIMIT $4`, from, to, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *repository) TransactionsForAccounts(ctx context.Context, accountIDs []int64, from, to time.Time) ([]LedgerTransaction, error) {
	rows, err := r.db.Query(ctx, transactionSelect+` AND l.account_id = ANY($3)
ORDER BY e.entry_date, e.id, l.id`, from, to, accountIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *repository) OutstandingInvoices(ctx context.Context, asOf time.Time) ([]OutstandingDoc, error) {
	rows, err := r.db.Query(ctx, `SELECT id, customer_id, due_at, balance::text
FROM sales_invoices WHERE NOT is_voided AND balance > 0 AND issued_at <= $1 ORDER BY due_at`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocs(rows)
}

func (r *repository) OutstandingBills(ctx context.Context, asOf time.Time) ([]OutstandingDoc, error) {
	rows, err := r.db.Query(ctx, `SELECT id, supplier_id, due_at, balance::text
FROM supplier_bills WHERE NOT is_voided AND balance > 0 AND approved_at <= $1 ORDER BY due_at`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocs(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (AccountSummary, error) {
	var s AccountSummary
	var debit, credit string
	if err := row.Scan(&s.AccountID, &s.Code, &s.Name, &s.Category, &s.NormalSide, &debit, &credit); err != nil {
		return AccountSummary{}, err
	}
	var err error
	if s.Debit, err = decimal.NewFromString(debit); err != nil {
		return AccountSummary{}, err
	}
	if s.Credit, err = decimal.NewFromString(credit); err != nil {
		return AccountSummary{}, err
	}
	return s, nil
}

func collectTransactions(rows pgx.Rows) ([]LedgerTransaction, error) {
	var out []LedgerTransaction
	for rows.Next() {
		var t LedgerTransaction
		var debit, credit string
		if err := rows.Scan(&t.EntryID, &t.EntryNumber, &t.EntryDate, &t.SourceType, &t.Description, &debit, &credit); err != nil {
			return nil, err
		}
		var err error
		if t.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, err
		}
		if t.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func collectDocs(rows pgx.Rows) ([]OutstandingDoc, error) {
	var out []OutstandingDoc
	for rows.Next() {
		var d OutstandingDoc
		var balance string
		if err := rows.Scan(&d.ID, &d.PartyID, &d.DueDate, &balance); err != nil {
			return nil, err
		}
		var err error
		if d.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
