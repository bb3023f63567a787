package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/halftone-erp/halftone/internal/ledger/periods"
)

// Postgres constraint names the engine reacts to. A 23505 on the number
// constraint triggers a regenerate-and-retry; on the source constraint it
// means a concurrent dispatch already posted this event.
const (
	constraintEntryNumber = "uq_journal_entries_number"
	constraintEntrySource = "uq_journal_entries_source"
)

// Repository encapsulates DB operations for the journal engine.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error)
	FindPostedBySource(ctx context.Context, sourceType SourceType, sourceID int64, eventType string) (JournalEntry, bool, error)
	ListEntries(ctx context.Context, limit int) ([]JournalEntry, error)
}

// TxRepository exposes the operations available inside one posting
// transaction: the unit of all-or-nothing failure.
type TxRepository interface {
	FindOpenPeriodByDate(ctx context.Context, date time.Time) (periods.Period, error)
	FindPostedBySource(ctx context.Context, sourceType SourceType, sourceID int64, eventType string) (JournalEntry, bool, error)
	NextEntryNumber(ctx context.Context) (string, error)
	InsertEntry(ctx context.Context, in EntryInput, number string, totalDebit, totalCredit decimal.Decimal, reversalOf *int64) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) error
	ApplyBalances(ctx context.Context, lines []LineInput) error
	GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error)
	HasReversal(ctx context.Context, entryID int64) (bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *repository) GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	return getEntryWithLines(ctx, r.db, entryID)
}

func (r *repository) FindPostedBySource(ctx context.Context, sourceType SourceType, sourceID int64, eventType string) (JournalEntry, bool, error) {
	return findPostedBySource(ctx, r.db, sourceType, sourceID, eventType)
}

func (r *repository) ListEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

const entryColumns = `id, journal_number, entry_date, source_type, source_id, event_type, description, total_debit::text, total_credit::text, is_posted, created_by, reversal_of, created_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *txRepository) FindOpenPeriodByDate(ctx context.Context, date time.Time) (periods.Period, error) {
	var p periods.Period
	err := r.tx.QueryRow(ctx, `SELECT id, code, start_date, end_date, status, closed_at, created_at, updated_at
FROM fiscal_periods WHERE status='OPEN' AND $1::date BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1 FOR SHARE`, date).
		Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, ErrPeriodClosed
		}
		return periods.Period{}, err
	}
	return p, nil
}

func (r *txRepository) FindPostedBySource(ctx context.Context, sourceType SourceType, sourceID int64, eventType string) (JournalEntry, bool, error) {
	return findPostedBySource(ctx, r.tx, sourceType, sourceID, eventType)
}

// NextEntryNumber derives the next sequential number without locking.
// A concurrent writer racing to the same number surfaces as a unique
// violation on insert, which the engine treats as the retry signal.
func (r *txRepository) NextEntryNumber(ctx context.Context) (string, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(SUBSTRING(journal_number FROM 4) AS BIGINT)), 0) + 1 FROM journal_entries`).Scan(&next)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("JE-%06d", next), nil
}

func (r *txRepository) InsertEntry(ctx context.Context, in EntryInput, number string, totalDebit, totalCredit decimal.Decimal, reversalOf *int64) (JournalEntry, error) {
	entry := JournalEntry{
		Number:      number,
		EntryDate:   in.EntryDate,
		SourceType:  in.SourceType,
		SourceID:    in.SourceID,
		EventType:   in.EventType,
		Description: in.Description,
		TotalDebit:  totalDebit,
		TotalCredit: totalCredit,
		IsPosted:    in.AutoPost,
		CreatedBy:   in.CreatedBy,
		ReversalOf:  reversalOf,
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(journal_number, entry_date, source_type, source_id, event_type, description, total_debit, total_credit, is_posted, created_by, reversal_of)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, created_at`,
		number, in.EntryDate, in.SourceType, in.SourceID, in.EventType, in.Description,
		totalDebit.StringFixed(2), totalCredit.StringFixed(2), in.AutoPost, in.CreatedBy, reversalOf).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return JournalEntry{}, classifyInsertError(err)
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_id, debit, credit) VALUES ($1,$2,$3,$4)`,
			entryID, line.AccountID, line.Debit.StringFixed(2), line.Credit.StringFixed(2)); err != nil {
			return err
		}
	}
	return nil
}

// ApplyBalances folds each line into its account's running balance using
// the category's sign convention.
func (r *txRepository) ApplyBalances(ctx context.Context, lines []LineInput) error {
	for _, line := range lines {
		cmd, err := r.tx.Exec(ctx, `UPDATE accounts a
SET current_balance = a.current_balance + CASE WHEN c.normal_side = 'DEBIT' THEN $2::numeric - $3::numeric ELSE $3::numeric - $2::numeric END,
    updated_at = NOW()
FROM account_categories c
WHERE a.id = $1 AND c.id = a.category_id`,
			line.AccountID, line.Debit.StringFixed(2), line.Credit.StringFixed(2))
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return fmt.Errorf("%w: account %d", ErrAccountNotConfigured, line.AccountID)
		}
	}
	return nil
}

func (r *txRepository) GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	return getEntryWithLines(ctx, r.tx, entryID)
}

func (r *txRepository) HasReversal(ctx context.Context, entryID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_entries WHERE reversal_of=$1)`, entryID).Scan(&exists)
	return exists, err
}

func findPostedBySource(ctx context.Context, q querier, sourceType SourceType, sourceID int64, eventType string) (JournalEntry, bool, error) {
	row := q.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE source_type=$1 AND source_id=$2 AND event_type=$3 AND is_posted`, sourceType, sourceID, eventType)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, false, nil
		}
		return JournalEntry{}, false, err
	}
	lines, err := loadLines(ctx, q, entry.ID)
	if err != nil {
		return JournalEntry{}, false, err
	}
	entry.Lines = lines
	return entry, true, nil
}

func getEntryWithLines(ctx context.Context, q querier, entryID int64) (JournalEntry, error) {
	row := q.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	lines, err := loadLines(ctx, q, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func loadLines(ctx context.Context, q querier, entryID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, entry_id, account_id, debit::text, credit::text FROM journal_lines WHERE entry_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		var debit, credit string
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &debit, &credit); err != nil {
			return nil, err
		}
		if line.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, err
		}
		if line.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (JournalEntry, error) {
	var e JournalEntry
	var totalDebit, totalCredit string
	err := row.Scan(&e.ID, &e.Number, &e.EntryDate, &e.SourceType, &e.SourceID, &e.EventType, &e.Description,
		&totalDebit, &totalCredit, &e.IsPosted, &e.CreatedBy, &e.ReversalOf, &e.CreatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	if e.TotalDebit, err = decimal.NewFromString(totalDebit); err != nil {
		return JournalEntry{}, err
	}
	if e.TotalCredit, err = decimal.NewFromString(totalCredit); err != nil {
		return JournalEntry{}, err
	}
	return e, nil
}

func classifyInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case constraintEntryNumber:
			return ErrNumberConflict
		case constraintEntrySource:
			return ErrSourceConflict
		}
	}
	return err
}
