package posting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// AdvanceStatus tracks the lifecycle of unapplied customer credit.
type AdvanceStatus string

const (
	AdvanceAvailable AdvanceStatus = "available"
	AdvanceApplied   AdvanceStatus = "applied"
	AdvanceVoided    AdvanceStatus = "voided"
)

// AdvanceSource records how the credit came to exist.
type AdvanceSource string

const (
	AdvanceFromOverpayment AdvanceSource = "overpayment"
	AdvanceFromPayment     AdvanceSource = "advance_payment"
)

// CustomerAdvance is unapplied customer credit consumable against future
// invoices. Amount is the original credit; Balance the unapplied remainder.
type CustomerAdvance struct {
	ID             int64
	CustomerID     int64
	Amount         decimal.Decimal
	Balance        decimal.Decimal
	Status         AdvanceStatus
	SourceType     AdvanceSource
	PaymentID      int64
	JournalEntryID int64
	CreatedAt      time.Time
}

// AdvanceStore persists customer advances and their consumption.
type AdvanceStore interface {
	// Create records a new advance; re-creating for the same payment and
	// source is a no-op so posting handlers stay idempotent.
	Create(ctx context.Context, adv CustomerAdvance) error
	// ApplyToInvoice consumes up to amount of the customer's available
	// advances, oldest first. Calling again for the same invoice is a no-op.
	ApplyToInvoice(ctx context.Context, customerID, invoiceID int64, amount decimal.Decimal) error
}

type advanceStore struct {
	db *pgxpool.Pool
}

func NewAdvanceStore(db *pgxpool.Pool) AdvanceStore {
	return &advanceStore{db: db}
}

func (s *advanceStore) Create(ctx context.Context, adv CustomerAdvance) error {
	_, err := s.db.Exec(ctx, `INSERT INTO customer_advances
(customer_id, amount, balance, status, source_type, payment_id, journal_entry_id)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (payment_id, source_type) DO NOTHING`,
		adv.CustomerID, adv.Amount.StringFixed(2), adv.Balance.StringFixed(2),
		adv.Status, adv.SourceType, adv.PaymentID, adv.JournalEntryID)
	return err
}

func (s *advanceStore) ApplyToInvoice(ctx context.Context, customerID, invoiceID int64, amount decimal.Decimal) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var already bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM advance_applications WHERE invoice_id=$1)`, invoiceID).Scan(&already); err != nil {
		return err
	}
	if already {
		return tx.Commit(ctx)
	}

	rows, err := tx.Query(ctx, `SELECT id, balance::text FROM customer_advances
WHERE customer_id=$1 AND status=$2 AND balance > 0 ORDER BY created_at, id FOR UPDATE`, customerID, AdvanceAvailable)
	if err != nil {
		return err
	}
	type slice struct {
		id      int64
		balance decimal.Decimal
	}
	var available []slice
	for rows.Next() {
		var sl slice
		var bal string
		if err := rows.Scan(&sl.id, &bal); err != nil {
			rows.Close()
			return err
		}
		if sl.balance, err = decimal.NewFromString(bal); err != nil {
			rows.Close()
			return err
		}
		available = append(available, sl)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	remaining := amount
	for _, sl := range available {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, sl.balance)
		newBalance := sl.balance.Sub(take)
		status := AdvanceAvailable
		if newBalance.IsZero() {
			status = AdvanceApplied
		}
		if _, err := tx.Exec(ctx, `UPDATE customer_advances SET balance=$2, status=$3 WHERE id=$1`,
			sl.id, newBalance.StringFixed(2), status); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO advance_applications (invoice_id, advance_id, amount) VALUES ($1,$2,$3)`,
			invoiceID, sl.id, take.StringFixed(2)); err != nil {
			return err
		}
		remaining = remaining.Sub(take)
	}
	return tx.Commit(ctx)
}
