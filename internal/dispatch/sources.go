package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// EntityType names an upstream record kind the dispatcher can journal.
type EntityType string

const (
	EntitySalesInvoice    EntityType = "sales_invoice"
	EntityInvoicePayment  EntityType = "invoice_payment"
	EntityOrderPayment    EntityType = "order_payment"
	EntitySupplierBill    EntityType = "supplier_bill"
	EntityBillPayment     EntityType = "bill_payment"
	EntityBankTransaction EntityType = "bank_transaction"
)

// ErrSourceNotFound indicates the upstream row vanished between commit and
// dispatch.
var ErrSourceNotFound = errors.New("dispatch: source row not found")

// SourceRecord is the dispatcher's fresh view of an upstream row. Only the
// fields applicable to the row's kind are populated. JournalEntryID and
// ClearedJournalEntryID are the back-references the dispatcher writes.
type SourceRecord struct {
	Kind                  EntityType
	ID                    int64
	CustomerID            int64
	SupplierID            int64
	InvoiceID             int64
	OrderID               int64
	BillID                int64
	Amount                decimal.Decimal
	Subtotal              decimal.Decimal
	VATAmount             decimal.Decimal
	Total                 decimal.Decimal
	AdvancesApplied       decimal.Decimal
	BalanceBefore         decimal.Decimal
	VATRate               decimal.Decimal
	Method                string
	Memo                  string
	OccurredAt            time.Time
	ClearedAt             *time.Time
	Voided                bool
	JournalEntryID        *int64
	ClearedJournalEntryID *int64
	ActorID               int64
}

// SourceReader re-reads upstream rows and writes journal back-references.
type SourceReader interface {
	Fetch(ctx context.Context, kind EntityType, id int64) (SourceRecord, error)
	// LinkJournal sets the journal back-reference only when it is still
	// empty, so two racing dispatches cannot overwrite each other.
	LinkJournal(ctx context.Context, kind EntityType, id int64, column string, entryID int64) error
}

// Back-reference columns. Cheque clearance produces a second entry linked
// through its own column on the same payment row.
const (
	ColumnJournalEntry        = "journal_entry_id"
	ColumnClearedJournalEntry = "cleared_journal_entry_id"
)

type pgSourceReader struct {
	db *pgxpool.Pool
}

func NewSourceReader(db *pgxpool.Pool) SourceReader {
	return &pgSourceReader{db: db}
}

func (r *pgSourceReader) Fetch(ctx context.Context, kind EntityType, id int64) (SourceRecord, error) {
	rec := SourceRecord{Kind: kind, ID: id}
	var err error
	var amount, subtotal, vatAmount, total, advances, balanceBefore, vatRate string

	switch kind {
	case EntitySalesInvoice:
		err = r.db.QueryRow(ctx, `SELECT customer_id, issued_at, subtotal::text, vat_amount::text, total::text,
advances_applied::text, vat_rate::text, is_voided, journal_entry_id, created_by
FROM sales_invoices WHERE id=$1`, id).
			Scan(&rec.CustomerID, &rec.OccurredAt, &subtotal, &vatAmount, &total,
				&advances, &vatRate, &rec.Voided, &rec.JournalEntryID, &rec.ActorID)
	case EntityInvoicePayment, EntityOrderPayment:
		err = r.db.QueryRow(ctx, `SELECT customer_id, invoice_id, order_id, amount::text, invoice_balance_before::text,
vat_rate::text, method, received_at, cleared_at, is_voided, journal_entry_id, cleared_journal_entry_id, received_by
FROM customer_payments WHERE id=$1 AND kind=$2`, id, kind).
			Scan(&rec.CustomerID, &rec.InvoiceID, &rec.OrderID, &amount, &balanceBefore,
				&vatRate, &rec.Method, &rec.OccurredAt, &rec.ClearedAt, &rec.Voided,
				&rec.JournalEntryID, &rec.ClearedJournalEntryID, &rec.ActorID)
	case EntitySupplierBill:
		err = r.db.QueryRow(ctx, `SELECT supplier_id, total::text, approved_at, is_voided, journal_entry_id, approved_by
FROM supplier_bills WHERE id=$1`, id).
			Scan(&rec.SupplierID, &total, &rec.OccurredAt, &rec.Voided, &rec.JournalEntryID, &rec.ActorID)
	case EntityBillPayment:
		err = r.db.QueryRow(ctx, `SELECT bill_id, amount::text, method, paid_at, cleared_at, is_voided,
journal_entry_id, cleared_journal_entry_id, paid_by
FROM bill_payments WHERE id=$1`, id).
			Scan(&rec.BillID, &amount, &rec.Method, &rec.OccurredAt, &rec.ClearedAt, &rec.Voided,
				&rec.JournalEntryID, &rec.ClearedJournalEntryID, &rec.ActorID)
	case EntityBankTransaction:
		err = r.db.QueryRow(ctx, `SELECT amount::text, memo, occurred_at, is_voided, journal_entry_id
FROM bank_transactions WHERE id=$1`, id).
			Scan(&amount, &rec.Memo, &rec.OccurredAt, &rec.Voided, &rec.JournalEntryID)
	default:
		return SourceRecord{}, fmt.Errorf("dispatch: unknown entity type %q", kind)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SourceRecord{}, ErrSourceNotFound
		}
		return SourceRecord{}, err
	}

	for _, pair := range []struct {
		raw  string
		dest *decimal.Decimal
	}{
		{amount, &rec.Amount}, {subtotal, &rec.Subtotal}, {vatAmount, &rec.VATAmount},
		{total, &rec.Total}, {advances, &rec.AdvancesApplied},
		{balanceBefore, &rec.BalanceBefore}, {vatRate, &rec.VATRate},
	} {
		if pair.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(pair.raw)
		if err != nil {
			return SourceRecord{}, err
		}
		*pair.dest = d
	}
	return rec, nil
}

func (r *pgSourceReader) LinkJournal(ctx context.Context, kind EntityType, id int64, column string, entryID int64) error {
	if column != ColumnJournalEntry && column != ColumnClearedJournalEntry {
		return fmt.Errorf("dispatch: invalid link column %q", column)
	}
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	// Conditional write: the first dispatch to finish wins, later ones no-op.
	_, err = r.db.Exec(ctx, `UPDATE `+table+` SET `+column+`=$2 WHERE id=$1 AND `+column+` IS NULL`, id, entryID)
	return err
}

func tableFor(kind EntityType) (string, error) {
	switch kind {
	case EntitySalesInvoice:
		return "sales_invoices", nil
	case EntityInvoicePayment, EntityOrderPayment:
		return "customer_payments", nil
	case EntitySupplierBill:
		return "supplier_bills", nil
	case EntityBillPayment:
		return "bill_payments", nil
	case EntityBankTransaction:
		return "bank_transactions", nil
	}
	return "", fmt.Errorf("dispatch: unknown entity type %q", kind)
}
