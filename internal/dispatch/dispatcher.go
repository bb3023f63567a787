package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/halftone-erp/halftone/internal/ledger"
	"github.com/halftone-erp/halftone/internal/posting"
)

// Key identifies one dispatchable event: the idempotency triple.
type Key struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	EventType  string     `json:"event_type"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%s", k.EntityType, k.EntityID, k.EventType)
}

// ChequeClearedSuffix marks clearance events; the prefix names the payment
// source, e.g. invoice_payment_cheque_cleared.
const ChequeClearedSuffix = "_cheque_cleared"

// PostingHandlers is the slice of the posting service the dispatcher calls.
type PostingHandlers interface {
	HandleInvoiceIssued(ctx context.Context, evt posting.InvoiceIssuedEvent) (ledger.JournalEntry, error)
	HandlePaymentReceived(ctx context.Context, evt posting.PaymentReceivedEvent) (ledger.JournalEntry, error)
	HandleChequeCleared(ctx context.Context, evt posting.ChequeClearedEvent) (ledger.JournalEntry, error)
	HandleSupplierBill(ctx context.Context, evt posting.SupplierBillEvent) (ledger.JournalEntry, error)
	HandleBillPaid(ctx context.Context, evt posting.BillPaidEvent) (ledger.JournalEntry, error)
	HandleBankCharge(ctx context.Context, evt posting.BankChargeEvent) (ledger.JournalEntry, error)
}

// Dispatcher runs journal postings strictly after the originating write has
// committed. It is fire-and-forget to its caller: every error is recorded
// as a failure and swallowed, never propagated.
type Dispatcher struct {
	sources  SourceReader
	handlers PostingHandlers
	failures FailureStore
	cutover  time.Time
	logger   *slog.Logger
}

func NewDispatcher(sources SourceReader, handlers PostingHandlers, failures FailureStore, cutover time.Time, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{sources: sources, handlers: handlers, failures: failures, cutover: cutover, logger: logger}
}

// Dispatch re-reads the source row fresh, skips anything already journaled,
// voided, or predating the cutover, posts the event, and links the entry
// back to the row. Safe to invoke any number of times for the same key.
//
// Posting errors are recorded as failures and swallowed. An infrastructure
// error before the posting attempt returns non-nil so the queue retry or
// the next outbox sweep re-runs the dispatch instead of waiting on an
// operator.
func (d *Dispatcher) Dispatch(ctx context.Context, key Key) error {
	rec, err := d.sources.Fetch(ctx, key.EntityType, key.EntityID)
	if err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			d.recordFailure(ctx, key, err)
			return nil
		}
		return fmt.Errorf("dispatch: fetch %s: %w", key, err)
	}
	if err := d.dispatch(ctx, key, rec); err != nil {
		d.recordFailure(ctx, key, err)
	}
	return nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, key Key, err error) {
	d.logger.Error("journal dispatch failed",
		slog.String("key", key.String()),
		slog.Any("error", err))
	if recErr := d.failures.Record(ctx, key, err.Error()); recErr != nil {
		d.logger.Error("record journal failure",
			slog.String("key", key.String()),
			slog.Any("error", recErr))
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, key Key, rec SourceRecord) error {
	if rec.Voided {
		d.logger.Debug("skip voided source", slog.String("key", key.String()))
		return nil
	}

	clearance := strings.HasSuffix(key.EventType, ChequeClearedSuffix)
	if clearance {
		if rec.ClearedJournalEntryID != nil {
			return nil
		}
		if rec.ClearedAt == nil {
			return fmt.Errorf("dispatch: %s not cleared yet", key)
		}
		if rec.ClearedAt.Before(d.cutover) {
			d.logger.Debug("skip pre-cutover event", slog.String("key", key.String()))
			return nil
		}
	} else {
		if rec.JournalEntryID != nil {
			return nil
		}
		if rec.OccurredAt.Before(d.cutover) {
			d.logger.Debug("skip pre-cutover event", slog.String("key", key.String()))
			return nil
		}
	}

	entry, err := d.post(ctx, key, rec, clearance)
	if err != nil {
		return err
	}

	column := ColumnJournalEntry
	if clearance {
		column = ColumnClearedJournalEntry
	}
	if err := d.sources.LinkJournal(ctx, key.EntityType, key.EntityID, column, entry.ID); err != nil {
		return err
	}
	if err := d.failures.Resolve(ctx, key); err != nil {
		d.logger.Warn("resolve journal failure", slog.String("key", key.String()), slog.Any("error", err))
	}
	d.logger.Info("journal posted",
		slog.String("key", key.String()),
		slog.String("entry", entry.Number))
	return nil
}

func (d *Dispatcher) post(ctx context.Context, key Key, rec SourceRecord, clearance bool) (ledger.JournalEntry, error) {
	if clearance {
		return d.handlers.HandleChequeCleared(ctx, clearedEvent(key, rec))
	}
	switch key.EntityType {
	case EntitySalesInvoice:
		return d.handlers.HandleInvoiceIssued(ctx, posting.InvoiceIssuedEvent{
			InvoiceID:       rec.ID,
			CustomerID:      rec.CustomerID,
			IssuedAt:        rec.OccurredAt,
			Subtotal:        rec.Subtotal,
			VATAmount:       rec.VATAmount,
			Total:           rec.Total,
			AdvancesApplied: rec.AdvancesApplied,
			VATRate:         rec.VATRate,
			IssuedBy:        rec.ActorID,
		})
	case EntityInvoicePayment, EntityOrderPayment:
		kind := posting.KindInvoicePayment
		if key.EntityType == EntityOrderPayment {
			kind = posting.KindOrderPayment
		}
		return d.handlers.HandlePaymentReceived(ctx, posting.PaymentReceivedEvent{
			PaymentID:   rec.ID,
			Kind:        kind,
			InvoiceID:   rec.InvoiceID,
			OrderID:     rec.OrderID,
			CustomerID:  rec.CustomerID,
			Amount:      rec.Amount,
			Outstanding: rec.BalanceBefore,
			Method:      posting.PaymentMethod(rec.Method),
			VATRate:     rec.VATRate,
			ReceivedAt:  rec.OccurredAt,
			ReceivedBy:  rec.ActorID,
		})
	case EntitySupplierBill:
		return d.handlers.HandleSupplierBill(ctx, posting.SupplierBillEvent{
			BillID:     rec.ID,
			SupplierID: rec.SupplierID,
			Total:      rec.Total,
			ApprovedAt: rec.OccurredAt,
			ApprovedBy: rec.ActorID,
		})
	case EntityBillPayment:
		return d.handlers.HandleBillPaid(ctx, posting.BillPaidEvent{
			PaymentID: rec.ID,
			BillID:    rec.BillID,
			Amount:    rec.Amount,
			Method:    posting.PaymentMethod(rec.Method),
			PaidAt:    rec.OccurredAt,
			PaidBy:    rec.ActorID,
		})
	case EntityBankTransaction:
		return d.handlers.HandleBankCharge(ctx, posting.BankChargeEvent{
			TxnID:      rec.ID,
			Amount:     rec.Amount,
			OccurredAt: rec.OccurredAt,
			Memo:       rec.Memo,
		})
	}
	return ledger.JournalEntry{}, fmt.Errorf("dispatch: no handler for %s", key)
}

func clearedEvent(key Key, rec SourceRecord) posting.ChequeClearedEvent {
	evt := posting.ChequeClearedEvent{
		PaymentID: rec.ID,
		Amount:    rec.Amount,
	}
	if rec.ClearedAt != nil {
		evt.ClearedAt = *rec.ClearedAt
	}
	switch key.EntityType {
	case EntityBillPayment:
		evt.Direction = posting.ChequeOutgoing
	default:
		evt.Direction = posting.ChequeIncoming
		evt.Kind = posting.KindInvoicePayment
		if key.EntityType == EntityOrderPayment {
			evt.Kind = posting.KindOrderPayment
		}
	}
	return evt
}
