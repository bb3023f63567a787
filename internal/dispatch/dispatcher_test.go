package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halftone-erp/halftone/internal/ledger"
	"github.com/halftone-erp/halftone/internal/posting"
)

// ============================================================================
// FAKES
// ============================================================================

type fakeSources struct {
	records  map[Key2]SourceRecord
	links    []linkCall
	linkErr  error
	fetchErr error
}

// Key2 keys records by kind and id only; the event type picks the handler,
// not the row.
type Key2 struct {
	Kind EntityType
	ID   int64
}

type linkCall struct {
	kind    EntityType
	id      int64
	column  string
	entryID int64
}

func (f *fakeSources) Fetch(ctx context.Context, kind EntityType, id int64) (SourceRecord, error) {
	if f.fetchErr != nil {
		return SourceRecord{}, f.fetchErr
	}
	rec, ok := f.records[Key2{kind, id}]
	if !ok {
		return SourceRecord{}, ErrSourceNotFound
	}
	return rec, nil
}

func (f *fakeSources) LinkJournal(ctx context.Context, kind EntityType, id int64, column string, entryID int64) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.links = append(f.links, linkCall{kind: kind, id: id, column: column, entryID: entryID})
	return nil
}

type fakeHandlers struct {
	posted  []string
	nextID  int64
	postErr error
}

func (f *fakeHandlers) entry(event string) (ledger.JournalEntry, error) {
	if f.postErr != nil {
		return ledger.JournalEntry{}, f.postErr
	}
	f.posted = append(f.posted, event)
	f.nextID++
	return ledger.JournalEntry{ID: f.nextID, Number: "JE-000001", IsPosted: true}, nil
}

func (f *fakeHandlers) HandleInvoiceIssued(ctx context.Context, evt posting.InvoiceIssuedEvent) (ledger.JournalEntry, error) {
	return f.entry("invoice_issued")
}

func (f *fakeHandlers) HandlePaymentReceived(ctx context.Context, evt posting.PaymentReceivedEvent) (ledger.JournalEntry, error) {
	return f.entry("payment_received:" + string(evt.Kind))
}

func (f *fakeHandlers) HandleChequeCleared(ctx context.Context, evt posting.ChequeClearedEvent) (ledger.JournalEntry, error) {
	return f.entry("cheque_cleared:" + string(evt.Direction))
}

func (f *fakeHandlers) HandleSupplierBill(ctx context.Context, evt posting.SupplierBillEvent) (ledger.JournalEntry, error) {
	return f.entry("bill_approved")
}

func (f *fakeHandlers) HandleBillPaid(ctx context.Context, evt posting.BillPaidEvent) (ledger.JournalEntry, error) {
	return f.entry("bill_paid")
}

func (f *fakeHandlers) HandleBankCharge(ctx context.Context, evt posting.BankChargeEvent) (ledger.JournalEntry, error) {
	return f.entry("bank_charge")
}

type fakeFailures struct {
	recorded []Key
	resolved []Key
}

func (f *fakeFailures) Record(ctx context.Context, key Key, message string) error {
	f.recorded = append(f.recorded, key)
	return nil
}

func (f *fakeFailures) Resolve(ctx context.Context, key Key) error {
	f.resolved = append(f.resolved, key)
	return nil
}

func (f *fakeFailures) ListOpen(ctx context.Context) ([]FailureRecord, error) {
	return nil, nil
}

func (f *fakeFailures) Get(ctx context.Context, id int64) (FailureRecord, error) {
	return FailureRecord{}, errors.New("not found")
}

// ============================================================================
// HELPERS
// ============================================================================

var (
	cutover  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	postDate = time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
)

func newTestDispatcher() (*Dispatcher, *fakeSources, *fakeHandlers, *fakeFailures) {
	sources := &fakeSources{records: make(map[Key2]SourceRecord)}
	handlers := &fakeHandlers{}
	failures := &fakeFailures{}
	d := NewDispatcher(sources, handlers, failures, cutover, slog.New(slog.DiscardHandler))
	return d, sources, handlers, failures
}

func invoiceRecord(id int64) SourceRecord {
	return SourceRecord{
		Kind:       EntitySalesInvoice,
		ID:         id,
		CustomerID: 3,
		OccurredAt: postDate,
		Subtotal:   decimal.RequireFromString("100.00"),
		VATAmount:  decimal.RequireFromString("18.00"),
		Total:      decimal.RequireFromString("118.00"),
		ActorID:    1,
	}
}

// ============================================================================
// DISPATCH
// ============================================================================

func TestDispatchPostsAndLinks(t *testing.T) {
	d, sources, handlers, failures := newTestDispatcher()
	sources.records[Key2{EntitySalesInvoice, 10}] = invoiceRecord(10)

	key := Key{EntityType: EntitySalesInvoice, EntityID: 10, EventType: "invoice_issued"}
	require.NoError(t, d.Dispatch(context.Background(), key))

	assert.Equal(t, []string{"invoice_issued"}, handlers.posted)
	require.Len(t, sources.links, 1)
	assert.Equal(t, ColumnJournalEntry, sources.links[0].column)
	assert.Equal(t, int64(1), sources.links[0].entryID)
	assert.Equal(t, []Key{key}, failures.resolved)
	assert.Empty(t, failures.recorded)
}

func TestDispatchSkipsAlreadyLinked(t *testing.T) {
	d, sources, handlers, _ := newTestDispatcher()
	rec := invoiceRecord(10)
	entryID := int64(99)
	rec.JournalEntryID = &entryID
	sources.records[Key2{EntitySalesInvoice, 10}] = rec

	key := Key{EntityType: EntitySalesInvoice, EntityID: 10, EventType: "invoice_issued"}
	require.NoError(t, d.Dispatch(context.Background(), key))

	assert.Empty(t, handlers.posted)
	assert.Empty(t, sources.links)
}

func TestDispatchSkipsVoided(t *testing.T) {
	d, sources, handlers, failures := newTestDispatcher()
	rec := invoiceRecord(10)
	rec.Voided = true
	sources.records[Key2{EntitySalesInvoice, 10}] = rec

	key := Key{EntityType: EntitySalesInvoice, EntityID: 10, EventType: "invoice_issued"}
	require.NoError(t, d.Dispatch(context.Background(), key))

	assert.Empty(t, handlers.posted)
	assert.Empty(t, failures.recorded)
}

func TestDispatchSkipsPreCutover(t *testing.T) {
	d, sources, handlers, failures := newTestDispatcher()
	rec := invoiceRecord(10)
	rec.OccurredAt = cutover.AddDate(0, 0, -1)
	sources.records[Key2{EntitySalesInvoice, 10}] = rec

	key := Key{EntityType: EntitySalesInvoice, EntityID: 10, EventType: "invoice_issued"}
	require.NoError(t, d.Dispatch(context.Background(), key))

	assert.Empty(t, handlers.posted)
	assert.Empty(t, failures.recorded)
}

func TestDispatchRecordsFailureAndSwallows(t *testing.T) {
	d, sources, handlers, failures := newTestDispatcher()
	sources.records[Key2{EntitySalesInvoice, 10}] = invoiceRecord(10)
	handlers.postErr = errors.New("boom")

	key := Key{EntityType: EntitySalesInvoice, EntityID: 10, EventType: "invoice_issued"}

	// The originating business operation must never fail on journal errors.
	require.NoError(t, d.Dispatch(context.Background(), key))
	assert.Equal(t, []Key{key}, failures.recorded)
	assert.Empty(t, sources.links)
}

func TestDispatchMissingSourceRecordsFailure(t *testing.T) {
	d, _, _, failures := newTestDispatcher()

	key := Key{EntityType: EntitySalesInvoice, EntityID: 404, EventType: "invoice_issued"}
	require.NoError(t, d.Dispatch(context.Background(), key))
	assert.Len(t, failures.recorded, 1)
}

// A transient infrastructure error before any posting attempt must surface
// to the caller so the queue retry or the next sweep re-runs the dispatch,
// instead of being filed as an operator-visible failure.
func TestDispatchPropagatesFetchInfrastructureError(t *testing.T) {
	d, sources, handlers, failures := newTestDispatcher()
	sources.fetchErr = errors.New("connection refused")

	key := Key{EntityType: EntitySalesInvoice, EntityID: 10, EventType: "invoice_issued"}
	err := d.Dispatch(context.Background(), key)
	require.Error(t, err)
	assert.ErrorIs(t, err, sources.fetchErr)
	assert.Empty(t, failures.recorded)
	assert.Empty(t, handlers.posted)
}

// ============================================================================
// CHEQUE CLEARANCE
// ============================================================================

func TestDispatchClearanceUsesClearedColumn(t *testing.T) {
	d, sources, handlers, _ := newTestDispatcher()
	cleared := postDate.Add(48 * time.Hour)
	linked := int64(5)
	sources.records[Key2{EntityInvoicePayment, 20}] = SourceRecord{
		Kind:           EntityInvoicePayment,
		ID:             20,
		Amount:         decimal.RequireFromString("118.00"),
		Method:         "cheque",
		OccurredAt:     postDate,
		ClearedAt:      &cleared,
		JournalEntryID: &linked, // receipt leg already posted
	}

	key := Key{EntityType: EntityInvoicePayment, EntityID: 20, EventType: "invoice_payment_cheque_cleared"}
	require.NoError(t, d.Dispatch(context.Background(), key))

	assert.Equal(t, []string{"cheque_cleared:incoming"}, handlers.posted)
	require.Len(t, sources.links, 1)
	assert.Equal(t, ColumnClearedJournalEntry, sources.links[0].column)
}

func TestDispatchClearanceBeforeClearedAtFails(t *testing.T) {
	d, sources, handlers, failures := newTestDispatcher()
	sources.records[Key2{EntityInvoicePayment, 20}] = SourceRecord{
		Kind:       EntityInvoicePayment,
		ID:         20,
		Amount:     decimal.RequireFromString("118.00"),
		OccurredAt: postDate,
	}

	key := Key{EntityType: EntityInvoicePayment, EntityID: 20, EventType: "invoice_payment_cheque_cleared"}
	require.NoError(t, d.Dispatch(context.Background(), key))

	assert.Empty(t, handlers.posted)
	assert.Len(t, failures.recorded, 1)
}

func TestDispatchOutgoingClearance(t *testing.T) {
	d, sources, handlers, _ := newTestDispatcher()
	cleared := postDate.Add(24 * time.Hour)
	sources.records[Key2{EntityBillPayment, 30}] = SourceRecord{
		Kind:       EntityBillPayment,
		ID:         30,
		BillID:     7,
		Amount:     decimal.RequireFromString("250.00"),
		Method:     "cheque",
		OccurredAt: postDate,
		ClearedAt:  &cleared,
	}

	key := Key{EntityType: EntityBillPayment, EntityID: 30, EventType: "bill_payment_cheque_cleared"}
	require.NoError(t, d.Dispatch(context.Background(), key))

	assert.Equal(t, []string{"cheque_cleared:outgoing"}, handlers.posted)
}
