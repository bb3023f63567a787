package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halftone-erp/halftone/internal/ledger/periods"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	entries    map[int64]*JournalEntry
	bySource   map[string]int64
	nextID     int64
	nextNumber int
	periods    []periods.Period
	balances   map[int64]decimal.Decimal
	reversals  map[int64]int64

	// Error injection
	numberConflicts int
	sourceConflict  bool
	txLookupMisses  int
	txError         error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		entries:   make(map[int64]*JournalEntry),
		bySource:  make(map[string]int64),
		nextID:    1,
		balances:  make(map[int64]decimal.Decimal),
		reversals: make(map[int64]int64),
		periods: []periods.Period{{
			ID:        1,
			Code:      "2026-01",
			StartDate: date(2026, 1, 1),
			EndDate:   date(2026, 12, 31),
			Status:    periods.StatusOpen,
		}},
	}
}

func sourceKey(sourceType SourceType, sourceID int64, eventType string) string {
	return fmt.Sprintf("%s/%d/%s", sourceType, sourceID, eventType)
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, &mockTxRepo{mock: m})
}

func (m *mockRepository) GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	e, ok := m.entries[entryID]
	if !ok {
		return JournalEntry{}, ErrEntryNotFound
	}
	return *e, nil
}

func (m *mockRepository) FindPostedBySource(ctx context.Context, sourceType SourceType, sourceID int64, eventType string) (JournalEntry, bool, error) {
	id, ok := m.bySource[sourceKey(sourceType, sourceID, eventType)]
	if !ok {
		return JournalEntry{}, false, nil
	}
	return *m.entries[id], true, nil
}

func (m *mockRepository) ListEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	var out []JournalEntry
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out, nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) FindOpenPeriodByDate(ctx context.Context, d time.Time) (periods.Period, error) {
	for _, p := range t.mock.periods {
		if p.Status == periods.StatusOpen && p.Contains(d) {
			return p, nil
		}
	}
	return periods.Period{}, ErrPeriodClosed
}

func (t *mockTxRepo) FindPostedBySource(ctx context.Context, sourceType SourceType, sourceID int64, eventType string) (JournalEntry, bool, error) {
	if t.mock.txLookupMisses > 0 {
		t.mock.txLookupMisses--
		return JournalEntry{}, false, nil
	}
	return t.mock.FindPostedBySource(ctx, sourceType, sourceID, eventType)
}

func (t *mockTxRepo) NextEntryNumber(ctx context.Context) (string, error) {
	t.mock.nextNumber++
	return fmt.Sprintf("JE-%06d", t.mock.nextNumber), nil
}

func (t *mockTxRepo) InsertEntry(ctx context.Context, in EntryInput, number string, totalDebit, totalCredit decimal.Decimal, reversalOf *int64) (JournalEntry, error) {
	if t.mock.numberConflicts > 0 {
		t.mock.numberConflicts--
		return JournalEntry{}, ErrNumberConflict
	}
	if t.mock.sourceConflict {
		t.mock.sourceConflict = false
		return JournalEntry{}, ErrSourceConflict
	}
	entry := JournalEntry{
		ID:          t.mock.nextID,
		Number:      number,
		EntryDate:   in.EntryDate,
		SourceType:  in.SourceType,
		SourceID:    in.SourceID,
		EventType:   in.EventType,
		Description: in.Description,
		TotalDebit:  totalDebit,
		TotalCredit: totalCredit,
		IsPosted:    in.AutoPost || reversalOf != nil,
		CreatedBy:   in.CreatedBy,
		ReversalOf:  reversalOf,
		CreatedAt:   time.Now(),
	}
	t.mock.nextID++
	t.mock.entries[entry.ID] = &entry
	if entry.IsPosted && in.SourceID != nil {
		t.mock.bySource[sourceKey(in.SourceType, *in.SourceID, in.EventType)] = entry.ID
	}
	if reversalOf != nil {
		t.mock.reversals[*reversalOf] = entry.ID
	}
	return entry, nil
}

func (t *mockTxRepo) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	e := t.mock.entries[entryID]
	e.Lines = toJournalLines(entryID, lines)
	return nil
}

func (t *mockTxRepo) ApplyBalances(ctx context.Context, lines []LineInput) error {
	for _, line := range lines {
		// Mock accounts are all debit-normal; sign handling is covered by
		// BalanceDelta tests.
		t.mock.balances[line.AccountID] = t.mock.balances[line.AccountID].Add(line.Debit).Sub(line.Credit)
	}
	return nil
}

func (t *mockTxRepo) GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	return t.mock.GetEntryWithLines(ctx, entryID)
}

func (t *mockTxRepo) HasReversal(ctx context.Context, entryID int64) (bool, error) {
	_, ok := t.mock.reversals[entryID]
	return ok, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testEngine(repo Repository) *Engine {
	e := NewEngine(repo, slog.New(slog.DiscardHandler))
	e.WithNow(func() time.Time { return date(2026, 3, 15) })
	return e
}

func balancedInput(sourceID int64) EntryInput {
	id := sourceID
	return EntryInput{
		EntryDate:   date(2026, 3, 10),
		SourceType:  SourceSalesInvoice,
		SourceID:    &id,
		EventType:   "invoice_issued",
		Description: "Invoice posting",
		Lines: []LineInput{
			{AccountID: 1, Debit: dec("118.00")},
			{AccountID: 2, Credit: dec("100.00")},
			{AccountID: 3, Credit: dec("18.00")},
		},
		CreatedBy: 7,
		AutoPost:  true,
	}
}

// ============================================================================
// CREATE ENTRY
// ============================================================================

func TestCreateEntryPostsBalancedLines(t *testing.T) {
	repo := newMockRepository()
	engine := testEngine(repo)

	entry, err := engine.CreateEntry(context.Background(), balancedInput(42))
	require.NoError(t, err)

	assert.Equal(t, "JE-000001", entry.Number)
	assert.True(t, entry.IsPosted)
	assert.Len(t, entry.Lines, 3)
	assert.True(t, entry.TotalDebit.Equal(dec("118.00")))
	assert.True(t, entry.TotalCredit.Equal(dec("118.00")))
	assert.True(t, repo.balances[1].Equal(dec("118.00")))
}

func TestCreateEntryRejectsUnbalanced(t *testing.T) {
	repo := newMockRepository()
	engine := testEngine(repo)

	in := balancedInput(1)
	in.Lines[0].Debit = dec("120.00")

	_, err := engine.CreateEntry(context.Background(), in)
	assert.ErrorIs(t, err, ErrUnbalancedEntry)
	assert.Empty(t, repo.entries)
}

func TestCreateEntryRejectsSingleLine(t *testing.T) {
	engine := testEngine(newMockRepository())

	in := balancedInput(1)
	in.Lines = in.Lines[:1]

	_, err := engine.CreateEntry(context.Background(), in)
	assert.ErrorIs(t, err, ErrTooFewLines)
}

func TestCreateEntryRejectsTwoSidedLine(t *testing.T) {
	engine := testEngine(newMockRepository())

	in := balancedInput(1)
	in.Lines[0].Credit = dec("5.00")

	_, err := engine.CreateEntry(context.Background(), in)
	assert.Error(t, err)
}

func TestCreateEntryAcceptsTimestampOnLastPeriodDay(t *testing.T) {
	repo := newMockRepository()
	engine := testEngine(repo)

	// Dispatched documents carry full timestamps; the period bounds are
	// calendar dates ending at midnight of the last day.
	in := balancedInput(42)
	in.EntryDate = time.Date(2026, 12, 31, 14, 0, 0, 0, time.UTC)

	entry, err := engine.CreateEntry(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, entry.IsPosted)
}

func TestCreateEntryRejectsClosedPeriod(t *testing.T) {
	repo := newMockRepository()
	repo.periods[0].Status = periods.StatusClosed
	engine := testEngine(repo)

	_, err := engine.CreateEntry(context.Background(), balancedInput(1))
	assert.ErrorIs(t, err, ErrPeriodClosed)
}

func TestCreateEntryIdempotentReplay(t *testing.T) {
	repo := newMockRepository()
	engine := testEngine(repo)

	first, err := engine.CreateEntry(context.Background(), balancedInput(42))
	require.NoError(t, err)

	second, err := engine.CreateEntry(context.Background(), balancedInput(42))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Number, second.Number)
	assert.Len(t, repo.entries, 1)
	// Balances applied once, not twice.
	assert.True(t, repo.balances[1].Equal(dec("118.00")))
}

func TestCreateEntryRetriesNumberCollision(t *testing.T) {
	repo := newMockRepository()
	repo.numberConflicts = 1
	engine := testEngine(repo)

	entry, err := engine.CreateEntry(context.Background(), balancedInput(42))
	require.NoError(t, err)

	// First number burned by the collision, retry took the next one.
	assert.Equal(t, "JE-000002", entry.Number)
}

func TestCreateEntryGivesUpAfterMaxAttempts(t *testing.T) {
	repo := newMockRepository()
	repo.numberConflicts = maxNumberAttempts + 1
	engine := testEngine(repo)

	_, err := engine.CreateEntry(context.Background(), balancedInput(42))
	assert.ErrorIs(t, err, ErrNumberConflict)
}

func TestCreateEntryResolvesSourceRace(t *testing.T) {
	repo := newMockRepository()
	engine := testEngine(repo)

	// Winner commits first.
	winner, err := engine.CreateEntry(context.Background(), balancedInput(42))
	require.NoError(t, err)

	// The loser's snapshot predates the winner's commit: the in-tx lookup
	// misses, the insert hits the unique violation, and the committed row
	// is found on the re-read.
	repo.txLookupMisses = 1
	repo.sourceConflict = true

	loser, err := engine.CreateEntry(context.Background(), balancedInput(42))
	require.NoError(t, err)
	assert.Equal(t, winner.ID, loser.ID)
}

// ============================================================================
// REVERSE
// ============================================================================

func TestReverseSwapsLinesAndRestoresBalances(t *testing.T) {
	repo := newMockRepository()
	engine := testEngine(repo)

	original, err := engine.CreateEntry(context.Background(), balancedInput(42))
	require.NoError(t, err)

	reversal, err := engine.Reverse(context.Background(), original.ID, 9)
	require.NoError(t, err)

	require.NotNil(t, reversal.ReversalOf)
	assert.Equal(t, original.ID, *reversal.ReversalOf)
	assert.Equal(t, "invoice_issued.reversal", reversal.EventType)
	assert.Equal(t, date(2026, 3, 15), reversal.EntryDate)

	require.Len(t, reversal.Lines, 3)
	assert.True(t, reversal.Lines[0].Credit.Equal(dec("118.00")))
	assert.True(t, reversal.Lines[1].Debit.Equal(dec("100.00")))

	for accountID, balance := range repo.balances {
		assert.True(t, balance.IsZero(), "account %d balance %s", accountID, balance)
	}
}

func TestReverseRetriesNumberCollision(t *testing.T) {
	repo := newMockRepository()
	engine := testEngine(repo)

	original, err := engine.CreateEntry(context.Background(), balancedInput(1))
	require.NoError(t, err)

	repo.numberConflicts = 1
	reversal, err := engine.Reverse(context.Background(), original.ID, 9)
	require.NoError(t, err)
	assert.NotEqual(t, original.Number, reversal.Number)
	assert.Equal(t, &original.ID, reversal.ReversalOf)
}

func TestReverseRejectsAlreadyReversed(t *testing.T) {
	repo := newMockRepository()
	engine := testEngine(repo)

	original, err := engine.CreateEntry(context.Background(), balancedInput(42))
	require.NoError(t, err)

	_, err = engine.Reverse(context.Background(), original.ID, 9)
	require.NoError(t, err)

	_, err = engine.Reverse(context.Background(), original.ID, 9)
	assert.ErrorIs(t, err, ErrReversalState)
}

func TestReverseRejectsReversalEntry(t *testing.T) {
	repo := newMockRepository()
	engine := testEngine(repo)

	original, err := engine.CreateEntry(context.Background(), balancedInput(42))
	require.NoError(t, err)

	reversal, err := engine.Reverse(context.Background(), original.ID, 9)
	require.NoError(t, err)

	_, err = engine.Reverse(context.Background(), reversal.ID, 9)
	assert.ErrorIs(t, err, ErrReversalState)
}

func TestReverseRejectsUnposted(t *testing.T) {
	repo := newMockRepository()
	engine := testEngine(repo)

	in := balancedInput(42)
	in.AutoPost = false
	draft, err := engine.CreateEntry(context.Background(), in)
	require.NoError(t, err)

	_, err = engine.Reverse(context.Background(), draft.ID, 9)
	assert.ErrorIs(t, err, ErrReversalState)
}

// TestBalancesReconcileFromLines rebuilds every balance from the posted
// lines and compares against the running totals: replay, a forced number
// retry, and a reversal must each apply balances exactly once.
func TestBalancesReconcileFromLines(t *testing.T) {
	repo := newMockRepository()
	engine := testEngine(repo)

	first, err := engine.CreateEntry(context.Background(), balancedInput(1))
	require.NoError(t, err)
	_, err = engine.CreateEntry(context.Background(), balancedInput(1)) // replay, no-op
	require.NoError(t, err)

	repo.numberConflicts = 1
	_, err = engine.CreateEntry(context.Background(), balancedInput(2))
	require.NoError(t, err)

	_, err = engine.Reverse(context.Background(), first.ID, 9)
	require.NoError(t, err)

	rebuilt := make(map[int64]decimal.Decimal)
	for _, e := range repo.entries {
		if !e.IsPosted {
			continue
		}
		for _, line := range e.Lines {
			rebuilt[line.AccountID] = rebuilt[line.AccountID].Add(line.Debit).Sub(line.Credit)
		}
	}
	require.Len(t, repo.balances, len(rebuilt))
	for accountID, want := range rebuilt {
		assert.True(t, repo.balances[accountID].Equal(want), "account %d: %s != %s", accountID, repo.balances[accountID], want)
	}
}

// ============================================================================
// DOMAIN
// ============================================================================

func TestBalanceDelta(t *testing.T) {
	assert.True(t, BalanceDelta(NormalSideDebit, dec("100"), dec("30")).Equal(dec("70")))
	assert.True(t, BalanceDelta(NormalSideCredit, dec("100"), dec("30")).Equal(dec("-70")))
}

func TestValidateRejectsNegativeAmounts(t *testing.T) {
	in := balancedInput(1)
	in.Lines[0].Debit = dec("-118.00")
	assert.Error(t, in.Validate())
}
