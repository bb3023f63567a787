package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// maxNumberAttempts bounds the regenerate-and-retry loop on journal number
// collisions.
const maxNumberAttempts = 5

// Engine turns validated line sets into posted journal entries. Every
// posting runs inside exactly one transaction: entry, lines, and balance
// updates commit together or not at all.
type Engine struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(repo Repository, logger *slog.Logger) *Engine {
	return &Engine{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// CreateEntry validates, numbers, and persists a journal entry.
//
// Idempotency: if a posted entry already exists for (SourceType, SourceID,
// EventType) it is returned unchanged — no new row, no balance change.
// Handlers are therefore safe to invoke any number of times. A concurrent
// racer surfaces as a unique violation on the source key; the loser
// re-reads the winner's committed row and returns it.
func (e *Engine) CreateEntry(ctx context.Context, in EntryInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	totalDebit, totalCredit := sumLines(in.Lines)

	var entry JournalEntry
	for attempt := 1; ; attempt++ {
		err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			period, err := tx.FindOpenPeriodByDate(ctx, in.EntryDate)
			if err != nil {
				return err
			}
			if !period.Contains(in.EntryDate) {
				return ErrPeriodClosed
			}
			if in.SourceID != nil {
				existing, found, err := tx.FindPostedBySource(ctx, in.SourceType, *in.SourceID, in.EventType)
				if err != nil {
					return err
				}
				if found {
					entry = existing
					return nil
				}
			}
			number, err := tx.NextEntryNumber(ctx)
			if err != nil {
				return err
			}
			inserted, err := tx.InsertEntry(ctx, in, number, totalDebit, totalCredit, nil)
			if err != nil {
				return err
			}
			if err := tx.InsertLines(ctx, inserted.ID, in.Lines); err != nil {
				return err
			}
			if in.AutoPost {
				if err := tx.ApplyBalances(ctx, in.Lines); err != nil {
					return err
				}
			}
			inserted.Lines = toJournalLines(inserted.ID, in.Lines)
			entry = inserted
			return nil
		})
		switch {
		case err == nil:
			return entry, nil
		case errors.Is(err, ErrNumberConflict):
			if attempt >= maxNumberAttempts {
				return JournalEntry{}, fmt.Errorf("%w: gave up after %d attempts", ErrNumberConflict, attempt)
			}
			e.logger.Warn("journal number collision, regenerating",
				slog.Int("attempt", attempt),
				slog.String("source_type", string(in.SourceType)),
				slog.String("event_type", in.EventType))
		case errors.Is(err, ErrSourceConflict):
			return e.resolveRace(ctx, in)
		default:
			return JournalEntry{}, err
		}
	}
}

// resolveRace handles the losing side of two concurrent dispatches for the
// same source event: the winner's row is already committed, so the event
// is posted and this call becomes a no-op returning it.
func (e *Engine) resolveRace(ctx context.Context, in EntryInput) (JournalEntry, error) {
	if in.SourceID == nil {
		return JournalEntry{}, ErrSourceConflict
	}
	existing, found, err := e.repo.FindPostedBySource(ctx, in.SourceType, *in.SourceID, in.EventType)
	if err != nil {
		return JournalEntry{}, err
	}
	if !found {
		return JournalEntry{}, ErrSourceConflict
	}
	return existing, nil
}

// Reverse creates a new posted entry with every line's debit and credit
// swapped, linked via ReversalOf. Posting it restores the affected
// accounts to their pre-entry balances.
//
// Unposted entries, entries already reversed, and reversal entries
// themselves are rejected with ErrReversalState.
func (e *Engine) Reverse(ctx context.Context, entryID int64, actorID int64) (JournalEntry, error) {
	if entryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var reversal JournalEntry
	for attempt := 1; ; attempt++ {
		err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			original, err := tx.GetEntryWithLines(ctx, entryID)
			if err != nil {
				return err
			}
			if !original.IsPosted {
				return fmt.Errorf("%w: entry %s is not posted", ErrReversalState, original.Number)
			}
			if original.ReversalOf != nil {
				return fmt.Errorf("%w: entry %s is itself a reversal", ErrReversalState, original.Number)
			}
			reversed, err := tx.HasReversal(ctx, entryID)
			if err != nil {
				return err
			}
			if reversed {
				return fmt.Errorf("%w: entry %s already reversed", ErrReversalState, original.Number)
			}

			entryDate := e.now()
			if _, err := tx.FindOpenPeriodByDate(ctx, entryDate); err != nil {
				return err
			}

			in := EntryInput{
				EntryDate:   entryDate,
				SourceType:  original.SourceType,
				SourceID:    original.SourceID,
				EventType:   original.EventType + ".reversal",
				Description: fmt.Sprintf("Reversal of %s", original.Number),
				Lines:       swapLines(original.Lines),
				CreatedBy:   actorID,
				AutoPost:    true,
			}
			number, err := tx.NextEntryNumber(ctx)
			if err != nil {
				return err
			}
			totalDebit, totalCredit := sumLines(in.Lines)
			inserted, err := tx.InsertEntry(ctx, in, number, totalDebit, totalCredit, &original.ID)
			if err != nil {
				return err
			}
			if err := tx.InsertLines(ctx, inserted.ID, in.Lines); err != nil {
				return err
			}
			if err := tx.ApplyBalances(ctx, in.Lines); err != nil {
				return err
			}
			inserted.Lines = toJournalLines(inserted.ID, in.Lines)
			reversal = inserted
			return nil
		})
		switch {
		case err == nil:
			return reversal, nil
		case errors.Is(err, ErrNumberConflict):
			if attempt >= maxNumberAttempts {
				return JournalEntry{}, fmt.Errorf("%w: gave up after %d attempts", ErrNumberConflict, attempt)
			}
			e.logger.Warn("journal number collision, regenerating",
				slog.Int("attempt", attempt),
				slog.Int64("reversal_of", entryID))
		default:
			return JournalEntry{}, err
		}
	}
}

// GetEntry loads one entry with its lines.
func (e *Engine) GetEntry(ctx context.Context, entryID int64) (JournalEntry, error) {
	return e.repo.GetEntryWithLines(ctx, entryID)
}

// ListEntries returns recent entries, newest first.
func (e *Engine) ListEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	return e.repo.ListEntries(ctx, limit)
}

func sumLines(lines []LineInput) (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

func swapLines(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	return out
}

func toJournalLines(entryID int64, lines []LineInput) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			EntryID:   entryID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
		})
	}
	return out
}
