package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/halftone-erp/halftone/internal/dispatch"
)

const sweepBatchSize = 200

// OutboxSweeper drains outbox rows the fast path never finished: the
// enqueue after commit can be lost to a crash or a Redis outage, so a
// periodic sweep re-runs dispatch for every unprocessed row. Dispatch is
// idempotent, so rows the fast path already posted are skipped and only
// marked processed.
type OutboxSweeper struct {
	outbox     dispatch.OutboxRepository
	dispatcher JournalDispatcher
	logger     *slog.Logger
}

func NewOutboxSweeper(outbox dispatch.OutboxRepository, dispatcher JournalDispatcher, logger *slog.Logger) *OutboxSweeper {
	return &OutboxSweeper{outbox: outbox, dispatcher: dispatcher, logger: logger}
}

// Sweep processes one batch of unprocessed messages.
func (s *OutboxSweeper) Sweep(ctx context.Context) error {
	messages, err := s.outbox.ListUnprocessed(ctx, sweepBatchSize)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.outbox.MarkEnqueued(ctx, msg.ID); err != nil {
			s.logger.Warn("outbox sweep: mark enqueued", slog.String("key", msg.Key().String()), slog.Any("error", err))
			continue
		}
		if err := s.dispatcher.Dispatch(ctx, msg.Key()); err != nil {
			// Dispatch records posting failures itself; an error here is
			// infrastructure, leave the row for the next sweep.
			s.logger.Warn("outbox sweep: dispatch", slog.String("key", msg.Key().String()), slog.Any("error", err))
			continue
		}
		if err := s.outbox.MarkProcessed(ctx, msg.ID); err != nil {
			s.logger.Warn("outbox sweep: mark processed", slog.String("key", msg.Key().String()), slog.Any("error", err))
		}
	}
	if len(messages) > 0 {
		s.logger.Info("outbox sweep complete", slog.Int("messages", len(messages)))
	}
	return nil
}

// NewOutboxSweepHandler adapts the sweeper to an Asynq handler.
func NewOutboxSweepHandler(sweeper *OutboxSweeper) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		return sweeper.Sweep(ctx)
	}
}
