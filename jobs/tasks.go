package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/halftone-erp/halftone/internal/dispatch"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskJournalDispatch posts the journal entry for one committed
	// source document.
	TaskJournalDispatch = "journal:dispatch"
	// TaskOutboxSweep drains outbox rows that were committed but never
	// enqueued, e.g. after a crash between commit and enqueue.
	TaskOutboxSweep = "journal:outbox_sweep"
	// TaskLedgerIntegrity verifies the posted ledger still balances.
	TaskLedgerIntegrity = "journal:integrity"
)

// NewJournalDispatchTask constructs the dispatch task for one event key.
func NewJournalDispatchTask(key dispatch.Key) (*asynq.Task, error) {
	data, err := json.Marshal(key)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskJournalDispatch, data), nil
}

// NewOutboxSweepTask constructs the periodic sweep task.
func NewOutboxSweepTask() *asynq.Task {
	return asynq.NewTask(TaskOutboxSweep, nil)
}

// NewLedgerIntegrityTask constructs the periodic integrity check task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// JournalDispatcher posts one event key; the implementation records its
// own failures and never propagates posting errors.
type JournalDispatcher interface {
	Dispatch(ctx context.Context, key dispatch.Key) error
}

// NewJournalDispatchHandler decodes the key and hands it to the dispatcher.
// A malformed payload is dropped rather than retried.
func NewJournalDispatchHandler(dispatcher JournalDispatcher) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var key dispatch.Key
		if err := json.Unmarshal(t.Payload(), &key); err != nil {
			return asynq.SkipRetry
		}
		return dispatcher.Dispatch(ctx, key)
	}
}
