package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxMessage is the transactional handoff between a domain write and
// the journal dispatcher: appended in the writer's own transaction, swept
// into the queue after commit. A crash between commit and enqueue is
// recovered by the next sweep; handlers are idempotent, so at-least-once
// delivery is safe.
type OutboxMessage struct {
	ID          uuid.UUID
	EntityType  EntityType
	EntityID    int64
	EventType   string
	OccurredAt  time.Time
	EnqueuedAt  *time.Time
	ProcessedAt *time.Time
	CreatedAt   time.Time
}

// Key identifies one dispatchable event.
func (m OutboxMessage) Key() Key {
	return Key{EntityType: m.EntityType, EntityID: m.EntityID, EventType: m.EventType}
}

// OutboxRepository persists dispatch messages.
type OutboxRepository interface {
	// Append inside the caller's transaction so the message commits with
	// the domain write or not at all.
	Append(ctx context.Context, tx pgx.Tx, key Key, occurredAt time.Time) error
	ListUnprocessed(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkEnqueued(ctx context.Context, id uuid.UUID) error
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}

type outboxRepository struct {
	db *pgxpool.Pool
}

func NewOutboxRepository(db *pgxpool.Pool) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Append(ctx context.Context, tx pgx.Tx, key Key, occurredAt time.Time) error {
	_, err := tx.Exec(ctx, `INSERT INTO journal_outbox (id, entity_type, entity_id, event_type, occurred_at)
VALUES ($1,$2,$3,$4,$5)`, uuid.New(), key.EntityType, key.EntityID, key.EventType, occurredAt)
	return err
}

func (r *outboxRepository) ListUnprocessed(ctx context.Context, limit int) ([]OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT id, entity_type, entity_id, event_type, occurred_at, enqueued_at, processed_at, created_at
FROM journal_outbox WHERE processed_at IS NULL ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		if err := rows.Scan(&m.ID, &m.EntityType, &m.EntityID, &m.EventType, &m.OccurredAt,
			&m.EnqueuedAt, &m.ProcessedAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *outboxRepository) MarkEnqueued(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE journal_outbox SET enqueued_at=NOW() WHERE id=$1`, id)
	return err
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE journal_outbox SET processed_at=NOW() WHERE id=$1`, id)
	return err
}
