package dispatch

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FailureRecord tracks a failed posting attempt keyed by source identity.
// A later successful dispatch for the same key resolves it.
type FailureRecord struct {
	ID            int64
	EntityType    EntityType
	EntityID      int64
	EventType     string
	Error         string
	Attempts      int
	FirstFailedAt time.Time
	LastFailedAt  time.Time
	ResolvedAt    *time.Time
}

// FailureStore persists and resolves posting failures.
type FailureStore interface {
	Record(ctx context.Context, key Key, errText string) error
	Resolve(ctx context.Context, key Key) error
	ListOpen(ctx context.Context) ([]FailureRecord, error)
	Get(ctx context.Context, id int64) (FailureRecord, error)
}

type failureStore struct {
	db *pgxpool.Pool
}

func NewFailureStore(db *pgxpool.Pool) FailureStore {
	return &failureStore{db: db}
}

func (s *failureStore) Record(ctx context.Context, key Key, errText string) error {
	_, err := s.db.Exec(ctx, `INSERT INTO journal_failures
(entity_type, entity_id, event_type, error, attempts, first_failed_at, last_failed_at)
VALUES ($1,$2,$3,$4,1,NOW(),NOW())
ON CONFLICT (entity_type, entity_id, event_type) DO UPDATE
SET error = EXCLUDED.error,
    attempts = journal_failures.attempts + 1,
    last_failed_at = NOW(),
    resolved_at = NULL`,
		key.EntityType, key.EntityID, key.EventType, errText)
	return err
}

func (s *failureStore) Resolve(ctx context.Context, key Key) error {
	_, err := s.db.Exec(ctx, `UPDATE journal_failures SET resolved_at=NOW()
WHERE entity_type=$1 AND entity_id=$2 AND event_type=$3 AND resolved_at IS NULL`,
		key.EntityType, key.EntityID, key.EventType)
	return err
}

func (s *failureStore) ListOpen(ctx context.Context) ([]FailureRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT id, entity_type, entity_id, event_type, error, attempts, first_failed_at, last_failed_at, resolved_at
FROM journal_failures WHERE resolved_at IS NULL ORDER BY last_failed_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FailureRecord
	for rows.Next() {
		var f FailureRecord
		if err := rows.Scan(&f.ID, &f.EntityType, &f.EntityID, &f.EventType, &f.Error, &f.Attempts,
			&f.FirstFailedAt, &f.LastFailedAt, &f.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *failureStore) Get(ctx context.Context, id int64) (FailureRecord, error) {
	var f FailureRecord
	err := s.db.QueryRow(ctx, `SELECT id, entity_type, entity_id, event_type, error, attempts, first_failed_at, last_failed_at, resolved_at
FROM journal_failures WHERE id=$1`, id).
		Scan(&f.ID, &f.EntityType, &f.EntityID, &f.EventType, &f.Error, &f.Attempts,
			&f.FirstFailedAt, &f.LastFailedAt, &f.ResolvedAt)
	return f, err
}
