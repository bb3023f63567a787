package roles

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	ListAll(ctx context.Context) ([]Mapping, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// ListAll returns every role mapping joined with account flags so the
// resolver can reject inactive or non-transactable targets up front.
func (r *repository) ListAll(ctx context.Context) ([]Mapping, error) {
	rows, err := r.db.Query(ctx, `SELECT m.role, m.account_id, a.code, a.allow_transactions, a.is_active, m.created_at, m.updated_at
FROM account_role_mappings m JOIN accounts a ON a.id = m.account_id ORDER BY m.role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.Role, &m.AccountID, &m.AccountCode, &m.AllowTransactions, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
