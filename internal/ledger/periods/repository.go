package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	FindOpenByDate(ctx context.Context, date time.Time) (Period, error)
	Get(ctx context.Context, id int64) (Period, error)
	List(ctx context.Context) ([]Period, error)
	SetStatus(ctx context.Context, id int64, status Status) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, code, start_date, end_date, status, closed_at, created_at, updated_at`

// FindOpenByDate returns the open period covering the supplied date. The
// cast compares calendar dates; timestamps with a time-of-day must still
// match a period ending that day.
func (r *repository) FindOpenByDate(ctx context.Context, date time.Time) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+`
FROM fiscal_periods WHERE status='OPEN' AND $1::date BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, date)
	p, err := scanPeriod(row)
	if errors.Is(err, ErrNotFound) {
		return Period{}, ErrNoOpenPeriod
	}
	return p, err
}

func (r *repository) Get(ctx context.Context, id int64) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE id=$1`, id)
	return scanPeriod(row)
}

func (r *repository) List(ctx context.Context) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM fiscal_periods ORDER BY start_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) SetStatus(ctx context.Context, id int64, status Status) error {
	closedAt := "NULL"
	if status == StatusClosed {
		closedAt = "NOW()"
	}
	cmd, err := r.db.Exec(ctx, `UPDATE fiscal_periods SET status=$2, closed_at=`+closedAt+`, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPeriod(row rowScanner) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrNotFound
		}
		return Period{}, err
	}
	return p, nil
}
