package periods

import (
	"errors"
	"time"
)

var (
	// ErrNoOpenPeriod indicates no open period covers the date.
	ErrNoOpenPeriod = errors.New("periods: no open period for date")
	// ErrNotFound indicates the period id does not exist.
	ErrNotFound = errors.New("periods: period not found")
)

// Status enumerates fiscal period states.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Period is a date range that gates new postings.
type Period struct {
	ID        int64
	Code      string
	StartDate time.Time
	EndDate   time.Time
	Status    Status
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contains reports whether the date falls inside the period window. The
// comparison is on calendar dates: the bounds scan from DATE columns as
// midnight, so a timestamp on the period's last day must still match.
func (p Period) Contains(date time.Time) bool {
	d := midnight(date)
	return !d.Before(midnight(p.StartDate)) && !d.After(midnight(p.EndDate))
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
