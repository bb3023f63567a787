package periods

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===== MOCK REPOSITORY =====

type mockRepository struct {
	periods map[int64]Period
	updates []statusUpdate
}

type statusUpdate struct {
	id     int64
	status Status
}

func newMockRepository(periods ...Period) *mockRepository {
	byID := make(map[int64]Period, len(periods))
	for _, p := range periods {
		byID[p.ID] = p
	}
	return &mockRepository{periods: byID}
}

func (m *mockRepository) FindOpenByDate(ctx context.Context, date time.Time) (Period, error) {
	for _, p := range m.periods {
		if p.Status == StatusOpen && p.Contains(date) {
			return p, nil
		}
	}
	return Period{}, ErrNoOpenPeriod
}

func (m *mockRepository) Get(ctx context.Context, id int64) (Period, error) {
	p, ok := m.periods[id]
	if !ok {
		return Period{}, ErrNotFound
	}
	return p, nil
}

func (m *mockRepository) List(ctx context.Context) ([]Period, error) {
	out := make([]Period, 0, len(m.periods))
	for _, p := range m.periods {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	p, ok := m.periods[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	m.periods[id] = p
	m.updates = append(m.updates, statusUpdate{id: id, status: status})
	return nil
}

func monthPeriod(id int64, year int, month time.Month, status Status) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{
		ID:        id,
		Code:      start.Format("2006-01"),
		StartDate: start,
		EndDate:   start.AddDate(0, 1, -1),
		Status:    status,
	}
}

// ===== TESTS =====

func TestFindOpenByDateSkipsClosedPeriods(t *testing.T) {
	repo := newMockRepository(
		monthPeriod(1, 2026, time.January, StatusClosed),
		monthPeriod(2, 2026, time.February, StatusOpen),
	)
	service := NewService(repo)

	_, err := service.FindOpenByDate(context.Background(), time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNoOpenPeriod)

	p, err := service.FindOpenByDate(context.Background(), time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.ID)
}

func TestCloseTransitionsOpenPeriod(t *testing.T) {
	repo := newMockRepository(monthPeriod(1, 2026, time.March, StatusOpen))
	service := NewService(repo)

	require.NoError(t, service.Close(context.Background(), 1))
	assert.Equal(t, []statusUpdate{{id: 1, status: StatusClosed}}, repo.updates)
}

func TestCloseRejectsAlreadyClosed(t *testing.T) {
	repo := newMockRepository(monthPeriod(1, 2026, time.March, StatusClosed))
	service := NewService(repo)

	err := service.Close(context.Background(), 1)
	require.Error(t, err)
	assert.Empty(t, repo.updates)
}

func TestReopenTransitionsClosedPeriod(t *testing.T) {
	repo := newMockRepository(monthPeriod(1, 2026, time.March, StatusClosed))
	service := NewService(repo)

	require.NoError(t, service.Reopen(context.Background(), 1))
	assert.Equal(t, []statusUpdate{{id: 1, status: StatusOpen}}, repo.updates)
}

func TestReopenRejectsAlreadyOpen(t *testing.T) {
	repo := newMockRepository(monthPeriod(1, 2026, time.March, StatusOpen))
	service := NewService(repo)

	err := service.Reopen(context.Background(), 1)
	require.Error(t, err)
	assert.Empty(t, repo.updates)
}

func TestPeriodContainsBoundaryDates(t *testing.T) {
	p := monthPeriod(1, 2026, time.April, StatusOpen)

	assert.True(t, p.Contains(p.StartDate))
	assert.True(t, p.Contains(p.EndDate))
	assert.False(t, p.Contains(p.StartDate.AddDate(0, 0, -1)))
	assert.False(t, p.Contains(p.EndDate.AddDate(0, 0, 1)))

	// The bounds are calendar dates; a timestamp on the last day is inside.
	assert.True(t, p.Contains(p.EndDate.Add(14*time.Hour)))
	assert.False(t, p.Contains(p.EndDate.Add(25*time.Hour)))
}
