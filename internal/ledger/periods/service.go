package periods

import (
	"context"
	"errors"
	"time"
)

// Service exposes period lookups and the open/close operator actions.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) FindOpenByDate(ctx context.Context, date time.Time) (Period, error) {
	return s.repo.FindOpenByDate(ctx, date)
}

func (s *Service) List(ctx context.Context) ([]Period, error) {
	return s.repo.List(ctx)
}

// Close marks a period closed; postings dated inside it are rejected from
// then on.
func (s *Service) Close(ctx context.Context, id int64) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusClosed {
		return errors.New("periods: already closed")
	}
	return s.repo.SetStatus(ctx, id, StatusClosed)
}

// Reopen returns a closed period to the open state.
func (s *Service) Reopen(ctx context.Context, id int64) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusOpen {
		return errors.New("periods: already open")
	}
	return s.repo.SetStatus(ctx, id, StatusOpen)
}
