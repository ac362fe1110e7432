package service

import (
	"context"
	"time"

	"github.com/unclebandit/prospect-pipeline/internal/repository"
)

// QuotaService owns the per-day sent counter.
type QuotaService struct {
	Repos    *repository.Repositories
	Location *time.Location
}

func NewQuotaService(repos *repository.Repositories, loc *time.Location) *QuotaService {
	if loc == nil {
		loc = time.UTC
	}
	return &QuotaService{Repos: repos, Location: loc}
}

// Day is the counter key for t in the pipeline time zone.
func (q *QuotaService) Day(t time.Time) string {
	return t.In(q.Location).Format(time.DateOnly)
}

func (q *QuotaService) GetSent(ctx context.Context, day string) (int, error) {
	return q.Repos.Counters.Get(ctx, day)
}

func (q *QuotaService) Increment(ctx context.Context, day string, delta int) error {
	return q.Repos.Counters.Increment(ctx, day, delta)
}

// Remaining is how many more messages may go out on t's day under limit.
func (q *QuotaService) Remaining(ctx context.Context, limit int, t time.Time) (int, error) {
	sent, err := q.GetSent(ctx, q.Day(t))
	if err != nil {
		return 0, err
	}
	if r := limit - sent; r > 0 {
		return r, nil
	}
	return 0, nil
}
