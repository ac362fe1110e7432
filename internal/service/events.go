package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/unclebandit/prospect-pipeline/internal/logger"
	"github.com/unclebandit/prospect-pipeline/internal/repository"
)

// recordEvent appends to the audit log. A failed append is logged, never returned.
// The append outlives cancellation of ctx so a run interrupted by shutdown still
// leaves its summary behind.
func recordEvent(ctx context.Context, repos *repository.Repositories, logg *logger.Logger, eventType string, at time.Time, payload map[string]any) {
	ctx = context.WithoutCancel(ctx)
	body, err := json.Marshal(payload)
	if err != nil {
		body = []byte("{}")
	}
	if err := repos.Events.Append(ctx, eventType, string(body), at); err != nil && logg != nil {
		logg.Error(logg.WithField(ctx, "event_type", eventType), "failed to append event", err)
	}
}

func clock(now func() time.Time) time.Time {
	if now == nil {
		return time.Now()
	}
	return now()
}

func nopIfNil(logg *logger.Logger) *logger.Logger {
	if logg == nil {
		return logger.Nop()
	}
	return logg
}
