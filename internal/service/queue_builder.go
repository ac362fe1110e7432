package service

import (
	"context"
	"time"

	"github.com/unclebandit/prospect-pipeline/internal/logger"
	"github.com/unclebandit/prospect-pipeline/internal/model"
	"github.com/unclebandit/prospect-pipeline/internal/repository"
	"github.com/unclebandit/prospect-pipeline/internal/segment"
)

// QueueBuilder creates the first-contact message for fresh leads.
type QueueBuilder struct {
	Repos     *repository.Repositories
	Templates *TemplateService
	Window    time.Duration
	Logger    *logger.Logger
	Now       func() time.Time
}

func NewQueueBuilder(repos *repository.Repositories, templates *TemplateService, window time.Duration, logg *logger.Logger) *QueueBuilder {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &QueueBuilder{Repos: repos, Templates: templates, Window: window, Logger: nopIfNil(logg), Now: time.Now}
}

// Run queues one first message per lead created within the window that has
// no message yet. Safe to re-run.
func (b *QueueBuilder) Run(ctx context.Context) (int, error) {
	now := clock(b.Now)
	leads, err := b.Repos.Leads.ListUnqueued(ctx, now.Add(-b.Window))
	if err != nil {
		return 0, err
	}

	queued := 0
	for i := range leads {
		lead := &leads[i]
		key := segment.TemplateKey(lead.Segment)
		created, err := b.Repos.Messages.CreateIfAbsent(ctx, &model.Message{
			LeadID:      lead.ID,
			Kind:        model.KindFirst,
			TemplateKey: key,
			Text:        b.Templates.Render(key, lead),
			Status:      model.MessageQueued,
			QueuedAt:    now.UTC(),
		})
		if err != nil {
			recordEvent(ctx, b.Repos, b.Logger, model.EventQueue, now, map[string]any{"queued": queued, "error": err.Error()})
			return queued, err
		}
		if created {
			queued++
		}
	}

	recordEvent(ctx, b.Repos, b.Logger, model.EventQueue, now, map[string]any{"queued": queued, "candidates": len(leads)})
	return queued, nil
}
