package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/unclebandit/prospect-pipeline/internal/logger"
	"github.com/unclebandit/prospect-pipeline/internal/model"
	"github.com/unclebandit/prospect-pipeline/internal/repository"
)

type followupStep struct {
	Kind     model.MessageKind
	Previous model.MessageKind
	After    time.Duration
}

// FollowupSteps are measured from the send time of the first message. A step
// is only queued once the previous one was sent, so a lead never gets two
// follow-ups in the same dispatch window.
var FollowupSteps = []followupStep{
	{model.KindFollowup24h, model.KindFirst, 24 * time.Hour},
	{model.KindFollowup72h, model.KindFollowup24h, 72 * time.Hour},
	{model.KindFollowup7d, model.KindFollowup72h, 7 * 24 * time.Hour},
}

// FollowupScheduler queues follow-ups for leads that have not answered.
type FollowupScheduler struct {
	Repos     *repository.Repositories
	Templates *TemplateService
	Logger    *logger.Logger
	Now       func() time.Time
}

func NewFollowupScheduler(repos *repository.Repositories, templates *TemplateService, logg *logger.Logger) *FollowupScheduler {
	return &FollowupScheduler{Repos: repos, Templates: templates, Logger: nopIfNil(logg), Now: time.Now}
}

// Run queues every due follow-up. A failing kind does not stop the others.
func (f *FollowupScheduler) Run(ctx context.Context) (map[model.MessageKind]int, error) {
	now := clock(f.Now)
	counts := make(map[model.MessageKind]int, len(FollowupSteps))

	var errs error
	for _, step := range FollowupSteps {
		n, err := f.queueKind(ctx, step, now)
		counts[step.Kind] = n
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", step.Kind, err))
		}
	}

	payload := make(map[string]any, len(counts)+1)
	for kind, n := range counts {
		payload[string(kind)] = n
	}
	if errs != nil {
		payload["error"] = errs.Error()
	}
	recordEvent(ctx, f.Repos, f.Logger, model.EventFollowup, now, payload)
	return counts, errs
}

func (f *FollowupScheduler) queueKind(ctx context.Context, step followupStep, now time.Time) (int, error) {
	leads, err := f.Repos.Leads.ListFollowupCandidates(ctx, step.Kind, step.Previous, now.Add(-step.After))
	if err != nil {
		return 0, err
	}
	queued := 0
	for i := range leads {
		lead := &leads[i]
		created, err := f.Repos.Messages.CreateIfAbsent(ctx, &model.Message{
			LeadID:      lead.ID,
			Kind:        step.Kind,
			TemplateKey: string(step.Kind),
			Text:        f.Templates.Render(string(step.Kind), lead),
			Status:      model.MessageQueued,
			QueuedAt:    now.UTC(),
		})
		if err != nil {
			return queued, err
		}
		if created {
			queued++
		}
	}
	return queued, nil
}
