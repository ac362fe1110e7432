package scheduler

import (
	"context"

	"github.com/unclebandit/prospect-pipeline/internal/config"
	"github.com/unclebandit/prospect-pipeline/internal/logger"
	"github.com/unclebandit/prospect-pipeline/internal/service"
)

const (
	JobCapture  = "capture"
	JobQueue    = "queue"
	JobDispatch = "dispatch"
	JobFollowup = "followup"
)

// Pipeline holds the four stages the scheduler drives.
type Pipeline struct {
	Capture  *service.CaptureService
	Queue    *service.QueueBuilder
	Dispatch *service.Dispatcher
	Followup *service.FollowupScheduler
}

// Jobs adapts each stage to a Job that logs its result.
func (p Pipeline) Jobs(logg *logger.Logger) map[string]Job {
	return map[string]Job{
		JobCapture: JobFunc{JobName: JobCapture, Fn: func(ctx context.Context) error {
			res, err := p.Capture.Run(ctx)
			logg.Info(logg.WithFields(ctx, map[string]any{
				"total": res.Total, "inserted": res.Inserted, "duplicates": res.Duplicates,
				"skipped": res.Skipped, "pages": res.Pages,
			}), "capture finished")
			return err
		}},
		JobQueue: JobFunc{JobName: JobQueue, Fn: func(ctx context.Context) error {
			n, err := p.Queue.Run(ctx)
			logg.Info(logg.WithField(ctx, "queued", n), "queue finished")
			return err
		}},
		JobDispatch: JobFunc{JobName: JobDispatch, Fn: func(ctx context.Context) error {
			res, err := p.Dispatch.Run(ctx)
			logg.Info(logg.WithFields(ctx, map[string]any{
				"sent": res.Sent, "failed": res.Failed, "requeued": res.Requeued,
				"stale": res.Stale, "skipped": res.Skipped,
			}), "dispatch finished")
			return err
		}},
		JobFollowup: JobFunc{JobName: JobFollowup, Fn: func(ctx context.Context) error {
			counts, err := p.Followup.Run(ctx)
			fields := make(map[string]any, len(counts))
			for kind, n := range counts {
				fields[string(kind)] = n
			}
			logg.Info(logg.WithFields(ctx, fields), "followup finished")
			return err
		}},
	}
}

// RegisterPipeline schedules every stage on its configured cron expression.
func RegisterPipeline(s *Scheduler, p Pipeline, specs config.ScheduleConfig, logg *logger.Logger) error {
	jobs := p.Jobs(logg)
	for _, entry := range []struct{ name, spec string }{
		{JobCapture, specs.Capture},
		{JobQueue, specs.Queue},
		{JobDispatch, specs.Dispatch},
		{JobFollowup, specs.Followup},
	} {
		if err := s.Register(entry.spec, jobs[entry.name]); err != nil {
			return err
		}
	}
	return nil
}
