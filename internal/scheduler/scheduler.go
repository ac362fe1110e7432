package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/unclebandit/prospect-pipeline/internal/logger"
	"github.com/unclebandit/prospect-pipeline/internal/metrics"
)

// LockFactory builds the distributed lock for a job name. Nil means local-only guarding.
type LockFactory func(job string) (Lock, error)

type Params struct {
	Logger   *logger.Logger
	Metrics  *metrics.JobMetrics
	Location *time.Location
	Locks    LockFactory
}

// Scheduler fires registered jobs on their cron specs. Create one per process.
type Scheduler struct {
	logg      *logger.Logger
	metrics   *metrics.JobMetrics
	locks     LockFactory
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	guards    map[string]*Guard
	jobs      map[string]Job
	startOnce sync.Once
	stopOnce  sync.Once
}

func New(params Params) (*Scheduler, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logg:    params.Logger,
		metrics: params.Metrics,
		locks:   params.Locks,
		cron:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger{params.Logger}))),
		ctx:     ctx,
		cancel:  cancel,
		guards:  make(map[string]*Guard),
		jobs:    make(map[string]Job),
	}, nil
}

// Register schedules job on spec (standard five-field cron or @every).
func (s *Scheduler) Register(spec string, job Job) error {
	if job == nil {
		return errors.New("job required")
	}
	name := job.Name()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %s already registered", name)
	}

	var remote Lock
	if s.locks != nil {
		l, err := s.locks(name)
		if err != nil {
			return fmt.Errorf("lock for %s: %w", name, err)
		}
		remote = l
	}
	if _, err := s.cron.AddFunc(spec, func() { _, _ = s.Trigger(s.ctx, name) }); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.jobs[name] = job
	s.guards[name] = NewGuard(remote)
	return nil
}

// Start begins firing triggers. Calls after the first are no-ops.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.cron.Start()
		s.logg.Info(s.ctx, "scheduler started")
	})
}

// Stop halts new triggers, cancels running jobs and waits for them.
func (s *Scheduler) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		done := s.cron.Stop()
		s.cancel()
		select {
		case <-done.Done():
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

// Trigger runs the named job once through its guard. ran is false when the
// job is unknown or a trigger found it running; err is the job's own failure.
func (s *Scheduler) Trigger(ctx context.Context, name string) (ran bool, err error) {
	s.mu.Lock()
	job, guard := s.jobs[name], s.guards[name]
	s.mu.Unlock()
	if job == nil {
		return false, fmt.Errorf("job %s not registered", name)
	}

	jobCtx := s.logg.WithField(ctx, "job", name)
	start := time.Now()
	ran, err = guard.TryRun(jobCtx, job.Run)
	if !ran && err == nil {
		s.logg.Info(jobCtx, "job already running, trigger skipped")
		s.metrics.IncSkipped(name)
		return false, nil
	}

	duration := time.Since(start)
	s.metrics.ObserveDuration(name, duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.IncFailure(name)
		return ran, err
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.IncSuccess(name)
	return true, nil
}

// cronLogger routes robfig/cron's own logging (panic recovery) to zerolog.
type cronLogger struct {
	logg *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.logg.Debug(c.logg.WithFields(context.Background(), pairs(keysAndValues)), msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.logg.Error(c.logg.WithFields(context.Background(), pairs(keysAndValues)), msg, err)
}

func pairs(kv []any) map[string]any {
	out := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}
