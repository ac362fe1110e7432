package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/unclebandit/prospect-pipeline/internal/config"
	appErrors "github.com/unclebandit/prospect-pipeline/internal/errors"
	"github.com/unclebandit/prospect-pipeline/internal/gateway"
	"github.com/unclebandit/prospect-pipeline/internal/logger"
	"github.com/unclebandit/prospect-pipeline/internal/model"
	"github.com/unclebandit/prospect-pipeline/internal/repository"
)

const (
	SkipOutsideHours  = "outside business hours"
	SkipQuotaReached  = "daily limit reached"
	SkipNothingQueued = "nothing queued"
)

// SendRecorder observes per-message dispatch outcomes.
type SendRecorder interface {
	ObserveSend(outcome string)
}

type DispatchResult struct {
	Sent     int
	Failed   int
	Requeued int
	Stale    int
	// Skipped names the gate that stopped the run, if any.
	Skipped string
}

// Dispatcher sends queued messages within business hours and the daily quota.
type Dispatcher struct {
	Repos    *repository.Repositories
	Sender   gateway.Sender
	Quota    *QuotaService
	Hours    BusinessHours
	Config   config.DispatchConfig
	Limiter  *rate.Limiter
	Recorder SendRecorder
	Logger   *logger.Logger
	Now      func() time.Time
}

func NewDispatcher(repos *repository.Repositories, sender gateway.Sender, quota *QuotaService, cfg config.DispatchConfig, loc *time.Location, logg *logger.Logger) *Dispatcher {
	hours := BusinessHours{Location: loc, StartHour: cfg.StartHour, EndHour: cfg.EndHour}
	if cfg.SkipHolidays {
		hours.Holidays = BrazilHolidays()
	}
	limit := rate.Inf
	if cfg.SendInterval > 0 {
		limit = rate.Every(cfg.SendInterval)
	}
	return &Dispatcher{
		Repos:   repos,
		Sender:  sender,
		Quota:   quota,
		Hours:   hours,
		Config:  cfg,
		Limiter: rate.NewLimiter(limit, 1),
		Logger:  nopIfNil(logg),
		Now:     time.Now,
	}
}

// Run sends at most one batch. Outside business hours it does nothing.
func (d *Dispatcher) Run(ctx context.Context) (DispatchResult, error) {
	var res DispatchResult
	now := clock(d.Now)
	if !d.Hours.Open(now) {
		res.Skipped = SkipOutsideHours
		return res, nil
	}

	res, err := d.dispatch(ctx, now)
	payload := map[string]any{
		"sent":     res.Sent,
		"failed":   res.Failed,
		"requeued": res.Requeued,
		"stale":    res.Stale,
	}
	if res.Skipped != "" {
		payload["skipped"] = res.Skipped
	}
	if err != nil {
		payload["error"] = appErrors.Truncate(err.Error(), 500)
	}
	recordEvent(ctx, d.Repos, d.Logger, model.EventDispatch, now, payload)
	return res, err
}

func (d *Dispatcher) dispatch(ctx context.Context, now time.Time) (DispatchResult, error) {
	var res DispatchResult

	if d.Config.StaleAfter > 0 {
		n, err := d.Repos.Messages.FailStale(ctx, now.Add(-d.Config.StaleAfter), "dispatch interrupted")
		if err != nil {
			return res, err
		}
		res.Stale = int(n)
	}

	day := d.Quota.Day(now)
	remaining, err := d.Quota.Remaining(ctx, d.Config.DailyLimit, now)
	if err != nil {
		return res, err
	}
	if remaining <= 0 {
		res.Skipped = SkipQuotaReached
		return res, nil
	}

	batch := d.Config.BatchSize
	if batch <= 0 {
		batch = 10
	}
	msgs, err := d.Repos.Messages.ListQueued(ctx, batch)
	if err != nil {
		return res, err
	}
	if len(msgs) == 0 {
		res.Skipped = SkipNothingQueued
		return res, nil
	}

	for i := range msgs {
		if res.Sent >= remaining {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := d.process(ctx, &msgs[i], day, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// process handles one message. A returned error aborts the run; per-message
// failures are recorded on the message instead.
func (d *Dispatcher) process(ctx context.Context, msg *model.Message, day string, res *DispatchResult) error {
	lctx := d.Logger.WithFields(ctx, map[string]any{"message_id": msg.ID, "lead_id": msg.LeadID})

	lead, err := d.Repos.Leads.GetByID(ctx, msg.LeadID)
	if err != nil {
		return err
	}
	if reason, err := d.veto(ctx, lead); err != nil || reason != "" {
		if err != nil {
			return err
		}
		res.Failed++
		d.observe("vetoed")
		d.Logger.Info(d.Logger.WithField(lctx, "reason", reason), "message vetoed")
		return d.Repos.Messages.MarkFailed(ctx, msg.ID, reason)
	}

	if err := d.Limiter.Wait(ctx); err != nil {
		return err
	}
	claimedAt := clock(d.Now)
	claimed, err := d.Repos.Messages.Claim(ctx, msg.ID, claimedAt)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	// from here on the claim must be settled even if ctx is canceled
	bctx := context.WithoutCancel(lctx)
	if err := ctx.Err(); err != nil {
		if rqErr := d.Repos.Messages.Requeue(bctx, msg.ID, "dispatch canceled"); rqErr != nil {
			d.Logger.Error(bctx, "releasing claim failed", rqErr)
		}
		return err
	}

	result, sendErr := d.Sender.Send(ctx, *lead.PhoneE164, msg.Text)
	if sendErr != nil {
		return d.handleSendError(bctx, msg, sendErr, res)
	}

	sentAt := clock(d.Now)
	err = d.Repos.Transaction(bctx, func(tx *repository.Repositories) error {
		if err := tx.Messages.MarkSent(bctx, msg.ID, result.ProviderMessageID, sentAt); err != nil {
			return err
		}
		if err := tx.Counters.Increment(bctx, day, 1); err != nil {
			return err
		}
		_, err := tx.Leads.AdvanceStatus(bctx, lead.ID, model.LeadStatusContacted)
		return err
	})
	if err != nil {
		// the provider accepted it; never hand it back to the queue
		d.Logger.Error(bctx, "recording sent message failed", err)
		reason := "sent but not recorded: " + appErrors.Truncate(err.Error(), 400)
		if mfErr := d.Repos.Messages.MarkFailed(bctx, msg.ID, reason); mfErr != nil {
			d.Logger.Error(bctx, "marking unrecorded message failed", mfErr)
		}
		return err
	}
	res.Sent++
	d.observe("sent")
	return nil
}

func (d *Dispatcher) veto(ctx context.Context, lead *model.Lead) (string, error) {
	if lead == nil {
		return "lead not found", nil
	}
	switch lead.Status {
	case model.LeadStatusBlocked, model.LeadStatusConverted:
		return "lead " + string(lead.Status), nil
	}
	if lead.PhoneE164 == nil || *lead.PhoneE164 == "" {
		return "invalid phone", nil
	}
	suppressed, err := d.Repos.OptOuts.Exists(ctx, *lead.PhoneE164)
	if err != nil {
		return "", err
	}
	if suppressed {
		return "phone opted out", nil
	}
	return "", nil
}

func (d *Dispatcher) handleSendError(ctx context.Context, msg *model.Message, sendErr error, res *DispatchResult) error {
	reason := appErrors.Truncate(sendErr.Error(), 500)

	d.Logger.Error(ctx, "gateway send failed", sendErr)
	recordEvent(ctx, d.Repos, d.Logger, model.EventError, clock(d.Now), map[string]any{
		"stage":      "dispatch",
		"message_id": msg.ID,
		"error":      reason,
	})

	if appErrors.IsConfig(sendErr) {
		// nothing left the building; release the claim and fail the run
		if err := d.Repos.Messages.Requeue(ctx, msg.ID, reason); err != nil {
			return err
		}
		res.Requeued++
		return sendErr
	}

	var ce *appErrors.CollaboratorError
	attempts := msg.Attempts + 1
	if errors.As(sendErr, &ce) && ce.Definite() && attempts < d.Config.MaxAttempts {
		res.Requeued++
		d.observe("requeued")
		return d.Repos.Messages.Requeue(ctx, msg.ID, reason)
	}
	res.Failed++
	d.observe("failed")
	return d.Repos.Messages.MarkFailed(ctx, msg.ID, reason)
}

func (d *Dispatcher) observe(outcome string) {
	if d.Recorder != nil {
		d.Recorder.ObserveSend(outcome)
	}
}
