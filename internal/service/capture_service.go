package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/unclebandit/prospect-pipeline/internal/config"
	appErrors "github.com/unclebandit/prospect-pipeline/internal/errors"
	"github.com/unclebandit/prospect-pipeline/internal/logger"
	"github.com/unclebandit/prospect-pipeline/internal/model"
	"github.com/unclebandit/prospect-pipeline/internal/phone"
	"github.com/unclebandit/prospect-pipeline/internal/registry"
	"github.com/unclebandit/prospect-pipeline/internal/repository"
	"github.com/unclebandit/prospect-pipeline/internal/segment"
)

type CaptureResult struct {
	Total      int
	Inserted   int
	Duplicates int
	Skipped    int
	Pages      int
}

// CaptureService pulls newly founded offices from the registry into leads.
type CaptureService struct {
	Repos    *repository.Repositories
	Registry registry.Client
	Notifier LeadNotifier
	Config   config.CaptureConfig
	Location *time.Location
	Logger   *logger.Logger
	Now      func() time.Time
}

func NewCaptureService(repos *repository.Repositories, reg registry.Client, notifier LeadNotifier, cfg config.CaptureConfig, loc *time.Location, logg *logger.Logger) *CaptureService {
	if loc == nil {
		loc = time.UTC
	}
	return &CaptureService{
		Repos:    repos,
		Registry: reg,
		Notifier: notifier,
		Config:   cfg,
		Location: loc,
		Logger:   nopIfNil(logg),
		Now:      time.Now,
	}
}

// Run captures offices founded within the configured window ending today.
// Leads inserted before a registry failure are kept.
func (s *CaptureService) Run(ctx context.Context) (CaptureResult, error) {
	var res CaptureResult
	now := clock(s.Now)
	today := now.In(s.Location)
	from := today.AddDate(0, 0, -s.Config.WindowDays)

	maxPages := s.Config.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	prefixes, states := s.Config.ActivityPrefixes(), s.Config.States()

	var runErr error
	token := ""
	for res.Pages < maxPages {
		page, err := s.Registry.FetchOffices(ctx, from, today, token)
		if err != nil {
			s.recordFailure(ctx, now, err)
			runErr = err
			break
		}
		res.Pages++
		if len(page.Offices) == 0 {
			break
		}

		for _, office := range page.Offices {
			res.Total++
			if office.TaxID == "" || !matchesFilters(office, prefixes, states) {
				res.Skipped++
				continue
			}
			inserted, err := s.insert(ctx, office, now)
			if err != nil {
				runErr = err
				break
			}
			if inserted {
				res.Inserted++
			} else {
				res.Duplicates++
			}
		}
		if runErr != nil || page.Next == "" {
			break
		}
		token = page.Next
	}

	recordEvent(ctx, s.Repos, s.Logger, model.EventCapture, now, map[string]any{
		"from":       from.Format(time.DateOnly),
		"to":         today.Format(time.DateOnly),
		"total":      res.Total,
		"inserted":   res.Inserted,
		"duplicates": res.Duplicates,
		"skipped":    res.Skipped,
		"pages":      res.Pages,
	})
	return res, runErr
}

func (s *CaptureService) insert(ctx context.Context, office registry.Office, now time.Time) (bool, error) {
	lead := &model.Lead{
		TaxID:        office.TaxID,
		LegalName:    office.LegalName,
		City:         office.City,
		State:        strings.ToUpper(office.State),
		ActivityCode: office.ActivityCode,
		Phone:        office.Phone,
		Email:        office.Email,
		Address:      office.Address,
		FoundedOn:    office.FoundedOn,
		Segment:      segment.Classify(office.ActivityCode),
		Status:       model.LeadStatusNew,
		CreatedAt:    now.UTC(),
	}
	if office.Phone != "" {
		if e164, err := phone.NormalizeE164(office.Phone); err == nil {
			lead.PhoneE164 = &e164
		}
	}

	inserted, err := s.Repos.Leads.InsertIfAbsent(ctx, lead)
	if err != nil || !inserted {
		return false, err
	}

	if s.Notifier != nil {
		if err := s.Notifier.NotifyNewLead(ctx, lead); err != nil {
			s.Logger.Error(s.Logger.WithField(ctx, "tax_id", lead.TaxID), "new lead notification failed", err)
			recordEvent(ctx, s.Repos, s.Logger, model.EventError, now, map[string]any{
				"stage":  "notify",
				"tax_id": lead.TaxID,
				"error":  appErrors.Truncate(err.Error(), 500),
			})
		}
	}
	return true, nil
}

func (s *CaptureService) recordFailure(ctx context.Context, now time.Time, err error) {
	payload := map[string]any{"stage": "capture", "error": appErrors.Truncate(err.Error(), 500)}
	var ce *appErrors.CollaboratorError
	if errors.As(err, &ce) {
		payload["service"] = ce.Service
		payload["status"] = ce.Status
		payload["body"] = ce.Body
	}
	s.Logger.Error(ctx, "registry lookup failed", err)
	recordEvent(ctx, s.Repos, s.Logger, model.EventError, now, payload)
}

func matchesFilters(o registry.Office, prefixes, states []string) bool {
	if len(prefixes) > 0 {
		ok := false
		for _, p := range prefixes {
			if strings.HasPrefix(o.ActivityCode, p) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(states) > 0 {
		st := strings.ToUpper(o.State)
		for _, s := range states {
			if s == st {
				return true
			}
		}
		return false
	}
	return true
}
