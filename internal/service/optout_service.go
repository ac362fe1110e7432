package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	appErrors "github.com/unclebandit/prospect-pipeline/internal/errors"
	"github.com/unclebandit/prospect-pipeline/internal/logger"
	"github.com/unclebandit/prospect-pipeline/internal/model"
	"github.com/unclebandit/prospect-pipeline/internal/phone"
	"github.com/unclebandit/prospect-pipeline/internal/repository"
)

// OptOutKeyword in an inbound message suppresses the sender.
const OptOutKeyword = "SAIR"

// OptOutService owns the suppression list.
type OptOutService struct {
	Repos  *repository.Repositories
	Logger *logger.Logger
	Now    func() time.Time
}

func NewOptOutService(repos *repository.Repositories, logg *logger.Logger) *OptOutService {
	return &OptOutService{Repos: repos, Logger: nopIfNil(logg), Now: time.Now}
}

func (s *OptOutService) IsSuppressed(ctx context.Context, raw string) (bool, error) {
	e164, err := phone.NormalizeE164(raw)
	if err != nil {
		return false, err
	}
	return s.Repos.OptOuts.Exists(ctx, e164)
}

// Suppress adds the phone to the list. The first suppression of a phone
// blocks its leads and is audited; repeats are no-ops.
func (s *OptOutService) Suppress(ctx context.Context, raw string, source model.OptOutSource) (bool, error) {
	e164, err := phone.NormalizeE164(raw)
	if err != nil {
		return false, err
	}
	now := clock(s.Now)

	var inserted bool
	var blocked int64
	err = s.Repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var txErr error
		inserted, txErr = tx.OptOuts.Insert(ctx, e164, source, now)
		if txErr != nil || !inserted {
			return txErr
		}
		blocked, txErr = tx.Leads.BlockByPhone(ctx, e164)
		return txErr
	})
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	recordEvent(ctx, s.Repos, s.Logger, model.EventOptOut, now, map[string]any{
		"phone":         e164,
		"source":        source,
		"leads_blocked": blocked,
	})
	s.Logger.Info(s.Logger.WithFields(ctx, map[string]any{"phone": e164, "source": source}), "phone opted out")
	return true, nil
}

// InboundMessage is a reply delivered by the messaging provider. Both the
// Z-API field names and the older aliases are accepted.
type InboundMessage struct {
	Phone   string      `json:"phone" validate:"omitempty,max=64"`
	From    string      `json:"from" validate:"omitempty,max=64"`
	Text    InboundText `json:"text" validate:"max=4096"`
	Message string      `json:"message" validate:"max=4096"`
}

func (m InboundMessage) Sender() string {
	if m.Phone != "" {
		return m.Phone
	}
	return m.From
}

func (m InboundMessage) Body() string {
	if m.Text != "" {
		return string(m.Text)
	}
	return m.Message
}

// InboundText decodes either a plain string or Z-API's {"message": "..."} object.
type InboundText string

func (t *InboundText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = InboundText(s)
		return nil
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*t = InboundText(obj.Message)
	return nil
}

// HandleInbound suppresses the sender when the text carries the opt-out keyword.
func (s *OptOutService) HandleInbound(ctx context.Context, msg InboundMessage) (bool, error) {
	if !strings.Contains(strings.ToUpper(msg.Body()), OptOutKeyword) {
		return false, nil
	}
	sender := msg.Sender()
	if sender == "" {
		return false, appErrors.NewValidationError("phone", "", "missing sender")
	}
	if _, err := s.Suppress(ctx, sender, model.OptOutWebhook); err != nil {
		return false, err
	}
	return true, nil
}
