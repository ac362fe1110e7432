package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/unclebandit/prospect-pipeline/internal/config"
	appErrors "github.com/unclebandit/prospect-pipeline/internal/errors"
)

const twilioService = "twilio"

// messageCreator is the slice of the Twilio REST API the sender uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type Twilio struct {
	cfg config.TwilioConfig
	api messageCreator
}

func NewTwilio(cfg config.TwilioConfig, timeout time.Duration) *Twilio {
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	rc.SetTimeout(timeout)
	return &Twilio{cfg: cfg, api: rc.Api}
}

func (t *Twilio) Send(ctx context.Context, phoneE164, text string) (SendResult, error) {
	if t.cfg.AccountSID == "" || t.cfg.AuthToken == "" {
		return SendResult{}, appErrors.NewConfigError("TWILIO_ACCOUNT_SID")
	}
	if t.cfg.From == "" {
		return SendResult{}, appErrors.NewConfigError("TWILIO_FROM")
	}
	if err := ctx.Err(); err != nil {
		return SendResult{}, appErrors.NewUnreachable(twilioService, err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(t.address(phoneE164))
	params.SetFrom(t.address(t.cfg.From))
	params.SetBody(text)

	msg, err := t.api.CreateMessage(params)
	if err != nil {
		var restErr *twclient.TwilioRestError
		if errors.As(err, &restErr) && restErr.Status != 0 {
			return SendResult{}, appErrors.NewCollaboratorError(twilioService, restErr.Status, restErr.Message)
		}
		return SendResult{}, appErrors.NewUnreachable(twilioService, err)
	}

	var res SendResult
	if msg != nil && msg.Sid != nil {
		res.ProviderMessageID = *msg.Sid
	}
	return res, nil
}

func (t *Twilio) address(phone string) string {
	if t.cfg.WhatsApp && !strings.HasPrefix(phone, "whatsapp:") {
		return "whatsapp:" + phone
	}
	return phone
}
