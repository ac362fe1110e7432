// Package gateway delivers outbound text messages through a WhatsApp/SMS provider.
package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/unclebandit/prospect-pipeline/internal/config"
)

// Sender delivers one text to one E.164 phone. A non-nil error is a failed
// send: *appErrors.CollaboratorError for provider answers and transport
// failures, *appErrors.ConfigError for missing credentials.
type Sender interface {
	Send(ctx context.Context, phoneE164, text string) (SendResult, error)
}

type SendResult struct {
	ProviderMessageID string
}

// New builds the sender selected by GATEWAY_PROVIDER.
func New(cfg *config.Config) Sender {
	timeout := cfg.App.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if strings.EqualFold(cfg.Gateway.Provider, config.GatewayTwilio) {
		return NewTwilio(cfg.Twilio, timeout)
	}
	return NewZAPI(cfg.ZAPI, timeout)
}
