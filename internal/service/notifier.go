package service

import (
	"context"
	"fmt"

	"github.com/unclebandit/prospect-pipeline/internal/gateway"
	"github.com/unclebandit/prospect-pipeline/internal/logger"
	"github.com/unclebandit/prospect-pipeline/internal/model"
	"github.com/unclebandit/prospect-pipeline/internal/phone"
)

// LeadNotifier is told about every newly captured lead.
type LeadNotifier interface {
	NotifyNewLead(ctx context.Context, lead *model.Lead) error
}

// AdminNotifier messages the operator about new leads through the gateway.
type AdminNotifier struct {
	Sender     gateway.Sender
	AdminPhone string
	Logger     *logger.Logger
}

func NewAdminNotifier(sender gateway.Sender, adminPhone string, logg *logger.Logger) *AdminNotifier {
	return &AdminNotifier{Sender: sender, AdminPhone: adminPhone, Logger: nopIfNil(logg)}
}

func (n *AdminNotifier) NotifyNewLead(ctx context.Context, lead *model.Lead) error {
	if n.AdminPhone == "" {
		n.Logger.Warn(n.Logger.WithField(ctx, "tax_id", lead.TaxID), "ADMIN_PHONE not set, skipping new lead notification")
		return nil
	}
	to, err := phone.NormalizeE164(n.AdminPhone)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Novo lead: %s\nCNPJ: %s\nLocal: %s-%s\nSegmento: %s",
		lead.LegalName, lead.TaxID, lead.City, lead.State, lead.Segment)
	_, err = n.Sender.Send(ctx, to, text)
	return err
}
