package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/unclebandit/prospect-pipeline/internal/model"
)

type LeadRepositoryInterface interface {
	InsertIfAbsent(ctx context.Context, lead *model.Lead) (bool, error)
	GetByID(ctx context.Context, id int) (*model.Lead, error)
	GetByTaxID(ctx context.Context, taxID string) (*model.Lead, error)
	ListUnqueued(ctx context.Context, since time.Time) ([]model.Lead, error)
	ListFollowupCandidates(ctx context.Context, kind, previous model.MessageKind, firstSentBefore time.Time) ([]model.Lead, error)
	AdvanceStatus(ctx context.Context, id int, next model.LeadStatus) (bool, error)
	BlockByPhone(ctx context.Context, phoneE164 string) (int64, error)
}

type LeadRepository struct {
	DB *gorm.DB
}

// InsertIfAbsent inserts the lead unless its tax id is already stored.
// It reports whether a row was written.
func (r *LeadRepository) InsertIfAbsent(ctx context.Context, lead *model.Lead) (bool, error) {
	res := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "tax_id"}}, DoNothing: true}).
		Create(lead)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *LeadRepository) GetByID(ctx context.Context, id int) (*model.Lead, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *LeadRepository) GetByTaxID(ctx context.Context, taxID string) (*model.Lead, error) {
	return r.first(ctx, "tax_id = ?", taxID)
}

func (r *LeadRepository) first(ctx context.Context, query string, args ...any) (*model.Lead, error) {
	var lead model.Lead
	err := r.DB.WithContext(ctx).Where(query, args...).First(&lead).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lead, nil
}

// ListUnqueued returns leads created at or after since that have no message of any kind.
func (r *LeadRepository) ListUnqueued(ctx context.Context, since time.Time) ([]model.Lead, error) {
	var leads []model.Lead
	err := r.DB.WithContext(ctx).
		Where("created_at >= ?", since.UTC()).
		Where("NOT EXISTS (SELECT 1 FROM messages m WHERE m.lead_id = leads.id)").
		Order("id ASC").
		Find(&leads).Error
	return leads, err
}

// ListFollowupCandidates returns leads whose first message was sent at or before
// firstSentBefore and whose previous step was sent, that have no message of kind
// yet, are still in play and whose phone is not opted out.
func (r *LeadRepository) ListFollowupCandidates(ctx context.Context, kind, previous model.MessageKind, firstSentBefore time.Time) ([]model.Lead, error) {
	var leads []model.Lead
	q := r.DB.WithContext(ctx).
		Where(`EXISTS (SELECT 1 FROM messages f WHERE f.lead_id = leads.id AND f.kind = ? AND f.status = ? AND f.sent_at IS NOT NULL AND f.sent_at <= ?)`,
			model.KindFirst, model.MessageSent, firstSentBefore.UTC()).
		Where("NOT EXISTS (SELECT 1 FROM messages m WHERE m.lead_id = leads.id AND m.kind = ?)", kind).
		Where("leads.status NOT IN ?", []model.LeadStatus{model.LeadStatusConverted, model.LeadStatusBlocked}).
		Where("NOT EXISTS (SELECT 1 FROM opt_outs o WHERE o.phone = leads.phone_e164)")
	if previous != "" && previous != model.KindFirst {
		q = q.Where("EXISTS (SELECT 1 FROM messages p WHERE p.lead_id = leads.id AND p.kind = ? AND p.status = ?)",
			previous, model.MessageSent)
	}
	err := q.Order("id ASC").Find(&leads).Error
	return leads, err
}

// AdvanceStatus moves the lead forward in its lifecycle. Backwards or
// sideways moves are ignored and reported as false.
func (r *LeadRepository) AdvanceStatus(ctx context.Context, id int, next model.LeadStatus) (bool, error) {
	var from []model.LeadStatus
	for _, s := range []model.LeadStatus{
		model.LeadStatusNew, model.LeadStatusContacted, model.LeadStatusReplied,
		model.LeadStatusConverted, model.LeadStatusBlocked,
	} {
		if s.CanAdvanceTo(next) {
			from = append(from, s)
		}
	}
	if len(from) == 0 {
		return false, nil
	}
	res := r.DB.WithContext(ctx).Model(&model.Lead{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", next)
	return res.RowsAffected == 1, res.Error
}

// BlockByPhone moves every lead reachable at phoneE164 to blocked.
func (r *LeadRepository) BlockByPhone(ctx context.Context, phoneE164 string) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&model.Lead{}).
		Where("phone_e164 = ? AND status <> ?", phoneE164, model.LeadStatusBlocked).
		Update("status", model.LeadStatusBlocked)
	return res.RowsAffected, res.Error
}

var _ LeadRepositoryInterface = (*LeadRepository)(nil)
