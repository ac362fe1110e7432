package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/unclebandit/prospect-pipeline/internal/model"
)

type MessageRepositoryInterface interface {
	CreateIfAbsent(ctx context.Context, msg *model.Message) (bool, error)
	Exists(ctx context.Context, leadID int, kind model.MessageKind) (bool, error)
	GetByID(ctx context.Context, id int) (*model.Message, error)
	ListQueued(ctx context.Context, limit int) ([]model.Message, error)
	Claim(ctx context.Context, id int, at time.Time) (bool, error)
	MarkSent(ctx context.Context, id int, providerID string, at time.Time) error
	MarkFailed(ctx context.Context, id int, reason string) error
	Requeue(ctx context.Context, id int, reason string) error
	FailStale(ctx context.Context, claimedBefore time.Time, reason string) (int64, error)
	CountSentBetween(ctx context.Context, from, to time.Time) (int64, error)
}

type MessageRepository struct {
	DB *gorm.DB
}

// CreateIfAbsent inserts msg unless the lead already has a message of that kind.
// The existence check is the primary guard, the (lead_id, kind) unique index the backstop.
func (r *MessageRepository) CreateIfAbsent(ctx context.Context, msg *model.Message) (bool, error) {
	exists, err := r.Exists(ctx, msg.LeadID, msg.Kind)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	res := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lead_id"}, {Name: "kind"}},
			DoNothing: true,
		}).
		Create(msg)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *MessageRepository) Exists(ctx context.Context, leadID int, kind model.MessageKind) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Message{}).
		Where("lead_id = ? AND kind = ?", leadID, kind).
		Count(&count).Error
	return count > 0, err
}

func (r *MessageRepository) GetByID(ctx context.Context, id int) (*model.Message, error) {
	var msg model.Message
	if err := r.DB.WithContext(ctx).First(&msg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// ListQueued returns up to limit queued messages, oldest id first.
func (r *MessageRepository) ListQueued(ctx context.Context, limit int) ([]model.Message, error) {
	var msgs []model.Message
	err := r.DB.WithContext(ctx).
		Where("status = ?", model.MessageQueued).
		Order("id ASC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// Claim moves a queued message to sending. Only the caller that wins the
// update may call the gateway for it.
func (r *MessageRepository) Claim(ctx context.Context, id int, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND status = ?", id, model.MessageQueued).
		Updates(map[string]any{
			"status":     model.MessageSending,
			"claimed_at": at.UTC(),
			"attempts":   gorm.Expr("attempts + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *MessageRepository) MarkSent(ctx context.Context, id int, providerID string, at time.Time) error {
	res := r.DB.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND status = ?", id, model.MessageSending).
		Updates(map[string]any{
			"status":              model.MessageSent,
			"sent_at":             at.UTC(),
			"provider_message_id": providerID,
			"error":               "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errors.New("message not in sending state")
	}
	return nil
}

// MarkFailed is terminal. It applies to queued messages vetoed before a send
// and to claimed messages whose send failed.
func (r *MessageRepository) MarkFailed(ctx context.Context, id int, reason string) error {
	return r.DB.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND status IN ?", id, []model.MessageStatus{model.MessageQueued, model.MessageSending}).
		Updates(map[string]any{
			"status": model.MessageFailed,
			"error":  reason,
		}).Error
}

// Requeue hands a claimed message back to the queue after a rejected send.
func (r *MessageRepository) Requeue(ctx context.Context, id int, reason string) error {
	return r.DB.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND status = ?", id, model.MessageSending).
		Updates(map[string]any{
			"status":     model.MessageQueued,
			"claimed_at": nil,
			"error":      reason,
		}).Error
}

// FailStale fails messages left in sending by an interrupted run. The gateway
// outcome is unknown for them, so they are never retried.
func (r *MessageRepository) FailStale(ctx context.Context, claimedBefore time.Time, reason string) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&model.Message{}).
		Where("status = ? AND claimed_at < ?", model.MessageSending, claimedBefore.UTC()).
		Updates(map[string]any{
			"status": model.MessageFailed,
			"error":  reason,
		})
	return res.RowsAffected, res.Error
}

// CountSentBetween counts sent messages with sent_at in [from, to). Diagnostic
// only: the daily counter is what enforces the quota.
func (r *MessageRepository) CountSentBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Message{}).
		Where("status = ? AND sent_at >= ? AND sent_at < ?", model.MessageSent, from.UTC(), to.UTC()).
		Count(&count).Error
	return count, err
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
