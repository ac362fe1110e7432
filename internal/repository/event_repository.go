package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/unclebandit/prospect-pipeline/internal/model"
)

type EventRepository struct {
	DB *gorm.DB
}

func (r *EventRepository) Append(ctx context.Context, eventType, payload string, at time.Time) error {
	return r.DB.WithContext(ctx).Create(&model.Event{Type: eventType, Payload: payload, CreatedAt: at.UTC()}).Error
}

// Latest returns the most recent event, or nil on an empty log.
func (r *EventRepository) Latest(ctx context.Context) (*model.Event, error) {
	var rows []model.Event
	if err := r.DB.WithContext(ctx).Order("id DESC").Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *EventRepository) ListByType(ctx context.Context, eventType string, limit int) ([]model.Event, error) {
	var rows []model.Event
	err := r.DB.WithContext(ctx).Where("type = ?", eventType).Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
