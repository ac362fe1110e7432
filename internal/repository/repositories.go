package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories bundles every table accessor over one connection or transaction.
// Timestamps are written and compared in UTC.
type Repositories struct {
	db       *gorm.DB
	Leads    *LeadRepository
	Messages *MessageRepository
	OptOuts  *OptOutRepository
	Counters *DailyCounterRepository
	Events   *EventRepository
}

func New(db *gorm.DB) *Repositories {
	return &Repositories{
		db:       db,
		Leads:    &LeadRepository{DB: db},
		Messages: &MessageRepository{DB: db},
		OptOuts:  &OptOutRepository{DB: db},
		Counters: &DailyCounterRepository{DB: db},
		Events:   &EventRepository{DB: db},
	}
}

// Transaction runs fn with repositories bound to a single transaction.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}
