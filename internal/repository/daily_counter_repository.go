package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/unclebandit/prospect-pipeline/internal/model"
)

type DailyCounterRepository struct {
	DB *gorm.DB
}

func (r *DailyCounterRepository) Get(ctx context.Context, day string) (int, error) {
	var rows []model.DailyCounter
	if err := r.DB.WithContext(ctx).Where("day = ?", day).Limit(1).Find(&rows).Error; err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].SentCount, nil
}

// Increment adds delta to the day's counter in one upsert statement.
func (r *DailyCounterRepository) Increment(ctx context.Context, day string, delta int) error {
	if delta <= 0 {
		return fmt.Errorf("counter delta must be positive, got %d", delta)
	}
	row := model.DailyCounter{Day: day, SentCount: delta}
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "day"}},
			DoUpdates: clause.Assignments(map[string]any{
				"sent_count": gorm.Expr("daily_counters.sent_count + excluded.sent_count"),
			}),
		}).
		Create(&row).Error
}
