package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/unclebandit/prospect-pipeline/internal/model"
)

type OptOutRepository struct {
	DB *gorm.DB
}

// Insert adds phone to the opt-out set; a phone already present is left alone.
func (r *OptOutRepository) Insert(ctx context.Context, phone string, source model.OptOutSource, at time.Time) (bool, error) {
	row := model.OptOut{Phone: phone, Source: source, CreatedAt: at.UTC()}
	res := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "phone"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *OptOutRepository) Exists(ctx context.Context, phone string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.OptOut{}).Where("phone = ?", phone).Count(&count).Error
	return count > 0, err
}

func (r *OptOutRepository) Get(ctx context.Context, phone string) (*model.OptOut, error) {
	var rows []model.OptOut
	if err := r.DB.WithContext(ctx).Where("phone = ?", phone).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
