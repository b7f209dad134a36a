package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/axellelanca/affiliatelinks/internal/models"
)

type ActivityRepository interface {
	CreateActivity(ctx context.Context, activity *models.Activity) error
	ListRecentActivity(ctx context.Context, limit int) ([]models.Activity, error)
	PruneActivity(ctx context.Context, keep int) (int64, error)
}

type GormActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *GormActivityRepository {
	return &GormActivityRepository{db: db}
}

func (r *GormActivityRepository) CreateActivity(ctx context.Context, activity *models.Activity) error {
	if err := r.db.WithContext(ctx).Create(activity).Error; err != nil {
		return fmt.Errorf("failed to create activity: %w", err)
	}
	return nil
}

// ListRecentActivity returns the newest entries first.
func (r *GormActivityRepository) ListRecentActivity(ctx context.Context, limit int) ([]models.Activity, error) {
	var activities []models.Activity
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&activities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	return activities, nil
}

// PruneActivity deletes everything but the keep most recent entries and
// returns how many rows were removed.
func (r *GormActivityRepository) PruneActivity(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative, got %d", keep)
	}

	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var keepIDs []uuid.UUID
		if keep > 0 {
			err := tx.Model(&models.Activity{}).
				Order("created_at DESC").
				Limit(keep).
				Pluck("id", &keepIDs).Error
			if err != nil {
				return err
			}
		}

		q := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if len(keepIDs) > 0 {
			q = q.Where("id NOT IN ?", keepIDs)
		}
		res := q.Delete(&models.Activity{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune activity: %w", err)
	}
	return deleted, nil
}
