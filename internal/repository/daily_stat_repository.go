package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/axellelanca/affiliatelinks/internal/models"
)

// DailyStatRepository reads the per-day rollups written by RecordClick.
type DailyStatRepository interface {
	ListDailyStats(ctx context.Context, shortID, from, to string) ([]models.DailyStat, error)
	SiteTotals(ctx context.Context, from, to string) ([]models.DayTotal, error)
}

type GormDailyStatRepository struct {
	db *gorm.DB
}

func NewDailyStatRepository(db *gorm.DB) *GormDailyStatRepository {
	return &GormDailyStatRepository{db: db}
}

// ListDailyStats returns the rows of shortID between from and to (inclusive, YYYY-MM-DD).
func (r *GormDailyStatRepository) ListDailyStats(ctx context.Context, shortID, from, to string) ([]models.DailyStat, error) {
	var stats []models.DailyStat
	err := r.db.WithContext(ctx).
		Where("short_id = ? AND day BETWEEN ? AND ?", shortID, from, to).
		Order("day").
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list daily stats of %s: %w", shortID, err)
	}
	return stats, nil
}

// SiteTotals sums every link's rows per day.
func (r *GormDailyStatRepository) SiteTotals(ctx context.Context, from, to string) ([]models.DayTotal, error) {
	var totals []models.DayTotal
	err := r.db.WithContext(ctx).
		Model(&models.DailyStat{}).
		Select("day, SUM(clicks) AS clicks, SUM(conversions) AS conversions").
		Where("day BETWEEN ? AND ?", from, to).
		Group("day").
		Order("day").
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum daily stats: %w", err)
	}
	return totals, nil
}
