package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/axellelanca/affiliatelinks/internal/errors"
	"github.com/axellelanca/affiliatelinks/internal/models"
)

// DecideFunc receives the link with the current click already counted and
// reports whether that click is a conversion.
type DecideFunc func(link models.Link) bool

// LinkRepository est une interface qui définit les méthodes d'accès aux données
type LinkRepository interface {
	CreateLink(ctx context.Context, link *models.Link) error
	GetLinkByShortID(ctx context.Context, shortID string) (*models.Link, error)
	GetAllLinks(ctx context.Context) ([]models.Link, error)
	ListLinksByAffiliate(ctx context.Context, email string) ([]models.Link, error)
	UpdateLink(ctx context.Context, link *models.Link) (*models.Link, error)
	DeleteLink(ctx context.Context, shortID string) error
	RecordClick(ctx context.Context, shortID, day string, now time.Time, decide DecideFunc) (*models.ClickOutcome, error)
}

// editableColumns are the only columns an administrator edit may touch.
var editableColumns = []string{
	"name", "original_url", "affiliate_email",
	"mode", "ratio", "min_cr", "max_cr", "batch_conv", "batch_clicks",
	"updated_at",
}

// GormLinkRepository est l'implémentation de LinkRepository utilisant GORM.
type GormLinkRepository struct {
	db *gorm.DB
}

// NewLinkRepository crée et retourne une nouvelle instance de GormLinkRepository.
func NewLinkRepository(db *gorm.DB) *GormLinkRepository {
	return &GormLinkRepository{db: db}
}

// CreateLink insère un nouveau lien dans la base de données.
func (r *GormLinkRepository) CreateLink(ctx context.Context, link *models.Link) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.ErrAliasConflict
		}
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

// GetLinkByShortID récupère un lien par son identifiant court.
func (r *GormLinkRepository) GetLinkByShortID(ctx context.Context, shortID string) (*models.Link, error) {
	var link models.Link
	if err := r.db.WithContext(ctx).Where("short_id = ?", shortID).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to get link %s: %v", apperrors.ErrStoreUnavailable, shortID, err)
	}
	return &link, nil
}

// GetAllLinks récupère tous les liens de la base de données.
func (r *GormLinkRepository) GetAllLinks(ctx context.Context) ([]models.Link, error) {
	var links []models.Link
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve all links: %w", err)
	}
	return links, nil
}

func (r *GormLinkRepository) ListLinksByAffiliate(ctx context.Context, email string) ([]models.Link, error) {
	var links []models.Link
	err := r.db.WithContext(ctx).
		Where("affiliate_email = ?", email).
		Order("created_at DESC").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve links of %s: %w", email, err)
	}
	return links, nil
}

// UpdateLink writes the editable columns of link. Counters are left untouched.
func (r *GormLinkRepository) UpdateLink(ctx context.Context, link *models.Link) (*models.Link, error) {
	var updated models.Link
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Link{}).
			Where("short_id = ?", link.ShortID).
			Select(editableColumns).
			Updates(link)
		if res.Error != nil {
			return fmt.Errorf("failed to update link %s: %w", link.ShortID, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		return tx.Where("short_id = ?", link.ShortID).First(&updated).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteLink removes the link and its daily rows. There is no tombstone.
func (r *GormLinkRepository) DeleteLink(ctx context.Context, shortID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("short_id = ?", shortID).Delete(&models.Link{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete link %s: %w", shortID, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		if err := tx.Where("short_id = ?", shortID).Delete(&models.DailyStat{}).Error; err != nil {
			return fmt.Errorf("failed to delete daily stats of %s: %w", shortID, err)
		}
		return nil
	})
}

// RecordClick counts one click on shortID inside a single transaction:
// clicks+1, decision on the re-read row, guarded conversions+1 and the
// create-or-increment of the (shortID, day) row. Concurrent calls serialize
// on the link row, so each decision sees a distinct click count.
func (r *GormLinkRepository) RecordClick(ctx context.Context, shortID, day string, now time.Time, decide DecideFunc) (*models.ClickOutcome, error) {
	var outcome models.ClickOutcome

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Link{}).
			Where("short_id = ?", shortID).
			UpdateColumns(map[string]any{
				"clicks":     gorm.Expr("clicks + ?", 1),
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to increment clicks: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}

		var link models.Link
		if err := tx.Where("short_id = ?", shortID).First(&link).Error; err != nil {
			return fmt.Errorf("failed to reload link: %w", err)
		}

		converted := decide(link)
		if converted {
			res := tx.Model(&models.Link{}).
				Where("short_id = ? AND conversions < clicks", shortID).
				UpdateColumn("conversions", gorm.Expr("conversions + ?", 1))
			if res.Error != nil {
				return fmt.Errorf("failed to increment conversions: %w", res.Error)
			}
			if res.RowsAffected == 1 {
				link.Conversions++
			} else {
				converted = false
			}
		}

		var conv int64
		if converted {
			conv = 1
		}
		stat := models.DailyStat{ShortID: shortID, Day: day, Clicks: 1, Conversions: conv}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "short_id"}, {Name: "day"}},
			DoUpdates: clause.Assignments(map[string]any{
				"clicks":      gorm.Expr("daily_stats.clicks + ?", 1),
				"conversions": gorm.Expr("daily_stats.conversions + ?", conv),
			}),
		}).Create(&stat).Error
		if err != nil {
			return fmt.Errorf("failed to upsert daily stat: %w", err)
		}

		outcome = models.ClickOutcome{Link: link, Converted: converted, Day: day}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}
