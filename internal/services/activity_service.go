package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/axellelanca/affiliatelinks/internal/clock"
	apperrors "github.com/axellelanca/affiliatelinks/internal/errors"
	"github.com/axellelanca/affiliatelinks/internal/models"
	"github.com/axellelanca/affiliatelinks/internal/repository"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

// ActivityInput is an entry reported by another component (logins, broadcasts).
// Clicks and conversions are written by the click workers only.
type ActivityInput struct {
	Type           string `json:"type" binding:"required"`
	ShortID        string `json:"short_id"`
	LinkName       string `json:"link_name"`
	AffiliateEmail string `json:"affiliate_email"`
	Subject        string `json:"subject"`
	IP             string `json:"ip"`
}

type ActivityService struct {
	repo  repository.ActivityRepository
	clock clock.Clock
	log   *zap.Logger
}

func NewActivityService(repo repository.ActivityRepository, clk clock.Clock, log *zap.Logger) *ActivityService {
	return &ActivityService{repo: repo, clock: clk, log: log}
}

// Log appends an externally reported entry.
func (s *ActivityService) Log(ctx context.Context, in ActivityInput) (*models.Activity, error) {
	if !models.ValidActivityType(in.Type) {
		return nil, fmt.Errorf("%w: unknown activity type %q", apperrors.ErrInvalidInput, in.Type)
	}
	if in.Type == models.ActivityClick || in.Type == models.ActivityConversion {
		return nil, fmt.Errorf("%w: %s entries are written by the click workers", apperrors.ErrInvalidInput, in.Type)
	}
	a := &models.Activity{
		Type:           in.Type,
		ShortID:        in.ShortID,
		LinkName:       in.LinkName,
		AffiliateEmail: in.AffiliateEmail,
		Subject:        in.Subject,
		IP:             in.IP,
		CreatedAt:      s.clock.Now().UTC(),
	}
	if err := s.repo.CreateActivity(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Recent returns the newest entries first. limit is clamped to [1, 200]
// and defaults to 50.
func (s *ActivityService) Recent(ctx context.Context, limit int) ([]models.Activity, error) {
	switch {
	case limit <= 0:
		limit = defaultActivityLimit
	case limit > maxActivityLimit:
		limit = maxActivityLimit
	}
	return s.repo.ListRecentActivity(ctx, limit)
}

// Prune keeps the retention newest entries.
func (s *ActivityService) Prune(ctx context.Context, retention int) (int64, error) {
	deleted, err := s.repo.PruneActivity(ctx, retention)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info("activity pruned", zap.Int64("deleted", deleted), zap.Int("retention", retention))
	}
	return deleted, nil
}
