// Package services contains the business logic layer of the affiliate redirector.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/axellelanca/affiliatelinks/internal/changefeed"
	"github.com/axellelanca/affiliatelinks/internal/clock"
	apperrors "github.com/axellelanca/affiliatelinks/internal/errors"
	"github.com/axellelanca/affiliatelinks/internal/models"
	"github.com/axellelanca/affiliatelinks/internal/policy"
	"github.com/axellelanca/affiliatelinks/internal/repository"
)

// shortIDAlphabet matches the lowercase base36 tokens of existing links.
const shortIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

const maxShortIDRetries = 5

// defaultStatsWindow is the range used when no dates are given.
const defaultStatsWindow = 30 * 24 * time.Hour

var aliasPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// reservedAliases are the first path segments of the other routes.
var reservedAliases = map[string]struct{}{
	"health":  {},
	"metrics": {},
	"r":       {},
	"api":     {},
}

func validAlias(alias string) bool {
	if _, reserved := reservedAliases[strings.ToLower(alias)]; reserved {
		return false
	}
	return aliasPattern.MatchString(alias)
}

// LinkInput carries the administrator-editable fields of a link.
type LinkInput struct {
	Name           string           `json:"name" validate:"max=255"`
	OriginalURL    string           `json:"original_url" validate:"required,url"`
	AffiliateEmail string           `json:"affiliate_email" validate:"omitempty,email"`
	Alias          string           `json:"alias" validate:"omitempty,max=64,alias"`
	Mode           string           `json:"mode" validate:"omitempty,oneof=ratio smart"`
	Ratio          int64            `json:"ratio" validate:"gte=0"`
	MinCR          *decimal.Decimal `json:"min_cr"`
	MaxCR          *decimal.Decimal `json:"max_cr"`
	BatchConv      int64            `json:"batch_conv" validate:"gte=0"`
	BatchClicks    int64            `json:"batch_clicks" validate:"gte=0"`
}

// LinkPatch changes only the non-nil fields. Counters are not editable.
type LinkPatch struct {
	Name           *string          `json:"name" validate:"omitempty,max=255"`
	OriginalURL    *string          `json:"original_url" validate:"omitempty,url"`
	AffiliateEmail *string          `json:"affiliate_email" validate:"omitempty,email"`
	Mode           *string          `json:"mode" validate:"omitempty,oneof=ratio smart"`
	Ratio          *int64           `json:"ratio" validate:"omitempty,gte=0"`
	MinCR          *decimal.Decimal `json:"min_cr"`
	MaxCR          *decimal.Decimal `json:"max_cr"`
	BatchConv      *int64           `json:"batch_conv" validate:"omitempty,gte=0"`
	BatchClicks    *int64           `json:"batch_clicks" validate:"omitempty,gte=0"`
}

// LinkService provides the administrator operations on links.
type LinkService struct {
	linkRepo      repository.LinkRepository
	statsRepo     repository.DailyStatRepository
	broker        changefeed.Broker
	clock         clock.Clock
	log           *zap.Logger
	validate      *validator.Validate
	shortIDLength int
}

func NewLinkService(
	linkRepo repository.LinkRepository,
	statsRepo repository.DailyStatRepository,
	broker changefeed.Broker,
	clk clock.Clock,
	log *zap.Logger,
	shortIDLength int,
) *LinkService {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("alias", func(fl validator.FieldLevel) bool {
		return validAlias(fl.Field().String())
	})

	return &LinkService{
		linkRepo:      linkRepo,
		statsRepo:     statsRepo,
		broker:        broker,
		clock:         clk,
		log:           log,
		validate:      v,
		shortIDLength: shortIDLength,
	}
}

func (s *LinkService) validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "alias" {
				return apperrors.ErrInvalidAlias
			}
			if fe.Tag() == "url" || (fe.Field() == "OriginalURL" && fe.Tag() == "required") {
				return apperrors.ErrInvalidURL
			}
		}
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, verrs.Error())
	}
	return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
}

// GenerateShortID returns a random lowercase alphanumeric identifier.
func (s *LinkService) GenerateShortID() (string, error) {
	return gonanoid.Generate(shortIDAlphabet, s.shortIDLength)
}

// CreateLink validates in, reserves the alias (or a generated identifier) and
// stores the link with zeroed counters.
func (s *LinkService) CreateLink(ctx context.Context, in LinkInput) (*models.Link, error) {
	in.Alias = strings.TrimSpace(in.Alias)
	if err := s.validate.Struct(in); err != nil {
		return nil, s.validationError(err)
	}

	now := s.clock.Now()
	link := &models.Link{
		Name:           in.Name,
		OriginalURL:    in.OriginalURL,
		AffiliateEmail: in.AffiliateEmail,
		Mode:           in.Mode,
		Ratio:          in.Ratio,
		MinCR:          nullDecimal(in.MinCR),
		MaxCR:          nullDecimal(in.MaxCR),
		BatchConv:      in.BatchConv,
		BatchClicks:    in.BatchClicks,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if link.Mode == "" {
		link.Mode = models.ModeRatio
	}
	if _, err := policy.FromLink(*link); err != nil {
		return nil, err
	}

	if in.Alias != "" {
		return s.createWithAlias(ctx, link, in.Alias)
	}
	return s.createWithGeneratedID(ctx, link)
}

func (s *LinkService) createWithAlias(ctx context.Context, link *models.Link, alias string) (*models.Link, error) {
	_, err := s.linkRepo.GetLinkByShortID(ctx, alias)
	switch {
	case err == nil:
		return nil, apperrors.ErrAliasConflict
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, fmt.Errorf("database error checking alias: %w", err)
	}

	link.ShortID = alias
	link.Alias = &alias
	if err := s.linkRepo.CreateLink(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

func (s *LinkService) createWithGeneratedID(ctx context.Context, link *models.Link) (*models.Link, error) {
	for i := 0; i < maxShortIDRetries; i++ {
		id, err := s.GenerateShortID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate short id: %w", err)
		}

		link.ShortID = id
		err = s.linkRepo.CreateLink(ctx, link)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, apperrors.ErrAliasConflict) {
			return nil, err
		}
		s.log.Info("short id already exists, retrying", zap.String("short_id", id), zap.Int("attempt", i+1))
	}
	return nil, apperrors.ErrShortIDGenerationFailed
}

func (s *LinkService) GetLink(ctx context.Context, shortID string) (*models.Link, error) {
	return s.linkRepo.GetLinkByShortID(ctx, shortID)
}

// ListLinks returns every link, or only the affiliate's when email is set.
func (s *LinkService) ListLinks(ctx context.Context, email string) ([]models.Link, error) {
	if email != "" {
		return s.linkRepo.ListLinksByAffiliate(ctx, email)
	}
	return s.linkRepo.GetAllLinks(ctx)
}

// UpdateLink applies patch to the editable fields of shortID.
func (s *LinkService) UpdateLink(ctx context.Context, shortID string, patch LinkPatch) (*models.Link, error) {
	if err := s.validate.Struct(patch); err != nil {
		return nil, s.validationError(err)
	}

	link, err := s.linkRepo.GetLinkByShortID(ctx, shortID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		link.Name = *patch.Name
	}
	if patch.OriginalURL != nil {
		link.OriginalURL = *patch.OriginalURL
	}
	if patch.AffiliateEmail != nil {
		link.AffiliateEmail = *patch.AffiliateEmail
	}
	if patch.Mode != nil {
		link.Mode = *patch.Mode
	}
	if patch.Ratio != nil {
		link.Ratio = *patch.Ratio
	}
	if patch.MinCR != nil {
		link.MinCR = nullDecimal(patch.MinCR)
	}
	if patch.MaxCR != nil {
		link.MaxCR = nullDecimal(patch.MaxCR)
	}
	if patch.BatchConv != nil {
		link.BatchConv = *patch.BatchConv
	}
	if patch.BatchClicks != nil {
		link.BatchClicks = *patch.BatchClicks
	}
	if _, err := policy.FromLink(*link); err != nil {
		return nil, err
	}
	link.UpdatedAt = s.clock.Now()

	updated, err := s.linkRepo.UpdateLink(ctx, link)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, changefeed.SnapshotOf(*updated, false))
	return updated, nil
}

// DeleteLink hard deletes shortID and its daily rows.
func (s *LinkService) DeleteLink(ctx context.Context, shortID string) error {
	if err := s.linkRepo.DeleteLink(ctx, shortID); err != nil {
		return err
	}
	s.publish(ctx, changefeed.LinkSnapshot{ShortID: shortID, Deleted: true, UpdatedAt: s.clock.Now()})
	return nil
}

// GetLinkStats returns the link with its lifetime counters.
func (s *LinkService) GetLinkStats(ctx context.Context, shortID string) (*models.Link, error) {
	return s.linkRepo.GetLinkByShortID(ctx, shortID)
}

// DailyStats returns the per-day rows of shortID. Empty bounds default to the last 30 days.
func (s *LinkService) DailyStats(ctx context.Context, shortID, from, to string) ([]models.DailyStat, error) {
	if _, err := s.linkRepo.GetLinkByShortID(ctx, shortID); err != nil {
		return nil, err
	}
	from, to, err := s.dayRange(from, to)
	if err != nil {
		return nil, err
	}
	return s.statsRepo.ListDailyStats(ctx, shortID, from, to)
}

// SiteDailyStats sums every link per day.
func (s *LinkService) SiteDailyStats(ctx context.Context, from, to string) ([]models.DayTotal, error) {
	from, to, err := s.dayRange(from, to)
	if err != nil {
		return nil, err
	}
	return s.statsRepo.SiteTotals(ctx, from, to)
}

func (s *LinkService) dayRange(from, to string) (string, string, error) {
	now := s.clock.Now().UTC()
	if to == "" {
		to = clock.Today(s.clock)
	}
	if from == "" {
		from = now.Add(-defaultStatsWindow).Format(clock.DayLayout)
	}
	fromDay, err := time.Parse(clock.DayLayout, from)
	if err != nil {
		return "", "", fmt.Errorf("%w: from must be YYYY-MM-DD", apperrors.ErrInvalidInput)
	}
	toDay, err := time.Parse(clock.DayLayout, to)
	if err != nil {
		return "", "", fmt.Errorf("%w: to must be YYYY-MM-DD", apperrors.ErrInvalidInput)
	}
	if toDay.Before(fromDay) {
		return "", "", fmt.Errorf("%w: from is after to", apperrors.ErrInvalidInput)
	}
	return from, to, nil
}

func (s *LinkService) publish(ctx context.Context, snap changefeed.LinkSnapshot) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Publish(ctx, snap); err != nil {
		s.log.Warn("failed to publish link change", zap.String("short_id", snap.ShortID), zap.Error(err))
	}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}
