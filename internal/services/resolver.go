package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/axellelanca/affiliatelinks/internal/changefeed"
	"github.com/axellelanca/affiliatelinks/internal/clock"
	apperrors "github.com/axellelanca/affiliatelinks/internal/errors"
	"github.com/axellelanca/affiliatelinks/internal/metrics"
	"github.com/axellelanca/affiliatelinks/internal/models"
)

type linkReader interface {
	GetLinkByShortID(ctx context.Context, shortID string) (*models.Link, error)
}

type clickRecorder interface {
	Record(ctx context.Context, shortID string) (*models.ClickOutcome, error)
}

type eventSubmitter interface {
	Submit(event models.ClickEvent) bool
}

// ClientInfo describes the visitor behind a redirect request.
type ClientInfo struct {
	UserAgent string
	IP        string
}

// Resolution is what the redirect handler needs to answer a visitor.
type Resolution struct {
	ShortID     string
	Destination string
	// Attributed is false when the click could not be committed on the request
	// path and was handed to the workers instead.
	Attributed bool
	Converted  bool
}

// Resolver turns a short identifier into its destination and records the click.
type Resolver struct {
	links         linkReader
	engine        clickRecorder
	events        eventSubmitter
	broker        changefeed.Broker
	clock         clock.Clock
	log           *zap.Logger
	metrics       *metrics.Metrics
	lookupTimeout time.Duration
}

func NewResolver(
	links linkReader,
	engine clickRecorder,
	events eventSubmitter,
	broker changefeed.Broker,
	clk clock.Clock,
	log *zap.Logger,
	m *metrics.Metrics,
	lookupTimeout time.Duration,
) *Resolver {
	if lookupTimeout <= 0 {
		lookupTimeout = 2 * time.Second
	}
	return &Resolver{
		links:         links,
		engine:        engine,
		events:        events,
		broker:        broker,
		clock:         clk,
		log:           log,
		metrics:       m,
		lookupTimeout: lookupTimeout,
	}
}

// Resolve looks up shortID and returns its destination. The click is counted
// and attributed before returning when the store allows it. A failed click
// transaction never blocks the redirect: the click is queued for a retry.
//
// Errors are ErrNotFound for unknown identifiers and ErrStoreUnavailable when
// the lookup itself failed.
func (r *Resolver) Resolve(ctx context.Context, shortID string, client ClientInfo) (*Resolution, error) {
	if shortID == "" {
		r.metrics.Redirect(metrics.ResultNotFound)
		return nil, apperrors.ErrNotFound
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	link, err := r.links.GetLinkByShortID(lookupCtx, shortID)
	cancel()
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			r.metrics.Redirect(metrics.ResultNotFound)
			return nil, apperrors.ErrNotFound
		}
		r.metrics.Redirect(metrics.ResultUnavailable)
		r.log.Error("link lookup failed", zap.String("short_id", shortID), zap.Error(err))
		if errors.Is(err, apperrors.ErrStoreUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}

	res := &Resolution{ShortID: link.ShortID, Destination: link.OriginalURL}
	event := models.ClickEvent{
		ShortID:        link.ShortID,
		LinkName:       link.Name,
		AffiliateEmail: link.AffiliateEmail,
		Timestamp:      r.clock.Now().UTC(),
		UserAgent:      client.UserAgent,
		IPAddress:      client.IP,
	}

	outcome, err := r.engine.Record(ctx, link.ShortID)
	switch {
	case err == nil:
		res.Attributed = true
		res.Converted = outcome.Converted
		event.Attributed = true
		event.Converted = outcome.Converted
		r.Publish(ctx, outcome)
	case errors.Is(err, apperrors.ErrNotFound):
		// Deleted between lookup and click. The visitor still gets the destination.
		r.log.Info("link deleted during redirect", zap.String("short_id", link.ShortID))
		r.metrics.Redirect(metrics.ResultRedirected)
		return res, nil
	default:
		r.log.Error("click attribution deferred",
			zap.String("short_id", link.ShortID),
			zap.Error(err))
	}

	r.events.Submit(event)
	r.metrics.Redirect(metrics.ResultRedirected)
	return res, nil
}

// Publish pushes the committed state of a link to live subscribers.
func (r *Resolver) Publish(ctx context.Context, outcome *models.ClickOutcome) {
	if r.broker == nil || outcome == nil {
		return
	}
	if err := r.broker.Publish(ctx, changefeed.SnapshotOf(outcome.Link, outcome.Converted)); err != nil {
		r.log.Warn("failed to publish click", zap.String("short_id", outcome.Link.ShortID), zap.Error(err))
	}
}
