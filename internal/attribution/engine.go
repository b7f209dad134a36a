// Package attribution decides which clicks count as conversions and commits
// the click, the decision and the daily rollup in one store transaction.
package attribution

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/axellelanca/affiliatelinks/internal/clock"
	apperrors "github.com/axellelanca/affiliatelinks/internal/errors"
	"github.com/axellelanca/affiliatelinks/internal/metrics"
	"github.com/axellelanca/affiliatelinks/internal/models"
	"github.com/axellelanca/affiliatelinks/internal/policy"
	"github.com/axellelanca/affiliatelinks/internal/repository"
)

type clickRecorder interface {
	RecordClick(ctx context.Context, shortID, day string, now time.Time, decide repository.DecideFunc) (*models.ClickOutcome, error)
}

// Options bound the click transaction.
type Options struct {
	// Timeout covers every attempt.
	Timeout        time.Duration
	MaxRetries     uint64
	InitialBackoff time.Duration
}

// Decision is the result of evaluating a link's policy for one click.
type Decision struct {
	Convert bool
	Mode    string
}

type Engine struct {
	links   clickRecorder
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics
	opts    Options
}

func NewEngine(links clickRecorder, clk clock.Clock, log *zap.Logger, m *metrics.Metrics, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 50 * time.Millisecond
	}
	return &Engine{
		links:   links,
		clock:   clk,
		log:     log,
		metrics: m,
		opts:    opts,
	}
}

// Decide evaluates link, whose Clicks already include the click being decided.
// A link whose policy cannot be decoded never converts.
func (e *Engine) Decide(link models.Link) Decision {
	p, err := policy.FromLink(link)
	if err != nil {
		e.log.Warn("attribution disabled for malformed link",
			zap.String("short_id", link.ShortID),
			zap.String("mode", link.Mode),
			zap.Error(err))
		e.metrics.PolicyAnomaly()
		return Decision{Mode: link.Mode}
	}
	return Decision{
		Convert: p.ShouldConvert(link.Clicks, link.Conversions),
		Mode:    p.Mode(),
	}
}

// Record counts one click on shortID and applies the decision, retrying
// transient store failures with exponential backoff. ErrNotFound is not retried.
func (e *Engine) Record(ctx context.Context, shortID string) (*models.ClickOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	start := time.Now()
	defer e.metrics.ObserveAttribution(start)

	var outcome *models.ClickOutcome
	op := func() error {
		now := e.clock.Now().UTC()
		out, err := e.links.RecordClick(ctx, shortID, now.Format(clock.DayLayout), now, func(link models.Link) bool {
			return e.Decide(link).Convert
		})
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		outcome = out
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.InitialBackoff
	retry := backoff.WithContext(backoff.WithMaxRetries(b, e.opts.MaxRetries), ctx)

	err := backoff.RetryNotify(op, retry, func(err error, wait time.Duration) {
		e.log.Warn("click transaction failed, retrying",
			zap.String("short_id", shortID),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		e.metrics.AttributionFailure()
		return nil, apperrors.ErrClickRecordingFailed{
			ShortID: shortID,
			Err:     errors.Join(apperrors.ErrStoreUnavailable, err),
		}
	}

	e.metrics.Click(outcome.Converted)
	return outcome, nil
}
