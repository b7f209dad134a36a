// Package workers processes click events off the redirect path.
package workers

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/axellelanca/affiliatelinks/internal/metrics"
	"github.com/axellelanca/affiliatelinks/internal/models"
)

type activityWriter interface {
	CreateActivity(ctx context.Context, activity *models.Activity) error
}

type clickRecorder interface {
	Record(ctx context.Context, shortID string) (*models.ClickOutcome, error)
}

// OutcomeFunc is called after a deferred click was finally recorded.
type OutcomeFunc func(ctx context.Context, outcome *models.ClickOutcome)

// Pool is a fixed set of goroutines reading ClickEvents from one buffered channel.
// Every event produces a click activity entry, plus a conversion entry when the
// click converted. Events not yet attributed go through the engine first.
type Pool struct {
	events    chan models.ClickEvent
	activity  activityWriter
	engine    clickRecorder
	onOutcome OutcomeFunc
	log       *zap.Logger
	metrics   *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(bufferSize int, activity activityWriter, engine clickRecorder, onOutcome OutcomeFunc, log *zap.Logger, m *metrics.Metrics) *Pool {
	return &Pool{
		events:    make(chan models.ClickEvent, bufferSize),
		activity:  activity,
		engine:    engine,
		onOutcome: onOutcome,
		log:       log,
		metrics:   m,
	}
}

// Start launches workerCount goroutines.
func (p *Pool) Start(workerCount int) {
	p.log.Info("starting click workers", zap.Int("workers", workerCount), zap.Int("buffer", cap(p.events)))
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.clickWorker()
	}
}

// Submit queues event without blocking. It returns false when the event was
// dropped because the queue is full or the pool is stopped.
func (p *Pool) Submit(event models.ClickEvent) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.events <- event:
		return true
	default:
		p.metrics.DroppedEvent()
		p.log.Warn("click event queue is full, dropping event",
			zap.String("short_id", event.ShortID),
			zap.Bool("attributed", event.Attributed))
		return false
	}
}

// Stop closes the queue and waits until every queued event was processed.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) clickWorker() {
	defer p.wg.Done()
	for event := range p.events {
		p.handle(context.Background(), event)
	}
}

func (p *Pool) handle(ctx context.Context, event models.ClickEvent) {
	if !event.Attributed {
		outcome, err := p.engine.Record(ctx, event.ShortID)
		if err != nil {
			p.log.Error("deferred click could not be recorded",
				zap.String("short_id", event.ShortID),
				zap.Time("clicked_at", event.Timestamp),
				zap.Error(err))
			return
		}
		event.Attributed = true
		event.Converted = outcome.Converted
		if p.onOutcome != nil {
			p.onOutcome(ctx, outcome)
		}
	}

	p.writeActivity(ctx, event, models.ActivityClick)
	if event.Converted {
		p.writeActivity(ctx, event, models.ActivityConversion)
	}
}

func (p *Pool) writeActivity(ctx context.Context, event models.ClickEvent, kind string) {
	err := p.activity.CreateActivity(ctx, &models.Activity{
		Type:           kind,
		ShortID:        event.ShortID,
		LinkName:       event.LinkName,
		AffiliateEmail: event.AffiliateEmail,
		Subject:        event.UserAgent,
		IP:             event.IPAddress,
		CreatedAt:      event.Timestamp,
	})
	if err != nil {
		p.log.Error("failed to save activity",
			zap.String("short_id", event.ShortID),
			zap.String("type", kind),
			zap.Error(err))
	}
}
