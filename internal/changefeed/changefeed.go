// Package changefeed lets read-only consumers such as dashboards follow link
// counter changes without recomputing them.
package changefeed

import (
	"context"
	"sync"
	"time"

	"github.com/axellelanca/affiliatelinks/internal/models"
)

// LinkSnapshot is what subscribers receive after a link changed.
type LinkSnapshot struct {
	ShortID        string    `json:"short_id"`
	Clicks         int64     `json:"clicks"`
	Conversions    int64     `json:"conversions"`
	ConversionRate string    `json:"conversion_rate"`
	Converted      bool      `json:"converted"`
	Deleted        bool      `json:"deleted,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SnapshotOf builds the snapshot of link.
func SnapshotOf(link models.Link, converted bool) LinkSnapshot {
	return LinkSnapshot{
		ShortID:        link.ShortID,
		Clicks:         link.Clicks,
		Conversions:    link.Conversions,
		ConversionRate: link.ConversionRate().StringFixed(2),
		Converted:      converted,
		UpdatedAt:      link.UpdatedAt,
	}
}

// Broker fans link snapshots out to subscribers.
// Subscribe with an empty shortID receives every link. The returned channel
// is closed once ctx is done.
type Broker interface {
	Publish(ctx context.Context, snap LinkSnapshot) error
	Subscribe(ctx context.Context, shortID string) (<-chan LinkSnapshot, error)
	Close() error
}

const subscriberBuffer = 16

type subscriber struct {
	shortID string
	ch      chan LinkSnapshot
}

func (s *subscriber) wants(snap LinkSnapshot) bool {
	return s.shortID == "" || s.shortID == snap.ShortID
}

// MemoryBroker delivers within the process. A subscriber that does not keep
// up loses snapshots instead of blocking publishers.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[*subscriber]struct{})}
}

func (b *MemoryBroker) Publish(_ context.Context, snap LinkSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if !s.wants(snap) {
			continue
		}
		select {
		case s.ch <- snap:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, shortID string) (<-chan LinkSnapshot, error) {
	s := &subscriber{shortID: shortID, ch: make(chan LinkSnapshot, subscriberBuffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.ch)
		return s.ch, nil
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(s)
	}()
	return s.ch, nil
}

func (b *MemoryBroker) remove(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

// Close ends every subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for s := range b.subs {
		delete(b.subs, s)
		close(s.ch)
	}
	return nil
}
