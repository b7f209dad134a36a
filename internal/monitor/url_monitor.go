// Package monitor runs the periodic background jobs of the server.
package monitor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/axellelanca/affiliatelinks/internal/errors"
	"github.com/axellelanca/affiliatelinks/internal/models"
)

type linkLister interface {
	GetAllLinks(ctx context.Context) ([]models.Link, error)
}

// UrlMonitor periodically checks that every destination URL still answers and
// logs when a destination changes state.
type UrlMonitor struct {
	links       linkLister
	interval    time.Duration
	knownStates map[string]bool // short id -> accessible
	mu          sync.Mutex
	httpClient  *http.Client
	log         *zap.Logger
}

// NewUrlMonitor creates a monitor checking every interval.
func NewUrlMonitor(links linkLister, interval time.Duration, log *zap.Logger) *UrlMonitor {
	return &UrlMonitor{
		links:       links,
		interval:    interval,
		knownStates: make(map[string]bool),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		log:         log,
	}
}

// Start checks immediately and then on every tick until ctx is done.
// A non-positive interval disables the monitor.
func (m *UrlMonitor) Start(ctx context.Context) error {
	if m.interval <= 0 {
		m.log.Info("url monitor disabled")
		return nil
	}
	m.log.Info("starting url monitor", zap.Duration("interval", m.interval))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.CheckUrls(ctx)
	for {
		select {
		case <-ctx.Done():
			m.log.Info("url monitor stopped")
			return nil
		case <-ticker.C:
			m.CheckUrls(ctx)
		}
	}
}

// CheckUrls checks every destination once and returns the short ids whose
// state changed since the previous check.
func (m *UrlMonitor) CheckUrls(ctx context.Context) []string {
	links, err := m.links.GetAllLinks(ctx)
	if err != nil {
		m.log.Error("failed to retrieve links for monitoring", zap.Error(err))
		return nil
	}

	var changed []string
	current := make(map[string]struct{}, len(links))
	for _, link := range links {
		current[link.ShortID] = struct{}{}
		err := m.checkURL(ctx, link.OriginalURL)
		accessible := err == nil

		m.mu.Lock()
		previous, seen := m.knownStates[link.ShortID]
		m.knownStates[link.ShortID] = accessible
		m.mu.Unlock()

		if !seen {
			m.log.Debug("initial destination state",
				zap.String("short_id", link.ShortID),
				zap.String("url", link.OriginalURL),
				zap.String("state", formatState(accessible)))
			continue
		}
		if accessible != previous {
			changed = append(changed, link.ShortID)
			m.log.Warn("destination state changed",
				zap.String("short_id", link.ShortID),
				zap.String("url", link.OriginalURL),
				zap.String("from", formatState(previous)),
				zap.String("to", formatState(accessible)),
				zap.Error(err))
		}
	}

	// Deleted links are forgotten.
	m.mu.Lock()
	for id := range m.knownStates {
		if _, ok := current[id]; !ok {
			delete(m.knownStates, id)
		}
	}
	m.mu.Unlock()
	return changed
}

// checkURL sends a HEAD request. 2xx and 3xx answers count as accessible.
func (m *UrlMonitor) checkURL(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return apperrors.ErrURLCheckFailed{URL: url, Reason: err.Error()}
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return apperrors.ErrURLCheckFailed{URL: url, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return apperrors.ErrURLCheckFailed{URL: url, Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	return nil
}

func formatState(accessible bool) string {
	if accessible {
		return "ACCESSIBLE"
	}
	return "INACCESSIBLE"
}
