package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/axellelanca/affiliatelinks/internal/models"
)

type memoryActivity struct {
	mu      sync.Mutex
	entries []models.Activity
}

func (m *memoryActivity) CreateActivity(_ context.Context, a *models.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *a)
	return nil
}

func (m *memoryActivity) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Type)
	}
	return out
}

type stubEngine struct {
	mu        sync.Mutex
	calls     []string
	converted bool
	err       error
}

func (s *stubEngine) Record(_ context.Context, shortID string) (*models.ClickOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, shortID)
	if s.err != nil {
		return nil, s.err
	}
	return &models.ClickOutcome{Link: models.Link{ShortID: shortID, Clicks: 1}, Converted: s.converted}, nil
}

func TestPoolWritesActivity(t *testing.T) {
	activity := &memoryActivity{}
	engine := &stubEngine{}
	pool := NewPool(10, activity, engine, nil, zap.NewNop(), nil)
	pool.Start(2)

	assert.True(t, pool.Submit(models.ClickEvent{ShortID: "a", Attributed: true, Timestamp: time.Now()}))
	assert.True(t, pool.Submit(models.ClickEvent{ShortID: "b", Attributed: true, Converted: true, Timestamp: time.Now()}))
	pool.Stop()

	assert.ElementsMatch(t, []string{models.ActivityClick, models.ActivityClick, models.ActivityConversion}, activity.types())
	assert.Empty(t, engine.calls, "attributed events are not recorded again")
}

func TestPoolRetriesUnattributedClicks(t *testing.T) {
	activity := &memoryActivity{}
	engine := &stubEngine{converted: true}
	var outcomes []*models.ClickOutcome
	var mu sync.Mutex
	onOutcome := func(_ context.Context, o *models.ClickOutcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}

	pool := NewPool(10, activity, engine, onOutcome, zap.NewNop(), nil)
	pool.Start(1)
	pool.Submit(models.ClickEvent{ShortID: "late", Attributed: false})
	pool.Stop()

	assert.Equal(t, []string{"late"}, engine.calls)
	require.Len(t, outcomes, 1)
	assert.Equal(t, []string{models.ActivityClick, models.ActivityConversion}, activity.types())
}

func TestPoolDropsFailedDeferredClick(t *testing.T) {
	activity := &memoryActivity{}
	engine := &stubEngine{err: errors.New("store down")}

	pool := NewPool(10, activity, engine, nil, zap.NewNop(), nil)
	pool.Start(1)
	pool.Submit(models.ClickEvent{ShortID: "late"})
	pool.Stop()

	assert.Empty(t, activity.types())
}

func TestPoolSubmitWhenFullOrStopped(t *testing.T) {
	pool := NewPool(1, &memoryActivity{}, &stubEngine{}, nil, zap.NewNop(), nil)

	assert.True(t, pool.Submit(models.ClickEvent{ShortID: "a", Attributed: true}))
	assert.False(t, pool.Submit(models.ClickEvent{ShortID: "b", Attributed: true}), "queue of one is full")

	pool.Start(1)
	pool.Stop()
	assert.False(t, pool.Submit(models.ClickEvent{ShortID: "c", Attributed: true}))
	pool.Stop()
}
