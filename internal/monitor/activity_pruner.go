package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type activityPruner interface {
	Prune(ctx context.Context, retention int) (int64, error)
}

// ActivityPruner trims the activity feed to its retention on every tick.
type ActivityPruner struct {
	activity  activityPruner
	retention int
	interval  time.Duration
	log       *zap.Logger
}

func NewActivityPruner(activity activityPruner, retention int, interval time.Duration, log *zap.Logger) *ActivityPruner {
	return &ActivityPruner{activity: activity, retention: retention, interval: interval, log: log}
}

// Start blocks until ctx is done. A non-positive interval disables pruning.
func (p *ActivityPruner) Start(ctx context.Context) error {
	if p.interval <= 0 {
		p.log.Info("activity pruner disabled")
		return nil
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.activity.Prune(ctx, p.retention); err != nil {
				p.log.Error("activity pruning failed", zap.Error(err))
			}
		}
	}
}
