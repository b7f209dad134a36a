package changefeed

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker shares snapshots between server instances over one pub/sub channel.
type RedisBroker struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisBroker(client *redis.Client, channel string, log *zap.Logger) *RedisBroker {
	return &RedisBroker{client: client, channel: channel, log: log}
}

func (b *RedisBroker) Publish(ctx context.Context, snap LinkSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot of %s: %w", snap.ShortID, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, shortID string) (<-chan LinkSnapshot, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	// Wait for the subscription confirmation so early publishes are not missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	sub := &subscriber{shortID: shortID, ch: make(chan LinkSnapshot, subscriberBuffer)}
	go func() {
		defer close(sub.ch)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var snap LinkSnapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					b.log.Warn("dropping malformed snapshot", zap.String("channel", b.channel), zap.Error(err))
					continue
				}
				if !sub.wants(snap) {
					continue
				}
				select {
				case sub.ch <- snap:
				default:
				}
			}
		}
	}()
	return sub.ch, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
