// Package redis shares engine state between instances: change events over
// Pub/Sub and question sets in hashes.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"quiz-engine/internal/app"
	"quiz-engine/internal/domain"

	"github.com/redis/go-redis/v9"
)

// EventBus publishes change events on a Pub/Sub channel per game, so every
// instance's WebSocket clients see writes made on any instance.
// Channels are named: quiz:game:{gameID}:events
//
// Pub/Sub drops messages sent while a subscriber is reconnecting. When the
// client resubscribes after a reconnect the subscription channel is closed, so
// the consumer drops its client and the client re-fetches the snapshot.
type EventBus struct {
	client *redis.Client
	log    *slog.Logger
}

func NewEventBus(client *redis.Client, log *slog.Logger) *EventBus {
	if log == nil {
		log = slog.Default()
	}
	return &EventBus{client: client, log: log}
}

func (b *EventBus) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.client.Publish(ctx, eventsChannel(event.GameID), payload).Err()
}

func (b *EventBus) Subscribe(ctx context.Context, gameID string) (<-chan domain.Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, eventsChannel(gameID))
	// Wait for the confirmation so no event published after Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", gameID, err)
	}

	out := make(chan domain.Event, 16)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		filter := app.NewVersionFilter()
		messages := pubsub.ChannelWithSubscriptions()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case raw, ok := <-messages:
				if !ok {
					return
				}
				var msg *redis.Message
				switch m := raw.(type) {
				case *redis.Subscription:
					if m.Kind == "subscribe" {
						b.log.Warn("event subscription reconnected, closing", "game_id", gameID)
						cancel()
						return
					}
					continue
				case *redis.Message:
					msg = m
				default:
					continue
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.Warn("drop malformed event", "game_id", gameID, "err", err)
					continue
				}
				if !filter.Accept(ev) {
					continue
				}
				select {
				case out <- ev:
				case <-done:
					return
				case <-ctx.Done():
					cancel()
					return
				}
			}
		}
	}()
	return out, cancel, nil
}

func eventsChannel(gameID string) string {
	return "quiz:game:" + gameID + ":events"
}
