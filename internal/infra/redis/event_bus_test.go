package redis

import (
	"context"
	"testing"
	"time"

	"quiz-engine/internal/domain"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestEventBusFansOutAcrossClients(t *testing.T) {
	mr := startRedis(t)
	publisher := NewEventBus(newClient(mr), nil)
	subscriber := NewEventBus(newClient(mr), nil)

	ch, cancel, err := subscriber.Subscribe(context.Background(), "g1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	idx := 0
	want := domain.Event{
		GameID:   "g1",
		Entity:   domain.EntityGame,
		EntityID: "g1",
		Version:  2,
		Type:     domain.EventGameStarted,
		Status:   domain.StatusInProgress,
		Index:    &idx,
	}
	if err := publisher.Publish(context.Background(), want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := receive(t, ch)
	if got.Type != want.Type || got.Version != 2 || got.Index == nil || *got.Index != 0 {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestEventBusDropsStaleVersions(t *testing.T) {
	mr := startRedis(t)
	bus := NewEventBus(newClient(mr), nil)
	ch, cancel, err := bus.Subscribe(context.Background(), "g1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	ctx := context.Background()
	for _, v := range []int64{3, 2, 3, 4} {
		_ = bus.Publish(ctx, domain.Event{GameID: "g1", Entity: domain.EntityGame, EntityID: "g1", Version: v})
	}
	if ev := receive(t, ch); ev.Version != 3 {
		t.Fatalf("expected version 3, got %d", ev.Version)
	}
	if ev := receive(t, ch); ev.Version != 4 {
		t.Fatalf("expected version 4, got %d", ev.Version)
	}
}

func TestEventBusIsolatesGames(t *testing.T) {
	mr := startRedis(t)
	bus := NewEventBus(newClient(mr), nil)
	ch, cancel, _ := bus.Subscribe(context.Background(), "g1")
	defer cancel()

	_ = bus.Publish(context.Background(), domain.Event{GameID: "g2", Entity: domain.EntityGame, EntityID: "g2", Version: 1})
	_ = bus.Publish(context.Background(), domain.Event{GameID: "g1", Entity: domain.EntityGame, EntityID: "g1", Version: 1})

	if ev := receive(t, ch); ev.GameID != "g1" {
		t.Fatalf("expected only g1 events, got %+v", ev)
	}
}

func TestEventBusCancelClosesChannel(t *testing.T) {
	mr := startRedis(t)
	bus := NewEventBus(newClient(mr), nil)
	ctx, stop := context.WithCancel(context.Background())
	ch, cancel, err := bus.Subscribe(ctx, "g1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	stop()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected channel to be closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed after context cancel")
	}
}

func TestEventBusClosesChannelOnReconnect(t *testing.T) {
	mr := startRedis(t)
	bus := NewEventBus(newClient(mr), nil)
	ch, cancel, err := bus.Subscribe(context.Background(), "g1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := mr.Restart(); err != nil {
		t.Fatalf("restart redis: %v", err)
	}
	deadline := time.After(10 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("channel not closed after the subscription reconnected")
		}
	}
}

func startRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}

func receive(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return domain.Event{}
}
