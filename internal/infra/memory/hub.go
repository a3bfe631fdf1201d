package memory

import (
	"context"
	"sync"

	"quiz-engine/internal/app"
	"quiz-engine/internal/domain"
)

const defaultQueueLimit = 256

// Hub is an in-process implementation of app.EventBus.
// Each subscriber owns an ordered queue drained by its own goroutine, so a slow
// client never blocks publishers or other subscribers. A subscriber whose queue
// overflows is closed rather than skipped: it must re-subscribe and re-fetch.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
	queueLimit  int
}

type subscriber struct {
	out    chan domain.Event
	notify chan struct{}
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	queue []domain.Event
}

func NewHub(queueLimit int) *Hub {
	if queueLimit <= 0 {
		queueLimit = defaultQueueLimit
	}
	return &Hub{
		subscribers: make(map[string]map[*subscriber]struct{}),
		queueLimit:  queueLimit,
	}
}

func (h *Hub) Publish(_ context.Context, event domain.Event) error {
	var overflowed []*subscriber
	h.mu.RLock()
	for sub := range h.subscribers[event.GameID] {
		if !sub.enqueue(event, h.queueLimit) {
			overflowed = append(overflowed, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range overflowed {
		h.remove(event.GameID, sub)
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, gameID string) (<-chan domain.Event, func(), error) {
	sub := &subscriber{
		out:    make(chan domain.Event, 16),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.subscribers[gameID] == nil {
		h.subscribers[gameID] = make(map[*subscriber]struct{})
	}
	h.subscribers[gameID][sub] = struct{}{}
	h.mu.Unlock()

	go sub.pump()

	cancel := func() { h.remove(gameID, sub) }
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()
	return sub.out, cancel, nil
}

// subscriberCount reports how many subscriptions are open for gameID.
func (h *Hub) subscriberCount(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[gameID])
}

func (h *Hub) remove(gameID string, sub *subscriber) {
	h.mu.Lock()
	if subs, ok := h.subscribers[gameID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subscribers, gameID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// enqueue appends ev, or reports false when the queue is full.
func (s *subscriber) enqueue(ev domain.Event, limit int) bool {
	s.mu.Lock()
	if len(s.queue) >= limit {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

func (s *subscriber) pump() {
	defer close(s.out)
	filter := app.NewVersionFilter()
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, ev := range batch {
			if !filter.Accept(ev) {
				continue
			}
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
	}
}
