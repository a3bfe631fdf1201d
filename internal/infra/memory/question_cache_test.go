package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quiz-engine/internal/domain"
)

func TestQuestionCacheCaches(t *testing.T) {
	loader := &countingLoader{questions: sampleQuestions()}
	cache := NewQuestionCache(loader, time.Minute)

	if _, err := cache.Questions(context.Background(), "game-1"); err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	qs, err := cache.Questions(context.Background(), "game-1")
	if err != nil {
		t.Fatalf("get questions 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
	if len(qs) != 2 || qs[1].Order != 1 {
		t.Fatalf("unexpected questions %+v", qs)
	}
}

func TestQuestionCacheExpires(t *testing.T) {
	loader := &countingLoader{questions: sampleQuestions()}
	cache := NewQuestionCache(loader, time.Minute)
	now := time.Now()
	cache.clock = func() time.Time { return now }

	_, _ = cache.Questions(context.Background(), "game-1")
	now = now.Add(2 * time.Minute)
	_, _ = cache.Questions(context.Background(), "game-1")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls.Load())
	}
}

func TestQuestionCacheEvictsExpiredEntries(t *testing.T) {
	loader := &countingLoader{questions: sampleQuestions()}
	cache := NewQuestionCache(loader, time.Minute)
	now := time.Now()
	cache.clock = func() time.Time { return now }

	_, _ = cache.Questions(context.Background(), "game-1")
	_, _ = cache.Questions(context.Background(), "game-2")
	if cache.size() != 2 {
		t.Fatalf("expected 2 cached sets, got %d", cache.size())
	}

	now = now.Add(2 * time.Minute)
	_, _ = cache.Questions(context.Background(), "game-3")
	if cache.size() != 1 {
		t.Fatalf("expected expired sets swept on fill, got %d", cache.size())
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.lookup("game-3"); ok {
		t.Fatalf("expected expired entry to miss")
	}
	if cache.size() != 0 {
		t.Fatalf("expected expired entry evicted on lookup, got %d", cache.size())
	}
}

func TestQuestionCacheCollapsesConcurrentMisses(t *testing.T) {
	release := make(chan struct{})
	loader := &countingLoader{questions: sampleQuestions(), gate: release}
	cache := NewQuestionCache(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cache.Questions(context.Background(), "game-1")
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if loader.calls.Load() != 1 {
		t.Fatalf("expected a single load for concurrent misses, got %d", loader.calls.Load())
	}
}

func TestQuestionCacheUnknownGame(t *testing.T) {
	cache := NewQuestionCache(&countingLoader{}, time.Minute)
	if _, err := cache.Questions(context.Background(), "nope"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func (c *QuestionCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

type countingLoader struct {
	questions []domain.Question
	gate      chan struct{}
	calls     atomic.Int32
}

func (l *countingLoader) ListQuestions(_ context.Context, gameID string) ([]domain.Question, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	return l.questions, nil
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:           "q1",
			GameID:       "game-1",
			Order:        0,
			Text:         "What is 2 + 2?",
			Options:      []domain.Option{{Text: "3"}, {Text: "4"}},
			CorrectIndex: 1,
			Points:       1000,
			TimeLimitMs:  20000,
		},
		{
			ID:           "q2",
			GameID:       "game-1",
			Order:        1,
			Text:         "What is 3 + 3?",
			Options:      []domain.Option{{Text: "6"}, {Text: "7"}},
			CorrectIndex: 0,
			Points:       800,
			TimeLimitMs:  15000,
		},
	}
}
