package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"quiz-engine/internal/domain"
)

func TestQuestionCacheCachesInRedis(t *testing.T) {
	mr := startRedis(t)
	loader := &countingLoader{questions: sampleQuestions()}
	cache := NewQuestionCache(newClient(mr), loader, time.Minute)

	qs, err := cache.Questions(context.Background(), "g1")
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(qs) != 3 || loader.calls.Load() != 1 {
		t.Fatalf("expected 3 questions from one load, got %d questions and %d loads", len(qs), loader.calls.Load())
	}
	if !mr.Exists("quiz:game:g1:questions") {
		t.Fatalf("expected redis hash to be set")
	}
	if ttl := mr.TTL("quiz:game:g1:questions"); ttl < time.Minute || ttl > 66*time.Second {
		t.Fatalf("expected ttl with up to 10%% jitter, got %v", ttl)
	}

	// A second instance sharing Redis must not hit the loader.
	other := NewQuestionCache(newClient(mr), loader, time.Minute)
	cached, err := other.Questions(context.Background(), "g1")
	if err != nil {
		t.Fatalf("cached questions: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls.Load())
	}
	for i, q := range cached {
		if q.Order != i || q.ID != qs[i].ID || q.CorrectIndex != qs[i].CorrectIndex {
			t.Fatalf("cached question %d out of order or incomplete: %+v", i, q)
		}
	}
}

func TestQuestionCacheInvalidate(t *testing.T) {
	mr := startRedis(t)
	loader := &countingLoader{questions: sampleQuestions()}
	cache := NewQuestionCache(newClient(mr), loader, time.Minute)

	_, _ = cache.Questions(context.Background(), "g1")
	if err := cache.Invalidate(context.Background(), "g1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = cache.Questions(context.Background(), "g1")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after invalidate, calls=%d", loader.calls.Load())
	}
}

func TestQuestionCacheUnknownGame(t *testing.T) {
	mr := startRedis(t)
	cache := NewQuestionCache(newClient(mr), &countingLoader{}, time.Minute)

	_, err := cache.Questions(context.Background(), "missing")
	if !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
	if mr.Exists("quiz:game:missing:questions") {
		t.Fatalf("empty result must not be cached")
	}
}

type countingLoader struct {
	questions []domain.Question
	calls     atomic.Int32
}

func (l *countingLoader) ListQuestions(_ context.Context, gameID string) ([]domain.Question, error) {
	l.calls.Add(1)
	out := make([]domain.Question, 0, len(l.questions))
	for _, q := range l.questions {
		q.GameID = gameID
		out = append(out, q)
	}
	return out, nil
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q-b", Order: 0, Text: "2 + 2?", Options: []domain.Option{{Text: "3"}, {Text: "4"}}, CorrectIndex: 1, Points: 1000, TimeLimitMs: 20000},
		{ID: "q-a", Order: 1, Text: "Capital of France?", Options: []domain.Option{{Text: "Paris"}, {Text: "Rome"}}, CorrectIndex: 0, Points: 800, TimeLimitMs: 15000},
		{ID: "q-c", Order: 2, Text: "Largest planet?", Options: []domain.Option{{Text: "Mars"}, {Text: "Jupiter", MediaURL: "https://example.com/j.png"}}, CorrectIndex: 1, Points: 500, TimeLimitMs: 10000},
	}
}
