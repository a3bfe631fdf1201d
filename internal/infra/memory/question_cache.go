package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quiz-engine/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a game's question set from the backing store.
type QuestionLoader interface {
	ListQuestions(ctx context.Context, gameID string) ([]domain.Question, error)
}

// QuestionCache caches question sets with TTL to avoid a store hit per answer.
// Question sets are immutable once a game is created.
type QuestionCache struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestions),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, gameID string) ([]domain.Question, error) {
	if qs, ok := c.lookup(gameID); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(gameID, func() (interface{}, error) {
		if qs, ok := c.lookup(gameID); ok {
			return qs, nil
		}
		qs, err := c.loader.ListQuestions(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if len(qs) == 0 {
			return nil, domain.ErrGameNotFound
		}

		c.mu.Lock()
		c.sweepLocked()
		c.cache[gameID] = cachedQuestions{
			questions: qs,
			expiresAt: c.clock().Add(c.ttlWithJitterLocked()),
		}
		c.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) lookup(gameID string) ([]domain.Question, bool) {
	c.mu.RLock()
	entry, ok := c.cache[gameID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if entry.expiresAt.After(c.clock()) {
		return entry.questions, true
	}

	c.mu.Lock()
	if current, ok := c.cache[gameID]; ok && !current.expiresAt.After(c.clock()) {
		delete(c.cache, gameID)
	}
	c.mu.Unlock()
	return nil, false
}

// sweepLocked drops every expired entry. Callers hold c.mu.
func (c *QuestionCache) sweepLocked() {
	now := c.clock()
	for id, entry := range c.cache {
		if !entry.expiresAt.After(now) {
			delete(c.cache, id)
		}
	}
}

func (c *QuestionCache) ttlWithJitterLocked() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
