package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"quiz-engine/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a game's question set from the game store.
type QuestionLoader interface {
	ListQuestions(ctx context.Context, gameID string) ([]domain.Question, error)
}

// QuestionCache keeps question sets in Redis so every engine instance shares one
// copy and falls back to the loader on a miss.
// Questions are stored as: HSET quiz:game:{gameID}:questions {questionID} {json}
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, gameID string) ([]domain.Question, error) {
	key := questionsKey(gameID)
	if qs, ok := c.cached(ctx, key); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(gameID, func() (interface{}, error) {
		// Re-check in case another instance filled it.
		if qs, ok := c.cached(ctx, key); ok {
			return qs, nil
		}
		qs, err := c.loader.ListQuestions(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if len(qs) == 0 {
			return nil, domain.ErrGameNotFound
		}

		fields := make(map[string]interface{}, len(qs))
		for _, q := range qs {
			raw, err := json.Marshal(q)
			if err != nil {
				return nil, fmt.Errorf("marshal question: %w", err)
			}
			fields[q.ID] = raw
		}
		pipe := c.client.TxPipeline()
		pipe.HSet(ctx, key, fields)
		if ttl := c.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		// a failed fill only costs the next caller a reload
		_, _ = pipe.Exec(ctx)
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the cached question set of a game.
func (c *QuestionCache) Invalidate(ctx context.Context, gameID string) error {
	return c.client.Del(ctx, questionsKey(gameID)).Err()
}

func (c *QuestionCache) cached(ctx context.Context, key string) ([]domain.Question, bool) {
	fields, err := c.client.HGetAll(ctx, key).Result()
	if err != nil || len(fields) == 0 {
		return nil, false
	}
	qs := make([]domain.Question, 0, len(fields))
	for _, raw := range fields {
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, false
		}
		qs = append(qs, q)
	}
	sort.Slice(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
	return qs, true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func questionsKey(gameID string) string {
	return "quiz:game:" + gameID + ":questions"
}
