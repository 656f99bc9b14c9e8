package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/domain"
)

// QuestionCache caches generated question sets per topic list with TTL to avoid repeated model calls.
type QuestionCache struct {
	source app.QuestionSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	// fillTimeout bounds a shared generation that outlives its callers.
	fillTimeout time.Duration

	mu    sync.RWMutex
	cache map[string]cachedSet
}

type cachedSet struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(source app.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSet),

		fillTimeout: 2 * time.Minute,
	}
}

// GenerateQuestions implements app.QuestionSource. Every caller gets its own copy of the set.
// Concurrent callers for the same topics share one generation; a caller that gives up
// does not cancel it for the others.
func (c *QuestionCache) GenerateQuestions(ctx context.Context, topics []string) ([]domain.Question, error) {
	key := app.TopicsKey(topics)
	if questions, ok := c.lookup(key); ok {
		return domain.CloneQuestions(questions), nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(key, func() (interface{}, error) {
		if questions, ok := c.lookup(key); ok {
			return questions, nil
		}

		fillCtx, cancel := context.WithTimeout(shared, c.fillTimeout)
		defer cancel()
		questions, err := c.source.GenerateQuestions(fillCtx, topics)
		if err != nil {
			return nil, err
		}
		c.store(key, questions)
		return questions, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return domain.CloneQuestions(res.Val.([]domain.Question)), nil
	}
}

// Len returns the number of entries held, expired or not.
func (c *QuestionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *QuestionCache) lookup(key string) ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return entry.questions, true
}

// store adds a set and evicts expired entries.
func (c *QuestionCache) store(key string, questions []domain.Question) {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, entry := range c.cache {
		if !entry.expiresAt.After(now) {
			delete(c.cache, k)
		}
	}
	c.cache[key] = cachedSet{
		questions: domain.CloneQuestions(questions),
		expiresAt: now.Add(c.ttlWithJitter()),
	}
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
