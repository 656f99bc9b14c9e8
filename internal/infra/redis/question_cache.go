package redis

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/domain"
)

// QuestionCache stores generated question sets in Redis and falls back to the source on a miss.
// Sets are stored as JSON: SET quiz:questions:{topicsKey} [...] EX ttl
type QuestionCache struct {
	client *redis.Client
	source app.QuestionSource
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	// fillTimeout bounds a shared generation that outlives its callers.
	fillTimeout time.Duration
}

func NewQuestionCache(client *redis.Client, source app.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),

		fillTimeout: 2 * time.Minute,
	}
}

// GenerateQuestions implements app.QuestionSource.
// Concurrent callers for the same topics share one generation; a caller that gives up
// does not cancel it for the others.
func (c *QuestionCache) GenerateQuestions(ctx context.Context, topics []string) ([]domain.Question, error) {
	key := c.key(app.TopicsKey(topics))
	if questions, ok := c.lookup(ctx, key); ok {
		return questions, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(key, func() (interface{}, error) {
		fillCtx, cancel := context.WithTimeout(shared, c.fillTimeout)
		defer cancel()

		// Re-check cache in case another goroutine filled it.
		if questions, ok := c.lookup(fillCtx, key); ok {
			return questions, nil
		}

		questions, err := c.source.GenerateQuestions(fillCtx, topics)
		if err != nil {
			return nil, err
		}

		payload, err := json.Marshal(questions)
		if err == nil {
			err = c.client.Set(fillCtx, key, payload, c.ttlWithJitter()).Err()
		}
		if err != nil {
			log.Printf("question cache: store %s: %v", key, err)
		}
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

func (c *QuestionCache) lookup(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("question cache: read %s: %v", key, err)
		}
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil || domain.ValidateQuestionSet(questions) != nil {
		// Corrupt entries are treated as a miss and overwritten.
		return nil, false
	}
	return questions, true
}

func (c *QuestionCache) key(topicsKey string) string {
	return "quiz:questions:" + topicsKey
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
