package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/config"
	"timed-quiz-service/internal/domain"
	"timed-quiz-service/internal/generation"
	"timed-quiz-service/internal/infra/memory"
	"timed-quiz-service/internal/infra/postgres"
	infraredis "timed-quiz-service/internal/infra/redis"
	"timed-quiz-service/internal/infra/rabbitmq"
)

func generationConfig(cfg config.Config) generation.Config {
	g := cfg.Generation
	return generation.Config{
		Provider:       g.Provider,
		Model:          g.Model,
		FallbackModels: g.FallbackModels,
		APIKey:         g.APIKey,
		BaseURL:        g.BaseURL,
		MaxTokens:      g.MaxTokens,
		Temperature:    g.Temperature,
		Timeout:        config.TTLDuration(g.Timeout, 60*time.Second),
	}
}

// buildService wires the question source, session store and attempt recorders selected by cfg.
// The returned cleanup closes every connection it opened.
func buildService(ctx context.Context, cfg config.Config) (*app.QuizService, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*app.QuizService, func(), error) {
		cleanup()
		return nil, nil, err
	}

	gating, err := domain.ParseGatingMode(cfg.Quiz.Gating)
	if err != nil {
		return fail(err)
	}

	generator, err := generation.NewGeneratorFromConfig(ctx, generationConfig(cfg))
	if err != nil {
		return fail(err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var source app.QuestionSource = generator
	if cacheTTL := config.TTLDuration(cfg.Generation.CacheTTL, 0); cacheTTL > 0 {
		if redisClient != nil {
			source = infraredis.NewQuestionCache(redisClient, generator, cacheTTL)
		} else {
			source = memory.NewQuestionCache(generator, cacheTTL)
		}
	}

	var store app.SessionRepository
	if redisClient != nil {
		store = infraredis.NewSessionStore(redisClient, redisTTL)
	} else {
		store = memory.NewSessionStore()
	}

	var recorders []app.AttemptRecorder
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fail(fmt.Errorf("connect postgres: %w", err))
		}
		closers = append(closers, pool.Close)
		recorders = append(recorders, postgres.NewAttemptStore(pool))
	}
	if cfg.RabbitMQ.URL != "" {
		publisher, err := rabbitmq.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = publisher.Close() })
		recorders = append(recorders, publisher)
	}
	if len(recorders) == 0 {
		recorders = append(recorders, memory.NewAttemptLog())
	}

	log.Printf("quiz config: provider=%s gating=%s floor=%ds per_question=%ds recorders=%d",
		cfg.Generation.Provider, gating, cfg.Quiz.FloorSec, cfg.Quiz.PerQuestionSec, len(recorders))

	service := app.NewQuizService(store, source,
		app.WithSessionOptions(
			app.WithDurationPolicy(cfg.Quiz.Policy()),
			app.WithGating(gating),
		),
		app.WithRecorders(recorders...),
	)
	return service, cleanup, nil
}
