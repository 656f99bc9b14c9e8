package generation

import (
	"context"
	"fmt"
	"log"
	"time"

	"timed-quiz-service/internal/domain"
)

// Generator turns topics into a validated question set. It implements app.QuestionSource.
type Generator struct {
	provider    Provider
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

// GeneratorOption customises a Generator.
type GeneratorOption func(*Generator)

func WithMaxTokens(n int) GeneratorOption {
	return func(g *Generator) { g.maxTokens = n }
}

func WithTemperature(t float64) GeneratorOption {
	return func(g *Generator) { g.temperature = t }
}

// WithTimeout bounds a single generation call, fallbacks included.
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.timeout = d }
}

func NewGenerator(provider Provider, opts ...GeneratorOption) *Generator {
	g := &Generator{
		provider:    provider,
		maxTokens:   4096,
		temperature: 0.4,
		timeout:     60 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) GenerateQuestions(ctx context.Context, topics []string) ([]domain.Question, error) {
	cleaned := domain.CleanTopics(topics)
	if len(cleaned) == 0 {
		return nil, domain.ErrNoTopics
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.provider.Generate(ctx, Request{
		Prompt:      BuildPrompt(cleaned),
		Schema:      QuestionSetSchema,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		log.Printf("generation: model %s failed after %s: %v", g.provider.ModelID(), time.Since(start).Round(time.Millisecond), err)
		return nil, fmt.Errorf("generate questions: %w", err)
	}

	questions, err := ParseQuestions(resp.Text, cleaned)
	if err != nil {
		log.Printf("generation: model %s returned no usable questions: %v", resp.Model, err)
		return nil, err
	}
	log.Printf("generation: model=%s topics=%d questions=%d latency=%s tokens_in=%d tokens_out=%d",
		resp.Model, len(cleaned), len(questions), time.Since(start).Round(time.Millisecond),
		resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return questions, nil
}
