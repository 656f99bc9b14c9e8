package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"timed-quiz-service/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	RabbitMQ struct {
		URL   string `yaml:"url"`
		Queue string `yaml:"queue"`
	} `yaml:"rabbitmq"`
	Quiz       QuizConfig       `yaml:"quiz"`
	Generation GenerationConfig `yaml:"generation"`
}

type QuizConfig struct {
	FloorSec       int    `yaml:"floor_sec"`
	PerQuestionSec int    `yaml:"per_question_sec"`
	Gating         string `yaml:"gating"`
}

// Policy returns the duration policy described by the quiz section.
func (q QuizConfig) Policy() domain.DurationPolicy {
	return domain.DurationPolicy{FloorSec: q.FloorSec, PerQuestionSec: q.PerQuestionSec}
}

type GenerationConfig struct {
	Provider       string   `yaml:"provider"`
	Model          string   `yaml:"model"`
	FallbackModels []string `yaml:"fallback_models"`
	APIKey         string   `yaml:"api_key"`
	BaseURL        string   `yaml:"base_url"`
	MaxTokens      int      `yaml:"max_tokens"`
	Temperature    float64  `yaml:"temperature"`
	Timeout        string   `yaml:"timeout"`
	CacheTTL       string   `yaml:"cache_ttl"`
}

// Load reads YAML config from path, applies environment overrides and fills defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv(os.Getenv)
	cfg.withDefaults()
	if _, err := domain.ParseGatingMode(cfg.Quiz.Gating); err != nil {
		return cfg, err
	}
	if err := cfg.Quiz.Policy().Validate(); err != nil {
		return cfg, fmt.Errorf("quiz: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("QUIZ_LLM_PROVIDER"); v != "" {
		c.Generation.Provider = strings.ToLower(v)
	}
	if c.Generation.APIKey != "" {
		return
	}
	switch c.Generation.Provider {
	case "", "gemini":
		c.Generation.APIKey = getenv("GEMINI_API_KEY")
	case "openai":
		c.Generation.APIKey = getenv("OPENAI_API_KEY")
	case "anthropic":
		c.Generation.APIKey = getenv("ANTHROPIC_API_KEY")
	}
}

func (c *Config) withDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "quiz.attempts"
	}
	if c.Quiz.FloorSec == 0 && c.Quiz.PerQuestionSec == 0 {
		c.Quiz.FloorSec = domain.DefaultDurationPolicy.FloorSec
		c.Quiz.PerQuestionSec = domain.DefaultDurationPolicy.PerQuestionSec
	}
	if c.Quiz.Gating == "" {
		c.Quiz.Gating = string(domain.GatingStrict)
	}
	if c.Generation.Provider == "" {
		c.Generation.Provider = "gemini"
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
