package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/threadbot/pkg/log"
)

type GeminiConfig struct {
	// Comma-separated pool of interchangeable API keys. Each key carries
	// its own per-minute and per-day quota.
	APIKeys []string `env:"GEMINI_API_KEYS,required,notEmpty" envSeparator:","`

	RequestsPerMinute int           `env:"GEMINI_REQUESTS_PER_MINUTE" envDefault:"5"`
	DailyRequestLimit int           `env:"GEMINI_DAILY_REQUEST_LIMIT" envDefault:"100"`
	WindowLength      time.Duration `env:"GEMINI_WINDOW_LENGTH" envDefault:"1m"`
	DailyWindow       time.Duration `env:"GEMINI_DAILY_WINDOW" envDefault:"24h"`

	PrimaryModel  string `env:"GEMINI_PRIMARY_MODEL" envDefault:"gemini-2.5-pro"`
	FallbackModel string `env:"GEMINI_FALLBACK_MODEL" envDefault:"gemini-2.5-flash"`

	MaxAttempts  int           `env:"GEMINI_MAX_ATTEMPTS" envDefault:"4"`
	AttemptDelay time.Duration `env:"GEMINI_ATTEMPT_DELAY" envDefault:"1s"`
}

func NewGeminiConfig(ctx context.Context) *GeminiConfig {
	c := &GeminiConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Gemini config")
	}
	return c
}
