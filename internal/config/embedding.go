package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/threadbot/pkg/log"
)

type EmbeddingConfig struct {
	BaseURL string `env:"EMBEDDING_BASE_URL,required,notEmpty"`
	APIKey  string `env:"EMBEDDING_API_KEY"`
	Model   string `env:"EMBEDDING_MODEL" envDefault:"bge-m3"`
	Dims    int    `env:"EMBEDDING_DIMS" envDefault:"1024"`
}

func NewEmbeddingConfig(ctx context.Context) *EmbeddingConfig {
	c := &EmbeddingConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Embedding config")
	}
	return c
}
