package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/threadbot/pkg/log"
)

type RetrievalConfig struct {
	// Cosine-similarity cutoffs
	ReferenceCutoff float32 `env:"RETRIEVAL_REFERENCE_CUTOFF" envDefault:"0.5"`
	ValidatorCutoff float32 `env:"RETRIEVAL_VALIDATOR_CUTOFF" envDefault:"0.6"`

	// MinSupport is the minimum number of independently corroborating
	// comments a drafted reply needs to be considered reliable.
	MinSupport int `env:"RETRIEVAL_MIN_SUPPORT" envDefault:"2"`

	// Top-K sizes per retrieval stage
	RawTopK       int `env:"RETRIEVAL_RAW_TOP_K" envDefault:"10"`
	MergedTopK    int `env:"RETRIEVAL_MERGED_TOP_K" envDefault:"5"`
	ReferenceTopK int `env:"RETRIEVAL_REFERENCE_TOP_K" envDefault:"3"`
	ValidatorTopK int `env:"RETRIEVAL_VALIDATOR_TOP_K" envDefault:"10"`
}

func NewRetrievalConfig(ctx context.Context) *RetrievalConfig {
	c := &RetrievalConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Retrieval config")
	}
	return c
}
