package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/threadbot/pkg/log"
)

type ServerConfig struct {
	Port int `env:"PORT" envDefault:"8080"`
}

func NewServerConfig(ctx context.Context) *ServerConfig {
	c := &ServerConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Server config")
	}
	return c
}
