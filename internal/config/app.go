package config

import (
	"context"
	"path/filepath"

	"github.com/caarlos0/env/v9"
	"github.com/sandevgo/threadbot/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"THREADBOT_RUNTIME_PATH" envDefault:".threadbot"`

	// Poll cadence and fetch limits for the platform pollers
	PollInterval     int `env:"POLL_INTERVAL_SECONDS" envDefault:"60"`
	InitialPostLimit int `env:"INITIAL_POST_LIMIT" envDefault:"100"`
	PostLimit        int `env:"POST_LIMIT" envDefault:"5"`
	CommentLimit     int `env:"COMMENT_LIMIT" envDefault:"20"`
	MessageLimit     int `env:"MESSAGE_LIMIT" envDefault:"5"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "threadbot.db")
}

func (c AppConfig) GetInstructionPath() string {
	return filepath.Join(c.RuntimePath, "SYSTEM.md")
}

func (c AppConfig) GetReferenceDocsPath() string {
	return filepath.Join(c.RuntimePath, "wiki")
}
