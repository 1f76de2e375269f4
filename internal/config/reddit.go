package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/threadbot/pkg/log"
)

type RedditConfig struct {
	Username  string `env:"REDDIT_USERNAME,required,notEmpty"`
	Password  string `env:"REDDIT_PASSWORD,required,notEmpty"`
	AppID     string `env:"REDDIT_APP_ID,required,notEmpty"`
	AppSecret string `env:"REDDIT_APP_SECRET,required,notEmpty"`
	Subreddit string `env:"REDDIT_SUBREDDIT,required,notEmpty"`
}

func NewRedditConfig(ctx context.Context) *RedditConfig {
	c := &RedditConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Reddit config")
	}
	return c
}
