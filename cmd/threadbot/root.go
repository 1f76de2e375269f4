package main

import (
	"context"
	"os"

	"github.com/sandevgo/threadbot/internal/config"
	"github.com/sandevgo/threadbot/pkg/log"
	"github.com/spf13/cobra"
)

var (
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "threadbot",
	Short: "threadbot is a grounded subreddit answer bot",
	Long:  `threadbot watches a subreddit and its inbox, and answers questions it can back up with the community archive.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags available to all subcommands
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", config.IsDebug(), "enable debug logging")
}

func setupLogger(ctx context.Context) (context.Context, func()) {
	isDebug := debug || config.IsDebug()
	return log.NewContextWithLogger(ctx, isDebug)
}
