package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sandevgo/threadbot/internal/config"
	"github.com/sandevgo/threadbot/pkg/log"
	"github.com/spf13/cobra"
)

const envTemplate = `# threadbot configuration
REDDIT_USERNAME=
REDDIT_PASSWORD=
REDDIT_APP_ID=
REDDIT_APP_SECRET=
REDDIT_SUBREDDIT=

# Comma-separated Gemini API keys
GEMINI_API_KEYS=

# OpenAI-compatible embedding endpoint
EMBEDDING_BASE_URL=http://localhost:8081
`

var initCmd = &cobra.Command{
	Use:           "init",
	Short:         "Create the runtime directory and config templates",
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		runtimePath := config.GetRuntimePath()

		if err := os.MkdirAll(filepath.Join(runtimePath, "wiki"), 0o755); err != nil {
			return fmt.Errorf("failed to create runtime directory: %w", err)
		}

		envPath := filepath.Join(runtimePath, ".env")
		if _, err := os.Stat(envPath); os.IsNotExist(err) {
			if err := os.WriteFile(envPath, []byte(envTemplate), 0o600); err != nil {
				return fmt.Errorf("failed to write .env template: %w", err)
			}
			logger.Info().Str("path", envPath).Msg("wrote .env template, fill in your credentials")
		} else {
			logger.Info().Str("path", envPath).Msg(".env already exists, leaving it alone")
		}

		instructionPath := filepath.Join(runtimePath, "SYSTEM.md")
		if _, err := os.Stat(instructionPath); os.IsNotExist(err) {
			if err := os.WriteFile(instructionPath, []byte(defaultInstruction+"\n"), 0o644); err != nil {
				return fmt.Errorf("failed to write instruction template: %w", err)
			}
			logger.Info().Str("path", instructionPath).Msg("wrote default system instruction")
		}

		logger.Info().Msgf("initialized runtime directory at: %s", runtimePath)
		logger.Info().Msg("Drop reference .txt files into the wiki/ subdirectory, then run 'threadbot start'.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
