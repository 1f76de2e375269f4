package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sandevgo/threadbot/internal/config"
	"github.com/sandevgo/threadbot/internal/providers/llm"
	"github.com/sandevgo/threadbot/internal/providers/rag"
	"github.com/sandevgo/threadbot/internal/providers/reddit"
	"github.com/sandevgo/threadbot/internal/service/generate"
	"github.com/sandevgo/threadbot/internal/service/ingest"
	"github.com/sandevgo/threadbot/internal/service/keypool"
	"github.com/sandevgo/threadbot/internal/service/poller"
	"github.com/sandevgo/threadbot/internal/service/retrieval"
	"github.com/sandevgo/threadbot/internal/service/thread"
	"github.com/sandevgo/threadbot/internal/storage/sqlite"
	"github.com/sandevgo/threadbot/internal/transport/httpapi"
	"github.com/sandevgo/threadbot/pkg/log"
	"github.com/sandevgo/threadbot/pkg/srv"
)

// defaultInstruction is used when the runtime directory carries no
// operator-written system prompt.
const defaultInstruction = `You are a helpful, concise community bot. Answer questions using only the provided context, keep replies to a few lines, and never invent facts the context does not support.`

func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	// init env
	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)
	geminiCfg := config.NewGeminiConfig(ctx)
	redditCfg := config.NewRedditConfig(ctx)
	embCfg := config.NewEmbeddingConfig(ctx)
	retrCfg := config.NewRetrievalConfig(ctx)
	serverCfg := config.NewServerConfig(ctx)

	// 2. Storage
	db, err := initStorage(ctx, appCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	services = append(services, srv.NewCleanup(db.Close))

	postsRepo := sqlite.NewPostsRepo(db)
	commentsRepo := sqlite.NewCommentsRepo(db)
	messagesRepo := sqlite.NewMessagesRepo(db)

	// 3. Embedding provider
	encoder := rag.NewDualEncoder(rag.NewClient(embCfg))

	// 4. Reference library
	library, err := retrieval.LoadLibrary(ctx, appCfg.GetReferenceDocsPath(), encoder)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load reference library")
	}

	// 5. Retrieval and validation
	engine := retrieval.NewEngine(postsRepo, commentsRepo, encoder, library, retrCfg)
	validator := retrieval.NewValidator(commentsRepo, encoder, retrCfg)

	// 6. Generation
	pool := keypool.New(geminiCfg)
	model := llm.NewGemini(geminiCfg)
	orchestrator := generate.NewOrchestrator(model, pool, validator, loadInstruction(ctx, appCfg), geminiCfg)

	// 7. Platform client and processing pipeline
	platform := reddit.NewClient(redditCfg)
	threads := thread.NewBuilder(postsRepo, commentsRepo)
	ingestor := ingest.NewIngestor(postsRepo, commentsRepo, messagesRepo)
	processor := poller.NewProcessor(platform, engine, orchestrator, threads, postsRepo, commentsRepo, redditCfg.Username)

	// 8. Background services
	services = append(services, ingest.NewBackfill(postsRepo, commentsRepo, messagesRepo, encoder))
	services = append(services, poller.NewSubredditPoller(platform, ingestor, processor, postsRepo, commentsRepo, appCfg))
	services = append(services, poller.NewInboxPoller(platform, ingestor, processor, messagesRepo, appCfg))
	services = append(services, httpapi.NewServer(serverCfg))

	return services
}

func initStorage(ctx context.Context, cfg *config.AppConfig) (*sql.DB, error) {
	if err := os.MkdirAll(cfg.GetRuntimePath(), 0o755); err != nil {
		return nil, err
	}
	return sqlite.NewDB(ctx, cfg.GetDatabasePath())
}

func loadInstruction(ctx context.Context, cfg *config.AppConfig) string {
	data, err := os.ReadFile(cfg.GetInstructionPath())
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Str("path", cfg.GetInstructionPath()).Msg("no system instruction file, using built-in default")
		return defaultInstruction
	}
	return string(data)
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
