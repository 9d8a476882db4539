package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/aschepis/recalld/config"
	"github.com/aschepis/recalld/llm"
	"github.com/aschepis/recalld/llm/ollama"
	"github.com/aschepis/recalld/llm/openai"
	recalllogger "github.com/aschepis/recalld/logger"
	"github.com/aschepis/recalld/memory"
	"github.com/aschepis/recalld/migrations"
	"github.com/aschepis/recalld/runtime"
	"github.com/aschepis/recalld/server"
	"github.com/aschepis/recalld/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "recall.yaml", "Path to YAML config file")
		logFile    = flag.String("logfile", "", "Path to log file. If not set, logs to stdout/stderr")
		pretty     = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	logger, err := recalllogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info().
		Str("config", *configPath).
		Str("provider", cfg.Provider).
		Str("db", cfg.Database.Path).
		Str("http", cfg.Server.HTTP).
		Msg("recalld starting")

	db, err := sql.Open("sqlite3", cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close() //nolint:errcheck // No remedy for db close errors

	if err := migrations.RunMigrations(db, cfg.Database.MigrationsPath, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	client, embedder, err := buildProvider(cfg, logger)
	if err != nil {
		return err
	}
	client = llm.WithRetry(client, logger)
	embedder = llm.WithEmbedRetry(embedder, logger)

	st := store.NewStore(db, logger)
	orch := memory.NewOrchestrator(st, client, embedder, memory.Options{
		ShortTermWindow:        cfg.Memory.ShortTermWindow,
		SummarizeEveryUserMsgs: cfg.Memory.SummarizeEveryUserMsgs,
		EpisodeExtractionLimit: cfg.Memory.EpisodeExtractionLimit,
		EpisodeRetrievalK:      cfg.Memory.EpisodeRetrievalK,
	}, logger)

	srv := server.New(st, orch, logger)

	maintainCtx, cancelMaintain := context.WithCancel(context.Background())
	defer cancelMaintain()
	if schedule := cfg.Maintenance.LifetimeRefreshSchedule; schedule != "" {
		maintainer, err := runtime.NewMaintainer(st, orch.Summaries(), schedule, logger)
		if err != nil {
			return fmt.Errorf("failed to create maintainer: %w", err)
		}
		go maintainer.Start(maintainCtx)
	} else {
		logger.Info().Msg("Lifetime refresh schedule not set, maintenance loop disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(cfg.Server.HTTP)
	}()

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancelMaintain()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Server shutdown was not clean")
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info().Msg("recalld stopped")
	return nil
}

// buildProvider wires the configured LLM provider into a chat client and an
// embedder.
func buildProvider(cfg *config.Config, logger zerolog.Logger) (llm.Client, llm.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		client, err := ollama.NewClient(cfg.Ollama.Host, cfg.Ollama.ChatModel)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		embedder, err := ollama.NewEmbedder(cfg.Ollama.Host, cfg.Ollama.EmbedModel)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create ollama embedder: %w", err)
		}
		logger.Info().Str("chat_model", cfg.Ollama.ChatModel).Str("embed_model", cfg.Ollama.EmbedModel).Msg("Using ollama provider")
		return client, embedder, nil
	case "openai":
		providerCfg := openai.Config{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			ChatModel:  cfg.OpenAI.ChatModel,
			EmbedModel: cfg.OpenAI.EmbedModel,
		}
		client, err := openai.NewClient(providerCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		embedder, err := openai.NewEmbedder(providerCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create openai embedder: %w", err)
		}
		logger.Info().Str("chat_model", cfg.OpenAI.ChatModel).Str("embed_model", cfg.OpenAI.EmbedModel).Msg("Using openai provider")
		return client, embedder, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
