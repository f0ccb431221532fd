package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/heimdex/clipreel/internal/api"
	"github.com/heimdex/clipreel/internal/catalog"
	"github.com/heimdex/clipreel/internal/config"
	"github.com/heimdex/clipreel/internal/db"
	"github.com/heimdex/clipreel/internal/logging"
	"github.com/heimdex/clipreel/internal/metrics"
	"github.com/heimdex/clipreel/internal/review"
	"github.com/heimdex/clipreel/internal/thumbnail"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New(".env")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger, logCloser := logging.NewLogger(cfg.LogLevel(), cfg.LogFile())
	defer logCloser.Close()
	logger.Info("starting clipreel",
		"version", config.Version,
		"commit", config.GitCommit,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
	)

	database, err := db.New(cfg.DBPath(), logging.WithComponent(logger, "db"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database)

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Printf("  clipreel %s\n", config.Version)
	fmt.Printf("  API URL:    http://127.0.0.1:%d\n", cfg.Port())
	fmt.Printf("  Auth Token: %s\n", authToken)
	fmt.Println()

	catalogSvc := catalog.NewService(repo, logging.WithComponent(logger, "catalog"))

	reviewLogger := logging.WithComponent(logger, "review")
	workflow := review.NewWorkflow(catalogSvc, catalogSvc, reviewLogger)
	prompts := review.NewPendingPrompts(cfg.PromptTTL(), reviewLogger)

	var metricsHandler http.Handler
	if cfg.MetricsEnabled() {
		metricsHandler = metrics.Handler(metrics.NewRegistry())
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Version:        config.Version,
		CatalogService: catalogSvc,
		Tokens:         repo,
		Workflow:       workflow,
		Prompts:        prompts,
		Thumbnails:     thumbnail.NewRenderer(cfg.ThumbnailSize(), time.Hour),
		Metrics:        metricsHandler,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Logger:         logging.WithComponent(logger, "api"),
		StartTime:      startTime,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(apiServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown HTTP server", "error", err)
		}

		// Unanswered prompts are stored flagged before the database closes.
		if n := prompts.Len(); n > 0 {
			logger.Info("resolving unanswered flag prompts", "count", n)
		}
		prompts.Drain()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(repo catalog.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetPreference(ctx, catalog.PrefAuthToken)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetPreference(ctx, catalog.PrefAuthToken, token); err != nil {
		return "", err
	}

	return token, nil
}
