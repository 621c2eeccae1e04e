package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/reddwatch/reddwatch/internal/archive"
	"github.com/reddwatch/reddwatch/internal/db"
	"github.com/reddwatch/reddwatch/internal/models"
	"github.com/reddwatch/reddwatch/internal/reddit"
	"github.com/reddwatch/reddwatch/internal/tasks"
	"github.com/reddwatch/reddwatch/pkg/config"
	"github.com/reddwatch/reddwatch/pkg/logging"
	"github.com/reddwatch/reddwatch/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Reddwatch Worker")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	// Connect to database
	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := database.AutoMigrate(
		&models.Community{},
		&models.CommunityHistory{},
		&models.Story{},
		&models.StoryHistory{},
	); err != nil {
		logger.Fatal("Failed to migrate database schema", zap.Error(err))
	}

	repo := db.NewRepository(database.DB)
	stories := db.NewStoryRepository(repo)
	communities := db.NewCommunityRepository(repo)

	// Root context cancelled on the first interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reddit client with rate limiting and background token refresh
	tokenSource, err := reddit.NewTokenSource(&cfg.Reddit)
	if err != nil {
		logger.Fatal("Failed to authenticate with reddit", zap.Error(err))
	}
	go tokenSource.Start(ctx)

	limiter := reddit.NewTokenBucket(cfg.Reddit.RequestsPerMinute)
	client, err := reddit.New(&cfg.Reddit, limiter, tokenSource)
	if err != nil {
		logger.Fatal("Failed to create reddit client", zap.Error(err))
	}

	sink, err := newSink(ctx, &cfg.Archive)
	if err != nil {
		logger.Fatal("Failed to create archive sink", zap.Error(err))
	}

	supervisor := tasks.NewSupervisor(
		tasks.NewDiscoveryTask(stories, communities, client, &cfg.Tasks),
		tasks.NewHistoryTask(stories, client, &cfg.Tasks),
		tasks.NewCommunityDiscoveryTask(communities, client),
		tasks.NewCommunityRefreshTask(communities, client, &cfg.Tasks),
		tasks.NewArchiveTask(stories, sink, &cfg.Tasks),
	)
	supervisor.Start(ctx)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()
	supervisor.Wait()

	logger.Info("Worker exited")
}

// newSink builds the archive backend selected by configuration
func newSink(ctx context.Context, cfg *config.ArchiveConfig) (archive.Sink, error) {
	switch cfg.Backend {
	case "s3":
		return archive.NewObjectSink(ctx, cfg)
	default:
		return archive.NewFileSink(cfg.FileRoot)
	}
}
