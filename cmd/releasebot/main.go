package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/releasebot/internal/adapter/driven/github"
	"github.com/ericfisherdev/releasebot/internal/adapter/driven/metrics"
	sqliteadapter "github.com/ericfisherdev/releasebot/internal/adapter/driven/sqlite"
	notifieradapter "github.com/ericfisherdev/releasebot/internal/adapter/driven/telegram"
	httphandler "github.com/ericfisherdev/releasebot/internal/adapter/driving/http"
	"github.com/ericfisherdev/releasebot/internal/adapter/driving/schedule"
	botadapter "github.com/ericfisherdev/releasebot/internal/adapter/driving/telegram"
	"github.com/ericfisherdev/releasebot/internal/application"
	"github.com/ericfisherdev/releasebot/internal/config"
	"github.com/ericfisherdev/releasebot/internal/logging"
	"github.com/ericfisherdev/releasebot/internal/render"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Install the process logger.
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
		"poll_schedule", cfg.PollSchedule,
		"poll_concurrency", cfg.PollConcurrency,
		"github_token_set", cfg.GitHubToken != "",
	)

	// 3. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()
	logger.Info("database opened", "path", cfg.DBPath)

	// 5. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer, logger); err != nil {
		return err
	}

	// 6. Wire driven adapters.
	repoStore := sqliteadapter.NewRepoRepo(db)
	cacheStore := sqliteadapter.NewReleaseCacheRepo(db)
	subStore := sqliteadapter.NewSubscriptionRepo(db)

	ghClient, err := githubadapter.NewClient(cfg.GitHubToken, cfg.GitHubAPIURL, logger)
	if err != nil {
		return err
	}
	if cfg.GitHubToken == "" {
		logger.Warn("no github token configured, requests are subject to the anonymous rate limit")
	}

	teleBot, err := botadapter.NewTeleBot(cfg.TelegramToken, logger)
	if err != nil {
		return err
	}
	notifier := notifieradapter.NewNotifier(teleBot, cfg.NotifyRate, logger)

	prom := metrics.NewPrometheus()
	var notes application.NotesRenderer
	if cfg.NotesMaxLen > 0 {
		notes = render.NewRenderer(cfg.NotesMaxLen)
	}
	formatter := application.NewMessageFormatter(notes)

	// 7. Create application services.
	pollSvc := application.NewPollService(
		repoStore,
		cacheStore,
		subStore,
		ghClient,
		notifier,
		formatter,
		prom,
		cfg.PollConcurrency,
		logger,
	)
	trackingSvc := application.NewTrackingService(repoStore, subStore, cacheStore, pollSvc, logger)

	// 8. Start the poll scheduler and the command bot.
	scheduler, err := schedule.New(pollSvc, schedule.Spec(cfg.PollSchedule, cfg.PollInterval), logger)
	if err != nil {
		return err
	}
	bot := botadapter.NewBot(teleBot, trackingSvc, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("poll scheduler error", "error", err)
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		bot.Run(ctx)
	}()

	// 9. Create HTTP handler and start the admin server.
	apiHandler := httphandler.NewHandler(ctx, pollSvc, trackingSvc, db, prom.Handler(), logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	logger.Info("releasebot started",
		"listen_addr", cfg.ListenAddr,
		"notify_rate", cfg.NotifyRate,
	)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down")

	// 11. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	// 12. Let scheduled and manually triggered cycles finish before the database closes.
	wg.Wait()
	apiHandler.Wait()

	logger.Info("shutdown complete")
	return nil
}
