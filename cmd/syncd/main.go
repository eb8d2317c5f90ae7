package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"pubsync/internal/adapter/drupal"
	"pubsync/internal/adapter/linkedin"
	"pubsync/internal/adapter/wordpress"
	"pubsync/internal/config"
	"pubsync/internal/domain"
	"pubsync/internal/publisher"
	"pubsync/internal/scheduler"
	"pubsync/internal/server"
	"pubsync/internal/service"
	"pubsync/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize the outcome audit publisher
	outcomes, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer outcomes.Close()

	// Initialize stores
	contentStore := postgres.NewContentStore(db)
	mappingStore := postgres.NewMappingStore(db)
	eventStore := postgres.NewEventStore(db)
	postStore := postgres.NewPostStore(db)
	ruleStore := postgres.NewRuleStore(db)
	txManager := postgres.NewTransactionManager(db)

	// Load scheduling rules into the read-only rules table
	ctx := context.Background()
	for _, r := range cfg.Rules {
		rule := domain.SchedulingRule{
			Platform:     r.Platform,
			Hour:         r.Hour,
			Minute:       r.Minute,
			Timezone:     r.Timezone,
			SkipWeekends: r.SkipWeekends,
		}
		if err := ruleStore.Upsert(ctx, &rule); err != nil {
			logger.Error("failed to load scheduling rule", "platform", r.Platform, "error", err)
			os.Exit(1)
		}
	}

	// Initialize platform adapters
	cmsAdapters := make([]service.CMSAdapter, 0, len(cfg.Sites))
	for _, site := range cfg.Sites {
		switch site.Platform {
		case domain.PlatformWordPress:
			cmsAdapters = append(cmsAdapters, wordpress.New(wordpress.Config{
				SiteID:            site.ID,
				BaseURL:           site.BaseURL,
				Token:             site.Token,
				RequestsPerSecond: site.RequestsPerSecond,
			}, logger))
		case domain.PlatformDrupal:
			cmsAdapters = append(cmsAdapters, drupal.New(drupal.Config{
				SiteID:            site.ID,
				BaseURL:           site.BaseURL,
				Token:             site.Token,
				RequestsPerSecond: site.RequestsPerSecond,
			}, logger))
		default:
			logger.Error("unsupported site platform", "site", site.ID, "platform", site.Platform)
			os.Exit(1)
		}
	}

	socialAdapters := make([]service.SocialAdapter, 0, len(cfg.Accounts))
	for _, account := range cfg.Accounts {
		switch account.Platform {
		case domain.PlatformLinkedIn:
			socialAdapters = append(socialAdapters, linkedin.New(linkedin.Config{
				AccountRef: account.AccountRef,
				BaseURL:    account.BaseURL,
				Token:      account.Token,
				Visibility: account.Visibility,
			}, logger))
		default:
			logger.Error("unsupported account platform", "account", account.AccountRef, "platform", account.Platform)
			os.Exit(1)
		}
	}

	// Create services
	engine := service.NewSyncEngine(
		contentStore,
		mappingStore,
		eventStore,
		txManager,
		cmsAdapters,
		cfg.Sites,
		outcomes,
		logger,
		cfg.Sync,
	)
	publish := service.NewPublishService(
		postStore,
		ruleStore,
		contentStore,
		socialAdapters,
		cfg.Accounts,
		outcomes,
		logger,
		cfg.Publish,
	)
	runner := service.NewTriggerRunner(engine, publish)

	srv := server.New(engine, publish, runner, db, cfg.Server.Port, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Internal ticker fallback for deployments without an external cron.
	schedDone := make(chan struct{})
	if cfg.Sync.Interval > 0 {
		sched := scheduler.NewScheduler(runner, cfg.Sync.Interval, cfg.Sync.RunTimeout, logger)
		go func() {
			defer close(schedDone)
			if err := sched.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduler error", "error", err)
			}
		}()
	} else {
		close(schedDone)
	}

	go func() {
		<-runCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting pubsync",
		"port", cfg.Server.Port,
		"sites", len(cfg.Sites),
		"accounts", len(cfg.Accounts),
		"interval", cfg.Sync.Interval,
	)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	<-schedDone
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
