package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"pubgate/internal/approval"
	"pubgate/internal/config"
	"pubgate/internal/events"
	"pubgate/internal/notifier/telegram"
	"pubgate/internal/publish"
	"pubgate/internal/publish/linkedin"
	"pubgate/internal/scheduler"
	"pubgate/internal/service"
	"pubgate/internal/source/hackernews"
	"pubgate/internal/source/techcrunch"
	"pubgate/internal/storage/memory"
	"pubgate/internal/storage/postgres"
	"pubgate/internal/summarizer/openai"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	runOnce := flag.Bool("once", false, "run a single pass and exit")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	// Stores: Postgres when configured, in-memory otherwise for local runs
	// (dedup then holds only for the process lifetime)
	var (
		ledger   service.Ledger
		runState service.RunStateStore
	)
	if cfg.Database.Host != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.DSN())
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		logger.Info("connected to database")

		ledger = postgres.NewLedgerStore(db)
		runState = postgres.NewRunStateStore(db)
	} else {
		logger.Warn("no database configured, using in-memory ledger")
		ledger = memory.NewLedger()
	}

	var outcomeEvents service.OutcomeEvents
	if cfg.RabbitMQ.Enabled {
		feed, err := events.NewRabbitMQ(events.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer feed.Close()
		outcomeEvents = feed
	}

	var sources []service.Source
	if cfg.Sources.HackerNews.Enabled {
		sources = append(sources, hackernews.New(hackernews.Config{
			BaseURL:        cfg.Sources.HackerNews.BaseURL,
			MaxItems:       cfg.Sources.HackerNews.MaxItems,
			Keywords:       cfg.Sources.HackerNews.Keywords,
			Timeout:        cfg.Sources.HackerNews.Timeout,
			MaxAttempts:    cfg.Sources.HackerNews.Retry.MaxAttempts,
			InitialBackoff: cfg.Sources.HackerNews.Retry.InitialBackoff,
			MaxBackoff:     cfg.Sources.HackerNews.Retry.MaxBackoff,
		}, logger))
	}
	if cfg.Sources.TechCrunch.Enabled {
		sources = append(sources, techcrunch.New(techcrunch.Config{
			BaseURL:  cfg.Sources.TechCrunch.BaseURL,
			MaxItems: cfg.Sources.TechCrunch.MaxItems,
			Timeout:  cfg.Sources.TechCrunch.Timeout,
		}, logger))
	}
	if len(sources) == 0 {
		logger.Error("no sources enabled")
		os.Exit(1)
	}

	summarizer := openai.New(openai.Config{
		BaseURL:   cfg.Summarizer.BaseURL,
		APIKey:    cfg.Summarizer.APIKey,
		Model:     cfg.Summarizer.Model,
		Prompt:    cfg.Summarizer.Prompt,
		MaxTokens: cfg.Summarizer.MaxTokens,
		Timeout:   cfg.Summarizer.Timeout,
	}, logger)

	notifier := telegram.New(telegram.Config{
		APIBaseURL:  cfg.Telegram.APIBaseURL,
		Token:       cfg.Telegram.Token,
		ChatID:      cfg.Telegram.ChatID,
		PollTimeout: cfg.Telegram.PollTimeout,
		Timeout:     cfg.Telegram.Timeout,
	}, logger)

	poster := linkedin.New(linkedin.Config{
		BaseURL:     cfg.LinkedIn.BaseURL,
		AccessToken: cfg.LinkedIn.AccessToken,
		AuthorURN:   cfg.LinkedIn.AuthorURN,
		PostPrefix:  cfg.LinkedIn.PostPrefix,
		PostSuffix:  cfg.LinkedIn.PostSuffix,
		Timeout:     cfg.LinkedIn.Timeout,
	}, logger)
	gateway := publish.NewGateway(poster, cfg.Publish, logger)

	orchestrator := service.NewOrchestrator(
		sources,
		summarizer,
		notifier,
		gateway,
		ledger,
		runState,
		outcomeEvents,
		approval.New(logger),
		logger,
		cfg.Approval,
		cfg.Publish,
	)

	interval := cfg.Pass.Interval
	if *runOnce {
		interval = 0
	}
	sched := scheduler.NewScheduler(orchestrator, interval, cfg.Pass.Timeout, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting publishing agent",
		"sources", len(sources),
		"interval", interval,
		"approval_ttl", cfg.Approval.TTL,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
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
