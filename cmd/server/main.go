package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"mailagent/internal/api"
	"mailagent/internal/classifier"
	"mailagent/internal/config"
	"mailagent/internal/gmailc"
	"mailagent/internal/llm"
	"mailagent/internal/pubsub"
	"mailagent/internal/responder"
	"mailagent/internal/store"
	"mailagent/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting mailagent")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("store ready", "path", cfg.DatabasePath)

	llmClient, err := llm.New(llm.Options{
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		Timeout:     cfg.LLMTimeout,
		MaxInflight: cfg.LLMMaxInflight,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to create llm client", "error", err)
		os.Exit(1)
	}

	gmailService, err := gmailc.NewService(ctx, cfg.GmailCredentialsPath, cfg.GmailTokenPath)
	if err != nil {
		logger.Error("failed to create gmail service", "error", err)
		os.Exit(1)
	}
	mailbox := gmailc.NewClient(gmailService)

	cls := classifier.New(llmClient, cfg.ClassifyMaxTokens, logger)
	generator := responder.New(llmClient, cfg.ResponseMaxTokens, cfg.OwnerName, logger)
	orch := syncer.New(mailbox, cls, st, cfg.ClassifyWorkers, logger)

	if cfg.PushEnabled() {
		startPushListener(ctx, cfg, mailbox, orch, logger)
	}

	handlers := api.NewHandlers(ctx, st, orch, generator, mailbox, llmClient, cfg.ResponseVariants, logger)
	router := api.NewRouter(handlers)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		// Give background syncs a moment to observe cancellation.
		time.Sleep(200 * time.Millisecond)
		os.Exit(0)
	}()

	logger.Info("http server listening", "addr", cfg.HTTPAddr)
	if err := router.Run(cfg.HTTPAddr); err != nil {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
}

// startPushListener enables Gmail watch and runs the Pub/Sub subscriber,
// triggering an incremental sync on every mailbox change notification.
func startPushListener(
	ctx context.Context,
	cfg *config.Config,
	mailbox *gmailc.Client,
	orch *syncer.Orchestrator,
	logger *slog.Logger,
) {
	if err := mailbox.EnableWatch(ctx, cfg.TopicName()); err != nil {
		logger.Warn("failed to enable gmail watch", "error", err)
	}

	subscriber, err := pubsub.NewSubscriber(ctx, cfg.GoogleCloudProject, cfg.SubscriptionID, logger)
	if err != nil {
		logger.Warn("failed to create pub/sub subscriber", "error", err)
		return
	}

	go func() {
		defer subscriber.Close()
		err := subscriber.Listen(ctx, func(notifyCtx context.Context) {
			if _, err := orch.SyncRecent(notifyCtx, cfg.MaxEmailsPerSync, true); err != nil {
				logger.Error("push-triggered sync failed", "error", err)
			}
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("pub/sub listener error", "error", err)
		}
	}()
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
