package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tgrelay/internal/cache"
	"tgrelay/internal/config"
	"tgrelay/internal/constants"
	"tgrelay/internal/database"
	"tgrelay/internal/delivery"
	"tgrelay/internal/events"
	"tgrelay/internal/gateway"
	"tgrelay/internal/logging"
	"tgrelay/internal/models"
	"tgrelay/internal/privacy"
	"tgrelay/internal/relay"
	"tgrelay/internal/retry"
	"tgrelay/internal/router"
	"tgrelay/internal/tracing"
	"tgrelay/internal/translator"
	"tgrelay/pkg/botapi"
	"tgrelay/pkg/llm"
	"tgrelay/pkg/telegram"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file (.json, .yaml or .yml)")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("tgrelay %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting tgrelay")

	if n, err := config.LoadEnv(".env", ".env.local"); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	} else if n > 0 {
		logger.WithField(logging.LogFieldCount, n).Debug("Loaded dotenv files")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	configureLogLevel(logger, cfg.LogLevel, *verbose)

	logger.WithFields(logrus.Fields{
		"channels":  len(cfg.Channels),
		"provider":  cfg.LLM.Provider,
		"storage":   cfg.Storage.Driver,
		"bot_token": privacy.MaskBotToken(cfg.Telegram.BotToken),
		"llm_key":   privacy.MaskAPIKey(cfg.LLM.APIKey),
	}).Info("Configuration loaded")

	tracingManager := tracing.NewTracingManager(tracing.Options{
		ServiceVersion: Version,
		Environment:    os.Getenv("TGRELAY_ENV"),
		TracingConfig:  cfg.Tracing,
	}, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// gotd only logs through zap; keep it at warn unless verbose.
	zapLogger, err := newZapLogger(*verbose)
	if err != nil {
		return fmt.Errorf("failed to create mtproto logger: %w", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	eventLog, closeLog, err := openEventLog(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer func() {
		if err := closeLog(); err != nil {
			logger.WithError(err).Warn("Failed to close event log")
		}
	}()

	messageCache, err := cache.New(cfg.Storage.CachePath, cfg.Relay.CacheLimit, logger)
	if err != nil {
		return fmt.Errorf("failed to open channel cache: %w", err)
	}

	channels, err := router.New(models.PairingsFromConfig(cfg.Channels))
	if err != nil {
		return fmt.Errorf("failed to build channel router: %w", err)
	}

	botClient := botapi.NewClient(cfg.Telegram.BotAPIURL, cfg.Telegram.BotToken,
		time.Duration(cfg.Delivery.TimeoutSec)*time.Second, logger)

	metadataClient, err := telegram.NewBotMetadataClient(cfg.Telegram.BotToken, cfg.Telegram.BotAPIURL)
	if err != nil {
		return fmt.Errorf("failed to create metadata client: %w", err)
	}
	metadataGateway := gateway.New(metadataClient, logger,
		time.Duration(cfg.Telegram.TimeoutSec)*time.Second)

	completer, err := llm.NewCompleter(ctx, cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.BaseURL,
		time.Duration(constants.DefaultLLMTimeoutSec)*time.Second)
	if err != nil {
		return fmt.Errorf("failed to create llm client: %w", err)
	}
	if closer, ok := completer.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close llm client")
			}
		}()
	}

	// The template file is read before any message can arrive; a missing
	// file leaves the default template in place.
	template := translator.NewTemplate("")
	var watcher *config.TemplateWatcher
	if cfg.LLM.PromptTemplatePath != "" {
		watcher = config.NewTemplateWatcher(cfg.LLM.PromptTemplatePath,
			time.Duration(cfg.LLM.TemplatePollSec)*time.Second, template, logger)
		if err := watcher.LoadOptional(); err != nil {
			return fmt.Errorf("failed to load prompt template: %w", err)
		}
	}
	translatorSvc := translator.New(completer, template, translator.Options{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		MaxAttempts: cfg.Retry.MaxAttempts,
		RetryDelay:  time.Duration(cfg.Retry.DelayMs) * time.Millisecond,
	}, logger)

	deliverySvc := delivery.NewService(botClient, delivery.Options{
		Cache:         messageCache,
		RatePerMinute: int64(cfg.Delivery.RateLimitPerMinute),
	}, logger)

	orchestrator := relay.New(relay.Deps{
		Router:     channels,
		Gateway:    metadataGateway,
		Translator: translatorSvc,
		Delivery:   deliverySvc,
		Log:        eventLog,
		Cache:      messageCache,
	}, relay.Options{
		MaxConcurrent: cfg.Relay.MaxConcurrent,
		MaxFileSize:   cfg.Relay.MaxFileSizeBytes,
		EnrichTimeout: time.Duration(cfg.Telegram.TimeoutSec) * time.Second,
	}, logger)

	if cfg.Telegram.ValidateOnBoot {
		if bad := relay.ValidateDestinations(ctx, botClient, channels, logger); len(bad) > 0 {
			logger.WithField(logging.LogFieldCount, len(bad)).Warn("Some destination channels are unreachable; posts to them will fail")
		}
	}

	listener, err := telegram.NewListener(telegram.ListenerConfig{
		APIID:       cfg.Telegram.APIID,
		APIHash:     cfg.Telegram.APIHash,
		BotToken:    cfg.Telegram.BotToken,
		SessionPath: cfg.Telegram.SessionPath,
	}, func(ctx context.Context, msg models.InboundMessage) {
		orchestrator.Handle(logging.WithVerbose(ctx, *verbose), msg)
	}, logger, zapLogger)
	if err != nil {
		return fmt.Errorf("failed to create channel listener: %w", err)
	}

	server := NewServer(cfg, ServerDeps{
		Events:  eventLog,
		Breaker: botClient.Breaker(),
		Gateway: metadataGateway,
		Router:  channels,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return metadataGateway.Run(gctx)
	})
	g.Go(func() error {
		if err := listener.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("channel listener: %w", err)
		}
		return nil
	})
	if watcher != nil {
		g.Go(func() error {
			if err := watcher.Start(gctx); err != nil {
				return fmt.Errorf("prompt template watcher: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Received shutdown signal")
		return shutdown(orchestrator, metadataGateway, server, logger)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown completed")
	return nil
}

// shutdown stops intake, lets in-flight messages finish and then closes the
// ops server.
func shutdown(orchestrator *relay.Orchestrator, gw *gateway.Gateway, server *Server, logger *logrus.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	orchestrator.Stop()
	gw.Stop()
	if err := orchestrator.Wait(shutdownCtx); err != nil {
		logger.WithError(err).Warn("In-flight messages did not finish before shutdown timeout")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}
	return nil
}

func configureLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}

func newZapLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if !verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return zcfg.Build()
}

// openEventLog opens the configured event store. sqlite opens are retried
// since a previous process may still hold the write lock.
func openEventLog(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (events.Log, func() error, error) {
	if cfg.Storage.Driver != config.DriverSQLite {
		fileLog, err := events.NewFileLog(cfg.Storage.EventsPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return fileLog, fileLog.Close, nil
	}

	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	var store *database.EventStore
	err := backoff.Retry(ctx, func() error {
		var openErr error
		store, openErr = database.Open(cfg.Storage.DatabasePath, database.Options{
			EncryptMessages:  cfg.Storage.EncryptMessages,
			EncryptionSecret: cfg.Storage.EncryptionSecret,
		})
		if openErr != nil {
			logger.Warnf("Failed to open event store: %v", openErr)
		}
		return openErr
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open event store after retries: %w", err)
	}
	return store, store.Close, nil
}
