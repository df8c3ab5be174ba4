package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"tg-amnesia/internal/bot"
	"tg-amnesia/internal/config"
	"tg-amnesia/internal/crash"
	"tg-amnesia/internal/handler"
	"tg-amnesia/internal/handshake"
	"tg-amnesia/internal/logger"
	"tg-amnesia/internal/scheduler"
	"tg-amnesia/internal/service"
	"tg-amnesia/internal/storage"
)

const (
	drainTimeout    = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

// loadConfig loads the config file and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := logger.Setup(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set up logger")
	}
	return cfg, nil
}

// openHandshakeStore picks Redis when configured so several bot instances share
// pending requests, otherwise an in-process map.
func openHandshakeStore(ctx context.Context, cfg *config.Config) (handshake.Store, func(), error) {
	if !cfg.Redis.Enabled {
		logger.Infof("Keeping pending amnesia requests in memory")
		return handshake.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := handshake.NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.Amnesia.PendingRetention)
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, errors.Wrapf(err, "failed to reach redis at %s", cfg.Redis.Addr)
	}
	logger.Infof("Keeping pending amnesia requests in redis at %s", cfg.Redis.Addr)
	return store, func() { _ = client.Close() }, nil
}

func serve(parent context.Context) error {
	crash.SetupCrashHandler()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := storage.Initialize(cfg); err != nil {
		return errors.Wrap(err, "failed to initialize database")
	}
	defer storage.Close(storage.GetDB())
	if err := storage.Migrate(storage.GetDB()); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	store, closeStore, err := openHandshakeStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sched := scheduler.New(clockwork.NewRealClock())
	services := service.Initialize(cfg, storage.GetDB(), afero.NewOsFs(), store, sched)
	services.StartCleanup()
	handler.StartStatusMonitoring(sched)
	config.Watch(services.Reload)

	botService, err := bot.Initialize(ctx, cfg, handler.GetDetailedStatus)
	if err != nil {
		return errors.Wrap(err, "failed to initialize bot")
	}

	if botService.Webhook != nil {
		crash.SafeGoroutine("http-server", func() {
			if err := botService.Webhook.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatalf("HTTP server error: %v", err)
			}
		})
	}

	handler.SetupMessageHandlers(botService.Handler, botService.Bot, services)
	crash.SafeGoroutine("bot-handler", botService.Start)
	logger.Infof("Bot started in %s mode", cfg.Bot.Mode)

	<-ctx.Done()
	logger.Infof("Shutting down...")

	botService.Stop()

	// let the deferred cleanup passes finish so no report outlives an erasure
	if !sched.Drain(drainTimeout) {
		logger.Warningf("Timeout waiting for cleanup jobs, proceeding with shutdown")
	}
	sched.Stop(time.Second)

	if botService.Webhook != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := botService.Webhook.Shutdown(shutdownCtx); err != nil {
			logger.Warningf("HTTP server shutdown error: %v", err)
		}
	}

	logger.Infof("Server gracefully stopped")
	return nil
}
