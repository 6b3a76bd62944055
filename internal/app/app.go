package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/upnext/upnextd/internal/aggregator"
	"github.com/upnext/upnextd/internal/cache"
	"github.com/upnext/upnextd/internal/config"
	"github.com/upnext/upnextd/internal/credstore"
	"github.com/upnext/upnextd/internal/httpserver"
	"github.com/upnext/upnextd/internal/httpserver/deps"
	"github.com/upnext/upnextd/internal/logger"
	"github.com/upnext/upnextd/internal/provider"
	"github.com/upnext/upnextd/internal/redis"
	"github.com/upnext/upnextd/internal/scheduler"
	"github.com/upnext/upnextd/internal/sources/providers"
	"github.com/upnext/upnextd/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	providers   []provider.Provider
	engine      *aggregator.Engine
	refresher   *scheduler.Refresher
	urgency     *scheduler.UrgencyTicker
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Credential store: Redis when configured, in-memory otherwise. The
	// in-memory store loses tokens on restart, so every provider needs a
	// fresh consent after each daemon start.
	var store credstore.Store
	var redisClient *goredis.Client
	if cfg.RedisAddr != "" {
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		client, err := redis.New(redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			PingTimeout:    cfg.RedisPingTimeout,
		}, loggerClient)
		if err != nil {
			loggerClient.Errorf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		redisClient = client
		store = credstore.NewRedisStore(client)
		loggerClient.Info("Redis credential store initialized")
	} else {
		store = credstore.NewMemoryStore()
		loggerClient.Warn("no redis configured, using in-memory credential store; tokens will not survive restarts")
	}

	// Load the provider declarations and build the adapters.
	providersConfig, err := providers.NewLoader(cfg.ProvidersFile).Load()
	if err != nil {
		loggerClient.Errorf("Failed to load providers file: %v", err)
		os.Exit(1)
	}
	mapper := providers.NewMapper(cfg.OAuthRedirectURL, store, loggerClient)
	built, enabled, err := mapper.Map(providersConfig)
	if err != nil {
		loggerClient.Errorf("Failed to build providers: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("providers configured", logger.Int("count", len(built)))

	// Engine over a result cache; persisted settings overlay the config
	// defaults.
	engine := aggregator.New(built, enabled, cache.New(cfg.CacheTTL), store, loggerClient)

	interval := cfg.RefreshInterval
	if settings, err := store.LoadSettings(context.Background()); err == nil {
		if persisted := engine.ApplySettings(settings); persisted > 0 {
			interval = persisted
		}
		loggerClient.Info("persisted settings applied")
	} else {
		engine.ApplySettings(credstore.Settings{ShowAllDay: cfg.ShowAllDay})
	}

	refresher := scheduler.NewRefresher(engine, loggerClient, interval)
	urgency := scheduler.NewUrgencyTicker(engine, 0)

	d := deps.Deps{
		Logger:       loggerClient,
		StartTime:    time.Now(),
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		TimeNow:      time.Now,
		AllowedCIDRS: cfg.AllowedCIDRS,
		TrustProxy:   cfg.TrustProxy,
		Engine:       engine,
		Refresher:    refresher,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		providers:   built,
		engine:      engine,
		refresher:   refresher,
		urgency:     urgency,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting upnextd v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("upnextd %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// OAuth providers resume from persisted token sets so a restart does
	// not force a fresh consent; providers without a redirect flow validate
	// synchronously against their configured server.
	for _, p := range a.providers {
		if op, isOAuth := p.(provider.OAuthProvider); isOAuth {
			if err := op.Restore(ctx); err != nil {
				a.logger.Warn("provider session restore failed at startup",
					logger.String("provider", p.ID()),
					logger.Error(err))
			}
			continue
		}
		if _, err := p.Authorize(ctx); err != nil {
			a.logger.Warn("provider validation failed at startup",
				logger.String("provider", p.ID()),
				logger.Error(err))
		}
	}

	// Start the refresh loop (runs the initial cycle) and the urgency ticker.
	if err := a.refresher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start refresher: %w", err)
	}
	a.logger.Info("refresher started")

	if err := a.urgency.Start(ctx); err != nil {
		return fmt.Errorf("failed to start urgency ticker: %w", err)
	}
	a.logger.Info("urgency ticker started")

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	a.refresher.Stop()
	a.urgency.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ upnextd stopped cleanly")
	return nil
}
