package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"argus/api"
	"argus/config"
	"argus/core"
	"argus/enrich"
	"argus/intel"
	"argus/source"
	"argus/storage"
)

// AlertStore is a persistence backend the whole application can use: the
// engine writes enrichment records through it and the API reads them back.
type AlertStore interface {
	Store(ctx context.Context, alert *core.EnrichedAlert) error
	GetByID(ctx context.Context, id string) (*core.EnrichedAlert, error)
	Recent(ctx context.Context, limit int) ([]*core.EnrichedAlert, error)
}

// App represents the Argus application with all its components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	Source    *source.WazuhSource
	Providers []intel.Provider
	Cache     intel.VerdictCache
	Store     AlertStore
	Pool      *core.WorkerPool
	Engine    *enrich.Engine
	Batch     *enrich.BatchProcessor
	APIServer *api.API

	shutdownCh chan struct{}
}

// NewApp creates a new application instance and initializes all components.
func NewApp(ctx context.Context) (*App, error) {
	app := &App{shutdownCh: make(chan struct{})}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	logger, sugar, err := InitLogger(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("Argus enrichment engine starting...")
	if viper.ConfigFileUsed() == "" {
		sugar.Info("No config file found, using defaults and env vars")
	}

	app.Source = source.NewWazuhSource(source.WazuhConfig{
		BaseURL:            cfg.Wazuh.URL,
		Username:           cfg.Wazuh.Username,
		Password:           cfg.Wazuh.Password,
		Timeout:            time.Duration(cfg.Wazuh.TimeoutSeconds) * time.Second,
		InsecureSkipVerify: cfg.Wazuh.InsecureSkipVerify,
	}, sugar)

	app.Providers = initProviders(cfg, sugar)
	app.Cache = initCache(cfg, sugar)

	store, err := initStore(ctx, cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Store = store

	app.Pool = core.NewWorkerPool(ctx, cfg.Engine.Workers, cfg.Engine.QueueSize, "enrichment", sugar)
	if err := app.Pool.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker pool: %w", err)
	}

	extractorCfg := enrich.DefaultExtractorConfig()
	extractorCfg.TrustStructuredFields = cfg.Engine.TrustStructured
	extractor := enrich.NewExtractor(extractorCfg)

	app.Engine = enrich.NewEngine(extractor, app.Providers, app.Cache, sinkOrNil(store), app.Pool, sugar)
	app.Batch = enrich.NewBatchProcessor(app.Source, app.Engine, sugar)
	app.APIServer = api.NewAPI(app.Engine, app.Batch, storeOrNil(store), sugar)

	return app, nil
}

func initProviders(cfg *config.Config, sugar *zap.SugaredLogger) []intel.Provider {
	shared := intel.Options{
		Timeout:    time.Duration(cfg.Providers.TimeoutSeconds) * time.Second,
		RatePerSec: cfg.Providers.RatePerSecond,
		Burst:      cfg.Providers.Burst,
	}

	abuseOpts := shared
	abuseOpts.APIKey = cfg.Providers.AbuseIPDB.APIKey
	abuseOpts.BaseURL = cfg.Providers.AbuseIPDB.BaseURL

	otxOpts := shared
	otxOpts.APIKey = cfg.Providers.OTX.APIKey
	otxOpts.BaseURL = cfg.Providers.OTX.BaseURL

	vtOpts := shared
	vtOpts.APIKey = cfg.Providers.VirusTotal.APIKey
	vtOpts.BaseURL = cfg.Providers.VirusTotal.BaseURL

	entries := []struct {
		provider intel.Provider
		key      string
	}{
		{intel.NewAbuseIPDBProvider(abuseOpts), abuseOpts.APIKey},
		{intel.NewOTXProvider(otxOpts), otxOpts.APIKey},
		{intel.NewVirusTotalProvider(vtOpts), vtOpts.APIKey},
	}

	providers := make([]intel.Provider, 0, len(entries))
	for _, e := range entries {
		status := "configured"
		if e.key == "" {
			status = "no API key, lookups will be unavailable"
		}
		sugar.Infow("Intel provider initialized", "provider", e.provider.Name(), "status", status)
		providers = append(providers, e.provider)
	}
	return providers
}

func initCache(cfg *config.Config, sugar *zap.SugaredLogger) intel.VerdictCache {
	switch cfg.Cache.Backend {
	case "redis":
		cache := intel.NewRedisVerdictCache(cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB, cfg.Cache.TTL, sugar)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cache.Ping(ctx); err != nil {
			sugar.Warnw("Redis unreachable at startup, cache will degrade to misses", "addr", cfg.Cache.Redis.Addr, "error", err)
		}
		sugar.Infow("Verdict cache initialized", "backend", "redis", "ttl", cfg.Cache.TTL)
		return cache
	case "none":
		sugar.Info("Verdict caching disabled")
		return nil
	default:
		sugar.Infow("Verdict cache initialized", "backend", "memory", "size", cfg.Cache.MemorySize, "ttl", cfg.Cache.TTL)
		return intel.NewMemoryVerdictCache(cfg.Cache.MemorySize, cfg.Cache.TTL)
	}
}

func initStore(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (AlertStore, error) {
	switch cfg.Storage.Backend {
	case "mongodb":
		sink, err := storage.NewMongoSink(ctx, cfg.Storage.MongoDB.URI, cfg.Storage.MongoDB.Database, sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MongoDB storage: %w", err)
		}
		return sink, nil
	case "sqlite":
		sink, err := storage.NewSQLiteSink(cfg.Storage.SQLitePath, sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
		}
		return sink, nil
	default:
		sugar.Info("Using in-memory enrichment store")
		return storage.NewMemorySink(), nil
	}
}

func sinkOrNil(store AlertStore) enrich.Sink {
	if store == nil {
		return nil
	}
	return store
}

func storeOrNil(store AlertStore) api.AlertStore {
	if store == nil {
		return nil
	}
	return store
}

// Start starts the HTTP API and, when configured, the periodic batch poller.
// It returns once the listener has stopped.
func (a *App) Start() error {
	if a.Config.Engine.PollInterval > 0 {
		go a.pollLoop()
	}

	addr := fmt.Sprintf("%s:%d", a.Config.API.Host, a.Config.API.Port)
	a.Sugar.Infow("Starting API server", "addr", addr)
	if err := a.APIServer.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// pollLoop runs batch enrichment on a fixed interval until shutdown.
func (a *App) pollLoop() {
	interval := a.Config.Engine.PollInterval
	a.Sugar.Infow("Starting batch poller",
		"interval", interval,
		"limit", a.Config.Engine.BatchLimit,
		"severity", a.Config.Engine.PollSeverity)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			a.Batch.ProcessBatch(ctx, a.Config.Engine.BatchLimit, 0, a.Config.Engine.PollSeverity)
			cancel()
		case <-a.shutdownCh:
			return
		}
	}
}

// WaitForShutdown blocks until SIGINT/SIGTERM or Shutdown is called.
func (a *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		a.Sugar.Infow("Received shutdown signal", "signal", sig)
	case <-a.shutdownCh:
	}
}

// Shutdown stops all components in reverse initialization order.
func (a *App) Shutdown() {
	select {
	case <-a.shutdownCh:
		return
	default:
		close(a.shutdownCh)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if a.APIServer != nil {
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Warnw("API server shutdown failed", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Stop()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Sugar.Warnw("Cache shutdown failed", "error", err)
		}
	}
	switch sink := a.Store.(type) {
	case *storage.MongoSink:
		if err := sink.Close(ctx); err != nil {
			a.Sugar.Warnw("MongoDB shutdown failed", "error", err)
		}
	case *storage.SQLiteSink:
		if err := sink.Close(); err != nil {
			a.Sugar.Warnw("SQLite shutdown failed", "error", err)
		}
	}

	a.Sugar.Info("Argus stopped")
	_ = a.Logger.Sync()
}
