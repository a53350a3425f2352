// Package app wires configuration into a running aggregation service:
// adapters, routing chains, cache backend, cold archive, the data source
// manager and the optional metrics endpoint.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wyhe/prism/internal/archive"
	"github.com/wyhe/prism/internal/cache"
	"github.com/wyhe/prism/internal/config"
	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/manager"
	"github.com/wyhe/prism/internal/metrics"
	"github.com/wyhe/prism/internal/normalize"
	"github.com/wyhe/prism/internal/provider"
	"github.com/wyhe/prism/internal/provider/alphavantage"
	"github.com/wyhe/prism/internal/provider/eastmoney"
	"github.com/wyhe/prism/internal/provider/finnhub"
	"github.com/wyhe/prism/internal/provider/sina"
	"github.com/wyhe/prism/internal/provider/tencent"
	"github.com/wyhe/prism/internal/provider/tushare"
	"github.com/wyhe/prism/internal/provider/yahoo"
	"github.com/wyhe/prism/internal/router"
)

// App owns the assembled service and its lifecycle.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Registry
	manager *manager.Manager

	server *http.Server

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New assembles an App from configuration.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := metrics.NewRegistry()

	registry := provider.NewRegistry()
	descriptors := make([]provider.Descriptor, 0, len(cfg.Providers))
	maxConcurrent := make(map[string]int, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		adapter, err := buildAdapter(name, pc)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
		descriptors = append(descriptors, provider.Describe(adapter, pc.Priority))
		maxConcurrent[name] = pc.MaxConcurrent
		logger.Info("provider enabled",
			zap.String("provider", name),
			zap.Int("priority", pc.Priority))
	}

	r := router.New(descriptors, logger)
	if err := r.Validate(); err != nil {
		return nil, err
	}

	store, err := buildStore(cfg.Cache)
	if err != nil {
		return nil, err
	}

	var archiver manager.Archiver
	if cfg.Archive.Enabled {
		archiver, err = buildArchiver(cfg.Archive, logger)
		if err != nil {
			return nil, err
		}
	}

	mgr, err := manager.New(manager.Config{
		Router:         r,
		Registry:       registry,
		Normalizer:     normalize.New(logger),
		Store:          store,
		Archiver:       archiver,
		Metrics:        reg,
		Logger:         logger,
		AttemptTimeout: cfg.Fetch.AttemptTimeout,
		MaxConcurrent:  maxConcurrent,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:     cfg,
		logger:  logger,
		metrics: reg,
		manager: mgr,
	}, nil
}

func buildAdapter(name string, pc config.ProviderConfig) (provider.Adapter, error) {
	cfg := provider.Config{APIKey: pc.APIKey, RateLimit: pc.RateLimit, Burst: pc.Burst}
	switch name {
	case "tushare":
		return tushare.New(cfg), nil
	case "eastmoney":
		return eastmoney.New(cfg), nil
	case "sina":
		return sina.New(cfg), nil
	case "tencent":
		return tencent.New(cfg), nil
	case "yahoo":
		return yahoo.New(cfg), nil
	case "finnhub":
		return finnhub.New(cfg), nil
	case "alphavantage":
		return alphavantage.New(cfg), nil
	}
	return nil, core.WrapError(core.ErrConfigInvalid,
		fmt.Errorf("unknown provider %q", name))
}

func buildStore(cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemory(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return cache.NewRedis(client, cfg.Redis.Prefix), nil
	}
	return nil, core.WrapError(core.ErrConfigInvalid,
		fmt.Errorf("unknown cache backend %q", cfg.Backend))
}

func buildArchiver(cfg config.ArchiveConfig, logger *zap.Logger) (manager.Archiver, error) {
	var storage archive.Storage
	var err error
	switch cfg.Type {
	case "localfs":
		storage, err = archive.NewLocalFS(cfg.Path)
	case "s3":
		storage, err = archive.NewS3(archive.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown archive type %q", cfg.Type))
	}
	if err != nil {
		return nil, err
	}
	return archive.New(storage, logger), nil
}

// Manager exposes the data source manager for consumers.
func (a *App) Manager() *manager.Manager {
	return a.manager
}

// Start runs the service until the context ends. When metrics are enabled
// this includes the HTTP endpoint; otherwise Start just blocks.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app already running")
	}
	a.running = true
	ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	errCh := make(chan error, 1)
	if a.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})

		handler := metrics.LoggingMiddleware(a.logger)(metrics.HTTPMiddleware(a.metrics)(mux))
		a.server = &http.Server{Addr: a.cfg.Metrics.Listen, Handler: handler}

		go func() {
			a.logger.Info("metrics endpoint listening",
				zap.String("addr", a.cfg.Metrics.Listen),
				zap.String("path", a.cfg.Metrics.Path))
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.shutdownServer()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Stop cancels a running Start.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *App) shutdownServer() {
	if a.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warn("metrics server shutdown", zap.Error(err))
	}
}
