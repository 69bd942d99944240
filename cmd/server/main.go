// Package main is the entry point for the searchmux gateway server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/searchmux/searchmux/internal/api"
	"github.com/searchmux/searchmux/internal/cache"
	"github.com/searchmux/searchmux/internal/classifier"
	"github.com/searchmux/searchmux/internal/config"
	"github.com/searchmux/searchmux/internal/dispatch"
	"github.com/searchmux/searchmux/internal/engine"
	complexengine "github.com/searchmux/searchmux/internal/engine/complex"
	simpleengine "github.com/searchmux/searchmux/internal/engine/simple"
	"github.com/searchmux/searchmux/internal/healthcheck"
	"github.com/searchmux/searchmux/internal/observability"
	"github.com/searchmux/searchmux/internal/tenant"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfgManager, err := config.NewManager(*configPath, bootLogger)
	if err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:      observability.ParseLevel(cfg.Logging.Level),
		Output:     os.Stdout,
		JSONFormat: cfg.Logging.Format != "text",
	})
	slog.SetDefault(logger)
	logger.Info("starting searchmux gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}
	// Reloads take effect for new engine clients and thresholds on
	// restart; the watcher keeps validation errors visible early.
	cfgManager.OnChange(func(newCfg *config.Config) {
		logger.Info("configuration change detected",
			"path", cfgManager.Path(),
			"restart_required", newCfg.Server.Port != cfg.Server.Port,
		)
	})

	tracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	simpleEng := simpleengine.New(simpleengine.Config{
		BaseURL:       cfg.Engines.Simple.BaseURL,
		APIKey:        cfg.Engines.Simple.APIKey,
		Timeout:       cfg.Engines.Simple.Timeout,
		MaxRetries:    cfg.Engines.Simple.MaxRetries,
		RetryInterval: cfg.Engines.Simple.RetryInterval,
	})
	complexEng := complexengine.New(complexengine.Config{
		BaseURL:       cfg.Engines.Complex.BaseURL,
		APIKey:        cfg.Engines.Complex.APIKey,
		Timeout:       cfg.Engines.Complex.Timeout,
		MaxRetries:    cfg.Engines.Complex.MaxRetries,
		RetryInterval: cfg.Engines.Complex.RetryInterval,
		SearchFields:  cfg.Engines.Complex.SearchFields,
		FacetFields:   cfg.Engines.Complex.FacetFields,
	})

	dualCache, err := buildCache(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}

	resolver := tenant.NewResolver(cfg.Auth.HMACSecret)
	router := tenant.NewRouter(tenant.NewStaticLookup(staticRouting(cfg)))
	clf := classifier.New(classifier.Config{
		SimpleThreshold:  cfg.Classifier.SimpleThreshold,
		ComplexThreshold: cfg.Classifier.ComplexThreshold,
		LongQueryChars:   cfg.Classifier.LongQueryChars,
		LargePageSize:    cfg.Classifier.LargePageSize,
		SimpleBaseMS:     cfg.Classifier.SimpleBaseMS,
		HybridBaseMS:     cfg.Classifier.HybridBaseMS,
		ComplexBaseMS:    cfg.Classifier.ComplexBaseMS,
	})

	dispatcher := dispatch.New(simpleEng, complexEng, dualCache, logger, dispatch.Config{
		DefaultTimeoutMS:      cfg.Dispatch.DefaultTimeoutMS,
		MinTimeoutMS:          cfg.Dispatch.MinTimeoutMS,
		MaxTimeoutMS:          cfg.Dispatch.MaxTimeoutMS,
		HybridOverfetchFactor: cfg.Dispatch.HybridOverfetchFactor,
		HybridFilterFields:    cfg.Dispatch.HybridFilterFields,
		FallbackTimeoutMS:     cfg.Dispatch.FallbackTimeoutMS,
		FallbackPageSize:      cfg.Dispatch.FallbackPageSize,
		CoalesceMisses:        cfg.Dispatch.Coalesce(),
	})

	prober := healthcheck.NewProber(healthcheck.Config{
		Enabled:  cfg.HealthCheck.Enabled,
		Interval: cfg.HealthCheck.Interval,
		Timeout:  cfg.HealthCheck.Timeout,
	}, probeTargets(simpleEng, complexEng, dualCache), logger)
	prober.Start(ctx)

	handler := api.NewHandler(api.HandlerConfig{
		Logger:     logger,
		Resolver:   resolver,
		Router:     router,
		Classifier: clf,
		Dispatcher: dispatcher,
		Suggester:  simpleEng,
		Cache:      dualCache,
		TTL:        ttlPolicy(cfg),
		Prober:     prober,
		Tracer:     tracing.Tracer(),
		MaxBody:    cfg.Server.MaxBodyBytes,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, api.RouteConfig{
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	})

	var httpHandler http.Handler = mux
	if cfg.RateLimit.Enabled {
		limiter := newTenantRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize)
		httpHandler = limiter.Middleware(httpHandler)
	}
	httpHandler = observability.RequestIDMiddleware(httpHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown error", "error", err)
	}
	if dualCache != nil {
		_ = dualCache.Close() //nolint:errcheck
	}
	_ = cfgManager.Close() //nolint:errcheck
	logger.Info("server stopped")
}

func buildCache(cfg *config.Config, logger *slog.Logger) (*cache.DualCache, error) {
	local, err := cache.NewMemoryCache(cache.MemoryConfig{
		MaxEntries: cfg.Cache.L1.MaxEntries,
		DefaultTTL: cfg.Cache.L1.DefaultTTL,
	})
	if err != nil {
		return nil, err
	}

	var shared *cache.RedisCache
	if cfg.Cache.L2.Enabled {
		shared = cache.NewRedisCache(cache.RedisConfig{
			Endpoint: cfg.Cache.L2.Addr,
			Password: cfg.Cache.L2.Password,
			DB:       cfg.Cache.L2.DB,
		})
	}
	return cache.NewDualCache(local, shared, cache.DualConfig{
		LocalTTL: cfg.Cache.L1.DefaultTTL,
	}, logger), nil
}

func staticRouting(cfg *config.Config) tenant.StaticConfig {
	dedicated := make([]tenant.DedicatedTenant, len(cfg.Routing.DedicatedTenants))
	for i, t := range cfg.Routing.DedicatedTenants {
		dedicated[i] = tenant.DedicatedTenant{
			TenantID:     t.TenantID,
			IndexName:    t.IndexName,
			ShardCount:   t.ShardCount,
			ReplicaCount: t.ReplicaCount,
		}
	}
	return tenant.StaticConfig{
		SharedIndex:      cfg.Routing.SharedIndex,
		ShardCount:       cfg.Routing.ShardCount,
		ReplicaCount:     cfg.Routing.ReplicaCount,
		DedicatedTenants: dedicated,
	}
}

func ttlPolicy(cfg *config.Config) cache.TTLPolicy {
	policy := cache.DefaultTTLPolicy()
	if v := cfg.Cache.TTL.Simple; v > 0 {
		policy.SimpleTTL = v
	}
	if v := cfg.Cache.TTL.Short; v > 0 {
		policy.ShortTTL = v
	}
	if v := cfg.Cache.TTL.SmallResult; v > 0 {
		policy.SmallResultTTL = v
	}
	if v := cfg.Cache.TTL.Suggest; v > 0 {
		policy.SuggestTTL = v
	}
	if v := cfg.Cache.TTL.SmallResultThreshold; v > 0 {
		policy.SmallResultThreshold = v
	}
	return policy
}

func probeTargets(simpleEng, complexEng engine.Engine, dualCache *cache.DualCache) []healthcheck.Target {
	targets := []healthcheck.Target{
		{Name: "engine-simple", Kind: healthcheck.KindEngine, Probe: simpleEng.Health},
		{Name: "engine-complex", Kind: healthcheck.KindEngine, Probe: complexEng.Health},
		{Name: "cache-l1", Kind: healthcheck.KindCache, Probe: dualCache.PingLocal},
	}
	if dualCache.SharedEnabled() {
		targets = append(targets, healthcheck.Target{
			Name: "cache-l2", Kind: healthcheck.KindCache, Probe: dualCache.PingShared,
		})
	}
	return targets
}
