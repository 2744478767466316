package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pixelgate/internal/admin"
	"pixelgate/internal/client"
	"pixelgate/internal/collect"
	"pixelgate/internal/domainindex"
	"pixelgate/internal/geo"
	"pixelgate/internal/pixel"
	"pixelgate/internal/platform/config"
	"pixelgate/internal/platform/httpserver"
	"pixelgate/internal/platform/logger"
	"pixelgate/internal/platform/metrics"
	"pixelgate/internal/platform/redis"
	"pixelgate/internal/ratelimit"
	transporthttp "pixelgate/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pixelgate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Document store. Without redis the service runs on in-memory stores,
	// which lose all registrations on restart.
	rdb, err := redis.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	var (
		clients    client.Store
		indexStore domainindex.Store
		health     func(ctx context.Context) error
	)
	if rdb != nil {
		defer rdb.Close()
		clients = client.NewRedisStore(rdb.Client)
		indexStore = domainindex.NewRedisStore(rdb.Client)
		health = rdb.Health
		log.Info("using redis document store")
	} else {
		clients = client.NewMemoryStore()
		indexStore = domainindex.NewMemoryStore()
		log.Warn("redis not configured, using in-memory stores")
	}

	// Geolocation. A missing or unreachable range database leaves the
	// resolver in permanent fallback rather than blocking startup.
	var rangeStore geo.RangeStore
	if cfg.GeoDatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.GeoDatabaseURL)
		if err != nil {
			log.Warn("geo database unavailable, location resolution disabled", "error", err)
		} else {
			store := geo.NewPostgresStore(pool, cfg.GeoQueryTimeout)
			if err := store.EnsureSchema(ctx); err != nil {
				log.Warn("geo schema setup failed, location resolution disabled", "error", err)
				pool.Close()
			} else {
				rangeStore = store
			}
		}
	}
	geoResolver := geo.NewResolver(rangeStore, cfg.GeoCacheSize, cfg.GeoCacheTTL, log)
	defer geoResolver.Close()

	// The template must be valid before the service accepts traffic.
	cache := pixel.NewTemplateCache(cfg.TemplatePath, cfg.TemplateTTL, log)
	if _, err := cache.Get(); err != nil {
		return fmt.Errorf("load pixel template: %w", err)
	}

	mx := metrics.New()
	index := domainindex.New(indexStore, log, domainindex.WithTimeout(cfg.StoreTimeout))
	pixelSvc := pixel.New(index, clients, cache, cfg.CollectionEndpoint, log, pixel.WithTimeout(cfg.StoreTimeout))
	collectSvc := collect.New(index, clients, geoResolver, collect.NewLogSink(log), log, collect.WithTimeout(cfg.StoreTimeout))
	adminSvc := admin.New(clients, index, log, admin.WithTimeout(cfg.StoreTimeout))

	limiter := ratelimit.New(limitsFromConfig(cfg))
	janitor := ratelimit.NewJanitor(limiter, cfg.RateLimitCleanupInterval, log)
	go janitor.Run(ctx)

	router := transporthttp.NewRouter(transporthttp.Deps{
		Logger:  log,
		Metrics: mx,
		Pixel:   pixelSvc,
		Collect: collectSvc,
		Admin:   adminSvc,
		RateLimit: ratelimit.NewMiddleware(limiter, log,
			ratelimit.WithDisabled(cfg.RateLimitDisabled),
			ratelimit.WithMetrics(mx),
		),
		CollectionEndpoint: cfg.CollectionEndpoint,
		Health:             health,
	})

	srv := httpserver.New(cfg.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}

func limitsFromConfig(cfg *config.Config) map[ratelimit.Category]ratelimit.Limit {
	return map[ratelimit.Category]ratelimit.Limit{
		ratelimit.CategoryAdmin:        {Requests: cfg.RateLimitAdminPerMin, Window: time.Minute},
		ratelimit.CategoryPublicConfig: {Requests: cfg.RateLimitConfigPerMin, Window: time.Minute},
		ratelimit.CategoryPixel:        {Requests: cfg.RateLimitPixelPerMin, Window: time.Minute},
		ratelimit.CategoryCollect:      {Requests: cfg.RateLimitCollectPerMin, Window: time.Minute},
	}
}
