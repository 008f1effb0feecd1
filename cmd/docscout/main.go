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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docscout/docscout/internal/cache"
	"github.com/docscout/docscout/internal/querycache"
	"github.com/docscout/docscout/internal/server"
	"github.com/docscout/docscout/internal/syncer"
	"github.com/docscout/docscout/pkg/config"
	"github.com/docscout/docscout/pkg/health"
	"github.com/docscout/docscout/pkg/logger"
	"github.com/docscout/docscout/pkg/metrics"
	pkgredis "github.com/docscout/docscout/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	dataDir := flag.String("data", "", "data directory override")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Index.DataDir = *dataDir
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting docscout",
		"port", cfg.Server.Port,
		"data_dir", cfg.Index.DataDir,
		"auto_rebuild_hours", cfg.Index.AutoRebuildHours,
	)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	store, err := cache.NewStore(cfg.Cache.Dir)
	if err != nil {
		slog.Error("failed to open cache store", "error", err)
		os.Exit(1)
	}

	handle, err := syncer.Initialize(cfg.Index, store)
	if err != nil {
		slog.Error("failed to initialize index", "error", err)
		os.Exit(1)
	}
	m.CacheLoadsTotal.WithLabelValues(handle.StartupPath()).Inc()
	m.DocsIndexed.Set(float64(handle.Index().Len()))
	handle.OnSync = func(changed bool, took time.Duration) {
		outcome := "unchanged"
		if changed {
			outcome = "changed"
		}
		m.SyncRunsTotal.WithLabelValues(outcome).Inc()
		m.SyncDuration.Observe(took.Seconds())
		m.DocsIndexed.Set(float64(handle.Index().Len()))
	}
	defer handle.StopScheduler()

	var qcache *querycache.Cache
	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents", handle.Index().Len()),
		}
	})
	if cfg.Redis.Addr != "" {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			qcache = querycache.New(redisClient, cfg.Redis.CacheTTL)
			checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
				if err := redisClient.Ping(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusUp}
			})
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	handler := server.NewHandler(handle, qcache, m)
	srv := server.New(cfg.Server, handler, checker, m, reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.Server.Port {
		metricsSrv = metrics.NewServer(cfg.Metrics.Port, reg)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}
