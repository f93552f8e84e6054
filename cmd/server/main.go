package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cshum/vipsgen/vips"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"vsipyramid/internal/config"
	"vsipyramid/internal/httpapi"
	"vsipyramid/internal/logger"
	"vsipyramid/internal/metrics"
	"vsipyramid/internal/slidescan"
	"vsipyramid/internal/tilecache"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	vipsConfig := &vips.Config{
		ConcurrencyLevel: cfg.VipsConcurrency,
		MaxCacheMem:      cfg.VipsMaxCacheMB * 1024 * 1024,
		MaxCacheFiles:    0,
		MaxCacheSize:     0,
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	}

	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelError)

	vips.Startup(vipsConfig)
	defer vips.Shutdown()

	log.Info("vips initialized",
		zap.Int("max_cache_mb", cfg.VipsMaxCacheMB),
		zap.Int("concurrency", cfg.VipsConcurrency),
	)

	m := metrics.New(prometheus.DefaultRegisterer)

	tileCache, err := tilecache.New(cfg.TileCacheMaxLen)
	if err != nil {
		log.Fatal("failed to initialize tile cache", zap.Error(err))
	}

	scanner := slidescan.New(cfg.SlideDir, tileCache, log)
	if err := scanner.Scan(); err != nil {
		log.Warn("initial slide scan failed", zap.Error(err))
	}
	log.Info("slide scan complete", zap.Int("slides", len(scanner.Slides())), zap.String("slide_dir", cfg.SlideDir))

	handlers := httpapi.New(cfg, log, m, scanner, tileCache)
	defer handlers.Close()

	mux := http.NewServeMux()
	mux.Handle("/", handlers.Mux())
	mux.Handle("/metrics", metrics.Promhttp())

	go pollCacheStats(tileCache, m)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	log.Info("server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// pollCacheStats periodically copies the tile cache's hit/miss/len counters
// into the Prometheus gauges, since golang-lru has no native Prometheus
// integration in this pack.
func pollCacheStats(c *tilecache.Cache, m *metrics.Metrics) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.PollCacheStats(c.StatsSnapshot())
	}
}
