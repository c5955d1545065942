package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/seenimoa/tasas/internal/config"
	"github.com/seenimoa/tasas/internal/dashboard"
	"github.com/seenimoa/tasas/internal/gateway"
	"github.com/seenimoa/tasas/internal/rates"
	"github.com/seenimoa/tasas/internal/stocks"
	"github.com/seenimoa/tasas/internal/store"
	"github.com/seenimoa/tasas/internal/telemetry"
)

// services is the wired data layer shared by every command.
type services struct {
	store    store.Store
	rates    *rates.Repository
	stocks   *stocks.Repository
	dash     *dashboard.Refresher
	registry *prometheus.Registry
}

// buildServices opens the cache store and wires the gateway, both
// repositories and the dashboard refresher from cfg.
func buildServices(ctx context.Context, cfg *config.Config) (*services, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.New(ctx, store.Options{
		Backend:       cfg.Cache.Backend,
		FilePath:      cfg.Cache.FilePath,
		RedisAddr:     cfg.Cache.RedisAddr,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
		KeyPrefix:     "tasas:",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s cache: %w", cfg.Cache.Backend, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	tracer, err := telemetry.NewPromTracer(reg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	reporter := telemetry.NewLogReporter()

	httpClient := &http.Client{Timeout: cfg.API.Timeout()}
	gw := gateway.New(gateway.Config{
		BaseURL:    cfg.API.BaseURL,
		APIKey:     cfg.API.APIKey,
		HTTPClient: httpClient,
		Store:      st,
		Tracer:     tracer,
		Reporter:   reporter,
		RateLimit:  cfg.API.RateLimitRPS,
		Burst:      int(cfg.API.RateLimitRPS) + 1,
		DefaultTTL: cfg.Cache.TTL(),
	})

	var secondary rates.Source
	if cfg.Rates.SecondaryURL != "" {
		secondary = rates.NewBCV(cfg.Rates.SecondaryURL, httpClient)
	}
	rateRepo := rates.New(rates.Config{
		Gateway:   gw,
		Pivot:     cfg.Rates.Pivot,
		Secondary: secondary,
		Reporter:  reporter,
	})
	stockRepo := stocks.New(stocks.Config{
		Gateway:       gw,
		PageSize:      cfg.Stocks.PageSize,
		CacheDuration: cfg.Stocks.CacheDuration(),
		IndexSymbol:   cfg.Stocks.IndexSymbol,
		Reporter:      reporter,
	})

	log.Debug().
		Str("base_url", cfg.API.BaseURL).
		Str("cache", cfg.Cache.Backend).
		Bool("secondary", secondary != nil).
		Msg("Services initialized")

	return &services{
		store:    st,
		rates:    rateRepo,
		stocks:   stockRepo,
		dash:     dashboard.New(rateRepo, stockRepo),
		registry: reg,
	}, nil
}

// Close releases the cache store.
func (s *services) Close() error {
	return s.store.Close()
}

// accessLogPath puts access.log beside the main log file.
func accessLogPath(mainLog string) string {
	if mainLog == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(mainLog), strings.TrimSuffix(filepath.Base(mainLog), filepath.Ext(mainLog))+".access.log")
}
