package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"quotefeed/internal/cache"
	"quotefeed/internal/config"
	"quotefeed/internal/fetch"
	"quotefeed/internal/httpx"
	"quotefeed/internal/hub"
	"quotefeed/internal/provider"
	"quotefeed/internal/provider/finbridge"
	"quotefeed/internal/provider/fundgate"
	"quotefeed/internal/provider/metalprice"
	"quotefeed/internal/provider/newswire"
	"quotefeed/internal/provider/ratelimit"
	"quotefeed/internal/quote"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		panic(err)
	}

	log := newLogger()
	defer func() { _ = log.Sync() }()

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	reg := provider.NewRegistry()
	registerProviders(cfg, httpClient, reg, log)

	mem := cache.NewMemory(cfg.Cache.MemoryMaxItems)
	file, err := cache.NewFile(filepath.Join(cfg.Cache.Dir, "quotes"), log)
	if err != nil {
		log.Fatal("file cache", zap.Error(err))
	}
	dual := cache.NewDual(mem, file, cache.DualConfig{
		MemoryTTL: time.Duration(cfg.Cache.MemoryTTLSec) * time.Second,
		FileTTL:   time.Duration(cfg.Cache.FileTTLSec) * time.Second,
	}, log)

	tracker := fetch.NewHealthTracker(reg, cfg.Health.ProbeKeys, log)
	mgr := fetch.NewManager(reg, dual, tracker, log, fetch.Config{})
	mgr.OnClose(httpClient.CloseIdle)

	h := hub.New(hub.Config{
		MaxConnections:    cfg.Hub.MaxConnections,
		HeartbeatInterval: time.Duration(cfg.Hub.HeartbeatIntervalSec) * time.Second,
		HeartbeatTimeout:  time.Duration(cfg.Hub.HeartbeatTimeoutSec) * time.Second,
	}, log)

	warmer := cache.NewWarmer(dual, &pushFetcher{mgr: mgr, hub: h}, parseWatchList(cfg.Warmup.WatchList, log),
		time.Duration(cfg.Warmup.TimeoutSec)*time.Second, log)
	cleaner := cache.NewCleaner(
		[]cache.NamedFile{{Name: "quotes", Cache: file}},
		mem,
		time.Duration(cfg.Cache.RetentionHours)*time.Hour,
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanup := cleaner.CleanupOnStartup(ctx)
	log.Info("startup cleanup", zap.Any("categories", cleanup.Categories), zap.Strings("errors", cleanup.Errors))
	log.Info("cache preload", zap.Int("loaded", warmer.PreloadAll(ctx)))

	mgr.StartBackgroundHealthCheck(ctx, time.Duration(cfg.Health.IntervalSec)*time.Second)
	warmer.StartBackground(ctx, time.Duration(cfg.Warmup.IntervalSec)*time.Second)
	cleaner.StartBackground(ctx, time.Duration(cfg.Cache.CleanupIntervalSec)*time.Second)
	h.StartHeartbeat(ctx)

	a := &api{mgr: mgr, dual: dual, hub: h, log: log}
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // websocket connections outlive any write deadline
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	warmer.Stop()
	cleaner.Stop()
	h.Shutdown()
	mgr.CloseAll()
}

func newLogger() *zap.Logger {
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		log, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return log
	}
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return log
}

func registerProviders(cfg config.Config, hc *httpx.Client, reg *provider.Registry, log *zap.Logger) {
	register := func(kind quote.Kind, p provider.Provider) {
		if err := reg.Register(kind, p); err != nil {
			log.Fatal("register provider", zap.String("name", p.Name()), zap.Error(err))
		}
	}

	if cfg.FundGate.Enabled {
		if cfg.FundGate.APIKey == "" {
			log.Warn("fundgate.enabled=true but FUNDGATE_API_KEY not set; skipping")
		} else {
			opts := []fundgate.Option{fundgate.WithHTTPClient(hc.HTTP)}
			if cfg.FundGate.BaseURL != "" {
				u, err := url.Parse(cfg.FundGate.BaseURL)
				if err != nil {
					log.Fatal("fundgate base url", zap.Error(err))
				}
				opts = append(opts, fundgate.WithBaseURL(u))
			}
			client, err := fundgate.NewClient(cfg.FundGate.APIKey, opts...)
			if err != nil {
				log.Fatal("fundgate client", zap.Error(err))
			}
			p := fundgate.New(fundgate.Config{Currency: cfg.FundGate.Currency}, client)
			register(quote.KindFund, withLimits(p, cfg.FundGate.ProviderLimits))
		}
	}

	if cfg.MetalPrice.Enabled {
		p := metalprice.New(metalprice.Config{
			URL:      cfg.MetalPrice.Endpoint,
			APIKey:   cfg.MetalPrice.APIKey,
			Currency: cfg.MetalPrice.Currency,
		}, hc)
		register(quote.KindCommodity, withLimits(p, cfg.MetalPrice.ProviderLimits))
	}

	if cfg.FinBridge.Enabled {
		for _, kind := range []quote.Kind{quote.KindFund, quote.KindCommodity, quote.KindIndex} {
			p, err := finbridge.New(finbridge.Config{
				BaseURL:  cfg.FinBridge.BaseURL,
				APIKey:   cfg.FinBridge.APIKey,
				Kind:     kind,
				Currency: cfg.FinBridge.Currency,
			}, hc)
			if err != nil {
				log.Fatal("finbridge", zap.Error(err))
			}
			register(kind, withLimits(p, cfg.FinBridge.ProviderLimits))
		}
	}

	if cfg.Newswire.Enabled {
		for _, kind := range []quote.Kind{quote.KindNews, quote.KindSentiment, quote.KindSector} {
			p, err := newswire.New(newswire.Config{
				BaseURL:      cfg.Newswire.BaseURL,
				APIKey:       cfg.Newswire.APIKey,
				Kind:         kind,
				MaxHeadlines: cfg.Newswire.MaxHeadlines,
			}, hc)
			if err != nil {
				log.Fatal("newswire", zap.Error(err))
			}
			register(kind, withLimits(p, cfg.Newswire.ProviderLimits))
		}
	}

	if len(reg.Names()) == 0 {
		log.Warn("no providers enabled; only cached data will be served")
	}
}

// withLimits prefers a token bucket with burst when RPM is set, otherwise a
// minimum interval between calls.
func withLimits(p provider.Provider, l config.ProviderLimits) provider.Provider {
	if l.MaxRequestsPerMinute > 0 {
		burst := l.Burst
		if burst <= 0 {
			burst = 1
		}
		return &ratelimit.TokenBucketProvider{P: p, TB: ratelimit.NewTokenBucket(float64(l.MaxRequestsPerMinute)/60.0, burst)}
	}
	if l.MinRequestIntervalSec > 0 {
		return &ratelimit.MinInterval{P: p, Interval: time.Duration(l.MinRequestIntervalSec) * time.Second}
	}
	return p
}

// parseWatchList turns "kind:key" config entries into watch items, dropping
// malformed ones with a warning.
func parseWatchList(entries []string, log *zap.Logger) []cache.WatchItem {
	items := make([]cache.WatchItem, 0, len(entries))
	for _, e := range entries {
		kindStr, key, ok := strings.Cut(e, ":")
		if !ok || key == "" {
			log.Warn("invalid watch list entry", zap.String("entry", e))
			continue
		}
		kind, err := quote.ParseKind(kindStr)
		if err != nil {
			log.Warn("invalid watch list entry", zap.String("entry", e), zap.Error(err))
			continue
		}
		items = append(items, cache.WatchItem{Kind: kind, Key: key})
	}
	return items
}
