package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quotefeed/internal/provider"
	"quotefeed/internal/quote"
)

// Store is the cache surface the orchestrator needs: read-through on Fetch,
// write-through on any provider success. Implemented by cache.Dual.
type Store interface {
	Get(key string) (*quote.Snapshot, string, bool)
	Set(key string, snap *quote.Snapshot, ttl time.Duration)
}

// Config tunes a Manager. Zero values get sensible defaults.
type Config struct {
	// MaxBatchConcurrency bounds the fan-out of FetchBatch.
	MaxBatchConcurrency int
	// CacheTTL overrides the store's per-tier TTL policy; 0 keeps it.
	CacheTTL time.Duration
}

// Manager walks the source registry with failover, keeps request statistics,
// and feeds fetch successes through the cache. All methods are safe for
// concurrent use.
type Manager struct {
	registry *provider.Registry
	store    Store
	health   *HealthTracker
	log      *zap.Logger
	cfg      Config

	mu       sync.Mutex
	total    uint64
	succ     uint64
	failed   uint64
	bySource map[string]*sourceCounters

	closeOnce sync.Once
	closers   []func()
}

type sourceCounters struct {
	requests  uint64
	successes uint64
	failures  uint64
	elapsed   time.Duration
}

// SourceStats is the accumulated view of one source's traffic.
type SourceStats struct {
	Requests     uint64  `json:"requests"`
	Successes    uint64  `json:"successes"`
	Failures     uint64  `json:"failures"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// Statistics is a point-in-time copy of the monotonic request counters.
// Counters reset only on process restart.
type Statistics struct {
	TotalRequests      uint64                 `json:"total_requests"`
	SuccessfulRequests uint64                 `json:"successful_requests"`
	FailedRequests     uint64                 `json:"failed_requests"`
	OverallSuccessRate float64                `json:"overall_success_rate"`
	SourceStatistics   map[string]SourceStats `json:"source_statistics"`
}

// HealthSummary aggregates the tracker's current records.
type HealthSummary struct {
	TotalSources   int                     `json:"total_sources"`
	HealthyCount   int                     `json:"healthy_count"`
	UnhealthyCount int                     `json:"unhealthy_count"`
	Sources        map[string]HealthRecord `json:"sources"`
}

func NewManager(reg *provider.Registry, store Store, health *HealthTracker, log *zap.Logger, cfg Config) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxBatchConcurrency <= 0 {
		cfg.MaxBatchConcurrency = 8
	}
	return &Manager{
		registry: reg,
		store:    store,
		health:   health,
		log:      log,
		cfg:      cfg,
		bySource: make(map[string]*sourceCounters),
	}
}

// OnClose registers a release hook run once by CloseAll.
func (m *Manager) OnClose(fn func()) {
	m.closers = append(m.closers, fn)
}

// Fetch returns the first hit for (kind, key): cache, then providers in
// priority order. All-providers-down surfaces as a failed Result carrying the
// last provider error, never as a Go error.
func (m *Manager) Fetch(ctx context.Context, kind quote.Kind, key string) Result {
	if m.store != nil {
		if snap, tier, ok := m.store.Get(quote.CacheKey(kind, key)); ok {
			m.record("cache:"+tier, true, 0)
			return success(snap, "cache:"+tier, 0)
		}
	}
	return m.fetchFresh(ctx, kind, key)
}

// FetchBatch fetches keys concurrently, always through providers, refreshing
// the cache via write-through. Output order matches input order; each key
// fails independently. A ctx deadline abandons unfinished keys as failed
// results without affecting completed ones.
func (m *Manager) FetchBatch(ctx context.Context, kind quote.Kind, keys []string) []Result {
	results := make([]Result, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxBatchConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = failure(err, "", 0)
				return nil
			}
			results[i] = m.fetchFresh(gctx, kind, key)
			return nil
		})
	}
	// Workers never return errors; failures live in the results.
	_ = g.Wait()
	return results
}

// FetchWithSource bypasses priority ordering and calls one named provider.
// Used for capability-specific data with no failover peer.
func (m *Manager) FetchWithSource(ctx context.Context, sourceName, key string) Result {
	p, ok := m.registry.ByName(sourceName)
	if !ok {
		return failure(fmt.Errorf("unknown provider %q", sourceName), sourceName, 0)
	}
	return m.call(ctx, p, key)
}

func (m *Manager) fetchFresh(ctx context.Context, kind quote.Kind, key string) Result {
	providers := m.registry.ForKind(kind)
	if len(providers) == 0 {
		return failure(fmt.Errorf("no providers registered for %q", kind), "", 0)
	}

	var last Result
	for _, p := range providers {
		res := m.call(ctx, p, key)
		if res.Success {
			return res
		}
		last = res
		if ctx.Err() != nil {
			break
		}
		m.log.Debug("provider failed, trying next",
			zap.String("kind", string(kind)),
			zap.String("key", key),
			zap.String("source", p.Name()),
			zap.String("error", res.Err))
	}
	return last
}

// call runs exactly one provider fetch, converts panics and errors into a
// failed Result, records statistics, and writes successes through the cache.
func (m *Manager) call(ctx context.Context, p provider.Provider, key string) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			elapsed := time.Since(start)
			m.record(p.Name(), false, elapsed)
			m.log.Error("provider panicked", zap.String("source", p.Name()), zap.Any("panic", r))
			res = failure(fmt.Errorf("provider %s panicked: %v", p.Name(), r), p.Name(), elapsed)
		}
	}()

	snap, err := p.Fetch(ctx, key)
	elapsed := time.Since(start)
	if err != nil {
		m.record(p.Name(), false, elapsed)
		return failure(err, p.Name(), elapsed)
	}
	if snap == nil || snap.Payload == nil {
		m.record(p.Name(), false, elapsed)
		return failure(errors.New("provider returned empty snapshot"), p.Name(), elapsed)
	}

	m.record(p.Name(), true, elapsed)
	if m.store != nil {
		m.store.Set(quote.CacheKey(snap.Payload.Kind(), key), snap, m.cfg.CacheTTL)
	}
	return success(snap, p.Name(), elapsed)
}

func (m *Manager) record(source string, ok bool, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	if ok {
		m.succ++
	} else {
		m.failed++
	}
	sc := m.bySource[source]
	if sc == nil {
		sc = &sourceCounters{}
		m.bySource[source] = sc
	}
	sc.requests++
	if ok {
		sc.successes++
	} else {
		sc.failures++
	}
	sc.elapsed += elapsed
}

// Statistics returns a snapshot of the accumulated counters.
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Statistics{
		TotalRequests:      m.total,
		SuccessfulRequests: m.succ,
		FailedRequests:     m.failed,
		SourceStatistics:   make(map[string]SourceStats, len(m.bySource)),
	}
	if m.total > 0 {
		out.OverallSuccessRate = float64(m.succ) / float64(m.total)
	}
	for name, sc := range m.bySource {
		avg := 0.0
		if sc.requests > 0 {
			avg = float64(sc.elapsed) / float64(sc.requests) / float64(time.Millisecond)
		}
		out.SourceStatistics[name] = SourceStats{
			Requests:     sc.requests,
			Successes:    sc.successes,
			Failures:     sc.failures,
			AvgLatencyMS: avg,
		}
	}
	return out
}

// HealthCheck returns the tracker's current state. It forces a probe only if
// no probe has ever run.
func (m *Manager) HealthCheck(ctx context.Context) HealthSummary {
	if m.health == nil {
		return HealthSummary{Sources: map[string]HealthRecord{}}
	}
	if !m.health.Probed() {
		m.health.ProbeAll(ctx)
	}
	records := m.health.Snapshot()
	out := HealthSummary{
		TotalSources: len(records),
		Sources:      records,
	}
	for _, rec := range records {
		if rec.Status == StatusUnhealthy {
			out.UnhealthyCount++
		} else {
			out.HealthyCount++
		}
	}
	return out
}

// StartBackgroundHealthCheck probes once immediately, then keeps probing on
// the interval until CloseAll. Idempotent.
func (m *Manager) StartBackgroundHealthCheck(ctx context.Context, interval time.Duration) {
	if m.health != nil {
		m.health.Start(ctx, interval)
	}
}

// ListSources returns registered provider names in stable order.
func (m *Manager) ListSources() []string {
	return m.registry.Names()
}

// CloseAll stops the health loop and releases provider-held network
// resources. Safe to call more than once.
func (m *Manager) CloseAll() {
	m.closeOnce.Do(func() {
		if m.health != nil {
			m.health.Stop()
		}
		for _, fn := range m.closers {
			fn()
		}
	})
}
