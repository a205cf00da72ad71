package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"quotefeed/internal/fetch"
	"quotefeed/internal/quote"
)

// BatchFetcher is the orchestrator surface the warmer needs.
type BatchFetcher interface {
	FetchBatch(ctx context.Context, kind quote.Kind, keys []string) []fetch.Result
}

// WatchItem is one entry of the warm-up watch list.
type WatchItem struct {
	Kind quote.Kind
	Key  string
}

// Warmer keeps the cache hot: a one-time startup preload of every valid L2
// record into L1 (no provider contact), and a periodic watch-list refresh
// through the orchestrator, whose write-through persists the results.
type Warmer struct {
	dual    *Dual
	fetcher BatchFetcher
	watch   []WatchItem
	timeout time.Duration
	log     *zap.Logger

	loadOnce sync.Once
	loaded   bool

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWarmer(dual *Dual, fetcher BatchFetcher, watch []WatchItem, timeout time.Duration, log *zap.Logger) *Warmer {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Warmer{dual: dual, fetcher: fetcher, watch: watch, timeout: timeout, log: log}
}

// PreloadAll loads every valid L2 record into L1 with its remaining TTL,
// skipping corrupt files, so first-request latency is near zero after a
// restart. The loaded flag is set exactly once regardless of outcome.
// Returns the number of entries loaded.
func (w *Warmer) PreloadAll(ctx context.Context) int {
	loaded := 0
	w.loadOnce.Do(func() {
		defer func() { w.loaded = true }()
		for _, ent := range w.dual.File().Entries() {
			if ctx.Err() != nil {
				return
			}
			ttl := time.Until(ent.ExpiresAt)
			if ttl <= 0 {
				continue
			}
			w.dual.Memory().Set(ent.Key, ent.Snapshot, ttl)
			loaded++
		}
		w.log.Info("cache preloaded", zap.Int("entries", loaded))
	})
	return loaded
}

// Loaded reports whether the startup preload has run.
func (w *Warmer) Loaded() bool { return w.loaded }

// Warmup refreshes the watch list through the orchestrator, bounded by the
// configured overall timeout. A timeout abandons the pass quietly; whatever
// fetches completed before the cutoff are already cache-written.
func (w *Warmer) Warmup(ctx context.Context) {
	if len(w.watch) == 0 || w.fetcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	byKind := make(map[quote.Kind][]string)
	for _, item := range w.watch {
		byKind[item.Kind] = append(byKind[item.Kind], item.Key)
	}

	refreshed, failed := 0, 0
	for kind, keys := range byKind {
		if ctx.Err() != nil {
			break
		}
		for _, res := range w.fetcher.FetchBatch(ctx, kind, keys) {
			if res.Success {
				refreshed++
			} else {
				failed++
			}
		}
	}
	if err := ctx.Err(); err != nil {
		w.log.Warn("warmup cut short", zap.Error(err), zap.Int("refreshed", refreshed))
		return
	}
	w.log.Debug("warmup pass done", zap.Int("refreshed", refreshed), zap.Int("failed", failed))
}

// StartBackground runs Warmup once immediately, then on every interval until
// Stop. At most one loop runs; a second Start is a no-op.
func (w *Warmer) StartBackground(ctx context.Context, interval time.Duration) {
	w.loopMu.Lock()
	defer w.loopMu.Unlock()
	if w.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		w.Warmup(loopCtx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				w.Warmup(loopCtx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight pass to settle.
// Idempotent and safe when not running.
func (w *Warmer) Stop() {
	w.loopMu.Lock()
	defer w.loopMu.Unlock()
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
	w.done = nil
}
