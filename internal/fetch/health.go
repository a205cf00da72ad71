package fetch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"quotefeed/internal/provider"
)

// Status classifies a provider's last probe outcome.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// HealthRecord is the last probe outcome for one provider. One record per
// registered provider, overwritten on each probe.
type HealthRecord struct {
	Source         string    `json:"source"`
	Status         Status    `json:"status"`
	ResponseTimeMS *float64  `json:"response_time_ms"`
	LastChecked    time.Time `json:"last_checked"`
}

// HealthTracker probes registered providers and keeps one record per source.
type HealthTracker struct {
	registry *provider.Registry
	// probeKeys maps provider name to a known-good key to probe with.
	// Providers without a probe key are recorded unhealthy until given one.
	probeKeys     map[string]string
	probeTimeout  time.Duration
	degradedAfter time.Duration
	log           *zap.Logger

	mu      sync.Mutex
	records map[string]HealthRecord
	probed  bool

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHealthTracker(reg *provider.Registry, probeKeys map[string]string, log *zap.Logger) *HealthTracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &HealthTracker{
		registry:      reg,
		probeKeys:     probeKeys,
		probeTimeout:  5 * time.Second,
		degradedAfter: 2 * time.Second,
		log:           log,
		records:       make(map[string]HealthRecord),
	}
}

// ProbeAll probes every registered provider once, sequentially, and records
// status and latency. A probe failure never propagates; it lands in the record.
func (t *HealthTracker) ProbeAll(ctx context.Context) {
	for _, p := range t.registry.All() {
		rec := t.probe(ctx, p)
		t.mu.Lock()
		t.records[p.Name()] = rec
		t.probed = true
		t.mu.Unlock()
	}
}

func (t *HealthTracker) probe(ctx context.Context, p provider.Provider) HealthRecord {
	now := time.Now().UTC()
	key, ok := t.probeKeys[p.Name()]
	if !ok {
		return HealthRecord{Source: p.Name(), Status: StatusUnhealthy, LastChecked: now}
	}

	probeCtx, cancel := context.WithTimeout(ctx, t.probeTimeout)
	defer cancel()

	start := time.Now()
	_, err := p.Fetch(probeCtx, key)
	elapsed := time.Since(start)
	ms := float64(elapsed) / float64(time.Millisecond)

	rec := HealthRecord{Source: p.Name(), ResponseTimeMS: &ms, LastChecked: now}
	switch {
	case err != nil:
		rec.Status = StatusUnhealthy
		rec.ResponseTimeMS = nil
		t.log.Debug("health probe failed", zap.String("source", p.Name()), zap.Error(err))
	case elapsed >= t.degradedAfter:
		rec.Status = StatusDegraded
	default:
		rec.Status = StatusHealthy
	}
	return rec
}

// Probed reports whether any probe has ever run.
func (t *HealthTracker) Probed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.probed
}

// Snapshot returns a copy of the current records.
func (t *HealthTracker) Snapshot() map[string]HealthRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]HealthRecord, len(t.records))
	for k, v := range t.records {
		out[k] = v
	}
	return out
}

// Start launches the recurring probe loop. It probes once synchronously so
// health data is available to the first caller, then repeats every interval
// until Stop. Calling Start twice is a no-op.
func (t *HealthTracker) Start(ctx context.Context, interval time.Duration) {
	t.loopMu.Lock()
	defer t.loopMu.Unlock()
	if t.cancel != nil {
		return
	}

	t.ProbeAll(ctx)

	loopCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				t.ProbeAll(loopCtx)
			}
		}
	}()
}

// Stop cancels the probe loop and waits for it to exit. Idempotent.
func (t *HealthTracker) Stop() {
	t.loopMu.Lock()
	defer t.loopMu.Unlock()
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
	t.cancel = nil
	t.done = nil
}
