package fetch

import (
	"context"
	"testing"
	"time"

	"quotefeed/internal/quote"
)

func TestHealthTracker_ProbeClassification(t *testing.T) {
	fast := succeeding("Fast")
	slow := succeeding("Slow")
	slow.delay = 30 * time.Millisecond
	down := failing("Down")
	unprobed := succeeding("NoKey")

	reg := newRegistry(t, quote.KindFund, fast, slow, down, unprobed)
	tr := NewHealthTracker(reg, map[string]string{
		"Fast": "VWRL",
		"Slow": "VWRL",
		"Down": "VWRL",
	}, nil)
	tr.degradedAfter = 10 * time.Millisecond

	tr.ProbeAll(context.Background())

	recs := tr.Snapshot()
	if recs["Fast"].Status != StatusHealthy {
		t.Fatalf("fast provider: %+v", recs["Fast"])
	}
	if recs["Fast"].ResponseTimeMS == nil {
		t.Fatal("healthy probe must record latency")
	}
	if recs["Slow"].Status != StatusDegraded {
		t.Fatalf("slow provider: %+v", recs["Slow"])
	}
	if recs["Down"].Status != StatusUnhealthy {
		t.Fatalf("down provider: %+v", recs["Down"])
	}
	if recs["Down"].ResponseTimeMS != nil {
		t.Fatal("failed probe must not record latency")
	}
	// no probe key means we cannot attest health
	if recs["NoKey"].Status != StatusUnhealthy {
		t.Fatalf("unprobed provider: %+v", recs["NoKey"])
	}
}

func TestHealthTracker_RecordsOverwriteOnReprobe(t *testing.T) {
	flaky := &fakeProvider{name: "Flaky"}
	fail := true
	flaky.fetch = func(_ context.Context, key string) (*quote.Snapshot, error) {
		if fail {
			return nil, context.DeadlineExceeded
		}
		return fundSnap(key), nil
	}

	reg := newRegistry(t, quote.KindFund, flaky)
	tr := NewHealthTracker(reg, map[string]string{"Flaky": "VWRL"}, nil)

	tr.ProbeAll(context.Background())
	if tr.Snapshot()["Flaky"].Status != StatusUnhealthy {
		t.Fatal("first probe should be unhealthy")
	}

	fail = false
	tr.ProbeAll(context.Background())
	if tr.Snapshot()["Flaky"].Status != StatusHealthy {
		t.Fatal("recovery must overwrite the record")
	}
}

func TestManager_HealthCheckProbesOnlyWhenNeverProbed(t *testing.T) {
	p := succeeding("Primary")
	reg := newRegistry(t, quote.KindFund, p)
	tr := NewHealthTracker(reg, map[string]string{"Primary": "VWRL"}, nil)
	m := NewManager(reg, nil, tr, nil, Config{})

	sum := m.HealthCheck(context.Background())
	if sum.TotalSources != 1 || sum.HealthyCount != 1 || sum.UnhealthyCount != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if p.calls.Load() != 1 {
		t.Fatalf("want one probe, got %d", p.calls.Load())
	}

	// the next check reuses the stored records
	m.HealthCheck(context.Background())
	if p.calls.Load() != 1 {
		t.Fatalf("second check must not reprobe, got %d calls", p.calls.Load())
	}
}

func TestHealthTracker_StartStopIdempotent(t *testing.T) {
	reg := newRegistry(t, quote.KindFund, succeeding("Primary"))
	tr := NewHealthTracker(reg, map[string]string{"Primary": "VWRL"}, nil)

	tr.Start(context.Background(), time.Hour)
	tr.Start(context.Background(), time.Hour)
	if !tr.Probed() {
		t.Fatal("start must probe synchronously")
	}
	tr.Stop()
	tr.Stop()
}
