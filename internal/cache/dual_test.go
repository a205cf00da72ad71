package cache

import (
	"testing"
	"time"
)

func newDualCache(t *testing.T, memTTL, fileTTL time.Duration) *Dual {
	t.Helper()
	return NewDual(NewMemory(100), newFileCache(t), DualConfig{MemoryTTL: memTTL, FileTTL: fileTTL}, nil)
}

func TestDual_WriteThroughServesFromMemory(t *testing.T) {
	d := newDualCache(t, time.Minute, 5*time.Minute)
	d.Set("fund:VWRL", makeSnap("VWRL"), 0)

	got, tier, ok := d.Get("fund:VWRL")
	if !ok || tier != TierMemory {
		t.Fatalf("want memory hit, got tier=%q ok=%v", tier, ok)
	}
	if got.Key != "VWRL" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestDual_FileHitRefillsMemory(t *testing.T) {
	d := newDualCache(t, time.Minute, 5*time.Minute)
	// entry exists on disk only, as after a restart
	d.File().Set("fund:VWRL", makeSnap("VWRL"), 5*time.Minute)

	_, tier, ok := d.Get("fund:VWRL")
	if !ok || tier != TierFile {
		t.Fatalf("want file hit first, got tier=%q ok=%v", tier, ok)
	}
	_, tier, ok = d.Get("fund:VWRL")
	if !ok || tier != TierMemory {
		t.Fatalf("want memory hit after refill, got tier=%q ok=%v", tier, ok)
	}
}

func TestDual_RefillTTLBoundedByRemainder(t *testing.T) {
	d := newDualCache(t, time.Minute, 5*time.Minute)
	// the L2 record expires well before the L1 default, so the refill must
	// not outlive it
	d.File().Set("fund:VWRL", makeSnap("VWRL"), 30*time.Millisecond)

	if _, tier, ok := d.Get("fund:VWRL"); !ok || tier != TierFile {
		t.Fatalf("want file hit, got tier=%q ok=%v", tier, ok)
	}
	time.Sleep(50 * time.Millisecond)
	if _, _, ok := d.Get("fund:VWRL"); ok {
		t.Fatal("refilled entry must not outlive the file record")
	}
}

func TestDual_MemoryExpiryFallsBackToFile(t *testing.T) {
	d := newDualCache(t, 20*time.Millisecond, 5*time.Minute)
	d.Set("fund:VWRL", makeSnap("VWRL"), 0)
	time.Sleep(40 * time.Millisecond)

	_, tier, ok := d.Get("fund:VWRL")
	if !ok || tier != TierFile {
		t.Fatalf("want file fallback after L1 expiry, got tier=%q ok=%v", tier, ok)
	}
}

func TestDual_ExplicitTTLOverridesBothTiers(t *testing.T) {
	d := newDualCache(t, time.Minute, 5*time.Minute)
	d.Set("fund:VWRL", makeSnap("VWRL"), 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	if _, _, ok := d.Get("fund:VWRL"); ok {
		t.Fatal("override TTL should expire both tiers")
	}
}

func TestDual_DeleteRemovesBothTiers(t *testing.T) {
	d := newDualCache(t, time.Minute, 5*time.Minute)
	d.Set("fund:VWRL", makeSnap("VWRL"), 0)

	d.Delete("fund:VWRL")
	if _, _, ok := d.Get("fund:VWRL"); ok {
		t.Fatal("deleted key must miss in both tiers")
	}
	if st := d.Stats(); st.MemoryCacheSize != 0 || st.FileCacheTotal != 0 {
		t.Fatalf("unexpected stats after delete: %+v", st)
	}
}

func TestDual_Stats(t *testing.T) {
	d := newDualCache(t, time.Minute, 5*time.Minute)
	d.Set("fund:A", makeSnap("A"), 0)
	d.Set("fund:B", makeSnap("B"), 0)

	st := d.Stats()
	if st.MemoryCacheSize != 2 || st.FileCacheTotal != 2 || st.FileCacheValid != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.FileCacheSizeBytes <= 0 {
		t.Fatalf("want positive size, got %d", st.FileCacheSizeBytes)
	}
}
