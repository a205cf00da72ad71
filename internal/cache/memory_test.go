package cache

import (
	"fmt"
	"testing"
	"time"

	"quotefeed/internal/quote"
)

func makeSnap(key string) *quote.Snapshot {
	return &quote.Snapshot{
		Key: key,
		Payload: quote.FundValuation{
			Symbol:       key,
			NetValue:     "101.50",
			DayChangePct: "0.25",
			Currency:     "USD",
		},
		FetchedAt: time.Now().UTC(),
	}
}

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory(10)
	m.Set("fund:VWRL", makeSnap("VWRL"), time.Minute)

	got, ok := m.Get("fund:VWRL")
	if !ok {
		t.Fatal("want hit")
	}
	if got.Key != "VWRL" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if _, ok := m.Get("fund:MISSING"); ok {
		t.Fatal("want miss for unknown key")
	}
}

func TestMemory_ExpiredEntryIsNeverServed(t *testing.T) {
	m := NewMemory(10)
	m.Set("fund:VWRL", makeSnap("VWRL"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok := m.Get("fund:VWRL"); ok {
		t.Fatal("expired entry must be a miss")
	}
	// lazy expiry removes the entry on read
	if n := m.Len(); n != 0 {
		t.Fatalf("want 0 entries after expired read, got %d", n)
	}
}

func TestMemory_ZeroTTLIsNoop(t *testing.T) {
	m := NewMemory(10)
	m.Set("fund:VWRL", makeSnap("VWRL"), 0)
	if n := m.Len(); n != 0 {
		t.Fatalf("zero TTL must not store, got %d entries", n)
	}
}

func TestMemory_LRUEvictionIndependentOfTTL(t *testing.T) {
	m := NewMemory(3)
	// all entries far from expiry; eviction must still trigger on size
	m.Set("a", makeSnap("a"), time.Hour)
	m.Set("b", makeSnap("b"), time.Hour)
	m.Set("c", makeSnap("c"), time.Hour)

	// touch "a" so "b" becomes least recently used
	if _, ok := m.Get("a"); !ok {
		t.Fatal("want hit for a")
	}
	m.Set("d", makeSnap("d"), time.Hour)

	if _, ok := m.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := m.Get(k); !ok {
			t.Fatalf("want %s to survive eviction", k)
		}
	}
	if n := m.Len(); n != 3 {
		t.Fatalf("want size bound 3, got %d", n)
	}
}

func TestMemory_SizeNeverExceedsBound(t *testing.T) {
	m := NewMemory(5)
	for i := 0; i < 50; i++ {
		m.Set(fmt.Sprintf("k%d", i), makeSnap("x"), time.Hour)
		if n := m.Len(); n > 5 {
			t.Fatalf("size %d exceeds bound after insert %d", n, i)
		}
	}
}

func TestMemory_UpdateExistingDoesNotEvict(t *testing.T) {
	m := NewMemory(2)
	m.Set("a", makeSnap("a"), time.Hour)
	m.Set("b", makeSnap("b"), time.Hour)
	// updating "a" refreshes it in place; nothing should be evicted
	m.Set("a", makeSnap("a2"), time.Hour)

	if n := m.Len(); n != 2 {
		t.Fatalf("want 2 entries, got %d", n)
	}
	got, ok := m.Get("a")
	if !ok || got.Key != "a2" {
		t.Fatalf("want updated value, got %+v ok=%v", got, ok)
	}
	// "a" was just written, so a new insert evicts "b"
	m.Set("c", makeSnap("c"), time.Hour)
	if _, ok := m.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
}

func TestMemory_PurgeExpired(t *testing.T) {
	m := NewMemory(10)
	m.Set("old", makeSnap("old"), 10*time.Millisecond)
	m.Set("fresh", makeSnap("fresh"), time.Hour)
	time.Sleep(20 * time.Millisecond)

	if n := m.PurgeExpired(); n != 1 {
		t.Fatalf("want 1 purged, got %d", n)
	}
	if _, ok := m.Get("fresh"); !ok {
		t.Fatal("fresh entry must survive the purge")
	}
}

func TestMemory_DeleteAndClear(t *testing.T) {
	m := NewMemory(10)
	m.Set("a", makeSnap("a"), time.Hour)
	m.Set("b", makeSnap("b"), time.Hour)

	m.Delete("a")
	if _, ok := m.Get("a"); ok {
		t.Fatal("deleted key must be a miss")
	}
	m.Clear()
	if n := m.Len(); n != 0 {
		t.Fatalf("want empty after clear, got %d", n)
	}
}
