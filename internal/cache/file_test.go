package cache

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"quotefeed/internal/quote"
)

func newFileCache(t *testing.T) *File {
	t.Helper()
	f, err := NewFile(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new file cache: %v", err)
	}
	return f
}

func TestFile_SetGetRoundTrip(t *testing.T) {
	f := newFileCache(t)
	snap := &quote.Snapshot{
		Key: "XAU",
		Payload: quote.CommodityPrice{
			Symbol:   "XAU",
			Price:    "2411.30",
			Currency: "USD",
			Exchange: "COMEX",
		},
		FetchedAt: time.Now().UTC().Truncate(time.Second),
	}
	f.Set("commodity:XAU", snap, time.Minute)

	got, expiresAt, ok := f.Get("commodity:XAU")
	if !ok {
		t.Fatal("want hit")
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expiry should be in the future, got %v", expiresAt)
	}
	cp, isCommodity := got.Payload.(*quote.CommodityPrice)
	if !isCommodity {
		t.Fatalf("payload kind lost across the disk round trip: %T", got.Payload)
	}
	if cp.Price != "2411.30" || cp.Exchange != "COMEX" {
		t.Fatalf("unexpected payload: %+v", cp)
	}
}

func TestFile_ExpiredRecordDeletedOnRead(t *testing.T) {
	f := newFileCache(t)
	f.Set("fund:VWRL", makeSnap("VWRL"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, _, ok := f.Get("fund:VWRL"); ok {
		t.Fatal("expired record must be a miss")
	}
	if st := f.Stats(); st.Total != 0 {
		t.Fatalf("expired file should be removed on read, stats: %+v", st)
	}
}

func TestFile_CorruptFileIsMiss(t *testing.T) {
	f := newFileCache(t)
	f.Set("fund:VWRL", makeSnap("VWRL"), time.Minute)
	if err := os.WriteFile(f.path("fund:VWRL"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, ok := f.Get("fund:VWRL"); ok {
		t.Fatal("corrupt record must be a miss")
	}
	// corrupt files survive reads; only maintenance removes them
	if st := f.Stats(); st.Total != 1 || st.Valid != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if got := f.SweepExpired(); got != 1 {
		t.Fatalf("sweep should remove the corrupt file, removed %d", got)
	}
}

func TestFile_EntriesSkipsExpiredAndCorrupt(t *testing.T) {
	f := newFileCache(t)
	f.Set("fund:A", makeSnap("A"), time.Minute)
	f.Set("fund:B", makeSnap("B"), 10*time.Millisecond)
	f.Set("fund:C", makeSnap("C"), time.Minute)
	if err := os.WriteFile(f.path("fund:C"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	entries := f.Entries()
	if len(entries) != 1 {
		t.Fatalf("want 1 valid entry, got %d", len(entries))
	}
	if entries[0].Key != "fund:A" || entries[0].Snapshot.Key != "A" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestFile_DeleteOlderThan(t *testing.T) {
	f := newFileCache(t)
	f.Set("fund:OLD", makeSnap("OLD"), time.Hour)
	f.Set("fund:NEW", makeSnap("NEW"), time.Hour)

	// age the first record by rewriting its created_at
	rec, err := f.readRecord(f.path("fund:OLD"))
	if err != nil {
		t.Fatal(err)
	}
	rec.CreatedAt = time.Now().Add(-48 * time.Hour)
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.path("fund:OLD"), b, 0o644); err != nil {
		t.Fatal(err)
	}

	if got := f.DeleteOlderThan(time.Now().Add(-24 * time.Hour)); got != 1 {
		t.Fatalf("want 1 removed, got %d", got)
	}
	if _, _, ok := f.Get("fund:NEW"); !ok {
		t.Fatal("recent record must survive retention")
	}
	if _, _, ok := f.Get("fund:OLD"); ok {
		t.Fatal("aged record must be gone")
	}
}

func TestFile_Clear(t *testing.T) {
	f := newFileCache(t)
	f.Set("fund:A", makeSnap("A"), time.Minute)
	f.Set("fund:B", makeSnap("B"), time.Minute)

	f.Clear()
	if st := f.Stats(); st.Total != 0 {
		t.Fatalf("want empty dir after clear, stats: %+v", st)
	}
}
