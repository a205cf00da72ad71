package quote

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseKind(t *testing.T) {
	for _, s := range []string{"fund", "commodity", "index", "news", "sentiment", "sector"} {
		if _, err := ParseKind(s); err != nil {
			t.Fatalf("%s should parse: %v", s, err)
		}
	}
	if _, err := ParseKind("stonks"); err == nil {
		t.Fatal("unknown kind must be rejected")
	}
}

func TestSnapshot_EnvelopeCarriesKind(t *testing.T) {
	snap := Snapshot{
		Key: "XAU",
		Payload: &CommodityPrice{
			Symbol:   "XAU",
			Price:    "2411.30",
			Currency: "USD",
		},
		FetchedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	b, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatal(err)
	}
	if string(env["kind"]) != `"commodity"` {
		t.Fatalf("envelope must be kind-tagged, got %s", env["kind"])
	}

	var got Snapshot
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	cp, ok := got.Payload.(*CommodityPrice)
	if !ok {
		t.Fatalf("payload type lost: %T", got.Payload)
	}
	if cp.Price != "2411.30" || !got.FetchedAt.Equal(snap.FetchedAt) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestSnapshot_UnknownKindRejected(t *testing.T) {
	var s Snapshot
	err := json.Unmarshal([]byte(`{"key":"X","kind":"hologram","payload":{},"fetched_at":"2026-03-01T12:00:00Z"}`), &s)
	if err == nil {
		t.Fatal("unknown kind must fail to decode")
	}
}
