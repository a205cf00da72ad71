package quote

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the category of market data a snapshot carries.
type Kind string

const (
	KindFund      Kind = "fund"
	KindCommodity Kind = "commodity"
	KindIndex     Kind = "index"
	KindNews      Kind = "news"
	KindSentiment Kind = "sentiment"
	KindSector    Kind = "sector"
)

// Payload is one decoded market-data record. Providers decode upstream JSON
// into exactly one of the concrete payload types at the boundary; nothing
// downstream works on raw maps.
type Payload interface {
	Kind() Kind
}

// FundValuation is a fund's latest net asset value.
// Values stay strings to avoid float rounding, as with prices elsewhere.
type FundValuation struct {
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name,omitempty"`
	NetValue     string    `json:"net_value"`
	DayChangePct string    `json:"day_change_pct,omitempty"`
	Currency     string    `json:"currency"`
	ValuedAt     time.Time `json:"valued_at"`
}

func (FundValuation) Kind() Kind { return KindFund }

// CommodityPrice is a spot quote for a commodity.
type CommodityPrice struct {
	Symbol   string    `json:"symbol"`
	Name     string    `json:"name,omitempty"`
	Price    string    `json:"price"`
	Currency string    `json:"currency"`
	Exchange string    `json:"exchange,omitempty"`
	QuotedAt time.Time `json:"quoted_at"`
}

func (CommodityPrice) Kind() Kind { return KindCommodity }

// IndexLevel is the current level of a market index.
type IndexLevel struct {
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name,omitempty"`
	Level        string    `json:"level"`
	DayChangePct string    `json:"day_change_pct,omitempty"`
	QuotedAt     time.Time `json:"quoted_at"`
}

func (IndexLevel) Kind() Kind { return KindIndex }

// Headline is one news item attached to a symbol.
type Headline struct {
	Title       string    `json:"title"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// NewsDigest is recent news for a symbol.
type NewsDigest struct {
	Symbol    string     `json:"symbol"`
	Headlines []Headline `json:"headlines"`
}

func (NewsDigest) Kind() Kind { return KindNews }

// SentimentScore is an aggregated market-sentiment reading for a symbol.
type SentimentScore struct {
	Symbol    string    `json:"symbol"`
	Score     float64   `json:"score"`
	Label     string    `json:"label"`
	SampledAt time.Time `json:"sampled_at"`
}

func (SentimentScore) Kind() Kind { return KindSentiment }

// SectorDetail is a sector-level summary.
type SectorDetail struct {
	Sector    string   `json:"sector"`
	ChangePct string   `json:"change_pct"`
	Leaders   []string `json:"leaders,omitempty"`
}

func (SectorDetail) Kind() Kind { return KindSector }

// Snapshot is one fetched record: a payload plus where and when it came from.
// Snapshots are idempotent; concurrent writers of the same key may race and
// the last write wins.
type Snapshot struct {
	Key       string
	Payload   Payload
	FetchedAt time.Time
}

// ParseKind validates a kind string coming from an untrusted source.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindFund, KindCommodity, KindIndex, KindNews, KindSentiment, KindSector:
		return k, nil
	default:
		return "", fmt.Errorf("unknown kind %q", s)
	}
}

// CacheKey builds the canonical cache key for a (kind, key) request.
func CacheKey(kind Kind, key string) string {
	return string(kind) + ":" + key
}

type snapshotJSON struct {
	Key       string          `json:"key"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// MarshalJSON encodes the snapshot with a kind tag so UnmarshalJSON can pick
// the concrete payload type back out.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.Payload == nil {
		return nil, fmt.Errorf("snapshot %q has no payload", s.Key)
	}
	raw, err := json.Marshal(s.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(snapshotJSON{
		Key:       s.Key,
		Kind:      s.Payload.Kind(),
		Payload:   raw,
		FetchedAt: s.FetchedAt,
	})
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var env snapshotJSON
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	payload, err := decodePayload(env.Kind, env.Payload)
	if err != nil {
		return err
	}
	s.Key = env.Key
	s.Payload = payload
	s.FetchedAt = env.FetchedAt
	return nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch kind {
	case KindFund:
		p = &FundValuation{}
	case KindCommodity:
		p = &CommodityPrice{}
	case KindIndex:
		p = &IndexLevel{}
	case KindNews:
		p = &NewsDigest{}
	case KindSentiment:
		p = &SentimentScore{}
	case KindSector:
		p = &SectorDetail{}
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}
