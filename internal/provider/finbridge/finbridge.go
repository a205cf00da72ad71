// Package finbridge fetches fund, commodity and index quotes from the
// FinBridge aggregator API. One Provider instance serves one feed; it is the
// failover peer behind the specialized providers.
package finbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"quotefeed/internal/httpx"
	"quotefeed/internal/quote"
)

type Config struct {
	// Name must be unique per feed instance, e.g. "FinBridge-fund".
	Name     string
	BaseURL  string
	APIKey   string
	Kind     quote.Kind // fund, commodity or index
	Currency string
}

type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) (*Provider, error) {
	switch cfg.Kind {
	case quote.KindFund, quote.KindCommodity, quote.KindIndex:
	default:
		return nil, fmt.Errorf("finbridge: unsupported feed %q", cfg.Kind)
	}
	if cfg.Name == "" {
		cfg.Name = "FinBridge-" + string(cfg.Kind)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://data.finbridge.net"
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Provider{cfg: cfg, client: hc}, nil
}

func (p *Provider) Name() string { return p.cfg.Name }

// All feeds share one envelope; only the quote block differs.
type apiResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Quote  struct {
		Symbol    string      `json:"symbol"`
		Name      string      `json:"name"`
		Value     json.Number `json:"value"`
		ChangePct json.Number `json:"change_pct"`
		Currency  string      `json:"currency"`
		Exchange  string      `json:"exchange"`
		Timestamp int64       `json:"timestamp"`
	} `json:"quote"`
}

func (p *Provider) Fetch(ctx context.Context, key string) (*quote.Snapshot, error) {
	u, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("finbridge: base url: %w", err)
	}
	u = u.JoinPath("v2", string(p.cfg.Kind), key)
	q := u.Query()
	q.Set("currency", p.cfg.Currency)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", p.cfg.APIKey)
	}

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("finbridge: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, fmt.Errorf("finbridge: GET %s -> %d: %s", u, resp.StatusCode, string(b))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var api apiResponse
	if err := dec.Decode(&api); err != nil {
		return nil, fmt.Errorf("finbridge: decode: %w", err)
	}
	if api.Status != "ok" {
		return nil, fmt.Errorf("finbridge: api error: %s", api.Error)
	}
	value := api.Quote.Value.String()
	if value == "" || value == "0" {
		return nil, fmt.Errorf("finbridge: no %s quote for %q", p.cfg.Kind, key)
	}

	currency := api.Quote.Currency
	if currency == "" {
		currency = p.cfg.Currency
	}
	quotedAt := time.Now().UTC()
	if api.Quote.Timestamp > 0 {
		quotedAt = time.Unix(api.Quote.Timestamp, 0).UTC()
	}

	var payload quote.Payload
	switch p.cfg.Kind {
	case quote.KindFund:
		payload = &quote.FundValuation{
			Symbol:       key,
			Name:         api.Quote.Name,
			NetValue:     value,
			DayChangePct: api.Quote.ChangePct.String(),
			Currency:     currency,
			ValuedAt:     quotedAt,
		}
	case quote.KindCommodity:
		payload = &quote.CommodityPrice{
			Symbol:   key,
			Name:     api.Quote.Name,
			Price:    value,
			Currency: currency,
			Exchange: api.Quote.Exchange,
			QuotedAt: quotedAt,
		}
	case quote.KindIndex:
		payload = &quote.IndexLevel{
			Symbol:       key,
			Name:         api.Quote.Name,
			Level:        value,
			DayChangePct: api.Quote.ChangePct.String(),
			QuotedAt:     quotedAt,
		}
	}
	return &quote.Snapshot{Key: key, Payload: payload, FetchedAt: time.Now().UTC()}, nil
}
