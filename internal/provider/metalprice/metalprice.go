// Package metalprice fetches commodity spot prices from the MetalPrice
// batch API.
package metalprice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quotefeed/internal/httpx"
	"quotefeed/internal/quote"
)

type Config struct {
	Name     string
	URL      string
	APIKey   string
	Currency string
	// SymbolMap translates requested symbols to upstream naming.
	SymbolMap map[string]string
}

type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "MetalPrice"
	}
	if cfg.URL == "" {
		cfg.URL = "https://api.metalprice.dev/v1/spot/batch"
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return p.cfg.Name }

type apiResponse struct {
	Success  bool    `json:"success"`
	Data     []entry `json:"data"`
	ErrorMsg string  `json:"error_msg"`
}

type entry struct {
	Symbol    string      `json:"symbol"`
	Name      string      `json:"name"`
	Price     json.Number `json:"price"`
	Currency  string      `json:"currency"`
	Exchange  string      `json:"exchange"`
	UpdatedAt int64       `json:"updated_at"`
}

func (p *Provider) Fetch(ctx context.Context, key string) (*quote.Snapshot, error) {
	upstream := key
	if v := p.cfg.SymbolMap[key]; v != "" {
		upstream = v
	}

	payload := map[string]any{"symbols": []string{upstream}, "currency": p.cfg.Currency}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("metalprice: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, fmt.Errorf("metalprice: POST %s -> %d: %s", p.cfg.URL, resp.StatusCode, string(b))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var api apiResponse
	if err := dec.Decode(&api); err != nil {
		return nil, fmt.Errorf("metalprice: decode: %w", err)
	}
	if !api.Success && strings.TrimSpace(api.ErrorMsg) != "" {
		return nil, fmt.Errorf("metalprice: api error: %s", api.ErrorMsg)
	}

	for _, e := range api.Data {
		if !strings.EqualFold(e.Symbol, upstream) {
			continue
		}
		price := e.Price.String()
		if price == "" || price == "0" {
			continue
		}
		currency := e.Currency
		if currency == "" {
			currency = p.cfg.Currency
		}
		quotedAt := time.Now().UTC()
		if e.UpdatedAt > 0 {
			quotedAt = time.Unix(e.UpdatedAt, 0).UTC()
		}
		return &quote.Snapshot{
			Key: key,
			Payload: &quote.CommodityPrice{
				Symbol:   key,
				Name:     e.Name,
				Price:    price,
				Currency: currency,
				Exchange: e.Exchange,
				QuotedAt: quotedAt,
			},
			FetchedAt: time.Now().UTC(),
		}, nil
	}
	return nil, fmt.Errorf("metalprice: no price for %q", key)
}
