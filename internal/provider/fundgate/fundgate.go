// Package fundgate fetches fund net-asset valuations from the FundGate API.
package fundgate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"quotefeed/internal/quote"
)

// Provider adapts the FundGate client to the provider interface.
type Provider struct {
	name     string
	currency string
	client   *Client
}

type Config struct {
	Name     string
	Currency string
}

func New(cfg Config, client *Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "FundGate"
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Provider{name: cfg.Name, currency: cfg.Currency, client: client}
}

func (p *Provider) Name() string { return p.name }

type valuationResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Symbol    string      `json:"symbol"`
		Name      string      `json:"name"`
		NAV       json.Number `json:"nav"`
		ChangePct json.Number `json:"change_pct"`
		Currency  string      `json:"currency"`
		UpdatedAt int64       `json:"updated_at"`
	} `json:"data"`
}

func (p *Provider) Fetch(ctx context.Context, key string) (*quote.Snapshot, error) {
	u := p.client.baseURL.JoinPath("api", "v1", "fund", key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.client.apiKey)
	for k, vs := range p.client.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := p.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fundgate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, fmt.Errorf("fundgate: GET %s -> %d: %s", u, resp.StatusCode, string(b))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var api valuationResponse
	if err := dec.Decode(&api); err != nil {
		return nil, fmt.Errorf("fundgate: decode: %w", err)
	}
	if api.Code != 0 {
		return nil, fmt.Errorf("fundgate: api error: code=%d msg=%q", api.Code, api.Message)
	}
	if api.Data.NAV.String() == "" || api.Data.NAV.String() == "0" {
		return nil, fmt.Errorf("fundgate: no valuation for %q", key)
	}

	currency := api.Data.Currency
	if currency == "" {
		currency = p.currency
	}
	valuedAt := time.Now().UTC()
	if api.Data.UpdatedAt > 0 {
		valuedAt = time.Unix(api.Data.UpdatedAt, 0).UTC()
	}
	return &quote.Snapshot{
		Key: key,
		Payload: &quote.FundValuation{
			Symbol:       key,
			Name:         api.Data.Name,
			NetValue:     api.Data.NAV.String(),
			DayChangePct: api.Data.ChangePct.String(),
			Currency:     currency,
			ValuedAt:     valuedAt,
		},
		FetchedAt: time.Now().UTC(),
	}, nil
}
