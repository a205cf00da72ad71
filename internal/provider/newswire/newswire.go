// Package newswire fetches news digests, sentiment scores and sector detail.
// These feeds have no generic failover peer and are reached by provider name
// only, through the orchestrator's named-source path.
package newswire

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
	Name    string
	BaseURL string
	APIKey  string
	Kind    quote.Kind // news, sentiment or sector
	// MaxHeadlines caps the news digest size; 0 keeps the upstream default.
	MaxHeadlines int
}

type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) (*Provider, error) {
	switch cfg.Kind {
	case quote.KindNews, quote.KindSentiment, quote.KindSector:
	default:
		return nil, fmt.Errorf("newswire: unsupported feed %q", cfg.Kind)
	}
	if cfg.Name == "" {
		cfg.Name = "Newswire-" + string(cfg.Kind)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://feed.newswire.dev"
	}
	return &Provider{cfg: cfg, client: hc}, nil
}

func (p *Provider) Name() string { return p.cfg.Name }

type newsItem struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt int64  `json:"published_at"`
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`

	Items []newsItem `json:"items"`

	Score json.Number `json:"score"`
	Label string      `json:"label"`

	ChangePct json.Number `json:"change_pct"`
	Leaders   []string    `json:"leaders"`
}

func (p *Provider) Fetch(ctx context.Context, key string) (*quote.Snapshot, error) {
	u, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("newswire: base url: %w", err)
	}
	u = u.JoinPath("api", string(p.cfg.Kind), key)
	if p.cfg.Kind == quote.KindNews && p.cfg.MaxHeadlines > 0 {
		q := u.Query()
		q.Set("limit", fmt.Sprintf("%d", p.cfg.MaxHeadlines))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", p.cfg.APIKey)
	}

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("newswire: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, fmt.Errorf("newswire: GET %s -> %d: %s", u, resp.StatusCode, string(b))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var api apiResponse
	if err := dec.Decode(&api); err != nil {
		return nil, fmt.Errorf("newswire: decode: %w", err)
	}
	if !api.OK {
		return nil, fmt.Errorf("newswire: api error: %s", api.Error)
	}

	now := time.Now().UTC()
	var payload quote.Payload
	switch p.cfg.Kind {
	case quote.KindNews:
		headlines := make([]quote.Headline, 0, len(api.Items))
		for _, it := range api.Items {
			ts := now
			if it.PublishedAt > 0 {
				ts = time.Unix(it.PublishedAt, 0).UTC()
			}
			headlines = append(headlines, quote.Headline{Title: it.Title, URL: it.URL, PublishedAt: ts})
		}
		payload = &quote.NewsDigest{Symbol: key, Headlines: headlines}
	case quote.KindSentiment:
		score, err := api.Score.Float64()
		if err != nil {
			return nil, fmt.Errorf("newswire: bad score %q", api.Score.String())
		}
		payload = &quote.SentimentScore{Symbol: key, Score: score, Label: api.Label, SampledAt: now}
	case quote.KindSector:
		payload = &quote.SectorDetail{Sector: key, ChangePct: api.ChangePct.String(), Leaders: api.Leaders}
	}
	return &quote.Snapshot{Key: key, Payload: payload, FetchedAt: now}, nil
}
