package provider

import (
	"context"

	"quotefeed/internal/quote"
)

// Provider fetches one item of one kind of market data by key.
// Implementations must bound their own I/O (shared HTTP client timeout) and
// report failures as errors; the orchestrator translates errors into failed
// results, never exceptions across the core boundary.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, key string) (*quote.Snapshot, error)
}
