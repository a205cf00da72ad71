package main

import (
	"context"

	"quotefeed/internal/fetch"
	"quotefeed/internal/hub"
	"quotefeed/internal/quote"
)

// pushFetcher sits between the warmer and the orchestrator: every successful
// watch-list refresh is also broadcast to live subscribers, on the exact
// "kind:key" topic and on the kind-wide topic.
type pushFetcher struct {
	mgr *fetch.Manager
	hub *hub.Hub
}

func (p *pushFetcher) FetchBatch(ctx context.Context, kind quote.Kind, keys []string) []fetch.Result {
	results := p.mgr.FetchBatch(ctx, kind, keys)
	for _, res := range results {
		if !res.Success || res.Snapshot == nil {
			continue
		}
		frame := hub.UpdateFrame(string(kind), res)
		p.hub.Broadcast(frame, quote.CacheKey(kind, res.Snapshot.Key))
		p.hub.Broadcast(frame, string(kind))
	}
	return results
}
