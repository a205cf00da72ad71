package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NamedFile is one file-cache directory under the cleaner's watch.
type NamedFile struct {
	Name  string
	Cache *File
}

// CleanupResult reports one startup sweep: removals per category plus any
// sub-step failures, which never abort the remaining steps.
type CleanupResult struct {
	Categories map[string]int `json:"categories"`
	Errors     []string       `json:"errors"`
}

// Cleaner prunes expired and over-retention records from the file caches and
// the in-memory tier on a schedule.
type Cleaner struct {
	files     []NamedFile
	mem       *Memory
	retention time.Duration
	log       *zap.Logger

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewCleaner(files []NamedFile, mem *Memory, retention time.Duration, log *zap.Logger) *Cleaner {
	if log == nil {
		log = zap.NewNop()
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &Cleaner{files: files, mem: mem, retention: retention, log: log}
}

// CleanupOnStartup runs the full sweep sequence: per-cache expired-record
// removal plus retention-window pruning. Each sub-step's failure is recorded
// and the sequence continues.
func (c *Cleaner) CleanupOnStartup(ctx context.Context) CleanupResult {
	res := CleanupResult{Categories: make(map[string]int)}
	cutoff := time.Now().Add(-c.retention)
	for _, nf := range c.files {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", nf.Name, err))
			break
		}
		res.Categories[nf.Name+"_expired"] = nf.Cache.SweepExpired()
		res.Categories[nf.Name+"_retention"] = nf.Cache.DeleteOlderThan(cutoff)
	}
	if c.mem != nil {
		res.Categories["memory_expired"] = c.mem.PurgeExpired()
	}
	c.log.Info("startup cleanup done",
		zap.Any("categories", res.Categories),
		zap.Strings("errors", res.Errors))
	return res
}

// StartBackground repeats the expired-file sweep (not the retention sweep) on
// the interval until Stop. Idempotent.
func (c *Cleaner) StartBackground(ctx context.Context, interval time.Duration) {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				removed := 0
				for _, nf := range c.files {
					removed += nf.Cache.SweepExpired()
				}
				if c.mem != nil {
					removed += c.mem.PurgeExpired()
				}
				if removed > 0 {
					c.log.Debug("cache sweep", zap.Int("removed", removed))
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for it. Safe to call when not running.
func (c *Cleaner) Stop() {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
}
