package cache

import (
	"time"

	"go.uber.org/zap"

	"quotefeed/internal/quote"
)

// Tier labels reported by Dual.Get.
const (
	TierMemory = "memory"
	TierFile   = "file"
)

// DualStats combines both tiers' views.
type DualStats struct {
	MemoryCacheSize    int   `json:"memory_cache_size"`
	FileCacheTotal     int   `json:"file_cache_total"`
	FileCacheValid     int   `json:"file_cache_valid"`
	FileCacheSizeBytes int64 `json:"file_cache_size_bytes"`
}

// Dual composes the memory and file tiers: read-through with L1 refill on an
// L2 hit, write-through with an independent per-tier TTL policy.
type Dual struct {
	mem  *Memory
	file *File
	// Default TTLs per tier when the caller does not override: L1 short so
	// hot entries stay fresh, L2 long so restarts stay warm.
	memTTL  time.Duration
	fileTTL time.Duration
	log     *zap.Logger
}

type DualConfig struct {
	MemoryTTL time.Duration
	FileTTL   time.Duration
}

func NewDual(mem *Memory, file *File, cfg DualConfig, log *zap.Logger) *Dual {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = 60 * time.Second
	}
	if cfg.FileTTL <= 0 {
		cfg.FileTTL = 300 * time.Second
	}
	return &Dual{mem: mem, file: file, memTTL: cfg.MemoryTTL, fileTTL: cfg.FileTTL, log: log}
}

// Get checks L1, then L2. An L2 hit refills L1 with the smaller of the L2
// remainder and the L1 default, and reports tier "file"; the next Get for the
// key hits memory.
func (d *Dual) Get(key string) (*quote.Snapshot, string, bool) {
	if snap, ok := d.mem.Get(key); ok {
		return snap, TierMemory, true
	}
	snap, expiresAt, ok := d.file.Get(key)
	if !ok {
		return nil, "", false
	}
	refill := time.Until(expiresAt)
	if refill > d.memTTL {
		refill = d.memTTL
	}
	d.mem.Set(key, snap, refill)
	return snap, TierFile, true
}

// Set writes through both tiers. ttl <= 0 keeps the per-tier defaults;
// a positive ttl overrides both.
func (d *Dual) Set(key string, snap *quote.Snapshot, ttl time.Duration) {
	memTTL, fileTTL := d.memTTL, d.fileTTL
	if ttl > 0 {
		memTTL, fileTTL = ttl, ttl
	}
	d.mem.Set(key, snap, memTTL)
	d.file.Set(key, snap, fileTTL)
}

// Delete removes the key from both tiers.
func (d *Dual) Delete(key string) {
	d.file.Delete(key)
	d.mem.Delete(key)
}

// Clear empties both tiers.
func (d *Dual) Clear() {
	d.mem.Clear()
	d.file.Clear()
}

// Stats walks the file tier and reads the memory tier's size.
func (d *Dual) Stats() DualStats {
	fs := d.file.Stats()
	return DualStats{
		MemoryCacheSize:    d.mem.Len(),
		FileCacheTotal:     fs.Total,
		FileCacheValid:     fs.Valid,
		FileCacheSizeBytes: fs.SizeBytes,
	}
}

// Memory exposes the L1 tier for preload.
func (d *Dual) Memory() *Memory { return d.mem }

// File exposes the L2 tier for preload and maintenance.
func (d *Dual) File() *File { return d.file }
