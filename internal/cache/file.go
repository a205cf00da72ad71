package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"quotefeed/internal/quote"
)

// fileRecord is the on-disk shape of one L2 entry.
type fileRecord struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	TTL       float64         `json:"ttl"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// File is the durable tier: one JSON file per key under dir, named by a
// sha256 of the logical key so filename length and charset stay bounded.
// Reads treat expired and corrupt files as misses; expired files are deleted
// on the read path, corrupt ones during maintenance sweeps. Concurrent
// writers of a key race benignly; entries are idempotent snapshots.
type File struct {
	dir string
	log *zap.Logger
}

// FileStats is a walk of the directory at one point in time.
type FileStats struct {
	Total     int   `json:"file_cache_total"`
	Valid     int   `json:"file_cache_valid"`
	SizeBytes int64 `json:"file_cache_size_bytes"`
}

// StoredEntry is one valid record surfaced during bulk enumeration.
type StoredEntry struct {
	Key       string
	Snapshot  *quote.Snapshot
	ExpiresAt time.Time
}

func NewFile(dir string, log *zap.Logger) (*File, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &File{dir: dir, log: log}, nil
}

func (f *File) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.dir, hex.EncodeToString(sum[:])+".json")
}

// Get returns the unexpired snapshot for key along with its expiry. Expired
// records are deleted and reported as misses; unreadable ones are misses too.
func (f *File) Get(key string) (*quote.Snapshot, time.Time, bool) {
	path := f.path(key)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, false
	}
	var rec fileRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		f.log.Debug("unreadable cache file", zap.String("path", path), zap.Error(err))
		return nil, time.Time{}, false
	}
	if !time.Now().Before(rec.ExpiresAt) {
		_ = os.Remove(path)
		return nil, time.Time{}, false
	}
	var snap quote.Snapshot
	if err := json.Unmarshal(rec.Value, &snap); err != nil {
		f.log.Debug("undecodable cache value", zap.String("path", path), zap.Error(err))
		return nil, time.Time{}, false
	}
	return &snap, rec.ExpiresAt, true
}

// Set persists the snapshot synchronously. Write errors are logged and
// dropped; the entry is simply absent on the next read.
func (f *File) Set(key string, snap *quote.Snapshot, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	value, err := json.Marshal(snap)
	if err != nil {
		f.log.Warn("cache value marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	now := time.Now().UTC()
	rec := fileRecord{
		Key:       key,
		Value:     value,
		TTL:       ttl.Seconds(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	b, err := json.Marshal(rec)
	if err != nil {
		f.log.Warn("cache record marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := os.WriteFile(f.path(key), b, 0o644); err != nil {
		f.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes the record for key, if any.
func (f *File) Delete(key string) {
	_ = os.Remove(f.path(key))
}

// Clear removes every record in the directory.
func (f *File) Clear() {
	for _, path := range f.list() {
		_ = os.Remove(path)
	}
}

// Stats walks the directory, classifying each record against now.
func (f *File) Stats() FileStats {
	var st FileStats
	now := time.Now()
	for _, path := range f.list() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		st.Total++
		st.SizeBytes += info.Size()
		rec, err := f.readRecord(path)
		if err == nil && now.Before(rec.ExpiresAt) {
			st.Valid++
		}
	}
	return st
}

// Entries enumerates every valid record, skipping expired and corrupt files.
func (f *File) Entries() []StoredEntry {
	now := time.Now()
	var out []StoredEntry
	for _, path := range f.list() {
		rec, err := f.readRecord(path)
		if err != nil || !now.Before(rec.ExpiresAt) {
			continue
		}
		var snap quote.Snapshot
		if err := json.Unmarshal(rec.Value, &snap); err != nil {
			f.log.Debug("skipping undecodable cache value", zap.String("path", path), zap.Error(err))
			continue
		}
		out = append(out, StoredEntry{Key: rec.Key, Snapshot: &snap, ExpiresAt: rec.ExpiresAt})
	}
	return out
}

// SweepExpired deletes expired and corrupt records and reports how many.
func (f *File) SweepExpired() int {
	now := time.Now()
	removed := 0
	for _, path := range f.list() {
		rec, err := f.readRecord(path)
		if err == nil && now.Before(rec.ExpiresAt) {
			continue
		}
		if os.Remove(path) == nil {
			removed++
		}
	}
	return removed
}

// DeleteOlderThan removes records created before cutoff regardless of TTL.
func (f *File) DeleteOlderThan(cutoff time.Time) int {
	removed := 0
	for _, path := range f.list() {
		rec, err := f.readRecord(path)
		if err != nil || rec.CreatedAt.Before(cutoff) {
			if os.Remove(path) == nil {
				removed++
			}
		}
	}
	return removed
}

func (f *File) readRecord(path string) (fileRecord, error) {
	var rec fileRecord
	b, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

func (f *File) list() []string {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		f.log.Debug("cache dir unreadable", zap.String("dir", f.dir), zap.Error(err))
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out = append(out, filepath.Join(f.dir, e.Name()))
	}
	return out
}
