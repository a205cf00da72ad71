package cache

import (
	"container/list"
	"sync"
	"time"

	"quotefeed/internal/quote"
)

type memEntry struct {
	key       string
	snap      *quote.Snapshot
	expiresAt time.Time
}

// Memory is the bounded in-process tier: per-entry TTL with lazy expiry and
// LRU eviction under size pressure, independent of TTL. One mutex guards all
// operations; the list back is the most-recently-used end.
type Memory struct {
	maxSize int

	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element
}

func NewMemory(maxSize int) *Memory {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Memory{
		maxSize: maxSize,
		ll:      list.New(),
		items:   make(map[string]*list.Element),
	}
}

// Get returns the unexpired value for key and marks it most recently used.
// An expired entry is removed and reported as a miss.
func (m *Memory) Get(key string) (*quote.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.items[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*memEntry)
	if !time.Now().Before(ent.expiresAt) {
		m.removeElement(el)
		return nil, false
	}
	m.ll.MoveToBack(el)
	return ent.snap, true
}

// Set stores key with the given TTL. Inserting a new key at capacity evicts
// from the least-recently-used end first, regardless of the victims' TTLs.
func (m *Memory) Set(key string, snap *quote.Snapshot, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	expires := time.Now().Add(ttl)
	if el, ok := m.items[key]; ok {
		ent := el.Value.(*memEntry)
		ent.snap = snap
		ent.expiresAt = expires
		m.ll.MoveToBack(el)
		return
	}
	for len(m.items) >= m.maxSize {
		front := m.ll.Front()
		if front == nil {
			break
		}
		m.removeElement(front)
	}
	el := m.ll.PushBack(&memEntry{key: key, snap: snap, expiresAt: expires})
	m.items[key] = el
}

// Delete removes a single key if present.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.removeElement(el)
	}
}

// Clear empties the tier.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ll.Init()
	m.items = make(map[string]*list.Element)
}

// Len reports the current entry count, expired entries included until their
// next lazy eviction.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// PurgeExpired drops every entry past its deadline and reports how many.
func (m *Memory) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	removed := 0
	for el := m.ll.Front(); el != nil; {
		next := el.Next()
		if !now.Before(el.Value.(*memEntry).expiresAt) {
			m.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

func (m *Memory) removeElement(el *list.Element) {
	m.ll.Remove(el)
	delete(m.items, el.Value.(*memEntry).key)
}
