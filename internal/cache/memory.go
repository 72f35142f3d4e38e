package cache

import (
	"context"
	"sync"
	"time"
)

// maxMemoryEntries caps the number of cached windows; the map is cleared
// when it is reached.
const maxMemoryEntries = 256

type memoryEntry struct {
	val       []byte
	updatedAt time.Time
}

// Memory is a process-local cache guarded by a RWMutex.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	version int64
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory returns an empty cache. A non-positive ttl means DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Version(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version, nil
}

func (m *Memory) Get(_ context.Context, version int64, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if version != m.version {
		return nil, false, nil
	}
	e, ok := m.entries[key]
	if !ok || m.now().Sub(e.updatedAt) >= m.ttl {
		return nil, false, nil
	}
	return e.val, true, nil
}

func (m *Memory) Set(_ context.Context, version int64, key string, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if version != m.version {
		return nil
	}
	if len(m.entries) >= maxMemoryEntries {
		clear(m.entries)
	}
	m.entries[key] = memoryEntry{val: val, updatedAt: m.now()}
	return nil
}

func (m *Memory) Invalidate(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version++
	clear(m.entries)
	return nil
}

func (m *Memory) Close() error { return nil }

var _ Cache = (*Memory)(nil)
