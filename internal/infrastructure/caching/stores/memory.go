// Package stores provides concrete cache store implementations
package stores

import (
	"context"
	"sync"
	"time"

	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is the in-process identity cache backend with TTL expiry and a
// periodic sweep.
type MemoryStore struct {
	entries map[string]*memoryEntry
	mu      sync.RWMutex
	logger  *logging.ChanneledLogger
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a new in-memory cache store and starts its sweep loop.
func NewMemoryStore(sweepInterval time.Duration, logger *logging.ChanneledLogger) *MemoryStore {
	if logger != nil {
		logger.Cache().Info("Initializing in-memory identity cache store", "sweepInterval", sweepInterval)
	}
	ms := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		logger:  logger,
		done:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go ms.sweepLoop(sweepInterval)
	}
	return ms
}

// Get returns the value and whether the key was present and unexpired.
func (ms *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	ms.mu.RLock()
	entry, found := ms.entries[key]
	ms.mu.RUnlock()

	if !found || entry.expired(time.Now()) {
		if ms.logger != nil {
			ms.logger.Cache().Debug("Cache operation", "operation", "get", "backend", "memory", "key", key, "hit", false, "duration", time.Since(start))
		}
		return nil, false, nil
	}

	if ms.logger != nil {
		ms.logger.Cache().Debug("Cache operation", "operation", "get", "backend", "memory", "key", key, "hit", true, "duration", time.Since(start))
	}
	return entry.value, true, nil
}

// Set stores a value with the given TTL.
func (ms *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	ms.mu.Lock()
	ms.entries[key] = entry
	ms.mu.Unlock()

	if ms.logger != nil {
		ms.logger.Cache().Debug("Cache operation", "operation", "set", "backend", "memory", "key", key, "ttl", ttl)
	}
	return nil
}

// Delete removes a key.
func (ms *MemoryStore) Delete(_ context.Context, key string) error {
	ms.mu.Lock()
	delete(ms.entries, key)
	ms.mu.Unlock()
	return nil
}

// Close stops the sweep loop.
func (ms *MemoryStore) Close() error {
	ms.once.Do(func() { close(ms.done) })
	return nil
}

// Len returns the number of live entries, expired included until swept.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.entries)
}

func (ms *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ms.done:
			return
		case <-ticker.C:
			ms.sweep()
		}
	}
}

func (ms *MemoryStore) sweep() {
	start := time.Now()
	now := time.Now()
	removed := 0

	ms.mu.Lock()
	for key, entry := range ms.entries {
		if entry.expired(now) {
			delete(ms.entries, key)
			removed++
		}
	}
	remaining := len(ms.entries)
	ms.mu.Unlock()

	if ms.logger != nil && removed > 0 {
		ms.logger.Cache().Info("Cache sweep completed", "backend", "memory", "removed", removed, "remaining", remaining, "duration", time.Since(start))
	}
}
