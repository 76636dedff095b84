package statestore

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory implements Store in-process. Suitable for single-instance
// deployments and tests; a restart drops in-flight handshakes, which only
// costs the user a re-initiated login.
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	cache *gocache.Cache
}

// NewMemory creates an in-process store. Expired entries are reaped in the
// background every minute; Consume also checks expiry, so reaping cadence
// never extends a state's usable lifetime.
func NewMemory() *Memory {
	return newMemoryWithTTL(TTL)
}

// newMemoryWithTTL lets tests exercise expiry without waiting five minutes.
func newMemoryWithTTL(ttl time.Duration) *Memory {
	return &Memory{
		ttl:   ttl,
		cache: gocache.New(ttl, time.Minute),
	}
}

func (m *Memory) Put(_ context.Context, state, destination string) error {
	m.cache.Set(state, destination, m.ttl)
	return nil
}

// Consume does a mutex-guarded get+delete, the in-process equivalent of
// Redis GETDEL.
func (m *Memory) Consume(_ context.Context, state string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.cache.Get(state)
	if !ok {
		return "", ErrNotFound
	}
	m.cache.Delete(state)
	return v.(string), nil
}

func (m *Memory) Close() error {
	m.cache.Flush()
	return nil
}
