package kv

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryBackend is an in-process Backend for tests and single-node
// deployments. go-cache's Add runs under its store lock, which gives the
// same at-most-one-primer guarantee Redis SETNX does within a process.
type MemoryBackend struct {
	store *gocache.Cache
}

// NewMemoryBackend creates an in-process store. Expired entries are
// swept every minute.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		store: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (b *MemoryBackend) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := b.store.Add(key, clone(value), ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, found := b.store.Get(key)
	if !found {
		return nil, false, nil
	}
	data, ok := value.([]byte)
	if !ok {
		return nil, false, nil
	}
	return clone(data), true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.store.Set(key, clone(value), ttl)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.store.Delete(key)
	return nil
}

// clone copies a value so callers cannot mutate stored bytes.
func clone(data []byte) []byte {
	if data == nil {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
