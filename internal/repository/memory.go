package repository

import (
	"context"
	"sync"
)

// MemoryKVStore is a process-local KVStore. It survives nothing and is meant
// for tests and for running without any durable backend configured.
type MemoryKVStore struct {
	values sync.Map
}

func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{}
}

func (r *MemoryKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, ok := r.values.Load(key)
	if !ok {
		return "", false, nil
	}
	return val.(string), true, nil
}

func (r *MemoryKVStore) Set(ctx context.Context, key, value string) error {
	r.values.Store(key, value)
	return nil
}
