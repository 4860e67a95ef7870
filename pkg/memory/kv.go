// Package memory is the shared blackboard: a key/value layer with TTLs, a
// document layer with shallow merges and a vector layer for similarity search.
// The layers are independent and make no consistency promises between them.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// KV stores JSON encoded values. A zero ttl never expires.
type KV interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Put(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type kvEntry struct {
	value     []byte
	expiresAt time.Time
}

type MemoryKV struct {
	lock    sync.Mutex
	entries map[string]kvEntry
	now     func() time.Time
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		entries: make(map[string]kvEntry),
		now:     time.Now,
	}
}

func (kv *MemoryKV) WithClock(now func() time.Time) *MemoryKV {
	kv.now = now
	return kv
}

// Get decodes the value into dst. Expired entries are removed and reported absent.
func (kv *MemoryKV) Get(ctx context.Context, key string, dst any) (bool, error) {
	kv.lock.Lock()
	entry, ok := kv.entries[key]
	if ok && !entry.expiresAt.IsZero() && !kv.now().Before(entry.expiresAt) {
		delete(kv.entries, key)
		ok = false
	}
	kv.lock.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.value, dst); err != nil {
		return true, fmt.Errorf("could not decode value of %s: %v", key, err)
	}
	return true, nil
}

func (kv *MemoryKV) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("could not encode value of %s: %v", key, err)
	}

	entry := kvEntry{value: data}
	if ttl > 0 {
		entry.expiresAt = kv.now().Add(ttl)
	}

	kv.lock.Lock()
	defer kv.lock.Unlock()
	kv.entries[key] = entry
	return nil
}

func (kv *MemoryKV) Del(ctx context.Context, key string) error {
	kv.lock.Lock()
	defer kv.lock.Unlock()
	delete(kv.entries, key)
	return nil
}
