package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps objects in process. It backs tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, bucket, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	objects, ok := m.buckets[bucket]
	if !ok {
		objects = make(map[string][]byte)
		m.buckets[bucket] = objects
	}
	objects[key] = append([]byte(nil), body...)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	body, ok := m.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrNotFound)
	}
	return append([]byte(nil), body...), nil
}

func (m *MemoryStore) List(_ context.Context, bucket, prefix string) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix = dirPrefix(prefix)
	var objects []Object
	for key, body := range m.buckets[bucket] {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, Object{Key: key, Size: int64(len(body))})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (m *MemoryStore) DeletePrefix(_ context.Context, bucket, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix = dirPrefix(prefix)
	var deleted int
	for key := range m.buckets[bucket] {
		if strings.HasPrefix(key, prefix) {
			delete(m.buckets[bucket], key)
			deleted++
		}
	}
	return deleted, nil
}
