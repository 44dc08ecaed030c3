package storage

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryBackend keeps documents in process. It backs tests and throwaway
// sessions.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryBackend constructs a backend with the given buckets.
func NewMemoryBackend(buckets ...string) *MemoryBackend {
	data := make(map[string]map[string][]byte, len(buckets))
	for _, b := range buckets {
		data[b] = make(map[string][]byte)
	}
	return &MemoryBackend{data: data}
}

func (m *MemoryBackend) Get(bucket, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[bucket][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryBackend) Put(bucket, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.data[bucket]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	b[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBackend) Delete(bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data[bucket], key)
	return nil
}

func (m *MemoryBackend) ForEach(bucket string, fn func(key string, value []byte) error) error {
	m.mu.RLock()
	b := m.data[bucket]
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	snapshot := make(map[string][]byte, len(b))
	for k, v := range b {
		snapshot[k] = append([]byte(nil), v...)
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, snapshot[k]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryBackend) Buckets() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.data))
	for b := range m.data {
		names = append(names, b)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryBackend) Close() error { return nil }
