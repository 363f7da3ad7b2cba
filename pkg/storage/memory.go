// pkg/storage/memory.go

package storage

import (
	"context"
	"sync"
)

type memStore struct {
	sync.Mutex
	ns     string
	spaces map[string]map[string]string
}

func init() {
	Register("memory", newMemStore)
	Register("mem", newMemStore)
}

func newMemStore(driver, addr string) (Storage, error) {
	return NewMemStore(), nil
}

// NewMemStore returns a process-local Storage. Data is lost with the process.
func NewMemStore() Storage {
	return &memStore{
		ns:     DefaultNamespace,
		spaces: make(map[string]map[string]string),
	}
}

func (m *memStore) Name() string {
	return "memory"
}

func (m *memStore) Configure(ctx context.Context, conf *Config) error {
	m.Lock()
	defer m.Unlock()
	m.ns = conf.namespace()
	return nil
}

// locked
func (m *memStore) items() map[string]string {
	items, ok := m.spaces[m.ns]
	if !ok {
		items = make(map[string]string)
		m.spaces[m.ns] = items
	}
	return items
}

func (m *memStore) Keys(ctx context.Context) ([]string, error) {
	m.Lock()
	defer m.Unlock()
	items := m.items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	m.Lock()
	defer m.Unlock()
	v, ok := m.items()[key]
	return v, ok, nil
}

func (m *memStore) SetItem(ctx context.Context, key, value string) error {
	m.Lock()
	defer m.Unlock()
	m.items()[key] = value
	return nil
}

func (m *memStore) RemoveItem(ctx context.Context, key string) error {
	m.Lock()
	defer m.Unlock()
	items := m.items()
	if _, ok := items[key]; ok {
		delete(items, key)
		logger.Debugf("remove %s from memory", key)
	}
	return nil
}

func (m *memStore) Clear(ctx context.Context) error {
	m.Lock()
	defer m.Unlock()
	logger.Debugf("clear %d keys of %s from memory", len(m.spaces[m.ns]), m.ns)
	delete(m.spaces, m.ns)
	return nil
}
