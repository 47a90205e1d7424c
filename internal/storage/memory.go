package storage

import (
	"sync"
)

type MemoryStorage struct {
	overview string
	entities map[string]*Entity
	order    []string
	mu       sync.RWMutex
}

func NewMemoryStorage(overview string, entities ...Entity) *MemoryStorage {
	m := &MemoryStorage{
		overview: overview,
		entities: make(map[string]*Entity),
	}
	for _, e := range entities {
		m.Put(e)
	}
	return m
}

func (m *MemoryStorage) Init() error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

// Put adds or replaces an entity.
func (m *MemoryStorage) Put(e Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entityKey(e.Kind, e.ID)
	if _, exists := m.entities[key]; !exists {
		m.order = append(m.order, key)
	}
	m.entities[key] = &e
}

func (m *MemoryStorage) Overview() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.overview, nil
}

func (m *MemoryStorage) Entities() ([]Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entities := make([]Entity, 0, len(m.order))
	for _, key := range m.order {
		e := *m.entities[key]
		e.Content = ""
		entities = append(entities, e)
	}
	return entities, nil
}

func (m *MemoryStorage) GetEntity(kind EntityKind, id string) (*Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, exists := m.entities[entityKey(kind, id)]
	if !exists {
		return nil, ErrEntityNotFound
	}
	out := *e
	return &out, nil
}

func entityKey(kind EntityKind, id string) string {
	return string(kind) + ":" + id
}
