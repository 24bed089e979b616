package store

import (
	"context"
	"sync"
)

// MemoryPreferences keeps sort orders in process memory.
type MemoryPreferences struct {
	mu    sync.RWMutex
	pages map[string][]string
}

func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{pages: make(map[string][]string)}
}

func (m *MemoryPreferences) SortOrder(_ context.Context, page string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids, ok := m.pages[page]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), ids...), nil
}

func (m *MemoryPreferences) SetSortOrder(_ context.Context, page string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page] = append([]string(nil), ids...)
	return nil
}
