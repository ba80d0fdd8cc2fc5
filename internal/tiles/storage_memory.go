package tiles

import (
	"sort"
	"sync"

	"parkterrain/internal/heightfield"
)

// MemoryStorage keeps tiles in a map. Grids are copied on the way in and out.
type MemoryStorage struct {
	mu    sync.RWMutex
	tiles map[string]heightfield.Grid
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tiles: make(map[string]heightfield.Grid),
	}
}

func (m *MemoryStorage) Load(key string) (heightfield.Grid, bool, error) {
	m.mu.RLock()
	grid, ok := m.tiles[key]
	m.mu.RUnlock()
	if !ok {
		return heightfield.Grid{}, false, nil
	}
	return cloneGrid(grid), true, nil
}

func (m *MemoryStorage) Save(key string, grid heightfield.Grid) error {
	dup := cloneGrid(grid)
	m.mu.Lock()
	m.tiles[key] = dup
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Delete(key string) error {
	m.mu.Lock()
	delete(m.tiles, key)
	m.mu.Unlock()
	return nil
}

// ForEach visits tiles in key order.
func (m *MemoryStorage) ForEach(fn func(key string, grid heightfield.Grid) bool) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.tiles))
	for key := range m.tiles {
		keys = append(keys, key)
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	for _, key := range keys {
		grid, ok, _ := m.Load(key)
		if !ok {
			continue
		}
		if !fn(key, grid) {
			break
		}
	}
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
