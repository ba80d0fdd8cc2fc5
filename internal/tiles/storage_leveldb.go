package tiles

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/syndtr/goleveldb/leveldb"

	"parkterrain/internal/heightfield"
)

// LevelDBStorage persists tiles in a LevelDB database so a restarted server
// keeps its cache.
type LevelDBStorage struct {
	db *leveldb.DB
}

// OpenLevelDBStorage opens or creates the database at path.
func OpenLevelDBStorage(path string) (*LevelDBStorage, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create tile directory: %w", err)
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open tile database: %w", err)
	}
	return &LevelDBStorage{db: db}, nil
}

func (s *LevelDBStorage) Load(key string) (heightfield.Grid, bool, error) {
	data, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return heightfield.Grid{}, false, nil
	}
	if err != nil {
		return heightfield.Grid{}, false, fmt.Errorf("read tile %s: %w", key, err)
	}
	grid, err := decodeGrid(data)
	if err != nil {
		return heightfield.Grid{}, false, fmt.Errorf("decode tile %s: %w", key, err)
	}
	return grid, true, nil
}

func (s *LevelDBStorage) Save(key string, grid heightfield.Grid) error {
	if err := s.db.Put([]byte(key), encodeGrid(grid), nil); err != nil {
		return fmt.Errorf("write tile %s: %w", key, err)
	}
	return nil
}

func (s *LevelDBStorage) Delete(key string) error {
	if err := s.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("delete tile %s: %w", key, err)
	}
	return nil
}

// ForEach visits tiles in key order. Records that fail to decode are logged
// and skipped.
func (s *LevelDBStorage) ForEach(fn func(key string, grid heightfield.Grid) bool) error {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	for iter.Next() {
		key := string(iter.Key())
		grid, err := decodeGrid(iter.Value())
		if err != nil {
			log.Printf("leveldb tile storage skip %s: %v", key, err)
			continue
		}
		if !fn(key, grid) {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterate tiles: %w", err)
	}
	return nil
}

func (s *LevelDBStorage) Close() error {
	return s.db.Close()
}
