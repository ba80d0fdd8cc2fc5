package tiles

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"runtime"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"parkterrain/internal/heightfield"
)

// ErrOutsideWorld is returned for tiles that do not intersect the world.
var ErrOutsideWorld = errors.New("tiles: tile outside world")

// Source samples heights for tiles. Fingerprint identifies the terrain so
// tiles from a different configuration are never served.
type Source interface {
	EvaluateGrid(originX, originZ, width, depth float64, resX, resZ int) (heightfield.Grid, error)
	Fingerprint() uint64
}

// Key addresses a square tile. Tile (0,0) starts at the world origin and
// extends towards positive x and z.
type Key struct {
	TX int `json:"tx"`
	TZ int `json:"tz"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.TX, k.TZ)
}

type Options struct {
	Size       float64
	Resolution int
	// Extent is the side of the centred square Covering and Warmup work over.
	Extent float64
}

// Manager is a read-through cache of sampled tiles. Concurrent requests for
// the same missing tile share a single evaluation.
type Manager struct {
	source  Source
	storage Storage
	opts    Options
	prefix  string
	logger  *log.Logger

	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

func NewManager(source Source, storage Storage, opts Options, logger *log.Logger) (*Manager, error) {
	if source == nil || storage == nil {
		return nil, errors.New("tiles: source and storage are required")
	}
	if !(opts.Size > 0) || math.IsInf(opts.Size, 0) {
		return nil, fmt.Errorf("tiles: size %v must be positive", opts.Size)
	}
	if opts.Resolution < 2 {
		return nil, fmt.Errorf("tiles: resolution %d must be at least 2", opts.Resolution)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		source:  source,
		storage: storage,
		opts:    opts,
		prefix:  fmt.Sprintf("%016x/%g/%d/", source.Fingerprint(), opts.Size, opts.Resolution),
		logger:  logger,
	}, nil
}

func (m *Manager) Options() Options {
	return m.opts
}

// KeyFor returns the tile containing world position (x, z).
func (m *Manager) KeyFor(x, z float64) Key {
	return Key{
		TX: int(math.Floor(x / m.opts.Size)),
		TZ: int(math.Floor(z / m.opts.Size)),
	}
}

// Origin returns the world position of the tile's minimum corner.
func (m *Manager) Origin(key Key) (x, z float64) {
	return float64(key.TX) * m.opts.Size, float64(key.TZ) * m.opts.Size
}

func (m *Manager) storageKey(key Key) string {
	return m.prefix + key.String()
}

// Tile returns the samples for key, evaluating and storing them on a miss.
// The returned grid may be shared with other callers and must not be
// modified.
func (m *Manager) Tile(ctx context.Context, key Key) (heightfield.Grid, error) {
	if lo, hi, bounded := m.coverRange(); bounded && (key.TX < lo || key.TX > hi || key.TZ < lo || key.TZ > hi) {
		return heightfield.Grid{}, fmt.Errorf("%w: %v", ErrOutsideWorld, key)
	}
	skey := m.storageKey(key)

	grid, ok, err := m.storage.Load(skey)
	if err != nil {
		return heightfield.Grid{}, err
	}
	if ok {
		m.hits.Add(1)
		return grid, nil
	}

	if err := ctx.Err(); err != nil {
		return heightfield.Grid{}, err
	}
	// The evaluation is shared; each caller only waits on its own context.
	ch := m.group.DoChan(skey, func() (interface{}, error) {
		if grid, ok, err := m.storage.Load(skey); err != nil {
			return nil, err
		} else if ok {
			m.hits.Add(1)
			return grid, nil
		}

		m.misses.Add(1)
		x, z := m.Origin(key)
		grid, err := m.source.EvaluateGrid(x, z, m.opts.Size, m.opts.Size, m.opts.Resolution, m.opts.Resolution)
		if err != nil {
			return nil, fmt.Errorf("evaluate tile %v: %w", key, err)
		}
		if err := m.storage.Save(skey, grid); err != nil {
			return nil, err
		}
		return grid, nil
	})
	select {
	case <-ctx.Done():
		return heightfield.Grid{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return heightfield.Grid{}, res.Err
		}
		return res.Val.(heightfield.Grid), nil
	}
}

// Covering lists the tiles intersecting the centred square of side Extent,
// row by row.
func (m *Manager) Covering() []Key {
	lo, hi, bounded := m.coverRange()
	if !bounded {
		return nil
	}
	keys := make([]Key, 0, (hi-lo+1)*(hi-lo+1))
	for tz := lo; tz <= hi; tz++ {
		for tx := lo; tx <= hi; tx++ {
			keys = append(keys, Key{TX: tx, TZ: tz})
		}
	}
	return keys
}

// Warmup fills the cache for every covering tile, logging progress in 10%
// steps.
func (m *Manager) Warmup(ctx context.Context) error {
	keys := m.Covering()
	total := len(keys)
	if total == 0 {
		return nil
	}
	m.logger.Printf("tile warmup progress: 0%% (%d tiles)", total)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupWorkers(total))

	progress := make(chan struct{}, total)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if _, err := m.Tile(ctx, key); err != nil {
				return err
			}
			progress <- struct{}{}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(progress)
	}()

	completed := 0
	nextLogPercent := 10
	for range progress {
		completed++
		percent := completed * 100 / total
		if percent >= nextLogPercent {
			m.logger.Printf("tile warmup progress: %d%%", percent)
			nextLogPercent = (percent/10 + 1) * 10
		}
	}
	if err := <-done; err != nil {
		return fmt.Errorf("tile warmup: %w", err)
	}
	return nil
}

// coverRange returns the inclusive tile index range on either axis. Managers
// without an extent are unbounded.
func (m *Manager) coverRange() (lo, hi int, bounded bool) {
	if !(m.opts.Extent > 0) {
		return 0, 0, false
	}
	half := m.opts.Extent / 2
	lo = int(math.Floor(-half / m.opts.Size))
	hi = int(math.Ceil(half/m.opts.Size)) - 1
	return lo, hi, true
}

func warmupWorkers(total int) int {
	workers := runtime.GOMAXPROCS(0) * 2
	if workers > total {
		workers = total
	}
	if workers <= 0 {
		workers = 1
	}
	return workers
}

// Prune deletes stored tiles written for another terrain or tiling and
// reports how many were removed.
func (m *Manager) Prune() (int, error) {
	var stale []string
	err := m.storage.ForEach(func(key string, _ heightfield.Grid) bool {
		if !strings.HasPrefix(key, m.prefix) {
			stale = append(stale, key)
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	for i, key := range stale {
		if err := m.storage.Delete(key); err != nil {
			return i, err
		}
	}
	if len(stale) > 0 {
		m.logger.Printf("pruned %d stale tiles", len(stale))
	}
	return len(stale), nil
}

type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

func (m *Manager) Stats() Stats {
	return Stats{Hits: m.hits.Load(), Misses: m.misses.Load()}
}

func (m *Manager) Close() error {
	return m.storage.Close()
}
