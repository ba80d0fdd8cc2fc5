package heightfield

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidGrid is returned for grid requests with a non-positive resolution
// or a non-finite region.
var ErrInvalidGrid = errors.New("heightfield: invalid grid request")

// normalStep is the central difference offset used by Normal.
const normalStep = 0.1

// GroundQuery is what placement routines, the tile cache and the HTTP service
// depend on. They never look at the individual shaping components.
type GroundQuery interface {
	Evaluate(x, z float64) float64
	EvaluateGrid(originX, originZ, width, depth float64, resX, resZ int) (Grid, error)
	EvaluatePoints(points []Point) []float64
}

// Point is a horizontal query position.
type Point struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// HeightField composes noise, edge falloff, path mask, hills and basins into a
// single pure function. It holds no mutable state and is safe for concurrent
// use.
type HeightField struct {
	cfg    Config
	noise  NoiseField
	edge   EdgeFalloff
	paths  PathMask
	hills  HillSet
	basins WaterBasinSet
}

var _ GroundQuery = (*HeightField)(nil)

// New validates cfg and builds a HeightField. A *ConfigError is returned for
// invalid configurations; no partially built field is ever handed out.
func New(cfg Config) (*HeightField, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hills := NewHillSet(cfg.Hills)
	basins := NewWaterBasinSet(cfg.Basins)
	cfg.Hills = hills.hills
	cfg.Basins = basins.basins
	return &HeightField{
		cfg:    cfg,
		noise:  NewNoiseField(cfg.Octaves),
		edge:   NewEdgeFalloff(cfg.WorldExtent, cfg.EdgeFalloffExponent),
		paths:  NewPathMask(cfg.PathFalloffDivisor),
		hills:  hills,
		basins: basins,
	}, nil
}

// Config returns a copy of the configuration the field was built from.
func (h *HeightField) Config() Config {
	cfg := h.cfg
	cfg.Hills = append([]Hill(nil), h.cfg.Hills...)
	cfg.Basins = append([]WaterBasin(nil), h.cfg.Basins...)
	return cfg
}

func (h *HeightField) Noise() NoiseField { return h.noise }
func (h *HeightField) EdgeFalloff() EdgeFalloff { return h.edge }
func (h *HeightField) PathMask() PathMask { return h.paths }
func (h *HeightField) Hills() HillSet { return h.hills }
func (h *HeightField) Basins() WaterBasinSet { return h.basins }

// Evaluate returns the terrain elevation at (x, z). The order of the steps is
// fixed: scaled noise, edge and path attenuation, hills, then basins.
// Non-finite input yields a non-finite result.
func (h *HeightField) Evaluate(x, z float64) float64 {
	base := h.noise.Noise(x, z) * NoiseAmplitude
	base *= h.edge.Falloff(x, z) * h.paths.Influence(x, z)
	base += h.hills.Contribution(x, z)
	return h.basins.Apply(base, x, z)
}

// EvaluatePoints evaluates every point independently.
func (h *HeightField) EvaluatePoints(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = h.Evaluate(p.X, p.Z)
	}
	return out
}

// EvaluateGrid samples resX by resZ points spanning width by depth from the
// origin, edges inclusive. Rows are evaluated concurrently; every value equals
// Evaluate at Grid.X(i), Grid.Z(j).
func (h *HeightField) EvaluateGrid(originX, originZ, width, depth float64, resX, resZ int) (Grid, error) {
	grid, err := newGrid(originX, originZ, width, depth, resX, resZ)
	if err != nil {
		return Grid{}, err
	}

	var g errgroup.Group
	g.SetLimit(rowWorkers(resZ))
	for j := 0; j < resZ; j++ {
		j := j
		g.Go(func() error {
			row := grid.Row(j)
			z := grid.Z(j)
			for i := range row {
				row[i] = h.Evaluate(grid.X(i), z)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Grid{}, err
	}
	return grid, nil
}

// Normal returns the unit surface normal at (x, z), estimated with central
// differences.
func (h *HeightField) Normal(x, z float64) mgl64.Vec3 {
	dx := (h.Evaluate(x+normalStep, z) - h.Evaluate(x-normalStep, z)) / (2 * normalStep)
	dz := (h.Evaluate(x, z+normalStep) - h.Evaluate(x, z-normalStep)) / (2 * normalStep)
	return mgl64.Vec3{-dx, 1, -dz}.Normalize()
}

// Fingerprint identifies the configuration: two fields with equal
// fingerprints produce the same heights.
func (h *HeightField) Fingerprint() uint64 {
	return Fingerprint(h.cfg)
}

// Fingerprint hashes every value that influences Evaluate, in pipeline order.
func Fingerprint(cfg Config) uint64 {
	d := xxhash.New()
	buf := make([]byte, 8)
	put := func(v float64) {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		_, _ = d.Write(buf)
	}
	put(cfg.WorldExtent)
	put(cfg.EdgeFalloffExponent)
	put(cfg.PathFalloffDivisor)
	for _, o := range cfg.Octaves {
		put(o.Frequency)
		put(o.Weight)
	}
	put(float64(len(cfg.Hills)))
	for _, hill := range cfg.Hills {
		put(hill.CenterX)
		put(hill.CenterZ)
		put(hill.PeakHeight)
		put(hill.Radius)
	}
	put(float64(len(cfg.Basins)))
	for _, b := range cfg.Basins {
		put(b.CenterX)
		put(b.CenterZ)
		put(b.Radius)
		put(b.TargetDepth)
	}
	return d.Sum64()
}

func rowWorkers(rows int) int {
	workers := runtime.GOMAXPROCS(0) * 2
	if workers > rows {
		workers = rows
	}
	if workers <= 0 {
		workers = 1
	}
	return workers
}

func (h *HeightField) String() string {
	return fmt.Sprintf("heightfield(extent=%g hills=%d basins=%d)", h.cfg.WorldExtent, h.hills.Len(), h.basins.Len())
}
