package placement

import (
	"fmt"
	"log"
	"math"
	"math/rand"

	"github.com/aquilax/go-perlin"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"parkterrain/internal/heightfield"
)

type Kind string

const (
	KindTree  Kind = "tree"
	KindBench Kind = "bench"
	KindRock  Kind = "rock"
	KindPatch Kind = "patch"
)

// Placement is one object resting on the ground. Position.Y() is the ground
// height plus any lift the object kind needs.
type Placement struct {
	ID       uuid.UUID  `json:"id"`
	Kind     Kind       `json:"kind"`
	Variant  string     `json:"variant"`
	Position mgl64.Vec3 `json:"position"`
	// Rotation is the yaw around +Y in radians.
	Rotation float64    `json:"rotation"`
	Scale    mgl64.Vec3 `json:"scale"`
	// Up is the object's up axis. Only stone benches follow the slope.
	Up mgl64.Vec3 `json:"up"`
}

// Layout is a complete park plan grouped by kind.
type Layout struct {
	Seed    int64       `json:"seed"`
	Trees   []Placement `json:"trees"`
	Benches []Placement `json:"benches"`
	Rocks   []Placement `json:"rocks"`
	Patches []Placement `json:"patches"`
	// SkippedPatches counts patches that found no valid spot.
	SkippedPatches int `json:"skippedPatches"`
}

// All returns every placement in plan order.
func (l Layout) All() []Placement {
	all := make([]Placement, 0, len(l.Trees)+len(l.Benches)+len(l.Rocks)+len(l.Patches))
	all = append(all, l.Trees...)
	all = append(all, l.Benches...)
	all = append(all, l.Rocks...)
	return append(all, l.Patches...)
}

// Terrain is what the planner needs from the ground.
type Terrain interface {
	Evaluate(x, z float64) float64
	Normal(x, z float64) mgl64.Vec3
	Basins() heightfield.WaterBasinSet
	PathMask() heightfield.PathMask
}

var _ Terrain = (*heightfield.HeightField)(nil)

type Options struct {
	Seed int64
	// ScatterExtent is the side of the centred square patches are scattered in.
	ScatterExtent    float64
	ClusterMainRatio float64
	// PatchDensityThreshold gates patch spots on a perlin field in [-1, 1].
	// Candidates below it are retried.
	PatchDensityThreshold float64
}

func DefaultOptions() Options {
	return Options{
		Seed:                  1337,
		ScatterExtent:         80,
		ClusterMainRatio:      0.8,
		PatchDensityThreshold: -0.3,
	}
}

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("parkterrain/placement"))

var worldUp = mgl64.Vec3{0, 1, 0}

// Planner lays out the park's trees, benches, rocks and ground patches on a
// terrain. Plans depend only on the terrain and the options.
type Planner struct {
	terrain Terrain
	opts    Options
	logger  *log.Logger
}

func NewPlanner(terrain Terrain, opts Options, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.Default()
	}
	return &Planner{terrain: terrain, opts: opts, logger: logger}
}

func (p *Planner) Options() Options {
	return p.opts
}

// Plan builds the layout. Calls with the same options return identical
// layouts.
func (p *Planner) Plan() Layout {
	rng := rand.New(rand.NewSource(p.opts.Seed))
	layout := Layout{Seed: p.opts.Seed}

	layout.Trees = p.planTrees(rng)
	layout.Benches = p.planBenches()
	layout.Rocks = p.planRocks()
	layout.Patches, layout.SkippedPatches = p.planPatches(rng)

	p.logger.Printf("planned park seed=%d: %d trees, %d benches, %d rocks, %d patches (%d skipped)",
		p.opts.Seed, len(layout.Trees), len(layout.Benches), len(layout.Rocks), len(layout.Patches), layout.SkippedPatches)
	return layout
}

func (p *Planner) planTrees(rng *rand.Rand) []Placement {
	total := len(fixedTrees) + scatteredTreeCount
	for _, c := range treeClusters {
		total += c.count
	}
	trees := make([]Placement, 0, total)
	add := func(x, z float64, variant string) {
		trees = append(trees, p.place(KindTree, len(trees), variant, x, z, 0))
	}

	for _, t := range fixedTrees {
		add(t.x, t.z, t.variant)
	}

	for _, c := range treeClusters {
		for i := 0; i < c.count; i++ {
			angle := float64(i)/float64(c.count)*2*math.Pi + math.Cos(c.x+c.z)
			dist := (0.3 + rng.Float64()*0.7) * c.radius
			variant := c.mainType
			if rng.Float64() >= p.opts.ClusterMainRatio {
				variant = clusterMix[rng.Intn(len(clusterMix))]
			}
			add(c.x+math.Cos(angle)*dist, c.z+math.Sin(angle)*dist, variant)
		}
	}

	for i := 0; i < scatteredTreeCount; i++ {
		angle := float64(i) / scatteredTreeCount * 2 * math.Pi
		dist := float64(scatterBaseDistance + (i%10)*scatterDistanceStep)
		offset := math.Sin(float64(i)*scatterOffsetFreq) * scatterOffsetScale
		variant := scatterCycle[i%len(scatterCycle)]
		if variant == treeRandom {
			variant = randomSpecies[rng.Intn(len(randomSpecies))]
		}
		add(math.Cos(angle)*dist+offset, math.Sin(angle)*dist+offset, variant)
	}
	return trees
}

func (p *Planner) planBenches() []Placement {
	benches := make([]Placement, 0, len(fixedBenches))
	for i, b := range fixedBenches {
		bench := p.place(KindBench, i, b.variant, b.x, b.z, 0)
		bench.Rotation = b.rotation
		if b.variant == BenchStone {
			bench.Up = p.terrain.Normal(b.x, b.z)
		}
		benches = append(benches, bench)
	}
	return benches
}

func (p *Planner) planRocks() []Placement {
	rocks := make([]Placement, 0, len(fixedRocks))
	for i, r := range fixedRocks {
		rock := p.place(KindRock, i, "", r.x, r.z, rockLift)
		rock.Rotation = r.rotation
		rock.Scale = mgl64.Vec3{r.scale, r.scale * rockFlattening, r.scale}
		rocks = append(rocks, rock)
	}
	return rocks
}

func (p *Planner) planPatches(rng *rand.Rand) ([]Placement, int) {
	density := perlin.NewPerlin(2, 2, 3, p.opts.Seed)
	extent := p.opts.ScatterExtent
	if !(extent > 0) {
		extent = DefaultOptions().ScatterExtent
	}

	var patches []Placement
	skipped := 0
	for _, kind := range patchKinds {
		for i := 0; i < kind.count; i++ {
			x, z, ok := p.findPatchSpot(rng, density, extent)
			if !ok {
				skipped++
				continue
			}
			scale := kind.minScale + rng.Float64()*(kind.maxScale-kind.minScale)
			patch := p.place(KindPatch, len(patches), kind.variant, x, z, kind.heightOffset)
			patch.Scale = mgl64.Vec3{scale, scale, scale}
			patches = append(patches, patch)
		}
	}
	return patches, skipped
}

func (p *Planner) findPatchSpot(rng *rand.Rand, density *perlin.Perlin, extent float64) (float64, float64, bool) {
	for attempt := 0; attempt < patchAttempts; attempt++ {
		x := (rng.Float64() - 0.5) * extent
		z := (rng.Float64() - 0.5) * extent
		if p.patchAllowed(x, z) && density.Noise2D(x/20, z/20) >= p.opts.PatchDensityThreshold {
			return x, z, true
		}
	}
	return 0, 0, false
}

// patchAllowed keeps patches out of water and off the paths.
func (p *Planner) patchAllowed(x, z float64) bool {
	if p.terrain.Basins().Contains(x, z, patchWaterMargin) {
		return false
	}
	return p.terrain.PathMask().Distance(x, z) >= patchPathClearance
}

func (p *Planner) place(kind Kind, index int, variant string, x, z, lift float64) Placement {
	return Placement{
		ID:       placementID(p.opts.Seed, kind, index),
		Kind:     kind,
		Variant:  variant,
		Position: mgl64.Vec3{x, p.terrain.Evaluate(x, z) + lift, z},
		Scale:    mgl64.Vec3{1, 1, 1},
		Up:       worldUp,
	}
}

func placementID(seed int64, kind Kind, index int) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("%d/%s/%d", seed, kind, index)))
}
