package placement

import (
	"bytes"
	"log"
	"math"
	"reflect"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"parkterrain/internal/heightfield"
)

func newPlanner(t *testing.T, opts Options) (*Planner, *heightfield.HeightField) {
	t.Helper()
	field, err := heightfield.New(heightfield.ReferenceConfig())
	if err != nil {
		t.Fatalf("heightfield.New: %v", err)
	}
	return NewPlanner(field, opts, log.New(&bytes.Buffer{}, "", 0)), field
}

func TestPlanIsDeterministic(t *testing.T) {
	planner, _ := newPlanner(t, DefaultOptions())
	first := planner.Plan()
	second := planner.Plan()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("two plans with the same seed differ")
	}

	other, _ := newPlanner(t, Options{Seed: 7, ScatterExtent: 80, ClusterMainRatio: 0.8, PatchDensityThreshold: -0.3})
	if reflect.DeepEqual(first.Trees, other.Plan().Trees) {
		t.Fatalf("plans with different seeds are identical")
	}
}

func TestPlanCounts(t *testing.T) {
	planner, _ := newPlanner(t, DefaultOptions())
	layout := planner.Plan()

	if got, want := len(layout.Trees), 18+8+10+7+9+6+20; got != want {
		t.Fatalf("len(Trees) = %d, want %d", got, want)
	}
	if got := len(layout.Benches); got != 14 {
		t.Fatalf("len(Benches) = %d, want 14", got)
	}
	if got := len(layout.Rocks); got != 6 {
		t.Fatalf("len(Rocks) = %d, want 6", got)
	}
	if got := len(layout.Patches) + layout.SkippedPatches; got != 20+15+12 {
		t.Fatalf("patches placed+skipped = %d, want 47", got)
	}
	if got := len(layout.All()); got != len(layout.Trees)+14+6+len(layout.Patches) {
		t.Fatalf("len(All()) = %d", got)
	}
}

func TestPlacementsRestOnGround(t *testing.T) {
	planner, field := newPlanner(t, DefaultOptions())
	layout := planner.Plan()

	for _, p := range layout.Trees {
		if got, want := p.Position.Y(), field.Evaluate(p.Position.X(), p.Position.Z()); got != want {
			t.Fatalf("tree %s at y=%v, want ground %v", p.ID, got, want)
		}
	}
	for _, p := range layout.Rocks {
		want := field.Evaluate(p.Position.X(), p.Position.Z()) + 0.35
		if math.Abs(p.Position.Y()-want) > 1e-12 {
			t.Fatalf("rock at y=%v, want %v", p.Position.Y(), want)
		}
		if math.Abs(p.Scale.Y()-p.Scale.X()*0.7) > 1e-12 {
			t.Fatalf("rock scale %v not flattened", p.Scale)
		}
	}
}

func TestFixedLayoutMatchesPark(t *testing.T) {
	planner, _ := newPlanner(t, DefaultOptions())
	layout := planner.Plan()

	first := layout.Trees[0]
	if first.Variant != TreePine || first.Position.X() != -15 || first.Position.Z() != -15 {
		t.Fatalf("first tree = %s at (%v, %v), want pine at (-15, -15)", first.Variant, first.Position.X(), first.Position.Z())
	}
	for _, p := range layout.Trees[14:18] {
		if p.Variant != TreePalm {
			t.Fatalf("tree at (%v, %v) = %s, want palm", p.Position.X(), p.Position.Z(), p.Variant)
		}
	}

	bench := layout.Benches[7]
	if bench.Variant != BenchStone || bench.Position.Z() != -15 || bench.Rotation != math.Pi {
		t.Fatalf("bench 7 = %+v, want stone at z=-15 facing pi", bench)
	}
}

func TestClusterTreesStayInRing(t *testing.T) {
	planner, _ := newPlanner(t, DefaultOptions())
	layout := planner.Plan()

	offset := len(fixedTrees)
	for _, c := range treeClusters {
		for _, p := range layout.Trees[offset : offset+c.count] {
			d := math.Hypot(p.Position.X()-c.x, p.Position.Z()-c.z)
			if d < 0.3*c.radius-1e-9 || d > c.radius+1e-9 {
				t.Fatalf("cluster (%v, %v) tree at distance %v, want within [%v, %v]", c.x, c.z, d, 0.3*c.radius, c.radius)
			}
		}
		offset += c.count
	}
}

func TestClusterMainRatio(t *testing.T) {
	opts := DefaultOptions()
	opts.ClusterMainRatio = 1
	planner, _ := newPlanner(t, opts)
	layout := planner.Plan()

	offset := len(fixedTrees)
	for _, c := range treeClusters {
		for _, p := range layout.Trees[offset : offset+c.count] {
			if p.Variant != c.mainType {
				t.Fatalf("cluster (%v, %v) tree = %s, want %s", c.x, c.z, p.Variant, c.mainType)
			}
		}
		offset += c.count
	}
}

func TestScatteredTreesFollowCycle(t *testing.T) {
	planner, _ := newPlanner(t, DefaultOptions())
	layout := planner.Plan()
	scattered := layout.Trees[len(layout.Trees)-scatteredTreeCount:]

	for i, p := range scattered {
		want := scatterCycle[i%len(scatterCycle)]
		if want == treeRandom {
			found := false
			for _, s := range randomSpecies {
				found = found || p.Variant == s
			}
			if !found {
				t.Fatalf("scattered tree %d = %s, want a known species", i, p.Variant)
			}
			continue
		}
		if p.Variant != want {
			t.Fatalf("scattered tree %d = %s, want %s", i, p.Variant, want)
		}
	}

	// i = 0: angle 0, distance 15, offset sin(0) = 0.
	if x, z := scattered[0].Position.X(), scattered[0].Position.Z(); x != 15 || z != 0 {
		t.Fatalf("scattered tree 0 at (%v, %v), want (15, 0)", x, z)
	}
}

func TestPatchesAvoidWaterAndPaths(t *testing.T) {
	planner, field := newPlanner(t, DefaultOptions())
	layout := planner.Plan()
	if len(layout.Patches) == 0 {
		t.Fatalf("no patches placed")
	}

	for _, p := range layout.Patches {
		x, z := p.Position.X(), p.Position.Z()
		if math.Abs(x) > 40 || math.Abs(z) > 40 {
			t.Fatalf("patch at (%v, %v) outside scatter square", x, z)
		}
		if field.Basins().Contains(x, z, 2) {
			t.Fatalf("patch at (%v, %v) inside a basin margin", x, z)
		}
		if d := field.PathMask().Distance(x, z); d < 5 {
			t.Fatalf("patch at (%v, %v) only %v from a path", x, z, d)
		}
	}
}

func TestStoneBenchesFollowSlope(t *testing.T) {
	planner, field := newPlanner(t, DefaultOptions())
	layout := planner.Plan()

	for _, b := range layout.Benches {
		switch b.Variant {
		case BenchStone:
			want := field.Normal(b.Position.X(), b.Position.Z())
			if !b.Up.ApproxEqual(want) {
				t.Fatalf("stone bench up = %v, want surface normal %v", b.Up, want)
			}
		case BenchWooden:
			if b.Up != (mgl64.Vec3{0, 1, 0}) {
				t.Fatalf("wooden bench up = %v, want +Y", b.Up)
			}
		default:
			t.Fatalf("unknown bench variant %q", b.Variant)
		}
	}
}

func TestPlacementIDsAreStableAndUnique(t *testing.T) {
	planner, _ := newPlanner(t, DefaultOptions())
	layout := planner.Plan()

	seen := make(map[uuid.UUID]bool)
	for _, p := range layout.All() {
		if p.ID.Version() != 5 {
			t.Fatalf("placement id %s is version %d, want 5", p.ID, p.ID.Version())
		}
		if seen[p.ID] {
			t.Fatalf("duplicate placement id %s", p.ID)
		}
		seen[p.ID] = true
	}
	if got, want := layout.Benches[0].ID, placementID(1337, KindBench, 0); got != want {
		t.Fatalf("bench 0 id = %s, want %s", got, want)
	}
}
