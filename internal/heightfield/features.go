package heightfield

import "math"

// radialInfluence is 1 at the centre and falls linearly to 0 at radius.
func radialInfluence(x, z, cx, cz, radius float64) float64 {
	dx := x - cx
	dz := z - cz
	dist := math.Sqrt(dx*dx + dz*dz)
	return math.Max(0, 1-dist/radius)
}

// HillSet stacks radial bumps additively; overlapping hills form higher
// combined peaks.
type HillSet struct {
	hills []Hill
}

func NewHillSet(hills []Hill) HillSet {
	dup := make([]Hill, len(hills))
	copy(dup, hills)
	return HillSet{hills: dup}
}

func (s HillSet) Len() int {
	return len(s.hills)
}

// Contribution returns the summed hill height at (x, z).
func (s HillSet) Contribution(x, z float64) float64 {
	total := 0.0
	for _, h := range s.hills {
		infl := radialInfluence(x, z, h.CenterX, h.CenterZ, h.Radius)
		total += h.PeakHeight * infl * infl
	}
	return total
}

// WaterBasinSet depresses terrain toward each basin's target depth.
type WaterBasinSet struct {
	basins []WaterBasin
}

func NewWaterBasinSet(basins []WaterBasin) WaterBasinSet {
	dup := make([]WaterBasin, len(basins))
	copy(dup, basins)
	return WaterBasinSet{basins: dup}
}

func (s WaterBasinSet) Len() int {
	return len(s.basins)
}

// Apply blends height toward each basin in list order. Every basin sees the
// running height, so at an overlap the last basin listed dominates; the
// deepest one does not.
func (s WaterBasinSet) Apply(height, x, z float64) float64 {
	for _, b := range s.basins {
		infl := radialInfluence(x, z, b.CenterX, b.CenterZ, b.Radius)
		if infl <= 0 {
			continue
		}
		f := infl * infl
		height = height*(1-f) + b.TargetDepth*f
	}
	return height
}

// Contains reports whether (x, z) lies within margin of any basin rim.
func (s WaterBasinSet) Contains(x, z, margin float64) bool {
	for _, b := range s.basins {
		dx := x - b.CenterX
		dz := z - b.CenterZ
		if math.Sqrt(dx*dx+dz*dz) < b.Radius+margin {
			return true
		}
	}
	return false
}
