package heightfield

import "math"

// diagonalScale converts |x∓z| into the perpendicular distance to a diagonal.
const diagonalScale = 0.70710678

// EdgeFalloff flattens terrain toward the world boundary.
type EdgeFalloff struct {
	radius   float64
	exponent float64
}

func NewEdgeFalloff(worldExtent, exponent float64) EdgeFalloff {
	return EdgeFalloff{radius: worldExtent * EdgeRadiusRatio, exponent: exponent}
}

// Radius is the distance from the origin at which the falloff reaches zero.
func (e EdgeFalloff) Radius() float64 {
	return e.radius
}

// Falloff is 1 at the origin, decreases monotonically with distance and is 0
// at and beyond Radius.
func (e EdgeFalloff) Falloff(x, z float64) float64 {
	d := math.Sqrt(x*x + z*z)
	return math.Max(0, 1-math.Pow(d/e.radius, e.exponent))
}

// PathMask flattens terrain along the four corridors through the origin: both
// axes and both diagonals.
type PathMask struct {
	divisor float64
}

func NewPathMask(divisor float64) PathMask {
	return PathMask{divisor: divisor}
}

// Distance returns the distance from (x, z) to the nearest corridor.
func (p PathMask) Distance(x, z float64) float64 {
	d := math.Min(math.Abs(x), math.Abs(z))
	d = math.Min(d, math.Abs(x-z)*diagonalScale)
	return math.Min(d, math.Abs(x+z)*diagonalScale)
}

// Influence is 0 on a corridor and rises linearly to 1 at divisor units away.
func (p PathMask) Influence(x, z float64) float64 {
	return math.Min(1, p.Distance(x, z)/p.divisor)
}
