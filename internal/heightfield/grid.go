package heightfield

import (
	"fmt"
	"math"
)

// Grid holds heights sampled on a regular lattice. Values are row-major: row j
// is the line z = Z(j), column i is x = X(i).
type Grid struct {
	OriginX float64   `json:"originX"`
	OriginZ float64   `json:"originZ"`
	StepX   float64   `json:"stepX"`
	StepZ   float64   `json:"stepZ"`
	ResX    int       `json:"resX"`
	ResZ    int       `json:"resZ"`
	Values  []float64 `json:"values"`
}

// MaxGridSamples bounds resX*resZ for a single grid.
const MaxGridSamples = 1 << 28

func newGrid(originX, originZ, width, depth float64, resX, resZ int) (Grid, error) {
	if resX <= 0 || resZ <= 0 {
		return Grid{}, fmt.Errorf("%w: resolution %dx%d must be positive", ErrInvalidGrid, resX, resZ)
	}
	if resX > MaxGridSamples/resZ {
		return Grid{}, fmt.Errorf("%w: resolution %dx%d exceeds %d samples", ErrInvalidGrid, resX, resZ, MaxGridSamples)
	}
	for _, v := range []float64{originX, originZ, width, depth} {
		if !isFinite(v) {
			return Grid{}, fmt.Errorf("%w: region must be finite", ErrInvalidGrid)
		}
	}
	return Grid{
		OriginX: originX,
		OriginZ: originZ,
		StepX:   step(width, resX),
		StepZ:   step(depth, resZ),
		ResX:    resX,
		ResZ:    resZ,
		Values:  make([]float64, resX*resZ),
	}, nil
}

func step(span float64, res int) float64 {
	if res <= 1 {
		return 0
	}
	return span / float64(res-1)
}

// X returns the x coordinate of column i.
func (g Grid) X(i int) float64 {
	return g.OriginX + float64(i)*g.StepX
}

// Z returns the z coordinate of row j.
func (g Grid) Z(j int) float64 {
	return g.OriginZ + float64(j)*g.StepZ
}

// At returns the height at column i, row j.
func (g Grid) At(i, j int) float64 {
	return g.Values[j*g.ResX+i]
}

// Row returns row j backed by the grid's storage.
func (g Grid) Row(j int) []float64 {
	start := j * g.ResX
	return g.Values[start : start+g.ResX : start+g.ResX]
}

// Rows returns the grid as a slice of rows sharing the grid's storage.
func (g Grid) Rows() [][]float64 {
	rows := make([][]float64, g.ResZ)
	for j := range rows {
		rows[j] = g.Row(j)
	}
	return rows
}

// Bounds returns the lowest and highest sample.
func (g Grid) Bounds() (lo, hi float64) {
	if len(g.Values) == 0 {
		return 0, 0
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range g.Values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
