package heightfield

import "math"

// NoiseField is trigonometric pseudo-noise: a weighted sum of
// sin(x·f)cos(z·f) + cos(x·f)sin(z·f) terms. It is analytic, so any point can be
// evaluated without a lattice or seed.
type NoiseField struct {
	octaves [3]NoiseOctave
}

func NewNoiseField(octaves [3]NoiseOctave) NoiseField {
	return NoiseField{octaves: octaves}
}

// Noise returns the undulation at (x, z), roughly within [-1, 1] when the
// weights sum to 1.
func (n NoiseField) Noise(x, z float64) float64 {
	sum := 0.0
	for _, octave := range n.octaves {
		sx, cx := math.Sincos(x * octave.Frequency)
		sz, cz := math.Sincos(z * octave.Frequency)
		sum += octave.Weight * (sx*cz + cx*sz)
	}
	return sum
}
