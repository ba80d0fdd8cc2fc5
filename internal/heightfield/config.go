package heightfield

import (
	"fmt"
	"math"
)

const (
	// NoiseAmplitude scales the unit noise before masking.
	NoiseAmplitude = 3.0

	// EdgeRadiusRatio is the fraction of the world extent at which the edge
	// falloff reaches zero.
	EdgeRadiusRatio = 0.45

	DefaultWorldExtent         = 200.0
	DefaultEdgeFalloffExponent = 4.0
	DefaultPathFalloffDivisor  = 8.0
)

// NoiseOctave is one frequency/weight pair of the undulation sum.
type NoiseOctave struct {
	Frequency float64 `json:"frequency" yaml:"frequency" toml:"frequency"`
	Weight    float64 `json:"weight" yaml:"weight" toml:"weight"`
}

// Hill is an additive radial bump.
type Hill struct {
	CenterX    float64 `json:"centerX" yaml:"center_x" toml:"center_x"`
	CenterZ    float64 `json:"centerZ" yaml:"center_z" toml:"center_z"`
	PeakHeight float64 `json:"peakHeight" yaml:"peak_height" toml:"peak_height"`
	Radius     float64 `json:"radius" yaml:"radius" toml:"radius"`
}

// WaterBasin pulls the terrain toward TargetDepth inside Radius. Basins are
// applied in list order against the running height, so where two basins
// overlap the later one wins.
type WaterBasin struct {
	CenterX     float64 `json:"centerX" yaml:"center_x" toml:"center_x"`
	CenterZ     float64 `json:"centerZ" yaml:"center_z" toml:"center_z"`
	Radius      float64 `json:"radius" yaml:"radius" toml:"radius"`
	TargetDepth float64 `json:"targetDepth" yaml:"target_depth" toml:"target_depth"`
}

// Config aggregates everything a HeightField needs. It is read-only once
// handed to New.
type Config struct {
	WorldExtent         float64        `json:"worldExtent" yaml:"world_extent" toml:"world_extent"`
	Octaves             [3]NoiseOctave `json:"octaves" yaml:"octaves" toml:"octaves"`
	Hills               []Hill         `json:"hills" yaml:"hills" toml:"hills"`
	Basins              []WaterBasin   `json:"basins" yaml:"basins" toml:"basins"`
	EdgeFalloffExponent float64        `json:"edgeFalloffExponent" yaml:"edge_falloff_exponent" toml:"edge_falloff_exponent"`
	PathFalloffDivisor  float64        `json:"pathFalloffDivisor" yaml:"path_falloff_divisor" toml:"path_falloff_divisor"`
}

// ReferenceOctaves returns the large/medium/small octave set.
func ReferenceOctaves() [3]NoiseOctave {
	return [3]NoiseOctave{
		{Frequency: 0.015, Weight: 0.6},
		{Frequency: 0.03, Weight: 0.3},
		{Frequency: 0.08, Weight: 0.1},
	}
}

// LegacyOctaves reproduces the weights the first park build actually used:
// its medium and small octaves carried an extra 0.5 and 0.25 factor.
func LegacyOctaves() [3]NoiseOctave {
	return [3]NoiseOctave{
		{Frequency: 0.015, Weight: 0.6},
		{Frequency: 0.03, Weight: 0.3 * 0.5},
		{Frequency: 0.08, Weight: 0.1 * 0.25},
	}
}

// ReferenceHills are the four park hills.
func ReferenceHills() []Hill {
	return []Hill{
		{CenterX: -20, CenterZ: 15, PeakHeight: 3, Radius: 10},
		{CenterX: 25, CenterZ: -25, PeakHeight: 2.5, Radius: 12},
		{CenterX: -30, CenterZ: -20, PeakHeight: 2, Radius: 8},
		{CenterX: 18, CenterZ: 22, PeakHeight: 2.8, Radius: 9},
	}
}

// ReferenceBasins are the park's two ponds and the central fountain.
func ReferenceBasins() []WaterBasin {
	return []WaterBasin{
		{CenterX: -25, CenterZ: -20, Radius: 8, TargetDepth: -0.3},
		{CenterX: 25, CenterZ: 25, Radius: 10, TargetDepth: -0.4},
		{CenterX: 0, CenterZ: 0, Radius: 3, TargetDepth: -0.5},
	}
}

// ReferenceConfig returns the park world.
func ReferenceConfig() Config {
	return Config{
		WorldExtent:         DefaultWorldExtent,
		Octaves:             ReferenceOctaves(),
		Hills:               ReferenceHills(),
		Basins:              ReferenceBasins(),
		EdgeFalloffExponent: DefaultEdgeFalloffExponent,
		PathFalloffDivisor:  DefaultPathFalloffDivisor,
	}
}

// ConfigError reports a configuration value that cannot produce a valid
// height field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("heightfield config: %s %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// Validate reports the first invalid value as a *ConfigError.
func (c Config) Validate() error {
	if !isFinite(c.WorldExtent) || c.WorldExtent <= 0 {
		return invalid("world_extent", "must be a positive finite number")
	}
	if !isFinite(c.EdgeFalloffExponent) || c.EdgeFalloffExponent <= 0 {
		return invalid("edge_falloff_exponent", "must be a positive finite number")
	}
	if !isFinite(c.PathFalloffDivisor) || c.PathFalloffDivisor <= 0 {
		return invalid("path_falloff_divisor", "must be a positive finite number")
	}
	for i, o := range c.Octaves {
		if !isFinite(o.Frequency) || !isFinite(o.Weight) {
			return invalid(fmt.Sprintf("octaves[%d]", i), "must be finite")
		}
	}
	for i, h := range c.Hills {
		field := fmt.Sprintf("hills[%d]", i)
		if !isFinite(h.CenterX) || !isFinite(h.CenterZ) {
			return invalid(field+".center", "must be finite")
		}
		if !isFinite(h.PeakHeight) {
			return invalid(field+".peak_height", "must be finite")
		}
		if !isFinite(h.Radius) || h.Radius <= 0 {
			return invalid(field+".radius", "must be a positive finite number")
		}
	}
	for i, b := range c.Basins {
		field := fmt.Sprintf("basins[%d]", i)
		if !isFinite(b.CenterX) || !isFinite(b.CenterZ) {
			return invalid(field+".center", "must be finite")
		}
		if !isFinite(b.TargetDepth) {
			return invalid(field+".target_depth", "must be finite")
		}
		if !isFinite(b.Radius) || b.Radius <= 0 {
			return invalid(field+".radius", "must be a positive finite number")
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
