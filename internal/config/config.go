package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"parkterrain/internal/heightfield"
)

// Duration is a time.Duration written as a Go duration string ("5s") in
// every config format.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalText serves the JSON, YAML and TOML encoders alike.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText parses a Go duration string. Blank text is zero.
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config captures everything needed to run the ground query service.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server" toml:"server"`
	Terrain   TerrainConfig   `json:"terrain" yaml:"terrain" toml:"terrain"`
	Tiles     TilesConfig     `json:"tiles" yaml:"tiles" toml:"tiles"`
	Placement PlacementConfig `json:"placement" yaml:"placement" toml:"placement"`
}

type ServerConfig struct {
	ListenAddress   string   `json:"listenAddress" yaml:"listen_address" toml:"listen_address"`
	HTTPPort        int      `json:"httpPort" yaml:"http_port" toml:"http_port"`
	ShutdownTimeout Duration `json:"shutdownTimeout" yaml:"shutdown_timeout" toml:"shutdown_timeout"` // e.g. "5s"
	MaxGridSamples  int      `json:"maxGridSamples" yaml:"max_grid_samples" toml:"max_grid_samples"`  // resX*resZ cap per request
	PreviewSize     int      `json:"previewSize" yaml:"preview_size" toml:"preview_size"`              // pixels per side of /preview.png
}

type TerrainConfig struct {
	WorldExtent float64 `json:"worldExtent" yaml:"world_extent" toml:"world_extent"`
	// OctavePreset selects "reference" or "legacy" weights when Octaves is empty.
	OctavePreset        string                    `json:"octavePreset" yaml:"octave_preset" toml:"octave_preset"`
	Octaves             []heightfield.NoiseOctave `json:"octaves,omitempty" yaml:"octaves,omitempty" toml:"octaves,omitempty"`
	Hills               []heightfield.Hill        `json:"hills" yaml:"hills" toml:"hills"`
	Basins              []heightfield.WaterBasin  `json:"basins" yaml:"basins" toml:"basins"`
	EdgeFalloffExponent float64                   `json:"edgeFalloffExponent" yaml:"edge_falloff_exponent" toml:"edge_falloff_exponent"`
	PathFalloffDivisor  float64                   `json:"pathFalloffDivisor" yaml:"path_falloff_divisor" toml:"path_falloff_divisor"`
}

type TilesConfig struct {
	Size       float64 `json:"size" yaml:"size" toml:"size"`                   // world units per tile side
	Resolution int     `json:"resolution" yaml:"resolution" toml:"resolution"` // samples per tile side, edges shared
	Storage    string  `json:"storage" yaml:"storage" toml:"storage"`          // "memory" or "leveldb"
	Path       string  `json:"path" yaml:"path" toml:"path"`
	Warmup     bool    `json:"warmup" yaml:"warmup" toml:"warmup"`
}

type PlacementConfig struct {
	Seed int64 `json:"seed" yaml:"seed" toml:"seed"`
	// ScatterExtent is the side of the square ground patches are scattered in.
	ScatterExtent float64 `json:"scatterExtent" yaml:"scatter_extent" toml:"scatter_extent"`
	// ClusterMainRatio is the chance a cluster tree uses the cluster's main type.
	ClusterMainRatio float64 `json:"clusterMainRatio" yaml:"cluster_main_ratio" toml:"cluster_main_ratio"`
}

const (
	StorageMemory  = "memory"
	StorageLevelDB = "leveldb"

	OctavesReference = "reference"
	OctavesLegacy    = "legacy"
)

// Load reads configuration from a YAML, TOML or JSON file, chosen by
// extension. An empty path returns defaults. Values in the file override the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := Decode(data, FormatFor(path), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func Default() *Config {
	ref := heightfield.ReferenceConfig()
	return &Config{
		Server: ServerConfig{
			ListenAddress:   "0.0.0.0",
			HTTPPort:        28090,
			ShutdownTimeout: Duration(5 * time.Second),
			MaxGridSamples:  1 << 20,
			PreviewSize:     257,
		},
		Terrain: TerrainConfig{
			WorldExtent:         ref.WorldExtent,
			OctavePreset:        OctavesReference,
			Hills:               ref.Hills,
			Basins:              ref.Basins,
			EdgeFalloffExponent: ref.EdgeFalloffExponent,
			PathFalloffDivisor:  ref.PathFalloffDivisor,
		},
		Tiles: TilesConfig{
			Size:       25,
			Resolution: 33,
			Storage:    StorageMemory,
			Path:       "./data/tiles",
			Warmup:     false,
		},
		Placement: PlacementConfig{
			Seed:             1337,
			ScatterExtent:    80,
			ClusterMainRatio: 0.8,
		},
	}
}

// Validate fills unset server values and reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = "0.0.0.0"
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 28090
	}
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d out of range", c.Server.HTTPPort)
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = Duration(5 * time.Second)
	}
	if c.Server.MaxGridSamples <= 0 {
		return errors.New("server.max_grid_samples must be positive")
	}
	if c.Server.PreviewSize < 2 {
		return errors.New("server.preview_size must be at least 2")
	}

	if _, err := c.Terrain.HeightField(); err != nil {
		return err
	}

	if c.Tiles.Size <= 0 {
		return errors.New("tiles.size must be positive")
	}
	if c.Tiles.Resolution < 2 {
		return errors.New("tiles.resolution must be at least 2")
	}
	switch c.Tiles.Storage {
	case "":
		c.Tiles.Storage = StorageMemory
	case StorageMemory:
	case StorageLevelDB:
		if c.Tiles.Path == "" {
			return errors.New("tiles.path must be set for leveldb storage")
		}
	default:
		return fmt.Errorf("tiles.storage must be either %q or %q", StorageMemory, StorageLevelDB)
	}

	if c.Placement.ScatterExtent <= 0 {
		return errors.New("placement.scatter_extent must be positive")
	}
	if c.Placement.ClusterMainRatio < 0 || c.Placement.ClusterMainRatio > 1 {
		return errors.New("placement.cluster_main_ratio must be within [0, 1]")
	}
	return nil
}

// HeightField converts the terrain section into a validated height field
// configuration. Errors wrap *heightfield.ConfigError where one applies.
func (t TerrainConfig) HeightField() (heightfield.Config, error) {
	cfg := heightfield.Config{
		WorldExtent:         t.WorldExtent,
		Hills:               t.Hills,
		Basins:              t.Basins,
		EdgeFalloffExponent: t.EdgeFalloffExponent,
		PathFalloffDivisor:  t.PathFalloffDivisor,
	}
	switch {
	case len(t.Octaves) == len(cfg.Octaves):
		copy(cfg.Octaves[:], t.Octaves)
	case len(t.Octaves) != 0:
		return heightfield.Config{}, fmt.Errorf("terrain.octaves must list exactly %d octaves, got %d", len(cfg.Octaves), len(t.Octaves))
	case t.OctavePreset == "" || t.OctavePreset == OctavesReference:
		cfg.Octaves = heightfield.ReferenceOctaves()
	case t.OctavePreset == OctavesLegacy:
		cfg.Octaves = heightfield.LegacyOctaves()
	default:
		return heightfield.Config{}, fmt.Errorf("terrain.octave_preset %q unknown", t.OctavePreset)
	}
	if err := cfg.Validate(); err != nil {
		return heightfield.Config{}, fmt.Errorf("terrain: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path in the format its
// extension names.
func WriteDefault(path string) error {
	data, err := Encode(Default(), FormatFor(path))
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
