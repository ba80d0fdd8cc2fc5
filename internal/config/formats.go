package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Format names a configuration encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFor picks the encoding from a file extension, defaulting to YAML.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Decode unmarshals data onto cfg, leaving fields absent from data untouched.
// TOML documents are parsed into a tree and decoded through the YAML field
// names, which the toml tags mirror.
func Decode(data []byte, format Format, cfg *Config) error {
	switch format {
	case FormatYAML:
		return yaml.Unmarshal(data, cfg)
	case FormatTOML:
		tree, err := toml.LoadBytes(data)
		if err != nil {
			return err
		}
		bridged, err := yaml.Marshal(tree.ToMap())
		if err != nil {
			return err
		}
		return yaml.Unmarshal(bridged, cfg)
	case FormatJSON:
		return json.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unknown config format %q", format)
	}
}

// Encode marshals cfg in the requested format.
func Encode(cfg *Config, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatTOML:
		bridged, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		var doc map[string]interface{}
		if err := yaml.Unmarshal(bridged, &doc); err != nil {
			return nil, err
		}
		tree, err := toml.TreeFromMap(doc)
		if err != nil {
			return nil, err
		}
		return tree.Marshal()
	case FormatJSON:
		return json.MarshalIndent(cfg, "", "  ")
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}
}
