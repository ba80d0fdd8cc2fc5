package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"parkterrain/internal/config"
	"parkterrain/internal/heightfield"
	"parkterrain/internal/placement"
	"parkterrain/internal/preview"
)

type command struct {
	summary string
	run     func(args []string, stdout io.Writer) error
}

var commands = map[string]command{
	"sample":  {summary: "print the height and normal at one or more x,z points", run: runSample},
	"grid":    {summary: "sample a regular grid as JSON or CSV", run: runGrid},
	"preview": {summary: "render a hill shaded PNG of the world", run: runPreview},
	"place":   {summary: "print the park layout as JSON", run: runPlace},
	"profile": {summary: "measure tile cache latency under concurrent queries", run: runProfile},
	"config":  {summary: "write the default configuration file", run: runConfig},
}

var errUsage = errors.New("usage")

var logger = log.New(os.Stderr, "heightctl ", log.LstdFlags|log.Lmicroseconds)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(stderr)
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		if suggestion := suggest(args[0]); suggestion != "" {
			return fmt.Errorf("unknown command %q, did you mean %q?", args[0], suggestion)
		}
		usage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.run(args[1:], stdout)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: heightctl <command> [flags]")
	fmt.Fprintln(w)
	for _, name := range commandNames() {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].summary)
	}
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// suggest returns the closest command name within an edit distance that
// scales with the name's length, or "" when nothing is close.
func suggest(input string) string {
	best, bestDist := "", -1
	for _, name := range commandNames() {
		dist := levenshtein.ComputeDistance(strings.ToLower(input), name)
		if dist > levenshteinLimit(len(name)) {
			continue
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = name, dist
		}
	}
	return best
}

func levenshteinLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 6:
		return 2
	default:
		return 3
	}
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfgPath := fs.String("config", "", "configuration file (.yml, .toml or .json); defaults to the reference park")
	return fs, cfgPath
}

func loadField(cfgPath string) (*config.Config, *heightfield.HeightField, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	hfCfg, err := cfg.Terrain.HeightField()
	if err != nil {
		return nil, nil, err
	}
	field, err := heightfield.New(hfCfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, field, nil
}

type sampleResult struct {
	X      float64    `json:"x"`
	Z      float64    `json:"z"`
	Height float64    `json:"height"`
	Normal [3]float64 `json:"normal"`
}

// runSample takes positional "x,z" pairs.
func runSample(args []string, stdout io.Writer) error {
	fs, cfgPath := newFlagSet("sample")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("sample: at least one x,z point is required")
	}
	points := make([]heightfield.Point, 0, fs.NArg())
	for _, arg := range fs.Args() {
		p, err := parsePoint(arg)
		if err != nil {
			return fmt.Errorf("sample: %w", err)
		}
		points = append(points, p)
	}

	_, field, err := loadField(*cfgPath)
	if err != nil {
		return err
	}
	heights := field.EvaluatePoints(points)
	results := make([]sampleResult, len(points))
	for i, p := range points {
		results[i] = sampleResult{X: p.X, Z: p.Z, Height: heights[i], Normal: field.Normal(p.X, p.Z)}
	}
	return writeJSON(stdout, results)
}

func parsePoint(raw string) (heightfield.Point, error) {
	xs, zs, ok := strings.Cut(raw, ",")
	if !ok {
		return heightfield.Point{}, fmt.Errorf("point %q must be x,z", raw)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		return heightfield.Point{}, fmt.Errorf("point %q: invalid x", raw)
	}
	z, err := strconv.ParseFloat(strings.TrimSpace(zs), 64)
	if err != nil || math.IsNaN(z) || math.IsInf(z, 0) {
		return heightfield.Point{}, fmt.Errorf("point %q: invalid z", raw)
	}
	return heightfield.Point{X: x, Z: z}, nil
}

func runGrid(args []string, stdout io.Writer) error {
	fs, cfgPath := newFlagSet("grid")
	var (
		ox     = fs.Float64("ox", -100, "grid origin x")
		oz     = fs.Float64("oz", -100, "grid origin z")
		width  = fs.Float64("w", 200, "grid width along x")
		depth  = fs.Float64("d", 200, "grid depth along z")
		resX   = fs.Int("rx", 65, "samples along x")
		resZ   = fs.Int("rz", 65, "samples along z")
		format = fs.String("format", "json", "output format: json or csv")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *format != "json" && *format != "csv" {
		return fmt.Errorf("grid: unknown format %q", *format)
	}

	_, field, err := loadField(*cfgPath)
	if err != nil {
		return err
	}
	grid, err := field.EvaluateGrid(*ox, *oz, *width, *depth, *resX, *resZ)
	if err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	if *format == "json" {
		return writeJSON(stdout, grid)
	}

	w := csv.NewWriter(stdout)
	if err := w.Write([]string{"x", "z", "height"}); err != nil {
		return err
	}
	for j := 0; j < grid.ResZ; j++ {
		for i := 0; i < grid.ResX; i++ {
			record := []string{
				strconv.FormatFloat(grid.X(i), 'g', -1, 64),
				strconv.FormatFloat(grid.Z(j), 'g', -1, 64),
				strconv.FormatFloat(grid.At(i, j), 'g', -1, 64),
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func runPreview(args []string, stdout io.Writer) error {
	fs, cfgPath := newFlagSet("preview")
	var (
		out     = fs.String("out", "terrain.png", "output PNG path")
		size    = fs.Int("size", 0, "pixels per side; defaults to server.preview_size")
		markers = fs.Bool("markers", true, "draw trees and benches from the park layout")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, field, err := loadField(*cfgPath)
	if err != nil {
		return err
	}
	if *size <= 0 {
		*size = cfg.Server.PreviewSize
	}
	extent := field.Config().WorldExtent
	grid, err := field.EvaluateGrid(-extent/2, -extent/2, extent, extent, *size, *size)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}

	opts := preview.DefaultOptions()
	opts.PathDistance = field.PathMask().Distance
	if *markers {
		layout := newPlanner(cfg, field).Plan()
		for _, p := range layout.Trees {
			opts.Markers = append(opts.Markers, preview.Marker{X: p.Position.X(), Z: p.Position.Z(), Color: "#1f4d1a"})
		}
		for _, p := range layout.Benches {
			opts.Markers = append(opts.Markers, preview.Marker{X: p.Position.X(), Z: p.Position.Z(), Color: "#6b4a2b"})
		}
	}
	img, err := preview.Render(grid, opts)
	if err != nil {
		return err
	}
	if err := preview.SaveFile(*out, img); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %dx%d preview to %s\n", *size, *size, *out)
	return nil
}

func runPlace(args []string, stdout io.Writer) error {
	fs, cfgPath := newFlagSet("place")
	kind := fs.String("kind", "", "only print placements of this kind (tree, bench, rock, patch)")
	seed := fs.Int64("seed", 0, "override placement.seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, field, err := loadField(*cfgPath)
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			cfg.Placement.Seed = *seed
		}
	})
	layout := newPlanner(cfg, field).Plan()
	if *kind == "" {
		return writeJSON(stdout, layout)
	}
	filtered := []placement.Placement{}
	for _, p := range layout.All() {
		if string(p.Kind) == *kind {
			filtered = append(filtered, p)
		}
	}
	return writeJSON(stdout, filtered)
}

func newPlanner(cfg *config.Config, field *heightfield.HeightField) *placement.Planner {
	opts := placement.DefaultOptions()
	opts.Seed = cfg.Placement.Seed
	opts.ScatterExtent = cfg.Placement.ScatterExtent
	opts.ClusterMainRatio = cfg.Placement.ClusterMainRatio
	return placement.NewPlanner(field, opts, logger)
}

func runConfig(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	out := fs.String("out", "ground.yml", "path to write; the extension picks YAML, TOML or JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.WriteDefault(*out); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "default configuration written to %s\n", *out)
	return nil
}

func writeJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
