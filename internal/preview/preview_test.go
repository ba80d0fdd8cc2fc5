package preview

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"parkterrain/internal/heightfield"
)

func referenceGrid(t *testing.T, res int) (*heightfield.HeightField, heightfield.Grid) {
	t.Helper()
	field, err := heightfield.New(heightfield.ReferenceConfig())
	if err != nil {
		t.Fatalf("heightfield.New: %v", err)
	}
	grid, err := field.EvaluateGrid(-100, -100, 200, 200, res, res)
	if err != nil {
		t.Fatalf("EvaluateGrid: %v", err)
	}
	return field, grid
}

func TestRenderProducesImageOfGridSize(t *testing.T) {
	_, grid := referenceGrid(t, 65)
	img, err := Render(grid, DefaultOptions())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 65 || b.Dy() != 65 {
		t.Fatalf("image bounds = %v, want 65x65", b)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, img); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Fatalf("decoded bounds = %v, want %v", decoded.Bounds(), img.Bounds())
	}
}

func TestRenderColoursTerrainClasses(t *testing.T) {
	field, grid := referenceGrid(t, 201)
	opts := DefaultOptions()
	opts.PathDistance = field.PathMask().Distance
	opts.AmbientLight = 1
	img, err := Render(grid, opts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	palette, err := resolvePalette(opts.Palette)
	if err != nil {
		t.Fatalf("resolvePalette: %v", err)
	}

	// Sample (100,100) is the world origin: a basin under the path crossing.
	if got := img.NRGBAAt(100, 100); got.B <= got.R || got.B <= got.G {
		t.Fatalf("basin centre colour = %v, want water blue", got)
	}
	// (x=50, z=0) lies on the x axis path.
	if got := img.NRGBAAt(150, 100); got != palette.path {
		t.Fatalf("path colour = %v, want %v", got, palette.path)
	}
	// (x=-100, z=-50) is past the edge falloff and away from every path.
	if got := img.NRGBAAt(0, 50); got != palette.grass {
		t.Fatalf("edge colour = %v, want grass %v", got, palette.grass)
	}
}

func TestRenderShadesSlopes(t *testing.T) {
	cfg := heightfield.Config{
		WorldExtent:         400,
		EdgeFalloffExponent: 4,
		PathFalloffDivisor:  8,
		Hills:               []heightfield.Hill{{CenterX: 40, CenterZ: 40, PeakHeight: 6, Radius: 15}},
	}
	field, err := heightfield.New(cfg)
	if err != nil {
		t.Fatalf("heightfield.New: %v", err)
	}
	grid, err := field.EvaluateGrid(20, 20, 40, 40, 41, 41)
	if err != nil {
		t.Fatalf("EvaluateGrid: %v", err)
	}
	img, err := Render(grid, DefaultOptions())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	brightness := func(c color.NRGBA) int { return int(c.R) + int(c.G) + int(c.B) }
	// The sun sits towards negative x and z, so the slope facing it is lit.
	lit := brightness(img.NRGBAAt(12, 20))
	shaded := brightness(img.NRGBAAt(28, 20))
	if lit <= shaded {
		t.Fatalf("sun facing slope brightness %d, want above far slope %d", lit, shaded)
	}
}

func TestRenderDrawsMarkers(t *testing.T) {
	_, grid := referenceGrid(t, 201)
	opts := DefaultOptions()
	opts.Markers = []Marker{{X: 10, Z: -20, Color: "#ff00ff"}}
	img, err := Render(grid, opts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := img.NRGBAAt(110, 80); got != (color.NRGBA{R: 255, B: 255, A: 255}) {
		t.Fatalf("marker pixel = %v, want magenta", got)
	}
}

func TestRenderRejectsBadInput(t *testing.T) {
	_, grid := referenceGrid(t, 9)

	tests := map[string]struct {
		grid heightfield.Grid
		opts Options
	}{
		"single row":   {grid: heightfield.Grid{ResX: 4, ResZ: 1, Values: make([]float64, 4)}, opts: DefaultOptions()},
		"short values": {grid: heightfield.Grid{ResX: 4, ResZ: 4, Values: make([]float64, 3)}, opts: DefaultOptions()},
		"bad palette":  {grid: grid, opts: Options{Palette: Palette{Water: "blue"}}},
		"bad marker":   {grid: grid, opts: Options{Markers: []Marker{{Color: "#12"}}}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Render(tc.grid, tc.opts); err == nil {
				t.Fatalf("Render() = nil error, want error")
			}
		})
	}
}

func TestSaveFileCreatesDirectories(t *testing.T) {
	_, grid := referenceGrid(t, 9)
	img, err := Render(grid, DefaultOptions())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out", "terrain.png")
	if err := SaveFile(path, img); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat preview: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("preview file is empty")
	}
}

func TestParseHexColor(t *testing.T) {
	tests := map[string]struct {
		want color.NRGBA
		ok   bool
	}{
		"#3a6ea5": {want: color.NRGBA{R: 0x3a, G: 0x6e, B: 0xa5, A: 255}, ok: true},
		" ffffff": {want: color.NRGBA{R: 255, G: 255, B: 255, A: 255}, ok: true},
		"#fff":    {},
		"#gg0000": {},
		"":        {},
	}
	for input, tc := range tests {
		got, ok := parseHexColor(input)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("parseHexColor(%q) = %v, %v; want %v, %v", input, got, ok, tc.want, tc.ok)
		}
	}
}
