package preview

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"parkterrain/internal/heightfield"
)

const (
	defaultAmbientLight = 0.35
	pathHalfWidth       = 1.5
	markerRadius        = 3
)

// Palette holds "#rrggbb" colours for each terrain class.
type Palette struct {
	Background string
	Water      string
	Path       string
	Grass      string
	Highland   string
}

func DefaultPalette() Palette {
	return Palette{
		Background: "#0a0a12",
		Water:      "#3a6ea5",
		Path:       "#c2a878",
		Grass:      "#5a8f3c",
		Highland:   "#8a9a5b",
	}
}

// Marker is a world position drawn as a small diamond on top of the terrain.
type Marker struct {
	X, Z  float64
	Color string
}

type Options struct {
	Palette Palette
	// Sun points towards the light. Zero uses a light from the north west.
	Sun          mgl64.Vec3
	AmbientLight float64
	// PathDistance, when set, paints samples closer than pathHalfWidth to a
	// path in the path colour.
	PathDistance func(x, z float64) float64
	Markers      []Marker
}

func DefaultOptions() Options {
	return Options{
		Palette:      DefaultPalette(),
		Sun:          mgl64.Vec3{-1, 2, -1},
		AmbientLight: defaultAmbientLight,
	}
}

// Render draws a hill shaded top down view of grid, one pixel per sample.
// Column i maps to image x, row j to image y.
func Render(grid heightfield.Grid, opts Options) (*image.NRGBA, error) {
	if grid.ResX < 2 || grid.ResZ < 2 || len(grid.Values) != grid.ResX*grid.ResZ {
		return nil, fmt.Errorf("preview: grid %dx%d with %d samples cannot be rendered", grid.ResX, grid.ResZ, len(grid.Values))
	}
	palette, err := resolvePalette(opts.Palette)
	if err != nil {
		return nil, err
	}
	sun := opts.Sun
	if sun.Len() == 0 {
		sun = DefaultOptions().Sun
	}
	sun = sun.Normalize()
	ambient := opts.AmbientLight
	if ambient <= 0 {
		ambient = defaultAmbientLight
	}

	img := image.NewNRGBA(image.Rect(0, 0, grid.ResX, grid.ResZ))
	draw.Draw(img, img.Bounds(), &image.Uniform{palette.background}, image.Point{}, draw.Src)

	_, hi := grid.Bounds()
	for j := 0; j < grid.ResZ; j++ {
		for i := 0; i < grid.ResX; i++ {
			h := grid.At(i, j)
			if math.IsNaN(h) || math.IsInf(h, 0) {
				continue
			}
			base := palette.classify(h, hi, grid.X(i), grid.Z(j), opts.PathDistance)
			light := ambient + (1-ambient)*math.Max(0, gridNormal(grid, i, j).Dot(sun))
			img.SetNRGBA(i, j, applyLighting(base, light))
		}
	}

	for _, m := range opts.Markers {
		col, ok := parseHexColor(m.Color)
		if !ok {
			return nil, fmt.Errorf("preview: marker colour %q", m.Color)
		}
		px := int(math.Round((m.X - grid.OriginX) / grid.StepX))
		py := int(math.Round((m.Z - grid.OriginZ) / grid.StepZ))
		fillPolygon(img, []image.Point{
			{X: px, Y: py - markerRadius},
			{X: px + markerRadius, Y: py},
			{X: px, Y: py + markerRadius},
			{X: px - markerRadius, Y: py},
		}, col)
	}
	return img, nil
}

// Encode writes img as PNG.
func Encode(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}

// SaveFile writes img as a PNG file, creating parent directories.
func SaveFile(path string, img image.Image) error {
	if path == "" {
		return errors.New("output path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create preview directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	defer file.Close()
	return Encode(file, img)
}

type resolvedPalette struct {
	background, water, path, grass, highland color.NRGBA
}

func resolvePalette(p Palette) (resolvedPalette, error) {
	defaults := DefaultPalette()
	var out resolvedPalette
	for _, entry := range []struct {
		name     string
		value    string
		fallback string
		dst      *color.NRGBA
	}{
		{"background", p.Background, defaults.Background, &out.background},
		{"water", p.Water, defaults.Water, &out.water},
		{"path", p.Path, defaults.Path, &out.path},
		{"grass", p.Grass, defaults.Grass, &out.grass},
		{"highland", p.Highland, defaults.Highland, &out.highland},
	} {
		value := entry.value
		if strings.TrimSpace(value) == "" {
			value = entry.fallback
		}
		col, ok := parseHexColor(value)
		if !ok {
			return resolvedPalette{}, fmt.Errorf("preview: %s colour %q", entry.name, value)
		}
		*entry.dst = col
	}
	return out, nil
}

func (p resolvedPalette) classify(h, hi, x, z float64, pathDistance func(x, z float64) float64) color.NRGBA {
	if h < 0 {
		// Deeper water is darker.
		return applyLighting(p.water, 1+clamp(h, -1, 0)*0.4)
	}
	if pathDistance != nil && pathDistance(x, z) < pathHalfWidth {
		return p.path
	}
	t := 0.0
	if hi > 0 {
		t = clamp(h/hi, 0, 1)
	}
	return mix(p.grass, p.highland, t)
}

// gridNormal estimates the surface normal at a sample from its neighbours,
// falling back to one sided differences on the border.
func gridNormal(grid heightfield.Grid, i, j int) mgl64.Vec3 {
	i0, i1 := max(i-1, 0), min(i+1, grid.ResX-1)
	j0, j1 := max(j-1, 0), min(j+1, grid.ResZ-1)
	dx := (grid.At(i1, j) - grid.At(i0, j)) / (float64(i1-i0) * grid.StepX)
	dz := (grid.At(i, j1) - grid.At(i, j0)) / (float64(j1-j0) * grid.StepZ)
	if math.IsNaN(dx) || math.IsInf(dx, 0) {
		dx = 0
	}
	if math.IsNaN(dz) || math.IsInf(dz, 0) {
		dz = 0
	}
	return mgl64.Vec3{-dx, 1, -dz}.Normalize()
}

func mix(a, b color.NRGBA, t float64) color.NRGBA {
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.NRGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 255}
}

func parseHexColor(value string) (color.NRGBA, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return color.NRGBA{}, false
	}
	trimmed = strings.TrimPrefix(trimmed, "#")
	if len(trimmed) != 6 {
		return color.NRGBA{}, false
	}
	r, ok := parseHexByte(trimmed[0:2])
	if !ok {
		return color.NRGBA{}, false
	}
	g, ok := parseHexByte(trimmed[2:4])
	if !ok {
		return color.NRGBA{}, false
	}
	b, ok := parseHexByte(trimmed[4:6])
	if !ok {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}, true
}

func parseHexByte(value string) (uint8, bool) {
	v, err := strconv.ParseUint(value, 16, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}

func applyLighting(base color.NRGBA, factor float64) color.NRGBA {
	factor = clamp(factor, 0, 1)
	r := uint8(math.Round(float64(base.R) * factor))
	g := uint8(math.Round(float64(base.G) * factor))
	b := uint8(math.Round(float64(base.B) * factor))
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func fillPolygon(img *image.NRGBA, pts []image.Point, col color.NRGBA) {
	if len(pts) < 3 {
		return
	}
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts[1:] {
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}
	bounds := img.Bounds()
	minY = max(minY, bounds.Min.Y)
	maxY = min(maxY, bounds.Max.Y-1)

	xs := make([]int, 0, len(pts))
	for y := minY; y <= maxY; y++ {
		xs = xs[:0]
		for i := range pts {
			j := (i + 1) % len(pts)
			x1, y1 := pts[i].X, pts[i].Y
			x2, y2 := pts[j].X, pts[j].Y
			if y1 == y2 || y < min(y1, y2) || y >= max(y1, y2) {
				continue
			}
			xs = append(xs, x1+(y-y1)*(x2-x1)/(y2-y1))
		}
		sort.Ints(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			xStart := max(xs[i], bounds.Min.X)
			xEnd := min(xs[i+1], bounds.Max.X-1)
			for x := xStart; x <= xEnd; x++ {
				img.SetNRGBA(x, y, col)
			}
		}
	}
}
