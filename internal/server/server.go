package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"parkterrain/internal/config"
	"parkterrain/internal/heightfield"
	"parkterrain/internal/placement"
	"parkterrain/internal/preview"
	"parkterrain/internal/tiles"
)

type Server struct {
	cfg     *config.Config
	field   *heightfield.HeightField
	tiles   *tiles.Manager
	planner *placement.Planner
	etags   routeTags
	httpSrv *http.Server
	logger  *log.Logger

	layoutOnce sync.Once
	layout     placement.Layout

	previewOnce sync.Once
	previewPNG  []byte
	previewErr  error
}

func New(cfg *config.Config) (*Server, error) {
	hfCfg, err := cfg.Terrain.HeightField()
	if err != nil {
		return nil, err
	}
	field, err := heightfield.New(hfCfg)
	if err != nil {
		return nil, err
	}
	logger := log.New(log.Writer(), "ground ", log.LstdFlags|log.Lmicroseconds)

	storage, err := openStorage(cfg.Tiles)
	if err != nil {
		return nil, err
	}
	manager, err := tiles.NewManager(field, storage, tiles.Options{
		Size:       cfg.Tiles.Size,
		Resolution: cfg.Tiles.Resolution,
		Extent:     hfCfg.WorldExtent,
	}, log.New(log.Writer(), "tiles ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	planner := placement.NewPlanner(field, placement.Options{
		Seed:                  cfg.Placement.Seed,
		ScatterExtent:         cfg.Placement.ScatterExtent,
		ClusterMainRatio:      cfg.Placement.ClusterMainRatio,
		PatchDensityThreshold: placement.DefaultOptions().PatchDensityThreshold,
	}, logger)

	return &Server{
		cfg:     cfg,
		field:   field,
		tiles:   manager,
		planner: planner,
		etags:   newRouteTags(field.Fingerprint(), planner.Options(), cfg.Server.PreviewSize),
		logger:  logger,
	}, nil
}

func openStorage(cfg config.TilesConfig) (tiles.Storage, error) {
	switch cfg.Storage {
	case config.StorageLevelDB:
		return tiles.OpenLevelDBStorage(cfg.Path)
	default:
		return tiles.NewMemoryStorage(), nil
	}
}

// Handler returns the HTTP routes without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/height", cached(s.etags.terrain, s.handleHeight))
	mux.HandleFunc("/grid", cached(s.etags.terrain, s.handleGrid))
	mux.HandleFunc("/tiles", cached(s.etags.terrain, s.handleTile))
	mux.HandleFunc("/placements", cached(s.etags.layout, s.handlePlacements))
	mux.HandleFunc("/preview.png", cached(s.etags.preview, s.handlePreview))
	mux.HandleFunc("/ws/heights", s.handleHeightStream)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if err := s.tiles.Close(); err != nil {
			s.logger.Printf("close tile storage: %v", err)
		}
	}()

	if removed, err := s.tiles.Prune(); err != nil {
		s.logger.Printf("prune tile storage: %v", err)
	} else if removed > 0 {
		s.logger.Printf("removed %d tiles from a previous terrain", removed)
	}

	warmCtx, cancelWarm := context.WithCancel(ctx)
	var warmWG sync.WaitGroup
	if s.cfg.Tiles.Warmup {
		warmWG.Add(1)
		go func() {
			defer warmWG.Done()
			if err := s.tiles.Warmup(warmCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Printf("tile warmup failed: %v", err)
			}
		}()
	}
	defer func() {
		cancelWarm()
		warmWG.Wait()
	}()

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.ListenAddress, s.cfg.Server.HTTPPort)
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("HTTP server listening on %s (terrain %s)", addr, s.etags.terrain)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// routeTags holds one ETag per family of routes. Each covers every setting
// the route's body depends on besides the request itself.
type routeTags struct {
	terrain string
	layout  string
	preview string
}

func newRouteTags(fingerprint uint64, opts placement.Options, previewSize int) routeTags {
	layout := hashValues(fingerprint,
		uint64(opts.Seed),
		math.Float64bits(opts.ScatterExtent),
		math.Float64bits(opts.ClusterMainRatio),
		math.Float64bits(opts.PatchDensityThreshold))
	return routeTags{
		terrain: formatTag(fingerprint),
		layout:  formatTag(layout),
		preview: formatTag(hashValues(layout, uint64(previewSize))),
	}
}

func hashValues(values ...uint64) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

func formatTag(v uint64) string {
	return fmt.Sprintf(`"%016x"`, v)
}

// cached answers conditional requests against etag.
func cached(etag string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		next(w, r)
	}
}

type healthResponse struct {
	Status      string      `json:"status"`
	Fingerprint string      `json:"fingerprint"`
	Tiles       tiles.Stats `json:"tiles"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{
		Status:      "ok",
		Fingerprint: fmt.Sprintf("%016x", s.field.Fingerprint()),
		Tiles:       s.tiles.Stats(),
	})
}

type heightResponse struct {
	X      float64    `json:"x"`
	Z      float64    `json:"z"`
	Height float64    `json:"height"`
	Normal [3]float64 `json:"normal"`
}

func (s *Server) handleHeight(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x, ok := floatParam(w, q.Get("x"), "x")
	if !ok {
		return
	}
	z, ok := floatParam(w, q.Get("z"), "z")
	if !ok {
		return
	}
	writeJSON(w, heightResponse{
		X:      x,
		Z:      z,
		Height: s.field.Evaluate(x, z),
		Normal: s.field.Normal(x, z),
	})
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var region [4]float64
	for i, name := range []string{"ox", "oz", "w", "d"} {
		v, ok := floatParam(w, q.Get(name), name)
		if !ok {
			return
		}
		region[i] = v
	}
	rx, ok := intParam(w, q.Get("rx"), "rx")
	if !ok {
		return
	}
	rz, ok := intParam(w, q.Get("rz"), "rz")
	if !ok {
		return
	}
	if rx > 0 && rz > s.cfg.Server.MaxGridSamples/rx {
		http.Error(w, fmt.Sprintf("grid of %dx%d exceeds %d samples", rx, rz, s.cfg.Server.MaxGridSamples), http.StatusBadRequest)
		return
	}

	grid, err := s.field.EvaluateGrid(region[0], region[1], region[2], region[3], rx, rz)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, heightfield.ErrInvalidGrid) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, grid)
}

type tileResponse struct {
	Key  tiles.Key        `json:"key"`
	Grid heightfield.Grid `json:"grid"`
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tx, ok := intParam(w, q.Get("tx"), "tx")
	if !ok {
		return
	}
	tz, ok := intParam(w, q.Get("tz"), "tz")
	if !ok {
		return
	}
	key := tiles.Key{TX: tx, TZ: tz}
	grid, err := s.tiles.Tile(r.Context(), key)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, tiles.ErrOutsideWorld) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, tileResponse{Key: key, Grid: grid})
}

func (s *Server) placements() placement.Layout {
	s.layoutOnce.Do(func() {
		s.layout = s.planner.Plan()
	})
	return s.layout
}

func (s *Server) handlePlacements(w http.ResponseWriter, r *http.Request) {
	layout := s.placements()
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		writeJSON(w, layout)
		return
	}
	filtered := []placement.Placement{}
	for _, p := range layout.All() {
		if string(p.Kind) == kind {
			filtered = append(filtered, p)
		}
	}
	writeJSON(w, filtered)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.previewOnce.Do(func() {
		s.previewPNG, s.previewErr = s.renderPreview()
	})
	if s.previewErr != nil {
		http.Error(w, s.previewErr.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(s.previewPNG)
}

func (s *Server) renderPreview() ([]byte, error) {
	extent := s.field.Config().WorldExtent
	size := s.cfg.Server.PreviewSize
	grid, err := s.field.EvaluateGrid(-extent/2, -extent/2, extent, extent, size, size)
	if err != nil {
		return nil, err
	}
	opts := preview.DefaultOptions()
	opts.PathDistance = s.field.PathMask().Distance
	for _, p := range s.placements().Trees {
		opts.Markers = append(opts.Markers, preview.Marker{X: p.Position.X(), Z: p.Position.Z(), Color: "#1f4d1a"})
	}
	img, err := preview.Render(grid, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := preview.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func floatParam(w http.ResponseWriter, raw, name string) (float64, bool) {
	if raw == "" {
		http.Error(w, fmt.Sprintf("%s query parameter required", name), http.StatusBadRequest)
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		http.Error(w, fmt.Sprintf("invalid %s parameter", name), http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		http.Error(w, fmt.Sprintf("%s query parameter required", name), http.StatusBadRequest)
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid %s parameter", name), http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
