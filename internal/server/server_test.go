package server

import (
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"parkterrain/internal/config"
	"parkterrain/internal/heightfield"
	"parkterrain/internal/placement"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.PreviewSize = 33
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = srv.tiles.Close() })
	return srv
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := get(t, srv.Handler(), "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body.Status != "ok" || len(body.Fingerprint) != 16 {
		t.Fatalf("health = %+v", body)
	}
}

func TestHandleHeightMatchesField(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := get(t, srv.Handler(), "/height?x=-20&z=15")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var body heightResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode height: %v", err)
	}
	if want := srv.field.Evaluate(-20, 15); body.Height != want {
		t.Fatalf("height = %v, want %v", body.Height, want)
	}
	if body.Normal[1] <= 0 {
		t.Fatalf("normal %v does not point up", body.Normal)
	}
}

func TestHandleHeightInvalidParameters(t *testing.T) {
	srv := newTestServer(t, nil)
	tests := map[string]string{
		"missing x":    "/height?z=1",
		"missing z":    "/height?x=1",
		"non numeric":  "/height?x=foo&z=1",
		"not a number": "/height?x=NaN&z=1",
		"infinite":     "/height?x=1&z=Inf",
	}
	for name, target := range tests {
		t.Run(name, func(t *testing.T) {
			rr := get(t, srv.Handler(), target)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
			}
		})
	}
}

func TestHandleGrid(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) { c.Server.MaxGridSamples = 100 })

	rr := get(t, srv.Handler(), "/grid?ox=-10&oz=-10&w=20&d=10&rx=3&rz=2")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var grid heightfield.Grid
	if err := json.Unmarshal(rr.Body.Bytes(), &grid); err != nil {
		t.Fatalf("decode grid: %v", err)
	}
	if grid.ResX != 3 || grid.ResZ != 2 || len(grid.Values) != 6 {
		t.Fatalf("grid shape = %dx%d (%d values), want 3x2", grid.ResX, grid.ResZ, len(grid.Values))
	}
	if got, want := grid.At(2, 1), srv.field.Evaluate(10, 0); got != want {
		t.Fatalf("grid corner = %v, want %v", got, want)
	}

	tests := map[string]string{
		"too many samples": "/grid?ox=0&oz=0&w=1&d=1&rx=11&rz=10",
		"zero resolution":  "/grid?ox=0&oz=0&w=1&d=1&rx=0&rz=10",
		"missing width":    "/grid?ox=0&oz=0&d=1&rx=2&rz=2",
	}
	for name, target := range tests {
		t.Run(name, func(t *testing.T) {
			rr := get(t, srv.Handler(), target)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
			}
		})
	}
}

func TestHandleTile(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := get(t, srv.Handler(), "/tiles?tx=-1&tz=2")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var body tileResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode tile: %v", err)
	}
	if body.Grid.OriginX != -25 || body.Grid.OriginZ != 50 || body.Grid.ResX != 33 {
		t.Fatalf("tile grid origin (%v, %v) res %d", body.Grid.OriginX, body.Grid.OriginZ, body.Grid.ResX)
	}

	if rr := get(t, srv.Handler(), "/tiles?tx=40&tz=0"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d for tile outside world, got %d", http.StatusNotFound, rr.Code)
	}
	if rr := get(t, srv.Handler(), "/tiles?tx=1.5&tz=0"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d for fractional tile, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestHandlePlacements(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := get(t, srv.Handler(), "/placements")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var layout placement.Layout
	if err := json.Unmarshal(rr.Body.Bytes(), &layout); err != nil {
		t.Fatalf("decode layout: %v", err)
	}
	if len(layout.Benches) != 14 || len(layout.Rocks) != 6 {
		t.Fatalf("layout has %d benches and %d rocks, want 14 and 6", len(layout.Benches), len(layout.Rocks))
	}

	rr = get(t, srv.Handler(), "/placements?kind=bench")
	var benches []placement.Placement
	if err := json.Unmarshal(rr.Body.Bytes(), &benches); err != nil {
		t.Fatalf("decode benches: %v", err)
	}
	if len(benches) != 14 {
		t.Fatalf("kind=bench returned %d placements, want 14", len(benches))
	}
	if benches[0].ID != layout.Benches[0].ID {
		t.Fatalf("bench ids differ between requests")
	}
}

func TestHandlePreview(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := get(t, srv.Handler(), "/preview.png")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("Content-Type = %q, want image/png", ct)
	}
	img, err := png.Decode(rr.Body)
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 33 || b.Dy() != 33 {
		t.Fatalf("preview bounds = %v, want 33x33", b)
	}
}

func TestConditionalRequests(t *testing.T) {
	srv := newTestServer(t, nil)
	h := srv.Handler()

	first := get(t, h, "/height?x=1&z=2")
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("response has no ETag")
	}

	req := httptest.NewRequest(http.MethodGet, "/height?x=1&z=2", nil)
	req.Header.Set("If-None-Match", etag)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotModified {
		t.Fatalf("expected status %d, got %d", http.StatusNotModified, rr.Code)
	}

	other := newTestServer(t, func(c *config.Config) { c.Terrain.Hills = c.Terrain.Hills[:1] })
	if got := get(t, other.Handler(), "/height?x=1&z=2").Header().Get("ETag"); got == etag {
		t.Fatalf("different terrains share ETag %s", etag)
	}
}

func TestConditionalRequestsTrackLayoutSettings(t *testing.T) {
	base := newTestServer(t, nil)
	reseeded := newTestServer(t, func(c *config.Config) { c.Placement.Seed = 99 })
	resized := newTestServer(t, func(c *config.Config) { c.Server.PreviewSize = 17 })

	tag := func(srv *Server, target string) string {
		t.Helper()
		rr := get(t, srv.Handler(), target)
		if rr.Code != http.StatusOK {
			t.Fatalf("GET %s: expected status %d, got %d", target, http.StatusOK, rr.Code)
		}
		return rr.Header().Get("ETag")
	}

	if tag(base, "/placements") == tag(reseeded, "/placements") {
		t.Fatalf("placements with different seeds share an ETag")
	}
	if tag(base, "/preview.png") == tag(reseeded, "/preview.png") {
		t.Fatalf("previews with different seeds share an ETag")
	}
	if tag(base, "/preview.png") == tag(resized, "/preview.png") {
		t.Fatalf("previews with different sizes share an ETag")
	}
	if tag(base, "/placements") != tag(resized, "/placements") {
		t.Fatalf("preview size changed the placements ETag")
	}
	if tag(base, "/height?x=1&z=2") != tag(reseeded, "/height?x=1&z=2") {
		t.Fatalf("placement seed changed the terrain ETag")
	}

	req := httptest.NewRequest(http.MethodGet, "/placements", nil)
	req.Header.Set("If-None-Match", tag(base, "/placements"))
	rr := httptest.NewRecorder()
	reseeded.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("stale placements ETag: expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestHeightStream(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) { c.Server.MaxGridSamples = 4 })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/heights"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	points := []heightfield.Point{{X: 0, Z: 0}, {X: -20, Z: 15}, {X: 95, Z: 3}}
	if err := conn.WriteJSON(heightBatchRequest{Points: points}); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	var resp heightBatchResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read batch: %v", err)
	}
	if resp.Error != "" || len(resp.Heights) != len(points) {
		t.Fatalf("response = %+v, want %d heights", resp, len(points))
	}
	for i, p := range points {
		if want := srv.field.Evaluate(p.X, p.Z); resp.Heights[i] != want {
			t.Fatalf("height %d = %v, want %v", i, resp.Heights[i], want)
		}
	}

	tooMany := make([]heightfield.Point, 5)
	if err := conn.WriteJSON(heightBatchRequest{Points: tooMany}); err != nil {
		t.Fatalf("write oversized batch: %v", err)
	}
	resp = heightBatchResponse{}
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read oversized reply: %v", err)
	}
	if resp.Error == "" {
		t.Fatalf("oversized batch answered without error: %+v", resp)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) { c.Tiles.Warmup = true })
	srv.cfg.Server.ListenAddress = "127.0.0.1"
	srv.cfg.Server.HTTPPort = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
