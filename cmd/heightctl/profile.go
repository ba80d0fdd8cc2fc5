package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"parkterrain/internal/heightfield"
	"parkterrain/internal/tiles"
)

// runProfile issues random ground queries through a fresh tile cache and
// reports latency and hit ratio.
func runProfile(args []string, stdout io.Writer) error {
	fs, cfgPath := newFlagSet("profile")
	var (
		totalRequests = fs.Int("requests", 2000, "number of ground queries to issue")
		concurrency   = fs.Int("concurrency", runtime.NumCPU(), "number of concurrent workers")
		timeout       = fs.Duration("timeout", 250*time.Millisecond, "per-request timeout")
		seed          = fs.Int64("seed", 1337, "random seed for query positions")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *totalRequests <= 0 {
		return errors.New("profile: requests must be positive")
	}
	if *concurrency <= 0 {
		return errors.New("profile: concurrency must be positive")
	}

	cfg, field, err := loadField(*cfgPath)
	if err != nil {
		return err
	}
	extent := field.Config().WorldExtent
	manager, err := tiles.NewManager(field, tiles.NewMemoryStorage(), tiles.Options{
		Size:       cfg.Tiles.Size,
		Resolution: cfg.Tiles.Resolution,
		Extent:     extent,
	}, logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	jobs := make(chan heightfield.Point)
	go func() {
		defer close(jobs)
		rng := rand.New(rand.NewSource(*seed))
		for i := 0; i < *totalRequests; i++ {
			jobs <- heightfield.Point{
				X: (rng.Float64() - 0.5) * extent,
				Z: (rng.Float64() - 0.5) * extent,
			}
		}
	}()

	var (
		wg            sync.WaitGroup
		totalDuration int64
		maxDuration   int64
		successes     int64
		failures      int64
		timeouts      int64
	)

	worker := func() {
		defer wg.Done()
		for p := range jobs {
			ctx, cancel := context.WithTimeout(context.Background(), *timeout)
			start := time.Now()
			_, err := manager.Tile(ctx, manager.KeyFor(p.X, p.Z))
			duration := int64(time.Since(start))
			cancel()

			atomic.AddInt64(&totalDuration, duration)
			for {
				current := atomic.LoadInt64(&maxDuration)
				if duration <= current || atomic.CompareAndSwapInt64(&maxDuration, current, duration) {
					break
				}
			}

			switch {
			case errors.Is(err, context.DeadlineExceeded):
				atomic.AddInt64(&timeouts, 1)
			case err != nil:
				atomic.AddInt64(&failures, 1)
			default:
				atomic.AddInt64(&successes, 1)
			}
		}
	}

	wg.Add(*concurrency)
	for i := 0; i < *concurrency; i++ {
		go worker()
	}

	startWall := time.Now()
	wg.Wait()
	wallDuration := time.Since(startWall)

	stats := manager.Stats()
	hitRatio := 0.0
	if stats.Hits+stats.Misses > 0 {
		hitRatio = float64(stats.Hits) / float64(stats.Hits+stats.Misses) * 100
	}

	fmt.Fprintln(stdout, "== Tile Cache Profile ==")
	fmt.Fprintf(stdout, "Tile size: %g units, %d samples per side\n", cfg.Tiles.Size, cfg.Tiles.Resolution)
	fmt.Fprintf(stdout, "Tiles covering world: %d\n", len(manager.Covering()))
	fmt.Fprintf(stdout, "Requests: %d\n", *totalRequests)
	fmt.Fprintf(stdout, "Concurrency: %d\n", *concurrency)
	fmt.Fprintf(stdout, "Successes: %d, Failures: %d, Timeouts: %d\n", successes, failures, timeouts)
	fmt.Fprintf(stdout, "Average per-request duration: %s\n", time.Duration(totalDuration/int64(*totalRequests)))
	fmt.Fprintf(stdout, "Slowest request: %s\n", time.Duration(maxDuration))
	fmt.Fprintf(stdout, "Wall clock duration: %s\n", wallDuration)
	fmt.Fprintf(stdout, "Cache hit ratio: %.2f%% (%d hits, %d misses)\n", hitRatio, stats.Hits, stats.Misses)
	return nil
}
