package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parkterrain/internal/config"
	"parkterrain/internal/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "ground.yml", "configuration file for the ground query server (.yml, .toml or .json)")
	flag.Parse()

	wrote, err := writeConfigFromEnv(configPath)
	if err != nil {
		log.Fatalf("sync config from environment: %v", err)
	}
	if wrote {
		log.Printf("configuration from environment written to %s", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := config.WriteDefault(configPath); err != nil {
				log.Fatalf("write default config: %v", err)
			}
			log.Printf("no configuration found, default configuration written to %s", configPath)
			cfg, err = config.Load(configPath)
		}
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("initialise ground server: %v", err)
	}

	ctx, cancel := signalContext(cfg.Server.ShutdownTimeout.Duration() * 2)
	defer cancel()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("ground server exited: %v", err)
	}
}

func signalContext(grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			return
		}

		// Ensure the process terminates if shutdown stalls.
		time.AfterFunc(grace, func() {
			log.Printf("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	return ctx, cancel
}
