package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dockerclient "github.com/docker/docker/client"
	"github.com/redis/go-redis/v9"

	"github.com/dyluth/drey/internal/config"
	"github.com/dyluth/drey/internal/docker"
	"github.com/dyluth/drey/internal/modules/lifecycle"
	"github.com/dyluth/drey/internal/room"
	"github.com/dyluth/drey/internal/server"
	"github.com/dyluth/drey/pkg/collab"
)

func main() {
	// 1. Locate configuration
	configPath := os.Getenv("DREY_CONFIG")
	if configPath == "" {
		configPath = "drey.yml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// 2. Parse Redis URL when a shared store is configured
	var redisOpts *redis.Options
	if cfg.Redis != "" {
		redisOpts, err = redis.ParseURL(cfg.Redis)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Invalid redis URL: %v\n", err)
			os.Exit(1)
		}
	}

	// 3. Docker client for room compute teardown. Optional: without it the
	// watchdog still expires rooms, it just has nothing external to stop.
	var dockerCli *dockerclient.Client
	if cli, err := docker.NewClient(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Docker not accessible (compute teardown disabled): %v\n", err)
	} else {
		dockerCli = cli
		defer dockerCli.Close()
	}

	var stopper lifecycle.Stopper
	if dockerCli != nil {
		stopper = lifecycle.StopperFunc(func(ctx context.Context, roomID string) error {
			return docker.StopRoomCompute(ctx, dockerCli, roomID)
		})
	}

	// 4. Build the configured rooms
	manager := room.NewManager(nil)
	for _, rc := range cfg.Rooms {
		var store collab.Store
		if redisOpts != nil {
			store, err = collab.NewRedisStore(redisOpts, rc.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: room %q: %v\n", rc.ID, err)
				os.Exit(1)
			}
		} else {
			store = collab.NewMemoryStore()
		}

		rm, err := room.New(room.Options{
			ID:               rc.ID,
			Store:            store,
			WatchdogDelay:    rc.WatchdogDelay(),
			TickInterval:     rc.TickInterval(),
			Stopper:          stopper,
			WatchdogDisabled: rc.WatchdogDisabled,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := manager.Add(rm); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("drey host starting with %d rooms on %s\n", len(cfg.Rooms), cfg.Listen)

	// 5. Start per-room tickers
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, id := range manager.IDs() {
		rm, _ := manager.Lookup(id)
		go rm.RunTicker(runCtx)
	}

	// 6. HTTP surface
	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.New(manager),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		fmt.Printf("Received signal %v, shutting down gracefully...\n", sig)
	case serveErr := <-errCh:
		if serveErr != nil && serveErr != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", serveErr)
			os.Exit(1)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: HTTP shutdown: %v\n", err)
	}

	if err := manager.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: room teardown: %v\n", err)
	}

	fmt.Println("drey host stopped")
}
