// Command tasktrackd is the task tracker server daemon.
// It opens the configured store, seeds the organization from the YAML
// config file and serves the REST API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Barrelito/sam-a-sub000/activity"
	"github.com/Barrelito/sam-a-sub000/config"
	"github.com/Barrelito/sam-a-sub000/db"
	"github.com/Barrelito/sam-a-sub000/distribution"
	"github.com/Barrelito/sam-a-sub000/internal/version"
	"github.com/Barrelito/sam-a-sub000/metrics"
	"github.com/Barrelito/sam-a-sub000/org"
	"github.com/Barrelito/sam-a-sub000/pgstore"
	"github.com/Barrelito/sam-a-sub000/rollup"
	"github.com/Barrelito/sam-a-sub000/server"
	"github.com/Barrelito/sam-a-sub000/task"
	"github.com/Barrelito/sam-a-sub000/tracker"
)

var configPath = flag.String("config", "tasktrack.yaml", "path to config file")

func main() {
	flag.Parse()

	cfg := config.DefaultConfig()
	if _, err := os.Stat(*configPath); err == nil {
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	logger.Info("starting tasktrackd", "build", version.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tasks, orgs, closeStore, err := openStores(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	n, err := org.Seed(ctx, orgs, cfg.Org.Seed())
	if err != nil {
		log.Fatalf("Failed to seed organization: %v", err)
	}
	if n > 0 {
		logger.Info("seeded organization", "created", n)
	}

	bus := activity.NewInMemoryBus()
	m := metrics.New()
	detach := m.Attach(bus)
	defer detach()

	svc := tracker.NewService(tasks, orgs, logger)
	svc.SetBus(bus)
	eng := distribution.New(tasks, orgs, logger)
	eng.SetBus(bus)

	srv := server.New(*cfg, version.Version, logger)
	srv.SetTracker(svc)
	srv.SetDistribution(eng)
	srv.SetRollup(rollup.NewAggregator(tasks, orgs))
	srv.SetMetrics(m)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		logger.Error("server stopped", "error", err)
	}

	fmt.Println("Shutting down...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server stop error", "error", err)
	}
	fmt.Println("Shutdown complete")
}

// openStores returns the task and org stores for the configured driver.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (task.Store, org.Store, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		pg, err := pgstore.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("using postgres store")
		return pg.Tasks, pg.Orgs, func() { _ = pg.Close() }, nil
	default:
		path := cfg.DatabasePath()
		conn, err := db.Open(path)
		if err != nil {
			return nil, nil, nil, err
		}
		tasks, err := task.NewSQLiteStore(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, nil, nil, err
		}
		orgs, err := org.NewSQLiteStore(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, nil, nil, err
		}
		logger.Info("using sqlite store", "path", path)
		return tasks, orgs, func() { _ = conn.Close() }, nil
	}
}

func logLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
