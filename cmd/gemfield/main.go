package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/gemfield/internal/clock"
	"github.com/udisondev/gemfield/internal/config"
	"github.com/udisondev/gemfield/internal/db"
	"github.com/udisondev/gemfield/internal/feed"
	"github.com/udisondev/gemfield/internal/level"
	"github.com/udisondev/gemfield/internal/spawn"
	"github.com/udisondev/gemfield/internal/world"
)

const ConfigPath = "config/gemfield.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("GEMFIELD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("gemfield starting", "log_level", cfg.LogLevel, "level_source", cfg.LevelSource)

	var database *db.DB
	if cfg.UsesDatabase() {
		dsn := cfg.Database.DSN()
		if err := db.RunMigrations(ctx, dsn); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		database, err = db.New(ctx, dsn)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()
		slog.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)
	}

	levels, err := loadLevels(ctx, cfg, database)
	if err != nil {
		return err
	}
	catalog, err := world.NewCatalog(levels)
	if err != nil {
		return fmt.Errorf("creating level catalog: %w", err)
	}
	surface, _ := catalog.Current()
	slog.Info("levels loaded", "count", catalog.Len(), "first", surface.Name())

	registry := world.NewRegistry()
	sched := clock.NewScheduler(cfg.TickInterval)
	engine := spawn.NewEngine(cfg.Spawner, surface, registry, sched,
		spawn.WithLocator(func() (spawn.Surface, bool) { return catalog.FindActive() }),
	)
	sched.OnFrame(engine.Tick)

	director := level.NewDirector(cfg.Progress, catalog, engine, registry)
	engine.Subscribe(director)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Feed.Enabled {
		var opts []feed.Option
		if cfg.RecordEvents {
			opts = append(opts, feed.WithEventLog(database.Events()))
		}
		hub := feed.NewHub(cfg.Feed, engine, director, opts...)
		engine.Subscribe(hub)
		director.OnChange(hub.OnProgress)

		g.Go(func() error {
			slog.Info("starting event feed", "address", cfg.Feed.Addr())
			if err := hub.Serve(gctx, cfg.Feed.Addr()); err != nil {
				return fmt.Errorf("event feed: %w", err)
			}
			return nil
		})
	}

	if cfg.RecordEvents {
		recorder := db.NewRecorder(database.Events(), cfg.RecorderQueueSize)
		engine.Subscribe(recorder)

		g.Go(func() error {
			if err := recorder.Run(gctx); err != nil {
				return fmt.Errorf("event recorder: %w", err)
			}
			return nil
		})
	}

	engine.Start()

	g.Go(func() error {
		slog.Info("starting scheduler", "tick", cfg.TickInterval)
		if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func loadLevels(ctx context.Context, cfg config.Server, database *db.DB) ([]*world.TileMap, error) {
	if cfg.LevelSource == config.LevelSourceDatabase {
		levels, err := database.Levels().LoadAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading levels from database: %w", err)
		}
		return levels, nil
	}

	levels, err := world.LoadLevels(cfg.LevelsFile)
	if err != nil {
		return nil, fmt.Errorf("loading levels file: %w", err)
	}
	return levels, nil
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
