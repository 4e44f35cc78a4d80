// Command levelimport stores the levels of a YAML level file in PostgreSQL,
// replacing whatever levels were stored before.
//
// Usage:
//
//	go run ./cmd/levelimport [levels.yaml]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/udisondev/gemfield/internal/config"
	"github.com/udisondev/gemfield/internal/db"
	"github.com/udisondev/gemfield/internal/world"
)

func main() {
	if err := run(); err != nil {
		slog.Error("level import failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := "config/gemfield.yaml"
	if p := os.Getenv("GEMFIELD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	levelsPath := cfg.LevelsFile
	if len(os.Args) > 1 {
		levelsPath = os.Args[1]
	}

	specs, err := readSpecs(levelsPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dsn := cfg.Database.DSN()
	if err := db.RunMigrations(ctx, dsn); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	database, err := db.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	if err := database.Levels().ReplaceAll(ctx, specs); err != nil {
		return fmt.Errorf("storing levels: %w", err)
	}

	fmt.Printf("imported %d levels from %s\n", len(specs), levelsPath)
	return nil
}

// readSpecs reads a level file; every level must build.
func readSpecs(path string) ([]world.LevelSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	specs, err := world.ParseLevelSpecs(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, spec := range specs {
		if _, err := spec.Build(); err != nil {
			return nil, fmt.Errorf("level %q in %s: %w", spec.Name, path, err)
		}
	}
	return specs, nil
}
