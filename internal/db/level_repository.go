package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/gemfield/internal/world"
)

// LevelRepository stores level layouts in the same shape as the YAML level file.
type LevelRepository struct {
	pool *pgxpool.Pool
}

// NewLevelRepository creates a new level repository
func NewLevelRepository(pool *pgxpool.Pool) *LevelRepository {
	return &LevelRepository{pool: pool}
}

// LoadSpecs loads all level specs ordered by position.
func (r *LevelRepository) LoadSpecs(ctx context.Context) ([]world.LevelSpec, error) {
	query := `
		SELECT name, origin_x, origin_y, origin_z, rows
		FROM levels
		ORDER BY position
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("loading levels: %w", err)
	}
	defer rows.Close()

	var specs []world.LevelSpec
	for rows.Next() {
		var spec world.LevelSpec
		if err := rows.Scan(&spec.Name, &spec.Origin.X, &spec.Origin.Y, &spec.Origin.Z, &spec.Rows); err != nil {
			return nil, fmt.Errorf("scanning level row: %w", err)
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating level rows: %w", err)
	}
	return specs, nil
}

// LoadAll loads all levels and builds their tile maps.
func (r *LevelRepository) LoadAll(ctx context.Context) ([]*world.TileMap, error) {
	specs, err := r.LoadSpecs(ctx)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("loading levels: no levels stored")
	}

	maps := make([]*world.TileMap, 0, len(specs))
	for _, spec := range specs {
		m, err := spec.Build()
		if err != nil {
			return nil, fmt.Errorf("building level %q: %w", spec.Name, err)
		}
		maps = append(maps, m)
	}
	return maps, nil
}

// ReplaceAll swaps the stored levels for specs in a single transaction.
// Level order follows the slice order.
func (r *LevelRepository) ReplaceAll(ctx context.Context, specs []world.LevelSpec) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction for levels: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.Error("rollback failed", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM levels`); err != nil {
		return fmt.Errorf("deleting levels: %w", err)
	}

	batch := &pgx.Batch{}
	for i, spec := range specs {
		name := spec.Name
		if name == "" {
			name = fmt.Sprintf("level-%d", i+1)
		}
		batch.Queue(`
			INSERT INTO levels (position, name, origin_x, origin_y, origin_z, rows)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			i, name, spec.Origin.X, spec.Origin.Y, spec.Origin.Z, spec.Rows,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range specs {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("inserting level %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing level batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction for levels: %w", err)
	}

	slog.Info("levels stored", "count", len(specs))
	return nil
}
