package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/gemfield/internal/model"
	"github.com/udisondev/gemfield/internal/spawn"
)

var eventColumns = []string{
	"kind", "gem_id", "category", "x", "y", "z",
	"spawned_at_ms", "expires_at_ms", "cleared",
}

// EventRow is one stored gem event.
type EventRow struct {
	ID         int64
	Kind       string
	GemID      model.EntityID
	Category   string
	Position   model.Slot
	SpawnedAt  time.Duration
	ExpiresAt  time.Duration
	Cleared    int
	RecordedAt time.Time
}

// EventRepository appends engine events to the gem_events log.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new event repository
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Insert stores a single event.
func (r *EventRepository) Insert(ctx context.Context, ev spawn.Event) error {
	query := `
		INSERT INTO gem_events (kind, gem_id, category, x, y, z, spawned_at_ms, expires_at_ms, cleared)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := r.pool.Exec(ctx, query, eventValues(ev)...); err != nil {
		return fmt.Errorf("inserting %s event for gem %d: %w", ev.Kind, ev.Gem.ID, err)
	}
	return nil
}

// InsertBatch stores events with a single COPY.
func (r *EventRepository) InsertBatch(ctx context.Context, events []spawn.Event) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(events))
	for _, ev := range events {
		rows = append(rows, eventValues(ev))
	}

	n, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"gem_events"},
		eventColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("copying %d gem events: %w", len(events), err)
	}

	slog.Debug("gem events stored", "count", n)
	return n, nil
}

// CountByKind returns the number of stored events of the given kind.
func (r *EventRepository) CountByKind(ctx context.Context, kind spawn.EventKind) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM gem_events WHERE kind = $1`, kind.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s events: %w", kind, err)
	}
	return n, nil
}

// History returns every stored event of one gem, oldest first.
func (r *EventRepository) History(ctx context.Context, id model.EntityID) ([]EventRow, error) {
	query := `
		SELECT id, kind, gem_id, category, x, y, z, spawned_at_ms, expires_at_ms, cleared, recorded_at
		FROM gem_events
		WHERE gem_id = $1
		ORDER BY id
	`
	return r.query(ctx, query, int64(id))
}

// Recent returns up to limit latest events, newest first.
func (r *EventRepository) Recent(ctx context.Context, limit int) ([]EventRow, error) {
	query := `
		SELECT id, kind, gem_id, category, x, y, z, spawned_at_ms, expires_at_ms, cleared, recorded_at
		FROM gem_events
		ORDER BY id DESC
		LIMIT $1
	`
	return r.query(ctx, query, limit)
}

func (r *EventRepository) query(ctx context.Context, query string, args ...any) ([]EventRow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying gem events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var (
			row                EventRow
			gemID              int64
			spawnedMs, expires int64
		)
		if err := rows.Scan(
			&row.ID, &row.Kind, &gemID, &row.Category,
			&row.Position.X, &row.Position.Y, &row.Position.Z,
			&spawnedMs, &expires, &row.Cleared, &row.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning gem event row: %w", err)
		}
		row.GemID = model.EntityID(gemID)
		row.SpawnedAt = time.Duration(spawnedMs) * time.Millisecond
		row.ExpiresAt = time.Duration(expires) * time.Millisecond
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gem event rows: %w", err)
	}
	return out, nil
}

func eventValues(ev spawn.Event) []any {
	category := ""
	if ev.Gem.ID != 0 {
		category = ev.Gem.Category.String()
	}
	return []any{
		ev.Kind.String(),
		int64(ev.Gem.ID),
		category,
		ev.Gem.Position.X, ev.Gem.Position.Y, ev.Gem.Position.Z,
		ev.Gem.SpawnedAt.Milliseconds(),
		ev.Gem.ExpiresAt.Milliseconds(),
		ev.Cleared,
	}
}
