package testutil

import (
	"math/rand/v2"
	"sort"
	"strings"
	"testing"

	"github.com/udisondev/gemfield/internal/model"
	"github.com/udisondev/gemfield/internal/world"
)

// TileMap собирает карту из строк (первая строка задаёт верх карты) и падает при ошибке.
func TileMap(tb testing.TB, name string, origin model.Slot, rows ...string) *world.TileMap {
	tb.Helper()

	m, err := world.ParseTileMap(name, origin, rows)
	if err != nil {
		tb.Fatalf("ParseTileMap(%q): %v", name, err)
	}
	return m
}

// SpacedRow returns a one-row map of n tiles separated by empty cells,
// so no two anchors are grid neighbours.
func SpacedRow(tb testing.TB, n int) *world.TileMap {
	tb.Helper()
	return TileMap(tb, "spaced", model.Slot{}, strings.TrimSuffix(strings.Repeat("#.", n), "."))
}

// SolidRow returns a one-row map of n adjacent tiles.
func SolidRow(tb testing.TB, n int) *world.TileMap {
	tb.Helper()
	return TileMap(tb, "solid", model.Slot{}, strings.Repeat("#", n))
}

// EmptyMap returns a map without tiles.
func EmptyMap(tb testing.TB) *world.TileMap {
	tb.Helper()
	return TileMap(tb, "empty", model.Slot{}, "....")
}

// Anchors returns expected spawn slots of m: one above every tile, sorted.
func Anchors(m *world.TileMap) []model.Slot {
	b := m.Bounds()
	var out []model.Slot
	for y := b.Min.Y; y < b.Min.Y+b.Height; y++ {
		for x := b.Min.X; x < b.Min.X+b.Width; x++ {
			c := model.Cell{X: x, Y: y}
			if m.HasTile(c) {
				out = append(out, m.CellToWorld(c).Add(model.Slot{X: 0.5, Y: 2}))
			}
		}
	}
	SortSlots(out)
	return out
}

// SortSlots sorts slots by X, then Y, then Z (in place) and returns them.
func SortSlots(slots []model.Slot) []model.Slot {
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return slots
}

// Rand returns deterministic random source.
func Rand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
