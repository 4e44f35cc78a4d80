package world

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/udisondev/gemfield/internal/model"
)

// CellSize is the world-space edge length of one tile.
const CellSize = 1.0

// TileMap is a rectangular grid of tiles placed in world space.
// Cell (0,0) is the bottom-left tile; its corner sits at origin.
type TileMap struct {
	name   string
	origin model.Slot
	bounds model.Bounds
	tiles  []bool // row-major inside bounds: x + y*width

	active atomic.Bool
}

// NewTileMap creates tile map from a row-major markable mask.
func NewTileMap(name string, origin model.Slot, bounds model.Bounds, tiles []bool) (*TileMap, error) {
	if len(tiles) != bounds.Size() {
		return nil, fmt.Errorf("tile map %q: %d tiles for %dx%d bounds", name, len(tiles), bounds.Width, bounds.Height)
	}

	m := &TileMap{
		name:   name,
		origin: origin,
		bounds: bounds,
		tiles:  append([]bool(nil), tiles...),
	}
	m.active.Store(true)
	return m, nil
}

// ParseTileMap builds tile map from text rows. The first row is the top of the map.
// '.' and ' ' are empty cells, any other rune is a tile.
func ParseTileMap(name string, origin model.Slot, rows []string) (*TileMap, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("tile map %q: no rows", name)
	}

	width := 0
	for _, row := range rows {
		width = max(width, len([]rune(row)))
	}
	height := len(rows)

	bounds := model.NewBounds(0, 0, int32(width), int32(height))
	tiles := make([]bool, bounds.Size())
	for i, row := range rows {
		y := height - 1 - i
		for x, r := range []rune(row) {
			if r != '.' && r != ' ' {
				tiles[x+y*width] = true
			}
		}
	}

	return NewTileMap(name, origin, bounds, tiles)
}

// Name returns tile map name.
func (m *TileMap) Name() string {
	return m.name
}

// Bounds returns the cell region covered by the map.
func (m *TileMap) Bounds() model.Bounds {
	return m.bounds
}

// MarkableCells returns, row-major over region, whether each cell holds a tile.
// Cells outside the map are reported empty.
func (m *TileMap) MarkableCells(region model.Bounds) []bool {
	out := make([]bool, region.Size())
	for y := range region.Height {
		for x := range region.Width {
			c := model.Cell{X: region.Min.X + x, Y: region.Min.Y + y}
			if idx := m.bounds.Index(c); idx >= 0 {
				out[int(x)+int(y)*int(region.Width)] = m.tiles[idx]
			}
		}
	}
	return out
}

// HasTile reports whether cell holds a tile.
func (m *TileMap) HasTile(c model.Cell) bool {
	idx := m.bounds.Index(c)
	return idx >= 0 && m.tiles[idx]
}

// TileCount returns number of tiles in the map.
func (m *TileMap) TileCount() int {
	n := 0
	for _, t := range m.tiles {
		if t {
			n++
		}
	}
	return n
}

// CellToWorld converts cell to the world position of its bottom-left corner.
func (m *TileMap) CellToWorld(c model.Cell) model.Slot {
	return model.Slot{
		X: m.origin.X + float64(c.X)*CellSize,
		Y: m.origin.Y + float64(c.Y)*CellSize,
		Z: m.origin.Z,
	}
}

// WorldToCell converts world position to the cell containing it.
func (m *TileMap) WorldToCell(p model.Slot) model.Cell {
	return model.Cell{
		X: int32(math.Floor((p.X - m.origin.X) / CellSize)),
		Y: int32(math.Floor((p.Y - m.origin.Y) / CellSize)),
	}
}

// Active reports whether the map is the one currently shown.
func (m *TileMap) Active() bool {
	return m.active.Load()
}

// SetActive toggles map visibility.
func (m *TileMap) SetActive(active bool) {
	m.active.Store(active)
}
