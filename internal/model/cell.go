package model

// Cell задаёт целочисленную клетку сетки поверхности.
type Cell struct {
	X int32
	Y int32
}

// Bounds описывает прямоугольную область клеток.
// Min включительно, Width/Height задают размеры в клетках.
type Bounds struct {
	Min    Cell
	Width  int32
	Height int32
}

// NewBounds создаёт Bounds от минимальной клетки и размеров.
func NewBounds(minX, minY, width, height int32) Bounds {
	return Bounds{Min: Cell{X: minX, Y: minY}, Width: width, Height: height}
}

// Size returns number of cells in the region.
func (b Bounds) Size() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return int(b.Width) * int(b.Height)
}

// Contains reports whether cell lies inside the region.
func (b Bounds) Contains(c Cell) bool {
	return c.X >= b.Min.X && c.X < b.Min.X+b.Width &&
		c.Y >= b.Min.Y && c.Y < b.Min.Y+b.Height
}

// Index returns row-major index (x + y*width) of cell inside the region, or -1.
func (b Bounds) Index(c Cell) int {
	if !b.Contains(c) {
		return -1
	}
	return int(c.X-b.Min.X) + int(c.Y-b.Min.Y)*int(b.Width)
}
