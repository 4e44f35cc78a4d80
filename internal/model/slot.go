package model

import "math"

// Slot описывает точку в мировых координатах, пригодную для размещения гема.
// Value type, передаётся по значению (immutable).
type Slot struct {
	X float64
	Y float64
	Z float64
}

// NewSlot создаёт Slot с указанными координатами.
func NewSlot(x, y, z float64) Slot {
	return Slot{X: x, Y: y, Z: z}
}

// Add возвращает сумму двух точек.
func (s Slot) Add(other Slot) Slot {
	return Slot{X: s.X + other.X, Y: s.Y + other.Y, Z: s.Z + other.Z}
}

// Left возвращает соседнюю позицию на одну клетку левее.
func (s Slot) Left() Slot {
	s.X--
	return s
}

// Right возвращает соседнюю позицию на одну клетку правее.
func (s Slot) Right() Slot {
	s.X++
	return s
}

// DistanceSquared возвращает квадрат расстояния до другой точки (без sqrt).
func (s Slot) DistanceSquared(other Slot) float64 {
	dx := s.X - other.X
	dy := s.Y - other.Y
	dz := s.Z - other.Z
	return dx*dx + dy*dy + dz*dz
}

// Distance возвращает евклидово расстояние до другой точки.
func (s Slot) Distance(other Slot) float64 {
	return math.Sqrt(s.DistanceSquared(other))
}
