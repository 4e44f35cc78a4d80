package world

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/gemfield/internal/model"
)

// LevelSpec is the serialized form of one level surface.
type LevelSpec struct {
	Name   string     `yaml:"name"`
	Origin OriginSpec `yaml:"origin"`
	Rows   []string   `yaml:"rows"`
}

// OriginSpec is the world position of the bottom-left tile corner.
type OriginSpec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type levelFile struct {
	Levels []LevelSpec `yaml:"levels"`
}

// Build converts spec into a tile map.
func (s LevelSpec) Build() (*TileMap, error) {
	origin := model.NewSlot(s.Origin.X, s.Origin.Y, s.Origin.Z)
	return ParseTileMap(s.Name, origin, s.Rows)
}

// ParseLevelSpecs parses a YAML level file without building the maps.
// Levels without a name are called level-N.
func ParseLevelSpecs(data []byte) ([]LevelSpec, error) {
	var file levelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing levels: %w", err)
	}
	if len(file.Levels) == 0 {
		return nil, fmt.Errorf("parsing levels: no levels defined")
	}
	for i := range file.Levels {
		if file.Levels[i].Name == "" {
			file.Levels[i].Name = fmt.Sprintf("level-%d", i+1)
		}
	}
	return file.Levels, nil
}

// ParseLevels parses a YAML level file.
func ParseLevels(data []byte) ([]*TileMap, error) {
	specs, err := ParseLevelSpecs(data)
	if err != nil {
		return nil, err
	}

	maps := make([]*TileMap, 0, len(specs))
	for _, spec := range specs {
		m, err := spec.Build()
		if err != nil {
			return nil, fmt.Errorf("building level %q: %w", spec.Name, err)
		}
		maps = append(maps, m)
	}
	return maps, nil
}

// LoadLevels loads levels from a YAML file.
func LoadLevels(path string) ([]*TileMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading levels %s: %w", path, err)
	}
	maps, err := ParseLevels(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return maps, nil
}

// Catalog is an ordered set of levels with exactly one active at a time.
type Catalog struct {
	mu      sync.RWMutex
	levels  []*TileMap
	current int
}

// NewCatalog creates catalog and activates the first level.
func NewCatalog(levels []*TileMap) (*Catalog, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("catalog needs at least one level")
	}
	c := &Catalog{levels: levels}
	for i, l := range levels {
		l.SetActive(i == 0)
	}
	return c, nil
}

// Len returns number of levels.
func (c *Catalog) Len() int {
	return len(c.levels)
}

// Current returns active level and its index.
func (c *Catalog) Current() (*TileMap, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.levels[c.current], c.current
}

// Activate deactivates the current level and activates level at index.
func (c *Catalog) Activate(index int) (*TileMap, error) {
	if index < 0 || index >= len(c.levels) {
		return nil, fmt.Errorf("level index %d out of range [0, %d)", index, len(c.levels))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.levels[c.current].SetActive(false)
	c.current = index
	c.levels[index].SetActive(true)
	return c.levels[index], nil
}

// NextIndex returns the index following the current one, wrapping to 0.
func (c *Catalog) NextIndex() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == len(c.levels)-1 {
		return 0
	}
	return c.current + 1
}

// FindActive returns the first active level, if any.
func (c *Catalog) FindActive() (*TileMap, bool) {
	for _, l := range c.levels {
		if l.Active() {
			return l, true
		}
	}
	return nil, false
}
