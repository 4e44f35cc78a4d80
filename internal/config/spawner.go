package config

import (
	"fmt"
	"time"

	"github.com/udisondev/gemfield/internal/model"
)

// Spawner holds gem spawn settings.
type Spawner struct {
	BigGemProbability float64 `yaml:"big_gem_probability"`
	// SmallGemProbability is kept for config compatibility; the category draw only reads BigGemProbability.
	SmallGemProbability float64       `yaml:"small_gem_probability"`
	MaxObjects          int           `yaml:"max_objects"`
	GemLifeTime         time.Duration `yaml:"gem_life_time"`
	SpawnInterval       time.Duration `yaml:"spawn_interval"`
	ExclusionDistance   float64       `yaml:"exclusion_distance"`
}

// DefaultSpawner returns Spawner with the stock gem settings.
func DefaultSpawner() Spawner {
	return Spawner{
		BigGemProbability:   0.2,
		SmallGemProbability: 0.1,
		MaxObjects:          5,
		GemLifeTime:         10 * time.Second,
		SpawnInterval:       500 * time.Millisecond,
		ExclusionDistance:   1.0,
	}
}

// Validate rejects negative values.
func (s Spawner) Validate() error {
	switch {
	case s.BigGemProbability < 0:
		return fmt.Errorf("big_gem_probability must be non-negative, got %v", s.BigGemProbability)
	case s.SmallGemProbability < 0:
		return fmt.Errorf("small_gem_probability must be non-negative, got %v", s.SmallGemProbability)
	case s.MaxObjects < 0:
		return fmt.Errorf("max_objects must be non-negative, got %d", s.MaxObjects)
	case s.GemLifeTime < 0:
		return fmt.Errorf("gem_life_time must be non-negative, got %s", s.GemLifeTime)
	case s.SpawnInterval < 0:
		return fmt.Errorf("spawn_interval must be non-negative, got %s", s.SpawnInterval)
	case s.ExclusionDistance < 0:
		return fmt.Errorf("exclusion_distance must be non-negative, got %v", s.ExclusionDistance)
	}
	return nil
}

// Progress holds level progress settings.
type Progress struct {
	Target      int                    `yaml:"target"`
	AutoAdvance bool                   `yaml:"auto_advance"`
	GemValues   map[model.Category]int `yaml:"gem_values"`
}

// DefaultProgress returns Progress with target 100 and stock gem values.
func DefaultProgress() Progress {
	return Progress{
		Target:      100,
		AutoAdvance: false,
		GemValues: map[model.Category]int{
			model.SmallGem: 5,
			model.BigGem:   10,
		},
	}
}

// Validate rejects negative values.
func (p Progress) Validate() error {
	if p.Target < 0 {
		return fmt.Errorf("target must be non-negative, got %d", p.Target)
	}
	for c, v := range p.GemValues {
		if v < 0 {
			return fmt.Errorf("gem value for %s must be non-negative, got %d", c, v)
		}
	}
	return nil
}
