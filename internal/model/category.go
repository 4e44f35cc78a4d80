package model

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category задаёт тип спавнящегося объекта.
type Category uint8

const (
	SmallGem Category = iota
	BigGem
)

// Categories lists all known categories in declaration order.
var Categories = []Category{SmallGem, BigGem}

// String returns the canonical lower-case name.
func (c Category) String() string {
	switch c {
	case SmallGem:
		return "small_gem"
	case BigGem:
		return "big_gem"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// ParseCategory parses a category name (case-insensitive, "-" and "_" interchangeable).
func ParseCategory(s string) (Category, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "small_gem", "smallgem", "small":
		return SmallGem, nil
	case "big_gem", "biggem", "big":
		return BigGem, nil
	default:
		return 0, fmt.Errorf("unknown category %q", s)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (c Category) MarshalYAML() (any, error) {
	return c.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Category) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("decoding category: %w", err)
	}
	parsed, err := ParseCategory(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler (JSON map keys, feed payloads).
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
