package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoomConfig is a single room in rooms.yaml.
type RoomConfig struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// FloorConfig groups the rooms of a floor.
type FloorConfig struct {
	ID    int64        `yaml:"id"`
	Name  string       `yaml:"name"`
	Rooms []RoomConfig `yaml:"rooms"`
}

// Catalog is the root of rooms.yaml.
type Catalog struct {
	Floors []FloorConfig `yaml:"floors"`
}

// LoadCatalog loads and validates the room catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		path = "configs/rooms.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	return &cat, nil
}

// Validate checks ids are positive and unique.
func (c *Catalog) Validate() error {
	if len(c.Floors) == 0 {
		return fmt.Errorf("no floors defined")
	}

	floorIDs := make(map[int64]bool)
	roomIDs := make(map[int64]bool)
	for i, f := range c.Floors {
		if f.ID <= 0 {
			return fmt.Errorf("floor[%d]: id must be positive", i)
		}
		if f.Name == "" {
			return fmt.Errorf("floor %d: name is required", f.ID)
		}
		if floorIDs[f.ID] {
			return fmt.Errorf("floor %d: duplicate id", f.ID)
		}
		floorIDs[f.ID] = true

		for j, r := range f.Rooms {
			if r.ID <= 0 {
				return fmt.Errorf("floor %d room[%d]: id must be positive", f.ID, j)
			}
			if r.Name == "" {
				return fmt.Errorf("room %d: name is required", r.ID)
			}
			if roomIDs[r.ID] {
				return fmt.Errorf("room %d: duplicate id", r.ID)
			}
			roomIDs[r.ID] = true
		}
	}
	return nil
}
