package main

import (
	"os"

	"gopkg.in/yaml.v2"

	"github.com/waypointdb/waypoint/engine"
	"github.com/waypointdb/waypoint/hybrid"
)

// WaypointdConfig is the on-disk YAML shape for a full waypointd run,
// composing the allocator and dispatcher configs, grounded on
// memtierd's MemtierdConfig template loading (editMemtierdConfig in
// cmd/memtierd/main.go): read the whole file, unmarshal into a typed
// struct, fall back to in-code defaults when no path is given.
type WaypointdConfig struct {
	Memory           hybrid.Config `yaml:"memory"`
	Engine           engine.Config `yaml:"engine"`
	CongestionWindow int           `yaml:"congestion_window"`
}

// DefaultWaypointdConfig returns the same defaults the flag parser falls
// back to when no --config file is given.
func DefaultWaypointdConfig() WaypointdConfig {
	return WaypointdConfig{
		Memory:           hybrid.DefaultConfig(),
		Engine:           engine.DefaultConfig(),
		CongestionWindow: 64,
	}
}

// LoadWaypointdConfig reads and unmarshals a YAML config file at path.
func LoadWaypointdConfig(path string) (WaypointdConfig, error) {
	cfg := DefaultWaypointdConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
