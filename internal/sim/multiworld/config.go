// Package multiworld loads worlds.yaml: the world ids the host knows about and
// which of them are loaded at startup.
package multiworld

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DefaultWorldID string      `yaml:"default_world_id"`
	Worlds         []WorldSpec `yaml:"worlds"`
}

type WorldSpec struct {
	ID          string `yaml:"id"`
	LoadOnStart bool   `yaml:"load_on_start"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg = Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("worlds.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("worlds.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		DefaultWorldID: "world",
		Worlds: []WorldSpec{
			{ID: "world", LoadOnStart: true},
			{ID: "world_nether", LoadOnStart: true},
			{ID: "world_the_end", LoadOnStart: true},
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.DefaultWorldID = strings.TrimSpace(c.DefaultWorldID)
	for i := range c.Worlds {
		c.Worlds[i].ID = strings.TrimSpace(c.Worlds[i].ID)
	}
	if c.DefaultWorldID == "" && len(c.Worlds) > 0 {
		c.DefaultWorldID = c.Worlds[0].ID
	}
	// the default world is always loaded
	for i := range c.Worlds {
		if c.Worlds[i].ID == c.DefaultWorldID {
			c.Worlds[i].LoadOnStart = true
		}
	}
}

func (c Config) Validate() error {
	if len(c.Worlds) == 0 {
		return fmt.Errorf("worlds must not be empty")
	}
	seen := map[string]bool{}
	for _, w := range c.Worlds {
		if w.ID == "" {
			return fmt.Errorf("world id must not be empty")
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate world id: %s", w.ID)
		}
		seen[w.ID] = true
	}
	if c.DefaultWorldID == "" {
		return fmt.Errorf("default_world_id must not be empty")
	}
	if !seen[c.DefaultWorldID] {
		return fmt.Errorf("default_world_id %q not found in worlds", c.DefaultWorldID)
	}
	return nil
}

// StartupWorlds returns the ids to load at boot, default world first.
func (c Config) StartupWorlds() []string {
	out := []string{c.DefaultWorldID}
	for _, w := range c.Worlds {
		if w.LoadOnStart && w.ID != c.DefaultWorldID {
			out = append(out, w.ID)
		}
	}
	return out
}

func (c Config) WorldSpecByID(id string) (WorldSpec, bool) {
	for _, w := range c.Worlds {
		if w.ID == id {
			return w, true
		}
	}
	return WorldSpec{}, false
}

// IDs lists every configured world id in sorted order.
func (c Config) IDs() []string {
	out := make([]string, 0, len(c.Worlds))
	for _, w := range c.Worlds {
		out = append(out, w.ID)
	}
	sort.Strings(out)
	return out
}
