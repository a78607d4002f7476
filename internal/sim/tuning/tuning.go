// Package tuning loads tuning.yaml: block materials, the key object, and the
// tick-based timers of the runtime.
package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"teleportals.ai/internal/sim/frame"
	"teleportals.ai/internal/sim/geom"
	"teleportals.ai/internal/sim/keyobj"
	"teleportals.ai/internal/sim/portal"
)

type Tuning struct {
	TickRateHz         int `yaml:"tick_rate_hz"`
	AutosaveEveryTicks int `yaml:"autosave_every_ticks"`
	BeamQuietTicks     int `yaml:"beam_quiet_ticks"`
	BackupKeep         int `yaml:"backup_keep"`

	DefaultFacing string `yaml:"default_facing"`

	Materials frame.Materials `yaml:"materials"`
	KeyObject keyobj.Codec    `yaml:"key_object"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:         20,
		AutosaveEveryTicks: 12000,
		BeamQuietTicks:     250,
		BackupKeep:         12,
		DefaultFacing:      "NORTH",
		Materials:          frame.DefaultMaterials(),
		KeyObject:          keyobj.DefaultCodec(),
	}
}

// Load reads path over the defaults. Keys absent from the file keep their
// default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	d := Defaults()
	t.DefaultFacing = strings.ToUpper(strings.TrimSpace(t.DefaultFacing))
	if t.DefaultFacing == "" {
		t.DefaultFacing = d.DefaultFacing
	}
	m := &t.Materials
	m.Frame = strings.TrimSpace(m.Frame)
	m.PassiveAnchor = strings.TrimSpace(m.PassiveAnchor)
	m.ActiveAnchor = strings.TrimSpace(m.ActiveAnchor)
	m.Air = strings.TrimSpace(m.Air)
	if m.Air == "" {
		m.Air = d.Materials.Air
	}
	if t.KeyObject.Kind == "" {
		t.KeyObject.Kind = d.KeyObject.Kind
	}
	if t.KeyObject.Label == "" {
		t.KeyObject.Label = d.KeyObject.Label
	}
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be in (0, 1000]")
	}
	if t.AutosaveEveryTicks < 0 {
		return fmt.Errorf("autosave_every_ticks must be >= 0")
	}
	if t.BeamQuietTicks < 0 {
		return fmt.Errorf("beam_quiet_ticks must be >= 0")
	}
	if t.BackupKeep < 0 {
		return fmt.Errorf("backup_keep must be >= 0")
	}
	if _, ok := geom.ParseFacing(t.DefaultFacing); !ok {
		return fmt.Errorf("default_facing %q is not one of NORTH, EAST, SOUTH, WEST", t.DefaultFacing)
	}
	m := t.Materials
	names := map[string]string{
		"frame":          m.Frame,
		"passive_anchor": m.PassiveAnchor,
		"active_anchor":  m.ActiveAnchor,
	}
	seen := map[string]string{}
	for _, field := range []string{"frame", "passive_anchor", "active_anchor"} {
		v := names[field]
		if v == "" {
			return fmt.Errorf("materials.%s must not be empty", field)
		}
		if v == m.Air {
			return fmt.Errorf("materials.%s must differ from air", field)
		}
		if other, dup := seen[v]; dup {
			return fmt.Errorf("materials.%s and materials.%s are both %q", other, field, v)
		}
		seen[v] = field
	}
	if strings.TrimSpace(t.KeyObject.Marker) == "" {
		return fmt.Errorf("key_object.marker must not be empty")
	}
	return nil
}

// TickMillis is the wall-clock length of one tick.
func (t Tuning) TickMillis() int {
	if t.TickRateHz <= 0 {
		return 50
	}
	return 1000 / t.TickRateHz
}

func (t Tuning) PortalConfig() portal.Config {
	f, ok := geom.ParseFacing(t.DefaultFacing)
	if !ok {
		f = geom.North
	}
	return portal.Config{
		Materials:      t.Materials,
		Codec:          t.KeyObject,
		BeamQuietTicks: t.BeamQuietTicks,
		DefaultFacing:  f,
	}
}

// Digest is the sha256 of the tuning's JSON form. Peers compare it to tell
// whether they run the same tuning.
func (t Tuning) Digest() (string, []byte, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b, nil
}
