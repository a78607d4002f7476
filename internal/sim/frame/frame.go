// Package frame recognises the three-block endpoint structure: an anchor block
// with a frame block directly above and directly below.
package frame

import "teleportals.ai/internal/sim/geom"

// BlockReader is the read side of the world needed for validation.
type BlockReader interface {
	BlockMaterial(loc geom.Location) string
}

// Materials names the block ids that make up an endpoint.
type Materials struct {
	Frame         string `yaml:"frame" json:"frame"`
	PassiveAnchor string `yaml:"passive_anchor" json:"passive_anchor"`
	ActiveAnchor  string `yaml:"active_anchor" json:"active_anchor"`
	Air           string `yaml:"air" json:"air"`
}

func DefaultMaterials() Materials {
	return Materials{
		Frame:         "OBSIDIAN",
		PassiveAnchor: "ENDER_CHEST",
		ActiveAnchor:  "END_GATEWAY",
		Air:           "AIR",
	}
}

func (m Materials) IsAnchor(material string) bool {
	return material != "" && (material == m.PassiveAnchor || material == m.ActiveAnchor)
}

// IsValidFrame reports whether loc holds an anchor (in either state) with the
// frame material directly above and below.
func (m Materials) IsValidFrame(w BlockReader, loc geom.Location) bool {
	if w == nil {
		return false
	}
	if !m.IsAnchor(w.BlockMaterial(loc)) {
		return false
	}
	return w.BlockMaterial(loc.Up()) == m.Frame && w.BlockMaterial(loc.Down()) == m.Frame
}

// FindFrameNear resolves any of the three frame blocks to the anchor. It checks
// loc, loc+up and loc+down in that order.
func (m Materials) FindFrameNear(w BlockReader, loc geom.Location) (geom.Location, bool) {
	for _, c := range [3]geom.Location{loc, loc.Up(), loc.Down()} {
		if m.IsValidFrame(w, c) {
			return c, true
		}
	}
	return geom.Location{}, false
}

// IsActiveAnchor reports whether the anchor block currently shows the active material.
func (m Materials) IsActiveAnchor(w BlockReader, loc geom.Location) bool {
	return w != nil && m.ActiveAnchor != "" && w.BlockMaterial(loc) == m.ActiveAnchor
}

func (m Materials) IsPassiveAnchor(w BlockReader, loc geom.Location) bool {
	return w != nil && m.PassiveAnchor != "" && w.BlockMaterial(loc) == m.PassiveAnchor
}
