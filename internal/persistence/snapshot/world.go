package snapshot

import "fmt"

type WorldHeader struct {
	Version int    `json:"version"`
	Tick    uint64 `json:"tick"`
	SavedAt int64  `json:"saved_at"`
	Chunks  int    `json:"chunks"`
}

// WorldV1 is the block content of every world, loaded or not. Block ids index
// Palette; id 0 is air.
type WorldV1 struct {
	Header WorldHeader `json:"header"`

	Palette []string  `json:"palette"`
	Chunks  []ChunkV1 `json:"chunks"`
}

// ChunkV1 carries its arrays run-length encoded (see internal/sim/encoding).
type ChunkV1 struct {
	World   string `json:"world"`
	CX      int    `json:"cx"`
	CY      int    `json:"cy"`
	CZ      int    `json:"cz"`
	Blocks  []byte `json:"blocks"`
	Facings []byte `json:"facings"`
}

func WriteWorld(path string, snap WorldV1) error {
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	snap.Header.Chunks = len(snap.Chunks)
	return writeAtomic(path, snap.Header, &snap)
}

func ReadWorld(path string) (WorldV1, error) {
	var snap WorldV1
	if err := readFile(path, &snap); err != nil {
		return snap, err
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported world snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}
