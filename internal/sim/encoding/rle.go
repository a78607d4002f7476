// Package encoding packs chunk arrays for world snapshots.
package encoding

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Value is the element type of a chunk array: palette ids or facings.
type Value interface {
	~uint8 | ~uint16
}

// EncodeRLE encodes vals as uvarint pairs (value, run_len) repeated.
// Mostly-air chunks shrink to a handful of bytes.
func EncodeRLE[T Value](vals []T) []byte {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(vals) {
		v := vals[i]
		run := 1
		for j := i + 1; j < len(vals) && vals[j] == v; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(v))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}
	return buf.Bytes()
}

// DecodeRLE expands raw into exactly want values.
func DecodeRLE[T Value](raw []byte, want int) ([]T, error) {
	limit := uint64(^T(0))
	out := make([]T, 0, want)
	for i := 0; i < len(raw); {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if v > limit {
			return nil, fmt.Errorf("value too large: %d", v)
		}
		if run == 0 || run > uint64(want-len(out)) {
			return nil, fmt.Errorf("run of %d overflows %d values", run, want)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, T(v))
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("decoded %d values, want %d", len(out), want)
	}
	return out, nil
}
