// Package snapshot writes compressed backups of the links document and of the
// block world. Each file is a zstd stream holding one JSON header line followed
// by a gob body, so tools can list backups by reading only the first line.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	Version = 1

	filePrefix = "links-"
	fileSuffix = ".snap.zst"
)

var ErrNoBackups = errors.New("no backups")

type Header struct {
	Version   int    `json:"version"`
	Tick      uint64 `json:"tick"`
	SavedAt   int64  `json:"saved_at"`
	Groups    int    `json:"groups"`
	Endpoints int    `json:"endpoints"`
}

// SnapshotV1 stores locations and link keys in their document string forms so
// entries for worlds that are not loaded survive a round trip.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Groups     []GroupV1     `json:"groups"`
	Directions []DirectionV1 `json:"directions"`
}

type GroupV1 struct {
	Key     string   `json:"key"`
	Members []string `json:"members"`
}

type DirectionV1 struct {
	Loc    string `json:"loc"`
	Facing string `json:"facing"`
}

// FileName is the backup name for a save at t. Names sort chronologically.
func FileName(t time.Time) string {
	return filePrefix + t.UTC().Format("20060102-150405.000000000") + fileSuffix
}

func Write(path string, snap SnapshotV1) error {
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	return writeAtomic(path, snap.Header, &snap)
}

func writeAtomic(path string, header any, body any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_ = f.Close()
	if err := writeFile(tmp, header, body); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, header any, body any) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(body); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func Read(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	if err := readFile(path, &snap); err != nil {
		return snap, err
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

func readFile(path string, body any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	if _, err := br.ReadBytes('\n'); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(body); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}

// ReadHeader decodes only the header line of a links backup.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// List returns the backup paths in dir, oldest first.
func List(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// Latest returns the newest backup in dir.
func Latest(dir string) (string, error) {
	paths, err := List(dir)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", ErrNoBackups
	}
	return paths[len(paths)-1], nil
}

// Prune deletes all but the newest keep backups and returns the removed paths.
// keep <= 0 disables pruning.
func Prune(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	paths, err := List(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) <= keep {
		return nil, nil
	}
	var removed []string
	for _, p := range paths[:len(paths)-keep] {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, err
		}
		removed = append(removed, p)
	}
	return removed, nil
}
