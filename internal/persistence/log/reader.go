package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"teleportals.ai/internal/sim/runtime"
)

// AuditFiles lists audit segments in dir, oldest first.
func AuditFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadAudit decodes every entry in one segment. A truncated final frame (a
// segment still being written, or a crash) ends the read without error after
// the last complete line.
func ReadAudit(path string, fn func(runtime.AuditEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e runtime.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadAuditDir replays all segments in dir in order.
func ReadAuditDir(dir string, fn func(runtime.AuditEntry) error) error {
	files, err := AuditFiles(dir)
	if err != nil {
		return err
	}
	for _, p := range files {
		if err := ReadAudit(p, fn); err != nil {
			return err
		}
	}
	return nil
}
