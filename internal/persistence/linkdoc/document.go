// Package linkdoc persists the link registry as a YAML document with two
// sections: directions (location key -> facing) and subspaces (link key ->
// ordered location keys, hub first).
package linkdoc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Document struct {
	Directions map[string]string   `yaml:"directions"`
	Subspaces  map[string][]string `yaml:"subspaces"`
}

func NewDocument() Document {
	return Document{Directions: map[string]string{}, Subspaces: map[string][]string{}}
}

func (d Document) Endpoints() int {
	n := 0
	for _, m := range d.Subspaces {
		n += len(m)
	}
	return n
}

// Read loads the document at path. A missing file is an empty document.
func Read(path string) (Document, error) {
	doc := NewDocument()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return doc, err
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return NewDocument(), fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if doc.Directions == nil {
		doc.Directions = map[string]string{}
	}
	if doc.Subspaces == nil {
		doc.Subspaces = map[string][]string{}
	}
	return doc, nil
}

// Write replaces path atomically and returns the number of bytes written.
func Write(path string, doc Document) (int64, error) {
	if doc.Directions == nil {
		doc.Directions = map[string]string{}
	}
	if doc.Subspaces == nil {
		doc.Subspaces = map[string][]string{}
	}
	b, err := yaml.Marshal(&doc)
	if err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return int64(len(b)), nil
}
