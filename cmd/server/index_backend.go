package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"teleportals.ai/internal/persistence/indexdb"
	"teleportals.ai/internal/sim/runtime"
)

type runtimeIndex interface {
	runtime.Index
	Close() error
	Stats() indexdb.Stats
}

func openRuntimeIndex(dataDir string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("TP_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		logger.Printf("index backend disabled (TP_INDEX_BACKEND=%s)", backend)
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(dataDir, "index", "links.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported TP_INDEX_BACKEND: %s", backend)
	}
}
