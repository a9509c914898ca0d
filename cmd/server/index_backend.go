package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"colony.ai/internal/persistence/indexdb"
)

// openRuntimeIndex opens the read-model index selected by COLONY_INDEX_BACKEND
// (sqlite by default). A nil index means indexing is off.
func openRuntimeIndex(engineDir string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("COLONY_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(engineDir, "index", "colony.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported COLONY_INDEX_BACKEND: %s", backend)
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
