package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoConfig(t *testing.T) {
	tune, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.TickRateHz != 5 || tune.RecordInterval != 1500 || tune.AdjustInterval != 500 {
		t.Fatalf("unexpected intervals: %+v", tune)
	}
	cfg := tune.EngineConfig("colony")
	if cfg.Levels["harvest"].Priority != 2 {
		t.Fatalf("harvest priority: got %v", cfg.Levels["harvest"].Priority)
	}
	if cfg.Levels["Transfer"].Sub["tower"] != 1 {
		t.Fatalf("Transfer/tower delta: got %v", cfg.Levels["Transfer"].Sub["tower"])
	}
	if cfg.RoomCeilings["W2N1"] != 5 {
		t.Fatalf("W2N1 ceiling: got %v", cfg.RoomCeilings["W2N1"])
	}
	if !cfg.Switches.Timer || !cfg.Switches.List || cfg.Switches.Watcher || !cfg.Switches.Scheduler {
		t.Fatalf("switches: %+v", cfg.Switches)
	}
}

func TestLoad_MissingKeysKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("tick_rate_hz: 20\nissue_switch:\n  watcher: true\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tune, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.TickRateHz != 20 {
		t.Fatalf("tick rate: got %d", tune.TickRateHz)
	}
	if tune.RecordInterval != 1500 {
		t.Fatalf("record interval should default, got %d", tune.RecordInterval)
	}
	sw := tune.EngineConfig("x").Switches
	if !sw.Watcher || !sw.Timer || !sw.List || !sw.Scheduler {
		t.Fatalf("switches: %+v", sw)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("tick_rate_hz: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for tick_rate_hz 0")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
