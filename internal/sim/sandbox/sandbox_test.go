package sandbox

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"colony.ai/internal/sim/engine"
	"colony.ai/internal/sim/tree"
)

func newColony(t *testing.T, cfg engine.Config) (*engine.Engine, *World) {
	t.Helper()
	w, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	e, err := engine.New(cfg, engine.Options{Sensor: w, Demand: w, Policy: RoleTable()})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	w.Install(e)
	return e, w
}

func checkConsistent(t *testing.T, e *engine.Engine, tick uint64) {
	t.Helper()
	st := e.State()
	idle := map[string]bool{}
	for _, n := range st.Idle.GetAllFromNode(nil) {
		idle[n] = true
	}
	seen := map[string]bool{}
	for id, names := range st.Roll {
		task := st.WareHouse[id]
		if task == nil {
			t.Fatalf("tick %d: roll entry for missing task %s", tick, id)
		}
		for _, n := range names {
			if idle[n] {
				t.Fatalf("tick %d: worker %s idle and on roll of %s", tick, n, id)
			}
			if seen[n] {
				t.Fatalf("tick %d: worker %s on two rolls", tick, n)
			}
			seen[n] = true
		}
		if got := task.Settings.Received.Current.Sum(); got != len(names) {
			t.Fatalf("tick %d: task %s current=%d roll=%d", tick, id, got, len(names))
		}
	}
}

func TestReceivingRooms_BreadthFirstControlledOnly(t *testing.T) {
	w, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cases := []struct {
		target string
		rng    int
		want   []string
	}{
		{"W1N2", 1, []string{"W1N1"}},
		{"W1N2", 2, []string{"W1N1", "W2N1"}},
		{"W1N1", 0, []string{"W1N1"}},
		{"W2N2", 1, nil},
		{"nowhere", 3, nil},
	}
	for _, c := range cases {
		got := w.ReceivingRooms(c.target, c.rng)
		if !reflect.DeepEqual(got, c.want) {
			t.Fatalf("ReceivingRooms(%s, %d) = %v, want %v", c.target, c.rng, got, c.want)
		}
	}
}

func TestReserveRoleQuota_CappedPerRole(t *testing.T) {
	w, _ := New(DefaultConfig())
	w.ReserveRoleQuota("W1N1", RoleWorker, 2)
	w.ReserveRoleQuota("W1N1", RoleWorker, 2)
	w.ReserveRoleQuota("nowhere", RoleWorker, 1)
	if exp, cur := w.Expected("W1N1", RoleWorker); exp != 3 || cur != 0 {
		t.Fatalf("expected=%d current=%d", exp, cur)
	}
}

func TestLoadConfig_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sandbox.yaml")
	body := "rooms:\n  - name: A\n    controlled: true\n    sources: [x]\n    links: [B]\n  - name: B\nlifetime: 40\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Rooms) != 2 || cfg.Lifetime != 40 || cfg.SpawnInterval != 5 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("rooms:\n  - name: A\n    links: [Z]\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Fatalf("expected error for unknown link")
	}
}

func TestLoadConfig_RepoFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "..", "configs", "sandbox.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := New(cfg); err != nil {
		t.Fatalf("new: %v", err)
	}
}

func TestAdjustLevel_LowEnergyHoldsUpgradeBack(t *testing.T) {
	w, _ := New(DefaultConfig())
	lv := tree.NewLevel()

	w.AdjustLevel("W1N1", lv)
	if v, _ := lv.GetFromLeaf([]string{"W1N1"}, "upgrade"); v != 100 {
		t.Fatalf("offset while empty: got %v", v)
	}
	w.Room("W1N1").Energy = 50
	w.AdjustLevel("W1N1", lv)
	if v, _ := lv.GetFromLeaf([]string{"W1N1"}, "upgrade"); v != 0 {
		t.Fatalf("offset with energy: got %v", v)
	}
	if w.AdjustLevel("nowhere", lv) {
		t.Fatalf("unknown room should not adjust")
	}
}

func TestTransfer_CallbackIssuesHarvest(t *testing.T) {
	w, _ := New(DefaultConfig())
	got := w.transferFollowUps(TransferTask("W1N1"))
	if len(got) != 2 {
		t.Fatalf("follow-ups: got %d", len(got))
	}
	if got[0].Task.ID != HarvestTask("W1N1", "s1").ID || got[1].Task.ID != HarvestTask("W1N1", "s2").ID {
		t.Fatalf("unexpected follow-ups")
	}
}

func TestColony_RunsEndToEnd(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.Switches.Watcher = true
	e, w := newColony(t, cfg)

	for i := 0; i < 300; i++ {
		sum := e.Step()
		checkConsistent(t, e, sum.Tick)
	}

	stats := w.Stats()
	if stats.Spawned < 5 {
		t.Fatalf("spawned: got %d", stats.Spawned)
	}
	if w.Room("W1N1").Controller == 0 {
		t.Fatalf("W1N1 controller never upgraded")
	}
	if w.Room("W1N2").Reservation == 0 {
		t.Fatalf("W1N2 never reserved")
	}
	if stats.Died == 0 {
		t.Fatalf("no worker reached the end of its lifetime")
	}
	e.Coordinator().PurgeDead()
	for name := range e.State().Workers {
		if !w.Alive(name) {
			t.Fatalf("engine still tracks dead worker %s", name)
		}
	}
	m := e.Metrics()
	if m.Tick != 299 || m.RanTotal == 0 {
		t.Fatalf("metrics: %+v", m)
	}
}

func TestColony_ThrottledRoomStillHarvests(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.AdjustInterval = 1
	cfg.Levels = map[string]engine.LevelConfig{
		"harvest": {Priority: 1},
		"upgrade": {Priority: 3},
	}
	cfg.RoomCeilings = map[string]float64{"W1N1": 10, "W2N1": 10}
	e, w := newColony(t, cfg)

	for i := 0; i < 60; i++ {
		e.Step()
	}
	if w.Room("W1N1").Energy == 0 && w.Room("W1N1").Spawn == 0 {
		t.Fatalf("W1N1 produced no energy")
	}
	if v, ok := e.Controller().Record().Get(engine.RecordCall, []string{"W1N1"}, "harvest"); !ok || v <= 0 {
		t.Fatalf("harvest call tally: %d %v", v, ok)
	}
}
