package snapshot

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "42.snap.zst")
	in := SnapshotV1{
		Header:     Header{Version: 1, EngineID: "c1", RunID: "r1", Tick: 42},
		TickRateHz: 5,
		Switches:   SwitchesV1{Timer: true, List: true},
		Tasks: []TaskV1{{
			ID:       "t1",
			Kind:     "attached",
			TaskType: "harvest",
			SubType:  "source",
			Home:     "W1N1",
			Data:     json.RawMessage(`{"source":"s1"}`),
			Max:      map[string]int{"harvester": 1, "any": 0},
			Current:  map[string]int{"harvester": 1, "any": 0},
			Left:     map[string]int{"harvester": 0, "any": 0},
		}},
		Workers:  []WorkerV1{{Name: "h1", Role: "harvester", Home: "W1N1", TaskID: "t1", Working: true, EarlyTerminated: [][2]string{{"harvest", "source"}}}},
		Roll:     map[string][]string{"t1": {"h1"}},
		Idle:     json.RawMessage(`{}`),
		Counters: CountersV1{Issued: 3, Outcome: map[string]uint64{"CONTINUE": 2}},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if h != in.Header {
		t.Fatalf("header: got %+v", h)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Header != in.Header || !out.Switches.Timer || out.Switches.Watcher {
		t.Fatalf("unexpected snapshot: %+v", out)
	}
	if len(out.Tasks) != 1 || string(out.Tasks[0].Data) != `{"source":"s1"}` || out.Tasks[0].Current["harvester"] != 1 {
		t.Fatalf("tasks: %+v", out.Tasks)
	}
	if len(out.Workers) != 1 || out.Workers[0].EarlyTerminated[0] != [2]string{"harvest", "source"} {
		t.Fatalf("workers: %+v", out.Workers)
	}
	if out.Roll["t1"][0] != "h1" || out.Counters.Outcome["CONTINUE"] != 2 {
		t.Fatalf("roll/counters: %+v %+v", out.Roll, out.Counters)
	}
}

func TestReadSnapshot_Missing(t *testing.T) {
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.snap.zst")); err == nil {
		t.Fatalf("expected error")
	}
}
