package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version  int    `json:"version"`
	EngineID string `json:"engine_id"`
	RunID    string `json:"run_id"`
	Tick     uint64 `json:"tick"`
}

// SnapshotV1 is the persisted engine state. Trees are carried in their JSON form
// (node values under the reserved "$value" label); queues are carried as their
// backing slices and re-heapified on import. Task behavior is never persisted.
type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRateHz         int    `json:"tick_rate_hz"`
	RecordInterval     uint64 `json:"record_interval"`
	AdjustInterval     uint64 `json:"adjust_interval"`
	SnapshotEveryTicks uint64 `json:"snapshot_every_ticks,omitempty"`
	CompactEveryTicks  uint64 `json:"compact_every_ticks,omitempty"`

	Switches SwitchesV1 `json:"switches"`

	Tasks   []TaskV1            `json:"tasks"`
	Workers []WorkerV1          `json:"workers"`
	Roll    map[string][]string `json:"roll"`

	Idle   json.RawMessage `json:"idle"`
	Pool   CategoriesV1    `json:"pool"`
	RunSet CategoriesV1    `json:"run_set"`

	LevelCurrent json.RawMessage `json:"level_current"`
	LevelStatic  json.RawMessage `json:"level_static"`

	Records        map[string]json.RawMessage `json:"records,omitempty"`
	RecordLastTick uint64                     `json:"record_last_tick"`
	AdjustLastTick uint64                     `json:"adjust_last_tick"`

	Counters CountersV1 `json:"counters"`
}

type SwitchesV1 struct {
	Timer     bool `json:"timer"`
	List      bool `json:"list"`
	Watcher   bool `json:"watcher"`
	Scheduler bool `json:"scheduler"`
}

type CategoriesV1 struct {
	Basic  json.RawMessage `json:"basic"`
	Medium json.RawMessage `json:"medium"`
}

type TaskV1 struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	TaskType string `json:"task_type"`
	SubType  string `json:"sub_task_type"`

	Home             string `json:"home,omitempty"`
	TargetRoom       string `json:"target_room,omitempty"`
	MaxRange         int    `json:"max_range,omitempty"`
	MaxReceivedRooms int    `json:"max_received_rooms,omitempty"`

	Priority float64 `json:"priority"`

	// Data and Options are JSON objects; gob cannot carry untyped maps.
	Data    json.RawMessage `json:"data,omitempty"`
	Options json.RawMessage `json:"options,omitempty"`

	Max     map[string]int `json:"max"`
	Current map[string]int `json:"current"`
	Left    map[string]int `json:"left"`
	Revoked bool           `json:"revoked,omitempty"`
}

type WorkerV1 struct {
	Name            string      `json:"name"`
	Role            string      `json:"role"`
	Home            string      `json:"home"`
	TaskID          string      `json:"task_id,omitempty"`
	Working         bool        `json:"working,omitempty"`
	EarlyTerminated [][2]string `json:"early_terminated,omitempty"`
}

type CountersV1 struct {
	Issued  uint64            `json:"issued"`
	Ran     uint64            `json:"ran"`
	Outcome map[string]uint64 `json:"outcome,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON header line.
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
