package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"colony.ai/internal/sim/engine"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int    `yaml:"tick_rate_hz"`
	RecordInterval     uint64 `yaml:"record_interval"`
	AdjustInterval     uint64 `yaml:"adjust_interval"`
	SnapshotEveryTicks uint64 `yaml:"snapshot_every_ticks"`
	CompactEveryTicks  uint64 `yaml:"compact_every_ticks"`
	LogSegmentTicks    uint64 `yaml:"log_segment_ticks"`

	IssueSwitch IssueSwitch `yaml:"issue_switch"`
	RunSwitch   RunSwitch   `yaml:"run_switch"`

	Levels       map[string]Level   `yaml:"levels"`
	RoomCeilings map[string]float64 `yaml:"room_ceilings"`
}

// Switches are pointers so that a key left out of the file keeps its default.
type IssueSwitch struct {
	Timer   *bool `yaml:"timer"`
	List    *bool `yaml:"list"`
	Watcher *bool `yaml:"watcher"`
}

type RunSwitch struct {
	Scheduler *bool `yaml:"scheduler"`
}

// Level is one row of the static priority table.
type Level struct {
	Priority float64            `yaml:"priority"`
	Sub      map[string]float64 `yaml:"sub"`
}

func Defaults() Tuning {
	sw := engine.DefaultSwitches()
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         5,
		RecordInterval:     1500,
		AdjustInterval:     500,
		SnapshotEveryTicks: 3000,
		CompactEveryTicks:  100,
		LogSegmentTicks:    10000,
		IssueSwitch: IssueSwitch{
			Timer:   boolPtr(sw.Timer),
			List:    boolPtr(sw.List),
			Watcher: boolPtr(sw.Watcher),
		},
		RunSwitch: RunSwitch{Scheduler: boolPtr(sw.Scheduler)},
	}
}

func boolPtr(b bool) *bool { return &b }

// Load reads path over Defaults: keys missing from the file keep their
// default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0 (got %d)", t.TickRateHz)
	}
	if t.RecordInterval == 0 {
		return fmt.Errorf("record_interval must be > 0")
	}
	if t.AdjustInterval == 0 {
		return fmt.Errorf("adjust_interval must be > 0")
	}
	for room := range t.RoomCeilings {
		if room == "" {
			return fmt.Errorf("room_ceilings: empty room name")
		}
	}
	return nil
}

// EngineConfig converts the tuning into an engine config with the given id.
func (t Tuning) EngineConfig(id string) engine.Config {
	sw := engine.DefaultSwitches()
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&sw.Timer, t.IssueSwitch.Timer)
	set(&sw.List, t.IssueSwitch.List)
	set(&sw.Watcher, t.IssueSwitch.Watcher)
	set(&sw.Scheduler, t.RunSwitch.Scheduler)

	cfg := engine.Config{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		RecordInterval:     t.RecordInterval,
		AdjustInterval:     t.AdjustInterval,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		CompactEveryTicks:  t.CompactEveryTicks,
		Switches:           sw,
		RoomCeilings:       map[string]float64{},
	}
	if len(t.Levels) > 0 {
		cfg.Levels = make(map[string]engine.LevelConfig, len(t.Levels))
		for taskType, lv := range t.Levels {
			sub := make(map[string]float64, len(lv.Sub))
			for k, v := range lv.Sub {
				sub[k] = v
			}
			cfg.Levels[taskType] = engine.LevelConfig{Priority: lv.Priority, Sub: sub}
		}
	}
	for room, c := range t.RoomCeilings {
		cfg.RoomCeilings[room] = c
	}
	return cfg
}
