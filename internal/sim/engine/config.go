package engine

type Config struct {
	ID         string
	TickRateHz int

	// RecordInterval is how many ticks the call tallies accumulate before they
	// are wiped.
	RecordInterval uint64
	// AdjustInterval is how often level and switch funcs run. Tally analysis
	// runs every tick regardless.
	AdjustInterval uint64

	SnapshotEveryTicks uint64
	// CompactEveryTicks drops stale pool ids; 0 means only on record resets.
	CompactEveryTicks uint64

	Switches Switches

	// Levels is the static priority table: taskType -> base priority plus
	// per-subTaskType deltas.
	Levels map[string]LevelConfig
	// RoomCeilings seeds the dynamic per-room priority ceiling. Rooms without
	// an entry run everything.
	RoomCeilings map[string]float64
}

type LevelConfig struct {
	Priority float64
	Sub      map[string]float64
}

// Switches gate the optional parts of the Issue and Run phases.
type Switches struct {
	Timer     bool
	List      bool
	Watcher   bool
	Scheduler bool
}

// DefaultSwitches has timers, list scanning and the scheduler on, and event
// watching off.
func DefaultSwitches() Switches {
	return Switches{Timer: true, List: true, Watcher: false, Scheduler: true}
}

func DefaultConfig() Config {
	c := Config{Switches: DefaultSwitches()}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = "colony"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 5
	}
	if c.RecordInterval == 0 {
		c.RecordInterval = 1500
	}
	if c.AdjustInterval == 0 {
		c.AdjustInterval = 500
	}
	if c.SnapshotEveryTicks == 0 {
		c.SnapshotEveryTicks = 3000
	}
}
