// Package sandbox is a small in-memory colony that plays the world around the
// engine: rooms linked in a graph, spawns that turn role demand into workers,
// and a handful of task kinds that move energy around. The server runs it when
// no real world is attached, and the integration tests drive the engine with it.
package sandbox

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"colony.ai/internal/sim/engine"
)

type Config struct {
	Rooms []RoomConfig `yaml:"rooms"`

	// SpawnInterval is how often each controlled room may spawn one worker.
	SpawnInterval uint64 `yaml:"spawn_interval"`
	// Lifetime is how many ticks a spawned worker lives.
	Lifetime uint64 `yaml:"lifetime"`
	// RenewEvery refreshes living workers, clearing their early terminations.
	RenewEvery uint64 `yaml:"renew_every"`

	SpawnCost   int `yaml:"spawn_cost"`
	SpawnCap    int `yaml:"spawn_cap"`
	EnergyCap   int `yaml:"energy_cap"`
	HarvestRate int `yaml:"harvest_rate"`
	TransferMax int `yaml:"transfer_max"`
	// MaxPerRole caps the expected worker count of a role in one room.
	MaxPerRole    int `yaml:"max_per_role"`
	ReserveTarget int `yaml:"reserve_target"`
	// LowEnergy pushes upgrade work above the room ceiling while the room's
	// energy is below it.
	LowEnergy     int     `yaml:"low_energy"`
	UpgradeOffset float64 `yaml:"upgrade_offset"`
}

type RoomConfig struct {
	Name       string         `yaml:"name"`
	Controlled bool           `yaml:"controlled"`
	Sources    []string       `yaml:"sources"`
	Sites      map[string]int `yaml:"sites"`
	Links      []string       `yaml:"links"`
}

func DefaultConfig() Config {
	return Config{
		Rooms: []RoomConfig{
			{Name: "W1N1", Controlled: true, Sources: []string{"s1", "s2"}, Sites: map[string]int{"road1": 5}, Links: []string{"W2N1", "W1N2"}},
			{Name: "W2N1", Controlled: true, Sources: []string{"s3"}, Links: []string{"W1N1", "W3N1"}},
			{Name: "W1N2", Links: []string{"W1N1", "W2N2"}},
			{Name: "W3N1", Links: []string{"W2N1"}},
			{Name: "W2N2", Links: []string{"W1N2"}},
		},
		SpawnInterval: 5,
		Lifetime:      200,
		RenewEvery:    50,
		SpawnCost:     10,
		SpawnCap:      50,
		EnergyCap:     100,
		HarvestRate:   2,
		TransferMax:   5,
		MaxPerRole:    3,
		ReserveTarget: 50,
		LowEnergy:     10,
		UpgradeOffset: 100,
	}
}

// LoadConfig reads a sandbox layout over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var file Config
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return cfg, fmt.Errorf("sandbox.yaml: %w", err)
	}
	cfg.merge(file)
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("sandbox.yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) merge(o Config) {
	if len(o.Rooms) > 0 {
		c.Rooms = o.Rooms
	}
	setU := func(dst *uint64, v uint64) {
		if v > 0 {
			*dst = v
		}
	}
	setI := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	setU(&c.SpawnInterval, o.SpawnInterval)
	setU(&c.Lifetime, o.Lifetime)
	setU(&c.RenewEvery, o.RenewEvery)
	setI(&c.SpawnCost, o.SpawnCost)
	setI(&c.SpawnCap, o.SpawnCap)
	setI(&c.EnergyCap, o.EnergyCap)
	setI(&c.HarvestRate, o.HarvestRate)
	setI(&c.TransferMax, o.TransferMax)
	setI(&c.MaxPerRole, o.MaxPerRole)
	setI(&c.ReserveTarget, o.ReserveTarget)
	setI(&c.LowEnergy, o.LowEnergy)
	if o.UpgradeOffset > 0 {
		c.UpgradeOffset = o.UpgradeOffset
	}
}

func (c Config) validate() error {
	seen := map[string]bool{}
	for _, r := range c.Rooms {
		if r.Name == "" {
			return fmt.Errorf("room with empty name")
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate room %q", r.Name)
		}
		seen[r.Name] = true
	}
	for _, r := range c.Rooms {
		for _, l := range r.Links {
			if !seen[l] {
				return fmt.Errorf("room %s links to unknown room %q", r.Name, l)
			}
		}
	}
	return nil
}

// Room is the mutable state of one room.
type Room struct {
	Name       string
	Controlled bool
	Sources    []string
	// Sites maps a construction site to the work it still needs.
	Sites map[string]int

	Energy      int
	Spawn       int
	Controller  int
	Reservation int

	expected map[string]int
	current  map[string]int
}

func (r *Room) hasSource(id string) bool {
	for _, s := range r.Sources {
		if s == id {
			return true
		}
	}
	return false
}

// Body is a living worker.
type Body struct {
	Name string
	Role string
	Home string
	Born uint64
	Dies uint64
}

// Stats are running totals for tests and the server log.
type Stats struct {
	Spawned  int
	Died     int
	Renewed  int
	Finished map[string]int
}

// World implements engine.WorldSensor, engine.EventSource and
// engine.SpawnDemand. Like the engine, it is driven from a single goroutine.
type World struct {
	cfg    Config
	rooms  map[string]*Room
	order  []string
	links  map[string][]string
	bodies map[string]*Body
	events map[string][]engine.Event
	seq    int
	stats  Stats
}

func New(cfg Config) (*World, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	w := &World{
		cfg:    cfg,
		rooms:  map[string]*Room{},
		links:  map[string][]string{},
		bodies: map[string]*Body{},
		events: map[string][]engine.Event{},
		stats:  Stats{Finished: map[string]int{}},
	}
	for _, rc := range cfg.Rooms {
		sites := make(map[string]int, len(rc.Sites))
		for k, v := range rc.Sites {
			sites[k] = v
		}
		r := &Room{
			Name:       rc.Name,
			Controlled: rc.Controlled,
			Sources:    append([]string(nil), rc.Sources...),
			Sites:      sites,
			expected:   map[string]int{},
			current:    map[string]int{},
		}
		if r.Controlled {
			r.Spawn = cfg.SpawnCap
			w.order = append(w.order, r.Name)
		}
		w.rooms[r.Name] = r
	}
	// Links are undirected.
	for _, rc := range cfg.Rooms {
		for _, l := range rc.Links {
			w.link(rc.Name, l)
			w.link(l, rc.Name)
		}
	}
	sort.Strings(w.order)
	return w, nil
}

func (w *World) link(a, b string) {
	for _, x := range w.links[a] {
		if x == b {
			return
		}
	}
	w.links[a] = append(w.links[a], b)
	sort.Strings(w.links[a])
}

func (w *World) Room(name string) *Room { return w.rooms[name] }

func (w *World) Stats() Stats {
	s := w.stats
	s.Finished = make(map[string]int, len(w.stats.Finished))
	for k, v := range w.stats.Finished {
		s.Finished[k] = v
	}
	return s
}

// Bodies lists living workers by name.
func (w *World) Bodies() []*Body {
	out := make([]*Body, 0, len(w.bodies))
	for _, b := range w.bodies {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (w *World) ControlledRooms() []string { return append([]string(nil), w.order...) }

func (w *World) Alive(name string) bool {
	_, ok := w.bodies[name]
	return ok
}

// ReceivingRooms walks the room graph breadth-first from target and returns
// the controlled rooms within maxRange hops, nearest first and by name within
// a ring. The target itself counts when it is controlled.
func (w *World) ReceivingRooms(target string, maxRange int) []string {
	if _, ok := w.rooms[target]; !ok {
		return nil
	}
	dist := map[string]int{target: 0}
	ring := []string{target}
	var out []string
	for d := 0; len(ring) > 0 && d <= maxRange; d++ {
		sort.Strings(ring)
		var next []string
		for _, name := range ring {
			if w.rooms[name].Controlled {
				out = append(out, name)
			}
			for _, n := range w.links[name] {
				if _, seen := dist[n]; !seen {
					dist[n] = d + 1
					next = append(next, n)
				}
			}
		}
		ring = next
	}
	return out
}

func (w *World) Events(room string) []engine.Event {
	ev := w.events[room]
	delete(w.events, room)
	return ev
}

func (w *World) emit(room, typ string, data map[string]any) {
	w.events[room] = append(w.events[room], engine.Event{Room: room, Type: typ, Data: data})
}

// ReserveRoleQuota raises the expected count of role at room, up to MaxPerRole.
func (w *World) ReserveRoleQuota(room, role string, delta int) {
	r := w.rooms[room]
	if r == nil || role == "" {
		return
	}
	r.expected[role] = min(r.expected[role]+delta, w.cfg.MaxPerRole)
}

// Expected reports the wanted and living counts of role at room.
func (w *World) Expected(room, role string) (expected, current int) {
	r := w.rooms[room]
	if r == nil {
		return 0, 0
	}
	return r.expected[role], r.current[role]
}
