package engine

import (
	"log"
	"math"
	"sort"

	"colony.ai/internal/sim/tasks"
	"colony.ai/internal/sim/tree"
)

type (
	// LevelFunc tunes the dynamic level of one room. It runs every adjust
	// interval for every controlled room.
	LevelFunc func(room string, current *tree.Level) bool
	// SwitchFunc may flip the phase switches; it runs every adjust interval.
	SwitchFunc func(sw *Switches) bool
	// WatchFunc handles one world event of the watched type.
	WatchFunc func(room string, ev Event)
)

// Subject is something an issue piece inspects, located in Room.
type Subject struct {
	ID   string
	Room string
}

// IssuePiece is scanned every tick while the list switch is on: for every
// subject that passes Condition, Triggered yields tasks to add.
type IssuePiece struct {
	TaskType    string
	SubTaskType string
	// TriggerToOrigin applies the subject room's invalid_call tally to this
	// piece: while it is positive the subject is skipped.
	TriggerToOrigin bool

	Subjects  func() []Subject
	Condition func(s Subject) bool
	Triggered func(s Subject) []tasks.Issued
}

// ScheduledItem runs every Interval ticks while the scheduler switch is on.
// When Room and TaskType are set it is held back by that room's ceiling like
// a task of that type.
type ScheduledItem struct {
	Name        string
	Interval    uint64
	Room        string
	TaskType    string
	SubTaskType string
	Run         func(tick uint64)
}

// Controller drives the Adjust, Issue and Run phases and keeps the Record
// tallies that connect them.
type Controller struct {
	coord  *Coordinator
	sensor WorldSensor
	logger *log.Logger

	sw             Switches
	adjustInterval uint64
	adjustLast     uint64
	record         *Record

	// current is the dynamic level: value at root key room is the room
	// ceiling, at [room] key taskType and [room, taskType] key subTaskType
	// the room's offsets.
	current *tree.Level
	// static is the priority table: root key taskType is the base,
	// [taskType] key subTaskType the delta.
	static *tree.Level

	levelFuncs  []LevelFunc
	switchFuncs []SwitchFunc
	timer       map[uint64][]func()
	list        []*IssuePiece
	watcher     map[string][]WatchFunc
	scheduler   map[uint64][]ScheduledItem
}

func NewController(cfg Config, coord *Coordinator, sensor WorldSensor, now uint64, logger *log.Logger) *Controller {
	c := &Controller{
		coord:          coord,
		sensor:         sensor,
		logger:         logger,
		sw:             cfg.Switches,
		adjustInterval: cfg.AdjustInterval,
		adjustLast:     now,
		record:         NewRecord(cfg.RecordInterval, now),
		current:        tree.NewLevel(),
		static:         tree.NewLevel(),
		timer:          map[uint64][]func(){},
		watcher:        map[string][]WatchFunc{},
		scheduler:      map[uint64][]ScheduledItem{},
	}
	for taskType, lv := range cfg.Levels {
		c.static.AddToLeaf(lv.Priority, nil, taskType)
		for sub, d := range lv.Sub {
			c.static.AddToLeaf(d, []string{taskType}, sub)
		}
	}
	for room, ceiling := range cfg.RoomCeilings {
		c.current.AddToLeaf(ceiling, nil, room)
	}
	return c
}

func (c *Controller) Current() *tree.Level { return c.current }

func (c *Controller) Static() *tree.Level { return c.static }

func (c *Controller) Record() *Record { return c.record }

func (c *Controller) Switches() Switches { return c.sw }

func (c *Controller) SetSwitches(sw Switches) { c.sw = sw }

func (c *Controller) AddToAdjustLevelFuncs(fn LevelFunc) { c.levelFuncs = append(c.levelFuncs, fn) }

func (c *Controller) AddToAdjustSwitchFuncs(fn SwitchFunc) {
	c.switchFuncs = append(c.switchFuncs, fn)
}

// AddToTimer schedules fn for tick. Ticks not in the future are refused.
func (c *Controller) AddToTimer(tick, now uint64, fn func()) bool {
	if tick <= now || fn == nil {
		return false
	}
	c.timer[tick] = append(c.timer[tick], fn)
	return true
}

func (c *Controller) AddToList(p *IssuePiece) bool {
	if p == nil || p.Subjects == nil || p.Triggered == nil {
		return false
	}
	c.list = append(c.list, p)
	return true
}

func (c *Controller) AddToWatcher(eventType string, fn WatchFunc) bool {
	if fn == nil {
		return false
	}
	c.watcher[eventType] = append(c.watcher[eventType], fn)
	return true
}

func (c *Controller) AddToScheduler(item ScheduledItem) bool {
	if item.Interval == 0 || item.Run == nil {
		return false
	}
	c.scheduler[item.Interval] = append(c.scheduler[item.Interval], item)
	return true
}

func (c *Controller) rooms() []string {
	if c.sensor == nil {
		return nil
	}
	return c.sensor.ControlledRooms()
}

// Adjust wipes the tallies when the record interval is up, folds the call
// tallies into invalid_call, and every adjust interval runs the level and
// switch funcs. It reports whether the tallies were wiped.
func (c *Controller) Adjust(now uint64) bool {
	reset := c.record.preCheck(now)
	c.analyseRecord()
	if now >= c.adjustLast && now-c.adjustLast >= c.adjustInterval {
		c.adjustLast = now
		c.adjustLevel()
		c.adjustSwitch()
	}
	return reset
}

// analyseRecord moves invalid_call one step per tick: down (never below 0)
// for nodes that ran, up for nodes that were held back.
func (c *Controller) analyseRecord() {
	call := c.record.index(RecordCall)
	if call == nil {
		return
	}
	var walk func(path []string)
	walk = func(path []string) {
		for _, key := range call.Keys(path) {
			v, _ := call.GetFromLeaf(path, key)
			switch {
			case v > 0:
				c.record.modify(RecordInvalidCall, path, key, -1, func(n int) bool { return n > 0 })
			case v < 0:
				c.record.modify(RecordInvalidCall, path, key, 1, nil)
			}
			walk(append(path[:len(path):len(path)], key))
		}
	}
	for _, room := range call.LabelsOf(nil) {
		walk([]string{room})
	}
}

func (c *Controller) adjustLevel() {
	for _, room := range c.rooms() {
		for _, fn := range c.levelFuncs {
			fn(room, c.current)
		}
	}
}

func (c *Controller) adjustSwitch() {
	for _, fn := range c.switchFuncs {
		fn(&c.sw)
	}
}

// preventTimes is the invalid_call count for a kind of task in room, taskType
// and subTaskType levels summed.
func (c *Controller) preventTimes(room, taskType, subTaskType string) int {
	a, _ := c.record.Get(RecordInvalidCall, []string{room}, taskType)
	b, _ := c.record.Get(RecordInvalidCall, []string{room, taskType}, subTaskType)
	return a + b
}

// Issue scans the issue list, fires due timers and dispatches watched events.
func (c *Controller) Issue(now uint64) {
	if c.sw.List {
		for _, p := range c.list {
			for _, s := range p.Subjects() {
				if p.TriggerToOrigin && s.Room != "" && c.preventTimes(s.Room, p.TaskType, p.SubTaskType) > 0 {
					continue
				}
				if p.Condition != nil && !p.Condition(s) {
					continue
				}
				for _, it := range p.Triggered(s) {
					c.coord.AddTask(it.Task, it.Silence)
				}
			}
		}
	}

	if c.sw.Timer {
		for _, fn := range c.timer[now] {
			fn()
		}
		for tick := range c.timer {
			if tick <= now {
				delete(c.timer, tick)
			}
		}
	}

	if c.sw.Watcher && len(c.watcher) > 0 {
		src, ok := c.sensor.(EventSource)
		if !ok {
			return
		}
		for _, room := range c.rooms() {
			for _, ev := range src.Events(room) {
				for _, fn := range c.watcher[ev.Type] {
					fn(room, ev)
				}
			}
		}
	}
}

func (c *Controller) ceiling(room string) float64 {
	if v, ok := c.current.GetFromLeaf(nil, room); ok {
		return v
	}
	return math.Inf(1)
}

func (c *Controller) priority(room, taskType string) float64 {
	base, _ := c.static.GetFromLeaf(nil, taskType)
	dyn, _ := c.current.GetFromLeaf([]string{room}, taskType)
	return base + dyn
}

func (c *Controller) subPriority(room, taskType, subTaskType string, priority float64) float64 {
	d, _ := c.static.GetFromLeaf([]string{taskType}, subTaskType)
	dyn, _ := c.current.GetFromLeaf([]string{room, taskType}, subTaskType)
	return priority + d + dyn
}

// taskTypes lists the taskTypes of the static table plus any registered to run
// in room.
func (c *Controller) taskTypes(room string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(keys []string) {
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	add(c.static.Keys(nil))
	add(c.coord.runs.Labels(tasks.Basic, []string{room}))
	add(c.coord.runs.Labels(tasks.Medium, []string{room}))
	sort.Strings(out)
	return out
}

func (c *Controller) subTaskTypes(room, taskType string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(keys []string) {
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	add(c.static.Keys([]string{taskType}))
	add(c.coord.runs.Labels(tasks.CategoryOf(taskType), []string{room, taskType}))
	sort.Strings(out)
	return out
}

// Run executes registered tasks under each room's ceiling. A taskType whose
// priority fits runs as a whole; otherwise each of its subTaskTypes is tried
// with its own refined priority. Every decision is tallied in RecordCall.
func (c *Controller) Run(now uint64) {
	if c.sw.Scheduler {
		c.runScheduler(now)
	}
	for _, room := range c.rooms() {
		ceiling := c.ceiling(room)
		for _, taskType := range c.taskTypes(room) {
			cat := tasks.CategoryOf(taskType)
			prio := c.priority(room, taskType)
			if prio <= ceiling {
				c.coord.RunTasks(cat, []string{room, taskType}, true)
				c.record.modify(RecordCall, []string{room}, taskType, 1, nil)
				continue
			}
			c.record.modify(RecordCall, []string{room}, taskType, -1, nil)
			c.coord.stats.throttled++
			for _, sub := range c.subTaskTypes(room, taskType) {
				if c.subPriority(room, taskType, sub, prio) <= ceiling {
					c.coord.RunTasks(cat, []string{room, taskType, sub}, false)
					c.record.modify(RecordCall, []string{room, taskType}, sub, 1, nil)
				} else {
					c.record.modify(RecordCall, []string{room, taskType}, sub, -1, nil)
				}
			}
		}
	}
}

func (c *Controller) runScheduler(now uint64) {
	if len(c.scheduler) == 0 {
		return
	}
	intervals := make([]uint64, 0, len(c.scheduler))
	for iv := range c.scheduler {
		intervals = append(intervals, iv)
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })
	for _, iv := range intervals {
		if now%iv != 0 {
			continue
		}
		for _, it := range c.scheduler[iv] {
			if it.Room != "" && it.TaskType != "" {
				prio := c.priority(it.Room, it.TaskType)
				if it.SubTaskType != "" {
					prio = c.subPriority(it.Room, it.TaskType, it.SubTaskType, prio)
				}
				if prio > c.ceiling(it.Room) {
					continue
				}
			}
			it.Run(now)
		}
	}
}
