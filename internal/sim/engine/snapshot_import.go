package engine

import (
	"encoding/json"
	"fmt"

	"colony.ai/internal/persistence/snapshot"
	"colony.ai/internal/sim/tasks"
	"colony.ai/internal/sim/tree"
)

// ImportSnapshot replaces the in-memory engine state with the snapshot and
// sets the tick to snapshotTick+1. Task behavior is re-attached from the
// registry; tasks with no registered behavior report Delete when run.
//
// This must be called only when the engine is stopped or from the engine
// goroutine.
func (e *Engine) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != 1 {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}

	st := NewState()
	for _, tv := range s.Tasks {
		t, err := taskFromV1(tv)
		if err != nil {
			return fmt.Errorf("task %s: %w", tv.ID, err)
		}
		if !e.registry.Attach(t) {
			e.logf("snapshot: no behavior for %s, it will be deleted on its next run", t)
		}
		st.WareHouse[t.ID] = t
	}
	for _, wv := range s.Workers {
		w := &tasks.Worker{
			Name:    wv.Name,
			Role:    wv.Role,
			Home:    wv.Home,
			TaskID:  wv.TaskID,
			Working: wv.Working,
		}
		for _, k := range wv.EarlyTerminated {
			w.EarlyTerminated = append(w.EarlyTerminated, tasks.Key{TaskType: k[0], SubTaskType: k[1]})
		}
		st.Workers[w.Name] = w
	}
	for id, names := range s.Roll {
		if _, ok := st.WareHouse[id]; !ok {
			continue
		}
		st.Roll[id] = append([]string(nil), names...)
	}
	if err := unmarshalRaw(s.Idle, st.Idle); err != nil {
		return fmt.Errorf("idle: %w", err)
	}

	pool := NewTaskPool(st.task)
	if err := unmarshalRaw(s.Pool.Basic, pool.basic); err != nil {
		return fmt.Errorf("pool basic: %w", err)
	}
	if err := unmarshalRaw(s.Pool.Medium, pool.medium); err != nil {
		return fmt.Errorf("pool medium: %w", err)
	}
	runs := NewRunSet()
	if err := unmarshalRaw(s.RunSet.Basic, runs.basic); err != nil {
		return fmt.Errorf("run basic: %w", err)
	}
	if err := unmarshalRaw(s.RunSet.Medium, runs.medium); err != nil {
		return fmt.Errorf("run medium: %w", err)
	}
	current, static := tree.NewLevel(), tree.NewLevel()
	if err := unmarshalRaw(s.LevelCurrent, current); err != nil {
		return fmt.Errorf("level current: %w", err)
	}
	if err := unmarshalRaw(s.LevelStatic, static); err != nil {
		return fmt.Errorf("level static: %w", err)
	}

	// Operational parameters: snapshot is authoritative when present.
	if s.TickRateHz > 0 {
		e.cfg.TickRateHz = s.TickRateHz
	}
	if s.RecordInterval > 0 {
		e.cfg.RecordInterval = s.RecordInterval
	}
	if s.AdjustInterval > 0 {
		e.cfg.AdjustInterval = s.AdjustInterval
	}
	if s.SnapshotEveryTicks > 0 {
		e.cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	}
	e.cfg.CompactEveryTicks = s.CompactEveryTicks
	e.cfg.Switches = Switches{
		Timer:     s.Switches.Timer,
		List:      s.Switches.List,
		Watcher:   s.Switches.Watcher,
		Scheduler: s.Switches.Scheduler,
	}

	// Swap in. Registered funcs, issue pieces, timers and the scheduler belong
	// to the process and are kept.
	*e.st = *st
	e.pool.basic, e.pool.medium = pool.basic, pool.medium
	e.pool.basic.SetPriority(e.pool.priority)
	e.pool.medium.SetPriority(e.pool.priority)
	e.runs.basic, e.runs.medium = runs.basic, runs.medium

	e.ctrl.sw = e.cfg.Switches
	e.ctrl.adjustInterval = e.cfg.AdjustInterval
	e.ctrl.adjustLast = s.AdjustLastTick
	e.ctrl.current, e.ctrl.static = current, static
	e.ctrl.record = NewRecord(e.cfg.RecordInterval, s.RecordLastTick)
	if err := e.ctrl.record.load(s.Records, s.RecordLastTick); err != nil {
		return fmt.Errorf("records: %w", err)
	}
	e.coord.ranAt = map[string]uint64{}
	e.coord.stats = tickStats{}

	e.issuedTotal = s.Counters.Issued
	e.ranTotal = s.Counters.Ran
	e.outcomes = map[string]uint64{}
	for k, v := range s.Counters.Outcome {
		e.outcomes[k] = v
	}
	e.tick.Store(s.Header.Tick + 1)
	return nil
}

func unmarshalRaw(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func taskFromV1(tv snapshot.TaskV1) (*tasks.Task, error) {
	t := &tasks.Task{
		ID: tv.ID,
		Identity: tasks.Identity{
			Kind:             tasks.Kind(tv.Kind),
			TaskType:         tv.TaskType,
			SubTaskType:      tv.SubType,
			Home:             tv.Home,
			TargetRoom:       tv.TargetRoom,
			MaxRange:         tv.MaxRange,
			MaxReceivedRooms: tv.MaxReceivedRooms,
		},
		Priority: tv.Priority,
		Settings: tasks.Settings{
			Received: tasks.Received{
				Max:     tasks.Quota(copyQuotaMap(tv.Max)),
				Current: tasks.Quota(copyQuotaMap(tv.Current)),
				Left:    tasks.Quota(copyQuotaMap(tv.Left)),
			},
			Revoked: tv.Revoked,
		},
	}
	if len(tv.Data) > 0 {
		if err := json.Unmarshal(tv.Data, &t.Data); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
	}
	if len(tv.Options) > 0 {
		if err := json.Unmarshal(tv.Options, &t.Options); err != nil {
			return nil, fmt.Errorf("options: %w", err)
		}
	}
	return t, nil
}

func copyQuotaMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	if _, ok := out[tasks.AnyRole]; !ok {
		out[tasks.AnyRole] = 0
	}
	return out
}
