package engine

import (
	"encoding/json"
	"fmt"

	"colony.ai/internal/persistence/snapshot"
	"colony.ai/internal/sim/tasks"
)

// ExportSnapshot captures the engine state. It must be called from the engine
// goroutine.
func (e *Engine) ExportSnapshot(nowTick uint64) (snapshot.SnapshotV1, error) {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:  1,
			EngineID: e.cfg.ID,
			RunID:    e.runID,
			Tick:     nowTick,
		},
		TickRateHz:         e.cfg.TickRateHz,
		RecordInterval:     e.cfg.RecordInterval,
		AdjustInterval:     e.cfg.AdjustInterval,
		SnapshotEveryTicks: e.cfg.SnapshotEveryTicks,
		CompactEveryTicks:  e.cfg.CompactEveryTicks,
		Switches:           switchesV1(e.ctrl.sw),
		Roll:               map[string][]string{},
		RecordLastTick:     e.ctrl.record.lastTick,
		AdjustLastTick:     e.ctrl.adjustLast,
		Counters: snapshot.CountersV1{
			Issued:  e.issuedTotal,
			Ran:     e.ranTotal,
			Outcome: map[string]uint64{},
		},
	}
	for k, v := range e.outcomes {
		snap.Counters.Outcome[k] = v
	}

	for _, id := range e.st.taskIDs() {
		tv, err := taskV1(e.st.WareHouse[id])
		if err != nil {
			return snap, fmt.Errorf("task %s: %w", id, err)
		}
		snap.Tasks = append(snap.Tasks, tv)
	}
	for _, name := range e.st.workerNames() {
		snap.Workers = append(snap.Workers, workerV1(e.st.Workers[name]))
	}
	for id, names := range e.st.Roll {
		snap.Roll[id] = append([]string(nil), names...)
	}

	var err error
	marshal := func(what string, v any) json.RawMessage {
		if err != nil {
			return nil
		}
		b, merr := json.Marshal(v)
		if merr != nil {
			err = fmt.Errorf("%s: %w", what, merr)
			return nil
		}
		return b
	}
	snap.Idle = marshal("idle", e.st.Idle)
	snap.Pool.Basic = marshal("pool basic", e.pool.basic)
	snap.Pool.Medium = marshal("pool medium", e.pool.medium)
	snap.RunSet.Basic = marshal("run basic", e.runs.basic)
	snap.RunSet.Medium = marshal("run medium", e.runs.medium)
	snap.LevelCurrent = marshal("level current", e.ctrl.current)
	snap.LevelStatic = marshal("level static", e.ctrl.static)
	if err != nil {
		return snap, err
	}
	if snap.Records, err = e.ctrl.record.export(); err != nil {
		return snap, fmt.Errorf("records: %w", err)
	}
	return snap, nil
}

func switchesV1(sw Switches) snapshot.SwitchesV1 {
	return snapshot.SwitchesV1{Timer: sw.Timer, List: sw.List, Watcher: sw.Watcher, Scheduler: sw.Scheduler}
}

func taskV1(t *tasks.Task) (snapshot.TaskV1, error) {
	tv := snapshot.TaskV1{
		ID:               t.ID,
		Kind:             string(t.Identity.Kind),
		TaskType:         t.Identity.TaskType,
		SubType:          t.Identity.SubTaskType,
		Home:             t.Identity.Home,
		TargetRoom:       t.Identity.TargetRoom,
		MaxRange:         t.Identity.MaxRange,
		MaxReceivedRooms: t.Identity.MaxReceivedRooms,
		Priority:         t.Priority,
		Max:              copyQuota(t.Settings.Received.Max),
		Current:          copyQuota(t.Settings.Received.Current),
		Left:             copyQuota(t.Settings.Received.Left),
		Revoked:          t.Settings.Revoked,
	}
	if len(t.Data) > 0 {
		b, err := json.Marshal(t.Data)
		if err != nil {
			return tv, fmt.Errorf("data: %w", err)
		}
		tv.Data = b
	}
	if len(t.Options) > 0 {
		b, err := json.Marshal(t.Options)
		if err != nil {
			return tv, fmt.Errorf("options: %w", err)
		}
		tv.Options = b
	}
	return tv, nil
}

func workerV1(w *tasks.Worker) snapshot.WorkerV1 {
	wv := snapshot.WorkerV1{
		Name:    w.Name,
		Role:    w.Role,
		Home:    w.Home,
		TaskID:  w.TaskID,
		Working: w.Working,
	}
	for _, k := range w.EarlyTerminated {
		wv.EarlyTerminated = append(wv.EarlyTerminated, [2]string{k.TaskType, k.SubTaskType})
	}
	return wv
}

func copyQuota(q tasks.Quota) map[string]int {
	out := make(map[string]int, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}
