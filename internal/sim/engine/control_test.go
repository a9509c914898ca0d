package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"colony.ai/internal/sim/tasks"
	"colony.ai/internal/sim/tree"
)

func throttledConfig() Config {
	cfg := DefaultConfig()
	cfg.Levels = map[string]LevelConfig{"harvest": {Priority: 10}}
	cfg.RoomCeilings = map[string]float64{"W1": 5}
	return cfg
}

func TestRun_CeilingBelowPriorityHoldsTaskTypeBack(t *testing.T) {
	policy := RoleTable{"X": {{TaskType: "harvest"}}}
	e, _ := newTestEngine(t, throttledConfig(), newFakeWorld("W1"), policy)
	calls := 0
	task := harvestTask("W1", "s1", nil)
	task.Run = runReturning(tasks.Continue, &calls)
	require.True(t, e.AddTask(task, false))
	e.coord.RegisterWorker(newWorker("a", "X", "W1"))

	sum := e.Step()
	require.Zero(t, calls)
	require.Zero(t, sum.Ran)
	require.Equal(t, 1, sum.Throttled)
	v, _ := e.ctrl.record.Get(RecordCall, []string{"W1"}, "harvest")
	require.Equal(t, -1, v)
	v, _ = e.ctrl.record.Get(RecordCall, []string{"W1", "harvest"}, "source")
	require.Equal(t, -1, v)
	_, ok := e.ctrl.record.Get(RecordInvalidCall, []string{"W1"}, "harvest")
	require.False(t, ok)

	e.Step()
	require.Zero(t, calls)
	v, _ = e.ctrl.record.Get(RecordInvalidCall, []string{"W1"}, "harvest")
	require.Equal(t, 1, v)
	require.Equal(t, 2, e.ctrl.preventTimes("W1", "harvest", "source"))
	require.Equal(t, []string{task.ID}, e.runs.IDs(tasks.Basic, nil), "held back tasks stay registered")

	e.ctrl.Current().AddToLeaf(20, nil, "W1")
	sum = e.Step()
	require.Equal(t, 1, calls)
	require.Zero(t, sum.Throttled)
}

func TestRun_SubTaskTypeRunsUnderRefinedPriority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Levels = map[string]LevelConfig{"harvest": {Priority: 10, Sub: map[string]float64{"source": -6, "mineral": 2}}}
	cfg.RoomCeilings = map[string]float64{"W1": 5}
	policy := RoleTable{"X": {{TaskType: "harvest"}}}
	e, _ := newTestEngine(t, cfg, newFakeWorld("W1"), policy)

	var srcCalls, minCalls int
	src := harvestTask("W1", "s1", nil)
	src.Run = runReturning(tasks.Continue, &srcCalls)
	mineral := tasks.New(1, tasks.Attached("W1", "harvest", "mineral"), map[string]any{"mineral": "m1"}, nil)
	mineral.Run = runReturning(tasks.Continue, &minCalls)
	require.True(t, e.AddTask(src, false))
	require.True(t, e.AddTask(mineral, false))
	e.coord.RegisterWorker(newWorker("a", "X", "W1"))
	e.coord.RegisterWorker(newWorker("b", "X", "W1"))

	e.Step()
	require.Equal(t, 1, srcCalls)
	require.Zero(t, minCalls)
	v, _ := e.ctrl.record.Get(RecordCall, []string{"W1", "harvest"}, "source")
	require.Equal(t, 1, v)
	v, _ = e.ctrl.record.Get(RecordCall, []string{"W1", "harvest"}, "mineral")
	require.Equal(t, -1, v)
}

func TestAnalyseRecord_InvalidCallNeverBelowZero(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig(), newFakeWorld("W1"), nil)
	r := e.ctrl.record
	r.Add(RecordCall, []string{"W1"}, "harvest", 3)
	r.Add(RecordInvalidCall, []string{"W1"}, "harvest", 1)

	e.ctrl.analyseRecord()
	v, _ := r.Get(RecordInvalidCall, []string{"W1"}, "harvest")
	require.Zero(t, v)
	e.ctrl.analyseRecord()
	v, _ = r.Get(RecordInvalidCall, []string{"W1"}, "harvest")
	require.Zero(t, v)
}

func TestAdjust_RecordResetWipesTallies(t *testing.T) {
	cfg := throttledConfig()
	cfg.RecordInterval = 3
	policy := RoleTable{"X": {{TaskType: "harvest"}}}
	e, _ := newTestEngine(t, cfg, newFakeWorld("W1"), policy)
	task := harvestTask("W1", "s1", nil)
	task.Run = runReturning(tasks.Continue, nil)
	require.True(t, e.AddTask(task, false))
	e.coord.RegisterWorker(newWorker("a", "X", "W1"))

	for i := 0; i < 3; i++ {
		require.False(t, e.Step().RecordReset)
	}
	v, _ := e.ctrl.record.Get(RecordInvalidCall, []string{"W1"}, "harvest")
	require.Equal(t, 2, v)

	sum := e.Step()
	require.True(t, sum.RecordReset)
	_, ok := e.ctrl.record.Get(RecordInvalidCall, []string{"W1"}, "harvest")
	require.False(t, ok)
	v, _ = e.ctrl.record.Get(RecordCall, []string{"W1"}, "harvest")
	require.Equal(t, -1, v)
}

func TestAdjust_FuncsRunEveryAdjustInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdjustInterval = 2
	e, _ := newTestEngine(t, cfg, newFakeWorld("W1", "W2"), nil)

	seen := map[string]int{}
	e.ctrl.AddToAdjustLevelFuncs(func(room string, current *tree.Level) bool {
		seen[room]++
		return current.AddToLeaf(1, nil, room)
	})
	e.ctrl.AddToAdjustSwitchFuncs(func(sw *Switches) bool {
		sw.Scheduler = false
		return true
	})

	for i := 0; i < 5; i++ {
		e.Step()
	}
	require.Equal(t, map[string]int{"W1": 2, "W2": 2}, seen)
	require.False(t, e.ctrl.Switches().Scheduler)
	require.Equal(t, 1.0, e.ctrl.ceiling("W1"))
}

func TestIssue_ListPieceHonoursConditionAndInvalidCall(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig(), newFakeWorld("W1"), nil)
	sources := []Subject{{ID: "s1", Room: "W1"}, {ID: "s2", Room: "W1"}}
	piece := &IssuePiece{
		TaskType:        "harvest",
		SubTaskType:     "source",
		TriggerToOrigin: true,
		Subjects:        func() []Subject { return sources },
		Condition:       func(s Subject) bool { return s.ID != "s2" },
		Triggered: func(s Subject) []tasks.Issued {
			return []tasks.Issued{{Task: harvestTask(s.Room, s.ID, nil)}}
		},
	}
	require.True(t, e.ctrl.AddToList(piece))
	require.False(t, e.ctrl.AddToList(&IssuePiece{}))

	e.ctrl.record.Add(RecordInvalidCall, []string{"W1"}, "harvest", 1)
	e.ctrl.Issue(0)
	require.Empty(t, e.st.WareHouse)

	e.ctrl.record.Del(RecordInvalidCall, []string{"W1"}, "harvest")
	e.ctrl.Issue(0)
	require.Len(t, e.st.WareHouse, 1)
	require.Contains(t, e.st.WareHouse, harvestTask("W1", "s1", nil).ID)

	// A second scan finds the same fingerprint and adds nothing.
	e.ctrl.Issue(1)
	require.Len(t, e.st.WareHouse, 1)
}

func TestIssue_ListSwitchOff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Switches.List = false
	e, _ := newTestEngine(t, cfg, newFakeWorld("W1"), nil)
	e.ctrl.AddToList(&IssuePiece{
		Subjects:  func() []Subject { return []Subject{{ID: "s1", Room: "W1"}} },
		Triggered: func(s Subject) []tasks.Issued { return []tasks.Issued{{Task: harvestTask("W1", s.ID, nil)}} },
	})
	e.Step()
	require.Empty(t, e.st.WareHouse)
}

func TestIssue_TimersFireOnceAndArePurged(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig(), newFakeWorld("W1"), nil)
	var fired []uint64
	require.False(t, e.AddToTimer(0, func() {}), "current tick is not in the future")
	require.True(t, e.AddToTimer(2, func() { fired = append(fired, e.CurrentTick()) }))
	require.True(t, e.AddToTimer(2, func() { fired = append(fired, 100) }))

	for i := 0; i < 4; i++ {
		e.Step()
	}
	require.Equal(t, []uint64{2, 100}, fired)
	require.Empty(t, e.ctrl.timer)
}

func TestIssue_WatcherDispatchesEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Switches.Watcher = true
	world := newFakeWorld("W1", "W2")
	e, _ := newTestEngine(t, cfg, world, nil)

	var got []Event
	require.True(t, e.ctrl.AddToWatcher("attacked", func(room string, ev Event) {
		require.Equal(t, "W1", room)
		got = append(got, ev)
	}))
	world.events["W1"] = []Event{{Room: "W1", Type: "attacked"}, {Room: "W1", Type: "built"}}

	e.Step()
	e.Step()
	require.Len(t, got, 1)
	require.Equal(t, "attacked", got[0].Type)
}

func TestRun_SchedulerIntervalsAndCeiling(t *testing.T) {
	e, _ := newTestEngine(t, throttledConfig(), newFakeWorld("W1"), nil)
	var every2, gated []uint64
	require.False(t, e.ctrl.AddToScheduler(ScheduledItem{Name: "never", Run: func(uint64) {}}))
	require.True(t, e.ctrl.AddToScheduler(ScheduledItem{
		Name:     "every2",
		Interval: 2,
		Run:      func(tick uint64) { every2 = append(every2, tick) },
	}))
	require.True(t, e.ctrl.AddToScheduler(ScheduledItem{
		Name:     "harvest-report",
		Interval: 1,
		Room:     "W1",
		TaskType: "harvest",
		Run:      func(tick uint64) { gated = append(gated, tick) },
	}))

	for i := 0; i < 5; i++ {
		e.Step()
	}
	require.Equal(t, []uint64{0, 2, 4}, every2)
	require.Empty(t, gated)
}

func TestRecord_RowsFlattenInOrder(t *testing.T) {
	r := NewRecord(10, 0)
	r.Add(RecordInvalidCall, []string{"W1"}, "harvest", 2)
	r.Add(RecordCall, []string{"W1", "harvest"}, "source", -1)
	r.Add(RecordCall, []string{"W1"}, "harvest", -1)

	rows := r.Rows()
	require.Equal(t, []Row{
		{Index: RecordCall, Path: []string{"W1"}, Key: "harvest", Value: -1},
		{Index: RecordCall, Path: []string{"W1", "harvest"}, Key: "source", Value: -1},
		{Index: RecordInvalidCall, Path: []string{"W1"}, Key: "harvest", Value: 2},
	}, rows)

	require.False(t, r.preCheck(9))
	require.True(t, r.preCheck(10))
	require.Empty(t, r.Rows())
}
