package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"colony.ai/internal/persistence/snapshot"
	"colony.ai/internal/sim/tasks"
)

func TestSnapshot_RoundTripRestoresState(t *testing.T) {
	calls := 0
	reg := tasks.NewRegistry()
	reg.Register("harvest", "", tasks.Behavior{Run: runReturning(tasks.Continue, &calls)})

	world := newFakeWorld("W1")
	policy := RoleTable{"X": {{TaskType: "harvest"}}}
	cfg := throttledConfig()
	cfg.RoomCeilings = map[string]float64{"W1": 50}
	cfg.CompactEveryTicks = 7

	e, err := New(cfg, Options{Sensor: world, Policy: policy, Registry: reg})
	require.NoError(t, err)
	busy := harvestTask("W1", "s1", tasks.Quota{tasks.AnyRole: 2})
	waiting := tasks.New(3, tasks.Attached("W1", "harvest", "mineral"), map[string]any{"mineral": "m1", "amount": 20.0}, tasks.Quota{"miner": 1})
	require.True(t, e.AddTask(busy, false))
	require.True(t, e.AddTask(waiting, false))
	e.coord.RegisterWorker(newWorker("a", "X", "W1"))
	w := newWorker("b", "X", "W1")
	w.MarkEarlyTerminated(tasks.Key{TaskType: "build", SubTaskType: "road"})
	e.coord.RegisterWorker(w)
	e.Step()
	e.Step()
	require.Equal(t, 2, calls)
	e.ctrl.record.Add(RecordInvalidCall, []string{"W1"}, "upgrade", 4)

	snap, err := e.ExportSnapshot(1)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "1.snap.zst")
	require.NoError(t, snapshot.WriteSnapshot(path, snap))
	loaded, err := snapshot.ReadSnapshot(path)
	require.NoError(t, err)

	e2, err := New(Config{}, Options{Sensor: world, Policy: policy, Registry: reg})
	require.NoError(t, err)
	require.NoError(t, e2.ImportSnapshot(loaded))

	require.EqualValues(t, 2, e2.CurrentTick())
	require.Equal(t, cfg.CompactEveryTicks, e2.Config().CompactEveryTicks)
	require.Equal(t, e.ctrl.Switches(), e2.ctrl.Switches())
	require.Equal(t, e.st.taskIDs(), e2.st.taskIDs())
	for _, id := range e.st.taskIDs() {
		a, b := e.st.WareHouse[id], e2.st.WareHouse[id]
		require.Equal(t, a.Identity, b.Identity)
		require.Equal(t, a.Data, b.Data)
		require.Equal(t, a.Settings, b.Settings)
		require.NotNil(t, b.Run)
	}
	require.Equal(t, e.st.Roll, e2.st.Roll)
	require.Equal(t, e.st.workerNames(), e2.st.workerNames())
	require.True(t, e2.st.Workers["b"].HasEarlyTerminated(tasks.Key{TaskType: "build", SubTaskType: "road"}))
	require.ElementsMatch(t, e.st.Idle.GetAllFromNode(nil), e2.st.Idle.GetAllFromNode(nil))
	require.ElementsMatch(t, e.pool.IDs(tasks.Basic, nil), e2.pool.IDs(tasks.Basic, nil))
	require.ElementsMatch(t, e.runs.IDs(tasks.Basic, nil), e2.runs.IDs(tasks.Basic, nil))
	require.Equal(t, e.ctrl.record.Rows(), e2.ctrl.record.Rows())
	require.Equal(t, 50.0, e2.ctrl.ceiling("W1"))
	require.Equal(t, 10.0, e2.ctrl.priority("W1", "harvest"))

	sum := e2.Step()
	require.EqualValues(t, 2, sum.Tick)
	require.Equal(t, 3, calls)
	require.Equal(t, e.RunID(), loaded.Header.RunID)
	requireConsistent(t, e2)
}

func TestSnapshot_PoolOrderSurvivesReload(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig(), newFakeWorld("W1"), nil)
	var ids []string
	for i, prio := range []float64{5, 1, 3} {
		task := harvestTask("W1", string(rune('a'+i)), nil)
		task.Priority = prio
		require.True(t, e.AddTask(task, false))
		ids = append(ids, task.ID)
	}

	snap, err := e.ExportSnapshot(0)
	require.NoError(t, err)
	e2, _ := newTestEngine(t, DefaultConfig(), newFakeWorld("W1"), nil)
	require.NoError(t, e2.ImportSnapshot(snap))

	var got []string
	for {
		id, ok := e2.pool.PopTaskID(tasks.Basic, []string{"W1", "harvest", "source"}, "X")
		if !ok {
			break
		}
		got = append(got, id)
	}
	require.Equal(t, []string{ids[1], ids[2], ids[0]}, got)
}

func TestSnapshot_MissingBehaviorRunsAsDelete(t *testing.T) {
	reg := tasks.NewRegistry()
	reg.Register("harvest", "", tasks.Behavior{Run: runReturning(tasks.Continue, nil)})
	world := newFakeWorld("W1")
	policy := RoleTable{"X": {{TaskType: "harvest"}}}
	e, err := New(DefaultConfig(), Options{Sensor: world, Policy: policy, Registry: reg})
	require.NoError(t, err)
	require.True(t, e.AddTask(harvestTask("W1", "s1", nil), false))
	e.coord.RegisterWorker(newWorker("a", "X", "W1"))
	e.Step()

	snap, err := e.ExportSnapshot(0)
	require.NoError(t, err)
	e2, err := New(DefaultConfig(), Options{Sensor: world, Policy: policy})
	require.NoError(t, err)
	require.NoError(t, e2.ImportSnapshot(snap))

	sum := e2.Step()
	require.Equal(t, 1, sum.Outcomes.Delete)
	require.Empty(t, e2.st.WareHouse)
	require.True(t, e2.st.Workers["a"].Idle())
}

func TestImportSnapshot_RejectsUnknownVersion(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig(), newFakeWorld("W1"), nil)
	err := e.ImportSnapshot(snapshot.SnapshotV1{Header: snapshot.Header{Version: 2}})
	require.ErrorContains(t, err, "unsupported snapshot version")
}
