package engine

import (
	"log"

	"colony.ai/internal/sim/tasks"
)

// Coordinator moves task ids between the pool and the run set and keeps the
// WareHouse, Roll and quota counters consistent while doing so.
type Coordinator struct {
	st     *State
	pool   *TaskPool
	runs   *RunSet
	sensor WorldSensor
	demand SpawnDemand
	policy AcceptancePolicy
	// registry supplies behavior to tasks added without a Run func.
	registry *tasks.Registry
	logger   *log.Logger

	tick  uint64
	ranAt map[string]uint64
	// invoked holds the workers each task ran with during one RunTasks call,
	// in the order their codes come back.
	invoked map[string][]*tasks.Worker
	stats   tickStats
}

type tickStats struct {
	issued    int
	matched   int
	purged    int
	ran       int
	throttled int

	cont, renew, finish, del, early int
}

func (s *tickStats) count(c tasks.Code) {
	switch c {
	case tasks.Continue:
		s.cont++
	case tasks.Renew:
		s.renew++
	case tasks.Finish:
		s.finish++
	default:
		s.del++
	}
}

func NewCoordinator(st *State, pool *TaskPool, runs *RunSet, sensor WorldSensor, demand SpawnDemand, policy AcceptancePolicy, registry *tasks.Registry, logger *log.Logger) *Coordinator {
	if demand == nil {
		demand = noDemand{}
	}
	if policy == nil {
		policy = RoleTable{}
	}
	if registry == nil {
		registry = tasks.NewRegistry()
	}
	return &Coordinator{
		st:       st,
		pool:     pool,
		runs:     runs,
		sensor:   sensor,
		demand:   demand,
		policy:   policy,
		registry: registry,
		logger:   logger,
		ranAt:    map[string]uint64{},
	}
}

func (c *Coordinator) beginTick(tick uint64) {
	c.tick = tick
	for id, at := range c.ranAt {
		if at+1 < tick {
			delete(c.ranAt, id)
		}
	}
}

func (c *Coordinator) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// Exists reports whether id is in the WareHouse.
func (c *Coordinator) Exists(id string) bool { return c.st.task(id) != nil }

func (c *Coordinator) Task(id string) *tasks.Task { return c.st.task(id) }

// AddTask registers t in the WareHouse and, unless silence is set, queues it
// for admission: at its home for attached tasks, or at up to
// MaxReceivedRooms rooms within MaxRange of the target for across tasks. Each
// admission location reserves the task's role quotas with spawn demand. The
// task's callback batch is added recursively. A task whose id is already
// registered is refused. A task without a Run func gets its behavior from the
// registry.
func (c *Coordinator) AddTask(t *tasks.Task, silence bool) bool {
	if t == nil || t.ID == "" || c.Exists(t.ID) {
		return false
	}
	if t.Run == nil && !c.registry.Attach(t) {
		c.logf("task %s: no registered behavior", t)
	}
	c.st.WareHouse[t.ID] = t
	c.stats.issued++

	if !silence {
		cat := t.Category()
		for _, room := range c.admissionRooms(t) {
			c.pool.AddTaskID(cat, t.ID, t.Identity.Path(room))
			c.reserve(room, t.Settings.Received.Max)
		}
	}

	if t.Callback != nil {
		for _, next := range t.Callback(t) {
			c.AddTask(next.Task, next.Silence)
		}
	}
	return true
}

func (c *Coordinator) admissionRooms(t *tasks.Task) []string {
	id := t.Identity
	if id.Kind != tasks.KindAcross {
		if id.Home == "" {
			return nil
		}
		return []string{id.Home}
	}
	if c.sensor == nil {
		return nil
	}
	rooms := c.sensor.ReceivingRooms(id.TargetRoom, id.MaxRange)
	if id.MaxReceivedRooms > 0 && len(rooms) > id.MaxReceivedRooms {
		rooms = rooms[:id.MaxReceivedRooms]
	}
	return rooms
}

func (c *Coordinator) reserve(room string, max tasks.Quota) {
	for _, role := range max.Roles() {
		if max[role] > 0 {
			c.demand.ReserveRoleQuota(room, role, max[role])
		}
	}
}

// bind attaches w to t. The caller has already taken the quota slot.
func (c *Coordinator) bind(w *tasks.Worker, t *tasks.Task) {
	c.st.idleRemove(w)
	w.TaskID = t.ID
	w.Working = true
	c.st.rollAdd(t.ID, w.Name)
}

// detach returns w to the idle tree.
func (c *Coordinator) detach(w *tasks.Worker, id string) {
	c.st.rollRemove(id, w.Name)
	w.Release()
	if _, ok := c.st.Workers[w.Name]; ok {
		c.st.idlePush(w)
	}
}

// AssignTask binds workers to the task in order. It stops and reports false as
// soon as the task has no capacity left or a worker already holds a task;
// workers bound before that stay bound.
func (c *Coordinator) AssignTask(workers []*tasks.Worker, id string) bool {
	t := c.st.task(id)
	if t == nil {
		return false
	}
	rec := &t.Settings.Received
	for _, w := range workers {
		if rec.Left.Sum() == 0 || !w.Idle() {
			return false
		}
		preCurrent := rec.Current.Sum()
		if !rec.Take(w.Role) {
			return false
		}
		if _, ok := c.st.Workers[w.Name]; !ok {
			c.st.Workers[w.Name] = w
		}
		c.bind(w, t)
		if preCurrent == 0 {
			c.runs.AddRegTaskID(t.Category(), id, t.Identity.Path(w.Home))
		}
	}
	return true
}

// GetTask matches an idle worker with the first pooled task its acceptance
// list admits. The task is re-queued while it has capacity left and is
// registered for running when it gains its first worker.
func (c *Coordinator) GetTask(w *tasks.Worker) bool {
	if !w.Idle() {
		return false
	}
	for _, acc := range c.policy.AcceptTasks(w) {
		cat := acc.category()
		var (
			id string
			ok bool
		)
		if acc.SubTaskTypes == nil {
			id, ok = c.pool.PopAnyTaskID(cat, []string{w.Home, acc.TaskType}, w.Role)
		} else {
			for _, sub := range acc.SubTaskTypes {
				if id, ok = c.pool.PopTaskID(cat, []string{w.Home, acc.TaskType, sub}, w.Role); ok {
					break
				}
			}
		}
		if !ok {
			continue
		}

		t := c.st.task(id)
		rec := &t.Settings.Received
		preCurrent := rec.Current.Sum()
		if !rec.Take(w.Role) {
			// The pop predicate guarantees capacity; keep the id queued anyway.
			c.pool.AddTaskID(cat, id, t.Identity.Path(w.Home))
			continue
		}
		c.bind(w, t)
		path := t.Identity.Path(w.Home)
		if rec.Left.Sum() > 0 {
			c.pool.AddTaskID(cat, id, path)
		}
		if preCurrent == 0 {
			c.runs.AddRegTaskID(cat, id, path)
		}
		c.stats.matched++
		return true
	}
	return false
}

// Outcome summarizes the reconciliation of one task run.
type Outcome struct {
	TaskID  string
	Codes   []tasks.Code
	Rest    int
	Deleted bool
	Requeue bool
}

// RunTasks runs the registered tasks at path (the whole subtree with runAll)
// and reconciles every worker's outcome code.
func (c *Coordinator) RunTasks(cat tasks.Category, path []string, runAll bool) []Outcome {
	c.invoked = map[string][]*tasks.Worker{}
	defer func() { c.invoked = nil }()
	results := c.runs.RunTasks(cat, path, runAll, c.invoke)
	out := make([]Outcome, 0, len(results))
	for _, res := range results {
		if !res.Ran {
			continue
		}
		out = append(out, c.reconcile(res))
	}
	return out
}

// RunBasicTasks runs basic tasks of taskType at home, all of them unless a
// subTaskType is given.
func (c *Coordinator) RunBasicTasks(home, taskType string, subTaskType ...string) []Outcome {
	if len(subTaskType) > 0 {
		return c.RunTasks(tasks.Basic, []string{home, taskType, subTaskType[0]}, false)
	}
	return c.RunTasks(tasks.Basic, []string{home, taskType}, true)
}

// ClearTasks drops pooled ids at and below path.
func (c *Coordinator) ClearTasks(cat tasks.Category, path []string) bool {
	return c.pool.ClearTaskIDs(cat, path)
}

// ClearBasicTasks drops pooled basic ids of taskType at home.
func (c *Coordinator) ClearBasicTasks(home, taskType string, subTaskType ...string) bool {
	return c.pool.ClearBasicTaskIDs(home, taskType, subTaskType...)
}

// invoke runs a task once per tick at most; an across task can be registered
// under several rooms.
func (c *Coordinator) invoke(id string) ([]tasks.Code, bool) {
	t := c.st.task(id)
	if t == nil {
		return nil, false
	}
	if at, ok := c.ranAt[id]; ok && at == c.tick {
		return nil, false
	}
	c.ranAt[id] = c.tick

	workers := c.rollWorkers(id)
	c.invoked[id] = workers
	if len(workers) == 0 {
		return nil, true
	}
	c.stats.ran++
	if t.Run == nil {
		codes := make([]tasks.Code, len(workers))
		for i := range codes {
			codes[i] = tasks.Delete
		}
		return codes, true
	}
	return t.Run(t, workers), true
}

// rollWorkers resolves the live workers of a task. Dead ones are reconciled
// on the spot with the role they were stored with.
func (c *Coordinator) rollWorkers(id string) []*tasks.Worker {
	names := append([]string(nil), c.st.Roll[id]...)
	out := make([]*tasks.Worker, 0, len(names))
	for _, n := range names {
		w := c.st.Workers[n]
		if w == nil {
			c.st.rollRemove(id, n)
			continue
		}
		if c.sensor != nil && !c.sensor.Alive(n) {
			c.unregister(w)
			continue
		}
		out = append(out, w)
	}
	return out
}

func (c *Coordinator) reconcile(res RunResult) Outcome {
	id := res.TaskID
	out := Outcome{TaskID: id}
	t := c.st.task(id)
	if t == nil {
		return out
	}
	rec := &t.Settings.Received
	cat := t.Category()
	home := t.Identity.Anchor()
	if len(res.Path) > 0 {
		home = res.Path[0]
	}
	preLeft := rec.Left.Sum()

	workers := c.invoked[id]
	hasDelete := false
	for i, w := range workers {
		if w.TaskID != id {
			continue
		}
		code := tasks.Delete
		if i < len(res.Codes) {
			code = res.Codes[i].Normalize()
		}
		if code == tasks.Continue && t.EarlyTerminate != nil && t.EarlyTerminate(t, w, home) {
			w.MarkEarlyTerminated(t.Identity.Key())
			code = tasks.Renew
			c.stats.early++
		}
		c.stats.count(code)
		out.Codes = append(out.Codes, code)

		switch code {
		case tasks.Continue:
			continue
		case tasks.Renew:
			rec.Release(w.Role)
		case tasks.Finish:
			rec.Consume(w.Role)
		default:
			rec.Consume(w.Role)
			hasDelete = true
		}
		c.detach(w, id)
	}
	if hasDelete {
		t.Settings.Revoked = true
	}

	rest := len(c.st.Roll[id])
	out.Rest = rest
	left := rec.Left.Sum()
	if rest == 0 && (left == 0 || t.Settings.Revoked) {
		c.dropTask(id)
		out.Deleted = true
		return out
	}
	path := t.Identity.Path(home)
	if rest > 0 {
		c.runs.AddRegTaskID(cat, id, path)
	}
	if !t.Settings.Revoked && preLeft == 0 && left > 0 {
		c.pool.AddTaskID(cat, id, path)
		out.Requeue = true
	}
	return out
}

func (c *Coordinator) dropTask(id string) {
	for _, n := range c.st.Roll[id] {
		if w := c.st.Workers[n]; w != nil && w.TaskID == id {
			w.Release()
			c.st.idlePush(w)
		}
	}
	delete(c.st.Roll, id)
	delete(c.st.WareHouse, id)
	delete(c.ranAt, id)
	c.logf("task %s retired", id)
}

// RegisterWorker adds a new or respawned worker. A respawn that keeps its
// task and quota bucket takes over the old worker's slot on the Roll. Any
// other worker pointing at a live task takes a fresh slot, and goes idle when
// the task has none left.
func (c *Coordinator) RegisterWorker(w *tasks.Worker) bool {
	if w == nil || w.Name == "" {
		return false
	}
	if old, ok := c.st.Workers[w.Name]; ok && old != w {
		if c.takeOver(old, w) {
			return true
		}
		c.unregister(old)
	}
	c.st.Workers[w.Name] = w
	if t := c.st.task(w.TaskID); t != nil && c.adopt(w, t) {
		return true
	}
	w.Release()
	c.st.idlePush(w)
	return true
}

// takeOver swaps w in for old when both hold the same live task in the same
// quota bucket. The slot old holds is kept as is.
func (c *Coordinator) takeOver(old, w *tasks.Worker) bool {
	t := c.st.task(old.TaskID)
	if t == nil || w.TaskID != old.TaskID || !c.onRoll(t.ID, old.Name) {
		return false
	}
	rec := &t.Settings.Received
	if rec.Bucket(old.Role) != rec.Bucket(w.Role) {
		return false
	}
	c.st.idleRemove(old)
	c.st.Workers[w.Name] = w
	c.st.idleRemove(w)
	w.Working = true
	return true
}

// adopt puts w on the Roll of t. A worker already on it keeps its slot;
// otherwise a slot of its role is taken.
func (c *Coordinator) adopt(w *tasks.Worker, t *tasks.Task) bool {
	if c.onRoll(t.ID, w.Name) {
		c.st.idleRemove(w)
		w.Working = true
		return true
	}
	rec := &t.Settings.Received
	preCurrent := rec.Current.Sum()
	if !rec.Take(w.Role) {
		return false
	}
	c.bind(w, t)
	if preCurrent == 0 {
		c.runs.AddRegTaskID(t.Category(), t.ID, t.Identity.Path(w.Home))
	}
	return true
}

func (c *Coordinator) onRoll(id, name string) bool {
	for _, n := range c.st.Roll[id] {
		if n == name {
			return true
		}
	}
	return false
}

// RenewWorker is called when a worker is refreshed in place; it forgets the
// task kinds the worker early-terminated.
func (c *Coordinator) RenewWorker(name string) bool {
	w := c.st.Workers[name]
	if w == nil {
		return false
	}
	w.Renew()
	if t := c.st.task(w.TaskID); t != nil {
		w.Working = true
	}
	return true
}

// UnregisterWorker removes a worker, handing its slot back to its task.
func (c *Coordinator) UnregisterWorker(name string) bool {
	w := c.st.Workers[name]
	if w == nil {
		return false
	}
	c.unregister(w)
	return true
}

func (c *Coordinator) unregister(w *tasks.Worker) {
	if t := c.st.task(w.TaskID); t != nil {
		rec := &t.Settings.Received
		preLeft := rec.Left.Sum()
		rec.Release(w.Role)
		c.st.rollRemove(t.ID, w.Name)
		if !t.Settings.Revoked && preLeft == 0 && rec.Left.Sum() > 0 {
			c.pool.AddTaskID(t.Category(), t.ID, t.Identity.Path(w.Home))
		}
	}
	c.st.idleRemove(w)
	delete(c.st.Workers, w.Name)
	w.Release()
}

// PurgeDead unregisters every worker the sensor no longer reports alive.
func (c *Coordinator) PurgeDead() int {
	if c.sensor == nil {
		return 0
	}
	n := 0
	for _, name := range c.st.workerNames() {
		if !c.sensor.Alive(name) {
			c.unregister(c.st.Workers[name])
			n++
		}
	}
	c.stats.purged += n
	return n
}
