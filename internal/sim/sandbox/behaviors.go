package sandbox

import (
	"colony.ai/internal/sim/engine"
	"colony.ai/internal/sim/tasks"
	"colony.ai/internal/sim/tree"
)

const salt = 1

// Roles.
const (
	RoleHarvester = "harvester"
	RoleWorker    = "worker"
	RoleClaimer   = "claimer"
)

func HarvestTask(room, source string) *tasks.Task {
	t := tasks.New(salt, tasks.Attached(room, "harvest", "source"), map[string]any{"source": source}, tasks.Quota{RoleHarvester: 1})
	t.Priority = 1
	return t
}

func UpgradeTask(room string) *tasks.Task {
	t := tasks.New(salt, tasks.Attached(room, "upgrade", "controller"), nil, tasks.Quota{RoleWorker: 1})
	t.Priority = 3
	return t
}

func BuildTask(room, site string) *tasks.Task {
	t := tasks.New(salt, tasks.Attached(room, "build", "road"), map[string]any{"site": site}, tasks.Quota{RoleWorker: 1})
	t.Priority = 2
	return t
}

// TransferTask fills the room's spawn. Adding it also issues the harvest tasks
// that keep the room's energy coming.
func TransferTask(room string) *tasks.Task {
	t := tasks.New(salt, tasks.Attached(room, "Transfer", "spawn"), nil, tasks.Quota{RoleWorker: 1})
	t.Priority = 0
	return t
}

func ReserveTask(target string) *tasks.Task {
	t := tasks.New(salt, tasks.Across(target, "reserve", "controller", 1, 2), nil, tasks.Quota{RoleClaimer: 1})
	t.Priority = 4
	return t
}

// RoleTable is the acceptance policy of the sandbox roles.
func RoleTable() engine.RoleTable {
	return engine.RoleTable{
		RoleHarvester: {{TaskType: "harvest", SubTaskTypes: []string{"source"}}},
		RoleWorker:    {{TaskType: "Transfer"}, {TaskType: "build"}, {TaskType: "upgrade"}},
		RoleClaimer:   {{TaskType: "reserve"}},
	}
}

// Register adds the sandbox task behaviors to reg.
func (w *World) Register(reg *tasks.Registry) {
	reg.Register("harvest", "source", tasks.Behavior{Run: w.runHarvest, EarlyTerminate: w.energyFull})
	reg.Register("upgrade", "controller", tasks.Behavior{Run: w.runUpgrade})
	reg.Register("build", "", tasks.Behavior{Run: w.runBuild})
	reg.Register("Transfer", "spawn", tasks.Behavior{Run: w.runTransfer, Callback: w.transferFollowUps})
	reg.Register("reserve", "controller", tasks.Behavior{Run: w.runReserve})
}

func fill(n int, c tasks.Code) []tasks.Code {
	out := make([]tasks.Code, n)
	for i := range out {
		out[i] = c
	}
	return out
}

func (w *World) finished(t *tasks.Task) {
	w.stats.Finished[t.Identity.Key().String()]++
}

func (w *World) runHarvest(t *tasks.Task, workers []*tasks.Worker) []tasks.Code {
	r := w.rooms[t.Identity.Home]
	src, _ := t.Data["source"].(string)
	if r == nil || !r.hasSource(src) {
		return fill(len(workers), tasks.Delete)
	}
	for range workers {
		r.Energy = min(r.Energy+w.cfg.HarvestRate, w.cfg.EnergyCap)
	}
	return fill(len(workers), tasks.Continue)
}

// energyFull sends harvesters away from a room that cannot store more energy.
func (w *World) energyFull(_ *tasks.Task, _ *tasks.Worker, home string) bool {
	r := w.rooms[home]
	return r != nil && r.Energy >= w.cfg.EnergyCap
}

func (w *World) runUpgrade(t *tasks.Task, workers []*tasks.Worker) []tasks.Code {
	r := w.rooms[t.Identity.Home]
	if r == nil || !r.Controlled {
		return fill(len(workers), tasks.Delete)
	}
	codes := make([]tasks.Code, len(workers))
	for i := range workers {
		if r.Energy == 0 {
			codes[i] = tasks.Renew
			continue
		}
		r.Energy--
		r.Controller++
	}
	return codes
}

func (w *World) runBuild(t *tasks.Task, workers []*tasks.Worker) []tasks.Code {
	r := w.rooms[t.Identity.Home]
	site, _ := t.Data["site"].(string)
	if r == nil {
		return fill(len(workers), tasks.Delete)
	}
	if _, ok := r.Sites[site]; !ok {
		return fill(len(workers), tasks.Delete)
	}
	codes := make([]tasks.Code, len(workers))
	for i := range workers {
		left, ok := r.Sites[site]
		switch {
		case !ok:
			codes[i] = tasks.Finish
		case r.Energy == 0:
			codes[i] = tasks.Renew
		default:
			r.Energy--
			left--
			if left > 0 {
				r.Sites[site] = left
				continue
			}
			delete(r.Sites, site)
			w.emit(r.Name, "site_done", map[string]any{"site": site})
			w.finished(t)
			codes[i] = tasks.Finish
		}
	}
	return codes
}

func (w *World) runTransfer(t *tasks.Task, workers []*tasks.Worker) []tasks.Code {
	r := w.rooms[t.Identity.Home]
	if r == nil || !r.Controlled {
		return fill(len(workers), tasks.Delete)
	}
	codes := make([]tasks.Code, len(workers))
	for i := range workers {
		if r.Spawn >= w.cfg.SpawnCap {
			codes[i] = tasks.Finish
			continue
		}
		if r.Energy == 0 {
			codes[i] = tasks.Renew
			continue
		}
		move := min(w.cfg.TransferMax, r.Energy, w.cfg.SpawnCap-r.Spawn)
		r.Energy -= move
		r.Spawn += move
		if r.Spawn >= w.cfg.SpawnCap {
			w.finished(t)
			codes[i] = tasks.Finish
		}
	}
	return codes
}

func (w *World) transferFollowUps(t *tasks.Task) []tasks.Issued {
	r := w.rooms[t.Identity.Home]
	if r == nil {
		return nil
	}
	out := make([]tasks.Issued, 0, len(r.Sources))
	for _, src := range r.Sources {
		out = append(out, tasks.Issued{Task: HarvestTask(r.Name, src)})
	}
	return out
}

func (w *World) runReserve(t *tasks.Task, workers []*tasks.Worker) []tasks.Code {
	r := w.rooms[t.Identity.TargetRoom]
	if r == nil || r.Controlled {
		return fill(len(workers), tasks.Delete)
	}
	codes := make([]tasks.Code, len(workers))
	for i := range workers {
		r.Reservation++
		if r.Reservation >= w.cfg.ReserveTarget {
			codes[i] = tasks.Finish
		}
	}
	if r.Reservation >= w.cfg.ReserveTarget {
		w.finished(t)
	}
	return codes
}

// IssuePieces scan the world for work every tick.
func (w *World) IssuePieces() []*engine.IssuePiece {
	return []*engine.IssuePiece{
		{
			TaskType:        "Transfer",
			SubTaskType:     "spawn",
			TriggerToOrigin: true,
			Subjects:        w.controlledSubjects,
			Condition:       func(s engine.Subject) bool { return w.rooms[s.Room].Spawn < w.cfg.SpawnCap },
			Triggered:       func(s engine.Subject) []tasks.Issued { return []tasks.Issued{{Task: TransferTask(s.Room)}} },
		},
		{
			TaskType:        "harvest",
			SubTaskType:     "source",
			TriggerToOrigin: true,
			Subjects:        w.sourceSubjects,
			Triggered:       func(s engine.Subject) []tasks.Issued { return []tasks.Issued{{Task: HarvestTask(s.Room, s.ID)}} },
		},
		{
			TaskType:        "build",
			SubTaskType:     "road",
			TriggerToOrigin: true,
			Subjects:        w.siteSubjects,
			Triggered:       func(s engine.Subject) []tasks.Issued { return []tasks.Issued{{Task: BuildTask(s.Room, s.ID)}} },
		},
		{
			TaskType:        "upgrade",
			SubTaskType:     "controller",
			TriggerToOrigin: true,
			Subjects:        w.controlledSubjects,
			Triggered:       func(s engine.Subject) []tasks.Issued { return []tasks.Issued{{Task: UpgradeTask(s.Room)}} },
		},
		{
			TaskType:    "reserve",
			SubTaskType: "controller",
			Subjects:    w.reservableSubjects,
			Condition:   func(s engine.Subject) bool { return w.rooms[s.Room].Reservation < w.cfg.ReserveTarget },
			Triggered:   func(s engine.Subject) []tasks.Issued { return []tasks.Issued{{Task: ReserveTask(s.Room)}} },
		},
	}
}

func (w *World) controlledSubjects() []engine.Subject {
	out := make([]engine.Subject, 0, len(w.order))
	for _, name := range w.order {
		out = append(out, engine.Subject{ID: name, Room: name})
	}
	return out
}

func (w *World) sourceSubjects() []engine.Subject {
	var out []engine.Subject
	for _, name := range w.order {
		for _, src := range w.rooms[name].Sources {
			out = append(out, engine.Subject{ID: src, Room: name})
		}
	}
	return out
}

func (w *World) siteSubjects() []engine.Subject {
	var out []engine.Subject
	for _, name := range w.order {
		for _, site := range sortedKeys(w.rooms[name].Sites) {
			out = append(out, engine.Subject{ID: site, Room: name})
		}
	}
	return out
}

// reservableSubjects are the uncontrolled rooms next to a controlled one.
func (w *World) reservableSubjects() []engine.Subject {
	var out []engine.Subject
	for _, name := range sortedKeys(w.rooms) {
		if w.rooms[name].Controlled {
			continue
		}
		for _, n := range w.links[name] {
			if w.rooms[n].Controlled {
				out = append(out, engine.Subject{ID: name, Room: name})
				break
			}
		}
	}
	return out
}

// AdjustLevel raises the upgrade offset of a room running low on energy so the
// ceiling holds upgrading back until harvesters catch up.
func (w *World) AdjustLevel(room string, current *tree.Level) bool {
	r := w.rooms[room]
	if r == nil {
		return false
	}
	offset := 0.0
	if r.Energy < w.cfg.LowEnergy {
		offset = w.cfg.UpgradeOffset
	}
	return current.AddToLeaf(offset, []string{room}, "upgrade")
}
