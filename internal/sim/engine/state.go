package engine

import (
	"sort"

	"colony.ai/internal/sim/tasks"
	"colony.ai/internal/sim/tree"
)

// State is everything that must survive a restart besides the pool, the run
// set and the controller.
type State struct {
	// WareHouse maps task id to task.
	WareHouse map[string]*tasks.Task
	// Roll maps task id to the names of the workers assigned to it.
	Roll map[string][]string
	// Workers maps name to worker, idle or not.
	Workers map[string]*tasks.Worker
	// Idle holds idle worker names at [home, role].
	Idle *tree.ArrayTree[string]
}

func NewState() *State {
	return &State{
		WareHouse: map[string]*tasks.Task{},
		Roll:      map[string][]string{},
		Workers:   map[string]*tasks.Worker{},
		Idle:      tree.NewArray[string](),
	}
}

func (s *State) task(id string) *tasks.Task {
	if id == "" {
		return nil
	}
	return s.WareHouse[id]
}

func (s *State) rollAdd(id, name string) {
	for _, n := range s.Roll[id] {
		if n == name {
			return
		}
	}
	s.Roll[id] = append(s.Roll[id], name)
}

func (s *State) rollRemove(id, name string) {
	names := s.Roll[id]
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		delete(s.Roll, id)
		return
	}
	s.Roll[id] = out
}

func idlePath(w *tasks.Worker) []string { return []string{w.Home, w.Role} }

func (s *State) idlePush(w *tasks.Worker) {
	path := idlePath(w)
	for _, n := range s.Idle.GetAllFromLeaf(path) {
		if n == w.Name {
			return
		}
	}
	s.Idle.PushToLeaf(w.Name, path)
}

func (s *State) idleRemove(w *tasks.Worker) {
	s.Idle.FilterLeaf(idlePath(w), func(n string) bool { return n != w.Name })
}

func (s *State) workerNames() []string {
	out := make([]string, 0, len(s.Workers))
	for n := range s.Workers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s *State) taskIDs() []string {
	out := make([]string, 0, len(s.WareHouse))
	for id := range s.WareHouse {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
