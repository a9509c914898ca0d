package sandbox

import (
	"fmt"
	"sort"

	"colony.ai/internal/sim/engine"
	"colony.ai/internal/sim/tasks"
)

// RebuildAfter is how long a finished road stays finished before a new site
// shows up in its room.
const RebuildAfter = 100

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Install registers the world's behaviors and issue pieces with e, plus the
// energy level func, a watcher that re-opens finished roads after a while and
// a scheduler item that advances the world every tick.
func (w *World) Install(e *engine.Engine) {
	w.Register(e.Registry())
	ctrl := e.Controller()
	for _, p := range w.IssuePieces() {
		ctrl.AddToList(p)
	}
	ctrl.AddToAdjustLevelFuncs(w.AdjustLevel)
	ctrl.AddToWatcher("site_done", func(room string, _ engine.Event) {
		e.AddToTimer(e.CurrentTick()+RebuildAfter, func() { w.openSite(room) })
	})
	ctrl.AddToScheduler(engine.ScheduledItem{
		Name:     "sandbox",
		Interval: 1,
		Run:      func(tick uint64) { w.Advance(tick, e.Coordinator()) },
	})
}

func (w *World) openSite(room string) {
	r := w.rooms[room]
	if r == nil {
		return
	}
	w.seq++
	r.Sites[fmt.Sprintf("road%d", w.seq)] = 5
}

// Advance reaps workers past their lifetime, renews the living every
// RenewEvery ticks and lets each controlled room spawn.
func (w *World) Advance(tick uint64, coord *engine.Coordinator) {
	w.reap(tick)
	if w.cfg.RenewEvery > 0 && tick > 0 && tick%w.cfg.RenewEvery == 0 {
		for _, b := range w.Bodies() {
			if coord.RenewWorker(b.Name) {
				w.stats.Renewed++
			}
		}
	}
	if w.cfg.SpawnInterval == 0 || tick%w.cfg.SpawnInterval != 0 {
		return
	}
	for _, name := range w.order {
		w.spawn(tick, w.rooms[name], coord)
	}
}

// reap removes dead bodies from the world only; the engine notices through
// Alive and returns their capacity itself.
func (w *World) reap(tick uint64) {
	for _, b := range w.Bodies() {
		if tick < b.Dies {
			continue
		}
		delete(w.bodies, b.Name)
		if r := w.rooms[b.Home]; r != nil {
			r.current[b.Role]--
		}
		w.stats.Died++
		w.emit(b.Home, "worker_died", map[string]any{"name": b.Name, "role": b.Role})
	}
}

// spawn creates one worker of the role with the largest shortfall, ties broken
// by role name, if the room can afford it.
func (w *World) spawn(tick uint64, r *Room, coord *engine.Coordinator) {
	if r.Spawn < w.cfg.SpawnCost {
		return
	}
	role, short := "", 0
	for _, k := range sortedKeys(r.expected) {
		if d := r.expected[k] - r.current[k]; d > short {
			role, short = k, d
		}
	}
	if role == "" {
		return
	}
	w.seq++
	b := &Body{
		Name: fmt.Sprintf("%s-%s-%d", role, r.Name, w.seq),
		Role: role,
		Home: r.Name,
		Born: tick,
		Dies: tick + w.cfg.Lifetime,
	}
	r.Spawn -= w.cfg.SpawnCost
	r.current[role]++
	w.bodies[b.Name] = b
	w.stats.Spawned++
	coord.RegisterWorker(&tasks.Worker{Name: b.Name, Role: b.Role, Home: b.Home})
}
