package engine

import "colony.ai/internal/sim/tasks"

// WorldSensor is the engine's read-only view of the world.
type WorldSensor interface {
	// ControlledRooms lists the rooms the Run and Adjust phases iterate.
	ControlledRooms() []string
	// Alive reports whether the named worker still exists.
	Alive(worker string) bool
	// ReceivingRooms lists rooms within maxRange of target, nearest first.
	ReceivingRooms(target string, maxRange int) []string
}

// EventSource is optionally implemented by a WorldSensor to feed the Issue
// watcher.
type EventSource interface {
	Events(room string) []Event
}

type Event struct {
	Room string         `json:"room"`
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// SpawnDemand records that delta more workers of role are wanted at room.
type SpawnDemand interface {
	ReserveRoleQuota(room, role string, delta int)
}

// AcceptancePolicy yields a worker's ordered task preferences.
type AcceptancePolicy interface {
	AcceptTasks(w *tasks.Worker) []Accept
}

// Accept is one task preference. A nil SubTaskTypes accepts any subTaskType of
// TaskType. Category is derived from TaskType when empty.
type Accept struct {
	Category     tasks.Category
	TaskType     string
	SubTaskTypes []string
}

func (a Accept) category() tasks.Category {
	if a.Category != "" {
		return a.Category
	}
	return tasks.CategoryOf(a.TaskType)
}

// RoleTable is an AcceptancePolicy keyed by role. Entries with explicit
// subTaskTypes skip the ones the worker early-terminated; an entry left with
// none is dropped.
type RoleTable map[string][]Accept

func (rt RoleTable) AcceptTasks(w *tasks.Worker) []Accept {
	base := rt[w.Role]
	if len(w.EarlyTerminated) == 0 {
		return base
	}
	out := make([]Accept, 0, len(base))
	for _, a := range base {
		if a.SubTaskTypes == nil {
			out = append(out, a)
			continue
		}
		subs := make([]string, 0, len(a.SubTaskTypes))
		for _, s := range a.SubTaskTypes {
			if !w.HasEarlyTerminated(tasks.Key{TaskType: a.TaskType, SubTaskType: s}) {
				subs = append(subs, s)
			}
		}
		if len(subs) == 0 {
			continue
		}
		a.SubTaskTypes = subs
		out = append(out, a)
	}
	return out
}

type noDemand struct{}

func (noDemand) ReserveRoleQuota(string, string, int) {}
