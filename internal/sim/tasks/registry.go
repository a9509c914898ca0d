package tasks

import "sort"

// Registry maps task kinds to behavior so tasks loaded from a snapshot can be
// made runnable again. A registration with an empty subTaskType covers every
// subTaskType of that taskType; an exact registration wins.
type Registry struct {
	byKey map[Key]Behavior
}

func NewRegistry() *Registry {
	return &Registry{byKey: map[Key]Behavior{}}
}

func (r *Registry) Register(taskType, subTaskType string, b Behavior) {
	r.byKey[Key{TaskType: taskType, SubTaskType: subTaskType}] = b
}

func (r *Registry) Lookup(taskType, subTaskType string) (Behavior, bool) {
	if r == nil {
		return Behavior{}, false
	}
	if b, ok := r.byKey[Key{TaskType: taskType, SubTaskType: subTaskType}]; ok {
		return b, true
	}
	b, ok := r.byKey[Key{TaskType: taskType}]
	return b, ok
}

// Attach sets the task's behavior from the registry. It reports false when
// nothing is registered for the task's kind.
func (r *Registry) Attach(t *Task) bool {
	b, ok := r.Lookup(t.Identity.TaskType, t.Identity.SubTaskType)
	if !ok || b.Run == nil {
		return false
	}
	t.Behavior = b
	return true
}

// Keys lists the registered kinds, sorted.
func (r *Registry) Keys() []Key {
	out := make([]Key, 0, len(r.byKey))
	for k := range r.byKey {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TaskType != out[j].TaskType {
			return out[i].TaskType < out[j].TaskType
		}
		return out[i].SubTaskType < out[j].SubTaskType
	})
	return out
}
