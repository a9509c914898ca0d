package engine

import (
	"math"

	"colony.ai/internal/sim/tasks"
	"colony.ai/internal/sim/tree"
)

// TaskPool holds ids of tasks waiting for workers at [room, taskType,
// subTaskType], ordered per leaf by receive priority.
type TaskPool struct {
	basic  *tree.QueueTree[string]
	medium *tree.QueueTree[string]
	lookup func(id string) *tasks.Task
}

func NewTaskPool(lookup func(id string) *tasks.Task) *TaskPool {
	p := &TaskPool{lookup: lookup}
	p.basic = tree.NewQueue(p.priority)
	p.medium = tree.NewQueue(p.priority)
	return p
}

// priority sinks ids whose task is gone.
func (p *TaskPool) priority(id string) float64 {
	t := p.lookup(id)
	if t == nil {
		return math.Inf(1)
	}
	return t.Priority
}

func (p *TaskPool) tree(c tasks.Category) *tree.QueueTree[string] {
	if c == tasks.Medium {
		return p.medium
	}
	return p.basic
}

// AddTaskID queues id at path unless the leaf already holds it.
func (p *TaskPool) AddTaskID(c tasks.Category, id string, path []string) bool {
	t := p.tree(c)
	for _, have := range t.GetAllFromLeaf(path) {
		if have == id {
			return true
		}
	}
	return t.AddToLeaf(id, path)
}

func (p *TaskPool) admittable(role string) func(string) bool {
	return func(id string) bool {
		t := p.lookup(id)
		return t != nil && !t.Settings.Revoked && t.Settings.Received.Valid(role)
	}
}

// PopTaskID pops the most urgent id at the exact leaf whose task can still
// admit a worker of role. Ids that cannot stay queued.
func (p *TaskPool) PopTaskID(c tasks.Category, path []string, role string) (string, bool) {
	return p.tree(c).PopFromLeafFunc(path, p.admittable(role))
}

// PopAnyTaskID is PopTaskID over every leaf below path.
func (p *TaskPool) PopAnyTaskID(c tasks.Category, path []string, role string) (string, bool) {
	return p.tree(c).PopAnyFromNode(path, p.admittable(role))
}

// ClearTaskIDs drops every id at and below path.
func (p *TaskPool) ClearTaskIDs(c tasks.Category, path []string) bool {
	return p.tree(c).ClearLeaf(path, true)
}

// ClearBasicTaskIDs drops the basic ids of taskType at home, or only those of
// one subTaskType when it is given.
func (p *TaskPool) ClearBasicTaskIDs(home, taskType string, subTaskType ...string) bool {
	if len(subTaskType) > 0 {
		return p.basic.ClearLeaf([]string{home, taskType, subTaskType[0]}, false)
	}
	return p.basic.ClearLeaf([]string{home, taskType}, true)
}

func (p *TaskPool) IDs(c tasks.Category, path []string) []string {
	return p.tree(c).GetAllFromNode(path)
}

func (p *TaskPool) Len() int {
	return len(p.basic.GetAllFromNode(nil)) + len(p.medium.GetAllFromNode(nil))
}

// Compact drops ids whose task is gone or revoked, and repeated ids within a
// leaf. It returns how many were dropped.
func (p *TaskPool) Compact() int {
	keep := func(id string) bool {
		t := p.lookup(id)
		return t != nil && !t.Settings.Revoked
	}
	n := p.basic.Retain(keep) + p.medium.Retain(keep)
	p.basic.Prune()
	p.medium.Prune()
	return n
}
