package engine

import (
	"colony.ai/internal/sim/tasks"
	"colony.ai/internal/sim/tree"
)

// RunSet holds ids of tasks with at least one worker at [room, taskType,
// subTaskType]. Every registered id is invoked when its node runs.
type RunSet struct {
	basic  *tree.ArrayTree[string]
	medium *tree.ArrayTree[string]
}

func NewRunSet() *RunSet {
	return &RunSet{basic: tree.NewArray[string](), medium: tree.NewArray[string]()}
}

func (r *RunSet) tree(c tasks.Category) *tree.ArrayTree[string] {
	if c == tasks.Medium {
		return r.medium
	}
	return r.basic
}

// AddRegTaskID registers id at path unless the leaf already holds it.
func (r *RunSet) AddRegTaskID(c tasks.Category, id string, path []string) bool {
	t := r.tree(c)
	for _, have := range t.GetAllFromLeaf(path) {
		if have == id {
			return true
		}
	}
	return t.PushToLeaf(id, path)
}

// RunResult is the outcome of invoking one registered task.
type RunResult struct {
	TaskID string
	// Path is where the id was registered.
	Path  []string
	Codes []tasks.Code
	// Ran is false when the invoker declined to run the task.
	Ran bool
}

// Invoker runs one task and reports its per-worker codes, or ran=false.
type Invoker func(id string) (codes []tasks.Code, ran bool)

// RunTasks invokes every id at path (or, with runAll, at and below path), then
// clears what it ran from. It does not interpret the codes.
func (r *RunSet) RunTasks(c tasks.Category, path []string, runAll bool, invoke Invoker) []RunResult {
	type reg struct {
		id   string
		path []string
	}
	var regs []reg
	t := r.tree(c)
	if runAll {
		t.Walk(path, func(p []string, n *tree.Node[[]string]) bool {
			ids, _ := n.Value()
			for _, id := range ids {
				regs = append(regs, reg{id: id, path: append([]string(nil), p...)})
			}
			return true
		})
	} else {
		for _, id := range t.GetAllFromLeaf(path) {
			regs = append(regs, reg{id: id, path: append([]string(nil), path...)})
		}
	}
	if len(regs) == 0 {
		return nil
	}
	r.ClearTasks(c, path, runAll)

	out := make([]RunResult, 0, len(regs))
	for _, g := range regs {
		codes, ran := invoke(g.id)
		out = append(out, RunResult{TaskID: g.id, Path: g.path, Codes: codes, Ran: ran})
	}
	return out
}

// ClearTasks empties the leaf at path, and with clearAll the whole subtree.
func (r *RunSet) ClearTasks(c tasks.Category, path []string, clearAll bool) bool {
	t := r.tree(c)
	if !clearAll {
		return t.ClearLeaf(path, false)
	}
	removed := false
	t.Walk(path, func(_ []string, n *tree.Node[[]string]) bool {
		if n.ClearValue() {
			removed = true
		}
		return true
	})
	return removed
}

// Labels lists the child labels of path in category c.
func (r *RunSet) Labels(c tasks.Category, path []string) []string {
	return r.tree(c).LabelsOf(path)
}

func (r *RunSet) IDs(c tasks.Category, path []string) []string {
	return r.tree(c).GetAllFromNode(path)
}

func (r *RunSet) Len() int {
	return len(r.basic.GetAllFromNode(nil)) + len(r.medium.GetAllFromNode(nil))
}
