package engine

import (
	"encoding/json"
	"sort"

	"colony.ai/internal/sim/tree"
)

// Record indexes.
const (
	// RecordCall tallies run decisions: +1 when a node ran, -1 when the
	// throttle held it back. Kept at [room] key taskType and
	// [room, taskType] key subTaskType.
	RecordCall = "call"
	// RecordInvalidCall is a saturating count of throttled calls that Issue
	// consults to stop issuing work that cannot run.
	RecordInvalidCall = "invalid_call"
)

// Record holds integer tallies by index, wiped every interval ticks.
type Record struct {
	data     map[string]*tree.ObjectTree[int]
	interval uint64
	lastTick uint64
}

func NewRecord(interval, now uint64) *Record {
	return &Record{data: map[string]*tree.ObjectTree[int]{}, interval: interval, lastTick: now}
}

// preCheck wipes every index once interval ticks have passed since the last
// wipe. It reports whether it did.
func (r *Record) preCheck(now uint64) bool {
	if now < r.lastTick {
		r.lastTick = now
		return false
	}
	if now-r.lastTick < r.interval {
		return false
	}
	r.lastTick = now
	for k := range r.data {
		delete(r.data, k)
	}
	return true
}

func (r *Record) Add(index string, path []string, key string, v int) bool {
	t := r.data[index]
	if t == nil {
		t = tree.NewObject[int]()
		r.data[index] = t
	}
	return t.AddToLeaf(v, path, key)
}

func (r *Record) Get(index string, path []string, key string) (int, bool) {
	t := r.data[index]
	if t == nil {
		return 0, false
	}
	return t.GetFromLeaf(path, key)
}

func (r *Record) Del(index string, path []string, key string) bool {
	t := r.data[index]
	if t == nil {
		return false
	}
	return t.DelFromLeaf(path, key)
}

// modify adds delta to the tally, treating a missing tally as 0. When
// criterion is given the tally only changes if criterion accepts its
// current value.
func (r *Record) modify(index string, path []string, key string, delta int, criterion func(int) bool) bool {
	pre, _ := r.Get(index, path, key)
	if criterion != nil && !criterion(pre) {
		return false
	}
	return r.Add(index, path, key, pre+delta)
}

func (r *Record) index(name string) *tree.ObjectTree[int] { return r.data[name] }

// Row is one flattened tally.
type Row struct {
	Index string
	Path  []string
	Key   string
	Value int
}

// Rows flattens every tally, ordered by index then path.
func (r *Record) Rows() []Row {
	names := make([]string, 0, len(r.data))
	for k := range r.data {
		names = append(names, k)
	}
	sort.Strings(names)
	var out []Row
	for _, name := range names {
		t := r.data[name]
		t.Walk(nil, func(p []string, n *tree.Node[map[string]int]) bool {
			m, _ := n.Value()
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				out = append(out, Row{Index: name, Path: append([]string(nil), p...), Key: k, Value: m[k]})
			}
			return true
		})
	}
	return out
}

func (r *Record) export() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(r.data))
	for k, t := range r.data {
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		out[k] = b
	}
	return out, nil
}

func (r *Record) load(raw map[string]json.RawMessage, lastTick uint64) error {
	data := make(map[string]*tree.ObjectTree[int], len(raw))
	for k, b := range raw {
		t := tree.NewObject[int]()
		if err := json.Unmarshal(b, t); err != nil {
			return err
		}
		data[k] = t
	}
	r.data = data
	r.lastTick = lastTick
	return nil
}
