package tree

import "sort"

// ObjectTree stores a keyed map at each leaf.
type ObjectTree[P any] struct {
	Tree[map[string]P]
}

func NewObject[P any]() *ObjectTree[P] { return &ObjectTree[P]{} }

// AddToLeaf sets key in the leaf map; it also overwrites.
func (t *ObjectTree[P]) AddToLeaf(item P, path []string, key string) bool {
	n, ok := t.Resolve(path)
	if !ok {
		return false
	}
	m, _ := n.Value()
	if m == nil {
		m = map[string]P{}
		n.SetValue(m)
	}
	m[key] = item
	return true
}

func (t *ObjectTree[P]) GetFromLeaf(path []string, key string) (P, bool) {
	var zero P
	n, ok := t.Lookup(path)
	if !ok {
		return zero, false
	}
	m, _ := n.Value()
	v, ok := m[key]
	return v, ok
}

func (t *ObjectTree[P]) DelFromLeaf(path []string, key string) bool {
	n, ok := t.Lookup(path)
	if !ok {
		return false
	}
	m, _ := n.Value()
	if _, ok := m[key]; !ok {
		return false
	}
	delete(m, key)
	return true
}

// Keys returns the sorted keys of the leaf map at path.
func (t *ObjectTree[P]) Keys(path []string) []string {
	n, ok := t.Lookup(path)
	if !ok {
		return nil
	}
	m, _ := n.Value()
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (t *ObjectTree[P]) MarshalJSON() ([]byte, error) { return t.Tree.MarshalJSON() }

func (t *ObjectTree[P]) UnmarshalJSON(b []byte) error { return t.Tree.UnmarshalJSON(b) }

// Level is an ObjectTree of priorities. A value stored under key k at node
// path is the offset for path+k; values accumulate along a path, so the
// tree should descend from general (taskType) to specific (subTaskType).
type Level struct {
	ObjectTree[float64]
}

func NewLevel() *Level { return &Level{} }

func (l *Level) throughPath(path []string) ([]float64, bool) {
	if !validPath(path) {
		return nil, false
	}
	var vals []float64
	n := l.Root()
	for _, key := range path {
		if m, ok := n.Value(); ok {
			if v, ok := m[key]; ok {
				vals = append(vals, v)
			}
		}
		n = n.Child(key)
		if n == nil {
			break
		}
	}
	return vals, true
}

// GetLastFromPath returns the deepest value found along path.
func (l *Level) GetLastFromPath(path []string) (float64, bool) {
	vals, ok := l.throughPath(path)
	if !ok || len(vals) == 0 {
		return 0, false
	}
	return vals[len(vals)-1], true
}

// AccumulateThroughPath sums every value found along path.
func (l *Level) AccumulateThroughPath(path []string) (float64, bool) {
	vals, ok := l.throughPath(path)
	if !ok {
		return 0, false
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum, true
}

func (l *Level) MarshalJSON() ([]byte, error) { return l.Tree.MarshalJSON() }

func (l *Level) UnmarshalJSON(b []byte) error { return l.Tree.UnmarshalJSON(b) }
