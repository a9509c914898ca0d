// Package tree implements a string-labeled tree used as a multi-key store. A path
// is an ordered list of labels; every node may carry a value and any number of
// labeled children.
package tree

import (
	"encoding/json"
	"sort"
)

// ValueLabel is the key under which a node value is persisted. It is reserved:
// paths containing it resolve to nothing.
const ValueLabel = "$value"

type Node[V any] struct {
	value    V
	hasValue bool
	children map[string]*Node[V]
}

func newNode[V any]() *Node[V] { return &Node[V]{} }

func (n *Node[V]) Value() (V, bool) {
	if n == nil {
		var zero V
		return zero, false
	}
	return n.value, n.hasValue
}

func (n *Node[V]) SetValue(v V) {
	n.value = v
	n.hasValue = true
}

func (n *Node[V]) ClearValue() bool {
	had := n.hasValue
	var zero V
	n.value = zero
	n.hasValue = false
	return had
}

// Child returns the child under label without creating it.
func (n *Node[V]) Child(label string) *Node[V] {
	if n == nil || n.children == nil {
		return nil
	}
	return n.children[label]
}

func (n *Node[V]) child(label string) *Node[V] {
	if n.children == nil {
		n.children = map[string]*Node[V]{}
	}
	c := n.children[label]
	if c == nil {
		c = newNode[V]()
		n.children[label] = c
	}
	return c
}

// Labels returns the child labels in sorted order.
func (n *Node[V]) Labels() []string {
	if n == nil || len(n.children) == 0 {
		return nil
	}
	out := make([]string, 0, len(n.children))
	for k := range n.children {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Children returns the child nodes ordered by label.
func (n *Node[V]) Children() []*Node[V] {
	labels := n.Labels()
	out := make([]*Node[V], 0, len(labels))
	for _, l := range labels {
		out = append(out, n.children[l])
	}
	return out
}

func (n *Node[V]) empty() bool { return !n.hasValue && len(n.children) == 0 }

func (n *Node[V]) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(n.children)+1)
	if n.hasValue {
		b, err := json.Marshal(n.value)
		if err != nil {
			return nil, err
		}
		m[ValueLabel] = b
	}
	for k, c := range n.children {
		b, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		m[k] = b
	}
	return json.Marshal(m)
}

func (n *Node[V]) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*n = Node[V]{}
	for k, raw := range m {
		if k == ValueLabel {
			var v V
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			n.SetValue(v)
			continue
		}
		c := newNode[V]()
		if err := json.Unmarshal(raw, c); err != nil {
			return err
		}
		if n.children == nil {
			n.children = map[string]*Node[V]{}
		}
		n.children[k] = c
	}
	return nil
}

// Tree is usable as a zero value.
type Tree[V any] struct {
	root *Node[V]
}

func New[V any]() *Tree[V] { return &Tree[V]{root: newNode[V]()} }

func (t *Tree[V]) Root() *Node[V] {
	if t.root == nil {
		t.root = newNode[V]()
	}
	return t.root
}

func validPath(path []string) bool {
	for _, l := range path {
		if l == ValueLabel {
			return false
		}
	}
	return true
}

// Resolve walks path, creating missing nodes. It is the write-side accessor.
func (t *Tree[V]) Resolve(path []string) (*Node[V], bool) {
	if !validPath(path) {
		return nil, false
	}
	n := t.Root()
	for _, l := range path {
		n = n.child(l)
	}
	return n, true
}

// Lookup walks path without mutating the tree.
func (t *Tree[V]) Lookup(path []string) (*Node[V], bool) {
	if !validPath(path) {
		return nil, false
	}
	n := t.Root()
	for _, l := range path {
		n = n.Child(l)
		if n == nil {
			return nil, false
		}
	}
	return n, true
}

func (t *Tree[V]) ChildrenOf(path []string) []*Node[V] {
	n, ok := t.Lookup(path)
	if !ok {
		return nil
	}
	return n.Children()
}

func (t *Tree[V]) LabelsOf(path []string) []string {
	n, ok := t.Lookup(path)
	if !ok {
		return nil
	}
	return n.Labels()
}

// ClearLeaf removes the value at path, and with clearAll every child as well.
// It reports whether anything was removed.
func (t *Tree[V]) ClearLeaf(path []string, clearAll bool) bool {
	n, ok := t.Lookup(path)
	if !ok {
		return false
	}
	removed := n.ClearValue()
	if clearAll && len(n.children) > 0 {
		n.children = nil
		removed = true
	}
	return removed
}

// Walk visits every node at or below path depth-first (value before children,
// children in label order). Returning false from fn stops the walk.
func (t *Tree[V]) Walk(path []string, fn func(path []string, n *Node[V]) bool) {
	n, ok := t.Lookup(path)
	if !ok {
		return
	}
	walk(append([]string(nil), path...), n, fn)
}

func walk[V any](path []string, n *Node[V], fn func([]string, *Node[V]) bool) bool {
	if !fn(path, n) {
		return false
	}
	for _, l := range n.Labels() {
		if !walk(append(path[:len(path):len(path)], l), n.children[l], fn) {
			return false
		}
	}
	return true
}

// Prune drops empty subtrees so long-lived trees do not accumulate dead branches.
func (t *Tree[V]) Prune() {
	prune(t.Root())
}

func prune[V any](n *Node[V]) {
	for k, c := range n.children {
		prune(c)
		if c.empty() {
			delete(n.children, k)
		}
	}
}

func (t *Tree[V]) MarshalJSON() ([]byte, error) { return json.Marshal(t.Root()) }

func (t *Tree[V]) UnmarshalJSON(b []byte) error {
	n := newNode[V]()
	if err := json.Unmarshal(b, n); err != nil {
		return err
	}
	t.root = n
	return nil
}
