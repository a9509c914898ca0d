package tree

import (
	"encoding/json"

	"colony.ai/internal/sim/pq"
)

// QueueTree stores a priority queue at each leaf. Queues are created lazily on
// the first push and share one priority function.
type QueueTree[P comparable] struct {
	Tree[*pq.Queue[P]]
	priority func(P) float64
}

func NewQueue[P comparable](priority func(P) float64) *QueueTree[P] {
	return &QueueTree[P]{priority: priority}
}

func (t *QueueTree[P]) leafQueue(path []string) *pq.Queue[P] {
	n, ok := t.Lookup(path)
	if !ok {
		return nil
	}
	q, _ := n.Value()
	return q
}

func (t *QueueTree[P]) AddToLeaf(item P, path []string) bool {
	n, ok := t.Resolve(path)
	if !ok {
		return false
	}
	q, has := n.Value()
	if !has || q == nil {
		q = pq.New[P](nil, t.priority)
		n.SetValue(q)
	}
	q.Push(item)
	return true
}

// GetFromLeaf peeks at the most urgent item of the leaf.
func (t *QueueTree[P]) GetFromLeaf(path []string) (P, bool) {
	return t.leafQueue(path).Peek()
}

func (t *QueueTree[P]) PopFromLeaf(path []string) (P, bool) {
	return t.leafQueue(path).Pop()
}

// PopFromLeafFunc pops the most urgent item of the leaf satisfying ok. Items that
// fail ok stay queued.
func (t *QueueTree[P]) PopFromLeafFunc(path []string, ok func(P) bool) (P, bool) {
	q := t.leafQueue(path)
	if q == nil {
		var zero P
		return zero, false
	}
	return q.PopFunc(ok)
}

// PopAnyFromNode searches depth-first at and below path and pops the first item
// satisfying ok from any leaf.
func (t *QueueTree[P]) PopAnyFromNode(path []string, ok func(P) bool) (P, bool) {
	var (
		ret   P
		found bool
	)
	t.Walk(path, func(_ []string, n *Node[*pq.Queue[P]]) bool {
		q, has := n.Value()
		if !has || q == nil {
			return true
		}
		if it, got := q.PopFunc(ok); got {
			ret, found = it, true
			return false
		}
		return true
	})
	return ret, found
}

// GetAllFromLeaf returns the leaf's items in heap order.
func (t *QueueTree[P]) GetAllFromLeaf(path []string) []P {
	return append([]P(nil), t.leafQueue(path).Items()...)
}

// GetAllFromNode collects every item at or below path.
func (t *QueueTree[P]) GetAllFromNode(path []string) []P {
	var out []P
	t.Walk(path, func(_ []string, n *Node[*pq.Queue[P]]) bool {
		if q, ok := n.Value(); ok && q != nil {
			out = append(out, q.Items()...)
		}
		return true
	})
	return out
}

// Retain applies keep to every queue in the tree, dropping failing and repeated
// items per leaf. It returns the total number dropped.
func (t *QueueTree[P]) Retain(keep func(P) bool) int {
	dropped := 0
	t.Walk(nil, func(_ []string, n *Node[*pq.Queue[P]]) bool {
		if q, ok := n.Value(); ok && q != nil {
			dropped += q.Retain(keep)
		}
		return true
	})
	return dropped
}

// SetPriority rebinds the priority function of every queue, re-heapifying each.
func (t *QueueTree[P]) SetPriority(priority func(P) float64) {
	t.priority = priority
	t.Walk(nil, func(_ []string, n *Node[*pq.Queue[P]]) bool {
		if q, ok := n.Value(); ok && q != nil {
			q.SetPriority(priority)
		}
		return true
	})
}

func (t *QueueTree[P]) MarshalJSON() ([]byte, error) { return t.Tree.MarshalJSON() }

// UnmarshalJSON restores the tree and re-heapifies every queue with the tree's
// current priority function.
func (t *QueueTree[P]) UnmarshalJSON(b []byte) error {
	var tr Tree[*pq.Queue[P]]
	if err := json.Unmarshal(b, &tr); err != nil {
		return err
	}
	t.Tree = tr
	t.SetPriority(t.priority)
	return nil
}
