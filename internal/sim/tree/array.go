package tree

// ArrayTree stores an ordered sequence at each leaf.
type ArrayTree[P any] struct {
	Tree[[]P]
}

func NewArray[P any]() *ArrayTree[P] { return &ArrayTree[P]{} }

func (t *ArrayTree[P]) PushToLeaf(item P, path []string) bool {
	n, ok := t.Resolve(path)
	if !ok {
		return false
	}
	cur, _ := n.Value()
	n.SetValue(append(cur, item))
	return true
}

// PopFromLeaf removes the last item pushed to the leaf.
func (t *ArrayTree[P]) PopFromLeaf(path []string) (P, bool) {
	var zero P
	n, ok := t.Lookup(path)
	if !ok {
		return zero, false
	}
	cur, has := n.Value()
	if !has || len(cur) == 0 {
		return zero, false
	}
	it := cur[len(cur)-1]
	cur[len(cur)-1] = zero
	n.SetValue(cur[:len(cur)-1])
	return it, true
}

// AssignToLeaf replaces the leaf's sequence.
func (t *ArrayTree[P]) AssignToLeaf(items []P, path []string) bool {
	n, ok := t.Resolve(path)
	if !ok {
		return false
	}
	n.SetValue(items)
	return true
}

// GetAllFromLeaf returns the leaf's sequence (shared, not copied).
func (t *ArrayTree[P]) GetAllFromLeaf(path []string) []P {
	n, ok := t.Lookup(path)
	if !ok {
		return nil
	}
	v, _ := n.Value()
	return v
}

// FilterLeaf keeps only the items for which keep returns true.
func (t *ArrayTree[P]) FilterLeaf(path []string, keep func(P) bool) bool {
	n, ok := t.Lookup(path)
	if !ok {
		return false
	}
	cur, has := n.Value()
	if !has {
		return false
	}
	out := cur[:0]
	for _, it := range cur {
		if keep(it) {
			out = append(out, it)
		}
	}
	var zero P
	for i := len(out); i < len(cur); i++ {
		cur[i] = zero
	}
	n.SetValue(out)
	return true
}

// GetAllFromNode collects every item at or below path, depth-first.
func (t *ArrayTree[P]) GetAllFromNode(path []string) []P {
	var out []P
	t.Walk(path, func(_ []string, n *Node[[]P]) bool {
		if v, ok := n.Value(); ok {
			out = append(out, v...)
		}
		return true
	})
	return out
}

func (t *ArrayTree[P]) MarshalJSON() ([]byte, error) { return t.Tree.MarshalJSON() }

func (t *ArrayTree[P]) UnmarshalJSON(b []byte) error { return t.Tree.UnmarshalJSON(b) }
