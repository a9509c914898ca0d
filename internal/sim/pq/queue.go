package pq

import "encoding/json"

// Queue is a binary min-heap over a backing slice owned by the caller, so the
// slice can be shared with (and persisted by) its owner. The root holds the item
// with the smallest priority.
//
// Items with equal priority leave the heap in whatever order the heap structure
// yields; there is no tie-break.
type Queue[T comparable] struct {
	items    *[]T
	priority func(T) float64
}

// New builds a queue on top of mount. Items already in *mount are kept, extra items
// are appended unless an equal item is already present, and the result is
// heapified bottom-up. A nil mount gets a private backing slice.
func New[T comparable](mount *[]T, priority func(T) float64, extra ...T) *Queue[T] {
	if mount == nil {
		mount = new([]T)
	}
	q := &Queue[T]{items: mount, priority: priority}
	for _, it := range extra {
		if !q.contains(it) {
			*q.items = append(*q.items, it)
		}
	}
	q.heapify()
	return q
}

func (q *Queue[T]) contains(it T) bool {
	for _, v := range *q.items {
		if v == it {
			return true
		}
	}
	return false
}

func (q *Queue[T]) prio(i int) float64 {
	if q.priority == nil {
		return 0
	}
	return q.priority((*q.items)[i])
}

// swap does not check bounds; callers pass valid indices.
func (q *Queue[T]) swap(i, j int) {
	s := *q.items
	s[i], s[j] = s[j], s[i]
}

func (q *Queue[T]) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if q.prio(i) >= q.prio(parent) {
			return
		}
		q.swap(i, parent)
		i = parent
	}
}

func (q *Queue[T]) siftDown(i int) {
	n := len(*q.items)
	for {
		least := i
		if l := 2*i + 1; l < n && q.prio(l) < q.prio(least) {
			least = l
		}
		if r := 2*i + 2; r < n && q.prio(r) < q.prio(least) {
			least = r
		}
		if least == i {
			return
		}
		q.swap(i, least)
		i = least
	}
}

func (q *Queue[T]) heapify() {
	for i := len(*q.items)/2 - 1; i >= 0; i-- {
		q.siftDown(i)
	}
}

func (q *Queue[T]) Len() int {
	if q == nil || q.items == nil {
		return 0
	}
	return len(*q.items)
}

func (q *Queue[T]) IsEmpty() bool { return q.Len() == 0 }

// Peek returns the most urgent item without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	if q.Len() == 0 {
		return zero, false
	}
	return (*q.items)[0], true
}

// Pop removes and returns the most urgent item.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	n := q.Len()
	if n == 0 {
		return zero, false
	}
	s := *q.items
	ret := s[0]
	s[0] = s[n-1]
	s[n-1] = zero
	*q.items = s[:n-1]
	if n-1 > 0 {
		q.siftDown(0)
	}
	return ret, true
}

func (q *Queue[T]) Push(it T) {
	*q.items = append(*q.items, it)
	q.siftUp(len(*q.items) - 1)
}

// PopFunc pops items in priority order until one satisfies ok and returns it.
// Items that fail ok are put back.
func (q *Queue[T]) PopFunc(ok func(T) bool) (T, bool) {
	var (
		zero    T
		skipped []T
		found   bool
		ret     T
	)
	for q.Len() > 0 {
		it, _ := q.Pop()
		if ok(it) {
			ret, found = it, true
			break
		}
		skipped = append(skipped, it)
	}
	for _, it := range skipped {
		q.Push(it)
	}
	if !found {
		return zero, false
	}
	return ret, true
}

// Retain drops every item for which keep returns false, as well as repeated
// items, and restores the heap. It returns the number of items dropped.
func (q *Queue[T]) Retain(keep func(T) bool) int {
	if q.Len() == 0 {
		return 0
	}
	seen := make(map[T]struct{}, q.Len())
	s := *q.items
	out := s[:0]
	for _, it := range s {
		if _, dup := seen[it]; dup || !keep(it) {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	dropped := len(s) - len(out)
	var zero T
	for i := len(out); i < len(s); i++ {
		s[i] = zero
	}
	*q.items = out
	q.heapify()
	return dropped
}

// Items exposes the backing slice in heap order. Callers must not mutate it.
func (q *Queue[T]) Items() []T {
	if q == nil || q.items == nil {
		return nil
	}
	return *q.items
}

// SetPriority swaps the priority function and re-heapifies. Used after loading a
// queue from persisted form, where the function is not part of the data.
func (q *Queue[T]) SetPriority(priority func(T) float64) {
	q.priority = priority
	if q.items == nil {
		q.items = new([]T)
	}
	q.heapify()
}

func (q *Queue[T]) MarshalJSON() ([]byte, error) {
	items := q.Items()
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func (q *Queue[T]) UnmarshalJSON(b []byte) error {
	var items []T
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	q.items = &items
	q.heapify()
	return nil
}
