package tasks

import "sort"

// AnyRole is the catch-all quota bucket used by roles without an entry.
const AnyRole = "any"

// Quota maps a worker role (or AnyRole) to a count.
type Quota map[string]int

// Sum totals every bucket.
func (q Quota) Sum() int {
	n := 0
	for _, v := range q {
		n += v
	}
	return n
}

// Roles lists the explicit roles in sorted order, AnyRole excluded.
func (q Quota) Roles() []string {
	out := make([]string, 0, len(q))
	for k := range q {
		if k != AnyRole {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (q Quota) clone() Quota {
	out := make(Quota, len(q)+1)
	for k, v := range q {
		out[k] = v
	}
	if _, ok := out[AnyRole]; !ok {
		out[AnyRole] = 0
	}
	return out
}

// Received tracks admission per role. For every bucket,
// Current+Left == Max and no value is negative.
type Received struct {
	Max     Quota `json:"max"`
	Current Quota `json:"current"`
	Left    Quota `json:"left"`
}

func NewReceived(max Quota) Received {
	if len(max) == 0 {
		max = Quota{AnyRole: 1}
	}
	r := Received{Max: max.clone(), Current: Quota{}, Left: max.clone()}
	for k := range r.Max {
		r.Current[k] = 0
	}
	return r
}

// Bucket is the quota key that bounds role: the role itself when it has an
// explicit entry, else AnyRole.
func (r *Received) Bucket(role string) string {
	if _, ok := r.Max[role]; ok && role != "" {
		return role
	}
	return AnyRole
}

// Valid reports whether one more worker of role can be admitted.
func (r *Received) Valid(role string) bool {
	return r.Left[r.Bucket(role)] > 0
}

func adjust(q Quota, key string, delta int) bool {
	if q[key]+delta < 0 {
		return false
	}
	q[key] += delta
	return true
}

// Take moves one slot of role from Left to Current.
func (r *Received) Take(role string) bool {
	b := r.Bucket(role)
	if r.Left[b] <= 0 {
		return false
	}
	r.Left[b]--
	r.Current[b]++
	return true
}

// Release hands a slot of role back: Current-1, Left+1.
func (r *Received) Release(role string) bool {
	b := r.Bucket(role)
	if !adjust(r.Current, b, -1) {
		return false
	}
	r.Left[b]++
	return true
}

// Consume retires a slot of role permanently: Current-1 only.
func (r *Received) Consume(role string) bool {
	return adjust(r.Current, r.Bucket(role), -1)
}
