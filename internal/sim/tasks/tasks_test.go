package tasks

import "testing"

func TestCategoryOf(t *testing.T) {
	cases := map[string]Category{
		"harvest":  Basic,
		"Transfer": Medium,
		"":         Basic,
		"upgrade":  Basic,
		"Defend":   Medium,
	}
	for tt, want := range cases {
		if got := CategoryOf(tt); got != want {
			t.Fatalf("CategoryOf(%q)=%s want %s", tt, got, want)
		}
	}
}

func TestCodeNormalize(t *testing.T) {
	for _, c := range []Code{Continue, Renew, Finish, Delete} {
		if c.Normalize() != c {
			t.Fatalf("%s changed on normalize", c)
		}
	}
	if got := Code(42).Normalize(); got != Delete {
		t.Fatalf("unknown code normalized to %s", got)
	}
}

func TestNewReceived_CurrentPlusLeftEqualsMax(t *testing.T) {
	r := NewReceived(Quota{"harvester": 2, "worker": 1})
	for k, max := range r.Max {
		if r.Current[k]+r.Left[k] != max {
			t.Fatalf("bucket %s: current=%d left=%d max=%d", k, r.Current[k], r.Left[k], max)
		}
	}
	if _, ok := r.Max[AnyRole]; !ok {
		t.Fatalf("any bucket missing")
	}

	def := NewReceived(nil)
	if def.Max[AnyRole] != 1 || def.Left[AnyRole] != 1 {
		t.Fatalf("default quota: %+v", def)
	}
}

func TestReceived_BucketsAndBounds(t *testing.T) {
	r := NewReceived(Quota{"harvester": 1, AnyRole: 1})
	if r.Bucket("harvester") != "harvester" || r.Bucket("hauler") != AnyRole {
		t.Fatalf("bucket selection wrong")
	}
	if !r.Take("harvester") {
		t.Fatalf("first harvester should fit")
	}
	// Explicit bucket is exhausted; the harvester must not spill into any.
	if r.Take("harvester") {
		t.Fatalf("second harvester should not fit")
	}
	if !r.Take("hauler") {
		t.Fatalf("hauler should use any bucket")
	}
	if r.Left.Sum() != 0 {
		t.Fatalf("left=%v", r.Left)
	}

	if !r.Release("harvester") {
		t.Fatalf("release")
	}
	if r.Left["harvester"] != 1 || r.Current["harvester"] != 0 {
		t.Fatalf("after release: %+v", r)
	}
	if !r.Consume("hauler") {
		t.Fatalf("consume")
	}
	if r.Consume("hauler") {
		t.Fatalf("current must not go negative")
	}
	if r.Left[AnyRole] != 0 {
		t.Fatalf("consume must not return capacity")
	}
}

func TestFingerprint_Idempotent(t *testing.T) {
	id := Attached("W1N1", "harvest", "local")
	a := New(7, id, map[string]any{"source": "s1", "nonce": 1}, nil, "nonce")
	b := New(7, id, map[string]any{"source": "s1", "nonce": 2}, nil, "nonce")
	if a.ID != b.ID {
		t.Fatalf("omitted field changed id: %s vs %s", a.ID, b.ID)
	}
	c := New(8, id, map[string]any{"source": "s1"}, nil)
	if c.ID == a.ID {
		t.Fatalf("salt ignored")
	}
	d := New(7, id, map[string]any{"source": "s2"}, nil, "nonce")
	if d.ID == a.ID {
		t.Fatalf("data ignored")
	}
}

func TestFingerprint_OmitsNestedKeysAndNulls(t *testing.T) {
	a := Fingerprint(0, map[string]any{"pos": map[string]any{"x": 1, "tick": 5}, "note": nil}, []string{"tick"})
	b := Fingerprint(0, map[string]any{"pos": map[string]any{"x": 1}}, nil)
	if a != b {
		t.Fatalf("nested omit/null handling: %s vs %s", a, b)
	}
}

func TestRegistry_ExactBeatsWildcard(t *testing.T) {
	reg := NewRegistry()
	wild := func(*Task, []*Worker) []Code { return []Code{Finish} }
	exact := func(*Task, []*Worker) []Code { return []Code{Renew} }
	reg.Register("harvest", "", Behavior{Run: wild})
	reg.Register("harvest", "remote", Behavior{Run: exact})

	local := New(0, Attached("W1", "harvest", "local"), nil, nil)
	remote := New(0, Attached("W1", "harvest", "remote"), nil, nil)
	if !reg.Attach(local) || !reg.Attach(remote) {
		t.Fatalf("attach failed")
	}
	if got := local.Run(local, nil)[0]; got != Finish {
		t.Fatalf("local ran %s", got)
	}
	if got := remote.Run(remote, nil)[0]; got != Renew {
		t.Fatalf("remote ran %s", got)
	}

	unknown := New(0, Attached("W1", "build", "x"), nil, nil)
	if reg.Attach(unknown) {
		t.Fatalf("attach should fail for unregistered kind")
	}
	if len(reg.Keys()) != 2 {
		t.Fatalf("keys=%v", reg.Keys())
	}
}

func TestWorker_EarlyTerminatedResetOnRenew(t *testing.T) {
	w := &Worker{Name: "h1", Role: "harvester", Home: "W1"}
	k := Key{TaskType: "harvest", SubTaskType: "remote"}
	w.MarkEarlyTerminated(k)
	w.MarkEarlyTerminated(k)
	if len(w.EarlyTerminated) != 1 || !w.HasEarlyTerminated(k) {
		t.Fatalf("early terminated=%v", w.EarlyTerminated)
	}
	w.Renew()
	if w.HasEarlyTerminated(k) {
		t.Fatalf("renew should clear early terminated")
	}
}
