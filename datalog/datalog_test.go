package datalog

import "testing"

// TestReachability computes graph reachability by repeatedly joining nodes
// with edges, the canonical smoke test for a semi-naive evaluator.
func TestReachability(t *testing.T) {
	type pair struct{ a, b int }

	it := NewIteration()
	paths := Declare[pair](it, "paths")
	edges := Declare[pair](it, "edges")

	paths.Insert(pair{1, 2}, pair{2, 3}, pair{3, 4})
	edges.Insert(pair{1, 2}, pair{2, 3}, pair{3, 4})

	for it.Changed() {
		FromJoin(paths, paths, func(p pair) int { return p.b }, edges, func(p pair) int { return p.a },
			func(_ int, n pair, e pair) pair { return pair{n.a, e.b} })
	}

	reachable := paths.Complete()
	want := map[pair]bool{{1, 2}: true, {2, 3}: true, {3, 4}: true, {1, 3}: true, {2, 4}: true, {1, 4}: true}
	if reachable.Len() != len(want) {
		t.Fatalf("reachable = %v, want %d tuples matching %v", reachable.Items(), len(want), want)
	}
	for _, got := range reachable.Items() {
		if !want[got] {
			t.Fatalf("unexpected tuple %v in reachable set", got)
		}
	}
}

func TestVariableDedupesAcrossRounds(t *testing.T) {
	it := NewIteration()
	v := Declare[int](it, "v")
	v.Insert(1, 1, 2)
	it.Changed()
	v.Insert(1, 2, 3) // 1 and 2 are already stable; only 3 is new
	it.Changed()
	rel := v.Complete()
	if rel.Len() != 3 {
		t.Fatalf("Complete().Len() = %d, want 3 (no duplicate 1/2)", rel.Len())
	}
}

func TestLeapjoinFiltersAndMaps(t *testing.T) {
	it := NewIteration()
	seed := Declare[int](it, "seed")
	out := Declare[string](it, "out")

	seed.Insert(1, 2, 3, 4)
	for it.Changed() {
		FromLeapjoin(out, seed, func(s int) string {
			return map[int]string{2: "two", 4: "four"}[s]
		}, func(s int) bool { return s%2 == 0 })
	}
	rel := out.Complete()
	got := map[string]bool{}
	for _, s := range rel.Items() {
		got[s] = true
	}
	if len(got) != 2 || !got["two"] || !got["four"] {
		t.Fatalf("leapjoin result = %v, want {two, four}", rel.Items())
	}
}

func TestLeapjoinExtensionCanHaveSideEffects(t *testing.T) {
	it := NewIteration()
	seed := Declare[int](it, "seed")
	out := Declare[int](it, "out")
	seed.Insert(10, 20, 30)

	counter := 0
	for it.Changed() {
		FromLeapjoin(out, seed, func(s int) int { return s }, func(s int) bool {
			counter++
			return true
		})
	}
	if counter != 3 {
		t.Fatalf("side-effecting extension ran %d times, want 3 (once per seed)", counter)
	}
	if out.Complete().Len() != 3 {
		t.Fatalf("expected all 3 seeds to survive the always-true filter")
	}
}
