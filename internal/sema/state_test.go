package sema

import (
	"testing"

	"tracec/internal/ast"
)

func steps(t *testing.T, limit int, obs ...Observation) Convergence {
	t.Helper()
	var c Convergence
	for _, o := range obs {
		if c.Done() {
			t.Fatalf("stepped past Finished at iteration %d", c.Iteration)
		}
		c = c.Step(o, limit)
	}
	return c
}

func TestConvergenceCleanProgram(t *testing.T) {
	var c Convergence
	want := []Phase{SecondChance, ConclusivePass, Finished}
	for i, w := range want {
		c = c.Step(Observation{}, 0)
		if c.Phase != w {
			t.Fatalf("step %d: phase %s, want %s", i+1, c.Phase, w)
		}
	}
	if c.Iteration != 3 || c.Exhausted {
		t.Fatalf("state = %+v", c)
	}
}

func TestConvergenceProgressKeepsConverging(t *testing.T) {
	c := steps(t, 0,
		Observation{Unresolved: 5},
		Observation{Unresolved: 3},
	)
	if c.Phase != Converging || c.Best != 3 {
		t.Fatalf("state = %+v", c)
	}
	c = c.Step(Observation{Unresolved: 3}, 0)
	if c.Phase != SecondChance {
		t.Fatalf("stall: phase %s", c.Phase)
	}
	c = c.Step(Observation{Unresolved: 2}, 0)
	if c.Phase != Converging || c.Best != 2 {
		t.Fatalf("progress after second chance: %+v", c)
	}
	c = c.Step(Observation{Unresolved: 2}, 0)
	c = c.Step(Observation{Unresolved: 2}, 0)
	if !c.Conclusive() {
		t.Fatalf("two stalls must lead to the conclusive pass: %+v", c)
	}
}

func TestConvergenceBranchesReset(t *testing.T) {
	c := steps(t, 0,
		Observation{Unresolved: 4, Branches: NewBranchSet(7, 3)},
		Observation{Unresolved: 4, Branches: NewBranchSet(3, 7)},
	)
	if c.Phase != Converging || c.Best != 4 {
		t.Fatalf("state = %+v", c)
	}
	c = c.Step(Observation{Unresolved: 4, Branches: NewBranchSet(3, 7)}, 0)
	if c.Phase != SecondChance {
		t.Fatalf("equal branch sets must not reset: %+v", c)
	}
	c = c.Step(Observation{Unresolved: 4, Branches: NewBranchSet(3)}, 0)
	if c.Phase != Converging || c.Best != 0 {
		t.Fatalf("new branch set must reset progress: %+v", c)
	}
}

func TestConvergenceCeiling(t *testing.T) {
	const limit = 5
	var c Convergence
	n := 0
	for !c.Done() {
		// счёт всегда падает, сам по себе автомат не остановится
		c = c.Step(Observation{Unresolved: 1000 - n}, limit)
		n++
		if n > limit+1 {
			t.Fatalf("no termination after %d steps: %+v", n, c)
		}
	}
	if !c.Exhausted {
		t.Fatalf("ceiling not recorded: %+v", c)
	}
	if c.Iteration != limit+1 {
		t.Fatalf("iterations = %d, want %d", c.Iteration, limit+1)
	}
}

func TestConvergenceTerminatesForAnyInput(t *testing.T) {
	patterns := [][]int{
		{9, 8, 7, 6, 5, 4, 3, 2, 1},
		{1, 1, 1, 1},
		{0, 0, 0},
		{3, 5, 2, 8, 1, 9},
	}
	for _, p := range patterns {
		var c Convergence
		for i := 0; !c.Done(); i++ {
			if i > 64 {
				t.Fatalf("%v: no termination", p)
			}
			obs := Observation{Unresolved: p[i%len(p)]}
			if i%3 == 0 {
				// ветви меняются, но не бесконечно: ceiling всё равно сработает
				obs.Branches = NewBranchSet(ast.ExprID(i))
			}
			c = c.Step(obs, 16)
		}
	}
}

func TestBranchSetCanonical(t *testing.T) {
	s := NewBranchSet(5, 1, 5, 3)
	if !s.Equal(BranchSet{1, 3, 5}) {
		t.Fatalf("set = %v", s)
	}
	if s.Equal(NewBranchSet(1, 3)) {
		t.Fatalf("different sets compare equal")
	}
}
