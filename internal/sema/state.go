package sema

import (
	"slices"

	"tracec/internal/ast"
)

// Phase is the state of the type resolution fixpoint.
type Phase uint8

const (
	// Converging iterates while the unresolved count keeps dropping.
	Converging Phase = iota
	// SecondChance is one extra iteration granted after progress stalls.
	SecondChance
	// ConclusivePass is the final visit: leftover none types become errors.
	ConclusivePass
	// Finished means the conclusive visit already ran.
	Finished
)

func (p Phase) String() string {
	switch p {
	case Converging:
		return "converging"
	case SecondChance:
		return "second-chance"
	case ConclusivePass:
		return "conclusive"
	case Finished:
		return "finished"
	}
	return "unknown"
}

// BranchSet is the sorted set of comptime conditions that could not be
// decided during one iteration.
type BranchSet []ast.ExprID

// NewBranchSet returns the canonical (sorted, deduplicated) form of ids.
func NewBranchSet(ids ...ast.ExprID) BranchSet {
	out := slices.Clone(ids)
	slices.Sort(out)
	return BranchSet(slices.Compact(out))
}

// Equal reports whether both sets hold the same conditions.
func (s BranchSet) Equal(other BranchSet) bool {
	return slices.Equal(s, other)
}

// Observation is what one visit of the tree reports back to the state machine.
type Observation struct {
	Unresolved int
	Branches   BranchSet
}

// Convergence tracks the fixpoint between iterations. The zero value is the
// state before the first visit. Transitions are pure: Step returns a new
// value and never touches the tree.
type Convergence struct {
	Phase     Phase
	Iteration int
	// Best is the lowest unresolved count seen since the last reset; 0 means
	// nothing recorded yet.
	Best     int
	Branches BranchSet
	// Exhausted is set when the iteration ceiling forced the conclusive pass.
	Exhausted bool
}

// Conclusive reports whether the next visit must treat none types as errors.
func (c Convergence) Conclusive() bool {
	return c.Phase == ConclusivePass
}

// Done reports whether no further visit is needed.
func (c Convergence) Done() bool {
	return c.Phase == Finished
}

// Step folds one visit into the state. limit caps the number of visits
// before the conclusive one; zero or negative means no cap.
func (c Convergence) Step(obs Observation, limit int) Convergence {
	next := c
	next.Iteration++
	if c.Phase == ConclusivePass || c.Phase == Finished {
		next.Phase = Finished
		return next
	}

	switch {
	case !obs.Branches.Equal(c.Branches):
		// решённые ветви открывают новую работу, счёт прогресса начинается заново
		next.Branches = slices.Clone(obs.Branches)
		next.Best = 0
		next.Phase = Converging
	case obs.Unresolved > 0 && (c.Best == 0 || obs.Unresolved < c.Best):
		next.Best = obs.Unresolved
		next.Phase = Converging
	case c.Phase == SecondChance:
		next.Phase = ConclusivePass
	default:
		next.Phase = SecondChance
	}

	if limit > 0 && next.Iteration >= limit && next.Phase != ConclusivePass {
		next.Phase = ConclusivePass
		next.Exhausted = true
	}
	return next
}
