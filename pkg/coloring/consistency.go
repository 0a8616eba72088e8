package coloring

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"

	"github.com/synthesis-framework/treecolor/pkg/family"
)

// ConsistencyResult is the outcome of a consistency check. When
// Consistent, HoleOptions holds the realizing assignment, one option per
// hole. Otherwise it is the generalized conflict: one forced option per
// hole, except the single harmonizing hole, which offers its two
// alternative options in ascending order.
type ConsistencyResult struct {
	Consistent  bool
	HoleOptions [][]int
}

// AreChoicesConsistent decides whether the given choices can be realized
// by one concrete hole assignment drawn from the subfamily. The per-state
// enabled-path caches must be current for the same subfamily, i.e. the
// choices are expected to come from the preceding
// SelectCompatibleChoices call.
//
// In single-check mode harmonization data does not exist and every
// selection is reported inconsistent without analysis.
func (c *Coloring) AreChoicesConsistent(choices *bitset.BitSet, subfamily *family.Family) (ConsistencyResult, error) {
	res := ConsistencyResult{HoleOptions: make([][]int, c.fam.NumHoles())}
	if c.singleCheck {
		return res, nil
	}
	c.timers.Start("areChoicesConsistent")
	defer c.timers.Stop("areChoicesConsistent")

	c.sol.Push()
	c.assertFamily(subfamily, true)

	c.sol.Push()
	for ch, ok := choices.NextSet(0); ok; ch, ok = choices.NextSet(ch + 1) {
		choice := int(ch)
		c.assertChoicePaths(choice)
	}
	if c.check() {
		c.decodeAssignment(res.HoleOptions)
		c.sol.Pop()
		c.sol.Pop()
		res.Consistent = true
		return res, nil
	}
	c.sol.Pop()

	// Replaying the assertions state by state from the initial state
	// yields a materially smaller core than the all-at-once check above.
	c.sol.Push()
	reached := bitset.New(uint(c.ts.NumStates()))
	reached.Set(uint(c.ts.InitialState))
	worklist := []int{c.ts.InitialState}
	consistent := true
	for consistent {
		if len(worklist) == 0 {
			c.sol.Pop()
			c.sol.Pop()
			return res, errors.New("coloring: all states explored but unsat core not found")
		}
		state := worklist[0]
		worklist = worklist[1:]
		_, consistent, worklist = c.replayState(state, choices, reached, worklist)
	}
	c.loadUnsatCore()
	c.sol.Pop()

	if err := c.harmonize(res.HoleOptions); err != nil {
		c.sol.Pop()
		return res, err
	}
	c.sol.Pop()
	return res, nil
}

// AreChoicesConsistentUseHint behaves like AreChoicesConsistent but seeds
// the incremental replay with the states of a previous conflict, so the
// first satisfiability checks already cover the states most likely to
// clash. Unlike the unhinted variant it replays every seeded and
// reachable state before extracting the core, and it can conclude
// consistency directly from the replay.
func (c *Coloring) AreChoicesConsistentUseHint(choices *bitset.BitSet, subfamily *family.Family, hint []ChoicePath) (ConsistencyResult, error) {
	res := ConsistencyResult{HoleOptions: make([][]int, c.fam.NumHoles())}
	if c.singleCheck {
		return res, nil
	}
	c.timers.Start("areChoicesConsistent")
	defer c.timers.Stop("areChoicesConsistent")

	c.sol.Push()
	c.assertFamily(subfamily, true)

	c.sol.Push()
	reached := bitset.New(uint(c.ts.NumStates()))
	var worklist []int
	for _, cp := range hint {
		state := c.ts.ChoiceToState(cp.Choice)
		if !reached.Test(uint(state)) {
			reached.Set(uint(state))
			worklist = append(worklist, state)
		}
	}
	if !reached.Test(uint(c.ts.InitialState)) {
		reached.Set(uint(c.ts.InitialState))
		worklist = append(worklist, c.ts.InitialState)
	}

	consistent := true
	replayed := false
	for len(worklist) > 0 {
		state := worklist[0]
		worklist = worklist[1:]
		var checked, ok bool
		checked, ok, worklist = c.replayState(state, choices, reached, worklist)
		if checked {
			replayed = true
			consistent = consistent && ok
		}
	}
	if consistent && !replayed {
		// No selected choice anywhere in the drained worklist; check the
		// family scope itself so the decode below reads a real model.
		consistent = c.check()
	}
	if consistent {
		c.decodeAssignment(res.HoleOptions)
		c.sol.Pop()
		c.sol.Pop()
		res.Consistent = true
		return res, nil
	}
	c.loadUnsatCore()
	c.sol.Pop()

	if err := c.harmonize(res.HoleOptions); err != nil {
		c.sol.Pop()
		return res, err
	}
	c.sol.Pop()
	return res, nil
}

// assertChoicePaths asserts the ground expression of every path enabled
// at the choice's state.
func (c *Coloring) assertChoicePaths(choice int) {
	state := c.ts.ChoiceToState(choice)
	enabled := c.statePathEnabled[state]
	for p, ok := enabled.NextSet(0); ok; p, ok = enabled.NextSet(p + 1) {
		c.sol.Assert(c.pathAssert[choice][p])
	}
}

// replayState asserts the path expressions of the first selected choice
// of the state, checks satisfiability and, while consistent, enqueues the
// choice's unreached destinations. Only the first selected choice per
// state is replayed; the remaining ones cannot tighten the core. A state
// with no selected choice is not replayed at all: it reports
// checked=false and a vacuous consistent=true, which callers must not let
// overwrite an inconsistency already found.
func (c *Coloring) replayState(state int, choices, reached *bitset.BitSet, worklist []int) (checked, consistent bool, _ []int) {
	for choice := c.ts.RowGroups[state]; choice < c.ts.RowGroups[state+1]; choice++ {
		if !choices.Test(uint(choice)) {
			continue
		}
		c.assertChoicePaths(choice)
		consistent = c.check()
		if consistent {
			worklist = c.enqueueDestinations(choice, reached, worklist)
		}
		return true, consistent, worklist
	}
	return false, true, worklist
}

// loadUnsatCore decodes the solver's failed assumptions into the
// (choice, path) conflict set, discarding the hole-domain and
// twin-domain assertions.
func (c *Coloring) loadUnsatCore() {
	c.unsatCore = c.unsatCore[:0]
	for _, label := range c.sol.Why() {
		if pl, ok := label.(pathLabel); ok {
			c.unsatCore = append(c.unsatCore, ChoicePath(pl))
		}
	}
	c.log.Debugf("unsat core: %d choice-path pairs", len(c.unsatCore))
}

// harmonize asserts the harmonized variant of every core pair together
// with the harmonizing-selector domain and decodes the witness: the
// relaxation is a strict weakening of a conflict already found, so a
// remaining inconsistency is an internal error. The harmonizing hole's
// two options are returned in ascending order.
func (c *Coloring) harmonize(holeOptions [][]int) error {
	c.sol.Push()
	c.sol.Assert(c.harmDomain)
	for _, cp := range c.unsatCore {
		c.sol.Assert(c.harmAssert[cp.Choice][cp.Path])
	}
	if !c.check() {
		c.sol.Pop()
		return errors.New("coloring: harmonized unsat core is not satisfiable")
	}
	c.decodeAssignment(holeOptions)
	harmHole := c.sol.ValueOf(c.selector)
	primary := holeOptions[harmHole][0]
	twin := c.sol.ValueOf(c.twin[harmHole])
	if primary > twin {
		primary, twin = twin, primary
	}
	holeOptions[harmHole] = []int{primary, twin}
	c.sol.Pop()
	return nil
}

// decodeAssignment reads one option per hole from the current model.
func (c *Coloring) decodeAssignment(holeOptions [][]int) {
	for h := range holeOptions {
		holeOptions[h] = []int{c.sol.ValueOf(c.primary[h])}
	}
}
