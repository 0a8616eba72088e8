package coloring

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"

	"github.com/synthesis-framework/treecolor/pkg/family"
	"github.com/synthesis-framework/treecolor/pkg/sat"
)

// SelectCompatibleChoices returns the choices compatible with the
// subfamily, considering every choice of the system.
func (c *Coloring) SelectCompatibleChoices(subfamily *family.Family) (*bitset.BitSet, error) {
	base := bitset.New(uint(c.ts.NumChoices()))
	base.FlipRange(0, uint(c.ts.NumChoices()))
	return c.SelectCompatibleChoicesFrom(subfamily, base)
}

// SelectCompatibleChoicesFrom returns the subset of base choices that
// some member of the subfamily reaches and enables: a breadth-first
// traversal from the initial state in which a choice is selected iff some
// path enabled at its state terminates in an action hole admitting the
// choice's action.
//
// A state with no selected choice ends the traversal in one of two ways.
// If the subfamily is an assignment, the last choice of the state's range
// is selected as the designated fallback and exploration continues. For
// any other subfamily the whole selection is abandoned and an empty set
// is returned: the subfamily cannot realize a total scheduler.
//
// As a side effect the per-state enabled-path cache consumed by the
// consistency checks is refreshed for every visited state.
func (c *Coloring) SelectCompatibleChoicesFrom(subfamily *family.Family, base *bitset.BitSet) (*bitset.BitSet, error) {
	c.timers.Start("selectCompatibleChoices")
	defer c.timers.Stop("selectCompatibleChoices")

	if c.checkFamily {
		c.sol.Push()
		c.assertFamily(subfamily, false)
		familySat := c.check()
		c.sol.Pop()
		if !familySat {
			return nil, errors.New("coloring: subfamily encoding is unsatisfiable")
		}
	}

	numChoices := uint(c.ts.NumChoices())
	selection := bitset.New(numChoices)
	reached := bitset.New(uint(c.ts.NumStates()))
	reached.Set(uint(c.ts.InitialState))
	worklist := []int{c.ts.InitialState}

	for len(worklist) > 0 {
		state := worklist[0]
		worklist = worklist[1:]

		enabled := c.statePathEnabled[state]
		enabled.ClearAll()
		for p := 0; p < c.tr.NumPaths(); p++ {
			if c.tr.IsPathEnabled(p, subfamily, c.stateValuation[state]) {
				enabled.Set(uint(p))
			}
		}

		anyChoice := false
		for choice := c.ts.RowGroups[state]; choice < c.ts.RowGroups[state+1]; choice++ {
			if !base.Test(uint(choice)) {
				continue
			}
			for p, ok := enabled.NextSet(0); ok; p, ok = enabled.NextSet(p + 1) {
				if subfamily.HoleContains(c.pathActionHole[p], c.ts.Actions[choice]) {
					selection.Set(uint(choice))
					anyChoice = true
					worklist = c.enqueueDestinations(choice, reached, worklist)
					break
				}
			}
		}
		if !anyChoice {
			if !subfamily.IsAssignment() {
				return bitset.New(numChoices), nil
			}
			// Deterministic synthesis is expected to enable something
			// everywhere; fall back to the last choice of the range, the
			// designated default action.
			choice := c.ts.RowGroups[state+1] - 1
			selection.Set(uint(choice))
			worklist = c.enqueueDestinations(choice, reached, worklist)
		}
	}

	if c.checkScheduler {
		ok, err := c.verifySchedulerExists(subfamily, selection, reached)
		if err != nil {
			return nil, err
		}
		if !ok {
			c.log.Warn("selected choices admit no consistent scheduler, clearing selection")
			return bitset.New(numChoices), nil
		}
	}
	return selection, nil
}

func (c *Coloring) enqueueDestinations(choice int, reached *bitset.BitSet, worklist []int) []int {
	for _, b := range c.ts.Branches[choice] {
		if !reached.Test(uint(b.Dst)) {
			reached.Set(uint(b.Dst))
			worklist = append(worklist, b.Dst)
		}
	}
	return worklist
}

// verifySchedulerExists re-checks a structural selection under the
// solver: some single hole assignment must, in every reached state, make
// all path assertions of at least one selected choice hold.
func (c *Coloring) verifySchedulerExists(subfamily *family.Family, selection, reached *bitset.BitSet) (bool, error) {
	c.sol.Push()
	defer c.sol.Pop()
	c.assertFamily(subfamily, false)
	for s, ok := reached.NextSet(0); ok; s, ok = reached.NextSet(s + 1) {
		state := int(s)
		var perChoice []sat.Lit
		for choice := c.ts.RowGroups[state]; choice < c.ts.RowGroups[state+1]; choice++ {
			if !selection.Test(uint(choice)) {
				continue
			}
			enabled := c.statePathEnabled[state]
			var conj []sat.Lit
			for p, okp := enabled.NextSet(0); okp; p, okp = enabled.NextSet(p + 1) {
				conj = append(conj, c.pathGate[choice][p])
			}
			perChoice = append(perChoice, c.sol.And(conj...))
		}
		c.assertCached(c.sol.Or(perChoice...), internalLabel("scheduler"))
	}
	if c.check() {
		return true, nil
	}
	if subfamily.IsAssignment() {
		return false, errors.New("coloring: hole assignment does not induce a deterministic controller")
	}
	return false, nil
}
