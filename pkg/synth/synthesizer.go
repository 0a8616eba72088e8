// Package synth drives abstraction-refinement synthesis over controller
// families: the coloring engine proposes the choices a subfamily can
// realize, the game oracle scores the resulting abstraction, and
// consistency conflicts split subfamilies until an acceptable assignment
// emerges.
package synth

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/synthesis-framework/treecolor/pkg/coloring"
	"github.com/synthesis-framework/treecolor/pkg/family"
	"github.com/synthesis-framework/treecolor/pkg/game"
	"github.com/synthesis-framework/treecolor/pkg/mdp"
)

// Specification is the synthesis objective: optimize the probability of
// reaching Target and accept any assignment whose induced value passes
// Threshold (at least Threshold when maximizing, at most when
// minimizing).
type Specification struct {
	Target    *bitset.BitSet
	Maximize  bool
	Threshold float64
}

// Synthesizer explores a family depth-first.
type Synthesizer struct {
	col  *coloring.Coloring
	ts   *mdp.TransitionSystem
	spec Specification
	log  *logrus.Entry

	// exploration statistics
	Explored int
	Pruned   int
}

// New returns a synthesizer over the coloring engine's family template.
func New(col *coloring.Coloring, ts *mdp.TransitionSystem, spec Specification) *Synthesizer {
	return &Synthesizer{
		col:  col,
		ts:   ts,
		spec: spec,
		log:  logrus.NewEntry(logrus.StandardLogger()),
	}
}

func (s *Synthesizer) accepts(value float64) bool {
	if s.spec.Maximize {
		return value >= s.spec.Threshold
	}
	return value <= s.spec.Threshold
}

// bound computes the abstraction of a subfamily: optimizing over all
// compatible choices at once relaxes the one-assignment restriction, so
// the initial-state value bounds every member's value from the accepting
// side.
func (s *Synthesizer) bound(choices *bitset.BitSet) (game.Result, float64, error) {
	res, err := game.Solve(s.ts, choices, game.Objective{Target: s.spec.Target, Maximize: s.spec.Maximize})
	if err != nil {
		return res, 0, err
	}
	return res, res.Values[s.ts.InitialState], nil
}

// Run returns the first assignment meeting the specification, or nil
// when the family contains none.
func (s *Synthesizer) Run() (*family.Family, error) {
	worklist := []*family.Family{s.col.Family().Copy()}
	for len(worklist) > 0 {
		fam := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		s.Explored++

		choices, err := s.col.SelectCompatibleChoices(fam)
		if err != nil {
			return nil, err
		}
		if choices.None() {
			s.Pruned++
			continue
		}

		res, value, err := s.bound(choices)
		if err != nil {
			return nil, err
		}
		if !s.accepts(value) {
			// No member can beat the abstraction.
			s.Pruned++
			continue
		}

		if fam.IsAssignment() {
			s.log.Debugf("accepting assignment %s with value %v", fam, value)
			return fam, nil
		}

		schedChoices := schedulerChoices(s.ts, res.Scheduler, choices)
		cres, err := s.col.AreChoicesConsistent(schedChoices, fam)
		if err != nil {
			return nil, err
		}
		if cres.Consistent {
			assignment := fam.Copy()
			for h, opts := range cres.HoleOptions {
				assignment = assignment.AssumeOptions(h, opts[:1])
			}
			induced, err := s.col.SelectCompatibleChoices(assignment)
			if err != nil {
				return nil, err
			}
			_, inducedValue, err := s.bound(induced)
			if err != nil {
				return nil, err
			}
			if s.accepts(inducedValue) {
				s.log.Debugf("accepting assignment %s with value %v", assignment, inducedValue)
				return assignment, nil
			}
			// The oracle's scheduler need not attain the abstraction bound:
			// value iteration can break ties into a zero-progress loop whose
			// choices look optimal against the converged values. The failing
			// assignment therefore rules out nothing; keep searching.
			left, right := splitAny(fam)
			worklist = append(worklist, right, left)
			continue
		}

		left, right, err := split(fam, cres.HoleOptions)
		if err != nil {
			return nil, err
		}
		worklist = append(worklist, right, left)
	}
	return nil, nil
}

// schedulerChoices collects the oracle's choice per state, restricted to
// the compatible selection.
func schedulerChoices(ts *mdp.TransitionSystem, scheduler []int, compatible *bitset.BitSet) *bitset.BitSet {
	out := bitset.New(uint(ts.NumChoices()))
	for _, choice := range scheduler {
		if choice >= 0 && compatible.Test(uint(choice)) {
			out.Set(uint(choice))
		}
	}
	return out
}

// splitAny partitions the subfamily on its widest hole at the median
// admitted option. Callers guarantee the subfamily is not an
// assignment.
func splitAny(fam *family.Family) (*family.Family, *family.Family) {
	widest, size := -1, 1
	for h := 0; h < fam.NumHoles(); h++ {
		if s := fam.HoleSize(h); s > size {
			widest, size = h, s
		}
	}
	opts := fam.HoleOptions(widest)
	mid := len(opts) / 2
	return fam.AssumeOptions(widest, opts[:mid]), fam.AssumeOptions(widest, opts[mid:])
}

// split partitions the subfamily on the conflict's harmonizing hole, the
// one offering two alternative options: the lower option and everything
// below it on one side, the rest on the other.
func split(fam *family.Family, holeOptions [][]int) (*family.Family, *family.Family, error) {
	for h, opts := range holeOptions {
		if len(opts) != 2 {
			continue
		}
		admitted := fam.HoleOptions(h)
		var low, high []int
		for _, o := range admitted {
			if o <= opts[0] {
				low = append(low, o)
			} else {
				high = append(high, o)
			}
		}
		if len(low) == 0 || len(high) == 0 {
			return nil, nil, errors.Errorf("synth: conflict options %v do not split hole %d over %v", opts, h, admitted)
		}
		return fam.AssumeOptions(h, low), fam.AssumeOptions(h, high), nil
	}
	return nil, nil, errors.New("synth: conflict names no harmonizing hole")
}
