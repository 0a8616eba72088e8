// Package mdp holds the explicit-state nondeterministic transition
// systems that controller families are synthesized against.
package mdp

import (
	"math"

	"github.com/pkg/errors"
)

const probabilityTolerance = 1e-6

// Branch is one probabilistic successor of a choice.
type Branch struct {
	Dst  int
	Prob float64
}

// TransitionSystem is an explicit-state MDP. Every state owns the
// half-open choice range [RowGroups[s], RowGroups[s+1]); every choice
// carries an action label and a distribution over successor states.
// Valuations give, per state, the concrete value of every tracked program
// variable. Immutable once built.
type TransitionSystem struct {
	RowGroups    []int
	Branches     [][]Branch
	Actions      []int
	NumActions   int
	InitialState int
	Valuations   [][]int64

	choiceToState []int
}

// New validates the given components and returns the assembled system.
func New(rowGroups []int, branches [][]Branch, actions []int, numActions, initialState int, valuations [][]int64) (*TransitionSystem, error) {
	ts := &TransitionSystem{
		RowGroups:    rowGroups,
		Branches:     branches,
		Actions:      actions,
		NumActions:   numActions,
		InitialState: initialState,
		Valuations:   valuations,
	}
	if err := ts.validate(); err != nil {
		return nil, err
	}
	ts.choiceToState = make([]int, ts.NumChoices())
	for s := 0; s < ts.NumStates(); s++ {
		for c := rowGroups[s]; c < rowGroups[s+1]; c++ {
			ts.choiceToState[c] = s
		}
	}
	return ts, nil
}

func (ts *TransitionSystem) validate() error {
	if len(ts.RowGroups) < 2 {
		return errors.New("mdp: system must have at least one state")
	}
	if ts.RowGroups[0] != 0 {
		return errors.New("mdp: row groups must start at zero")
	}
	numStates := len(ts.RowGroups) - 1
	for s := 0; s < numStates; s++ {
		if ts.RowGroups[s+1] <= ts.RowGroups[s] {
			return errors.Errorf("mdp: state %d has no choices", s)
		}
	}
	numChoices := ts.RowGroups[numStates]
	if len(ts.Branches) != numChoices {
		return errors.Errorf("mdp: %d branch lists for %d choices", len(ts.Branches), numChoices)
	}
	if len(ts.Actions) != numChoices {
		return errors.Errorf("mdp: %d action labels for %d choices", len(ts.Actions), numChoices)
	}
	for c := 0; c < numChoices; c++ {
		if ts.Actions[c] < 0 || ts.Actions[c] >= ts.NumActions {
			return errors.Errorf("mdp: choice %d has action label %d outside [0,%d)", c, ts.Actions[c], ts.NumActions)
		}
		if len(ts.Branches[c]) == 0 {
			return errors.Errorf("mdp: choice %d has no branches", c)
		}
		total := 0.0
		for _, b := range ts.Branches[c] {
			if b.Dst < 0 || b.Dst >= numStates {
				return errors.Errorf("mdp: choice %d targets unknown state %d", c, b.Dst)
			}
			if b.Prob <= 0 || b.Prob > 1 {
				return errors.Errorf("mdp: choice %d has branch probability %v", c, b.Prob)
			}
			total += b.Prob
		}
		if math.Abs(total-1) > probabilityTolerance {
			return errors.Errorf("mdp: branch probabilities of choice %d sum to %v", c, total)
		}
	}
	if ts.InitialState < 0 || ts.InitialState >= numStates {
		return errors.Errorf("mdp: initial state %d out of range", ts.InitialState)
	}
	if len(ts.Valuations) != numStates {
		return errors.Errorf("mdp: %d valuations for %d states", len(ts.Valuations), numStates)
	}
	width := len(ts.Valuations[0])
	for s, v := range ts.Valuations {
		if len(v) != width {
			return errors.Errorf("mdp: valuation of state %d has %d variables, expected %d", s, len(v), width)
		}
	}
	return nil
}

// NumStates returns the number of states.
func (ts *TransitionSystem) NumStates() int { return len(ts.RowGroups) - 1 }

// NumChoices returns the total number of choices over all states.
func (ts *TransitionSystem) NumChoices() int { return ts.RowGroups[len(ts.RowGroups)-1] }

// NumVariables returns the number of tracked program variables.
func (ts *TransitionSystem) NumVariables() int { return len(ts.Valuations[0]) }

// ChoiceToState returns the state owning the choice.
func (ts *TransitionSystem) ChoiceToState(choice int) int { return ts.choiceToState[choice] }
