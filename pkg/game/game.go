// Package game evaluates reachability objectives on a transition system
// restricted to a set of enabled choices, by value iteration, and
// extracts memoryless schedulers. It is the oracle consulted by the
// synthesis loop; the coloring engine itself never depends on it.
package game

import (
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"

	"github.com/synthesis-framework/treecolor/pkg/mdp"
)

// Objective is a reachability query. Target states are treated as
// absorbing with value one. When Coalition is non-nil, only its states
// optimize in the objective's direction; the remaining states belong to
// the opponent and optimize against it. StepBound zero means unbounded.
type Objective struct {
	Target    *bitset.BitSet
	Maximize  bool
	StepBound int
	Coalition *bitset.BitSet
}

// Result holds per-state optimal values and an optimizing choice per
// state (-1 where no choice is enabled or the state is a target).
type Result struct {
	Values    []float64
	Scheduler []int
}

type config struct {
	precision     float64
	maxIterations int
}

// Option tunes the iteration.
type Option func(*config)

// WithPrecision sets the convergence threshold for unbounded queries.
func WithPrecision(eps float64) Option {
	return func(c *config) { c.precision = eps }
}

// WithMaxIterations bounds the number of sweeps of an unbounded query.
func WithMaxIterations(n int) Option {
	return func(c *config) { c.maxIterations = n }
}

// Solve computes the optimal reachability probability of the objective
// for every state, over the choices enabled in the selection (nil
// enables all).
func Solve(ts *mdp.TransitionSystem, enabled *bitset.BitSet, obj Objective, opts ...Option) (Result, error) {
	cfg := config{precision: 1e-8, maxIterations: 100000}
	for _, opt := range opts {
		opt(&cfg)
	}
	if obj.Target == nil {
		return Result{}, errors.New("game: objective has no target set")
	}

	n := ts.NumStates()
	values := make([]float64, n)
	for s, ok := obj.Target.NextSet(0); ok; s, ok = obj.Target.NextSet(s + 1) {
		if int(s) >= n {
			break
		}
		values[s] = 1
	}

	sweeps := cfg.maxIterations
	if obj.StepBound > 0 {
		sweeps = obj.StepBound
	}
	next := make([]float64, n)
	for it := 0; it < sweeps; it++ {
		diff := sweep(ts, enabled, obj, values, next, nil)
		values, next = next, values
		if obj.StepBound == 0 && diff < cfg.precision {
			break
		}
	}

	scheduler := make([]int, n)
	sweep(ts, enabled, obj, values, next, scheduler)
	return Result{Values: values, Scheduler: scheduler}, nil
}

// Next computes the one-step probability of entering the target.
func Next(ts *mdp.TransitionSystem, enabled *bitset.BitSet, obj Objective) (Result, error) {
	bounded := obj
	bounded.StepBound = 1
	return Solve(ts, enabled, bounded)
}

// Globally computes the probability of staying inside safe forever, as
// the complement of reaching its complement with the opposite optimum.
func Globally(ts *mdp.TransitionSystem, enabled *bitset.BitSet, safe *bitset.BitSet, maximize bool, opts ...Option) (Result, error) {
	unsafe := bitset.New(uint(ts.NumStates()))
	unsafe.FlipRange(0, uint(ts.NumStates()))
	unsafe.InPlaceDifference(safe)
	res, err := Solve(ts, enabled, Objective{Target: unsafe, Maximize: !maximize}, opts...)
	if err != nil {
		return res, err
	}
	for s := range res.Values {
		res.Values[s] = 1 - res.Values[s]
	}
	return res, nil
}

// sweep performs one Bellman update of every non-target state, returning
// the largest per-state change. When scheduler is non-nil it records the
// optimizing choice instead.
func sweep(ts *mdp.TransitionSystem, enabled *bitset.BitSet, obj Objective, values, next []float64, scheduler []int) float64 {
	diff := 0.0
	for state := 0; state < ts.NumStates(); state++ {
		if scheduler != nil {
			scheduler[state] = -1
		}
		if obj.Target.Test(uint(state)) {
			next[state] = 1
			continue
		}
		maximize := obj.Maximize
		if obj.Coalition != nil && !obj.Coalition.Test(uint(state)) {
			maximize = !maximize
		}
		best := math.NaN()
		bestChoice := -1
		for choice := ts.RowGroups[state]; choice < ts.RowGroups[state+1]; choice++ {
			if enabled != nil && !enabled.Test(uint(choice)) {
				continue
			}
			v := 0.0
			for _, b := range ts.Branches[choice] {
				v += b.Prob * values[b.Dst]
			}
			if bestChoice == -1 || (maximize && v > best) || (!maximize && v < best) {
				best = v
				bestChoice = choice
			}
		}
		if bestChoice == -1 {
			next[state] = 0
			continue
		}
		next[state] = best
		if scheduler != nil {
			scheduler[state] = bestChoice
		}
		if d := math.Abs(best - values[state]); d > diff {
			diff = d
		}
	}
	return diff
}
