package game

import (
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthesis-framework/treecolor/pkg/mdp"
)

// chainSystem: state 0 either advances to state 1 or loops; state 1
// advances to the absorbing state 2.
func chainSystem(t *testing.T) *mdp.TransitionSystem {
	t.Helper()
	ts, err := mdp.New(
		[]int{0, 2, 3, 4},
		[][]mdp.Branch{
			{{Dst: 1, Prob: 1}},
			{{Dst: 0, Prob: 1}},
			{{Dst: 2, Prob: 1}},
			{{Dst: 2, Prob: 1}},
		},
		[]int{0, 1, 0, 0},
		2, 0,
		[][]int64{{0}, {1}, {2}},
	)
	require.NoError(t, err)
	return ts
}

func states(members ...uint) *bitset.BitSet {
	bs := bitset.New(8)
	for _, m := range members {
		bs.Set(m)
	}
	return bs
}

func TestSolveReachability(t *testing.T) {
	ts := chainSystem(t)

	maxRes, err := Solve(ts, nil, Objective{Target: states(2), Maximize: true})
	require.NoError(t, err)
	assert.InDelta(t, 1, maxRes.Values[0], 1e-6)
	assert.InDelta(t, 1, maxRes.Values[1], 1e-6)
	assert.InDelta(t, 1, maxRes.Values[2], 1e-6)
	assert.Equal(t, 0, maxRes.Scheduler[0], "ties break toward the first choice")
	assert.Equal(t, 2, maxRes.Scheduler[1])
	assert.Equal(t, -1, maxRes.Scheduler[2], "target states carry no scheduler choice")

	minRes, err := Solve(ts, nil, Objective{Target: states(2), Maximize: false})
	require.NoError(t, err)
	assert.InDelta(t, 0, minRes.Values[0], 1e-6, "looping forever avoids the target")
	assert.InDelta(t, 1, minRes.Values[1], 1e-6)
	assert.Equal(t, 1, minRes.Scheduler[0])
}

func TestSolveRespectsEnabledChoices(t *testing.T) {
	ts := chainSystem(t)

	enabled := bitset.New(4)
	enabled.Set(0)
	enabled.Set(2)
	enabled.Set(3)
	res, err := Solve(ts, enabled, Objective{Target: states(2), Maximize: false})
	require.NoError(t, err)
	assert.InDelta(t, 1, res.Values[0], 1e-6, "with the loop disabled even the minimizer reaches the target")

	none := bitset.New(4)
	res, err = Solve(ts, none, Objective{Target: states(2), Maximize: true})
	require.NoError(t, err)
	assert.InDelta(t, 0, res.Values[0], 1e-6)
	assert.Equal(t, -1, res.Scheduler[0])
}

func TestSolveProbabilisticBranching(t *testing.T) {
	ts, err := mdp.New(
		[]int{0, 1, 2, 3},
		[][]mdp.Branch{
			{{Dst: 1, Prob: 0.25}, {Dst: 2, Prob: 0.75}},
			{{Dst: 1, Prob: 1}},
			{{Dst: 2, Prob: 1}},
		},
		[]int{0, 0, 0},
		1, 0,
		[][]int64{{0}, {1}, {2}},
	)
	require.NoError(t, err)

	res, err := Solve(ts, nil, Objective{Target: states(1), Maximize: true})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, res.Values[0], 1e-6)
}

func TestSolveStepBounded(t *testing.T) {
	ts := chainSystem(t)

	res, err := Solve(ts, nil, Objective{Target: states(2), Maximize: true, StepBound: 1})
	require.NoError(t, err)
	assert.InDelta(t, 0, res.Values[0], 1e-9, "the target is two steps away")
	assert.InDelta(t, 1, res.Values[1], 1e-9)

	res, err = Solve(ts, nil, Objective{Target: states(2), Maximize: true, StepBound: 2})
	require.NoError(t, err)
	assert.InDelta(t, 1, res.Values[0], 1e-9)
}

func TestNext(t *testing.T) {
	ts := chainSystem(t)
	res, err := Next(ts, nil, Objective{Target: states(1), Maximize: true})
	require.NoError(t, err)
	assert.InDelta(t, 1, res.Values[0], 1e-9)
	assert.InDelta(t, 0, res.Values[2], 1e-9)
}

func TestGlobally(t *testing.T) {
	ts := chainSystem(t)

	res, err := Globally(ts, nil, states(0), true)
	require.NoError(t, err)
	assert.InDelta(t, 1, res.Values[0], 1e-6, "the loop keeps state 0 safe forever")

	res, err = Globally(ts, nil, states(0), false)
	require.NoError(t, err)
	assert.InDelta(t, 0, res.Values[0], 1e-6)
}

func TestCoalitionFlipsOpponentStates(t *testing.T) {
	ts := chainSystem(t)

	// State 0 belongs to the opponent of a maximizing coalition, so it
	// minimizes and avoids the target.
	res, err := Solve(ts, nil, Objective{Target: states(2), Maximize: true, Coalition: states(1)})
	require.NoError(t, err)
	assert.InDelta(t, 0, res.Values[0], 1e-6)
	assert.InDelta(t, 1, res.Values[1], 1e-6)
}

func TestSolveRequiresTarget(t *testing.T) {
	_, err := Solve(chainSystem(t), nil, Objective{Maximize: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no target")
}
