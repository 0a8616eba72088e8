package synth

import (
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthesis-framework/treecolor/pkg/coloring"
	"github.com/synthesis-framework/treecolor/pkg/family"
	"github.com/synthesis-framework/treecolor/pkg/mdp"
	"github.com/synthesis-framework/treecolor/pkg/tree"
)

func flatTree(t *testing.T, numActions int) *tree.Tree {
	t.Helper()
	tr, err := tree.New(
		[]tree.Variable{{Name: "x", Domain: []int64{0, 1}}},
		[][3]int{{1, 1, 1}},
		numActions,
	)
	require.NoError(t, err)
	return tr
}

func target(n uint, members ...uint) *bitset.BitSet {
	bs := bitset.New(n)
	for _, m := range members {
		bs.Set(m)
	}
	return bs
}

func newSynthesizer(t *testing.T, ts *mdp.TransitionSystem, tr *tree.Tree, spec Specification) *Synthesizer {
	t.Helper()
	col, err := coloring.New(ts, tr)
	require.NoError(t, err)
	return New(col, ts, spec)
}

// TestRunAcceptsConsistentScheduler covers the direct path: the
// abstraction's optimal scheduler is realizable and already meets the
// threshold.
func TestRunAcceptsConsistentScheduler(t *testing.T) {
	// Action 0 advances toward state 1 from anywhere, action 1 retreats.
	ts, err := mdp.New(
		[]int{0, 2, 4},
		[][]mdp.Branch{
			{{Dst: 1, Prob: 1}},
			{{Dst: 0, Prob: 1}},
			{{Dst: 1, Prob: 1}},
			{{Dst: 0, Prob: 1}},
		},
		[]int{0, 1, 0, 1},
		2, 0,
		[][]int64{{0}, {1}},
	)
	require.NoError(t, err)
	s := newSynthesizer(t, ts, flatTree(t, 2), Specification{
		Target:    target(2, 1),
		Maximize:  true,
		Threshold: 0.5,
	})

	assignment, err := s.Run()
	require.NoError(t, err)
	require.NotNil(t, assignment)
	assert.True(t, assignment.IsAssignment())
	assert.Equal(t, []int{0}, assignment.HoleOptions(0))
}

// TestRunSplitsOnConflict drives the synthesizer through a genuine
// consistency conflict: the oracle wants action 0 in the initial state
// and action 1 one step later, which the single shared action hole
// cannot provide. Only the action-1 branch of the split reaches the
// target.
func TestRunSplitsOnConflict(t *testing.T) {
	ts, err := mdp.New(
		[]int{0, 2, 4, 6, 7},
		[][]mdp.Branch{
			{{Dst: 1, Prob: 1}},
			{{Dst: 2, Prob: 1}},
			{{Dst: 3, Prob: 1}},
			{{Dst: 1, Prob: 1}},
			{{Dst: 3, Prob: 1}},
			{{Dst: 3, Prob: 1}},
			{{Dst: 3, Prob: 1}},
		},
		[]int{0, 1, 1, 0, 0, 1, 0},
		2, 0,
		[][]int64{{0}, {1}, {0}, {1}},
	)
	require.NoError(t, err)
	s := newSynthesizer(t, ts, flatTree(t, 2), Specification{
		Target:    target(4, 3),
		Maximize:  true,
		Threshold: 0.5,
	})

	assignment, err := s.Run()
	require.NoError(t, err)
	require.NotNil(t, assignment)
	assert.Equal(t, []int{1}, assignment.HoleOptions(0))
	assert.Equal(t, 3, s.Explored, "the full family and both split halves")
	assert.Equal(t, 1, s.Pruned, "the action-0 half cannot reach the target")
}

// TestRunSplitsWhenSchedulerMissesBound covers the oracle's blind spot:
// at state 3 value iteration may pick the self-loop, whose converged
// value ties with the productive choice. The realized assignment then
// scores zero and the synthesizer must keep searching instead of
// pruning.
func TestRunSplitsWhenSchedulerMissesBound(t *testing.T) {
	ts, err := mdp.New(
		[]int{0, 2, 4, 5, 7},
		[][]mdp.Branch{
			{{Dst: 1, Prob: 1}},
			{{Dst: 3, Prob: 1}},
			{{Dst: 3, Prob: 1}},
			{{Dst: 2, Prob: 1}},
			{{Dst: 2, Prob: 1}},
			{{Dst: 3, Prob: 1}},
			{{Dst: 2, Prob: 1}},
		},
		[]int{0, 1, 0, 1, 0, 0, 1},
		2, 0,
		[][]int64{{0}, {1}, {0}, {1}},
	)
	require.NoError(t, err)
	s := newSynthesizer(t, ts, flatTree(t, 2), Specification{
		Target:    target(4, 2),
		Maximize:  true,
		Threshold: 0.5,
	})

	assignment, err := s.Run()
	require.NoError(t, err)
	require.NotNil(t, assignment)
	assert.Equal(t, []int{1}, assignment.HoleOptions(0))
}

func TestRunPrunesUnattainableThreshold(t *testing.T) {
	ts, err := mdp.New(
		[]int{0, 2, 4},
		[][]mdp.Branch{
			{{Dst: 1, Prob: 1}},
			{{Dst: 0, Prob: 1}},
			{{Dst: 1, Prob: 1}},
			{{Dst: 0, Prob: 1}},
		},
		[]int{0, 1, 0, 1},
		2, 0,
		[][]int64{{0}, {1}},
	)
	require.NoError(t, err)
	s := newSynthesizer(t, ts, flatTree(t, 2), Specification{
		Target:    target(2, 1),
		Maximize:  true,
		Threshold: 1.5,
	})

	assignment, err := s.Run()
	require.NoError(t, err)
	assert.Nil(t, assignment)
	assert.Equal(t, 1, s.Explored)
	assert.Equal(t, 1, s.Pruned)
}

func TestRunMinimizing(t *testing.T) {
	// Minimize the probability of falling back to state 0; action 0 stays
	// at the target-free side only through the self-loop at state 1.
	ts, err := mdp.New(
		[]int{0, 2, 4},
		[][]mdp.Branch{
			{{Dst: 1, Prob: 1}},
			{{Dst: 0, Prob: 1}},
			{{Dst: 1, Prob: 1}},
			{{Dst: 0, Prob: 1}},
		},
		[]int{0, 1, 0, 1},
		2, 0,
		[][]int64{{0}, {1}},
	)
	require.NoError(t, err)
	s := newSynthesizer(t, ts, flatTree(t, 2), Specification{
		Target:    target(2, 0),
		Maximize:  false,
		Threshold: 0.0,
	})

	// State 0 is the target itself, so its value is one under any
	// scheduler and no assignment meets a zero threshold.
	assignment, err := s.Run()
	require.NoError(t, err)
	assert.Nil(t, assignment)
}

func TestSplitAny(t *testing.T) {
	holes := []family.Hole{
		{Name: "A0", Kind: family.Action, Labels: []string{"act_0", "act_1"}},
		{Name: "A1", Kind: family.Action, Labels: []string{"act_0", "act_1", "act_2", "act_3"}},
	}
	fam := family.New(holes)

	left, right := splitAny(fam)
	assert.Equal(t, []int{0, 1}, left.HoleOptions(1))
	assert.Equal(t, []int{2, 3}, right.HoleOptions(1))
	assert.Equal(t, []int{0, 1}, left.HoleOptions(0), "the narrower hole is untouched")
}

func TestSplitOnConflictOptions(t *testing.T) {
	holes := []family.Hole{
		{Name: "A0", Kind: family.Action, Labels: []string{"act_0", "act_1", "act_2"}},
	}
	fam := family.New(holes)

	left, right, err := split(fam, [][]int{{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, left.HoleOptions(0))
	assert.Equal(t, []int{2}, right.HoleOptions(0))

	narrowLeft, narrowRight, err := split(fam.AssumeOptions(0, []int{1, 2}), [][]int{{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, narrowLeft.HoleOptions(0))
	assert.Equal(t, []int{2}, narrowRight.HoleOptions(0))

	_, _, err = split(fam, [][]int{{0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no harmonizing hole")
}
