// Package coloring decides which transition-system choices a controller
// family can realize and whether a concrete choice selection is
// consistent, explaining conflicts when it is not.
package coloring

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/synthesis-framework/treecolor/pkg/family"
	"github.com/synthesis-framework/treecolor/pkg/mdp"
	"github.com/synthesis-framework/treecolor/pkg/metrics"
	"github.com/synthesis-framework/treecolor/pkg/sat"
	"github.com/synthesis-framework/treecolor/pkg/tree"
)

// ChoicePath identifies one named (choice, path) assertion.
type ChoicePath struct {
	Choice int
	Path   int
}

type pathLabel ChoicePath

func (l pathLabel) String() string { return fmt.Sprintf("p%d_%d", l.Choice, l.Path) }

type holeDomainLabel int

func (l holeDomainLabel) String() string { return fmt.Sprintf("h%d", int(l)) }

type twinDomainLabel int

func (l twinDomainLabel) String() string { return fmt.Sprintf("z%d", int(l)) }

type internalLabel string

func (l internalLabel) String() string { return string(l) }

// Coloring precomputes, once per model, a named solver assertion for
// every (choice, tree-path) pair: the choice is realizable by a hole
// assignment iff, for every path the assignment follows from the choice's
// state, the path's action hole takes the choice's action. On top of
// these it answers the two questions of the synthesis loop: which choices
// a subfamily can reach and enable, and whether a selected set of choices
// is realizable by a single assignment.
//
// A Coloring owns its solver and caches; it must not be shared between
// goroutines.
type Coloring struct {
	ts  *mdp.TransitionSystem
	tr  *tree.Tree
	fam *family.Family

	sol      *sat.Solver
	primary  []sat.IntVar
	twin     []sat.IntVar
	selector sat.IntVar

	stateValuation [][]int
	pathActionHole []int

	pathGate   [][]sat.Lit
	pathAssert [][]sat.Assumption
	harmAssert [][]sat.Assumption
	harmDomain sat.Assumption
	famCache   map[sat.Lit]sat.Assumption

	statePathEnabled []*bitset.BitSet
	unsatCore        []ChoicePath

	singleCheck    bool
	checkFamily    bool
	checkScheduler bool
	timers         metrics.Timers
	log            *logrus.Entry
}

// Option configures a Coloring.
type Option func(*Coloring)

// SingleCheckOnly skips the harmonization tables. Construction gets
// cheaper, but consistency checks degenerate: AreChoicesConsistent
// reports every selection as inconsistent without analysis.
func SingleCheckOnly() Option {
	return func(c *Coloring) { c.singleCheck = true }
}

// WithFamilyConsistencyCheck verifies, at the start of every selection,
// that the subfamily's own domain encoding is satisfiable. An
// unsatisfiable subfamily indicates a caller bug and fails the call.
func WithFamilyConsistencyCheck() Option {
	return func(c *Coloring) { c.checkFamily = true }
}

// WithSchedulerConsistencyCheck re-verifies every selection under the
// solver: the selected choices must admit one simultaneous hole
// assignment.
func WithSchedulerConsistencyCheck() Option {
	return func(c *Coloring) { c.checkScheduler = true }
}

// WithTimers installs a profiling sink.
func WithTimers(t metrics.Timers) Option {
	return func(c *Coloring) { c.timers = t }
}

// WithLogger installs a logger entry.
func WithLogger(l *logrus.Entry) Option {
	return func(c *Coloring) { c.log = l }
}

// New builds the engine for the given transition system and tree. The
// tree's tracked variables must match the system's valuation width, and
// every state value must occur in its variable's declared domain.
func New(ts *mdp.TransitionSystem, tr *tree.Tree, opts ...Option) (*Coloring, error) {
	c := &Coloring{
		ts:       ts,
		tr:       tr,
		timers:   metrics.Noop{},
		log:      logrus.NewEntry(logrus.StandardLogger()),
		famCache: make(map[sat.Lit]sat.Assumption),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.timers.Start("coloring.build")
	defer c.timers.Stop("coloring.build")

	if tr.NumVariables() != ts.NumVariables() {
		return nil, errors.Errorf("coloring: tree tracks %d variables, system has %d", tr.NumVariables(), ts.NumVariables())
	}
	if tr.NumActions() != ts.NumActions {
		return nil, errors.Errorf("coloring: tree action universe %d, system has %d", tr.NumActions(), ts.NumActions)
	}

	c.stateValuation = make([][]int, ts.NumStates())
	for s := 0; s < ts.NumStates(); s++ {
		v, err := tr.ValuationOptions(ts.Valuations[s])
		if err != nil {
			return nil, errors.Wrapf(err, "coloring: state %d", s)
		}
		c.stateValuation[s] = v
	}

	c.fam = family.New(tr.Holes())
	c.sol = sat.New()
	numHoles := c.fam.NumHoles()
	c.primary = make([]sat.IntVar, numHoles)
	for h := 0; h < numHoles; h++ {
		c.primary[h] = c.sol.NewIntVar(c.fam.Hole(h).Size())
	}
	if !c.singleCheck {
		c.twin = make([]sat.IntVar, numHoles)
		for h := 0; h < numHoles; h++ {
			c.twin[h] = c.sol.NewIntVar(c.fam.Hole(h).Size())
		}
		c.selector = c.sol.NewIntVar(numHoles)
		sel := make([]sat.Lit, numHoles)
		for h := 0; h < numHoles; h++ {
			sel[h] = c.selector.Eq(h)
		}
		c.harmDomain = c.sol.Declare(c.sol.Or(sel...), internalLabel("harmonizing_domain"))
	}

	c.pathActionHole = make([]int, tr.NumPaths())
	for p := 0; p < tr.NumPaths(); p++ {
		c.pathActionHole[p] = tr.PathActionHole(p)
	}

	c.statePathEnabled = make([]*bitset.BitSet, ts.NumStates())
	for s := 0; s < ts.NumStates(); s++ {
		c.statePathEnabled[s] = bitset.New(uint(tr.NumPaths()))
	}

	c.buildAssertions()
	return c, nil
}

// buildAssertions grounds every path expression per choice. The ground
// expression of (choice, path) is a clause: either some step of the path
// is not followed (the step's decision hole picks an option branching the
// other way), or the path's action hole takes the choice's action. The
// harmonized variant weakens the clause by letting exactly one hole,
// picked by the selector, satisfy its step with its twin instead.
func (c *Coloring) buildAssertions() {
	numChoices := c.ts.NumChoices()
	numPaths := c.tr.NumPaths()
	paths := c.tr.Paths()

	c.pathGate = make([][]sat.Lit, numChoices)
	c.pathAssert = make([][]sat.Assumption, numChoices)
	if !c.singleCheck {
		c.harmAssert = make([][]sat.Assumption, numChoices)
	}

	var opts []int
	for s := 0; s < c.ts.NumStates(); s++ {
		valuation := c.stateValuation[s]
		for choice := c.ts.RowGroups[s]; choice < c.ts.RowGroups[s+1]; choice++ {
			action := c.ts.Actions[choice]
			gates := make([]sat.Lit, numPaths)
			asserts := make([]sat.Assumption, numPaths)
			var harms []sat.Assumption
			if !c.singleCheck {
				harms = make([]sat.Assumption, numPaths)
			}
			for p := 0; p < numPaths; p++ {
				path := paths[p]
				terminalEq := c.primary[path.Terminal].Eq(action)
				disjuncts := []sat.Lit{terminalEq}
				var variants []sat.Lit
				if !c.singleCheck {
					variants = []sat.Lit{
						c.sol.And(c.selector.Eq(path.Terminal), c.twin[path.Terminal].Eq(action)),
					}
				}
				for step, hole := range path.Nodes {
					opts = c.tr.StepOptions(p, step, valuation, false, opts[:0])
					if len(opts) == 0 {
						continue
					}
					disjuncts = append(disjuncts, c.sol.MemberOf(c.primary[hole], opts))
					if !c.singleCheck {
						variants = append(variants, c.sol.And(c.selector.Eq(hole), c.sol.MemberOf(c.twin[hole], opts)))
					}
				}
				gates[p] = c.sol.Or(disjuncts...)
				asserts[p] = c.sol.Declare(gates[p], pathLabel{Choice: choice, Path: p})
				if !c.singleCheck {
					variants = append(variants, gates[p])
					harms[p] = c.sol.Declare(c.sol.Or(variants...), pathLabel{Choice: choice, Path: p})
				}
			}
			c.pathGate[choice] = gates
			c.pathAssert[choice] = asserts
			if !c.singleCheck {
				c.harmAssert[choice] = harms
			}
		}
	}
}

// assertFamily asserts, in the innermost scope, the subfamily's domain
// restriction for every primary hole variable and, when twins is set, for
// every harmonizing twin.
func (c *Coloring) assertFamily(f *family.Family, twins bool) {
	for h := 0; h < f.NumHoles(); h++ {
		opts := f.HoleOptions(h)
		c.assertCached(c.sol.MemberOf(c.primary[h], opts), holeDomainLabel(h))
		if twins && !c.singleCheck {
			c.assertCached(c.sol.MemberOf(c.twin[h], opts), twinDomainLabel(h))
		}
	}
}

// assertCached reuses the assumption handle of a previously declared
// gate; identical domain restrictions recur across calls and the circuit
// hash-conses their gates.
func (c *Coloring) assertCached(gate sat.Lit, label sat.Label) {
	a, ok := c.famCache[gate]
	if !ok {
		a = c.sol.Declare(gate, label)
		c.famCache[gate] = a
	}
	c.sol.Assert(a)
}

func (c *Coloring) check() bool {
	c.timers.Start("solver.check")
	defer c.timers.Stop("solver.check")
	return c.sol.Check()
}

// HoleInfo describes one hole of the family template.
type HoleInfo struct {
	Index  int
	Name   string
	Domain string
}

// FamilyInfo returns, per hole, its index, name and full-domain
// description.
func (c *Coloring) FamilyInfo() []HoleInfo {
	info := make([]HoleInfo, c.fam.NumHoles())
	for h := range info {
		info[h] = HoleInfo{
			Index:  h,
			Name:   c.fam.Hole(h).Name,
			Domain: c.fam.HoleString(h),
		}
	}
	return info
}

// Family returns the engine's full family template. Callers refine copies
// of it; the template itself is never narrowed.
func (c *Coloring) Family() *family.Family { return c.fam }

// UnsatCore returns the (choice, path) conflict set extracted by the most
// recent inconsistent check, usable as a hint for subsequent checks.
func (c *Coloring) UnsatCore() []ChoicePath {
	out := make([]ChoicePath, len(c.unsatCore))
	copy(out, c.unsatCore)
	return out
}
