// Package tree models the decision trees whose symbolic holes span a
// controller family: inner nodes hold decision holes choosing a splitting
// predicate over a tracked variable, terminal nodes hold action holes.
package tree

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/synthesis-framework/treecolor/pkg/family"
)

// Variable is a tracked program variable with its declared value domain.
// Domains must be listed in ascending order; state valuations refer to
// values by their index in Domain.
type Variable struct {
	Name   string
	Domain []int64
}

// Predicate is one splitting predicate available to every decision hole:
// "Var <= Domain[Var][Bound]". Predicate indices double as decision-hole
// option indices.
type Predicate struct {
	Var   int
	Bound int
}

type nodeKind uint8

const (
	inner nodeKind = iota
	terminal
)

type node struct {
	parent int
	left   int
	right  int
	kind   nodeKind
}

// Path is a root-to-leaf route: the inner nodes visited, the branch
// direction taken at each (true for the true-branch), and the terminal
// node reached. The terminal node index is also the path's action hole.
type Path struct {
	Nodes      []int
	Directions []bool
	Terminal   int
}

// Tree is a decision-tree topology. Node 0 is the root; every node owns
// exactly one hole carrying the node's index.
type Tree struct {
	vars       []Variable
	preds      []Predicate
	nodes      []node
	paths      []Path
	numActions int
}

// New builds a tree from (parent, childTrue, childFalse) triples, where
// len(triples) is the sentinel for "no child". Terminal nodes have both
// children set to the sentinel; a node with exactly one sentinel child is
// malformed. numActions is the size of the action label universe.
func New(vars []Variable, triples [][3]int, numActions int) (*Tree, error) {
	if len(triples) == 0 {
		return nil, errors.New("tree: no nodes")
	}
	if numActions <= 0 {
		return nil, errors.New("tree: action universe is empty")
	}
	for v, variable := range vars {
		if len(variable.Domain) == 0 {
			return nil, errors.Errorf("tree: variable %q has an empty domain", variable.Name)
		}
		for i := 1; i < len(variable.Domain); i++ {
			if variable.Domain[i-1] >= variable.Domain[i] {
				return nil, errors.Errorf("tree: domain of variable %q is not ascending", vars[v].Name)
			}
		}
	}

	sentinel := len(triples)
	t := &Tree{vars: vars, numActions: numActions}
	for v, variable := range vars {
		for k := 0; k < len(variable.Domain)-1; k++ {
			t.preds = append(t.preds, Predicate{Var: v, Bound: k})
		}
	}

	hasInner := false
	for i, triple := range triples {
		parent, left, right := triple[0], triple[1], triple[2]
		if (left == sentinel) != (right == sentinel) {
			return nil, errors.Errorf("tree: node %d has exactly one child", i)
		}
		n := node{parent: parent, left: left, right: right, kind: terminal}
		if left != sentinel {
			if left < 0 || left >= sentinel || right < 0 || right >= sentinel {
				return nil, errors.Errorf("tree: node %d has a child out of range", i)
			}
			n.kind = inner
			hasInner = true
		}
		t.nodes = append(t.nodes, n)
	}
	if t.nodes[0].parent != sentinel {
		return nil, errors.New("tree: node 0 is not the root")
	}
	if hasInner && len(t.preds) == 0 {
		return nil, errors.New("tree: inner nodes present but no variable admits a splitting predicate")
	}

	t.enumeratePaths(0, nil, nil)
	return t, nil
}

func (t *Tree) enumeratePaths(at int, nodes []int, directions []bool) {
	if t.nodes[at].kind == terminal {
		p := Path{Terminal: at}
		p.Nodes = append(p.Nodes, nodes...)
		p.Directions = append(p.Directions, directions...)
		t.paths = append(t.paths, p)
		return
	}
	t.enumeratePaths(t.nodes[at].left, append(nodes, at), append(directions, true))
	t.enumeratePaths(t.nodes[at].right, append(nodes, at), append(directions, false))
}

// NumNodes returns the number of tree nodes, which equals the number of
// holes.
func (t *Tree) NumNodes() int { return len(t.nodes) }

// NumPaths returns the number of root-to-leaf paths.
func (t *Tree) NumPaths() int { return len(t.paths) }

// NumVariables returns the number of tracked variables.
func (t *Tree) NumVariables() int { return len(t.vars) }

// NumPredicates returns the size of every decision hole's domain.
func (t *Tree) NumPredicates() int { return len(t.preds) }

// NumActions returns the size of every action hole's domain.
func (t *Tree) NumActions() int { return t.numActions }

// IsTerminal reports whether the node is terminal.
func (t *Tree) IsTerminal(n int) bool { return t.nodes[n].kind == terminal }

// Paths returns the enumerated paths, true branches first.
func (t *Tree) Paths() []Path { return t.paths }

// PathActionHole returns the action hole the path terminates in.
func (t *Tree) PathActionHole(path int) int { return t.paths[path].Terminal }

// Holes returns the hole descriptors for the whole tree, indexed by node.
func (t *Tree) Holes() []family.Hole {
	holes := make([]family.Hole, len(t.nodes))
	for i, n := range t.nodes {
		if n.kind == terminal {
			labels := make([]string, t.numActions)
			for a := range labels {
				labels[a] = fmt.Sprintf("act_%d", a)
			}
			holes[i] = family.Hole{Name: fmt.Sprintf("A%d", i), Kind: family.Action, Labels: labels}
			continue
		}
		labels := make([]string, len(t.preds))
		for o, p := range t.preds {
			labels[o] = fmt.Sprintf("%s<=%d", t.vars[p.Var].Name, t.vars[p.Var].Domain[p.Bound])
		}
		holes[i] = family.Hole{Name: fmt.Sprintf("V%d", i), Kind: family.Decision, Labels: labels}
	}
	return holes
}

// ValuationOptions maps raw variable values to their domain-option
// indices. A value absent from its variable's declared domain is a
// malformed-input error.
func (t *Tree) ValuationOptions(values []int64) ([]int, error) {
	if len(values) != len(t.vars) {
		return nil, errors.Errorf("tree: valuation has %d variables, expected %d", len(values), len(t.vars))
	}
	out := make([]int, len(values))
	for v, value := range values {
		found := false
		for o, dv := range t.vars[v].Domain {
			if dv == value {
				out[v] = o
				found = true
				break
			}
		}
		if !found {
			return nil, errors.Errorf("tree: value %d of variable %q has no domain option", value, t.vars[v].Name)
		}
	}
	return out, nil
}

// StepOptions appends to dst the decision-hole options of step `step` of
// the path that are consistent (follow=true) or inconsistent
// (follow=false) with taking the step's branch direction from a state
// with the given valuation, and returns dst. Valuations are in
// domain-option indices.
func (t *Tree) StepOptions(path, step int, valuation []int, follow bool, dst []int) []int {
	dir := t.paths[path].Directions[step]
	for o, p := range t.preds {
		holds := valuation[p.Var] <= p.Bound
		if (holds == dir) == follow {
			dst = append(dst, o)
		}
	}
	return dst
}

// IsPathEnabled reports whether some member of the subfamily can follow
// the path from a state with the given valuation, ignoring the terminal
// action hole.
func (t *Tree) IsPathEnabled(path int, f *family.Family, valuation []int) bool {
	p := t.paths[path]
	for step, hole := range p.Nodes {
		dir := p.Directions[step]
		enabled := false
		for o, pred := range t.preds {
			holds := valuation[pred.Var] <= pred.Bound
			if holds == dir && f.HoleContains(hole, o) {
				enabled = true
				break
			}
		}
		if !enabled {
			return false
		}
	}
	return true
}
