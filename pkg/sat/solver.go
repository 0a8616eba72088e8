package sat

import (
	"fmt"

	"github.com/go-air/gini"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
)

// Lit is a literal in the solver's formula space.
type Lit = z.Lit

const (
	satisfiable   = 1
	unsatisfiable = -1
)

// Label identifies a named assertion so that it can be recognized in an
// unsat core.
type Label interface {
	fmt.Stringer
}

// Assumption is a handle on a named assertion. Asserting it in a scope
// makes its formula part of every Check until the scope is popped. The
// zero Assumption is invalid.
type Assumption struct {
	act z.Lit
}

// Valid reports whether the assumption was produced by Declare.
func (a Assumption) Valid() bool { return a.act != z.LitNull }

// Solver is an incremental satisfiability interface with explicit
// assertion scopes.
//
// All formulas are gates of a single logic.C circuit sharing one literal
// space with the underlying gini instance; CNF is taught to gini on
// demand. A named assertion is an activation literal implying its gate.
// Check assumes the activation literals of every open scope, so popping a
// scope simply stops assuming its assertions; the guarded clauses stay
// behind, dormant.
//
// gini forbids adding clauses while assumptions are pending, so
// assumptions are issued only immediately before each Solve.
//
// Not safe for concurrent use.
type Solver struct {
	g      *gini.Gini
	c      *logic.C
	marks  []int8
	scopes [][]z.Lit
	labels map[z.Lit]Label
	buf    []z.Lit
}

// New returns an empty solver.
func New() *Solver {
	s := &Solver{
		g:      gini.New(),
		c:      logic.NewC(),
		labels: make(map[z.Lit]Label),
	}
	// Pin the circuit's constant so that gates reduced to true or false
	// keep their meaning on the solver side.
	s.g.Add(s.c.T)
	s.g.Add(z.LitNull)
	return s
}

// Lit returns a fresh unconstrained literal.
func (s *Solver) Lit() Lit { return s.c.Lit() }

// True returns the constant true literal.
func (s *Solver) True() Lit { return s.c.T }

// False returns the constant false literal.
func (s *Solver) False() Lit { return s.c.F }

// And returns a gate that is true iff all of ms are true.
func (s *Solver) And(ms ...Lit) Lit { return s.c.Ands(ms...) }

// Or returns a gate that is true iff at least one of ms is true.
func (s *Solver) Or(ms ...Lit) Lit { return s.c.Ors(ms...) }

// AddClause permanently adds the disjunction of ms.
func (s *Solver) AddClause(ms ...Lit) {
	for _, m := range ms {
		s.g.Add(m)
	}
	s.g.Add(z.LitNull)
}

// Require permanently asserts the gate m.
func (s *Solver) Require(m Lit) {
	s.emit(m)
	s.AddClause(m)
}

// emit teaches the solver the CNF of every gate reachable from roots that
// it has not seen before.
func (s *Solver) emit(roots ...Lit) {
	s.marks, _ = s.c.CnfSince(s.g, s.marks, roots...)
}

// Declare names the gate m and returns an Assumption enforcing it. The
// label is reported by Why whenever the assumption appears in an unsat
// core. Declaring is permanent; the same Assumption may be asserted in
// any number of scopes over the solver's lifetime.
func (s *Solver) Declare(m Lit, label Label) Assumption {
	act := s.c.Lit()
	s.emit(m)
	s.AddClause(act.Not(), m)
	s.labels[act] = label
	return Assumption{act: act}
}

// Push opens a new assertion scope.
func (s *Solver) Push() {
	s.scopes = append(s.scopes, nil)
}

// Pop closes the innermost scope, retracting its assertions.
func (s *Solver) Pop() {
	if len(s.scopes) == 0 {
		panic("sat: pop without matching push")
	}
	s.scopes = s.scopes[:len(s.scopes)-1]
}

// Depth returns the number of open scopes.
func (s *Solver) Depth() int { return len(s.scopes) }

// Assert adds a declared assumption to the innermost scope.
func (s *Solver) Assert(a Assumption) {
	n := len(s.scopes) - 1
	if n < 0 {
		panic("sat: assert outside any scope")
	}
	s.scopes[n] = append(s.scopes[n], a.act)
}

// AssertExpr declares the gate m under the given label and asserts it in
// the innermost scope.
func (s *Solver) AssertExpr(m Lit, label Label) Assumption {
	a := s.Declare(m, label)
	s.Assert(a)
	return a
}

// Check reports whether the permanent clauses together with every
// assertion in every open scope are satisfiable. After an unsatisfiable
// Check, Why returns the failing assertions; after a satisfiable one,
// Value and ValueOf read the model.
func (s *Solver) Check() bool {
	for _, scope := range s.scopes {
		s.g.Assume(scope...)
	}
	return s.g.Solve() == satisfiable
}

// Value returns the model value of m. Defined only after a satisfiable
// Check.
func (s *Solver) Value(m Lit) bool { return s.g.Value(m) }

// Why returns the labels of a set of asserted assumptions sufficient for
// the last unsatisfiable Check, in the order reported by the solver.
func (s *Solver) Why() []Label {
	s.buf = s.g.Why(s.buf[:0])
	out := make([]Label, 0, len(s.buf))
	for _, m := range s.buf {
		if l, ok := s.labels[m]; ok {
			out = append(out, l)
		}
	}
	return out
}
