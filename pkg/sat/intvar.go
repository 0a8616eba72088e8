package sat

// IntVar is a finite-domain integer variable encoded one-hot: bit k is
// true iff the variable takes value k. The exactly-one clauses added at
// creation guarantee that every model assigns each IntVar a single value.
type IntVar struct {
	bits []Lit
}

// NewIntVar creates a variable ranging over [0, n). Panics if n is not
// positive.
func (s *Solver) NewIntVar(n int) IntVar {
	if n <= 0 {
		panic("sat: IntVar domain must be non-empty")
	}
	bits := make([]Lit, n)
	for i := range bits {
		bits[i] = s.c.Lit()
	}
	s.AddClause(bits...)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s.AddClause(bits[i].Not(), bits[j].Not())
		}
	}
	return IntVar{bits: bits}
}

// Size returns the domain size.
func (v IntVar) Size() int { return len(v.bits) }

// Eq returns the literal "v == k".
func (v IntVar) Eq(k int) Lit { return v.bits[k] }

// MemberOf returns a gate that is true iff v takes one of the given
// values. An empty value set yields the constant false.
func (s *Solver) MemberOf(v IntVar, values []int) Lit {
	ms := make([]Lit, 0, len(values))
	for _, k := range values {
		ms = append(ms, v.bits[k])
	}
	return s.c.Ors(ms...)
}

// ValueOf decodes v from the current model. Panics if no bit of v is
// set, which happens only when no satisfiable Check produced a model;
// the exactly-one clauses make every real model assign exactly one bit.
func (s *Solver) ValueOf(v IntVar) int {
	for k, m := range v.bits {
		if s.g.Value(m) {
			return k
		}
	}
	panic("sat: IntVar has no value in the current model")
}
