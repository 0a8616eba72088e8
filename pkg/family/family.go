// Package family models design spaces of controller families: every hole
// of a decision tree together with its currently admitted option set.
package family

import (
	"fmt"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// HoleKind distinguishes decision holes of inner tree nodes from action
// holes of terminal nodes.
type HoleKind uint8

const (
	Decision HoleKind = iota
	Action
)

// Hole is a synthesis-time unknown with a finite option domain. Option
// labels describe the full domain and are never narrowed, so an option
// index always resolves to the same label.
type Hole struct {
	Name   string
	Kind   HoleKind
	Labels []string
}

// Size returns the number of options in the hole's full domain.
func (h Hole) Size() int { return len(h.Labels) }

// Family is a design space: for every hole, the set of options it still
// admits. A family in which every hole admits exactly one option is an
// assignment. Families are refined by copying, never in place.
type Family struct {
	holes   []Hole
	options []*bitset.BitSet
}

// New returns the full family over the given holes, admitting every
// option of every hole.
func New(holes []Hole) *Family {
	f := &Family{
		holes:   holes,
		options: make([]*bitset.BitSet, len(holes)),
	}
	for i, h := range holes {
		b := bitset.New(uint(h.Size()))
		b.FlipRange(0, uint(h.Size()))
		f.options[i] = b
	}
	return f
}

// NumHoles returns the number of holes.
func (f *Family) NumHoles() int { return len(f.holes) }

// Hole returns the descriptor of the given hole.
func (f *Family) Hole(hole int) Hole { return f.holes[hole] }

// HoleContains reports whether the option is currently admitted for the
// hole.
func (f *Family) HoleContains(hole, option int) bool {
	return f.options[hole].Test(uint(option))
}

// HoleSize returns the number of admitted options of the hole.
func (f *Family) HoleSize(hole int) int {
	return int(f.options[hole].Count())
}

// HoleOptions returns the admitted options of the hole in ascending
// order.
func (f *Family) HoleOptions(hole int) []int {
	out := make([]int, 0, f.HoleSize(hole))
	for o, ok := f.options[hole].NextSet(0); ok; o, ok = f.options[hole].NextSet(o + 1) {
		out = append(out, int(o))
	}
	return out
}

// IsAssignment reports whether every hole is fixed to a single option.
func (f *Family) IsAssignment() bool {
	for _, b := range f.options {
		if b.Count() != 1 {
			return false
		}
	}
	return true
}

// Size returns the number of member assignments, the product of all hole
// sizes. Returned as a float64 since design spaces routinely overflow
// integer ranges.
func (f *Family) Size() float64 {
	size := 1.0
	for _, b := range f.options {
		size *= float64(b.Count())
	}
	return size
}

// Copy returns an independent copy of the family.
func (f *Family) Copy() *Family {
	c := &Family{
		holes:   f.holes,
		options: make([]*bitset.BitSet, len(f.options)),
	}
	for i, b := range f.options {
		c.options[i] = b.Clone()
	}
	return c
}

// AssumeOptions returns a copy of the family with the given hole narrowed
// to exactly the given options. Panics if an option lies outside the
// hole's full domain or if the option set is empty.
func (f *Family) AssumeOptions(hole int, options []int) *Family {
	if len(options) == 0 {
		panic("family: cannot narrow a hole to an empty option set")
	}
	c := f.Copy()
	b := bitset.New(uint(f.holes[hole].Size()))
	for _, o := range options {
		if o < 0 || o >= f.holes[hole].Size() {
			panic(fmt.Sprintf("family: option %d outside domain of hole %d", o, hole))
		}
		b.Set(uint(o))
	}
	c.options[hole] = b
	return c
}

// PickAny returns the assignment fixing every hole to its first admitted
// option.
func (f *Family) PickAny() *Family {
	c := f.Copy()
	for i, b := range f.options {
		o, ok := b.NextSet(0)
		if !ok {
			panic(fmt.Sprintf("family: hole %d has no options", i))
		}
		fresh := bitset.New(uint(f.holes[i].Size()))
		fresh.Set(o)
		c.options[i] = fresh
	}
	return c
}

// HoleString renders one hole with its admitted options, e.g.
// "act_1=up" for a fixed hole or "act_1: {up,down}" otherwise.
func (f *Family) HoleString(hole int) string {
	h := f.holes[hole]
	labels := make([]string, 0, f.HoleSize(hole))
	for _, o := range f.HoleOptions(hole) {
		labels = append(labels, h.Labels[o])
	}
	if len(labels) == 1 {
		return fmt.Sprintf("%s=%s", h.Name, labels[0])
	}
	return fmt.Sprintf("%s: {%s}", h.Name, strings.Join(labels, ","))
}

// String renders the whole family.
func (f *Family) String() string {
	parts := make([]string, len(f.holes))
	for i := range f.holes {
		parts[i] = f.HoleString(i)
	}
	return strings.Join(parts, ", ")
}
