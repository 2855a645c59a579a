package ot

// Field is one independent component of a composite diff C. Fields of a
// composite must touch disjoint parts of the state.
type Field[C any] interface {
	empty(c C) bool
	squash(dst *C, ops []C)
	invert(dst *C, ops []C)
	transform(dstLeft, dstRight *C, left, right []C) error
}

type field[C, F any] struct {
	get func(C) []F
	set func(*C, []F)
	sys System[F]
}

// NewField describes a component of C holding a list of F diffs governed
// by sys.
func NewField[C, F any](get func(C) []F, set func(*C, []F), sys System[F]) Field[C] {
	return &field[C, F]{get: get, set: set, sys: sys}
}

func (f *field[C, F]) collect(ops []C) []F {
	var out []F
	for _, c := range ops {
		out = append(out, f.get(c)...)
	}
	return out
}

func (f *field[C, F]) empty(c C) bool {
	return len(f.sys.Squash(f.get(c))) == 0
}

func (f *field[C, F]) squash(dst *C, ops []C) {
	f.set(dst, nilIfEmpty(f.sys.Squash(f.collect(ops))))
}

func (f *field[C, F]) invert(dst *C, ops []C) {
	f.set(dst, nilIfEmpty(f.sys.Invert(f.collect(ops))))
}

func (f *field[C, F]) transform(dstLeft, dstRight *C, left, right []C) error {
	res, err := f.sys.Transform(f.sys.Squash(f.collect(left)), f.sys.Squash(f.collect(right)))
	if err != nil {
		return err
	}
	f.set(dstLeft, nilIfEmpty(res.Left))
	f.set(dstRight, nilIfEmpty(res.Right))
	return nil
}

func nilIfEmpty[F any](ops []F) []F {
	if len(ops) == 0 {
		return nil
	}
	return ops
}

// Merged is the algebra of a composite diff made of independent fields.
// Any sequence of composites folds into at most one composite; a
// composite whose fields are all empty collapses to the empty list.
type Merged[C any] struct {
	fields []Field[C]
}

func Merge[C any](fields ...Field[C]) *Merged[C] {
	return &Merged[C]{fields: fields}
}

// Empty is the zero composite, the sentinel for "no change".
func (m *Merged[C]) Empty() C {
	var zero C
	return zero
}

func (m *Merged[C]) IsEmpty(c C) bool {
	for _, f := range m.fields {
		if !f.empty(c) {
			return false
		}
	}
	return true
}

// Combine squashes ops field by field into a single composite, which is
// Empty() when nothing remains.
func (m *Merged[C]) Combine(ops []C) C {
	var out C
	for _, f := range m.fields {
		f.squash(&out, ops)
	}
	return out
}

func (m *Merged[C]) single(c C) []C {
	if m.IsEmpty(c) {
		return nil
	}
	return []C{c}
}

func (m *Merged[C]) Squash(ops []C) []C {
	return m.single(m.Combine(ops))
}

func (m *Merged[C]) Invert(ops []C) []C {
	var out C
	for _, f := range m.fields {
		f.invert(&out, ops)
	}
	return m.single(out)
}

func (m *Merged[C]) Transform(left, right []C) (TransformResult[C], error) {
	var l, r C
	for _, f := range m.fields {
		if err := f.transform(&l, &r, left, right); err != nil {
			return TransformResult[C]{}, err
		}
	}
	return Of(m.single(l), m.single(r)), nil
}
