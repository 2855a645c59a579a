package ot

import (
	"errors"
	"reflect"

	"github.com/drpcorg/otdag/otdag_errors"
)

type typePair struct {
	left, right reflect.Type
}

// Registry dispatches on the dynamic type of diffs. It is populated once
// at startup and is safe for concurrent use afterwards.
type Registry[D any] struct {
	empty     map[reflect.Type]func(D) bool
	invert    map[reflect.Type]func(D) []D
	squash    map[typePair]func(D, D) (D, bool)
	transform map[typePair]func(D, D) (TransformResult[D], error)
}

func NewRegistry[D any]() *Registry[D] {
	return &Registry[D]{
		empty:     make(map[reflect.Type]func(D) bool),
		invert:    make(map[reflect.Type]func(D) []D),
		squash:    make(map[typePair]func(D, D) (D, bool)),
		transform: make(map[typePair]func(D, D) (TransformResult[D], error)),
	}
}

func WithEmptyPredicate[D, T any](r *Registry[D], f func(T) bool) *Registry[D] {
	r.empty[reflect.TypeOf((*T)(nil)).Elem()] = func(d D) bool {
		return f(any(d).(T))
	}
	return r
}

func WithInvertFunction[D, T any](r *Registry[D], f func(T) []D) *Registry[D] {
	r.invert[reflect.TypeOf((*T)(nil)).Elem()] = func(d D) []D {
		return f(any(d).(T))
	}
	return r
}

// WithSquashFunction registers how first followed by second collapse into
// one diff. Returning false means the pair does not squash.
func WithSquashFunction[D, A, B any](r *Registry[D], f func(first A, second B) (D, bool)) *Registry[D] {
	r.squash[typePair{reflect.TypeOf((*A)(nil)).Elem(), reflect.TypeOf((*B)(nil)).Elem()}] = func(a, b D) (D, bool) {
		return f(any(a).(A), any(b).(B))
	}
	return r
}

// WithTransformFunction registers the transform of a concurrent (A, B)
// pair. The (B, A) pair is served by swapping the result, so a single
// orientation is enough.
func WithTransformFunction[D, A, B any](r *Registry[D], f func(left A, right B) (TransformResult[D], error)) *Registry[D] {
	r.transform[typePair{reflect.TypeOf((*A)(nil)).Elem(), reflect.TypeOf((*B)(nil)).Elem()}] = func(a, b D) (TransformResult[D], error) {
		return f(any(a).(A), any(b).(B))
	}
	return r
}

func typeOf[D any](d D) reflect.Type {
	return reflect.TypeOf(any(d))
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// IsEmpty panics with *DispatchError if the type has no predicate.
func (r *Registry[D]) IsEmpty(d D) bool {
	t := typeOf(d)
	f, ok := r.empty[t]
	if !ok {
		panic(&otdag_errors.DispatchError{Op: "isEmpty", Types: []string{typeName(t)}})
	}
	return f(d)
}

// Invert panics with *DispatchError if a type has no invert function.
func (r *Registry[D]) Invert(ops []D) []D {
	out := make([]D, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		t := typeOf(ops[i])
		f, ok := r.invert[t]
		if !ok {
			panic(&otdag_errors.DispatchError{Op: "invert", Types: []string{typeName(t)}})
		}
		out = append(out, f(ops[i])...)
	}
	return out
}

func (r *Registry[D]) squashPair(first, second D) (D, bool) {
	f, ok := r.squash[typePair{typeOf(first), typeOf(second)}]
	if !ok {
		var zero D
		return zero, false
	}
	return f(first, second)
}

// Squash drops empty diffs and merges adjacent pairs until none of them
// squash. A pair that squashes into an empty diff disappears.
func (r *Registry[D]) Squash(ops []D) []D {
	out := make([]D, 0, len(ops))
	for _, op := range ops {
		if r.IsEmpty(op) {
			continue
		}
		keep := true
		for len(out) > 0 {
			squashed, ok := r.squashPair(out[len(out)-1], op)
			if !ok {
				break
			}
			out = out[:len(out)-1]
			if r.IsEmpty(squashed) {
				keep = false
				break
			}
			op = squashed
		}
		if keep {
			out = append(out, op)
		}
	}
	return out
}

func (r *Registry[D]) transformOne(left, right D) (TransformResult[D], error) {
	lt, rt := typeOf(left), typeOf(right)
	if f, ok := r.transform[typePair{lt, rt}]; ok {
		return f(left, right)
	}
	if f, ok := r.transform[typePair{rt, lt}]; ok {
		res, err := f(right, left)
		if err != nil {
			return TransformResult[D]{}, err
		}
		return res.Swap(), nil
	}
	return TransformResult[D]{}, &otdag_errors.DispatchError{
		Op:    "transform",
		Types: []string{typeName(lt), typeName(rt)},
	}
}

// Transform reconciles two concurrent sequences by peeling one diff at a
// time off the longer side.
func (r *Registry[D]) Transform(left, right []D) (TransformResult[D], error) {
	switch {
	case len(left) == 0:
		return Of(clone(right), nil), nil
	case len(right) == 0:
		return Of(nil, clone(left)), nil
	case len(left) == 1 && len(right) == 1:
		return r.transformOne(left[0], right[0])
	case len(left) > 1:
		head, err := r.Transform(left[:1], right)
		if err != nil {
			return TransformResult[D]{}, err
		}
		tail, err := r.Transform(left[1:], head.Left)
		if err != nil {
			return TransformResult[D]{}, err
		}
		return Of(tail.Left, concat(head.Right, tail.Right)), nil
	default:
		head, err := r.Transform(left, right[:1])
		if err != nil {
			return TransformResult[D]{}, err
		}
		tail, err := r.Transform(head.Right, right[1:])
		if err != nil {
			return TransformResult[D]{}, err
		}
		return Of(concat(head.Left, tail.Left), tail.Right), nil
	}
}

// Validate checks that every sample's type has an empty predicate and an
// invert function and that every pair of sample types can be transformed.
// Call it once at startup with one value of each diff type.
func (r *Registry[D]) Validate(samples ...D) error {
	var errs []error
	types := make([]reflect.Type, 0, len(samples))
	seen := make(map[reflect.Type]bool)
	for _, s := range samples {
		t := typeOf(s)
		if seen[t] {
			continue
		}
		seen[t] = true
		types = append(types, t)
		if _, ok := r.empty[t]; !ok {
			errs = append(errs, &otdag_errors.DispatchError{Op: "isEmpty", Types: []string{typeName(t)}})
		}
		if _, ok := r.invert[t]; !ok {
			errs = append(errs, &otdag_errors.DispatchError{Op: "invert", Types: []string{typeName(t)}})
		}
	}
	for i, lt := range types {
		for _, rt := range types[i:] {
			_, direct := r.transform[typePair{lt, rt}]
			_, reverse := r.transform[typePair{rt, lt}]
			if !direct && !reverse {
				errs = append(errs, &otdag_errors.DispatchError{
					Op:    "transform",
					Types: []string{typeName(lt), typeName(rt)},
				})
			}
		}
	}
	return errors.Join(errs...)
}

func clone[D any](ops []D) []D {
	if len(ops) == 0 {
		return nil
	}
	return append([]D(nil), ops...)
}

func concat[D any](a, b []D) []D {
	out := make([]D, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
