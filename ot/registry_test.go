package ot_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/drpcorg/otdag/examples/register"
	"github.com/drpcorg/otdag/ot"
	"github.com/drpcorg/otdag/otdag_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apply(start int64, ops ...[]register.Diff) int64 {
	s := register.State{Value: start}
	for _, list := range ops {
		for _, d := range list {
			s.Apply(d)
		}
	}
	return s.Value
}

func TestRegisterScenario(t *testing.T) {
	sys := register.NewSystem()
	require.NoError(t, sys.Validate(register.Samples()...))

	left := []register.Diff{register.Add{Delta: 5}}
	right := []register.Diff{register.Set{Prev: 0, Next: 10}}
	res, err := sys.Transform(left, right)
	require.NoError(t, err)
	assert.Equal(t, []register.Diff{register.Set{Prev: 5, Next: 10}}, res.Left)
	assert.Empty(t, res.Right)
	assert.Equal(t, int64(10), apply(0, left, res.Left))
	assert.Equal(t, int64(10), apply(0, right, res.Right))

	assert.Equal(t, []register.Diff{register.Add{Delta: 5}},
		sys.Squash([]register.Diff{register.Add{Delta: 2}, register.Add{Delta: 3}}))
	assert.Equal(t, []register.Diff{register.Add{Delta: -5}},
		sys.Invert([]register.Diff{register.Add{Delta: 5}}))
	assert.True(t, sys.IsEmpty(register.Add{}))
	assert.True(t, sys.IsEmpty(register.Set{Prev: 3, Next: 3}))
	assert.False(t, sys.IsEmpty(register.Set{Prev: 3, Next: 4}))
}

func TestTransformSwapsReverseOrientation(t *testing.T) {
	sys := register.NewSystem()
	res, err := sys.Transform(
		[]register.Diff{register.Set{Prev: 0, Next: 10}},
		[]register.Diff{register.Add{Delta: 5}})
	require.NoError(t, err)
	assert.Empty(t, res.Left)
	assert.Equal(t, []register.Diff{register.Set{Prev: 5, Next: 10}}, res.Right)
}

func TestTransformEmptySides(t *testing.T) {
	sys := register.NewSystem()
	ops := []register.Diff{register.Add{Delta: 1}, register.Add{Delta: 2}}

	res, err := sys.Transform(nil, ops)
	require.NoError(t, err)
	assert.Equal(t, ops, res.Left)
	assert.Empty(t, res.Right)

	res, err = sys.Transform(ops, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Left)
	assert.Equal(t, ops, res.Right)

	res, err = sys.Transform(nil, nil)
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())
}

func TestTransformIdenticalSets(t *testing.T) {
	sys := register.NewSystem()
	res, err := sys.Transform(
		[]register.Diff{register.Set{Prev: 1, Next: 7}},
		[]register.Diff{register.Set{Prev: 1, Next: 7}})
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())
}

func TestTransformConflict(t *testing.T) {
	sys := register.NewSystem()
	_, err := sys.Transform(
		[]register.Diff{register.Set{Prev: 1, Next: 7}},
		[]register.Diff{register.Set{Prev: 2, Next: 7}})
	assert.ErrorIs(t, err, otdag_errors.ErrTransformConflict)
	var tc *otdag_errors.TransformConflict
	require.True(t, errors.As(err, &tc))
	assert.Equal(t, register.Set{Prev: 1, Next: 7}, tc.Left)
}

// randomOps produces n diffs that are valid when applied to start.
func randomOps(rnd *rand.Rand, start int64, n int) []register.Diff {
	ops := make([]register.Diff, 0, n)
	cur := start
	for i := 0; i < n; i++ {
		if rnd.Intn(3) == 0 {
			next := rnd.Int63n(50)
			ops = append(ops, register.Set{Prev: cur, Next: next})
			cur = next
		} else {
			d := rnd.Int63n(11) - 5
			ops = append(ops, register.Add{Delta: d})
			cur += d
		}
	}
	return ops
}

func TestTransformDiamondLists(t *testing.T) {
	sys := register.NewSystem()
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		start := rnd.Int63n(20)
		left := randomOps(rnd, start, rnd.Intn(5))
		right := randomOps(rnd, start, rnd.Intn(5))
		res, err := sys.Transform(left, right)
		require.NoError(t, err, "left %v right %v", left, right)
		assert.Equal(t, apply(start, left, res.Left), apply(start, right, res.Right),
			"left %v right %v result %v", left, right, res)
	}
}

func TestSquashAndInvertProperties(t *testing.T) {
	sys := register.NewSystem()
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		start := rnd.Int63n(20)
		ops := randomOps(rnd, start, rnd.Intn(8))
		squashed := sys.Squash(ops)
		assert.Equal(t, apply(start, ops), apply(start, squashed))
		assert.LessOrEqual(t, len(squashed), 1, "register diffs always squash to one: %v", squashed)
		for _, d := range squashed {
			assert.False(t, sys.IsEmpty(d))
		}
		assert.Equal(t, start, apply(start, ops, sys.Invert(ops)))
	}
}

func TestSquashDropsCancellingPairs(t *testing.T) {
	sys := register.NewSystem()
	ops := []register.Diff{
		register.Add{Delta: 0},
		register.Add{Delta: 4},
		register.Add{Delta: -4},
		register.Set{Prev: 1, Next: 1},
	}
	assert.Empty(t, sys.Squash(ops))
}

func TestInvertReversesOrder(t *testing.T) {
	sys := register.NewSystem()
	ops := []register.Diff{register.Add{Delta: 1}, register.Set{Prev: 1, Next: 9}}
	assert.Equal(t, []register.Diff{
		register.Set{Prev: 9, Next: 1},
		register.Add{Delta: -1},
	}, sys.Invert(ops))
}

func dispatchPanic(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	f()
	return nil
}

func TestUnregisteredTypes(t *testing.T) {
	sys := ot.NewRegistry[any]()
	ot.WithEmptyPredicate(sys, func(i int) bool { return i == 0 })
	ot.WithInvertFunction(sys, func(i int) []any { return []any{-i} })

	assert.True(t, sys.IsEmpty(0))
	err := dispatchPanic(func() { sys.IsEmpty("x") })
	assert.ErrorIs(t, err, otdag_errors.ErrDispatchNotRegistered)
	err = dispatchPanic(func() { sys.Invert([]any{1, "x"}) })
	assert.ErrorIs(t, err, otdag_errors.ErrDispatchNotRegistered)

	_, err = sys.Transform([]any{1}, []any{2})
	assert.ErrorIs(t, err, otdag_errors.ErrDispatchNotRegistered)
	var de *otdag_errors.DispatchError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, []string{"int", "int"}, de.Types)

	// no squash function just means nothing squashes
	assert.Equal(t, []any{1, 2}, sys.Squash([]any{1, 0, 2}))

	err = sys.Validate(1, "x")
	assert.ErrorIs(t, err, otdag_errors.ErrDispatchNotRegistered)
	assert.Contains(t, err.Error(), "isEmpty(string)")
	assert.Contains(t, err.Error(), "transform(int, string)")
}
