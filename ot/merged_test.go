package ot_test

import (
	"testing"

	"github.com/drpcorg/otdag/examples/register"
	"github.com/drpcorg/otdag/ot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pair holds two independent registers.
type pair struct {
	A []register.Diff
	B []register.Diff
}

func pairSystem() *ot.Merged[pair] {
	return ot.Merge(
		ot.NewField(func(p pair) []register.Diff { return p.A }, func(p *pair, d []register.Diff) { p.A = d }, register.NewSystem()),
		ot.NewField(func(p pair) []register.Diff { return p.B }, func(p *pair, d []register.Diff) { p.B = d }, register.NewSystem()),
	)
}

func applyPair(ops ...[]pair) (a, b int64) {
	var sa, sb register.State
	for _, list := range ops {
		for _, p := range list {
			for _, d := range p.A {
				sa.Apply(d)
			}
			for _, d := range p.B {
				sb.Apply(d)
			}
		}
	}
	return sa.Value, sb.Value
}

func TestMergedTransformPerField(t *testing.T) {
	sys := pairSystem()
	left := []pair{{A: []register.Diff{register.Add{Delta: 5}}, B: []register.Diff{register.Add{Delta: 1}}}}
	right := []pair{{A: []register.Diff{register.Set{Prev: 0, Next: 10}}}}

	res, err := sys.Transform(left, right)
	require.NoError(t, err)
	require.Len(t, res.Left, 1)
	assert.Equal(t, []register.Diff{register.Set{Prev: 5, Next: 10}}, res.Left[0].A)
	assert.Empty(t, res.Left[0].B)
	require.Len(t, res.Right, 1)
	assert.Empty(t, res.Right[0].A)
	assert.Equal(t, []register.Diff{register.Add{Delta: 1}}, res.Right[0].B)

	la, lb := applyPair(left, res.Left)
	ra, rb := applyPair(right, res.Right)
	assert.Equal(t, la, ra)
	assert.Equal(t, lb, rb)
	assert.Equal(t, int64(10), la)
	assert.Equal(t, int64(1), lb)
}

func TestMergedEmptyCollapses(t *testing.T) {
	sys := pairSystem()
	assert.True(t, sys.IsEmpty(sys.Empty()))
	assert.True(t, sys.IsEmpty(pair{A: []register.Diff{register.Add{}}}))

	ops := []pair{
		{A: []register.Diff{register.Add{Delta: 3}}},
		{A: []register.Diff{register.Add{Delta: -3}}},
	}
	assert.Empty(t, sys.Squash(ops))
	assert.Equal(t, sys.Empty(), sys.Combine(ops))

	res, err := sys.Transform(ops, ops)
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())
}

func TestMergedSquashAndInvert(t *testing.T) {
	sys := pairSystem()
	ops := []pair{
		{A: []register.Diff{register.Add{Delta: 2}}},
		{A: []register.Diff{register.Add{Delta: 3}}, B: []register.Diff{register.Set{Prev: 0, Next: 4}}},
	}
	squashed := sys.Squash(ops)
	require.Len(t, squashed, 1)
	assert.Equal(t, []register.Diff{register.Add{Delta: 5}}, squashed[0].A)
	assert.Equal(t, []register.Diff{register.Set{Prev: 0, Next: 4}}, squashed[0].B)

	inv := sys.Invert(ops)
	a, b := applyPair(ops, inv)
	assert.Equal(t, int64(0), a)
	assert.Equal(t, int64(0), b)
}
