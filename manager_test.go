package otdag_test

import (
	"context"
	"testing"

	"github.com/drpcorg/otdag"
	"github.com/drpcorg/otdag/dag"
	"github.com/drpcorg/otdag/examples/register"
	"github.com/drpcorg/otdag/otdag_errors"
	testutils "github.com/drpcorg/otdag/test_utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, algo *otdag.Algorithms[int64, Diff]) (*otdag.StateManager[int64, Diff], *register.State) {
	st := &register.State{}
	m := otdag.NewStateManager[int64, Diff](algo, st)
	require.NoError(t, m.Checkout(context.Background()))
	return m, st
}

func TestStateManagerSync(t *testing.T) {
	ctx := context.Background()
	g := testutils.NewGraph[Diff](t)
	algo := newAlgo(g.Repo)
	m1, s1 := newManager(t, algo)
	m2, s2 := newManager(t, algo)

	require.NoError(t, m1.Add(register.Add{Delta: 2}, register.Add{Delta: 3}))
	assert.Equal(t, int64(5), s1.Value)
	c, err := m1.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Diff{register.Add{Delta: 5}}, c.Parents[testutils.Root])
	assert.Len(t, m1.Pending(), 1)

	require.NoError(t, m2.Add(register.Set{Prev: 0, Next: 10}))

	require.NoError(t, m1.Sync(ctx))
	require.NoError(t, m2.Sync(ctx))
	require.NoError(t, m1.Pull(ctx))

	assert.Equal(t, int64(10), s1.Value)
	assert.Equal(t, int64(10), s2.Value)
	assert.Equal(t, m1.Revision(), m2.Revision())
	assert.Equal(t, []int64{m1.Revision()}, g.Heads())
	assert.Empty(t, m1.WorkingDiffs())
	assert.Empty(t, m2.WorkingDiffs())

	// a fresh replica sees the same state
	_, s3 := newManager(t, algo)
	assert.Equal(t, int64(10), s3.Value)
}

func TestStateManagerRebaseKeepsLocalChanges(t *testing.T) {
	ctx := context.Background()
	g := testutils.NewGraph[Diff](t)
	algo := newAlgo(g.Repo)
	m1, _ := newManager(t, algo)
	m2, s2 := newManager(t, algo)

	require.NoError(t, m1.Add(register.Add{Delta: 4}))
	require.NoError(t, m1.CommitAndPush(ctx))

	require.NoError(t, m2.Add(register.Add{Delta: 1}))
	_, err := m2.Commit(ctx)
	require.NoError(t, err)
	require.NoError(t, m2.Add(register.Add{Delta: 1}))

	require.NoError(t, m2.Pull(ctx))
	assert.Equal(t, int64(6), s2.Value)
	assert.Equal(t, m1.Revision(), m2.Revision())
	assert.Empty(t, m2.Pending())
	assert.Equal(t, []Diff{register.Add{Delta: 2}}, m2.WorkingDiffs())

	require.NoError(t, m2.CommitAndPush(ctx))
	var st register.State
	require.NoError(t, algo.CheckoutState(ctx, &st, m2.Revision()))
	assert.Equal(t, int64(6), st.Value)
}

func TestStateManagerCheckoutHighestHead(t *testing.T) {
	ctx := context.Background()
	g := testutils.NewGraph[Diff](t)
	a := g.Commit(testutils.Root, register.Add{Delta: 1})
	b := g.Chain(testutils.Root, register.Add{Delta: 2}, register.Add{Delta: 3})
	c := g.Commit(testutils.Root, register.Add{Delta: 4})
	require.Equal(t, []int64{a, b, c}, g.Heads())

	m, st := newManager(t, newAlgo(g.Repo))
	assert.Equal(t, b, m.Revision())
	assert.Equal(t, int64(5), st.Value)

	require.NoError(t, g.Repo.UpdateHeads(ctx, dag.NewSet[int64](999), nil))
	assert.ErrorIs(t, m.Checkout(ctx), otdag_errors.ErrCommitNotFound)
}

func TestStateManagerReset(t *testing.T) {
	ctx := context.Background()
	g := testutils.NewGraph[Diff](t)
	m, st := newManager(t, newAlgo(g.Repo))

	require.NoError(t, m.Add(register.Add{Delta: 7}))
	_, err := m.Commit(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Add(register.Set{Prev: 7, Next: 1}))
	require.NoError(t, m.Reset())
	assert.Equal(t, int64(0), st.Value)
	assert.Empty(t, m.Pending())
	assert.Empty(t, m.WorkingDiffs())

	c, err := m.Commit(ctx)
	require.NoError(t, err)
	assert.Nil(t, c, "nothing to commit")
}

func TestStateManagerConflictInvalidates(t *testing.T) {
	ctx := context.Background()
	g := testutils.NewGraph[Diff](t)
	algo := newAlgo(g.Repo)
	m1, _ := newManager(t, algo)
	m2, s2 := newManager(t, algo)

	require.NoError(t, m1.Add(register.Set{Prev: 0, Next: 3}))
	require.NoError(t, m1.CommitAndPush(ctx))

	// overwrite recorded against a value the register never had
	require.NoError(t, m2.Add(register.Set{Prev: 99, Next: 1}))
	err := m2.Pull(ctx)
	assert.ErrorIs(t, err, otdag_errors.ErrTransformConflict)
	assert.False(t, m2.Valid())
	assert.ErrorIs(t, m2.Add(register.Add{Delta: 1}), otdag_errors.ErrClosed)

	require.NoError(t, m2.Checkout(ctx))
	assert.True(t, m2.Valid())
	assert.Equal(t, int64(3), s2.Value)
}

func TestStateManagerRequiresCheckout(t *testing.T) {
	g := testutils.NewGraph[Diff](t)
	m := otdag.NewStateManager[int64, Diff](newAlgo(g.Repo), &register.State{})
	assert.ErrorIs(t, m.Add(register.Add{Delta: 1}), otdag_errors.ErrClosed)
}
