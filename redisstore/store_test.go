package redisstore

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/drpcorg/otdag"
	"github.com/drpcorg/otdag/dag"
	"github.com/drpcorg/otdag/examples/register"
	"github.com/drpcorg/otdag/otdag_errors"
	"github.com/drpcorg/otdag/utils"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connect skips the test unless OTDAG_REDIS_ADDR points at a live redis.
func connect(t *testing.T) redis.UniversalClient {
	addr := os.Getenv("OTDAG_REDIS_ADDR")
	if addr == "" {
		t.Skip("skip: OTDAG_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestStoreRepository(t *testing.T) {
	ctx := context.Background()
	rdb := connect(t)
	s := New[register.Diff](rdb, register.Codec{}, Options{Namespace: t.Name(), Src: 7})
	require.NoError(t, s.Drop(ctx))
	defer s.Drop(ctx)

	root, err := dag.PushRoot[dag.ID, register.Diff](ctx, s, nil)
	require.NoError(t, err)
	assert.Equal(t, dag.ID{Src: 7, Seq: 1}, root.ID)

	c, err := s.CreateCommit(ctx, map[dag.ID][]register.Diff{root.ID: {register.Add{Delta: 2}}}, 2)
	require.NoError(t, err)
	require.NoError(t, dag.PushAndUpdateHeads[dag.ID, register.Diff](ctx, s, c))

	heads, err := s.GetHeads(ctx)
	require.NoError(t, err)
	assert.True(t, heads.Equal(dag.NewSet(c.ID)))

	err = s.UpdateHeads(ctx, dag.NewSet(dag.ID{Src: 7, Seq: 50}), dag.NewSet(root.ID))
	assert.ErrorIs(t, err, otdag_errors.ErrHeadsConflict)
	heads, _ = s.GetHeads(ctx)
	assert.True(t, heads.Equal(dag.NewSet(c.ID)), "failed update must not change heads")

	loaded, err := s.LoadCommit(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []register.Diff{register.Add{Delta: 2}}, loaded.Parents[root.ID])
	_, err = s.LoadCommit(ctx, dag.ID{Src: 7, Seq: 99})
	assert.ErrorIs(t, err, otdag_errors.ErrCommitNotFound)

	_, ok, err := s.LoadSnapshot(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, s.SaveSnapshot(ctx, c.ID, []register.Diff{register.Add{Delta: 2}}))
	loaded, _ = s.LoadCommit(ctx, c.ID)
	assert.Equal(t, dag.SnapshotPresent, loaded.Snapshot)
}

func TestStoreSnapshotWithoutCommit(t *testing.T) {
	ctx := context.Background()
	rdb := connect(t)
	buf := &bytes.Buffer{}
	s := New[register.Diff](rdb, register.Codec{}, Options{Namespace: t.Name(), Src: 3, Logger: utils.NewLogger(buf, "warn")})
	require.NoError(t, s.Drop(ctx))
	defer s.Drop(ctx)

	missing := dag.ID{Src: 3, Seq: 40}
	require.NoError(t, s.SaveSnapshot(ctx, missing, []register.Diff{register.Set{Next: 5}}))
	snap, ok, err := s.LoadSnapshot(ctx, missing)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []register.Diff{register.Set{Next: 5}}, snap)
	assert.Contains(t, buf.String(), "snapshot hint not refreshed")
	assert.Contains(t, buf.String(), missing.String())
}

// Two replicas with their own id spaces write to one namespace.
func TestStoreTwoReplicas(t *testing.T) {
	ctx := context.Background()
	rdb := connect(t)
	ns := t.Name()
	a := New[register.Diff](rdb, register.Codec{}, Options{Namespace: ns, Src: 1})
	b := New[register.Diff](rdb, register.Codec{}, Options{Namespace: ns, Src: 2})
	require.NoError(t, a.Drop(ctx))
	defer a.Drop(ctx)

	algoA := otdag.NewAlgorithms[dag.ID, register.Diff](register.NewSystem(), a, dag.CompareIDs, otdag.Options{})
	algoB := otdag.NewAlgorithms[dag.ID, register.Diff](register.NewSystem(), b, dag.CompareIDs, otdag.Options{})
	ma := otdag.NewStateManager[dag.ID, register.Diff](algoA, &register.State{})
	mb := otdag.NewStateManager[dag.ID, register.Diff](algoB, &register.State{})

	_, err := dag.PushRoot[dag.ID, register.Diff](ctx, a, nil)
	require.NoError(t, err)
	require.NoError(t, ma.Checkout(ctx))
	require.NoError(t, mb.Checkout(ctx))

	require.NoError(t, ma.Add(register.Add{Delta: 3}))
	require.NoError(t, mb.Add(register.Add{Delta: 4}))
	require.NoError(t, ma.Sync(ctx))
	require.NoError(t, mb.Sync(ctx))
	require.NoError(t, ma.Sync(ctx))

	assert.Equal(t, int64(7), ma.State().(*register.State).Value)
	assert.Equal(t, int64(7), mb.State().(*register.State).Value)
	assert.Equal(t, ma.Revision(), mb.Revision())
}
