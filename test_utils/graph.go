package testutils

import (
	"context"
	"testing"

	"github.com/drpcorg/otdag/dag"
	"github.com/stretchr/testify/require"
)

// Graph builds commit graphs in a memory repository for tests. Commit
// ids are sequential, the root is always 1.
type Graph[D any] struct {
	t    testing.TB
	ctx  context.Context
	Repo *dag.MemoryRepository[int64, D]
}

func NewGraph[D any](t testing.TB) *Graph[D] {
	g := &Graph[D]{
		t:    t,
		ctx:  context.Background(),
		Repo: dag.NewMemoryRepository[int64, D](dag.Sequence()),
	}
	_, err := dag.PushRoot[int64, D](g.ctx, g.Repo, nil)
	require.NoError(t, err)
	return g
}

const Root int64 = 1

func (g *Graph[D]) level(id int64) uint64 {
	c, err := g.Repo.LoadCommit(g.ctx, id)
	require.NoError(g.t, err)
	return c.Level
}

// Commit adds a child of parent carrying diffs and makes it a head in
// place of parent.
func (g *Graph[D]) Commit(parent int64, diffs ...D) int64 {
	return g.Merge(map[int64][]D{parent: diffs})
}

// Merge adds a commit with several parents.
func (g *Graph[D]) Merge(parents map[int64][]D) int64 {
	var level uint64
	for pid := range parents {
		level = max(level, g.level(pid))
	}
	c, err := g.Repo.CreateCommit(g.ctx, parents, level+1)
	require.NoError(g.t, err)
	require.NoError(g.t, dag.PushAndUpdateHeads[int64, D](g.ctx, g.Repo, c))
	return c.ID
}

// Chain adds one commit per diff, each a child of the previous one.
func (g *Graph[D]) Chain(parent int64, diffs ...D) int64 {
	for _, d := range diffs {
		parent = g.Commit(parent, d)
	}
	return parent
}

func (g *Graph[D]) Heads() []int64 {
	heads, err := g.Repo.GetHeads(g.ctx)
	require.NoError(g.t, err)
	return dag.SortedSet(heads)
}

func (g *Graph[D]) Load(id int64) *dag.Commit[int64, D] {
	c, err := g.Repo.LoadCommit(g.ctx, id)
	require.NoError(g.t, err)
	return c
}
