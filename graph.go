package otdag

import (
	"context"
	"fmt"
	"slices"

	"github.com/drpcorg/otdag/dag"
	"github.com/drpcorg/otdag/otdag_errors"
	"github.com/drpcorg/otdag/utils"
)

type loadFunc[K comparable, D any] func(ctx context.Context, id K) (*dag.Commit[K, D], error)

// levelQueue hands out commits highest level first. Commits of one level
// come out as a batch sorted by id so that walks are deterministic.
type levelQueue[K comparable] struct {
	heap    utils.MaxHeap[uint64, K]
	compare func(a, b K) int
}

func (q *levelQueue[K]) push(level uint64, id K) {
	q.heap.Push(level, id)
}

func (q *levelQueue[K]) empty() bool {
	return q.heap.Len() == 0
}

func (q *levelQueue[K]) popLevel() (level uint64, ids []K) {
	level, id := q.heap.Pop()
	ids = append(ids, id)
	for q.heap.Len() > 0 {
		if top, _ := q.heap.Peek(); top != level {
			break
		}
		_, id = q.heap.Pop()
		ids = append(ids, id)
	}
	slices.SortFunc(ids, q.compare)
	return level, ids
}

// FindResult is an ancestor found by FindParent together with the diffs
// leading from it to the start commit Child it was reached from.
type FindResult[K comparable, D any] struct {
	Commit *dag.Commit[K, D]
	Child  K
	Diffs  []D
}

type walkNode[K comparable, D any] struct {
	commit *dag.Commit[K, D]
	child  K
	diffs  []D
}

// FindParent walks back from start, highest level first, and returns the
// first commit accepted by match. Each commit is reached once, along the
// first path that got to it.
func (a *Algorithms[K, D]) FindParent(ctx context.Context, start dag.Set[K], match func(*dag.Commit[K, D]) (bool, error)) (*FindResult[K, D], error) {
	return a.findParent(ctx, a.repo.LoadCommit, start, match)
}

func (a *Algorithms[K, D]) findParent(ctx context.Context, load loadFunc[K, D], start dag.Set[K], match func(*dag.Commit[K, D]) (bool, error)) (*FindResult[K, D], error) {
	q := levelQueue[K]{compare: a.compare}
	seen := make(map[K]*walkNode[K, D], len(start))
	for id := range start {
		c, err := load(ctx, id)
		if err != nil {
			return nil, err
		}
		seen[id] = &walkNode[K, D]{commit: c, child: id}
		q.push(c.Level, id)
	}
	for !q.empty() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, ids := q.popLevel()
		for _, id := range ids {
			node := seen[id]
			ok, err := match(node.commit)
			if err != nil {
				return nil, err
			}
			if ok {
				return &FindResult[K, D]{Commit: node.commit, Child: node.child, Diffs: node.diffs}, nil
			}
			for _, pid := range node.commit.ParentIDs().Sorted(a.compare) {
				if _, ok := seen[pid]; ok {
					continue
				}
				pc, err := load(ctx, pid)
				if err != nil {
					return nil, err
				}
				seen[pid] = &walkNode[K, D]{
					commit: pc,
					child:  node.child,
					diffs:  concat(node.commit.Parents[pid], node.diffs),
				}
				q.push(pc.Level, pid)
			}
		}
	}
	return nil, fmt.Errorf("%w: no matching ancestor", otdag_errors.ErrCommitNotFound)
}

type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) set(i int) {
	b[i/64] |= 1 << (i % 64)
}

func (b bitset) or(other bitset) {
	for i := range b {
		b[i] |= other[i]
	}
}

func (b bitset) full(n int) bool {
	for i := 0; i < n; i++ {
		if b[i/64]&(1<<(i%64)) == 0 {
			return false
		}
	}
	return true
}

// mergeBase is the outcome of the merge-base search. Live heads are the
// ones not reachable from another head, sorted by id.
type mergeBase[K comparable, D any] struct {
	base    *dag.Commit[K, D]
	heads   []K
	live    []K
	stale   dag.Set[K]
	commits map[K]*dag.Commit[K, D]
}

// findMergeBase walks back from all heads at once, highest level first,
// tracking which heads reach every commit. The first commit reached by
// all heads is the merge base. A head reached from another head is
// stale: it is already contained in that head's history.
func (a *Algorithms[K, D]) findMergeBase(ctx context.Context, heads dag.Set[K]) (*mergeBase[K, D], error) {
	if len(heads) == 0 {
		return nil, otdag_errors.ErrNoHeads
	}
	order := heads.Sorted(a.compare)
	n := len(order)
	mb := &mergeBase[K, D]{
		heads:   order,
		stale:   dag.NewSet[K](),
		commits: make(map[K]*dag.Commit[K, D]),
	}
	index := make(map[K]int, n)
	reach := make(map[K]bitset)
	q := levelQueue[K]{compare: a.compare}
	loaded, err := dag.LoadCommits(ctx, a.repo, heads)
	if err != nil {
		return nil, err
	}
	for i, id := range order {
		c := loaded[id]
		index[id] = i
		mb.commits[id] = c
		reach[id] = newBitset(n)
		reach[id].set(i)
		q.push(c.Level, id)
	}
	for !q.empty() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, ids := q.popLevel()
		for _, id := range ids {
			c := mb.commits[id]
			bits := reach[id]
			if bits.full(n) {
				mb.base = c
				for _, h := range order {
					if !mb.stale.Has(h) {
						mb.live = append(mb.live, h)
					}
				}
				return mb, nil
			}
			for _, pid := range c.ParentIDs().Sorted(a.compare) {
				if _, isHead := index[pid]; isHead {
					mb.stale.Add(pid)
				}
				if pbits, ok := reach[pid]; ok {
					pbits.or(bits)
					continue
				}
				pc, err := a.repo.LoadCommit(ctx, pid)
				if err != nil {
					return nil, err
				}
				mb.commits[pid] = pc
				pbits := newBitset(n)
				pbits.or(bits)
				reach[pid] = pbits
				q.push(pc.Level, pid)
			}
		}
	}
	return nil, otdag_errors.ErrDisjointHistory
}

// path returns the diffs leading from the merge base to head, following
// any single path through the commits loaded by the search.
func (a *Algorithms[K, D]) path(ctx context.Context, mb *mergeBase[K, D], head K) ([]D, error) {
	if head == mb.base.ID {
		return nil, nil
	}
	load := func(ctx context.Context, id K) (*dag.Commit[K, D], error) {
		if c, ok := mb.commits[id]; ok {
			return c, nil
		}
		return a.repo.LoadCommit(ctx, id)
	}
	found, err := a.findParent(ctx, load, dag.NewSet(head), func(c *dag.Commit[K, D]) (bool, error) {
		return c.ID == mb.base.ID, nil
	})
	if err != nil {
		return nil, err
	}
	return found.Diffs, nil
}

// ExcludeParents drops the heads that are ancestors of other heads.
func (a *Algorithms[K, D]) ExcludeParents(ctx context.Context, heads dag.Set[K]) (dag.Set[K], error) {
	if len(heads) < 2 {
		return heads.Clone(), nil
	}
	q := levelQueue[K]{compare: a.compare}
	minLevel := ^uint64(0)
	loaded, err := dag.LoadCommits(ctx, a.repo, heads)
	if err != nil {
		return nil, err
	}
	for id, c := range loaded {
		minLevel = min(minLevel, c.Level)
		q.push(c.Level, id)
	}
	out := heads.Clone()
	for !q.empty() {
		level, ids := q.popLevel()
		if level <= minLevel {
			break
		}
		for _, id := range ids {
			for pid := range loaded[id].Parents {
				if heads.Has(pid) {
					out.Remove(pid)
				}
				if _, ok := loaded[pid]; ok {
					continue
				}
				pc, err := a.repo.LoadCommit(ctx, pid)
				if err != nil {
					return nil, err
				}
				loaded[pid] = pc
				if pc.Level >= minLevel {
					q.push(pc.Level, pid)
				}
			}
		}
	}
	return out, nil
}

// Diff returns the diffs turning the state at from into the state at to,
// going through their merge base.
func (a *Algorithms[K, D]) Diff(ctx context.Context, from, to K) ([]D, error) {
	if from == to {
		return nil, nil
	}
	mb, err := a.findMergeBase(ctx, dag.NewSet(from, to))
	if err != nil {
		return nil, err
	}
	back, err := a.path(ctx, mb, from)
	if err != nil {
		return nil, err
	}
	forth, err := a.path(ctx, mb, to)
	if err != nil {
		return nil, err
	}
	return a.sys.Squash(concat(a.sys.Invert(back), forth)), nil
}
