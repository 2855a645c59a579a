package dag

import (
	"context"
	"errors"
	"sync"

	"github.com/drpcorg/otdag/otdag_errors"
	"golang.org/x/sync/errgroup"
)

// Repository persists the commit graph. Commits and snapshots are
// write-once; the head set is the only mutable part and changes only
// through UpdateHeads.
type Repository[K comparable, D any] interface {
	// CreateCommitID allocates a fresh, unused id.
	CreateCommitID(ctx context.Context) (K, error)
	// CreateCommit builds (but does not push) a commit with a fresh id.
	CreateCommit(ctx context.Context, parents map[K][]D, level uint64) (*Commit[K, D], error)
	// Push stores commits; pushing a known commit again is a no-op.
	Push(ctx context.Context, commits ...*Commit[K, D]) error
	GetHeads(ctx context.Context) (Set[K], error)
	// UpdateHeads atomically removes remove and adds add. It fails with
	// ErrHeadsConflict, changing nothing, when an id in remove is not a
	// head at that moment.
	UpdateHeads(ctx context.Context, add, remove Set[K]) error
	// LoadCommit fails with ErrCommitNotFound for unknown ids.
	LoadCommit(ctx context.Context, id K) (*Commit[K, D], error)
	SaveSnapshot(ctx context.Context, id K, diffs []D) error
	// LoadSnapshot reports ok == false when no snapshot exists.
	LoadSnapshot(ctx context.Context, id K) (diffs []D, ok bool, err error)
}

// CreateCommit is the usual CreateCommit: allocate an id, build a commit.
func CreateCommit[K comparable, D any](ctx context.Context, repo Repository[K, D], parents map[K][]D, level uint64) (*Commit[K, D], error) {
	id, err := repo.CreateCommitID(ctx)
	if err != nil {
		return nil, err
	}
	return NewCommit(id, parents, level), nil
}

// PushRoot initializes an empty repository: a root commit, optionally
// with a snapshot of initial diffs, becomes the only head.
func PushRoot[K comparable, D any](ctx context.Context, repo Repository[K, D], initial []D) (*Commit[K, D], error) {
	heads, err := repo.GetHeads(ctx)
	if err != nil {
		return nil, err
	}
	if len(heads) != 0 {
		return nil, otdag_errors.ErrHeadsConflict
	}
	root, err := repo.CreateCommit(ctx, nil, 1)
	if err != nil {
		return nil, err
	}
	root.Snapshot = SnapshotPresent
	if err = repo.Push(ctx, root); err != nil {
		return nil, err
	}
	if err = repo.SaveSnapshot(ctx, root.ID, initial); err != nil {
		return nil, err
	}
	if err = repo.UpdateHeads(ctx, NewSet(root.ID), nil); err != nil {
		return nil, err
	}
	return root, nil
}

// PushAndUpdateHeads pushes commits and makes the ones that are not a
// parent of another pushed commit heads, replacing whichever of their
// parents are heads. Concurrent head changes are re-read and retried.
func PushAndUpdateHeads[K comparable, D any](ctx context.Context, repo Repository[K, D], commits ...*Commit[K, D]) error {
	if len(commits) == 0 {
		return nil
	}
	if err := repo.Push(ctx, commits...); err != nil {
		return err
	}
	parents := NewSet[K]()
	for _, c := range commits {
		for id := range c.Parents {
			parents.Add(id)
		}
	}
	add := NewSet[K]()
	for _, c := range commits {
		if !parents.Has(c.ID) {
			add.Add(c.ID)
		}
	}
	const attempts = 16
	var err error
	for i := 0; i < attempts; i++ {
		var heads Set[K]
		if heads, err = repo.GetHeads(ctx); err != nil {
			return err
		}
		remove := NewSet[K]()
		for id := range parents {
			if heads.Has(id) {
				remove.Add(id)
			}
		}
		err = repo.UpdateHeads(ctx, add, remove)
		if !errors.Is(err, otdag_errors.ErrHeadsConflict) {
			return err
		}
	}
	return err
}

// LoadCommits loads several commits concurrently, keyed by id.
func LoadCommits[K comparable, D any](ctx context.Context, repo Repository[K, D], ids Set[K]) (map[K]*Commit[K, D], error) {
	out := make(map[K]*Commit[K, D], len(ids))
	var lock sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for id := range ids {
		id := id
		g.Go(func() error {
			c, err := repo.LoadCommit(gctx, id)
			if err != nil {
				return err
			}
			lock.Lock()
			out[id] = c
			lock.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
