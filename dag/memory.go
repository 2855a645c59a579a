package dag

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/drpcorg/otdag/otdag_errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryRepository keeps the whole graph in process memory.
type MemoryRepository[K comparable, D any] struct {
	nextID    func() K
	commits   *xsync.MapOf[K, *Commit[K, D]]
	snapshots *xsync.MapOf[K, []D]

	lock  sync.Mutex
	heads Set[K]
}

func NewMemoryRepository[K comparable, D any](nextID func() K) *MemoryRepository[K, D] {
	return &MemoryRepository[K, D]{
		nextID:    nextID,
		commits:   xsync.NewMapOf[K, *Commit[K, D]](),
		snapshots: xsync.NewMapOf[K, []D](),
		heads:     NewSet[K](),
	}
}

// Sequence returns an id generator counting up from 1.
func Sequence() func() int64 {
	var seq atomic.Int64
	return func() int64 {
		return seq.Add(1)
	}
}

// IDSequence returns a generator of ids of the given replica.
func IDSequence(src uint64) func() ID {
	var seq atomic.Uint64
	return func() ID {
		return ID{Src: src, Seq: seq.Add(1)}
	}
}

func (r *MemoryRepository[K, D]) CreateCommitID(ctx context.Context) (K, error) {
	return r.nextID(), nil
}

func (r *MemoryRepository[K, D]) CreateCommit(ctx context.Context, parents map[K][]D, level uint64) (*Commit[K, D], error) {
	return CreateCommit[K, D](ctx, r, parents, level)
}

func (r *MemoryRepository[K, D]) Push(ctx context.Context, commits ...*Commit[K, D]) error {
	for _, c := range commits {
		r.commits.LoadOrStore(c.ID, c)
	}
	return nil
}

func (r *MemoryRepository[K, D]) GetHeads(ctx context.Context) (Set[K], error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.heads.Clone(), nil
}

func (r *MemoryRepository[K, D]) UpdateHeads(ctx context.Context, add, remove Set[K]) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for id := range remove {
		if !r.heads.Has(id) {
			return otdag_errors.ErrHeadsConflict
		}
	}
	for id := range remove {
		r.heads.Remove(id)
	}
	for id := range add {
		r.heads.Add(id)
	}
	return nil
}

func (r *MemoryRepository[K, D]) LoadCommit(ctx context.Context, id K) (*Commit[K, D], error) {
	c, ok := r.commits.Load(id)
	if !ok {
		return nil, otdag_errors.ErrCommitNotFound
	}
	return c, nil
}

func (r *MemoryRepository[K, D]) SaveSnapshot(ctx context.Context, id K, diffs []D) error {
	r.snapshots.Store(id, slices.Clone(diffs))
	if c, ok := r.commits.Load(id); ok && c.Snapshot != SnapshotPresent {
		r.commits.Store(id, c.WithSnapshot(SnapshotPresent))
	}
	return nil
}

func (r *MemoryRepository[K, D]) LoadSnapshot(ctx context.Context, id K) ([]D, bool, error) {
	diffs, ok := r.snapshots.Load(id)
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(diffs), true, nil
}

// Size is the number of stored commits.
func (r *MemoryRepository[K, D]) Size() int {
	return r.commits.Size()
}
