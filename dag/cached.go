package dag

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const DefaultCacheSize = 4096

// CachedRepository keeps recently loaded commits in an LRU cache.
// Concurrent loads of one commit share a single backend call.
type CachedRepository[K comparable, D any] struct {
	Repository[K, D]
	cache *lru.Cache[K, *Commit[K, D]]
	loads singleflight.Group
}

func NewCachedRepository[K comparable, D any](repo Repository[K, D], size int) (*CachedRepository[K, D], error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[K, *Commit[K, D]](size)
	if err != nil {
		return nil, err
	}
	return &CachedRepository[K, D]{Repository: repo, cache: cache}, nil
}

func (r *CachedRepository[K, D]) CreateCommit(ctx context.Context, parents map[K][]D, level uint64) (*Commit[K, D], error) {
	return CreateCommit[K, D](ctx, r, parents, level)
}

func (r *CachedRepository[K, D]) Push(ctx context.Context, commits ...*Commit[K, D]) error {
	if err := r.Repository.Push(ctx, commits...); err != nil {
		return err
	}
	for _, c := range commits {
		r.cache.Add(c.ID, c)
	}
	return nil
}

func (r *CachedRepository[K, D]) LoadCommit(ctx context.Context, id K) (*Commit[K, D], error) {
	if c, ok := r.cache.Get(id); ok {
		return c, nil
	}
	v, err, _ := r.loads.Do(fmt.Sprint(id), func() (any, error) {
		c, err := r.Repository.LoadCommit(ctx, id)
		if err != nil {
			return nil, err
		}
		r.cache.Add(id, c)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Commit[K, D]), nil
}

func (r *CachedRepository[K, D]) SaveSnapshot(ctx context.Context, id K, diffs []D) error {
	if err := r.Repository.SaveSnapshot(ctx, id, diffs); err != nil {
		return err
	}
	// the stored commit now carries a fresher snapshot hint
	r.cache.Remove(id)
	return nil
}

func (r *CachedRepository[K, D]) Len() int {
	return r.cache.Len()
}
