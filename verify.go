package otdag

import (
	"context"
	"fmt"

	"github.com/drpcorg/otdag/dag"
	"github.com/drpcorg/otdag/otdag_errors"
)

// Verify loads every commit reachable from the heads and checks that
// levels are consistent and that no head has a child. It returns the
// number of commits checked.
func (a *Algorithms[K, D]) Verify(ctx context.Context) (int, error) {
	heads, err := a.repo.GetHeads(ctx)
	if err != nil {
		return 0, err
	}
	seen := make(map[K]*dag.Commit[K, D])
	todo := heads.Sorted(a.compare)
	for len(todo) > 0 {
		id := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		if _, ok := seen[id]; ok {
			continue
		}
		c, err := a.repo.LoadCommit(ctx, id)
		if err != nil {
			return len(seen), err
		}
		seen[id] = c
		for pid := range c.Parents {
			todo = append(todo, pid)
		}
	}
	for id, c := range seen {
		want := uint64(1)
		for pid := range c.Parents {
			if heads.Has(pid) {
				return len(seen), fmt.Errorf("%w: %v is a parent of %v", otdag_errors.ErrStaleHead, pid, id)
			}
			want = max(want, seen[pid].Level+1)
		}
		if c.Level != want {
			return len(seen), fmt.Errorf("%w: commit %v has level %d, expected %d", otdag_errors.ErrLevelInvariant, id, c.Level, want)
		}
	}
	return len(seen), nil
}
