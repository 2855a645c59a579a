package otdag

import (
	"context"

	"github.com/drpcorg/otdag/dag"
)

// Checkout returns diffs that rebuild the state at revision from the
// empty state, starting at the nearest ancestor with a snapshot. A root
// without a snapshot stands for the empty state.
func (a *Algorithms[K, D]) Checkout(ctx context.Context, revision K) ([]D, error) {
	var snapshot []D
	found, err := a.FindParent(ctx, dag.NewSet(revision), func(c *dag.Commit[K, D]) (bool, error) {
		if c.Snapshot != dag.SnapshotAbsent {
			diffs, ok, err := a.repo.LoadSnapshot(ctx, c.ID)
			if err != nil {
				return false, err
			}
			if ok {
				snapshot = diffs
				return true, nil
			}
		}
		return c.IsRoot(), nil
	})
	if err != nil {
		return nil, err
	}
	if snapshot != nil || found.Commit.Snapshot == dag.SnapshotPresent {
		CheckoutCount.WithLabelValues("snapshot").Inc()
	} else {
		CheckoutCount.WithLabelValues("root").Inc()
	}
	a.log.DebugCtx(ctx, "checkout", "from", found.Commit.ID, "level", found.Commit.Level, "diffs", len(found.Diffs))
	return concat(snapshot, found.Diffs), nil
}

// CheckoutFromRoot replays the whole history along one path from the
// root, ignoring snapshots other than the root's own.
func (a *Algorithms[K, D]) CheckoutFromRoot(ctx context.Context, revision K) ([]D, error) {
	found, err := a.FindParent(ctx, dag.NewSet(revision), func(c *dag.Commit[K, D]) (bool, error) {
		return c.IsRoot(), nil
	})
	if err != nil {
		return nil, err
	}
	initial, _, err := a.repo.LoadSnapshot(ctx, found.Commit.ID)
	if err != nil {
		return nil, err
	}
	CheckoutCount.WithLabelValues("root").Inc()
	return concat(initial, found.Diffs), nil
}

// SaveSnapshot stores the squashed state at revision as its snapshot.
func (a *Algorithms[K, D]) SaveSnapshot(ctx context.Context, revision K) error {
	diffs, err := a.Checkout(ctx, revision)
	if err != nil {
		return err
	}
	if err = a.repo.SaveSnapshot(ctx, revision, a.sys.Squash(diffs)); err != nil {
		return err
	}
	a.log.DebugCtx(ctx, "snapshot saved", "revision", revision)
	return nil
}

// CheckoutState materializes the state at revision.
func (a *Algorithms[K, D]) CheckoutState(ctx context.Context, state State[D], revision K) error {
	diffs, err := a.Checkout(ctx, revision)
	if err != nil {
		return err
	}
	Materialize(state, diffs)
	return nil
}
