package otdag

import (
	"context"
	"errors"
	"time"

	"github.com/drpcorg/otdag/dag"
	"github.com/drpcorg/otdag/otdag_errors"
	"github.com/drpcorg/otdag/utils"
	"github.com/google/uuid"
)

// MergeResult describes a merge of a set of heads. Commit is nil when
// only one live head remains and there is nothing to merge.
type MergeResult[K comparable, D any] struct {
	Commit *dag.Commit[K, D]
	Base   K
	Heads  dag.Set[K]
	Live   []K
	Stale  dag.Set[K]
}

// Head is the commit that represents all merged heads.
func (r *MergeResult[K, D]) Head() K {
	if r.Commit != nil {
		return r.Commit.ID
	}
	return r.Live[0]
}

// ComputeMerge builds, but does not push, a commit merging heads.
// Live heads are folded in id order: the merged sequence is transformed
// against the next head's path, everything merged so far catches up with
// the left side and the new head with the right side.
func (a *Algorithms[K, D]) ComputeMerge(ctx context.Context, heads dag.Set[K]) (*MergeResult[K, D], error) {
	mb, err := a.findMergeBase(ctx, heads)
	if err != nil {
		return nil, err
	}
	res := &MergeResult[K, D]{
		Base:  mb.base.ID,
		Heads: heads.Clone(),
		Live:  mb.live,
		Stale: mb.stale,
	}
	if len(mb.live) < 2 {
		return res, nil
	}
	catchup := make(map[K][]D, len(mb.live))
	var merged []D
	var level uint64
	for i, head := range mb.live {
		level = max(level, mb.commits[head].Level)
		p, err := a.path(ctx, mb, head)
		if err != nil {
			return nil, err
		}
		p = a.sys.Squash(p)
		if i == 0 {
			merged = p
			catchup[head] = nil
			continue
		}
		tr, err := a.sys.Transform(merged, p)
		if err != nil {
			if errors.Is(err, otdag_errors.ErrTransformConflict) {
				TransformConflicts.Inc()
			}
			return nil, err
		}
		for _, prev := range mb.live[:i] {
			catchup[prev] = concat(catchup[prev], tr.Left)
		}
		catchup[head] = tr.Right
		merged = concat(merged, tr.Left)
	}
	parents := make(map[K][]D, len(catchup))
	for head, diffs := range catchup {
		parents[head] = a.sys.Squash(diffs)
	}
	res.Commit, err = a.repo.CreateCommit(ctx, parents, level+1)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Merge computes and pushes a merge commit for heads without touching
// the head set.
func (a *Algorithms[K, D]) Merge(ctx context.Context, heads dag.Set[K]) (*MergeResult[K, D], error) {
	res, err := a.ComputeMerge(ctx, heads)
	if err != nil {
		return nil, err
	}
	if res.Commit != nil {
		if err = a.repo.Push(ctx, res.Commit); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// MergeHeads merges the current heads into one and makes it the only
// head. Losing a race for the head set restarts the whole merge with the
// fresh heads, pausing a little longer after every lost race.
func (a *Algorithms[K, D]) MergeHeads(ctx context.Context) (K, error) {
	ctx = utils.WithDefaultArgs(ctx, "merge", uuid.Must(uuid.NewV7()).String())
	started := time.Now()
	backoff := a.opts.Backoff
	var zero K
	for attempt := 1; ; attempt++ {
		head, err := a.mergeHeadsOnce(ctx)
		if err == nil {
			MergeDuration.Observe(time.Since(started).Seconds())
			return head, nil
		}
		if !errors.Is(err, otdag_errors.ErrHeadsConflict) {
			MergeCount.WithLabelValues("failed").Inc()
			a.log.ErrorCtx(ctx, "merge aborted", "attempt", attempt, "err", err)
			return zero, err
		}
		MergeRetries.Inc()
		if attempt >= a.opts.MergeAttempts {
			MergeCount.WithLabelValues("failed").Inc()
			a.log.ErrorCtx(ctx, "merge gave up", "attempts", attempt)
			return zero, err
		}
		a.log.WarnCtx(ctx, "heads changed during merge, retrying", "attempt", attempt, "backoff", backoff)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, a.opts.MaxBackoff)
	}
}

func (a *Algorithms[K, D]) mergeHeadsOnce(ctx context.Context) (K, error) {
	var zero K
	heads, err := a.repo.GetHeads(ctx)
	if err != nil {
		return zero, err
	}
	switch len(heads) {
	case 0:
		return zero, otdag_errors.ErrNoHeads
	case 1:
		for id := range heads {
			return id, nil
		}
	}
	res, err := a.Merge(ctx, heads)
	if err != nil {
		return zero, err
	}
	if res.Commit == nil {
		// one live head, the others are its ancestors
		if err = a.repo.UpdateHeads(ctx, nil, res.Stale); err != nil {
			return zero, err
		}
		MergeCount.WithLabelValues("stale").Inc()
		a.log.InfoCtx(ctx, "evicted stale heads", "head", res.Head(), "stale", len(res.Stale))
		return res.Head(), nil
	}
	if err = a.repo.UpdateHeads(ctx, dag.NewSet(res.Commit.ID), heads); err != nil {
		return zero, err
	}
	MergeCount.WithLabelValues("merged").Inc()
	a.log.InfoCtx(ctx, "merged heads", "heads", len(heads), "live", len(res.Live), "level", res.Commit.Level)
	return res.Commit.ID, nil
}
