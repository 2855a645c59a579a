package otdag

import (
	"context"
	"errors"

	"github.com/drpcorg/otdag/dag"
	"github.com/drpcorg/otdag/otdag_errors"
	"github.com/drpcorg/otdag/utils"
)

// StateManager is one replica's working copy: a materialized state at a
// revision plus local changes on top of it. Local diffs are first added
// as working diffs, committed into pending commits and then pushed.
//
// A StateManager is not safe for concurrent use.
type StateManager[K comparable, D any] struct {
	algo  *Algorithms[K, D]
	state State[D]
	log   utils.Logger

	revision K
	level    uint64
	working  []D
	pending  []*dag.Commit[K, D]

	fetched *fetched[K, D]
	invalid bool
}

type fetched[K comparable, D any] struct {
	revision K
	level    uint64
	diffs    []D
}

func NewStateManager[K comparable, D any](algo *Algorithms[K, D], state State[D]) *StateManager[K, D] {
	return &StateManager[K, D]{algo: algo, state: state, log: algo.log, invalid: true}
}

func (m *StateManager[K, D]) Revision() K {
	return m.revision
}

func (m *StateManager[K, D]) State() State[D] {
	return m.state
}

// WorkingDiffs are the added diffs not yet committed.
func (m *StateManager[K, D]) WorkingDiffs() []D {
	return m.working
}

func (m *StateManager[K, D]) Pending() []*dag.Commit[K, D] {
	return m.pending
}

func (m *StateManager[K, D]) Valid() bool {
	return !m.invalid
}

// Checkout discards local changes and materializes the highest head.
func (m *StateManager[K, D]) Checkout(ctx context.Context) error {
	heads, err := m.algo.repo.GetHeads(ctx)
	if err != nil {
		return err
	}
	if len(heads) == 0 {
		return otdag_errors.ErrNoHeads
	}
	loaded, err := dag.LoadCommits(ctx, m.algo.repo, heads)
	if err != nil {
		return err
	}
	var best *dag.Commit[K, D]
	for _, id := range heads.Sorted(m.algo.compare) {
		c := loaded[id]
		if best == nil || c.Level > best.Level {
			best = c
		}
	}
	return m.checkout(ctx, best)
}

// CheckoutRevision discards local changes and materializes revision.
func (m *StateManager[K, D]) CheckoutRevision(ctx context.Context, revision K) error {
	c, err := m.algo.repo.LoadCommit(ctx, revision)
	if err != nil {
		return err
	}
	return m.checkout(ctx, c)
}

func (m *StateManager[K, D]) checkout(ctx context.Context, c *dag.Commit[K, D]) error {
	diffs, err := m.algo.Checkout(ctx, c.ID)
	if err != nil {
		return err
	}
	Materialize(m.state, diffs)
	m.revision = c.ID
	m.level = c.Level
	m.working = nil
	m.pending = nil
	m.fetched = nil
	m.invalid = false
	m.log.DebugCtx(ctx, "checked out", "revision", c.ID, "level", c.Level)
	return nil
}

// Add applies diffs to the state and records them as working diffs.
func (m *StateManager[K, D]) Add(diffs ...D) error {
	if m.invalid {
		return otdag_errors.ErrClosed
	}
	for _, d := range diffs {
		m.state.Apply(d)
	}
	m.working = append(m.working, diffs...)
	return nil
}

func (m *StateManager[K, D]) tip() (K, uint64) {
	if n := len(m.pending); n > 0 {
		return m.pending[n-1].ID, m.pending[n-1].Level
	}
	return m.revision, m.level
}

// Commit turns the working diffs into a pending commit. It returns nil
// when the working diffs squash to nothing.
func (m *StateManager[K, D]) Commit(ctx context.Context) (*dag.Commit[K, D], error) {
	if m.invalid {
		return nil, otdag_errors.ErrClosed
	}
	diffs := m.algo.sys.Squash(m.working)
	if len(diffs) == 0 {
		m.working = nil
		return nil, nil
	}
	parent, level := m.tip()
	c, err := m.algo.repo.CreateCommit(ctx, map[K][]D{parent: diffs}, level+1)
	if err != nil {
		return nil, err
	}
	m.pending = append(m.pending, c)
	m.working = nil
	return c, nil
}

// Push stores the pending commits and makes the last one a head.
func (m *StateManager[K, D]) Push(ctx context.Context) error {
	if m.invalid {
		return otdag_errors.ErrClosed
	}
	if len(m.pending) == 0 {
		return nil
	}
	if err := dag.PushAndUpdateHeads(ctx, m.algo.repo, m.pending...); err != nil {
		return err
	}
	m.revision, m.level = m.tip()
	m.log.DebugCtx(ctx, "pushed", "commits", len(m.pending), "revision", m.revision)
	m.pending = nil
	return nil
}

func (m *StateManager[K, D]) CommitAndPush(ctx context.Context) error {
	if _, err := m.Commit(ctx); err != nil {
		return err
	}
	return m.Push(ctx)
}

// Fetch merges the repository heads and remembers the diffs leading from
// the current revision to the merged head. It does not touch the state.
func (m *StateManager[K, D]) Fetch(ctx context.Context) error {
	if m.invalid {
		return otdag_errors.ErrClosed
	}
	head, err := m.algo.MergeHeads(ctx)
	if err != nil {
		return err
	}
	if head == m.revision {
		m.fetched = nil
		return nil
	}
	c, err := m.algo.repo.LoadCommit(ctx, head)
	if err != nil {
		return err
	}
	diffs, err := m.algo.Diff(ctx, m.revision, head)
	if err != nil {
		return err
	}
	m.fetched = &fetched[K, D]{revision: head, level: c.Level, diffs: diffs}
	m.log.DebugCtx(ctx, "fetched", "revision", head, "diffs", len(diffs))
	return nil
}

// Rebase moves the replica onto the fetched revision. Local changes,
// pending commits included, are transformed against the fetched diffs
// and kept as working diffs. A transform conflict invalidates the
// manager; Checkout brings it back.
func (m *StateManager[K, D]) Rebase(ctx context.Context) error {
	if m.invalid {
		return otdag_errors.ErrClosed
	}
	if m.fetched == nil {
		return nil
	}
	var local []D
	for _, c := range m.pending {
		for _, diffs := range c.Parents {
			local = append(local, diffs...)
		}
	}
	local = m.algo.sys.Squash(append(local, m.working...))
	tr, err := m.algo.sys.Transform(local, m.fetched.diffs)
	if err != nil {
		if errors.Is(err, otdag_errors.ErrTransformConflict) {
			m.invalid = true
			m.log.ErrorCtx(ctx, "rebase conflict, state manager invalidated", "err", err)
		}
		return err
	}
	for _, d := range tr.Left {
		m.state.Apply(d)
	}
	m.revision = m.fetched.revision
	m.level = m.fetched.level
	m.working = m.algo.sys.Squash(tr.Right)
	m.pending = nil
	m.fetched = nil
	return nil
}

func (m *StateManager[K, D]) Pull(ctx context.Context) error {
	if err := m.Fetch(ctx); err != nil {
		return err
	}
	return m.Rebase(ctx)
}

// Reset drops local changes, reverting the state to the revision.
func (m *StateManager[K, D]) Reset() error {
	if m.invalid {
		return otdag_errors.ErrClosed
	}
	var local []D
	for _, c := range m.pending {
		for _, diffs := range c.Parents {
			local = append(local, diffs...)
		}
	}
	local = append(local, m.working...)
	for _, d := range m.algo.sys.Invert(local) {
		m.state.Apply(d)
	}
	m.working = nil
	m.pending = nil
	return nil
}

// Sync commits and pushes local changes, then pulls everyone else's.
// After a successful Sync with no concurrent writers the replica sits on
// the single head with an empty working set.
func (m *StateManager[K, D]) Sync(ctx context.Context) error {
	if err := m.CommitAndPush(ctx); err != nil {
		return err
	}
	if err := m.Pull(ctx); err != nil {
		return err
	}
	return m.CommitAndPush(ctx)
}
