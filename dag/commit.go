// Package dag models the commit graph: immutable commits linked to their
// parents by the diffs that lead from each parent to the commit.
package dag

import (
	"maps"
	"time"
)

// SnapshotHint tells whether a snapshot is known to exist for a commit.
type SnapshotHint uint8

const (
	SnapshotUnknown SnapshotHint = iota
	SnapshotAbsent
	SnapshotPresent
)

func (h SnapshotHint) String() string {
	switch h {
	case SnapshotAbsent:
		return "absent"
	case SnapshotPresent:
		return "present"
	default:
		return "unknown"
	}
}

// Commit is an immutable node of the graph. Parents maps each parent id
// to the diffs that turn the parent's state into this commit's state.
// A root has no parents and Level 1; any other commit has Level equal to
// one plus the highest parent level.
type Commit[K comparable, D any] struct {
	ID        K
	Parents   map[K][]D
	Level     uint64
	Timestamp time.Time
	Snapshot  SnapshotHint
}

func NewCommit[K comparable, D any](id K, parents map[K][]D, level uint64) *Commit[K, D] {
	if parents == nil {
		parents = map[K][]D{}
	}
	return &Commit[K, D]{
		ID:        id,
		Parents:   parents,
		Level:     level,
		Timestamp: time.Now(),
	}
}

func NewRoot[K comparable, D any](id K) *Commit[K, D] {
	return NewCommit[K, D](id, nil, 1)
}

func (c *Commit[K, D]) IsRoot() bool {
	return len(c.Parents) == 0
}

func (c *Commit[K, D]) ParentIDs() Set[K] {
	out := make(Set[K], len(c.Parents))
	for id := range c.Parents {
		out.Add(id)
	}
	return out
}

// WithSnapshot returns a copy carrying the given hint; commits are never
// modified in place.
func (c *Commit[K, D]) WithSnapshot(h SnapshotHint) *Commit[K, D] {
	cp := *c
	cp.Parents = maps.Clone(c.Parents)
	cp.Snapshot = h
	return &cp
}

// Snapshot is the materialized state at a revision, written as diffs
// that rebuild it from the empty state.
type Snapshot[K comparable, D any] struct {
	RevisionID K
	Diffs      []D
}
