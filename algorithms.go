// Package otdag keeps replicas of shared state convergent. Every change is
// a diff, diffs are grouped into commits of a commit graph, and diverged
// heads are reconciled by transforming concurrent diffs.
package otdag

import (
	"time"

	"github.com/drpcorg/otdag/dag"
	"github.com/drpcorg/otdag/ot"
	"github.com/drpcorg/otdag/utils"
)

type Options struct {
	// MergeAttempts bounds how many times a merge is recomputed after
	// losing a race on the head set.
	MergeAttempts int
	Backoff       time.Duration
	MaxBackoff    time.Duration
	Logger        utils.Logger
}

func (o *Options) SetDefaults() {
	if o.MergeAttempts <= 0 {
		o.MergeAttempts = 10
	}
	if o.Backoff <= 0 {
		o.Backoff = 10 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = time.Second
	}
	if o.Logger == nil {
		o.Logger = utils.NewDiscardLogger()
	}
}

// Algorithms runs graph algorithms over one repository and diff family.
// compare orders commit ids; it makes merges deterministic.
type Algorithms[K comparable, D any] struct {
	sys     ot.System[D]
	repo    dag.Repository[K, D]
	compare func(a, b K) int
	log     utils.Logger
	opts    Options
}

func NewAlgorithms[K comparable, D any](sys ot.System[D], repo dag.Repository[K, D], compare func(a, b K) int, opts Options) *Algorithms[K, D] {
	opts.SetDefaults()
	return &Algorithms[K, D]{
		sys:     sys,
		repo:    repo,
		compare: compare,
		log:     opts.Logger,
		opts:    opts,
	}
}

func (a *Algorithms[K, D]) System() ot.System[D] {
	return a.sys
}

func (a *Algorithms[K, D]) Repository() dag.Repository[K, D] {
	return a.repo
}

// State is application state rebuilt by replaying diffs.
type State[D any] interface {
	// Init resets to the empty state.
	Init()
	// Apply moves the state forward by one diff.
	Apply(d D)
}

// Materialize resets state and replays diffs into it.
func Materialize[D any](state State[D], diffs []D) {
	state.Init()
	for _, d := range diffs {
		state.Apply(d)
	}
}

func concat[D any](lists ...[]D) []D {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	out := make([]D, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
