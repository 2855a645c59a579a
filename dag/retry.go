package dag

import (
	"context"
	"errors"
	"time"

	"github.com/drpcorg/otdag/otdag_errors"
	"github.com/drpcorg/otdag/utils"
)

type RetryOptions struct {
	// Attempts is the total number of tries per call.
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
	Logger     utils.Logger
}

func (o *RetryOptions) SetDefaults() {
	if o.Attempts <= 0 {
		o.Attempts = 5
	}
	if o.Backoff <= 0 {
		o.Backoff = 20 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = time.Second
	}
	if o.Logger == nil {
		o.Logger = utils.NewDiscardLogger()
	}
}

// RetryRepository retries calls failing with ErrRepositoryIO, doubling
// the pause after each failure. Every other error is returned at once.
type RetryRepository[K comparable, D any] struct {
	repo Repository[K, D]
	opts RetryOptions
}

func NewRetryRepository[K comparable, D any](repo Repository[K, D], opts RetryOptions) *RetryRepository[K, D] {
	opts.SetDefaults()
	return &RetryRepository[K, D]{repo: repo, opts: opts}
}

func retry[T any](ctx context.Context, opts *RetryOptions, op string, f func() (T, error)) (res T, err error) {
	backoff := opts.Backoff
	for attempt := 1; ; attempt++ {
		res, err = f()
		if err == nil || !errors.Is(err, otdag_errors.ErrRepositoryIO) || attempt >= opts.Attempts {
			return res, err
		}
		opts.Logger.WarnCtx(ctx, "repository call failed, retrying",
			"op", op, "attempt", attempt, "backoff", backoff, "err", err)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return res, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
		backoff *= 2
		if backoff > opts.MaxBackoff {
			backoff = opts.MaxBackoff
		}
	}
}

func (r *RetryRepository[K, D]) CreateCommitID(ctx context.Context) (K, error) {
	return retry(ctx, &r.opts, "createCommitId", func() (K, error) {
		return r.repo.CreateCommitID(ctx)
	})
}

func (r *RetryRepository[K, D]) CreateCommit(ctx context.Context, parents map[K][]D, level uint64) (*Commit[K, D], error) {
	return CreateCommit[K, D](ctx, r, parents, level)
}

func (r *RetryRepository[K, D]) Push(ctx context.Context, commits ...*Commit[K, D]) error {
	_, err := retry(ctx, &r.opts, "push", func() (struct{}, error) {
		return struct{}{}, r.repo.Push(ctx, commits...)
	})
	return err
}

func (r *RetryRepository[K, D]) GetHeads(ctx context.Context) (Set[K], error) {
	return retry(ctx, &r.opts, "getHeads", func() (Set[K], error) {
		return r.repo.GetHeads(ctx)
	})
}

func (r *RetryRepository[K, D]) UpdateHeads(ctx context.Context, add, remove Set[K]) error {
	_, err := retry(ctx, &r.opts, "updateHeads", func() (struct{}, error) {
		return struct{}{}, r.repo.UpdateHeads(ctx, add, remove)
	})
	return err
}

func (r *RetryRepository[K, D]) LoadCommit(ctx context.Context, id K) (*Commit[K, D], error) {
	return retry(ctx, &r.opts, "loadCommit", func() (*Commit[K, D], error) {
		return r.repo.LoadCommit(ctx, id)
	})
}

func (r *RetryRepository[K, D]) SaveSnapshot(ctx context.Context, id K, diffs []D) error {
	_, err := retry(ctx, &r.opts, "saveSnapshot", func() (struct{}, error) {
		return struct{}{}, r.repo.SaveSnapshot(ctx, id, diffs)
	})
	return err
}

type loadedSnapshot[D any] struct {
	diffs []D
	ok    bool
}

func (r *RetryRepository[K, D]) LoadSnapshot(ctx context.Context, id K) ([]D, bool, error) {
	res, err := retry(ctx, &r.opts, "loadSnapshot", func() (loadedSnapshot[D], error) {
		diffs, ok, err := r.repo.LoadSnapshot(ctx, id)
		return loadedSnapshot[D]{diffs, ok}, err
	})
	return res.diffs, res.ok, err
}
