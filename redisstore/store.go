// Package redisstore shares one commit graph between processes through redis.
package redisstore

import (
	"context"
	"errors"

	"github.com/drpcorg/otdag/dag"
	"github.com/drpcorg/otdag/otdag_errors"
	"github.com/drpcorg/otdag/utils"
	redis "github.com/redis/go-redis/v9"
)

type Options struct {
	// Namespace separates graphs living in the same redis. All keys of one
	// graph share a hash tag so the head script works on a cluster too.
	Namespace string
	// Src is this replica's id.
	Src    uint64
	Logger utils.Logger
}

func (o *Options) SetDefaults() {
	if o.Namespace == "" {
		o.Namespace = "default"
	}
	if o.Src == 0 {
		o.Src = 1
	}
	if o.Logger == nil {
		o.Logger = utils.NewDiscardLogger()
	}
}

// updateHeads removes ARGV[2..1+n] and adds the rest, unless one of the
// removed ids is no longer a head.
var updateHeads = redis.NewScript(`
	-- KEYS[1] = heads set
	-- ARGV[1] = n, the number of ids to remove
	local n = tonumber(ARGV[1])
	for i = 2, n + 1 do
		if redis.call("SISMEMBER", KEYS[1], ARGV[i]) == 0 then
			return 0
		end
	end
	for i = 2, n + 1 do
		redis.call("SREM", KEYS[1], ARGV[i])
	end
	for i = n + 2, #ARGV do
		redis.call("SADD", KEYS[1], ARGV[i])
	end
	return 1
`)

// Store is a dag.Repository backed by redis strings and one set for heads.
type Store[D any] struct {
	rdb   redis.UniversalClient
	codec dag.Codec[D]
	opts  Options
}

func New[D any](rdb redis.UniversalClient, codec dag.Codec[D], opts Options) *Store[D] {
	opts.SetDefaults()
	return &Store[D]{rdb: rdb, codec: codec, opts: opts}
}

func (s *Store[D]) key(parts ...string) string {
	k := "otdag:{" + s.opts.Namespace + "}"
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *Store[D]) headsKey() string { return s.key("heads") }

func (s *Store[D]) commitKey(id dag.ID) string { return s.key("commit", id.String()) }

func (s *Store[D]) snapshotKey(id dag.ID) string { return s.key("snapshot", id.String()) }

func (s *Store[D]) seqKey() string { return s.key("seq", dag.ID{Src: s.opts.Src}.String()) }

func (s *Store[D]) CreateCommitID(ctx context.Context) (dag.ID, error) {
	seq, err := s.rdb.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return dag.ID0, otdag_errors.WrapIO("createCommitId", err)
	}
	return dag.ID{Src: s.opts.Src, Seq: uint64(seq)}, nil
}

func (s *Store[D]) CreateCommit(ctx context.Context, parents map[dag.ID][]D, level uint64) (*dag.Commit[dag.ID, D], error) {
	return dag.CreateCommit[dag.ID, D](ctx, s, parents, level)
}

// Push writes with SETNX: commits are immutable once stored.
func (s *Store[D]) Push(ctx context.Context, commits ...*dag.Commit[dag.ID, D]) error {
	if len(commits) == 0 {
		return nil
	}
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, c := range commits {
			p.SetNX(ctx, s.commitKey(c.ID), dag.EncodeCommit(s.codec, c), 0)
		}
		return nil
	})
	return otdag_errors.WrapIO("push", err)
}

func (s *Store[D]) GetHeads(ctx context.Context) (dag.Set[dag.ID], error) {
	members, err := s.rdb.SMembers(ctx, s.headsKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, otdag_errors.WrapIO("getHeads", err)
	}
	heads := dag.NewSet[dag.ID]()
	for _, m := range members {
		id, err := dag.ParseID(m)
		if err != nil {
			return nil, otdag_errors.ErrBadRecord
		}
		heads.Add(id)
	}
	return heads, nil
}

func (s *Store[D]) UpdateHeads(ctx context.Context, add, remove dag.Set[dag.ID]) error {
	args := make([]any, 0, 1+len(remove)+len(add))
	args = append(args, len(remove))
	for _, id := range remove.Sorted(dag.CompareIDs) {
		args = append(args, id.String())
	}
	for _, id := range add.Sorted(dag.CompareIDs) {
		args = append(args, id.String())
	}
	ok, err := updateHeads.Run(ctx, s.rdb, []string{s.headsKey()}, args...).Int()
	if err != nil {
		return otdag_errors.WrapIO("updateHeads", err)
	}
	if ok == 0 {
		s.opts.Logger.DebugCtx(ctx, "heads moved under us", "remove", len(remove))
		return otdag_errors.ErrHeadsConflict
	}
	return nil
}

func (s *Store[D]) LoadCommit(ctx context.Context, id dag.ID) (*dag.Commit[dag.ID, D], error) {
	data, err := s.rdb.Get(ctx, s.commitKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, otdag_errors.ErrCommitNotFound
	}
	if err != nil {
		return nil, otdag_errors.WrapIO("loadCommit", err)
	}
	return dag.DecodeCommit(s.codec, data)
}

func (s *Store[D]) SaveSnapshot(ctx context.Context, id dag.ID, diffs []D) error {
	if err := s.rdb.Set(ctx, s.snapshotKey(id), dag.EncodeDiffs(s.codec, diffs), 0).Err(); err != nil {
		return otdag_errors.WrapIO("saveSnapshot", err)
	}
	c, err := s.LoadCommit(ctx, id)
	if err != nil {
		// the snapshot itself is stored; a stale hint only costs a lookup
		s.opts.Logger.WarnCtx(ctx, "snapshot hint not refreshed", "id", id, "err", err)
		return nil
	}
	if c.Snapshot == dag.SnapshotPresent {
		return nil
	}
	err = s.rdb.Set(ctx, s.commitKey(id), dag.EncodeCommit(s.codec, c.WithSnapshot(dag.SnapshotPresent)), 0).Err()
	return otdag_errors.WrapIO("saveSnapshot", err)
}

func (s *Store[D]) LoadSnapshot(ctx context.Context, id dag.ID) ([]D, bool, error) {
	data, err := s.rdb.Get(ctx, s.snapshotKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, otdag_errors.WrapIO("loadSnapshot", err)
	}
	diffs, err := dag.DecodeDiffs(s.codec, data)
	if err != nil {
		return nil, false, err
	}
	return diffs, true, nil
}

// Drop deletes every key of this namespace.
func (s *Store[D]) Drop(ctx context.Context) error {
	iter := s.rdb.Scan(ctx, 0, s.key("*"), 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return otdag_errors.WrapIO("drop", err)
	}
	keys = append(keys, s.headsKey())
	return otdag_errors.WrapIO("drop", s.rdb.Del(ctx, keys...).Err())
}
