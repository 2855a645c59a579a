// Package pebblestore keeps a commit graph in a local pebble database.
package pebblestore

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/otdag/dag"
	"github.com/drpcorg/otdag/otdag_errors"
	"github.com/drpcorg/otdag/tlv"
	"github.com/drpcorg/otdag/utils"
	"github.com/prometheus/client_golang/prometheus"
)

type Options struct {
	// Src is this replica's id; it namespaces the commit ids allocated here.
	Src uint64
	// NoSync skips fsync on writes. Only for tests and throwaway data.
	NoSync bool
	Logger utils.Logger
}

func (o *Options) SetDefaults() {
	if o.Src == 0 {
		o.Src = 1
	}
	if o.Logger == nil {
		o.Logger = utils.NewDiscardLogger()
	}
}

var StoreOps = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "otdag",
	Subsystem: "pebblestore",
	Name:      "ops",
}, []string{"op", "result"})

const (
	commitPrefix   = 'C'
	snapshotPrefix = 'S'
	seqPrefix      = 'Q'
)

var headsKey = []byte{'H'}

func commitKey(id dag.ID) []byte {
	return append([]byte{commitPrefix}, id.Bytes()...)
}

func snapshotKey(id dag.ID) []byte {
	return append([]byte{snapshotPrefix}, id.Bytes()...)
}

func seqKey(src uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{seqPrefix}, src)
}

// Store is a dag.Repository over pebble. Commits are keyed by id, the
// head set is a single record rewritten under a lock.
type Store[D any] struct {
	db    *pebble.DB
	codec dag.Codec[D]
	opts  Options
	wo    *pebble.WriteOptions

	idlock sync.Mutex
	seq    uint64

	hlock sync.Mutex
}

func Open[D any](dir string, codec dag.Codec[D], opts Options) (*Store[D], error) {
	opts.SetDefaults()
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, otdag_errors.WrapIO("open", err)
	}
	s := &Store[D]{db: db, codec: codec, opts: opts, wo: pebble.Sync}
	if opts.NoSync {
		s.wo = pebble.NoSync
	}
	val, err := s.get(seqKey(opts.Src))
	switch {
	case err == nil:
		s.seq = tlv.UnzipUint64(val)
	case !errors.Is(err, pebble.ErrNotFound):
		_ = db.Close()
		return nil, otdag_errors.WrapIO("open", err)
	}
	opts.Logger.Debug("pebble store open", "dir", dir, "src", opts.Src, "seq", s.seq)
	return s, nil
}

func (s *Store[D]) Close() error {
	return s.db.Close()
}

func (s *Store[D]) DB() *pebble.DB {
	return s.db
}

// get returns a copy of the value, pebble.ErrNotFound when missing.
func (s *Store[D]) get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func count(op string, err error) error {
	result := "ok"
	if err != nil {
		result = "error"
	}
	StoreOps.WithLabelValues(op, result).Inc()
	return err
}

func (s *Store[D]) CreateCommitID(ctx context.Context) (dag.ID, error) {
	s.idlock.Lock()
	defer s.idlock.Unlock()
	next := s.seq + 1
	if err := s.db.Set(seqKey(s.opts.Src), tlv.ZipUint64(next), s.wo); err != nil {
		return dag.ID0, count("createCommitId", otdag_errors.WrapIO("createCommitId", err))
	}
	s.seq = next
	return dag.ID{Src: s.opts.Src, Seq: next}, count("createCommitId", nil)
}

func (s *Store[D]) CreateCommit(ctx context.Context, parents map[dag.ID][]D, level uint64) (*dag.Commit[dag.ID, D], error) {
	return dag.CreateCommit[dag.ID, D](ctx, s, parents, level)
}

func (s *Store[D]) Push(ctx context.Context, commits ...*dag.Commit[dag.ID, D]) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, c := range commits {
		key := commitKey(c.ID)
		_, err := s.get(key)
		if err == nil {
			continue
		}
		if !errors.Is(err, pebble.ErrNotFound) {
			return count("push", otdag_errors.WrapIO("push", err))
		}
		if err = batch.Set(key, dag.EncodeCommit(s.codec, c), nil); err != nil {
			return count("push", otdag_errors.WrapIO("push", err))
		}
	}
	if batch.Empty() {
		return nil
	}
	return count("push", otdag_errors.WrapIO("push", batch.Commit(s.wo)))
}

func (s *Store[D]) readHeads() (dag.Set[dag.ID], error) {
	heads := dag.NewSet[dag.ID]()
	data, err := s.get(headsKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return heads, nil
	}
	if err != nil {
		return nil, otdag_errors.WrapIO("getHeads", err)
	}
	for len(data) > 0 {
		body, rest, err := tlv.TakeWary('I', data)
		if err != nil {
			return nil, otdag_errors.ErrBadRecord
		}
		id, err := dag.IDFromBytes(body)
		if err != nil {
			return nil, otdag_errors.ErrBadRecord
		}
		heads.Add(id)
		data = rest
	}
	return heads, nil
}

func (s *Store[D]) GetHeads(ctx context.Context) (dag.Set[dag.ID], error) {
	s.hlock.Lock()
	defer s.hlock.Unlock()
	heads, err := s.readHeads()
	return heads, count("getHeads", err)
}

func (s *Store[D]) UpdateHeads(ctx context.Context, add, remove dag.Set[dag.ID]) error {
	s.hlock.Lock()
	defer s.hlock.Unlock()
	heads, err := s.readHeads()
	if err != nil {
		return count("updateHeads", err)
	}
	for id := range remove {
		if !heads.Has(id) {
			return count("updateHeads", otdag_errors.ErrHeadsConflict)
		}
	}
	for id := range remove {
		heads.Remove(id)
	}
	for id := range add {
		heads.Add(id)
	}
	var buf []byte
	for _, id := range heads.Sorted(dag.CompareIDs) {
		buf = tlv.Append(buf, 'I', id.Bytes())
	}
	err = s.db.Set(headsKey, buf, s.wo)
	return count("updateHeads", otdag_errors.WrapIO("updateHeads", err))
}

func (s *Store[D]) LoadCommit(ctx context.Context, id dag.ID) (*dag.Commit[dag.ID, D], error) {
	data, err := s.get(commitKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, count("loadCommit", otdag_errors.ErrCommitNotFound)
	}
	if err != nil {
		return nil, count("loadCommit", otdag_errors.WrapIO("loadCommit", err))
	}
	c, err := dag.DecodeCommit(s.codec, data)
	return c, count("loadCommit", err)
}

func (s *Store[D]) SaveSnapshot(ctx context.Context, id dag.ID, diffs []D) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(snapshotKey(id), dag.EncodeDiffs(s.codec, diffs), nil); err != nil {
		return count("saveSnapshot", otdag_errors.WrapIO("saveSnapshot", err))
	}
	// refresh the snapshot hint of a known commit
	if data, err := s.get(commitKey(id)); err == nil {
		if c, err := dag.DecodeCommit(s.codec, data); err == nil && c.Snapshot != dag.SnapshotPresent {
			if err = batch.Set(commitKey(id), dag.EncodeCommit(s.codec, c.WithSnapshot(dag.SnapshotPresent)), nil); err != nil {
				return count("saveSnapshot", otdag_errors.WrapIO("saveSnapshot", err))
			}
		}
	}
	return count("saveSnapshot", otdag_errors.WrapIO("saveSnapshot", batch.Commit(s.wo)))
}

func (s *Store[D]) LoadSnapshot(ctx context.Context, id dag.ID) ([]D, bool, error) {
	data, err := s.get(snapshotKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, count("loadSnapshot", nil)
	}
	if err != nil {
		return nil, false, count("loadSnapshot", otdag_errors.WrapIO("loadSnapshot", err))
	}
	diffs, err := dag.DecodeDiffs(s.codec, data)
	if err != nil {
		return nil, false, count("loadSnapshot", err)
	}
	return diffs, true, count("loadSnapshot", nil)
}
