package dag

import (
	"encoding/binary"
	"errors"
	"strconv"
	"strings"
)

/*
ID names a commit in a repository shared by several replicas.
Src is the replica that allocated the id, Seq is that replica's
sequence number. Ids from different replicas never collide, so no
coordination is needed to name a commit before its diffs are final.

Text form is hex "src-seq", e.g. "1e-2a".
*/
type ID struct {
	Src uint64
	Seq uint64
}

var ID0 = ID{}

var ErrBadID = errors.New("dag: malformed commit id")

func (id ID) IsZero() bool {
	return id == ID0
}

func (id ID) String() string {
	var buf [40]byte
	b := strconv.AppendUint(buf[:0], id.Src, 16)
	b = append(b, '-')
	b = strconv.AppendUint(b, id.Seq, 16)
	return string(b)
}

func ParseID(s string) (ID, error) {
	src, seq, ok := strings.Cut(s, "-")
	if !ok {
		return ID0, ErrBadID
	}
	a, err := strconv.ParseUint(src, 16, 64)
	if err != nil {
		return ID0, ErrBadID
	}
	b, err := strconv.ParseUint(seq, 16, 64)
	if err != nil {
		return ID0, ErrBadID
	}
	return ID{Src: a, Seq: b}, nil
}

// Compare orders ids by replica, then by sequence.
func (id ID) Compare(other ID) int {
	switch {
	case id.Src < other.Src:
		return -1
	case id.Src > other.Src:
		return 1
	case id.Seq < other.Seq:
		return -1
	case id.Seq > other.Seq:
		return 1
	}
	return 0
}

func CompareIDs(a, b ID) int {
	return a.Compare(b)
}

// Bytes is the fixed 16-byte big-endian form used in storage keys;
// it sorts the same way as Compare.
func (id ID) Bytes() []byte {
	var ret [16]byte
	binary.BigEndian.PutUint64(ret[:8], id.Src)
	binary.BigEndian.PutUint64(ret[8:], id.Seq)
	return ret[:]
}

func IDFromBytes(by []byte) (ID, error) {
	if len(by) != 16 {
		return ID0, ErrBadID
	}
	return ID{
		Src: binary.BigEndian.Uint64(by[:8]),
		Seq: binary.BigEndian.Uint64(by[8:]),
	}, nil
}
