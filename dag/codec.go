package dag

import (
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash"
	"github.com/drpcorg/otdag/otdag_errors"
	"github.com/drpcorg/otdag/tlv"
	"github.com/pkg/errors"
)

// Codec turns application diffs into bytes and back. Storage backends
// only ever see diffs through a Codec.
type Codec[D any] interface {
	AppendDiff(buf []byte, d D) []byte
	ParseDiff(body []byte) (D, error)
}

/*
Stored commit layout, every field a tlv record:

	I  16-byte id
	L  level, zipped
	T  timestamp, zipped unix nanoseconds
	H  snapshot hint, one byte
	P* one per parent, sorted by id: I parent id, then D* diffs
	X  xxhash64 of everything above, big-endian
*/

func EncodeCommit[D any](codec Codec[D], c *Commit[ID, D]) []byte {
	buf := make([]byte, 0, 64)
	buf = tlv.Append(buf, 'I', c.ID.Bytes())
	buf = tlv.Append(buf, 'L', tlv.ZipUint64(c.Level))
	buf = tlv.Append(buf, 'T', tlv.ZipInt64(c.Timestamp.UnixNano()))
	buf = tlv.Append(buf, 'H', []byte{byte(c.Snapshot)})
	for _, pid := range c.ParentIDs().Sorted(CompareIDs) {
		bm, b := tlv.OpenHeader(buf, 'P')
		b = tlv.Append(b, 'I', pid.Bytes())
		b = appendDiffs(codec, b, c.Parents[pid])
		tlv.CloseHeader(b, bm)
		buf = b
	}
	return appendChecksum(buf)
}

func DecodeCommit[D any](codec Codec[D], data []byte) (*Commit[ID, D], error) {
	body, err := verifyChecksum(data)
	if err != nil {
		return nil, err
	}
	c := &Commit[ID, D]{Parents: make(map[ID][]D)}
	for len(body) > 0 {
		lit, field, rest, err := tlv.TakeAnyWary(body)
		if err != nil {
			return nil, errors.Wrapf(otdag_errors.ErrBadRecord, "commit field: %v", err)
		}
		body = rest
		switch lit {
		case 'I':
			if c.ID, err = IDFromBytes(field); err != nil {
				return nil, errors.Wrap(otdag_errors.ErrBadRecord, "commit id")
			}
		case 'L':
			c.Level = tlv.UnzipUint64(field)
		case 'T':
			c.Timestamp = time.Unix(0, tlv.UnzipInt64(field))
		case 'H':
			if len(field) == 1 {
				c.Snapshot = SnapshotHint(field[0])
			}
		case 'P':
			pid, diffs, err := decodeParent(codec, field)
			if err != nil {
				return nil, errors.Wrapf(err, "commit %s", c.ID)
			}
			c.Parents[pid] = diffs
		default:
			return nil, errors.Wrapf(otdag_errors.ErrBadRecord, "unexpected commit field %q", lit)
		}
	}
	if c.Level == 0 {
		return nil, errors.Wrapf(otdag_errors.ErrBadRecord, "commit %s has no level", c.ID)
	}
	return c, nil
}

func decodeParent[D any](codec Codec[D], body []byte) (ID, []D, error) {
	idb, rest, err := tlv.TakeWary('I', body)
	if err != nil {
		return ID0, nil, errors.Wrap(otdag_errors.ErrBadRecord, "parent id")
	}
	pid, err := IDFromBytes(idb)
	if err != nil {
		return ID0, nil, errors.Wrap(otdag_errors.ErrBadRecord, "parent id")
	}
	diffs, err := parseDiffs(codec, rest)
	if err != nil {
		return ID0, nil, errors.Wrapf(err, "parent %s", pid)
	}
	return pid, diffs, nil
}

// EncodeDiffs is the stored form of a snapshot.
func EncodeDiffs[D any](codec Codec[D], diffs []D) []byte {
	return appendChecksum(appendDiffs(codec, nil, diffs))
}

func DecodeDiffs[D any](codec Codec[D], data []byte) ([]D, error) {
	body, err := verifyChecksum(data)
	if err != nil {
		return nil, err
	}
	return parseDiffs(codec, body)
}

func appendDiffs[D any](codec Codec[D], buf []byte, diffs []D) []byte {
	for _, d := range diffs {
		bm, b := tlv.OpenHeader(buf, 'D')
		b = codec.AppendDiff(b, d)
		tlv.CloseHeader(b, bm)
		buf = b
	}
	return buf
}

func parseDiffs[D any](codec Codec[D], body []byte) ([]D, error) {
	var out []D
	for len(body) > 0 {
		field, rest, err := tlv.TakeWary('D', body)
		if err != nil {
			return nil, errors.Wrapf(otdag_errors.ErrBadRecord, "diff #%d: %v", len(out), err)
		}
		d, err := codec.ParseDiff(field)
		if err != nil {
			return nil, errors.Wrapf(err, "diff #%d", len(out))
		}
		out = append(out, d)
		body = rest
	}
	return out, nil
}

func appendChecksum(buf []byte) []byte {
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], xxhash.Sum64(buf))
	return tlv.Append(buf, 'X', sum[:])
}

func verifyChecksum(data []byte) ([]byte, error) {
	const tail = 2 + 8 // short header + sum
	if len(data) < tail || data[len(data)-tail] != 'x' || data[len(data)-tail+1] != 8 {
		return nil, errors.Wrap(otdag_errors.ErrBadRecord, "no checksum")
	}
	body := data[:len(data)-tail]
	if binary.BigEndian.Uint64(data[len(data)-8:]) != xxhash.Sum64(body) {
		return nil, errors.Wrap(otdag_errors.ErrBadRecord, "checksum mismatch")
	}
	return body, nil
}
