package tlv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTLVAppend(t *testing.T) {
	buf := []byte{}
	buf = Append(buf, 'A', []byte{'A'})
	buf = Append(buf, 'b', []byte{'B', 'B'})
	correct2 := []byte{'a', 1, 'A', '2', 'B', 'B'}
	assert.Equal(t, correct2, buf, "basic TLV fail")

	var c256 [256]byte
	for n := range c256 {
		c256[n] = 'c'
	}
	buf = Append(buf, 'C', c256[:])
	assert.Equal(t, len(correct2)+1+4+len(c256), len(buf))
	assert.Equal(t, uint8('C'), buf[len(correct2)])
	assert.Equal(t, uint8(1), buf[len(correct2)+2])

	lit, body, buf, err := TakeAnyWary(buf)
	assert.Nil(t, err)
	assert.Equal(t, uint8('A'), lit)
	assert.Equal(t, []byte{'A'}, body)

	body2, buf, err := TakeWary('B', buf)
	assert.Nil(t, err)
	assert.Equal(t, []byte{'B', 'B'}, body2)

	body3, rest := Take('C', buf)
	assert.Equal(t, c256[:], body3)
	assert.Empty(t, rest)
}

func TestTakeErrors(t *testing.T) {
	rec := Record('X', []byte("hello"))

	_, rest, err := TakeWary('X', rec[:3])
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, rec[:3], rest)

	_, _, err = TakeWary('Y', rec)
	assert.ErrorIs(t, err, ErrBadRecord)

	_, _, _, err = TakeAnyWary([]byte{'!', 1, 2})
	assert.ErrorIs(t, err, ErrBadRecord)

	body, rest := Take('X', rec[:4])
	assert.Nil(t, body)
	assert.Equal(t, rec[:4], rest)
}

func TestFeedHeader(t *testing.T) {
	buf := []byte{}
	l, buf := OpenHeader(buf, 'A')
	text := "some text"
	buf = append(buf, text...)
	CloseHeader(buf, l)
	lit, body, rest, err := TakeAnyWary(buf)
	assert.Nil(t, err)
	assert.Equal(t, uint8('A'), lit)
	assert.Equal(t, text, string(body))
	assert.Equal(t, 0, len(rest))
}

func TestTinyRecord(t *testing.T) {
	tiny := Record('x', []byte("12"))
	assert.Equal(t, "212", string(tiny))
	body, rest := Take('X', tiny)
	assert.Equal(t, "12", string(body))
	assert.Empty(t, rest)
}

func TestZipInt(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 127, -128, 1 << 40, -(1 << 62)} {
		assert.Equal(t, v, UnzipInt64(ZipInt64(v)))
	}
	assert.Empty(t, ZipUint64(0))
	assert.Len(t, ZipUint64(0x1ff), 2)
	assert.Equal(t, uint64(0xdeadbeef), UnzipUint64(ZipUint64(0xdeadbeef)))
}
