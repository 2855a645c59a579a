// Record format is based on ToyTLV (MIT licence) written by Victor Grishchenko in 2024
// Original project: https://github.com/learn-decentralized-systems/toytlv

/*
Package tlv is the byte framing used to store commits and snapshots.

A record is a type letter A-Z, a length and a body. Three header forms
exist and the shortest one is picked automatically:

  - tiny, 1 byte: '0'+len, for bodies up to 9 bytes written with a
    lowercase type; the type is lost on the wire and reads back as '0'
  - short, 2 bytes: lowercase type, 1-byte length
  - long, 5 bytes: uppercase type, 4-byte little-endian length

Bodies are opaque; nested records are simply concatenated inside a body.
Use OpenHeader/CloseHeader when the body length is not known upfront:

	bm, buf := OpenHeader(buf, 'C')
	buf = Append(buf, 'i', id)
	CloseHeader(buf, bm)
*/
package tlv

import (
	"encoding/binary"
	"errors"
)

const CaseBit uint8 = 'a' - 'A'

var (
	ErrIncomplete = errors.New("tlv: incomplete data")
	ErrBadRecord  = errors.New("tlv: bad record format")
)

// ProbeHeader returns the record type ('A'-'Z', '0' for tiny, '-' for
// garbage, 0 for not enough data), the header length and the body length.
func ProbeHeader(data []byte) (lit byte, hdrlen, bodylen int) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	dlit := data[0]
	switch {
	case dlit >= '0' && dlit <= '9':
		lit = '0'
		bodylen = int(dlit - '0')
		hdrlen = 1
	case dlit >= 'a' && dlit <= 'z':
		if len(data) < 2 {
			return
		}
		lit = dlit - CaseBit
		hdrlen = 2
		bodylen = int(data[1])
	case dlit >= 'A' && dlit <= 'Z':
		if len(data) < 5 {
			return
		}
		bl := binary.LittleEndian.Uint32(data[1:5])
		if bl > 0x7fffffff {
			lit = '-'
			return
		}
		lit = dlit
		bodylen = int(bl)
		hdrlen = 5
	default:
		lit = '-'
	}
	return
}

// AppendHeader appends a header for a body of bodylen bytes.
// A lowercase lit allows the tiny form.
func AppendHeader(into []byte, lit byte, bodylen int) []byte {
	biglit := lit &^ CaseBit
	if biglit < 'A' || biglit > 'Z' {
		panic("tlv record type is A..Z")
	}
	switch {
	case bodylen < 10 && (lit&CaseBit) != 0:
		return append(into, byte('0'+bodylen))
	case bodylen > 0xff:
		if bodylen > 0x7fffffff {
			panic("oversized tlv record")
		}
		into = append(into, biglit)
		return binary.LittleEndian.AppendUint32(into, uint32(bodylen))
	default:
		return append(into, biglit|CaseBit, byte(bodylen))
	}
}

func totalLen(inputs [][]byte) (sum int) {
	for _, input := range inputs {
		sum += len(input)
	}
	return
}

// Append appends a complete record made of the concatenated body parts.
func Append(into []byte, lit byte, body ...[]byte) []byte {
	into = AppendHeader(into, lit, totalLen(body))
	for _, b := range body {
		into = append(into, b...)
	}
	return into
}

func Record(lit byte, body ...[]byte) []byte {
	return Append(make([]byte, 0, totalLen(body)+5), lit, body...)
}

// Take reads one record of type lit from trusted data.
// On a type mismatch both results are nil.
func Take(lit byte, data []byte) (body, rest []byte) {
	body, rest, err := TakeWary(lit, data)
	if err == ErrIncomplete {
		return nil, data
	}
	return body, rest
}

// TakeWary reads one record of type lit from untrusted data.
// Tiny records match any type.
func TakeWary(lit byte, data []byte) (body, rest []byte, err error) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == '-' {
		return nil, nil, ErrBadRecord
	}
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data, ErrIncomplete
	}
	if flit != lit&^CaseBit && flit != '0' {
		return nil, nil, ErrBadRecord
	}
	return data[hdrlen : hdrlen+bodylen], data[hdrlen+bodylen:], nil
}

// TakeAnyWary reads one record of whatever type comes next.
func TakeAnyWary(data []byte) (lit byte, body, rest []byte, err error) {
	lit, hdrlen, bodylen := ProbeHeader(data)
	switch {
	case lit == '-':
		return 0, nil, nil, ErrBadRecord
	case lit == 0 || hdrlen+bodylen > len(data):
		return 0, nil, data, ErrIncomplete
	}
	return lit, data[hdrlen : hdrlen+bodylen], data[hdrlen+bodylen:], nil
}

// OpenHeader starts a long-form record whose length is filled in by
// CloseHeader once the body has been appended.
func OpenHeader(buf []byte, lit byte) (bookmark int, res []byte) {
	lit &^= CaseBit
	if lit < 'A' || lit > 'Z' {
		panic("tlv record type is A..Z")
	}
	res = append(buf, lit, 0, 0, 0, 0)
	return len(res), res
}

func CloseHeader(buf []byte, bookmark int) {
	if bookmark < 5 || len(buf) < bookmark {
		panic("tlv: bad bookmark")
	}
	binary.LittleEndian.PutUint32(buf[bookmark-4:bookmark], uint32(len(buf)-bookmark))
}
