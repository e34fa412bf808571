// Package wire frames cache entries. An entry carries either a value with
// the etag it was read under, an etag alone, or a "known absent" marker, so
// a cached absence can never be mistaken for cached data after a storage
// round trip.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version byte = 1

	kindValue  byte = 1 // etag + payload
	kindETag   byte = 2 // etag only
	kindAbsent byte = 3 // no value, no etag
)

var (
	ErrCorrupt = errors.New("wire: corrupt entry")
	magic4     = [...]byte{'C', 'D', 'C', 'T'}
)

// Entry is a decoded cache frame.
type Entry struct {
	ETag    string
	Payload []byte
	Absent  bool // known-absent marker
	HasData bool // Payload is meaningful (value frame)
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// EncodeValue frames a value with its etag:
// magic(4) | ver(1) | kind(1) | elen(u16 be) | etag | vlen(u32 be) | payload.
func EncodeValue(etag string, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 2 + len(etag) + 4 + len(payload))
	writeHeader(&buf, kindValue)
	writeETag(&buf, etag)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)
	return buf.Bytes()
}

// EncodeETag frames an etag with no payload.
func EncodeETag(etag string) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 2 + len(etag))
	writeHeader(&buf, kindETag)
	writeETag(&buf, etag)
	return buf.Bytes()
}

// EncodeAbsent frames the known-absent marker.
func EncodeAbsent() []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1)
	writeHeader(&buf, kindAbsent)
	return buf.Bytes()
}

func writeHeader(buf *bytes.Buffer, kind byte) {
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kind)
}

func writeETag(buf *bytes.Buffer, etag string) {
	if len(etag) > 0xFFFF {
		panic("wire: etag too long")
	}
	var u2 [2]byte
	binary.BigEndian.PutUint16(u2[:], uint16(len(etag)))
	buf.Write(u2[:])
	buf.WriteString(etag)
}

// Decode parses any frame kind.
func Decode(b []byte) (Entry, error) {
	const hdr = 4 + 1 + 1
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Entry{}, ErrCorrupt
	}
	kind := b[5]
	off := hdr

	if kind == kindAbsent {
		if len(b) != hdr {
			return Entry{}, ErrCorrupt
		}
		return Entry{Absent: true}, nil
	}

	if off+2 > len(b) {
		return Entry{}, ErrCorrupt
	}
	elen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if elen > len(b)-off {
		return Entry{}, ErrCorrupt
	}
	etag := string(b[off : off+elen])
	off += elen

	switch kind {
	case kindETag:
		if off != len(b) {
			return Entry{}, ErrCorrupt
		}
		return Entry{ETag: etag}, nil
	case kindValue:
		if off+4 > len(b) {
			return Entry{}, ErrCorrupt
		}
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen != len(b)-off {
			return Entry{}, ErrCorrupt
		}
		return Entry{ETag: etag, Payload: b[off : off+vlen], HasData: true}, nil
	default:
		return Entry{}, ErrCorrupt
	}
}
