// Package wire frames tag cache entries.
//
// Entry layout (big endian):
//
//	magic(4) | ver(1) | expiresAt(i64 unix nanos) | ntags(u16)
//	  ( tagLen(u16) | tag(tagLen) | gen(u64) ) * ntags
//	vlen(u32) | payload(vlen)
//
// Decoding is strict: bad magic, unknown version, truncated fields and
// trailing bytes all yield ErrCorrupt.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("stockcore: corrupt cache entry")
	magic4     = [...]byte{'S', 'T', 'K', 'C'}
)

// TagGen is a tag and the generation it had when the entry's value was computed.
type TagGen struct {
	Tag string
	Gen uint64
}

type Entry struct {
	ExpiresAt time.Time
	Tags      []TagGen
	Payload   []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode frames e. It fails if a tag is empty, longer than 64KiB, or if
// there are more than 65535 tags.
func Encode(e Entry) ([]byte, error) {
	if len(e.Tags) > 0xFFFF {
		return nil, fmt.Errorf("wire: too many tags: %d", len(e.Tags))
	}
	total := 4 + 1 + 8 + 2 + 4 + len(e.Payload)
	for _, tg := range e.Tags {
		if l := len(tg.Tag); l == 0 || l > 0xFFFF {
			return nil, fmt.Errorf("wire: invalid tag length %d", l)
		}
		total += 2 + len(tg.Tag) + 8
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], uint64(e.ExpiresAt.UnixNano()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(e.Tags)))
	buf.Write(u2[:])
	for _, tg := range e.Tags {
		binary.BigEndian.PutUint16(u2[:], uint16(len(tg.Tag)))
		buf.Write(u2[:])
		buf.WriteString(tg.Tag)
		binary.BigEndian.PutUint64(u8[:], tg.Gen)
		buf.Write(u8[:])
	}

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)
	return buf.Bytes(), nil
}

// Decode parses b. The returned payload aliases b.
func Decode(b []byte) (Entry, error) {
	const hdr = 4 + 1 + 8 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Entry{}, ErrCorrupt
	}
	off := 5

	exp := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2

	tags := make([]TagGen, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return Entry{}, ErrCorrupt
		}
		tlen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if tlen == 0 || tlen > len(b)-off {
			return Entry{}, ErrCorrupt
		}
		tag := string(b[off : off+tlen])
		off += tlen

		if off+8 > len(b) {
			return Entry{}, ErrCorrupt
		}
		gen := binary.BigEndian.Uint64(b[off : off+8])
		off += 8
		tags = append(tags, TagGen{Tag: tag, Gen: gen})
	}

	if off+4 > len(b) {
		return Entry{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}

	return Entry{
		ExpiresAt: time.Unix(0, exp),
		Tags:      tags,
		Payload:   b[off:],
	}, nil
}
