package lsm

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/electric-sql/shaperouter/internal/keyhash"
	"github.com/electric-sql/shaperouter/internal/varint"
)

// segmentMagic identifies a segment file: "ELSMSEG\0".
var segmentMagic = [8]byte{'E', 'L', 'S', 'M', 'S', 'E', 'G', 0}

const segmentFormatVersion = 1

// ErrSegmentFormat is returned by DecodeSegment on a bad magic, unsupported
// version, or truncated/corrupt body.
var ErrSegmentFormat = fmt.Errorf("lsm: malformed segment file")

// EncodeSegment serializes a segment to the on-disk layout of spec §6:
// 8-byte magic, 4-byte version, 8-byte id, 4-byte level, 8-byte count, then
// count * (8-byte fingerprint, 4-byte byte length of the list that follows,
// varint shape count, varint shape ids). All fixed-width fields are little-
// endian. Only present entries are written; tombstones are compaction-
// internal bookkeeping and never escape to disk.
func EncodeSegment(s *Segment) []byte {
	var buf bytes.Buffer
	buf.Write(segmentMagic[:])

	var hdr [24]byte
	binary.LittleEndian.PutUint32(hdr[0:4], segmentFormatVersion)
	binary.LittleEndian.PutUint64(hdr[4:12], s.id)
	binary.LittleEndian.PutUint32(hdr[12:16], s.level)
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(s.Len()))
	buf.Write(hdr[:])

	for h, e := range s.data {
		if !e.present {
			continue
		}
		var hb [8]byte
		binary.LittleEndian.PutUint64(hb[:], uint64(h))
		buf.Write(hb[:])

		var listBuf []byte
		listBuf = varint.Encode(listBuf, uint32(len(e.shapes)))
		for _, id := range e.shapes {
			listBuf = varint.Encode(listBuf, id)
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(listBuf)))
		buf.Write(lenBuf[:])
		buf.Write(listBuf)
	}

	return buf.Bytes()
}

// EncodeSegmentWithChecksum appends a trailing 32-byte SHA-256 of the
// encoded body, as the optional integrity suffix spec §6 allows.
func EncodeSegmentWithChecksum(s *Segment) []byte {
	body := EncodeSegment(s)
	sum := sha256.Sum256(body)
	return append(body, sum[:]...)
}

// DecodeSegment parses a segment file previously written by EncodeSegment
// (with or without the trailing checksum).
func DecodeSegment(data []byte) (*Segment, error) {
	if len(data) < 8+24 {
		return nil, fmt.Errorf("%w: too short", ErrSegmentFormat)
	}
	if !bytes.Equal(data[:8], segmentMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrSegmentFormat)
	}
	hdr := data[8:32]
	version := binary.LittleEndian.Uint32(hdr[0:4])
	if version != segmentFormatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrSegmentFormat, version)
	}
	id := binary.LittleEndian.Uint64(hdr[4:12])
	level := binary.LittleEndian.Uint32(hdr[12:16])
	count := binary.LittleEndian.Uint64(hdr[16:24])

	body := data[32:]
	entries := make(map[keyhash.Hash64]*segEntry, count)

	for i := uint64(0); i < count; i++ {
		if len(body) < 8+4 {
			return nil, fmt.Errorf("%w: truncated entry header", ErrSegmentFormat)
		}
		h := keyhash.Hash64(binary.LittleEndian.Uint64(body[0:8]))
		listLen := binary.LittleEndian.Uint32(body[8:12])
		body = body[12:]
		if uint64(len(body)) < uint64(listLen) {
			return nil, fmt.Errorf("%w: truncated shape list", ErrSegmentFormat)
		}
		listBuf := body[:listLen]
		body = body[listLen:]

		n, consumed, err := varint.Decode(listBuf)
		if err != nil {
			return nil, fmt.Errorf("%w: shape count: %v", ErrSegmentFormat, err)
		}
		listBuf = listBuf[consumed:]
		ids := make([]uint32, 0, n)
		for j := uint32(0); j < n; j++ {
			id, consumed, err := varint.Decode(listBuf)
			if err != nil {
				return nil, fmt.Errorf("%w: shape id: %v", ErrSegmentFormat, err)
			}
			ids = append(ids, id)
			listBuf = listBuf[consumed:]
		}
		entries[h] = &segEntry{present: true, shapes: ids}
	}

	return newSegment(id, level, entries), nil
}
