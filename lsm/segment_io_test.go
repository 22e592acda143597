package lsm

import (
	"testing"

	"github.com/electric-sql/shaperouter/internal/keyhash"
)

func TestSegmentBuildLookupRoundtrip(t *testing.T) {
	h1 := keyhash.Sum([]byte("key1"))
	h2 := keyhash.Sum([]byte("key2"))

	b := newSegmentBuilder(1, 0)
	b.addPresent(h1, []uint32{1, 2})
	b.addPresent(h2, []uint32{3})
	seg := b.build()

	if seg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", seg.Len())
	}
	if ids, ok := seg.Lookup(h1); !ok || len(ids) != 2 {
		t.Fatalf("Lookup(h1) = %v, %v", ids, ok)
	}
	h3 := keyhash.Sum([]byte("key3"))
	if _, ok := seg.Lookup(h3); ok {
		t.Fatal("expected no entry for key3")
	}
}

func TestEncodeDecodeSegmentRoundtrip(t *testing.T) {
	h1 := keyhash.Sum([]byte("key1"))
	h2 := keyhash.Sum([]byte("key2"))

	b := newSegmentBuilder(42, 1)
	b.addPresent(h1, []uint32{7, 8, 9})
	b.addPresent(h2, []uint32{1})
	original := b.build()

	encoded := EncodeSegment(original)
	decoded, err := DecodeSegment(encoded)
	if err != nil {
		t.Fatalf("DecodeSegment: %v", err)
	}

	if decoded.ID() != original.ID() || decoded.Level() != original.Level() {
		t.Fatalf("decoded id/level mismatch: got (%d,%d) want (%d,%d)",
			decoded.ID(), decoded.Level(), original.ID(), original.Level())
	}
	if decoded.Len() != original.Len() {
		t.Fatalf("decoded len = %d, want %d", decoded.Len(), original.Len())
	}

	got, ok := decoded.Lookup(h1)
	if !ok {
		t.Fatal("expected h1 present after decode")
	}
	assertShapeIDs(t, got, []uint32{7, 8, 9})
}

func TestEncodeSegmentWithChecksumDecodes(t *testing.T) {
	b := newSegmentBuilder(1, 0)
	b.addPresent(keyhash.Sum([]byte("a")), []uint32{1})
	seg := b.build()

	encoded := EncodeSegmentWithChecksum(seg)
	// DecodeSegment reads exactly the count-derived body length and ignores
	// a trailing checksum suffix.
	decoded, err := DecodeSegment(encoded)
	if err != nil {
		t.Fatalf("DecodeSegment: %v", err)
	}
	if decoded.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", decoded.Len())
	}
}

func TestDecodeSegmentRejectsBadMagic(t *testing.T) {
	data := make([]byte, 40)
	if _, err := DecodeSegment(data); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestDecodeSegmentRejectsTruncated(t *testing.T) {
	if _, err := DecodeSegment([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated input")
	}
}
