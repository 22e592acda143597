package lsm

import (
	"fmt"
	"testing"

	"github.com/electric-sql/shaperouter/internal/keyhash"
)

func assertShapeIDs(t *testing.T, got []uint32, want []uint32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestLaneInsertLookup(t *testing.T) {
	lane := NewLane(0)
	h := keyhash.Sum([]byte("test_key"))

	lane.Insert(h, 1)
	assertShapeIDs(t, lane.Lookup(h), []uint32{1})

	lane.Insert(h, 2)
	assertShapeIDs(t, lane.Lookup(h), []uint32{1, 2})
}

func TestLaneRemove(t *testing.T) {
	lane := NewLane(0)
	h := keyhash.Sum([]byte("test_key"))

	lane.Insert(h, 1)
	lane.Remove(h, 1)

	if got := lane.Lookup(h); got != nil {
		t.Fatalf("expected nil after remove, got %v", got)
	}
}

func TestLaneCompaction(t *testing.T) {
	lane := NewLane(0)
	for i := 0; i < 100; i++ {
		h := keyhash.Sum([]byte(fmt.Sprintf("key%d", i)))
		lane.Insert(h, uint32(i))
	}

	if lane.OverlaySize() != 100 {
		t.Fatalf("overlay size = %d, want 100", lane.OverlaySize())
	}
	if lane.SegmentCount() != 0 {
		t.Fatalf("segment count = %d, want 0", lane.SegmentCount())
	}

	lane.Compact()

	if lane.OverlaySize() != 0 {
		t.Fatalf("overlay size after compact = %d, want 0", lane.OverlaySize())
	}
	if lane.SegmentCount() != 1 {
		t.Fatalf("segment count after compact = %d, want 1", lane.SegmentCount())
	}
	if lane.SegmentSize() != 100 {
		t.Fatalf("segment size after compact = %d, want 100", lane.SegmentSize())
	}

	for i := 0; i < 100; i++ {
		h := keyhash.Sum([]byte(fmt.Sprintf("key%d", i)))
		assertShapeIDs(t, lane.Lookup(h), []uint32{uint32(i)})
	}
}

// TestLaneOverlayShadowsSegments exercises the spec-fixed shadow rule: once
// the overlay holds a (non-tombstone) present entry for a key, Lookup
// returns exactly that entry, not a union with whatever the segment holds.
func TestLaneOverlayShadowsSegments(t *testing.T) {
	lane := NewLane(0)
	h := keyhash.Sum([]byte("test_key"))

	lane.Insert(h, 1)
	lane.Compact()
	assertShapeIDs(t, lane.Lookup(h), []uint32{1})

	lane.Insert(h, 2)
	assertShapeIDs(t, lane.Lookup(h), []uint32{2})
}

// TestTombstoneShadowsSegment is scenario 2 of the testable-properties list:
// a tombstone in the overlay must stop the lookup even though an older
// segment still holds a present value for the same fingerprint.
func TestTombstoneShadowsSegment(t *testing.T) {
	lane := NewLane(0)
	h := keyhash.Sum([]byte("test_key"))

	lane.Insert(h, 1)
	lane.Compact()
	lane.Remove(h, 1)

	if got := lane.Lookup(h); got != nil {
		t.Fatalf("expected tombstone to shadow segment value, got %v", got)
	}
}

// TestTombstoneSurvivesSingleCompaction checks the same shadowing still
// holds once the tombstone itself has been compacted into a new segment
// (carried forward as an explicit tombstone marker rather than dropped).
func TestTombstoneSurvivesSingleCompaction(t *testing.T) {
	lane := NewLane(0)
	h := keyhash.Sum([]byte("test_key"))

	lane.Insert(h, 1)
	lane.Compact()
	lane.Remove(h, 1)
	lane.Compact()

	if got := lane.Lookup(h); got != nil {
		t.Fatalf("expected key to remain shadowed after second compaction, got %v", got)
	}
	if lane.SegmentCount() != 2 {
		t.Fatalf("segment count = %d, want 2", lane.SegmentCount())
	}
}

func TestLaneSegmentMerging(t *testing.T) {
	lane := NewLane(0)

	for batch := 0; batch < 5; batch++ {
		for i := 0; i < 20; i++ {
			h := keyhash.Sum([]byte(fmt.Sprintf("key%d_%d", batch, i)))
			lane.Insert(h, uint32(batch*20+i))
		}
		lane.Compact()
	}

	if lane.SegmentCount() > 3 {
		t.Fatalf("segment count = %d, want <= 3", lane.SegmentCount())
	}

	for batch := 0; batch < 5; batch++ {
		for i := 0; i < 20; i++ {
			h := keyhash.Sum([]byte(fmt.Sprintf("key%d_%d", batch, i)))
			assertShapeIDs(t, lane.Lookup(h), []uint32{uint32(batch*20 + i)})
		}
	}
}

// TestMergeDropsResolvedTombstones verifies that once a merge collapses all
// segments into one, a fingerprint whose latest state was a tombstone
// disappears entirely rather than being carried forward forever.
func TestMergeDropsResolvedTombstones(t *testing.T) {
	lane := NewLane(0)
	h := keyhash.Sum([]byte("to-delete"))

	lane.Insert(h, 1)
	lane.Compact() // segment 0: {h: present([1])}

	lane.Remove(h, 1)
	lane.Compact() // segment 0: {h: tombstone}, segment 1: {h: present([1])}

	// Pad with unrelated batches to force the >3-segment merge threshold:
	// 2 segments already held, 2 more compactions push the count to 4 and
	// trigger exactly one merge down to 1.
	for batch := 0; batch < 2; batch++ {
		for i := 0; i < 5; i++ {
			hh := keyhash.Sum([]byte(fmt.Sprintf("pad%d_%d", batch, i)))
			lane.Insert(hh, uint32(batch*5+i))
		}
		lane.Compact()
	}

	if lane.SegmentCount() != 1 {
		t.Fatalf("segment count = %d, want 1 (merged)", lane.SegmentCount())
	}
	if got := lane.Lookup(h); got != nil {
		t.Fatalf("deleted key resurrected after merge: %v", got)
	}
}

func TestLaneIsEmpty(t *testing.T) {
	lane := NewLane(0)
	if !lane.IsEmpty() {
		t.Fatal("new lane should be empty")
	}
	lane.Insert(keyhash.Sum([]byte("k")), 1)
	if lane.IsEmpty() {
		t.Fatal("lane with an entry should not be empty")
	}
}
