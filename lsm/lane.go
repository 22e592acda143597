package lsm

import (
	"sync"

	"github.com/electric-sql/shaperouter/internal/keyhash"
)

// LaneID identifies a lane within an Index.
type LaneID uint32

// maxSegmentsBeforeMerge bounds read amplification: once a lane holds more
// than this many segments, compact folds them all into one higher-level
// segment.
const maxSegmentsBeforeMerge = 3

// Lane is one independent partition of the LSM index: a mutable overlay of
// recent changes plus an ordered list of immutable segments (newest first).
// All lane state is guarded by a single RWMutex — lookup takes the read
// lock, insert/remove/compact take the write lock — mirroring the
// single-state-lock discipline used elsewhere in this codebase for
// collaborating in-memory fields.
type Lane struct {
	mu sync.RWMutex

	id            LaneID
	overlay       *overlay
	segments      []*Segment // newest first
	nextSegmentID uint64
}

// NewLane returns an empty lane.
func NewLane(id LaneID) *Lane {
	return &Lane{id: id, overlay: newOverlay()}
}

// Insert upserts hash -> shapeID into the lane's overlay.
func (l *Lane) Insert(hash keyhash.Hash64, shapeID uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overlay.insert(hash, shapeID)
}

// Remove deletes shapeID from hash's set in the overlay. When the overlay
// has no entry for hash, it is first seeded with the newest segment value,
// so that removing the last shape leaves a tombstone shadowing that segment.
func (l *Lane) Remove(hash keyhash.Hash64, shapeID uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.overlay.contains(hash) {
		for _, seg := range l.segments {
			ids, state := seg.lookup(hash)
			if state == stateAbsent {
				continue
			}
			for _, id := range ids {
				l.overlay.insert(hash, id)
			}
			break
		}
	}
	l.overlay.remove(hash, shapeID)
}

// Lookup implements the newer-shadows-older rule: the overlay is probed
// first. A present overlay entry is returned; a tombstone stops the search
// with a nil result (it must not fall through to a stale segment value).
// Only when the overlay has never seen the key do segments get probed,
// newest to oldest, returning the first present hit (a segment-level
// tombstone likewise stops the search at that segment, for the same
// stale-value reason).
func (l *Lane) Lookup(hash keyhash.Hash64) []uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if ids, state := l.overlay.lookup(hash); state != stateAbsent {
		if state == statePresent {
			return ids
		}
		return nil // tombstone: stop here
	}

	for _, seg := range l.segments {
		if ids, state := seg.lookup(hash); state != stateAbsent {
			if state == statePresent {
				return ids
			}
			return nil // tombstone: stop here
		}
	}
	return nil
}

// OverlaySize returns the number of overlay entries (present and tombstone).
func (l *Lane) OverlaySize() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.overlay.len()
}

// SegmentSize returns the total present-entry count across all segments.
func (l *Lane) SegmentSize() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0
	for _, s := range l.segments {
		total += s.Len()
	}
	return total
}

// SegmentCount returns the number of segments currently held by the lane.
func (l *Lane) SegmentCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.segments)
}

// IsEmpty reports whether the lane holds no overlay entries and no segments.
func (l *Lane) IsEmpty() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.overlay.isEmpty() && len(l.segments) == 0
}

// AllShapeIDs returns every shape id reachable from this lane.
func (l *Lane) AllShapeIDs() map[uint32]struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := l.overlay.allShapeIDs()
	for _, s := range l.segments {
		for id := range s.AllShapeIDs() {
			result[id] = struct{}{}
		}
	}
	return result
}

// Compact freezes the overlay, builds a new level-0 segment from it
// (present entries as values, tombstones carried forward as explicit
// tombstone markers so they keep shadowing older segments), clears the
// overlay, and prepends the new segment. If the lane then holds more than
// maxSegmentsBeforeMerge segments, it merges all of them into a single
// higher-level segment. Concurrent lookups observe either the whole
// pre-compaction or whole post-compaction state, since this runs entirely
// under the lane's write lock.
func (l *Lane) Compact() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.overlay.isEmpty() {
		return
	}

	segID := l.nextSegmentID
	l.nextSegmentID++
	builder := newSegmentBuilder(segID, 0)

	for h, e := range l.overlay.entries {
		if e.present {
			builder.addPresent(h, sortedKeys(e.shapes))
		} else {
			builder.addTombstone(h)
		}
	}

	l.overlay.clear()
	l.segments = append([]*Segment{builder.build()}, l.segments...)

	if len(l.segments) > maxSegmentsBeforeMerge {
		l.mergeSegments()
	}
}

// mergeSegments folds every segment in the lane into a single level-1
// segment. Processes oldest to newest so a newer segment's entry (present
// or tombstone) overwrites an older one; once merged there is nothing left
// below the result, so any fingerprint whose latest entry is a tombstone is
// finally dropped rather than carried forward.
func (l *Lane) mergeSegments() {
	if len(l.segments) <= 1 {
		return
	}

	segID := l.nextSegmentID
	l.nextSegmentID++

	merged := make(map[keyhash.Hash64]*segEntry)
	for i := len(l.segments) - 1; i >= 0; i-- {
		for h, e := range l.segments[i].data {
			merged[h] = e
		}
	}

	final := make(map[keyhash.Hash64]*segEntry, len(merged))
	for h, e := range merged {
		if e.present {
			final[h] = e
		}
	}

	l.segments = []*Segment{newSegment(segID, 1, final)}
}

// Stats reports this lane's current sizing.
func (l *Lane) Stats() LaneStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	segEntries := 0
	for _, s := range l.segments {
		segEntries += s.Len()
	}
	return LaneStats{
		ID:                  l.id,
		OverlayEntries:      l.overlay.len(),
		SegmentCount:        len(l.segments),
		TotalSegmentEntries: segEntries,
		TotalEntries:        l.overlay.len() + segEntries,
	}
}

// LaneStats summarizes the size of one lane.
type LaneStats struct {
	ID                  LaneID
	OverlayEntries      int
	SegmentCount        int
	TotalSegmentEntries int
	TotalEntries        int
}
