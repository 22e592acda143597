package lsm

import "github.com/electric-sql/shaperouter/internal/keyhash"

// segEntry is a segment's per-fingerprint record. A tombstone entry is kept
// explicitly (rather than simply omitted) so that a newer segment can shadow
// an older segment's stale value for the same fingerprint until the next
// merge finally drops it — otherwise a lookup that misses the newest
// segment would fall through and resurrect a deleted key from an older one.
type segEntry struct {
	present bool
	shapes  []uint32
}

// Segment is an immutable fingerprint->shape-set bundle produced by
// compaction. The prototype backs it with a plain map; a production build
// would swap this for a minimal-perfect-hash function without touching the
// Lane/Index contract (spec leaves the base-index representation open).
type Segment struct {
	id    uint64
	level uint32
	data  map[keyhash.Hash64]*segEntry
}

func newSegment(id uint64, level uint32, entries map[keyhash.Hash64]*segEntry) *Segment {
	return &Segment{id: id, level: level, data: entries}
}

// ID returns the segment's monotonic identifier.
func (s *Segment) ID() uint64 { return s.id }

// Level returns the segment's LSM level (0 = newest).
func (s *Segment) Level() uint32 { return s.level }

// Len returns the number of present (non-tombstone) fingerprints in the segment.
func (s *Segment) Len() int {
	n := 0
	for _, e := range s.data {
		if e.present {
			n++
		}
	}
	return n
}

// Lookup returns the shape-set for h if the segment holds a present entry
// for it (a tombstone entry is not a value to the outside world).
func (s *Segment) Lookup(h keyhash.Hash64) ([]uint32, bool) {
	ids, state := s.lookup(h)
	return ids, state == statePresent
}

// lookup returns the 3-state result of probing h within this segment alone.
func (s *Segment) lookup(h keyhash.Hash64) (ids []uint32, state lookupState) {
	e, ok := s.data[h]
	if !ok {
		return nil, stateAbsent
	}
	if !e.present {
		return nil, stateTombstone
	}
	return e.shapes, statePresent
}

// AllShapeIDs returns the set of shape ids referenced anywhere in the segment.
func (s *Segment) AllShapeIDs() map[uint32]struct{} {
	out := make(map[uint32]struct{})
	for _, e := range s.data {
		if e.present {
			for _, id := range e.shapes {
				out[id] = struct{}{}
			}
		}
	}
	return out
}

// segmentBuilder accumulates entries for a new segment.
type segmentBuilder struct {
	id      uint64
	level   uint32
	entries map[keyhash.Hash64]*segEntry
}

func newSegmentBuilder(id uint64, level uint32) *segmentBuilder {
	return &segmentBuilder{id: id, level: level, entries: make(map[keyhash.Hash64]*segEntry)}
}

func (b *segmentBuilder) addPresent(h keyhash.Hash64, ids []uint32) {
	b.entries[h] = &segEntry{present: true, shapes: ids}
}

func (b *segmentBuilder) addTombstone(h keyhash.Hash64) {
	b.entries[h] = &segEntry{present: false}
}

func (b *segmentBuilder) len() int { return len(b.entries) }

func (b *segmentBuilder) build() *Segment {
	return newSegment(b.id, b.level, b.entries)
}
