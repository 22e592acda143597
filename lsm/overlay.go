package lsm

import "github.com/electric-sql/shaperouter/internal/keyhash"

// lookupState distinguishes "present with a shape set", "tombstoned", and
// "never seen" — a lane must stop at a tombstone rather than falling
// through to its segments, which a bare Option/pointer return cannot
// express cleanly.
type lookupState int

const (
	stateAbsent lookupState = iota
	statePresent
	stateTombstone
)

type overlayEntry struct {
	present bool // false marks a tombstone
	shapes  map[uint32]struct{}
}

// overlay is a mutable hash map from fingerprint to shape-set, with
// tombstones for removed keys. It has no lock of its own: the owning Lane's
// RWMutex guards all access.
type overlay struct {
	entries map[keyhash.Hash64]*overlayEntry
}

func newOverlay() *overlay {
	return &overlay{entries: make(map[keyhash.Hash64]*overlayEntry)}
}

// insert upserts h -> Present, adding shapeID to its set. A tombstone entry
// is replaced by a fresh present entry containing only shapeID.
func (o *overlay) insert(h keyhash.Hash64, shapeID uint32) {
	e, ok := o.entries[h]
	if !ok || !e.present {
		e = &overlayEntry{present: true, shapes: make(map[uint32]struct{}, 1)}
		o.entries[h] = e
	}
	e.shapes[shapeID] = struct{}{}
}

// remove deletes shapeID from h's set. If the set becomes empty, the entry
// becomes a tombstone so it can shadow a segment's stale value.
func (o *overlay) remove(h keyhash.Hash64, shapeID uint32) {
	e, ok := o.entries[h]
	if !ok || !e.present {
		return
	}
	delete(e.shapes, shapeID)
	if len(e.shapes) == 0 {
		o.entries[h] = &overlayEntry{present: false}
	}
}

// lookup reports the 3-state result of probing h.
func (o *overlay) lookup(h keyhash.Hash64) (ids []uint32, state lookupState) {
	e, ok := o.entries[h]
	if !ok {
		return nil, stateAbsent
	}
	if !e.present {
		return nil, stateTombstone
	}
	return sortedKeys(e.shapes), statePresent
}

// contains reports whether h has any entry, tombstone or present.
func (o *overlay) contains(h keyhash.Hash64) bool {
	_, ok := o.entries[h]
	return ok
}

func (o *overlay) len() int { return len(o.entries) }

func (o *overlay) isEmpty() bool { return len(o.entries) == 0 }

// allShapeIDs returns the union of shape ids across present entries.
func (o *overlay) allShapeIDs() map[uint32]struct{} {
	out := make(map[uint32]struct{})
	for _, e := range o.entries {
		if e.present {
			for id := range e.shapes {
				out[id] = struct{}{}
			}
		}
	}
	return out
}

func (o *overlay) clear() {
	o.entries = make(map[keyhash.Hash64]*overlayEntry)
}

func sortedKeys(m map[uint32]struct{}) []uint32 {
	out := make([]uint32, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sortUint32s(out)
	return out
}
