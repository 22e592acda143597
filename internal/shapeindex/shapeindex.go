// Package shapeindex implements the router's exact PK-hash -> shape-id
// index: an immutable base map produced by periodic rebuilds, plus a
// mutable delta overlay for changes accumulated since the last rebuild,
// plus a tombstone set of shape ids removed since the last rebuild.
package shapeindex

import "sync"

// Index is the two-tier map backing stage 2 of shape routing. The zero
// value is not usable; construct with New.
type Index struct {
	mu sync.RWMutex

	base       map[uint64][]uint32 // nil until the first rebuild
	delta      map[uint64][]uint32
	tombstones map[uint32]struct{}
}

// New returns an empty index: no base yet, empty delta and tombstones.
func New() *Index {
	return &Index{
		delta:      make(map[uint64][]uint32),
		tombstones: make(map[uint32]struct{}),
	}
}

// Lookup checks delta first (the more recent tier); if it holds an entry
// for h, the shape list is returned with tombstoned shape ids filtered
// out. Otherwise base is consulted under the same filter. ok is false
// only when neither tier has an entry for h at all.
func (idx *Index) Lookup(h uint64) (shapeIDs []uint32, ok bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if shapes, found := idx.delta[h]; found {
		return idx.filterTombstonesLocked(shapes), true
	}
	if idx.base != nil {
		if shapes, found := idx.base[h]; found {
			return idx.filterTombstonesLocked(shapes), true
		}
	}
	return nil, false
}

func (idx *Index) filterTombstonesLocked(shapes []uint32) []uint32 {
	if len(idx.tombstones) == 0 {
		return shapes
	}
	out := make([]uint32, 0, len(shapes))
	for _, s := range shapes {
		if _, dead := idx.tombstones[s]; !dead {
			out = append(out, s)
		}
	}
	return out
}

// AddToDelta appends shapeID to h's delta entry. Duplicates are tolerated
// here; callers (the router) are expected to pass shape ids uniquely.
func (idx *Index) AddToDelta(h uint64, shapeID uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.delta[h] = append(idx.delta[h], shapeID)
}

// MarkShapeDeleted tombstones shapeID. Idempotent.
func (idx *Index) MarkShapeDeleted(shapeID uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tombstones[shapeID] = struct{}{}
}

// CollectAllPresentKeys returns the union of base and delta key sets.
// Tombstones do NOT remove keys from this set: a shape deletion doesn't
// necessarily empty a PK's mapping, only an updated add_to_delta does.
func (idx *Index) CollectAllPresentKeys() []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[uint64]struct{}, len(idx.base)+len(idx.delta))
	for h := range idx.base {
		seen[h] = struct{}{}
	}
	for h := range idx.delta {
		seen[h] = struct{}{}
	}
	keys := make([]uint64, 0, len(seen))
	for h := range seen {
		keys = append(keys, h)
	}
	return keys
}

// DeltaSize reports the number of distinct keys held in the delta, used by
// the host's rebuild-threshold policy.
func (idx *Index) DeltaSize() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.delta)
}

// TombstoneCount reports the number of tombstoned shape ids.
func (idx *Index) TombstoneCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.tombstones)
}

// SwapBase installs newBase as the index's base tier and clears the delta
// and tombstone sets: a base rebuild folds the delta and resolves all
// pending deletions into the new immutable map in one atomic step (spec's
// "rebuild does not clear delta" rule applies only to a presence-filter-
// only rebuild; a full base rebuild clears it, per the same source).
func (idx *Index) SwapBase(newBase map[uint64][]uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.base = newBase
	idx.delta = make(map[uint64][]uint32)
	idx.tombstones = make(map[uint32]struct{})
}

// HasBase reports whether a base rebuild has ever run.
func (idx *Index) HasBase() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.base != nil
}
