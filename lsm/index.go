// Package lsm implements a lane-partitioned log-structured-merge index
// mapping a 64-bit fingerprint to a shape-id set, with churn-tolerant
// background compaction and an atomically-swapped on-disk manifest.
package lsm

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/electric-sql/shaperouter/internal/keyhash"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Index is N independent lanes plus a manifest, selecting a lane for each
// key via jump-consistent hashing so a lookup probes exactly one lane.
type Index struct {
	numLanes int
	lanes    []*Lane

	manifestMu sync.Mutex // single-writer; readers snapshot Manifest by value
	manifest   *Manifest
	basePath   string // empty: in-memory only, no persistence

	log *zap.Logger
}

// New creates an Index with numLanes independent lanes. basePath is
// optional; an empty string means the index is purely in-memory and Save
// is never called automatically.
func New(numLanes int, basePath string, log *zap.Logger) *Index {
	if log == nil {
		log = zap.NewNop()
	}
	lanes := make([]*Lane, numLanes)
	for i := range lanes {
		lanes[i] = NewLane(LaneID(i))
	}
	return &Index{
		numLanes: numLanes,
		lanes:    lanes,
		manifest: NewManifest(numLanes),
		basePath: basePath,
		log:      log,
	}
}

func (ix *Index) laneFor(keyBytes []byte) (int, keyhash.Hash64) {
	h := keyhash.Sum(keyBytes)
	return keyhash.Lane(h, ix.numLanes), h
}

// Insert hashes keyBytes, selects its lane, and inserts shapeID.
func (ix *Index) Insert(keyBytes []byte, shapeID uint32) {
	laneIdx, h := ix.laneFor(keyBytes)
	ix.lanes[laneIdx].Insert(h, shapeID)
}

// Remove hashes keyBytes, selects its lane, and removes shapeID.
func (ix *Index) Remove(keyBytes []byte, shapeID uint32) {
	laneIdx, h := ix.laneFor(keyBytes)
	ix.lanes[laneIdx].Remove(h, shapeID)
}

// Lookup hashes keyBytes, selects its lane, and returns the shape-id list,
// or nil if absent.
func (ix *Index) Lookup(keyBytes []byte) []uint32 {
	laneIdx, h := ix.laneFor(keyBytes)
	return ix.lanes[laneIdx].Lookup(h)
}

// AllShapeIDs returns the union of shape ids across every lane.
func (ix *Index) AllShapeIDs() []uint32 {
	union := make(map[uint32]struct{})
	for _, l := range ix.lanes {
		for id := range l.AllShapeIDs() {
			union[id] = struct{}{}
		}
	}
	out := make([]uint32, 0, len(union))
	for id := range union {
		out = append(out, id)
	}
	sortUint32s(out)
	return out
}

// IsEmpty reports whether every lane is empty.
func (ix *Index) IsEmpty() bool {
	for _, l := range ix.lanes {
		if !l.IsEmpty() {
			return false
		}
	}
	return true
}

// MaybeCompact compacts every lane whose overlay size is at least
// threshold, fanning the per-lane scan out across an errgroup so
// independent lanes compact concurrently — a production scheduler would run
// this off the hot path entirely; this just keeps it off the single
// goroutine that would otherwise serialize unrelated lanes.
func (ix *Index) MaybeCompact(ctx context.Context, threshold int) ([]LaneID, error) {
	var mu sync.Mutex
	var compacted []LaneID

	g, _ := errgroup.WithContext(ctx)
	for _, lane := range ix.lanes {
		lane := lane
		g.Go(func() error {
			if lane.OverlaySize() >= threshold {
				lane.Compact()
				mu.Lock()
				compacted = append(compacted, lane.id)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortLaneIDs(compacted)
	if len(compacted) > 0 {
		ix.log.Debug("compacted lanes", zap.Int("count", len(compacted)))
	}
	return compacted, nil
}

// Stats aggregates size statistics across every lane.
type Stats struct {
	NumLanes            int
	TotalOverlayEntries int
	TotalSegmentEntries int
	TotalSegments       int
	TotalEntries        int
}

// Stats reports aggregate sizing across the whole index.
func (ix *Index) Stats() Stats {
	var s Stats
	s.NumLanes = ix.numLanes
	for _, l := range ix.lanes {
		ls := l.Stats()
		s.TotalOverlayEntries += ls.OverlayEntries
		s.TotalSegmentEntries += ls.TotalSegmentEntries
		s.TotalSegments += ls.SegmentCount
	}
	s.TotalEntries = s.TotalOverlayEntries + s.TotalSegmentEntries
	return s
}

// manifestPath returns the on-disk manifest location, or "" if the index
// has no base path (in-memory only).
func (ix *Index) manifestPath() string {
	if ix.basePath == "" {
		return ""
	}
	return filepath.Join(ix.basePath, "manifest.json")
}

// SaveManifest persists the current manifest atomically. A no-op returning
// nil when the index has no base path.
func (ix *Index) SaveManifest() error {
	path := ix.manifestPath()
	if path == "" {
		return nil
	}
	ix.manifestMu.Lock()
	defer ix.manifestMu.Unlock()
	return ix.manifest.Save(path)
}

func sortLaneIDs(xs []LaneID) {
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
}
