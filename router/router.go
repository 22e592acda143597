// Package router implements the per-(tenant, table) shape router: the
// three-stage pipeline (presence filter, shape index, predicate VM) that
// decides which shapes a single WAL operation belongs to.
package router

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/electric-sql/shaperouter/internal/metrics"
	"github.com/electric-sql/shaperouter/internal/shapeindex"
	"github.com/electric-sql/shaperouter/predicate"
	"github.com/electric-sql/shaperouter/presence"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Router holds all mutable state for one (tenant, table) shape set:
// a presence filter (swapped wholesale on rebuild), an exact shape index,
// a compiled-predicate list, and metrics. A Router is safe for concurrent
// use by many goroutines.
type Router struct {
	// ID identifies this router instance, standing in for the
	// "(tenant, table) router instance" identity a host process tracks
	// across many concurrently-live routers.
	ID uuid.UUID

	presence atomic.Pointer[presence.Filter]

	index *shapeindex.Index

	predMu     sync.RWMutex
	predicates []*predicate.Compiled
	decoder    predicate.RowDecoder

	metrics *metrics.Metrics

	rebuildGroup singleflight.Group

	log *zap.Logger
}

// New returns a Router with an empty (always-false) presence filter, an
// empty shape index, no predicates, and fresh metrics.
func New(log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{
		ID:      uuid.New(),
		index:   shapeindex.New(),
		decoder: noopDecoder{},
		metrics: metrics.New(),
		log:     log,
	}
	empty, _ := presence.Build(nil)
	r.presence.Store(empty)
	return r
}

// Route runs the three-stage pipeline for one WAL operation and returns
// the matching shape ids in ascending order, with no duplicates. Every
// path is total: malformed or absent input yields an empty result plus a
// metrics counter bump, never an error or a panic.
func (r *Router) Route(pkHash uint64, oldRow, newRow []byte, changedColumns []uint16) []uint32 {
	start := time.Now()

	filter := r.presence.Load()
	presenceHit := filter.Contains(pkHash)
	r.metrics.RecordPresenceCheck(time.Since(start), presenceHit)
	if !presenceHit {
		r.metrics.RecordRouteMiss(time.Since(start))
		return nil
	}

	candidates, ok := r.index.Lookup(pkHash)
	if !ok {
		r.metrics.RecordFalsePositive(time.Since(start))
		return nil
	}

	r.predMu.RLock()
	matched := make([]uint32, 0, len(candidates))
	for _, shapeID := range candidates {
		if int(shapeID) >= len(r.predicates) {
			continue
		}
		p := r.predicates[shapeID]
		if !p.ColumnsIntersect(changedColumns) {
			continue
		}
		if predicate.Evaluate(p, r.decoder, oldRow, newRow) {
			matched = append(matched, shapeID)
		}
	}
	r.predMu.RUnlock()

	sortShapeIDs(matched)
	unique := matched[:0]
	for _, id := range matched {
		if len(unique) == 0 || unique[len(unique)-1] != id {
			unique = append(unique, id)
		}
	}
	r.metrics.RecordRouteHit(time.Since(start), len(unique))
	if len(unique) == 0 {
		return nil
	}
	return unique
}

// noopDecoder is the default RowDecoder installed by New: every column
// reads as null until a host calls SetRowDecoder, matching the VM's
// total, never-panicking failure mode rather than leaving the field nil.
type noopDecoder struct{}

func (noopDecoder) Column(row []byte, col uint16) (predicate.Value, bool) {
	return predicate.Null(), false
}

// SetRowDecoder installs the RowDecoder Route uses to resolve column
// loads against a host's real row wire format. Not part of the original
// prototype's contract (its load_column was a hardcoded mock); a host
// calls this once after New.
func (r *Router) SetRowDecoder(dec predicate.RowDecoder) {
	r.predMu.Lock()
	defer r.predMu.Unlock()
	r.decoder = dec
}

// AddShape deserializes predicateBytes, installs it at shapeID (growing
// the predicate list with default never-matching predicates as needed),
// and inserts each pk hash into the shape index's delta. It does not
// touch the presence filter; that is deferred to Rebuild. Returns a parse
// error with no state change on malformed predicateBytes.
func (r *Router) AddShape(shapeID uint32, predicateBytes []byte, pkHashes []uint64) error {
	compiled, err := predicate.Unmarshal(predicateBytes)
	if err != nil {
		return err
	}

	r.predMu.Lock()
	if int(shapeID) >= len(r.predicates) {
		grown := make([]*predicate.Compiled, shapeID+1)
		copy(grown, r.predicates)
		for i := len(r.predicates); i < len(grown); i++ {
			grown[i] = predicate.Default()
		}
		r.predicates = grown
	}
	r.predicates[shapeID] = compiled
	r.predMu.Unlock()

	for _, h := range pkHashes {
		r.index.AddToDelta(h, shapeID)
	}
	return nil
}

// RemoveShape tombstones shapeID. Idempotent.
func (r *Router) RemoveShape(shapeID uint32) {
	r.index.MarkShapeDeleted(shapeID)
}

// Rebuild snapshots the current key universe, builds a new presence
// filter, and atomically swaps it in. Concurrent Route calls observe
// either the old or the new filter, never a torn state. Concurrent
// Rebuild calls are deduplicated via singleflight: many callers noticing
// the delta has grown and calling Rebuild at once trigger one rebuild,
// not N.
func (r *Router) Rebuild() error {
	_, err, _ := r.rebuildGroup.Do("rebuild", func() (any, error) {
		start := time.Now()
		keys := r.index.CollectAllPresentKeys()

		newFilter, err := presence.Build(keys)
		if err != nil {
			return nil, err
		}
		r.presence.Store(newFilter)

		r.metrics.RecordRebuild(time.Since(start))
		r.log.Debug("router rebuilt", zap.Int("keys", len(keys)))
		return nil, nil
	})
	return err
}

// Metrics returns a point-in-time metrics snapshot.
func (r *Router) Metrics() metrics.Snapshot {
	return r.metrics.Snapshot()
}

func sortShapeIDs(xs []uint32) {
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
}
