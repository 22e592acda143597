// Package metrics implements the router's lock-free operation counters,
// ported from the original RouterMetrics/MetricsSnapshot split: raw
// atomic counters are cheap to bump on every hot-path call, and a
// derived, JSON-serializable Snapshot is computed only when requested.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics accumulates router counters. The zero value is ready to use.
type Metrics struct {
	presenceChecks atomic.Uint64
	presenceHits   atomic.Uint64
	routeCalls     atomic.Uint64
	routeHits      atomic.Uint64
	routeMisses    atomic.Uint64
	falsePositives atomic.Uint64
	rebuilds       atomic.Uint64

	totalPresenceNs atomic.Uint64
	totalRouteNs    atomic.Uint64
	totalRebuildNs  atomic.Uint64

	totalShapesMatched atomic.Uint64
}

// New returns a ready-to-use Metrics.
func New() *Metrics {
	return &Metrics{}
}

// RecordPresenceCheck records one presence-filter probe.
func (m *Metrics) RecordPresenceCheck(d time.Duration, hit bool) {
	m.presenceChecks.Add(1)
	if hit {
		m.presenceHits.Add(1)
	}
	m.totalPresenceNs.Add(uint64(d.Nanoseconds()))
}

// RecordRouteHit records a route() call that matched shapeCount shapes.
func (m *Metrics) RecordRouteHit(d time.Duration, shapeCount int) {
	m.routeCalls.Add(1)
	m.routeHits.Add(1)
	m.totalRouteNs.Add(uint64(d.Nanoseconds()))
	m.totalShapesMatched.Add(uint64(shapeCount))
}

// RecordRouteMiss records a route() call that matched nothing.
func (m *Metrics) RecordRouteMiss(d time.Duration) {
	m.routeCalls.Add(1)
	m.routeMisses.Add(1)
	m.totalRouteNs.Add(uint64(d.Nanoseconds()))
}

// RecordFalsePositive records a presence-filter hit that the shape index
// then resolved as absent (stage 2 miss after a stage 1 hit).
func (m *Metrics) RecordFalsePositive(d time.Duration) {
	m.falsePositives.Add(1)
	m.totalRouteNs.Add(uint64(d.Nanoseconds()))
}

// RecordRebuild records one presence-filter/base-index rebuild.
func (m *Metrics) RecordRebuild(d time.Duration) {
	m.rebuilds.Add(1)
	m.totalRebuildNs.Add(uint64(d.Nanoseconds()))
}

// Snapshot is a point-in-time, JSON-serializable view of Metrics with
// derived rates and averages computed.
type Snapshot struct {
	PresenceChecks    uint64  `json:"presence_checks"`
	PresenceHits      uint64  `json:"presence_hits"`
	PresenceHitRate   float64 `json:"presence_hit_rate"`
	RouteCalls        uint64  `json:"route_calls"`
	RouteHits         uint64  `json:"route_hits"`
	RouteMisses       uint64  `json:"route_misses"`
	FalsePositives    uint64  `json:"false_positives"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	AvgPresenceUs     float64 `json:"avg_presence_us"`
	AvgRouteUs        float64 `json:"avg_route_us"`
	AvgShapesPerHit   float64 `json:"avg_shapes_per_hit"`
	Rebuilds          uint64  `json:"rebuilds"`
	AvgRebuildMs      float64 `json:"avg_rebuild_ms"`
}

// Snapshot computes a Snapshot from the current counter values. Reads are
// independent atomic loads, so a concurrent writer may produce a snapshot
// whose derived fields are very slightly inconsistent with each other;
// that's an acceptable trade for a lock-free hot path.
func (m *Metrics) Snapshot() Snapshot {
	presenceChecks := m.presenceChecks.Load()
	presenceHits := m.presenceHits.Load()
	routeCalls := m.routeCalls.Load()
	routeHits := m.routeHits.Load()
	routeMisses := m.routeMisses.Load()
	falsePositives := m.falsePositives.Load()
	rebuilds := m.rebuilds.Load()
	totalPresenceNs := m.totalPresenceNs.Load()
	totalRouteNs := m.totalRouteNs.Load()
	totalRebuildNs := m.totalRebuildNs.Load()
	totalShapesMatched := m.totalShapesMatched.Load()

	s := Snapshot{
		PresenceChecks: presenceChecks,
		PresenceHits:   presenceHits,
		RouteCalls:     routeCalls,
		RouteHits:      routeHits,
		RouteMisses:    routeMisses,
		FalsePositives: falsePositives,
		Rebuilds:       rebuilds,
	}
	if presenceChecks > 0 {
		s.PresenceHitRate = float64(presenceHits) / float64(presenceChecks)
		s.AvgPresenceUs = (float64(totalPresenceNs) / float64(presenceChecks)) / 1000.0
	}
	if presenceHits > 0 {
		s.FalsePositiveRate = float64(falsePositives) / float64(presenceHits)
	}
	if routeCalls > 0 {
		s.AvgRouteUs = (float64(totalRouteNs) / float64(routeCalls)) / 1000.0
	}
	if routeHits > 0 {
		s.AvgShapesPerHit = float64(totalShapesMatched) / float64(routeHits)
	}
	if rebuilds > 0 {
		s.AvgRebuildMs = (float64(totalRebuildNs) / float64(rebuilds)) / 1_000_000.0
	}
	return s
}
