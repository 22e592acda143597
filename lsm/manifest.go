package lsm

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// manifestVersion is the current on-disk manifest format version.
const manifestVersion = 1

// ErrManifestVersion is returned by LoadManifest when the on-disk version
// field does not match a version this build understands.
var ErrManifestVersion = errors.New("lsm: unsupported manifest version")

// SegmentMetadata describes one persisted segment file.
type SegmentMetadata struct {
	ID       uint64  `json:"id"`
	Level    uint32  `json:"level"`
	Count    int     `json:"count"`
	Path     string  `json:"path"`
	Checksum *string `json:"checksum,omitempty"`
}

// LaneManifest is the per-lane slice of a Manifest: its segment list
// (newest first) and the overlay sequence number at the time of the save.
type LaneManifest struct {
	ID           LaneID            `json:"id"`
	Segments     []SegmentMetadata `json:"segments"`
	OverlaySeqNo uint64            `json:"overlay_seqno"`
}

// AddSegment inserts metadata at the front of the lane's segment list (newest).
func (lm *LaneManifest) AddSegment(md SegmentMetadata) {
	lm.Segments = append([]SegmentMetadata{md}, lm.Segments...)
}

// RemoveSegment deletes the entry for segmentID, if any.
func (lm *LaneManifest) RemoveSegment(segmentID uint64) {
	out := lm.Segments[:0]
	for _, s := range lm.Segments {
		if s.ID != segmentID {
			out = append(out, s)
		}
	}
	lm.Segments = out
}

// Manifest is the versioned, atomically-swapped on-disk description of a
// Index's lanes and their segment files.
type Manifest struct {
	Version    int            `json:"version"`
	NumLanes   int            `json:"num_lanes"`
	Generation uint64         `json:"generation"`
	Lanes      []LaneManifest `json:"lanes"`
}

// NewManifest returns a generation-0 manifest for numLanes empty lanes.
func NewManifest(numLanes int) *Manifest {
	lanes := make([]LaneManifest, numLanes)
	for i := range lanes {
		lanes[i] = LaneManifest{ID: LaneID(i)}
	}
	return &Manifest{Version: manifestVersion, NumLanes: numLanes, Lanes: lanes}
}

// GetLane returns a pointer to the lane manifest for id, or nil.
func (m *Manifest) GetLane(id LaneID) *LaneManifest {
	for i := range m.Lanes {
		if m.Lanes[i].ID == id {
			return &m.Lanes[i]
		}
	}
	return nil
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lsm: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("lsm: parse manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrManifestVersion, m.Version, manifestVersion)
	}
	return &m, nil
}

// Save writes the manifest atomically: encode to a temp file in the same
// directory as path, fsync, then rename over path. The rename is the commit
// point, so a crash mid-write never leaves a torn manifest.json behind.
// Generation is incremented before encoding.
func (m *Manifest) Save(path string) error {
	m.Generation++

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		m.Generation--
		return fmt.Errorf("lsm: marshal manifest: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		m.Generation--
		return fmt.Errorf("lsm: create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		m.Generation--
		return fmt.Errorf("lsm: write temp manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		m.Generation--
		return fmt.Errorf("lsm: fsync temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		m.Generation--
		return fmt.Errorf("lsm: close temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		m.Generation--
		return fmt.Errorf("lsm: rename manifest: %w", err)
	}
	return nil
}
