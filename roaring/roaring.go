// Package roaring is a thin, opaque facade over a compressed 32-bit integer
// set, used both inside compiled predicates (large IN-sets) and by external
// callers that need bulk set algebra over shape ids or fingerprint sets.
package roaring

import (
	"bytes"

	rb "github.com/RoaringBitmap/roaring/v2"
)

// Bitmap is an opaque handle to an unsigned 32-bit integer set.
type Bitmap struct {
	bm *rb.Bitmap
}

// New returns an empty bitmap.
func New() *Bitmap {
	return &Bitmap{bm: rb.New()}
}

// FromList builds a bitmap containing exactly the given values.
func FromList(xs []uint32) *Bitmap {
	return &Bitmap{bm: rb.BitmapOf(xs...)}
}

// Add inserts v.
func (b *Bitmap) Add(v uint32) { b.bm.Add(v) }

// AddMany inserts every value in xs. Long-running for large xs; hosts may
// schedule bulk calls on a worker pool.
func (b *Bitmap) AddMany(xs []uint32) { b.bm.AddMany(xs) }

// Remove deletes v if present.
func (b *Bitmap) Remove(v uint32) { b.bm.Remove(v) }

// Clear empties the bitmap.
func (b *Bitmap) Clear() { b.bm.Clear() }

// Contains reports whether v is a member.
func (b *Bitmap) Contains(v uint32) bool { return b.bm.Contains(v) }

// Cardinality returns the number of members.
func (b *Bitmap) Cardinality() uint64 { return b.bm.GetCardinality() }

// IsEmpty reports whether the bitmap has no members.
func (b *Bitmap) IsEmpty() bool { return b.bm.IsEmpty() }

// Min returns the smallest member and true, or (0, false) if empty.
func (b *Bitmap) Min() (uint32, bool) {
	if b.bm.IsEmpty() {
		return 0, false
	}
	return b.bm.Minimum(), true
}

// Max returns the largest member and true, or (0, false) if empty.
func (b *Bitmap) Max() (uint32, bool) {
	if b.bm.IsEmpty() {
		return 0, false
	}
	return b.bm.Maximum(), true
}

// Union returns a new bitmap containing every member of a or b.
func Union(a, b *Bitmap) *Bitmap {
	return &Bitmap{bm: rb.Or(a.bm, b.bm)}
}

// Intersection returns a new bitmap containing members present in both a and b.
func Intersection(a, b *Bitmap) *Bitmap {
	return &Bitmap{bm: rb.And(a.bm, b.bm)}
}

// Difference returns a new bitmap containing members of a not present in b.
func Difference(a, b *Bitmap) *Bitmap {
	return &Bitmap{bm: rb.AndNot(a.bm, b.bm)}
}

// UnionMany returns the union of every bitmap in xs. UnionMany(nil) is empty.
func UnionMany(xs []*Bitmap) *Bitmap {
	if len(xs) == 0 {
		return New()
	}
	raw := make([]*rb.Bitmap, len(xs))
	for i, x := range xs {
		raw[i] = x.bm
	}
	return &Bitmap{bm: rb.FastOr(raw...)}
}

// IntersectionMany returns the intersection of every bitmap in xs.
// IntersectionMany(nil) is empty, not the universe.
func IntersectionMany(xs []*Bitmap) *Bitmap {
	if len(xs) == 0 {
		return New()
	}
	result := xs[0].bm.Clone()
	for _, x := range xs[1:] {
		result.And(x.bm)
	}
	return &Bitmap{bm: result}
}

// Equal reports whether a and b contain the same members.
func Equal(a, b *Bitmap) bool { return a.bm.Equals(b.bm) }

// IsSubset reports whether every member of a is also a member of b.
func IsSubset(a, b *Bitmap) bool { return a.bm.AndCardinality(b.bm) == a.bm.GetCardinality() }

// AnyContains reports whether any bitmap in xs contains v.
func AnyContains(xs []*Bitmap, v uint32) bool {
	for _, x := range xs {
		if x.Contains(v) {
			return true
		}
	}
	return false
}

// ToList returns the sorted members as a plain slice.
func (b *Bitmap) ToList() []uint32 { return b.bm.ToArray() }

// SizeInBytes returns the serialized size of the bitmap.
func (b *Bitmap) SizeInBytes() int { return int(b.bm.GetSerializedSizeInBytes()) }

// Marshal serializes the bitmap to its portable roaring wire format, the
// same representation used for the IntBitmap constant kind in compiled
// predicates (spec §6).
func (b *Bitmap) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := b.bm.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a bitmap previously produced by Marshal.
func Unmarshal(data []byte) (*Bitmap, error) {
	bm := rb.New()
	if _, err := bm.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return &Bitmap{bm: bm}, nil
}
