// Package presence implements the approximate-membership filter that gates
// stage 1 of shape routing: an immutable, ~1%-false-positive-rate structure
// built offline from the current key universe and swapped in atomically by
// a rebuild.
package presence

import (
	"errors"

	bloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/FastFilter/xorfilter"
)

// ErrBuildFailed is reserved for callers to match against with errors.Is
// if Build ever gains a failure mode; today it is never returned, since
// the Bloom fallback is unconditional once binary-fuse construction fails
// twice.
var ErrBuildFailed = errors.New("presence: filter construction failed")

// targetFPP bounds the Bloom-filter fallback to the same ≤2% false-positive
// budget the binary-fuse backend guarantees structurally.
const targetFPP = 0.01

// Filter is an immutable approximate-membership structure over a set of
// 64-bit fingerprints. contains never returns false for a member; for a
// non-member it returns true with probability ≤ 2%.
type Filter struct {
	fuse     *xorfilter.BinaryFuse8
	bloom    *bloom.BloomFilter
	keyCount int
}

// Build constructs a Filter over keys. An empty key set yields a Filter
// whose Contains always returns false. Binary-fuse construction can fail on
// pathological key sets (too few distinct keys, adversarial collisions); on
// failure Build calls the binary-fuse constructor once more over the same
// keys and, failing that, falls back to a sized Bloom filter (spec §7,
// "Capacity" errors). The
// Bloom fallback is a successful degradation, not an error: Build returns a
// nil error whenever it hands back a usable Filter, fuse-backed or not.
func Build(keys []uint64) (*Filter, error) {
	if len(keys) == 0 {
		return &Filter{}, nil
	}

	fuse, err := xorfilter.PopulateBinaryFuse8(keys)
	if err == nil {
		return &Filter{fuse: fuse, keyCount: len(keys)}, nil
	}

	// Construction draws a fresh internal seed each call, so a second
	// attempt over the same keys can succeed where the first didn't.
	if fuse, err2 := xorfilter.PopulateBinaryFuse8(keys); err2 == nil {
		return &Filter{fuse: fuse, keyCount: len(keys)}, nil
	}

	bf := bloom.NewWithEstimates(uint(len(keys)), targetFPP)
	for _, k := range keys {
		var b [8]byte
		putUint64(b[:], k)
		bf.Add(b[:])
	}
	return &Filter{bloom: bf, keyCount: len(keys)}, nil
}

// Contains reports whether h is possibly a member. An empty or zero-value
// Filter always returns false.
func (f *Filter) Contains(h uint64) bool {
	if f == nil {
		return false
	}
	switch {
	case f.fuse != nil:
		return f.fuse.Contains(h)
	case f.bloom != nil:
		var b [8]byte
		putUint64(b[:], h)
		return f.bloom.Test(b[:])
	default:
		return false
	}
}

// KeyCount returns the number of keys the filter was built over.
func (f *Filter) KeyCount() int {
	if f == nil {
		return 0
	}
	return f.keyCount
}

// MemoryBytes estimates the filter's memory footprint. Binary-fuse8 costs
// roughly 9 bits/key (8-bit fingerprints at load factor ~1.13); the Bloom
// fallback reports its bit-array size.
func (f *Filter) MemoryBytes() int {
	if f == nil {
		return 0
	}
	switch {
	case f.fuse != nil:
		return len(f.fuse.Fingerprints) + 24
	case f.bloom != nil:
		return int(f.bloom.Cap()/8) + 24
	default:
		return 0
	}
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
