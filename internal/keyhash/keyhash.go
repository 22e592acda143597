// Package keyhash derives 64-bit fingerprints from primary-key byte strings
// and assigns those fingerprints to lanes via jump-consistent hashing.
package keyhash

import "github.com/dchest/siphash"

// fixed process-wide SipHash-2-4 key. Deterministic within a build; not a
// secret, only a collision-resistance measure against adversarial PKs.
const (
	sipKey0 uint64 = 0x0706050403020100
	sipKey1 uint64 = 0x0f0e0d0c0b0a0908
)

// Hash64 is a 64-bit fingerprint of a primary-key byte string.
type Hash64 uint64

// Sum derives the fingerprint of b via SipHash-2-4.
func Sum(b []byte) Hash64 {
	return Hash64(siphash.Hash(sipKey0, sipKey1, b))
}

// Lane assigns h to a lane in [0, numLanes) via jump-consistent hashing.
// Changing numLanes from N to N+1 moves only ≈1/(N+1) of keys.
//
// Ported from the jump-consistent-hash formula in Lamping & Veach,
// "A Fast, Minimal Memory, Consistent Hash Algorithm" (arXiv:1406.2294).
func Lane(h Hash64, numLanes int) int {
	if numLanes <= 0 {
		return 0
	}
	key := uint64(h)
	var b, j int64 = -1, 0
	n := int64(numLanes)
	for j < n {
		b = j
		key = key*2862933555777941757 + 1
		j = int64(float64(b+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}
	return int(b)
}
