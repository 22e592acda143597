package lsm

import "sort"

// sortUint32s sorts xs ascending in place. Shape-id lists are small (callers
// keep segment fan-in bounded), so a stdlib sort is sufficient; nothing in
// the wired dependency set offers a specialized uint32 sort.
func sortUint32s(xs []uint32) {
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
}
