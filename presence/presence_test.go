package presence

import "testing"

func TestEmptyFilterNeverMatches(t *testing.T) {
	f, err := Build(nil)
	if err != nil {
		t.Fatalf("Build(nil): %v", err)
	}
	if f.Contains(12345) {
		t.Fatal("empty filter should never report a match")
	}
	if f.KeyCount() != 0 {
		t.Fatalf("KeyCount()=%d want 0", f.KeyCount())
	}
}

func TestAllMembersFound(t *testing.T) {
	const n = 10000
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = uint64(i)*2 + 1 // avoid overlap with the disjoint query set below
	}

	f, err := Build(keys)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, k := range keys {
		if !f.Contains(k) {
			t.Fatalf("key %d: expected member, got non-member (false negative)", k)
		}
	}
}

func TestFalsePositiveRateBound(t *testing.T) {
	const n = 10000
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = uint64(i)*2 + 1
	}
	f, err := Build(keys)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	disjoint := make([]uint64, n)
	for i := range disjoint {
		disjoint[i] = uint64(i) * 2 // even, disjoint from odd key set
	}

	falsePositives := 0
	for _, k := range disjoint {
		if f.Contains(k) {
			falsePositives++
		}
	}
	rate := float64(falsePositives) / float64(n)
	if rate > 0.02 {
		t.Fatalf("false positive rate %.4f exceeds 2%% bound", rate)
	}
}

func TestBuildDegradesToBloomWithoutError(t *testing.T) {
	// A key set dominated by duplicates is pathological for binary-fuse
	// construction (not enough distinct fingerprints to peel), forcing the
	// Bloom fallback. A successful degrade must not surface as an error:
	// the returned Filter must still be usable.
	keys := make([]uint64, 2000)
	for i := range keys {
		keys[i] = 42
	}
	f, err := Build(keys)
	if err != nil {
		t.Fatalf("Build with degenerate key set returned an error instead of degrading: %v", err)
	}
	if !f.Contains(42) {
		t.Fatal("expected fallback filter to contain the only distinct key")
	}
}

func TestMemoryBudget(t *testing.T) {
	const n = 100000
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = uint64(i)
	}
	f, err := Build(keys)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	bytesPerKey := float64(f.MemoryBytes()) / float64(n)
	if bytesPerKey > 3.0 {
		t.Fatalf("memory cost %.2f bytes/key exceeds 3.0 budget", bytesPerKey)
	}
}
