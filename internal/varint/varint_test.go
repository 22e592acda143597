package varint

import "testing"

func TestRoundtrip(t *testing.T) {
	values := []uint32{
		0, 1, 127, 128, 255, 256,
		16383, 16384, 65535, 65536,
		1048575, 1048576,
		(1 << 31) - 1,
	}

	for _, v := range values {
		buf := Encode(nil, v)
		got, n, err := Decode(buf)
		if err != nil {
			t.Fatalf("value %d: decode: %v", v, err)
		}
		if got != v {
			t.Errorf("value %d: decoded %d", v, got)
		}
		if n != len(buf) {
			t.Errorf("value %d: bytes_read=%d want %d", v, n, len(buf))
		}
		if EncodedSize(v) != len(buf) {
			t.Errorf("value %d: EncodedSize=%d want %d", v, EncodedSize(v), len(buf))
		}
	}
}

func TestBoundaries(t *testing.T) {
	tests := []struct {
		value    uint32
		wantSize int
	}{
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
	}
	for _, tt := range tests {
		buf := Encode(nil, tt.value)
		if len(buf) != tt.wantSize {
			t.Errorf("encode(%d): got %d bytes, want %d", tt.value, len(buf), tt.wantSize)
		}
	}
}

func TestAverageBytesForSmallIDs(t *testing.T) {
	const count = 1000
	total := 0
	for id := uint32(0); id < count; id++ {
		total += len(Encode(nil, id))
	}
	avg := float64(total) / float64(count)
	if avg >= 2.0 {
		t.Errorf("average bytes per id = %.3f, want < 2.0", avg)
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if _, _, err := Decode(nil); err == nil {
			t.Fatal("expected error on empty input")
		}
	})

	t.Run("continuation bit on fifth byte", func(t *testing.T) {
		buf := []byte{0x80, 0x80, 0x80, 0x80, 0x80}
		if _, _, err := Decode(buf); err == nil {
			t.Fatal("expected error on malformed fifth byte")
		}
	})

	t.Run("truncated", func(t *testing.T) {
		buf := []byte{0x80}
		if _, _, err := Decode(buf); err == nil {
			t.Fatal("expected error on truncated input")
		}
	})
}

func TestDecodeDoesNotReadPastBuffer(t *testing.T) {
	buf := Encode(nil, 300)
	extended := append(append([]byte{}, buf...), 0xFF, 0xFF)
	_, n, err := Decode(extended)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(buf) {
		t.Errorf("n=%d want %d (must not consume trailing bytes)", n, len(buf))
	}
}
