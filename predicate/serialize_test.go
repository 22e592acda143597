package predicate

import (
	"testing"

	"github.com/electric-sql/shaperouter/roaring"
)

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	bm := roaring.FromList([]uint32{1, 5, 9, 1000})
	orig := &Compiled{
		Bytecode: []byte{
			byte(OpLoadColumn), 1, 0,
			byte(OpPushConst), 0, 0,
			byte(OpEq),
			byte(OpReturn),
		},
		Columns: []uint16{1, 2},
		Constants: []Constant{
			IntConstant(42),
			FloatConstant(3.25),
			StringConstant("hello"),
			IntSetConstant([]int64{1, 2, 3}),
			BitmapConstant(bm),
		},
	}

	data := Marshal(orig)
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if string(got.Bytecode) != string(orig.Bytecode) {
		t.Fatalf("bytecode mismatch: got %v want %v", got.Bytecode, orig.Bytecode)
	}
	if len(got.Columns) != len(orig.Columns) {
		t.Fatalf("columns length mismatch")
	}
	for i := range orig.Columns {
		if got.Columns[i] != orig.Columns[i] {
			t.Fatalf("column %d mismatch: got %d want %d", i, got.Columns[i], orig.Columns[i])
		}
	}
	if len(got.Constants) != len(orig.Constants) {
		t.Fatalf("constants length mismatch: got %d want %d", len(got.Constants), len(orig.Constants))
	}

	if got.Constants[0].Int != 42 {
		t.Errorf("int constant mismatch: %v", got.Constants[0])
	}
	if got.Constants[1].Float != 3.25 {
		t.Errorf("float constant mismatch: %v", got.Constants[1])
	}
	if got.Constants[2].Str != "hello" {
		t.Errorf("string constant mismatch: %v", got.Constants[2])
	}
	if len(got.Constants[3].IntSet) != 3 || got.Constants[3].IntSet[2] != 3 {
		t.Errorf("int-set constant mismatch: %v", got.Constants[3])
	}
	if got.Constants[4].Bitmap == nil || !got.Constants[4].Bitmap.Contains(1000) {
		t.Errorf("bitmap constant mismatch: %v", got.Constants[4])
	}
}

func TestMarshalUnmarshalEmptyPredicate(t *testing.T) {
	data := Marshal(Default())
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Bytecode) != 0 || len(got.Columns) != 0 || len(got.Constants) != 0 {
		t.Fatalf("expected empty predicate to round-trip empty, got %+v", got)
	}
	if Evaluate(got, emptyFixture(), oldRowTag, newRowTag) {
		t.Fatal("round-tripped default predicate must still evaluate false")
	}
}

func TestUnmarshalRejectsBadVersion(t *testing.T) {
	data := Marshal(Default())
	data[0] = 99
	if _, err := Unmarshal(data); err == nil {
		t.Fatal("expected error for unsupported version byte")
	}
}

func TestUnmarshalRejectsTruncatedInput(t *testing.T) {
	data := Marshal(AlwaysTrue())
	for n := 0; n < len(data); n++ {
		if _, err := Unmarshal(data[:n]); err == nil {
			t.Fatalf("expected error for truncated input of length %d", n)
		}
	}
}

func TestUnmarshalRejectsUnknownOpcode(t *testing.T) {
	c := &Compiled{Bytecode: []byte{255, byte(OpReturn)}}
	data := Marshal(c)
	if _, err := Unmarshal(data); err == nil {
		t.Fatal("expected error for unknown opcode in bytecode")
	}
}

func TestUnmarshalRejectsUnknownConstantTag(t *testing.T) {
	c := &Compiled{Constants: []Constant{{Kind: ConstantKind(0xFF)}}}
	raw := Marshal(c)
	if _, err := Unmarshal(raw); err == nil {
		t.Fatal("expected error for unknown constant tag")
	}
}
