package predicate

import "github.com/electric-sql/shaperouter/roaring"

// ConstantKind tags an entry in a compiled predicate's constant pool.
type ConstantKind byte

// Wire tags, fixed by spec §6 (binary format of the constants pool).
const (
	ConstInt       ConstantKind = 0x01
	ConstFloat     ConstantKind = 0x02
	ConstString    ConstantKind = 0x03
	ConstIntSet    ConstantKind = 0x04
	ConstIntBitmap ConstantKind = 0x05
)

// Constant is one entry in a compiled predicate's constant pool.
type Constant struct {
	Kind   ConstantKind
	Int    int64
	Float  float64
	Str    string
	IntSet []int64        // ConstIntSet: small literal sets, e.g. `IN (1,2,3)`
	Bitmap *roaring.Bitmap // ConstIntBitmap: large sets serialized as roaring bitmaps
}

func IntConstant(v int64) Constant       { return Constant{Kind: ConstInt, Int: v} }
func FloatConstant(v float64) Constant   { return Constant{Kind: ConstFloat, Float: v} }
func StringConstant(v string) Constant   { return Constant{Kind: ConstString, Str: v} }
func IntSetConstant(v []int64) Constant  { return Constant{Kind: ConstIntSet, IntSet: v} }
func BitmapConstant(b *roaring.Bitmap) Constant {
	return Constant{Kind: ConstIntBitmap, Bitmap: b}
}

// containsInt reports whether v is a member of the constant, for the In
// opcode. Only ConstIntSet and ConstIntBitmap are valid membership targets;
// any other kind reports false rather than panicking (hot-path operations
// collapse unexpected states to a safe default, per spec §7).
func (c Constant) containsInt(v int64) bool {
	switch c.Kind {
	case ConstIntSet:
		for _, x := range c.IntSet {
			if x == v {
				return true
			}
		}
		return false
	case ConstIntBitmap:
		if c.Bitmap == nil || v < 0 || v > int64(^uint32(0)) {
			return false
		}
		return c.Bitmap.Contains(uint32(v))
	default:
		return false
	}
}
