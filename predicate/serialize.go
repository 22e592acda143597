package predicate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/electric-sql/shaperouter/roaring"
)

// formatVersion is the current compiled-predicate wire format version.
const formatVersion = 1

// ErrParse is returned by Unmarshal on any malformed input: unrecognized
// version, opcode, or constant tag, or a truncated buffer.
var ErrParse = errors.New("predicate: parse error")

// Marshal serializes c to the stable, versioned wire format of spec §6:
// a 1-byte version header, a 32-bit little-endian bytecode length followed by
// the raw bytecode stream, a 16-bit length + 16-bit column id list, then a
// 16-bit constant count and tagged entries.
func Marshal(c *Compiled) []byte {
	buf := []byte{formatVersion}

	var bcLen [4]byte
	binary.LittleEndian.PutUint32(bcLen[:], uint32(len(c.Bytecode)))
	buf = append(buf, bcLen[:]...)
	buf = append(buf, c.Bytecode...)

	var colLen [2]byte
	binary.LittleEndian.PutUint16(colLen[:], uint16(len(c.Columns)))
	buf = append(buf, colLen[:]...)
	for _, col := range c.Columns {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], col)
		buf = append(buf, b[:]...)
	}

	var constCount [2]byte
	binary.LittleEndian.PutUint16(constCount[:], uint16(len(c.Constants)))
	buf = append(buf, constCount[:]...)
	for _, k := range c.Constants {
		buf = append(buf, marshalConstant(k)...)
	}

	return buf
}

func marshalConstant(k Constant) []byte {
	switch k.Kind {
	case ConstInt:
		b := make([]byte, 1+8)
		b[0] = byte(ConstInt)
		binary.LittleEndian.PutUint64(b[1:], uint64(k.Int))
		return b
	case ConstFloat:
		b := make([]byte, 1+8)
		b[0] = byte(ConstFloat)
		binary.LittleEndian.PutUint64(b[1:], floatBits(k.Float))
		return b
	case ConstString:
		s := []byte(k.Str)
		b := make([]byte, 1+4+len(s))
		b[0] = byte(ConstString)
		binary.LittleEndian.PutUint32(b[1:5], uint32(len(s)))
		copy(b[5:], s)
		return b
	case ConstIntSet:
		b := make([]byte, 1+4+8*len(k.IntSet))
		b[0] = byte(ConstIntSet)
		binary.LittleEndian.PutUint32(b[1:5], uint32(len(k.IntSet)))
		for i, v := range k.IntSet {
			binary.LittleEndian.PutUint64(b[5+8*i:], uint64(v))
		}
		return b
	case ConstIntBitmap:
		var payload []byte
		if k.Bitmap != nil {
			payload, _ = k.Bitmap.Marshal()
		}
		b := make([]byte, 1+4+len(payload))
		b[0] = byte(ConstIntBitmap)
		binary.LittleEndian.PutUint32(b[1:5], uint32(len(payload)))
		copy(b[5:], payload)
		return b
	default:
		return []byte{0}
	}
}

// Unmarshal parses the wire format produced by Marshal.
func Unmarshal(data []byte) (*Compiled, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty input", ErrParse)
	}
	if data[0] != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrParse, data[0])
	}
	pos := 1

	if pos+4 > len(data) {
		return nil, fmt.Errorf("%w: truncated bytecode length", ErrParse)
	}
	bcLen := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if pos+bcLen > len(data) {
		return nil, fmt.Errorf("%w: truncated bytecode", ErrParse)
	}
	bytecode := append([]byte(nil), data[pos:pos+bcLen]...)
	pos += bcLen

	if err := validateBytecode(bytecode); err != nil {
		return nil, err
	}

	if pos+2 > len(data) {
		return nil, fmt.Errorf("%w: truncated column count", ErrParse)
	}
	colCount := int(binary.LittleEndian.Uint16(data[pos : pos+2]))
	pos += 2
	columns := make([]uint16, colCount)
	for i := 0; i < colCount; i++ {
		if pos+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated column list", ErrParse)
		}
		columns[i] = binary.LittleEndian.Uint16(data[pos : pos+2])
		pos += 2
	}

	if pos+2 > len(data) {
		return nil, fmt.Errorf("%w: truncated constant count", ErrParse)
	}
	constCount := int(binary.LittleEndian.Uint16(data[pos : pos+2]))
	pos += 2
	constants := make([]Constant, constCount)
	for i := 0; i < constCount; i++ {
		c, n, err := unmarshalConstant(data[pos:])
		if err != nil {
			return nil, err
		}
		constants[i] = c
		pos += n
	}

	return &Compiled{Bytecode: bytecode, Columns: columns, Constants: constants}, nil
}

func unmarshalConstant(data []byte) (Constant, int, error) {
	if len(data) < 1 {
		return Constant{}, 0, fmt.Errorf("%w: truncated constant tag", ErrParse)
	}
	tag := ConstantKind(data[0])
	switch tag {
	case ConstInt:
		if len(data) < 9 {
			return Constant{}, 0, fmt.Errorf("%w: truncated int constant", ErrParse)
		}
		return IntConstant(int64(binary.LittleEndian.Uint64(data[1:9]))), 9, nil
	case ConstFloat:
		if len(data) < 9 {
			return Constant{}, 0, fmt.Errorf("%w: truncated float constant", ErrParse)
		}
		return FloatConstant(bitsToFloat(binary.LittleEndian.Uint64(data[1:9]))), 9, nil
	case ConstString:
		if len(data) < 5 {
			return Constant{}, 0, fmt.Errorf("%w: truncated string constant header", ErrParse)
		}
		n := int(binary.LittleEndian.Uint32(data[1:5]))
		if len(data) < 5+n {
			return Constant{}, 0, fmt.Errorf("%w: truncated string constant", ErrParse)
		}
		return StringConstant(string(data[5 : 5+n])), 5 + n, nil
	case ConstIntSet:
		if len(data) < 5 {
			return Constant{}, 0, fmt.Errorf("%w: truncated int-set header", ErrParse)
		}
		n := int(binary.LittleEndian.Uint32(data[1:5]))
		if len(data) < 5+8*n {
			return Constant{}, 0, fmt.Errorf("%w: truncated int-set constant", ErrParse)
		}
		vals := make([]int64, n)
		for i := 0; i < n; i++ {
			vals[i] = int64(binary.LittleEndian.Uint64(data[5+8*i:]))
		}
		return IntSetConstant(vals), 5 + 8*n, nil
	case ConstIntBitmap:
		if len(data) < 5 {
			return Constant{}, 0, fmt.Errorf("%w: truncated bitmap header", ErrParse)
		}
		n := int(binary.LittleEndian.Uint32(data[1:5]))
		if len(data) < 5+n {
			return Constant{}, 0, fmt.Errorf("%w: truncated bitmap constant", ErrParse)
		}
		bm, err := roaring.Unmarshal(data[5 : 5+n])
		if err != nil {
			return Constant{}, 0, fmt.Errorf("%w: bitmap constant: %v", ErrParse, err)
		}
		return BitmapConstant(bm), 5 + n, nil
	default:
		return Constant{}, 0, fmt.Errorf("%w: unknown constant tag 0x%02x", ErrParse, tag)
	}
}

// validateBytecode walks the opcode stream once to reject unknown opcodes
// and malformed operands before the predicate is ever evaluated.
func validateBytecode(code []byte) error {
	pc := 0
	for pc < len(code) {
		op := Opcode(code[pc])
		if !isKnownOpcode(op) {
			return fmt.Errorf("%w: unknown opcode 0x%02x", ErrParse, op)
		}
		pc++
		if hasOperand(op) {
			if pc+2 > len(code) {
				return fmt.Errorf("%w: truncated operand", ErrParse)
			}
			pc += 2
		}
	}
	return nil
}

func isKnownOpcode(op Opcode) bool {
	return op <= OpReturn
}

func floatBits(f float64) uint64   { return math.Float64bits(f) }
func bitsToFloat(b uint64) float64 { return math.Float64frombits(b) }
