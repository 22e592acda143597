package predicate

import (
	"encoding/binary"
	"strings"
)

// maxStackDepth bounds pathological bytecode (defense in depth; the
// compiler never emits anything close to this).
const maxStackDepth = 256

// Evaluate runs c's bytecode against a row pair using dec to resolve column
// loads. Empty bytecode (the Default predicate) evaluates to false.
// Evaluation never panics on malformed bytecode: an out-of-range jump,
// empty-stack pop, or unknown opcode halts evaluation and returns false,
// matching the "hot-path operations are infallible" rule (spec §7).
func Evaluate(c *Compiled, dec RowDecoder, oldRow, newRow []byte) bool {
	if len(c.Bytecode) == 0 {
		return false
	}

	var stack [maxStackDepth]Value
	sp := 0

	push := func(v Value) bool {
		if sp >= maxStackDepth {
			return false
		}
		stack[sp] = v
		sp++
		return true
	}
	pop := func() (Value, bool) {
		if sp == 0 {
			return Value{}, false
		}
		sp--
		return stack[sp], true
	}

	code := c.Bytecode
	pc := 0
	for pc < len(code) {
		op := Opcode(code[pc])
		pc++

		var operand uint16
		if hasOperand(op) {
			if pc+2 > len(code) {
				return false
			}
			operand = binary.LittleEndian.Uint16(code[pc : pc+2])
			pc += 2
		}

		switch op {
		case OpPushNull:
			if !push(Null()) {
				return false
			}
		case OpPushTrue:
			if !push(Bool(true)) {
				return false
			}
		case OpPushFalse:
			if !push(Bool(false)) {
				return false
			}
		case OpPushConst:
			if int(operand) >= len(c.Constants) {
				return false
			}
			if !push(constantToValue(c.Constants[operand])) {
				return false
			}
		case OpLoadColumn:
			v, ok := dec.Column(newRow, operand)
			if !ok {
				v = Null()
			}
			if !push(v) {
				return false
			}
		case OpLoadOldColumn:
			v, ok := dec.Column(oldRow, operand)
			if !ok {
				v = Null()
			}
			if !push(v) {
				return false
			}

		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
			b, ok1 := pop()
			a, ok2 := pop()
			if !ok1 || !ok2 {
				return false
			}
			var result bool
			switch op {
			case OpEq:
				result = compareEq(a, b)
			case OpNe:
				result = !compareEq(a, b)
			case OpLt:
				result = compareLt(a, b)
			case OpLe:
				result = compareLt(a, b) || compareEq(a, b)
			case OpGt:
				result = compareLt(b, a)
			case OpGe:
				result = compareLt(b, a) || compareEq(a, b)
			}
			if !push(Bool(result)) {
				return false
			}

		case OpAnd, OpOr:
			b, ok1 := pop()
			a, ok2 := pop()
			if !ok1 || !ok2 {
				return false
			}
			var result bool
			if op == OpAnd {
				result = a.asBool() && b.asBool()
			} else {
				result = a.asBool() || b.asBool()
			}
			if !push(Bool(result)) {
				return false
			}
		case OpNot:
			a, ok := pop()
			if !ok {
				return false
			}
			if !push(Bool(!a.asBool())) {
				return false
			}

		case OpIsNull:
			a, ok := pop()
			if !ok {
				return false
			}
			if !push(Bool(a.IsNull())) {
				return false
			}
		case OpIsNotNull:
			a, ok := pop()
			if !ok {
				return false
			}
			if !push(Bool(!a.IsNull())) {
				return false
			}

		case OpIn:
			if int(operand) >= len(c.Constants) {
				return false
			}
			v, ok := pop()
			if !ok {
				return false
			}
			if v.Kind != KindInt {
				if !push(Bool(false)) {
					return false
				}
				continue
			}
			if !push(Bool(c.Constants[operand].containsInt(v.I))) {
				return false
			}

		case OpBetween:
			high, ok1 := pop()
			low, ok2 := pop()
			v, ok3 := pop()
			if !ok1 || !ok2 || !ok3 {
				return false
			}
			result := !compareLt(v, low) && !compareLt(high, v) && v.Kind == low.Kind && v.Kind == high.Kind
			if !push(Bool(result)) {
				return false
			}

		case OpLikePrefix:
			if int(operand) >= len(c.Constants) {
				return false
			}
			v, ok := pop()
			if !ok {
				return false
			}
			result := v.Kind == KindString && strings.HasPrefix(v.S, c.Constants[operand].Str)
			if !push(Bool(result)) {
				return false
			}

		case OpJumpIfFalse:
			v, ok := pop()
			if !ok {
				return false
			}
			if !v.asBool() {
				pc += int(operand)
				if pc > len(code) {
					return false // jump past the end of the bytecode
				}
			}
		case OpJump:
			pc += int(operand)
			if pc > len(code) {
				return false // jump past the end of the bytecode
			}

		case OpReturn:
			v, ok := pop()
			if !ok {
				return false
			}
			return v.asBool()

		default:
			return false
		}
	}

	// Bytecode ran off the end without an explicit Return.
	if sp == 0 {
		return false
	}
	return stack[sp-1].asBool()
}

func constantToValue(c Constant) Value {
	switch c.Kind {
	case ConstInt:
		return Int(c.Int)
	case ConstFloat:
		return Float(c.Float)
	case ConstString:
		return String(c.Str)
	default:
		return Null()
	}
}

