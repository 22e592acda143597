package predicate

// RowDecoder reads a typed column value out of a raw row buffer. A host
// supplies the concrete implementation for its own wire format; the VM only
// depends on this interface, never on a row's physical layout.
type RowDecoder interface {
	// Column returns the value of col in row. ok is false when the column
	// is absent or cannot be decoded, in which case the VM treats it as null.
	Column(row []byte, col uint16) (Value, bool)
}

// Compiled is a versioned, serializable predicate: a bytecode stream over
// the opcode set in opcode.go, the ordered list of column ids it reads
// (used for the column-mask short-circuit), and its constant pool.
type Compiled struct {
	Bytecode  []byte
	Columns   []uint16
	Constants []Constant
}

// Default is the never-matching predicate assigned to unused shape slots
// (spec §4.8, add_shape "grows the predicate list... unused slots hold the
// default (never-matching) predicate"). Its empty bytecode evaluates to
// false per spec §4.6.
func Default() *Compiled {
	return &Compiled{}
}

// AlwaysTrue returns a predicate with an empty referenced-columns list
// whose bytecode always evaluates true; used for const-true test fixtures
// and as a convenient "no filter" shape.
func AlwaysTrue() *Compiled {
	return &Compiled{Bytecode: []byte{byte(OpPushTrue), byte(OpReturn)}}
}

// ColumnsIntersect reports whether c's referenced-columns list is empty (in
// which case the predicate is never short-circuited) or shares any id with
// changed. When false, the VM must not be invoked for the row.
func (c *Compiled) ColumnsIntersect(changed []uint16) bool {
	if len(c.Columns) == 0 {
		return true
	}
	changedSet := make(map[uint16]struct{}, len(changed))
	for _, id := range changed {
		changedSet[id] = struct{}{}
	}
	for _, id := range c.Columns {
		if _, ok := changedSet[id]; ok {
			return true
		}
	}
	return false
}
