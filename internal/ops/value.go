package ops

import "strconv"

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindBool
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	default:
		return "absent"
	}
}

// Value is one round value: a move, a literal or an intermediate result.
// The zero Value is absent, which is what a strategy sees as the opponent's
// move before the first exchange.
type Value struct {
	kind Kind
	b    bool
	n    float64
}

func Absent() Value       { return Value{} }
func Bool(b bool) Value   { return Value{kind: KindBool, b: b} }
func Num(n float64) Value { return Value{kind: KindNumber, n: n} }

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Truthy reports the boolean reading of v. Absent reads as false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0
	default:
		return false
	}
}

// Float reports the numeric reading of v: false/true are 0/1, absent is 0.
func (v Value) Float() float64 {
	switch v.kind {
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindNumber:
		return v.n
	default:
		return 0
	}
}

// Equal is strict: values of different kinds never compare equal.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	default:
		return true
	}
}

// String renders v in Program Text literal syntax.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	default:
		return "absent"
	}
}
