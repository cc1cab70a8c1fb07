package ops

import "math"

func registerBuiltins(r *Registry) {
	r.MustRegister("&", 2, func(a []Value) Value { return Bool(a[0].Truthy() && a[1].Truthy()) })
	r.MustRegister("|", 2, func(a []Value) Value { return Bool(a[0].Truthy() || a[1].Truthy()) })
	r.MustRegister("^", 2, func(a []Value) Value { return Bool(a[0].Truthy() != a[1].Truthy()) })
	r.MustRegister("=", 2, func(a []Value) Value { return Bool(a[0].Equal(a[1])) })
	r.MustRegister("!=", 2, func(a []Value) Value { return Bool(!a[0].Equal(a[1])) })
	r.MustRegister("<", 2, func(a []Value) Value { return Bool(a[0].Float() < a[1].Float()) })
	r.MustRegister(">", 2, func(a []Value) Value { return Bool(a[0].Float() > a[1].Float()) })
	r.MustRegister("<=", 2, func(a []Value) Value { return Bool(a[0].Float() <= a[1].Float()) })
	r.MustRegister(">=", 2, func(a []Value) Value { return Bool(a[0].Float() >= a[1].Float()) })
	r.MustRegister("+", 2, func(a []Value) Value { return Num(a[0].Float() + a[1].Float()) })
	r.MustRegister("-", 2, func(a []Value) Value { return Num(a[0].Float() - a[1].Float()) })
	r.MustRegister("*", 2, func(a []Value) Value { return Num(a[0].Float() * a[1].Float()) })
	r.MustRegister("/", 2, func(a []Value) Value {
		d := a[1].Float()
		if d == 0 {
			return Absent()
		}
		return Num(a[0].Float() / d)
	})
	r.MustRegister("-", 1, func(a []Value) Value { return Num(-a[0].Float()) })
	r.MustRegister("min", 2, func(a []Value) Value { return Num(math.Min(a[0].Float(), a[1].Float())) })
	r.MustRegister("max", 2, func(a []Value) Value { return Num(math.Max(a[0].Float(), a[1].Float())) })
	// Present is true once a value exists; the opponent's move is absent in round one.
	r.MustRegister("present", 1, func(a []Value) Value { return Bool(!a[0].IsAbsent()) })
}
