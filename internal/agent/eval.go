package agent

import (
	"fmt"
	"strconv"
	"strings"

	"twotoone/internal/lang"
	"twotoone/internal/ops"
)

func (p *Player) eval(e lang.Expr) (ops.Value, error) {
	switch e := e.(type) {
	case lang.Literal:
		return e.Value, nil
	case lang.Chance:
		return ops.Bool(p.rng.Float64() < e.P), nil
	case lang.NumericInput:
		f, err := strconv.ParseFloat(strings.TrimSpace(e.Raw), 64)
		if err != nil {
			return ops.Absent(), fmt.Errorf("%w: %q", ErrNonNumericInput, e.Raw)
		}
		return ops.Num(f), nil
	case lang.Ref:
		if e.Const != nil {
			return p.eval(e.Const)
		}
		return p.env[e.Slot], nil
	}
	return ops.Absent(), fmt.Errorf("unsupported expression %T", e)
}

func (p *Player) call(c lang.Call) (ops.Value, error) {
	switch c := c.(type) {
	case lang.Not:
		v, err := p.eval(c.Arg)
		if err != nil {
			return ops.Absent(), err
		}
		return ops.Bool(!v.Truthy()), nil
	case lang.Cond:
		cond, err := p.eval(c.If)
		if err != nil {
			return ops.Absent(), err
		}
		if cond.Truthy() {
			return p.eval(c.Then)
		}
		return p.eval(c.Else)
	case lang.Alias:
		return p.eval(c.Arg)
	case lang.Apply:
		args := make([]ops.Value, len(c.Args))
		for i, a := range c.Args {
			v, err := p.eval(a)
			if err != nil {
				return ops.Absent(), err
			}
			args[i] = v
		}
		return c.Fn(args), nil
	}
	return ops.Absent(), fmt.Errorf("unsupported call %T", c)
}
