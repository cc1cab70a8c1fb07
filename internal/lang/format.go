package lang

import (
	"strconv"
	"strings"

	"twotoone/internal/ops"
)

// Format renders p as Program Text. Constants are written before the
// statements; Parse(Format(p)) yields an equivalent program.
func Format(p *Program) string {
	var b strings.Builder
	if p.Seed.Name != "" && p.Seed.Name != DefaultSeedName {
		b.WriteString(p.Seed.Name)
		b.WriteByte(':')
	}
	if c, ok := p.Seed.Init.(Chance); ok {
		b.WriteString(formatNumber(c.P))
	} else {
		b.WriteString(formatExpr(p.Seed.Init))
	}
	b.WriteByte('{')
	for i, r := range p.Registers {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(r.Name)
		b.WriteByte(':')
		b.WriteString(formatExpr(r.Init))
	}
	b.WriteString("}\n")

	for _, c := range p.Constants {
		b.WriteString(c.Name)
		b.WriteByte(':')
		b.WriteString(formatExpr(c.Value))
		b.WriteString(";\n")
	}
	for _, s := range p.Statements {
		b.WriteString(s.Name)
		b.WriteByte(':')
		switch call := s.Call.(type) {
		case Not:
			writeCall(&b, ops.NotSymbol, call.Arg)
		case Cond:
			writeCall(&b, ops.CondSymbol, call.If, call.Then, call.Else)
		case Apply:
			writeCall(&b, call.Op, call.Args...)
		case Alias:
			b.WriteString(formatExpr(call.Arg))
		}
		b.WriteString(";\n")
	}

	b.WriteString(formatExpr(p.Final))
	b.WriteByte('\n')
	if len(p.Registers) > 0 {
		b.WriteByte('{')
		for i, u := range p.Updates {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(formatExpr(u))
		}
		b.WriteString("}\n")
	}
	return b.String()
}

func writeCall(b *strings.Builder, op string, args ...Expr) {
	b.WriteString(op)
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(formatExpr(a))
	}
}

func formatExpr(e Expr) string {
	switch e := e.(type) {
	case Literal:
		if e.Value.Kind() == ops.KindNumber {
			return formatNumber(e.Value.Float())
		}
		return e.Value.String()
	case Chance:
		return "~" + formatNumber(e.P)
	case NumericInput:
		return strconv.Quote(e.Raw)
	case Ref:
		return e.Name
	}
	return ""
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
