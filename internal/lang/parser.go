package lang

import (
	"errors"
	"fmt"
	"unicode"

	"twotoone/internal/ops"
)

type binding struct {
	slot  int
	value Expr
}

type parser struct {
	toks  []token
	pos   int
	reg   *ops.Registry
	scope map[string]binding
	prog  *Program
}

// Parse parses text against the default operator registry.
func Parse(text string) (*Program, error) {
	return ParseWith(text, ops.Default())
}

// ParseWith parses text, resolving operators in reg. Names must be defined
// before they are used, so the whole program is checked in one pass.
func ParseWith(text string, reg *ops.Registry) (*Program, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{
		toks:  toks,
		reg:   reg,
		scope: make(map[string]binding),
		prog:  &Program{},
	}
	if err := p.program(); err != nil {
		return nil, err
	}
	return p.prog, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(ahead int) token {
	if p.pos+ahead >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+ahead]
}

func (p *parser) take() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind) (token, error) {
	t := p.take()
	if t.kind != kind {
		return t, errAt(t, ErrSyntax, "expected %s, found %s", kind, t.describe())
	}
	return t, nil
}

func (p *parser) skipNewlines() {
	for p.peek().kind == tokNL {
		p.take()
	}
}

func (p *parser) endOfLine() error {
	t := p.peek()
	if t.kind != tokNL && t.kind != tokEOF {
		return errAt(t, ErrSyntax, "unexpected %s at end of line", t.describe())
	}
	return nil
}

func (p *parser) program() error {
	p.skipNewlines()
	if err := p.header(); err != nil {
		return err
	}
	if err := p.endOfLine(); err != nil {
		return err
	}

	for {
		p.skipNewlines()
		if p.peek().kind != tokIdent || p.peekAt(1).kind != tokColon {
			break
		}
		if err := p.statement(); err != nil {
			return err
		}
	}

	if p.peek().kind == tokEOF {
		return errAt(p.peek(), ErrSyntax, "missing final expression")
	}
	final, err := p.arg()
	if err != nil {
		return err
	}
	p.prog.Final = final

	p.skipNewlines()
	if p.peek().kind == tokLBrace {
		if err := p.updates(); err != nil {
			return err
		}
		p.skipNewlines()
	}
	if t := p.peek(); t.kind != tokEOF {
		return errAt(t, ErrSyntax, "unexpected %s after program", t.describe())
	}
	if got, want := len(p.prog.Updates), len(p.prog.Registers); got != want {
		return errAt(p.peek(), ErrSyntax, "%d register update(s) for %d register(s)", got, want)
	}
	return nil
}

func (p *parser) header() error {
	name := DefaultSeedName
	if p.peek().kind == tokIdent && p.peekAt(1).kind == tokColon {
		t := p.take()
		p.take()
		if isKeyword(t.text) {
			return errAt(t, ErrSyntax, "%s cannot be used as a name", t.text)
		}
		name = t.text
	}

	t := p.peek()
	init, err := p.literal()
	if err != nil {
		return err
	}
	if lit, ok := init.(Literal); ok && lit.Value.Kind() == ops.KindNumber {
		// A bare number in the header is the seed's probability.
		prob := lit.Value.Float()
		if prob < 0 || prob > 1 {
			return errAt(t, ErrSyntax, "seed probability %v outside [0,1]", prob)
		}
		init = Chance{P: prob}
	}
	p.prog.Seed = Seed{Name: name, Init: init}
	p.scope[name] = binding{slot: SeedSlot}

	if _, err := p.expect(tokLBrace); err != nil {
		return err
	}
	for p.peek().kind != tokRBrace {
		nameTok, err := p.expect(tokIdent)
		if err != nil {
			return err
		}
		if _, err := p.expect(tokColon); err != nil {
			return err
		}
		value, err := p.literal()
		if err != nil {
			return err
		}
		slot := RegisterSlot(len(p.prog.Registers))
		if err := p.declare(nameTok, binding{slot: slot}); err != nil {
			return err
		}
		p.prog.Registers = append(p.prog.Registers, Register{Name: nameTok.text, Init: value})
		if p.peek().kind == tokComma {
			p.take()
		}
	}
	p.take()
	return nil
}

// literal parses true, false, a number or ~probability.
func (p *parser) literal() (Expr, error) {
	t := p.take()
	switch t.kind {
	case tokIdent:
		if t.text == "true" || t.text == "false" {
			return Literal{Value: ops.Bool(t.text == "true")}, nil
		}
	case tokNumber:
		return Literal{Value: ops.Num(t.num)}, nil
	case tokTilde:
		n, err := p.expect(tokNumber)
		if err != nil {
			return nil, err
		}
		if n.num < 0 || n.num > 1 {
			return nil, errAt(n, ErrSyntax, "probability %v outside [0,1]", n.num)
		}
		return Chance{P: n.num}, nil
	}
	return nil, errAt(t, ErrSyntax, "expected a literal, found %s", t.describe())
}

func (p *parser) declare(t token, b binding) error {
	if isKeyword(t.text) {
		return errAt(t, ErrSyntax, "%s cannot be used as a name", t.text)
	}
	if _, exists := p.scope[t.text]; exists {
		return errAt(t, ErrDuplicateName, "%s is already defined", t.text)
	}
	p.scope[t.text] = b
	return nil
}

func (p *parser) statement() error {
	nameTok := p.take()
	p.take()

	// Constant bindings: name:~p; name:"raw"; name:true; name:3;
	first, second := p.peek(), p.peekAt(1)
	var constant Expr
	switch {
	case first.kind == tokTilde:
		v, err := p.literal()
		if err != nil {
			return err
		}
		constant = v
	case first.kind == tokString:
		p.take()
		constant = NumericInput{Raw: first.text}
	case second.kind == tokSemi && (first.kind == tokNumber || (first.kind == tokIdent && isKeyword(first.text))):
		v, err := p.literal()
		if err != nil {
			return err
		}
		constant = v
	}
	if constant != nil {
		if _, err := p.expect(tokSemi); err != nil {
			return err
		}
		if err := p.declare(nameTok, binding{slot: -1, value: constant}); err != nil {
			return err
		}
		p.prog.Constants = append(p.prog.Constants, Constant{Name: nameTok.text, Value: constant})
		return nil
	}

	call, err := p.call()
	if err != nil {
		return err
	}
	slot := p.prog.StatementSlot(len(p.prog.Statements))
	if err := p.declare(nameTok, binding{slot: slot}); err != nil {
		return err
	}
	p.prog.Statements = append(p.prog.Statements, Statement{Name: nameTok.text, Call: call})
	return nil
}

func (p *parser) call() (Call, error) {
	opTok := p.peek()
	var op string
	switch {
	case opTok.kind == tokOp:
		op = opTok.text
		p.take()
	case opTok.kind == tokIdent && p.isOperatorName(opTok.text):
		op = opTok.text
		p.take()
	case opTok.kind == tokIdent || opTok.kind == tokHash:
		arg, err := p.arg()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokSemi); err != nil {
			return nil, err
		}
		return Alias{Arg: arg}, nil
	default:
		return nil, errAt(opTok, ErrSyntax, "expected an operator, found %s", opTok.describe())
	}

	var args []Expr
	for p.peek().kind != tokSemi {
		arg, err := p.arg()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	p.take()

	switch op {
	case ops.NotSymbol:
		if len(args) != 1 {
			return nil, errAt(opTok, ErrUnknownOperator, "! takes 1 argument, got %d", len(args))
		}
		return Not{Arg: args[0]}, nil
	case ops.CondSymbol:
		if len(args) != 3 {
			return nil, errAt(opTok, ErrUnknownOperator, "? takes 3 arguments, got %d", len(args))
		}
		return Cond{If: args[0], Then: args[1], Else: args[2]}, nil
	}
	fn, err := p.reg.Lookup(op, len(args))
	if err != nil {
		if errors.Is(err, ops.ErrArity) || errors.Is(err, ops.ErrOperatorNotFound) {
			return nil, errAt(opTok, ErrUnknownOperator, "%v", err)
		}
		return nil, fmt.Errorf("resolve operator %s: %w", op, err)
	}
	return Apply{Op: op, Args: args, Fn: fn}, nil
}

// isOperatorName reports whether an identifier in operator position names a
// registered operator rather than a bound value.
// isOperatorName reports whether the identifier at the cursor names an
// operator. A bound name that shadows an operator is an alias when it stands
// alone before ';' and the operator otherwise.
func (p *parser) isOperatorName(name string) bool {
	if len(p.reg.Arities(name)) == 0 {
		return false
	}
	if _, bound := p.scope[name]; bound {
		return p.peekAt(1).kind != tokSemi
	}
	return true
}

func (p *parser) arg() (Expr, error) {
	t := p.take()
	switch t.kind {
	case tokHash:
		return Ref{Name: OpponentName, Slot: OpponentSlot}, nil
	case tokNumber:
		return Literal{Value: ops.Num(t.num)}, nil
	case tokIdent:
		if isKeyword(t.text) {
			return Literal{Value: ops.Bool(t.text == "true")}, nil
		}
		b, ok := p.scope[t.text]
		if !ok {
			return nil, errAt(t, ErrSyntax, "%s is not defined", t.text)
		}
		if b.value != nil {
			return Ref{Name: t.text, Slot: -1, Const: b.value}, nil
		}
		return Ref{Name: t.text, Slot: b.slot}, nil
	}
	return nil, errAt(t, ErrSyntax, "expected an argument, found %s", t.describe())
}

func (p *parser) updates() error {
	p.take()
	for {
		p.skipNewlines()
		if p.peek().kind == tokRBrace {
			p.take()
			return nil
		}
		arg, err := p.arg()
		if err != nil {
			return err
		}
		p.prog.Updates = append(p.prog.Updates, arg)
		if p.peek().kind == tokComma {
			p.take()
		}
	}
}

func isKeyword(s string) bool {
	return s == "true" || s == "false"
}

// ValidName reports whether s can be bound by a statement, constant or
// register.
func ValidName(s string) bool {
	if s == "" || isKeyword(s) {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || unicode.IsLetter(c):
		case i > 0 && unicode.IsDigit(c):
		default:
			return false
		}
	}
	return true
}
