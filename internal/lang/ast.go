// Package lang parses and formats Program Text, the line-oriented dataflow
// language strategies are written in.
package lang

import "twotoone/internal/ops"

// Fixed environment slots. Registers follow, then statements in order.
const (
	OpponentSlot = 0
	SeedSlot     = 1
	OpponentName = "#"
)

// DefaultSeedName binds the seed when the header does not name it.
const DefaultSeedName = "END"

// Expr is an argument or a bound value. The set of implementations is closed.
type Expr interface {
	isExpr()
}

// Literal is a boolean or numeric constant.
type Literal struct {
	Value ops.Value
}

// Chance draws a fresh boolean, true with probability P, every time it is
// evaluated.
type Chance struct {
	P float64
}

// NumericInput holds raw text that is parsed as a number when evaluated.
type NumericInput struct {
	Raw string
}

// Ref names a value. Slot indexes the round environment; for a named
// constant Slot is -1 and Const holds its definition.
type Ref struct {
	Name  string
	Slot  int
	Const Expr
}

func (Literal) isExpr()      {}
func (Chance) isExpr()       {}
func (NumericInput) isExpr() {}
func (Ref) isExpr()          {}

// Call is the right-hand side of a statement.
type Call interface {
	isCall()
}

type Not struct {
	Arg Expr
}

// Cond evaluates If and then exactly one of Then or Else.
type Cond struct {
	If, Then, Else Expr
}

// Apply invokes a registry operator. Fn is resolved at parse time.
type Apply struct {
	Op   string
	Args []Expr
	Fn   ops.Func
}

// Alias copies another value under a new name.
type Alias struct {
	Arg Expr
}

func (Not) isCall()   {}
func (Cond) isCall()  {}
func (Apply) isCall() {}
func (Alias) isCall() {}

type Seed struct {
	Name string
	Init Expr
}

type Register struct {
	Name string
	Init Expr
}

type Constant struct {
	Name  string
	Value Expr
}

type Statement struct {
	Name string
	Call Call
}

// Program is parsed Program Text.
type Program struct {
	Seed       Seed
	Registers  []Register
	Constants  []Constant
	Statements []Statement
	Final      Expr
	Updates    []Expr
}

// Slots is the size of the round environment a runtime needs.
func (p *Program) Slots() int {
	return 2 + len(p.Registers) + len(p.Statements)
}

// RegisterSlot returns the environment slot of register i.
func RegisterSlot(i int) int { return 2 + i }

// StatementSlot returns the environment slot of statement i in p.
func (p *Program) StatementSlot(i int) int { return 2 + len(p.Registers) + i }
