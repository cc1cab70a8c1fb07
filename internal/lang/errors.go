package lang

import (
	"errors"
	"fmt"
)

var (
	ErrSyntax          = errors.New("syntax error")
	ErrDuplicateName   = errors.New("duplicate name")
	ErrUnknownOperator = errors.New("unknown operator")
)

// PosError locates a parse failure in the source text. It unwraps to one of
// ErrSyntax, ErrDuplicateName or ErrUnknownOperator.
type PosError struct {
	Line int
	Col  int
	Err  error
	Msg  string
}

func (e *PosError) Error() string {
	return fmt.Sprintf("%d:%d: %v: %s", e.Line, e.Col, e.Err, e.Msg)
}

func (e *PosError) Unwrap() error { return e.Err }

func errAt(t token, sentinel error, format string, args ...any) error {
	return &PosError{Line: t.line, Col: t.col, Err: sentinel, Msg: fmt.Sprintf(format, args...)}
}
