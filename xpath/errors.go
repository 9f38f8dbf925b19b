package xpath

import (
	"errors"
	"fmt"
)

var (
	ErrSyntax    = errors.New("syntax error")
	ErrType      = errors.New("invalid type")
	ErrUndefined = errors.New("undefined")
	ErrArgument  = errors.New("invalid number of arguments")
)

type SyntaxError struct {
	Expr  string
	Cause string
	Position
}

func syntaxError(expr, cause string, pos Position) error {
	return SyntaxError{
		Expr:     expr,
		Cause:    cause,
		Position: pos,
	}
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("%s (%d:%d): %s", e.Expr, e.Line, e.Column, e.Cause)
}

func (e SyntaxError) Unwrap() error {
	return ErrSyntax
}

func errUndefined(ident string) error {
	return fmt.Errorf("$%s: variable %w", ident, ErrUndefined)
}

func errFunction(ident string) error {
	return fmt.Errorf("%s(): function %w", ident, ErrUndefined)
}

func errArgument(ident string, min, max, got int) error {
	want := fmt.Sprintf("%d", min)
	switch {
	case max < 0:
		want = fmt.Sprintf("at least %d", min)
	case max != min:
		want = fmt.Sprintf("%d to %d", min, max)
	}
	return fmt.Errorf("%s(): %w: want %s, got %d", ident, ErrArgument, want, got)
}

func errNodeSet(what string) error {
	return fmt.Errorf("%s: node-set expected: %w", what, ErrType)
}
