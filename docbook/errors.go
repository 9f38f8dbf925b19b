package docbook

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrInput         = errors.New("input error")
	ErrCompile       = errors.New("transform compile error")
	ErrExecution     = errors.New("transform execution error")
)

// Error reports the failure of one step of a run. It matches both its kind
// and its cause with errors.Is.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	var str string
	if e.Op != "" {
		str = e.Op + " "
	}
	if e.Path != "" {
		str += e.Path
	}
	if str != "" {
		str += ": "
	}
	if e.Err == nil {
		return str + e.Kind.Error()
	}
	return fmt.Sprintf("%s%s: %s", str, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func configurationError(op, path string, err error) error {
	return newError(ErrConfiguration, op, path, err)
}

func inputError(op, path string, err error) error {
	return newError(ErrInput, op, path, err)
}

func compileError(op, path string, err error) error {
	return newError(ErrCompile, op, path, err)
}

func executionError(op, path string, err error) error {
	return newError(ErrExecution, op, path, err)
}

// newError classifies err. An error that is already classified keeps its kind.
func newError(kind error, op, path string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}
