package xslt

import (
	"errors"
	"fmt"
)

var (
	ErrTerminate   = errors.New("terminate")
	ErrDepth       = errors.New("maximum template depth reached")
	ErrCircular    = errors.New("circular definition")
	ErrUndefined   = errors.New("undefined")
	ErrImplemented = errors.New("not implemented")
)

// CompileError reports a malformed definition found while loading a
// stylesheet.
type CompileError struct {
	Location string
	Element  string
	Attr     string
	Err      error
}

func compileError(location, elem, attr string, err error) error {
	return CompileError{
		Location: location,
		Element:  elem,
		Attr:     attr,
		Err:      err,
	}
}

func (e CompileError) Error() string {
	where := e.Element
	if e.Attr != "" {
		where = fmt.Sprintf("%s/@%s", e.Element, e.Attr)
	}
	switch {
	case where == "" && e.Location == "":
		return e.Err.Error()
	case where == "":
		return fmt.Sprintf("%s: %s", e.Location, e.Err)
	case e.Location == "":
		return fmt.Sprintf("%s: %s", where, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Location, where, e.Err)
	}
}

func (e CompileError) Unwrap() error {
	return e.Err
}

func errorWithContext(ctx string, err error) error {
	return fmt.Errorf("%s: %w", ctx, err)
}
