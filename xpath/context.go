package xpath

import (
	"errors"

	"github.com/midbel/docbook/environ"
	"github.com/midbel/docbook/xml"
)

// Func is the signature of the functions callable from an expression. Each
// argument has already been evaluated.
type Func func(Context, []Sequence) (Sequence, error)

type Context struct {
	xml.Node
	Index int
	Size  int

	Variables environ.Environ[Sequence]
	Functions environ.Environ[Func]

	// Current is the node returned by the current() function of XSLT.
	Current xml.Node
}

func NewContext(node xml.Node) Context {
	return Context{
		Node:      node,
		Index:     1,
		Size:      1,
		Variables: environ.Empty[Sequence](),
		Functions: environ.Empty[Func](),
		Current:   node,
	}
}

// Sub returns a copy of the context focused on node.
func (c Context) Sub(node xml.Node, pos, size int) Context {
	c.Node = node
	c.Index = pos
	c.Size = size
	return c
}

func (c Context) Resolve(ident string) (Sequence, error) {
	if c.Variables == nil {
		return nil, errUndefined(ident)
	}
	seq, err := c.Variables.Resolve(ident)
	if errors.Is(err, environ.ErrDefined) {
		return nil, errUndefined(ident)
	}
	return seq, err
}

func (c Context) Function(ident string) (Func, bool) {
	if fn, ok := environ.Lookup(c.Functions, ident); ok && fn != nil {
		return fn, true
	}
	b, ok := builtins[ident]
	if !ok {
		return nil, false
	}
	return b.Func, true
}
