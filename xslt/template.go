package xslt

import (
	"github.com/midbel/docbook/environ"
	"github.com/midbel/docbook/xml"
	"github.com/midbel/docbook/xpath"
)

type Template struct {
	Name     string
	Mode     string
	Priority float64
	Match    *xpath.Pattern
	Params   []*xml.Element
	Body     []xml.Node

	explicit   bool
	node       *xml.Element
	location   string
	precedence int
	min        int
	position   int
}

// rule is one alternative of the match pattern of a template.
type rule struct {
	*Template
	pattern  *xpath.Pattern
	priority float64
}

// better reports whether r wins over other when both match the same node.
func (r *rule) better(other *rule) bool {
	if r.precedence != other.precedence {
		return r.precedence > other.precedence
	}
	if r.priority != other.priority {
		return r.priority > other.priority
	}
	return r.position >= other.position
}

type params map[string]xpath.Sequence

// lookup finds the template rule for node in mode. When accept is given, only
// the templates it accepts are considered.
func (c *Context) lookup(node xml.Node, mode string, accept func(*Template) bool) *Template {
	var (
		best *rule
		ctx  = c.matchContext(node)
	)
	for _, r := range c.modes[mode] {
		if accept != nil && !accept(r.Template) {
			continue
		}
		if best != nil && !r.better(best) {
			continue
		}
		if r.pattern.Match(ctx, node) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	return best.Template
}

func (c *Context) applyTemplates(nodes []xml.Node, mode string, args params) (xpath.Sequence, error) {
	var res xpath.Sequence
	for i, n := range nodes {
		seq, err := c.applyTemplate(n, i+1, len(nodes), mode, args, nil)
		if err != nil {
			return nil, err
		}
		res.Concat(seq)
	}
	return res, nil
}

func (c *Context) applyTemplate(node xml.Node, pos, size int, mode string, args params, accept func(*Template) bool) (xpath.Sequence, error) {
	tpl := c.lookup(node, mode, accept)
	if tpl == nil {
		return c.builtinRule(node, pos, size, mode)
	}
	return c.invoke(tpl, node, pos, size, mode, args)
}

// invoke instantiates tpl with node as current node. Parameters not given in
// args take their default value.
func (c *Context) invoke(tpl *Template, node xml.Node, pos, size int, mode string, args params) (xpath.Sequence, error) {
	if c.Depth >= MaxDepth {
		return nil, c.errorWithContext(ErrDepth)
	}
	child := Context{
		XslNode:     tpl.node,
		ContextNode: node,
		Mode:        mode,
		Index:       pos,
		Size:        size,
		Depth:       c.Depth + 1,
		Template:    tpl,
		vars:        environ.Enclosed[xpath.Sequence](c.globalVars),
		Stylesheet:  c.Stylesheet,
		session:     c.session,
	}
	for _, p := range tpl.Params {
		ident, err := expandName(p, p.GetAttributeNS(xml.LocalName("name")).Value())
		if err != nil {
			return nil, child.WithXsl(p).errorWithContext(err)
		}
		if seq, ok := args[ident]; ok {
			child.define(ident, seq)
			continue
		}
		seq, err := evalVariable(child.WithXsl(p))
		if err != nil {
			return nil, err
		}
		child.define(ident, seq)
	}
	return executeBody(&child, tpl.Body)
}

// builtinRule applies the built-in template rules: elements and the root
// node process their children in the same mode, texts and attributes are
// copied and other nodes are ignored.
func (c *Context) builtinRule(node xml.Node, pos, size int, mode string) (xpath.Sequence, error) {
	switch n := node.(type) {
	case *xml.Document, *xml.Element:
		if c.Depth >= MaxDepth {
			return nil, c.errorWithContext(ErrDepth)
		}
		child := c.WithNode(n, pos, size)
		child.Depth++
		return child.applyTemplates(xml.Children(n), mode, nil)
	case *xml.Text:
		t := xml.NewText(n.Content)
		return xpath.NewNodes(t), nil
	case *xml.Attribute:
		return xpath.NewNodes(xml.NewText(n.Datum)), nil
	default:
		return nil, nil
	}
}

func (c *Context) callTemplate(name string, args params) (xpath.Sequence, error) {
	tpl, ok := c.named[name]
	if !ok {
		return nil, c.errorWithContext(errorWithContext(name, ErrUndefined))
	}
	return c.invoke(tpl, c.ContextNode, c.Index, c.Size, c.Mode, args)
}

// applyImports processes the current node with the template rules of the
// modules imported by the module of the current template.
func (c *Context) applyImports(args params) (xpath.Sequence, error) {
	curr := c.Template
	if curr == nil {
		return nil, c.errorWithContext(errorWithContext("no current template rule", ErrUndefined))
	}
	accept := func(tpl *Template) bool {
		return tpl.precedence >= curr.min && tpl.precedence < curr.precedence
	}
	return c.applyTemplate(c.ContextNode, c.Index, c.Size, c.Mode, args, accept)
}
