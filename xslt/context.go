package xslt

import (
	"fmt"
	"slices"

	"github.com/midbel/docbook/alpha"
	"github.com/midbel/docbook/environ"
	"github.com/midbel/docbook/xml"
	"github.com/midbel/docbook/xpath"
)

type Context struct {
	XslNode     xml.Node
	ContextNode xml.Node
	Mode        string

	Index int
	Size  int
	Depth int

	// Template is the template rule being instantiated. It is nil inside
	// xsl:for-each.
	Template *Template

	vars environ.Environ[xpath.Sequence]

	*Stylesheet
	*session
}

func (c *Context) errorWithContext(err error) error {
	if c.XslNode == nil {
		return err
	}
	return errorWithContext(c.XslNode.QualifiedName(), err)
}

func (c *Context) WithXsl(xslNode xml.Node) *Context {
	child := *c
	child.XslNode = xslNode
	return &child
}

// WithNode moves the focus to node at the given position.
func (c *Context) WithNode(node xml.Node, pos, size int) *Context {
	child := *c
	child.ContextNode = node
	child.Index = pos
	child.Size = size
	return &child
}

// Nest returns a copy of the context with a new scope for local variables.
func (c *Context) Nest() *Context {
	child := *c
	child.vars = environ.Enclosed(c.vars)
	return &child
}

func (c *Context) define(ident string, seq xpath.Sequence) {
	c.vars.Define(ident, seq)
}

func (c *Context) xpathContext() xpath.Context {
	return xpath.Context{
		Node:      c.ContextNode,
		Index:     c.Index,
		Size:      c.Size,
		Variables: c.vars,
		Functions: c.funcs,
		Current:   c.ContextNode,
	}
}

func (c *Context) element() *xml.Element {
	el, _ := c.XslNode.(*xml.Element)
	return el
}

func (c *Context) compiledOf() *compiled {
	el := c.element()
	if el == nil {
		return nil
	}
	return c.compiled[el]
}

func (c *Context) query(attr string) *xpath.Query {
	if cp := c.compiledOf(); cp != nil {
		return cp.queries[attr]
	}
	return nil
}

func (c *Context) pattern(attr string) *xpath.Pattern {
	if cp := c.compiledOf(); cp != nil {
		return cp.patterns[attr]
	}
	return nil
}

func (c *Context) eval(attr string) (xpath.Sequence, error) {
	q := c.query(attr)
	if q == nil {
		return nil, fmt.Errorf("%s: missing attribute %q", c.XslNode.QualifiedName(), attr)
	}
	return q.Eval(c.xpathContext())
}

// avt evaluates the attribute value template of attr. It reports false when
// the attribute is not set.
func (c *Context) avt(attr string) (string, bool, error) {
	cp := c.compiledOf()
	if cp == nil {
		return "", false, nil
	}
	a, ok := cp.avts[attr]
	if !ok {
		return "", false, nil
	}
	str, err := a.Eval(c.xpathContext())
	return str, true, err
}

type session struct {
	source     *xml.Document
	globalVars *globalEnv
	funcs      environ.Environ[xpath.Func]

	indexes   map[*xml.Document]map[string]map[string][]xml.Node
	documents map[string]*xml.Document
	ids       map[xml.Node]string
	namer     alpha.Namer
}

func createSession(sheet *Stylesheet, doc *xml.Document) *session {
	sess := session{
		source:    doc,
		indexes:   make(map[*xml.Document]map[string]map[string][]xml.Node),
		documents: make(map[string]*xml.Document),
		ids:       make(map[xml.Node]string),
		namer:     alpha.Identifiers("id"),
	}
	if doc != nil && doc.Location != "" {
		sess.documents[doc.Location] = doc
	}
	sess.funcs = environ.Enclosed(sheet.builtins(&sess))
	for ident, fn := range sheet.functions {
		sess.funcs.Define(ident, fn)
	}
	return &sess
}

// start gives the context used to evaluate the global variables and to start
// the transformation.
func (s *session) start(sheet *Stylesheet) *Context {
	ctx := Context{
		XslNode:     sheet.root,
		ContextNode: s.source,
		Index:       1,
		Size:        1,
		Stylesheet:  sheet,
		session:     s,
	}
	s.globalVars = &globalEnv{
		sheet:   sheet,
		values:  make(map[string]xpath.Sequence),
		pending: make(map[string]bool),
	}
	ctx.vars = s.globalVars
	s.globalVars.ctx = &ctx
	return &ctx
}

func (s *session) generateId(node xml.Node) (string, error) {
	if id, ok := s.ids[node]; ok {
		return id, nil
	}
	id, err := s.namer.Next()
	if err != nil {
		return "", err
	}
	s.ids[node] = id
	return id, nil
}

// globalEnv evaluates the global variables and parameters when they are
// referenced for the first time.
type globalEnv struct {
	ctx     *Context
	sheet   *Stylesheet
	values  map[string]xpath.Sequence
	pending map[string]bool
}

func (g *globalEnv) Resolve(ident string) (xpath.Sequence, error) {
	if seq, ok := g.values[ident]; ok {
		return seq, nil
	}
	def, ok := g.sheet.globals[ident]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ident, environ.ErrDefined)
	}
	if seq, ok := g.sheet.params[ident]; ok && def.param {
		g.values[ident] = seq
		return seq, nil
	}
	if g.pending[ident] {
		return nil, fmt.Errorf("%s: %w", ident, ErrCircular)
	}
	g.pending[ident] = true
	defer delete(g.pending, ident)

	seq, err := evalVariable(g.ctx.WithXsl(def.node))
	if err != nil {
		return nil, err
	}
	g.values[ident] = seq
	return seq, nil
}

func (g *globalEnv) Define(ident string, seq xpath.Sequence) {
	g.values[ident] = seq
}

func (g *globalEnv) Names() []string {
	var list []string
	for ident := range g.sheet.globals {
		list = append(list, ident)
	}
	slices.Sort(list)
	return list
}

func (g *globalEnv) Len() int {
	return len(g.sheet.globals)
}
