package xpath

import (
	"fmt"
	"strconv"

	"github.com/midbel/docbook/xml"
)

// NamespaceFunc returns the namespace URI bound to a prefix.
type NamespaceFunc func(string) (string, bool)

type Option func(*Compiler)

// WithNamespaces gives the function used to resolve the prefixes found in
// names, variables and function calls.
func WithNamespaces(fn NamespaceFunc) Option {
	return func(c *Compiler) {
		if fn != nil {
			c.namespaces = fn
		}
	}
}

// WithTracer installs a tracer that follows the compiler.
func WithTracer(t Tracer) Option {
	return func(c *Compiler) {
		if t != nil {
			c.Tracer = t
		}
	}
}

type Compiler struct {
	source string
	scan   *Scanner
	curr   Token
	peek   Token

	Tracer
	namespaces NamespaceFunc

	infix  map[rune]func(Expr) (Expr, error)
	prefix map[rune]func() (Expr, error)
}

func NewCompiler(str string, opts ...Option) *Compiler {
	cp := Compiler{
		source: str,
		scan:   Scan(str),
		Tracer: discardTracer{},
		namespaces: func(string) (string, bool) {
			return "", false
		},
	}
	for _, o := range opts {
		o(&cp)
	}

	cp.infix = map[rune]func(Expr) (Expr, error){
		currLevel: cp.compileStep,
		anyLevel:  cp.compileDescendantStep,
		begPred:   cp.compileFilter,
		opUnion:   cp.compileUnion,
		opAdd:     cp.compileBinary,
		opSub:     cp.compileBinary,
		opMul:     cp.compileBinary,
		opDiv:     cp.compileBinary,
		opMod:     cp.compileBinary,
		opEq:      cp.compileBinary,
		opNe:      cp.compileBinary,
		opGt:      cp.compileBinary,
		opGe:      cp.compileBinary,
		opLt:      cp.compileBinary,
		opLe:      cp.compileBinary,
		opAnd:     cp.compileBinary,
		opOr:      cp.compileBinary,
	}
	cp.prefix = map[rune]func() (Expr, error){
		currLevel:  cp.compileRoot,
		anyLevel:   cp.compileDescendantRoot,
		Name:       cp.compileName,
		varRef:     cp.compileVariable,
		currNode:   cp.compileCurrent,
		parentNode: cp.compileParent,
		attrNode:   cp.compileAttr,
		Literal:    cp.compileLiteral,
		Digit:      cp.compileNumber,
		opSub:      cp.compileReverse,
		begGrp:     cp.compileGroup,
	}

	cp.next()
	cp.next()
	return &cp
}

func Compile(str string, opts ...Option) (*Query, error) {
	cp := NewCompiler(str, opts...)
	expr, err := cp.Compile()
	if err != nil {
		return nil, err
	}
	q := Query{
		Expr:   expr,
		source: str,
	}
	return &q, nil
}

func (c *Compiler) Compile() (Expr, error) {
	expr, err := c.compileExpr(powLowest)
	if err != nil {
		c.Error("expr", err)
		return nil, err
	}
	if !c.done() {
		return nil, c.syntaxError(fmt.Sprintf("unexpected token %s", c.curr))
	}
	return expr, nil
}

func (c *Compiler) compileExpr(pow int) (Expr, error) {
	fn, ok := c.prefix[c.curr.Type]
	if !ok {
		if c.done() {
			return nil, c.syntaxError("unexpected end of expression")
		}
		return nil, c.syntaxError(fmt.Sprintf("unexpected token %s", c.curr))
	}
	left, err := fn()
	if err != nil {
		return nil, err
	}
	for !c.done() && pow < c.power() {
		fn, ok := c.infix[c.curr.Type]
		if !ok {
			break
		}
		if left, err = fn(left); err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (c *Compiler) compileBinary(left Expr) (Expr, error) {
	c.Enter("binary")
	defer c.Leave("binary")

	var (
		op  = c.curr.Type
		pow = c.power()
	)
	c.next()
	right, err := c.compileExpr(pow)
	if err != nil {
		return nil, err
	}
	b := binary{
		op:    op,
		left:  left,
		right: right,
	}
	return b, nil
}

func (c *Compiler) compileUnion(left Expr) (Expr, error) {
	c.Enter("union")
	defer c.Leave("union")

	c.next()
	right, err := c.compileExpr(powUnion)
	if err != nil {
		return nil, err
	}
	u := union{
		left:  left,
		right: right,
	}
	return u, nil
}

func (c *Compiler) compileFilter(left Expr) (Expr, error) {
	c.Enter("filter")
	defer c.Leave("filter")

	c.next()
	pred, err := c.compileExpr(powLowest)
	if err != nil {
		return nil, err
	}
	if !c.is(endPred) {
		return nil, c.syntaxError("missing ']' after predicate")
	}
	c.next()
	switch e := left.(type) {
	case *step:
		e.preds = append(e.preds, pred)
		return e, nil
	case *filter:
		e.preds = append(e.preds, pred)
		return e, nil
	default:
		f := filter{
			expr:  left,
			preds: []Expr{pred},
		}
		return &f, nil
	}
}

func (c *Compiler) compileStep(left Expr) (Expr, error) {
	c.Enter("step")
	defer c.Leave("step")

	c.next()
	if !c.startStep() {
		return nil, c.syntaxError("location step expected after '/'")
	}
	right, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	p := path{
		left:  left,
		right: right,
	}
	return p, nil
}

func (c *Compiler) compileDescendantStep(left Expr) (Expr, error) {
	c.Enter("descendant-step")
	defer c.Leave("descendant-step")

	c.next()
	if !c.startStep() {
		return nil, c.syntaxError("location step expected after '//'")
	}
	right, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	p := path{
		left: left,
		right: path{
			left:  descendantStep(),
			right: right,
		},
	}
	return p, nil
}

func (c *Compiler) compileRoot() (Expr, error) {
	c.Enter("root")
	defer c.Leave("root")

	c.next()
	if !c.startStep() {
		return root{}, nil
	}
	right, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	p := path{
		left:  root{},
		right: right,
	}
	return p, nil
}

func (c *Compiler) compileDescendantRoot() (Expr, error) {
	c.Enter("descendant-root")
	defer c.Leave("descendant-root")

	c.next()
	if !c.startStep() {
		return nil, c.syntaxError("location step expected after '//'")
	}
	right, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	p := path{
		left: root{},
		right: path{
			left:  descendantStep(),
			right: right,
		},
	}
	return p, nil
}

func (c *Compiler) compileName() (Expr, error) {
	switch c.peek.Type {
	case opAxis:
		return c.compileAxis()
	case begGrp:
		if kind, ok := nodeKinds[c.curr.Literal]; ok {
			test, err := c.compileKindTest(kind)
			if err != nil {
				return nil, err
			}
			return &step{axis: axisChild, test: test}, nil
		}
		return c.compileCall()
	default:
		test, err := c.compileNameTest()
		if err != nil {
			return nil, err
		}
		return &step{axis: axisChild, test: test}, nil
	}
}

func (c *Compiler) compileAxis() (Expr, error) {
	c.Enter("axis")
	defer c.Leave("axis")

	axis := c.curr.Literal
	if !isAxis(axis) {
		return nil, c.syntaxError(fmt.Sprintf("%s: unknown axis", axis))
	}
	c.next()
	c.next()
	test, err := c.compileNodeTest()
	if err != nil {
		return nil, err
	}
	return &step{axis: axis, test: test}, nil
}

func (c *Compiler) compileAttr() (Expr, error) {
	c.next()
	test, err := c.compileNodeTest()
	if err != nil {
		return nil, err
	}
	return &step{axis: axisAttribute, test: test}, nil
}

func (c *Compiler) compileNodeTest() (nodeTest, error) {
	if !c.is(Name) {
		return nil, c.syntaxError("node test expected")
	}
	if kind, ok := nodeKinds[c.curr.Literal]; ok && c.peek.Type == begGrp {
		return c.compileKindTest(kind)
	}
	return c.compileNameTest()
}

var nodeKinds = map[string]xml.NodeType{
	"node":                   xml.TypeNode,
	"text":                   xml.TypeText,
	"comment":                xml.TypeComment,
	"processing-instruction": xml.TypeInstruction,
}

func (c *Compiler) compileKindTest(kind xml.NodeType) (nodeTest, error) {
	c.next()
	c.next()
	test := kindTest{
		kind: kind,
	}
	if kind == xml.TypeInstruction && c.is(Literal) {
		test.target = c.curr.Literal
		c.next()
	}
	if !c.is(endGrp) {
		return nil, c.syntaxError("missing ')' after node type test")
	}
	c.next()
	return test, nil
}

func (c *Compiler) compileNameTest() (nodeTest, error) {
	name := c.curr.Literal
	c.next()
	if name == "*" {
		return nameTest{any: true}, nil
	}
	qn, err := c.resolveName(name)
	if err != nil {
		return nil, err
	}
	if qn.Name == "*" {
		qn.Name = ""
	}
	return nameTest{QName: qn}, nil
}

func (c *Compiler) compileCall() (Expr, error) {
	c.Enter("call")
	defer c.Leave("call")

	name := c.curr.Literal
	qn, err := c.resolveName(name)
	if err != nil {
		return nil, err
	}
	c.next()
	c.next()

	fn := call{
		ident: qn.ExpandedName(),
	}
	for !c.done() && !c.is(endGrp) {
		arg, err := c.compileExpr(powLowest)
		if err != nil {
			return nil, err
		}
		fn.args = append(fn.args, arg)
		switch {
		case c.is(opSeq):
			c.next()
			if c.is(endGrp) {
				return nil, c.syntaxError("argument expected after ','")
			}
		case c.is(endGrp):
		default:
			return nil, c.syntaxError(fmt.Sprintf("%s: ',' or ')' expected", name))
		}
	}
	if !c.is(endGrp) {
		return nil, c.syntaxError(fmt.Sprintf("%s: missing ')'", name))
	}
	c.next()
	if b, ok := builtins[fn.ident]; ok {
		if n := len(fn.args); n < b.min || (b.max >= 0 && n > b.max) {
			return nil, c.syntaxError(errArgument(fn.ident, b.min, b.max, n).Error())
		}
	}
	return fn, nil
}

func (c *Compiler) compileVariable() (Expr, error) {
	qn, err := c.resolveName(c.curr.Literal)
	if err != nil {
		return nil, err
	}
	c.next()
	return variable{ident: qn.ExpandedName()}, nil
}

func (c *Compiler) compileCurrent() (Expr, error) {
	c.next()
	s := step{
		axis: axisSelf,
		test: kindTest{kind: xml.TypeNode},
	}
	return &s, nil
}

func (c *Compiler) compileParent() (Expr, error) {
	c.next()
	s := step{
		axis: axisParent,
		test: kindTest{kind: xml.TypeNode},
	}
	return &s, nil
}

func (c *Compiler) compileLiteral() (Expr, error) {
	defer c.next()
	return literal{value: c.curr.Literal}, nil
}

func (c *Compiler) compileNumber() (Expr, error) {
	defer c.next()
	f, err := strconv.ParseFloat(c.curr.Literal, 64)
	if err != nil {
		return nil, c.syntaxError(fmt.Sprintf("%s: invalid number", c.curr.Literal))
	}
	return number{value: f}, nil
}

func (c *Compiler) compileReverse() (Expr, error) {
	c.next()
	expr, err := c.compileExpr(powPrefix)
	if err != nil {
		return nil, err
	}
	return reverse{expr: expr}, nil
}

func (c *Compiler) compileGroup() (Expr, error) {
	c.Enter("group")
	defer c.Leave("group")

	c.next()
	expr, err := c.compileExpr(powLowest)
	if err != nil {
		return nil, err
	}
	if !c.is(endGrp) {
		return nil, c.syntaxError("missing ')'")
	}
	c.next()
	if s, ok := expr.(*step); ok {
		return &filter{expr: s}, nil
	}
	return expr, nil
}

// resolveName splits name into its prefix and local part and resolves the
// prefix. Unprefixed names are never in a namespace.
func (c *Compiler) resolveName(name string) (xml.QName, error) {
	qn, err := xml.ParseName(name)
	if err != nil {
		return qn, c.syntaxError(err.Error())
	}
	switch qn.Space {
	case "":
		return qn, nil
	case "xml":
		qn.Uri = xml.NamespaceXML
		return qn, nil
	}
	uri, ok := c.namespaces(qn.Space)
	if !ok {
		return qn, c.syntaxError(fmt.Sprintf("%s: undeclared namespace prefix", qn.Space))
	}
	qn.Uri = uri
	return qn, nil
}

func (c *Compiler) startStep() bool {
	switch c.curr.Type {
	case Name:
		_, kind := nodeKinds[c.curr.Literal]
		return c.peek.Type != begGrp || kind
	case attrNode, currNode, parentNode:
		return true
	default:
		return false
	}
}

func (c *Compiler) syntaxError(cause string) error {
	return syntaxError(c.source, cause, c.curr.Position)
}

func (c *Compiler) power() int {
	pow, ok := bindings[c.curr.Type]
	if !ok {
		return powLowest
	}
	return pow
}

func (c *Compiler) is(kind rune) bool {
	return c.curr.Type == kind
}

func (c *Compiler) done() bool {
	return c.is(EOF)
}

func (c *Compiler) next() {
	c.curr = c.peek
	c.peek = c.scan.Scan()
}

const (
	powLowest = iota
	powOr
	powAnd
	powEq
	powCmp
	powAdd
	powMul
	powPrefix
	powUnion
	powStep
	powPred
)

var bindings = map[rune]int{
	opOr:      powOr,
	opAnd:     powAnd,
	opEq:      powEq,
	opNe:      powEq,
	opLt:      powCmp,
	opLe:      powCmp,
	opGt:      powCmp,
	opGe:      powCmp,
	opAdd:     powAdd,
	opSub:     powAdd,
	opMul:     powMul,
	opDiv:     powMul,
	opMod:     powMul,
	opUnion:   powUnion,
	currLevel: powStep,
	anyLevel:  powStep,
	begPred:   powPred,
}
