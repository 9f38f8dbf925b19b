package xpath

import (
	"fmt"
	"math"
	"slices"

	"github.com/midbel/docbook/xml"
)

type Expr interface {
	Eval(Context) (Sequence, error)
}

// Query is a compiled expression that keeps its source text.
type Query struct {
	Expr
	source string
}

func (q *Query) String() string {
	return q.source
}

// Find evaluates the query with node as context node.
func (q *Query) Find(node xml.Node) (Sequence, error) {
	return q.Eval(NewContext(node))
}

// Find compiles query and evaluates it with node as context node.
func Find(node xml.Node, query string, opts ...Option) (Sequence, error) {
	q, err := Compile(query, opts...)
	if err != nil {
		return nil, err
	}
	return q.Find(node)
}

type root struct{}

func (_ root) Eval(ctx Context) (Sequence, error) {
	if ctx.Node == nil {
		return nil, fmt.Errorf("no context node")
	}
	return NewNodes(xml.Root(ctx.Node)), nil
}

type step struct {
	axis  string
	test  nodeTest
	preds []Expr
}

func (s *step) Eval(ctx Context) (Sequence, error) {
	if ctx.Node == nil {
		return nil, fmt.Errorf("%s: no context node", s.axis)
	}
	var (
		list      = axes[s.axis](ctx.Node)
		principal = principalType(s.axis)
		seq       Sequence
	)
	for _, n := range list {
		if s.test.Match(n, principal) {
			seq = append(seq, createNode(n))
		}
	}
	seq, err := applyPredicates(ctx, seq, s.preds)
	if err != nil {
		return nil, err
	}
	if isReverse(s.axis) {
		slices.Reverse(seq)
	}
	return seq, nil
}

// descendantStep is the step inserted by the // abbreviation.
func descendantStep() *step {
	return &step{
		axis: axisDescendantSelf,
		test: kindTest{kind: xml.TypeNode},
	}
}

func isDescendantStep(e Expr) bool {
	s, ok := e.(*step)
	if !ok || s.axis != axisDescendantSelf || len(s.preds) > 0 {
		return false
	}
	k, ok := s.test.(kindTest)
	return ok && k.kind == xml.TypeNode
}

type path struct {
	left  Expr
	right Expr
}

func (p path) Eval(ctx Context) (Sequence, error) {
	left, err := p.left.Eval(ctx)
	if err != nil {
		return nil, err
	}
	if !left.NodeSet() {
		return nil, errNodeSet("path")
	}
	var (
		nodes = left.Nodes()
		res   Sequence
	)
	for i, n := range nodes {
		seq, err := p.right.Eval(ctx.Sub(n, i+1, len(nodes)))
		if err != nil {
			return nil, err
		}
		if !seq.NodeSet() {
			return nil, errNodeSet("path")
		}
		res = append(res, seq...)
	}
	if len(nodes) <= 1 {
		return res, nil
	}
	return sortNodes(res), nil
}

type filter struct {
	expr  Expr
	preds []Expr
}

func (f *filter) Eval(ctx Context) (Sequence, error) {
	seq, err := f.expr.Eval(ctx)
	if err != nil || len(f.preds) == 0 {
		return seq, err
	}
	if !seq.NodeSet() {
		return nil, errNodeSet("predicate")
	}
	return applyPredicates(ctx, sortNodes(seq), f.preds)
}

func applyPredicates(ctx Context, seq Sequence, preds []Expr) (Sequence, error) {
	for _, p := range preds {
		if n, ok := p.(number); ok {
			seq = selectPosition(seq, n.value)
			continue
		}
		var (
			res  Sequence
			size = len(seq)
		)
		for i, item := range seq {
			v, err := p.Eval(ctx.Sub(item.Node(), i+1, size))
			if err != nil {
				return nil, err
			}
			if keep(v, i+1) {
				res = append(res, item)
			}
		}
		seq = res
	}
	return seq, nil
}

func selectPosition(seq Sequence, pos float64) Sequence {
	ix := int(pos)
	if float64(ix) != pos || ix < 1 || ix > len(seq) {
		return nil
	}
	return Sequence{seq[ix-1]}
}

func keep(seq Sequence, pos int) bool {
	if len(seq) == 1 && seq[0].Atomic() {
		if n, ok := seq[0].Value().(float64); ok {
			return n == float64(pos)
		}
	}
	return AsBoolean(seq)
}

type union struct {
	left  Expr
	right Expr
}

func (u union) Eval(ctx Context) (Sequence, error) {
	left, err := u.left.Eval(ctx)
	if err != nil {
		return nil, err
	}
	right, err := u.right.Eval(ctx)
	if err != nil {
		return nil, err
	}
	if !left.NodeSet() || !right.NodeSet() {
		return nil, errNodeSet("union")
	}
	return sortNodes(slices.Concat(left, right)), nil
}

type binary struct {
	op    rune
	left  Expr
	right Expr
}

func (b binary) Eval(ctx Context) (Sequence, error) {
	left, err := b.left.Eval(ctx)
	if err != nil {
		return nil, err
	}
	switch b.op {
	case opOr:
		if AsBoolean(left) {
			return NewBoolean(true), nil
		}
	case opAnd:
		if !AsBoolean(left) {
			return NewBoolean(false), nil
		}
	}
	right, err := b.right.Eval(ctx)
	if err != nil {
		return nil, err
	}
	switch b.op {
	case opOr, opAnd:
		return NewBoolean(AsBoolean(right)), nil
	case opEq, opNe, opLt, opLe, opGt, opGe:
		return NewBoolean(compare(b.op, left, right)), nil
	}
	var (
		x = AsNumber(left)
		y = AsNumber(right)
	)
	switch b.op {
	case opAdd:
		return NewNumber(x + y), nil
	case opSub:
		return NewNumber(x - y), nil
	case opMul:
		return NewNumber(x * y), nil
	case opDiv:
		return NewNumber(x / y), nil
	case opMod:
		return NewNumber(math.Mod(x, y)), nil
	default:
		return nil, fmt.Errorf("unsupported operator")
	}
}

type reverse struct {
	expr Expr
}

func (r reverse) Eval(ctx Context) (Sequence, error) {
	seq, err := r.expr.Eval(ctx)
	if err != nil {
		return nil, err
	}
	return NewNumber(-AsNumber(seq)), nil
}

type literal struct {
	value string
}

func (i literal) Eval(_ Context) (Sequence, error) {
	return NewString(i.value), nil
}

type number struct {
	value float64
}

func (n number) Eval(_ Context) (Sequence, error) {
	return NewNumber(n.value), nil
}

type variable struct {
	ident string
}

func (v variable) Eval(ctx Context) (Sequence, error) {
	return ctx.Resolve(v.ident)
}

type call struct {
	ident string
	args  []Expr
}

func (c call) Eval(ctx Context) (Sequence, error) {
	fn, ok := ctx.Function(c.ident)
	if !ok {
		return nil, errFunction(c.ident)
	}
	args := make([]Sequence, 0, len(c.args))
	for _, a := range c.args {
		seq, err := a.Eval(ctx)
		if err != nil {
			return nil, err
		}
		args = append(args, seq)
	}
	return fn(ctx, args)
}
