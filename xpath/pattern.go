package xpath

import (
	"fmt"
	"slices"

	"github.com/midbel/docbook/xml"
)

type patternStep struct {
	*step
	// deep is set when the step is separated from the previous one by //.
	deep bool
}

type alternative struct {
	anchor Expr
	steps  []patternStep
}

// Pattern is a compiled match pattern of a template or a key. Patterns are
// restricted location paths evaluated from right to left: a node matches when
// the path can be walked back from it through its ancestors.
type Pattern struct {
	source string
	alts   []alternative
}

func CompilePattern(str string, opts ...Option) (*Pattern, error) {
	cp := NewCompiler(str, opts...)
	expr, err := cp.Compile()
	if err != nil {
		return nil, err
	}
	p := Pattern{
		source: str,
	}
	for _, e := range splitUnion(expr) {
		alt, err := createAlternative(e)
		if err != nil {
			return nil, syntaxError(str, err.Error(), Position{Line: 1})
		}
		p.alts = append(p.alts, alt)
	}
	return &p, nil
}

func (p *Pattern) String() string {
	return p.source
}

// Split gives one pattern per alternative of the union.
func (p *Pattern) Split() []*Pattern {
	var list []*Pattern
	for _, a := range p.alts {
		x := Pattern{
			source: p.source,
			alts:   []alternative{a},
		}
		list = append(list, &x)
	}
	return list
}

// Priority gives the default priority of the pattern. For a union, the
// highest priority of its alternatives is returned.
func (p *Pattern) Priority() float64 {
	var prio float64
	for i, a := range p.alts {
		x := a.priority()
		if i == 0 || x > prio {
			prio = x
		}
	}
	return prio
}

// Match reports whether node matches one of the alternatives of the pattern.
// The variables and functions of ctx are available to the predicates.
func (p *Pattern) Match(ctx Context, node xml.Node) bool {
	if node == nil {
		return false
	}
	for _, a := range p.alts {
		if a.match(ctx, node, len(a.steps)-1) {
			return true
		}
	}
	return false
}

func (a alternative) priority() float64 {
	if a.anchor != nil || len(a.steps) != 1 {
		return 0.5
	}
	s := a.steps[0]
	if len(s.preds) > 0 {
		return 0.5
	}
	switch t := s.test.(type) {
	case nameTest:
		if t.any {
			return -0.5
		}
		if t.Name == "" {
			return -0.25
		}
		return 0
	case kindTest:
		if t.kind == xml.TypeInstruction && t.target != "" {
			return 0
		}
		return -0.5
	default:
		return 0.5
	}
}

func (a alternative) match(ctx Context, node xml.Node, ix int) bool {
	if ix < 0 {
		return a.matchAnchor(ctx, node)
	}
	s := a.steps[ix]
	if !s.matchNode(ctx, node) {
		return false
	}
	parent := node.Parent()
	if ix == 0 && a.anchor == nil {
		return true
	}
	if parent == nil {
		return false
	}
	if !s.deep {
		return a.match(ctx, parent, ix-1)
	}
	for n := parent; n != nil; n = n.Parent() {
		if a.match(ctx, n, ix-1) {
			return true
		}
	}
	return false
}

func (a alternative) matchAnchor(ctx Context, node xml.Node) bool {
	switch e := a.anchor.(type) {
	case root:
		return node.Parent() == nil
	case nil:
		return false
	default:
		seq, err := e.Eval(ctx.Sub(node, 1, 1))
		if err != nil || !seq.NodeSet() {
			return false
		}
		return slices.Contains(seq.Nodes(), node)
	}
}

func (s patternStep) matchNode(ctx Context, node xml.Node) bool {
	switch s.axis {
	case axisAttribute:
		if node.Type() != xml.TypeAttribute {
			return false
		}
	default:
		if node.Type() == xml.TypeAttribute || node.Type() == xml.TypeDocument {
			return false
		}
	}
	if !s.test.Match(node, principalType(s.axis)) {
		return false
	}
	if len(s.preds) == 0 {
		return true
	}
	parent := node.Parent()
	if parent == nil {
		return false
	}
	var candidates Sequence
	for _, n := range axes[s.axis](parent) {
		if s.test.Match(n, principalType(s.axis)) {
			candidates = append(candidates, createNode(n))
		}
	}
	res, err := applyPredicates(ctx, candidates, s.preds)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(res, func(i Item) bool {
		return i.Node() == node
	})
}

func splitUnion(expr Expr) []Expr {
	u, ok := expr.(union)
	if !ok {
		return []Expr{expr}
	}
	return append(splitUnion(u.left), splitUnion(u.right)...)
}

func flattenPath(expr Expr) []Expr {
	p, ok := expr.(path)
	if !ok {
		return []Expr{expr}
	}
	return append(flattenPath(p.left), flattenPath(p.right)...)
}

func createAlternative(expr Expr) (alternative, error) {
	var (
		alt  alternative
		list = flattenPath(expr)
		deep bool
	)
	switch e := list[0].(type) {
	case root:
		alt.anchor = e
		list = list[1:]
	case call:
		if e.ident != "id" && e.ident != "key" {
			return alt, fmt.Errorf("%s: function not allowed in pattern", e.ident)
		}
		for _, a := range e.args {
			if _, ok := a.(literal); !ok {
				if _, ok := a.(variable); !ok {
					return alt, fmt.Errorf("%s: literal argument expected in pattern", e.ident)
				}
			}
		}
		alt.anchor = e
		list = list[1:]
	}
	for _, e := range list {
		if isDescendantStep(e) {
			if deep {
				return alt, fmt.Errorf("unexpected '//' in pattern")
			}
			deep = true
			continue
		}
		s, ok := e.(*step)
		if !ok {
			return alt, fmt.Errorf("location step expected in pattern")
		}
		if s.axis != axisChild && s.axis != axisAttribute {
			return alt, fmt.Errorf("%s: axis not allowed in pattern", s.axis)
		}
		alt.steps = append(alt.steps, patternStep{step: s, deep: deep})
		deep = false
	}
	if deep {
		return alt, fmt.Errorf("location step expected after '//'")
	}
	if alt.anchor == nil && len(alt.steps) == 0 {
		return alt, fmt.Errorf("empty pattern")
	}
	return alt, nil
}
