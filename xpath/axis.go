package xpath

import (
	"slices"

	"github.com/midbel/docbook/xml"
)

const (
	axisChild            = "child"
	axisDescendant       = "descendant"
	axisDescendantSelf   = "descendant-or-self"
	axisParent           = "parent"
	axisAncestor         = "ancestor"
	axisAncestorSelf     = "ancestor-or-self"
	axisFollowingSibling = "following-sibling"
	axisPrecedingSibling = "preceding-sibling"
	axisFollowing        = "following"
	axisPreceding        = "preceding"
	axisAttribute        = "attribute"
	axisNamespace        = "namespace"
	axisSelf             = "self"
)

type axisFunc func(xml.Node) []xml.Node

var axes = map[string]axisFunc{
	axisChild:            children,
	axisDescendant:       descendants,
	axisDescendantSelf:   descendantsOrSelf,
	axisParent:           parent,
	axisAncestor:         ancestors,
	axisAncestorSelf:     ancestorsOrSelf,
	axisFollowingSibling: followingSiblings,
	axisPrecedingSibling: precedingSiblings,
	axisFollowing:        following,
	axisPreceding:        preceding,
	axisAttribute:        attributes,
	axisNamespace:        namespaces,
	axisSelf:             self,
}

func isAxis(name string) bool {
	_, ok := axes[name]
	return ok
}

// isReverse reports whether the nodes of the axis are given in reverse
// document order.
func isReverse(axis string) bool {
	switch axis {
	case axisAncestor, axisAncestorSelf, axisPreceding, axisPrecedingSibling:
		return true
	default:
		return false
	}
}

func principalType(axis string) xml.NodeType {
	if axis == axisAttribute {
		return xml.TypeAttribute
	}
	return xml.TypeElement
}

func self(node xml.Node) []xml.Node {
	return []xml.Node{node}
}

func children(node xml.Node) []xml.Node {
	return xml.Children(node)
}

func attributes(node xml.Node) []xml.Node {
	attrs := xml.Attributes(node)
	list := make([]xml.Node, 0, len(attrs))
	for _, a := range attrs {
		list = append(list, a)
	}
	return list
}

// namespaces is always empty: namespace nodes are not part of the tree.
func namespaces(_ xml.Node) []xml.Node {
	return nil
}

func parent(node xml.Node) []xml.Node {
	if p := node.Parent(); p != nil {
		return []xml.Node{p}
	}
	return nil
}

func ancestors(node xml.Node) []xml.Node {
	var list []xml.Node
	for p := node.Parent(); p != nil; p = p.Parent() {
		list = append(list, p)
	}
	return list
}

func ancestorsOrSelf(node xml.Node) []xml.Node {
	return append([]xml.Node{node}, ancestors(node)...)
}

func descendants(node xml.Node) []xml.Node {
	var list []xml.Node
	var walk func(xml.Node)
	walk = func(n xml.Node) {
		for _, c := range xml.Children(n) {
			list = append(list, c)
			walk(c)
		}
	}
	walk(node)
	return list
}

func descendantsOrSelf(node xml.Node) []xml.Node {
	return append([]xml.Node{node}, descendants(node)...)
}

func siblingIndex(node xml.Node) ([]xml.Node, int) {
	if node.Type() == xml.TypeAttribute {
		return nil, -1
	}
	p := node.Parent()
	if p == nil {
		return nil, -1
	}
	list := xml.Children(p)
	if pos := node.Position(); pos >= 0 && pos < len(list) && list[pos] == node {
		return list, pos
	}
	return list, slices.Index(list, node)
}

func followingSiblings(node xml.Node) []xml.Node {
	list, ix := siblingIndex(node)
	if ix < 0 {
		return nil
	}
	return list[ix+1:]
}

func precedingSiblings(node xml.Node) []xml.Node {
	list, ix := siblingIndex(node)
	if ix <= 0 {
		return nil
	}
	res := slices.Clone(list[:ix])
	slices.Reverse(res)
	return res
}

func following(node xml.Node) []xml.Node {
	var (
		list []xml.Node
		curr = node
	)
	if node.Type() == xml.TypeAttribute {
		curr = node.Parent()
		if curr == nil {
			return nil
		}
		list = append(list, descendants(curr)...)
	}
	for ; curr != nil; curr = curr.Parent() {
		for _, s := range followingSiblings(curr) {
			list = append(list, s)
			list = append(list, descendants(s)...)
		}
	}
	return list
}

func preceding(node xml.Node) []xml.Node {
	var (
		list []xml.Node
		curr = node
	)
	if node.Type() == xml.TypeAttribute {
		curr = node.Parent()
	}
	for ; curr != nil; curr = curr.Parent() {
		for _, s := range precedingSiblings(curr) {
			desc := descendants(s)
			slices.Reverse(desc)
			list = append(list, desc...)
			list = append(list, s)
		}
	}
	return list
}

type nodeTest interface {
	Match(xml.Node, xml.NodeType) bool
}

// nameTest matches nodes of the principal type by expanded name. An empty
// Name matches any name in the namespace, used for prefix:* tests.
type nameTest struct {
	xml.QName
	any bool
}

func (t nameTest) Match(node xml.Node, principal xml.NodeType) bool {
	if node.Type() != principal {
		return false
	}
	if t.any {
		return true
	}
	if nodeURI(node) != t.Uri {
		return false
	}
	return t.Name == "" || node.LocalName() == t.Name
}

type kindTest struct {
	kind   xml.NodeType
	target string
}

func (t kindTest) Match(node xml.Node, _ xml.NodeType) bool {
	if t.kind == xml.TypeNode {
		return true
	}
	if node.Type() != t.kind {
		return false
	}
	return t.target == "" || node.LocalName() == t.target
}

func nodeURI(node xml.Node) string {
	switch n := node.(type) {
	case *xml.Element:
		return n.Uri
	case *xml.Attribute:
		return n.Uri
	default:
		return ""
	}
}
