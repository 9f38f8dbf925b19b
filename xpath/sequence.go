package xpath

import (
	"slices"

	"github.com/midbel/docbook/xml"
)

// Item is a member of a Sequence: a node or one of the atomic values of
// XPath 1.0 (string, float64 or bool).
type Item interface {
	Node() xml.Node
	Value() any
	Atomic() bool
}

type nodeItem struct {
	node xml.Node
}

func createNode(node xml.Node) Item {
	return nodeItem{
		node: node,
	}
}

func (i nodeItem) Node() xml.Node {
	return i.node
}

func (i nodeItem) Value() any {
	return i.node.Value()
}

func (_ nodeItem) Atomic() bool {
	return false
}

// fragmentItem holds a result tree fragment.
type fragmentItem struct {
	doc *xml.Document
}

func (i fragmentItem) Node() xml.Node {
	return i.doc
}

func (i fragmentItem) Value() any {
	return i.doc.Value()
}

func (_ fragmentItem) Atomic() bool {
	return false
}

type literalItem struct {
	value any
}

func createLiteral(value any) Item {
	return literalItem{
		value: value,
	}
}

func (_ literalItem) Node() xml.Node {
	return nil
}

func (i literalItem) Value() any {
	return i.value
}

func (_ literalItem) Atomic() bool {
	return true
}

type Sequence []Item

func NewSequence() Sequence {
	var seq Sequence
	return seq
}

// Singleton creates a sequence of one item from a Go value. Integers are
// turned into numbers.
func Singleton(value any) Sequence {
	var item Item
	switch v := value.(type) {
	case Item:
		item = v
	case xml.Node:
		item = createNode(v)
	case int:
		item = createLiteral(float64(v))
	case int64:
		item = createLiteral(float64(v))
	case float64, string, bool:
		item = createLiteral(v)
	default:
		return nil
	}
	return Sequence{item}
}

func NewString(str string) Sequence {
	return Singleton(str)
}

func NewNumber(num float64) Sequence {
	return Singleton(num)
}

func NewBoolean(b bool) Sequence {
	return Singleton(b)
}

func NewNodes(nodes ...xml.Node) Sequence {
	seq := make(Sequence, 0, len(nodes))
	for _, n := range nodes {
		seq = append(seq, createNode(n))
	}
	return seq
}

// NewFragment wraps a result tree fragment.
func NewFragment(doc *xml.Document) Sequence {
	return Sequence{fragmentItem{doc: doc}}
}

// IsFragment reports whether seq is a result tree fragment.
func IsFragment(seq Sequence) bool {
	if len(seq) != 1 {
		return false
	}
	_, ok := seq[0].(fragmentItem)
	return ok
}

func (s *Sequence) First() Item {
	if s.Empty() {
		return nil
	}
	return (*s)[0]
}

func (s *Sequence) Len() int {
	return len(*s)
}

func (s *Sequence) Append(item Item) {
	*s = append(*s, item)
}

func (s *Sequence) Concat(other Sequence) {
	*s = slices.Concat(*s, other)
}

func (s *Sequence) Empty() bool {
	return len(*s) == 0
}

func (s *Sequence) Singleton() bool {
	return len(*s) == 1
}

// NodeSet reports whether every item of the sequence is a node. The empty
// sequence is the empty node-set.
func (s *Sequence) NodeSet() bool {
	for _, i := range *s {
		if i.Atomic() {
			return false
		}
	}
	return true
}

func (s *Sequence) Nodes() []xml.Node {
	var list []xml.Node
	for _, i := range *s {
		if n := i.Node(); n != nil {
			list = append(list, n)
		}
	}
	return list
}

// sortNodes returns the nodes of seq in document order without duplicates.
func sortNodes(seq Sequence) Sequence {
	if len(seq) <= 1 {
		return seq
	}
	return NewNodes(xml.SortNodes(seq.Nodes())...)
}
