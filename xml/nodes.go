package xml

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
)

type NodeType int8

const (
	TypeDocument NodeType = 1 << iota
	TypeElement
	TypeComment
	TypeAttribute
	TypeInstruction
	TypeText
)

const TypeNode = TypeDocument | TypeElement | TypeComment | TypeAttribute | TypeInstruction | TypeText

func (n NodeType) String() string {
	switch n {
	default:
		return "<>"
	case TypeDocument:
		return "document"
	case TypeElement:
		return "element"
	case TypeComment:
		return "comment"
	case TypeAttribute:
		return "attribute"
	case TypeInstruction:
		return "processing-instruction"
	case TypeText:
		return "text"
	case TypeNode:
		return "node"
	}
}

const (
	NamespaceXML   = "http://www.w3.org/XML/1998/namespace"
	NamespaceXMLNS = "http://www.w3.org/2000/xmlns/"
)

var ErrElement = errors.New("element expected")

type Node interface {
	Type() NodeType
	LocalName() string
	QualifiedName() string
	Leaf() bool
	Position() int
	Parent() Node
	Value() string

	setParent(Node)
	setPosition(int)
}

type QName struct {
	Uri   string
	Space string
	Name  string
}

func ParseName(name string) (QName, error) {
	var (
		qn QName
		ok bool
	)
	qn.Space, qn.Name, ok = strings.Cut(name, ":")
	if !ok {
		qn.Name, qn.Space = qn.Space, ""
	}
	if ok && (qn.Space == "" || qn.Name == "") {
		return qn, fmt.Errorf("%s: invalid qualified name", name)
	}
	return qn, nil
}

func ExpandedName(name, space, uri string) QName {
	return QName{
		Name:  name,
		Space: space,
		Uri:   uri,
	}
}

func LocalName(name string) QName {
	return ExpandedName(name, "", "")
}

func QualifiedName(name, space string) QName {
	return ExpandedName(name, space, "")
}

func (q QName) Zero() bool {
	return q.Space == "" && q.Name == ""
}

func (q QName) Equal(other QName) bool {
	return q.Uri == other.Uri && q.Name == other.Name
}

func (q QName) LocalName() string {
	return q.Name
}

func (q QName) ExpandedName() string {
	if q.Uri == "" {
		return q.LocalName()
	}
	return fmt.Sprintf("{%s}%s", q.Uri, q.Name)
}

func (q QName) QualifiedName() string {
	if q.Space == "" {
		return q.LocalName()
	}
	return fmt.Sprintf("%s:%s", q.Space, q.Name)
}

type NS struct {
	Prefix string
	Uri    string
}

func (n NS) Default() bool {
	return n.Prefix == ""
}

type BaseNode struct {
	parent   Node
	position int
}

func (n *BaseNode) Parent() Node {
	return n.parent
}

func (n *BaseNode) Position() int {
	return n.position
}

func (n *BaseNode) setParent(node Node) {
	n.parent = node
}

func (n *BaseNode) setPosition(pos int) {
	n.position = pos
}

type Entity struct {
	Name     string
	Value    string
	PublicID string
	SystemID string
	Notation string
	// Base is the location of the declaration, used to resolve SystemID.
	Base string
}

func (e *Entity) External() bool {
	return e.SystemID != "" || e.PublicID != ""
}

func (e *Entity) Unparsed() bool {
	return e.Notation != ""
}

type DocType struct {
	Name     string
	PublicID string
	SystemID string
	Entities map[string]*Entity
}

func NewDocType(name, public, system string) *DocType {
	return &DocType{
		Name:     name,
		PublicID: public,
		SystemID: system,
		Entities: make(map[string]*Entity),
	}
}

func (d *DocType) define(e *Entity) {
	if d.Entities == nil {
		d.Entities = make(map[string]*Entity)
	}
	if _, ok := d.Entities[e.Name]; ok {
		return
	}
	d.Entities[e.Name] = e
}

var docSequence atomic.Int64

type Document struct {
	*DocType
	Version    string
	Encoding   string
	Standalone string
	// Location is the place the document was loaded from. It serves as the
	// base for relative references found in the document.
	Location string

	Nodes []Node

	seq int64
}

func EmptyDocument() *Document {
	doc := Document{
		Version:  SupportedVersion,
		Encoding: SupportedEncoding,
		seq:      docSequence.Add(1),
	}
	return &doc
}

func (d *Document) Root() *Element {
	for i := range d.Nodes {
		if el, ok := d.Nodes[i].(*Element); ok {
			return el
		}
	}
	return nil
}

func (d *Document) Append(node Node) {
	if node == nil {
		return
	}
	if a, ok := node.(*Document); ok {
		for _, n := range slices.Clone(a.Nodes) {
			d.Append(n)
		}
		return
	}
	node.setParent(d)
	node.setPosition(len(d.Nodes))
	d.Nodes = append(d.Nodes, node)
}

func (d *Document) Type() NodeType {
	return TypeDocument
}

func (d *Document) LocalName() string {
	return ""
}

func (d *Document) QualifiedName() string {
	return ""
}

func (d *Document) Leaf() bool {
	return len(d.Nodes) == 0
}

func (d *Document) Position() int {
	return 0
}

func (d *Document) Parent() Node {
	return nil
}

func (d *Document) Value() string {
	var str strings.Builder
	for _, n := range d.Nodes {
		writeValue(&str, n)
	}
	return str.String()
}

func (d *Document) GetElementById(id string) *Element {
	root := d.Root()
	if root == nil {
		return nil
	}
	return root.GetElementById(id)
}

func (d *Document) setParent(_ Node) {}

func (d *Document) setPosition(_ int) {}

type Attribute struct {
	QName
	Datum string

	BaseNode
}

func NewAttribute(name QName, value string) *Attribute {
	return &Attribute{
		QName: name,
		Datum: value,
	}
}

func (_ *Attribute) Type() NodeType {
	return TypeAttribute
}

func (_ *Attribute) Leaf() bool {
	return true
}

func (a *Attribute) Value() string {
	return a.Datum
}

type Element struct {
	QName
	Attrs []*Attribute
	// Namespaces holds the namespace declarations made on the element itself.
	Namespaces []NS
	Nodes      []Node

	BaseNode
}

func NewElement(name QName) *Element {
	return &Element{
		QName: name,
	}
}

func (_ *Element) Type() NodeType {
	return TypeElement
}

func (e *Element) Leaf() bool {
	return len(e.Nodes) == 0
}

func (e *Element) Value() string {
	var str strings.Builder
	for _, n := range e.Nodes {
		writeValue(&str, n)
	}
	return str.String()
}

func (e *Element) Append(node Node) {
	if node == nil {
		return
	}
	switch n := node.(type) {
	case *Attribute:
		e.SetAttribute(n)
		return
	case *Document:
		for _, c := range slices.Clone(n.Nodes) {
			e.Append(c)
		}
		return
	case *Text:
		if n.Content == "" {
			return
		}
		if z := len(e.Nodes); z > 0 {
			if prev, ok := e.Nodes[z-1].(*Text); ok && prev.Raw == n.Raw {
				prev.Content += n.Content
				return
			}
		}
	}
	node.setParent(e)
	node.setPosition(len(e.Nodes))
	e.Nodes = append(e.Nodes, node)
}

func (e *Element) SetAttribute(attr *Attribute) {
	attr.setParent(e)
	ix := slices.IndexFunc(e.Attrs, func(a *Attribute) bool {
		return a.QName.Equal(attr.QName)
	})
	if ix >= 0 {
		attr.setPosition(ix)
		e.Attrs[ix] = attr
		return
	}
	attr.setPosition(len(e.Attrs))
	e.Attrs = append(e.Attrs, attr)
}

// GetAttribute looks for an attribute by its qualified name as it was
// written in the document.
func (e *Element) GetAttribute(name string) *Attribute {
	for _, a := range e.Attrs {
		if a.QualifiedName() == name {
			return a
		}
	}
	return nil
}

func (e *Element) GetAttributeNS(name QName) *Attribute {
	for _, a := range e.Attrs {
		if a.QName.Equal(name) {
			return a
		}
	}
	return nil
}

func (e *Element) AttributeValue(name string) (string, bool) {
	a := e.GetAttribute(name)
	if a == nil {
		return "", false
	}
	return a.Datum, true
}

func (e *Element) DeclareNS(prefix, uri string) {
	ix := slices.IndexFunc(e.Namespaces, func(n NS) bool {
		return n.Prefix == prefix
	})
	if ix >= 0 {
		e.Namespaces[ix].Uri = uri
		return
	}
	e.Namespaces = append(e.Namespaces, NS{Prefix: prefix, Uri: uri})
}

// ResolveNS returns the namespace bound to prefix in the scope of the
// element, walking up its ancestors.
func (e *Element) ResolveNS(prefix string) (string, bool) {
	if prefix == "xml" {
		return NamespaceXML, true
	}
	var curr Node = e
	for curr != nil {
		el, ok := curr.(*Element)
		if !ok {
			break
		}
		for _, n := range el.Namespaces {
			if n.Prefix == prefix {
				return n.Uri, true
			}
		}
		curr = el.Parent()
	}
	if prefix == "" {
		return "", true
	}
	return "", false
}

// InScopeNamespaces returns every namespace declaration visible from the
// element, nearest declarations first.
func (e *Element) InScopeNamespaces() []NS {
	var (
		list []NS
		seen = make(map[string]bool)
		curr Node
	)
	curr = e
	for curr != nil {
		el, ok := curr.(*Element)
		if !ok {
			break
		}
		for _, n := range el.Namespaces {
			if seen[n.Prefix] {
				continue
			}
			seen[n.Prefix] = true
			list = append(list, n)
		}
		curr = el.Parent()
	}
	return list
}

func (e *Element) Elements() []*Element {
	var list []*Element
	for _, n := range e.Nodes {
		if el, ok := n.(*Element); ok {
			list = append(list, el)
		}
	}
	return list
}

func (e *Element) GetElementById(id string) *Element {
	for _, a := range e.Attrs {
		if isIdAttribute(a) && a.Datum == id {
			return e
		}
	}
	for _, n := range e.Nodes {
		el, ok := n.(*Element)
		if !ok {
			continue
		}
		if found := el.GetElementById(id); found != nil {
			return found
		}
	}
	return nil
}

func isIdAttribute(a *Attribute) bool {
	if a.Name != "id" {
		return false
	}
	return (a.Space == "" && a.Uri == "") || a.Uri == NamespaceXML
}

// IsID reports whether attr is treated as an identifier attribute. Without
// DTD validation, the attributes id and xml:id are considered identifiers.
func IsID(attr *Attribute) bool {
	return isIdAttribute(attr)
}

type Text struct {
	Content string
	// Raw text is written without escaping by the writer.
	Raw bool

	BaseNode
}

func NewText(str string) *Text {
	return &Text{
		Content: str,
	}
}

func (_ *Text) Type() NodeType {
	return TypeText
}

func (_ *Text) LocalName() string {
	return ""
}

func (_ *Text) QualifiedName() string {
	return ""
}

func (_ *Text) Leaf() bool {
	return true
}

func (t *Text) Value() string {
	return t.Content
}

func (t *Text) Blank() bool {
	return strings.TrimSpace(t.Content) == ""
}

type Comment struct {
	Content string

	BaseNode
}

func NewComment(str string) *Comment {
	return &Comment{
		Content: str,
	}
}

func (_ *Comment) Type() NodeType {
	return TypeComment
}

func (_ *Comment) LocalName() string {
	return ""
}

func (_ *Comment) QualifiedName() string {
	return ""
}

func (_ *Comment) Leaf() bool {
	return true
}

func (c *Comment) Value() string {
	return c.Content
}

type Instruction struct {
	Name    string
	Content string

	BaseNode
}

func NewInstruction(name, content string) *Instruction {
	return &Instruction{
		Name:    name,
		Content: content,
	}
}

func (_ *Instruction) Type() NodeType {
	return TypeInstruction
}

func (i *Instruction) LocalName() string {
	return i.Name
}

func (i *Instruction) QualifiedName() string {
	return i.Name
}

func (_ *Instruction) Leaf() bool {
	return true
}

func (i *Instruction) Value() string {
	return i.Content
}

func writeValue(str *strings.Builder, node Node) {
	switch n := node.(type) {
	case *Text:
		str.WriteString(n.Content)
	case *Element:
		for _, c := range n.Nodes {
			writeValue(str, c)
		}
	case *Document:
		for _, c := range n.Nodes {
			writeValue(str, c)
		}
	}
}

func Children(node Node) []Node {
	switch n := node.(type) {
	case *Element:
		return n.Nodes
	case *Document:
		return n.Nodes
	default:
		return nil
	}
}

func Attributes(node Node) []*Attribute {
	if el, ok := node.(*Element); ok {
		return el.Attrs
	}
	return nil
}

// Root returns the topmost ancestor of node.
func Root(node Node) Node {
	for node != nil {
		p := node.Parent()
		if p == nil {
			break
		}
		node = p
	}
	return node
}

func DocumentOf(node Node) *Document {
	doc, _ := Root(node).(*Document)
	return doc
}

// Clone makes a deep copy of node. The copy is detached from any parent.
func Clone(node Node) Node {
	switch n := node.(type) {
	case *Document:
		doc := EmptyDocument()
		if n.DocType != nil {
			doc.DocType = n.DocType
		}
		doc.Location = n.Location
		for _, c := range n.Nodes {
			doc.Append(Clone(c))
		}
		return doc
	case *Element:
		el := NewElement(n.QName)
		el.Namespaces = slices.Clone(n.Namespaces)
		for _, a := range n.Attrs {
			el.SetAttribute(NewAttribute(a.QName, a.Datum))
		}
		for _, c := range n.Nodes {
			el.Append(Clone(c))
		}
		return el
	case *Attribute:
		return NewAttribute(n.QName, n.Datum)
	case *Text:
		t := NewText(n.Content)
		t.Raw = n.Raw
		return t
	case *Comment:
		return NewComment(n.Content)
	case *Instruction:
		return NewInstruction(n.Name, n.Content)
	default:
		return nil
	}
}

func nodePath(node Node) []int {
	var list []int
	for node != nil {
		parent := node.Parent()
		switch n := node.(type) {
		case *Document:
			list = append(list, int(n.seq))
		case *Attribute:
			pos := n.Position()
			if el, ok := parent.(*Element); ok {
				pos -= len(el.Attrs)
			}
			list = append(list, pos)
		default:
			list = append(list, node.Position())
		}
		node = parent
	}
	slices.Reverse(list)
	return list
}

func comparePath(p1, p2 []int) int {
	for i := 0; i < len(p1) && i < len(p2); i++ {
		if p1[i] < p2[i] {
			return -1
		} else if p1[i] > p2[i] {
			return 1
		}
	}
	return len(p1) - len(p2)
}

// SortNodes sorts nodes in document order and drops duplicates.
func SortNodes(nodes []Node) []Node {
	if len(nodes) <= 1 {
		return nodes
	}
	type keyed struct {
		node Node
		key  []int
	}
	var (
		list = make([]keyed, 0, len(nodes))
		seen = make(map[Node]struct{})
	)
	for _, n := range nodes {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		list = append(list, keyed{node: n, key: nodePath(n)})
	}
	slices.SortStableFunc(list, func(a, b keyed) int {
		return comparePath(a.key, b.key)
	})
	res := make([]Node, 0, len(list))
	for _, k := range list {
		res = append(res, k.node)
	}
	return res
}
