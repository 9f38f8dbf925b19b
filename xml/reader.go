package xml

import (
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/midbel/docbook/environ"
)

var (
	ErrClosed    = errors.New("closed")
	ErrBreak     = errors.New("break")
	ErrDiscard   = errors.New("discard")
	ErrRecursion = errors.New("recursive inclusion")
	ErrExpansion = errors.New("maximum entity expansion reached")
)

// MaxExpansion is the default number of bytes that entity references of a
// document may expand to.
const MaxExpansion = 16 << 20

type OnElementFunc func(*Reader, *Element) error

type OnTextFunc func(*Reader, string) error

type OnNodeFunc func(*Reader, Node) error

type OnSet struct {
	onOpen  map[QName]OnElementFunc
	onClose map[QName]OnElementFunc
	onNode  map[NodeType]OnNodeFunc
	onText  OnTextFunc
}

type ReaderOption func(*Reader)

// WithResolver sets the resolver used for external DTD subsets, external
// entities and XInclude references.
func WithResolver(res Resolver) ReaderOption {
	return func(r *Reader) {
		if res != nil {
			r.resolver = res
		}
	}
}

// WithMaxExpansion limits the number of bytes that entity references may
// expand to. Zero or less removes the limit.
func WithMaxExpansion(size int) ReaderOption {
	return func(r *Reader) {
		r.maxExpansion = size
	}
}

func WithXInclude(aware bool) ReaderOption {
	return func(r *Reader) {
		r.xinclude = aware
	}
}

// WithLocation gives the location of the input. It is the base of relative
// references.
func WithLocation(location string) ReaderOption {
	return func(r *Reader) {
		r.location = location
	}
}

type frame struct {
	scan     *Scanner
	location string
	entity   string
}

type event struct {
	node   Node
	closed bool
}

// Reader is a pull parser. Each call to Read returns the next node of the
// document in document order. Elements are returned twice: when their start
// tag is read, with a nil error, and when their end tag is read, with
// ErrClosed. Read returns io.EOF once the document is exhausted.
type Reader struct {
	input io.Reader
	ready bool
	err   error

	frames  []*frame
	curr    Token
	pending bool

	expanded     int
	maxExpansion int

	resolver Resolver
	xinclude bool
	location string

	doctype    *DocType
	params     map[string]*Entity
	version    string
	encoding   string
	standalone string

	namespaces environ.Environ[string]
	stack      []*Element
	closing    *Element
	queue      []event
	seenRoot   bool
	active     map[string]bool
	including  []string

	handlers []OnSet
}

func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	rs := Reader{
		input:    r,
		resolver: DefaultResolver(nil),
		params:   make(map[string]*Entity),
		active:   make(map[string]bool),

		maxExpansion: MaxExpansion,
	}
	for _, o := range opts {
		o(&rs)
	}
	rs.namespaces = environ.Empty[string]()
	rs.namespaces.Define("xml", NamespaceXML)
	rs.namespaces.Define("", "")
	rs.Push()
	return &rs
}

func (r *Reader) Location() string {
	return r.location
}

func (r *Reader) DocType() *DocType {
	return r.doctype
}

func (r *Reader) Start() error {
	for {
		node, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !errors.Is(err, ErrClosed) {
			return err
		}
		closed := errors.Is(err, ErrClosed)

		if err := r.dispatch(node, closed); err != nil {
			if errors.Is(err, ErrBreak) {
				break
			}
			if errors.Is(err, ErrDiscard) && !closed {
				if err := r.discard(node); err != nil {
					return err
				}
				continue
			}
			return err
		}
	}
	return nil
}

func (r *Reader) OnText(fn OnTextFunc) {
	if i := len(r.handlers) - 1; i >= 0 {
		r.handlers[i].onText = fn
	}
}

func (r *Reader) OnOpen(name QName, fn OnElementFunc) {
	if i := len(r.handlers) - 1; i >= 0 {
		r.handlers[i].onOpen[handlerKey(name)] = fn
	}
}

func (r *Reader) OnClose(name QName, fn OnElementFunc) {
	if i := len(r.handlers) - 1; i >= 0 {
		r.handlers[i].onClose[handlerKey(name)] = fn
	}
}

func (r *Reader) OnNode(kind NodeType, fn OnNodeFunc) {
	if i := len(r.handlers) - 1; i >= 0 {
		r.handlers[i].onNode[kind] = fn
	}
}

func (r *Reader) Push() {
	s := OnSet{
		onOpen:  make(map[QName]OnElementFunc),
		onClose: make(map[QName]OnElementFunc),
		onNode:  make(map[NodeType]OnNodeFunc),
	}
	r.handlers = append(r.handlers, s)
}

func (r *Reader) Pop() {
	if i := len(r.handlers); i > 1 {
		r.handlers = r.handlers[:i-1]
	}
}

func handlerKey(name QName) QName {
	return ExpandedName(name.Name, "", name.Uri)
}

func (r *Reader) dispatch(node Node, closed bool) error {
	if !closed {
		if err := r.dispatchNode(node); err != nil {
			return err
		}
	}
	var err error
	switch e := node.(type) {
	case *Element:
		if closed {
			err = r.dispatchClose(e)
		} else {
			err = r.dispatchOpen(e)
		}
	case *Text:
		err = r.dispatchText(e.Content)
	default:
	}
	return err
}

func (r *Reader) dispatchNode(node Node) error {
	for i := len(r.handlers) - 1; i >= 0; i-- {
		fn, ok := r.handlers[i].onNode[node.Type()]
		if ok {
			return fn(r, node)
		}
	}
	return nil
}

func (r *Reader) dispatchOpen(elem *Element) error {
	key := handlerKey(elem.QName)
	for i := len(r.handlers) - 1; i >= 0; i-- {
		fn, ok := r.handlers[i].onOpen[key]
		if ok {
			return fn(r, elem)
		}
	}
	return nil
}

func (r *Reader) dispatchClose(elem *Element) error {
	key := handlerKey(elem.QName)
	for i := len(r.handlers) - 1; i >= 0; i-- {
		fn, ok := r.handlers[i].onClose[key]
		if ok {
			return fn(r, elem)
		}
	}
	return nil
}

func (r *Reader) dispatchText(str string) error {
	for i := len(r.handlers) - 1; i >= 0; i-- {
		fn := r.handlers[i].onText
		if fn != nil {
			return fn(r, str)
		}
	}
	return nil
}

func (r *Reader) discard(node Node) error {
	if _, ok := node.(*Element); !ok {
		return nil
	}
	for depth := 1; depth > 0; {
		n, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			if errors.Is(err, ErrClosed) {
				depth--
				continue
			}
			return err
		}
		if _, ok := n.(*Element); ok {
			depth++
		}
	}
	return nil
}

func (r *Reader) Read() (Node, error) {
	if err := r.init(); err != nil {
		return nil, err
	}
	for {
		if len(r.queue) > 0 {
			ev := r.queue[0]
			r.queue = r.queue[1:]
			if ev.closed {
				return ev.node, ErrClosed
			}
			return ev.node, nil
		}
		node, err := r.read()
		if err != nil {
			return node, err
		}
		el, ok := node.(*Element)
		if !ok || !r.xinclude || !isInclude(el) {
			return node, nil
		}
		if err := r.include(el); err != nil {
			return nil, err
		}
	}
}

func (r *Reader) init() error {
	if r.ready {
		return r.err
	}
	r.ready = true
	if r.input == nil {
		r.err = fmt.Errorf("no input given")
		return r.err
	}
	data, err := io.ReadAll(r.input)
	if err != nil {
		r.err = err
		return err
	}
	str, err := decodeInput(data)
	if err != nil {
		r.err = r.wrapError("document", err)
		return r.err
	}
	r.pushFrame(normalizeNewlines(str), r.location, "")
	return nil
}

func (r *Reader) read() (Node, error) {
	if r.closing != nil {
		el := r.closing
		r.closing = nil
		r.leave(el)
		return el, ErrClosed
	}
	for {
		if r.pending {
			r.pending = false
		} else {
			r.next()
		}
		switch r.curr.Type {
		case EOF:
			if n := len(r.stack); n > 0 {
				return nil, r.createError(r.stack[n-1].QualifiedName(), "element not closed at end of document")
			}
			if !r.seenRoot {
				return nil, r.createError("document", "root element is missing")
			}
			return nil, io.EOF
		case Invalid:
			return nil, r.createError("document", r.curr.Literal)
		case Literal, Cdata:
			if len(r.stack) == 0 {
				if strings.TrimSpace(r.curr.Literal) != "" {
					return nil, r.createError("document", "text found outside of root element")
				}
				continue
			}
			node, err := r.readText()
			if err != nil || node != nil {
				return node, err
			}
		case EntityRef:
			if len(r.stack) == 0 {
				return nil, r.createError("document", "entity reference found outside of root element")
			}
			node, err := r.readText()
			if err != nil || node != nil {
				return node, err
			}
		case CommentTag:
			return NewComment(r.curr.Literal), nil
		case ProcInstTag:
			name, content := splitInstruction(r.curr.Literal)
			if strings.EqualFold(name, "xml") {
				if err := r.readDeclaration(content); err != nil {
					return nil, err
				}
				continue
			}
			return NewInstruction(name, content), nil
		case DocTypeTag:
			if r.doctype != nil || r.seenRoot {
				return nil, r.createError("doctype", "unexpected document type declaration")
			}
			if err := r.readDocType(r.curr.Literal); err != nil {
				return nil, err
			}
		case OpenTag:
			return r.readStartElement()
		case CloseTag:
			return r.readEndElement()
		default:
			return nil, r.createError("document", fmt.Sprintf("unexpected token %s", r.curr))
		}
	}
}

func (r *Reader) readDeclaration(content string) error {
	if r.seenRoot || len(r.frames) > 1 {
		return r.createError("prolog", "xml declaration not at start of document")
	}
	attrs := parsePseudoAttributes(content)
	r.version = attrs["version"]
	r.encoding = attrs["encoding"]
	r.standalone = attrs["standalone"]
	if r.version != "" && !strings.HasPrefix(r.version, "1.") {
		return r.createError("prolog", fmt.Sprintf("%s: unsupported xml version", r.version))
	}
	return nil
}

func (r *Reader) readStartElement() (Node, error) {
	type rawAttr struct {
		QName
		value string
	}
	r.next()
	var qn QName
	if r.is(Namespace) {
		qn.Space = r.curr.Literal
		r.next()
	}
	if !r.is(Name) {
		return nil, r.createError("element", "name is missing")
	}
	qn.Name = r.curr.Literal
	r.next()

	var attrs []rawAttr
	for !r.is(EndTag) && !r.is(EmptyElemTag) {
		var a rawAttr
		if r.is(Namespace) {
			a.Space = r.curr.Literal
			r.next()
		}
		if !r.is(Attr) {
			if r.is(Invalid) {
				return nil, r.createError(qn.QualifiedName(), r.curr.Literal)
			}
			return nil, r.createError(qn.QualifiedName(), "attribute name expected")
		}
		a.Name = r.curr.Literal
		r.next()
		if !r.is(Literal) {
			if r.is(Invalid) {
				return nil, r.createError(qn.QualifiedName(), r.curr.Literal)
			}
			return nil, r.createError(qn.QualifiedName(), "attribute value is missing")
		}
		a.value = r.curr.Literal
		r.next()
		attrs = append(attrs, a)
	}
	empty := r.is(EmptyElemTag)

	if len(r.stack) == 0 {
		if r.seenRoot {
			return nil, r.createError(qn.QualifiedName(), "document has more than one root element")
		}
		r.seenRoot = true
	}
	if len(r.stack) >= MaxDepth {
		return nil, r.createError(qn.QualifiedName(), "maximum depth reached")
	}

	elem := NewElement(qn)
	scope := environ.Enclosed(r.namespaces)
	for _, a := range attrs {
		switch {
		case a.Space == "" && a.Name == "xmlns":
			elem.DeclareNS("", a.value)
			scope.Define("", a.value)
		case a.Space == "xmlns":
			elem.DeclareNS(a.Name, a.value)
			scope.Define(a.Name, a.value)
		}
	}
	r.namespaces = scope

	uri, err := r.namespaces.Resolve(qn.Space)
	if err != nil {
		return nil, r.createError(qn.QualifiedName(), fmt.Sprintf("%s: undeclared namespace prefix", qn.Space))
	}
	elem.Uri = uri
	for _, a := range attrs {
		if a.Name == "xmlns" && a.Space == "" || a.Space == "xmlns" {
			continue
		}
		if a.Space != "" {
			uri, err := r.namespaces.Resolve(a.Space)
			if err != nil {
				return nil, r.createError(qn.QualifiedName(), fmt.Sprintf("%s: undeclared namespace prefix", a.Space))
			}
			a.Uri = uri
		}
		if elem.GetAttributeNS(a.QName) != nil {
			return nil, r.createError(qn.QualifiedName(), fmt.Sprintf("%s: attribute is already defined", a.QualifiedName()))
		}
		elem.SetAttribute(NewAttribute(a.QName, a.value))
	}
	r.stack = append(r.stack, elem)
	if empty {
		r.closing = elem
	}
	return elem, nil
}

func (r *Reader) readEndElement() (Node, error) {
	r.next()
	var qn QName
	if r.is(Namespace) {
		qn.Space = r.curr.Literal
		r.next()
	}
	if !r.is(Name) {
		return nil, r.createError("element", "name is missing")
	}
	qn.Name = r.curr.Literal
	r.next()
	if !r.is(EndTag) {
		return nil, r.createError(qn.QualifiedName(), "end of element expected")
	}
	n := len(r.stack)
	if n == 0 {
		return nil, r.createError(qn.QualifiedName(), "unexpected end tag")
	}
	elem := r.stack[n-1]
	if elem.QualifiedName() != qn.QualifiedName() {
		msg := fmt.Sprintf("end tag mismatched: expected </%s>", elem.QualifiedName())
		return nil, r.createError(qn.QualifiedName(), msg)
	}
	r.leave(elem)
	return elem, ErrClosed
}

func (r *Reader) leave(_ *Element) {
	if n := len(r.stack); n > 0 {
		r.stack = r.stack[:n-1]
	}
	if u, ok := r.namespaces.(interface{ Unwrap() environ.Environ[string] }); ok {
		r.namespaces = u.Unwrap()
	}
}

// readText merges the character data and the entity references that follow
// each other into one text node. The token ending the text is kept for the
// next call to read. A nil node is returned when nothing was produced.
func (r *Reader) readText() (Node, error) {
	var str strings.Builder
	for {
		switch r.curr.Type {
		case Literal, Cdata:
			str.WriteString(r.curr.Literal)
		case EntityRef:
			text, err := r.pushEntity(r.curr.Literal)
			if err != nil {
				return nil, err
			}
			str.WriteString(text)
		default:
			r.pending = true
			if str.Len() == 0 {
				return nil, nil
			}
			return NewText(str.String()), nil
		}
		r.next()
	}
}

// pushEntity expands the entity name. The replacement text of an entity
// declared in the document type is scanned next while the text of an HTML
// character reference is returned.
func (r *Reader) pushEntity(name string) (string, error) {
	var ent *Entity
	if r.doctype != nil {
		ent = r.doctype.Entities[name]
	}
	if ent == nil {
		if str, ok := htmlEntity(name); ok {
			return str, nil
		}
		return "", r.createError("entity", fmt.Sprintf("%s: undefined entity", name))
	}
	if ent.Unparsed() {
		return "", r.createError("entity", fmt.Sprintf("%s: reference to unparsed entity", name))
	}
	if r.active[name] {
		return "", r.createError("entity", fmt.Sprintf("%s: recursive entity reference", name))
	}
	if len(r.frames) >= MaxDepth {
		return "", r.createError("entity", "maximum entity depth reached")
	}
	text, location, err := r.entityText(ent)
	if err != nil {
		return "", r.wrapError("entity", err)
	}
	if err := r.charge(len(text)); err != nil {
		return "", r.wrapError("entity", fmt.Errorf("%s: %w", name, err))
	}
	r.pushFrame(text, location, name)
	return "", nil
}

// charge adds size to the expansion budget of the document.
func (r *Reader) charge(size int) error {
	r.expanded += size
	if r.maxExpansion > 0 && r.expanded > r.maxExpansion {
		return ErrExpansion
	}
	return nil
}

// htmlEntity looks name up in the set of HTML named character references.
func htmlEntity(name string) (string, bool) {
	ref := "&" + name + ";"
	str := html.UnescapeString(ref)
	if str == ref || strings.HasSuffix(str, ";") {
		return "", false
	}
	return str, true
}

func (r *Reader) entityText(ent *Entity) (string, string, error) {
	if !ent.External() {
		return ent.Value, r.base(), nil
	}
	location := r.locateExternal(ent.PublicID, ent.SystemID, ent.Base)
	if location == "" {
		return "", "", fmt.Errorf("%s: %w", ent.Name, ErrUnresolved)
	}
	text, err := r.load(location)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", ent.Name, err)
	}
	return stripTextDeclaration(text), location, nil
}

// attributeEntity expands a general entity referenced from an attribute
// value. Only internal entities are allowed there.
func (r *Reader) attributeEntity(name string) (string, error) {
	var ent *Entity
	if r.doctype != nil {
		ent = r.doctype.Entities[name]
	}
	if ent == nil {
		if str, ok := htmlEntity(name); ok {
			return str, nil
		}
		return "", fmt.Errorf("%s: undefined entity", name)
	}
	if ent.External() {
		return "", fmt.Errorf("%s: external entity referenced in attribute value", name)
	}
	if r.active[name] {
		return "", fmt.Errorf("%s: recursive entity reference", name)
	}
	r.active[name] = true
	defer delete(r.active, name)

	var (
		str  = ent.Value
		buf  strings.Builder
		curr = 0
	)
	for curr < len(str) {
		ix := strings.IndexByte(str[curr:], ampersand)
		if ix < 0 {
			buf.WriteString(str[curr:])
			break
		}
		buf.WriteString(str[curr : curr+ix])
		curr += ix
		end := strings.IndexByte(str[curr:], semicolon)
		if end < 0 {
			return "", fmt.Errorf("%s: invalid entity reference in replacement text", name)
		}
		ref := str[curr+1 : curr+end]
		curr += end + 1
		if v, ok := predefined[ref]; ok {
			buf.WriteString(v)
			continue
		}
		if strings.HasPrefix(ref, "#") {
			char, ok := resolveCharRef(ref[1:])
			if !ok {
				return "", fmt.Errorf("&%s;: invalid character reference", ref)
			}
			buf.WriteRune(char)
			continue
		}
		v, err := r.attributeEntity(ref)
		if err != nil {
			return "", err
		}
		buf.WriteString(v)
	}
	if err := r.charge(buf.Len()); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return buf.String(), nil
}

func (r *Reader) pushFrame(text, location, entity string) {
	scan := Scan(text)
	scan.entities = r.attributeEntity
	f := frame{
		scan:     scan,
		location: location,
		entity:   entity,
	}
	if entity != "" {
		r.active[entity] = true
	}
	r.frames = append(r.frames, &f)
}

func (r *Reader) next() {
	for {
		n := len(r.frames)
		if n == 0 {
			r.curr = Token{Type: EOF}
			return
		}
		top := r.frames[n-1]
		r.curr = top.scan.Scan()
		if r.curr.Type != EOF || n == 1 {
			return
		}
		r.frames = r.frames[:n-1]
		delete(r.active, top.entity)
	}
}

// base returns the location that relative references found at the current
// position are resolved against.
func (r *Reader) base() string {
	for i := len(r.frames) - 1; i >= 0; i-- {
		if loc := r.frames[i].location; loc != "" {
			return loc
		}
	}
	return r.location
}

func (r *Reader) locateExternal(publicID, systemID, base string) string {
	if base == "" {
		base = r.base()
	}
	if loc, ok := r.resolver.Resolve(publicID, systemID); ok {
		return loc
	}
	if systemID == "" {
		return ""
	}
	abs := JoinLocation(base, systemID)
	if abs != systemID {
		if loc, ok := r.resolver.Resolve(publicID, abs); ok {
			return loc
		}
	}
	return abs
}

func (r *Reader) load(location string) (string, error) {
	rc, err := r.resolver.Open(location)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	str, err := decodeInput(data)
	if err != nil {
		return "", err
	}
	return normalizeNewlines(str), nil
}

func (r *Reader) is(kind rune) bool {
	return r.curr.Type == kind
}

func (r *Reader) currentFile() string {
	if n := len(r.frames); n > 0 {
		if f := r.frames[n-1]; f.entity != "" {
			return fmt.Sprintf("%s(&%s;)", r.location, f.entity)
		}
	}
	return r.location
}

func (r *Reader) createError(elem, msg string) error {
	return createParseError(r.currentFile(), elem, msg, r.curr.Position)
}

func (r *Reader) wrapError(elem string, err error) error {
	return ParseError{
		Position: r.curr.Position,
		File:     r.currentFile(),
		Element:  elem,
		Message:  err.Error(),
		Err:      err,
	}
}

func splitInstruction(str string) (string, string) {
	str = strings.TrimLeft(str, " \t\n")
	ix := strings.IndexAny(str, " \t\n")
	if ix < 0 {
		return str, ""
	}
	return str[:ix], strings.TrimLeft(str[ix:], " \t\n")
}

func stripTextDeclaration(str string) string {
	if !strings.HasPrefix(str, "<?xml") || len(str) < 6 || !isBlank(rune(str[5])) {
		return str
	}
	if ix := strings.Index(str, "?>"); ix >= 0 {
		return str[ix+2:]
	}
	return str
}
