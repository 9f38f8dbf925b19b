package xslt

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/midbel/docbook/xml"
	"github.com/midbel/docbook/xpath"
)

const (
	XslVersion   = "1.0"
	XslVendor    = "midbel"
	XslVendorUrl = "https://github.com/midbel/docbook"
)

const (
	xsltNamespaceUri  = "http://www.w3.org/1999/XSL/Transform"
	exslNamespaceUri  = "http://exslt.org/common"
	msxslNamespaceUri = "urn:schemas-microsoft-com:xslt"
)

// MaxDepth limits the nesting of template invocations.
const MaxDepth = 5000

// Output holds the serialization settings given by xsl:output.
type Output struct {
	Method        string
	Encoding      string
	Indent        bool
	OmitProlog    bool
	Standalone    bool
	DoctypePublic string
	DoctypeSystem string
	MediaType     string
}

// DocumentFunc opens the destination of a secondary result document created
// with exsl:document. href is the value of the href attribute as computed by
// the stylesheet.
type DocumentFunc func(href string) (io.WriteCloser, error)

type module struct {
	location   string
	precedence int
	// min is the lowest precedence of the modules imported, directly or not,
	// by this module.
	min int
}

type global struct {
	node       *xml.Element
	param      bool
	precedence int
}

type key struct {
	match *xpath.Pattern
	use   *xpath.Query
}

type spaceRule struct {
	test       *xpath.Pattern
	strip      bool
	precedence int
}

type Stylesheet struct {
	Location string
	Output   Output

	Tracer
	Logger    *slog.Logger
	Documents DocumentFunc

	resolver xml.Resolver
	root     *xml.Element
	modules  map[string]*xml.Document
	loading  []string

	precedence int
	position   int

	modes      map[string][]*rule
	named      map[string]*Template
	globals    map[string]*global
	params     map[string]xpath.Sequence
	keys       map[string][]*key
	attrSets   map[string][]*xml.Element
	spaces     []*spaceRule
	formats    map[string]*decimalFormat
	extensions map[string]bool
	functions  map[string]xpath.Func

	compiled map[*xml.Element]*compiled
}

// Load reads and compiles the stylesheet found at location and every module
// it imports or includes. Locations are opened and resolved with resolver.
func Load(location string, resolver xml.Resolver) (*Stylesheet, error) {
	if resolver == nil {
		resolver = xml.DefaultResolver(nil)
	}
	sheet := Stylesheet{
		Location:   location,
		Tracer:     NoopTracer(),
		Logger:     slog.Default(),
		resolver:   resolver,
		modules:    make(map[string]*xml.Document),
		modes:      make(map[string][]*rule),
		named:      make(map[string]*Template),
		globals:    make(map[string]*global),
		params:     make(map[string]xpath.Sequence),
		keys:       make(map[string][]*key),
		attrSets:   make(map[string][]*xml.Element),
		formats:    make(map[string]*decimalFormat),
		extensions: make(map[string]bool),
		functions:  make(map[string]xpath.Func),
		compiled:   make(map[*xml.Element]*compiled),
	}
	sheet.formats[""] = defaultDecimalFormat()
	if err := sheet.importModule(location); err != nil {
		return nil, err
	}
	if doc, ok := sheet.modules[location]; ok {
		sheet.root = doc.Root()
	}
	return &sheet, nil
}

// SetParam gives a value to a global parameter. Values are strings, numbers,
// booleans, nodes or sequences. Names that the stylesheet does not declare
// are accepted and ignored.
func (s *Stylesheet) SetParam(name string, value any) {
	var seq xpath.Sequence
	switch v := value.(type) {
	case xpath.Sequence:
		seq = v
	default:
		seq = xpath.Singleton(value)
		if seq == nil {
			seq = xpath.NewString(fmt.Sprint(value))
		}
	}
	s.params[name] = seq
}

// Params returns the names of the global parameters declared by the
// stylesheet.
func (s *Stylesheet) Params() []string {
	var list []string
	for name, g := range s.globals {
		if g.param {
			list = append(list, name)
		}
	}
	slices.Sort(list)
	return list
}

// DefineFunc registers an extension function callable from expressions as
// prefix:name where prefix is bound to uri.
func (s *Stylesheet) DefineFunc(uri, name string, fn xpath.Func) {
	qn := xml.ExpandedName(name, "", uri)
	s.functions[qn.ExpandedName()] = fn
}

// Modules returns the locations of the modules making the stylesheet.
func (s *Stylesheet) Modules() []string {
	list := slices.Collect(maps.Keys(s.modules))
	slices.Sort(list)
	return list
}

func (s *Stylesheet) locate(base, href string) string {
	loc, _ := xml.Locate(s.resolver, base, href)
	return loc
}

func (s *Stylesheet) parseModule(location string) (*xml.Element, error) {
	if doc, ok := s.modules[location]; ok {
		return doc.Root(), nil
	}
	r, err := s.resolver.Open(location)
	if err != nil {
		if location != s.Location {
			return nil, compileError(location, "", "", err)
		}
		return nil, err
	}
	defer r.Close()

	p := xml.NewParser(r, xml.WithResolver(s.resolver), xml.WithLocation(location))
	p.OmitComment = true
	doc, err := p.Parse()
	if err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil {
		return nil, compileError(location, "", "", fmt.Errorf("empty stylesheet"))
	}
	if !isXslt(root, "stylesheet") && !isXslt(root, "transform") {
		root, err = simplified(doc, root)
		if err != nil {
			return nil, compileError(location, root.QualifiedName(), "", err)
		}
	}
	stripStylesheet(root, false)
	s.modules[location] = doc
	return root, nil
}

func (s *Stylesheet) enter(location string) error {
	if slices.Contains(s.loading, location) {
		return compileError(location, "", "href", fmt.Errorf("%w: %s loaded recursively", ErrCircular, location))
	}
	s.loading = append(s.loading, location)
	return nil
}

func (s *Stylesheet) leave() {
	s.loading = s.loading[:len(s.loading)-1]
}

// importModule loads the module at location after the modules it imports.
// Precedences are given in post order so that an importing module always
// wins over the modules it imports.
func (s *Stylesheet) importModule(location string) error {
	if err := s.enter(location); err != nil {
		return err
	}
	defer s.leave()

	root, err := s.parseModule(location)
	if err != nil {
		return err
	}
	min := s.precedence + 1
	if err := s.loadImports(root, location); err != nil {
		return err
	}
	s.precedence++
	m := module{
		location:   location,
		precedence: s.precedence,
		min:        min,
	}
	return s.declare(m, root)
}

func (s *Stylesheet) loadImports(root *xml.Element, location string) error {
	for _, el := range root.Elements() {
		if !isXslt(el, "import") && !isXslt(el, "include") {
			continue
		}
		href, err := getAttribute(el, "href")
		if err != nil {
			return compileError(location, el.QualifiedName(), "href", err)
		}
		loc := s.locate(location, href)
		if el.Name == "import" {
			if err := s.importModule(loc); err != nil {
				return err
			}
			continue
		}
		if err := s.enter(loc); err != nil {
			return err
		}
		other, err := s.parseModule(loc)
		if err == nil {
			err = s.loadImports(other, loc)
		}
		s.leave()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Stylesheet) declare(m module, root *xml.Element) error {
	if str, ok := attrValue(root, "extension-element-prefixes"); ok {
		s.registerExtensions(root, str)
	}
	for _, el := range root.Elements() {
		if el.Uri != xsltNamespaceUri {
			continue
		}
		var err error
		switch el.Name {
		case "import":
		case "include":
			err = s.includeModule(m, el)
		case "output":
			s.loadOutput(el)
		case "param", "variable":
			err = s.loadGlobal(m, el)
		case "template":
			err = s.loadTemplate(m, el)
		case "key":
			err = s.loadKey(m, el)
		case "attribute-set":
			err = s.loadAttributeSet(m, el)
		case "strip-space", "preserve-space":
			err = s.loadSpace(m, el)
		case "decimal-format":
			err = s.loadDecimalFormat(m, el)
		case "namespace-alias":
		default:
			s.Logger.Debug("unknown top level element ignored", "element", el.QualifiedName(), "location", m.location)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Stylesheet) includeModule(m module, el *xml.Element) error {
	href, err := getAttribute(el, "href")
	if err != nil {
		return compileError(m.location, el.QualifiedName(), "href", err)
	}
	loc := s.locate(m.location, href)
	if err := s.enter(loc); err != nil {
		return err
	}
	defer s.leave()

	root, err := s.parseModule(loc)
	if err != nil {
		return err
	}
	m.location = loc
	return s.declare(m, root)
}

func (s *Stylesheet) registerExtensions(el *xml.Element, str string) {
	for _, prefix := range strings.Fields(str) {
		if prefix == "#default" {
			prefix = ""
		}
		if uri, ok := el.ResolveNS(prefix); ok && uri != "" {
			s.extensions[uri] = true
		}
	}
}

func (s *Stylesheet) loadOutput(el *xml.Element) {
	for _, a := range el.Attrs {
		if a.Uri != "" {
			continue
		}
		switch value := a.Datum; a.Name {
		case "method":
			s.Output.Method = value
		case "encoding":
			s.Output.Encoding = value
		case "indent":
			s.Output.Indent = value == "yes"
		case "omit-xml-declaration":
			s.Output.OmitProlog = value == "yes"
		case "standalone":
			s.Output.Standalone = value == "yes"
		case "doctype-public":
			s.Output.DoctypePublic = value
		case "doctype-system":
			s.Output.DoctypeSystem = value
		case "media-type":
			s.Output.MediaType = value
		default:
		}
	}
}

func (s *Stylesheet) loadGlobal(m module, el *xml.Element) error {
	if err := s.compileTree(m.location, el); err != nil {
		return err
	}
	ident, err := s.nameAttribute(m, el, "name")
	if err != nil {
		return err
	}
	if g, ok := s.globals[ident]; ok && g.precedence > m.precedence {
		return nil
	}
	s.globals[ident] = &global{
		node:       el,
		param:      el.Name == "param",
		precedence: m.precedence,
	}
	return nil
}

func (s *Stylesheet) loadTemplate(m module, el *xml.Element) error {
	if err := s.compileTree(m.location, el); err != nil {
		return err
	}
	s.position++
	tpl := Template{
		node:       el,
		location:   m.location,
		precedence: m.precedence,
		min:        m.min,
		position:   s.position,
	}
	if _, ok := attrValue(el, "name"); ok {
		name, err := s.nameAttribute(m, el, "name")
		if err != nil {
			return err
		}
		tpl.Name = name
	}
	if _, ok := attrValue(el, "mode"); ok {
		mode, err := s.nameAttribute(m, el, "mode")
		if err != nil {
			return err
		}
		tpl.Mode = mode
	}
	if str, ok := attrValue(el, "priority"); ok {
		prio, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return compileError(m.location, el.QualifiedName(), "priority", err)
		}
		tpl.Priority = prio
		tpl.explicit = true
	}
	tpl.Match = s.compiled[el].patterns["match"]
	if tpl.Match == nil && tpl.Name == "" {
		return compileError(m.location, el.QualifiedName(), "", fmt.Errorf("template without match nor name"))
	}
	for i, n := range el.Nodes {
		if c, ok := n.(*xml.Element); ok && isXslt(c, "param") {
			if _, err := s.nameAttribute(m, c, "name"); err != nil {
				return err
			}
			tpl.Params = append(tpl.Params, c)
			continue
		}
		tpl.Body = el.Nodes[i:]
		break
	}
	if tpl.Name != "" {
		if other, ok := s.named[tpl.Name]; !ok || other.precedence <= tpl.precedence {
			s.named[tpl.Name] = &tpl
		}
	}
	if tpl.Match == nil {
		return nil
	}
	for _, p := range tpl.Match.Split() {
		r := rule{
			Template: &tpl,
			pattern:  p,
			priority: p.Priority(),
		}
		if tpl.explicit {
			r.priority = tpl.Priority
		}
		s.modes[tpl.Mode] = append(s.modes[tpl.Mode], &r)
	}
	return nil
}

func (s *Stylesheet) loadKey(m module, el *xml.Element) error {
	if err := s.compileTree(m.location, el); err != nil {
		return err
	}
	ident, err := s.nameAttribute(m, el, "name")
	if err != nil {
		return err
	}
	var (
		c = s.compiled[el]
		k key
	)
	if k.match = c.patterns["match"]; k.match == nil {
		return compileError(m.location, el.QualifiedName(), "match", fmt.Errorf("missing attribute"))
	}
	if k.use = c.queries["use"]; k.use == nil {
		return compileError(m.location, el.QualifiedName(), "use", fmt.Errorf("missing attribute"))
	}
	s.keys[ident] = append(s.keys[ident], &k)
	return nil
}

func (s *Stylesheet) loadAttributeSet(m module, el *xml.Element) error {
	if err := s.compileTree(m.location, el); err != nil {
		return err
	}
	ident, err := s.nameAttribute(m, el, "name")
	if err != nil {
		return err
	}
	for _, c := range el.Elements() {
		if !isXslt(c, "attribute") {
			return compileError(m.location, el.QualifiedName(), "", fmt.Errorf("%s: xsl:attribute expected", c.QualifiedName()))
		}
	}
	s.attrSets[ident] = append(s.attrSets[ident], el)
	return nil
}

func (s *Stylesheet) loadSpace(m module, el *xml.Element) error {
	str, err := getAttribute(el, "elements")
	if err != nil {
		return compileError(m.location, el.QualifiedName(), "elements", err)
	}
	for _, name := range strings.Fields(str) {
		p, err := xpath.CompilePattern(name, xpath.WithNamespaces(el.ResolveNS))
		if err != nil {
			return compileError(m.location, el.QualifiedName(), "elements", err)
		}
		r := spaceRule{
			test:       p,
			strip:      el.Name == "strip-space",
			precedence: m.precedence,
		}
		s.spaces = append(s.spaces, &r)
	}
	return nil
}

func (s *Stylesheet) loadDecimalFormat(m module, el *xml.Element) error {
	var (
		name string
		err  error
	)
	if _, ok := attrValue(el, "name"); ok {
		if name, err = s.nameAttribute(m, el, "name"); err != nil {
			return err
		}
	}
	df, err := createDecimalFormat(el)
	if err != nil {
		return compileError(m.location, el.QualifiedName(), "", err)
	}
	s.formats[name] = df
	return nil
}

func (s *Stylesheet) nameAttribute(m module, el *xml.Element, attr string) (string, error) {
	str, err := getAttribute(el, attr)
	if err != nil {
		return "", compileError(m.location, el.QualifiedName(), attr, err)
	}
	ident, err := expandName(el, str)
	if err != nil {
		return "", compileError(m.location, el.QualifiedName(), attr, err)
	}
	return ident, nil
}

func (s *Stylesheet) compileTree(location string, el *xml.Element) error {
	c, attr, err := compileElement(el)
	if err != nil {
		return compileError(location, el.QualifiedName(), attr, err)
	}
	s.compiled[el] = c
	for _, n := range el.Elements() {
		if err := s.compileTree(location, n); err != nil {
			return err
		}
	}
	return nil
}

// simplified turns a literal result element used as stylesheet into a
// stylesheet with a single template matching the root node.
func simplified(doc *xml.Document, root *xml.Element) (*xml.Element, error) {
	if root.GetAttributeNS(xml.ExpandedName("version", "", xsltNamespaceUri)) == nil {
		return root, fmt.Errorf("not a stylesheet: xsl:version attribute missing")
	}
	var (
		sheet = xml.NewElement(xml.ExpandedName("stylesheet", "xsl", xsltNamespaceUri))
		tpl   = xml.NewElement(xml.ExpandedName("template", "xsl", xsltNamespaceUri))
	)
	sheet.Namespaces = slices.Clone(root.Namespaces)
	sheet.SetAttribute(xml.NewAttribute(xml.LocalName("version"), XslVersion))
	tpl.SetAttribute(xml.NewAttribute(xml.LocalName("match"), "/"))
	tpl.Append(root)
	sheet.Append(tpl)

	doc.Nodes = nil
	doc.Append(sheet)
	return sheet, nil
}

// stripStylesheet removes white space only text nodes except in xsl:text and
// in the scope of xml:space="preserve".
func stripStylesheet(el *xml.Element, preserve bool) {
	if a := el.GetAttributeNS(xml.ExpandedName("space", "xml", xml.NamespaceXML)); a != nil {
		preserve = a.Datum == "preserve"
	}
	if isXslt(el, "text") {
		return
	}
	nodes := slices.Clone(el.Nodes)
	el.Nodes = el.Nodes[:0]
	for _, n := range nodes {
		switch c := n.(type) {
		case *xml.Text:
			if c.Blank() && !preserve {
				continue
			}
		case *xml.Element:
			stripStylesheet(c, preserve)
		case *xml.Comment, *xml.Instruction:
			continue
		}
		el.Append(n)
	}
}

func isXslt(el *xml.Element, name string) bool {
	return el.Uri == xsltNamespaceUri && el.Name == name
}

func expandName(el *xml.Element, name string) (string, error) {
	qn, err := xml.ParseName(strings.TrimSpace(name))
	if err != nil {
		return "", err
	}
	if qn.Space != "" {
		uri, ok := el.ResolveNS(qn.Space)
		if !ok {
			return "", fmt.Errorf("%s: undeclared namespace prefix", qn.Space)
		}
		qn.Uri = uri
	}
	return qn.ExpandedName(), nil
}

// attrValue gives the value of an attribute without namespace.
func attrValue(el *xml.Element, ident string) (string, bool) {
	a := el.GetAttributeNS(xml.LocalName(ident))
	if a == nil {
		return "", false
	}
	return a.Datum, true
}

func getAttribute(el *xml.Element, ident string) (string, error) {
	str, ok := attrValue(el, ident)
	if !ok {
		return "", fmt.Errorf("%s: missing attribute %q", el.QualifiedName(), ident)
	}
	return str, nil
}
