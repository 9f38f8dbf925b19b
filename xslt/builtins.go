package xslt

import (
	"fmt"
	"strings"

	"github.com/midbel/docbook/environ"
	"github.com/midbel/docbook/xml"
	"github.com/midbel/docbook/xpath"
)

// builtins returns the functions added by XSLT to the core library of XPath
// and the functions of EXSLT common.
func (s *Stylesheet) builtins(sess *session) environ.Environ[xpath.Func] {
	env := environ.Empty[xpath.Func]()
	env.Define("current", callCurrent)
	env.Define("generate-id", sess.callGenerateId)
	env.Define("key", func(ctx xpath.Context, args []xpath.Sequence) (xpath.Sequence, error) {
		return sess.callKey(s, ctx, args)
	})
	env.Define("document", func(ctx xpath.Context, args []xpath.Sequence) (xpath.Sequence, error) {
		return sess.callDocument(s, ctx, args)
	})
	env.Define("system-property", s.callSystemProperty)
	env.Define("function-available", s.callFunctionAvailable)
	env.Define("element-available", s.callElementAvailable)
	env.Define("format-number", s.callFormatNumber)
	env.Define("unparsed-entity-uri", callUnparsedEntityURI)
	for _, uri := range []string{exslNamespaceUri, msxslNamespaceUri} {
		env.Define(xml.ExpandedName("node-set", "", uri).ExpandedName(), callNodeSet)
		env.Define(xml.ExpandedName("object-type", "", uri).ExpandedName(), callObjectType)
	}
	return env
}

func checkArity(name string, args []xpath.Sequence, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		return fmt.Errorf("%s: %w: invalid number of arguments", name, xpath.ErrArgument)
	}
	return nil
}

func callCurrent(ctx xpath.Context, args []xpath.Sequence) (xpath.Sequence, error) {
	if err := checkArity("current", args, 0, 0); err != nil {
		return nil, err
	}
	if ctx.Current == nil {
		return xpath.NewSequence(), nil
	}
	return xpath.NewNodes(ctx.Current), nil
}

func (s *session) callGenerateId(ctx xpath.Context, args []xpath.Sequence) (xpath.Sequence, error) {
	if err := checkArity("generate-id", args, 0, 1); err != nil {
		return nil, err
	}
	node := ctx.Node
	if len(args) == 1 {
		if !args[0].NodeSet() {
			return nil, fmt.Errorf("generate-id: %w: node-set expected", xpath.ErrType)
		}
		nodes := xml.SortNodes(args[0].Nodes())
		if len(nodes) == 0 {
			return xpath.NewString(""), nil
		}
		node = nodes[0]
	}
	id, err := s.generateId(node)
	if err != nil {
		return nil, err
	}
	return xpath.NewString(id), nil
}

func (s *session) callKey(sheet *Stylesheet, ctx xpath.Context, args []xpath.Sequence) (xpath.Sequence, error) {
	if err := checkArity("key", args, 2, 2); err != nil {
		return nil, err
	}
	name, err := sheet.expandQName(xpath.AsString(args[0]))
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	doc := xml.DocumentOf(ctx.Node)
	if doc == nil {
		return xpath.NewSequence(), nil
	}
	index, err := s.keyIndex(sheet, doc, name)
	if err != nil {
		return nil, err
	}
	var (
		values []string
		nodes  []xml.Node
	)
	if args[1].NodeSet() && !args[1].Empty() {
		for _, n := range args[1].Nodes() {
			values = append(values, n.Value())
		}
	} else {
		values = append(values, xpath.AsString(args[1]))
	}
	for _, v := range values {
		nodes = append(nodes, index[v]...)
	}
	return xpath.NewNodes(xml.SortNodes(nodes)...), nil
}

// keyIndex builds, once per document, the mapping between the values of a
// key and the nodes that match it.
func (s *session) keyIndex(sheet *Stylesheet, doc *xml.Document, name string) (map[string][]xml.Node, error) {
	if index, ok := s.indexes[doc][name]; ok {
		return index, nil
	}
	keys, ok := sheet.keys[name]
	if !ok {
		return nil, fmt.Errorf("key: %s: %w", name, ErrUndefined)
	}
	index := make(map[string][]xml.Node)
	err := walkNodes(doc, func(n xml.Node) error {
		ctx := s.matchContext(n)
		for _, k := range keys {
			if !k.match.Match(ctx, n) {
				continue
			}
			seq, err := k.use.Eval(ctx)
			if err != nil {
				return err
			}
			if !seq.NodeSet() {
				v := xpath.AsString(seq)
				index[v] = append(index[v], n)
				continue
			}
			for _, x := range seq.Nodes() {
				index[x.Value()] = append(index[x.Value()], n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.indexes[doc] == nil {
		s.indexes[doc] = make(map[string]map[string][]xml.Node)
	}
	s.indexes[doc][name] = index
	return index, nil
}

// matchContext is the context in which patterns and keys are evaluated: only
// global variables are visible.
func (s *session) matchContext(node xml.Node) xpath.Context {
	ctx := xpath.NewContext(node)
	ctx.Variables = s.globalVars
	ctx.Functions = s.funcs
	return ctx
}

func walkNodes(node xml.Node, fn func(xml.Node) error) error {
	if err := fn(node); err != nil {
		return err
	}
	for _, a := range xml.Attributes(node) {
		if err := fn(a); err != nil {
			return err
		}
	}
	for _, c := range xml.Children(node) {
		if err := walkNodes(c, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) callDocument(sheet *Stylesheet, ctx xpath.Context, args []xpath.Sequence) (xpath.Sequence, error) {
	if err := checkArity("document", args, 1, 2); err != nil {
		return nil, err
	}
	base := sheet.Location
	if len(args) == 2 {
		if !args[1].NodeSet() {
			return nil, fmt.Errorf("document: %w: node-set expected", xpath.ErrType)
		}
		if nodes := args[1].Nodes(); len(nodes) > 0 {
			base = baseOf(nodes[0])
		}
	}
	var list []xml.Node
	if args[0].NodeSet() && !xpath.IsFragment(args[0]) {
		for _, n := range args[0].Nodes() {
			where := base
			if len(args) == 1 {
				where = baseOf(n)
			}
			if doc := s.loadDocument(sheet, where, n.Value()); doc != nil {
				list = append(list, doc)
			}
		}
	} else if doc := s.loadDocument(sheet, base, xpath.AsString(args[0])); doc != nil {
		list = append(list, doc)
	}
	return xpath.NewNodes(xml.SortNodes(list)...), nil
}

func baseOf(node xml.Node) string {
	if doc := xml.DocumentOf(node); doc != nil {
		return doc.Location
	}
	return ""
}

// loadDocument parses the document found at href. Documents that can not be
// loaded are reported and give the empty node-set.
func (s *session) loadDocument(sheet *Stylesheet, base, href string) xml.Node {
	if x, _, ok := strings.Cut(href, "#"); ok {
		href = x
	}
	if href == "" {
		if doc, ok := sheet.modules[sheet.Location]; ok {
			return doc
		}
		return nil
	}
	loc := sheet.locate(base, href)
	if doc, ok := s.documents[loc]; ok {
		return doc
	}
	doc, err := sheet.parseDocument(loc)
	if err != nil {
		sheet.Logger.Warn("fail to load document", "href", href, "location", loc, "err", err)
		return nil
	}
	s.documents[loc] = doc
	return doc
}

func (s *Stylesheet) parseDocument(location string) (*xml.Document, error) {
	r, err := s.resolver.Open(location)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	p := xml.NewParser(r, xml.WithResolver(s.resolver), xml.WithLocation(location))
	return p.Parse()
}

func (s *Stylesheet) callSystemProperty(_ xpath.Context, args []xpath.Sequence) (xpath.Sequence, error) {
	if err := checkArity("system-property", args, 1, 1); err != nil {
		return nil, err
	}
	name, err := s.expandQName(xpath.AsString(args[0]))
	if err != nil {
		return nil, fmt.Errorf("system-property: %w", err)
	}
	switch name {
	case xsltName("version"):
		return xpath.NewNumber(1), nil
	case xsltName("vendor"):
		return xpath.NewString(XslVendor), nil
	case xsltName("vendor-url"):
		return xpath.NewString(XslVendorUrl), nil
	default:
		return xpath.NewString(""), nil
	}
}

func (s *Stylesheet) callFunctionAvailable(ctx xpath.Context, args []xpath.Sequence) (xpath.Sequence, error) {
	if err := checkArity("function-available", args, 1, 1); err != nil {
		return nil, err
	}
	name, err := s.expandQName(xpath.AsString(args[0]))
	if err != nil {
		return nil, fmt.Errorf("function-available: %w", err)
	}
	_, ok := ctx.Function(name)
	return xpath.NewBoolean(ok), nil
}

func (s *Stylesheet) callElementAvailable(_ xpath.Context, args []xpath.Sequence) (xpath.Sequence, error) {
	if err := checkArity("element-available", args, 1, 1); err != nil {
		return nil, err
	}
	name, err := s.expandQName(xpath.AsString(args[0]))
	if err != nil {
		return nil, fmt.Errorf("element-available: %w", err)
	}
	_, ok := executers[name]
	return xpath.NewBoolean(ok), nil
}

func (s *Stylesheet) callFormatNumber(_ xpath.Context, args []xpath.Sequence) (xpath.Sequence, error) {
	if err := checkArity("format-number", args, 2, 3); err != nil {
		return nil, err
	}
	var name string
	if len(args) == 3 {
		n, err := s.expandQName(xpath.AsString(args[2]))
		if err != nil {
			return nil, fmt.Errorf("format-number: %w", err)
		}
		name = n
	}
	df, ok := s.formats[name]
	if !ok {
		return nil, fmt.Errorf("format-number: %s: decimal format %w", name, ErrUndefined)
	}
	str, err := df.Format(xpath.AsNumber(args[0]), xpath.AsString(args[1]))
	if err != nil {
		return nil, fmt.Errorf("format-number: %w", err)
	}
	return xpath.NewString(str), nil
}

func callUnparsedEntityURI(ctx xpath.Context, args []xpath.Sequence) (xpath.Sequence, error) {
	if err := checkArity("unparsed-entity-uri", args, 1, 1); err != nil {
		return nil, err
	}
	doc := xml.DocumentOf(ctx.Node)
	if doc == nil || doc.DocType == nil {
		return xpath.NewString(""), nil
	}
	e, ok := doc.Entities[xpath.AsString(args[0])]
	if !ok || !e.Unparsed() {
		return xpath.NewString(""), nil
	}
	return xpath.NewString(xml.JoinLocation(doc.Location, e.SystemID)), nil
}

func callNodeSet(_ xpath.Context, args []xpath.Sequence) (xpath.Sequence, error) {
	if err := checkArity("node-set", args, 1, 1); err != nil {
		return nil, err
	}
	seq := args[0]
	if xpath.IsFragment(seq) || seq.NodeSet() {
		return xpath.NewNodes(seq.Nodes()...), nil
	}
	doc := xml.EmptyDocument()
	doc.Append(xml.NewText(xpath.AsString(seq)))
	return xpath.NewNodes(doc.Nodes...), nil
}

func callObjectType(_ xpath.Context, args []xpath.Sequence) (xpath.Sequence, error) {
	if err := checkArity("object-type", args, 1, 1); err != nil {
		return nil, err
	}
	seq := args[0]
	switch {
	case xpath.IsFragment(seq):
		return xpath.NewString("RTF"), nil
	case seq.NodeSet():
		return xpath.NewString("node-set"), nil
	}
	switch seq.First().Value().(type) {
	case float64:
		return xpath.NewString("number"), nil
	case bool:
		return xpath.NewString("boolean"), nil
	default:
		return xpath.NewString("string"), nil
	}
}

// expandQName expands a name given as argument to a function with the
// namespaces declared on the stylesheet element.
func (s *Stylesheet) expandQName(name string) (string, error) {
	if s.root == nil {
		qn, err := xml.ParseName(strings.TrimSpace(name))
		if err != nil {
			return "", err
		}
		return qn.ExpandedName(), nil
	}
	return expandName(s.root, name)
}
