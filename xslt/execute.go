package xslt

import (
	"fmt"
	"strings"

	"github.com/midbel/docbook/xml"
	"github.com/midbel/docbook/xpath"
)

type ExecuteFunc func(*Context) (xpath.Sequence, error)

var executers map[string]ExecuteFunc

func init() {
	trace := func(exec ExecuteFunc) ExecuteFunc {
		fn := func(ctx *Context) (xpath.Sequence, error) {
			ctx.Enter(ctx)
			defer ctx.Leave(ctx)
			seq, err := exec(ctx)
			if err != nil {
				ctx.Error(ctx, err)
			}
			return seq, err
		}
		return fn
	}
	nest := func(exec ExecuteFunc) ExecuteFunc {
		fn := func(ctx *Context) (xpath.Sequence, error) {
			return exec(ctx.Nest())
		}
		return trace(fn)
	}
	executers = map[string]ExecuteFunc{
		xsltName("apply-templates"):        nest(executeApplyTemplates),
		xsltName("apply-imports"):          nest(executeApplyImports),
		xsltName("call-template"):          nest(executeCallTemplate),
		xsltName("for-each"):               nest(executeForeach),
		xsltName("if"):                     nest(executeIf),
		xsltName("choose"):                 nest(executeChoose),
		xsltName("value-of"):               trace(executeValueOf),
		xsltName("text"):                   trace(executeText),
		xsltName("element"):                nest(executeElement),
		xsltName("attribute"):              nest(executeAttribute),
		xsltName("copy"):                   nest(executeCopy),
		xsltName("copy-of"):                trace(executeCopyOf),
		xsltName("comment"):                nest(executeComment),
		xsltName("processing-instruction"): nest(executePI),
		xsltName("variable"):               trace(executeVariable),
		xsltName("param"):                  trace(executeVariable),
		xsltName("message"):                nest(executeMessage),
		xsltName("number"):                 trace(executeNumber),
		xsltName("fallback"):               trace(executeFallback),
		xsltName("document"):               nest(executeDocument),
		xsltName("with-param"):             trace(executeMisplaced),
		xsltName("sort"):                   trace(executeMisplaced),
		xsltName("when"):                   trace(executeMisplaced),
		xsltName("otherwise"):              trace(executeMisplaced),
		exslName("document"):               nest(executeDocument),
	}
}

func xsltName(name string) string {
	return xml.ExpandedName(name, "", xsltNamespaceUri).ExpandedName()
}

func exslName(name string) string {
	return xml.ExpandedName(name, "", exslNamespaceUri).ExpandedName()
}

func executeBody(ctx *Context, nodes []xml.Node) (xpath.Sequence, error) {
	var res xpath.Sequence
	for _, n := range nodes {
		seq, err := transformNode(ctx.WithXsl(n))
		if err != nil {
			return nil, err
		}
		res.Concat(seq)
	}
	return res, nil
}

func transformNode(ctx *Context) (xpath.Sequence, error) {
	switch n := ctx.XslNode.(type) {
	case *xml.Text:
		return xpath.NewNodes(xml.NewText(n.Content)), nil
	case *xml.Element:
		if isInstruction(n) {
			exec, ok := executers[n.ExpandedName()]
			if !ok {
				return executeUnknown(ctx)
			}
			return exec(ctx)
		}
		if ctx.extensions[n.Uri] {
			return executeUnknown(ctx)
		}
		return processLiteral(ctx)
	default:
		return nil, nil
	}
}

func processLiteral(ctx *Context) (xpath.Sequence, error) {
	el := ctx.element()
	out := xml.NewElement(el.QName)
	if a := el.GetAttributeNS(xml.ExpandedName("use-attribute-sets", "", xsltNamespaceUri)); a != nil {
		seq, err := applyAttributeSets(ctx, el, a.Datum, nil)
		if err != nil {
			return nil, err
		}
		appendContent(out, seq)
	}
	xctx := ctx.xpathContext()
	for _, a := range el.Attrs {
		if a.Uri == xsltNamespaceUri || a.Uri == xml.NamespaceXMLNS {
			continue
		}
		value := a.Datum
		if avt, ok := ctx.compiled[el].avts[a.QualifiedName()]; ok {
			str, err := avt.Eval(xctx)
			if err != nil {
				return nil, ctx.errorWithContext(err)
			}
			value = str
		}
		out.SetAttribute(xml.NewAttribute(a.QName, value))
	}
	seq, err := executeBody(ctx.Nest(), el.Nodes)
	if err != nil {
		return nil, err
	}
	appendContent(out, seq)
	return xpath.NewNodes(out), nil
}

// executeUnknown runs the xsl:fallback children of an instruction that is not
// supported.
func executeUnknown(ctx *Context) (xpath.Sequence, error) {
	var (
		el    = ctx.element()
		res   xpath.Sequence
		found bool
	)
	for _, c := range el.Elements() {
		if !isXslt(c, "fallback") {
			continue
		}
		found = true
		seq, err := executeBody(ctx.Nest(), c.Nodes)
		if err != nil {
			return nil, err
		}
		res.Concat(seq)
	}
	if !found {
		return nil, ctx.errorWithContext(ErrImplemented)
	}
	return res, nil
}

func executeFallback(_ *Context) (xpath.Sequence, error) {
	return nil, nil
}

func executeMisplaced(ctx *Context) (xpath.Sequence, error) {
	return nil, ctx.errorWithContext(fmt.Errorf("instruction not allowed here"))
}

func executeApplyTemplates(ctx *Context) (xpath.Sequence, error) {
	el := ctx.element()
	nodes := xml.Children(ctx.ContextNode)
	if q := ctx.query("select"); q != nil {
		list, err := selectNodes(ctx, q)
		if err != nil {
			return nil, err
		}
		nodes = list
	}
	mode, err := modeOf(el)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	args, err := withParams(ctx)
	if err != nil {
		return nil, err
	}
	nodes, err = sortNodes(ctx, nodes)
	if err != nil {
		return nil, err
	}
	return ctx.applyTemplates(nodes, mode, args)
}

func executeApplyImports(ctx *Context) (xpath.Sequence, error) {
	args, err := withParams(ctx)
	if err != nil {
		return nil, err
	}
	return ctx.applyImports(args)
}

func executeCallTemplate(ctx *Context) (xpath.Sequence, error) {
	el := ctx.element()
	name, err := getAttribute(el, "name")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	ident, err := expandName(el, name)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	args, err := withParams(ctx)
	if err != nil {
		return nil, err
	}
	return ctx.callTemplate(ident, args)
}

func executeForeach(ctx *Context) (xpath.Sequence, error) {
	q := ctx.query("select")
	if q == nil {
		return nil, ctx.errorWithContext(fmt.Errorf("missing attribute %q", "select"))
	}
	nodes, err := selectNodes(ctx, q)
	if err != nil {
		return nil, err
	}
	if nodes, err = sortNodes(ctx, nodes); err != nil {
		return nil, err
	}
	var (
		body = skipSort(ctx.element().Nodes)
		res  xpath.Sequence
	)
	for i, n := range nodes {
		child := ctx.WithNode(n, i+1, len(nodes)).Nest()
		child.Template = nil
		seq, err := executeBody(child, body)
		if err != nil {
			return nil, err
		}
		res.Concat(seq)
	}
	return res, nil
}

func executeIf(ctx *Context) (xpath.Sequence, error) {
	seq, err := ctx.eval("test")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if !xpath.AsBoolean(seq) {
		return nil, nil
	}
	return executeBody(ctx, ctx.element().Nodes)
}

func executeChoose(ctx *Context) (xpath.Sequence, error) {
	for _, c := range ctx.element().Elements() {
		switch {
		case isXslt(c, "when"):
			sub := ctx.WithXsl(c)
			seq, err := sub.eval("test")
			if err != nil {
				return nil, sub.errorWithContext(err)
			}
			if xpath.AsBoolean(seq) {
				return executeBody(sub, c.Nodes)
			}
		case isXslt(c, "otherwise"):
			return executeBody(ctx.WithXsl(c), c.Nodes)
		default:
			return nil, ctx.errorWithContext(fmt.Errorf("%s: unexpected element in xsl:choose", c.QualifiedName()))
		}
	}
	return nil, nil
}

func executeValueOf(ctx *Context) (xpath.Sequence, error) {
	seq, err := ctx.eval("select")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	return createText(ctx, xpath.AsString(seq)), nil
}

func executeText(ctx *Context) (xpath.Sequence, error) {
	var str strings.Builder
	for _, n := range ctx.element().Nodes {
		if t, ok := n.(*xml.Text); ok {
			str.WriteString(t.Content)
		}
	}
	return createText(ctx, str.String()), nil
}

func createText(ctx *Context, str string) xpath.Sequence {
	if str == "" {
		return nil
	}
	t := xml.NewText(str)
	if value, ok := attrValue(ctx.element(), "disable-output-escaping"); ok {
		t.Raw = value == "yes"
	}
	return xpath.NewNodes(t)
}

func executeElement(ctx *Context) (xpath.Sequence, error) {
	el := ctx.element()
	qn, err := computeName(ctx, true)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	out := xml.NewElement(qn)
	if str, ok := attrValue(el, "use-attribute-sets"); ok {
		seq, err := applyAttributeSets(ctx, el, str, nil)
		if err != nil {
			return nil, err
		}
		appendContent(out, seq)
	}
	seq, err := executeBody(ctx, el.Nodes)
	if err != nil {
		return nil, err
	}
	appendContent(out, seq)
	return xpath.NewNodes(out), nil
}

func executeAttribute(ctx *Context) (xpath.Sequence, error) {
	qn, err := computeName(ctx, false)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if qn.Space == "" && qn.Name == "xmlns" {
		return nil, ctx.errorWithContext(fmt.Errorf("xmlns: invalid attribute name"))
	}
	value, err := contentString(ctx)
	if err != nil {
		return nil, err
	}
	return xpath.NewNodes(xml.NewAttribute(qn, value)), nil
}

// computeName evaluates the name and namespace attributes of xsl:element and
// xsl:attribute. Without namespace attribute, the prefix is resolved with the
// namespaces in scope of the instruction. The default namespace only applies
// to elements.
func computeName(ctx *Context, element bool) (xml.QName, error) {
	name, ok, err := ctx.avt("name")
	if err != nil {
		return xml.QName{}, err
	}
	if !ok {
		return xml.QName{}, fmt.Errorf("missing attribute %q", "name")
	}
	qn, err := xml.ParseName(strings.TrimSpace(name))
	if err != nil {
		return qn, err
	}
	ns, ok, err := ctx.avt("namespace")
	if err != nil {
		return qn, err
	}
	if ok {
		qn.Uri = ns
		if ns == "" {
			qn.Space = ""
		}
		return qn, nil
	}
	if qn.Space == "" && !element {
		return qn, nil
	}
	uri, found := ctx.element().ResolveNS(qn.Space)
	if !found {
		return qn, fmt.Errorf("%s: undeclared namespace prefix", qn.Space)
	}
	qn.Uri = uri
	return qn, nil
}

func executeCopy(ctx *Context) (xpath.Sequence, error) {
	el := ctx.element()
	switch n := ctx.ContextNode.(type) {
	case *xml.Document:
		return executeBody(ctx, el.Nodes)
	case *xml.Element:
		out := xml.NewElement(n.QName)
		for _, ns := range n.Namespaces {
			out.DeclareNS(ns.Prefix, ns.Uri)
		}
		if str, ok := attrValue(el, "use-attribute-sets"); ok {
			seq, err := applyAttributeSets(ctx, el, str, nil)
			if err != nil {
				return nil, err
			}
			appendContent(out, seq)
		}
		seq, err := executeBody(ctx, el.Nodes)
		if err != nil {
			return nil, err
		}
		appendContent(out, seq)
		return xpath.NewNodes(out), nil
	case *xml.Attribute:
		return xpath.NewNodes(xml.NewAttribute(n.QName, n.Datum)), nil
	case nil:
		return nil, nil
	default:
		return xpath.NewNodes(xml.Clone(n)), nil
	}
}

func executeCopyOf(ctx *Context) (xpath.Sequence, error) {
	seq, err := ctx.eval("select")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if !seq.NodeSet() {
		return createText(ctx, xpath.AsString(seq)), nil
	}
	var res xpath.Sequence
	for _, n := range seq.Nodes() {
		if doc, ok := n.(*xml.Document); ok {
			for _, c := range doc.Nodes {
				res.Concat(xpath.NewNodes(xml.Clone(c)))
			}
			continue
		}
		if c := xml.Clone(n); c != nil {
			res.Concat(xpath.NewNodes(c))
		}
	}
	return res, nil
}

func executeComment(ctx *Context) (xpath.Sequence, error) {
	str, err := contentString(ctx)
	if err != nil {
		return nil, err
	}
	for strings.Contains(str, "--") {
		str = strings.ReplaceAll(str, "--", "- -")
	}
	if strings.HasSuffix(str, "-") {
		str += " "
	}
	return xpath.NewNodes(xml.NewComment(str)), nil
}

func executePI(ctx *Context) (xpath.Sequence, error) {
	name, ok, err := ctx.avt("name")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if !ok || name == "" || strings.EqualFold(name, "xml") {
		return nil, ctx.errorWithContext(fmt.Errorf("%q: invalid processing instruction name", name))
	}
	str, err := contentString(ctx)
	if err != nil {
		return nil, err
	}
	str = strings.ReplaceAll(str, "?>", "? >")
	return xpath.NewNodes(xml.NewInstruction(name, strings.TrimLeft(str, " \t\r\n"))), nil
}

func executeVariable(ctx *Context) (xpath.Sequence, error) {
	el := ctx.element()
	name, err := getAttribute(el, "name")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	ident, err := expandName(el, name)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	seq, err := evalVariable(ctx)
	if err != nil {
		return nil, err
	}
	ctx.define(ident, seq)
	return nil, nil
}

// evalVariable computes the value of a variable or a parameter: the result
// of the select expression, a result tree fragment built from the content or
// the empty string.
func evalVariable(ctx *Context) (xpath.Sequence, error) {
	el := ctx.element()
	if q := ctx.query("select"); q != nil {
		if len(el.Nodes) > 0 {
			return nil, ctx.errorWithContext(fmt.Errorf("select attribute can not be used with content"))
		}
		seq, err := q.Eval(ctx.xpathContext())
		if err != nil {
			return nil, ctx.errorWithContext(err)
		}
		return seq, nil
	}
	if len(el.Nodes) == 0 {
		return xpath.NewString(""), nil
	}
	doc, err := createFragment(ctx, el.Nodes)
	if err != nil {
		return nil, err
	}
	return xpath.NewFragment(doc), nil
}

func createFragment(ctx *Context, nodes []xml.Node) (*xml.Document, error) {
	seq, err := executeBody(ctx.Nest(), nodes)
	if err != nil {
		return nil, err
	}
	doc := xml.EmptyDocument()
	if src := xml.DocumentOf(ctx.ContextNode); src != nil {
		doc.Location = src.Location
	}
	appendDocument(doc, seq)
	return doc, nil
}

func withParams(ctx *Context) (params, error) {
	args := make(params)
	for _, c := range ctx.element().Elements() {
		if !isXslt(c, "with-param") {
			continue
		}
		sub := ctx.WithXsl(c)
		name, err := getAttribute(c, "name")
		if err != nil {
			return nil, sub.errorWithContext(err)
		}
		ident, err := expandName(c, name)
		if err != nil {
			return nil, sub.errorWithContext(err)
		}
		seq, err := evalVariable(sub)
		if err != nil {
			return nil, err
		}
		args[ident] = seq
	}
	return args, nil
}

func executeMessage(ctx *Context) (xpath.Sequence, error) {
	msg, err := contentString(ctx)
	if err != nil {
		return nil, err
	}
	terminate, _ := attrValue(ctx.element(), "terminate")
	if terminate == "yes" {
		ctx.Logger.Error(msg, "node", ctx.ContextNode.QualifiedName())
		return nil, fmt.Errorf("%w: %s", ErrTerminate, msg)
	}
	ctx.Logger.Info(msg, "node", ctx.ContextNode.QualifiedName())
	return nil, nil
}

// contentString instantiates the content of the instruction and returns the
// concatenation of the texts produced.
func contentString(ctx *Context) (string, error) {
	seq, err := executeBody(ctx, ctx.element().Nodes)
	if err != nil {
		return "", err
	}
	var str strings.Builder
	for _, i := range seq {
		n := i.Node()
		if n == nil {
			str.WriteString(xpath.AsString(xpath.Sequence{i}))
			continue
		}
		switch n.Type() {
		case xml.TypeText, xml.TypeElement, xml.TypeDocument:
			str.WriteString(n.Value())
		default:
		}
	}
	return str.String(), nil
}

func applyAttributeSets(ctx *Context, el *xml.Element, names string, seen []string) (xpath.Sequence, error) {
	var res xpath.Sequence
	for _, name := range strings.Fields(names) {
		ident, err := expandName(el, name)
		if err != nil {
			return nil, ctx.errorWithContext(err)
		}
		for _, s := range seen {
			if s == ident {
				return nil, ctx.errorWithContext(fmt.Errorf("%s: %w", name, ErrCircular))
			}
		}
		sets, ok := ctx.attrSets[ident]
		if !ok {
			return nil, ctx.errorWithContext(fmt.Errorf("%s: attribute set %w", name, ErrUndefined))
		}
		for _, set := range sets {
			sub := ctx.WithXsl(set)
			sub.vars = ctx.globalVars
			if str, ok := attrValue(set, "use-attribute-sets"); ok {
				seq, err := applyAttributeSets(sub, set, str, append(seen, ident))
				if err != nil {
					return nil, err
				}
				res.Concat(seq)
			}
			seq, err := executeBody(sub, set.Nodes)
			if err != nil {
				return nil, err
			}
			res.Concat(seq)
		}
	}
	return res, nil
}

func selectNodes(ctx *Context, q *xpath.Query) ([]xml.Node, error) {
	seq, err := q.Eval(ctx.xpathContext())
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if !seq.NodeSet() {
		return nil, ctx.errorWithContext(fmt.Errorf("%s: %w: node-set expected", q, xpath.ErrType))
	}
	return seq.Nodes(), nil
}

func modeOf(el *xml.Element) (string, error) {
	str, ok := attrValue(el, "mode")
	if !ok {
		return "", nil
	}
	return expandName(el, str)
}

func skipSort(nodes []xml.Node) []xml.Node {
	for i, n := range nodes {
		if el, ok := n.(*xml.Element); ok && isXslt(el, "sort") {
			continue
		}
		return nodes[i:]
	}
	return nil
}

// appendContent adds the nodes created by an instruction to parent.
func appendContent(parent *xml.Element, seq xpath.Sequence) {
	for _, i := range seq {
		n := i.Node()
		if n == nil {
			parent.Append(xml.NewText(xpath.AsString(xpath.Sequence{i})))
			continue
		}
		parent.Append(n)
	}
}

// appendDocument adds the nodes created by an instruction at the top level of
// doc. Attributes are dropped and adjacent texts are merged.
func appendDocument(doc *xml.Document, seq xpath.Sequence) {
	var list []xml.Node
	for _, i := range seq {
		n := i.Node()
		if n == nil {
			n = xml.NewText(xpath.AsString(xpath.Sequence{i}))
		}
		if d, ok := n.(*xml.Document); ok {
			list = append(list, d.Nodes...)
			continue
		}
		list = append(list, n)
	}
	for _, n := range list {
		switch n := n.(type) {
		case *xml.Attribute:
			continue
		case *xml.Text:
			if n.Content == "" {
				continue
			}
			if z := len(doc.Nodes); z > 0 {
				if prev, ok := doc.Nodes[z-1].(*xml.Text); ok && prev.Raw == n.Raw {
					prev.Content += n.Content
					continue
				}
			}
		}
		doc.Append(n)
	}
}
