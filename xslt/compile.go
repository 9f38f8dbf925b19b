package xslt

import (
	"github.com/midbel/docbook/xml"
	"github.com/midbel/docbook/xpath"
)

// compiled holds the expressions, patterns and attribute value templates of
// an element of the stylesheet. They are compiled once when the stylesheet is
// loaded.
type compiled struct {
	queries  map[string]*xpath.Query
	patterns map[string]*xpath.Pattern
	avts     map[string]AVT
}

var (
	queryAttributes = map[string][]string{
		"apply-templates": {"select"},
		"for-each":        {"select"},
		"value-of":        {"select"},
		"copy-of":         {"select"},
		"variable":        {"select"},
		"param":           {"select"},
		"with-param":      {"select"},
		"sort":            {"select"},
		"if":              {"test"},
		"when":            {"test"},
		"key":             {"use"},
		"number":          {"value"},
	}
	patternAttributes = map[string][]string{
		"template": {"match"},
		"key":      {"match"},
		"number":   {"count", "from"},
	}
	avtAttributes = map[string][]string{
		"element":                {"name", "namespace"},
		"attribute":              {"name", "namespace"},
		"processing-instruction": {"name"},
		"number":                 {"format", "lang", "letter-value", "grouping-separator", "grouping-size"},
		"sort":                   {"lang", "data-type", "order", "case-order"},
		"document":               {"href", "method", "encoding", "indent", "omit-xml-declaration", "doctype-public", "doctype-system"},
	}
)

// compileElement compiles the attributes of el. On failure, the name of the
// faulty attribute is returned with the error.
func compileElement(el *xml.Element) (*compiled, string, error) {
	c := compiled{
		queries:  make(map[string]*xpath.Query),
		patterns: make(map[string]*xpath.Pattern),
		avts:     make(map[string]AVT),
	}
	opts := []xpath.Option{
		xpath.WithNamespaces(el.ResolveNS),
	}
	if !isInstruction(el) {
		for _, a := range el.Attrs {
			if a.Uri == xsltNamespaceUri {
				continue
			}
			avt, err := compileAVT(a.Datum, opts...)
			if err != nil {
				return nil, a.QualifiedName(), err
			}
			c.avts[a.QualifiedName()] = avt
		}
		return &c, "", nil
	}
	for _, attr := range queryAttributes[el.Name] {
		str, ok := attrValue(el, attr)
		if !ok {
			continue
		}
		q, err := xpath.Compile(str, opts...)
		if err != nil {
			return nil, attr, err
		}
		c.queries[attr] = q
	}
	for _, attr := range patternAttributes[el.Name] {
		str, ok := attrValue(el, attr)
		if !ok {
			continue
		}
		p, err := xpath.CompilePattern(str, opts...)
		if err != nil {
			return nil, attr, err
		}
		c.patterns[attr] = p
	}
	for _, attr := range avtAttributes[el.Name] {
		str, ok := attrValue(el, attr)
		if !ok {
			continue
		}
		avt, err := compileAVT(str, opts...)
		if err != nil {
			return nil, attr, err
		}
		c.avts[attr] = avt
	}
	return &c, "", nil
}

// isInstruction reports whether el is an element of the XSLT namespace or the
// exsl:document extension element.
func isInstruction(el *xml.Element) bool {
	switch el.Uri {
	case xsltNamespaceUri:
		return true
	case exslNamespaceUri:
		return el.Name == "document"
	default:
		return false
	}
}
