package catalog

import (
	"cmp"
	"slices"
	"strings"

	"github.com/midbel/docbook/xml"
)

type entry struct {
	match  string
	target string
	public bool
}

// entryFile holds the entries of one catalog file grouped by kind, groups
// flattened in document order.
type entryFile struct {
	location string

	system         []entry
	rewriteSystem  []entry
	systemSuffix   []entry
	delegateSystem []entry
	public         []entry
	delegatePublic []entry
	uri            []entry
	rewriteURI     []entry
	uriSuffix      []entry
	delegateURI    []entry

	next []string
}

// lookup searches the entries of the file. When delegation entries match,
// the catalogs to consult instead of the next catalogs are returned.
func (f *entryFile) lookup(publicID, systemID string) (string, bool, []string) {
	if systemID != "" {
		if res, ok := f.lookupSystem(systemID); ok {
			return res, true, nil
		}
		if list := delegates(f.delegateSystem, systemID, nil); len(list) > 0 {
			return "", false, list
		}
	}
	if publicID != "" {
		accept := func(e entry) bool {
			return e.public || systemID == ""
		}
		for _, e := range f.public {
			if e.match == publicID && accept(e) {
				return e.target, true, nil
			}
		}
		if list := delegates(f.delegatePublic, publicID, accept); len(list) > 0 {
			return "", false, list
		}
	}
	if publicID == "" && systemID != "" {
		if res, ok := f.lookupURI(systemID); ok {
			return res, true, nil
		}
		if list := delegates(f.delegateURI, systemID, nil); len(list) > 0 {
			return "", false, list
		}
	}
	return "", false, nil
}

func (f *entryFile) lookupSystem(id string) (string, bool) {
	for _, e := range f.system {
		if e.match == id {
			return e.target, true
		}
	}
	if e, ok := longestPrefix(f.rewriteSystem, id); ok {
		return e.target + id[len(e.match):], true
	}
	if e, ok := longestSuffix(f.systemSuffix, id); ok {
		return e.target, true
	}
	return "", false
}

func (f *entryFile) lookupURI(uri string) (string, bool) {
	for _, e := range f.uri {
		if e.match == uri {
			return e.target, true
		}
	}
	if e, ok := longestPrefix(f.rewriteURI, uri); ok {
		return e.target + uri[len(e.match):], true
	}
	if e, ok := longestSuffix(f.uriSuffix, uri); ok {
		return e.target, true
	}
	return "", false
}

func longestPrefix(list []entry, str string) (entry, bool) {
	var (
		best  entry
		found bool
	)
	for _, e := range list {
		if !strings.HasPrefix(str, e.match) {
			continue
		}
		if !found || len(e.match) > len(best.match) {
			best, found = e, true
		}
	}
	return best, found
}

func longestSuffix(list []entry, str string) (entry, bool) {
	var (
		best  entry
		found bool
	)
	for _, e := range list {
		if !strings.HasSuffix(str, e.match) {
			continue
		}
		if !found || len(e.match) > len(best.match) {
			best, found = e, true
		}
	}
	return best, found
}

// delegates gives the catalogs of the matching delegation entries, longest
// match first.
func delegates(list []entry, str string, accept func(entry) bool) []string {
	var found []entry
	for _, e := range list {
		if !strings.HasPrefix(str, e.match) {
			continue
		}
		if accept != nil && !accept(e) {
			continue
		}
		found = append(found, e)
	}
	slices.SortStableFunc(found, func(a, b entry) int {
		return cmp.Compare(len(b.match), len(a.match))
	})
	var res []string
	for _, e := range found {
		if !slices.Contains(res, e.target) {
			res = append(res, e.target)
		}
	}
	return res
}

type scope struct {
	base   string
	public bool
}

var xmlBase = xml.ExpandedName("base", "xml", xml.NamespaceXML)

func (s scope) enter(el *xml.Element) scope {
	if a := el.GetAttributeNS(xmlBase); a != nil {
		s.base = xml.JoinLocation(s.base, a.Value())
	}
	if str, ok := el.AttributeValue("prefer"); ok {
		switch str {
		case "public":
			s.public = true
		case "system":
			s.public = false
		}
	}
	return s
}

func (s scope) locate(ref string) string {
	return xml.JoinLocation(s.base, ref)
}

// entryKinds gives for each catalog entry the attribute holding the value to
// match and the one holding the target.
var entryKinds = map[string][2]string{
	"public":         {"publicId", "uri"},
	"system":         {"systemId", "uri"},
	"rewriteSystem":  {"systemIdStartString", "rewritePrefix"},
	"systemSuffix":   {"systemIdSuffix", "uri"},
	"delegatePublic": {"publicIdStartString", "catalog"},
	"delegateSystem": {"systemIdStartString", "catalog"},
	"uri":            {"name", "uri"},
	"rewriteURI":     {"uriStartString", "rewritePrefix"},
	"uriSuffix":      {"uriSuffix", "uri"},
	"delegateURI":    {"uriStartString", "catalog"},
}

func (c *Catalog) readEntries(f *entryFile, parent *xml.Element, sc scope) {
	for _, el := range parent.Elements() {
		if !isCatalogNS(el) {
			c.logger.Debug("foreign element ignored", "element", el.QualifiedName(), "location", f.location)
			continue
		}
		curr := sc.enter(el)
		switch el.Name {
		case "group":
			c.readEntries(f, el, curr)
			continue
		case "nextCatalog":
			str, ok := el.AttributeValue("catalog")
			if !ok {
				c.logger.Warn("nextCatalog without catalog attribute", "location", f.location)
				continue
			}
			f.next = append(f.next, curr.locate(str))
			continue
		}
		attrs, ok := entryKinds[el.Name]
		if !ok {
			c.logger.Debug("unknown catalog entry ignored", "element", el.Name, "location", f.location)
			continue
		}
		match, ok1 := el.AttributeValue(attrs[0])
		target, ok2 := el.AttributeValue(attrs[1])
		if !ok1 || !ok2 {
			c.logger.Warn("incomplete catalog entry ignored", "element", el.Name, "location", f.location)
			continue
		}
		e := entry{
			match:  match,
			target: curr.locate(target),
			public: curr.public,
		}
		switch el.Name {
		case "public":
			e.match = normalizePublic(match)
			f.public = append(f.public, e)
		case "delegatePublic":
			e.match = normalizePublic(match)
			f.delegatePublic = append(f.delegatePublic, e)
		case "system":
			f.system = append(f.system, e)
		case "rewriteSystem":
			f.rewriteSystem = append(f.rewriteSystem, e)
		case "systemSuffix":
			f.systemSuffix = append(f.systemSuffix, e)
		case "delegateSystem":
			f.delegateSystem = append(f.delegateSystem, e)
		case "uri":
			f.uri = append(f.uri, e)
		case "rewriteURI":
			f.rewriteURI = append(f.rewriteURI, e)
		case "uriSuffix":
			f.uriSuffix = append(f.uriSuffix, e)
		case "delegateURI":
			f.delegateURI = append(f.delegateURI, e)
		}
	}
}
