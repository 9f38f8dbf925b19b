package xslt

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"unicode"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/midbel/docbook/xml"
	"github.com/midbel/docbook/xpath"
)

var dotQuery *xpath.Query

func init() {
	q, err := xpath.Compile(".")
	if err != nil {
		panic(err)
	}
	dotQuery = q
}

type sortKey struct {
	query      *xpath.Query
	numeric    bool
	descending bool
	upperFirst bool
	caseOrder  bool
	collator   *collate.Collator
}

func createSortKey(ctx *Context) (*sortKey, error) {
	k := sortKey{
		query: ctx.query("select"),
	}
	if k.query == nil {
		k.query = dotQuery
	}
	dataType, _, err := ctx.avt("data-type")
	if err != nil {
		return nil, err
	}
	switch dataType {
	case "", "text":
	case "number":
		k.numeric = true
	default:
		ctx.Logger.Warn("unknown data type for sort, text used", "data-type", dataType)
	}
	order, _, err := ctx.avt("order")
	if err != nil {
		return nil, err
	}
	switch order {
	case "", "ascending":
	case "descending":
		k.descending = true
	default:
		return nil, fmt.Errorf("%s: invalid sort order", order)
	}
	caseOrder, _, err := ctx.avt("case-order")
	if err != nil {
		return nil, err
	}
	switch caseOrder {
	case "":
	case "upper-first":
		k.caseOrder, k.upperFirst = true, true
	case "lower-first":
		k.caseOrder = true
	default:
		return nil, fmt.Errorf("%s: invalid case order", caseOrder)
	}
	lang, _, err := ctx.avt("lang")
	if err != nil {
		return nil, err
	}
	tag := language.Und
	if lang != "" {
		if t, err := language.Parse(lang); err == nil {
			tag = t
		}
	}
	if k.caseOrder {
		k.collator = collate.New(tag, collate.IgnoreCase)
	} else {
		k.collator = collate.New(tag)
	}
	return &k, nil
}

func (k *sortKey) compare(left, right any) int {
	var res int
	if k.numeric {
		res = compareNumbers(left.(float64), right.(float64))
	} else {
		a, b := left.(string), right.(string)
		res = k.collator.CompareString(a, b)
		if res == 0 && k.caseOrder {
			res = compareCase(a, b, k.upperFirst)
		}
	}
	if k.descending {
		res = -res
	}
	return res
}

// compareNumbers orders NaN before every number.
func compareNumbers(a, b float64) int {
	switch an, bn := math.IsNaN(a), math.IsNaN(b); {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}

func compareCase(a, b string, upperFirst bool) int {
	ra, rb := []rune(a), []rune(b)
	for i := 0; i < len(ra) && i < len(rb); i++ {
		if ra[i] == rb[i] {
			continue
		}
		ua, ub := unicode.IsUpper(ra[i]), unicode.IsUpper(rb[i])
		if ua == ub {
			continue
		}
		if ua == upperFirst {
			return -1
		}
		return 1
	}
	return 0
}

// sortNodes orders nodes with the xsl:sort children of the current
// instruction. Without sort key, nodes are returned as is.
func sortNodes(ctx *Context, nodes []xml.Node) ([]xml.Node, error) {
	var keys []*sortKey
	for _, c := range ctx.element().Elements() {
		if !isXslt(c, "sort") {
			continue
		}
		k, err := createSortKey(ctx.WithXsl(c))
		if err != nil {
			return nil, ctx.WithXsl(c).errorWithContext(err)
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 || len(nodes) <= 1 {
		return nodes, nil
	}
	type entry struct {
		node   xml.Node
		values []any
	}
	list := make([]entry, 0, len(nodes))
	for i, n := range nodes {
		e := entry{
			node: n,
		}
		xctx := ctx.WithNode(n, i+1, len(nodes)).xpathContext()
		for _, k := range keys {
			seq, err := k.query.Eval(xctx)
			if err != nil {
				return nil, ctx.errorWithContext(err)
			}
			if k.numeric {
				e.values = append(e.values, xpath.AsNumber(seq))
			} else {
				e.values = append(e.values, xpath.AsString(seq))
			}
		}
		list = append(list, e)
	}
	slices.SortStableFunc(list, func(a, b entry) int {
		for i, k := range keys {
			if res := k.compare(a.values[i], b.values[i]); res != 0 {
				return res
			}
		}
		return 0
	})
	sorted := make([]xml.Node, 0, len(list))
	for _, e := range list {
		sorted = append(sorted, e.node)
	}
	return sorted, nil
}
