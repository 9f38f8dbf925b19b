package xpath

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/midbel/docbook/xml"
)

type builtin struct {
	Func
	min int
	max int
}

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"last":             {Func: callLast},
		"position":         {Func: callPosition},
		"count":            {Func: callCount, min: 1, max: 1},
		"id":               {Func: callId, min: 1, max: 1},
		"local-name":       {Func: callLocalName, max: 1},
		"namespace-uri":    {Func: callNamespaceUri, max: 1},
		"name":             {Func: callName, max: 1},
		"string":           {Func: callString, max: 1},
		"concat":           {Func: callConcat, min: 2, max: -1},
		"starts-with":      {Func: callStartsWith, min: 2, max: 2},
		"contains":         {Func: callContains, min: 2, max: 2},
		"substring-before": {Func: callSubstringBefore, min: 2, max: 2},
		"substring-after":  {Func: callSubstringAfter, min: 2, max: 2},
		"substring":        {Func: callSubstring, min: 2, max: 3},
		"string-length":    {Func: callStringLength, max: 1},
		"normalize-space":  {Func: callNormalizeSpace, max: 1},
		"translate":        {Func: callTranslate, min: 3, max: 3},
		"boolean":          {Func: callBoolean, min: 1, max: 1},
		"not":              {Func: callNot, min: 1, max: 1},
		"true":             {Func: callTrue},
		"false":            {Func: callFalse},
		"lang":             {Func: callLang, min: 1, max: 1},
		"number":           {Func: callNumber, max: 1},
		"sum":              {Func: callSum, min: 1, max: 1},
		"floor":            {Func: callFloor, min: 1, max: 1},
		"ceiling":          {Func: callCeiling, min: 1, max: 1},
		"round":            {Func: callRound, min: 1, max: 1},
	}
}

// IsBuiltin reports whether name is a function of the core library.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

func callLast(ctx Context, _ []Sequence) (Sequence, error) {
	return NewNumber(float64(ctx.Size)), nil
}

func callPosition(ctx Context, _ []Sequence) (Sequence, error) {
	return NewNumber(float64(ctx.Index)), nil
}

func callCount(_ Context, args []Sequence) (Sequence, error) {
	if !args[0].NodeSet() {
		return nil, errNodeSet("count")
	}
	return NewNumber(float64(len(args[0]))), nil
}

func callId(ctx Context, args []Sequence) (Sequence, error) {
	if ctx.Node == nil {
		return nil, nil
	}
	var ids []string
	if args[0].NodeSet() {
		for _, i := range args[0] {
			ids = append(ids, strings.Fields(itemString(i))...)
		}
	} else {
		ids = strings.Fields(AsString(args[0]))
	}
	doc := xml.DocumentOf(ctx.Node)
	var nodes []xml.Node
	for _, id := range ids {
		var el *xml.Element
		if doc != nil {
			el = doc.GetElementById(id)
		} else if root, ok := xml.Root(ctx.Node).(*xml.Element); ok {
			el = root.GetElementById(id)
		}
		if el != nil {
			nodes = append(nodes, el)
		}
	}
	return NewNodes(xml.SortNodes(nodes)...), nil
}

// contextNode gives the first node of the optional argument or the context
// node when there is none.
func contextNode(ctx Context, args []Sequence, fn string) (xml.Node, error) {
	if len(args) == 0 {
		return ctx.Node, nil
	}
	if !args[0].NodeSet() {
		return nil, errNodeSet(fn)
	}
	if args[0].Empty() {
		return nil, nil
	}
	return args[0][0].Node(), nil
}

func callLocalName(ctx Context, args []Sequence) (Sequence, error) {
	n, err := contextNode(ctx, args, "local-name")
	if err != nil || n == nil {
		return NewString(""), err
	}
	return NewString(n.LocalName()), nil
}

func callNamespaceUri(ctx Context, args []Sequence) (Sequence, error) {
	n, err := contextNode(ctx, args, "namespace-uri")
	if err != nil || n == nil {
		return NewString(""), err
	}
	return NewString(nodeURI(n)), nil
}

func callName(ctx Context, args []Sequence) (Sequence, error) {
	n, err := contextNode(ctx, args, "name")
	if err != nil || n == nil {
		return NewString(""), err
	}
	return NewString(n.QualifiedName()), nil
}

func stringArg(ctx Context, args []Sequence) string {
	if len(args) == 0 {
		if ctx.Node == nil {
			return ""
		}
		return stringValue(ctx.Node)
	}
	return AsString(args[0])
}

func callString(ctx Context, args []Sequence) (Sequence, error) {
	return NewString(stringArg(ctx, args)), nil
}

func callConcat(_ Context, args []Sequence) (Sequence, error) {
	var str strings.Builder
	for _, a := range args {
		str.WriteString(AsString(a))
	}
	return NewString(str.String()), nil
}

func callStartsWith(_ Context, args []Sequence) (Sequence, error) {
	ok := strings.HasPrefix(AsString(args[0]), AsString(args[1]))
	return NewBoolean(ok), nil
}

func callContains(_ Context, args []Sequence) (Sequence, error) {
	ok := strings.Contains(AsString(args[0]), AsString(args[1]))
	return NewBoolean(ok), nil
}

func callSubstringBefore(_ Context, args []Sequence) (Sequence, error) {
	before, _, ok := strings.Cut(AsString(args[0]), AsString(args[1]))
	if !ok {
		return NewString(""), nil
	}
	return NewString(before), nil
}

func callSubstringAfter(_ Context, args []Sequence) (Sequence, error) {
	_, after, ok := strings.Cut(AsString(args[0]), AsString(args[1]))
	if !ok {
		return NewString(""), nil
	}
	return NewString(after), nil
}

// callSubstring keeps the characters whose position p satisfies
// round(start) <= p < round(start) + round(length).
func callSubstring(_ Context, args []Sequence) (Sequence, error) {
	var (
		str   = []rune(AsString(args[0]))
		start = roundNumber(AsNumber(args[1]))
		end   = math.Inf(1)
	)
	if len(args) == 3 {
		end = start + roundNumber(AsNumber(args[2]))
	}
	if math.IsNaN(start) || math.IsNaN(end) {
		return NewString(""), nil
	}
	var res []rune
	for i, c := range str {
		pos := float64(i + 1)
		if pos >= start && pos < end {
			res = append(res, c)
		}
	}
	return NewString(string(res)), nil
}

func callStringLength(ctx Context, args []Sequence) (Sequence, error) {
	n := utf8.RuneCountInString(stringArg(ctx, args))
	return NewNumber(float64(n)), nil
}

func callNormalizeSpace(ctx Context, args []Sequence) (Sequence, error) {
	str := strings.Join(strings.Fields(stringArg(ctx, args)), " ")
	return NewString(str), nil
}

func callTranslate(_ Context, args []Sequence) (Sequence, error) {
	var (
		str  = AsString(args[0])
		from = []rune(AsString(args[1]))
		to   = []rune(AsString(args[2]))
		set  = make(map[rune]int)
	)
	for i, c := range from {
		if _, ok := set[c]; !ok {
			set[c] = i
		}
	}
	var res strings.Builder
	for _, c := range str {
		ix, ok := set[c]
		if !ok {
			res.WriteRune(c)
			continue
		}
		if ix < len(to) {
			res.WriteRune(to[ix])
		}
	}
	return NewString(res.String()), nil
}

func callBoolean(_ Context, args []Sequence) (Sequence, error) {
	return NewBoolean(AsBoolean(args[0])), nil
}

func callNot(_ Context, args []Sequence) (Sequence, error) {
	return NewBoolean(!AsBoolean(args[0])), nil
}

func callTrue(_ Context, _ []Sequence) (Sequence, error) {
	return NewBoolean(true), nil
}

func callFalse(_ Context, _ []Sequence) (Sequence, error) {
	return NewBoolean(false), nil
}

// callLang compares the xml:lang in scope with the argument, ignoring case
// and any suffix starting with a dash.
func callLang(ctx Context, args []Sequence) (Sequence, error) {
	want := strings.ToLower(AsString(args[0]))
	for n := ctx.Node; n != nil; n = n.Parent() {
		el, ok := n.(*xml.Element)
		if !ok {
			continue
		}
		a := el.GetAttributeNS(xml.ExpandedName("lang", "xml", xml.NamespaceXML))
		if a == nil {
			continue
		}
		lang := strings.ToLower(a.Value())
		ok = lang == want || strings.HasPrefix(lang, want+"-")
		return NewBoolean(ok), nil
	}
	return NewBoolean(false), nil
}

func callNumber(ctx Context, args []Sequence) (Sequence, error) {
	if len(args) == 0 {
		if ctx.Node == nil {
			return NewNumber(math.NaN()), nil
		}
		return NewNumber(parseNumber(stringValue(ctx.Node))), nil
	}
	return NewNumber(AsNumber(args[0])), nil
}

func callSum(_ Context, args []Sequence) (Sequence, error) {
	if !args[0].NodeSet() {
		return nil, errNodeSet("sum")
	}
	var total float64
	for _, i := range args[0] {
		total += itemNumber(i)
	}
	return NewNumber(total), nil
}

func callFloor(_ Context, args []Sequence) (Sequence, error) {
	return NewNumber(math.Floor(AsNumber(args[0]))), nil
}

func callCeiling(_ Context, args []Sequence) (Sequence, error) {
	return NewNumber(math.Ceil(AsNumber(args[0]))), nil
}

func callRound(_ Context, args []Sequence) (Sequence, error) {
	return NewNumber(roundNumber(AsNumber(args[0]))), nil
}

func roundNumber(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return f
	}
	if f < 0 && f >= -0.5 {
		return math.Copysign(0, -1)
	}
	return math.Floor(f + 0.5)
}
