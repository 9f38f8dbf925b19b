package xslt

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/midbel/docbook/xml"
	"github.com/midbel/docbook/xpath"
)

func executeNumber(ctx *Context) (xpath.Sequence, error) {
	var nums []int
	if q := ctx.query("value"); q != nil {
		seq, err := q.Eval(ctx.xpathContext())
		if err != nil {
			return nil, ctx.errorWithContext(err)
		}
		f := xpath.AsNumber(seq)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return xpath.NewNodes(xml.NewText(xpath.FormatNumber(f))), nil
		}
		nums = append(nums, int(math.Round(f)))
	} else {
		list, err := countNodes(ctx)
		if err != nil {
			return nil, ctx.errorWithContext(err)
		}
		nums = list
	}
	format, ok, err := ctx.avt("format")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if !ok || format == "" {
		format = "1"
	}
	var (
		sep  string
		size int
	)
	if str, ok, err := ctx.avt("grouping-separator"); err != nil {
		return nil, ctx.errorWithContext(err)
	} else if ok {
		sep = str
	}
	if str, ok, err := ctx.avt("grouping-size"); err != nil {
		return nil, ctx.errorWithContext(err)
	} else if ok {
		size, _ = strconv.Atoi(strings.TrimSpace(str))
	}
	str := formatNumbers(nums, format, sep, size)
	if str == "" {
		return nil, nil
	}
	return xpath.NewNodes(xml.NewText(str)), nil
}

// countNodes computes the numbers of the current node given the level, count
// and from attributes of xsl:number.
func countNodes(ctx *Context) ([]int, error) {
	var (
		el   = ctx.element()
		node = ctx.ContextNode
		mctx = ctx.matchContext(node)
	)
	count := func(n xml.Node) bool {
		return sameKind(n, node)
	}
	if p := ctx.pattern("count"); p != nil {
		count = func(n xml.Node) bool {
			return p.Match(mctx, n)
		}
	}
	from := func(_ xml.Node) bool {
		return false
	}
	if p := ctx.pattern("from"); p != nil {
		from = func(n xml.Node) bool {
			return p.Match(mctx, n)
		}
	}
	level, _ := attrValue(el, "level")
	switch level {
	case "", "single":
		for n := node; n != nil; n = n.Parent() {
			if count(n) {
				return []int{siblingPosition(n, count)}, nil
			}
			if from(n) {
				break
			}
		}
		return nil, nil
	case "multiple":
		var list []int
		for n := node; n != nil; n = n.Parent() {
			if from(n) {
				break
			}
			if count(n) {
				list = append([]int{siblingPosition(n, count)}, list...)
			}
		}
		return list, nil
	case "any":
		var (
			total int
			done  = errors.New("done")
		)
		err := walkNodes(xml.Root(node), func(n xml.Node) error {
			if n.Type() == xml.TypeAttribute && n != node {
				return nil
			}
			if from(n) {
				total = 0
			}
			if count(n) {
				total++
			}
			if n == node {
				return done
			}
			return nil
		})
		if err != nil && err != done {
			return nil, err
		}
		if total == 0 {
			return nil, nil
		}
		return []int{total}, nil
	default:
		return nil, fmt.Errorf("%s: invalid level", level)
	}
}

func sameKind(n, other xml.Node) bool {
	if n.Type() != other.Type() {
		return false
	}
	switch x := n.(type) {
	case *xml.Element:
		y := other.(*xml.Element)
		return x.QName.Equal(y.QName)
	case *xml.Attribute:
		y := other.(*xml.Attribute)
		return x.QName.Equal(y.QName)
	case *xml.Instruction:
		return x.Name == other.(*xml.Instruction).Name
	default:
		return true
	}
}

func siblingPosition(node xml.Node, count func(xml.Node) bool) int {
	pos := 1
	parent := node.Parent()
	if parent == nil || node.Type() == xml.TypeAttribute {
		return pos
	}
	for _, n := range xml.Children(parent) {
		if n == node {
			break
		}
		if count(n) {
			pos++
		}
	}
	return pos
}

// formatNumbers formats a list of numbers with a format string made of
// alphanumeric tokens separated by punctuation.
func formatNumbers(nums []int, format, sep string, size int) string {
	var (
		prefix, suffix string
		tokens         []string
		separators     []string
	)
	parts := splitFormat(format)
	if len(parts) > 0 && !isFormatToken(parts[0]) {
		prefix, parts = parts[0], parts[1:]
	}
	if n := len(parts); n > 0 && !isFormatToken(parts[n-1]) {
		suffix, parts = parts[n-1], parts[:n-1]
	}
	for _, p := range parts {
		if isFormatToken(p) {
			tokens = append(tokens, p)
		} else {
			separators = append(separators, p)
		}
	}
	if len(tokens) == 0 {
		tokens = append(tokens, "1")
	}
	if len(nums) == 0 {
		return ""
	}
	var str strings.Builder
	str.WriteString(prefix)
	for i, n := range nums {
		if i > 0 {
			s := "."
			if j := i - 1; j < len(separators) {
				s = separators[j]
			} else if len(separators) > 0 {
				s = separators[len(separators)-1]
			}
			str.WriteString(s)
		}
		tok := tokens[len(tokens)-1]
		if i < len(tokens) {
			tok = tokens[i]
		}
		str.WriteString(formatToken(n, tok, sep, size))
	}
	str.WriteString(suffix)
	return str.String()
}

func splitFormat(format string) []string {
	var (
		parts []string
		curr  strings.Builder
		alnum bool
	)
	for i, r := range format {
		isAlnum := unicode.IsLetter(r) || unicode.IsDigit(r)
		if i > 0 && isAlnum != alnum {
			parts = append(parts, curr.String())
			curr.Reset()
		}
		alnum = isAlnum
		curr.WriteRune(r)
	}
	if curr.Len() > 0 {
		parts = append(parts, curr.String())
	}
	return parts
}

func isFormatToken(str string) bool {
	r, _ := utf8.DecodeRuneInString(str)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func formatToken(n int, tok, sep string, size int) string {
	switch tok {
	case "a":
		return alphabetic(n, 'a')
	case "A":
		return alphabetic(n, 'A')
	case "i":
		return strings.ToLower(roman(n))
	case "I":
		return roman(n)
	}
	str := strconv.Itoa(n)
	if width := utf8.RuneCountInString(tok); len(str) < width {
		str = strings.Repeat("0", width-len(str)) + str
	}
	if sep != "" && size > 0 {
		str = groupDigits(str, sep, size)
	}
	return str
}

func groupDigits(str, sep string, size int) string {
	if len(str) <= size {
		return str
	}
	var parts []string
	for len(str) > size {
		parts = append([]string{str[len(str)-size:]}, parts...)
		str = str[:len(str)-size]
	}
	parts = append([]string{str}, parts...)
	return strings.Join(parts, sep)
}

func alphabetic(n int, base rune) string {
	if n <= 0 {
		return strconv.Itoa(n)
	}
	var list []rune
	for n > 0 {
		n--
		list = append([]rune{base + rune(n%26)}, list...)
		n /= 26
	}
	return string(list)
}

var romans = []struct {
	value  int
	symbol string
}{
	{1000, "M"},
	{900, "CM"},
	{500, "D"},
	{400, "CD"},
	{100, "C"},
	{90, "XC"},
	{50, "L"},
	{40, "XL"},
	{10, "X"},
	{9, "IX"},
	{5, "V"},
	{4, "IV"},
	{1, "I"},
}

func roman(n int) string {
	if n <= 0 || n >= 4000 {
		return strconv.Itoa(n)
	}
	var str strings.Builder
	for _, r := range romans {
		for n >= r.value {
			str.WriteString(r.symbol)
			n -= r.value
		}
	}
	return str.String()
}

type decimalFormat struct {
	decimal   rune
	grouping  rune
	infinity  string
	minus     rune
	nan       string
	percent   rune
	permille  rune
	zero      rune
	digit     rune
	separator rune
}

func defaultDecimalFormat() *decimalFormat {
	return &decimalFormat{
		decimal:   '.',
		grouping:  ',',
		infinity:  "Infinity",
		minus:     '-',
		nan:       "NaN",
		percent:   '%',
		permille:  '‰',
		zero:      '0',
		digit:     '#',
		separator: ';',
	}
}

func createDecimalFormat(el *xml.Element) (*decimalFormat, error) {
	df := defaultDecimalFormat()
	chars := map[string]*rune{
		"decimal-separator":  &df.decimal,
		"grouping-separator": &df.grouping,
		"minus-sign":         &df.minus,
		"percent":            &df.percent,
		"per-mille":          &df.permille,
		"zero-digit":         &df.zero,
		"digit":              &df.digit,
		"pattern-separator":  &df.separator,
	}
	for attr, ptr := range chars {
		str, ok := attrValue(el, attr)
		if !ok {
			continue
		}
		if utf8.RuneCountInString(str) != 1 {
			return nil, fmt.Errorf("%s: single character expected", attr)
		}
		*ptr, _ = utf8.DecodeRuneInString(str)
	}
	if str, ok := attrValue(el, "infinity"); ok {
		df.infinity = str
	}
	if str, ok := attrValue(el, "NaN"); ok {
		df.nan = str
	}
	return df, nil
}

type numberPattern struct {
	prefix   string
	suffix   string
	minInt   int
	minFrac  int
	maxFrac  int
	grouping int
	factor   float64
}

func (df *decimalFormat) parsePattern(str string) (numberPattern, error) {
	var (
		p     = numberPattern{factor: 1, grouping: -1}
		runes = []rune(str)
		beg   = -1
		end   = -1
	)
	for i, r := range runes {
		if df.special(r) {
			if beg < 0 {
				beg = i
			}
			end = i + 1
		}
	}
	if beg < 0 {
		return p, fmt.Errorf("%s: invalid number pattern", str)
	}
	p.prefix = string(runes[:beg])
	p.suffix = string(runes[end:])
	for _, r := range p.prefix + p.suffix {
		switch r {
		case df.percent:
			p.factor = 100
		case df.permille:
			p.factor = 1000
		}
	}
	var (
		fraction bool
		lastSep  = -1
		intLen   int
	)
	for _, r := range runes[beg:end] {
		switch r {
		case df.decimal:
			if fraction {
				return p, fmt.Errorf("%s: multiple decimal separators", str)
			}
			fraction = true
		case df.grouping:
			if fraction {
				return p, fmt.Errorf("%s: grouping separator in fraction", str)
			}
			lastSep = intLen
		case df.zero:
			if fraction {
				p.minFrac++
				p.maxFrac++
			} else {
				p.minInt++
				intLen++
			}
		case df.digit:
			if fraction {
				p.maxFrac++
			} else {
				intLen++
			}
		}
	}
	if lastSep >= 0 {
		p.grouping = intLen - lastSep
	}
	return p, nil
}

func (df *decimalFormat) special(r rune) bool {
	return r == df.decimal || r == df.grouping || r == df.zero || r == df.digit
}

// Format implements format-number.
func (df *decimalFormat) Format(value float64, pattern string) (string, error) {
	var (
		parts    = strings.Split(pattern, string(df.separator))
		positive numberPattern
		negative numberPattern
		err      error
	)
	if len(parts) > 2 {
		return "", fmt.Errorf("%s: too many sub patterns", pattern)
	}
	if positive, err = df.parsePattern(parts[0]); err != nil {
		return "", err
	}
	negative = positive
	negative.prefix = string(df.minus) + positive.prefix
	if len(parts) == 2 {
		if negative, err = df.parsePattern(parts[1]); err != nil {
			return "", err
		}
	}
	if math.IsNaN(value) {
		return df.nan, nil
	}
	p := positive
	if value < 0 || (value == 0 && math.Signbit(value)) {
		p = negative
		value = -value
	}
	if value == 0 {
		p = positive
	}
	if math.IsInf(value, 0) {
		return p.prefix + df.infinity + p.suffix, nil
	}
	value *= p.factor

	str := strconv.FormatFloat(value, 'f', p.maxFrac, 64)
	intPart, fracPart, _ := strings.Cut(str, ".")
	fracPart = strings.TrimRight(fracPart, "0")
	for len(fracPart) < p.minFrac {
		fracPart += "0"
	}
	intPart = strings.TrimLeft(intPart, "0")
	for len(intPart) < p.minInt {
		intPart = "0" + intPart
	}
	if intPart == "" && fracPart == "" {
		intPart = "0"
	}
	if p.grouping > 0 {
		intPart = groupDigits(intPart, string(df.grouping), p.grouping)
	}
	var res strings.Builder
	res.WriteString(p.prefix)
	res.WriteString(df.localize(intPart))
	if fracPart != "" {
		res.WriteRune(df.decimal)
		res.WriteString(df.localize(fracPart))
	}
	res.WriteString(p.suffix)
	return res.String(), nil
}

func (df *decimalFormat) localize(str string) string {
	if df.zero == '0' {
		return str
	}
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return df.zero + (r - '0')
		}
		return r
	}, str)
}
