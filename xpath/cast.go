package xpath

import (
	"math"
	"strconv"
	"strings"

	"github.com/midbel/docbook/xml"
)

// AsString converts seq to a string following the rules of the string()
// function: a node-set gives the string value of its first node.
func AsString(seq Sequence) string {
	if seq.Empty() {
		return ""
	}
	return itemString(seq[0])
}

// AsNumber converts seq to a number following the rules of the number()
// function.
func AsNumber(seq Sequence) float64 {
	if seq.Empty() {
		return math.NaN()
	}
	if !seq.NodeSet() {
		return itemNumber(seq[0])
	}
	return parseNumber(AsString(seq))
}

// AsBoolean converts seq to a boolean following the rules of the boolean()
// function.
func AsBoolean(seq Sequence) bool {
	if seq.Empty() {
		return false
	}
	if seq.NodeSet() {
		return true
	}
	switch v := seq[0].Value().(type) {
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case string:
		return v != ""
	default:
		return false
	}
}

func itemString(i Item) string {
	if n := i.Node(); n != nil {
		return stringValue(n)
	}
	switch v := i.Value().(type) {
	case string:
		return v
	case float64:
		return FormatNumber(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func itemNumber(i Item) float64 {
	if n := i.Node(); n != nil {
		return parseNumber(stringValue(n))
	}
	switch v := i.Value().(type) {
	case float64:
		return v
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		return parseNumber(v)
	default:
		return math.NaN()
	}
}

func stringValue(node xml.Node) string {
	return node.Value()
}

// FormatNumber gives the string representation of a number: integers have no
// decimal point and no number is ever written in exponential notation.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', 0, 64)
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}

// parseNumber accepts an optional minus sign followed by digits with an
// optional decimal point, surrounded by white space. Anything else is NaN.
func parseNumber(str string) float64 {
	str = strings.Trim(str, " \t\r\n")
	body := strings.TrimPrefix(str, "-")
	if body == "" {
		return math.NaN()
	}
	var digits, dots int
	for _, c := range body {
		switch {
		case isDigit(c):
			digits++
		case c == '.':
			dots++
		default:
			return math.NaN()
		}
	}
	if digits == 0 || dots > 1 {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func compare(op rune, left, right Sequence) bool {
	var (
		lns = left.NodeSet()
		rns = right.NodeSet()
	)
	switch {
	case lns && rns:
		for _, l := range left {
			ls := itemString(l)
			for _, r := range right {
				if compareStrings(op, ls, itemString(r)) {
					return true
				}
			}
		}
		return false
	case lns || rns:
		nodes, other := left, right
		if !lns {
			nodes, other = right, left
			op = flipOperator(op)
		}
		switch v := other[0].Value().(type) {
		case bool:
			return compareBooleans(op, AsBoolean(nodes), v)
		case float64:
			for _, n := range nodes {
				if compareNumbers(op, itemNumber(n), v) {
					return true
				}
			}
		case string:
			for _, n := range nodes {
				if compareStrings(op, itemString(n), v) {
					return true
				}
			}
		}
		return false
	default:
		return compareAtomics(op, left[0], right[0])
	}
}

func compareAtomics(op rune, left, right Item) bool {
	if op != opEq && op != opNe {
		return compareNumbers(op, itemNumber(left), itemNumber(right))
	}
	_, lb := left.Value().(bool)
	_, rb := right.Value().(bool)
	if lb || rb {
		return compareBooleans(op, AsBoolean(Sequence{left}), AsBoolean(Sequence{right}))
	}
	_, ln := left.Value().(float64)
	_, rn := right.Value().(float64)
	if ln || rn {
		return compareNumbers(op, itemNumber(left), itemNumber(right))
	}
	return compareStrings(op, itemString(left), itemString(right))
}

func compareStrings(op rune, left, right string) bool {
	switch op {
	case opEq:
		return left == right
	case opNe:
		return left != right
	default:
		return compareNumbers(op, parseNumber(left), parseNumber(right))
	}
}

func compareBooleans(op rune, left, right bool) bool {
	switch op {
	case opEq:
		return left == right
	case opNe:
		return left != right
	default:
		return compareNumbers(op, boolNumber(left), boolNumber(right))
	}
}

func compareNumbers(op rune, left, right float64) bool {
	switch op {
	case opEq:
		return left == right
	case opNe:
		return left != right
	case opLt:
		return left < right
	case opLe:
		return left <= right
	case opGt:
		return left > right
	case opGe:
		return left >= right
	default:
		return false
	}
}

func flipOperator(op rune) rune {
	switch op {
	case opLt:
		return opGt
	case opLe:
		return opGe
	case opGt:
		return opLt
	case opGe:
		return opLe
	default:
		return op
	}
}

func boolNumber(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
