package xslt

import (
	"fmt"
	"iter"
	"strings"

	"github.com/midbel/docbook/xpath"
)

type avtPart struct {
	text  string
	query *xpath.Query
}

// AVT is a compiled attribute value template.
type AVT []avtPart

func compileAVT(str string, opts ...xpath.Option) (AVT, error) {
	var list AVT
	for part, expr := range iterAVT(str) {
		if !expr {
			if n := len(list); n > 0 && list[n-1].query == nil {
				list[n-1].text += part
				continue
			}
			list = append(list, avtPart{text: part})
			continue
		}
		if part == "\x00" {
			return nil, fmt.Errorf("%s: unbalanced curly bracket in attribute value template", str)
		}
		q, err := xpath.Compile(part, opts...)
		if err != nil {
			return nil, err
		}
		list = append(list, avtPart{query: q})
	}
	return list, nil
}

// Static gives the value of a template without expression.
func (a AVT) Static() (string, bool) {
	var str strings.Builder
	for _, p := range a {
		if p.query != nil {
			return "", false
		}
		str.WriteString(p.text)
	}
	return str.String(), true
}

func (a AVT) Eval(ctx xpath.Context) (string, error) {
	var str strings.Builder
	for _, p := range a {
		if p.query == nil {
			str.WriteString(p.text)
			continue
		}
		seq, err := p.query.Eval(ctx)
		if err != nil {
			return "", err
		}
		str.WriteString(xpath.AsString(seq))
	}
	return str.String(), nil
}

// iterAVT splits str into its literal and expression parts. Doubled curly
// brackets are literal. A lone closing bracket or an expression without its
// closing bracket is reported as the expression "\x00".
func iterAVT(str string) iter.Seq2[string, bool] {
	fn := func(yield func(string, bool) bool) {
		var (
			offset int
			buf    strings.Builder
		)
		for offset < len(str) {
			c := str[offset]
			switch {
			case c == '{' && strings.HasPrefix(str[offset:], "{{"):
				buf.WriteByte('{')
				offset += 2
			case c == '}' && strings.HasPrefix(str[offset:], "}}"):
				buf.WriteByte('}')
				offset += 2
			case c == '}':
				yield("\x00", true)
				return
			case c == '{':
				ix := closingBracket(str[offset+1:])
				if ix < 0 {
					yield("\x00", true)
					return
				}
				if buf.Len() > 0 {
					if !yield(buf.String(), false) {
						return
					}
					buf.Reset()
				}
				if !yield(str[offset+1:offset+1+ix], true) {
					return
				}
				offset += ix + 2
			default:
				buf.WriteByte(c)
				offset++
			}
		}
		if buf.Len() > 0 {
			yield(buf.String(), false)
		}
	}
	return fn
}

// closingBracket gives the position of the bracket closing an expression,
// skipping string literals.
func closingBracket(str string) int {
	var quote byte
	for i := 0; i < len(str); i++ {
		switch c := str[i]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '}':
			return i
		}
	}
	return -1
}
