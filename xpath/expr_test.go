package xpath

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/midbel/docbook/environ"
	"github.com/midbel/docbook/xml"
)

const document = `<?xml version="1.0" encoding="UTF-8"?>
<root xmlns:db="http://docbook.org/ns/docbook" xml:lang="en-GB">
	<item id="first">element-1</item>
	<item id="second">element-2</item>
	<group>
		<item lang="en">sub-element-1</item>
		<item lang="fr" xml:lang="fr">sub-element-2</item>
		<test ignore="true"/>
	</group>
	<db:para xml:id="intro">docbook</db:para>
	<price>10</price>
	<price>32.5</price>
</root>
`

func parseDocument(t *testing.T) *xml.Document {
	t.Helper()
	doc, err := xml.ParseString(document)
	if err != nil {
		t.Fatalf("fail to parse document: %s", err)
	}
	return doc
}

func testNamespaces(prefix string) (string, bool) {
	if prefix == "db" {
		return "http://docbook.org/ns/docbook", true
	}
	return "", false
}

func TestEvalNodes(t *testing.T) {
	tests := []struct {
		Expr     string
		Expected []string
	}{
		{
			Expr:     "/root/item",
			Expected: []string{"element-1", "element-2"},
		},
		{
			Expr:     "/root/item[1]",
			Expected: []string{"element-1"},
		},
		{
			Expr:     "/root/item[last()]",
			Expected: []string{"element-2"},
		},
		{
			Expr:     "/root/item[position()>=1]",
			Expected: []string{"element-1", "element-2"},
		},
		{
			Expr:     "/root/item[position()>1]",
			Expected: []string{"element-2"},
		},
		{
			Expr:     "//item",
			Expected: []string{"element-1", "element-2", "sub-element-1", "sub-element-2"},
		},
		{
			Expr:     "//group/item[1]",
			Expected: []string{"sub-element-1"},
		},
		{
			Expr:     "(//item)[3]",
			Expected: []string{"sub-element-1"},
		},
		{
			Expr:     "/root/item[2] | /root/item[1]",
			Expected: []string{"element-1", "element-2"},
		},
		{
			Expr:     "//item[text()=\"element-1\"]",
			Expected: []string{"element-1"},
		},
		{
			Expr:     "//@ignore",
			Expected: []string{"true"},
		},
		{
			Expr:     "//item[@lang='en']",
			Expected: []string{"sub-element-1"},
		},
		{
			Expr:     "//item[@id][2]",
			Expected: []string{"element-2"},
		},
		{
			Expr:     "//test/ancestor::*[1]/item[last()]",
			Expected: []string{"sub-element-2"},
		},
		{
			Expr:     "//test/preceding-sibling::item[1]",
			Expected: []string{"sub-element-2"},
		},
		{
			Expr:     "//group/following-sibling::*",
			Expected: []string{"docbook", "10", "32.5"},
		},
		{
			Expr:     "//db:para",
			Expected: []string{"docbook"},
		},
		{
			Expr:     "//db:*",
			Expected: []string{"docbook"},
		},
		{
			Expr:     "/root/para",
			Expected: nil,
		},
		{
			Expr:     "id('second intro')",
			Expected: []string{"element-2", "docbook"},
		},
		{
			Expr:     "//item[lang('fr')]",
			Expected: []string{"sub-element-2"},
		},
		{
			Expr:     "//price[. > 20]",
			Expected: []string{"32.5"},
		},
		{
			Expr:     "//item[starts-with(., 'sub')][not(@xml:lang)]",
			Expected: []string{"sub-element-1"},
		},
		{
			Expr:     "//group/..",
			Expected: []string{"element-1element-2sub-element-1sub-element-2docbook1032.5"},
		},
	}

	doc := parseDocument(t)
	for _, c := range tests {
		t.Run(c.Expr, func(t *testing.T) {
			q, err := Compile(c.Expr, WithNamespaces(testNamespaces))
			if err != nil {
				t.Fatalf("fail to compile expression: %s", err)
			}
			seq, err := q.Find(doc)
			if err != nil {
				t.Fatalf("fail to evaluate expression: %s", err)
			}
			if seq.Len() != len(c.Expected) {
				t.Fatalf("number of nodes mismatched! want %d, got %d", len(c.Expected), seq.Len())
			}
			for i, item := range seq {
				got := normalize(itemString(item))
				if got != c.Expected[i] {
					t.Errorf("node %d mismatched! want %q, got %q", i, c.Expected[i], got)
				}
			}
		})
	}
}

func TestEvalValues(t *testing.T) {
	tests := []struct {
		Expr     string
		Expected string
	}{
		{Expr: "count(//item)", Expected: "4"},
		{Expr: "1 + 2 * 3", Expected: "7"},
		{Expr: "(1 + 2) * 3", Expected: "9"},
		{Expr: "10 div 4", Expected: "2.5"},
		{Expr: "7 mod 3", Expected: "1"},
		{Expr: "-3 - -2", Expected: "-1"},
		{Expr: "1 div 0", Expected: "Infinity"},
		{Expr: "0 div 0", Expected: "NaN"},
		{Expr: "sum(//price)", Expected: "42.5"},
		{Expr: "string(//price[2] * 2)", Expected: "65"},
		{Expr: "concat('a', 'b', 1)", Expected: "ab1"},
		{Expr: "substring('12345', 2, 3)", Expected: "234"},
		{Expr: "substring('12345', 1.5, 2.6)", Expected: "234"},
		{Expr: "substring('12345', 0, 3)", Expected: "12"},
		{Expr: "substring('12345', 0 div 0, 3)", Expected: ""},
		{Expr: "substring('12345', -42, 1 div 0)", Expected: "12345"},
		{Expr: "substring-before('1999/04/01', '/')", Expected: "1999"},
		{Expr: "substring-after('1999/04/01', '/')", Expected: "04/01"},
		{Expr: "string-length('docbook')", Expected: "7"},
		{Expr: "normalize-space('  a   b  ')", Expected: "a b"},
		{Expr: "translate('bar', 'abc', 'ABC')", Expected: "BAr"},
		{Expr: "translate('--aaa--', 'abc-', 'ABC')", Expected: "AAA"},
		{Expr: "round(2.5)", Expected: "3"},
		{Expr: "round(-2.5)", Expected: "-2"},
		{Expr: "floor(-1.5)", Expected: "-2"},
		{Expr: "ceiling(1.2)", Expected: "2"},
		{Expr: "number('  12 ')", Expected: "12"},
		{Expr: "number('1e3')", Expected: "NaN"},
		{Expr: "boolean('')", Expected: "false"},
		{Expr: "boolean(//test)", Expected: "true"},
		{Expr: "not(//missing)", Expected: "true"},
		{Expr: "//price = 10", Expected: "true"},
		{Expr: "//price != 10", Expected: "true"},
		{Expr: "//price > 40", Expected: "false"},
		{Expr: "10 < //price", Expected: "true"},
		{Expr: "//item = 'element-2'", Expected: "true"},
		{Expr: "true() = 'false'", Expected: "true"},
		{Expr: "'1.0' = 1", Expected: "true"},
		{Expr: "1 = 2 or 2 = 2", Expected: "true"},
		{Expr: "1 = 1 and 2 = 3", Expected: "false"},
		{Expr: "name(//db:para)", Expected: "db:para"},
		{Expr: "local-name(//db:para)", Expected: "para"},
		{Expr: "namespace-uri(//db:para)", Expected: "http://docbook.org/ns/docbook"},
		{Expr: "name(//missing)", Expected: ""},
		{Expr: "contains(/root/item[1], 'ment')", Expected: "true"},
	}

	doc := parseDocument(t)
	for _, c := range tests {
		t.Run(c.Expr, func(t *testing.T) {
			seq, err := Find(doc, c.Expr, WithNamespaces(testNamespaces))
			if err != nil {
				t.Fatalf("fail to evaluate expression: %s", err)
			}
			if got := AsString(seq); got != c.Expected {
				t.Errorf("result mismatched! want %q, got %q", c.Expected, got)
			}
		})
	}
}

func TestEvalContext(t *testing.T) {
	doc := parseDocument(t)

	ctx := NewContext(doc)
	ctx.Variables = environ.Enclosed(ctx.Variables)
	ctx.Variables.Define("limit", NewNumber(20))
	ctx.Variables.Define("{http://docbook.org/ns/docbook}name", NewString("group"))
	ctx.Functions = environ.Enclosed(ctx.Functions)
	ctx.Functions.Define("{urn:test}twice", func(_ Context, args []Sequence) (Sequence, error) {
		return NewNumber(AsNumber(args[0]) * 2), nil
	})

	opts := []Option{
		WithNamespaces(func(prefix string) (string, bool) {
			switch prefix {
			case "t":
				return "urn:test", true
			case "db":
				return "http://docbook.org/ns/docbook", true
			default:
				return "", false
			}
		}),
	}

	tests := []struct {
		Expr     string
		Expected string
	}{
		{Expr: "count(//price[. < $limit])", Expected: "1"},
		{Expr: "t:twice($limit)", Expected: "40"},
		{Expr: "local-name(//*[local-name() = $db:name])", Expected: "group"},
	}
	for _, c := range tests {
		t.Run(c.Expr, func(t *testing.T) {
			q, err := Compile(c.Expr, opts...)
			if err != nil {
				t.Fatalf("fail to compile expression: %s", err)
			}
			seq, err := q.Eval(ctx)
			if err != nil {
				t.Fatalf("fail to evaluate expression: %s", err)
			}
			if got := AsString(seq); got != c.Expected {
				t.Errorf("result mismatched! want %q, got %q", c.Expected, got)
			}
		})
	}
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		Expr string
		Err  error
	}{
		{Expr: "$undefined", Err: ErrUndefined},
		{Expr: "foo(1)", Err: ErrUndefined},
		{Expr: "count(1)", Err: ErrType},
		{Expr: "'a'/b", Err: ErrType},
		{Expr: "1 | //item", Err: ErrType},
	}
	doc := parseDocument(t)
	for _, c := range tests {
		t.Run(c.Expr, func(t *testing.T) {
			_, err := Find(doc, c.Expr)
			if !errors.Is(err, c.Err) {
				t.Errorf("error mismatched! want %v, got %v", c.Err, err)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []string{
		"",
		"/root/",
		"//",
		"item[1",
		"count(//item",
		"count()",
		"concat('a')",
		"substring('a', 1, 2, 3)",
		"foo::item",
		"unknown:item",
		"1 +",
		"'unterminated",
		"item item",
		"f(1,)",
	}
	for _, str := range tests {
		t.Run(str, func(t *testing.T) {
			_, err := Compile(str)
			if err == nil {
				t.Fatalf("expected error but expression compiled")
			}
			if !errors.Is(err, ErrSyntax) {
				t.Errorf("syntax error expected, got %v", err)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		Value    float64
		Expected string
	}{
		{Value: 0, Expected: "0"},
		{Value: math.Copysign(0, -1), Expected: "0"},
		{Value: 1, Expected: "1"},
		{Value: -12, Expected: "-12"},
		{Value: 0.5, Expected: "0.5"},
		{Value: 1e21, Expected: "1000000000000000000000"},
		{Value: math.NaN(), Expected: "NaN"},
		{Value: math.Inf(1), Expected: "Infinity"},
		{Value: math.Inf(-1), Expected: "-Infinity"},
	}
	for _, c := range tests {
		if got := FormatNumber(c.Value); got != c.Expected {
			t.Errorf("%v: format mismatched! want %s, got %s", c.Value, c.Expected, got)
		}
	}
}

func normalize(str string) string {
	return strings.Join(strings.Fields(str), "")
}
