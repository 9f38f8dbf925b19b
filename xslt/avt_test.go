package xslt

import (
	"testing"

	"github.com/midbel/docbook/xml"
	"github.com/midbel/docbook/xpath"
)

func TestAVT(t *testing.T) {
	doc, err := xml.ParseString(`<item ref="intro" n="3"/>`)
	if err != nil {
		t.Fatalf("error parsing document: %s", err)
	}
	ctx := xpath.NewContext(doc.Root())
	tests := []struct {
		Input  string
		Want   string
		Static bool
	}{
		{
			Input:  "plain",
			Want:   "plain",
			Static: true,
		},
		{
			Input:  "{{literal}}",
			Want:   "{literal}",
			Static: true,
		},
		{
			Input: "{@ref}.html",
			Want:  "intro.html",
		},
		{
			Input: "#{@ref}-{@n * 2}",
			Want:  "#intro-6",
		},
		{
			Input: "{concat('}', @ref)}",
			Want:  "}intro",
		},
	}
	for _, tt := range tests {
		t.Run(tt.Input, func(t *testing.T) {
			avt, err := compileAVT(tt.Input)
			if err != nil {
				t.Fatalf("error compiling template: %s", err)
			}
			if _, ok := avt.Static(); ok != tt.Static {
				t.Errorf("static mismatched: want %t, got %t", tt.Static, ok)
			}
			got, err := avt.Eval(ctx)
			if err != nil {
				t.Fatalf("error evaluating template: %s", err)
			}
			if got != tt.Want {
				t.Errorf("value mismatched: want %q, got %q", tt.Want, got)
			}
		})
	}
}

func TestAVTInvalid(t *testing.T) {
	tests := []string{
		"{@ref",
		"value}",
		"{@ref}}x{",
		"{1 +}",
	}
	for _, str := range tests {
		if _, err := compileAVT(str); err == nil {
			t.Errorf("%s: expected error", str)
		}
	}
}
