package xslt

import (
	"math"
	"testing"
)

func TestFormatNumbers(t *testing.T) {
	tests := []struct {
		Nums   []int
		Format string
		Sep    string
		Size   int
		Want   string
	}{
		{Nums: []int{3}, Format: "1", Want: "3"},
		{Nums: []int{1, 2, 3}, Format: "1.1", Want: "1.2.3"},
		{Nums: []int{1, 2}, Format: "1.a", Want: "1.b"},
		{Nums: []int{2, 4}, Format: "[I-i]", Want: "[II-iv]"},
		{Nums: []int{5}, Format: "001", Want: "005"},
		{Nums: []int{27}, Format: "A", Want: "AA"},
		{Nums: []int{1999}, Format: "I", Want: "MCMXCIX"},
		{Nums: []int{1234567}, Format: "1", Sep: " ", Size: 3, Want: "1 234 567"},
		{Nums: nil, Format: "1", Want: ""},
	}
	for _, tt := range tests {
		got := formatNumbers(tt.Nums, tt.Format, tt.Sep, tt.Size)
		if got != tt.Want {
			t.Errorf("%v/%s: want %q, got %q", tt.Nums, tt.Format, tt.Want, got)
		}
	}
}

func TestDecimalFormat(t *testing.T) {
	df := defaultDecimalFormat()
	tests := []struct {
		Value   float64
		Pattern string
		Want    string
	}{
		{Value: 1234.5, Pattern: "#,##0.00", Want: "1,234.50"},
		{Value: 0.5, Pattern: "#.##", Want: ".5"},
		{Value: 0.5, Pattern: "0.##", Want: "0.5"},
		{Value: 42, Pattern: "000", Want: "042"},
		{Value: 3.14159, Pattern: "0.00", Want: "3.14"},
		{Value: -12, Pattern: "0", Want: "-12"},
		{Value: -12, Pattern: "0;(0)", Want: "(12)"},
		{Value: 0.25, Pattern: "0%", Want: "25%"},
		{Value: math.NaN(), Pattern: "0", Want: "NaN"},
		{Value: math.Inf(1), Pattern: "0", Want: "Infinity"},
		{Value: math.Inf(-1), Pattern: "0", Want: "-Infinity"},
	}
	for _, tt := range tests {
		got, err := df.Format(tt.Value, tt.Pattern)
		if err != nil {
			t.Errorf("%v/%s: unexpected error: %s", tt.Value, tt.Pattern, err)
			continue
		}
		if got != tt.Want {
			t.Errorf("%v/%s: want %q, got %q", tt.Value, tt.Pattern, tt.Want, got)
		}
	}
}

func TestDecimalFormatInvalid(t *testing.T) {
	df := defaultDecimalFormat()
	for _, str := range []string{"abc", "0.0.0", "0;0;0", "0.0,0"} {
		if _, err := df.Format(1, str); err == nil {
			t.Errorf("%s: expected error", str)
		}
	}
}
