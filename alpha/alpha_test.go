package alpha_test

import (
	"errors"
	"io"
	"testing"

	"github.com/midbel/docbook/alpha"
)

func collect(n alpha.Namer, limit int) []string {
	var list []string
	for i := 0; i < limit; i++ {
		str, err := n.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		list = append(list, str)
	}
	return list
}

func TestChar(t *testing.T) {
	c := alpha.Create('a', 'e', 2)
	var list []rune
	for !c.Done() {
		list = append(list, c.Get())
		c.Next()
	}
	if string(list) != "ace" {
		t.Errorf("unexpected sequence: %s", string(list))
	}
	c.Reset()
	if c.Get() != 'a' {
		t.Errorf("reset: want a, got %c", c.Get())
	}
}

func TestIdentifiers(t *testing.T) {
	n := alpha.Identifiers("id")
	list := collect(n, 26+26*26+1)
	if list[0] != "ida" || list[25] != "idz" || list[26] != "idaa" || list[27] != "idab" {
		t.Errorf("unexpected identifiers: %s %s %s %s", list[0], list[25], list[26], list[27])
	}
	if last := list[len(list)-1]; last != "idaaa" {
		t.Errorf("width not grown: %s", last)
	}
	seen := make(map[string]bool)
	for _, str := range list {
		if seen[str] {
			t.Fatalf("%s: duplicate identifier", str)
		}
		seen[str] = true
	}
	n.Reset()
	if str, _ := n.Next(); str != "ida" {
		t.Errorf("reset: want ida, got %s", str)
	}
}
