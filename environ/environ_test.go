package environ_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/midbel/docbook/environ"
)

func TestResolve(t *testing.T) {
	root := environ.Empty[string]()
	root.Define("chapter", "outer")
	root.Define("lang", "en")

	sub := environ.Enclosed(root)
	sub.Define("chapter", "inner")

	tests := []struct {
		Ident string
		Want  string
		Env   environ.Environ[string]
	}{
		{Ident: "chapter", Want: "inner", Env: sub},
		{Ident: "lang", Want: "en", Env: sub},
		{Ident: "chapter", Want: "outer", Env: root},
	}
	for _, c := range tests {
		got, err := c.Env.Resolve(c.Ident)
		if err != nil {
			t.Errorf("%s: unexpected error: %s", c.Ident, err)
			continue
		}
		if got != c.Want {
			t.Errorf("%s: want %q, got %q", c.Ident, c.Want, got)
		}
	}
	if _, err := sub.Resolve("missing"); !errors.Is(err, environ.ErrDefined) {
		t.Errorf("missing identifier: expected ErrDefined, got %v", err)
	}
}

func TestNamesAndUnwrap(t *testing.T) {
	root := environ.Empty[int]()
	sub := environ.Enclosed(root)
	sub.Define("b", 2)
	sub.Define("a", 1)

	if got := sub.Names(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("names: got %v", got)
	}
	if sub.Len() != 2 {
		t.Errorf("len: want 2, got %d", sub.Len())
	}
	u, ok := sub.(interface{ Unwrap() environ.Environ[int] })
	if !ok {
		t.Fatalf("environment can not be unwrapped")
	}
	if u.Unwrap() != root {
		t.Errorf("unwrap should return the parent scope")
	}
	if _, ok := environ.Lookup(root, "a"); ok {
		t.Errorf("parent scope should not see child definitions")
	}
}

func TestClone(t *testing.T) {
	root := environ.Empty[int]()
	root.Define("x", 1)
	c, ok := root.(interface{ Clone() environ.Environ[int] })
	if !ok {
		t.Fatalf("environment can not be cloned")
	}
	other := c.Clone()
	other.Define("x", 2)
	if v, _ := root.Resolve("x"); v != 1 {
		t.Errorf("clone should not alter original: got %d", v)
	}
}
