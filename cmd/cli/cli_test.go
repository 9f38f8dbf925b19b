package cli

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestExecute(t *testing.T) {
	var got []string
	record := func(name string) Handler {
		return HandlerFunc(func(args []string) error {
			got = append([]string{name}, args...)
			return nil
		})
	}
	root := New()
	root.Register([]string{"transform"}, &Command{
		Name:    "transform",
		Alias:   []string{"tf"},
		Handler: record("transform"),
	})
	root.Register([]string{"catalog", "resolve"}, record("resolve"))

	tests := []struct {
		Args []string
		Want []string
	}{
		{
			Args: []string{"transform", "index.xml"},
			Want: []string{"transform", "index.xml"},
		},
		{
			Args: []string{"tf", "-o", "out", "index.xml"},
			Want: []string{"transform", "-o", "out", "index.xml"},
		},
		{
			Args: []string{"catalog", "resolve", "urn:x"},
			Want: []string{"resolve", "urn:x"},
		},
	}
	for _, tt := range tests {
		got = nil
		if err := root.Execute(tt.Args); err != nil {
			t.Errorf("%v: unexpected error: %s", tt.Args, err)
			continue
		}
		if !slices.Equal(got, tt.Want) {
			t.Errorf("%v: want %v, got %v", tt.Args, tt.Want, got)
		}
	}
}

func TestExecuteUnknown(t *testing.T) {
	root := New()
	root.Register([]string{"transform"}, HandlerFunc(func([]string) error { return nil }))
	root.Register([]string{"version"}, HandlerFunc(func([]string) error { return nil }))

	err := root.Execute([]string{"transfrom"})
	var sugg SuggestionError
	if !errors.As(err, &sugg) {
		t.Fatalf("expected suggestion error, got %v", err)
	}
	if sugg.Name != "transfrom" {
		t.Errorf("name mismatched: %s", sugg.Name)
	}
	if err := root.Execute(nil); !errors.Is(err, ErrMissing) {
		t.Errorf("expected missing subcommand, got %v", err)
	}
}

func TestRegisterTwice(t *testing.T) {
	root := New()
	h := HandlerFunc(func([]string) error { return nil })
	if err := root.Register([]string{"batch"}, h); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := root.Register([]string{"batch"}, h); err == nil {
		t.Errorf("expected error registering command twice")
	}
}

func TestUsage(t *testing.T) {
	root := New()
	root.Register([]string{"version"}, &Command{Name: "version", Summary: "print version"})
	root.Register([]string{"assets"}, &Command{Name: "assets", Summary: "extract assets"})

	var buf bytes.Buffer
	root.Usage(&buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "assets") || !strings.Contains(lines[1], "print version") {
		t.Errorf("usage mismatched: %q", lines)
	}
}

func TestSpinner(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf)
	s.SetMessage("working.")
	s.Run(func() {
		time.Sleep(250 * time.Millisecond)
	})
	s.Stop()
	str := buf.String()
	if !strings.Contains(str, "working...") {
		t.Errorf("message not written: %q", str)
	}
	if !strings.HasSuffix(str, "\x1b[0G\x1b[2K\x1b[0G") {
		t.Errorf("line not cleared")
	}
}
