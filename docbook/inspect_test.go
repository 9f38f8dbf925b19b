package docbook_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/midbel/docbook/docbook"
)

func TestInspect(t *testing.T) {
	tests := []struct {
		Name     string
		Xml      string
		Root     string
		Title    string
		Document bool
	}{
		{
			Name:     "article",
			Xml:      article,
			Root:     "article",
			Title:    "Getting Started",
			Document: true,
		},
		{
			Name:     "book-info",
			Xml:      `<book><info><title>  User <emphasis>Guide</emphasis> </title></info><chapter><title>Intro</title></chapter></book>`,
			Root:     "book",
			Title:    "User Guide",
			Document: true,
		},
		{
			Name: "chapter",
			Xml:  `<chapter><title>Intro</title></chapter>`,
			Root: "chapter",
		},
		{
			Name: "catalog",
			Xml:  `<catalog xmlns="urn:oasis:names:tc:entity:xmlns:xml:catalog"><title>Ignored</title></catalog>`,
			Root: "catalog",
		},
		{
			Name:     "untitled",
			Xml:      `<article><para>no title</para></article>`,
			Root:     "article",
			Document: true,
		},
	}
	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			file := writeFile(t, dir, tt.Name+".xml", tt.Xml)
			info, err := docbook.Inspect(file)
			if err != nil {
				t.Fatalf("error inspecting document: %s", err)
			}
			if info.Root.Name != tt.Root {
				t.Errorf("root mismatched: want %s, got %s", tt.Root, info.Root.Name)
			}
			if info.Title != tt.Title {
				t.Errorf("title mismatched: want %q, got %q", tt.Title, info.Title)
			}
			if info.IsDocument() != tt.Document {
				t.Errorf("document mismatched: want %t, got %t", tt.Document, info.IsDocument())
			}
		})
	}
}

func TestInspectErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := docbook.Inspect(filepath.Join(dir, "missing.xml")); !errors.Is(err, docbook.ErrInput) {
		t.Errorf("expected input error, got %v", err)
	}
	file := writeFile(t, dir, "broken.xml", "<article><title>")
	if _, err := docbook.Inspect(file); !errors.Is(err, docbook.ErrInput) {
		t.Errorf("expected input error, got %v", err)
	}
}
