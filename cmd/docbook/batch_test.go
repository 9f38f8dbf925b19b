package main

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"
)

func TestCollectSources(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		filepath.Join(dir, "index.xml"):          `<article><title>Index</title></article>`,
		filepath.Join(dir, "guide", "intro.XML"): `<book xmlns="http://docbook.org/ns/docbook"><info><title>The <emphasis>Guide</emphasis></title></info></book>`,
		filepath.Join(dir, "guide", "notes.txt"): `<article/>`,
		filepath.Join(dir, "guide", "part.xml"):  `<chapter><title>Part</title></chapter>`,
		filepath.Join(dir, "catalog.xml"):        `<catalog xmlns="urn:oasis:names:tc:entity:xmlns:xml:catalog"/>`,
		filepath.Join(dir, "broken.xml"):         `<article><title>`,
	}
	for f, content := range files {
		if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(f, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	part := filepath.Join(dir, "guide", "part.xml")
	list, err := collectSources([]string{dir, filepath.Join(dir, "index.xml"), part})
	if err != nil {
		t.Fatalf("error collecting sources: %s", err)
	}
	want := []source{
		{Path: filepath.Join(dir, "broken.xml")},
		{Path: filepath.Join(dir, "guide", "intro.XML"), Title: "The Guide"},
		{Path: part, Title: "Part"},
		{Path: filepath.Join(dir, "index.xml"), Title: "Index"},
	}
	if !slices.Equal(list, want) {
		t.Errorf("sources mismatched: want %v, got %v", want, list)
	}
	if _, err := collectSources([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Errorf("expected error for missing source")
	}
}

func TestCheckOutputs(t *testing.T) {
	dir := t.TempDir()
	files := []source{
		{Path: filepath.Join("docs", "a", "index.xml")},
		{Path: filepath.Join("docs", "b", "guide.xml")},
	}
	if err := checkOutputs(files, dir); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	files = append(files, source{Path: filepath.Join("docs", "b", "index.xml")})
	err := checkOutputs(files, dir)
	if err == nil {
		t.Fatalf("expected error for sources written to the same output")
	}
	if want := filepath.Join(dir, "index.html"); !strings.Contains(err.Error(), want) {
		t.Errorf("output not reported: %s", err)
	}
}

func TestBatchModel(t *testing.T) {
	var m tea.Model = createBatchModel(2)

	m, _ = m.Update(job{Source: "a.xml"})
	view := m.View().Content
	if !strings.Contains(view, "1/2") || !strings.Contains(view, "a.xml") {
		t.Errorf("progress not rendered: %q", view)
	}
	m, cmd := m.Update(batchDoneMsg{})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("expected quit message")
	}
	if bm := m.(batchModel); !bm.done || len(bm.jobs) != 1 {
		t.Errorf("model state mismatched: %+v", bm)
	}
}
