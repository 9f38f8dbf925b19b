package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/spf13/pflag"

	"github.com/midbel/docbook/bundle"
	"github.com/midbel/docbook/config"
)

const sample = `
stylesheet: xsl/site.xsl
output-dir: build
xinclude: false
search-path:
  - catalogs
highlight:
  enabled: true
admon-graphics-path: images/
variables:
  version: "1.2"
params:
  html.ext: .xhtml
jobs: 2
`

func TestDefault(t *testing.T) {
	cfg, err := config.Load("", lookup(nil))
	if err != nil {
		t.Fatalf("error loading configuration: %s", err)
	}
	if cfg.Stylesheet != bundle.StylesheetChunk {
		t.Errorf("stylesheet mismatched: %s", cfg.Stylesheet)
	}
	if !cfg.XInclude {
		t.Errorf("xinclude should be enabled by default")
	}
	if cfg.Workers() <= 0 {
		t.Errorf("workers should be positive")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	file := writeConfig(t, dir, sample)

	cfg, err := config.Load(file, lookup(nil))
	if err != nil {
		t.Fatalf("error loading configuration: %s", err)
	}
	if want := filepath.Join(dir, "xsl", "site.xsl"); cfg.Stylesheet != want {
		t.Errorf("stylesheet mismatched: want %s, got %s", want, cfg.Stylesheet)
	}
	if want := filepath.Join(dir, "build"); cfg.OutputDir != want {
		t.Errorf("output dir mismatched: want %s, got %s", want, cfg.OutputDir)
	}
	if cfg.XInclude {
		t.Errorf("xinclude should be disabled")
	}
	if want := []string{filepath.Join(dir, "catalogs")}; !slices.Equal(cfg.SearchPath, want) {
		t.Errorf("search path mismatched: %v", cfg.SearchPath)
	}
	if cfg.Workers() != 2 {
		t.Errorf("workers mismatched: %d", cfg.Workers())
	}
	p := cfg.TransformParams()
	if p.Highlight == nil || p.Highlight.Config != "" {
		t.Errorf("highlighting not enabled with bundled configuration")
	}
	if p.AdmonGraphicsPath != "images/" || p.Variables["version"] != "1.2" || p.Extra["html.ext"] != ".xhtml" {
		t.Errorf("params mismatched: %+v", p)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	file := writeConfig(t, dir, sample)
	env := map[string]string{
		config.EnvConfig:              file,
		"DOCBOOK_STYLESHEET":          bundle.StylesheetHTML,
		"DOCBOOK_XINCLUDE":            "true",
		"DOCBOOK_JOBS":                "4",
		"DOCBOOK_ADMON_GRAPHICS_PATH": "",
	}
	cfg, err := config.Load("", lookup(env))
	if err != nil {
		t.Fatalf("error loading configuration: %s", err)
	}
	if cfg.Stylesheet != bundle.StylesheetHTML {
		t.Errorf("stylesheet not overridden: %s", cfg.Stylesheet)
	}
	if !cfg.XInclude || cfg.Jobs != 4 {
		t.Errorf("environment not applied: %+v", cfg)
	}
	if cfg.AdmonGraphicsPath != "images/" {
		t.Errorf("empty variable should not override: %s", cfg.AdmonGraphicsPath)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		Name string
		File string
		Env  map[string]string
	}{
		{
			Name: "unknown-field",
			File: "colors: 256\n",
		},
		{
			Name: "negative-jobs",
			File: "jobs: -1\n",
		},
		{
			Name: "highlight-disabled",
			File: "highlight:\n  config: hl.yaml\n",
		},
		{
			Name: "bad-bool",
			Env: map[string]string{
				"DOCBOOK_XINCLUDE": "maybe",
			},
		},
		{
			Name: "bad-jobs",
			Env: map[string]string{
				"DOCBOOK_JOBS": "many",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			var file string
			if tt.File != "" {
				file = writeConfig(t, t.TempDir(), tt.File)
			}
			_, err := config.Load(file, lookup(tt.Env))
			if !errors.Is(err, config.ErrInvalid) {
				t.Errorf("expected invalid configuration, got %v", err)
			}
		})
	}
}

func TestFlags(t *testing.T) {
	dir := t.TempDir()
	file := writeConfig(t, dir, sample)

	set := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := config.Bind(set)
	args := []string{
		"--config", file,
		"--xinclude=true",
		"--var", "author=me",
		"--param", "html.ext=.htm",
		"-o", "out",
		"index.xml",
	}
	if err := set.Parse(args); err != nil {
		t.Fatalf("error parsing flags: %s", err)
	}
	if flags.File() != file {
		t.Errorf("config file mismatched: %s", flags.File())
	}
	cfg, err := flags.Resolve(lookup(map[string]string{"DOCBOOK_JOBS": "3"}))
	if err != nil {
		t.Fatalf("error resolving configuration: %s", err)
	}
	if !cfg.XInclude {
		t.Errorf("flag should override file")
	}
	if cfg.OutputDir != "out" {
		t.Errorf("output dir mismatched: %s", cfg.OutputDir)
	}
	if cfg.Jobs != 3 {
		t.Errorf("environment should apply when flag not given: %d", cfg.Jobs)
	}
	if cfg.Variables["version"] != "1.2" || cfg.Variables["author"] != "me" {
		t.Errorf("variables not merged: %v", cfg.Variables)
	}
	if cfg.Params["html.ext"] != ".htm" {
		t.Errorf("param not overridden: %v", cfg.Params)
	}
	if want := filepath.Join(dir, "xsl", "site.xsl"); cfg.Stylesheet != want {
		t.Errorf("stylesheet should come from file: %s", cfg.Stylesheet)
	}
	if args := set.Args(); len(args) != 1 || args[0] != "index.xml" {
		t.Errorf("arguments mismatched: %v", args)
	}
}

func TestTransformer(t *testing.T) {
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	tf, err := cfg.Transformer("index.xml", nil)
	if err != nil {
		t.Fatalf("error creating transformer: %s", err)
	}
	if tf.StylesheetPath != bundle.StylesheetChunk || !tf.XIncludeAware || tf.OutputDir != cfg.OutputDir {
		t.Errorf("transformer mismatched: %+v", tf)
	}
}

func lookup(env map[string]string) config.LookupFunc {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	file := filepath.Join(dir, "docbook.yaml")
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("error writing configuration: %s", err)
	}
	return file
}
