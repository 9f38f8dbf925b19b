// Package config loads the settings of the command line tool. Settings come
// from a yaml file, then from DOCBOOK_* environment variables, then from the
// flags given on the command line, each source overriding the previous one.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/pflag"

	"github.com/midbel/docbook/bundle"
	"github.com/midbel/docbook/docbook"
)

const (
	EnvPrefix = "DOCBOOK_"
	EnvConfig = EnvPrefix + "CONFIG"
)

var ErrInvalid = errors.New("invalid configuration")

type Highlight struct {
	Enabled bool   `yaml:"enabled"`
	Config  string `yaml:"config"`
}

type Config struct {
	Stylesheet        string            `yaml:"stylesheet"`
	OutputDir         string            `yaml:"output-dir"`
	XInclude          bool              `yaml:"xinclude"`
	SearchPath        []string          `yaml:"search-path"`
	Highlight         Highlight         `yaml:"highlight"`
	AdmonGraphicsPath string            `yaml:"admon-graphics-path"`
	Variables         map[string]string `yaml:"variables"`
	Params            map[string]string `yaml:"params"`
	Jobs              int               `yaml:"jobs"`
	Verbose           bool              `yaml:"verbose"`
	Trace             bool              `yaml:"trace"`
}

func Default() Config {
	return Config{
		Stylesheet: bundle.StylesheetChunk,
		XInclude:   true,
	}
}

// LookupFunc gives the value of an environment variable.
type LookupFunc func(string) (string, bool)

// Load reads file, or the file named by DOCBOOK_CONFIG when file is empty,
// and applies the environment overrides found with lookup.
func Load(file string, lookup LookupFunc) (Config, error) {
	cfg, err := load(file, lookup)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func load(file string, lookup LookupFunc) (Config, error) {
	cfg := Default()
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if file == "" {
		file, _ = lookup(EnvConfig)
	}
	if file != "" {
		buf, err := os.ReadFile(file)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", file, err)
		}
		if err := decode(buf, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", file, err)
		}
		cfg.relativeTo(filepath.Dir(file))
	}
	return cfg, cfg.applyEnv(lookup)
}

func decode(buf []byte, cfg *Config) error {
	if len(bytes.TrimSpace(buf)) == 0 {
		return nil
	}
	if err := yaml.UnmarshalWithOptions(buf, cfg, yaml.Strict()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// relativeTo makes the paths of the file relative to the directory of the
// file itself.
func (c *Config) relativeTo(dir string) {
	join := func(str string) string {
		if str == "" || filepath.IsAbs(str) || strings.Contains(str, ":") {
			return str
		}
		return filepath.Join(dir, str)
	}
	c.Stylesheet = join(c.Stylesheet)
	c.OutputDir = join(c.OutputDir)
	c.Highlight.Config = join(c.Highlight.Config)
	for i := range c.SearchPath {
		c.SearchPath[i] = join(c.SearchPath[i])
	}
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	str := func(name string, ptr *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*ptr = v
		}
	}
	boolean := func(name string, ptr *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w: %w", EnvPrefix, name, ErrInvalid, err)
		}
		*ptr = b
		return nil
	}
	str("STYLESHEET", &c.Stylesheet)
	str("OUTPUT_DIR", &c.OutputDir)
	str("HIGHLIGHT_CONFIG", &c.Highlight.Config)
	str("ADMON_GRAPHICS_PATH", &c.AdmonGraphicsPath)
	if v, ok := lookup(EnvPrefix + "SEARCH_PATH"); ok && v != "" {
		c.SearchPath = filepath.SplitList(v)
	}
	if v, ok := lookup(EnvPrefix + "JOBS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sJOBS: %w: %w", EnvPrefix, ErrInvalid, err)
		}
		c.Jobs = n
	}
	for name, ptr := range map[string]*bool{
		"XINCLUDE":  &c.XInclude,
		"HIGHLIGHT": &c.Highlight.Enabled,
		"VERBOSE":   &c.Verbose,
		"TRACE":     &c.Trace,
	} {
		if err := boolean(name, ptr); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) Validate() error {
	if c.Stylesheet == "" {
		return fmt.Errorf("%w: stylesheet not given", ErrInvalid)
	}
	if c.Jobs < 0 {
		return fmt.Errorf("%w: jobs must not be negative", ErrInvalid)
	}
	if c.Highlight.Config != "" && !c.Highlight.Enabled {
		return fmt.Errorf("%w: highlight configuration given but highlighting disabled", ErrInvalid)
	}
	return nil
}

// Workers gives the number of transforms run in parallel.
func (c Config) Workers() int {
	if c.Jobs > 0 {
		return c.Jobs
	}
	return runtime.GOMAXPROCS(0)
}

func (c Config) TransformParams() docbook.Params {
	p := docbook.Params{
		AdmonGraphicsPath: c.AdmonGraphicsPath,
		Variables:         c.Variables,
		Extra:             c.Params,
	}
	if c.Highlight.Enabled {
		p.Highlight = &docbook.Highlight{
			Config: c.Highlight.Config,
		}
	}
	return p
}

func (c Config) Options(logger *slog.Logger) []docbook.Option {
	return []docbook.Option{
		docbook.WithLogger(logger),
		docbook.WithXInclude(c.XInclude),
		docbook.WithOutputDir(c.OutputDir),
		docbook.WithSearchPath(c.SearchPath...),
		docbook.WithParams(c.TransformParams()),
		docbook.WithTrace(c.Trace),
	}
}

// Transformer configures a transformer of source.
func (c Config) Transformer(source string, logger *slog.Logger) (*docbook.Transformer, error) {
	return docbook.New(source, c.Stylesheet, c.Options(logger)...)
}

// Flags holds the values given on the command line. Only the flags set
// explicitly override a loaded configuration.
type Flags struct {
	set  *pflag.FlagSet
	file string
	cfg  Config
}

func Bind(set *pflag.FlagSet) *Flags {
	f := Flags{
		set: set,
		cfg: Default(),
	}
	set.StringVarP(&f.file, "config", "c", "", "configuration file")
	set.StringVarP(&f.cfg.Stylesheet, "stylesheet", "s", f.cfg.Stylesheet, "stylesheet location")
	set.StringVarP(&f.cfg.OutputDir, "output-dir", "o", "", "output directory")
	set.BoolVar(&f.cfg.XInclude, "xinclude", true, "process XInclude directives")
	set.StringSliceVarP(&f.cfg.SearchPath, "search-path", "p", nil, "directories searched for catalog.xml files")
	set.BoolVar(&f.cfg.Highlight.Enabled, "highlight", false, "highlight program listings")
	set.StringVar(&f.cfg.Highlight.Config, "highlight-config", "", "highlighter configuration file")
	set.StringVar(&f.cfg.AdmonGraphicsPath, "admon-graphics", "", "location of admonition graphics")
	set.StringToStringVar(&f.cfg.Variables, "var", nil, "variable substituted in the source document")
	set.StringToStringVar(&f.cfg.Params, "param", nil, "stylesheet parameter")
	set.IntVarP(&f.cfg.Jobs, "jobs", "j", 0, "number of parallel transforms")
	set.BoolVarP(&f.cfg.Verbose, "verbose", "v", false, "verbose logging")
	set.BoolVar(&f.cfg.Trace, "trace", false, "trace stylesheet execution")
	return &f
}

func (f *Flags) File() string {
	return f.file
}

// Apply copies to c the values of the flags set on the command line.
func (f *Flags) Apply(c *Config) {
	changed := f.set.Changed
	if changed("stylesheet") {
		c.Stylesheet = f.cfg.Stylesheet
	}
	if changed("output-dir") {
		c.OutputDir = f.cfg.OutputDir
	}
	if changed("xinclude") {
		c.XInclude = f.cfg.XInclude
	}
	if changed("search-path") {
		c.SearchPath = f.cfg.SearchPath
	}
	if changed("highlight") {
		c.Highlight.Enabled = f.cfg.Highlight.Enabled
	}
	if changed("highlight-config") {
		c.Highlight.Config = f.cfg.Highlight.Config
		c.Highlight.Enabled = true
	}
	if changed("admon-graphics") {
		c.AdmonGraphicsPath = f.cfg.AdmonGraphicsPath
	}
	if changed("var") {
		c.Variables = merge(c.Variables, f.cfg.Variables)
	}
	if changed("param") {
		c.Params = merge(c.Params, f.cfg.Params)
	}
	if changed("jobs") {
		c.Jobs = f.cfg.Jobs
	}
	if changed("verbose") {
		c.Verbose = f.cfg.Verbose
	}
	if changed("trace") {
		c.Trace = f.cfg.Trace
	}
}

// Resolve loads the configuration file named by the flags and applies the
// environment and the flags on top of it.
func (f *Flags) Resolve(lookup LookupFunc) (Config, error) {
	cfg, err := load(f.file, lookup)
	if err != nil {
		return cfg, err
	}
	f.Apply(&cfg)
	return cfg, cfg.Validate()
}

func merge(dst, src map[string]string) map[string]string {
	if dst == nil {
		dst = make(map[string]string)
	}
	maps.Copy(dst, src)
	return dst
}
