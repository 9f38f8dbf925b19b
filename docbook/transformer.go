package docbook

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/midbel/docbook/bundle"
	"github.com/midbel/docbook/catalog"
	"github.com/midbel/docbook/xml"
	"github.com/midbel/docbook/xslt"
)

type State int

const (
	Configured State = iota
	CatalogBuilt
	SourceOpened
	StylesheetLoaded
	ParametersBound
	Executing
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Configured:
		return "configured"
	case CatalogBuilt:
		return "catalog-built"
	case SourceOpened:
		return "source-opened"
	case StylesheetLoaded:
		return "stylesheet-loaded"
	case ParametersBound:
		return "parameters-bound"
	case Executing:
		return "executing"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes a run. On failure, State is Failed and Output may hold a
// partial document.
type Result struct {
	State   State
	Output  string
	Chunks  []string
	Assets  []string
	Elapsed time.Duration
}

type Option func(*Transformer)

func WithXInclude(aware bool) Option {
	return func(t *Transformer) {
		t.XIncludeAware = aware
	}
}

func WithOutputDir(dir string) Option {
	return func(t *Transformer) {
		t.OutputDir = dir
	}
}

func WithParams(p Params) Option {
	return func(t *Transformer) {
		t.Params = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Transformer) {
		if logger != nil {
			t.Logger = logger
		}
	}
}

// WithTrace logs every instruction executed by the stylesheet.
func WithTrace(trace bool) Option {
	return func(t *Transformer) {
		t.Trace = trace
	}
}

// WithBundle replaces the embedded resources where the bundled catalog and
// the stock stylesheets are looked for.
func WithBundle(fsys fs.FS) Option {
	return func(t *Transformer) {
		t.Bundle = fsys
	}
}

// WithSearchPath gives directories searched for catalogs after the bundle.
func WithSearchPath(dirs ...string) Option {
	return func(t *Transformer) {
		t.SearchPath = append(t.SearchPath, dirs...)
	}
}

// Transformer converts one source document with one stylesheet. Each call to
// Transform is a run of its own: the catalog, the source and the stylesheet
// are loaded again.
type Transformer struct {
	SourceFilePath string
	StylesheetPath string
	XIncludeAware  bool
	OutputDir      string
	Params         Params
	Logger         *slog.Logger
	Trace          bool
	Bundle         fs.FS
	SearchPath     []string
}

// New configures a transformer. The catalog is built once to report a
// missing bundled catalog early.
func New(source, stylesheet string, options ...Option) (*Transformer, error) {
	t := Transformer{
		SourceFilePath: source,
		StylesheetPath: stylesheet,
		XIncludeAware:  true,
		Logger:         slog.Default(),
		Bundle:         bundle.FS(),
	}
	for _, o := range options {
		o(&t)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	if _, err := t.buildCatalog(); err != nil {
		return nil, err
	}
	return &t, nil
}

// OutputPath gives the file written for source: its base name without its
// last four characters followed by .html, in dir or in the temporary
// directory when dir is empty.
func OutputPath(source, dir string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	name := filepath.Base(source)
	if len(name) > 4 {
		name = name[:len(name)-4]
	}
	return filepath.Join(dir, name+".html")
}

func (t *Transformer) Transform() (*Result, error) {
	var (
		now = time.Now()
		res = Result{
			State:  Configured,
			Output: OutputPath(t.SourceFilePath, t.OutputDir),
		}
	)
	err := t.transform(&res)
	res.Elapsed = time.Since(now)
	if err != nil {
		t.Logger.Error("transform failed", "source", t.SourceFilePath, "state", res.State, "err", err)
		res.State = Failed
		return &res, err
	}
	res.State = Succeeded
	t.Logger.Info("transform done", "source", t.SourceFilePath, "output", res.Output, "chunks", len(res.Chunks), "elapsed", res.Elapsed)
	return &res, nil
}

func (t *Transformer) transform(res *Result) error {
	if err := t.validate(); err != nil {
		return err
	}
	cat, err := t.buildCatalog()
	if err != nil {
		return err
	}
	res.State = CatalogBuilt

	reader, closer, err := OpenSource(t.SourceFilePath, t.XIncludeAware, cat)
	if err != nil {
		return err
	}
	defer closer.Close()
	res.State = SourceOpened

	sheet, err := t.loadStylesheet(cat)
	if err != nil {
		return err
	}
	res.State = StylesheetLoaded

	dir := filepath.Dir(res.Output)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return executionError("create", dir, err)
	}
	params := t.Params
	sheet.SetParam(ParamRootFilename, strings.TrimSuffix(filepath.Base(res.Output), ".html"))
	if err := t.bindParams(sheet, &params, dir, res); err != nil {
		return err
	}
	sheet.Documents = chunkWriter(dir, res)
	res.State = ParametersBound

	res.State = Executing
	doc, err := xml.Build(reader)
	if err != nil {
		return executionError("parse", t.SourceFilePath, err)
	}
	params.Substitute(doc)

	w, err := os.Create(res.Output)
	if err != nil {
		return executionError("create", res.Output, err)
	}
	if err := sheet.Transform(w, doc); err != nil {
		w.Close()
		return executionError("transform", t.SourceFilePath, err)
	}
	if err := w.Close(); err != nil {
		return executionError("write", res.Output, err)
	}
	return nil
}

func (t *Transformer) validate() error {
	if t.Logger == nil {
		t.Logger = slog.Default()
	}
	if t.SourceFilePath == "" {
		return configurationError("validate", "", fmt.Errorf("source document not given"))
	}
	if t.StylesheetPath == "" {
		return configurationError("validate", "", fmt.Errorf("stylesheet not given"))
	}
	return nil
}

func (t *Transformer) buildCatalog() (*catalog.Catalog, error) {
	options := []catalog.Option{
		catalog.WithLogger(t.Logger),
		catalog.WithSearchPath(t.SearchPath...),
	}
	if t.Bundle != nil {
		options = append(options, catalog.WithBundle(t.Bundle))
	}
	cat, err := catalog.Build(catalog.BundledName, options...)
	if err != nil {
		return nil, configurationError("catalog", catalog.BundledName, err)
	}
	return cat, nil
}

func (t *Transformer) loadStylesheet(cat *catalog.Catalog) (*xslt.Stylesheet, error) {
	loc := t.StylesheetPath
	if err := t.checkStylesheet(loc); err != nil {
		return nil, inputError("load", loc, err)
	}
	sheet, err := xslt.Load(loc, cat)
	if err != nil {
		if unreadable(err) {
			return nil, inputError("load", loc, err)
		}
		return nil, compileError("load", loc, err)
	}
	sheet.Logger = t.Logger
	if t.Trace {
		sheet.Tracer = xslt.NewTracer(t.Logger)
	}
	return sheet, nil
}

func (t *Transformer) checkStylesheet(loc string) error {
	switch xml.Scheme(loc) {
	case "":
		return checkRegular(loc)
	case "file":
		u, err := url.Parse(loc)
		if err != nil {
			return err
		}
		return checkRegular(filepath.FromSlash(u.Path))
	case "bundle":
		if t.Bundle == nil {
			return fs.ErrNotExist
		}
		name := path.Clean(strings.TrimPrefix(loc, xml.SchemeBundle))
		_, err := fs.Stat(t.Bundle, name)
		return err
	default:
		return nil
	}
}

func checkRegular(file string) error {
	info, err := os.Stat(file)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file")
	}
	return nil
}

// unreadable reports whether err comes from opening the stylesheet itself
// rather than from compiling it or one of its modules.
func unreadable(err error) bool {
	var ce xslt.CompileError
	if errors.As(err, &ce) {
		return false
	}
	return errors.Is(err, xml.ErrRemote) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}

// assetsMu serializes the writes of the support files that runs sharing an
// output directory all produce.
var assetsMu sync.Mutex

func (t *Transformer) bindParams(sheet *xslt.Stylesheet, params *Params, dir string, res *Result) error {
	assetsMu.Lock()
	defer assetsMu.Unlock()
	if params.Highlight != nil {
		hl, list, err := prepareHighlight(dir, *params.Highlight)
		if err != nil {
			return configurationError("highlight", dir, err)
		}
		params.Highlight = &hl
		res.Assets = append(res.Assets, list...)
	}
	if err := params.Bind(sheet); err != nil {
		return configurationError("bind", t.StylesheetPath, err)
	}
	return nil
}

// prepareHighlight writes the highlighting support files in dir and returns
// the settings of the run with the configuration location resolved.
func prepareHighlight(dir string, hl Highlight) (Highlight, []string, error) {
	opts := AssetOptions{
		Highlight:       true,
		HighlightConfig: hl.Config,
	}
	list, err := ExtractAssets(dir, opts)
	if err != nil {
		return hl, nil, err
	}
	if hl.Config == "" {
		hl.Config = filepath.Join(dir, highlightDir, path.Base(bundle.HighlightConfig))
	}
	return hl, list, nil
}

// chunkWriter opens the files of the result documents relative to dir.
// Paths leading outside of dir are refused.
func chunkWriter(dir string, res *Result) xslt.DocumentFunc {
	return func(href string) (io.WriteCloser, error) {
		file, err := bundle.Join(dir, href)
		if err != nil {
			return nil, err
		}
		if file == res.Output {
			return nil, fmt.Errorf("%s: %w", href, errors.New("result document overwrites main output"))
		}
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, err
		}
		w, err := os.Create(file)
		if err != nil {
			return nil, err
		}
		res.Chunks = append(res.Chunks, file)
		return w, nil
	}
}
