package catalog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/midbel/docbook/xml"
)

const (
	// BundledName is the logical name of the catalog that must always be
	// available.
	BundledName = "docbook/catalog.xml"
	// CatalogName is the name of the supplementary catalogs looked for at
	// the root of the bundle and of the search path directories.
	CatalogName = "catalog.xml"

	catalogNamespaceUri = "urn:oasis:names:tc:entity:xmlns:xml:catalog"
)

var ErrBundledMissing = errors.New("bundled catalog not found")

type Option func(*Catalog)

// WithBundle gives the file system of the embedded resources. Its locations
// are written bundle:name.
func WithBundle(bundle fs.FS) Option {
	return func(c *Catalog) {
		c.bundle = bundle
	}
}

// WithSearchPath adds directories where catalogs are looked for after the
// bundle.
func WithSearchPath(dirs ...string) Option {
	return func(c *Catalog) {
		c.paths = append(c.paths, dirs...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPreferSystem changes the default of the prefer attribute from public
// to system.
func WithPreferSystem() Option {
	return func(c *Catalog) {
		c.preferSystem = true
	}
}

// Catalog resolves public identifiers, system identifiers and URI references
// with a list of OASIS XML catalog files. Files are consulted in the order
// they were discovered and the first match wins.
type Catalog struct {
	files  []string
	loaded map[string]*entryFile

	bundle       fs.FS
	paths        []string
	logger       *slog.Logger
	preferSystem bool
}

// Build locates the bundled catalog by its logical name and the
// supplementary catalogs found in the bundle and the search path. A missing
// bundled catalog is the only fatal condition.
func Build(bundled string, options ...Option) (*Catalog, error) {
	c := Catalog{
		loaded: make(map[string]*entryFile),
		logger: slog.Default(),
	}
	for _, o := range options {
		o(&c)
	}
	if bundled == "" {
		bundled = BundledName
	}
	main, ok := c.locateBundled(bundled)
	if !ok {
		return nil, fmt.Errorf("%s: %w", bundled, ErrBundledMissing)
	}
	if _, err := c.loadFile(main); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", main, ErrBundledMissing, err)
	}
	c.files = append(c.files, main)
	for _, loc := range c.discover() {
		if slices.Contains(c.files, loc) {
			continue
		}
		if _, err := c.loadFile(loc); err != nil {
			continue
		}
		c.files = append(c.files, loc)
	}
	c.logger.Debug("catalog built", "files", len(c.files))
	return &c, nil
}

// Files gives the locations of the catalog files in the order they are
// consulted.
func (c *Catalog) Files() []string {
	return slices.Clone(c.files)
}

// Resolve maps publicID and systemID to a location. An empty publicID makes
// systemID be looked up as a URI reference too when no system entry matches.
func (c *Catalog) Resolve(publicID, systemID string) (string, bool) {
	publicID, systemID = normalizeIds(publicID, systemID)
	if publicID == "" && systemID == "" {
		return "", false
	}
	for _, loc := range c.files {
		res, ok := c.resolveIn(loc, publicID, systemID, nil)
		if ok {
			c.logger.Debug("identifier resolved", "public", publicID, "system", systemID, "location", res)
			return res, true
		}
	}
	return "", false
}

// Open opens a location given by Resolve or written in a document. Locations
// of the bundle are read from it, plain paths and file URIs from disk.
func (c *Catalog) Open(location string) (io.ReadCloser, error) {
	return xml.Open(c.bundle, location)
}

func (c *Catalog) resolveIn(location, publicID, systemID string, seen []string) (string, bool) {
	if slices.Contains(seen, location) {
		c.logger.Warn("catalog chain loops", "location", location)
		return "", false
	}
	seen = append(seen, location)

	file, err := c.loadFile(location)
	if err != nil {
		return "", false
	}
	res, ok, done := file.lookup(publicID, systemID)
	if ok {
		return res, true
	}
	if len(done) > 0 {
		for _, loc := range done {
			if res, ok := c.resolveIn(loc, publicID, systemID, seen); ok {
				return res, true
			}
		}
		return "", false
	}
	for _, next := range file.next {
		if res, ok := c.resolveIn(next, publicID, systemID, seen); ok {
			return res, true
		}
	}
	return "", false
}

func (c *Catalog) locateBundled(name string) (string, bool) {
	if c.bundle != nil {
		if _, err := fs.Stat(c.bundle, path.Clean(name)); err == nil {
			return xml.SchemeBundle + path.Clean(name), true
		}
	}
	for _, dir := range c.paths {
		file := filepath.Join(dir, filepath.FromSlash(name))
		if isFile(file) {
			return file, true
		}
	}
	return "", false
}

func (c *Catalog) discover() []string {
	var list []string
	if c.bundle != nil {
		if _, err := fs.Stat(c.bundle, CatalogName); err == nil {
			list = append(list, xml.SchemeBundle+CatalogName)
		}
	}
	for _, dir := range c.paths {
		file := filepath.Join(dir, CatalogName)
		if isFile(file) {
			list = append(list, file)
		}
	}
	return list
}

// loadFile parses the catalog at location once. Failures are remembered so
// that a missing next catalog is reported only once.
func (c *Catalog) loadFile(location string) (*entryFile, error) {
	if f, ok := c.loaded[location]; ok {
		if f == nil {
			return nil, fmt.Errorf("%s: %w", location, fs.ErrNotExist)
		}
		return f, nil
	}
	f, err := c.parseFile(location)
	if err != nil {
		c.loaded[location] = nil
		c.logger.Warn("catalog can not be loaded", "location", location, "err", err)
		return nil, err
	}
	c.loaded[location] = f
	return f, nil
}

func (c *Catalog) parseFile(location string) (*entryFile, error) {
	r, err := c.Open(location)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	p := xml.NewParser(r, xml.WithLocation(location), xml.WithResolver(xml.DefaultResolver(c.bundle)))
	p.TrimSpace = true
	p.OmitComment = true
	doc, err := p.Parse()
	if err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil || root.Name != "catalog" || !isCatalogNS(root) {
		return nil, fmt.Errorf("%s: not a catalog", location)
	}
	f := entryFile{
		location: location,
	}
	sc := scope{
		base:   location,
		public: !c.preferSystem,
	}
	c.readEntries(&f, root, sc.enter(root))
	return &f, nil
}

func isFile(file string) bool {
	i, err := os.Stat(file)
	return err == nil && i.Mode().IsRegular()
}

func isCatalogNS(el *xml.Element) bool {
	return el.Uri == catalogNamespaceUri || el.Uri == ""
}

// normalizeIds unwraps urn:publicid: identifiers and normalizes the white
// space of public identifiers.
func normalizeIds(publicID, systemID string) (string, string) {
	publicID = normalizePublic(publicID)
	if pub, ok := unwrapUrn(publicID); ok {
		publicID = pub
	}
	if pub, ok := unwrapUrn(systemID); ok {
		systemID = ""
		if publicID == "" {
			publicID = pub
		}
	}
	return publicID, systemID
}

func normalizePublic(str string) string {
	return strings.Join(strings.Fields(str), " ")
}

const urnPrefix = "urn:publicid:"

var urnReplacer = strings.NewReplacer(
	"+", " ",
	":", "//",
	";", "::",
	"%2B", "+",
	"%3A", ":",
	"%2F", "/",
	"%3B", ";",
	"%27", "'",
	"%3F", "?",
	"%23", "#",
	"%25", "%",
)

func unwrapUrn(str string) (string, bool) {
	if len(str) < len(urnPrefix) || !strings.EqualFold(str[:len(urnPrefix)], urnPrefix) {
		return "", false
	}
	return urnReplacer.Replace(str[len(urnPrefix):]), true
}
