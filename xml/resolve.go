package xml

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// SchemeBundle prefixes locations that refer to embedded resources.
const SchemeBundle = "bundle:"

var (
	ErrRemote     = errors.New("remote resources are not allowed")
	ErrUnresolved = errors.New("unresolved resource")
)

// Resolver maps public and system identifiers (or URI references, given as
// system identifiers with an empty public identifier) to concrete locations
// and opens them. Resolve reports false when it has nothing to say about the
// identifiers, in which case the caller falls back to default resolution.
type Resolver interface {
	Resolve(publicID, systemID string) (string, bool)
	Open(location string) (io.ReadCloser, error)
}

type defaultResolver struct {
	bundle fs.FS
}

// DefaultResolver never maps identifiers. It opens locations from disk and,
// when bundle is not nil, bundle: locations from bundle.
func DefaultResolver(bundle fs.FS) Resolver {
	return defaultResolver{
		bundle: bundle,
	}
}

func (_ defaultResolver) Resolve(_, _ string) (string, bool) {
	return "", false
}

func (r defaultResolver) Open(location string) (io.ReadCloser, error) {
	return Open(r.bundle, location)
}

// Open opens location. bundle: locations are read from bundle, file: URIs and
// plain paths from the file system. Any other scheme is refused.
func Open(bundle fs.FS, location string) (io.ReadCloser, error) {
	switch scheme := Scheme(location); scheme {
	case "":
		return os.Open(location)
	case "bundle":
		if bundle == nil {
			return nil, fmt.Errorf("%s: %w", location, fs.ErrNotExist)
		}
		name := strings.TrimPrefix(location, SchemeBundle)
		name = path.Clean(strings.TrimPrefix(name, "/"))
		return bundle.Open(name)
	case "file":
		u, err := url.Parse(location)
		if err != nil {
			return nil, err
		}
		return os.Open(filepath.FromSlash(u.Path))
	default:
		return nil, fmt.Errorf("%s: %w", location, ErrRemote)
	}
}

// Locate applies the resolver to ref, first as written then made absolute
// against base. When nothing matches, the absolute reference is returned.
func Locate(res Resolver, base, ref string) (string, bool) {
	abs := JoinLocation(base, ref)
	if res == nil {
		return abs, false
	}
	if loc, ok := res.Resolve("", ref); ok {
		return loc, true
	}
	if abs != ref {
		if loc, ok := res.Resolve("", abs); ok {
			return loc, true
		}
	}
	return abs, false
}

// Scheme returns the scheme of location or the empty string for plain paths.
func Scheme(location string) string {
	ix := strings.IndexByte(location, ':')
	if ix <= 1 {
		return ""
	}
	scheme := location[:ix]
	for _, c := range scheme {
		if !isSchemeChar(c) {
			return ""
		}
	}
	return strings.ToLower(scheme)
}

func isSchemeChar(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.'
}

// JoinLocation resolves ref against base. A trailing slash in ref is kept so
// that joined prefixes can be used for rewriting.
func JoinLocation(base, ref string) string {
	if ref == "" {
		return base
	}
	if Scheme(ref) != "" || base == "" {
		return ref
	}
	trailing := strings.HasSuffix(ref, "/")
	keep := func(str string) string {
		if trailing && !strings.HasSuffix(str, "/") {
			str += "/"
		}
		return str
	}
	switch Scheme(base) {
	case "":
		if filepath.IsAbs(ref) {
			return ref
		}
		dir := base
		if !strings.HasSuffix(base, "/") {
			dir = filepath.Dir(base)
		}
		return keep(filepath.Join(dir, filepath.FromSlash(ref)))
	case "bundle":
		rest := strings.TrimPrefix(base, SchemeBundle)
		if strings.HasPrefix(ref, "/") {
			return keep(SchemeBundle + path.Clean(strings.TrimPrefix(ref, "/")))
		}
		dir := rest
		if !strings.HasSuffix(rest, "/") {
			dir = path.Dir(rest)
		}
		return keep(SchemeBundle + path.Join(dir, ref))
	default:
		u, err := url.Parse(base)
		if err != nil {
			return ref
		}
		r, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		return u.ResolveReference(r).String()
	}
}
