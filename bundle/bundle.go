// Package bundle holds the resources shipped with the pipeline: the catalog
// that must always be available, a stand-in of the DocBook DTD, the stock
// html stylesheets, the admonition graphics and the configuration of the
// syntax highlighter.
package bundle

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/midbel/docbook/xml"
)

const (
	Catalog         = "docbook/catalog.xml"
	HighlightConfig = "highlighting/config.yaml"
	ImagesDir       = "images"

	StylesheetHTML  = xml.SchemeBundle + "xsl/html/docbook.xsl"
	StylesheetChunk = xml.SchemeBundle + "xsl/html/chunk.xsl"
)

var ErrEscape = errors.New("path escapes target directory")

//go:embed docbook xsl images highlighting
var files embed.FS

// FS gives the embedded resources.
func FS() fs.FS {
	return files
}

// Extract copies the resources found under the root directory of the bundle
// into dir. It returns the paths of the files written.
func Extract(root, dir string) ([]string, error) {
	root = path.Clean(root)
	var list []string
	err := fs.WalkDir(files, root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(name, root), "/")
		if rel == "" {
			rel = path.Base(name)
		}
		file, err := Join(dir, rel)
		if err != nil {
			return err
		}
		if err := copyFile(name, file); err != nil {
			return err
		}
		list = append(list, file)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", root, err)
	}
	return list, nil
}

// Join joins name to dir and rejects names that lead outside of dir.
func Join(dir, name string) (string, error) {
	if filepath.IsAbs(name) || xml.Scheme(name) != "" {
		return "", fmt.Errorf("%s: %w", name, ErrEscape)
	}
	file := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", name, ErrEscape)
	}
	return file, nil
}

func copyFile(name, file string) error {
	r, err := files.Open(name)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	w, err := os.Create(file)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
