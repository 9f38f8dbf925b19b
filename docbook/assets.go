package docbook

import (
	"os"
	"path"
	"path/filepath"

	"github.com/midbel/docbook/bundle"
	"github.com/midbel/docbook/highlight"
)

const (
	highlightDir = "highlighting"
	imagesDir    = "images"

	// HighlightStylesheet is the name of the css file with the rules of the
	// highlighter style.
	HighlightStylesheet = "highlight.css"
)

type AssetOptions struct {
	// Images extracts the admonition graphics in the images directory.
	Images bool
	// Highlight extracts the highlighter configuration and writes its css.
	Highlight bool
	// HighlightConfig is used for the css instead of the bundled configuration
	// that is then not extracted.
	HighlightConfig string
}

// ExtractAssets copies the support files of the html output into dir. It
// returns the paths of the files written.
func ExtractAssets(dir string, opts AssetOptions) ([]string, error) {
	var list []string
	if opts.Images {
		files, err := bundle.Extract(bundle.ImagesDir, filepath.Join(dir, imagesDir))
		if err != nil {
			return nil, executionError("extract", dir, err)
		}
		list = append(list, files...)
	}
	if !opts.Highlight {
		return list, nil
	}
	file := opts.HighlightConfig
	if file == "" {
		files, err := bundle.Extract(bundle.HighlightConfig, filepath.Join(dir, highlightDir))
		if err != nil {
			return nil, executionError("extract", dir, err)
		}
		list = append(list, files...)
		file = filepath.Join(dir, highlightDir, path.Base(bundle.HighlightConfig))
	}
	cfg, err := highlight.ReadConfig(file)
	if err != nil {
		return nil, configurationError("highlight", file, err)
	}
	css := filepath.Join(dir, HighlightStylesheet)
	if err := writeCSS(css, highlight.New(cfg)); err != nil {
		return nil, executionError("extract", css, err)
	}
	return append(list, css), nil
}

func writeCSS(file string, h *highlight.Highlighter) error {
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	w, err := os.Create(file)
	if err != nil {
		return err
	}
	if err := h.WriteCSS(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
