package docbook

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/midbel/docbook/bundle"
	"github.com/midbel/docbook/highlight"
	"github.com/midbel/docbook/xml"
	"github.com/midbel/docbook/xslt"
)

// Names of the stylesheet parameters set by Bind.
const (
	ParamHighlightSource  = "highlight.source"
	ParamHighlightConfig  = "highlight.xslthl.config"
	ParamAdmonGraphics    = "admon.graphics"
	ParamAdmonGraphicsDir = "admon.graphics.path"
	ParamRootFilename     = "root.filename"
)

type Highlight struct {
	// Config is the location of the yaml configuration of the highlighter.
	// The bundled configuration is used when empty.
	Config string
}

// Params are the options of one run that are given to the stylesheet.
type Params struct {
	Highlight         *Highlight
	AdmonGraphicsPath string
	// Variables are substituted to ${name} in the text and the attribute
	// values of the source document.
	Variables map[string]string
	// Extra are given as is to the stylesheet.
	Extra map[string]string
}

// Bind sets the parameters of sheet. Names that sheet does not declare are
// accepted.
func (p Params) Bind(sheet *xslt.Stylesheet) error {
	for _, name := range slices.Sorted(maps.Keys(p.Extra)) {
		sheet.SetParam(name, p.Extra[name])
	}
	if p.Highlight != nil {
		cfg, loc, err := p.Highlight.load()
		if err != nil {
			return err
		}
		h := highlight.New(cfg)
		sheet.DefineFunc(highlight.NamespaceUri, highlight.FuncName, h.Func())
		sheet.SetParam(ParamHighlightSource, 1)
		sheet.SetParam(ParamHighlightConfig, loc)
	}
	if p.AdmonGraphicsPath != "" {
		sheet.SetParam(ParamAdmonGraphics, 1)
		sheet.SetParam(ParamAdmonGraphicsDir, p.AdmonGraphicsPath)
	}
	return nil
}

func (h *Highlight) load() (highlight.Config, string, error) {
	if h.Config != "" {
		cfg, err := highlight.ReadConfig(h.Config)
		if err != nil {
			return cfg, "", fmt.Errorf("highlight configuration: %w", err)
		}
		return cfg, h.Config, nil
	}
	r, err := bundle.FS().Open(bundle.HighlightConfig)
	if err != nil {
		return highlight.DefaultConfig(), "", err
	}
	defer r.Close()
	cfg, err := highlight.LoadConfig(r)
	return cfg, xml.SchemeBundle + bundle.HighlightConfig, err
}

// Substitute replaces the ${name} references found in the texts and the
// attribute values of doc. Unknown names are left as they are.
func (p Params) Substitute(doc *xml.Document) {
	if len(p.Variables) == 0 || doc == nil {
		return
	}
	var walk func(xml.Node)
	walk = func(n xml.Node) {
		switch n := n.(type) {
		case *xml.Text:
			n.Content = expandVariables(n.Content, p.Variables)
		case *xml.Element:
			for _, a := range n.Attrs {
				a.Datum = expandVariables(a.Datum, p.Variables)
			}
			for _, c := range n.Nodes {
				walk(c)
			}
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
}

func expandVariables(str string, vars map[string]string) string {
	if !strings.Contains(str, "${") {
		return str
	}
	var buf strings.Builder
	for {
		ix := strings.Index(str, "${")
		if ix < 0 {
			buf.WriteString(str)
			break
		}
		buf.WriteString(str[:ix])
		str = str[ix:]
		end := strings.IndexByte(str, '}')
		if end < 0 {
			buf.WriteString(str)
			break
		}
		name := strings.TrimSpace(str[2:end])
		if value, ok := vars[name]; ok {
			buf.WriteString(value)
		} else {
			buf.WriteString(str[:end+1])
		}
		str = str[end+1:]
	}
	return buf.String()
}
