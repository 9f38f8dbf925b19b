// Package highlight colors program listings with chroma. Listings are turned
// into span elements carrying the css classes of chroma so that stylesheets
// can copy them in their output.
package highlight

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/goccy/go-yaml"
	"github.com/mattn/go-runewidth"

	"github.com/midbel/docbook/xml"
	"github.com/midbel/docbook/xpath"
)

const (
	// NamespaceUri is the namespace of the extension function.
	NamespaceUri = "urn:docbook:highlight"
	FuncName     = "highlight"

	defaultStyle    = "github"
	defaultTabWidth = 4
)

type Config struct {
	Style       string            `yaml:"style"`
	TabWidth    int               `yaml:"tab-width"`
	LineNumbers bool              `yaml:"line-numbers"`
	Aliases     map[string]string `yaml:"aliases"`
}

func DefaultConfig() Config {
	return Config{
		Style:    defaultStyle,
		TabWidth: defaultTabWidth,
	}
}

// LoadConfig decodes a yaml configuration. Unknown fields are rejected and
// missing ones keep their default value.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	data, err := io.ReadAll(r)
	if err != nil {
		return cfg, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
		return cfg, fmt.Errorf("highlight: %w", err)
	}
	if cfg.TabWidth <= 0 {
		cfg.TabWidth = defaultTabWidth
	}
	if cfg.Style == "" {
		cfg.Style = defaultStyle
	}
	return cfg, nil
}

func ReadConfig(file string) (Config, error) {
	r, err := os.Open(file)
	if err != nil {
		return DefaultConfig(), err
	}
	defer r.Close()
	return LoadConfig(r)
}

type Highlighter struct {
	config Config
	style  *chroma.Style
}

func New(cfg Config) *Highlighter {
	if cfg.TabWidth <= 0 {
		cfg.TabWidth = defaultTabWidth
	}
	return &Highlighter{
		config: cfg,
		style:  styles.Get(cfg.Style),
	}
}

// Lexer gives the lexer of lang, after alias substitution. Unknown languages
// get the plain text lexer.
func (h *Highlighter) Lexer(lang string) chroma.Lexer {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if alias, ok := h.config.Aliases[lang]; ok {
		lang = alias
	}
	lex := lexers.Get(lang)
	if lex == nil {
		lex = lexers.Fallback
	}
	return chroma.Coalesce(lex)
}

// Highlight tokenizes code and gives the nodes to insert in a listing. The
// new line some lexers add at the end of the code is removed.
func (h *Highlighter) Highlight(code, lang string) ([]xml.Node, error) {
	code = expandTabs(code, h.config.TabWidth)
	it, err := h.Lexer(lang).Tokenise(nil, code)
	if err != nil {
		return nil, fmt.Errorf("highlight %s: %w", lang, err)
	}
	tokens := it.Tokens()
	if n := len(tokens); n > 0 && !strings.HasSuffix(code, "\n") {
		tokens[n-1].Value = strings.TrimSuffix(tokens[n-1].Value, "\n")
	}
	var b builder
	if !h.config.LineNumbers {
		for _, tok := range tokens {
			b.token(tok)
		}
		return b.nodes, nil
	}
	lines := chroma.SplitTokensIntoLines(tokens)
	width := len(fmt.Sprint(len(lines)))
	for i, line := range lines {
		b.span("ln", fmt.Sprintf("%*d ", width, i+1))
		for _, tok := range line {
			b.token(tok)
		}
	}
	return b.nodes, nil
}

// expandTabs replaces each tab by the spaces reaching the next tab stop of
// its line.
func expandTabs(code string, width int) string {
	if !strings.ContainsRune(code, '\t') {
		return code
	}
	var (
		str strings.Builder
		col int
	)
	str.Grow(len(code))
	for _, r := range code {
		switch r {
		case '\t':
			n := width - col%width
			str.WriteString(strings.Repeat(" ", n))
			col += n
		case '\n':
			str.WriteRune(r)
			col = 0
		default:
			str.WriteRune(r)
			col += runewidth.RuneWidth(r)
		}
	}
	return str.String()
}

// Func gives the extension function highlight(code, language) that
// stylesheets call to color a listing.
func (h *Highlighter) Func() xpath.Func {
	return func(_ xpath.Context, args []xpath.Sequence) (xpath.Sequence, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, fmt.Errorf("%s: %w: 1 or 2 arguments expected", FuncName, xpath.ErrArgument)
		}
		var lang string
		if len(args) == 2 {
			lang = xpath.AsString(args[1])
		}
		nodes, err := h.Highlight(xpath.AsString(args[0]), lang)
		if err != nil {
			return nil, err
		}
		return xpath.NewNodes(nodes...), nil
	}
}

// WriteCSS writes the css rules of the configured style.
func (h *Highlighter) WriteCSS(w io.Writer) error {
	f := chromahtml.New(chromahtml.WithClasses(true), chromahtml.TabWidth(h.config.TabWidth))
	return f.WriteCSS(w, h.style)
}

type builder struct {
	nodes []xml.Node
}

func (b *builder) token(tok chroma.Token) {
	if tok.Value == "" {
		return
	}
	class := chroma.StandardTypes[tok.Type]
	if class == "" {
		b.text(tok.Value)
		return
	}
	b.span(class, tok.Value)
}

func (b *builder) text(str string) {
	if n := len(b.nodes); n > 0 {
		if t, ok := b.nodes[n-1].(*xml.Text); ok {
			t.Content += str
			return
		}
	}
	b.nodes = append(b.nodes, xml.NewText(str))
}

func (b *builder) span(class, str string) {
	el := xml.NewElement(xml.LocalName("span"))
	el.SetAttribute(xml.NewAttribute(xml.LocalName("class"), class))
	el.Append(xml.NewText(str))
	b.nodes = append(b.nodes, el)
}
