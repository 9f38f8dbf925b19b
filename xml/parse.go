package xml

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const MaxDepth = 512

const (
	SupportedVersion  = "1.0"
	SupportedEncoding = "UTF-8"
)

type ParseError struct {
	Position
	File    string
	Element string
	Message string
	Err     error
}

func createParseError(file, elem, msg string, pos Position) error {
	return ParseError{
		Position: pos,
		File:     file,
		Element:  elem,
		Message:  msg,
	}
}

func (p ParseError) Error() string {
	var prefix string
	if p.File != "" {
		prefix = p.File + ":"
	}
	return fmt.Sprintf("%s%d:%d: %s: %s", prefix, p.Line, p.Column, p.Element, p.Message)
}

func (p ParseError) Unwrap() error {
	return p.Err
}

type Parser struct {
	reader *Reader

	// TrimSpace drops text nodes made only of white space.
	TrimSpace bool
	// OmitComment drops comments and processing instructions.
	OmitComment bool
}

func NewParser(r io.Reader, opts ...ReaderOption) *Parser {
	return &Parser{
		reader: NewReader(r, opts...),
	}
}

func ParseFile(file string, opts ...ReaderOption) (*Document, error) {
	r, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	opts = append([]ReaderOption{WithLocation(file)}, opts...)
	return NewParser(r, opts...).Parse()
}

func ParseString(str string, opts ...ReaderOption) (*Document, error) {
	return NewParser(strings.NewReader(str), opts...).Parse()
}

func (p *Parser) Parse() (*Document, error) {
	return build(p.reader, p.TrimSpace, p.OmitComment)
}

// Build consumes every event of the reader and assembles them into a
// document.
func Build(rs *Reader) (*Document, error) {
	return build(rs, false, false)
}

func build(rs *Reader, trim, omit bool) (*Document, error) {
	var (
		doc   = EmptyDocument()
		stack []*Element
	)
	appendNode := func(node Node) {
		if n := len(stack); n > 0 {
			stack[n-1].Append(node)
		} else {
			doc.Append(node)
		}
	}
	for {
		node, err := rs.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ErrClosed) {
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		switch n := node.(type) {
		case *Element:
			appendNode(n)
			stack = append(stack, n)
		case *Text:
			if trim && n.Blank() {
				continue
			}
			appendNode(n)
		case *Comment, *Instruction:
			if omit {
				continue
			}
			appendNode(n)
		default:
			appendNode(n)
		}
	}
	doc.DocType = rs.doctype
	doc.Location = rs.location
	if rs.version != "" {
		doc.Version = rs.version
	}
	if rs.encoding != "" {
		doc.Encoding = rs.encoding
	}
	doc.Standalone = rs.standalone
	return doc, nil
}
