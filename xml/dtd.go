package xml

import (
	"fmt"
	"strings"
)

// readDocType parses the document type declaration. Only what a non
// validating processor needs is kept: the external identifiers and the
// entity declarations of both the internal and the external subsets.
// External subsets that can not be loaded are skipped.
func (r *Reader) readDocType(raw string) error {
	p := dtdParser{
		reader: r,
		input:  raw,
		base:   r.base(),
	}
	p.skipBlank()
	name := p.readName()
	if name == "" {
		return r.createError("doctype", "name is missing")
	}
	var (
		public string
		system string
		err    error
	)
	p.skipBlank()
	switch {
	case p.accept("PUBLIC"):
		if public, err = p.readLiteral(); err != nil {
			return r.createError("doctype", err.Error())
		}
		if system, err = p.readLiteral(); err != nil {
			return r.createError("doctype", err.Error())
		}
	case p.accept("SYSTEM"):
		if system, err = p.readLiteral(); err != nil {
			return r.createError("doctype", err.Error())
		}
	}
	r.doctype = NewDocType(name, normalizePublicID(public), system)

	p.skipBlank()
	if p.peek('[') {
		end := strings.LastIndexByte(p.input, ']')
		if end < p.pos {
			return r.createError("doctype", "internal subset not terminated")
		}
		sub := dtdParser{
			reader: r,
			input:  p.input[p.pos+1 : end],
			base:   p.base,
		}
		if err := sub.parse(); err != nil {
			return r.createError("doctype", err.Error())
		}
	}
	if system == "" && public == "" {
		return nil
	}
	location := r.locateExternal(r.doctype.PublicID, system, p.base)
	if location == "" {
		return nil
	}
	text, err := r.load(location)
	if err != nil {
		return nil
	}
	ext := dtdParser{
		reader: r,
		input:  stripTextDeclaration(text),
		base:   location,
	}
	if err := ext.parse(); err != nil {
		return r.createError("doctype", fmt.Sprintf("%s: %s", location, err))
	}
	return nil
}

func normalizePublicID(str string) string {
	return strings.Join(strings.Fields(str), " ")
}

type dtdParser struct {
	reader *Reader
	input  string
	pos    int
	base   string
	depth  int
}

func (p *dtdParser) parse() error {
	if p.depth > MaxDepth {
		return fmt.Errorf("maximum parameter entity depth reached")
	}
	for {
		p.skipBlank()
		if p.done() {
			return nil
		}
		var err error
		switch {
		case p.accept("<!--"):
			err = p.skipUntil("-->")
		case p.accept("<?"):
			err = p.skipUntil("?>")
		case p.accept("<!ENTITY"):
			err = p.parseEntity()
		case p.accept("<!["):
			err = p.parseConditional()
		case p.accept("<!"):
			err = p.skipDeclaration()
		case p.peek('%'):
			err = p.parseReference()
		default:
			err = fmt.Errorf("invalid markup in document type definition near %q", p.excerpt())
		}
		if err != nil {
			return err
		}
	}
}

func (p *dtdParser) parseEntity() error {
	p.skipBlank()
	var param bool
	if p.peek('%') {
		param = true
		p.pos++
		p.skipBlank()
	}
	name := p.readName()
	if name == "" {
		return fmt.Errorf("entity name is missing")
	}
	ent := Entity{
		Name: name,
		Base: p.base,
	}
	p.skipBlank()
	var err error
	switch {
	case p.peek('"') || p.peek('\''):
		var value string
		if value, err = p.readLiteral(); err != nil {
			return err
		}
		if value, err = p.expandParams(value); err != nil {
			return err
		}
		ent.Value = expandCharRefs(value)
	case p.accept("SYSTEM"):
		ent.SystemID, err = p.readLiteral()
	case p.accept("PUBLIC"):
		if ent.PublicID, err = p.readLiteral(); err == nil {
			ent.PublicID = normalizePublicID(ent.PublicID)
			ent.SystemID, err = p.readLiteral()
		}
	default:
		return fmt.Errorf("%s: invalid entity declaration", name)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	p.skipBlank()
	if !param && p.accept("NDATA") {
		p.skipBlank()
		ent.Notation = p.readName()
	}
	if err := p.skipDeclaration(); err != nil {
		return err
	}
	if param {
		if _, ok := p.reader.params[name]; !ok {
			p.reader.params[name] = &ent
		}
	} else {
		p.reader.doctype.define(&ent)
	}
	return nil
}

func (p *dtdParser) parseReference() error {
	p.pos++
	name := p.readName()
	if name == "" || !p.peek(';') {
		return fmt.Errorf("invalid parameter entity reference")
	}
	p.pos++
	text, base, ok := p.paramText(name)
	if !ok {
		return nil
	}
	sub := dtdParser{
		reader: p.reader,
		input:  text,
		base:   base,
		depth:  p.depth + 1,
	}
	return sub.parse()
}

// paramText returns the replacement text of a parameter entity. Parameter
// entities that are unknown or whose external text can not be loaded are
// ignored.
func (p *dtdParser) paramText(name string) (string, string, bool) {
	ent, ok := p.reader.params[name]
	if !ok {
		return "", "", false
	}
	if !ent.External() {
		return ent.Value, p.base, true
	}
	location := p.reader.locateExternal(ent.PublicID, ent.SystemID, ent.Base)
	if location == "" {
		return "", "", false
	}
	text, err := p.reader.load(location)
	if err != nil {
		return "", "", false
	}
	return stripTextDeclaration(text), location, true
}

func (p *dtdParser) expandParams(value string) (string, error) {
	if !strings.Contains(value, "%") {
		return value, nil
	}
	var buf strings.Builder
	for {
		ix := strings.IndexByte(value, '%')
		if ix < 0 {
			buf.WriteString(value)
			break
		}
		buf.WriteString(value[:ix])
		value = value[ix+1:]
		end := strings.IndexByte(value, ';')
		if end <= 0 || !isName(value[:end]) {
			buf.WriteByte('%')
			continue
		}
		text, _, ok := p.paramText(value[:end])
		if ok {
			buf.WriteString(text)
		}
		value = value[end+1:]
	}
	return buf.String(), nil
}

func (p *dtdParser) parseConditional() error {
	p.skipBlank()
	var keyword string
	if p.peek('%') {
		p.pos++
		name := p.readName()
		if !p.peek(';') {
			return fmt.Errorf("invalid parameter entity reference in conditional section")
		}
		p.pos++
		text, _, _ := p.paramText(name)
		keyword = strings.TrimSpace(text)
	} else {
		keyword = p.readName()
	}
	p.skipBlank()
	if !p.peek('[') {
		return fmt.Errorf("invalid conditional section")
	}
	p.pos++
	start := p.pos
	for depth := 1; depth > 0; {
		switch {
		case p.done():
			return fmt.Errorf("conditional section not terminated")
		case p.accept("<!["):
			depth++
		case p.accept("]]>"):
			depth--
		default:
			p.pos++
		}
	}
	if keyword != "INCLUDE" {
		return nil
	}
	sub := dtdParser{
		reader: p.reader,
		input:  p.input[start : p.pos-3],
		base:   p.base,
		depth:  p.depth + 1,
	}
	return sub.parse()
}

func (p *dtdParser) skipDeclaration() error {
	for !p.done() {
		switch c := p.input[p.pos]; c {
		case '"', '\'':
			end := strings.IndexByte(p.input[p.pos+1:], c)
			if end < 0 {
				return fmt.Errorf("unterminated literal in declaration")
			}
			p.pos += end + 2
		case '>':
			p.pos++
			return nil
		default:
			p.pos++
		}
	}
	return fmt.Errorf("declaration not terminated")
}

func (p *dtdParser) skipUntil(str string) error {
	ix := strings.Index(p.input[p.pos:], str)
	if ix < 0 {
		return fmt.Errorf("%s expected", str)
	}
	p.pos += ix + len(str)
	return nil
}

func (p *dtdParser) readLiteral() (string, error) {
	p.skipBlank()
	if p.done() {
		return "", fmt.Errorf("literal expected")
	}
	q := p.input[p.pos]
	if q != '"' && q != '\'' {
		return "", fmt.Errorf("literal expected")
	}
	end := strings.IndexByte(p.input[p.pos+1:], q)
	if end < 0 {
		return "", fmt.Errorf("unterminated literal")
	}
	str := p.input[p.pos+1 : p.pos+1+end]
	p.pos += end + 2
	return str, nil
}

func (p *dtdParser) readName() string {
	start := p.pos
	for i, r := range p.input[p.pos:] {
		ok := isNameChar(r) || r == colon
		if i == 0 {
			ok = isNameStart(r) || r == colon
		}
		if !ok {
			p.pos = start + i
			return p.input[start:p.pos]
		}
	}
	p.pos = len(p.input)
	return p.input[start:]
}

func (p *dtdParser) accept(str string) bool {
	if strings.HasPrefix(p.input[p.pos:], str) {
		p.pos += len(str)
		return true
	}
	return false
}

func (p *dtdParser) peek(c byte) bool {
	return !p.done() && p.input[p.pos] == c
}

func (p *dtdParser) skipBlank() {
	for !p.done() && isBlank(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *dtdParser) done() bool {
	return p.pos >= len(p.input)
}

func (p *dtdParser) excerpt() string {
	end := min(p.pos+20, len(p.input))
	return p.input[p.pos:end]
}
