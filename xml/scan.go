package xml

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	EOF rune = -(1 + iota)
	Name
	Namespace // name:
	Attr      // name=
	Literal
	Cdata
	CommentTag   // <!-- -->
	OpenTag      // <
	EndTag       // >
	CloseTag     // </
	EmptyElemTag // />
	ProcInstTag  // <? ?>
	DocTypeTag   // <!DOCTYPE >
	EntityRef    // &name;
	Invalid
)

type Position struct {
	Line   int
	Column int
}

type Token struct {
	Literal string
	Type    rune
	Position
}

func (t Token) String() string {
	switch t.Type {
	case EOF:
		return "<eof>"
	case CommentTag:
		return fmt.Sprintf("comment(%s)", t.Literal)
	case Name:
		return fmt.Sprintf("name(%s)", t.Literal)
	case Namespace:
		return fmt.Sprintf("namespace(%s)", t.Literal)
	case Attr:
		return fmt.Sprintf("attr(%s)", t.Literal)
	case Cdata:
		return fmt.Sprintf("chardata(%s)", t.Literal)
	case Literal:
		return fmt.Sprintf("literal(%s)", t.Literal)
	case EntityRef:
		return fmt.Sprintf("entity(%s)", t.Literal)
	case DocTypeTag:
		return fmt.Sprintf("doctype(%s)", t.Literal)
	case ProcInstTag:
		return fmt.Sprintf("pi(%s)", t.Literal)
	case OpenTag:
		return "<open-elem-tag>"
	case EndTag:
		return "<end-elem-tag>"
	case CloseTag:
		return "<close-elem-tag>"
	case EmptyElemTag:
		return "<empty-elem-tag>"
	case Invalid:
		return fmt.Sprintf("<invalid(%s)>", t.Literal)
	default:
		return "<unknown>"
	}
}

const (
	langle    = '<'
	rangle    = '>'
	lsquare   = '['
	rsquare   = ']'
	colon     = ':'
	quote     = '"'
	apos      = '\''
	slash     = '/'
	question  = '?'
	bang      = '!'
	equal     = '='
	ampersand = '&'
	semicolon = ';'
	dash      = '-'
	hash      = '#'
	percent   = '%'
	eof       = -1
)

var predefined = map[string]string{
	"lt":   "<",
	"gt":   ">",
	"amp":  "&",
	"apos": "'",
	"quot": "\"",
}

type state int8

const (
	contentState state = iota
	tagState
)

// EntityFunc returns the replacement text of a general entity referenced
// from an attribute value.
type EntityFunc func(string) (string, error)

type Scanner struct {
	input  string
	offset int
	cursor int
	char   rune
	str    strings.Builder

	Position
	state

	entities EntityFunc
}

func Scan(input string) *Scanner {
	scan := Scanner{
		input: input,
	}
	scan.Line = 1
	scan.read()
	return &scan
}

func (s *Scanner) Scan() Token {
	var tok Token
	if s.state == tagState {
		s.skipBlank()
	}
	tok.Position = s.Position
	if s.done() {
		tok.Type = EOF
		return tok
	}
	s.str.Reset()
	switch {
	case s.state == tagState:
		s.scanTag(&tok)
	case s.char == langle:
		s.scanMarkup(&tok)
	default:
		s.scanLiteral(&tok)
	}
	return tok
}

func (s *Scanner) scanMarkup(tok *Token) {
	switch {
	case s.startsWith("<!--"):
		s.skip(4)
		s.scanComment(tok)
	case s.startsWith("<![CDATA["):
		s.skip(9)
		s.scanCharData(tok)
	case s.startsWith("<!DOCTYPE"):
		s.skip(9)
		s.scanDocType(tok)
	case s.startsWith("<?"):
		s.skip(2)
		s.scanInstruction(tok)
	case s.startsWith("</"):
		s.skip(2)
		tok.Type = CloseTag
		s.state = tagState
	default:
		s.read()
		tok.Type = OpenTag
		s.state = tagState
	}
}

func (s *Scanner) scanComment(tok *Token) {
	tok.Type = CommentTag
	for !s.done() {
		if s.startsWith("-->") {
			s.skip(3)
			tok.Literal = s.str.String()
			return
		}
		s.write()
		s.read()
	}
	tok.Type = Invalid
	tok.Literal = "unterminated comment"
}

func (s *Scanner) scanCharData(tok *Token) {
	tok.Type = Cdata
	for !s.done() {
		if s.startsWith("]]>") {
			s.skip(3)
			tok.Literal = s.str.String()
			return
		}
		s.write()
		s.read()
	}
	tok.Type = Invalid
	tok.Literal = "unterminated character data section"
}

func (s *Scanner) scanInstruction(tok *Token) {
	tok.Type = ProcInstTag
	for !s.done() {
		if s.startsWith("?>") {
			s.skip(2)
			tok.Literal = s.str.String()
			return
		}
		s.write()
		s.read()
	}
	tok.Type = Invalid
	tok.Literal = "unterminated processing instruction"
}

func (s *Scanner) scanDocType(tok *Token) {
	tok.Type = DocTypeTag
	var depth int
	for !s.done() {
		switch {
		case s.char == quote || s.char == apos:
			q := s.char
			s.write()
			s.read()
			for !s.done() && s.char != q {
				s.write()
				s.read()
			}
		case s.startsWith("<!--"):
			for !s.done() && !s.startsWith("-->") {
				s.write()
				s.read()
			}
			s.str.WriteString("--")
			s.skip(2)
		case s.char == lsquare:
			depth++
		case s.char == rsquare:
			depth--
		case s.char == rangle && depth <= 0:
			s.read()
			tok.Literal = s.str.String()
			return
		}
		s.write()
		s.read()
	}
	tok.Type = Invalid
	tok.Literal = "unterminated document type declaration"
}

func (s *Scanner) scanTag(tok *Token) {
	switch {
	case s.char == rangle:
		s.read()
		tok.Type = EndTag
		s.state = contentState
	case s.startsWith("/>"):
		s.skip(2)
		tok.Type = EmptyElemTag
		s.state = contentState
	case s.char == quote || s.char == apos:
		s.scanValue(tok)
	case isNameStart(s.char):
		s.scanName(tok)
	default:
		tok.Type = Invalid
		tok.Literal = fmt.Sprintf("unexpected character %q", s.char)
		s.read()
	}
}

func (s *Scanner) scanName(tok *Token) {
	for !s.done() && isNameChar(s.char) {
		s.write()
		s.read()
	}
	tok.Type = Name
	tok.Literal = s.str.String()
	if s.char == colon {
		tok.Type = Namespace
		s.read()
		return
	}
	s.skipBlank()
	if s.char == equal {
		tok.Type = Attr
		s.read()
	}
}

func (s *Scanner) scanValue(tok *Token) {
	q := s.char
	s.read()
	for !s.done() && s.char != q {
		switch s.char {
		case langle:
			tok.Type = Invalid
			tok.Literal = "'<' not allowed in attribute value"
			return
		case ampersand:
			str, err := s.scanReference(true)
			if err != nil {
				tok.Type = Invalid
				tok.Literal = err.Error()
				return
			}
			s.str.WriteString(str)
			continue
		case '\t', '\n':
			s.str.WriteRune(' ')
		default:
			s.write()
		}
		s.read()
	}
	if s.char != q {
		tok.Type = Invalid
		tok.Literal = "unterminated attribute value"
		return
	}
	s.read()
	tok.Type = Literal
	tok.Literal = s.str.String()
}

func (s *Scanner) scanLiteral(tok *Token) {
	tok.Type = Literal
	for !s.done() && s.char != langle {
		if s.char == ampersand {
			if name, ok := s.generalEntity(); ok {
				if s.str.Len() > 0 {
					break
				}
				s.skip(utf8.RuneCountInString(name) + 2)
				tok.Type = EntityRef
				tok.Literal = name
				return
			}
			str, err := s.scanReference(false)
			if err != nil {
				tok.Type = Invalid
				tok.Literal = err.Error()
				return
			}
			s.str.WriteString(str)
			continue
		}
		s.write()
		s.read()
	}
	tok.Literal = s.str.String()
}

// generalEntity reports whether the scanner is positioned on a reference to
// a general entity that is neither predefined nor a character reference.
func (s *Scanner) generalEntity() (string, bool) {
	rest := s.input[s.cursor+1:]
	end := strings.IndexByte(rest, semicolon)
	if end <= 0 {
		return "", false
	}
	name := rest[:end]
	if name[0] == hash || !isName(name) {
		return "", false
	}
	if _, ok := predefined[name]; ok {
		return "", false
	}
	return name, true
}

// scanReference consumes a reference starting at '&' and returns its
// replacement text. General entities are only expanded in attribute values.
func (s *Scanner) scanReference(attribute bool) (string, error) {
	rest := s.input[s.cursor+1:]
	end := strings.IndexByte(rest, semicolon)
	if end <= 0 {
		return "", fmt.Errorf("invalid entity reference")
	}
	name := rest[:end]
	s.skip(utf8.RuneCountInString(name) + 2)
	if str, ok := predefined[name]; ok {
		return str, nil
	}
	if name[0] == hash {
		char, ok := resolveCharRef(name[1:])
		if !ok {
			return "", fmt.Errorf("&%s;: invalid character reference", name)
		}
		return string(char), nil
	}
	if !attribute || s.entities == nil {
		return "", fmt.Errorf("&%s;: undefined entity", name)
	}
	str, err := s.entities(name)
	if err != nil {
		return "", err
	}
	return normalizeAttributeText(str), nil
}

func (s *Scanner) write() {
	s.str.WriteRune(s.char)
}

func (s *Scanner) read() {
	if s.char == '\n' {
		s.Column = 0
		s.Line++
	}
	s.Column++
	s.cursor = s.offset
	if s.offset >= len(s.input) {
		s.char = eof
		return
	}
	char, size := utf8.DecodeRuneInString(s.input[s.offset:])
	s.offset += size
	s.char = char
}

func (s *Scanner) skip(n int) {
	for i := 0; i < n; i++ {
		s.read()
	}
}

func (s *Scanner) startsWith(str string) bool {
	return !s.done() && strings.HasPrefix(s.input[s.cursor:], str)
}

func (s *Scanner) done() bool {
	return s.char == eof
}

func (s *Scanner) skipBlank() {
	for !s.done() && isBlank(s.char) {
		s.read()
	}
}

func resolveCharRef(str string) (rune, bool) {
	var (
		n   uint64
		err error
	)
	if strings.HasPrefix(str, "x") {
		n, err = strconv.ParseUint(str[1:], 16, 32)
	} else {
		n, err = strconv.ParseUint(str, 10, 32)
	}
	if err != nil || n == 0 || !utf8.ValidRune(rune(n)) {
		return 0, false
	}
	return rune(n), true
}

// expandCharRefs replaces predefined and character references in str. Other
// references are left untouched.
func expandCharRefs(str string) string {
	if !strings.Contains(str, "&") {
		return str
	}
	var buf strings.Builder
	for {
		ix := strings.IndexByte(str, ampersand)
		if ix < 0 {
			buf.WriteString(str)
			break
		}
		buf.WriteString(str[:ix])
		str = str[ix:]
		end := strings.IndexByte(str, semicolon)
		if end < 0 {
			buf.WriteString(str)
			break
		}
		name := str[1:end]
		if name != "" && name[0] == hash {
			if char, ok := resolveCharRef(name[1:]); ok {
				buf.WriteRune(char)
				str = str[end+1:]
				continue
			}
		}
		buf.WriteString(str[:end+1])
		str = str[end+1:]
	}
	return buf.String()
}

func normalizeAttributeText(str string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, str)
}

func normalizeNewlines(str string) string {
	if !strings.Contains(str, "\r") {
		return str
	}
	str = strings.ReplaceAll(str, "\r\n", "\n")
	return strings.ReplaceAll(str, "\r", "\n")
}

func isBlank(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func isNameStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isNameChar(r rune) bool {
	return isNameStart(r) || unicode.IsDigit(r) || r == dash || r == '.' || r == 0xB7 || unicode.Is(unicode.Mn, r)
}

func isName(str string) bool {
	for i, r := range str {
		if i == 0 && !isNameStart(r) {
			return false
		}
		if !isNameChar(r) && r != colon {
			return false
		}
	}
	return str != ""
}
