package xpath

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

type Position struct {
	Line   int
	Column int
}

const (
	kwAnd = "and"
	kwOr  = "or"
	kwDiv = "div"
	kwMod = "mod"
)

const (
	EOF rune = -(1 + iota)
	Name
	Literal
	Digit
	Invalid
)

const (
	currNode = -(iota + 1000)
	parentNode
	attrNode
	varRef
	currLevel
	anyLevel
	begPred
	endPred
	begGrp
	endGrp
	opAxis
	opSeq
	opUnion
	opAdd
	opSub
	opMul
	opDiv
	opMod
	opEq
	opNe
	opGt
	opGe
	opLt
	opLe
	opAnd
	opOr
)

type Token struct {
	Literal string
	Type    rune
	Position
}

func (t Token) String() string {
	switch t.Type {
	case EOF:
		return "<eof>"
	case Name:
		return fmt.Sprintf("name(%s)", t.Literal)
	case Literal:
		return fmt.Sprintf("literal(%s)", t.Literal)
	case Digit:
		return fmt.Sprintf("number(%s)", t.Literal)
	case varRef:
		return fmt.Sprintf("variable(%s)", t.Literal)
	case currNode:
		return "<current-node>"
	case parentNode:
		return "<parent-node>"
	case attrNode:
		return "<attribute>"
	case currLevel:
		return "<current-level>"
	case anyLevel:
		return "<any-level>"
	case begPred:
		return "<begin-predicate>"
	case endPred:
		return "<end-predicate>"
	case begGrp:
		return "<begin-group>"
	case endGrp:
		return "<end-group>"
	case opAxis:
		return "<axis>"
	case opSeq:
		return "<sequence>"
	case opUnion:
		return "<union>"
	case opAdd:
		return "<add>"
	case opSub:
		return "<subtract>"
	case opMul:
		return "<multiply>"
	case opDiv:
		return "<divide>"
	case opMod:
		return "<modulo>"
	case opEq:
		return "<equal>"
	case opNe:
		return "<not-equal>"
	case opGt:
		return "<greater-than>"
	case opGe:
		return "<greater-eq>"
	case opLt:
		return "<lesser-than>"
	case opLe:
		return "<lesser-eq>"
	case opAnd:
		return "<and>"
	case opOr:
		return "<or>"
	case Invalid:
		return fmt.Sprintf("<invalid(%s)>", t.Literal)
	default:
		return "<unknown>"
	}
}

// Scanner splits an expression into tokens. It keeps the type of the last
// token to tell operator names and the multiply operator apart from name
// tests.
type Scanner struct {
	input  string
	offset int
	cursor int
	char   rune
	prev   rune

	Position
}

func Scan(str string) *Scanner {
	scan := Scanner{
		input: str,
		prev:  EOF,
	}
	scan.Line = 1
	scan.read()
	return &scan
}

func (s *Scanner) Scan() Token {
	s.skipBlank()

	var tok Token
	tok.Position = s.Position
	if s.done() {
		tok.Type = EOF
		return tok
	}
	switch {
	case s.char == quote || s.char == apos:
		s.scanLiteral(&tok)
	case s.char == dollar:
		s.scanVariable(&tok)
	case isDigit(s.char) || (s.char == dot && isDigit(s.peek())):
		s.scanNumber(&tok)
	case isNameStart(s.char):
		s.scanName(&tok)
	case s.char == star && !s.operandEnd():
		s.read()
		tok.Type = Name
		tok.Literal = "*"
	default:
		s.scanOperator(&tok)
	}
	s.prev = tok.Type
	return tok
}

// operandEnd reports whether the previous token can end an operand.
func (s *Scanner) operandEnd() bool {
	switch s.prev {
	case Name, Literal, Digit, varRef, endGrp, endPred, currNode, parentNode:
		return true
	default:
		return false
	}
}

func (s *Scanner) scanOperator(tok *Token) {
	switch k := s.peek(); s.char {
	case plus:
		tok.Type = opAdd
	case dash:
		tok.Type = opSub
	case star:
		tok.Type = opMul
	case equal:
		tok.Type = opEq
	case bang:
		tok.Type = Invalid
		tok.Literal = "!"
		if k == equal {
			s.read()
			tok.Type = opNe
		}
	case langle:
		tok.Type = opLt
		if k == equal {
			s.read()
			tok.Type = opLe
		}
	case rangle:
		tok.Type = opGt
		if k == equal {
			s.read()
			tok.Type = opGe
		}
	case lparen:
		tok.Type = begGrp
	case rparen:
		tok.Type = endGrp
	case lsquare:
		tok.Type = begPred
	case rsquare:
		tok.Type = endPred
	case comma:
		tok.Type = opSeq
	case pipe:
		tok.Type = opUnion
	case arobase:
		tok.Type = attrNode
	case colon:
		tok.Type = Invalid
		tok.Literal = ":"
		if k == colon {
			s.read()
			tok.Type = opAxis
		}
	case dot:
		tok.Type = currNode
		if k == dot {
			s.read()
			tok.Type = parentNode
		}
	case slash:
		tok.Type = currLevel
		if k == slash {
			s.read()
			tok.Type = anyLevel
		}
	default:
		tok.Type = Invalid
		tok.Literal = string(s.char)
	}
	s.read()
}

func (s *Scanner) scanLiteral(tok *Token) {
	q := s.char
	s.read()
	start := s.cursor
	for !s.done() && s.char != q {
		s.read()
	}
	tok.Literal = s.input[start:s.cursor]
	if s.char != q {
		tok.Type = Invalid
		return
	}
	tok.Type = Literal
	s.read()
}

func (s *Scanner) scanVariable(tok *Token) {
	s.read()
	if !isNameStart(s.char) {
		tok.Type = Invalid
		tok.Literal = "$"
		return
	}
	s.scanQName(tok)
	tok.Type = varRef
}

func (s *Scanner) scanNumber(tok *Token) {
	start := s.cursor
	for isDigit(s.char) {
		s.read()
	}
	if s.char == dot {
		s.read()
		for isDigit(s.char) {
			s.read()
		}
	}
	tok.Type = Digit
	tok.Literal = s.input[start:s.cursor]
}

func (s *Scanner) scanName(tok *Token) {
	s.scanQName(tok)
	tok.Type = Name
	if !s.operandEnd() {
		return
	}
	switch tok.Literal {
	case kwAnd:
		tok.Type = opAnd
	case kwOr:
		tok.Type = opOr
	case kwDiv:
		tok.Type = opDiv
	case kwMod:
		tok.Type = opMod
	}
}

// scanQName reads a NCName optionally followed by a colon and a NCName or a
// star. A double colon is left for the axis operator.
func (s *Scanner) scanQName(tok *Token) {
	start := s.cursor
	s.scanNCName()
	if s.char == colon && s.peek() != colon {
		s.read()
		switch {
		case s.char == star:
			s.read()
		case isNameStart(s.char):
			s.scanNCName()
		default:
			tok.Type = Invalid
		}
	}
	tok.Literal = s.input[start:s.cursor]
}

func (s *Scanner) scanNCName() {
	for !s.done() && isNameChar(s.char) {
		s.read()
	}
}

func (s *Scanner) read() {
	if s.char == '\n' {
		s.Column = 0
		s.Line++
	}
	s.Column++
	s.cursor = s.offset
	if s.offset >= len(s.input) {
		s.char = utf8.RuneError
		return
	}
	c, size := utf8.DecodeRuneInString(s.input[s.offset:])
	s.offset += size
	s.char = c
}

func (s *Scanner) peek() rune {
	if s.offset >= len(s.input) {
		return utf8.RuneError
	}
	c, _ := utf8.DecodeRuneInString(s.input[s.offset:])
	return c
}

func (s *Scanner) done() bool {
	return s.cursor >= len(s.input)
}

func (s *Scanner) skipBlank() {
	for !s.done() && unicode.IsSpace(s.char) {
		s.read()
	}
}

const (
	langle   = '<'
	rangle   = '>'
	lsquare  = '['
	rsquare  = ']'
	lparen   = '('
	rparen   = ')'
	colon    = ':'
	quote    = '"'
	apos     = '\''
	slash    = '/'
	bang     = '!'
	equal    = '='
	dash     = '-'
	dot      = '.'
	arobase  = '@'
	comma    = ','
	plus     = '+'
	star     = '*'
	pipe     = '|'
	dollar   = '$'
	undscore = '_'
)

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

func isNameStart(c rune) bool {
	return c == undscore || unicode.IsLetter(c)
}

func isNameChar(c rune) bool {
	return isNameStart(c) || unicode.IsDigit(c) || c == dash || c == dot || unicode.Is(unicode.Mn, c)
}
