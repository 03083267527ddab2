package usd

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokPathRef  // </Some/Prim>
	tokAssetRef // @./file.usda@
	tokLParen
	tokRParen
	tokLBrace
	tokRBrace
	tokLBracket
	tokRBracket
	tokEquals
	tokComma
	tokColon
	tokSemicolon
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of file"
	case tokIdent:
		return "identifier"
	case tokNumber:
		return "number"
	case tokString:
		return "string"
	case tokPathRef:
		return "path reference"
	case tokAssetRef:
		return "asset reference"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokLBracket:
		return "'['"
	case tokRBracket:
		return "']'"
	case tokEquals:
		return "'='"
	case tokComma:
		return "','"
	case tokColon:
		return "':'"
	case tokSemicolon:
		return "';'"
	default:
		return "unknown token"
	}
}

type token struct {
	kind tokenKind
	text string
	line int
}

// lexer tokenizes the usda text serialization. Lines starting with '#' are
// comments, which also swallows the "#usda 1.0" header line.
type lexer struct {
	src  string
	pos  int
	line int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1}
}

func (l *lexer) errorf(format string, args ...any) *Error {
	return Errorf(KindParseError, "line %d: %s", l.line, fmt.Sprintf(format, args...))
}

func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: l.line}, nil
	}

	start := l.line
	c := l.src[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", line: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", line: start}, nil
	case c == '{':
		l.pos++
		return token{kind: tokLBrace, text: "{", line: start}, nil
	case c == '}':
		l.pos++
		return token{kind: tokRBrace, text: "}", line: start}, nil
	case c == '[':
		l.pos++
		return token{kind: tokLBracket, text: "[", line: start}, nil
	case c == ']':
		l.pos++
		return token{kind: tokRBracket, text: "]", line: start}, nil
	case c == '=':
		l.pos++
		return token{kind: tokEquals, text: "=", line: start}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, text: ",", line: start}, nil
	case c == ':':
		l.pos++
		return token{kind: tokColon, text: ":", line: start}, nil
	case c == ';':
		l.pos++
		return token{kind: tokSemicolon, text: ";", line: start}, nil
	case c == '"' || c == '\'':
		return l.lexString()
	case c == '<':
		return l.lexDelimited('<', '>', tokPathRef)
	case c == '@':
		return l.lexAsset()
	case isDigit(c) || c == '-' || c == '+' || (c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
		return l.lexNumber()
	case isIdentStart(c):
		return l.lexIdent()
	default:
		return token{}, l.errorf("unexpected character %q", string(c))
	}
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.line++
			l.pos++
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) lexString() (token, error) {
	start := l.line
	quote := l.src[l.pos]
	triple := strings.HasPrefix(l.src[l.pos:], strings.Repeat(string(quote), 3))

	var delim string
	if triple {
		delim = strings.Repeat(string(quote), 3)
	} else {
		delim = string(quote)
	}
	l.pos += len(delim)

	var b strings.Builder
	for l.pos < len(l.src) {
		if strings.HasPrefix(l.src[l.pos:], delim) {
			l.pos += len(delim)
			return token{kind: tokString, text: b.String(), line: start}, nil
		}
		c := l.src[l.pos]
		if c == '\n' {
			if !triple {
				return token{}, l.errorf("unterminated string")
			}
			l.line++
			b.WriteByte(c)
			l.pos++
			continue
		}
		if c == '\\' && l.pos+1 < len(l.src) {
			l.pos++
			switch l.src[l.pos] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '"', '\'':
				b.WriteByte(l.src[l.pos])
			default:
				b.WriteByte('\\')
				b.WriteByte(l.src[l.pos])
			}
			l.pos++
			continue
		}
		b.WriteByte(c)
		l.pos++
	}
	return token{}, l.errorf("unterminated string")
}

func (l *lexer) lexDelimited(open, close byte, kind tokenKind) (token, error) {
	start := l.line
	l.pos++ // consume the opening delimiter
	begin := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == close {
			text := l.src[begin:l.pos]
			l.pos++
			return token{kind: kind, text: text, line: start}, nil
		}
		if c == '\n' {
			break
		}
		l.pos++
	}
	return token{}, l.errorf("unterminated %q reference", string(open))
}

func (l *lexer) lexAsset() (token, error) {
	return l.lexDelimited('@', '@', tokAssetRef)
}

func (l *lexer) lexNumber() (token, error) {
	start := l.line
	begin := l.pos
	if l.src[l.pos] == '-' || l.src[l.pos] == '+' {
		l.pos++
	}
	sawExp := false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isDigit(c) || c == '.' {
			l.pos++
			continue
		}
		if (c == 'e' || c == 'E') && !sawExp {
			sawExp = true
			l.pos++
			if l.pos < len(l.src) && (l.src[l.pos] == '-' || l.src[l.pos] == '+') {
				l.pos++
			}
			continue
		}
		break
	}
	text := l.src[begin:l.pos]
	if text == "-" || text == "+" {
		return token{}, l.errorf("malformed number")
	}
	return token{kind: tokNumber, text: text, line: start}, nil
}

// lexIdent scans identifiers, including namespaced property names like
// "xformOp:translate" and connection suffixes like "inputs:x.connect". A
// "[]" immediately following the identifier is kept as part of the text so
// array value types ("token[]") stay one token.
func (l *lexer) lexIdent() (token, error) {
	start := l.line
	begin := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	if strings.HasPrefix(l.src[l.pos:], "[]") {
		l.pos += 2
	}
	return token{kind: tokIdent, text: l.src[begin:l.pos], line: start}, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == ':' || c == '.'
}
