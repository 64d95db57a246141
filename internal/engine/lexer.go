package engine

import (
	"math"
	"strconv"
	"strings"
)

// tokenKind represents the lexical class of a token.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokString
	tokPunct
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokInt:
		return "integer literal"
	case tokString:
		return "string literal"
	default:
		return "punctuation"
	}
}

// token is one lexeme. For string literals text holds the raw body between
// the quotes with escapes left untouched; for integer and character literals
// value holds the decoded number.
type token struct {
	kind  tokenKind
	text  string
	value int32
	line  int
}

// Operators are listed longest first so the scanner matches greedily.
var punctuators = []string{
	"<=", ">=", "==", "!=", "&&", "||", "++", "--", "+=", "-=", "*=", "/=", "%=",
	"+", "-", "*", "/", "%", "<", ">", "=", "!", "(", ")", "{", "}", "[", "]", ";", ",",
}

type lexer struct {
	src  string
	pos  int
	line int
}

// tokenize splits source into tokens. Preprocessor lines and comments are
// skipped; the header requirement is enforced by the validator.
func tokenize(src string) ([]token, error) {
	lx := &lexer{src: src, line: 1}
	var toks []token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

func (lx *lexer) next() (token, error) {
	if err := lx.skipTrivia(); err != nil {
		return token{}, err
	}
	if lx.pos >= len(lx.src) {
		return token{kind: tokEOF, line: lx.line}, nil
	}
	c := lx.src[lx.pos]
	switch {
	case isIdentStart(c):
		start := lx.pos
		for lx.pos < len(lx.src) && isIdentPart(lx.src[lx.pos]) {
			lx.pos++
		}
		return token{kind: tokIdent, text: lx.src[start:lx.pos], line: lx.line}, nil
	case isDigit(c):
		return lx.number()
	case c == '\'':
		return lx.char()
	case c == '"':
		return lx.str()
	}
	for _, p := range punctuators {
		if strings.HasPrefix(lx.src[lx.pos:], p) {
			lx.pos += len(p)
			return token{kind: tokPunct, text: p, line: lx.line}, nil
		}
	}
	return token{}, syntaxError(lx.line, "unexpected character %q", c)
}

func (lx *lexer) skipTrivia() error {
	atLineStart := lx.pos == 0
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == '\n':
			lx.line++
			lx.pos++
			atLineStart = true
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			lx.pos++
		case c == '#' && atLineStart:
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		case strings.HasPrefix(lx.src[lx.pos:], "//"):
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		case strings.HasPrefix(lx.src[lx.pos:], "/*"):
			end := strings.Index(lx.src[lx.pos+2:], "*/")
			if end < 0 {
				return syntaxError(lx.line, "unterminated comment")
			}
			body := lx.src[lx.pos : lx.pos+2+end+2]
			lx.line += strings.Count(body, "\n")
			lx.pos += len(body)
		default:
			return nil
		}
	}
	return nil
}

func (lx *lexer) number() (token, error) {
	start := lx.pos
	for lx.pos < len(lx.src) && (isIdentPart(lx.src[lx.pos])) {
		lx.pos++
	}
	text := lx.src[start:lx.pos]
	// base 0 accepts the C prefixes 0x and leading-zero octal.
	lower := strings.ToLower(text)
	n, err := strconv.ParseUint(text, 0, 64)
	if err != nil || strings.Contains(text, "_") || strings.HasPrefix(lower, "0o") || strings.HasPrefix(lower, "0b") {
		return token{}, syntaxError(lx.line, "invalid integer literal %q", text)
	}
	if n > math.MaxUint32 {
		return token{}, syntaxError(lx.line, "integer literal %s out of range", text)
	}
	return token{kind: tokInt, text: text, value: int32(uint32(n)), line: lx.line}, nil
}

func (lx *lexer) char() (token, error) {
	start := lx.pos
	lx.pos++ // opening quote
	if lx.pos >= len(lx.src) || lx.src[lx.pos] == '\n' {
		return token{}, syntaxError(lx.line, "unterminated character literal")
	}
	var value byte
	if lx.src[lx.pos] == '\\' {
		if lx.pos+1 >= len(lx.src) {
			return token{}, syntaxError(lx.line, "unterminated character literal")
		}
		decoded, ok := decodeEscape(lx.src[lx.pos+1])
		if !ok {
			return token{}, syntaxError(lx.line, "unknown escape sequence '\\%c'", lx.src[lx.pos+1])
		}
		value = decoded
		lx.pos += 2
	} else {
		value = lx.src[lx.pos]
		lx.pos++
	}
	if lx.pos >= len(lx.src) || lx.src[lx.pos] != '\'' {
		return token{}, syntaxError(lx.line, "character literal must hold exactly one character")
	}
	lx.pos++
	return token{kind: tokInt, text: lx.src[start:lx.pos], value: int32(value), line: lx.line}, nil
}

func (lx *lexer) str() (token, error) {
	lx.pos++ // opening quote
	start := lx.pos
	for lx.pos < len(lx.src) {
		switch lx.src[lx.pos] {
		case '\\':
			lx.pos += 2
			continue
		case '\n':
			return token{}, syntaxError(lx.line, "unterminated string literal")
		case '"':
			text := lx.src[start:lx.pos]
			lx.pos++
			return token{kind: tokString, text: text, line: lx.line}, nil
		}
		lx.pos++
	}
	return token{}, syntaxError(lx.line, "unterminated string literal")
}

// decodeEscape resolves the character following a backslash.
func decodeEscape(c byte) (byte, bool) {
	switch c {
	case 'n':
		return '\n', true
	case 't':
		return '\t', true
	case 'r':
		return '\r', true
	case '0':
		return 0, true
	case '\\', '\'', '"', '?':
		return c, true
	}
	return 0, false
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
