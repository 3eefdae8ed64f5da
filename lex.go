package formula

import (
	"errors"
	"io"
	"strconv"
	"strings"
)

// Token is a classified piece of formula text.
type Token struct {
	Kind TokenKind
	Text string
	// Col is the 1-based rune column of the first rune of the token.
	Col int
}

func (t Token) String() string {
	return t.Kind.String() + ":" + t.Text + "@" + strconv.Itoa(t.Col)
}

// TokenKind classifies tokens.
type TokenKind int8

const (
	TokenNone TokenKind = iota
	// TokenNumber is a decimal number, possibly negative.
	TokenNumber
	// TokenBoolean is true or false.
	TokenBoolean
	// TokenString is a double-quoted string. Text holds the decoded contents.
	TokenString
	// TokenIdent is a variable, constant, or function name, possibly dotted.
	TokenIdent
	// TokenOp is a single-rune operator.
	TokenOp
	// TokenOpen is an open bracket, one of ( [ {.
	TokenOpen
	// TokenClose is a close bracket, one of ) ] }.
	TokenClose
	// TokenSep is the element separator ",".
	TokenSep
	// TokenSpace is a run of whitespace.
	TokenSpace
)

var tokenKindNames = [...]string{
	TokenNone:    "None",
	TokenNumber:  "Number",
	TokenBoolean: "Boolean",
	TokenString:  "String",
	TokenIdent:   "Ident",
	TokenOp:      "Op",
	TokenOpen:    "Open",
	TokenClose:   "Close",
	TokenSep:     "Sep",
	TokenSpace:   "Space",
}

func (k TokenKind) String() string {
	if k < 0 || int(k) >= len(tokenKindNames) {
		return "TokenKind(" + strconv.Itoa(int(k)) + ")"
	}
	return tokenKindNames[k]
}

// valued returns whether t ends a value, which decides whether a following -
// is an operator or a sign.
func (t Token) valued() bool {
	switch t.Kind {
	case TokenNumber, TokenBoolean, TokenString, TokenIdent, TokenClose:
		return true
	}
	return false
}

// Operators contains the runes which are lexed as operators.
const Operators = "+-*/^&|.:%!~?=<>"

// OpenBrackets and CloseBrackets contain the runes which group expressions.
// The parser checks that a bracket in byte position k in OpenBrackets is
// matched with the bracket in byte position k in CloseBrackets.
const (
	OpenBrackets  = "([{"
	CloseBrackets = ")]}"
)

type lexer struct {
	src []rune
	// i is the index of the next rune to scan.
	i   int
	buf strings.Builder
	// last is the last non-space token scanned.
	last Token
}

// peek returns the rune k places after the next one without consuming it, or
// -1 past the end.
func (l *lexer) peek(k int) rune {
	if l.i+k >= len(l.src) {
		return -1
	}
	return l.src[l.i+k]
}

// take consumes the next rune and writes it to the token buffer.
func (l *lexer) take() {
	l.buf.WriteRune(l.src[l.i])
	l.i++
}

// Tokenize splits text into tokens. Whitespace is kept as TokenSpace tokens so
// that every rune of the input belongs to exactly one token.
func Tokenize(text string) ([]Token, error) {
	l := &lexer{src: []rune(text)}
	var toks []Token
	for {
		tok, err := l.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return toks, nil
			}
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind != TokenSpace {
			l.last = tok
		}
	}
}

// next scans the next token. The result is io.EOF at the end of the input.
func (l *lexer) next() (Token, error) {
	defer l.buf.Reset()
	tok := Token{Col: l.i + 1}
	r := l.peek(0)
	switch {
	case r < 0:
		return tok, io.EOF
	case isSpace(r):
		for isSpace(l.peek(0)) {
			l.take()
		}
		tok.Kind = TokenSpace
	case r == '"':
		l.i++
		if err := l.scanString(tok.Col); err != nil {
			return tok, err
		}
		tok.Kind = TokenString
	case strings.ContainsRune(OpenBrackets, r):
		l.take()
		tok.Kind = TokenOpen
	case strings.ContainsRune(CloseBrackets, r):
		l.take()
		tok.Kind = TokenClose
	case r == ',':
		l.take()
		tok.Kind = TokenSep
	case r == '-' && isDigit(l.peek(1)) && !l.last.valued():
		// A sign, not subtraction.
		l.take()
		l.scanNum()
		tok.Kind = TokenNumber
	case strings.ContainsRune(Operators, r):
		l.take()
		tok.Kind = TokenOp
	case isIdentStart(r):
		l.scanIdent()
		tok.Kind = TokenIdent
		switch l.buf.String() {
		case "true", "false":
			tok.Kind = TokenBoolean
		}
	case isDigit(r):
		l.scanNum()
		tok.Kind = TokenNumber
	default:
		// Write the rune so that it shows up in the error message.
		l.take()
		return tok, l.error(tok.Col, "")
	}
	tok.Text = l.buf.String()
	return tok, nil
}

// scanNum scans digits, an optional fraction, and an optional exponent. A dot
// or exponent marker that isn't followed by a digit ends the number instead,
// so "1.x" and "2e" lex as a number followed by more tokens.
func (l *lexer) scanNum() {
	l.digits()
	if l.peek(0) == '.' && isDigit(l.peek(1)) {
		l.take()
		l.digits()
	}
	if r := l.peek(0); r == 'e' || r == 'E' {
		switch s := l.peek(1); {
		case isDigit(s):
			l.take()
			l.digits()
		case (s == '+' || s == '-') && isDigit(l.peek(2)):
			l.take()
			l.take()
			l.digits()
		}
	}
}

func (l *lexer) digits() {
	for isDigit(l.peek(0)) {
		l.take()
	}
}

// scanIdent scans a possibly dotted identifier. A dot continues the identifier
// only when an identifier rune follows it.
func (l *lexer) scanIdent() {
	for {
		r := l.peek(0)
		switch {
		case isIdentStart(r), isDigit(r):
			l.take()
		case r == '.' && isIdentStart(l.peek(1)):
			l.take()
		default:
			return
		}
	}
}

// scanString scans the rest of a double-quoted string, writing its decoded
// contents. A doubled quote inside the string is a literal quote.
func (l *lexer) scanString(col int) error {
	for {
		r := l.peek(0)
		if r < 0 {
			return &LexError{Text: `"` + l.buf.String(), Kind: "string", Col: col}
		}
		if r == '"' {
			l.i++
			if l.peek(0) != '"' {
				return nil
			}
		}
		l.take()
	}
}

func (l *lexer) error(col int, kind string) error {
	return &LexError{
		Text: l.buf.String(),
		Kind: kind,
		Col:  col,
	}
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isDigit(r rune) bool {
	return '0' <= r && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z'
}

// validName returns whether name is a single identifier, without dots.
func validName(name string) bool {
	if name == "" || name == "true" || name == "false" {
		return false
	}
	for i, r := range name {
		if !isIdentStart(r) && (i == 0 || !isDigit(r)) {
			return false
		}
	}
	return true
}

// LexError indicates an invalid token. It implements InputError.
type LexError struct {
	// Text is the token the lexer was scanning when the invalid rune was
	// encountered, plus the invalid rune.
	Text string
	// Kind is the type of token the lexer was scanning. This may be "string"
	// or the empty string if a token kind hadn't been decided.
	Kind string
	// Col is the column of the start of the invalid token.
	Col int
}

func (err *LexError) Error() string {
	pos := "column " + strconv.Itoa(err.Col)
	if err.Kind == "" {
		return "invalid token at " + pos + ": " + err.Text
	}
	return "unterminated " + err.Kind + " at " + pos + ": " + err.Text
}

func (err *LexError) Pos() int {
	return err.Col
}
