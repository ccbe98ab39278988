// Package parse implements a recursive-descent parser for the Wsrb dialect
// (spec.md §4.1), producing an internal/ast.Program. Grounded on gothird's
// read/scan tokenizing primitives (first.go, internals.go) and
// internal/fileinput's line tracking, extended here with a column counter
// so diagnostics can carry a full "path:line:col" location (spec.md §6.3).
package parse

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/wsforth/wsc/internal/ast"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokInt
	tokChar
	tokString // rejected at parse time unless length 1, surfaced as a distinct error
	tokPunct
	tokKeyword
)

type token struct {
	kind tokKind
	text string
	pos  ast.Pos
}

var keywords = map[string]bool{
	"true": true, "false": true, "nil": true, "self": true,
	"if": true, "unless": true, "then": true, "else": true, "end": true,
	"case": true, "when": true, "while": true, "def": true, "class": true,
	"raise": true, "exit": true,
	"put_as_number": true, "put_as_char": true, "get_as_number": true, "get_as_char": true,
	"is_a?": true,
}

// lexer turns source text into a token stream, tracking path/line/col for
// diagnostics the way internal/fileinput.Location does.
type lexer struct {
	path   string
	r      *bufio.Reader
	line   int
	col    int
	peeked *token
}

func newLexer(path string, r io.Reader) *lexer {
	return &lexer{path: path, r: bufio.NewReader(r), line: 1, col: 0}
}

func (lx *lexer) errorf(pos ast.Pos, format string, args ...interface{}) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (lx *lexer) readRune() (rune, error) {
	r, _, err := lx.r.ReadRune()
	if err != nil {
		return 0, err
	}
	if r == '\n' {
		lx.line++
		lx.col = 0
	} else {
		lx.col++
	}
	return r, nil
}

func (lx *lexer) unreadRune() { _ = lx.r.UnreadRune(); lx.col-- }

func (lx *lexer) pos() ast.Pos { return ast.Pos{Path: lx.path, Line: lx.line, Col: lx.col + 1} }

func (lx *lexer) peek() (token, error) {
	if lx.peeked != nil {
		return *lx.peeked, nil
	}
	tok, err := lx.scan()
	if err != nil {
		return token{}, err
	}
	lx.peeked = &tok
	return tok, nil
}

func (lx *lexer) next() (token, error) {
	if lx.peeked != nil {
		tok := *lx.peeked
		lx.peeked = nil
		return tok, nil
	}
	return lx.scan()
}

func isSpace(r rune) bool  { return r == ' ' || r == '\t' || r == '\r' || r == '\n' }
func isDigit(r rune) bool  { return r >= '0' && r <= '9' }
func isIdent0(r rune) bool { return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') }
func isIdentN(r rune) bool { return isIdent0(r) || isDigit(r) }

func (lx *lexer) scan() (token, error) {
	for {
		r, err := lx.readRune()
		if err == io.EOF {
			return token{kind: tokEOF, pos: lx.pos()}, nil
		}
		if err != nil {
			return token{}, err
		}
		if isSpace(r) {
			continue
		}
		if r == '#' {
			for {
				r, err := lx.readRune()
				if err == io.EOF || r == '\n' {
					break
				}
				if err != nil {
					return token{}, err
				}
			}
			continue
		}
		return lx.scanFrom(r)
	}
}

func (lx *lexer) scanFrom(r rune) (token, error) {
	start := lx.pos()
	start.Col--

	switch {
	case isDigit(r):
		var sb strings.Builder
		sb.WriteRune(r)
		for {
			r, err := lx.readRune()
			if err == io.EOF {
				break
			}
			if err != nil {
				return token{}, err
			}
			if !isDigit(r) {
				lx.unreadRune()
				break
			}
			sb.WriteRune(r)
		}
		return token{kind: tokInt, text: sb.String(), pos: start}, nil

	case isIdent0(r):
		var sb strings.Builder
		sb.WriteRune(r)
		for {
			r, err := lx.readRune()
			if err == io.EOF {
				break
			}
			if err != nil {
				return token{}, err
			}
			if !isIdentN(r) {
				if r == '?' && sb.Len() > 0 {
					sb.WriteRune(r)
					break
				}
				lx.unreadRune()
				break
			}
			sb.WriteRune(r)
		}
		name := sb.String()
		if keywords[name] {
			return token{kind: tokKeyword, text: name, pos: start}, nil
		}
		return token{kind: tokIdent, text: name, pos: start}, nil

	case r == '\'':
		c, err := lx.readRune()
		if err != nil {
			return token{}, lx.errorf(start, "unterminated character literal")
		}
		if c == '\\' {
			esc, err := lx.readRune()
			if err != nil {
				return token{}, lx.errorf(start, "unterminated character literal")
			}
			c = unescape(esc)
		}
		closing, err := lx.readRune()
		if err != nil || closing != '\'' {
			return token{}, lx.errorf(start, "character literal must be exactly one character")
		}
		return token{kind: tokChar, text: string(c), pos: start}, nil

	case r == '"':
		var sb strings.Builder
		for {
			c, err := lx.readRune()
			if err != nil {
				return token{}, lx.errorf(start, "unterminated string literal")
			}
			if c == '"' {
				break
			}
			if c == '\\' {
				esc, err := lx.readRune()
				if err != nil {
					return token{}, lx.errorf(start, "unterminated string literal")
				}
				c = unescape(esc)
			}
			sb.WriteRune(c)
		}
		return token{kind: tokString, text: sb.String(), pos: start}, nil

	default:
		punct := string(r)
		if two, ok := lx.maybeTwoCharPunct(r); ok {
			punct = two
		}
		return token{kind: tokPunct, text: punct, pos: start}, nil
	}
}

// maybeTwoCharPunct greedily extends a single punctuation rune into one of
// the dialect's two- or three-character operators (==, !=, <=, >=, <=>,
// =>).
func (lx *lexer) maybeTwoCharPunct(r rune) (string, bool) {
	next, err := lx.readRune()
	if err != nil {
		return "", false
	}
	pair := string(r) + string(next)
	switch pair {
	case "==", "!=", "<=", ">=", "=>":
		if pair == "<=" {
			if third, err := lx.readRune(); err == nil {
				if third == '>' {
					return "<=>", true
				}
				lx.unreadRune()
			}
		}
		return pair, true
	}
	lx.unreadRune()
	return "", false
}

func unescape(r rune) rune {
	switch r {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case '0':
		return 0
	default:
		return r
	}
}

// SyntaxError is a host-level parse error (spec.md §7): the source does not
// match the accepted AST surface.
type SyntaxError struct {
	Pos ast.Pos
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Path, e.Pos.Line, e.Pos.Col, e.Msg)
}
