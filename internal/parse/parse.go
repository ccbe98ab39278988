package parse

import (
	"io"

	"github.com/wsforth/wsc/internal/ast"
)

// Parse reads a complete Wsrb dialect source from r, returning its AST. path
// is used only to label diagnostics (spec.md §6.3).
func Parse(path string, r io.Reader) (*ast.Program, error) {
	p := &parser{lx: newLexer(path, r)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	start := p.tok.pos
	stmts, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errf("unexpected %q", p.tok.text)
	}
	return ast.NewProgram(start, stmts), nil
}

// parser is a one-token-lookahead recursive-descent parser over the dialect
// grammar spec.md §4.1 enumerates. Grounded on gothird's incremental
// scan/parseToken reading style, generalized into a full expression grammar
// since FIRST itself has no AST.
type parser struct {
	lx  *lexer
	tok token
}

func (p *parser) advance() error {
	tok, err := p.lx.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) errf(format string, args ...interface{}) error {
	return p.lx.errorf(p.tok.pos, format, args...)
}

func (p *parser) at(kind tokKind, text string) bool {
	return p.tok.kind == kind && p.tok.text == text
}

func (p *parser) atKeyword(kw string) bool { return p.at(tokKeyword, kw) }
func (p *parser) atPunct(s string) bool    { return p.at(tokPunct, s) }

func (p *parser) expectPunct(s string) error {
	if !p.atPunct(s) {
		return p.errf("expected %q, got %q", s, p.tok.text)
	}
	return p.advance()
}

func (p *parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		return p.errf("expected %q, got %q", kw, p.tok.text)
	}
	return p.advance()
}

// blockEnders names the keywords that terminate a statement block without
// being consumed by it; the caller decides which one it expects next.
var blockEnders = map[string]bool{"end": true, "else": true, "when": true}

func (p *parser) atBlockEnd() bool {
	if p.tok.kind == tokEOF {
		return true
	}
	return p.tok.kind == tokKeyword && blockEnders[p.tok.text]
}

func (p *parser) skipSeparators() error {
	for p.atPunct(";") {
		if err := p.advance(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseBlock() ([]ast.Node, error) {
	var stmts []ast.Node
	for {
		if err := p.skipSeparators(); err != nil {
			return nil, err
		}
		if p.atBlockEnd() {
			return stmts, nil
		}
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		if err := p.skipSeparators(); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseStmt() (ast.Node, error) {
	switch {
	case p.atKeyword("def"):
		return p.parseMethodDef("")
	case p.atKeyword("class"):
		return p.parseClassDef()
	default:
		return p.parseExpr()
	}
}

func (p *parser) parseExpr() (ast.Node, error) { return p.parseAssign() }

func (p *parser) parseAssign() (ast.Node, error) {
	left, err := p.parseCompare()
	if err != nil {
		return nil, err
	}
	if p.atPunct("=") {
		switch left.(type) {
		case *ast.Ident, *ast.Index:
		default:
			return nil, p.errf("invalid assignment target")
		}
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		return ast.NewAssign(pos, left, right), nil
	}
	return left, nil
}

var compareOps = map[string]bool{"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true, "<=>": true}

func (p *parser) parseCompare() (ast.Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokPunct && compareOps[p.tok.text] {
		op := p.tok.text
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinOp(pos, op, left, right)
	}
	return left, nil
}

func (p *parser) parseAdditive() (ast.Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.atPunct("+") || p.atPunct("-") {
		op := p.tok.text
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinOp(pos, op, left, right)
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (ast.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.atPunct("*") || p.atPunct("/") || p.atPunct("%") {
		op := p.tok.text
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinOp(pos, op, left, right)
	}
	return left, nil
}

func (p *parser) parseUnary() (ast.Node, error) {
	if p.atPunct("!") {
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.NewNot(pos, x), nil
	}
	if p.atPunct("-") {
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.NewBinOp(pos, "-", ast.NewIntLit(pos, "0"), x), nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (ast.Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.atPunct("."):
			pos := p.tok.pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.kind != tokIdent && !(p.tok.kind == tokKeyword && p.tok.text == "is_a?") {
				return nil, p.errf("expected method name after '.'")
			}
			name := p.tok.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			if name == "is_a?" {
				if err := p.expectPunct("("); err != nil {
					return nil, err
				}
				if p.tok.kind != tokIdent {
					return nil, p.errf("expected class name in is_a?")
				}
				class := p.tok.text
				if err := p.advance(); err != nil {
					return nil, err
				}
				if err := p.expectPunct(")"); err != nil {
					return nil, err
				}
				left = ast.NewIsA(pos, left, class)
				continue
			}
			var args []ast.Node
			if p.atPunct("(") {
				args, err = p.parseArgs()
				if err != nil {
					return nil, err
				}
			}
			left = ast.NewCall(pos, left, name, args)
		case p.atPunct("["):
			pos := p.tok.pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			left = ast.NewIndex(pos, left, key)
		default:
			return left, nil
		}
	}
}

func (p *parser) parseArgs() ([]ast.Node, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []ast.Node
	if !p.atPunct(")") {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.atPunct(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) parsePrimary() (ast.Node, error) {
	tok := p.tok
	switch {
	case tok.kind == tokInt:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewIntLit(tok.pos, tok.text), nil

	case tok.kind == tokChar:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewCharLit(tok.pos, []rune(tok.text)[0]), nil

	case tok.kind == tokString:
		runes := []rune(tok.text)
		if len(runes) != 1 {
			return nil, p.errf("string literal must be exactly one character, got %d", len(runes))
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewCharLit(tok.pos, runes[0]), nil

	case tok.kind == tokKeyword && tok.text == "true":
		return p.consumeBool(true)
	case tok.kind == tokKeyword && tok.text == "false":
		return p.consumeBool(false)
	case tok.kind == tokKeyword && tok.text == "nil":
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewNilLit(tok.pos), nil
	case tok.kind == tokKeyword && tok.text == "self":
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewSelf(tok.pos), nil

	case tok.kind == tokKeyword && (tok.text == "if" || tok.text == "unless"):
		return p.parseIf(tok.text == "unless")
	case tok.kind == tokKeyword && tok.text == "case":
		return p.parseCase()
	case tok.kind == tokKeyword && tok.text == "while":
		return p.parseWhile()
	case tok.kind == tokKeyword && tok.text == "raise":
		return p.parseRaise()
	case tok.kind == tokKeyword && tok.text == "exit":
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewExit(tok.pos), nil
	case tok.kind == tokKeyword && (tok.text == "put_as_number" || tok.text == "put_as_char"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return ast.NewBuiltin(tok.pos, tok.text, arg), nil
	case tok.kind == tokKeyword && (tok.text == "get_as_number" || tok.text == "get_as_char"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		target, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		return ast.NewBuiltin(tok.pos, tok.text, target), nil

	case tok.kind == tokIdent:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.atPunct("(") {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return ast.NewCall(tok.pos, nil, tok.text, args), nil
		}
		return ast.NewIdent(tok.pos, tok.text), nil

	case tok.kind == tokPunct && tok.text == "(":
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return inner, nil

	case tok.kind == tokPunct && tok.text == "[":
		return p.parseArrayLit()
	case tok.kind == tokPunct && tok.text == "{":
		return p.parseHashLit()

	default:
		return nil, p.errf("unexpected token %q", tok.text)
	}
}

func (p *parser) consumeBool(v bool) (ast.Node, error) {
	pos := p.tok.pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	return ast.NewBoolLit(pos, v), nil
}

func (p *parser) parseArrayLit() (ast.Node, error) {
	pos := p.tok.pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	var elems []ast.Node
	if !p.atPunct("]") {
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if p.atPunct(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}
	if err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	return ast.NewArrayLit(pos, elems), nil
}

func (p *parser) parseHashLit() (ast.Node, error) {
	pos := p.tok.pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	var pairs []ast.HashPair
	if !p.atPunct("}") {
		for {
			k, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("=>"); err != nil {
				return nil, err
			}
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, ast.HashPair{Key: k, Value: v})
			if p.atPunct(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return ast.NewHashLit(pos, pairs), nil
}

func (p *parser) maybeThen() error {
	if p.atKeyword("then") {
		return p.advance()
	}
	return nil
}

func (p *parser) parseIf(negate bool) (ast.Node, error) {
	pos := p.tok.pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.maybeThen(); err != nil {
		return nil, err
	}
	thenBody, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var elseBody []ast.Node
	if p.atKeyword("else") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		elseBody, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	if negate {
		thenBody, elseBody = elseBody, thenBody
	}
	return ast.NewIf(pos, cond, thenBody, elseBody), nil
}

func (p *parser) parseCase() (ast.Node, error) {
	pos := p.tok.pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	subject, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.skipSeparators(); err != nil {
		return nil, err
	}
	var whens []ast.CaseWhen
	for p.atKeyword("when") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		var matches []ast.Node
		for {
			m, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			matches = append(matches, m)
			if p.atPunct(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if err := p.maybeThen(); err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		whens = append(whens, ast.CaseWhen{Matches: matches, Body: body})
	}
	var elseBody []ast.Node
	if p.atKeyword("else") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		elseBody, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return ast.NewCase(pos, subject, whens, elseBody), nil
}

func (p *parser) parseWhile() (ast.Node, error) {
	pos := p.tok.pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.maybeThen(); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return ast.NewWhile(pos, cond, body), nil
}

func (p *parser) parseRaise() (ast.Node, error) {
	pos := p.tok.pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokString {
		return nil, p.errf("expected string literal after raise")
	}
	msg := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	return ast.NewRaise(pos, msg), nil
}

func (p *parser) parseMethodDef(class string) (ast.Node, error) {
	pos := p.tok.pos
	if err := p.advance(); err != nil { // consume 'def'
		return nil, err
	}
	isOpName := p.tok.kind == tokPunct &&
		(p.tok.text == "<" || p.tok.text == ">" || p.tok.text == "<=" || p.tok.text == ">=")
	if p.tok.kind != tokIdent && p.tok.kind != tokKeyword && !isOpName {
		return nil, p.errf("expected method name after def")
	}
	name := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	var params []string
	if p.atPunct("(") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if !p.atPunct(")") {
			for {
				if p.tok.kind != tokIdent {
					return nil, p.errf("expected parameter name")
				}
				params = append(params, p.tok.text)
				if err := p.advance(); err != nil {
					return nil, err
				}
				if p.atPunct(",") {
					if err := p.advance(); err != nil {
						return nil, err
					}
					continue
				}
				break
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return ast.NewMethodDef(pos, class, name, params, body), nil
}

func (p *parser) parseClassDef() (ast.Node, error) {
	pos := p.tok.pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokIdent {
		return nil, p.errf("expected class name")
	}
	name := p.tok.text
	switch name {
	case "Array", "Hash", "Integer":
	default:
		return nil, p.errf("unknown class %q: only Array, Hash, Integer may be reopened", name)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	var methods []*ast.MethodDef
	for {
		if err := p.skipSeparators(); err != nil {
			return nil, err
		}
		if p.atKeyword("end") {
			break
		}
		if !p.atKeyword("def") {
			return nil, p.errf("only method definitions are allowed inside a class clause")
		}
		m, err := p.parseMethodDef(name)
		if err != nil {
			return nil, err
		}
		md, ok := m.(*ast.MethodDef)
		if !ok {
			return nil, p.errf("internal: parseMethodDef returned non-MethodDef")
		}
		methods = append(methods, md)
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return ast.NewClassDef(pos, name, methods), nil
}
