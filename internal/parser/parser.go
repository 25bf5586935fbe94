// Package parser turns a token list from internal/lexer into an
// internal/ast tree.
//
// It is a straightforward recursive-descent parser with one-token lookahead
// (two for function-declaration detection), matching the teacher's own
// parser/parser.go in shape: a cursor over a flat token slice, a handful of
// small per-production methods, and first-error-wins with no recovery
// (spec §4.3, §7).
package parser

import (
	"fmt"

	"github.com/J4KE-B/vsh/internal/arena"
	"github.com/J4KE-B/vsh/internal/ast"
	"github.com/J4KE-B/vsh/internal/token"
)

// Error is a parse error with the source position of the offending token.
type Error struct {
	Line, Col int
	Msg       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Msg)
}

type parser struct {
	toks []token.Token
	pos  int
	a    *arena.Arena
}

// Parse consumes toks and produces an AST rooted at the top-level list, or
// the first error encountered. A nil, nil result means the input held no
// commands (spec §4.3's `program := [NL*] list? [NL*] EOF`).
func Parse(toks []token.Token, a *arena.Arena) (ast.Node, error) {
	p := &parser{toks: toks, a: a}
	p.skipNewlines()
	if p.cur().Kind == token.EOF {
		return nil, nil
	}
	n, err := p.list()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if p.cur().Kind != token.EOF {
		return nil, p.errf("unexpected token %s", p.cur().Kind)
	}
	return n, nil
}

func (p *parser) cur() token.Token { return p.toks[p.pos] }

func (p *parser) at(k token.Kind) bool { return p.cur().Kind == k }

func (p *parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(k token.Kind) (token.Token, error) {
	if !p.at(k) {
		return token.Token{}, p.errf("expected %s, found %s", k, p.cur().Kind)
	}
	return p.advance(), nil
}

func (p *parser) errf(format string, args ...any) error {
	t := p.cur()
	return &Error{Line: t.Line, Col: t.Col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipNewlines() {
	for p.at(token.NEWLINE) {
		p.advance()
	}
}

// list parses `pipeline ( sep pipeline )* sep?`, folding separators
// left-associatively into a left-leaning binary tree. AMP wraps its left
// operand in a Background before the fold continues as a Sequence (spec
// §4.3, "Operator associativity"). Leading newlines are skipped, so a list
// may begin on the line after `then`, `else` or `do`.
func (p *parser) list() (ast.Node, error) {
	p.skipNewlines()
	left, err := p.pipeline()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Kind {
		case token.AND:
			p.advance()
			p.skipNewlines()
			right, err := p.pipeline()
			if err != nil {
				return nil, err
			}
			left = &ast.And{Left: left, Right: right}
		case token.OR:
			p.advance()
			p.skipNewlines()
			right, err := p.pipeline()
			if err != nil {
				return nil, err
			}
			left = &ast.Or{Left: left, Right: right}
		case token.AMP:
			p.advance()
			left = &ast.Background{Child: left}
			if !p.moreListItemsFollow() {
				return left, nil
			}
			p.skipNewlines()
			right, err := p.pipeline()
			if err != nil {
				return nil, err
			}
			left = &ast.Sequence{Left: left, Right: right}
		case token.SEMI, token.NEWLINE:
			p.advance()
			p.skipNewlines()
			if !p.moreListItemsFollow() {
				return left, nil
			}
			right, err := p.pipeline()
			if err != nil {
				return nil, err
			}
			left = &ast.Sequence{Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

// moreListItemsFollow reports whether the cursor sits on a token that can
// start another pipeline, as opposed to a terminator (EOF, or a closing
// keyword/grouper belonging to an enclosing construct).
func (p *parser) moreListItemsFollow() bool {
	switch p.cur().Kind {
	case token.EOF, token.RPAREN, token.RBRACE,
		token.THEN, token.ELIF, token.ELSE, token.FI,
		token.DO, token.DONE:
		return false
	}
	return true
}

// pipeline parses `[BANG] command ( PIPE [NL*] command )*` (spec §4.3).
func (p *parser) pipeline() (ast.Node, error) {
	negated := false
	if p.at(token.BANG) {
		p.advance()
		negated = true
	}
	first, err := p.command()
	if err != nil {
		return nil, err
	}
	if !p.at(token.PIPE) {
		if !negated {
			return first, nil
		}
		return &ast.Pipeline{Commands: []ast.Node{first}, Negated: true}, nil
	}
	cmds := []ast.Node{first}
	for p.at(token.PIPE) {
		p.advance()
		p.skipNewlines()
		next, err := p.command()
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, next)
	}
	return &ast.Pipeline{Commands: cmds, Negated: negated}, nil
}

// command dispatches to the compound-command productions, or falls through
// to a simple command (spec §4.3's `command` rule).
func (p *parser) command() (ast.Node, error) {
	switch p.cur().Kind {
	case token.IF:
		return p.ifClause()
	case token.WHILE:
		return p.whileClause()
	case token.FOR:
		return p.forClause()
	case token.FUNCTION:
		return p.funcDeclKeyword()
	case token.LBRACE:
		return p.block()
	case token.LPAREN:
		return p.subshell()
	case token.WORD:
		if n, ok, err := p.tryFuncDeclNameForm(); ok || err != nil {
			return n, err
		}
		return p.simple()
	default:
		return p.simple()
	}
}

// ifClause parses `IF list THEN list (ELIF list THEN list)* (ELSE list)? FI`.
func (p *parser) ifClause() (ast.Node, error) {
	p.advance() // IF
	cond, err := p.list()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.THEN); err != nil {
		return nil, err
	}
	then, err := p.list()
	if err != nil {
		return nil, err
	}
	root := &ast.If{Condition: cond, Then: then}
	tail := root
	for p.at(token.ELIF) {
		p.advance()
		econd, err := p.list()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.THEN); err != nil {
			return nil, err
		}
		ethen, err := p.list()
		if err != nil {
			return nil, err
		}
		next := &ast.If{Condition: econd, Then: ethen}
		tail.Else = next
		tail = next
	}
	if p.at(token.ELSE) {
		p.advance()
		els, err := p.list()
		if err != nil {
			return nil, err
		}
		tail.Else = els
	}
	if _, err := p.expect(token.FI); err != nil {
		return nil, err
	}
	return root, nil
}

// whileClause parses `WHILE list DO list DONE`.
func (p *parser) whileClause() (ast.Node, error) {
	p.advance() // WHILE
	cond, err := p.list()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.DO); err != nil {
		return nil, err
	}
	body, err := p.list()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.DONE); err != nil {
		return nil, err
	}
	return &ast.While{Condition: cond, Body: body}, nil
}

// forClause parses `FOR WORD (IN WORD*)? (SEMI | NL) DO list DONE`.
func (p *parser) forClause() (ast.Node, error) {
	p.advance() // FOR
	nameTok, err := p.expect(token.WORD)
	if err != nil {
		return nil, err
	}
	var words []string
	if p.at(token.IN) {
		p.advance()
		for p.at(token.WORD) {
			words = append(words, p.advance().Text)
		}
	}
	switch p.cur().Kind {
	case token.SEMI, token.NEWLINE:
		p.advance()
	default:
		return nil, p.errf("expected ';' or newline, found %s", p.cur().Kind)
	}
	p.skipNewlines()
	if _, err := p.expect(token.DO); err != nil {
		return nil, err
	}
	body, err := p.list()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.DONE); err != nil {
		return nil, err
	}
	return &ast.For{VarName: nameTok.Text, Words: words, Body: body}, nil
}

// funcDeclKeyword parses `FUNCTION WORD (LPAREN RPAREN)? body`.
func (p *parser) funcDeclKeyword() (ast.Node, error) {
	p.advance() // FUNCTION
	nameTok, err := p.expect(token.WORD)
	if err != nil {
		return nil, err
	}
	if p.at(token.LPAREN) {
		p.advance()
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
	}
	body, err := p.funcBody()
	if err != nil {
		return nil, err
	}
	return &ast.FuncDecl{Name: nameTok.Text, Body: body}, nil
}

// tryFuncDeclNameForm implements the two-token-lookahead `WORD LPAREN RPAREN
// body` function form (spec §4.3, "Function definition detection"). It
// returns ok=false without consuming anything when the lookahead doesn't
// match, so the caller can fall back to parsing a simple command.
func (p *parser) tryFuncDeclNameForm() (ast.Node, bool, error) {
	if p.toks[p.pos].Kind != token.WORD {
		return nil, false, nil
	}
	if p.pos+2 >= len(p.toks) {
		return nil, false, nil
	}
	if p.toks[p.pos+1].Kind != token.LPAREN || p.toks[p.pos+2].Kind != token.RPAREN {
		return nil, false, nil
	}
	name := p.advance().Text
	p.advance() // LPAREN
	p.advance() // RPAREN
	body, err := p.funcBody()
	if err != nil {
		return nil, true, err
	}
	return &ast.FuncDecl{Name: name, Body: body}, true, nil
}

// funcBody parses the `body := LBRACE list RBRACE` shared by both function
// forms, skipping newlines a function header is commonly followed by.
func (p *parser) funcBody() (ast.Node, error) {
	p.skipNewlines()
	return p.block()
}

// block parses `LBRACE list RBRACE`.
func (p *parser) block() (ast.Node, error) {
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	p.skipNewlines()
	child, err := p.list()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return &ast.Block{Child: child}, nil
}

// subshell parses `LPAREN list RPAREN`.
func (p *parser) subshell() (ast.Node, error) {
	p.advance() // LPAREN
	p.skipNewlines()
	child, err := p.list()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.Subshell{Child: child}, nil
}

// simple parses `(WORD | redirection)+`, collecting leading NAME=value
// assignments, argv words, and redirections in source order. Redirections
// are appended to the chain via redirTail so iterating Redirs head-to-tail
// yields source order (spec §4.3, "Redirection collection"; DESIGN.md's
// "Redirection chain order" note records why append replaces the spec's
// "prepend" wording).
func (p *parser) simple() (ast.Node, error) {
	cmd := &ast.Command{}
	var redirTail *ast.Redirection
	sawArgv := false
	local := false

	if p.at(token.LOCAL) {
		p.advance()
		local = true
	}
	if p.at(token.RETURN) {
		p.advance()
		cmd.Argv = []string{"return"}
		sawArgv = true
		if p.at(token.WORD) {
			cmd.Argv = append(cmd.Argv, p.advance().Text)
		}
		return cmd, nil
	}

	for {
		switch p.cur().Kind {
		case token.WORD:
			tok := p.advance()
			if !sawArgv {
				if name, value, ok := splitAssignment(tok.Text); ok {
					cmd.Assignments = append(cmd.Assignments, ast.Assignment{Name: name, Value: value})
					continue
				}
			}
			sawArgv = true
			cmd.Argv = append(cmd.Argv, tok.Text)
		case token.REDIR_IN, token.REDIR_OUT, token.REDIR_APPEND, token.REDIR_HEREDOC, token.REDIR_DUP:
			r, err := p.redirection()
			if err != nil {
				return nil, err
			}
			if redirTail == nil {
				cmd.Redirs = r
			} else {
				redirTail.Next = r
			}
			redirTail = r
		default:
			if !sawArgv && len(cmd.Assignments) == 0 && cmd.Redirs == nil {
				return nil, p.errf("unexpected token %s", p.cur().Kind)
			}
			cmd.Local = local
			return cmd, nil
		}
	}
}

// splitAssignment reports whether text has the shape NAME=value, per spec
// §4.2's identifier rule (letter/underscore then letters/digits/underscores).
func splitAssignment(text string) (name, value string, ok bool) {
	eq := -1
	for i := 0; i < len(text); i++ {
		if text[i] == '=' {
			eq = i
			break
		}
		if i == 0 {
			if !(isAlpha(text[i]) || text[i] == '_') {
				return "", "", false
			}
		} else if !(isAlpha(text[i]) || isDigit(text[i]) || text[i] == '_') {
			return "", "", false
		}
	}
	if eq <= 0 {
		return "", "", false
	}
	return text[:eq], text[eq+1:], true
}

func isAlpha(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }
func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// redirection parses a single redirection operator plus its target word
// (spec §3, §4.2, §4.7).
func (p *parser) redirection() (*ast.Redirection, error) {
	op := p.advance()
	var typ ast.RedirType
	switch op.Kind {
	case token.REDIR_IN:
		typ = ast.RedirInput
	case token.REDIR_OUT:
		typ = ast.RedirOutput
	case token.REDIR_APPEND:
		typ = ast.RedirAppend
	case token.REDIR_HEREDOC:
		typ = ast.RedirHeredoc
	case token.REDIR_DUP:
		if op.DupOut {
			typ = ast.RedirDupOut
		} else {
			typ = ast.RedirDupIn
		}
	}

	fd := op.RedirFd
	if fd == token.NoFd {
		fd = typ.DefaultFd()
	}

	if op.Kind == token.REDIR_DUP {
		return &ast.Redirection{Type: typ, Fd: fd, Target: op.Text}, nil
	}
	if op.Kind == token.REDIR_HEREDOC {
		delim, err := p.expect(token.WORD)
		if err != nil {
			return nil, err
		}
		return &ast.Redirection{
			Type:          typ,
			Fd:            fd,
			Target:        delim.Text,
			HeredocLines:  delim.HeredocBody,
			HeredocExpand: !delim.HeredocRaw,
		}, nil
	}
	target, err := p.expect(token.WORD)
	if err != nil {
		return nil, err
	}
	return &ast.Redirection{Type: typ, Fd: fd, Target: target.Text}, nil
}
