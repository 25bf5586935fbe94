// Package unparse renders an AST back into shell source text.
//
// The executor uses this to run a subtree in a genuinely separate OS
// process: Go cannot fork the running interpreter and keep executing
// arbitrary Go code in the child (only fork-immediately-followed-by-exec is
// safe), so internal/executor reconstructs source text for a Subshell,
// Background, or pipeline-stage-running-a-builtin and re-execs the shell
// binary with it via `-c` (DESIGN.md, "internal/executor"). The teacher
// has a real pretty-printer for this purpose (printer/printer.go); this
// package is a much smaller analogue grounded on the same idea: walk the
// tree, emit source, round-trip through the same parser that reads user
// input.
//
// Round-tripping is best-effort, not exact: quote-character provenance is
// discarded by the lexer (a WORD's text no longer records which bytes were
// originally inside single or double quotes), so this package re-quotes
// purely from the characters a word contains. This preserves observable
// behavior for the common cases this package is actually asked to
// reconstruct — plain words, parameter references, operators, redirections,
// heredocs — but a word whose author relied on quoting to suppress glob or
// tilde expansion of a literal `*`/`~` loses that distinction. Documented
// as an accepted approximation in DESIGN.md.
package unparse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/J4KE-B/vsh/internal/ast"
)

// Node renders n as shell source text suitable for re-parsing.
func Node(n ast.Node) string {
	var b strings.Builder
	writeNode(&b, n)
	return b.String()
}

func writeNode(b *strings.Builder, n ast.Node) {
	switch v := n.(type) {
	case nil:
		return
	case *ast.Command:
		writeCommand(b, v)
	case *ast.Pipeline:
		if v.Negated {
			b.WriteString("! ")
		}
		for i, c := range v.Commands {
			if i > 0 {
				b.WriteString(" | ")
			}
			writeNode(b, c)
		}
	case *ast.And:
		writeNode(b, v.Left)
		b.WriteString(" && ")
		writeNode(b, v.Right)
	case *ast.Or:
		writeNode(b, v.Left)
		b.WriteString(" || ")
		writeNode(b, v.Right)
	case *ast.Sequence:
		writeNode(b, v.Left)
		b.WriteString("\n")
		writeNode(b, v.Right)
	case *ast.Background:
		writeNode(b, v.Child)
		b.WriteString(" &")
	case *ast.Negate:
		b.WriteString("! ")
		writeNode(b, v.Child)
	case *ast.Subshell:
		b.WriteString("(")
		writeNode(b, v.Child)
		b.WriteString(")")
	case *ast.Block:
		b.WriteString("{ ")
		writeNode(b, v.Child)
		b.WriteString("; }")
	case *ast.If:
		b.WriteString("if ")
		writeNode(b, v.Condition)
		b.WriteString("\nthen\n")
		writeNode(b, v.Then)
		b.WriteString("\n")
		switch e := v.Else.(type) {
		case nil:
		case *ast.If:
			b.WriteString("el")
			writeNode(b, e)
			return
		default:
			b.WriteString("else\n")
			writeNode(b, e)
			b.WriteString("\n")
		}
		b.WriteString("fi")
	case *ast.While:
		b.WriteString("while ")
		writeNode(b, v.Condition)
		b.WriteString("\ndo\n")
		writeNode(b, v.Body)
		b.WriteString("\ndone")
	case *ast.For:
		b.WriteString("for ")
		b.WriteString(v.VarName)
		if v.Words != nil {
			b.WriteString(" in")
			for _, w := range v.Words {
				b.WriteString(" ")
				b.WriteString(quoteWord(w))
			}
		}
		b.WriteString("\ndo\n")
		writeNode(b, v.Body)
		b.WriteString("\ndone")
	case *ast.FuncDecl:
		b.WriteString(v.Name)
		b.WriteString("() {\n")
		writeNode(b, v.Body)
		b.WriteString("\n}")
	default:
		panic(fmt.Sprintf("unparse: unknown node type %T", n))
	}
}

func writeCommand(b *strings.Builder, c *ast.Command) {
	if c.Local {
		b.WriteString("local ")
	}
	parts := make([]string, 0, len(c.Assignments)+len(c.Argv))
	for _, a := range c.Assignments {
		parts = append(parts, a.Name+"="+quoteWord(a.Value))
	}
	for _, w := range c.Argv {
		parts = append(parts, quoteWord(w))
	}
	b.WriteString(strings.Join(parts, " "))

	var heredocs []string
	for r := c.Redirs; r != nil; r = r.Next {
		writeRedir(b, r, &heredocs)
	}
	for _, h := range heredocs {
		b.WriteString("\n")
		b.WriteString(h)
	}
}

func writeRedir(b *strings.Builder, r *ast.Redirection, heredocs *[]string) {
	fdPrefix := ""
	if r.Fd != r.Type.DefaultFd() {
		fdPrefix = strconv.Itoa(r.Fd)
	}
	switch r.Type {
	case ast.RedirInput:
		fmt.Fprintf(b, " %s<%s", fdPrefix, quoteWord(r.Target))
	case ast.RedirOutput:
		fmt.Fprintf(b, " %s>%s", fdPrefix, quoteWord(r.Target))
	case ast.RedirAppend:
		fmt.Fprintf(b, " %s>>%s", fdPrefix, quoteWord(r.Target))
	case ast.RedirDupOut:
		fmt.Fprintf(b, " %s>&%s", fdPrefix, r.Target)
	case ast.RedirDupIn:
		fmt.Fprintf(b, " %s<&%s", fdPrefix, r.Target)
	case ast.RedirHeredoc:
		delim := "VSH_UNPARSE_EOF"
		body := strings.Join(r.HeredocLines, "\n")
		if len(r.HeredocLines) > 0 {
			body += "\n"
		}
		openDelim := delim
		if !r.HeredocExpand {
			openDelim = "'" + delim + "'"
		}
		fmt.Fprintf(b, " %s<<%s", fdPrefix, openDelim)
		*heredocs = append(*heredocs, body+delim)
	}
}

// needsQuote reports whether b is a byte the lexer treats specially outside
// quotes: word breaks, operator characters, and the remaining quoting
// metacharacters. `$`, `~`, and `=` are deliberately excluded so parameter,
// tilde, and assignment behavior survives the round trip.
func needsQuote(b byte) bool {
	switch b {
	case ' ', '\t', '\n', ';', '&', '|', '(', ')', '{', '}', '<', '>', '*', '?', '[', ']', '`', '"', '\'', '#', '\\', '!':
		return true
	}
	return false
}

// quoteWord renders w so that re-lexing it reproduces the same literal text
// for any byte that would otherwise be read as an operator or quote
// character.
func quoteWord(w string) string {
	if w == "" {
		return "''"
	}
	needs := false
	for i := 0; i < len(w); i++ {
		if needsQuote(w[i]) {
			needs = true
			break
		}
	}
	if !needs {
		return w
	}
	var b strings.Builder
	for i := 0; i < len(w); i++ {
		c := w[i]
		if needsQuote(c) {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}
