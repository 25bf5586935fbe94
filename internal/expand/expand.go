// Package expand implements the three-stage word-expansion pipeline:
// parameter expansion, tilde expansion, and glob expansion, run in that
// strict order on each WORD of a simple command (spec §4.4).
//
// Unlike the teacher's expand package, which walks a pre-parsed
// syntax.ParamExp tree produced by its own parser, this package scans plain
// WORD text directly: the lexer here never recognizes `$...` syntax, so
// parameter references survive as literal text for this package to find.
package expand

import (
	"fmt"
	"io"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/J4KE-B/vsh/internal/arena"
	"github.com/J4KE-B/vsh/internal/environ"
)

// Context carries everything a Word expansion needs to resolve parameter
// references: the environment table, shell identity, and the values behind
// the special parameters (spec §4.4).
type Context struct {
	Env *environ.Environ
	A   *arena.Arena

	Pid        int
	LastStatus int
	ShellName  string // $0
	Positional []string
	Stderr     io.Writer
}

// identStart/identCont classify the bytes a bare (unbraced) $NAME reference
// may contain (spec §4.4: "identifier = letter/underscore then
// letters/digits/underscores").
func identStart(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}

func identCont(b byte) bool {
	return identStart(b) || (b >= '0' && b <= '9')
}

// Word runs the full pipeline on a single input word and returns the
// resulting output word(s): parameter expansion and tilde expansion always
// produce exactly one string; glob expansion may multiply it (spec §4.4).
func (c *Context) Word(w string) []string {
	p := c.param(w)
	t := c.tilde(p)
	return c.glob(t)
}

// Param runs stage 1, parameter expansion, alone: no tilde or glob
// expansion follows. This is the shape a heredoc body needs (spec §4.4,
// SPEC_FULL.md §C): a heredoc line is never word-split or glob-expanded,
// only substituted.
func (c *Context) Param(w string) string {
	return c.param(w)
}

// param implements stage 1, parameter expansion (spec §4.4 item 1).
func (c *Context) param(w string) string {
	var buf strings.Builder
	for i := 0; i < len(w); {
		if w[i] != '$' {
			buf.WriteByte(w[i])
			i++
			continue
		}
		rest := w[i+1:]
		val, consumed := c.expandOne(rest)
		if consumed == 0 {
			// Not a recognized construct; the '$' passes through literally.
			buf.WriteByte('$')
			i++
			continue
		}
		buf.WriteString(val)
		i += 1 + consumed
	}
	return c.A.Strdup(buf.String())
}

// expandOne recognizes and expands a single parameter reference starting
// right after a '$', returning its value and how many bytes of rest it
// consumed (0 if rest doesn't start with a recognized construct).
func (c *Context) expandOne(rest string) (string, int) {
	if rest == "" {
		return "", 0
	}
	switch rest[0] {
	case '$':
		return strconv.Itoa(c.Pid), 1
	case '?':
		return strconv.Itoa(c.LastStatus), 1
	case '#':
		return strconv.Itoa(len(c.Positional)), 1
	case '!':
		return "", 1 // background pid not tracked (spec §4.4)
	case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		n := int(rest[0] - '0')
		if n == 0 {
			return c.ShellName, 1
		}
		if n <= len(c.Positional) {
			return c.Positional[n-1], 1
		}
		return "", 1
	case '{':
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return "", 0
		}
		return c.expandBraced(rest[1:end]), end + 1
	}
	if identStart(rest[0]) {
		j := 1
		for j < len(rest) && identCont(rest[j]) {
			j++
		}
		name := rest[:j]
		v, _ := c.Env.Get(name)
		return v.Value, j
	}
	return "", 0
}

// expandBraced handles `${NAME}` and its modifier forms `${NAME:-default}`,
// `${NAME:=default}`, `${NAME:+alt}`, `${NAME:?message}` (spec §4.4).
func (c *Context) expandBraced(body string) string {
	name := body
	op := ""
	arg := ""
	for i := 0; i < len(body); i++ {
		if body[i] == ':' && i+1 < len(body) {
			switch body[i+1] {
			case '-', '=', '+', '?':
				name = body[:i]
				op = string(body[i+1])
				arg = body[i+2:]
			}
			break
		}
	}
	v, ok := c.Env.Get(name)
	set := ok && v.Value != ""
	switch op {
	case "-":
		if set {
			return v.Value
		}
		return arg
	case "=":
		if set {
			return v.Value
		}
		c.Env.Set(name, arg, false)
		return arg
	case "+":
		if set {
			return arg
		}
		return ""
	case "?":
		if set {
			return v.Value
		}
		msg := arg
		if msg == "" {
			msg = "parameter null or not set"
		}
		if c.Stderr != nil {
			fmt.Fprintf(c.Stderr, "vsh: %s: %s\n", name, msg)
		}
		return ""
	default:
		if ok {
			return v.Value
		}
		return ""
	}
}

// tilde implements stage 2, tilde expansion (spec §4.4 item 2). It only
// applies when the word begins with '~'.
func (c *Context) tilde(w string) string {
	if w == "" || w[0] != '~' {
		return w
	}
	end := strings.IndexByte(w, '/')
	var prefix, suffix string
	if end < 0 {
		prefix, suffix = w, ""
	} else {
		prefix, suffix = w[:end], w[end:]
	}

	var home string
	switch prefix {
	case "~":
		v, _ := c.Env.Get("HOME")
		home = v.Value
	case "~+":
		v, _ := c.Env.Get("PWD")
		home = v.Value
	case "~-":
		v, _ := c.Env.Get("OLDPWD")
		home = v.Value
	default:
		uname := prefix[1:]
		u, err := user.Lookup(uname)
		if err != nil {
			return w // unknown user: left unchanged
		}
		home = u.HomeDir
	}
	return c.A.Strdup(home + suffix)
}

// hasGlobMeta reports whether s contains an unescaped glob metacharacter
// (spec §4.4 item 3).
func hasGlobMeta(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '*', '?', '[':
			return true
		}
	}
	return false
}

// glob implements stage 3 (spec §4.4 item 3). The standard library's
// filepath.Glob is used rather than a third-party matcher: it already
// implements POSIX-style `*`/`?`/`[...]` matching against the real
// filesystem, which is exactly what this stage needs; doublestar was
// considered and dropped because recursive `**` matching is not used
// (DESIGN.md).
func (c *Context) glob(w string) []string {
	if !hasGlobMeta(w) {
		return []string{w}
	}
	matches, err := filepath.Glob(w)
	if err != nil || len(matches) == 0 {
		return []string{w} // no match: literal pattern is kept
	}
	sort.Strings(matches)
	for i, m := range matches {
		matches[i] = strings.TrimSuffix(m, "/")
	}
	return matches
}
