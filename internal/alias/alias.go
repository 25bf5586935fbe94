// Package alias implements the shell's alias table: fixpoint expansion over
// a command line's leading word, depth-limited to guard against alias
// cycles (spec §2, "performs alias expansion (fixpoint over leading word,
// depth-limited)").
package alias

import "strings"

// maxDepth bounds the number of substitution rounds. A cycle like
// `alias ls=ls` would otherwise expand forever.
const maxDepth = 16

// Table is a name-to-replacement-text mapping.
type Table struct {
	entries map[string]string
}

// New returns an empty alias table.
func New() *Table { return &Table{entries: make(map[string]string)} }

// Set defines or redefines an alias.
func (t *Table) Set(name, value string) {
	t.entries[name] = value
}

// Unset removes an alias.
func (t *Table) Unset(name string) {
	delete(t.entries, name)
}

// Get returns an alias's replacement text.
func (t *Table) Get(name string) (string, bool) {
	v, ok := t.entries[name]
	return v, ok
}

// Names returns every defined alias name, in no particular order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for n := range t.entries {
		names = append(names, n)
	}
	return names
}

// Expand repeatedly substitutes line's leading word against the table until
// a fixpoint is reached, the leading word has no alias, or maxDepth rounds
// have run (in which case the last substitution is returned as-is rather
// than looping forever).
func (t *Table) Expand(line string) string {
	seen := make(map[string]bool)
	for i := 0; i < maxDepth; i++ {
		word, rest := leadingWord(line)
		if word == "" {
			return line
		}
		repl, ok := t.Get(word)
		if !ok || seen[word] {
			return line
		}
		seen[word] = true
		if rest == "" {
			line = repl
		} else {
			line = repl + rest
		}
	}
	return line
}

// leadingWord splits s into its first whitespace-delimited word and the
// remainder (including the separating whitespace), so expansion can graft
// an alias's replacement text back onto the rest of the line.
func leadingWord(s string) (word, rest string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}
