// Package history implements the shell's history store: a persisted
// sequence of entered lines with prefix/substring search (spec §1, "the
// history store... a persisted sequence of strings with prefix/substring
// search") and the `!`-reference expansion the shell driver applies before
// a line is lexed (spec §6).
package history

import (
	"fmt"
	"strconv"
	"strings"
)

// History holds entered lines in order, 1-indexed to match the `!N`
// reference form.
type History struct {
	lines []string
}

// New returns an empty history.
func New() *History { return &History{} }

// Add records a line. Called after history expansion, before alias
// expansion, per the shell driver's per-line ordering (spec §2, §5).
func (h *History) Add(line string) {
	h.lines = append(h.lines, line)
}

// Len reports how many lines are recorded.
func (h *History) Len() int { return len(h.lines) }

// At returns the 1-indexed entry n, or "", false if out of range.
func (h *History) At(n int) (string, bool) {
	if n < 1 || n > len(h.lines) {
		return "", false
	}
	return h.lines[n-1], true
}

// Last returns the most recently recorded line, or "", false if history is
// empty.
func (h *History) Last() (string, bool) {
	return h.At(len(h.lines))
}

// PrefixSearch returns, most-recent-first, every entry whose text begins
// with prefix.
func (h *History) PrefixSearch(prefix string) []string {
	var out []string
	for i := len(h.lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(h.lines[i], prefix) {
			out = append(out, h.lines[i])
		}
	}
	return out
}

// SubstringSearch returns, most-recent-first, every entry containing substr.
func (h *History) SubstringSearch(substr string) []string {
	var out []string
	for i := len(h.lines) - 1; i >= 0; i-- {
		if strings.Contains(h.lines[i], substr) {
			out = append(out, h.lines[i])
		}
	}
	return out
}

// Expand performs `!`-reference expansion at the start of a line (spec §6:
// "History-reference expansion recognizes `!!`, `!N`, `!-N`, and `!prefix`
// at the start of a line"). A line with no leading `!` is returned
// unchanged with a nil error; a reference that fails to resolve yields ""
// and an "event not found" error.
func (h *History) Expand(line string) (string, error) {
	if !strings.HasPrefix(line, "!") {
		return line, nil
	}
	rest := line[1:]

	switch {
	case rest == "!":
		prev, ok := h.Last()
		if !ok {
			return "", fmt.Errorf("!!: event not found")
		}
		return prev, nil
	case rest != "" && rest[0] == '-':
		n, err := strconv.Atoi(rest[1:])
		if err != nil {
			return "", fmt.Errorf("%s: event not found", line)
		}
		idx := h.Len() - n + 1
		entry, ok := h.At(idx)
		if !ok {
			return "", fmt.Errorf("%s: event not found", line)
		}
		return entry, nil
	case rest != "" && isDigit(rest[0]):
		n, err := strconv.Atoi(rest)
		if err != nil {
			return "", fmt.Errorf("%s: event not found", line)
		}
		entry, ok := h.At(n)
		if !ok {
			return "", fmt.Errorf("%s: event not found", line)
		}
		return entry, nil
	case rest != "":
		matches := h.PrefixSearch(rest)
		if len(matches) == 0 {
			return "", fmt.Errorf("%s: event not found", line)
		}
		return matches[0], nil
	default:
		return line, nil
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
