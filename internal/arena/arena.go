// Package arena implements a region allocator with O(1) bulk reset.
//
// Every per-command allocation in the interpreter — token text, AST nodes,
// expansion results — comes from an Arena. A pointer returned by Alloc
// remains valid until the next Reset or Destroy of that Arena; Reset
// invalidates every outstanding pointer into it.
package arena

const (
	alignment  = 8
	defaultCap = 4096
)

// page is one slab of the arena's backing storage.
type page struct {
	buf    []byte
	offset int
}

func newPage(size int) *page {
	if size < defaultCap {
		size = defaultCap
	}
	return &page{buf: make([]byte, size)}
}

func (p *page) alloc(n int) ([]byte, bool) {
	start := alignUp(p.offset)
	if start+n > len(p.buf) {
		return nil, false
	}
	p.offset = start + n
	return p.buf[start : start+n : start+n], true
}

func alignUp(n int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}

// Arena is a slice of pages. The first page is kept across Reset; all
// others are discarded.
type Arena struct {
	pages   []*page // pages[0] is the retained first page
	current int      // index into pages of the page currently being filled
}

// New returns an Arena with one empty page.
func New() *Arena {
	return &Arena{pages: []*page{newPage(defaultCap)}}
}

// Alloc returns an aligned region of at least n bytes, valid until the next
// Reset or Destroy of a. It never returns an error: allocation can only fail
// if the underlying Go allocator fails, which callers treat as fatal, same
// as any other out-of-memory condition in the process.
func (a *Arena) Alloc(n int) []byte {
	cur := a.pages[a.current]
	if b, ok := cur.alloc(n); ok {
		return b
	}
	next := newPage(n)
	a.pages = append(a.pages, next)
	a.current = len(a.pages) - 1
	b, ok := next.alloc(n)
	if !ok {
		panic("arena: allocation request exceeds freshly allocated page")
	}
	return b
}

// Strdup copies s into the arena and returns the copy.
func (a *Arena) Strdup(s string) string {
	if s == "" {
		return ""
	}
	b := a.Alloc(len(s))
	copy(b, s)
	return string(b)
}

// Strndup copies the first n bytes of s into the arena.
func (a *Arena) Strndup(s string, n int) string {
	if n > len(s) {
		n = len(s)
	}
	return a.Strdup(s[:n])
}

// Reset retains the first page (truncated to empty) and discards every other
// page. Every pointer previously returned by Alloc becomes invalid.
func (a *Arena) Reset() {
	first := a.pages[0]
	first.offset = 0
	a.pages = a.pages[:1]
	a.current = 0
}

// Destroy releases every page, including the first. The Arena must not be
// used afterward except via a fresh call to New assigned over it.
func (a *Arena) Destroy() {
	a.pages = nil
	a.current = 0
}

// BytesUsed reports the number of bytes currently allocated across all
// pages. BytesUsed() == 0 is guaranteed immediately after Reset.
func (a *Arena) BytesUsed() int {
	total := 0
	for _, p := range a.pages {
		total += p.offset
	}
	return total
}
