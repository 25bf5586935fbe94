package arena

import "testing"

func TestAllocAligned(t *testing.T) {
	a := New()
	for _, n := range []int{1, 3, 7, 8, 9, 100} {
		b := a.Alloc(n)
		if len(b) != n {
			t.Fatalf("Alloc(%d) returned len %d", n, len(b))
		}
		start := a.pages[a.current].offset - n
		if start%alignment != 0 {
			t.Fatalf("Alloc(%d) started at offset %d, not a multiple of %d", n, start, alignment)
		}
	}
}

func TestResetZeroesUsage(t *testing.T) {
	a := New()
	a.Alloc(100)
	a.Alloc(100)
	if a.BytesUsed() == 0 {
		t.Fatal("expected nonzero usage before reset")
	}
	a.Reset()
	if got := a.BytesUsed(); got != 0 {
		t.Fatalf("BytesUsed() after Reset = %d, want 0", got)
	}
}

func TestResetDiscardsExtraPages(t *testing.T) {
	a := New()
	// Force overflow into a second page.
	a.Alloc(defaultCap + 1)
	if len(a.pages) < 2 {
		t.Fatal("expected allocation to overflow into a second page")
	}
	a.Reset()
	if len(a.pages) != 1 {
		t.Fatalf("Reset left %d pages, want 1", len(a.pages))
	}
}

func TestStrdupCopies(t *testing.T) {
	a := New()
	src := []byte("hello")
	s := a.Strdup(string(src))
	src[0] = 'H'
	if s != "hello" {
		t.Fatalf("Strdup result mutated via source slice: %q", s)
	}
}

func TestStrndup(t *testing.T) {
	a := New()
	if got := a.Strndup("hello world", 5); got != "hello" {
		t.Fatalf("Strndup = %q, want %q", got, "hello")
	}
}

func TestAllocSurvivesAcrossPageOverflow(t *testing.T) {
	a := New()
	first := a.Strdup("first")
	// Allocate enough to force a new page.
	a.Alloc(defaultCap * 2)
	if first != "first" {
		t.Fatalf("earlier allocation corrupted: %q", first)
	}
}
