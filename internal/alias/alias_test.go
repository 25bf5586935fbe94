package alias

import "testing"

func TestExpandSimple(t *testing.T) {
	tbl := New()
	tbl.Set("ll", "ls -la")
	if got := tbl.Expand("ll /tmp"); got != "ls -la /tmp" {
		t.Fatalf("got %q", got)
	}
}

func TestExpandNoAliasUnchanged(t *testing.T) {
	tbl := New()
	if got := tbl.Expand("echo hi"); got != "echo hi" {
		t.Fatalf("got %q", got)
	}
}

func TestExpandFixpointChain(t *testing.T) {
	tbl := New()
	tbl.Set("a", "b")
	tbl.Set("b", "echo done")
	if got := tbl.Expand("a"); got != "echo done" {
		t.Fatalf("got %q", got)
	}
}

func TestExpandCycleStopsAtSeen(t *testing.T) {
	tbl := New()
	tbl.Set("a", "b")
	tbl.Set("b", "a")
	// Must terminate rather than loop forever; exact output just needs to
	// be one of the two alternating forms.
	got := tbl.Expand("a")
	if got != "a" && got != "b" {
		t.Fatalf("got %q, want a or b", got)
	}
}

func TestUnset(t *testing.T) {
	tbl := New()
	tbl.Set("ll", "ls -la")
	tbl.Unset("ll")
	if _, ok := tbl.Get("ll"); ok {
		t.Fatal("expected ll to be gone")
	}
}

func TestEmptyLineUnchanged(t *testing.T) {
	tbl := New()
	if got := tbl.Expand(""); got != "" {
		t.Fatalf("got %q", got)
	}
}
