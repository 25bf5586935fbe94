package expand

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/J4KE-B/vsh/internal/arena"
	"github.com/J4KE-B/vsh/internal/environ"
)

func newCtx(t *testing.T) (*Context, *bytes.Buffer) {
	t.Helper()
	var errBuf bytes.Buffer
	c := &Context{
		Env:        &environ.Environ{},
		A:          arena.New(),
		Pid:        4242,
		LastStatus: 0,
		ShellName:  "vsh",
		Positional: []string{"one", "two"},
		Stderr:     &errBuf,
	}
	c.Env.Set("HOME", "/home/alice", false)
	c.Env.Set("PWD", "/tmp/work", false)
	c.Env.Set("OLDPWD", "/tmp/prev", false)
	c.Env.Set("NAME", "bob", false)
	return c, &errBuf
}

func TestPlainTextUnchanged(t *testing.T) {
	c, _ := newCtx(t)
	got := c.Word("hello")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %v", got)
	}
}

func TestDollarDollarIsPid(t *testing.T) {
	c, _ := newCtx(t)
	got := c.Word("pid=$$")
	if got[0] != "pid=4242" {
		t.Errorf("got %q", got[0])
	}
}

func TestDollarQuestionIsLastStatus(t *testing.T) {
	c, _ := newCtx(t)
	c.LastStatus = 7
	got := c.Word("$?")
	if got[0] != "7" {
		t.Errorf("got %q", got[0])
	}
}

func TestDollarHashIsPositionalCount(t *testing.T) {
	c, _ := newCtx(t)
	got := c.Word("$#")
	if got[0] != "2" {
		t.Errorf("got %q", got[0])
	}
}

func TestDollarBangIsEmpty(t *testing.T) {
	c, _ := newCtx(t)
	got := c.Word("[$!]")
	if got[0] != "[]" {
		t.Errorf("got %q", got[0])
	}
}

func TestPositionalParams(t *testing.T) {
	c, _ := newCtx(t)
	if got := c.Word("$1-$2")[0]; got != "one-two" {
		t.Errorf("got %q", got)
	}
}

func TestDollarZeroIsShellName(t *testing.T) {
	c, _ := newCtx(t)
	if got := c.Word("$0")[0]; got != "vsh" {
		t.Errorf("got %q", got)
	}
}

func TestUnsetPositionalIsEmpty(t *testing.T) {
	c, _ := newCtx(t)
	if got := c.Word("[$9]")[0]; got != "[]" {
		t.Errorf("got %q", got)
	}
}

func TestBareNameExpansion(t *testing.T) {
	c, _ := newCtx(t)
	if got := c.Word("hi $NAME!")[0]; got != "hi bob!" {
		t.Errorf("got %q", got)
	}
}

func TestUnknownNameExpandsEmpty(t *testing.T) {
	c, _ := newCtx(t)
	if got := c.Word("[$NOPE]")[0]; got != "[]" {
		t.Errorf("got %q", got)
	}
}

func TestBracedName(t *testing.T) {
	c, _ := newCtx(t)
	if got := c.Word("${NAME}x")[0]; got != "bobx" {
		t.Errorf("got %q", got)
	}
}

func TestDefaultModifierUnsetUsesDefault(t *testing.T) {
	c, _ := newCtx(t)
	if got := c.Word("${MISSING:-fallback}")[0]; got != "fallback" {
		t.Errorf("got %q", got)
	}
}

func TestDefaultModifierSetKeepsValue(t *testing.T) {
	c, _ := newCtx(t)
	if got := c.Word("${NAME:-fallback}")[0]; got != "bob" {
		t.Errorf("got %q", got)
	}
}

func TestAssignModifierSetsVariable(t *testing.T) {
	c, _ := newCtx(t)
	got := c.Word("${MISSING:=assigned}")[0]
	if got != "assigned" {
		t.Errorf("got %q", got)
	}
	v, ok := c.Env.Get("MISSING")
	if !ok || v.Value != "assigned" {
		t.Errorf("Env.Get(MISSING) = %+v, ok=%v", v, ok)
	}
}

func TestAltModifier(t *testing.T) {
	c, _ := newCtx(t)
	if got := c.Word("${NAME:+present}")[0]; got != "present" {
		t.Errorf("got %q", got)
	}
	if got := c.Word("${MISSING:+present}")[0]; got != "" {
		t.Errorf("got %q", got)
	}
}

func TestErrorModifierPrintsMessage(t *testing.T) {
	c, errBuf := newCtx(t)
	got := c.Word("${MISSING:?must be set}")[0]
	if got != "" {
		t.Errorf("got %q", got)
	}
	if errBuf.Len() == 0 {
		t.Error("expected a diagnostic written to Stderr")
	}
}

func TestUnknownConstructPassesThroughLiterally(t *testing.T) {
	c, _ := newCtx(t)
	if got := c.Word("a$ b")[0]; got != "a$ b" {
		t.Errorf("got %q", got)
	}
}

func TestTildeHome(t *testing.T) {
	c, _ := newCtx(t)
	if got := c.Word("~")[0]; got != "/home/alice" {
		t.Errorf("got %q", got)
	}
	if got := c.Word("~/docs")[0]; got != "/home/alice/docs" {
		t.Errorf("got %q", got)
	}
}

func TestTildePlusIsPWD(t *testing.T) {
	c, _ := newCtx(t)
	if got := c.Word("~+/sub")[0]; got != "/tmp/work/sub" {
		t.Errorf("got %q", got)
	}
}

func TestTildeMinusIsOLDPWD(t *testing.T) {
	c, _ := newCtx(t)
	if got := c.Word("~-")[0]; got != "/tmp/prev" {
		t.Errorf("got %q", got)
	}
}

func TestTildeNotAtWordStartUnaffected(t *testing.T) {
	c, _ := newCtx(t)
	if got := c.Word("a~b")[0]; got != "a~b" {
		t.Errorf("got %q", got)
	}
}

func TestTildeUnknownUserUnchanged(t *testing.T) {
	c, _ := newCtx(t)
	if got := c.Word("~nosuchuser12345")[0]; got != "~nosuchuser12345" {
		t.Errorf("got %q", got)
	}
}

func TestGlobExpandsSortedMatches(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	c, _ := newCtx(t)
	got := c.Word(filepath.Join(dir, "*.txt"))
	want := []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(dir, "c.txt"),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGlobNoMatchKeepsLiteral(t *testing.T) {
	c, _ := newCtx(t)
	pat := "/no/such/dir/*.nope"
	got := c.Word(pat)
	if len(got) != 1 || got[0] != pat {
		t.Fatalf("got %v, want literal pattern kept", got)
	}
}

func TestNoGlobMetaSkipsGlobbing(t *testing.T) {
	c, _ := newCtx(t)
	got := c.Word("/tmp/plainfile")
	if len(got) != 1 || got[0] != "/tmp/plainfile" {
		t.Fatalf("got %v", got)
	}
}
