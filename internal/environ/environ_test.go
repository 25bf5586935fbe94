package environ

import "testing"

func TestGetUnsetReturnsFalse(t *testing.T) {
	e := &Environ{vars: map[string]Var{}}
	if _, ok := e.Get("NOPE"); ok {
		t.Fatal("expected ok=false for unset variable")
	}
}

func TestSetAndGet(t *testing.T) {
	e := &Environ{vars: map[string]Var{}}
	e.Set("FOO", "bar", false)
	v, ok := e.Get("FOO")
	if !ok || v.Value != "bar" || v.Exported {
		t.Fatalf("got %+v, ok=%v", v, ok)
	}
}

func TestSetKeepsPriorExportedFlag(t *testing.T) {
	e := &Environ{vars: map[string]Var{}}
	e.Set("FOO", "bar", true)
	e.Set("FOO", "baz", false)
	v, _ := e.Get("FOO")
	if !v.Exported || v.Value != "baz" {
		t.Fatalf("got %+v, want exported baz", v)
	}
}

func TestUnsetRemoves(t *testing.T) {
	e := &Environ{vars: map[string]Var{}}
	e.Set("FOO", "bar", false)
	e.Unset("FOO")
	if _, ok := e.Get("FOO"); ok {
		t.Fatal("expected FOO to be gone after Unset")
	}
}

func TestExportMarksExisting(t *testing.T) {
	e := &Environ{vars: map[string]Var{}}
	e.Set("FOO", "bar", false)
	e.Export("FOO")
	v, _ := e.Get("FOO")
	if !v.Exported {
		t.Fatal("expected FOO to be exported")
	}
}

func TestExportOfUnsetIsNoop(t *testing.T) {
	e := &Environ{vars: map[string]Var{}}
	e.Export("NOPE")
	if _, ok := e.Get("NOPE"); ok {
		t.Fatal("Export should not create a variable")
	}
}

func TestBuildEnvpOnlyExportedAndSorted(t *testing.T) {
	e := &Environ{vars: map[string]Var{}}
	e.Set("B", "2", true)
	e.Set("A", "1", true)
	e.Set("C", "3", false)
	envp := e.BuildEnvp()
	want := []string{"A=1", "B=2"}
	if len(envp) != len(want) {
		t.Fatalf("got %v, want %v", envp, want)
	}
	for i := range want {
		if envp[i] != want[i] {
			t.Errorf("envp[%d] = %q, want %q", i, envp[i], want[i])
		}
	}
}
