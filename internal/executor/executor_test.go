package executor

import (
	"os"
	"testing"

	"github.com/J4KE-B/vsh/internal/arena"
	"github.com/J4KE-B/vsh/internal/ast"
	"github.com/J4KE-B/vsh/internal/environ"
	"github.com/J4KE-B/vsh/internal/job"
	"github.com/J4KE-B/vsh/internal/state"
)

// These tests exercise only in-process paths (builtins, assignments,
// control flow, function invocation): anything that forks a real process
// is covered by internal/job and internal/redirect's own process-spawning
// tests instead, keeping this package's suite fast and independent of PATH
// contents.

func newTestState(t *testing.T) *state.State {
	t.Helper()
	dir := t.TempDir()
	return &state.State{
		Arena:     arena.New(),
		Env:       &environ.Environ{},
		Jobs:      job.NewTable(os.Getpid()),
		DirStack:  []string{dir},
		Running:   true,
		TermFd:    -1,
		Functions: make(map[string]ast.Node),
	}
}

func bareAssignment(name, value string) *ast.Command {
	return &ast.Command{Assignments: []ast.Assignment{{Name: name, Value: value}}}
}

func TestBareAssignmentIsUnexported(t *testing.T) {
	st := newTestState(t)
	Execute(st, bareAssignment("FOO", "bar"))
	v, ok := st.Env.Get("FOO")
	if !ok || v.Value != "bar" {
		t.Fatalf("Get(FOO) = %+v, %v", v, ok)
	}
	if v.Exported {
		t.Fatal("expected FOO to be unexported")
	}
	if st.LastStatus != 0 {
		t.Fatalf("LastStatus = %d, want 0", st.LastStatus)
	}
}

func TestAndShortCircuitsOnFailure(t *testing.T) {
	st := newTestState(t)
	fail := &ast.Command{Argv: []string{"cd", "/no/such/dir"}}
	mark := bareAssignment("RAN", "yes")
	status := Execute(st, &ast.And{Left: fail, Right: mark})
	if status == 0 {
		t.Fatal("expected non-zero status from failing cd")
	}
	if _, ok := st.Env.Get("RAN"); ok {
		t.Fatal("right side of && ran despite left failing")
	}
}

func TestOrRunsRightOnFailure(t *testing.T) {
	st := newTestState(t)
	fail := &ast.Command{Argv: []string{"cd", "/no/such/dir"}}
	mark := bareAssignment("RAN", "yes")
	Execute(st, &ast.Or{Left: fail, Right: mark})
	if _, ok := st.Env.Get("RAN"); !ok {
		t.Fatal("right side of || did not run after left failed")
	}
}

func TestSequenceRunsBothStatements(t *testing.T) {
	st := newTestState(t)
	Execute(st, &ast.Sequence{
		Left:  bareAssignment("A", "1"),
		Right: bareAssignment("B", "2"),
	})
	if _, ok := st.Env.Get("A"); !ok {
		t.Fatal("left statement did not run")
	}
	if _, ok := st.Env.Get("B"); !ok {
		t.Fatal("right statement did not run")
	}
}

func TestNegateInvertsStatus(t *testing.T) {
	st := newTestState(t)
	ok := bareAssignment("X", "1")
	if status := Execute(st, &ast.Negate{Child: ok}); status != 1 {
		t.Fatalf("negate of success = %d, want 1", status)
	}
	fail := &ast.Command{Argv: []string{"cd", "/no/such/dir"}}
	if status := Execute(st, &ast.Negate{Child: fail}); status != 0 {
		t.Fatalf("negate of failure = %d, want 0", status)
	}
}

func TestIfTakesThenBranchOnSuccess(t *testing.T) {
	st := newTestState(t)
	cond := bareAssignment("_", "")
	Execute(st, &ast.If{
		Condition: cond,
		Then:      bareAssignment("THEN_RAN", "1"),
		Else:      bareAssignment("ELSE_RAN", "1"),
	})
	if _, ok := st.Env.Get("THEN_RAN"); !ok {
		t.Fatal("then branch did not run")
	}
	if _, ok := st.Env.Get("ELSE_RAN"); ok {
		t.Fatal("else branch ran despite successful condition")
	}
}

func TestIfTakesElseBranchOnFailure(t *testing.T) {
	st := newTestState(t)
	cond := &ast.Command{Argv: []string{"cd", "/no/such/dir"}}
	Execute(st, &ast.If{
		Condition: cond,
		Then:      bareAssignment("THEN_RAN", "1"),
		Else:      bareAssignment("ELSE_RAN", "1"),
	})
	if _, ok := st.Env.Get("THEN_RAN"); ok {
		t.Fatal("then branch ran despite failing condition")
	}
	if _, ok := st.Env.Get("ELSE_RAN"); !ok {
		t.Fatal("else branch did not run")
	}
}

func TestForLoopSetsVarEachIteration(t *testing.T) {
	st := newTestState(t)
	Execute(st, &ast.For{
		VarName: "X",
		Words:   []string{"a", "b", "c"},
		Body:    &ast.Command{Argv: []string{"export", "X"}},
	})
	v, ok := st.Env.Get("X")
	if !ok || v.Value != "c" {
		t.Fatalf("X after loop = %+v, %v, want last word %q", v, ok, "c")
	}
}

func TestWhileLoopRunsUntilConditionFails(t *testing.T) {
	st := newTestState(t)
	st.Env.Set("I", "0", false)
	status := Execute(st, &ast.While{
		Condition: &ast.Command{Argv: []string{"cd", "/no/such/dir"}},
		Body:      bareAssignment("RAN", "1"),
	})
	if status != 0 {
		t.Fatalf("empty while body status = %d, want 0", status)
	}
	if _, ok := st.Env.Get("RAN"); ok {
		t.Fatal("while body ran despite a condition that always fails")
	}
}

func TestFunctionDeclarationThenInvocationWithReturn(t *testing.T) {
	st := newTestState(t)
	decl := &ast.FuncDecl{
		Name: "greet",
		Body: &ast.Command{Argv: []string{"return", "7"}},
	}
	Execute(st, decl)
	if _, ok := st.Functions["greet"]; !ok {
		t.Fatal("function was not registered")
	}
	status := Execute(st, &ast.Command{Argv: []string{"greet", "world"}})
	if status != 7 {
		t.Fatalf("status = %d, want 7", status)
	}
}

func TestFunctionRestoresPositionalParamsAfterReturn(t *testing.T) {
	st := newTestState(t)
	st.Positional = []string{"outer"}
	decl := &ast.FuncDecl{Name: "f", Body: &ast.Command{Argv: []string{"return", "0"}}}
	Execute(st, decl)
	Execute(st, &ast.Command{Argv: []string{"f", "inner"}})
	if len(st.Positional) != 1 || st.Positional[0] != "outer" {
		t.Fatalf("Positional after call = %v, want [outer]", st.Positional)
	}
}

func TestLocalShadowsAndRestoresOnReturn(t *testing.T) {
	st := newTestState(t)
	st.Env.Set("X", "outer", false)
	decl := &ast.FuncDecl{
		Name: "f",
		Body: &ast.Sequence{
			Left:  &ast.Command{Local: true, Assignments: []ast.Assignment{{Name: "X", Value: "inner"}}},
			Right: &ast.Command{Argv: []string{"return", "0"}},
		},
	}
	Execute(st, decl)
	Execute(st, &ast.Command{Argv: []string{"f"}})
	v, _ := st.Env.Get("X")
	if v.Value != "outer" {
		t.Fatalf("X after call = %q, want %q", v.Value, "outer")
	}
}

func TestLocalOutsideFunctionFails(t *testing.T) {
	st := newTestState(t)
	status := Execute(st, &ast.Command{Local: true, Assignments: []ast.Assignment{{Name: "X", Value: "1"}}})
	if status == 0 {
		t.Fatal("expected non-zero status for local outside a function")
	}
}

func TestReturnOutsideFunctionDoesNotUnwind(t *testing.T) {
	st := newTestState(t)
	status := Execute(st, &ast.Sequence{
		Left:  &ast.Command{Argv: []string{"return", "9"}},
		Right: bareAssignment("RAN", "1"),
	})
	if _, ok := st.Env.Get("RAN"); !ok {
		t.Fatal("statement after a top-level return did not run")
	}
	_ = status
}

func TestBuiltinExitSetsRunningFalse(t *testing.T) {
	st := newTestState(t)
	status := Execute(st, &ast.Command{Argv: []string{"exit", "4"}})
	if status != 4 {
		t.Fatalf("status = %d, want 4", status)
	}
	if st.Running {
		t.Fatal("expected Running = false after exit builtin")
	}
}

func TestBlockRunsInProcessWithoutForking(t *testing.T) {
	st := newTestState(t)
	Execute(st, &ast.Block{Child: bareAssignment("INSIDE_BLOCK", "1")})
	if _, ok := st.Env.Get("INSIDE_BLOCK"); !ok {
		t.Fatal("block's child did not mutate the shell state")
	}
}
