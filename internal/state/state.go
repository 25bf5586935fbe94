// Package state defines the shell's process-lifetime state (spec §3,
// "Shell state"): the parse arena, environment, job table, history,
// aliases, directory stack, and the handful of scalar fields the executor
// and builtins consult and mutate. It is deliberately free of any
// dependency on internal/executor or internal/builtin so both of those
// packages can depend on it without an import cycle.
package state

import (
	"os"

	"github.com/J4KE-B/vsh/internal/alias"
	"github.com/J4KE-B/vsh/internal/arena"
	"github.com/J4KE-B/vsh/internal/ast"
	"github.com/J4KE-B/vsh/internal/environ"
	"github.com/J4KE-B/vsh/internal/history"
	"github.com/J4KE-B/vsh/internal/job"
)

// State holds everything that outlives a single command line (spec §3).
type State struct {
	Arena   *arena.Arena
	Env     *environ.Environ
	Jobs    *job.Table
	History *history.History
	Aliases *alias.Table

	DirStack []string // pushd/popd stack; DirStack[0] is never popped

	LastStatus int
	Pid        int
	ShellPgid  int
	ShellName  string // argv[0], used for $0
	Interactive bool
	Running     bool
	TermFd      int // fd of the controlling terminal, or -1 if none

	Positional  []string
	ScriptDepth int
	InFunction  bool

	Functions map[string]ast.Node

	// Locals is a stack of function-call frames; each frame records the
	// prior value of every variable the `local` keyword has shadowed
	// during that call, so it can be restored when the call returns
	// (SPEC_FULL.md §C).
	Locals [][]LocalSaved
}

// LocalSaved is one variable's state just before a `local` declaration
// shadowed it.
type LocalSaved struct {
	Name     string
	Had      bool
	Value    string
	Exported bool
}

// New returns a freshly initialized shell state for the current process.
func New(pid, shellPgid int, shellName string, interactive bool, termFd int) *State {
	cwd, _ := os.Getwd()
	return &State{
		Arena:       arena.New(),
		Env:         environ.New(),
		Jobs:        job.NewTable(shellPgid),
		History:     history.New(),
		Aliases:     alias.New(),
		DirStack:    []string{cwd},
		Pid:         pid,
		ShellPgid:   shellPgid,
		ShellName:   shellName,
		Interactive: interactive,
		Running:     true,
		TermFd:      termFd,
		Functions:   make(map[string]ast.Node),
	}
}

// Cwd returns the shell's notion of the current directory: the top of the
// directory stack.
func (s *State) Cwd() string {
	if len(s.DirStack) == 0 {
		return "/"
	}
	return s.DirStack[len(s.DirStack)-1]
}

// PushDir pushes dir as the new top of the directory stack (used by
// `pushd`, SPEC_FULL.md §C; `cd` replaces the top entry in place instead).
func (s *State) PushDir(dir string) {
	s.DirStack = append(s.DirStack, dir)
}

// PopDir pops the top of the directory stack, returning the new top and
// whether a pop actually happened (the stack's first entry is never
// removed).
func (s *State) PopDir() (string, bool) {
	if len(s.DirStack) <= 1 {
		return s.Cwd(), false
	}
	s.DirStack = s.DirStack[:len(s.DirStack)-1]
	return s.Cwd(), true
}
