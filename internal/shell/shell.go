// Package shell implements the per-line REPL cycle (spec §2): history
// expansion, history recording, alias expansion, arena reset, lex, parse,
// execute, plus the SIGCHLD plumbing and background-job notification that
// the executor's own node-by-node dispatch (internal/executor) has no
// natural place for.
//
// Grounded on interp.Runner (interp/interp.go) as "the thing holding
// everything a run needs" and cmd/gosh/main.go's runAll/run/runInteractive
// control flow for the CLI-form dispatch (-c, stdin, script path); the
// teacher never implements job control, so the SIGCHLD reaper goroutine and
// background-notification scan are grounded on internal/job's own doc
// comments (spec §4.8, §9 "SIGCHLD reentrancy") rather than on any teacher
// code.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/J4KE-B/vsh/internal/executor"
	"github.com/J4KE-B/vsh/internal/lexer"
	"github.com/J4KE-B/vsh/internal/parser"
	"github.com/J4KE-B/vsh/internal/state"
)

// Shell wraps a *state.State with the I/O streams and SIGCHLD plumbing the
// REPL cycle needs.
type Shell struct {
	St     *state.State
	Stdout io.Writer
	Stderr io.Writer

	sigchld chan os.Signal
	done    chan struct{}
}

// New builds a Shell for the current process. termFd is the fd to treat as
// the controlling terminal, or -1 for none (spec §3).
func New(shellName string, interactive bool, termFd int) *Shell {
	st := state.New(os.Getpid(), unix.Getpgrp(), shellName, interactive, termFd)
	return &Shell{St: st, Stdout: os.Stdout, Stderr: os.Stderr}
}

// StartReaper installs the SIGCHLD handler (spec §6, §9 "SIGCHLD
// reentrancy"): a goroutine that wakes on every SIGCHLD delivery and calls
// job.Table.ReapAll, which restricts itself to waitpid and field-level
// state updates, matching the reentrancy policy (structural add/remove
// stays on the main flow, in NotifyBackground below).
func (sh *Shell) StartReaper() {
	sh.sigchld = make(chan os.Signal, 16)
	sh.done = make(chan struct{})
	signal.Notify(sh.sigchld, syscall.SIGCHLD)
	go func() {
		for {
			select {
			case <-sh.sigchld:
				sh.St.Jobs.ReapAll()
			case <-sh.done:
				return
			}
		}
	}()
}

// StopReaper tears down the SIGCHLD goroutine started by StartReaper.
func (sh *Shell) StopReaper() {
	if sh.done == nil {
		return
	}
	signal.Stop(sh.sigchld)
	close(sh.done)
}

// NotifyBackground prints a status line for every completed or killed job
// not yet reported, then removes it (spec §4.8, "Background notification").
// Call this at the top of every prompt cycle.
func (sh *Shell) NotifyBackground() {
	for _, j := range sh.St.Jobs.Jobs() {
		if j.Notified {
			continue
		}
		switch j.State.String() {
		case "Done":
			fmt.Fprintf(sh.Stdout, "[%d]+  Done                    %s\n", j.ID, j.Command)
			j.Notified = true
			sh.St.Jobs.Remove(j.ID)
		case "Killed":
			fmt.Fprintf(sh.Stdout, "[%d]+  Killed                  %s\n", j.ID, j.Command)
			j.Notified = true
			sh.St.Jobs.Remove(j.ID)
		}
	}
}

// RunLine drives one logical command line through the full cycle described
// in spec §2 and ordered in spec §5: history expansion precedes recording
// precedes alias expansion precedes arena reset precedes lex precedes
// parse precedes execution.
func (sh *Shell) RunLine(line string) int {
	expanded, err := sh.St.History.Expand(line)
	if err != nil {
		fmt.Fprintf(sh.Stderr, "vsh: %v\n", err)
		sh.St.LastStatus = 1
		return sh.St.LastStatus
	}
	sh.St.History.Add(expanded)

	aliased := sh.St.Aliases.Expand(expanded)

	sh.St.Arena.Reset()

	toks, err := lexer.Lex(aliased, sh.St.Arena)
	if err != nil {
		fmt.Fprintf(sh.Stderr, "vsh: %v\n", err)
		sh.St.LastStatus = 2
		return sh.St.LastStatus
	}

	tree, err := parser.Parse(toks, sh.St.Arena)
	if err != nil {
		fmt.Fprintf(sh.Stderr, "vsh: %v\n", err)
		sh.St.LastStatus = 2
		return sh.St.LastStatus
	}
	if tree == nil {
		// Boundary: empty input, or only comments/whitespace (spec §8).
		return sh.St.LastStatus
	}

	return executor.Execute(sh.St, tree)
}

// RunReader reads r line-by-line, running each logical line
// through RunLine until EOF (spec §6, the non-interactive reader form used
// both for piped stdin and for SCRIPT arguments).
func (sh *Shell) RunReader(r io.Reader) int {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if !sh.St.Running {
			break
		}
		sh.RunLine(scanner.Text())
	}
	return sh.St.LastStatus
}

// RunInteractive drives the prompt loop against a line editor. readLine
// returns io.EOF when the input stream is exhausted (e.g. Ctrl+D), matching
// spec §9's `read_line(prompt) -> Option<String>` line-editor contract.
func (sh *Shell) RunInteractive(readLine func(prompt string) (string, error)) int {
	for sh.St.Running {
		sh.NotifyBackground()
		line, err := readLine(sh.prompt())
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(sh.Stderr, "vsh: %v\n", err)
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		sh.RunLine(line)
	}
	return sh.St.LastStatus
}

func (sh *Shell) prompt() string {
	if sh.St.LastStatus != 0 {
		return fmt.Sprintf("vsh[%d]$ ", sh.St.LastStatus)
	}
	return "vsh$ "
}

// Shutdown kills and reaps every still-running or stopped job, then stops
// the SIGCHLD reaper (spec §4.8, "Shutdown").
func (sh *Shell) Shutdown() {
	sh.St.Jobs.Shutdown()
	sh.StopReaper()
}

// IsTerminal reports whether fd is attached to a terminal (spec §6: "no
// arguments... interactive REPL on a terminal, non-interactive line-by-line
// reader otherwise").
func IsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}
