// Package job implements the job table and the SIGCHLD-driven state
// machine that tracks background and foreground process groups, and the
// controlling-terminal handoff around foreground waits (spec §3, §4.8).
//
// The teacher's interpreter (mvdan-sh) never implements job control itself
// — it execs commands in the foreground only — so this package is grounded
// on its `//go:build unix` convention and its use of golang.org/x/sys/unix
// (interp/os_unix.go) rather than on any job-table code of the teacher's
// own; the process-group and terminal-ownership primitives below
// (Setpgid, Tcsetpgrp, Wait4) are the standard idiomatic Go surface for
// exactly this job-control domain (SPEC_FULL.md §B).
package job

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// State is a job's lifecycle state (spec §3).
type State int

const (
	Running State = iota
	Stopped
	Done
	Killed
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Done:
		return "Done"
	case Killed:
		return "Killed"
	default:
		return "Unknown"
	}
}

// pidSlot tracks one member of a job's process group.
type pidSlot struct {
	pid      int
	complete bool
	status   int // exit code, or 128+signal
}

// Job is one tracked process group (spec §3).
type Job struct {
	ID      int
	Pgid    int
	pids    []pidSlot
	State   State
	Command string
	// Notified is cleared on every state transition and set once the
	// shell has reported the transition to the user (spec §4.8).
	Notified   bool
	Foreground bool
}

// Pids returns the job's process IDs, in the order they were registered.
func (j *Job) Pids() []int {
	out := make([]int, len(j.pids))
	for i, s := range j.pids {
		out[i] = s.pid
	}
	return out
}

// Status reports the job's own exit status: the last pid's recorded status,
// which is 0 until that pid has completed.
func (j *Job) Status() int {
	if len(j.pids) == 0 {
		return 0
	}
	return j.pids[len(j.pids)-1].status
}

// Table is the job table: a collection of jobs plus a monotonic next_id
// (spec §3). All structural mutation (Add/Remove) must happen from the main
// flow; SIGCHLD-driven updates only flip state fields and pid-completion
// flags (spec §5, "Shared-resource policy").
type Table struct {
	mu     sync.Mutex
	jobs   map[int]*Job
	nextID int
	// ShellPgid is the shell's own process group, reclaimed after every
	// foreground wait (spec §4.8).
	ShellPgid int
}

// NewTable returns an empty job table owned by a shell whose process group
// is shellPgid.
func NewTable(shellPgid int) *Table {
	return &Table{jobs: make(map[int]*Job), nextID: 1, ShellPgid: shellPgid}
}

// Add registers a new job with the given pids (pids[0] always becomes the
// job's Pgid) and command text, returning
// it. Invariant: every job has at least one pid (spec §3).
func (t *Table) Add(pids []int, command string, foreground bool) *Job {
	if len(pids) == 0 {
		panic("job: Add called with no pids")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	j := &Job{
		ID:         t.nextID,
		Pgid:       pids[0],
		Command:    command,
		State:      Running,
		Foreground: foreground,
	}
	for _, p := range pids {
		j.pids = append(j.pids, pidSlot{pid: p})
	}
	t.jobs[j.ID] = j
	t.nextID++
	return j
}

// Remove deletes a job by id. Per spec §3, callers must only do this after
// the job's completion has been reported, or at shutdown.
func (t *Table) Remove(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, id)
}

// Get returns a job by id.
func (t *Table) Get(id int) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	return j, ok
}

// byPgidLocked finds the job that has pid among its member pids, used by
// the SIGCHLD reaper to map a waited pid back to its job. The caller holds
// t.mu.
func (t *Table) byPgidLocked(pid int) *Job {
	for _, j := range t.jobs {
		for i := range j.pids {
			if j.pids[i].pid == pid {
				return j
			}
		}
	}
	return nil
}

// Jobs returns a snapshot of every tracked job, in ascending id order.
func (t *Table) Jobs() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, j)
	}
	for i := 1; i < len(out); i++ {
		for k := i; k > 0 && out[k].ID < out[k-1].ID; k-- {
			out[k], out[k-1] = out[k-1], out[k]
		}
	}
	return out
}

// ReapAll drains every pending SIGCHLD-reported status change with a
// non-blocking waitpid loop, updating the matching job's state (spec §4.8).
// Call this from the SIGCHLD handler's goroutine; it performs no structural
// table mutation, only field updates, per the reentrancy policy in spec §5.
func (t *Table) ReapAll() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		if err != nil || pid <= 0 {
			return
		}
		t.applyStatus(pid, ws)
	}
}

func (t *Table) applyStatus(pid int, ws unix.WaitStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j := t.byPgidLocked(pid)
	if j == nil {
		return
	}
	switch {
	case ws.Stopped():
		j.State = Stopped
		j.Notified = false
	case ws.Continued():
		j.State = Running
		j.Notified = false
	case ws.Exited() || ws.Signaled():
		for i := range j.pids {
			if j.pids[i].pid == pid {
				j.pids[i].complete = true
				if ws.Signaled() {
					j.pids[i].status = 128 + int(ws.Signal())
				} else {
					j.pids[i].status = ws.ExitStatus()
				}
			}
		}
		allDone := true
		anyKilled := false
		for _, s := range j.pids {
			if !s.complete {
				allDone = false
				break
			}
		}
		for _, s := range j.pids {
			if s.complete && s.status >= 128 {
				anyKilled = true
			}
		}
		if allDone {
			if anyKilled {
				j.State = Killed
			} else {
				j.State = Done
			}
			j.Notified = false
		}
	}
}

// WaitForeground blocks on the given job's process group using
// waitpid(-pgid, ..., WUNTRACED) until it stops or every pid completes,
// handing the controlling terminal to the job first and reclaiming it for
// the shell on return (spec §4.8, "Terminal handoff"). ECHILD and EINTR are
// tolerated.
func (t *Table) WaitForeground(j *Job, ttyFd int) error {
	hasTty := ttyFd >= 0
	if hasTty {
		if err := unix.Tcsetpgrp(ttyFd, j.Pgid); err != nil && err != unix.ENOTTY {
			return fmt.Errorf("job: tcsetpgrp(%d): %w", j.Pgid, err)
		}
		defer func() {
			_ = unix.Tcsetpgrp(ttyFd, t.ShellPgid)
		}()
	}

	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-j.Pgid, &ws, unix.WUNTRACED, nil)
		if err == unix.EINTR {
			continue
		}
		if err == unix.ECHILD {
			return nil
		}
		if err != nil {
			return err
		}
		t.applyStatus(pid, ws)
		if j.State == Stopped {
			return nil
		}
		if t.allComplete(j) {
			return nil
		}
	}
}

func (t *Table) allComplete(j *Job) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range j.pids {
		if !s.complete {
			return false
		}
	}
	return true
}

// Shutdown sends SIGKILL to every still-running or stopped job's process
// group and reaps them (spec §4.8, "Shutdown").
func (t *Table) Shutdown() {
	t.mu.Lock()
	jobs := make([]*Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		jobs = append(jobs, j)
	}
	t.mu.Unlock()

	for _, j := range jobs {
		if j.State == Running || j.State == Stopped {
			_ = unix.Kill(-j.Pgid, unix.SIGKILL)
		}
	}
	t.ReapAll()
}
