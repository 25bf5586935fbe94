// Package redirect applies a command's redirection chain: opening target
// files and dup2'ing them onto the right file descriptors (spec §4.7).
// Apply mutates the calling process's own fd table; internal/executor calls
// it on the live shell process around an in-process builtin or function
// call, saving and restoring fds 0-2. BuildFiles instead prepares files for
// os/exec to install in a child it starts.
package redirect

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/J4KE-B/vsh/internal/ast"
	"github.com/J4KE-B/vsh/internal/expand"
)

// Error wraps a redirection failure with the target it was attempting,
// matching the diagnostic the spec requires before the child aborts
// (spec §4.7: "Any open failure aborts the child with a non-zero status
// after printing a diagnostic").
type Error struct {
	Target string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Apply walks r's chain from head to tail, applying each redirection in
// source order (spec §4.7's table). Heredoc bodies are written to an
// anonymous pipe and dup2'd onto fd 0, since the core has no real tty or
// on-disk staging file to read them back from. ec resolves parameter
// expansion for heredoc bodies whose delimiter wasn't quoted (spec §4.4,
// SPEC_FULL.md §C); it may be nil if r's chain contains no heredoc.
func Apply(r *ast.Redirection, ec *expand.Context) error {
	for cur := r; cur != nil; cur = cur.Next {
		if err := applyOne(cur, ec); err != nil {
			return err
		}
	}
	return nil
}

func applyOne(r *ast.Redirection, ec *expand.Context) error {
	switch r.Type {
	case ast.RedirInput:
		f, err := os.OpenFile(r.Target, os.O_RDONLY, 0)
		if err != nil {
			return &Error{Target: r.Target, Err: err}
		}
		defer f.Close()
		return dup2Close(int(f.Fd()), r.Fd)

	case ast.RedirOutput:
		f, err := os.OpenFile(r.Target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return &Error{Target: r.Target, Err: err}
		}
		defer f.Close()
		return dup2Close(int(f.Fd()), r.Fd)

	case ast.RedirAppend:
		f, err := os.OpenFile(r.Target, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return &Error{Target: r.Target, Err: err}
		}
		defer f.Close()
		return dup2Close(int(f.Fd()), r.Fd)

	case ast.RedirDupOut, ast.RedirDupIn:
		srcFd, err := strconv.Atoi(r.Target)
		if err != nil {
			return &Error{Target: r.Target, Err: fmt.Errorf("invalid fd target: %w", err)}
		}
		if err := unix.Dup2(srcFd, r.Fd); err != nil {
			return &Error{Target: r.Target, Err: err}
		}
		return nil

	case ast.RedirHeredoc:
		return applyHeredoc(r, ec)

	default:
		return &Error{Target: r.Target, Err: fmt.Errorf("unknown redirection type %v", r.Type)}
	}
}

// dup2Close dups srcFd onto dstFd (spec §4.7, "dup2 onto target; close
// source"). It does not close srcFd itself: every caller closes the
// *os.File that owns srcFd with a deferred Close.
func dup2Close(srcFd, dstFd int) error {
	if err := unix.Dup2(srcFd, dstFd); err != nil {
		return err
	}
	return nil
}

// BuildFiles resolves a redirection chain into a set of *os.File values
// suitable for os/exec.Cmd's Stdin/Stdout/Stderr/ExtraFiles fields, instead
// of dup2'ing onto the calling process's own fd table. internal/executor
// uses this for every forked external command: Go's os/exec already
// performs the fork+dup2+exec sequence atomically and safely, so there is
// no need (and no safe way) to reach for raw dup2 in the parent shell
// process the way Apply does inside an already-forked child
// (DESIGN.md, "internal/redirect (BuildFiles/ExtraFiles)"). base seeds the map with the fds a caller has already
// committed to (typically {0: stdin, 1: stdout, 2: stderr}); redirections
// are applied over it in source order, exactly mirroring Apply's contract.
// ec resolves any heredoc's parameter expansion, as in Apply. The returned
// cleanup must be called once the command has started, to close the files
// this call opened on the parent's behalf.
func BuildFiles(base map[int]*os.File, chain *ast.Redirection, ec *expand.Context) (result map[int]*os.File, cleanup func(), err error) {
	result = make(map[int]*os.File, len(base))
	for fd, f := range base {
		result[fd] = f
	}
	var opened []*os.File
	cleanup = func() {
		for _, f := range opened {
			f.Close()
		}
	}

	for cur := chain; cur != nil; cur = cur.Next {
		switch cur.Type {
		case ast.RedirInput:
			f, oerr := os.OpenFile(cur.Target, os.O_RDONLY, 0)
			if oerr != nil {
				cleanup()
				return nil, nil, &Error{Target: cur.Target, Err: oerr}
			}
			opened = append(opened, f)
			result[cur.Fd] = f

		case ast.RedirOutput:
			f, oerr := os.OpenFile(cur.Target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
			if oerr != nil {
				cleanup()
				return nil, nil, &Error{Target: cur.Target, Err: oerr}
			}
			opened = append(opened, f)
			result[cur.Fd] = f

		case ast.RedirAppend:
			f, oerr := os.OpenFile(cur.Target, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
			if oerr != nil {
				cleanup()
				return nil, nil, &Error{Target: cur.Target, Err: oerr}
			}
			opened = append(opened, f)
			result[cur.Fd] = f

		case ast.RedirDupOut, ast.RedirDupIn:
			srcFd, perr := strconv.Atoi(cur.Target)
			if perr != nil {
				cleanup()
				return nil, nil, &Error{Target: cur.Target, Err: fmt.Errorf("invalid fd target: %w", perr)}
			}
			src, ok := result[srcFd]
			if !ok {
				cleanup()
				return nil, nil, &Error{Target: cur.Target, Err: fmt.Errorf("fd %d is not open", srcFd)}
			}
			result[cur.Fd] = src

		case ast.RedirHeredoc:
			body := heredocBody(cur, ec)
			pr, pw, perr := os.Pipe()
			if perr != nil {
				cleanup()
				return nil, nil, &Error{Target: cur.Target, Err: perr}
			}
			go func(body string) {
				defer pw.Close()
				_, _ = pw.WriteString(body)
			}(body)
			opened = append(opened, pr)
			result[cur.Fd] = pr

		default:
			cleanup()
			return nil, nil, &Error{Target: cur.Target, Err: fmt.Errorf("unknown redirection type %v", cur.Type)}
		}
	}
	return result, cleanup, nil
}

// ExtraFiles turns the fds in files numbered 3 and above into the slice
// os/exec.Cmd.ExtraFiles expects (ExtraFiles[i] becomes fd 3+i in the
// child), filling any gap with a file opened on os.DevNull so indices stay
// aligned. The returned cleanup closes every filler file it opened.
func ExtraFiles(files map[int]*os.File) (extra []*os.File, cleanup func(), err error) {
	maxFd := 2
	for fd := range files {
		if fd > maxFd {
			maxFd = fd
		}
	}
	if maxFd == 2 {
		return nil, func() {}, nil
	}
	var filled []*os.File
	extra = make([]*os.File, maxFd-2)
	for fd := 3; fd <= maxFd; fd++ {
		f, ok := files[fd]
		if !ok {
			nf, oerr := os.Open(os.DevNull)
			if oerr != nil {
				for _, ff := range filled {
					ff.Close()
				}
				return nil, nil, oerr
			}
			f = nf
			filled = append(filled, nf)
		}
		extra[fd-3] = f
	}
	return extra, func() {
		for _, f := range filled {
			f.Close()
		}
	}, nil
}

// applyHeredoc feeds a collected heredoc body to the target fd (normally 0)
// through an anonymous pipe. The spec's own table marks Heredoc
// "Unimplemented; signals a soft error" for the distilled scope; this is
// the SPEC_FULL.md supplement that actually implements it.
func applyHeredoc(r *ast.Redirection, ec *expand.Context) error {
	body := heredocBody(r, ec)
	pr, pw, err := os.Pipe()
	if err != nil {
		return &Error{Target: r.Target, Err: err}
	}
	go func() {
		defer pw.Close()
		_, _ = pw.WriteString(body)
	}()
	defer pr.Close()
	return dup2Close(int(pr.Fd()), r.Fd)
}

// heredocBody joins a heredoc's collected lines into its final body,
// running parameter expansion line-by-line first unless r.HeredocExpand is
// false (the delimiter was quoted, spec §4.4/SPEC_FULL.md §C). Parameter
// expansion only: no tilde or glob expansion applies to a heredoc body. A
// nil ec also leaves the lines unexpanded.
func heredocBody(r *ast.Redirection, ec *expand.Context) string {
	lines := r.HeredocLines
	if r.HeredocExpand && ec != nil {
		expanded := make([]string, len(lines))
		for i, line := range lines {
			expanded[i] = ec.Param(line)
		}
		lines = expanded
	}
	body := strings.Join(lines, "\n")
	if len(lines) > 0 {
		body += "\n"
	}
	return body
}
