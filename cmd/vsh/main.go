// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// vsh is a POSIX-style shell interpreter core: lexer, parser, word
// expansion, executor, pipeline wiring, and job control (spec §1).
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"

	"github.com/J4KE-B/vsh/internal/shell"
)

const version = "vsh 0.1.0"

var (
	command   = flag.String("c", "", "execute STRING and exit")
	showHelp  = flag.Bool("h", false, "show this help message")
	showHelp2 = flag.Bool("help", false, "show this help message")
	showVer   = flag.Bool("v", false, "print version and exit")
	showVer2  = flag.Bool("version", false, "print version and exit")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-c string] [-h] [-v] [script [args...]]\n", os.Args[0])
}

func main() {
	os.Exit(main1())
}

// main1 is the entire program body, split out from main so
// testscript.RunMain can register it as the "vsh" subprocess command
// (cmd/shfmt/main_test.go's main1/testscript.RunMain pairing, adapted).
func main1() int {
	flag.Usage = usage
	flag.Parse()

	if *showHelp || *showHelp2 {
		usage()
		return 0
	}
	if *showVer || *showVer2 {
		fmt.Println(version)
		return 0
	}

	return run()
}

// run implements the CLI dispatch of spec §6: -c STRING, SCRIPT [args...],
// or an interactive/non-interactive reader on stdin. Grounded on
// cmd/gosh/main.go's runAll, generalized to drive internal/shell instead of
// the teacher's interp.Runner.
func run() int {
	shellName := "vsh"
	if flag.NArg() > 0 {
		shellName = flag.Arg(0)
	}

	sh := shell.New(shellName, false, -1)
	sh.StartReaper()
	defer sh.Shutdown()

	if *command != "" {
		sh.St.Positional = flag.Args()
		status := sh.RunLine(*command)
		return status
	}

	if flag.NArg() == 0 {
		if shell.IsTerminal(int(os.Stdin.Fd())) {
			sh.St.Interactive = true
			sh.St.TermFd = int(os.Stdin.Fd())
			return runInteractive(sh)
		}
		return sh.RunReader(os.Stdin)
	}

	path := flag.Arg(0)
	sh.St.Positional = flag.Args()[1:]
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vsh: %v\n", err)
		return 127
	}
	defer f.Close()
	return sh.RunReader(f)
}

// runInteractive drives the prompt loop through chzyer/readline, the
// out-of-scope line editor spec §9 describes as `read_line(prompt) ->
// Option<String>`.
func runInteractive(sh *shell.Shell) int {
	rl, err := readline.New("vsh$ ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "vsh: %v\n", err)
		return 1
	}
	defer rl.Close()

	return sh.RunInteractive(func(prompt string) (string, error) {
		rl.SetPrompt(prompt)
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			return "", nil
		}
		if err == io.EOF {
			return "", io.EOF
		}
		return line, err
	})
}
