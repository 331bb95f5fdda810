// Command devconsole is a host-side developer console: it puts the
// controlling terminal into raw mode, line-edits keystrokes through
// internal/shell.LineEditor, and drives an internal/shell.Shell over an
// in-memory root filesystem -- bridging host keystrokes and the shell's
// stdout/stderr to the in-kernel keyboard/display stubs the way a real
// boot's dev console would. Grounded on smoynes-elsie's
// internal/tty.Console: same term.MakeRaw/term.NewTerminal raw-mode setup
// and Restore-on-exit contract (elsie additionally uses
// golang.org/x/sys/unix to tune VMIN/VTIME for async reads; kestrel's
// console is a synchronous REPL and doesn't need that).
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"kestrel/internal/defs"
	"kestrel/internal/shell"
	"kestrel/internal/vfs"
)

// termBacking is a write-mostly vfs.Backing over a terminal writer; stdout
// and stderr fds in the devconsole shell both resolve to one of these, so
// builtin output lands directly on the host terminal instead of an
// in-memory file.
type termBacking struct {
	w io.Writer
}

func (t *termBacking) ReadAt(p []byte, off int64) (int, error) { return 0, io.EOF }
func (t *termBacking) WriteAt(p []byte, off int64) (int, error) {
	return t.w.Write(p)
}
func (t *termBacking) Size() int64          { return 0 }
func (t *termBacking) Truncate(int64) error { return nil }

// wallSleeper implements shell.Sleeper with a real wall-clock sleep, since
// devconsole runs against no internal/sched timer tick.
type wallSleeper struct{}

func (wallSleeper) SleepMillis(ms int) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// noopSpawner reports every non-builtin command as not found: devconsole
// has no ELF binaries staged, only the shell's builtins (spec.md §6's
// builtin list).
type noopSpawner struct{}

func (noopSpawner) Spawn(string, []string, [][2]int) (uint32, defs.Err_t) {
	return 0, defs.ENOPATH
}
func (noopSpawner) Wait(uint32) (int, defs.Err_t) { return 0, defs.ENONE }

func main() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprintln(os.Stderr, "devconsole: stdin is not a terminal")
		os.Exit(1)
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devconsole: MakeRaw: %v\n", err)
		os.Exit(1)
	}
	defer term.Restore(fd, saved)

	out := term.NewTerminal(os.Stdin, "kestrel> ")

	root := shell.NewFS()
	global := vfs.NewGlobalTable()
	fds := vfs.NewFDTable(global)

	stdinGFD, _ := global.OpenFile(&termBacking{w: io.Discard})
	stdoutGFD, _ := global.OpenFile(&termBacking{w: out})
	stderrGFD, _ := global.OpenFile(&termBacking{w: out})
	for _, gfd := range []int{stdinGFD, stdoutGFD, stderrGFD} {
		if _, err := fds.Install(gfd); err != defs.ENONE {
			fmt.Fprintf(os.Stderr, "devconsole: installing std fd: %v\n", err)
			os.Exit(1)
		}
	}

	sh := shell.New(root, global, fds, noopSpawner{}, wallSleeper{}, "@0xE0")

	for {
		line, err := out.ReadLine()
		if err != nil {
			if err != io.EOF {
				fmt.Fprintf(os.Stderr, "devconsole: %v\n", err)
			}
			return
		}
		if line == "exit" {
			return
		}
		sh.Execute(line)
	}
}
