package shell

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"kestrel/internal/defs"
	"kestrel/internal/vfs"
)

// BinRoot is where a non-builtin command name resolves to, per spec.md §6.
const BinRoot = "@0xE0/sys/bin/"

var builtinNames = map[string]bool{
	"cd": true, "ls": true, "pwd": true, "touch": true, "mkdir": true,
	"rm": true, "mv": true, "cp": true, "cat": true, "sleep": true,
	"help": true, "clear": true,
}

// Spawner is the process-creation surface the shell needs from the kernel
// core: spawn a child ELF with an explicit (child_fd, parent_fd) map --
// syscall 66 in spec.md §6 -- and block until it exits (syscall 68,
// waitpid). internal/sched plus internal/elfload implement this in the
// freestanding build; tests use a fake.
type Spawner interface {
	Spawn(elfPath string, args []string, fdMap [][2]int) (pid uint32, err defs.Err_t)
	Wait(pid uint32) (exitCode int, err defs.Err_t)
}

// Sleeper lets the `sleep` builtin and the `sleep` syscall share one
// implementation (spec.md §6 builtin list, §4.4 Sleeping state).
type Sleeper interface {
	SleepMillis(ms int)
}

// Shell holds one shell process's pipeline-execution state: its FD table,
// the global table it installs redirected/piped fds into, the filesystem
// builtins operate on, and the cwd builtins like `cd` mutate.
type Shell struct {
	FS      *FS
	Global  *vfs.GlobalTable
	FDs     *vfs.FDTable
	Spawner Spawner
	Sleep   Sleeper
	Cwd     string
}

// New returns a Shell rooted at cwd (conventionally "@0xE0", spec.md §9's
// SUPPLEMENTED FEATURES note: `cd` with no argument is a no-op, there being
// no $HOME).
func New(fs *FS, global *vfs.GlobalTable, fds *vfs.FDTable, sp Spawner, sl Sleeper, cwd string) *Shell {
	return &Shell{FS: fs, Global: global, FDs: fds, Spawner: sp, Sleep: sl, Cwd: cwd}
}

func (sh *Shell) writeFD(fd int, s string) {
	gfd, err := sh.FDs.Lookup(fd)
	if err != defs.ENONE {
		return
	}
	sh.Global.Write(gfd, []byte(s))
}

func (sh *Shell) readAllFD(fd int) []byte {
	gfd, err := sh.FDs.Lookup(fd)
	if err != defs.ENONE {
		return nil
	}
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := sh.Global.Read(gfd, buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if n == 0 || err != defs.ENONE {
			break
		}
	}
	return out
}

// Execute runs one shell line end to end: it tokenizes the pipeline, wires
// redirection and inter-segment pipe fds, runs each segment (builtin
// in-process, otherwise spawned as a child) and waits for every spawned
// child, returning each segment's exit code in order (spec.md §8 scenarios
// #1, #2).
func (sh *Shell) Execute(line string) []int {
	segs := ParseLine(line)
	if len(segs) == 0 || segs[0].Cmd == "" {
		return nil
	}

	exitCodes := make([]int, 0, len(segs))
	prevReadFD := -1

	for i, seg := range segs {
		stdinFD := 0
		closeStdin := false
		if seg.InFile != "" {
			path := vfs.Resolve(sh.Cwd, seg.InFile)
			backing, err := sh.FS.Open(path, false, false)
			if err != defs.ENONE {
				sh.writeFD(2, fmt.Sprintf("cannot open %s\n", seg.InFile))
				break
			}
			gfd, _ := sh.Global.OpenFile(backing)
			fd, _ := sh.FDs.Install(gfd)
			stdinFD, closeStdin = fd, true
		} else if prevReadFD != -1 {
			stdinFD, closeStdin = prevReadFD, true
		}

		stdoutFD := 1
		closeStdout := false
		nextReadFD := -1
		switch {
		case seg.OutFile != "":
			path := vfs.Resolve(sh.Cwd, seg.OutFile)
			backing, err := sh.FS.Open(path, true, !seg.Append)
			if err != defs.ENONE {
				sh.writeFD(2, fmt.Sprintf("cannot create %s\n", seg.OutFile))
				break
			}
			gfd, _ := sh.Global.OpenFile(backing)
			if seg.Append {
				sh.Global.Seek(gfd, 0, io.SeekEnd)
			}
			fd, _ := sh.FDs.Install(gfd)
			stdoutFD, closeStdout = fd, true
		case i < len(segs)-1:
			r, w, err := sh.Global.Pipe()
			if err == defs.ENONE {
				rfd, _ := sh.FDs.Install(r)
				wfd, _ := sh.FDs.Install(w)
				stdoutFD, closeStdout = wfd, true
				nextReadFD = rfd
			}
		}

		code := sh.runSegment(seg, stdinFD, stdoutFD)
		exitCodes = append(exitCodes, code)

		if closeStdin {
			sh.FDs.Close(stdinFD)
		}
		if closeStdout {
			sh.FDs.Close(stdoutFD)
		}
		prevReadFD = nextReadFD
	}
	return exitCodes
}

func (sh *Shell) runSegment(seg Segment, stdinFD, stdoutFD int) int {
	if builtinNames[seg.Cmd] {
		return sh.runBuiltin(seg.Cmd, seg.Args, stdinFD, stdoutFD)
	}
	path := BinRoot + seg.Cmd + ".elf"
	pid, err := sh.Spawner.Spawn(path, seg.Args, [][2]int{{0, stdinFD}, {1, stdoutFD}})
	if err != defs.ENONE {
		sh.writeFD(2, fmt.Sprintf("%s: command not found\n", seg.Cmd))
		return -1
	}
	code, _ := sh.Spawner.Wait(pid)
	return code
}

func (sh *Shell) runBuiltin(cmd string, args []string, stdinFD, stdoutFD int) int {
	switch cmd {
	case "cd":
		if len(args) == 0 {
			return 0 // no $HOME concept: bare `cd` is a no-op, per spec.md §9
		}
		sh.Cwd = vfs.Resolve(sh.Cwd, args[0])
		return 0
	case "pwd":
		sh.writeFD(stdoutFD, sh.Cwd+"\n")
		return 0
	case "ls":
		dir := sh.Cwd
		if len(args) > 0 {
			dir = vfs.Resolve(sh.Cwd, args[0])
		}
		names, err := sh.FS.List(dir)
		if err != defs.ENONE {
			sh.writeFD(2, fmt.Sprintf("ls: %s: %s\n", dir, err))
			return -1
		}
		sh.writeFD(stdoutFD, strings.Join(names, "\n")+"\n")
		return 0
	case "touch":
		for _, a := range args {
			path := vfs.Resolve(sh.Cwd, a)
			if _, err := sh.FS.Open(path, true, false); err != defs.ENONE {
				sh.writeFD(2, fmt.Sprintf("cannot create %s\n", a))
				return -1
			}
		}
		return 0
	case "mkdir":
		for _, a := range args {
			if err := sh.FS.Mkdir(vfs.Resolve(sh.Cwd, a)); err != defs.ENONE {
				sh.writeFD(2, fmt.Sprintf("cannot create directory %s\n", a))
				return -1
			}
		}
		return 0
	case "rm":
		for _, a := range args {
			if err := sh.FS.Remove(vfs.Resolve(sh.Cwd, a)); err != defs.ENONE {
				sh.writeFD(2, fmt.Sprintf("cannot remove %s\n", a))
				return -1
			}
		}
		return 0
	case "mv":
		if len(args) != 2 {
			return -1
		}
		if err := sh.FS.Rename(vfs.Resolve(sh.Cwd, args[0]), vfs.Resolve(sh.Cwd, args[1])); err != defs.ENONE {
			sh.writeFD(2, fmt.Sprintf("cannot move %s\n", args[0]))
			return -1
		}
		return 0
	case "cp":
		if len(args) != 2 {
			return -1
		}
		src, err := sh.FS.Open(vfs.Resolve(sh.Cwd, args[0]), false, false)
		if err != defs.ENONE {
			sh.writeFD(2, fmt.Sprintf("cannot open %s\n", args[0]))
			return -1
		}
		buf := make([]byte, src.Size())
		src.ReadAt(buf, 0)
		dst, err := sh.FS.Open(vfs.Resolve(sh.Cwd, args[1]), true, true)
		if err != defs.ENONE {
			sh.writeFD(2, fmt.Sprintf("cannot create %s\n", args[1]))
			return -1
		}
		dst.WriteAt(buf, 0)
		return 0
	case "cat":
		if len(args) == 0 {
			sh.writeFD(stdoutFD, string(sh.readAllFD(stdinFD)))
			return 0
		}
		for _, a := range args {
			f, err := sh.FS.Open(vfs.Resolve(sh.Cwd, a), false, false)
			if err != defs.ENONE {
				sh.writeFD(2, fmt.Sprintf("cat: %s: no such file\n", a))
				return -1
			}
			buf := make([]byte, f.Size())
			f.ReadAt(buf, 0)
			sh.writeFD(stdoutFD, string(buf))
		}
		return 0
	case "sleep":
		if len(args) != 1 {
			return -1
		}
		ms, err := strconv.Atoi(args[0])
		if err != nil {
			return -1
		}
		if sh.Sleep != nil {
			sh.Sleep.SleepMillis(ms)
		}
		return 0
	case "help":
		names := make([]string, 0, len(builtinNames))
		for n := range builtinNames {
			names = append(names, n)
		}
		strSort(names)
		sh.writeFD(stdoutFD, strings.Join(names, " ")+"\n")
		return 0
	case "clear":
		sh.writeFD(stdoutFD, "\x1b[2J\x1b[H")
		return 0
	}
	return -1
}

func strSort(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}
