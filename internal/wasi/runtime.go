// Package wasi implements the WASI shim of spec.md §4.12: a fixed set of
// host functions registered under module name "wasi_snapshot_preview1",
// bridging a guest WASM module's syscalls to internal/vfs and the tick
// counter, grounded on original_source/std/src/wasm/wasi.rs's own WASI
// binding layer (the Rust OS this spec was distilled from) adapted onto
// internal/wasm/interp.ImportResolver/HostFunc rather than a linker.define
// closure table.
package wasi

import (
	"time"

	"kestrel/internal/defs"
	"kestrel/internal/vfs"
	"kestrel/internal/wasm/interp"
	"kestrel/internal/wasm/parser"
)

// ModuleName is the fixed WASI import module name every binding resolves.
const ModuleName = "wasi_snapshot_preview1"

const (
	fdStdin  = 0
	fdStdout = 1
	fdStderr = 2
	fdPreopenRoot = 3
	firstUserFD   = 4
)

// TickDuration is the wall-clock period of one scheduler tick: the PIT
// fires at 100Hz (spec.md §5), so CLOCK_MONOTONIC/CLOCK_REALTIME both
// derive their nanosecond count from tick*TickDuration.
const TickDuration = 10 * time.Millisecond

// TickSource reports elapsed scheduler ticks since boot. internal/sched's
// Scheduler.Tick satisfies this without internal/wasi importing
// internal/sched back -- the runtime only ever needs the one method.
type TickSource interface {
	Tick() uint64
}

// PathOpener resolves a guest-visible path to a Backing. internal/vfs
// intentionally has no directory tree of its own (spec.md §1 puts on-disk
// layout out of scope): internal/shell's in-memory filesystem is the
// concrete implementation this seam is built for.
type PathOpener interface {
	Open(path string, create, truncate bool) (vfs.Backing, defs.Err_t)
}

// Runtime is one guest process's WASI environment: its argv/envp, the VFS
// tables it sees fds 0-2 pre-bound into, and the random/clock state a guest
// instance accumulates across calls.
type Runtime struct {
	Args []string
	Env  []string
	Cwd  string

	Global *vfs.GlobalTable
	FDs    *vfs.FDTable
	Paths  PathOpener

	Clock            TickSource
	RTCBootUnixNanos int64

	wasiFD []int // wasi fd -> vfs.FDTable local fd, or -1; index 3 is a sentinel (no FDTable slot)
	rng    uint64

	ExitCode int
	Halted   bool
}

// NewRuntime builds a Runtime with fds 0/1/2 pre-bound to whatever stdio
// localFDs the caller's FDTable already installed, and fd 3 reserved as the
// preopened root directory (spec.md §4.12's fd_prestat_get table).
func NewRuntime(args, env []string, cwd string, global *vfs.GlobalTable, fds *vfs.FDTable, paths PathOpener, clock TickSource, rtcBootUnixNanos int64) *Runtime {
	return &Runtime{
		Args: args, Env: env, Cwd: cwd,
		Global: global, FDs: fds, Paths: paths,
		Clock: clock, RTCBootUnixNanos: rtcBootUnixNanos,
		wasiFD: []int{fdStdin, fdStdout, fdStderr, -1},
	}
}

func (r *Runtime) installFD(localfd int) uint32 {
	for i := firstUserFD; i < len(r.wasiFD); i++ {
		if r.wasiFD[i] == -1 {
			r.wasiFD[i] = localfd
			return uint32(i)
		}
	}
	r.wasiFD = append(r.wasiFD, localfd)
	return uint32(len(r.wasiFD) - 1)
}

func (r *Runtime) lookupFD(wfd uint32) (int, bool) {
	if wfd == fdPreopenRoot || int(wfd) >= len(r.wasiFD) || r.wasiFD[wfd] == -1 {
		return -1, false
	}
	return r.wasiFD[wfd], true
}

func (r *Runtime) closeFD(wfd uint32) {
	if int(wfd) < len(r.wasiFD) {
		r.wasiFD[wfd] = -1
	}
}

// ResolveFunc implements interp.ImportResolver, handing back one of the
// bound methods below for every name spec.md §4.12 enumerates.
func (r *Runtime) ResolveFunc(module, name string, sig parser.FuncType) (interp.HostFunc, defs.Err_t) {
	if module != ModuleName {
		return nil, defs.EWASMVALIDATION
	}
	fn, ok := r.table()[name]
	if !ok {
		return nil, defs.EWASMVALIDATION
	}
	return fn, defs.ENONE
}

func (r *Runtime) table() map[string]interp.HostFunc {
	return map[string]interp.HostFunc{
		"args_get":              r.argsGet,
		"args_sizes_get":        r.argsSizesGet,
		"environ_get":           r.environGet,
		"environ_sizes_get":     r.environSizesGet,
		"clock_time_get":        r.clockTimeGet,
		"fd_read":               r.fdRead,
		"fd_write":              r.fdWrite,
		"fd_seek":               r.fdSeek,
		"fd_tell":               r.fdTell,
		"fd_close":              r.fdClose,
		"fd_filestat_get":       r.fdFilestatGet,
		"fd_filestat_set_size":  r.fdFilestatSetSize,
		"path_open":             r.pathOpen,
		"fd_prestat_get":        r.fdPrestatGet,
		"fd_prestat_dir_name":   r.fdPrestatDirName,
		"random_get":            r.randomGet,
		"poll_oneoff":           r.pollOneoff,
		"proc_exit":             r.procExit,
	}
}

func errResult(code uint32) []interp.Value {
	return []interp.Value{interp.ValI32(int32(code))}
}
