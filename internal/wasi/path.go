package wasi

import (
	"kestrel/internal/defs"
	"kestrel/internal/vfs"
	"kestrel/internal/wasm/interp"
)

// WASI oflags bits (Preview1), the two the shim honours (spec.md §4.12).
const (
	oflagsCreat = 1 << 0
	oflagsTrunc = 1 << 3
)

// pathOpen resolves the path against @0xE0/... (vfs.Resolve against the
// runtime's cwd), optionally creates (O_CREAT) and truncates (O_TRUNC) it,
// registers the new host fd, and writes the WASI fd back (spec.md §4.12).
func (r *Runtime) pathOpen(m *interp.Machine, args []interp.Value) ([]interp.Value, defs.Err_t) {
	pathPtr, pathLen := args[2].U32(), args[3].U32()
	oflags := uint32(args[4].I32)
	openedFDPtr := args[8].U32()

	mem := m.CallerMemory()
	raw, err := getString(mem, pathPtr, pathLen)
	if err != defs.ENONE {
		return errResult(EFAULT), defs.ENONE
	}
	resolved := vfs.Resolve(r.Cwd, raw)

	if r.Paths == nil {
		return errResult(ENOSYS), defs.ENONE
	}
	create := oflags&oflagsCreat != 0
	truncate := oflags&oflagsTrunc != 0
	backing, operr := r.Paths.Open(resolved, create, truncate)
	if operr != defs.ENONE {
		return errResult(mapErrno(operr)), defs.ENONE
	}
	gfd, operr := r.Global.OpenFile(backing)
	if operr != defs.ENONE {
		return errResult(mapErrno(operr)), defs.ENONE
	}
	local, operr := r.FDs.Install(gfd)
	if operr != defs.ENONE {
		r.Global.Close(gfd)
		return errResult(mapErrno(operr)), defs.ENONE
	}
	wfd := r.installFD(local)
	if err := mem.PutU32(openedFDPtr, wfd); err != defs.ENONE {
		return errResult(EFAULT), defs.ENONE
	}
	return errResult(ESUCCESS), defs.ENONE
}
