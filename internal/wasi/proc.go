package wasi

import (
	"kestrel/internal/defs"
	"kestrel/internal/klog"
	"kestrel/internal/wasm/interp"
)

// procExit returns HostHalted per spec.md §4.12/§7: the caller (internal/shell's
// ELF/WASM dispatch) sees EHOSTHALTED and terminates the guest, reading the
// exit code back off r.ExitCode.
func (r *Runtime) procExit(m *interp.Machine, args []interp.Value) ([]interp.Value, defs.Err_t) {
	r.ExitCode = int(args[0].I32)
	r.Halted = true
	klog.Printf("wasi", "proc_exit(%d)", r.ExitCode)
	return nil, defs.EHOSTHALTED
}
