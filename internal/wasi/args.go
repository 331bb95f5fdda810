package wasi

import (
	"kestrel/internal/defs"
	"kestrel/internal/wasm/interp"
)

// flatten packs strs as NUL-terminated byte runs into buf starting at
// bufPtr, and writes the pointer to each one into ptrsPtr[i*4:], matching
// WASI's args_get/environ_get layout (an array of guest pointers followed
// by the packed byte buffer they point into).
func flatten(mem *interp.Memory, ptrsPtr, bufPtr uint32, strs []string) defs.Err_t {
	offset := uint32(0)
	for i, s := range strs {
		p := bufPtr + offset
		if err := mem.PutU32(ptrsPtr+uint32(i)*4, p); err != defs.ENONE {
			return err
		}
		b := append([]byte(s), 0)
		if err := mem.WriteBytes(p, b); err != defs.ENONE {
			return err
		}
		offset += uint32(len(b))
	}
	return defs.ENONE
}

func flattenSize(strs []string) uint32 {
	var n uint32
	for _, s := range strs {
		n += uint32(len(s)) + 1
	}
	return n
}

func (r *Runtime) argsGet(m *interp.Machine, args []interp.Value) ([]interp.Value, defs.Err_t) {
	mem := m.CallerMemory()
	argvPtr, argvBufPtr := args[0].U32(), args[1].U32()
	if err := flatten(mem, argvPtr, argvBufPtr, r.Args); err != defs.ENONE {
		return errResult(EFAULT), defs.ENONE
	}
	return errResult(ESUCCESS), defs.ENONE
}

func (r *Runtime) argsSizesGet(m *interp.Machine, args []interp.Value) ([]interp.Value, defs.Err_t) {
	mem := m.CallerMemory()
	countPtr, bufSizePtr := args[0].U32(), args[1].U32()
	if err := mem.PutU32(countPtr, uint32(len(r.Args))); err != defs.ENONE {
		return errResult(EFAULT), defs.ENONE
	}
	if err := mem.PutU32(bufSizePtr, flattenSize(r.Args)); err != defs.ENONE {
		return errResult(EFAULT), defs.ENONE
	}
	return errResult(ESUCCESS), defs.ENONE
}

func (r *Runtime) environGet(m *interp.Machine, args []interp.Value) ([]interp.Value, defs.Err_t) {
	mem := m.CallerMemory()
	envPtr, bufPtr := args[0].U32(), args[1].U32()
	if err := flatten(mem, envPtr, bufPtr, r.Env); err != defs.ENONE {
		return errResult(EFAULT), defs.ENONE
	}
	return errResult(ESUCCESS), defs.ENONE
}

func (r *Runtime) environSizesGet(m *interp.Machine, args []interp.Value) ([]interp.Value, defs.Err_t) {
	mem := m.CallerMemory()
	countPtr, bufSizePtr := args[0].U32(), args[1].U32()
	if err := mem.PutU32(countPtr, uint32(len(r.Env))); err != defs.ENONE {
		return errResult(EFAULT), defs.ENONE
	}
	if err := mem.PutU32(bufSizePtr, flattenSize(r.Env)); err != defs.ENONE {
		return errResult(EFAULT), defs.ENONE
	}
	return errResult(ESUCCESS), defs.ENONE
}
