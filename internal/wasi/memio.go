package wasi

import (
	"encoding/binary"

	"kestrel/internal/defs"
	"kestrel/internal/wasm/interp"
)

func getU32(mem *interp.Memory, ptr uint32) (uint32, defs.Err_t) {
	b, err := mem.ReadBytes(ptr, 4)
	if err != defs.ENONE {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), defs.ENONE
}

func getU64(mem *interp.Memory, ptr uint32) (uint64, defs.Err_t) {
	b, err := mem.ReadBytes(ptr, 8)
	if err != defs.ENONE {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), defs.ENONE
}

func getString(mem *interp.Memory, ptr, n uint32) (string, defs.Err_t) {
	b, err := mem.ReadBytes(ptr, n)
	if err != defs.ENONE {
		return "", err
	}
	return string(b), defs.ENONE
}

// iovec is a WASI __wasi_iovec_t / __wasi_ciovec_t: 4-byte ptr, 4-byte len.
type iovec struct {
	Ptr uint32
	Len uint32
}

func getIovec(mem *interp.Memory, ptr uint32) (iovec, defs.Err_t) {
	b, err := mem.ReadBytes(ptr, 8)
	if err != defs.ENONE {
		return iovec{}, err
	}
	return iovec{Ptr: binary.LittleEndian.Uint32(b[0:4]), Len: binary.LittleEndian.Uint32(b[4:8])}, defs.ENONE
}
