package interp

import (
	"encoding/binary"
	"math"

	"kestrel/internal/defs"
	"kestrel/internal/wasm/parser"
)

// execLoadStore applies one memory load/store instruction against the
// module's sole linear memory (spec.md §4.11 assumes a single memory index,
// matching every module the engine is exercised against).
func (m *Machine) execLoadStore(fi *FuncInstance, in *parser.Instr) defs.Err_t {
	mem := m.Store.Memories[fi.Mod.MemAddrs[0]]

	switch in.Op {
	case parser.OpI32Load:
		addr := m.pop()
		v, err := mem.loadU32(in.Offset, addr.I32)
		if err != defs.ENONE {
			return err
		}
		m.push(ValU32(v))
	case parser.OpI64Load:
		addr := m.pop()
		v, err := mem.loadU64(in.Offset, addr.I32)
		if err != defs.ENONE {
			return err
		}
		m.push(ValU64(v))
	case parser.OpF32Load:
		addr := m.pop()
		v, err := mem.loadU32(in.Offset, addr.I32)
		if err != defs.ENONE {
			return err
		}
		m.push(Value{Type: parser.F32, F32: math.Float32frombits(v)})
	case parser.OpF64Load:
		addr := m.pop()
		v, err := mem.loadU64(in.Offset, addr.I32)
		if err != defs.ENONE {
			return err
		}
		m.push(Value{Type: parser.F64, F64: math.Float64frombits(v)})

	case parser.OpI32Load8S:
		addr := m.pop()
		b, err := mem.load(in.Offset, addr.I32, 1)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI32(int32(int8(b[0]))))
	case parser.OpI32Load8U:
		addr := m.pop()
		b, err := mem.load(in.Offset, addr.I32, 1)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI32(int32(b[0])))
	case parser.OpI32Load16S:
		addr := m.pop()
		b, err := mem.load(in.Offset, addr.I32, 2)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI32(int32(int16(binary.LittleEndian.Uint16(b)))))
	case parser.OpI32Load16U:
		addr := m.pop()
		b, err := mem.load(in.Offset, addr.I32, 2)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI32(int32(binary.LittleEndian.Uint16(b))))
	case parser.OpI64Load8S:
		addr := m.pop()
		b, err := mem.load(in.Offset, addr.I32, 1)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI64(int64(int8(b[0]))))
	case parser.OpI64Load8U:
		addr := m.pop()
		b, err := mem.load(in.Offset, addr.I32, 1)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI64(int64(b[0])))
	case parser.OpI64Load16S:
		addr := m.pop()
		b, err := mem.load(in.Offset, addr.I32, 2)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI64(int64(int16(binary.LittleEndian.Uint16(b)))))
	case parser.OpI64Load16U:
		addr := m.pop()
		b, err := mem.load(in.Offset, addr.I32, 2)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI64(int64(binary.LittleEndian.Uint16(b))))
	case parser.OpI64Load32S:
		addr := m.pop()
		v, err := mem.loadU32(in.Offset, addr.I32)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI64(int64(int32(v))))
	case parser.OpI64Load32U:
		addr := m.pop()
		v, err := mem.loadU32(in.Offset, addr.I32)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI64(int64(v)))

	case parser.OpI32Store:
		val := m.pop()
		addr := m.pop()
		return mem.storeU32(in.Offset, addr.I32, val.U32())
	case parser.OpI64Store:
		val := m.pop()
		addr := m.pop()
		return mem.storeU64(in.Offset, addr.I32, val.U64())
	case parser.OpF32Store:
		val := m.pop()
		addr := m.pop()
		return mem.storeU32(in.Offset, addr.I32, math.Float32bits(val.F32))
	case parser.OpF64Store:
		val := m.pop()
		addr := m.pop()
		return mem.storeU64(in.Offset, addr.I32, math.Float64bits(val.F64))
	case parser.OpI32Store8:
		val := m.pop()
		addr := m.pop()
		return mem.store(in.Offset, addr.I32, []byte{byte(val.I32)})
	case parser.OpI32Store16:
		var b [2]byte
		val := m.pop()
		addr := m.pop()
		binary.LittleEndian.PutUint16(b[:], uint16(val.I32))
		return mem.store(in.Offset, addr.I32, b[:])
	case parser.OpI64Store8:
		val := m.pop()
		addr := m.pop()
		return mem.store(in.Offset, addr.I32, []byte{byte(val.I64)})
	case parser.OpI64Store16:
		var b [2]byte
		val := m.pop()
		addr := m.pop()
		binary.LittleEndian.PutUint16(b[:], uint16(val.I64))
		return mem.store(in.Offset, addr.I32, b[:])
	case parser.OpI64Store32:
		val := m.pop()
		addr := m.pop()
		return mem.storeU32(in.Offset, addr.I32, uint32(val.I64))
	}
	return defs.ENONE
}

func (m *Memory) storeU32(offset uint32, base int32, v uint32) defs.Err_t {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return m.store(offset, base, b[:])
}

func (m *Memory) storeU64(offset uint32, base int32, v uint64) defs.Err_t {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return m.store(offset, base, b[:])
}

// execMemoryInit copies len bytes from data segment Idx (at srcOffset) into
// memory at dstOffset; trapping MemoryAccessOutOfBounds covers both an
// out-of-range source range and an out-of-range destination range, and a
// dropped segment behaves as a zero-length one unless the copy is nonempty
// (core spec: copying from a dropped segment with n>0 traps).
func (m *Machine) execMemoryInit(fi *FuncInstance, in *parser.Instr) defs.Err_t {
	n := m.pop()
	srcOffset := m.pop()
	dstOffset := m.pop()
	mod := fi.Mod
	if int(in.Idx) >= len(mod.dataSegs) {
		return defs.EWASMVALIDATION
	}
	if mod.dataDropped[int(in.Idx)] {
		if n.U32() != 0 {
			return defs.ETRAPMEMORYOOB
		}
		return defs.ENONE
	}
	seg := mod.dataSegs[in.Idx]
	if uint64(srcOffset.U32())+uint64(n.U32()) > uint64(len(seg.Bytes)) {
		return defs.ETRAPMEMORYOOB
	}
	mem := m.Store.Memories[mod.MemAddrs[0]]
	src := seg.Bytes[srcOffset.U32() : srcOffset.U32()+n.U32()]
	return mem.store(dstOffset.U32(), 0, src)
}

// execMemoryCopy moves n bytes within the module's linear memory, correct
// under overlap (core spec: memory.copy behaves like memmove).
func (m *Machine) execMemoryCopy(fi *FuncInstance) defs.Err_t {
	n := m.pop()
	srcOffset := m.pop()
	dstOffset := m.pop()
	mem := m.Store.Memories[fi.Mod.MemAddrs[0]]
	src, err := mem.load(srcOffset.U32(), 0, uint64(n.U32()))
	if err != defs.ENONE {
		return err
	}
	buf := append([]byte{}, src...)
	return mem.store(dstOffset.U32(), 0, buf)
}

// execMemoryFill writes n copies of the low byte of val starting at dst.
func (m *Machine) execMemoryFill(fi *FuncInstance) defs.Err_t {
	n := m.pop()
	val := m.pop()
	dstOffset := m.pop()
	mem := m.Store.Memories[fi.Mod.MemAddrs[0]]
	buf := make([]byte, n.U32())
	for i := range buf {
		buf[i] = byte(val.I32)
	}
	return mem.store(dstOffset.U32(), 0, buf)
}
