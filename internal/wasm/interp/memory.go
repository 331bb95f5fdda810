package interp

import (
	"encoding/binary"

	"kestrel/internal/defs"
)

// PageSize is the WASM linear-memory page size (64 KiB), spec.md §4.11.
const PageSize = 65536

// MaxPages bounds memory.grow even when a module declares no explicit
// maximum, keeping a runaway guest from exhausting the host process.
const MaxPages = 65536 // 4 GiB

// Memory is one linear-memory instance.
type Memory struct {
	Data    []byte
	HasMax  bool
	MaxPages uint32
}

// NewMemory allocates a memory of minPages pages, zero-filled.
func NewMemory(minPages uint32, hasMax bool, maxPages uint32) *Memory {
	return &Memory{Data: make([]byte, uint64(minPages)*PageSize), HasMax: hasMax, MaxPages: maxPages}
}

// Pages reports the current size in pages.
func (m *Memory) Pages() uint32 { return uint32(len(m.Data) / PageSize) }

// Grow extends the memory by delta pages, returning the previous page count
// or 0xFFFFFFFF on failure (spec.md §4.11: memory.grow's defined failure
// encoding).
func (m *Memory) Grow(delta uint32) uint32 {
	old := m.Pages()
	next := uint64(old) + uint64(delta)
	limit := uint64(MaxPages)
	if m.HasMax {
		limit = uint64(m.MaxPages)
	}
	if next > limit {
		return 0xFFFFFFFF
	}
	grown := make([]byte, next*PageSize)
	copy(grown, m.Data)
	m.Data = grown
	return old
}

// bounds computes the effective address for a load/store and traps on
// overflow or out-of-bounds access (spec.md §4.11: "effective = offset +
// i32_base as u64, trap ... on overflow or past the page-count bound").
func (m *Memory) bounds(offset uint32, base int32, size uint64) (uint64, defs.Err_t) {
	eff := uint64(offset) + uint64(uint32(base))
	if eff+size < eff { // overflow
		return 0, defs.ETRAPMEMORYOOB
	}
	if eff+size > uint64(len(m.Data)) {
		return 0, defs.ETRAPMEMORYOOB
	}
	return eff, defs.ENONE
}

func (m *Memory) load(offset uint32, base int32, size uint64) ([]byte, defs.Err_t) {
	eff, err := m.bounds(offset, base, size)
	if err != defs.ENONE {
		return nil, err
	}
	return m.Data[eff : eff+size], defs.ENONE
}

func (m *Memory) store(offset uint32, base int32, b []byte) defs.Err_t {
	eff, err := m.bounds(offset, base, uint64(len(b)))
	if err != defs.ENONE {
		return err
	}
	copy(m.Data[eff:eff+uint64(len(b))], b)
	return defs.ENONE
}

func (m *Memory) loadU32(offset uint32, base int32) (uint32, defs.Err_t) {
	b, err := m.load(offset, base, 4)
	if err != defs.ENONE {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), defs.ENONE
}

func (m *Memory) loadU64(offset uint32, base int32) (uint64, defs.Err_t) {
	b, err := m.load(offset, base, 8)
	if err != defs.ENONE {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), defs.ENONE
}

// ReadBytes exposes a bounds-checked slice for host functions (e.g.
// internal/wasi's fd_write iovec walk) to copy out of guest memory.
func (m *Memory) ReadBytes(ptr, n uint32) ([]byte, defs.Err_t) {
	return m.load(0, int32(ptr), uint64(n))
}

// WriteBytes exposes a bounds-checked write for host functions.
func (m *Memory) WriteBytes(ptr uint32, b []byte) defs.Err_t {
	return m.store(0, int32(ptr), b)
}

// PutU32/PutU64 are small helpers host functions use to write back WASI
// result fields (e.g. fd_write's nwritten pointer).
func (m *Memory) PutU32(ptr, v uint32) defs.Err_t {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return m.store(0, int32(ptr), b[:])
}

func (m *Memory) PutU64(ptr uint32, v uint64) defs.Err_t {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return m.store(0, int32(ptr), b[:])
}

// Table holds function references (funcref only; kestrel's in-scope
// modules never exercise externref tables).
type Table struct {
	Elems  []int64 // store Func address, or NullRef
	HasMax bool
	Max    uint32
}

// NewTable allocates a table of minSize null entries.
func NewTable(minSize uint32, hasMax bool, max uint32) *Table {
	t := &Table{Elems: make([]int64, minSize), HasMax: hasMax, Max: max}
	for i := range t.Elems {
		t.Elems[i] = NullRef
	}
	return t
}

// Get returns the function address at idx, trapping TableAccessOutOfBounds
// on an out-of-range index (spec.md §4.11).
func (t *Table) Get(idx uint32) (int64, defs.Err_t) {
	if idx >= uint32(len(t.Elems)) {
		return 0, defs.ETRAPTABLEOOB
	}
	return t.Elems[idx], defs.ENONE
}
