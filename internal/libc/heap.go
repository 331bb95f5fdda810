// Package libc is the thin userland standard-library/libc shim spec.md §2
// calls for: a heap allocator over a userland arena, a printf-family, and
// minimal curses stubs; it has no syscall wrappers. It is explicitly a thin
// collaborator (spec.md §1): kestrel keeps the header-prefixed
// malloc/free/calloc/realloc shape of original_source/libs/libc/src/stdlib.rs
// (a size header immediately before the returned block) re-expressed over a
// plain Go byte slice instead of a raw pointer, since userland addresses in
// the hosted build are just offsets into internal/sched.Process's heap
// arena (HeapStart..HeapEnd).
package libc

import "fmt"

// headerSize is the size of the block header (one uint64 length, 16-aligned
// same as original_source's Header).
const headerSize = 16

const align = 16

func alignUp(v int) int { return (v + align - 1) &^ (align - 1) }

// freeBlock is one entry of the heap's free list.
type freeBlock struct {
	off, size int
}

// Heap is a bump-then-freelist allocator over a fixed-size userland arena,
// mirroring original_source's malloc/free pair: each live allocation is
// preceded by a headerSize-byte header recording its usable size so Free
// and Realloc don't need the caller to repeat it.
type Heap struct {
	arena []byte
	brk   int // bump pointer; everything below is either live or on freeList
	free  []freeBlock
}

// NewHeap wraps buf as the process's heap arena (spec.md §3 Process.heap).
func NewHeap(buf []byte) *Heap {
	return &Heap{arena: buf}
}

// Len returns the arena's total capacity.
func (h *Heap) Len() int { return len(h.arena) }

// Brk returns the current break (bump-allocated high-water mark), the Go
// analogue of Process.HeapEnd.
func (h *Heap) Brk() int { return h.brk }

func (h *Heap) putHeader(off, size int) {
	b := h.arena[off : off+headerSize]
	for i := range b {
		b[i] = 0
	}
	v := uint64(size)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func (h *Heap) header(off int) int {
	b := h.arena[off : off+8]
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return int(v)
}

func (h *Heap) takeFree(size int) (int, bool) {
	for i, b := range h.free {
		if b.size >= size {
			h.free = append(h.free[:i], h.free[i+1:]...)
			return b.off, true
		}
	}
	return 0, false
}

// Malloc returns the offset of a fresh size-byte block, or -1 if the arena
// is exhausted. A zero size returns -1, matching malloc(0)'s null return in
// original_source.
func (h *Heap) Malloc(size int) int {
	if size <= 0 {
		return -1
	}
	total := alignUp(size) + headerSize
	if off, ok := h.takeFree(total); ok {
		h.putHeader(off, size)
		return off + headerSize
	}
	if h.brk+total > len(h.arena) {
		return -1
	}
	off := h.brk
	h.brk += total
	h.putHeader(off, size)
	return off + headerSize
}

// Calloc is Malloc followed by a zero-fill, per original_source's calloc.
func (h *Heap) Calloc(n, size int) int {
	total := n * size
	p := h.Malloc(total)
	if p < 0 {
		return -1
	}
	b := h.arena[p : p+total]
	for i := range b {
		b[i] = 0
	}
	return p
}

// Free releases the block at p back to the free list. A negative p is a
// no-op, matching malloc's null-pointer guard.
func (h *Heap) Free(p int) {
	if p < 0 {
		return
	}
	off := p - headerSize
	size := h.header(off)
	h.free = append(h.free, freeBlock{off: off, size: alignUp(size) + headerSize})
}

// Realloc grows or shrinks the block at p to size bytes, copying the
// overlap and freeing the old block, per original_source's realloc.
func (h *Heap) Realloc(p, size int) int {
	if p < 0 {
		return h.Malloc(size)
	}
	oldSize := h.header(p - headerSize)
	np := h.Malloc(size)
	if np < 0 {
		return -1
	}
	n := oldSize
	if size < n {
		n = size
	}
	copy(h.arena[np:np+n], h.arena[p:p+n])
	h.Free(p)
	return np
}

// Read returns a view of size bytes at offset p, for callers that need to
// inspect or fill a block's contents directly (e.g. fd_read's destination
// buffer).
func (h *Heap) Read(p, size int) []byte { return h.arena[p : p+size] }

// Sprintf is the userland printf-family entry point; a freestanding libc
// has no stdout of its own (that's the syscall layer's job), so this only
// formats, matching original_source/libs/libc/src/stdio.rs's separation
// between formatting and the file_write syscall that actually emits bytes.
func Sprintf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}
