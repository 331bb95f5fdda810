package pmm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SimMemory backs a PMM with a host-mmap'd arena so tests (and
// cmd/kestrel, which has no real BIOS to ask) can exercise the zeroing
// invariant in spec.md §8 #2 without bare-metal hardware. Grounded on
// smoynes-elsie's use of golang.org/x/sys/unix for host-level I/O plumbing
// around its simulated machine (internal/tty, cmd/internal/tty).
type SimMemory struct {
	base uint64
	arena []byte
}

// NewSimMemory mmaps `size` bytes of anonymous memory and treats it as the
// physical address range [base, base+size).
func NewSimMemory(base uint64, size uint64) (*SimMemory, error) {
	arena, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("pmm: mmap simulated arena: %w", err)
	}
	return &SimMemory{base: base, arena: arena}, nil
}

// Close unmaps the arena.
func (s *SimMemory) Close() error {
	return unix.Munmap(s.arena)
}

// Zero implements Zeroer.
func (s *SimMemory) Zero(phys, bytes uint64) {
	off := phys - s.base
	for i := uint64(0); i < bytes; i++ {
		s.arena[off+i] = 0
	}
}

// Bytes exposes the backing slice at a physical offset, for assertions in
// tests that want to poke non-zero values before calling Free.
func (s *SimMemory) Bytes(phys, n uint64) []byte {
	off := phys - s.base
	return s.arena[off : off+n]
}

// Page returns the PageSize-byte slice backing the page at phys, satisfying
// vmm.PageStore.
func (s *SimMemory) Page(phys uint64) []byte {
	return s.Bytes(phys, PageSize)
}
