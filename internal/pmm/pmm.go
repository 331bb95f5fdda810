// Package pmm is the Physical Memory Manager: spec.md §4.1. It tracks
// page-granular allocations keyed by owner PID in a fixed-capacity,
// insertion-sorted array, the way biscuit/src/mem/mem.go keeps a flat table
// of physical page records rather than a buddy/slab structure.
package pmm

import (
	"sort"
	"sync"

	"kestrel/internal/config"
	"kestrel/internal/defs"
	"kestrel/internal/klog"
)

// PageSize is the hardware page granularity (spec.md Frame allocation record).
const PageSize = 4096

// maxRecords bounds the fixed-capacity allocation table; exceeding it is the
// "out-of-capacity" failure mode spec.md §4.1 calls out by name.
const maxRecords = 1 << 16

// Record is one live or historical allocation. Dead records (InUse == false)
// are compacted out of the table immediately on Free, so the slice only ever
// holds live, non-overlapping ranges.
type Record struct {
	Owner defs.Pid_t
	Start uint64 // physical address, page aligned
	Pages uint64
	InUse bool
}

func (r Record) end() uint64 { return r.Start + r.Pages*PageSize }

// Zeroer abstracts writing zero bytes to a physical range. On real hardware
// this goes through the HHDM; kestrel's test harness and cmd/kestrel back
// it with a golang.org/x/sys/unix-mmap'd arena (see pmm_sim.go).
type Zeroer interface {
	Zero(phys, bytes uint64)
}

type noopZeroer struct{}

func (noopZeroer) Zero(uint64, uint64) {}

// PMM is the singleton allocator. A single spin lock serializes mutators;
// per spec.md §4.1 the lock is taken with interrupts left enabled -- callers
// that need IRQs suppressed (e.g. the scheduler's task-table critical
// sections) do so themselves before calling in.
type PMM struct {
	mu      sync.Mutex
	regions []config.MemRegion
	reservedBelow uint64
	records []Record // sorted by Start, InUse-only
	zeroer  Zeroer
}

// New constructs a PMM over the given usable-RAM regions (as reported by the
// BIOS memory map), reserving everything below reservedBelow for early boot
// use exactly as spec.md §4.1 describes.
func New(regions []config.MemRegion, reservedBelow uint64, z Zeroer) *PMM {
	if z == nil {
		z = noopZeroer{}
	}
	regs := append([]config.MemRegion(nil), regions...)
	sort.Slice(regs, func(i, j int) bool { return regs[i].Start < regs[j].Start })
	return &PMM{
		regions:       regs,
		reservedBelow: reservedBelow,
		records:       make([]Record, 0, 64),
		zeroer:        z,
	}
}

func roundup(v, b uint64) uint64 { return (v + b - 1) / b * b }

// inUsable reports whether [start, start+size) lies entirely within a single
// usable-RAM region and past the reserved-below boundary.
func (p *PMM) inUsable(start, size uint64) bool {
	if start < p.reservedBelow {
		return false
	}
	end := start + size
	for _, r := range p.regions {
		if start >= r.Start && end <= r.Start+r.Len {
			return true
		}
	}
	return false
}

// overlaps reports whether [start, start+size) intersects any live record.
func (p *PMM) overlaps(start, size uint64) bool {
	end := start + size
	// records is sorted by Start; binary-search the first candidate whose
	// end could intersect.
	i := sort.Search(len(p.records), func(i int) bool { return p.records[i].end() > start })
	for ; i < len(p.records); i++ {
		r := p.records[i]
		if r.Start >= end {
			break
		}
		return true
	}
	return false
}

func (p *PMM) insert(rec Record) {
	i := sort.Search(len(p.records), func(i int) bool { return p.records[i].Start >= rec.Start })
	p.records = append(p.records, Record{})
	copy(p.records[i+1:], p.records[i:])
	p.records[i] = rec
}

// Allocate serves `bytes` rounded up to a page from the first usable gap
// that fits, scanning the sorted table for an interior gap before extending
// past the last allocation into the next usable region, per spec.md §4.1.
// It returns (0, false) on out-of-capacity or no-gap-found; it never panics.
func (p *PMM) Allocate(bytes uint64, owner defs.Pid_t) (uint64, bool) {
	if bytes == 0 {
		return 0, false
	}
	pages := (bytes + PageSize - 1) / PageSize
	size := pages * PageSize

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.records) >= maxRecords {
		klog.Printf("pmm", "allocate: out of record capacity")
		return 0, false
	}

	candidate, ok := p.findGap(size)
	if !ok {
		klog.Printf("pmm", "allocate: no gap >= %d bytes", size)
		return 0, false
	}

	p.zeroer.Zero(candidate, size)
	p.insert(Record{Owner: owner, Start: candidate, Pages: pages, InUse: true})
	return candidate, true
}

// findGap returns the first page-aligned address >= reservedBelow where a
// `size`-byte range fits inside a usable region without overlapping a live
// record: first an interior gap between/before existing records, else a
// fresh extension past the last record into the next usable region.
func (p *PMM) findGap(size uint64) (uint64, bool) {
	prevEnd := roundup(p.reservedBelow, PageSize)
	for _, r := range p.records {
		if r.Start > prevEnd && p.inUsable(prevEnd, size) && !p.overlaps(prevEnd, size) {
			return prevEnd, true
		}
		if r.Start >= prevEnd {
			prevEnd = r.end()
		}
	}
	// scan upward from prevEnd through the usable regions.
	for _, reg := range p.regions {
		start := prevEnd
		if start < reg.Start {
			start = reg.Start
		}
		start = roundup(start, PageSize)
		if start+size <= reg.Start+reg.Len && !p.overlaps(start, size) {
			return start, true
		}
	}
	return 0, false
}

// Reserve marks [phys, phys+pages*PageSize) as permanently allocated to the
// kernel (owner 0), e.g. for the framebuffer or early page tables. It fails
// if the range is not entirely usable or already overlaps a live record.
func (p *PMM) Reserve(phys uint64, pages uint64) bool {
	size := pages * PageSize
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.inUsable(phys, size) || p.overlaps(phys, size) {
		return false
	}
	if len(p.records) >= maxRecords {
		return false
	}
	p.insert(Record{Owner: 0, Start: phys, Pages: pages, InUse: true})
	return true
}

// Free zeros and releases the single record starting at phys. Freeing an
// address that is not the start of a live record is a no-op, matching
// biscuit's defensive free_by_pid scan (a caller double-freeing a sub-range
// should not corrupt the table).
func (p *PMM) Free(phys uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range p.records {
		if r.Start == phys {
			p.zeroer.Zero(r.Start, r.Pages*PageSize)
			p.records = append(p.records[:i], p.records[i+1:]...)
			return
		}
	}
}

// FreeByPid releases every record owned by pid: an exact (process, tag)
// match, or every record for the process when pid's sub-tag is zero (spec.md
// §3's two-level PID key, convention documented in defs.Pid_t).
func (p *PMM) FreeByPid(pid defs.Pid_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	wholeProcess := pid.Tag() == 0
	kept := p.records[:0]
	for _, r := range p.records {
		match := false
		if wholeProcess {
			match = r.Owner.SameProcess(pid)
		} else {
			match = r.Owner == pid
		}
		if match {
			p.zeroer.Zero(r.Start, r.Pages*PageSize)
			continue
		}
		kept = append(kept, r)
	}
	p.records = kept
}

// Usage reports total bytes currently attributed to pid, using the same
// whole-process-if-tag-zero matching rule as FreeByPid.
func (p *PMM) Usage(pid defs.Pid_t) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	wholeProcess := pid.Tag() == 0
	var total uint64
	for _, r := range p.records {
		match := r.Owner == pid
		if wholeProcess {
			match = r.Owner.SameProcess(pid)
		}
		if match {
			total += r.Pages * PageSize
		}
	}
	return total
}

// Snapshot returns a copy of the live record table, for tests and the
// invariant checks in spec.md §8 #1.
func (p *PMM) Snapshot() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Record(nil), p.records...)
}
