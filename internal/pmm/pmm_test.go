package pmm

import (
	"testing"

	"kestrel/internal/config"
	"kestrel/internal/defs"
)

func newTestPMM(t *testing.T) (*PMM, *SimMemory) {
	t.Helper()
	const base = 0
	const size = 64 * 1024 * 1024
	sim, err := NewSimMemory(base, size)
	if err != nil {
		t.Fatalf("NewSimMemory: %v", err)
	}
	t.Cleanup(func() { sim.Close() })
	regions := []config.MemRegion{{Start: base, Len: size}}
	return New(regions, 10*1024*1024, sim), sim
}

func TestAllocateRespectsReservedRegion(t *testing.T) {
	p, _ := newTestPMM(t)
	pid := defs.MkPid(1, 0)
	phys, ok := p.Allocate(PageSize, pid)
	if !ok {
		t.Fatal("allocate failed")
	}
	if phys < 10*1024*1024 {
		t.Fatalf("allocated below reserved boundary: %#x", phys)
	}
}

func TestAllocationsDoNotOverlap(t *testing.T) {
	p, _ := newTestPMM(t)
	pid := defs.MkPid(1, 0)
	seen := map[uint64]bool{}
	for i := 0; i < 100; i++ {
		phys, ok := p.Allocate(PageSize, pid)
		if !ok {
			t.Fatalf("allocate %d failed", i)
		}
		if seen[phys] {
			t.Fatalf("duplicate allocation at %#x", phys)
		}
		seen[phys] = true
	}
	recs := p.Snapshot()
	for i := 1; i < len(recs); i++ {
		if recs[i-1].end() > recs[i].Start {
			t.Fatalf("overlap between record %d and %d", i-1, i)
		}
	}
}

func TestFreeZeroesPages(t *testing.T) {
	p, sim := newTestPMM(t)
	pid := defs.MkPid(1, 0)
	phys, ok := p.Allocate(PageSize, pid)
	if !ok {
		t.Fatal("allocate failed")
	}
	buf := sim.Bytes(phys, PageSize)
	for i := range buf {
		buf[i] = 0xAA
	}
	p.Free(phys)
	buf = sim.Bytes(phys, PageSize)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d not zeroed after free: %#x", i, b)
		}
	}
}

func TestFreeByPidReclaimsAllSubTags(t *testing.T) {
	p, _ := newTestPMM(t)
	proc := uint32(7)
	main := defs.MkPid(proc, 0)
	threadStack := defs.MkPid(proc, 1)

	if _, ok := p.Allocate(PageSize, main); !ok {
		t.Fatal("allocate main failed")
	}
	if _, ok := p.Allocate(PageSize, threadStack); !ok {
		t.Fatal("allocate thread stack failed")
	}

	p.FreeByPid(defs.MkPid(proc, 0))

	if u := p.Usage(main); u != 0 {
		t.Fatalf("expected zero usage after free_by_pid, got %d", u)
	}
	if len(p.Snapshot()) != 0 {
		t.Fatalf("expected no live records, got %d", len(p.Snapshot()))
	}
}

func TestAllocateOutOfSpaceFailsGracefully(t *testing.T) {
	p, _ := newTestPMM(t)
	pid := defs.MkPid(1, 0)
	for {
		if _, ok := p.Allocate(PageSize, pid); !ok {
			break
		}
	}
	// must not panic; a further allocate still reports failure cleanly.
	if _, ok := p.Allocate(PageSize, pid); ok {
		t.Fatal("expected allocate to keep failing once exhausted")
	}
}
