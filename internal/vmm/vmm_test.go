package vmm

import (
	"testing"

	"kestrel/internal/config"
	"kestrel/internal/defs"
	"kestrel/internal/pmm"
)

func newTestVMM(t *testing.T) (*VMM, *pmm.PMM) {
	t.Helper()
	const size = 64 * 1024 * 1024
	sim, err := pmm.NewSimMemory(0, size)
	if err != nil {
		t.Fatalf("NewSimMemory: %v", err)
	}
	t.Cleanup(func() { sim.Close() })
	p := pmm.New([]config.MemRegion{{Start: 0, Len: size}}, 1*1024*1024, sim)
	return New(p, sim), p
}

func TestMapThenGetPhysRoundTrips(t *testing.T) {
	v, p := newTestVMM(t)
	owner := defs.MkPid(1, 0)
	pml4, err := v.NewUserPML4(owner)
	if err != 0 {
		t.Fatalf("NewUserPML4: %v", err)
	}
	frame, ok := p.Allocate(pmm.PageSize, owner)
	if !ok {
		t.Fatal("allocate frame failed")
	}
	const virt = 0x400000
	if err := v.Map(virt, frame, PTE_P|PTE_W|PTE_U, pml4, owner); err != 0 {
		t.Fatalf("map: %v", err)
	}
	got, flags, ok := v.GetPhys(virt, pml4)
	if !ok {
		t.Fatal("expected mapping to be present")
	}
	if got != frame {
		t.Fatalf("got phys %#x, want %#x", got, frame)
	}
	if flags&PTE_W == 0 || flags&PTE_U == 0 {
		t.Fatalf("missing expected flags: %#x", flags)
	}
}

func TestUnmapRemovesTranslation(t *testing.T) {
	v, p := newTestVMM(t)
	owner := defs.MkPid(2, 0)
	pml4, _ := v.NewUserPML4(owner)
	frame, _ := p.Allocate(pmm.PageSize, owner)
	const virt = 0x500000
	v.Map(virt, frame, PTE_P|PTE_W|PTE_U, pml4, owner)
	v.Unmap(virt, pml4)
	if _, _, ok := v.GetPhys(virt, pml4); ok {
		t.Fatal("expected unmapped translation to miss")
	}
}

func TestUserMappingAboveHalfLimitRejected(t *testing.T) {
	v, p := newTestVMM(t)
	owner := defs.MkPid(3, 0)
	pml4, _ := v.NewUserPML4(owner)
	frame, _ := p.Allocate(pmm.PageSize, owner)
	if err := v.Map(UserHalfLimit, frame, PTE_P|PTE_U, pml4, owner); err != defs.EINVALIDADDR {
		t.Fatalf("expected EINVALIDADDR, got %v", err)
	}
}

func TestNewUserPML4CopiesKernelHalf(t *testing.T) {
	v, p := newTestVMM(t)
	kowner := defs.MkPid(0, 0)
	kernelPML4, _ := p.Allocate(pmm.PageSize, kowner)
	v.SetKernelPML4(kernelPML4)

	kframe, _ := p.Allocate(pmm.PageSize, kowner)
	const kvirt = uint64(1) << 47 // first high-half address
	if err := v.Map(kvirt, kframe, PTE_P|PTE_W, kernelPML4, kowner); err != 0 {
		t.Fatalf("map kernel half: %v", err)
	}

	owner := defs.MkPid(4, 0)
	userPML4, _ := v.NewUserPML4(owner)
	got, _, ok := v.GetPhys(kvirt, userPML4)
	if !ok || got != kframe {
		t.Fatalf("expected cloned kernel-half mapping, got %#x ok=%v", got, ok)
	}
}
