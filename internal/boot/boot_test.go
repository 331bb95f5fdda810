package boot

import (
	"testing"

	"kestrel/internal/config"
	"kestrel/internal/defs"
	"kestrel/internal/pmm"
	"kestrel/internal/sched"
)

type nopDisassembler struct{}

func (nopDisassembler) Disassemble(code []byte, pc uint64) string { return "" }

func newTestKernel(t *testing.T) (*Kernel, *pmm.SimMemory) {
	t.Helper()
	const size = 64 * 1024 * 1024
	sim, err := pmm.NewSimMemory(0, size)
	if err != nil {
		t.Fatalf("NewSimMemory: %v", err)
	}
	t.Cleanup(func() { sim.Close() })

	k := New()
	tunables := config.Default()
	tunables.ReservedBelow = 1 * 1024 * 1024
	if err := k.Init([]config.MemRegion{{Start: 0, Len: size}}, tunables, sim, nopDisassembler{}); err != defs.ENONE {
		t.Fatalf("Init: %v", err)
	}
	return k, sim
}

func TestInitWiresEverySingletonOnce(t *testing.T) {
	k, _ := newTestKernel(t)
	if !k.Ready() {
		t.Fatal("expected Ready() after Init")
	}
	if k.PMM == nil || k.VMM == nil || k.Sched == nil || k.IDT == nil || k.Global == nil || k.Compositor == nil {
		t.Fatalf("Init left a singleton nil: %+v", k)
	}
	if k.KernelPML4 == 0 {
		t.Fatal("expected a non-zero kernel PML4")
	}

	firstPML4 := k.KernelPML4
	if err := k.Init(nil, config.Tunables{}, nil, nil); err != defs.ENONE {
		t.Fatalf("second Init call should be a no-op, got %v", err)
	}
	if k.KernelPML4 != firstPML4 {
		t.Fatal("second Init call must not rebuild state")
	}
}

func TestNewUserAddressSpaceClonesKernelHalf(t *testing.T) {
	k, _ := newTestKernel(t)
	owner := defs.MkPid(7, 0)
	pml4, err := k.NewUserAddressSpace(owner)
	if err != defs.ENONE {
		t.Fatalf("NewUserAddressSpace: %v", err)
	}
	if pml4 == 0 {
		t.Fatal("expected a non-zero user PML4")
	}
}

func TestKillProcessReclaimsFramesAndZombifiesThreads(t *testing.T) {
	k, _ := newTestKernel(t)
	owner := defs.MkPid(9, 0)
	pml4, err := k.NewUserAddressSpace(owner)
	if err != defs.ENONE {
		t.Fatalf("NewUserAddressSpace: %v", err)
	}
	proc := sched.NewProcess(9, pml4)
	th := k.Sched.SpawnUserThread(proc, 1, "victim", 0x1000, 0x2000)
	k.Sched.Activate(th)

	if _, ok := k.PMM.Allocate(pmm.PageSize, owner); !ok {
		t.Fatal("allocate failed")
	}

	k.KillProcess(proc)

	for _, t2 := range k.Sched.Threads() {
		if t2.Proc == proc && t2.State != sched.Zombie {
			t.Fatalf("thread %v still %v after KillProcess", t2.Tid, t2.State)
		}
	}
	if usage := k.PMM.Usage(owner); usage != 0 {
		t.Fatalf("PMM.Usage(pid) after KillProcess = %d, want 0", usage)
	}
}
