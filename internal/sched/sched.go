// Package sched implements the round-robin thread scheduler of spec.md
// §4.4: state transitions, sleep/wake, fork-style spawn, wait, and the
// context-switch decision (the FPU/CR3/TSS mechanics the decision feeds are
// confined to internal/interrupt, which owns the actual trap frame).
package sched

import (
	"sync"

	"kestrel/internal/defs"
	"kestrel/internal/klog"
)

// State enumerates a thread's scheduling state (spec.md §3, §4.4).
type State int

const (
	Null State = iota
	Ready
	Running
	Sleeping
	Blocked
	Zombie
	Reserved
)

func (s State) String() string {
	switch s {
	case Null:
		return "null"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	case Blocked:
		return "blocked"
	case Zombie:
		return "zombie"
	case Reserved:
		return "reserved"
	default:
		return "unknown"
	}
}

// FPUStateSize is the size of an fxsave/fxrstor area, 16-byte aligned
// (spec.md §3 Thread).
const FPUStateSize = 512

// Process is the shared state of every thread belonging to one program
// (spec.md §3 Process). The scheduler does not own the PML4 or FD table
// contents directly -- internal/vmm and internal/vfs do -- but tracks the
// reference count that decides when they are torn down.
type Process struct {
	Pid      uint32
	PML4Phys uint64
	FDTable  [16]int32 // index into the global fd table; -1 means empty
	Cwd      []byte
	TermRows, TermCols int
	HeapStart, HeapEnd uint64

	mu       sync.Mutex
	nThreads int
	waiters  []chan struct{} // closed by Exit when a thread of this process becomes a Zombie
}

func newProcess(pid uint32, pml4 uint64) *Process {
	p := &Process{Pid: pid, PML4Phys: pml4}
	for i := range p.FDTable {
		p.FDTable[i] = -1
	}
	return p
}

// Thread is one schedulable unit of execution (spec.md §3 Thread).
type Thread struct {
	Tid  defs.Tid_t
	Proc *Process // shared reference; last thread to die drops it

	KernelStackTop uint64
	UserStackTop   uint64
	SavedCPUState  uint64 // address on the kernel stack of the saved frame
	SavedFPU       [FPUStateSize]byte

	State    State
	WakeTick uint64
	ExitCode int
	Name     string

	parent *Thread
}

// Scheduler is the single-CPU round-robin scheduler singleton (spec.md §9:
// process-wide singleton with an init-once lifecycle).
type Scheduler struct {
	mu      sync.Mutex
	threads []*Thread // fixed table; index is the "slot"
	current int       // index into threads of the Running thread, or -1
	tick    uint64
}

// New returns an empty scheduler with no threads.
func New() *Scheduler {
	return &Scheduler{current: -1}
}

// Tick returns the current timer tick count.
func (s *Scheduler) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// NewProcess allocates a Process record around an already-built address
// space (internal/vmm.NewUserPML4 / internal/elfload have already run).
func NewProcess(pid uint32, pml4Phys uint64) *Process {
	return newProcess(pid, pml4Phys)
}

// SpawnUserThread creates the first thread of a process, in state Reserved
// until the caller finishes priming its user-stack/CPU-state frame and
// calls Activate. Thread-within-process creation (spec.md §4.4 "Thread
// creation ... only allocates a new kernel stack and CPU-state frame")
// should instead call SpawnSiblingThread.
func (s *Scheduler) SpawnUserThread(proc *Process, tid defs.Tid_t, name string, kstackTop, ustackTop uint64) *Thread {
	t := &Thread{
		Tid: tid, Proc: proc, Name: name,
		KernelStackTop: kstackTop, UserStackTop: ustackTop,
		State: Reserved,
	}
	proc.mu.Lock()
	proc.nThreads++
	proc.mu.Unlock()

	s.mu.Lock()
	s.threads = append(s.threads, t)
	s.mu.Unlock()
	return t
}

// SpawnSiblingThread shares parent's Proc reference and only allocates a
// fresh kernel stack/CPU-state frame, per spec.md §4.4.
func (s *Scheduler) SpawnSiblingThread(parent *Thread, tid defs.Tid_t, name string, kstackTop uint64) *Thread {
	t := &Thread{
		Tid: tid, Proc: parent.Proc, Name: name,
		KernelStackTop: kstackTop,
		State:          Reserved,
		parent:         parent,
	}
	parent.Proc.mu.Lock()
	parent.Proc.nThreads++
	parent.Proc.mu.Unlock()

	s.mu.Lock()
	s.threads = append(s.threads, t)
	s.mu.Unlock()
	return t
}

// Activate transitions a Reserved thread to Ready, per the state diagram in
// spec.md §4.4 ("Reserved --init_user--> Ready").
func (s *Scheduler) Activate(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.State != Reserved {
		panic("activate: thread not Reserved")
	}
	t.State = Ready
}

// Sleep transitions the given (Running) thread to Sleeping for `ticks`
// timer ticks: WakeTick becomes the current tick plus ticks, and Schedule
// makes the thread Ready on the first tick at or after WakeTick, never
// earlier (spec.md §5).
func (s *Scheduler) Sleep(t *Thread, ticks uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.State = Sleeping
	t.WakeTick = s.tick + ticks
}

// Block transitions t to Blocked, e.g. waiting on a child.
func (s *Scheduler) Block(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.State = Blocked
}

// Exit transitions t to Zombie with the given exit code and closes every
// channel registered in t's process's waiters list.
func (s *Scheduler) Exit(t *Thread, code int) {
	s.mu.Lock()
	t.State = Zombie
	t.ExitCode = code
	s.mu.Unlock()

	t.Proc.mu.Lock()
	waiters := t.Proc.waiters
	t.Proc.waiters = nil
	t.Proc.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

// ReapZombie removes the first Zombie thread belonging to proc from the
// thread table and returns it, or returns false if proc has none. It does
// not block and does not look at parent/child relationships.
func (s *Scheduler) ReapZombie(proc *Process) (*Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.threads {
		if t.Proc == proc && t.State == Zombie {
			s.threads = append(s.threads[:i], s.threads[i+1:]...)
			s.dropThreadLocked(t)
			return t, true
		}
	}
	return nil, false
}

func (s *Scheduler) dropThreadLocked(t *Thread) {
	t.Proc.mu.Lock()
	t.Proc.nThreads--
	last := t.Proc.nThreads == 0
	t.Proc.mu.Unlock()
	if last {
		klog.Printf("sched", "last thread of pid %d reaped; process drops", t.Proc.Pid)
	}
}

// ScheduleResult is the triple internal/interrupt's timer/yield trampoline
// installs before iretq, per spec.md §4.4.
type ScheduleResult struct {
	Next           *Thread
	SavedRSP       uint64 // the new thread's saved CPU-state pointer
	KernelStackTop uint64 // for TSS.rsp0
	PML4Phys       uint64 // CR3 target; write only when it changed
	PML4Changed    bool
	SendEOI        bool
}

// Schedule runs the four-step algorithm from spec.md §4.4: promote expired
// sleepers, record the outgoing thread's saved state, pick the next Ready
// thread by circular search from current+1, and return the switch triple.
// fromTimer controls whether the result asks the caller to send EOI.
func (s *Scheduler) Schedule(outgoing *Thread, outgoingRSP uint64, fromTimer bool) ScheduleResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tick++
	for _, t := range s.threads {
		if t.State == Sleeping && s.tick >= t.WakeTick {
			t.State = Ready
		}
	}

	if outgoing != nil {
		outgoing.SavedCPUState = outgoingRSP
		if outgoing.State == Running {
			outgoing.State = Ready
		}
	}

	n := len(s.threads)
	if n == 0 {
		return ScheduleResult{}
	}
	start := 0
	if s.current >= 0 && s.current < n {
		start = (s.current + 1) % n
	}
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		t := s.threads[idx]
		if t.State == Ready {
			prevPML4 := uint64(0)
			if outgoing != nil {
				prevPML4 = outgoing.Proc.PML4Phys
			}
			t.State = Running
			s.current = idx
			return ScheduleResult{
				Next:           t,
				SavedRSP:       t.SavedCPUState,
				KernelStackTop: t.KernelStackTop,
				PML4Phys:       t.Proc.PML4Phys,
				PML4Changed:    t.Proc.PML4Phys != prevPML4,
				SendEOI:        fromTimer,
			}
		}
	}
	// nothing ready: the idle thread (conventionally threads[0]) runs hlt,
	// modeled by the caller when Next is nil.
	return ScheduleResult{SendEOI: fromTimer}
}

// KillProcess marks every thread owned by pid's process Zombie, per spec.md
// §5 and the invariant in §8 #9. Callers (internal/vfs, internal/compositor)
// are responsible for removing the process's fds and windows; this function
// only manipulates scheduling state.
func (s *Scheduler) KillProcess(proc *Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.threads {
		if t.Proc == proc && t.State != Zombie {
			t.State = Zombie
			t.ExitCode = -1
		}
	}
}

// Threads returns a snapshot of the thread table, for tests and diagnostics.
func (s *Scheduler) Threads() []*Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Thread(nil), s.threads...)
}
