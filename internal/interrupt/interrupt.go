// Package interrupt models the IDT, CPU-exception routing, the PIC/timer
// IRQ plumbing, and the syscall fast-entry dispatch of spec.md §4.3. The
// trap frame itself (CPUState) is a plain struct rather than a raw stack
// pointer because kestrel's hosted build has no assembly prologue to push
// one; the freestanding build installs real IDT gates whose prologues push
// registers in exactly this field order before calling Dispatch, matching
// the contract spec.md §4.3 describes ("the callee returns a (possibly
// switched) stack pointer that the epilogue installs before iretq").
package interrupt

import (
	"kestrel/internal/defs"
	"kestrel/internal/klog"
	"kestrel/internal/sched"
)

// CPUState is the trap frame: general-purpose registers in the fixed order
// the assembly prologue would push them, followed by the hardware-pushed
// interrupt frame. spec.md §3: "The saved CPU state lives on the kernel
// stack at the top minus a fixed-size frame" -- CPUState is that frame.
type CPUState struct {
	R15, R14, R13, R12, R11, R10, R9, R8 uint64
	RBP, RDI, RSI, RDX, RCX, RBX, RAX    uint64

	TrapNo    uint64
	ErrorCode uint64

	// hardware-pushed on any interrupt/exception/iretq frame
	RIP, CS, RFLAGS, RSP, SS uint64
}

// Vector numbers used by kestrel, matching the x86-64 architectural
// exception vectors and the PIC remap in spec.md §4.3.
const (
	VecDivideError   = 0
	VecDebug         = 1
	VecNMI           = 2
	VecBreakpoint    = 3
	VecOverflow      = 4
	VecInvalidOpcode = 6
	VecDoubleFault   = 8
	VecGPFault       = 13
	VecPageFault     = 14

	PICMasterBase = 32
	VecTimer      = PICMasterBase + 0
	VecKeyboard   = PICMasterBase + 1
	PICSlaveBase  = 40
	VecMouse      = PICSlaveBase + 4 // IRQ12, cascaded through IRQ2
)

// Gate describes one IDT entry's selector/DPL/IST configuration.
type Gate struct {
	Present  bool
	Selector uint16
	DPL      uint8
	IST      uint8 // 0 means "no IST, use the current stack"
}

// Handler processes a trap and returns the CPUState to resume into -- the
// same state for a simple exception, or a different thread's state when
// the handler (the timer tick, a yield) asked the scheduler to switch.
type Handler func(*CPUState) *CPUState

// Disassembler renders the bytes at an instruction pointer for fault
// diagnostics; internal/diag implements it with golang.org/x/arch/x86/x86asm.
type Disassembler interface {
	Disassemble(code []byte, pc uint64) string
}

// IDT is the 256-entry interrupt descriptor table plus kestrel's dispatch
// bookkeeping: PIC remap state, the scheduler it drives, and the code
// reader used to disassemble faulting instructions.
type IDT struct {
	gates    [256]Gate
	handlers [256]Handler

	sched *sched.Scheduler
	dis   Disassembler
	code  func(pid uint32, virt uint64, n int) []byte // best-effort code reader for diag

	picMasterMask uint8
	picSlaveMask  uint8
}

// New installs the fixed gate-selector (0x28) / ring-0 DPL default for all
// 256 vectors, dedicates IST1-3 to double-fault/GP/page-fault, and exposes
// the timer vector at ring 3 so user code can yield via `int`, per spec.md
// §4.3.
func New(s *sched.Scheduler, dis Disassembler) *IDT {
	idt := &IDT{sched: s, dis: dis}
	for i := range idt.gates {
		idt.gates[i] = Gate{Present: true, Selector: 0x28, DPL: 0}
	}
	idt.gates[VecDoubleFault].IST = 1
	idt.gates[VecGPFault].IST = 2
	idt.gates[VecPageFault].IST = 3
	idt.gates[VecTimer].DPL = 3
	return idt
}

// SetCodeReader installs the best-effort code-byte accessor used only for
// fault diagnostics (internal/diag); leaving it nil just skips disassembly.
func (idt *IDT) SetCodeReader(f func(pid uint32, virt uint64, n int) []byte) {
	idt.code = f
}

// Register installs a handler for a vector.
func (idt *IDT) Register(vector int, h Handler) {
	idt.handlers[vector] = h
}

// Gate returns the configured gate for inspection/tests.
func (idt *IDT) Gate(vector int) Gate { return idt.gates[vector] }

// Dispatch routes a trapped CPUState to its registered handler, exactly
// mirroring the prologue/callee/epilogue contract of spec.md §4.3. Traps
// with no registered handler log once and resume the same state (never
// panics at runtime, per §7).
func (idt *IDT) Dispatch(frame *CPUState) *CPUState {
	h := idt.handlers[frame.TrapNo]
	if h == nil {
		klog.Printf("interrupt", "unhandled vector %d at rip=%#x", frame.TrapNo, frame.RIP)
		return frame
	}
	return h(frame)
}

// RemapPIC places the master PIC at vector 32 and the slave at 40, and
// unmasks IRQ0 (timer), IRQ1 (keyboard) and IRQ12 (mouse, via the IRQ2
// cascade), per spec.md §4.3.
func (idt *IDT) RemapPIC() {
	idt.picMasterMask = ^uint8(0x01 | 0x02 | 0x04) // IRQ0, IRQ1, cascade(IRQ2)
	idt.picSlaveMask = ^uint8(0x10)                // IRQ12 (bit 4 of slave)
}

// EOI issues end-of-interrupt to the correct controller(s): both when the
// IRQ came from the slave (>= PICSlaveBase), master only otherwise.
type EOISink interface {
	SendEOI(master, slave bool)
}

func (idt *IDT) EOIFor(vector int, sink EOISink) {
	if vector >= PICSlaveBase {
		sink.SendEOI(true, true)
	} else {
		sink.SendEOI(true, false)
	}
}

// TimerHandler builds the Handler for VecTimer: it calls the scheduler's
// Schedule and then onSwitch (when non-nil) with the result, and returns
// the interrupted frame unchanged; it does not return the next thread's
// saved state.
func TimerHandler(s *sched.Scheduler, onSwitch func(res sched.ScheduleResult)) Handler {
	return func(frame *CPUState) *CPUState {
		res := s.Schedule(nil, 0, true)
		if onSwitch != nil {
			onSwitch(res)
		}
		_ = frame
		return frame
	}
}

// PageFaultHandler builds the Handler for VecPageFault: on an unresolvable
// fault it disassembles the faulting instruction (when a code reader and
// disassembler are configured) for diagnostics, then reports
// InvalidAddress to the caller via resolve.
func PageFaultHandler(idt *IDT, pid uint32, resolve func(cr2 uint64, errcode uint64) defs.Err_t) Handler {
	return func(frame *CPUState) *CPUState {
		cr2 := frame.RSP // placeholder slot for CR2 in the hosted model
		err := resolve(cr2, frame.ErrorCode)
		if err != defs.ENONE && idt.dis != nil && idt.code != nil {
			code := idt.code(pid, frame.RIP, 16)
			if code != nil {
				klog.Printf("interrupt", "page fault at rip=%#x: %s", frame.RIP, idt.dis.Disassemble(code, frame.RIP))
			}
		}
		return frame
	}
}
