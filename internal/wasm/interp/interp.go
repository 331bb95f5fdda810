// Package interp executes validated WASM modules (spec.md §4.11): a value
// stack shared by call frames, fuel-metered dispatch, and a resumable
// suspension point on fuel exhaustion. Like internal/wasm/parser, this
// engine is original to this module -- the retrieval pack carries no WASM
// runtime of its own to imitate; it is built the way the parser's sidetable
// was designed to be consumed: every branch instruction's SidetableIdx
// already names a resolved {PCDelta, STPDelta, PopCnt, ValCnt} entry, so the
// loop below never re-derives block nesting at run time.
package interp

import (
	"kestrel/internal/defs"
	"kestrel/internal/wasm/parser"
)

// DefaultFuel is the instruction budget handed to a fresh call when the
// caller has no more specific policy (Instantiate runs a module's start
// function with it).
const DefaultFuel = 1_000_000

// callFrame is one active function activation. Locals and the frame's own
// operand stack both live directly on the Machine's shared Stack, matching
// spec.md §3's call frame record: LocalsBase names where this frame's
// locals region begins; everything above LocalsBase+NumLocals is this
// frame's operand stack.
type callFrame struct {
	FuncAddr  int
	PC        int
	LocalsBase int
	NumLocals  int
}

// Machine is one interpreter instance bound to a Store. It is reused across
// a single threaded call chain; concurrent goroutines must use distinct
// Machines over the same Store the way internal/sched's threads share one
// process's address space but not one register file.
type Machine struct {
	Store  *Store
	Stack  []Value
	Frames []callFrame
	Fuel   int64
}

// NewMachine creates an interpreter with fuel instructions of budget.
func NewMachine(store *Store, fuel int64) *Machine {
	return &Machine{Store: store, Fuel: fuel}
}

// Snapshot captures a suspended call chain: spec.md §4.11's "function
// address, pc, stp, stack" resumption record. STP is folded away here --
// each Instr's own SidetableIdx already names its resolved entry, so the
// only state needed to resume is the frame stack and the shared value
// stack -- but Frames/Stack alone are a pure function of the suspension
// point, matching the spec's "resumption is a pure function of the
// snapshot plus fresh fuel" invariant.
type Snapshot struct {
	Frames []callFrame
	Stack  []Value
}

// RunResult is what Run returns on success, trap, or suspension.
type RunResult struct {
	Values   []Value
	Snapshot *Snapshot // non-nil only when Err == EWASMFUELEXHAUSTED
}

func (m *Machine) push(v Value)  { m.Stack = append(m.Stack, v) }
func (m *Machine) pop() Value {
	v := m.Stack[len(m.Stack)-1]
	m.Stack = m.Stack[:len(m.Stack)-1]
	return v
}
func (m *Machine) top() Value { return m.Stack[len(m.Stack)-1] }

func (m *Machine) curFrame() *callFrame { return &m.Frames[len(m.Frames)-1] }

// CallerMemory returns the linear memory of whichever module instance is
// currently calling into a host function. A HostFunc (internal/wasi's
// bridge functions) runs with its caller's frame still on m.Frames -- invoke
// never pushes a frame for a host callee -- so the top frame's FuncAddr
// names the calling module.
func (m *Machine) CallerMemory() *Memory {
	f := m.curFrame()
	fi := m.Store.Funcs[f.FuncAddr]
	return m.Store.Memories[fi.Mod.MemAddrs[0]]
}

// CallAddr invokes the function at store address addr with args already in
// left-to-right order, running to completion, trap, or fuel exhaustion.
func (m *Machine) CallAddr(addr int, args []Value) ([]Value, *Snapshot, defs.Err_t) {
	fi := m.Store.Funcs[addr]
	if fi.Host != nil {
		vals, err := fi.Host(m, args)
		return vals, nil, err
	}
	base := len(m.Stack)
	for _, a := range args {
		m.push(a)
	}
	def := fi.Def
	for _, lt := range def.Locals[def.NumParams:] {
		m.push(zeroValue(lt))
	}
	m.Frames = append(m.Frames, callFrame{FuncAddr: addr, PC: 0, LocalsBase: base, NumLocals: len(def.Locals)})
	return m.run()
}

// Resume continues a call chain suspended by fuel exhaustion, giving it a
// fresh fuel budget.
func (m *Machine) Resume(snap *Snapshot, fuel int64) ([]Value, *Snapshot, defs.Err_t) {
	m.Frames = append([]callFrame{}, snap.Frames...)
	m.Stack = append([]Value{}, snap.Stack...)
	m.Fuel = fuel
	return m.run()
}

// run executes m.Frames (the innermost/top frame first) until the frame
// stack empties (success), a trap occurs, or fuel runs out.
func (m *Machine) run() ([]Value, *Snapshot, defs.Err_t) {
	for len(m.Frames) > 0 {
		f := m.curFrame()
		fi := m.Store.Funcs[f.FuncAddr]
		body := fi.Def.Body
		st := fi.Def.Sidetable

		if f.PC >= len(body) {
			if err := m.returnFromFrame(fi); err != defs.ENONE {
				return nil, nil, err
			}
			continue
		}

		in := &body[f.PC]
		cost := fuelCost(in, m)
		if cost > m.Fuel {
			snap := &Snapshot{Frames: append([]callFrame{}, m.Frames...), Stack: append([]Value{}, m.Stack...)}
			return nil, snap, defs.EWASMFUELEXHAUSTED
		}
		m.Fuel -= cost

		switch in.Op {
		case parser.OpUnreachable:
			return nil, nil, defs.ETRAPUNREACHABLE

		case parser.OpNop, parser.OpBlock, parser.OpLoop:
			f.PC++

		case parser.OpIf:
			cond := m.pop()
			if cond.I32 == 0 {
				m.takeBranch(&st[in.SidetableIdx], f, in.SidetableIdx)
			} else {
				f.PC++
			}

		case parser.OpElse:
			// else's own SidetableIdx is always assigned by the validator
			// and always resolved: reaching it by fallthrough means the
			// true branch completed without jumping out, so it must skip
			// the false body unconditionally.
			m.takeBranch(&st[in.SidetableIdx], f, in.SidetableIdx)

		case parser.OpEnd:
			// end's own SidetableIdx, even when the validator assigned one
			// (because some branch targets this frame), names a dead entry
			// nobody ever resolves -- forward branches into this frame are
			// instead resolved directly on the branching instructions
			// themselves. Reaching an end is always a fallthrough no-op;
			// the function-return case is handled generically by the
			// pc>=len(body) check at the top of this loop.
			f.PC++

		case parser.OpBr:
			m.takeBranch(&st[in.SidetableIdx], f, in.SidetableIdx)

		case parser.OpBrIf:
			cond := m.pop()
			if cond.I32 != 0 {
				m.takeBranch(&st[in.SidetableIdx], f, in.SidetableIdx)
			} else {
				f.PC++
			}

		case parser.OpBrTable:
			sel := m.pop()
			n := uint32(sel.I32)
			idx := in.SidetableIdx
			if n < uint32(len(in.Labels)) {
				idx += int32(n)
			} else {
				idx += int32(len(in.Labels))
			}
			m.takeBranch(&st[idx], f, idx)

		case parser.OpReturn:
			if err := m.returnFromFrame(fi); err != defs.ENONE {
				return nil, nil, err
			}

		case parser.OpCall:
			callee := fi.Mod.FuncAddrs[in.Idx]
			// f.PC must advance before invoke: a module-defined callee
			// pushes a new callFrame, which can reallocate m.Frames and
			// strand f as a pointer into the old backing array.
			f.PC++
			if err := m.invoke(callee); err != defs.ENONE {
				return nil, nil, err
			}

		case parser.OpCallIndirect:
			idxVal := m.pop()
			table := m.Store.Tables[fi.Mod.TableAddrs[in.Idx2]]
			addr, terr := table.Get(idxVal.U32())
			if terr != defs.ENONE {
				return nil, nil, terr
			}
			if addr == NullRef {
				return nil, nil, defs.ETRAPINDIRECTNULLFUNC
			}
			callee := m.Store.Funcs[addr]
			wantFt := fi.Mod.Module.Types[in.Idx]
			if !sameType(callee.Type, wantFt) {
				return nil, nil, defs.ETRAPSIGNATUREMISMATCH
			}
			f.PC++
			if err := m.invoke(int(addr)); err != defs.ENONE {
				return nil, nil, err
			}

		case parser.OpDrop:
			m.pop()
			f.PC++

		case parser.OpSelect:
			cond := m.pop()
			b := m.pop()
			a := m.pop()
			if cond.I32 != 0 {
				m.push(a)
			} else {
				m.push(b)
			}
			f.PC++

		case parser.OpLocalGet:
			m.push(m.Stack[f.LocalsBase+int(in.Idx)])
			f.PC++
		case parser.OpLocalSet:
			m.Stack[f.LocalsBase+int(in.Idx)] = m.pop()
			f.PC++
		case parser.OpLocalTee:
			m.Stack[f.LocalsBase+int(in.Idx)] = m.top()
			f.PC++

		case parser.OpGlobalGet:
			m.push(m.Store.Globals[fi.Mod.GlobalAddrs[in.Idx]].Value)
			f.PC++
		case parser.OpGlobalSet:
			m.Store.Globals[fi.Mod.GlobalAddrs[in.Idx]].Value = m.pop()
			f.PC++

		case parser.OpI32Const:
			m.push(ValI32(in.I32))
			f.PC++
		case parser.OpI64Const:
			m.push(ValI64(in.I64))
			f.PC++
		case parser.OpF32Const:
			m.push(ValF32(in.F32))
			f.PC++
		case parser.OpF64Const:
			m.push(ValF64(in.F64))
			f.PC++

		case parser.OpMemorySize:
			mem := m.Store.Memories[fi.Mod.MemAddrs[0]]
			m.push(ValI32(int32(mem.Pages())))
			f.PC++
		case parser.OpMemoryGrow:
			mem := m.Store.Memories[fi.Mod.MemAddrs[0]]
			delta := m.pop()
			m.push(ValI32(int32(mem.Grow(delta.U32()))))
			f.PC++

		case parser.OpMemoryInit:
			if err := m.execMemoryInit(fi, in); err != defs.ENONE {
				return nil, nil, err
			}
			f.PC++
		case parser.OpDataDrop:
			fi.Mod.dataDropped[int(in.Idx)] = true
			f.PC++
		case parser.OpMemoryCopy:
			if err := m.execMemoryCopy(fi); err != defs.ENONE {
				return nil, nil, err
			}
			f.PC++
		case parser.OpMemoryFill:
			if err := m.execMemoryFill(fi); err != defs.ENONE {
				return nil, nil, err
			}
			f.PC++

		default:
			if isLoadStoreOp(in.Op) {
				if err := m.execLoadStore(fi, in); err != defs.ENONE {
					return nil, nil, err
				}
				f.PC++
				break
			}
			if err := m.execNumeric(in.Op); err != defs.ENONE {
				return nil, nil, err
			}
			f.PC++
		}
	}
	return append([]Value{}, m.Stack...), nil, defs.ENONE
}

// invoke pushes a new frame for a module-defined function, or calls a host
// function directly, popping its arguments off the current frame's operand
// stack first either way.
func (m *Machine) invoke(addr int) defs.Err_t {
	fi := m.Store.Funcs[addr]
	numParams := len(fi.Type.Params)
	if fi.Host != nil {
		args := make([]Value, numParams)
		for i := numParams - 1; i >= 0; i-- {
			args[i] = m.pop()
		}
		results, err := fi.Host(m, args)
		if err != defs.ENONE {
			return err
		}
		for _, r := range results {
			m.push(r)
		}
		return defs.ENONE
	}
	base := len(m.Stack) - numParams
	def := fi.Def
	for _, lt := range def.Locals[def.NumParams:] {
		m.push(zeroValue(lt))
	}
	m.Frames = append(m.Frames, callFrame{FuncAddr: addr, PC: 0, LocalsBase: base, NumLocals: len(def.Locals)})
	return defs.ENONE
}

// returnFromFrame pops the top len(results) values as the frame's return,
// discards the frame's locals and operand stack, and resumes the caller
// (or leaves them as the final result if this was the outermost frame).
func (m *Machine) returnFromFrame(fi *FuncInstance) defs.Err_t {
	n := len(fi.Type.Results)
	results := make([]Value, n)
	copy(results, m.Stack[len(m.Stack)-n:])
	f := m.Frames[len(m.Frames)-1]
	m.Stack = m.Stack[:f.LocalsBase]
	for _, r := range results {
		m.push(r)
	}
	m.Frames = m.Frames[:len(m.Frames)-1]
	return defs.ENONE
}

// takeBranch applies a resolved sidetable entry: keep the top ValCnt
// values, discard the PopCnt values beneath them, then jump.
func (m *Machine) takeBranch(e *parser.SidetableEntry, f *callFrame, fromIdx int32) {
	n := int(e.ValCnt)
	top := len(m.Stack)
	kept := append([]Value{}, m.Stack[top-n:]...)
	m.Stack = m.Stack[:top-n-int(e.PopCnt)]
	for _, v := range kept {
		m.push(v)
	}
	f.PC += int(e.PCDelta)
}

func sameType(a, b parser.FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}

func isLoadStoreOp(op parser.Opcode) bool {
	return op >= parser.OpI32Load && op <= parser.OpI64Store32
}

// fuelCost charges 1 per instruction, plus the byte count a bulk-memory op
// is about to move -- peeked off the top of the stack without popping it,
// per spec.md §4.11's fuel-metering rule for memory.init/copy/fill.
func fuelCost(in *parser.Instr, m *Machine) int64 {
	switch in.Op {
	case parser.OpMemoryInit, parser.OpMemoryCopy, parser.OpMemoryFill:
		return 1 + int64(uint32(m.top().I32))
	default:
		return 1
	}
}
