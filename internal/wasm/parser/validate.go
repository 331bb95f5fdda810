package parser

import "kestrel/internal/defs"

// validator performs the single validation walk spec.md §4.10 describes:
// one pass per function body, maintaining a typed value stack and a control
// stack of open blocks, emitting one Instr per opcode and one
// SidetableEntry at every branch point (br, br_if, each br_table target,
// and the else/end that closes a labeled block).
type validator struct {
	m                *Module
	numImportedFuncs int

	locals []ValueType
	valStack []ValueType
	unreachable bool // current position is unreachable (after br/return/unreachable)

	body      []Instr
	sidetable []SidetableEntry
}

type fixup struct {
	instrIdx     int
	sidetableIdx int
}

type ctrlFrame struct {
	op      Opcode
	params  []ValueType
	results []ValueType
	height  int // valStack length at frame entry

	startInstrIdx     int // pc of the first instruction inside the block (loop branch target)
	startSidetableIdx int // sidetable length at frame entry (loop branch target)

	// fixups collects every sidetable entry that must land "right after this
	// frame's closing end": real forward branches (br/br_if/br_table) AND,
	// for an if frame, the else clause's own fallthrough-skip entry (or, if
	// no else is ever seen, the if's own false-branch entry itself).
	fixups      []fixup
	elseSeen    bool
	unreachableAtEntry bool

	// ifInstrIdx/ifFalseIdx are only meaningful when op == OpIf: ifFalseIdx
	// indexes the sidetable entry the interpreter consults when the popped
	// condition is zero. It is tentatively registered in fixups (targeting
	// "after end", the no-else case) and re-targeted to "start of else body"
	// if an else clause shows up.
	ifInstrIdx int
	ifFalseIdx int32
}

func (v *validator) validateFunc(ft FuncType, code []byte) (*Func, defs.Err_t) {
	r := &byteReader{data: code}
	numParams := len(ft.Params)
	v.locals = append([]ValueType{}, ft.Params...)

	numLocalDecls, err := r.u32()
	if err != defs.ENONE {
		return nil, err
	}
	for i := uint32(0); i < numLocalDecls; i++ {
		count, err := r.u32()
		if err != defs.ENONE {
			return nil, err
		}
		vt, err := r.valueType()
		if err != defs.ENONE {
			return nil, err
		}
		for j := uint32(0); j < count; j++ {
			v.locals = append(v.locals, vt)
		}
	}

	v.valStack = nil
	v.unreachable = false
	v.body = nil
	v.sidetable = nil

	ctrl := []*ctrlFrame{{op: OpBlock, results: ft.Results, height: 0, startInstrIdx: 0, startSidetableIdx: 0, ifFalseIdx: -1}}

	for !r.eof() {
		opByte, err := r.byte()
		if err != defs.ENONE {
			return nil, err
		}
		op := Opcode(opByte)
		if op == OpPrefixFC {
			sub, err := r.u32()
			if err != defs.ENONE {
				return nil, err
			}
			op = fcBase + Opcode(sub)
		}

		instr := Instr{Op: op, SidetableIdx: -1}
		frame := ctrl[len(ctrl)-1]

		switch op {
		case OpUnreachable:
			v.markUnreachable()
		case OpNop:

		case OpBlock, OpLoop, OpIf:
			bt, err := v.readBlockType(r)
			if err != defs.ENONE {
				return nil, err
			}
			if op == OpIf {
				if err := v.pop(I32); err != defs.ENONE {
					return nil, err
				}
			}
			for _, p := range bt.Params {
				if err := v.pop(p); err != defs.ENONE {
					return nil, err
				}
			}
			nf := &ctrlFrame{op: op, params: bt.Params, results: bt.Results, height: len(v.valStack), ifFalseIdx: -1}
			v.pushN(bt.Params)

			if op == OpIf {
				// The if's own sidetable entry: consulted by the
				// interpreter when the popped condition is zero. Its
				// PCDelta/STPDelta are left unresolved until either an
				// else clause (re-targets it to "start of false body")
				// or this frame's end (tentative fixup below, "after
				// end", the no-else case).
				nf.ifInstrIdx = len(v.body)
				nf.ifFalseIdx = int32(len(v.sidetable))
				instr.SidetableIdx = nf.ifFalseIdx
				v.sidetable = append(v.sidetable, SidetableEntry{ValCnt: uint32(len(bt.Params))})
				nf.fixups = append(nf.fixups, fixup{instrIdx: nf.ifInstrIdx, sidetableIdx: int(nf.ifFalseIdx)})
			}

			v.body = append(v.body, instr)
			nf.startInstrIdx = len(v.body)
			nf.startSidetableIdx = len(v.sidetable)
			ctrl = append(ctrl, nf)
			continue // instr already appended

		case OpElse:
			if frame.op != OpIf {
				return nil, defs.EWASMVALIDATION
			}
			if err := v.checkFrameExit(frame); err != defs.ENONE {
				return nil, err
			}
			idx := int32(len(v.sidetable))
			instr.SidetableIdx = idx
			v.sidetable = append(v.sidetable, SidetableEntry{ValCnt: uint32(len(frame.results))})
			elseInstrIdx := len(v.body)
			v.body = append(v.body, instr)

			// The if's false-branch jump lands here (start of the false
			// body), not at the frame's end; drop its tentative
			// end-fixup and resolve it directly.
			frame.fixups = removeFixup(frame.fixups, int(frame.ifFalseIdx))
			fe := &v.sidetable[frame.ifFalseIdx]
			fe.PCDelta = int32(len(v.body)) - int32(frame.ifInstrIdx)
			fe.STPDelta = int32(len(v.sidetable)) - (frame.ifFalseIdx + 1)

			// The true branch, having fallen through to here, must skip
			// the false body entirely once the frame closes.
			frame.fixups = append(frame.fixups, fixup{instrIdx: elseInstrIdx, sidetableIdx: int(idx)})
			frame.elseSeen = true
			v.valStack = v.valStack[:frame.height]
			v.pushN(frame.params)
			v.unreachable = false
			continue

		case OpEnd:
			if err := v.checkFrameExit(frame); err != defs.ENONE {
				return nil, err
			}
			if frame.op == OpIf && !frame.elseSeen {
				// no-else if: params must equal results for the implicit else.
				if len(frame.params) != len(frame.results) {
					return nil, defs.EWASMVALIDATION
				}
				for i := range frame.params {
					if frame.params[i] != frame.results[i] {
						return nil, defs.EWASMVALIDATION
					}
				}
			}
			idx := int32(-1)
			if len(frame.fixups) > 0 {
				idx = int32(len(v.sidetable))
				v.sidetable = append(v.sidetable, SidetableEntry{})
			}
			instr.SidetableIdx = idx
			v.body = append(v.body, instr)
			if idx >= 0 {
				v.resolveFixups(frame, len(v.body))
			}
			ctrl = ctrl[:len(ctrl)-1]
			if len(ctrl) == 0 {
				v.valStack = v.valStack[:frame.height]
				v.pushN(frame.results)
				continue
			}
			v.valStack = v.valStack[:frame.height]
			v.pushN(frame.results)
			v.unreachable = false
			continue

		case OpBr:
			depth, err := r.u32()
			if err != defs.ENONE {
				return nil, err
			}
			instr.Idx = depth
			if err := v.emitBranch(&instr, ctrl, depth); err != defs.ENONE {
				return nil, err
			}
			v.body = append(v.body, instr)
			v.markUnreachable()
			continue

		case OpBrIf:
			depth, err := r.u32()
			if err != defs.ENONE {
				return nil, err
			}
			instr.Idx = depth
			if err := v.pop(I32); err != defs.ENONE {
				return nil, err
			}
			if err := v.emitBranch(&instr, ctrl, depth); err != defs.ENONE {
				return nil, err
			}
			v.body = append(v.body, instr)
			continue

		case OpBrTable:
			n, err := r.u32()
			if err != defs.ENONE {
				return nil, err
			}
			labels := make([]uint32, n)
			for i := range labels {
				if labels[i], err = r.u32(); err != defs.ENONE {
					return nil, err
				}
			}
			def, err := r.u32()
			if err != defs.ENONE {
				return nil, err
			}
			if err := v.pop(I32); err != defs.ENONE {
				return nil, err
			}
			instr.Labels = labels
			instr.Default = def
			base := int32(len(v.sidetable))
			instr.SidetableIdx = base
			for _, d := range append(append([]uint32{}, labels...), def) {
				if err := v.emitBranch(&instr, ctrl, d); err != defs.ENONE {
					return nil, err
				}
			}
			v.body = append(v.body, instr)
			v.markUnreachable()
			continue

		case OpReturn:
			outer := ctrl[0]
			if err := v.checkLabelTypes(outer.results); err != defs.ENONE {
				return nil, err
			}
			v.body = append(v.body, instr)
			v.markUnreachable()
			continue

		case OpCall:
			idx, err := r.u32()
			if err != defs.ENONE {
				return nil, err
			}
			if int(idx) >= len(v.m.FuncTypeIdx) {
				return nil, defs.EWASMVALIDATION
			}
			ft := v.m.Types[v.m.FuncTypeIdx[idx]]
			for i := len(ft.Params) - 1; i >= 0; i-- {
				if err := v.pop(ft.Params[i]); err != defs.ENONE {
					return nil, err
				}
			}
			v.pushN(ft.Results)
			instr.Idx = idx

		case OpCallIndirect:
			typeIdx, err := r.u32()
			if err != defs.ENONE {
				return nil, err
			}
			tableIdx, err := r.u32()
			if err != defs.ENONE {
				return nil, err
			}
			if int(typeIdx) >= len(v.m.Types) {
				return nil, defs.EWASMVALIDATION
			}
			if err := v.pop(I32); err != defs.ENONE {
				return nil, err
			}
			ft := v.m.Types[typeIdx]
			for i := len(ft.Params) - 1; i >= 0; i-- {
				if err := v.pop(ft.Params[i]); err != defs.ENONE {
					return nil, err
				}
			}
			v.pushN(ft.Results)
			instr.Idx = typeIdx
			instr.Idx2 = tableIdx

		case OpDrop:
			if err := v.popAny(); err != defs.ENONE {
				return nil, err
			}

		case OpSelect:
			if err := v.pop(I32); err != defs.ENONE {
				return nil, err
			}
			b, err := v.popAnyType()
			if err != defs.ENONE {
				return nil, err
			}
			if err := v.pop(b); err != defs.ENONE {
				return nil, err
			}
			v.push(b)

		case OpLocalGet, OpLocalSet, OpLocalTee:
			idx, err := r.u32()
			if err != defs.ENONE {
				return nil, err
			}
			if int(idx) >= len(v.locals) {
				return nil, defs.EWASMVALIDATION
			}
			instr.Idx = idx
			lt := v.locals[idx]
			switch op {
			case OpLocalGet:
				v.push(lt)
			case OpLocalSet:
				if err := v.pop(lt); err != defs.ENONE {
					return nil, err
				}
			case OpLocalTee:
				if err := v.pop(lt); err != defs.ENONE {
					return nil, err
				}
				v.push(lt)
			}

		case OpGlobalGet, OpGlobalSet:
			idx, err := r.u32()
			if err != defs.ENONE {
				return nil, err
			}
			if int(idx) >= len(v.m.Globals) {
				return nil, defs.EWASMVALIDATION
			}
			instr.Idx = idx
			g := v.m.Globals[idx]
			if op == OpGlobalGet {
				v.push(g.Type.Type)
			} else {
				if !g.Type.Mutable {
					return nil, defs.EWASMVALIDATION
				}
				if err := v.pop(g.Type.Type); err != defs.ENONE {
					return nil, err
				}
			}

		case OpMemorySize:
			if _, err := r.byte(); err != defs.ENONE { // memidx reserved byte
				return nil, err
			}
			v.push(I32)

		case OpMemoryGrow:
			if _, err := r.byte(); err != defs.ENONE {
				return nil, err
			}
			if err := v.pop(I32); err != defs.ENONE {
				return nil, err
			}
			v.push(I32)

		case OpI32Const:
			if instr.I32, err = r.i32(); err != defs.ENONE {
				return nil, err
			}
			v.push(I32)
		case OpI64Const:
			if instr.I64, err = r.i64(); err != defs.ENONE {
				return nil, err
			}
			v.push(I64)
		case OpF32Const:
			if instr.F32, err = r.f32(); err != defs.ENONE {
				return nil, err
			}
			v.push(F32)
		case OpF64Const:
			if instr.F64, err = r.f64(); err != defs.ENONE {
				return nil, err
			}
			v.push(F64)

		case fcBase + 8: // memory.init
			segIdx, err := r.u32()
			if err != defs.ENONE {
				return nil, err
			}
			if _, err := r.byte(); err != defs.ENONE {
				return nil, err
			}
			instr.Idx = segIdx
			if err := v.pop(I32); err != defs.ENONE {
				return nil, err
			}
			if err := v.pop(I32); err != defs.ENONE {
				return nil, err
			}
			if err := v.pop(I32); err != defs.ENONE {
				return nil, err
			}
		case fcBase + 9: // data.drop
			segIdx, err := r.u32()
			if err != defs.ENONE {
				return nil, err
			}
			instr.Idx = segIdx
		case fcBase + 10, fcBase + 11: // memory.copy, memory.fill
			if op == fcBase+10 {
				if _, err := r.byte(); err != defs.ENONE {
					return nil, err
				}
			}
			if _, err := r.byte(); err != defs.ENONE {
				return nil, err
			}
			if err := v.pop(I32); err != defs.ENONE {
				return nil, err
			}
			if err := v.pop(I32); err != defs.ENONE {
				return nil, err
			}
			if err := v.pop(I32); err != defs.ENONE {
				return nil, err
			}

		default:
			if isLoadStore(op) {
				align, err := r.u32()
				if err != defs.ENONE {
					return nil, err
				}
				offset, err := r.u32()
				if err != defs.ENONE {
					return nil, err
				}
				instr.Align = align
				instr.Offset = offset
				if err := v.applyLoadStore(op); err != defs.ENONE {
					return nil, err
				}
				break
			}
			if sig, ok := numericSignature(op); ok {
				for i := len(sig.pops) - 1; i >= 0; i-- {
					if err := v.pop(sig.pops[i]); err != defs.ENONE {
						return nil, err
					}
				}
				if sig.hasPush {
					v.push(sig.push)
				}
				break
			}
			return nil, defs.EWASMVALIDATION
		}
		v.body = append(v.body, instr)
	}

	if len(ctrl) != 0 {
		return nil, defs.EWASMVALIDATION
	}

	return &Func{
		Locals:    v.locals,
		NumParams: numParams,
		Body:      v.body,
		Sidetable: v.sidetable,
	}, defs.ENONE
}

func (v *validator) readBlockType(r *byteReader) (FuncType, defs.Err_t) {
	b, err := r.byte()
	if err != defs.ENONE {
		return FuncType{}, err
	}
	if b == 0x40 {
		return FuncType{}, defs.ENONE
	}
	switch ValueType(b) {
	case I32, I64, F32, F64, FuncRef, ExternRef:
		return FuncType{Results: []ValueType{ValueType(b)}}, defs.ENONE
	}
	// Multi-value block type: b was the first LEB128 byte of a signed s33
	// type index. Re-decode as a signed index by rewinding one byte.
	r.pos--
	idx, err := r.i64()
	if err != defs.ENONE {
		return FuncType{}, err
	}
	if idx < 0 || int(idx) >= len(v.m.Types) {
		return FuncType{}, defs.EWASMVALIDATION
	}
	return v.m.Types[idx], defs.ENONE
}

func (v *validator) markUnreachable() {
	v.unreachable = true
}

func (v *validator) push(t ValueType) { v.valStack = append(v.valStack, t) }

func (v *validator) pushN(ts []ValueType) {
	for _, t := range ts {
		v.push(t)
	}
}

func (v *validator) pop(want ValueType) defs.Err_t {
	got, err := v.popAnyType()
	if err != defs.ENONE {
		return err
	}
	if got == 0 { // polymorphic stack underflow while unreachable
		return defs.ENONE
	}
	if got != want {
		return defs.EWASMVALIDATION
	}
	return defs.ENONE
}

func (v *validator) popAny() defs.Err_t {
	_, err := v.popAnyType()
	return err
}

// popAnyType pops one value, returning 0 when the stack is empty but the
// current position is unreachable (WASM's polymorphic stack-underflow rule).
func (v *validator) popAnyType() (ValueType, defs.Err_t) {
	if len(v.valStack) == 0 {
		if v.unreachable {
			return 0, defs.ENONE
		}
		return 0, defs.EWASMVALIDATION
	}
	t := v.valStack[len(v.valStack)-1]
	v.valStack = v.valStack[:len(v.valStack)-1]
	return t, defs.ENONE
}

// checkFrameExit validates that the stack matches the frame's declared
// results before the frame closes (at else or end).
func (v *validator) checkFrameExit(f *ctrlFrame) defs.Err_t {
	return v.checkLabelTypes(f.results)
}

func (v *validator) checkLabelTypes(types []ValueType) defs.Err_t {
	if v.unreachable {
		return defs.ENONE
	}
	if len(v.valStack) < len(types) {
		return defs.EWASMVALIDATION
	}
	base := len(v.valStack) - len(types)
	for i, t := range types {
		if v.valStack[base+i] != t {
			return defs.EWASMVALIDATION
		}
	}
	return defs.ENONE
}

// emitBranch validates a branch of the given relative depth and, for a
// forward target (block/if), registers a fixup resolved when that frame
// closes; for a backward target (loop), the sidetable entry is resolved
// immediately since the loop's start position is already known.
func (v *validator) emitBranch(instr *Instr, ctrl []*ctrlFrame, depth uint32) defs.Err_t {
	if int(depth) >= len(ctrl) {
		return defs.EWASMVALIDATION
	}
	target := ctrl[len(ctrl)-1-int(depth)]
	labelTypes := target.results
	if target.op == OpLoop {
		labelTypes = target.params
	}
	if err := v.checkLabelTypes(labelTypes); err != defs.ENONE {
		return err
	}

	popCnt := uint32(0)
	if !v.unreachable {
		popCnt = uint32(len(v.valStack)-target.height) - uint32(len(target.results))
		if target.op == OpLoop {
			popCnt = uint32(len(v.valStack)-target.height) - uint32(len(target.params))
		}
	}
	valCnt := uint32(len(labelTypes))

	entryIdx := len(v.sidetable)
	if instr.SidetableIdx < 0 {
		instr.SidetableIdx = int32(entryIdx)
	}
	instrIdx := len(v.body)

	if target.op == OpLoop {
		v.sidetable = append(v.sidetable, SidetableEntry{
			PCDelta:  int32(target.startInstrIdx) - int32(instrIdx),
			STPDelta: int32(target.startSidetableIdx) - int32(len(v.sidetable)+1),
			PopCnt:   popCnt,
			ValCnt:   valCnt,
		})
		return defs.ENONE
	}

	v.sidetable = append(v.sidetable, SidetableEntry{PopCnt: popCnt, ValCnt: valCnt})
	target.fixups = append(target.fixups, fixup{instrIdx: instrIdx, sidetableIdx: len(v.sidetable) - 1})
	return defs.ENONE
}

// resolveFixups patches every pending forward branch into f now that its
// target position (targetInstrIdx, the instruction right after the
// block-closing else/end) and current sidetable length are known.
func (v *validator) resolveFixups(f *ctrlFrame, targetInstrIdx int) {
	targetSidetableIdx := len(v.sidetable)
	for _, fx := range f.fixups {
		e := &v.sidetable[fx.sidetableIdx]
		e.PCDelta = int32(targetInstrIdx) - int32(fx.instrIdx)
		e.STPDelta = int32(targetSidetableIdx) - int32(fx.sidetableIdx+1)
	}
}

// removeFixup drops the fixup entry (if any) pointing at sidetableIdx,
// used when an if's tentative "no-else" fixup is superseded by an else
// clause resolving it directly instead.
func removeFixup(fixups []fixup, sidetableIdx int) []fixup {
	for i, fx := range fixups {
		if fx.sidetableIdx == sidetableIdx {
			return append(fixups[:i], fixups[i+1:]...)
		}
	}
	return fixups
}

func isLoadStore(op Opcode) bool {
	return op >= OpI32Load && op <= OpI64Store32
}

// applyLoadStore type-checks a load/store instruction's address and value
// operands against the memory index space (spec.md §4.10/§8: a module with
// no declared memory can still be validated as long as no load/store is
// reachable, but kestrel requires at least one memory for simplicity of the
// single-linear-memory model it implements).
func (v *validator) applyLoadStore(op Opcode) defs.Err_t {
	if len(v.m.Memories) == 0 {
		return defs.EWASMVALIDATION
	}
	switch op {
	case OpI32Load, OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U:
		if err := v.pop(I32); err != defs.ENONE {
			return err
		}
		v.push(I32)
	case OpI64Load, OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U:
		if err := v.pop(I32); err != defs.ENONE {
			return err
		}
		v.push(I64)
	case OpF32Load:
		if err := v.pop(I32); err != defs.ENONE {
			return err
		}
		v.push(F32)
	case OpF64Load:
		if err := v.pop(I32); err != defs.ENONE {
			return err
		}
		v.push(F64)
	case OpI32Store, OpI32Store8, OpI32Store16:
		if err := v.pop(I32); err != defs.ENONE {
			return err
		}
		if err := v.pop(I32); err != defs.ENONE {
			return err
		}
	case OpI64Store, OpI64Store8, OpI64Store16, OpI64Store32:
		if err := v.pop(I64); err != defs.ENONE {
			return err
		}
		if err := v.pop(I32); err != defs.ENONE {
			return err
		}
	case OpF32Store:
		if err := v.pop(F32); err != defs.ENONE {
			return err
		}
		if err := v.pop(I32); err != defs.ENONE {
			return err
		}
	case OpF64Store:
		if err := v.pop(F64); err != defs.ENONE {
			return err
		}
		if err := v.pop(I32); err != defs.ENONE {
			return err
		}
	}
	return defs.ENONE
}

type opSig struct {
	pops    []ValueType
	push    ValueType
	hasPush bool
}

// numericSignature gives the operand/result types of every comparison,
// arithmetic, and conversion opcode not otherwise handled above. Opcodes
// are contiguous ranges in the WASM encoding (opcodes.go), so a handful of
// range checks covers the whole numeric instruction space.
func numericSignature(op Opcode) (opSig, bool) {
	switch {
	case op == OpI32Eqz:
		return opSig{pops: []ValueType{I32}, push: I32, hasPush: true}, true
	case op >= OpI32Eq && op <= OpI32GeU:
		return opSig{pops: []ValueType{I32, I32}, push: I32, hasPush: true}, true
	case op == OpI64Eqz:
		return opSig{pops: []ValueType{I64}, push: I32, hasPush: true}, true
	case op >= OpI64Eq && op <= OpI64GeU:
		return opSig{pops: []ValueType{I64, I64}, push: I32, hasPush: true}, true
	case op >= OpF32Eq && op <= OpF32Ge:
		return opSig{pops: []ValueType{F32, F32}, push: I32, hasPush: true}, true
	case op >= OpF64Eq && op <= OpF64Ge:
		return opSig{pops: []ValueType{F64, F64}, push: I32, hasPush: true}, true

	case op == OpI32Clz || op == OpI32Ctz || op == OpI32Popcnt:
		return opSig{pops: []ValueType{I32}, push: I32, hasPush: true}, true
	case op >= OpI32Add && op <= OpI32Rotr:
		return opSig{pops: []ValueType{I32, I32}, push: I32, hasPush: true}, true
	case op == OpI64Clz || op == OpI64Ctz || op == OpI64Popcnt:
		return opSig{pops: []ValueType{I64}, push: I64, hasPush: true}, true
	case op >= OpI64Add && op <= OpI64Rotr:
		return opSig{pops: []ValueType{I64, I64}, push: I64, hasPush: true}, true

	case op >= OpF32Abs && op <= OpF32Sqrt:
		return opSig{pops: []ValueType{F32}, push: F32, hasPush: true}, true
	case op >= OpF32Add && op <= OpF32Copysign:
		return opSig{pops: []ValueType{F32, F32}, push: F32, hasPush: true}, true
	case op >= OpF64Abs && op <= OpF64Sqrt:
		return opSig{pops: []ValueType{F64}, push: F64, hasPush: true}, true
	case op >= OpF64Add && op <= OpF64Copysign:
		return opSig{pops: []ValueType{F64, F64}, push: F64, hasPush: true}, true

	case op == OpI32WrapI64:
		return opSig{pops: []ValueType{I64}, push: I32, hasPush: true}, true
	case op == OpI32TruncF32S || op == OpI32TruncF32U:
		return opSig{pops: []ValueType{F32}, push: I32, hasPush: true}, true
	case op == OpI32TruncF64S || op == OpI32TruncF64U:
		return opSig{pops: []ValueType{F64}, push: I32, hasPush: true}, true
	case op == OpI64ExtendI32S || op == OpI64ExtendI32U:
		return opSig{pops: []ValueType{I32}, push: I64, hasPush: true}, true
	case op == OpI64TruncF32S || op == OpI64TruncF32U:
		return opSig{pops: []ValueType{F32}, push: I64, hasPush: true}, true
	case op == OpI64TruncF64S || op == OpI64TruncF64U:
		return opSig{pops: []ValueType{F64}, push: I64, hasPush: true}, true
	case op == OpF32ConvertI32S || op == OpF32ConvertI32U:
		return opSig{pops: []ValueType{I32}, push: F32, hasPush: true}, true
	case op == OpF32ConvertI64S || op == OpF32ConvertI64U:
		return opSig{pops: []ValueType{I64}, push: F32, hasPush: true}, true
	case op == OpF32DemoteF64:
		return opSig{pops: []ValueType{F64}, push: F32, hasPush: true}, true
	case op == OpF64ConvertI32S || op == OpF64ConvertI32U:
		return opSig{pops: []ValueType{I32}, push: F64, hasPush: true}, true
	case op == OpF64ConvertI64S || op == OpF64ConvertI64U:
		return opSig{pops: []ValueType{I64}, push: F64, hasPush: true}, true
	case op == OpF64PromoteF32:
		return opSig{pops: []ValueType{F32}, push: F64, hasPush: true}, true
	case op == OpI32ReinterpretF32:
		return opSig{pops: []ValueType{F32}, push: I32, hasPush: true}, true
	case op == OpI64ReinterpretF64:
		return opSig{pops: []ValueType{F64}, push: I64, hasPush: true}, true
	case op == OpF32ReinterpretI32:
		return opSig{pops: []ValueType{I32}, push: F32, hasPush: true}, true
	case op == OpF64ReinterpretI64:
		return opSig{pops: []ValueType{I64}, push: F64, hasPush: true}, true
	case op == OpI32Extend8S || op == OpI32Extend16S:
		return opSig{pops: []ValueType{I32}, push: I32, hasPush: true}, true
	case op == OpI64Extend8S || op == OpI64Extend16S || op == OpI64Extend32S:
		return opSig{pops: []ValueType{I64}, push: I64, hasPush: true}, true

	case op == OpI32TruncSatF32S || op == OpI32TruncSatF32U:
		return opSig{pops: []ValueType{F32}, push: I32, hasPush: true}, true
	case op == OpI32TruncSatF64S || op == OpI32TruncSatF64U:
		return opSig{pops: []ValueType{F64}, push: I32, hasPush: true}, true
	case op == OpI64TruncSatF32S || op == OpI64TruncSatF32U:
		return opSig{pops: []ValueType{F32}, push: I64, hasPush: true}, true
	case op == OpI64TruncSatF64S || op == OpI64TruncSatF64U:
		return opSig{pops: []ValueType{F64}, push: I64, hasPush: true}, true
	}
	return opSig{}, false
}
