package interp

import (
	"testing"

	"kestrel/internal/defs"
	"kestrel/internal/wasm/parser"
)

// addModule builds, by hand, a module exporting a single function
// (i32, i32) -> i32 computing a+b, standing in for a compiled .wasm fixture
// since no wasm toolchain runs in this environment.
func addModule() *parser.Module {
	ft := parser.FuncType{Params: []parser.ValueType{parser.I32, parser.I32}, Results: []parser.ValueType{parser.I32}}
	fn := parser.Func{
		TypeIdx:   0,
		Locals:    []parser.ValueType{parser.I32, parser.I32},
		NumParams: 2,
		Body: []parser.Instr{
			{Op: parser.OpLocalGet, Idx: 0, SidetableIdx: -1},
			{Op: parser.OpLocalGet, Idx: 1, SidetableIdx: -1},
			{Op: parser.OpI32Add, SidetableIdx: -1},
			{Op: parser.OpEnd, SidetableIdx: -1},
		},
	}
	return &parser.Module{
		Types:       []parser.FuncType{ft},
		FuncTypeIdx: []uint32{0},
		Funcs:       []parser.Func{fn},
		StartFunc:   -1,
		DataCount:   -1,
		Exports:     []parser.Export{{Name: "add", Kind: 0x00, Idx: 0}},
	}
}

func TestCallAddFunction(t *testing.T) {
	store := &Store{}
	inst, err := Instantiate(store, addModule(), NoImports{})
	if err != defs.ENONE {
		t.Fatalf("instantiate: %v", err)
	}
	addr, err := inst.ExportedFunc("add")
	if err != defs.ENONE {
		t.Fatalf("export lookup: %v", err)
	}
	m := NewMachine(store, DefaultFuel)
	results, snap, err := m.CallAddr(addr, []Value{ValI32(3), ValI32(4)})
	if err != defs.ENONE {
		t.Fatalf("call: %v", err)
	}
	if snap != nil {
		t.Fatalf("unexpected suspension")
	}
	if len(results) != 1 || results[0].I32 != 7 {
		t.Fatalf("got %+v, want [7]", results)
	}
}

// ifModule builds a function (i32) -> i32 that returns 1 if the argument is
// nonzero, else 0, exercising the if/else sidetable wiring end to end:
// local.get 0; if (result i32); i32.const 1; else; i32.const 0; end
func ifModule() *parser.Module {
	ft := parser.FuncType{Params: []parser.ValueType{parser.I32}, Results: []parser.ValueType{parser.I32}}

	// Sidetable layout, mirroring validate.go's OpIf/OpElse/OpEnd wiring:
	//   idx 0: if's false-branch entry -- resolved at else to "start of false body"
	//   idx 1: else's fallthrough-skip entry -- resolved at end to "after end"
	body := []parser.Instr{
		{Op: parser.OpLocalGet, Idx: 0, SidetableIdx: -1}, // 0
		{Op: parser.OpIf, SidetableIdx: 0},                // 1: false -> idx 4 (else body start)
		{Op: parser.OpI32Const, I32: 1, SidetableIdx: -1}, // 2
		{Op: parser.OpElse, SidetableIdx: 1},               // 3: fallthrough -> idx 6 (after end: function return)
		{Op: parser.OpI32Const, I32: 0, SidetableIdx: -1}, // 4
		{Op: parser.OpEnd, SidetableIdx: -1},               // 5 (outer function end)
	}
	sidetable := []parser.SidetableEntry{
		{PCDelta: 3, STPDelta: 0, PopCnt: 0, ValCnt: 0}, // if false: jump instr1 -> instr4, the false body's first instruction (PCDelta=4-1=3)
		{PCDelta: 3, STPDelta: 0, PopCnt: 0, ValCnt: 1}, // else fallthrough: instr3 -> instr6==len(body), i.e. function return (PCDelta=6-3=3), keep 1 result
	}
	fn := parser.Func{
		TypeIdx:   0,
		Locals:    []parser.ValueType{parser.I32},
		NumParams: 1,
		Body:      body,
		Sidetable: sidetable,
	}
	return &parser.Module{
		Types:       []parser.FuncType{ft},
		FuncTypeIdx: []uint32{0},
		Funcs:       []parser.Func{fn},
		StartFunc:   -1,
		DataCount:   -1,
		Exports:     []parser.Export{{Name: "nonzero", Kind: 0x00, Idx: 0}},
	}
}

func TestIfElseBranching(t *testing.T) {
	store := &Store{}
	inst, err := Instantiate(store, ifModule(), NoImports{})
	if err != defs.ENONE {
		t.Fatalf("instantiate: %v", err)
	}
	addr, _ := inst.ExportedFunc("nonzero")

	for _, tc := range []struct {
		arg  int32
		want int32
	}{{0, 0}, {5, 1}, {-1, 1}} {
		m := NewMachine(store, DefaultFuel)
		results, _, err := m.CallAddr(addr, []Value{ValI32(tc.arg)})
		if err != defs.ENONE {
			t.Fatalf("call(%d): %v", tc.arg, err)
		}
		if results[0].I32 != tc.want {
			t.Fatalf("call(%d) = %d, want %d", tc.arg, results[0].I32, tc.want)
		}
	}
}

// loopModule sums 0..n-1 via a loop with a backward branch, exercising the
// loop-branch sidetable entries resolved immediately at emit time rather
// than deferred to the closing end.
func loopModule() *parser.Module {
	ft := parser.FuncType{Params: []parser.ValueType{parser.I32}, Results: []parser.ValueType{parser.I32}}
	// locals: 0=n (param), 1=sum, 2=i
	// sum = 0; i = 0
	// loop:
	//   if i >= n: br 1 (exit loop, labeled by the outer block)
	//   sum += i; i += 1; br 0 (loop top)
	// end (outer block)
	// return sum
	body := []parser.Instr{
		{Op: parser.OpBlock, SidetableIdx: -1}, // 0: outer block wrapping the loop, label depth 1 for exit
		{Op: parser.OpLoop, SidetableIdx: -1},  // 1: label depth 0 (innermost) for repeat
		{Op: parser.OpLocalGet, Idx: 2, SidetableIdx: -1}, // 2: i
		{Op: parser.OpLocalGet, Idx: 0, SidetableIdx: -1}, // 3: n
		{Op: parser.OpI32GeS, SidetableIdx: -1},            // 4: i >= n
		{Op: parser.OpBrIf, Idx: 1, SidetableIdx: 0},       // 5: exit to after outer end
		{Op: parser.OpLocalGet, Idx: 1, SidetableIdx: -1},  // 6: sum
		{Op: parser.OpLocalGet, Idx: 2, SidetableIdx: -1},  // 7: i
		{Op: parser.OpI32Add, SidetableIdx: -1},            // 8
		{Op: parser.OpLocalSet, Idx: 1, SidetableIdx: -1},  // 9: sum = sum + i
		{Op: parser.OpLocalGet, Idx: 2, SidetableIdx: -1},  // 10: i
		{Op: parser.OpI32Const, I32: 1, SidetableIdx: -1},  // 11
		{Op: parser.OpI32Add, SidetableIdx: -1},            // 12
		{Op: parser.OpLocalSet, Idx: 2, SidetableIdx: -1},  // 13: i = i + 1
		{Op: parser.OpBr, Idx: 0, SidetableIdx: 1},          // 14: back to loop top (instr 2)
		{Op: parser.OpEnd, SidetableIdx: -1},                // 15: closes loop (no-op, unreachable after unconditional br)
		{Op: parser.OpEnd, SidetableIdx: -1},                // 16: closes outer block
		{Op: parser.OpLocalGet, Idx: 1, SidetableIdx: -1},  // 17: sum
		{Op: parser.OpEnd, SidetableIdx: -1},                // 18: function end
	}
	sidetable := []parser.SidetableEntry{
		{PCDelta: 12, STPDelta: 0, PopCnt: 0, ValCnt: 0}, // br_if(1) at instr5 -> instr17 (PCDelta=17-5=12)
		{PCDelta: -12, STPDelta: 0, PopCnt: 0, ValCnt: 0}, // br(0) at instr14 -> instr2, loop start (PCDelta=2-14=-12)
	}
	fn := parser.Func{
		TypeIdx:   0,
		Locals:    []parser.ValueType{parser.I32, parser.I32, parser.I32},
		NumParams: 1,
		Body:      body,
		Sidetable: sidetable,
	}
	return &parser.Module{
		Types:       []parser.FuncType{ft},
		FuncTypeIdx: []uint32{0},
		Funcs:       []parser.Func{fn},
		StartFunc:   -1,
		DataCount:   -1,
		Exports:     []parser.Export{{Name: "sumto", Kind: 0x00, Idx: 0}},
	}
}

func TestLoopBranch(t *testing.T) {
	store := &Store{}
	inst, err := Instantiate(store, loopModule(), NoImports{})
	if err != defs.ENONE {
		t.Fatalf("instantiate: %v", err)
	}
	addr, _ := inst.ExportedFunc("sumto")
	m := NewMachine(store, DefaultFuel)
	results, _, err := m.CallAddr(addr, []Value{ValI32(5)})
	if err != defs.ENONE {
		t.Fatalf("call: %v", err)
	}
	if results[0].I32 != 10 { // 0+1+2+3+4
		t.Fatalf("sumto(5) = %d, want 10", results[0].I32)
	}
}

func TestFuelExhaustionAndResume(t *testing.T) {
	store := &Store{}
	inst, err := Instantiate(store, loopModule(), NoImports{})
	if err != defs.ENONE {
		t.Fatalf("instantiate: %v", err)
	}
	addr, _ := inst.ExportedFunc("sumto")

	m := NewMachine(store, 5)
	_, snap, err := m.CallAddr(addr, []Value{ValI32(100)})
	if err != defs.EWASMFUELEXHAUSTED {
		t.Fatalf("expected fuel exhaustion, got %v", err)
	}
	if snap == nil {
		t.Fatal("expected a snapshot on fuel exhaustion")
	}

	for {
		results, nextSnap, rerr := m.Resume(snap, 5)
		if rerr == defs.EWASMFUELEXHAUSTED {
			snap = nextSnap
			continue
		}
		if rerr != defs.ENONE {
			t.Fatalf("resume: %v", rerr)
		}
		want := int32(100 * 99 / 2)
		if results[0].I32 != want {
			t.Fatalf("resumed sumto(100) = %d, want %d", results[0].I32, want)
		}
		break
	}
}

// fillModule builds a function taking (dst, val, n i32) that runs a single
// memory.fill, backed by a one-page memory, to exercise fuelCost's bulk-op
// byte charge against a low fuel budget.
func fillModule() *parser.Module {
	ft := parser.FuncType{Params: []parser.ValueType{parser.I32, parser.I32, parser.I32}}
	fn := parser.Func{
		TypeIdx:   0,
		Locals:    []parser.ValueType{parser.I32, parser.I32, parser.I32},
		NumParams: 3,
		Body: []parser.Instr{
			{Op: parser.OpLocalGet, Idx: 0, SidetableIdx: -1},
			{Op: parser.OpLocalGet, Idx: 1, SidetableIdx: -1},
			{Op: parser.OpLocalGet, Idx: 2, SidetableIdx: -1},
			{Op: parser.OpMemoryFill, SidetableIdx: -1},
			{Op: parser.OpEnd, SidetableIdx: -1},
		},
	}
	return &parser.Module{
		Types:       []parser.FuncType{ft},
		FuncTypeIdx: []uint32{0},
		Funcs:       []parser.Func{fn},
		Memories:    []parser.MemOrTableType{{Limits: parser.Limits{Min: 1}}},
		StartFunc:   -1,
		DataCount:   -1,
		Exports:     []parser.Export{{Name: "fill", Kind: 0x00, Idx: 0}},
	}
}

func TestFuelExhaustionBeforeExpensiveInstructionExecutes(t *testing.T) {
	store := &Store{}
	inst, err := Instantiate(store, fillModule(), NoImports{})
	if err != defs.ENONE {
		t.Fatalf("instantiate: %v", err)
	}
	addr, _ := inst.ExportedFunc("fill")
	mem := store.Memories[inst.MemAddrs[0]]
	before := append([]byte{}, mem.Data[:4]...)

	// Fuel=5 covers the three local.get's and the memory.fill's own base
	// charge, but not the 999 bytes memory.fill is about to move: the
	// instruction must not run at all, and the memory must stay untouched.
	m := NewMachine(store, 5)
	_, snap, err := m.CallAddr(addr, []Value{ValI32(0), ValI32(0x41), ValI32(999)})
	if err != defs.EWASMFUELEXHAUSTED {
		t.Fatalf("expected fuel exhaustion, got %v", err)
	}
	if snap == nil {
		t.Fatal("expected a snapshot on fuel exhaustion")
	}
	if string(mem.Data[:4]) != string(before) {
		t.Fatalf("memory.fill ran despite insufficient fuel: %v", mem.Data[:4])
	}

	// The resumed memory.fill costs 1+999 and the function's closing end 1.
	if _, _, rerr := m.Resume(snap, 1001); rerr != defs.ENONE {
		t.Fatalf("resume: %v", rerr)
	}
	for i := 0; i < 999; i++ {
		if mem.Data[i] != 0x41 {
			t.Fatalf("byte %d = %#x, want 0x41 after resume", i, mem.Data[i])
		}
	}
}

func TestDivideByZeroTraps(t *testing.T) {
	ft := parser.FuncType{Params: []parser.ValueType{parser.I32, parser.I32}, Results: []parser.ValueType{parser.I32}}
	fn := parser.Func{
		TypeIdx:   0,
		Locals:    []parser.ValueType{parser.I32, parser.I32},
		NumParams: 2,
		Body: []parser.Instr{
			{Op: parser.OpLocalGet, Idx: 0, SidetableIdx: -1},
			{Op: parser.OpLocalGet, Idx: 1, SidetableIdx: -1},
			{Op: parser.OpI32DivS, SidetableIdx: -1},
			{Op: parser.OpEnd, SidetableIdx: -1},
		},
	}
	mod := &parser.Module{
		Types: []parser.FuncType{ft}, FuncTypeIdx: []uint32{0}, Funcs: []parser.Func{fn},
		StartFunc: -1, DataCount: -1,
		Exports: []parser.Export{{Name: "div", Kind: 0x00, Idx: 0}},
	}
	store := &Store{}
	inst, err := Instantiate(store, mod, NoImports{})
	if err != defs.ENONE {
		t.Fatalf("instantiate: %v", err)
	}
	addr, _ := inst.ExportedFunc("div")
	m := NewMachine(store, DefaultFuel)
	if _, _, err := m.CallAddr(addr, []Value{ValI32(1), ValI32(0)}); err != defs.ETRAPDIVIDEBYZERO {
		t.Fatalf("expected divide-by-zero trap, got %v", err)
	}
}
