// Package parser decodes and validates WebAssembly core modules, spec.md
// §4.10: it rejects anything but magic "\0asm" version 1, walks every
// function body once to build a typed IR, and emits a sidetable entry at
// every structured branch point. Decoding structure (one decoder per
// section, LEB128 helpers, a typed IR distinct from the raw byte stream)
// is original to this module -- the retrieval pack carries no WASM runtime
// to imitate (moby's vendored wazero under other_examples/ was read only
// for section-layout orientation, never imported, since kestrel's engine is
// the spec's own deliverable rather than a wrapped existing one).
package parser

// ValueType is a WASM value type (spec.md §3 WASM call stack's tagged
// values).
type ValueType byte

const (
	I32 ValueType = 0x7F
	I64 ValueType = 0x7E
	F32 ValueType = 0x7D
	F64 ValueType = 0x7C
	FuncRef ValueType = 0x70
	ExternRef ValueType = 0x6F
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

// Limits bounds a table or memory's size, in elements or 64KiB pages.
type Limits struct {
	Min uint32
	Max uint32 // 0 with HasMax=false means unbounded
	HasMax bool
}

// SidetableEntry describes how to relocate the interpreter's PC, sidetable
// pointer, and operand stack on taking a structured branch (spec.md §3
// WASM validated module / §4.10).
type SidetableEntry struct {
	PCDelta  int32
	STPDelta int32
	PopCnt   uint32
	ValCnt   uint32
}

// Instr is one decoded instruction. The opcode-specific immediates live in
// the typed fields below; block/loop/if carry no nested block info here, and
// their branch targets are reached through SidetableIdx.
type Instr struct {
	Op   Opcode
	I32  int32
	I64  int64
	F32  float32
	F64  float64
	Idx  uint32  // local/global/func/table/elem/data index; a memarg uses Offset and Align
	Idx2 uint32  // second index: call_indirect's table index
	Offset uint32
	Align  uint32
	Labels []uint32 // br_table targets (relative label depths)
	Default uint32
	// SidetableIdx indexes into Func.Sidetable for branch instructions
	// (br, br_if, every br_table target via Labels, and the else/end that
	// closes a block/loop/if); -1 when not a branch.
	SidetableIdx int32
}

// Func is one validated, decoded function body.
type Func struct {
	TypeIdx   uint32
	Locals    []ValueType // params followed by declared locals
	NumParams int
	Body      []Instr
	Sidetable []SidetableEntry
}

// Import names one imported item and which kind it is.
type Import struct {
	Module string
	Name   string
	Kind   byte // 0x00 func, 0x01 table, 0x02 mem, 0x03 global
	TypeIdx uint32 // for funcs
	TableType MemOrTableType
	MemType   MemOrTableType
	GlobalType GlobalType
}

// MemOrTableType carries a table's element type plus limits, or a memory's
// limits alone (ElemType unused).
type MemOrTableType struct {
	ElemType ValueType
	Limits   Limits
}

// GlobalType is a global's value type and mutability.
type GlobalType struct {
	Type    ValueType
	Mutable bool
}

// Export names one exported item.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// DataSegment is one passive or active data segment.
type DataSegment struct {
	MemIdx uint32
	Offset []Instr // constant expr, active segments only
	Active bool
	Bytes  []byte
}

// ElementSegment is one passive, active, or declarative element segment.
type ElementSegment struct {
	TableIdx uint32
	Offset   []Instr
	Active   bool
	Declarative bool
	ElemType ValueType
	Funcs    []uint32   // for the common func-index-vector encoding
	Exprs    [][]Instr  // expression-vector encoding; never filled, since the parser rejects those segments
}

// Global is one module-defined global with its constant initializer.
type Global struct {
	Type GlobalType
	Init []Instr
}

// Module is the fully decoded and validated module (spec.md §3).
type Module struct {
	Types   []FuncType
	Imports []Import
	// FuncTypeIdx[i] is the type index of function i, where i ranges over
	// imported functions first, then module-defined ones -- matching the
	// WASM index space layout.
	FuncTypeIdx []uint32
	Tables      []MemOrTableType
	Memories    []MemOrTableType
	Globals     []Global
	Exports     []Export
	StartFunc   int32 // -1 if absent
	Elements    []ElementSegment
	Data        []DataSegment
	Funcs       []Func // module-defined function bodies, parallel to FuncTypeIdx[len(Imports funcs):]
	DataCount   int32  // -1 if the data count section was absent
}
