// Package interp executes validated WASM modules (spec.md §4.11): a value
// stack shared by call frames, fuel-metered dispatch, and a resumable
// suspension point on fuel exhaustion. Like internal/wasm/parser, this
// engine is original to this module -- the retrieval pack carries no WASM
// runtime of its own to imitate; it is built the way the parser's sidetable
// was designed to be consumed.
package interp

import (
	"kestrel/internal/wasm/parser"
)

// Value is one entry of the interpreter's operand stack: a tagged union
// mirroring spec.md §3's "tagged values", following the same multi-field
// shape internal/wasm/parser.Instr already uses for its own decoded
// immediates rather than a packed bit representation.
type Value struct {
	Type parser.ValueType
	I32  int32
	I64  int64
	F32  float32
	F64  float64
}

// NullRef is the sentinel stored in a Value's I64 field denoting a null
// funcref/externref.
const NullRef int64 = -1

func ValI32(v int32) Value { return Value{Type: parser.I32, I32: v} }
func ValU32(v uint32) Value { return Value{Type: parser.I32, I32: int32(v)} }
func ValI64(v int64) Value { return Value{Type: parser.I64, I64: v} }
func ValU64(v uint64) Value { return Value{Type: parser.I64, I64: int64(v)} }
func ValF32(v float32) Value { return Value{Type: parser.F32, F32: v} }
func ValF64(v float64) Value { return Value{Type: parser.F64, F64: v} }

// ValRef builds a funcref/externref value; idx is the store address, or
// NullRef for a null reference.
func ValRef(t parser.ValueType, idx int64) Value { return Value{Type: t, I64: idx} }

func (v Value) U32() uint32 { return uint32(v.I32) }
func (v Value) U64() uint64 { return uint64(v.I64) }
func (v Value) IsNullRef() bool { return v.I64 == NullRef }

// zeroValue returns the default value for a declared local of type t
// (WASM locals are always zero-initialized).
func zeroValue(t parser.ValueType) Value {
	switch t {
	case parser.I32:
		return ValI32(0)
	case parser.I64:
		return ValI64(0)
	case parser.F32:
		return ValF32(0)
	case parser.F64:
		return ValF64(0)
	case parser.FuncRef, parser.ExternRef:
		return ValRef(t, NullRef)
	default:
		return Value{Type: t}
	}
}
