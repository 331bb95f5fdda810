package interp

import (
	"math"
	"math/bits"

	"kestrel/internal/defs"
	"kestrel/internal/wasm/parser"
)

// execNumeric applies a single non-control, non-memory, non-variable
// instruction's value-stack effect. It is split out from the main dispatch
// in interp.go purely so the numeric semantics -- rotation, the signed/
// unsigned split, NaN-propagating min/max, saturating truncation -- read as
// one contiguous reference against the WASM core spec's numerics section,
// spec.md §4.11.
func (m *Machine) execNumeric(op parser.Opcode) defs.Err_t {
	switch op {
	case parser.OpI32Eqz:
		a := m.pop()
		m.push(boolVal(a.I32 == 0))
	case parser.OpI32Clz:
		a := m.pop()
		m.push(ValI32(int32(bits.LeadingZeros32(uint32(a.I32)))))
	case parser.OpI32Ctz:
		a := m.pop()
		m.push(ValI32(int32(bits.TrailingZeros32(uint32(a.I32)))))
	case parser.OpI32Popcnt:
		a := m.pop()
		m.push(ValI32(int32(bits.OnesCount32(uint32(a.I32)))))
	case parser.OpI32Add:
		b, a := m.pop(), m.pop()
		m.push(ValU32(a.U32() + b.U32()))
	case parser.OpI32Sub:
		b, a := m.pop(), m.pop()
		m.push(ValU32(a.U32() - b.U32()))
	case parser.OpI32Mul:
		b, a := m.pop(), m.pop()
		m.push(ValU32(a.U32() * b.U32()))
	case parser.OpI32DivS:
		b, a := m.pop(), m.pop()
		if b.I32 == 0 {
			return defs.ETRAPDIVIDEBYZERO
		}
		if a.I32 == math.MinInt32 && b.I32 == -1 {
			return defs.ETRAPUNREPRESENTABLE
		}
		m.push(ValI32(a.I32 / b.I32))
	case parser.OpI32DivU:
		b, a := m.pop(), m.pop()
		if b.U32() == 0 {
			return defs.ETRAPDIVIDEBYZERO
		}
		m.push(ValU32(a.U32() / b.U32()))
	case parser.OpI32RemS:
		b, a := m.pop(), m.pop()
		if b.I32 == 0 {
			return defs.ETRAPDIVIDEBYZERO
		}
		if a.I32 == math.MinInt32 && b.I32 == -1 {
			m.push(ValI32(0))
		} else {
			m.push(ValI32(a.I32 % b.I32))
		}
	case parser.OpI32RemU:
		b, a := m.pop(), m.pop()
		if b.U32() == 0 {
			return defs.ETRAPDIVIDEBYZERO
		}
		m.push(ValU32(a.U32() % b.U32()))
	case parser.OpI32And:
		b, a := m.pop(), m.pop()
		m.push(ValI32(a.I32 & b.I32))
	case parser.OpI32Or:
		b, a := m.pop(), m.pop()
		m.push(ValI32(a.I32 | b.I32))
	case parser.OpI32Xor:
		b, a := m.pop(), m.pop()
		m.push(ValI32(a.I32 ^ b.I32))
	case parser.OpI32Shl:
		b, a := m.pop(), m.pop()
		m.push(ValU32(a.U32() << (b.U32() & 31)))
	case parser.OpI32ShrS:
		b, a := m.pop(), m.pop()
		m.push(ValI32(a.I32 >> (b.U32() & 31)))
	case parser.OpI32ShrU:
		b, a := m.pop(), m.pop()
		m.push(ValU32(a.U32() >> (b.U32() & 31)))
	case parser.OpI32Rotl:
		b, a := m.pop(), m.pop()
		m.push(ValU32(bits.RotateLeft32(a.U32(), int(b.U32()&31))))
	case parser.OpI32Rotr:
		b, a := m.pop(), m.pop()
		m.push(ValU32(bits.RotateLeft32(a.U32(), -int(b.U32()&31))))

	case parser.OpI32Eq:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.I32 == b.I32))
	case parser.OpI32Ne:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.I32 != b.I32))
	case parser.OpI32LtS:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.I32 < b.I32))
	case parser.OpI32LtU:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.U32() < b.U32()))
	case parser.OpI32GtS:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.I32 > b.I32))
	case parser.OpI32GtU:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.U32() > b.U32()))
	case parser.OpI32LeS:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.I32 <= b.I32))
	case parser.OpI32LeU:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.U32() <= b.U32()))
	case parser.OpI32GeS:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.I32 >= b.I32))
	case parser.OpI32GeU:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.U32() >= b.U32()))

	case parser.OpI64Eqz:
		a := m.pop()
		m.push(boolVal(a.I64 == 0))
	case parser.OpI64Clz:
		a := m.pop()
		m.push(ValI64(int64(bits.LeadingZeros64(uint64(a.I64)))))
	case parser.OpI64Ctz:
		a := m.pop()
		m.push(ValI64(int64(bits.TrailingZeros64(uint64(a.I64)))))
	case parser.OpI64Popcnt:
		a := m.pop()
		m.push(ValI64(int64(bits.OnesCount64(uint64(a.I64)))))
	case parser.OpI64Add:
		b, a := m.pop(), m.pop()
		m.push(ValU64(a.U64() + b.U64()))
	case parser.OpI64Sub:
		b, a := m.pop(), m.pop()
		m.push(ValU64(a.U64() - b.U64()))
	case parser.OpI64Mul:
		b, a := m.pop(), m.pop()
		m.push(ValU64(a.U64() * b.U64()))
	case parser.OpI64DivS:
		b, a := m.pop(), m.pop()
		if b.I64 == 0 {
			return defs.ETRAPDIVIDEBYZERO
		}
		if a.I64 == math.MinInt64 && b.I64 == -1 {
			return defs.ETRAPUNREPRESENTABLE
		}
		m.push(ValI64(a.I64 / b.I64))
	case parser.OpI64DivU:
		b, a := m.pop(), m.pop()
		if b.U64() == 0 {
			return defs.ETRAPDIVIDEBYZERO
		}
		m.push(ValU64(a.U64() / b.U64()))
	case parser.OpI64RemS:
		b, a := m.pop(), m.pop()
		if b.I64 == 0 {
			return defs.ETRAPDIVIDEBYZERO
		}
		if a.I64 == math.MinInt64 && b.I64 == -1 {
			m.push(ValI64(0))
		} else {
			m.push(ValI64(a.I64 % b.I64))
		}
	case parser.OpI64RemU:
		b, a := m.pop(), m.pop()
		if b.U64() == 0 {
			return defs.ETRAPDIVIDEBYZERO
		}
		m.push(ValU64(a.U64() % b.U64()))
	case parser.OpI64And:
		b, a := m.pop(), m.pop()
		m.push(ValI64(a.I64 & b.I64))
	case parser.OpI64Or:
		b, a := m.pop(), m.pop()
		m.push(ValI64(a.I64 | b.I64))
	case parser.OpI64Xor:
		b, a := m.pop(), m.pop()
		m.push(ValI64(a.I64 ^ b.I64))
	case parser.OpI64Shl:
		b, a := m.pop(), m.pop()
		m.push(ValU64(a.U64() << (b.U64() & 63)))
	case parser.OpI64ShrS:
		b, a := m.pop(), m.pop()
		m.push(ValI64(a.I64 >> (b.U64() & 63)))
	case parser.OpI64ShrU:
		b, a := m.pop(), m.pop()
		m.push(ValU64(a.U64() >> (b.U64() & 63)))
	case parser.OpI64Rotl:
		b, a := m.pop(), m.pop()
		m.push(ValU64(bits.RotateLeft64(a.U64(), int(b.U64()&63))))
	case parser.OpI64Rotr:
		b, a := m.pop(), m.pop()
		m.push(ValU64(bits.RotateLeft64(a.U64(), -int(b.U64()&63))))

	case parser.OpI64Eq:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.I64 == b.I64))
	case parser.OpI64Ne:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.I64 != b.I64))
	case parser.OpI64LtS:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.I64 < b.I64))
	case parser.OpI64LtU:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.U64() < b.U64()))
	case parser.OpI64GtS:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.I64 > b.I64))
	case parser.OpI64GtU:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.U64() > b.U64()))
	case parser.OpI64LeS:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.I64 <= b.I64))
	case parser.OpI64LeU:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.U64() <= b.U64()))
	case parser.OpI64GeS:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.I64 >= b.I64))
	case parser.OpI64GeU:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.U64() >= b.U64()))

	case parser.OpF32Eq:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.F32 == b.F32))
	case parser.OpF32Ne:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.F32 != b.F32))
	case parser.OpF32Lt:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.F32 < b.F32))
	case parser.OpF32Gt:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.F32 > b.F32))
	case parser.OpF32Le:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.F32 <= b.F32))
	case parser.OpF32Ge:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.F32 >= b.F32))
	case parser.OpF64Eq:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.F64 == b.F64))
	case parser.OpF64Ne:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.F64 != b.F64))
	case parser.OpF64Lt:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.F64 < b.F64))
	case parser.OpF64Gt:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.F64 > b.F64))
	case parser.OpF64Le:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.F64 <= b.F64))
	case parser.OpF64Ge:
		b, a := m.pop(), m.pop()
		m.push(boolVal(a.F64 >= b.F64))

	case parser.OpF32Abs:
		a := m.pop()
		m.push(ValF32(float32(math.Abs(float64(a.F32)))))
	case parser.OpF32Neg:
		a := m.pop()
		m.push(ValF32(-a.F32))
	case parser.OpF32Ceil:
		a := m.pop()
		m.push(ValF32(float32(math.Ceil(float64(a.F32)))))
	case parser.OpF32Floor:
		a := m.pop()
		m.push(ValF32(float32(math.Floor(float64(a.F32)))))
	case parser.OpF32Trunc:
		a := m.pop()
		m.push(ValF32(float32(math.Trunc(float64(a.F32)))))
	case parser.OpF32Nearest:
		a := m.pop()
		m.push(ValF32(float32(math.RoundToEven(float64(a.F32)))))
	case parser.OpF32Sqrt:
		a := m.pop()
		m.push(ValF32(float32(math.Sqrt(float64(a.F32)))))
	case parser.OpF32Add:
		b, a := m.pop(), m.pop()
		m.push(ValF32(a.F32 + b.F32))
	case parser.OpF32Sub:
		b, a := m.pop(), m.pop()
		m.push(ValF32(a.F32 - b.F32))
	case parser.OpF32Mul:
		b, a := m.pop(), m.pop()
		m.push(ValF32(a.F32 * b.F32))
	case parser.OpF32Div:
		b, a := m.pop(), m.pop()
		m.push(ValF32(a.F32 / b.F32))
	case parser.OpF32Min:
		b, a := m.pop(), m.pop()
		m.push(ValF32(f32Min(a.F32, b.F32)))
	case parser.OpF32Max:
		b, a := m.pop(), m.pop()
		m.push(ValF32(f32Max(a.F32, b.F32)))
	case parser.OpF32Copysign:
		b, a := m.pop(), m.pop()
		m.push(ValF32(float32(math.Copysign(float64(a.F32), float64(b.F32)))))

	case parser.OpF64Abs:
		a := m.pop()
		m.push(ValF64(math.Abs(a.F64)))
	case parser.OpF64Neg:
		a := m.pop()
		m.push(ValF64(-a.F64))
	case parser.OpF64Ceil:
		a := m.pop()
		m.push(ValF64(math.Ceil(a.F64)))
	case parser.OpF64Floor:
		a := m.pop()
		m.push(ValF64(math.Floor(a.F64)))
	case parser.OpF64Trunc:
		a := m.pop()
		m.push(ValF64(math.Trunc(a.F64)))
	case parser.OpF64Nearest:
		a := m.pop()
		m.push(ValF64(math.RoundToEven(a.F64)))
	case parser.OpF64Sqrt:
		a := m.pop()
		m.push(ValF64(math.Sqrt(a.F64)))
	case parser.OpF64Add:
		b, a := m.pop(), m.pop()
		m.push(ValF64(a.F64 + b.F64))
	case parser.OpF64Sub:
		b, a := m.pop(), m.pop()
		m.push(ValF64(a.F64 - b.F64))
	case parser.OpF64Mul:
		b, a := m.pop(), m.pop()
		m.push(ValF64(a.F64 * b.F64))
	case parser.OpF64Div:
		b, a := m.pop(), m.pop()
		m.push(ValF64(a.F64 / b.F64))
	case parser.OpF64Min:
		b, a := m.pop(), m.pop()
		m.push(ValF64(f64Min(a.F64, b.F64)))
	case parser.OpF64Max:
		b, a := m.pop(), m.pop()
		m.push(ValF64(f64Max(a.F64, b.F64)))
	case parser.OpF64Copysign:
		b, a := m.pop(), m.pop()
		m.push(ValF64(math.Copysign(a.F64, b.F64)))

	case parser.OpI32WrapI64:
		a := m.pop()
		m.push(ValI32(int32(a.I64)))
	case parser.OpI64ExtendI32S:
		a := m.pop()
		m.push(ValI64(int64(a.I32)))
	case parser.OpI64ExtendI32U:
		a := m.pop()
		m.push(ValI64(int64(a.U32())))
	case parser.OpF32ConvertI32S:
		a := m.pop()
		m.push(ValF32(float32(a.I32)))
	case parser.OpF32ConvertI32U:
		a := m.pop()
		m.push(ValF32(float32(a.U32())))
	case parser.OpF32ConvertI64S:
		a := m.pop()
		m.push(ValF32(float32(a.I64)))
	case parser.OpF32ConvertI64U:
		a := m.pop()
		m.push(ValF32(float32(a.U64())))
	case parser.OpF32DemoteF64:
		a := m.pop()
		m.push(ValF32(float32(a.F64)))
	case parser.OpF64ConvertI32S:
		a := m.pop()
		m.push(ValF64(float64(a.I32)))
	case parser.OpF64ConvertI32U:
		a := m.pop()
		m.push(ValF64(float64(a.U32())))
	case parser.OpF64ConvertI64S:
		a := m.pop()
		m.push(ValF64(float64(a.I64)))
	case parser.OpF64ConvertI64U:
		a := m.pop()
		m.push(ValF64(float64(a.U64())))
	case parser.OpF64PromoteF32:
		a := m.pop()
		m.push(ValF64(float64(a.F32)))
	case parser.OpI32ReinterpretF32:
		a := m.pop()
		m.push(ValI32(int32(math.Float32bits(a.F32))))
	case parser.OpF32ReinterpretI32:
		a := m.pop()
		m.push(ValF32(math.Float32frombits(a.U32())))
	case parser.OpI64ReinterpretF64:
		a := m.pop()
		m.push(ValI64(int64(math.Float64bits(a.F64))))
	case parser.OpF64ReinterpretI64:
		a := m.pop()
		m.push(ValF64(math.Float64frombits(a.U64())))

	case parser.OpI32Extend8S:
		a := m.pop()
		m.push(ValI32(int32(int8(a.I32))))
	case parser.OpI32Extend16S:
		a := m.pop()
		m.push(ValI32(int32(int16(a.I32))))
	case parser.OpI64Extend8S:
		a := m.pop()
		m.push(ValI64(int64(int8(a.I64))))
	case parser.OpI64Extend16S:
		a := m.pop()
		m.push(ValI64(int64(int16(a.I64))))
	case parser.OpI64Extend32S:
		a := m.pop()
		m.push(ValI64(int64(int32(a.I64))))

	case parser.OpI32TruncF32S:
		a := m.pop()
		v, err := truncF32ToI32(a.F32, true)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI32(v))
	case parser.OpI32TruncF32U:
		a := m.pop()
		v, err := truncF32ToI32(a.F32, false)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI32(v))
	case parser.OpI32TruncF64S:
		a := m.pop()
		v, err := truncF64ToI32(a.F64, true)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI32(v))
	case parser.OpI32TruncF64U:
		a := m.pop()
		v, err := truncF64ToI32(a.F64, false)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI32(v))
	case parser.OpI64TruncF32S:
		a := m.pop()
		v, err := truncF32ToI64(a.F32, true)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI64(v))
	case parser.OpI64TruncF32U:
		a := m.pop()
		v, err := truncF32ToI64(a.F32, false)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI64(v))
	case parser.OpI64TruncF64S:
		a := m.pop()
		v, err := truncF64ToI64(a.F64, true)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI64(v))
	case parser.OpI64TruncF64U:
		a := m.pop()
		v, err := truncF64ToI64(a.F64, false)
		if err != defs.ENONE {
			return err
		}
		m.push(ValI64(v))

	case parser.OpI32TruncSatF32S:
		a := m.pop()
		m.push(ValI32(truncSatI32(float64(a.F32), true)))
	case parser.OpI32TruncSatF32U:
		a := m.pop()
		m.push(ValU32(uint32(truncSatU64(float64(a.F32), 32))))
	case parser.OpI32TruncSatF64S:
		a := m.pop()
		m.push(ValI32(truncSatI32(a.F64, true)))
	case parser.OpI32TruncSatF64U:
		a := m.pop()
		m.push(ValU32(uint32(truncSatU64(a.F64, 32))))
	case parser.OpI64TruncSatF32S:
		a := m.pop()
		m.push(ValI64(truncSatI64(float64(a.F32))))
	case parser.OpI64TruncSatF32U:
		a := m.pop()
		m.push(ValU64(truncSatU64(float64(a.F32), 64)))
	case parser.OpI64TruncSatF64S:
		a := m.pop()
		m.push(ValI64(truncSatI64(a.F64)))
	case parser.OpI64TruncSatF64U:
		a := m.pop()
		m.push(ValU64(truncSatU64(a.F64, 64)))

	default:
		return defs.EWASMVALIDATION
	}
	return defs.ENONE
}

func boolVal(b bool) Value {
	if b {
		return ValI32(1)
	}
	return ValI32(0)
}

// f32Min/f32Max/f64Min/f64Max implement WASM's NaN-propagating, signed-zero
// aware min/max (core spec numerics: any NaN operand yields a NaN result;
// between +0 and -0, min picks -0 and max picks +0).
func f32Min(a, b float32) float32 {
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return float32(math.NaN())
	}
	if a == 0 && b == 0 {
		if math.Signbit(float64(a)) || math.Signbit(float64(b)) {
			return float32(math.Copysign(0, -1))
		}
		return 0
	}
	if a < b {
		return a
	}
	return b
}

func f32Max(a, b float32) float32 {
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return float32(math.NaN())
	}
	if a == 0 && b == 0 {
		if !math.Signbit(float64(a)) || !math.Signbit(float64(b)) {
			return 0
		}
		return float32(math.Copysign(0, -1))
	}
	if a > b {
		return a
	}
	return b
}

func f64Min(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) || math.Signbit(b) {
			return math.Copysign(0, -1)
		}
		return 0
	}
	if a < b {
		return a
	}
	return b
}

func f64Max(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	if a == 0 && b == 0 {
		if !math.Signbit(a) || !math.Signbit(b) {
			return 0
		}
		return math.Copysign(0, -1)
	}
	if a > b {
		return a
	}
	return b
}

// truncF32ToI32/truncF64ToI32/truncF32ToI64/truncF64ToI64 implement the
// trapping (non-saturating) truncation instructions: NaN or a magnitude
// beyond the target range traps BadConversionToInteger (spec.md §7).
func truncF32ToI32(f float32, signed bool) (int32, defs.Err_t) {
	return truncToI32(float64(f), signed)
}

func truncF64ToI32(f float64, signed bool) (int32, defs.Err_t) {
	return truncToI32(f, signed)
}

func truncToI32(f float64, signed bool) (int32, defs.Err_t) {
	if math.IsNaN(f) {
		return 0, defs.ETRAPBADCONVERSION
	}
	t := math.Trunc(f)
	if signed {
		if t < math.MinInt32 || t > math.MaxInt32 {
			return 0, defs.ETRAPBADCONVERSION
		}
		return int32(t), defs.ENONE
	}
	if t < 0 || t > math.MaxUint32 {
		return 0, defs.ETRAPBADCONVERSION
	}
	return int32(uint32(t)), defs.ENONE
}

func truncF32ToI64(f float32, signed bool) (int64, defs.Err_t) {
	return truncToI64(float64(f), signed)
}

func truncF64ToI64(f float64, signed bool) (int64, defs.Err_t) {
	return truncToI64(f, signed)
}

func truncToI64(f float64, signed bool) (int64, defs.Err_t) {
	if math.IsNaN(f) {
		return 0, defs.ETRAPBADCONVERSION
	}
	t := math.Trunc(f)
	if signed {
		if t < math.MinInt64 || t >= 9223372036854775808.0 {
			return 0, defs.ETRAPBADCONVERSION
		}
		return int64(t), defs.ENONE
	}
	if t < 0 || t >= 18446744073709551616.0 {
		return 0, defs.ETRAPBADCONVERSION
	}
	return int64(uint64(t)), defs.ENONE
}

// truncSatI32/truncSatI64/truncSatU64 implement the non-trapping saturating
// truncation family added by the 0xFC-prefixed opcodes: NaN becomes 0, and
// out-of-range magnitudes clamp to the target's min/max instead of trapping.
func truncSatI32(f float64, _ bool) int32 {
	if math.IsNaN(f) {
		return 0
	}
	t := math.Trunc(f)
	if t < math.MinInt32 {
		return math.MinInt32
	}
	if t > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(t)
}

func truncSatI64(f float64) int64 {
	if math.IsNaN(f) {
		return 0
	}
	t := math.Trunc(f)
	if t < math.MinInt64 {
		return math.MinInt64
	}
	if t >= 9223372036854775808.0 {
		return math.MaxInt64
	}
	return int64(t)
}

// truncSatU64 saturates f into an unsigned integer of the given bit width
// (32 or 64), returned widened into a uint64.
func truncSatU64(f float64, bitWidth int) uint64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	t := math.Trunc(f)
	var max uint64
	if bitWidth == 32 {
		max = math.MaxUint32
	} else {
		max = math.MaxUint64
	}
	if bitWidth == 64 {
		if t >= 18446744073709551616.0 {
			return math.MaxUint64
		}
		return uint64(t)
	}
	if t > float64(max) {
		return max
	}
	return uint64(t)
}
