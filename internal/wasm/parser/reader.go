package parser

import (
	"math"

	"kestrel/internal/defs"
)

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) eof() bool { return r.pos >= len(r.data) }

func (r *byteReader) byte() (byte, defs.Err_t) {
	if r.pos >= len(r.data) {
		return 0, defs.EWASMVALIDATION
	}
	b := r.data[r.pos]
	r.pos++
	return b, defs.ENONE
}

func (r *byteReader) bytes(n uint32) ([]byte, defs.Err_t) {
	if uint64(r.pos)+uint64(n) > uint64(len(r.data)) {
		return nil, defs.EWASMVALIDATION
	}
	b := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, defs.ENONE
}

func (r *byteReader) u32() (uint32, defs.Err_t) {
	var result uint64
	var shift uint
	for {
		b, err := r.byte()
		if err != defs.ENONE {
			return 0, err
		}
		result |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 35 {
			return 0, defs.EWASMVALIDATION
		}
	}
	return uint32(result), defs.ENONE
}

func (r *byteReader) u64() (uint64, defs.Err_t) {
	var result uint64
	var shift uint
	for {
		b, err := r.byte()
		if err != defs.ENONE {
			return 0, err
		}
		result |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 70 {
			return 0, defs.EWASMVALIDATION
		}
	}
	return result, defs.ENONE
}

func (r *byteReader) i32() (int32, defs.Err_t) {
	var result int64
	var shift uint
	for {
		b, err := r.byte()
		if err != defs.ENONE {
			return 0, err
		}
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 32 && b&0x40 != 0 {
				result |= -1 << shift
			}
			break
		}
		if shift >= 35 {
			return 0, defs.EWASMVALIDATION
		}
	}
	return int32(result), defs.ENONE
}

func (r *byteReader) i64() (int64, defs.Err_t) {
	var result int64
	var shift uint
	for {
		b, err := r.byte()
		if err != defs.ENONE {
			return 0, err
		}
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			break
		}
		if shift >= 70 {
			return 0, defs.EWASMVALIDATION
		}
	}
	return result, defs.ENONE
}

func (r *byteReader) f32() (float32, defs.Err_t) {
	b, err := r.bytes(4)
	if err != defs.ENONE {
		return 0, err
	}
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits), defs.ENONE
}

func (r *byteReader) f64() (float64, defs.Err_t) {
	b, err := r.bytes(8)
	if err != defs.ENONE {
		return 0, err
	}
	var bits uint64
	for i := 0; i < 8; i++ {
		bits |= uint64(b[i]) << (8 * i)
	}
	return math.Float64frombits(bits), defs.ENONE
}

func (r *byteReader) name() (string, defs.Err_t) {
	n, err := r.u32()
	if err != defs.ENONE {
		return "", err
	}
	b, err := r.bytes(n)
	if err != defs.ENONE {
		return "", err
	}
	return string(b), defs.ENONE
}

func (r *byteReader) valueType() (ValueType, defs.Err_t) {
	b, err := r.byte()
	if err != defs.ENONE {
		return 0, err
	}
	switch ValueType(b) {
	case I32, I64, F32, F64, FuncRef, ExternRef:
		return ValueType(b), defs.ENONE
	}
	return 0, defs.EWASMVALIDATION
}

func (r *byteReader) limits() (Limits, defs.Err_t) {
	flag, err := r.byte()
	if err != defs.ENONE {
		return Limits{}, err
	}
	min, err := r.u32()
	if err != defs.ENONE {
		return Limits{}, err
	}
	l := Limits{Min: min}
	if flag == 1 {
		max, err := r.u32()
		if err != defs.ENONE {
			return Limits{}, err
		}
		l.Max = max
		l.HasMax = true
	}
	return l, defs.ENONE
}
