package parser

import (
	"encoding/binary"
	"testing"

	"kestrel/internal/defs"
)

func u32leb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, u32leb(uint32(len(body)))...)
	return append(out, body...)
}

func header() []byte {
	b := make([]byte, 8)
	copy(b[0:4], wasmMagic[:])
	binary.LittleEndian.PutUint32(b[4:8], wasmVersion)
	return b
}

// buildAddOneModule builds a module exporting a single function
// `add_one(i32) -> i32` that returns `local.get 0 + i32.const 1`.
func buildAddOneModule(t *testing.T) []byte {
	t.Helper()
	typeSec := section(secType, append([]byte{1, 0x60, 1, byte(I32), 1, byte(I32)}))
	funcSec := section(secFunction, append([]byte{1}, u32leb(0)...))
	body := []byte{0x20, 0x00, 0x41, 0x01, 0x6A, 0x0B} // local.get 0; i32.const 1; i32.add; end
	codeBody := append([]byte{0}, body...) // 0 local decls
	codeBody = append(u32leb(uint32(len(codeBody))), codeBody...)
	codeSec := section(secCode, append([]byte{1}, codeBody...))
	name := "add_one"
	exp := append([]byte{byte(len(name))}, []byte(name)...)
	exp = append(exp, kindFunc)
	exp = append(exp, u32leb(0)...)
	exportSec := section(secExport, append([]byte{1}, exp...))

	var out []byte
	out = append(out, header()...)
	out = append(out, typeSec...)
	out = append(out, funcSec...)
	out = append(out, exportSec...)
	out = append(out, codeSec...)
	return out
}

func TestDecodeAddOneFunction(t *testing.T) {
	data := buildAddOneModule(t)
	m, err := Decode(data)
	if err != defs.ENONE {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(m.Funcs) != 1 {
		t.Fatalf("expected 1 func, got %d", len(m.Funcs))
	}
	f := m.Funcs[0]
	if f.NumParams != 1 {
		t.Fatalf("expected 1 param, got %d", f.NumParams)
	}
	if len(f.Body) != 4 { // local.get, i32.const, i32.add, end
		t.Fatalf("expected 4 instrs, got %d: %+v", len(f.Body), f.Body)
	}
	if len(m.Exports) != 1 || m.Exports[0].Name != "add_one" {
		t.Fatalf("expected export add_one, got %+v", m.Exports)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data := []byte{0, 0, 0, 0, 1, 0, 0, 0}
	if _, err := Decode(data); err != defs.EWASMVALIDATION {
		t.Fatalf("expected EWASMVALIDATION, got %v", err)
	}
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	data := header()
	data[4] = 2
	if _, err := Decode(data); err != defs.EWASMVALIDATION {
		t.Fatalf("expected EWASMVALIDATION, got %v", err)
	}
}

// buildLoopBranchModule builds `f() -> i32` that counts a local down from 3
// to 0 using a loop and br_if, returning the local. Exercises the loop
// sidetable's backward-branch path.
func buildLoopBranchModule(t *testing.T) []byte {
	t.Helper()
	typeSec := section(secType, []byte{1, 0x60, 0, 1, byte(I32)})
	funcSec := section(secFunction, append([]byte{1}, u32leb(0)...))

	body := []byte{
		0x41, 0x03, // i32.const 3
		0x21, 0x00, // local.set 0
		0x03, 0x40, // loop (empty blocktype)
		0x20, 0x00, // local.get 0
		0x41, 0x01, // i32.const 1
		0x6B,       // i32.sub
		0x21, 0x00, // local.set 0
		0x20, 0x00, // local.get 0
		0x0D, 0x00, // br_if 0
		0x0B,       // end (loop)
		0x20, 0x00, // local.get 0
		0x0B, // end (func)
	}
	localDecls := []byte{1, 1, byte(I32)} // 1 declared i32 local
	codeBody := append(localDecls, body...)
	codeBody = append(u32leb(uint32(len(codeBody))), codeBody...)
	codeSec := section(secCode, append([]byte{1}, codeBody...))

	var out []byte
	out = append(out, header()...)
	out = append(out, typeSec...)
	out = append(out, funcSec...)
	out = append(out, codeSec...)
	return out
}

func TestDecodeLoopWithBrIfProducesBackwardSidetableEntry(t *testing.T) {
	data := buildLoopBranchModule(t)
	m, err := Decode(data)
	if err != defs.ENONE {
		t.Fatalf("Decode failed: %v", err)
	}
	f := m.Funcs[0]
	var brIf *Instr
	for i := range f.Body {
		if f.Body[i].Op == OpBrIf {
			brIf = &f.Body[i]
		}
	}
	if brIf == nil {
		t.Fatalf("expected a br_if instruction in body: %+v", f.Body)
	}
	if brIf.SidetableIdx < 0 || int(brIf.SidetableIdx) >= len(f.Sidetable) {
		t.Fatalf("br_if sidetable index out of range: %d (len %d)", brIf.SidetableIdx, len(f.Sidetable))
	}
	entry := f.Sidetable[brIf.SidetableIdx]
	if entry.PCDelta >= 0 {
		t.Fatalf("expected a negative (backward) pc delta for loop branch, got %d", entry.PCDelta)
	}
}

func TestDecodeRejectsTypeMismatchInFunctionBody(t *testing.T) {
	typeSec := section(secType, []byte{1, 0x60, 0, 1, byte(I32)})
	funcSec := section(secFunction, append([]byte{1}, u32leb(0)...))
	// Body returns an f32 where i32 is expected.
	body := []byte{0x43, 0, 0, 0, 0, 0x0B} // f32.const 0.0; end
	codeBody := append([]byte{0}, body...)
	codeBody = append(u32leb(uint32(len(codeBody))), codeBody...)
	codeSec := section(secCode, append([]byte{1}, codeBody...))

	var data []byte
	data = append(data, header()...)
	data = append(data, typeSec...)
	data = append(data, funcSec...)
	data = append(data, codeSec...)

	if _, err := Decode(data); err != defs.EWASMVALIDATION {
		t.Fatalf("expected EWASMVALIDATION for type mismatch, got %v", err)
	}
}
