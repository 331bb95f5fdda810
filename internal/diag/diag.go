// Package diag provides kernel-debug disassembly, used by internal/interrupt
// to report the faulting instruction on a page-fault or general-protection
// fault and by internal/elfload to sanity-dump the entry trampoline it maps
// in. Grounded on golang.org/x/arch, which the teacher's own go.mod lists
// but never wires to a runtime component.
package diag

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Disassembler decodes x86-64 instructions for diagnostic output.
type Disassembler struct{}

// New returns a ready-to-use Disassembler.
func New() *Disassembler { return &Disassembler{} }

// Disassemble decodes the instruction at the start of code (treated as
// located at virtual address pc) and renders it in Intel-ish GNU syntax. On
// decode failure it falls back to a hex dump so callers always get
// something actionable in a fault log.
func (d *Disassembler) Disassemble(code []byte, pc uint64) string {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		n := len(code)
		if n > 8 {
			n = 8
		}
		return fmt.Sprintf("<decode error: %v> bytes=% x", err, code[:n])
	}
	return fmt.Sprintf("%#x: %s", pc, x86asm.GNUSyntax(inst, pc, nil))
}

// DumpRange disassembles sequential instructions starting at pc until
// maxBytes have been consumed, for the ELF loader's entry-trampoline sanity
// dump.
func (d *Disassembler) DumpRange(code []byte, pc uint64, maxBytes int) []string {
	var lines []string
	off := 0
	for off < len(code) && off < maxBytes {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%#x: <decode error: %v>", pc+uint64(off), err))
			break
		}
		lines = append(lines, fmt.Sprintf("%#x: %s", pc+uint64(off), x86asm.GNUSyntax(inst, pc+uint64(off), nil)))
		off += inst.Len
	}
	return lines
}
