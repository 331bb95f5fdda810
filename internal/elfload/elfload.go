// Package elfload parses and instantiates ET_DYN x86-64 ELF binaries: spec.md
// §4.5. Field layout follows the original Rust "elfic" crate kept in
// original_source/elfic (Elf64Ehdr/Elf64Phdr/Elf64Rela), re-expressed as
// plain Go structs decoded with encoding/binary rather than carried over
// verbatim.
package elfload

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"kestrel/internal/defs"
	"kestrel/internal/vmm"
)

const (
	classELF64 = 2
	dataLSB    = 1
	versionCur = 1

	machineX8664 = 0x3e
	etDyn        = 3

	ptLoad = 1

	shtRela   = 4
	shtDynsym = 11

	rX8664Relative = 8
	rX8664GlobDat  = 6
	rX8664JumpSlot = 7

	elfSymSize = 24

	phFlagX = 1
	phFlagW = 2
	phFlagR = 4
)

// Base is the fixed load base applied to every ET_DYN image (spec.md §4.5).
const Base uint64 = 0x400000

type ehdr struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type phdr struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

type shdr struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

type rela struct {
	Offset uint64
	Info   uint64
	Addend int64
}

func (r rela) relType() uint32 { return uint32(r.Info) }
func (r rela) symIdx() uint32  { return uint32(r.Info >> 32) }

// elf64Sym mirrors elfic's Elf64Sym (original_source/elfic/src/symbol.rs):
// name, info/other bytes, section index, value, size.
type elf64Sym struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

func readStruct(data []byte, off uint64, v interface{}) error {
	sz := uint64(binary.Size(v))
	if off+sz > uint64(len(data)) {
		return fmt.Errorf("elfload: out of bounds read at %#x (size %d, total %d)", off, sz, len(data))
	}
	r := bytes.NewReader(data[off : off+sz])
	return binary.Read(r, binary.LittleEndian, v)
}

// FrameAllocator is the PMM surface the loader needs: one frame per page.
type FrameAllocator interface {
	Allocate(bytes uint64, owner defs.Pid_t) (uint64, bool)
}

// Mapper is the VMM surface the loader needs.
type Mapper interface {
	Map(virt, phys uint64, flags vmm.PTE, pml4Phys uint64, owner defs.Pid_t) defs.Err_t
}

// PageWriter lets the loader copy file bytes into a freshly mapped frame; on
// real hardware this is a direct HHDM write, in the hosted build it is
// pmm.SimMemory.Page.
type PageWriter interface {
	Page(phys uint64) []byte
}

// Result is what a successful Load returns.
type Result struct {
	Entry uint64
}

const pageSize = 4096

func pageAlignDown(v uint64) uint64 { return v &^ (pageSize - 1) }
func pageAlignUp(v uint64) uint64   { return (v + pageSize - 1) &^ (pageSize - 1) }

// Load validates data as an ET_DYN x86-64 ELF, maps its PT_LOAD segments
// into pml4Phys (owned by owner), applies RELA relocations against Base,
// and returns the entry point. Any segment overlapping the kernel high half
// (vmm.UserHalfLimit) aborts the load with EINVALIDELF, per spec.md §4.5.
func Load(data []byte, frames FrameAllocator, m Mapper, pages PageWriter, pml4Phys uint64, owner defs.Pid_t) (Result, defs.Err_t) {
	var h ehdr
	if err := readStruct(data, 0, &h); err != nil {
		return Result{}, defs.EINVALIDELF
	}
	if h.Ident[0] != 0x7f || h.Ident[1] != 'E' || h.Ident[2] != 'L' || h.Ident[3] != 'F' {
		return Result{}, defs.EINVALIDELF
	}
	if h.Ident[4] != classELF64 || h.Ident[5] != dataLSB || h.Ident[6] != versionCur {
		return Result{}, defs.EINVALIDELF
	}
	if h.Machine != machineX8664 || h.Type != etDyn {
		return Result{}, defs.EINVALIDELF
	}

	for i := 0; i < int(h.Phnum); i++ {
		var ph phdr
		off := h.Phoff + uint64(i)*uint64(h.Phentsize)
		if err := readStruct(data, off, &ph); err != nil {
			return Result{}, defs.EINVALIDELF
		}
		if ph.Type != ptLoad {
			continue
		}
		if err := loadSegment(data, &ph, frames, m, pages, pml4Phys, owner); err != defs.ENONE {
			return Result{}, err
		}
	}

	var dynsym *shdr
	for i := 0; i < int(h.Shnum); i++ {
		var sh shdr
		off := h.Shoff + uint64(i)*uint64(h.Shentsize)
		if err := readStruct(data, off, &sh); err != nil {
			return Result{}, defs.EINVALIDELF
		}
		if sh.Type == shtDynsym {
			sh := sh
			dynsym = &sh
			break
		}
	}

	for i := 0; i < int(h.Shnum); i++ {
		var sh shdr
		off := h.Shoff + uint64(i)*uint64(h.Shentsize)
		if err := readStruct(data, off, &sh); err != nil {
			return Result{}, defs.EINVALIDELF
		}
		if sh.Type != shtRela {
			continue
		}
		if err := applyRelocations(data, &sh, dynsym, frames, m, pages, pml4Phys, owner); err != defs.ENONE {
			return Result{}, err
		}
	}

	return Result{Entry: Base + h.Entry}, defs.ENONE
}

func segFlags(ph *phdr) vmm.PTE {
	f := vmm.PTE_P | vmm.PTE_U
	if ph.Flags&phFlagW != 0 {
		f |= vmm.PTE_W
	}
	return f
}

func loadSegment(data []byte, ph *phdr, frames FrameAllocator, m Mapper, pages PageWriter, pml4Phys uint64, owner defs.Pid_t) defs.Err_t {
	vstart := Base + ph.Vaddr
	vend := vstart + ph.Memsz
	if vstart >= vmm.UserHalfLimit || vend > vmm.UserHalfLimit {
		return defs.EINVALIDELF
	}

	alignedStart := pageAlignDown(vstart)
	alignedEnd := pageAlignUp(vend)
	flags := segFlags(ph)

	for va := alignedStart; va < alignedEnd; va += pageSize {
		phys, ok := frames.Allocate(pageSize, owner)
		if !ok {
			return defs.EOOM
		}
		if err := m.Map(va, phys, flags, pml4Phys, owner); err != defs.ENONE {
			return err
		}

		page := pages.Page(phys)
		// copy the intersection of [va, va+pageSize) with the file
		// region [vstart, vstart+Filesz); anything past Filesz within
		// Memsz is left zero (bss), matching the PMM's zero-on-alloc
		// guarantee.
		fileStart := vstart
		fileEnd := vstart + ph.Filesz
		winStart := va
		winEnd := va + pageSize
		lo := max64(fileStart, winStart)
		hi := min64(fileEnd, winEnd)
		if hi > lo {
			srcOff := ph.Offset + (lo - vstart)
			if srcOff+(hi-lo) > uint64(len(data)) {
				return defs.EINVALIDELF
			}
			copy(page[lo-winStart:hi-winStart], data[srcOff:srcOff+(hi-lo)])
		}
	}
	return defs.ENONE
}

// resolveSymbol reads symtab[symIdx] and returns st_value + Base, the way
// original_source/kernel/src/fs/elf.rs resolves GLOB_DAT/JUMP_SLOT: an
// undefined symbol (st_shndx == 0) resolves to nothing.
func resolveSymbol(data []byte, symtab *shdr, symIdx uint32) (uint64, bool) {
	if symtab == nil {
		return 0, false
	}
	off := symtab.Offset + uint64(symIdx)*elfSymSize
	var sym elf64Sym
	if err := readStruct(data, off, &sym); err != nil {
		return 0, false
	}
	if sym.Shndx == 0 {
		return 0, false
	}
	return sym.Value + Base, true
}

func applyRelocations(data []byte, sh *shdr, dynsym *shdr, frames FrameAllocator, m Mapper, pages PageWriter, pml4Phys uint64, owner defs.Pid_t) defs.Err_t {
	n := sh.Size / 24 // sizeof(rela)
	for i := uint64(0); i < n; i++ {
		var r rela
		if err := readStruct(data, sh.Offset+i*24, &r); err != nil {
			return defs.EINVALIDELF
		}
		target := Base + r.Offset
		var value uint64
		switch r.relType() {
		case rX8664Relative:
			value = uint64(int64(Base) + r.Addend)
		case rX8664GlobDat, rX8664JumpSlot:
			v, ok := resolveSymbol(data, dynsym, r.symIdx())
			if !ok {
				continue
			}
			value = v
		default:
			continue
		}
		if err := writeTargetWord(target, value, frames, m, pages, pml4Phys, owner); err != defs.ENONE {
			return err
		}
	}
	return defs.ENONE
}

func writeTargetWord(virt uint64, value uint64, frames FrameAllocator, m Mapper, pages PageWriter, pml4Phys uint64, owner defs.Pid_t) defs.Err_t {
	page := pageAlignDown(virt)
	off := virt - page
	// The segment mapping loop above always maps the page that backs any
	// in-range relocation target before relocations run; locate its
	// physical frame through the mapper.
	type translator interface {
		GetPhys(virt uint64, pml4Phys uint64) (uint64, vmm.PTE, bool)
	}
	tr, ok := m.(translator)
	if !ok {
		return defs.EUNSUPRELOC
	}
	phys, _, mapped := tr.GetPhys(page, pml4Phys)
	if !mapped {
		return defs.EINVALIDELF
	}
	buf := pages.Page(phys)
	binary.LittleEndian.PutUint64(buf[off:off+8], value)
	return defs.ENONE
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
