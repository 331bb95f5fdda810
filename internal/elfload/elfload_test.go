package elfload

import (
	"bytes"
	"encoding/binary"
	"testing"

	"kestrel/internal/config"
	"kestrel/internal/defs"
	"kestrel/internal/pmm"
	"kestrel/internal/vmm"
)

// buildMinimalETDyn constructs a one-segment ET_DYN image whose entry byte
// is a recognizable marker, with no relocations.
func buildMinimalETDyn(t *testing.T) (data []byte, entryOff uint64) {
	t.Helper()
	const (
		ehdrSize = 64
		phdrSize = 56
	)
	entryOff = 0x10
	codeLen := uint64(0x20)

	var buf bytes.Buffer
	h := ehdr{
		Type:      etDyn,
		Machine:   machineX8664,
		Version:   1,
		Entry:     entryOff,
		Phoff:     ehdrSize,
		Shoff:     0,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     1,
		Shentsize: 0,
		Shnum:     0,
	}
	h.Ident[0], h.Ident[1], h.Ident[2], h.Ident[3] = 0x7f, 'E', 'L', 'F'
	h.Ident[4], h.Ident[5], h.Ident[6] = classELF64, dataLSB, versionCur

	binary.Write(&buf, binary.LittleEndian, &h)

	ph := phdr{
		Type:   ptLoad,
		Flags:  phFlagR | phFlagX,
		Offset: ehdrSize + phdrSize,
		Vaddr:  0,
		Paddr:  0,
		Filesz: codeLen,
		Memsz:  codeLen,
		Align:  0x1000,
	}
	binary.Write(&buf, binary.LittleEndian, &ph)

	code := make([]byte, codeLen)
	code[entryOff] = 0xCC // marker byte at the entry offset
	buf.Write(code)

	return buf.Bytes(), entryOff
}

func TestLoadEntryPointByteRoundTrips(t *testing.T) {
	const arenaSize = 16 * 1024 * 1024
	sim, err := pmm.NewSimMemory(0, arenaSize)
	if err != nil {
		t.Fatalf("NewSimMemory: %v", err)
	}
	defer sim.Close()

	p := pmm.New([]config.MemRegion{{Start: 0, Len: arenaSize}}, 0, sim)
	v := vmm.New(p, sim)
	owner := defs.MkPid(42, 0)
	pml4, errt := v.NewUserPML4(owner)
	if errt != defs.ENONE {
		t.Fatalf("NewUserPML4: %v", errt)
	}

	data, entryOff := buildMinimalETDyn(t)
	res, errt := Load(data, p, v, sim, pml4, owner)
	if errt != defs.ENONE {
		t.Fatalf("Load: %v", errt)
	}
	wantEntry := Base + entryOff
	if res.Entry != wantEntry {
		t.Fatalf("entry = %#x, want %#x", res.Entry, wantEntry)
	}

	phys, _, ok := v.GetPhys(res.Entry, pml4)
	if !ok {
		t.Fatal("entry point not mapped")
	}
	// GetPhys yields the page frame; the byte's offset within it comes from
	// the virtual address.
	page := sim.Page(pageAlignDown(phys))
	off := res.Entry - pageAlignDown(res.Entry)
	if page[off] != 0xCC {
		t.Fatalf("entry byte = %#x, want 0xCC", page[off])
	}
}

// buildETDynWithGlobDat constructs an ET_DYN image with one PT_LOAD segment,
// a two-entry SHT_DYNSYM table (a null symbol plus a defined symbol at
// symValue), and a single SHT_RELA R_X86_64_GLOB_DAT relocation at relaOff
// targeting that symbol, to verify dynamic-symbol-table resolution.
func buildETDynWithGlobDat(t *testing.T, symValue uint64) (data []byte, relaOff uint64) {
	t.Helper()
	const (
		ehdrSize = 64
		phdrSize = 56
		shdrSize = 64
		symSize  = elfSymSize
		relaSize = 24
	)
	codeLen := uint64(0x20)
	relaOff = 0x18

	var buf bytes.Buffer
	h := ehdr{
		Type:      etDyn,
		Machine:   machineX8664,
		Version:   1,
		Entry:     0x10,
		Phoff:     ehdrSize,
		Shoff:     0, // patched below
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     1,
		Shentsize: shdrSize,
		Shnum:     2,
	}
	h.Ident[0], h.Ident[1], h.Ident[2], h.Ident[3] = 0x7f, 'E', 'L', 'F'
	h.Ident[4], h.Ident[5], h.Ident[6] = classELF64, dataLSB, versionCur

	ph := phdr{
		Type:   ptLoad,
		Flags:  phFlagR | phFlagW,
		Offset: ehdrSize + phdrSize,
		Vaddr:  0,
		Filesz: codeLen,
		Memsz:  codeLen,
		Align:  0x1000,
	}

	dynsymOff := ph.Offset + codeLen
	symtab := make([]byte, 2*symSize)
	sym := elf64Sym{Shndx: 1, Value: symValue}
	symBuf := &bytes.Buffer{}
	binary.Write(symBuf, binary.LittleEndian, &sym)
	copy(symtab[symSize:], symBuf.Bytes())

	relaTabOff := dynsymOff + uint64(len(symtab))
	r := rela{Offset: relaOff, Info: uint64(1)<<32 | rX8664GlobDat, Addend: 0}

	shoff := relaTabOff + relaSize
	h.Shoff = shoff

	binary.Write(&buf, binary.LittleEndian, &h)
	binary.Write(&buf, binary.LittleEndian, &ph)
	buf.Write(make([]byte, codeLen))
	buf.Write(symtab)
	binary.Write(&buf, binary.LittleEndian, &r)

	dynsymShdr := shdr{Type: shtDynsym, Offset: dynsymOff, Size: uint64(len(symtab)), Entsize: symSize}
	relaShdr := shdr{Type: shtRela, Offset: relaTabOff, Size: relaSize, Entsize: relaSize}
	binary.Write(&buf, binary.LittleEndian, &dynsymShdr)
	binary.Write(&buf, binary.LittleEndian, &relaShdr)

	return buf.Bytes(), relaOff
}

func TestGlobDatResolvesAgainstDynamicSymbolTable(t *testing.T) {
	const arenaSize = 16 * 1024 * 1024
	sim, err := pmm.NewSimMemory(0, arenaSize)
	if err != nil {
		t.Fatalf("NewSimMemory: %v", err)
	}
	defer sim.Close()

	p := pmm.New([]config.MemRegion{{Start: 0, Len: arenaSize}}, 0, sim)
	v := vmm.New(p, sim)
	owner := defs.MkPid(7, 0)
	pml4, errt := v.NewUserPML4(owner)
	if errt != defs.ENONE {
		t.Fatalf("NewUserPML4: %v", errt)
	}

	const symValue = 0x1234
	data, relaOff := buildETDynWithGlobDat(t, symValue)
	if _, errt := Load(data, p, v, sim, pml4, owner); errt != defs.ENONE {
		t.Fatalf("Load: %v", errt)
	}

	target := Base + relaOff
	phys, _, ok := v.GetPhys(target, pml4)
	if !ok {
		t.Fatal("relocation target not mapped")
	}
	page := sim.Page(pageAlignDown(phys))
	off := target - pageAlignDown(target)
	got :=binary.LittleEndian.Uint64(page[off : off+8])
	want := uint64(symValue) + Base
	if got != want {
		t.Fatalf("GLOB_DAT patched word = %#x, want %#x (symbol value + load base)", got, want)
	}
}

func TestLoadRejectsKernelHalfOverlap(t *testing.T) {
	const arenaSize = 16 * 1024 * 1024
	sim, err := pmm.NewSimMemory(0, arenaSize)
	if err != nil {
		t.Fatalf("NewSimMemory: %v", err)
	}
	defer sim.Close()
	p := pmm.New([]config.MemRegion{{Start: 0, Len: arenaSize}}, 0, sim)
	v := vmm.New(p, sim)
	owner := defs.MkPid(1, 0)
	pml4, _ := v.NewUserPML4(owner)

	data, _ := buildMinimalETDyn(t)
	// Corrupt the single phdr's vaddr to land in the kernel half.
	binary.LittleEndian.PutUint64(data[64+16:64+24], vmm.UserHalfLimit)

	if _, errt := Load(data, p, v, sim, pml4, owner); errt != defs.EINVALIDELF {
		t.Fatalf("expected EINVALIDELF, got %v", errt)
	}
}
