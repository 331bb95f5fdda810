package blkdev

import (
	"encoding/binary"
	"runtime"
	"testing"

	"kestrel/internal/defs"
	"kestrel/internal/virtio"
)

// fakeRegisterIO is a flat byte buffer standing in for a mapped BAR, shared
// shape with internal/virtio's test double.
type fakeRegisterIO struct{ bytes []byte }

func (f *fakeRegisterIO) Read8(off uint32) uint8      { return f.bytes[off] }
func (f *fakeRegisterIO) Read16(off uint32) uint16    { return 0 }
func (f *fakeRegisterIO) Read32(off uint32) uint32    { return 0 }
func (f *fakeRegisterIO) Write8(off uint32, v uint8)  { f.bytes[off] = v }
func (f *fakeRegisterIO) Write16(off uint32, v uint16) {}
func (f *fakeRegisterIO) Write32(off uint32, v uint32) {}

// fakeMemory backs the header/data/status buffers at fixed "physical"
// addresses in one flat byte slice, mimicking pmm.SimMemory.Bytes.
type fakeMemory struct{ buf []byte }

func (m *fakeMemory) at(phys uint64, n int) []byte { return m.buf[phys : phys+uint64(n)] }

// simulateDevice plays the device side of one request: it busy-waits for
// the avail ring to move past the used index, writes status, and publishes
// a used-ring entry for the descriptor chain head in that avail slot.
func simulateDevice(q *virtio.Queue, avail []byte, status []byte, statusByte uint8, writtenLen uint32) {
	used := binary.LittleEndian.Uint16(q.Used[2:])
	for binary.LittleEndian.Uint16(avail[2:]) == used {
		runtime.Gosched()
	}
	slot := uint32(used % q.Size)
	head := binary.LittleEndian.Uint16(avail[4+2*slot:])
	status[0] = statusByte
	binary.LittleEndian.PutUint32(q.Used[4+8*slot:], uint32(head))
	binary.LittleEndian.PutUint32(q.Used[8+8*slot:], writtenLen)
	binary.LittleEndian.PutUint16(q.Used[2:], used+1)
}

func TestVirtioBlockDeviceReadWriteRoundTrips(t *testing.T) {
	const size = 4
	descLen, availLen, usedLen := virtio.RingBytes(size)
	avail := make([]byte, availLen)
	q := virtio.NewQueue(size, make([]byte, descLen), avail, make([]byte, usedLen))

	mem := &fakeMemory{buf: make([]byte, 8192)}
	buffers := RequestBuffers{
		HeaderPhys: 0, HeaderMem: mem.at(0, reqHeaderLen),
		DataPhys:   64, DataMem: mem.at(64, SectorSize),
		StatusPhys: 1024, StatusMem: mem.at(1024, 1),
	}
	dev := NewVirtioBlockDevice(q, &fakeRegisterIO{bytes: make([]byte, 8)}, 0, 100, buffers)

	src := make([]byte, SectorSize)
	for i := range src {
		src[i] = byte(i)
	}

	go simulateDevice(q, avail, buffers.StatusMem, blkStatusOK, SectorSize)
	if err := dev.WriteSector(5, src); err != defs.ENONE {
		t.Fatalf("WriteSector: %v", err)
	}

	go simulateDevice(q, avail, buffers.StatusMem, blkStatusOK, SectorSize)
	dst := make([]byte, SectorSize)
	if err := dev.ReadSector(5, dst); err != defs.ENONE {
		t.Fatalf("ReadSector: %v", err)
	}
	for i := range dst {
		if dst[i] != src[i] {
			t.Fatalf("byte %d = %d, want %d", i, dst[i], src[i])
		}
	}
}

func TestVirtioBlockDeviceRejectsOutOfRangeLBA(t *testing.T) {
	const size = 4
	descLen, availLen, usedLen := virtio.RingBytes(size)
	q := virtio.NewQueue(size, make([]byte, descLen), make([]byte, availLen), make([]byte, usedLen))
	mem := &fakeMemory{buf: make([]byte, 8192)}
	buffers := RequestBuffers{
		HeaderPhys: 0, HeaderMem: mem.at(0, reqHeaderLen),
		DataPhys:   64, DataMem: mem.at(64, SectorSize),
		StatusPhys: 1024, StatusMem: mem.at(1024, 1),
	}
	dev := NewVirtioBlockDevice(q, &fakeRegisterIO{bytes: make([]byte, 8)}, 0, 10, buffers)
	if err := dev.ReadSector(99, make([]byte, SectorSize)); err != defs.EINVAL {
		t.Fatalf("ReadSector out of range = %v, want EINVAL", err)
	}
}

func TestATADeviceReadWriteRoundTrips(t *testing.T) {
	disk := make([]byte, 200*SectorSize)
	io := &fakePortIO{disk: disk}
	dev := NewATADevice(io, 200)

	src := make([]byte, SectorSize)
	for i := range src {
		src[i] = byte(i)
	}
	if err := dev.WriteSector(5, src); err != defs.ENONE {
		t.Fatalf("WriteSector: %v", err)
	}
	dst := make([]byte, SectorSize)
	if err := dev.ReadSector(5, dst); err != defs.ENONE {
		t.Fatalf("ReadSector: %v", err)
	}
	for i := range dst {
		if dst[i] != src[i] {
			t.Fatalf("byte %d = %d, want %d", i, dst[i], src[i])
		}
	}
}

func TestATADeviceRejectsOutOfRangeLBA(t *testing.T) {
	dev := NewATADevice(&fakePortIO{disk: make([]byte, 10*SectorSize)}, 10)
	if err := dev.ReadSector(50, make([]byte, SectorSize)); err != defs.EINVAL {
		t.Fatalf("ReadSector out of range = %v, want EINVAL", err)
	}
}

// fakePortIO simulates the primary ATA PIO channel entirely in memory: a
// single in-flight LBA/sector-count register set, immediately "ready" with
// no BSY delay, backed by a flat sector array.
type fakePortIO struct {
	disk       []byte
	lba        uint32
	wordCursor int
	pendingCmd uint8
}

func (f *fakePortIO) In8(port uint16) uint8 {
	switch port {
	case ataStatus:
		return ataStatusDRQ // always ready, never busy, no error
	}
	return 0
}

func (f *fakePortIO) In16(port uint16) uint16 {
	if port != ataData {
		return 0
	}
	off := int(f.lba)*SectorSize + f.wordCursor*2
	w := uint16(f.disk[off]) | uint16(f.disk[off+1])<<8
	f.wordCursor++
	return w
}

func (f *fakePortIO) Out8(port uint16, v uint8) {
	switch port {
	case ataLBALow:
		f.lba = f.lba&^0xFF | uint32(v)
	case ataLBAMid:
		f.lba = f.lba&^0xFF00 | uint32(v)<<8
	case ataLBAHigh:
		f.lba = f.lba&^0xFF0000 | uint32(v)<<16
	case ataDriveHead:
		f.lba = f.lba&^0x0F000000 | uint32(v&0x0F)<<24
	case ataCommand:
		f.pendingCmd = v
		f.wordCursor = 0
	}
}

func (f *fakePortIO) Out16(port uint16, v uint16) {
	if port != ataData {
		return
	}
	off := int(f.lba)*SectorSize + f.wordCursor*2
	f.disk[off] = byte(v)
	f.disk[off+1] = byte(v >> 8)
	f.wordCursor++
}
