package virtio

import (
	"encoding/binary"
	"testing"

	"kestrel/internal/defs"
)

// fakeConfigSpace is a byte-array-backed ConfigSpace standing in for ECAM.
type fakeConfigSpace struct {
	bytes [256]byte
}

func (f *fakeConfigSpace) Read8(off uint32) uint8   { return f.bytes[off] }
func (f *fakeConfigSpace) Read16(off uint32) uint16 { return binary.LittleEndian.Uint16(f.bytes[off:]) }
func (f *fakeConfigSpace) Read32(off uint32) uint32 { return binary.LittleEndian.Uint32(f.bytes[off:]) }
func (f *fakeConfigSpace) Write32(off uint32, v uint32) {
	binary.LittleEndian.PutUint32(f.bytes[off:], v)
}

func buildVirtIOBlockFunction() *fakeConfigSpace {
	f := &fakeConfigSpace{}
	binary.LittleEndian.PutUint16(f.bytes[offVendorID:], virtioVendorID)
	binary.LittleEndian.PutUint16(f.bytes[offDeviceID:], 0x1042) // transitional block
	f.bytes[offCapPointer] = 0x40

	// Common Config capability at 0x40.
	f.bytes[0x40] = CapVendorSpecific
	f.bytes[0x41] = 0x50 // next
	f.bytes[0x43] = CfgTypeCommon
	f.bytes[0x44] = 4 // bar
	binary.LittleEndian.PutUint32(f.bytes[0x48:], 0x1000)
	binary.LittleEndian.PutUint32(f.bytes[0x4C:], 0x100)

	// Notify capability at 0x50.
	f.bytes[0x50] = CapVendorSpecific
	f.bytes[0x51] = 0 // end of list
	f.bytes[0x53] = CfgTypeNotify
	f.bytes[0x54] = 4
	binary.LittleEndian.PutUint32(f.bytes[0x58:], 0x2000)
	binary.LittleEndian.PutUint32(f.bytes[0x5C:], 0x100)
	binary.LittleEndian.PutUint32(f.bytes[0x60:], 2) // notify_off_multiplier

	return f
}

func TestScanCapabilitiesFindsCommonAndNotify(t *testing.T) {
	f := buildVirtIOBlockFunction()
	if !IsVirtIODevice(f) {
		t.Fatal("expected vendor ID to read as VirtIO")
	}
	caps, err := ScanCapabilities(f)
	if err != defs.ENONE {
		t.Fatalf("ScanCapabilities: %v", err)
	}
	if caps.Common.Bar != 4 || caps.Common.Offset != 0x1000 {
		t.Fatalf("common cap = %+v", caps.Common)
	}
	if caps.Notify.Bar != 4 || caps.Notify.Offset != 0x2000 || caps.NotifyOffMultiplier != 2 {
		t.Fatalf("notify cap = %+v, mult=%d", caps.Notify, caps.NotifyOffMultiplier)
	}
}

// fakeRegisterIO is a flat byte buffer standing in for a mapped BAR.
type fakeRegisterIO struct {
	bytes []byte
}

func newFakeRegisterIO(n int) *fakeRegisterIO { return &fakeRegisterIO{bytes: make([]byte, n)} }

func (f *fakeRegisterIO) Read8(off uint32) uint8 { return f.bytes[off] }
func (f *fakeRegisterIO) Read16(off uint32) uint16 {
	return binary.LittleEndian.Uint16(f.bytes[off:])
}
func (f *fakeRegisterIO) Read32(off uint32) uint32 {
	return binary.LittleEndian.Uint32(f.bytes[off:])
}
func (f *fakeRegisterIO) Write8(off uint32, v uint8) { f.bytes[off] = v }
func (f *fakeRegisterIO) Write16(off uint32, v uint16) {
	binary.LittleEndian.PutUint16(f.bytes[off:], v)
}
func (f *fakeRegisterIO) Write32(off uint32, v uint32) {
	binary.LittleEndian.PutUint32(f.bytes[off:], v)
}

// autoCompleteCommonConfig simulates a device that always reports the
// requested features available and never asks for a reset.
type autoCompleteCommonConfig struct {
	*fakeRegisterIO
}

func (a *autoCompleteCommonConfig) Read32(off uint32) uint32 {
	if off == commonDeviceFeature {
		return 0xFFFFFFFF
	}
	return a.fakeRegisterIO.Read32(off)
}

func (a *autoCompleteCommonConfig) Read8(off uint32) uint8 {
	if off == commonDeviceStatus {
		// echo back whatever was last written, so FEATURES_OK sticks.
		return a.fakeRegisterIO.Read8(off)
	}
	return a.fakeRegisterIO.Read8(off)
}

func TestNegotiateAcceptsSupportedFeatures(t *testing.T) {
	bar := &autoCompleteCommonConfig{newFakeRegisterIO(64)}
	cc := CommonConfig{Bar: bar}
	if err := cc.Negotiate(0x1); err != defs.ENONE {
		t.Fatalf("Negotiate: %v", err)
	}
	status := bar.Read8(commonDeviceStatus)
	if status&StatusDriverOK == 0 {
		t.Fatalf("status = %#x, want DRIVER_OK set", status)
	}
}

func TestNegotiateRejectsUnsupportedFeature(t *testing.T) {
	bar := newFakeRegisterIO(64) // device reports zero features
	cc := CommonConfig{Bar: bar}
	if err := cc.Negotiate(0x1); err != defs.EPROTO {
		t.Fatalf("Negotiate = %v, want EPROTO", err)
	}
}

func TestQueueAddChainThenPopUsedRoundTrips(t *testing.T) {
	const size = 8
	descLen, availLen, usedLen := RingBytes(size)
	desc := make([]byte, descLen)
	avail := make([]byte, availLen)
	used := make([]byte, usedLen)
	q := NewQueue(size, desc, avail, used)

	head, ok := q.AddChain([]ChainEntry{
		{Addr: 0x1000, Len: 16, Write: false},
		{Addr: 0x2000, Len: 512, Write: true},
	})
	if !ok {
		t.Fatal("AddChain failed")
	}

	// Simulate the device consuming avail[0] and publishing a used entry.
	binary.LittleEndian.PutUint32(used[4:], uint32(head))
	binary.LittleEndian.PutUint32(used[8:], 512)
	binary.LittleEndian.PutUint16(used[2:], 1)

	gotHead, length, ok := q.PopUsed()
	if !ok || gotHead != head || length != 512 {
		t.Fatalf("PopUsed = head=%d len=%d ok=%v, want head=%d len=512 ok=true", gotHead, length, ok, head)
	}
	if _, _, ok := q.PopUsed(); ok {
		t.Fatal("expected no further used entries")
	}
	if q.numFree != size {
		t.Fatalf("numFree = %d, want %d after chain freed", q.numFree, size)
	}
}

func TestQueueAddChainFailsWhenFreeListExhausted(t *testing.T) {
	const size = 2
	descLen, availLen, usedLen := RingBytes(size)
	q := NewQueue(size, make([]byte, descLen), make([]byte, availLen), make([]byte, usedLen))
	entries := make([]ChainEntry, 3)
	if _, ok := q.AddChain(entries); ok {
		t.Fatal("expected AddChain to fail when requesting more descriptors than the queue holds")
	}
}
