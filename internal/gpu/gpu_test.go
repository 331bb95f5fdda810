package gpu

import (
	"encoding/binary"
	"runtime"
	"testing"

	"kestrel/internal/defs"
	"kestrel/internal/virtio"
)

type fakeRegisterIO struct{ bytes []byte }

func (f *fakeRegisterIO) Read8(off uint32) uint8       { return f.bytes[off] }
func (f *fakeRegisterIO) Read16(off uint32) uint16     { return 0 }
func (f *fakeRegisterIO) Read32(off uint32) uint32     { return 0 }
func (f *fakeRegisterIO) Write8(off uint32, v uint8)   { f.bytes[off] = v }
func (f *fakeRegisterIO) Write16(off uint32, v uint16) {}
func (f *fakeRegisterIO) Write32(off uint32, v uint32) {}

// respondOK plays the device side of one request: wait for the avail ring
// to move past the used index, then write an OK_NODATA response and publish
// a used-ring entry for the chain head in that avail slot.
func respondOK(q *virtio.Queue, avail []byte, respMem []byte) {
	used := binary.LittleEndian.Uint16(q.Used[2:])
	for binary.LittleEndian.Uint16(avail[2:]) == used {
		runtime.Gosched()
	}
	slot := uint32(used % q.Size)
	head := binary.LittleEndian.Uint16(avail[4+2*slot:])
	binary.LittleEndian.PutUint32(respMem[0:], respOKNodata)
	binary.LittleEndian.PutUint32(q.Used[4+8*slot:], uint32(head))
	binary.LittleEndian.PutUint32(q.Used[8+8*slot:], uint32(len(respMem)))
	binary.LittleEndian.PutUint16(q.Used[2:], used+1)
}

func newTestDevice() (*Device, *virtio.Queue, []byte) {
	const size = 4
	descLen, availLen, usedLen := virtio.RingBytes(size)
	avail := make([]byte, availLen)
	q := virtio.NewQueue(size, make([]byte, descLen), avail, make([]byte, usedLen))
	tr := Transport{
		Queue: q, Notify: &fakeRegisterIO{bytes: make([]byte, 8)}, NotifyOff: 0,
		ReqPhys: 0, ReqMem: make([]byte, 128),
		RespPhys: 4096, RespMem: make([]byte, 24),
	}
	return NewDevice(tr), q, avail
}

func TestCreateResourceAttachScanoutAndFlush(t *testing.T) {
	d, q, avail := newTestDevice()

	go respondOK(q, avail, d.t.RespMem)
	if err := d.CreateResource2D(1, FormatB8G8R8A8, 1024, 768); err != defs.ENONE {
		t.Fatalf("CreateResource2D: %v", err)
	}

	go respondOK(q, avail, d.t.RespMem)
	if err := d.AttachBacking(1, 0x10000, 1024*768*4); err != defs.ENONE {
		t.Fatalf("AttachBacking: %v", err)
	}

	go respondOK(q, avail, d.t.RespMem)
	if err := d.SetScanout(1, 0, 0, 1024, 768); err != defs.ENONE {
		t.Fatalf("SetScanout: %v", err)
	}

	go respondOK(q, avail, d.t.RespMem)
	if err := d.TransferToHost2D(1, 0, 0, 1024, 768); err != defs.ENONE {
		t.Fatalf("TransferToHost2D: %v", err)
	}

	go respondOK(q, avail, d.t.RespMem)
	if err := d.Flush(1, 0, 0, 1024, 768); err != defs.ENONE {
		t.Fatalf("Flush: %v", err)
	}
}

func TestUnrefResourcePropagatesDeviceError(t *testing.T) {
	d, q, avail := newTestDevice()
	go func() {
		for binary.LittleEndian.Uint16(avail[2:]) == 0 {
			runtime.Gosched()
		}
		binary.LittleEndian.PutUint32(d.t.RespMem[0:], 0x1200) // RESP_ERR_UNSPEC
		binary.LittleEndian.PutUint32(q.Used[4:], 0)
		binary.LittleEndian.PutUint32(q.Used[8:], uint32(len(d.t.RespMem)))
		binary.LittleEndian.PutUint16(q.Used[2:], 1)
	}()
	if err := d.UnrefResource(1); err != defs.EDEVFAIL {
		t.Fatalf("UnrefResource = %v, want EDEVFAIL", err)
	}
}
