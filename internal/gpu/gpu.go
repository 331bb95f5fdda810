// Package gpu drives a VirtIO GPU 2D scanout device: resource lifecycle,
// scanout configuration, and damage flush, spec.md §4.8/§4.9. Command and
// response type values follow
// iansmith-mazarin/src/mazboot/golang/main/virtio_gpu.go's
// VIRTIO_GPU_CMD_*/VIRTIO_GPU_RESP_* constants and struct field layout
// (VirtIOGPUCtrlHdr, VirtIOGPUResourceCreate2D, VirtIOGPURect, ...),
// re-expressed with encoding/binary wire packing instead of raw memory
// casts since kestrel drives the device over a virtqueue rather than MMIO
// command registers.
package gpu

import (
	"encoding/binary"

	"kestrel/internal/defs"
	"kestrel/internal/virtio"
)

// Command types (VirtIO GPU §5.7.3).
const (
	cmdGetDisplayInfo     = 0x0100
	cmdResourceCreate2D   = 0x0101
	cmdResourceUnref      = 0x0102
	cmdSetScanout         = 0x0103
	cmdResourceFlush      = 0x0104
	cmdTransferToHost2D   = 0x0105
	cmdResourceAttachBack = 0x0106
)

// Response types.
const (
	respOKNodata      = 0x1100
	respOKDisplayInfo = 0x1101
)

// Format is a VirtIO GPU pixel format (VIRTIO_GPU_FORMAT_*).
type Format uint32

const (
	FormatB8G8R8A8 Format = 1
	FormatB8G8R8X8 Format = 2
	FormatR8G8B8A8 Format = 3
)

const ctrlHdrLen = 24 // type,flags,fence_id(8),ctx_id,padding

func putCtrlHdr(buf []byte, cmdType uint32) {
	binary.LittleEndian.PutUint32(buf[0:], cmdType)
	binary.LittleEndian.PutUint32(buf[4:], 0)
	binary.LittleEndian.PutUint64(buf[8:], 0)
	binary.LittleEndian.PutUint32(buf[16:], 0)
	binary.LittleEndian.PutUint32(buf[20:], 0)
}

func respType(buf []byte) uint32 { return binary.LittleEndian.Uint32(buf[0:]) }

// Transport is the queue plumbing a Device needs: one controlq for
// commands/responses, with request/response buffers the caller allocates
// as physically contiguous and mapped for host access.
type Transport struct {
	Queue     *virtio.Queue
	Notify    virtio.RegisterIO
	NotifyOff uint32

	ReqPhys  uint64
	ReqMem   []byte // >= largest request struct used below
	RespPhys uint64
	RespMem  []byte // >= 24 + display-info payload
}

func (t *Transport) exchange(reqLen int) defs.Err_t {
	_, ok := t.Queue.AddChain([]virtio.ChainEntry{
		{Addr: t.ReqPhys, Len: uint32(reqLen), Write: false},
		{Addr: t.RespPhys, Len: uint32(len(t.RespMem)), Write: true},
	})
	if !ok {
		return defs.EQFULL
	}
	t.Notify.Write16(t.NotifyOff, 0)
	for {
		if _, _, ok := t.Queue.PopUsed(); ok {
			break
		}
	}
	return defs.ENONE
}

// Device is a single VirtIO GPU adapter with 2D scanout 0.
type Device struct {
	t Transport
}

// NewDevice wraps an already-negotiated GPU controlq transport.
func NewDevice(t Transport) *Device { return &Device{t: t} }

// CreateResource2D allocates resourceID as a host-side 2D resource of the
// given format and dimensions (VIRTIO_GPU_CMD_RESOURCE_CREATE_2D).
func (d *Device) CreateResource2D(resourceID uint32, format Format, width, height uint32) defs.Err_t {
	buf := d.t.ReqMem
	putCtrlHdr(buf, cmdResourceCreate2D)
	binary.LittleEndian.PutUint32(buf[24:], resourceID)
	binary.LittleEndian.PutUint32(buf[28:], uint32(format))
	binary.LittleEndian.PutUint32(buf[32:], width)
	binary.LittleEndian.PutUint32(buf[36:], height)
	if err := d.t.exchange(40); err != defs.ENONE {
		return err
	}
	return checkOKNodata(d.t.RespMem)
}

// AttachBacking attaches a single guest memory region (the resource's pixel
// buffer) so TransferToHost2D has somewhere to read from
// (VIRTIO_GPU_CMD_RESOURCE_ATTACH_BACKING).
func (d *Device) AttachBacking(resourceID uint32, phys uint64, length uint32) defs.Err_t {
	buf := d.t.ReqMem
	putCtrlHdr(buf, cmdResourceAttachBack)
	binary.LittleEndian.PutUint32(buf[24:], resourceID)
	binary.LittleEndian.PutUint32(buf[28:], 1) // nr_entries
	binary.LittleEndian.PutUint64(buf[32:], phys)
	binary.LittleEndian.PutUint32(buf[40:], length)
	binary.LittleEndian.PutUint32(buf[44:], 0) // mem entry padding
	if err := d.t.exchange(48); err != defs.ENONE {
		return err
	}
	return checkOKNodata(d.t.RespMem)
}

// SetScanout binds resourceID to scanout 0 at the given rectangle
// (VIRTIO_GPU_CMD_SET_SCANOUT).
func (d *Device) SetScanout(resourceID, x, y, width, height uint32) defs.Err_t {
	buf := d.t.ReqMem
	putCtrlHdr(buf, cmdSetScanout)
	binary.LittleEndian.PutUint32(buf[24:], x)
	binary.LittleEndian.PutUint32(buf[28:], y)
	binary.LittleEndian.PutUint32(buf[32:], width)
	binary.LittleEndian.PutUint32(buf[36:], height)
	binary.LittleEndian.PutUint32(buf[40:], 0) // scanout_id
	binary.LittleEndian.PutUint32(buf[44:], resourceID)
	if err := d.t.exchange(48); err != defs.ENONE {
		return err
	}
	return checkOKNodata(d.t.RespMem)
}

// TransferToHost2D tells the device to pull the given rectangle out of the
// attached backing store into the resource (VIRTIO_GPU_CMD_TRANSFER_TO_HOST_2D).
func (d *Device) TransferToHost2D(resourceID, x, y, width, height uint32) defs.Err_t {
	buf := d.t.ReqMem
	putCtrlHdr(buf, cmdTransferToHost2D)
	binary.LittleEndian.PutUint32(buf[24:], x)
	binary.LittleEndian.PutUint32(buf[28:], y)
	binary.LittleEndian.PutUint32(buf[32:], width)
	binary.LittleEndian.PutUint32(buf[36:], height)
	binary.LittleEndian.PutUint64(buf[40:], 0) // offset
	binary.LittleEndian.PutUint32(buf[48:], resourceID)
	binary.LittleEndian.PutUint32(buf[52:], 0)
	if err := d.t.exchange(56); err != defs.ENONE {
		return err
	}
	return checkOKNodata(d.t.RespMem)
}

// Flush tells the device the given rectangle of resourceID is ready to
// scan out (VIRTIO_GPU_CMD_RESOURCE_FLUSH), completing one frame's damage
// update for the compositor (spec.md §4.9).
func (d *Device) Flush(resourceID, x, y, width, height uint32) defs.Err_t {
	buf := d.t.ReqMem
	putCtrlHdr(buf, cmdResourceFlush)
	binary.LittleEndian.PutUint32(buf[24:], x)
	binary.LittleEndian.PutUint32(buf[28:], y)
	binary.LittleEndian.PutUint32(buf[32:], width)
	binary.LittleEndian.PutUint32(buf[36:], height)
	binary.LittleEndian.PutUint32(buf[40:], resourceID)
	binary.LittleEndian.PutUint32(buf[44:], 0)
	if err := d.t.exchange(48); err != defs.ENONE {
		return err
	}
	return checkOKNodata(d.t.RespMem)
}

// UnrefResource releases resourceID (VIRTIO_GPU_CMD_RESOURCE_UNREF).
func (d *Device) UnrefResource(resourceID uint32) defs.Err_t {
	buf := d.t.ReqMem
	putCtrlHdr(buf, cmdResourceUnref)
	binary.LittleEndian.PutUint32(buf[24:], resourceID)
	binary.LittleEndian.PutUint32(buf[28:], 0)
	if err := d.t.exchange(32); err != defs.ENONE {
		return err
	}
	return checkOKNodata(d.t.RespMem)
}

func checkOKNodata(resp []byte) defs.Err_t {
	if respType(resp) != respOKNodata {
		return defs.EDEVFAIL
	}
	return defs.ENONE
}
