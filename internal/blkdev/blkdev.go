// Package blkdev implements the VirtIO block driver and its legacy ATA PIO
// fallback, spec.md §4.8. The BlockDevice interface and sector-request shape
// follow biscuit's pci.Disk_i / pci.Idebuf_t
// (biscuit/src/pci/olddiski.go) -- Start/Complete/Intr there become
// ReadSector/WriteSector here, returning a defs.Err_t instead of biscuit's
// bool-and-interrupt-flag pair since kestrel's callers block on completion
// rather than polling an interrupt flag themselves.
package blkdev

import (
	"encoding/binary"

	"kestrel/internal/defs"
	"kestrel/internal/virtio"
)

// SectorSize is the fixed logical sector size assumed throughout (spec.md
// §4.8); 512 matches both VirtIO block's default and legacy ATA PIO.
const SectorSize = 512

// BlockDevice is the driver-agnostic surface the rest of the system reads
// and writes sectors through.
type BlockDevice interface {
	ReadSector(lba uint64, dst []byte) defs.Err_t
	WriteSector(lba uint64, src []byte) defs.Err_t
	SectorCount() uint64
}

// VirtIO block request header types (VirtIO 1.1 §5.2.6).
const (
	blkTIn  = 0
	blkTOut = 1
)

// VirtIO block status byte values.
const (
	blkStatusOK     = 0
	blkStatusIOErr  = 1
	blkStatusUnsupp = 2
)

const reqHeaderLen = 16 // type(4) + reserved(4) + sector(8)

// RequestBuffers is the trio of physical buffers a caller (who owns frame
// allocation) must provide for one request: the fixed 16-byte header, the
// data buffer, and a single status byte.
type RequestBuffers struct {
	HeaderPhys uint64
	HeaderMem  []byte // host view of HeaderPhys, len >= reqHeaderLen
	DataPhys   uint64
	DataMem    []byte // host view of DataPhys, len >= SectorSize
	StatusPhys uint64
	StatusMem  []byte // host view of StatusPhys, len >= 1
}

// VirtioBlockDevice drives a single VirtIO block device over one request
// virtqueue (spec.md §4.8): request 0 is the header/data/status chain, no
// interrupts are used, completion is observed by polling the used ring.
type VirtioBlockDevice struct {
	Queue     *virtio.Queue
	Notify    virtio.RegisterIO
	NotifyOff uint32
	sectors   uint64
	buffers   RequestBuffers
}

// NewVirtioBlockDevice wraps an already-negotiated queue. sectors is read
// from the device config capability by the caller (spec.md §4.8's device
// config layout: a single little-endian uint64 "capacity" in 512-byte
// units) and passed in here.
func NewVirtioBlockDevice(q *virtio.Queue, notify virtio.RegisterIO, notifyOff uint32, sectors uint64, buffers RequestBuffers) *VirtioBlockDevice {
	return &VirtioBlockDevice{Queue: q, Notify: notify, NotifyOff: notifyOff, sectors: sectors, buffers: buffers}
}

func (d *VirtioBlockDevice) SectorCount() uint64 { return d.sectors }

func (d *VirtioBlockDevice) submit(reqType uint32, lba uint64, dataWritableByDevice bool) defs.Err_t {
	binary.LittleEndian.PutUint32(d.buffers.HeaderMem, reqType)
	binary.LittleEndian.PutUint32(d.buffers.HeaderMem[4:], 0)
	binary.LittleEndian.PutUint64(d.buffers.HeaderMem[8:], lba)
	d.buffers.StatusMem[0] = 0xFF // sentinel until the device overwrites it

	_, ok := d.Queue.AddChain([]virtio.ChainEntry{
		{Addr: d.buffers.HeaderPhys, Len: reqHeaderLen, Write: false},
		{Addr: d.buffers.DataPhys, Len: SectorSize, Write: dataWritableByDevice},
		{Addr: d.buffers.StatusPhys, Len: 1, Write: true},
	})
	if !ok {
		return defs.EQFULL
	}
	d.Notify.Write16(d.NotifyOff, 0) // queue index 0 on this device's single queue

	for {
		if _, _, ok := d.Queue.PopUsed(); ok {
			break
		}
	}

	switch d.buffers.StatusMem[0] {
	case blkStatusOK:
		return defs.ENONE
	case blkStatusUnsupp:
		return defs.EUNSUPRELOC
	default:
		return defs.EDEVFAIL
	}
}

// ReadSector issues a VIRTIO_BLK_T_IN request and copies the result into dst.
func (d *VirtioBlockDevice) ReadSector(lba uint64, dst []byte) defs.Err_t {
	if lba >= d.sectors {
		return defs.EINVAL
	}
	if err := d.submit(blkTIn, lba, true); err != defs.ENONE {
		return err
	}
	copy(dst, d.buffers.DataMem[:SectorSize])
	return defs.ENONE
}

// WriteSector copies src into the data buffer and issues a VIRTIO_BLK_T_OUT
// request.
func (d *VirtioBlockDevice) WriteSector(lba uint64, src []byte) defs.Err_t {
	if lba >= d.sectors {
		return defs.EINVAL
	}
	copy(d.buffers.DataMem[:SectorSize], src)
	return d.submit(blkTOut, lba, false)
}
