package virtio

import "kestrel/internal/defs"

// VIRTIO PCI Common Config register offsets (VirtIO 1.1 §4.1.4.3), following
// the VIRTIO_PCI_COMMON_CFG_* naming in
// iansmith-mazarin/src/mazboot/golang/main/virtio_gpu.go.
const (
	commonDeviceFeatureSelect = 0x00
	commonDeviceFeature       = 0x04
	commonDriverFeatureSelect = 0x08
	commonDriverFeature       = 0x0C
	commonNumQueues           = 0x12
	commonDeviceStatus        = 0x14
	commonQueueSelect         = 0x16
	commonQueueSize           = 0x18
	commonQueueEnable         = 0x1C
	commonQueueNotifyOff      = 0x1E
	commonQueueDescLow        = 0x20
	commonQueueDescHigh       = 0x24
	commonQueueAvailLow       = 0x28
	commonQueueAvailHigh      = 0x2C
	commonQueueUsedLow        = 0x30
	commonQueueUsedHigh       = 0x34
)

// Device status bits (VirtIO 1.1 §2.1), matching VIRTIO_STATUS_* above.
const (
	StatusAcknowledge      = 1 << 0
	StatusDriver           = 1 << 1
	StatusFailed           = 1 << 2
	StatusFeaturesOK       = 1 << 3
	StatusDriverOK         = 1 << 4
	StatusDeviceNeedsReset = 1 << 6
)

// CommonConfig is a register-level view over a Common Config capability
// region. Bar lets a caller that maps BARs into its own address space
// (rather than exposing a ConfigSpace) plug in a simple byte-addressed
// accessor instead.
type CommonConfig struct {
	Bar RegisterIO
}

// RegisterIO abstracts a mapped MMIO region: little-endian register reads
// and writes at byte offsets, so CommonConfig can sit over either a real
// BAR mapping or an in-memory fake for tests.
type RegisterIO interface {
	Read8(off uint32) uint8
	Read16(off uint32) uint16
	Read32(off uint32) uint32
	Write8(off uint32, v uint8)
	Write16(off uint32, v uint16)
	Write32(off uint32, v uint32)
}

// Negotiate drives the VirtIO device status handshake (VirtIO 1.1 §3.1.1):
// reset, acknowledge, driver, feature negotiation against wanted, then
// driver-ok. It fails with EPROTO if the device rejects any feature in
// wanted, or EDEVFAIL if it sets NEEDS_RESET mid-handshake.
func (c CommonConfig) Negotiate(wanted uint64) defs.Err_t {
	c.Bar.Write8(commonDeviceStatus, 0) // reset
	c.Bar.Write8(commonDeviceStatus, StatusAcknowledge)
	c.Bar.Write8(commonDeviceStatus, StatusAcknowledge|StatusDriver)

	c.Bar.Write32(commonDeviceFeatureSelect, 0)
	devLow := uint64(c.Bar.Read32(commonDeviceFeature))
	c.Bar.Write32(commonDeviceFeatureSelect, 1)
	devHigh := uint64(c.Bar.Read32(commonDeviceFeature))
	device := devLow | devHigh<<32

	accepted := device & wanted
	if accepted != wanted {
		return defs.EPROTO
	}

	c.Bar.Write32(commonDriverFeatureSelect, 0)
	c.Bar.Write32(commonDriverFeature, uint32(accepted))
	c.Bar.Write32(commonDriverFeatureSelect, 1)
	c.Bar.Write32(commonDriverFeature, uint32(accepted>>32))

	status := StatusAcknowledge | StatusDriver | StatusFeaturesOK
	c.Bar.Write8(commonDeviceStatus, uint8(status))
	if c.Bar.Read8(commonDeviceStatus)&StatusFeaturesOK == 0 {
		return defs.EPROTO
	}

	c.Bar.Write8(commonDeviceStatus, uint8(status|StatusDriverOK))
	if c.Bar.Read8(commonDeviceStatus)&StatusDeviceNeedsReset != 0 {
		return defs.EDEVFAIL
	}
	return defs.ENONE
}

// NumQueues reports how many virtqueues the device exposes.
func (c CommonConfig) NumQueues() uint16 { return c.Bar.Read16(commonNumQueues) }

// SetupQueue selects queue index q, programs its size and the physical
// addresses of its three rings, then enables it, returning the notify
// offset used to compute this queue's doorbell address within the Notify
// capability (spec.md §4.7).
func (c CommonConfig) SetupQueue(q uint16, size uint16, descPhys, availPhys, usedPhys uint64) uint16 {
	c.Bar.Write16(commonQueueSelect, q)
	c.Bar.Write16(commonQueueSize, size)
	c.Bar.Write32(commonQueueDescLow, uint32(descPhys))
	c.Bar.Write32(commonQueueDescHigh, uint32(descPhys>>32))
	c.Bar.Write32(commonQueueAvailLow, uint32(availPhys))
	c.Bar.Write32(commonQueueAvailHigh, uint32(availPhys>>32))
	c.Bar.Write32(commonQueueUsedLow, uint32(usedPhys))
	c.Bar.Write32(commonQueueUsedHigh, uint32(usedPhys>>32))
	notifyOff := c.Bar.Read16(commonQueueNotifyOff)
	c.Bar.Write16(commonQueueEnable, 1)
	return notifyOff
}
