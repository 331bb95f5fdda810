// Package virtio implements VirtIO PCI transport discovery and the split
// virtqueue, spec.md §4.7. Capability-offset and register layout naming
// follows the PCI/VirtIO constants in
// iansmith-mazarin/src/mazboot/golang/main/pci_qemu.go and virtio_gpu.go
// (PCI_CAP_VENDOR_SPECIFIC, VIRTIO_PCI_COMMON_CFG_*, VIRTIO_STATUS_*),
// re-expressed as a config-space interface so the scan and queue setup logic
// is unit-testable on the host rather than tied to a real PCI bus.
package virtio

import "kestrel/internal/defs"

// PCI capability IDs carried in the capability list (spec.md §4.7).
const (
	CapVendorSpecific = 0x09 // Common Config / Notify / ISR / Device Config
)

// VirtIO vendor-specific capability subtypes, found in the cfg_type byte of
// a CapVendorSpecific capability.
const (
	CfgTypeCommon = 1
	CfgTypeNotify = 2
	CfgTypeISR    = 3
	CfgTypeDevice = 4
)

// PCI configuration-space offsets used during discovery.
const (
	offVendorID   = 0x00
	offDeviceID   = 0x02
	offCommand    = 0x04
	offCapPointer = 0x34
)

const virtioVendorID = 0x1AF4

// ConfigSpace abstracts access to one PCI function's configuration space, so
// discovery can run against either real ECAM-mapped MMIO or a fake in
// tests.
type ConfigSpace interface {
	Read8(off uint32) uint8
	Read16(off uint32) uint16
	Read32(off uint32) uint32
	Write32(off uint32, v uint32)
}

// Capability locates one VirtIO PCI capability's region (spec.md §4.7): the
// BAR it lives in, the byte offset within that BAR, and its length.
type Capability struct {
	Bar    uint8
	Offset uint32
	Length uint32
}

// Capabilities is the set of regions a VirtIO PCI device exposes.
type Capabilities struct {
	Common Capability
	Notify Capability
	ISR    Capability
	Device Capability

	// NotifyOffMultiplier scales a queue's notify_off into a byte offset
	// within the Notify BAR (VirtIO 1.1 §4.1.4.4).
	NotifyOffMultiplier uint32
}

// IsVirtIODevice reports whether cs names a device from the VirtIO vendor.
func IsVirtIODevice(cs ConfigSpace) bool {
	return cs.Read16(offVendorID) == virtioVendorID
}

// DeviceID returns the PCI device ID, whose low byte plus 0x1000 names the
// VirtIO device type for transitional IDs (spec.md §4.7, §4.8).
func DeviceID(cs ConfigSpace) uint16 { return cs.Read16(offDeviceID) }

// EnableBusMastering sets the I/O space, memory space and bus master
// enable bits in the PCI command register, required before a device's BARs
// are usable.
func EnableBusMastering(cs ConfigSpace) {
	cmd := cs.Read16(offCommand)
	cs.Write32(offCommand, uint32(cmd|0x7))
}

// ScanCapabilities walks the PCI capability list looking for the four
// VirtIO vendor-specific regions every spec.md §4.7 device must expose
// (Common, Notify, ISR, Device); ISR and Device are optional for some
// device types so their presence is left to the caller to check
// (Length == 0 means absent).
func ScanCapabilities(cs ConfigSpace) (Capabilities, defs.Err_t) {
	var caps Capabilities
	ptr := cs.Read8(offCapPointer)
	seen := 0
	for ptr != 0 && ptr != 0xFF && seen < 48 {
		seen++
		capID := cs.Read8(uint32(ptr))
		if capID == CapVendorSpecific {
			// VirtIO PCI Cap layout (VirtIO 1.1 §4.1.4):
			// [0]=cap_vndr [1]=cap_next [2]=cap_len [3]=cfg_type
			// [4]=bar [8]=offset [12]=length [16]=notify_off_multiplier
			cfgType := cs.Read8(uint32(ptr) + 3)
			bar := cs.Read8(uint32(ptr) + 4)
			offset := cs.Read32(uint32(ptr) + 8)
			length := cs.Read32(uint32(ptr) + 12)
			region := Capability{Bar: bar, Offset: offset, Length: length}
			switch cfgType {
			case CfgTypeCommon:
				caps.Common = region
			case CfgTypeNotify:
				caps.Notify = region
				caps.NotifyOffMultiplier = cs.Read32(uint32(ptr) + 16)
			case CfgTypeISR:
				caps.ISR = region
			case CfgTypeDevice:
				caps.Device = region
			}
		}
		ptr = cs.Read8(uint32(ptr) + 1)
	}
	if caps.Common.Length == 0 || caps.Notify.Length == 0 {
		return Capabilities{}, defs.EDEVFAIL
	}
	return caps, defs.ENONE
}
