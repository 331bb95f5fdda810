// Package config holds the handful of boot-time tunables kestrel needs
// before any subsystem is initialized: queue sizes, reserved memory, and
// the BIOS memory map override used by tests and cmd/kestrel. No example
// in the pack imports a config-framework from code that actually runs
// inside a kernel (biscuit's own "limits" package is a plain struct literal,
// see biscuit/src/limits/limits.go), so this stays on flag + encoding/json
// rather than reaching for viper/cobra, which only ever show up as indirect
// lint-tool dependencies in the pack's go.sum files.
package config

import (
	"encoding/json"
	"flag"
	"os"
)

// MemRegion mirrors one BIOS INT 15h, AX=E820h usable-RAM entry.
type MemRegion struct {
	Start uint64 `json:"start"`
	Len   uint64 `json:"len"`
}

// Tunables is the full set of boot-time knobs.
type Tunables struct {
	// ReservedBelow is the byte address below which the PMM never
	// allocates; spec.md §4.1 fixes this at 10 MiB.
	ReservedBelow uint64 `json:"reserved_below"`
	// MemMap overrides the BIOS memory map; nil means "probe real
	// hardware" (unused outside tests/cmd/kestrel).
	MemMap []MemRegion `json:"mem_map,omitempty"`
	// BlockQueueSize is the VirtIO block queue depth (spec.md §4.7: 32).
	BlockQueueSize int `json:"block_queue_size"`
	// GPUQueueSize is the VirtIO GPU control queue depth (spec.md §4.7: 128).
	GPUQueueSize int `json:"gpu_queue_size"`
	// TimerHz is the PIT frequency driving scheduler preemption (spec.md §5: 100).
	TimerHz int `json:"timer_hz"`
}

// Default returns the tunables spec.md specifies.
func Default() Tunables {
	return Tunables{
		ReservedBelow:  10 * 1024 * 1024,
		BlockQueueSize: 32,
		GPUQueueSize:   128,
		TimerHz:        100,
	}
}

// Load reads tunables from a JSON file, falling back to Default() fields for
// anything the file omits.
func Load(path string) (Tunables, error) {
	t := Default()
	if path == "" {
		return t, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return t, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(&t); err != nil {
		return t, err
	}
	return t, nil
}

// RegisterFlags wires Tunables fields onto a flag.FlagSet the way
// biscuit/src/mkfs/mkfs.go takes its block/inode counts from plain args.
func RegisterFlags(fs *flag.FlagSet, t *Tunables) {
	fs.Uint64Var(&t.ReservedBelow, "reserved-below", t.ReservedBelow, "bytes below which the PMM never allocates")
	fs.IntVar(&t.BlockQueueSize, "block-queue-size", t.BlockQueueSize, "VirtIO block virtqueue depth")
	fs.IntVar(&t.GPUQueueSize, "gpu-queue-size", t.GPUQueueSize, "VirtIO GPU virtqueue depth")
	fs.IntVar(&t.TimerHz, "timer-hz", t.TimerHz, "PIT frequency in Hz")
}
