package wasi

import (
	"kestrel/internal/defs"
	"kestrel/internal/wasm/interp"
)

// WASI clock ids (Preview1).
const (
	clockRealtime  = 0
	clockMonotonic = 1
)

// clockTimeGet assembles a UNIX-epoch nanosecond timestamp from the RTC
// plus the tick counter for CLOCK_REALTIME, and a pure tick count for
// CLOCK_MONOTONIC (spec.md §4.12).
func (r *Runtime) clockTimeGet(m *interp.Machine, args []interp.Value) ([]interp.Value, defs.Err_t) {
	id := args[0].I32
	resultPtr := args[2].U32()

	var ticks uint64
	if r.Clock != nil {
		ticks = r.Clock.Tick()
	}
	elapsed := int64(ticks) * int64(TickDuration)

	var nanos uint64
	switch id {
	case clockMonotonic:
		nanos = uint64(elapsed)
	case clockRealtime:
		nanos = uint64(r.RTCBootUnixNanos + elapsed)
	default:
		return errResult(EINVAL), defs.ENONE
	}

	mem := m.CallerMemory()
	if err := mem.PutU64(resultPtr, nanos); err != defs.ENONE {
		return errResult(EFAULT), defs.ENONE
	}
	return errResult(ESUCCESS), defs.ENONE
}

// randomGet fills len bytes at ptr from a xorshift64 generator seeded from
// the tick counter (spec.md §4.12).
func (r *Runtime) randomGet(m *interp.Machine, args []interp.Value) ([]interp.Value, defs.Err_t) {
	ptr, n := args[0].U32(), args[1].U32()
	if r.rng == 0 {
		seed := uint64(0xACE1BADE)
		if r.Clock != nil {
			seed ^= r.Clock.Tick()
		}
		if seed == 0 {
			seed = 0xACE1BADE
		}
		r.rng = seed
	}
	buf := make([]byte, n)
	for i := range buf {
		r.rng ^= r.rng << 13
		r.rng ^= r.rng >> 17
		r.rng ^= r.rng << 5
		buf[i] = byte(r.rng)
	}
	mem := m.CallerMemory()
	if err := mem.WriteBytes(ptr, buf); err != defs.ENONE {
		return errResult(EFAULT), defs.ENONE
	}
	return errResult(ESUCCESS), defs.ENONE
}
