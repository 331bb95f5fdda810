package wasi

import (
	"encoding/binary"
	"time"

	"kestrel/internal/defs"
	"kestrel/internal/vfs"
	"kestrel/internal/wasm/interp"
)

const subscriptionSize = 48
const eventSize = 32

const (
	eventtypeClock = 0
	eventtypeFDRead  = 1
	eventtypeFDWrite = 2
)

type subscription struct {
	Userdata uint64
	Tag      uint8
	// clock
	Timeout uint64
	// fd
	FD uint32
}

func parseSubscription(mem *interp.Memory, ptr uint32) (subscription, defs.Err_t) {
	b, err := mem.ReadBytes(ptr, subscriptionSize)
	if err != defs.ENONE {
		return subscription{}, err
	}
	s := subscription{
		Userdata: binary.LittleEndian.Uint64(b[0:8]),
		Tag:      b[8],
	}
	switch s.Tag {
	case eventtypeClock:
		s.Timeout = binary.LittleEndian.Uint64(b[24:32])
	case eventtypeFDRead, eventtypeFDWrite:
		s.FD = binary.LittleEndian.Uint32(b[16:20])
	}
	return s, defs.ENONE
}

func writeEvent(mem *interp.Memory, ptr uint32, userdata uint64, errno uint32, typ uint8, nbytes uint64) defs.Err_t {
	if err := mem.PutU64(ptr, userdata); err != defs.ENONE {
		return err
	}
	if err := mem.WriteBytes(ptr+8, []byte{byte(errno), byte(errno >> 8)}); err != defs.ENONE {
		return err
	}
	if err := mem.WriteBytes(ptr+10, []byte{typ}); err != defs.ENONE {
		return err
	}
	if err := mem.PutU64(ptr+16, nbytes); err != defs.ENONE {
		return err
	}
	return mem.PutU64(ptr+24, 0)
}

// fdReady reports whether a fd-readiness subscription is satisfiable right
// now: a regular file is always ready, a pipe is ready for read only while
// it has buffered bytes (a pipe whose writers are gone but which is empty
// is not ready), and a pipe is always reported ready for write.
func (r *Runtime) fdReady(wfd uint32, wantWrite bool) (uint64, bool) {
	local, ok := r.lookupFD(wfd)
	if !ok {
		return 0, false
	}
	gfd, err := r.FDs.Lookup(local)
	if err != defs.ENONE {
		return 0, false
	}
	kind, kerr := r.Global.Kind(gfd)
	if kerr != defs.ENONE {
		return 0, false
	}
	if kind == vfs.KindFile {
		return 1, true
	}
	p, ok := r.Global.PipeOf(gfd)
	if !ok {
		return 0, false
	}
	if !wantWrite {
		return uint64(p.Available()), p.Available() > 0
	}
	return 0, true
}

// pollOneoff implements timeout subscriptions via sleep; fd subscriptions
// mark ready when the backing pipe has data (spec.md §4.12).
func (r *Runtime) pollOneoff(m *interp.Machine, args []interp.Value) ([]interp.Value, defs.Err_t) {
	inPtr, outPtr := args[0].U32(), args[1].U32()
	nsub := args[2].U32()
	neventsPtr := args[3].U32()
	mem := m.CallerMemory()

	subs := make([]subscription, nsub)
	for i := uint32(0); i < nsub; i++ {
		s, err := parseSubscription(mem, inPtr+i*subscriptionSize)
		if err != defs.ENONE {
			return errResult(EFAULT), defs.ENONE
		}
		subs[i] = s
	}

	check := func() ([]int, []uint64) {
		var ready []int
		var nbytes []uint64
		for i, s := range subs {
			switch s.Tag {
			case eventtypeFDRead:
				if n, ok := r.fdReady(s.FD, false); ok {
					ready = append(ready, i)
					nbytes = append(nbytes, n)
				}
			case eventtypeFDWrite:
				if n, ok := r.fdReady(s.FD, true); ok {
					ready = append(ready, i)
					nbytes = append(nbytes, n)
				}
			}
		}
		return ready, nbytes
	}

	ready, nbytes := check()
	if len(ready) == 0 {
		var timeout uint64
		hasClock := false
		for _, s := range subs {
			if s.Tag == eventtypeClock {
				if !hasClock || s.Timeout < timeout {
					timeout = s.Timeout
				}
				hasClock = true
			}
		}
		if hasClock {
			time.Sleep(time.Duration(timeout))
			ready, nbytes = check()
			if len(ready) == 0 {
				// the clock subscription itself is the one event: report it.
				for _, s := range subs {
					if s.Tag == eventtypeClock {
						if err := writeEvent(mem, outPtr, s.Userdata, ESUCCESS, eventtypeClock, 0); err != defs.ENONE {
							return errResult(EFAULT), defs.ENONE
						}
						if err := mem.PutU32(neventsPtr, 1); err != defs.ENONE {
							return errResult(EFAULT), defs.ENONE
						}
						return errResult(ESUCCESS), defs.ENONE
					}
				}
				if err := mem.PutU32(neventsPtr, 0); err != defs.ENONE {
					return errResult(EFAULT), defs.ENONE
				}
				return errResult(ESUCCESS), defs.ENONE
			}
		}
	}

	for j, idx := range ready {
		s := subs[idx]
		typ := uint8(eventtypeFDRead)
		if s.Tag == eventtypeFDWrite {
			typ = eventtypeFDWrite
		}
		if err := writeEvent(mem, outPtr+uint32(j)*eventSize, s.Userdata, ESUCCESS, typ, nbytes[j]); err != defs.ENONE {
			return errResult(EFAULT), defs.ENONE
		}
	}
	if err := mem.PutU32(neventsPtr, uint32(len(ready))); err != defs.ENONE {
		return errResult(EFAULT), defs.ENONE
	}
	return errResult(ESUCCESS), defs.ENONE
}
