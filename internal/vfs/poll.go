package vfs

import (
	"time"

	"kestrel/internal/defs"
)

// Poll event bits, matching the POSIX names used in spec.md §4.6.
const (
	POLLIN   = 1 << 0
	POLLOUT  = 1 << 1
	POLLERR  = 1 << 2
	POLLNVAL = 1 << 3
)

// PollFD mirrors a single entry of the caller's pollfd array.
type PollFD struct {
	FD     int
	Events int16
	Revents int16
}

// Poll evaluates readiness of every fds[i] against t, blocking up to timeout
// (zero means return immediately, negative means wait forever) until at
// least one descriptor is ready, then fills in Revents for all of them.
// Pipes are the only blockable kind kestrel implements; regular files are
// always immediately ready for both read and write, per spec.md §4.6.
func Poll(t *FDTable, fds []PollFD, timeout time.Duration) (int, defs.Err_t) {
	deadline := time.Time{}
	hasDeadline := timeout >= 0
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}

	for {
		ready := 0
		for i := range fds {
			fds[i].Revents = 0
			gfd, err := t.Lookup(fds[i].FD)
			if err != defs.ENONE {
				fds[i].Revents = POLLNVAL
				ready++
				continue
			}
			kind, err := t.global.Kind(gfd)
			if err != defs.ENONE {
				fds[i].Revents = POLLNVAL
				ready++
				continue
			}
			switch kind {
			case KindFile:
				if fds[i].Events&POLLIN != 0 {
					fds[i].Revents |= POLLIN
				}
				if fds[i].Events&POLLOUT != 0 {
					fds[i].Revents |= POLLOUT
				}
			case KindPipe:
				p, _ := t.global.PipeOf(gfd)
				if fds[i].Events&POLLIN != 0 && (p.Available() > 0 || p.writersGone()) {
					fds[i].Revents |= POLLIN
				}
				if fds[i].Events&POLLOUT != 0 && (p.Available() < len(p.buf) || p.readersGone()) {
					fds[i].Revents |= POLLOUT
				}
			}
			if fds[i].Revents != 0 {
				ready++
			}
		}
		if ready > 0 {
			return ready, defs.ENONE
		}
		if !hasDeadline {
			time.Sleep(time.Millisecond)
			continue
		}
		if time.Now().After(deadline) {
			return 0, defs.ETIMEOUT
		}
		time.Sleep(time.Millisecond)
	}
}

func (p *Pipe) writersGone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writers == 0
}

func (p *Pipe) readersGone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readers == 0
}
