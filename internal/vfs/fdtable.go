package vfs

import "kestrel/internal/defs"

// FDTable is a process's small fixed-size descriptor table, mapping a
// 0..FDSlots-1 local index onto a slot in the GlobalTable (spec.md §4.6),
// grounded on biscuit's per-proc fd array (biscuit/src/fd/fd.go).
type FDTable struct {
	global *GlobalTable
	gfd    [FDSlots]int // -1 means unused
}

// NewFDTable returns an FD table with every slot unused.
func NewFDTable(g *GlobalTable) *FDTable {
	t := &FDTable{global: g}
	for i := range t.gfd {
		t.gfd[i] = -1
	}
	return t
}

func (t *FDTable) allocLocal() (int, defs.Err_t) {
	for i, v := range t.gfd {
		if v == -1 {
			return i, defs.ENONE
		}
	}
	return -1, defs.ENOSLOT
}

// Install claims a local slot pointing at gfd.
func (t *FDTable) Install(gfd int) (int, defs.Err_t) {
	i, err := t.allocLocal()
	if err != defs.ENONE {
		return -1, err
	}
	t.gfd[i] = gfd
	return i, defs.ENONE
}

// Lookup translates a local fd to its global slot index.
func (t *FDTable) Lookup(fd int) (int, defs.Err_t) {
	if fd < 0 || fd >= FDSlots || t.gfd[fd] == -1 {
		return -1, defs.ENOFD
	}
	return t.gfd[fd], defs.ENONE
}

// Close releases the local slot and drops a reference on the global table.
func (t *FDTable) Close(fd int) defs.Err_t {
	gfd, err := t.Lookup(fd)
	if err != defs.ENONE {
		return err
	}
	t.gfd[fd] = -1
	return t.global.Close(gfd)
}

// Dup2 makes newfd an alias of oldfd, closing whatever newfd previously held.
func (t *FDTable) Dup2(oldfd, newfd int) defs.Err_t {
	gfd, err := t.Lookup(oldfd)
	if err != defs.ENONE {
		return err
	}
	if newfd < 0 || newfd >= FDSlots {
		return defs.ENOFD
	}
	if t.gfd[newfd] != -1 {
		t.global.Close(t.gfd[newfd])
	}
	if err := t.global.Dup(gfd); err != defs.ENONE {
		return err
	}
	t.gfd[newfd] = gfd
	return defs.ENONE
}

// Dup allocates the lowest free local slot as a second alias of oldfd.
func (t *FDTable) Dup(oldfd int) (int, defs.Err_t) {
	gfd, err := t.Lookup(oldfd)
	if err != defs.ENONE {
		return -1, err
	}
	i, err := t.allocLocal()
	if err != defs.ENONE {
		return -1, err
	}
	if err := t.global.Dup(gfd); err != defs.ENONE {
		return -1, err
	}
	t.gfd[i] = gfd
	return i, defs.ENONE
}

// Fork returns a new table sharing every installed gfd with t, each bumped by
// one reference, for process-fork FD inheritance.
func (t *FDTable) Fork() *FDTable {
	n := NewFDTable(t.global)
	for i, gfd := range t.gfd {
		if gfd == -1 {
			continue
		}
		if err := t.global.Dup(gfd); err != defs.ENONE {
			continue
		}
		n.gfd[i] = gfd
	}
	return n
}

// CloseAll releases every installed slot, for process exit.
func (t *FDTable) CloseAll() {
	for fd, gfd := range t.gfd {
		if gfd == -1 {
			continue
		}
		t.global.Close(gfd)
		t.gfd[fd] = -1
	}
}
