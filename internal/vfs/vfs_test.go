package vfs

import (
	"testing"
	"time"

	"kestrel/internal/defs"
)

type memBacking struct {
	data []byte
}

func (m *memBacking) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, nil
	}
	n := copy(p, m.data[off:])
	return n, nil
}

func (m *memBacking) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[off:end], p)
	return len(p), nil
}

func (m *memBacking) Size() int64 { return int64(len(m.data)) }

func (m *memBacking) Truncate(size int64) error {
	m.data = m.data[:size]
	return nil
}

func TestResolveHandlesDotDotAndMountRoot(t *testing.T) {
	cases := []struct{ cwd, path, want string }{
		{"/", "a/b", "/a/b"},
		{"/a/b", "../c", "/a/c"},
		{"/a/b", "../../../c", "/c"},
		{"@deadbeef/x", "y/../z", "@deadbeef/x/z"},
		{"/a", "/root", "/root"},
	}
	for _, c := range cases {
		if got := Resolve(c.cwd, c.path); got != c.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", c.cwd, c.path, got, c.want)
		}
	}
}

func TestFileReadWriteRoundTrips(t *testing.T) {
	g := NewGlobalTable()
	ft := NewFDTable(g)

	gfd, err := g.OpenFile(&memBacking{})
	if err != defs.ENONE {
		t.Fatalf("OpenFile: %v", err)
	}
	fd, err := ft.Install(gfd)
	if err != defs.ENONE {
		t.Fatalf("Install: %v", err)
	}

	gi, _ := ft.Lookup(fd)
	if n, err := g.Write(gi, []byte("hello")); err != defs.ENONE || n != 5 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
	if _, err := g.Seek(gi, 0, 0); err != defs.ENONE {
		t.Fatalf("Seek: %v", err)
	}
	buf := make([]byte, 5)
	if n, err := g.Read(gi, buf); err != defs.ENONE || string(buf[:n]) != "hello" {
		t.Fatalf("Read: n=%d buf=%q err=%v", n, buf[:n], err)
	}
}

func TestPipeCreatesTwoLinkedEnds(t *testing.T) {
	g := NewGlobalTable()
	ft := NewFDTable(g)

	rg, wg, err := g.Pipe()
	if err != defs.ENONE {
		t.Fatalf("Pipe: %v", err)
	}
	rfd, _ := ft.Install(rg)
	wfd, _ := ft.Install(wg)

	done := make(chan struct{})
	go func() {
		gi, _ := ft.Lookup(wfd)
		g.Write(gi, []byte("hi"))
		close(done)
	}()

	gi, _ := ft.Lookup(rfd)
	buf := make([]byte, 2)
	n, err := g.Read(gi, buf)
	<-done
	if err != defs.ENONE || string(buf[:n]) != "hi" {
		t.Fatalf("Read: n=%d buf=%q err=%v", n, buf[:n], err)
	}
}

func TestDup2ReplacesTargetAndSharesOffset(t *testing.T) {
	g := NewGlobalTable()
	ft := NewFDTable(g)

	gfd, _ := g.OpenFile(&memBacking{})
	fd, _ := ft.Install(gfd)

	if err := ft.Dup2(fd, 9); err != defs.ENONE {
		t.Fatalf("Dup2: %v", err)
	}
	gi, err := ft.Lookup(9)
	if err != defs.ENONE || gi != gfd {
		t.Fatalf("Lookup(9) = %d, %v; want %d, ENONE", gi, err, gfd)
	}
}

func TestCloseOnUnusedFDFails(t *testing.T) {
	g := NewGlobalTable()
	ft := NewFDTable(g)
	if err := ft.Close(3); err != defs.ENOFD {
		t.Fatalf("Close on empty slot = %v, want ENOFD", err)
	}
}

func TestPollReportsPipeReadiness(t *testing.T) {
	g := NewGlobalTable()
	ft := NewFDTable(g)
	rg, wg, _ := g.Pipe()
	rfd, _ := ft.Install(rg)
	wfd, _ := ft.Install(wg)

	fds := []PollFD{{FD: rfd, Events: POLLIN}, {FD: wfd, Events: POLLOUT}}
	n, err := Poll(ft, fds, 10*time.Millisecond)
	if err != defs.ENONE {
		t.Fatalf("Poll: %v", err)
	}
	if n < 1 || fds[1].Revents&POLLOUT == 0 {
		t.Fatalf("expected write end ready, got fds=%+v", fds)
	}
	if fds[0].Revents&POLLIN != 0 {
		t.Fatalf("read end should not be ready on an empty pipe yet, got %+v", fds[0])
	}

	gi, _ := ft.Lookup(wfd)
	g.Write(gi, []byte("x"))

	n, err = Poll(ft, fds, 10*time.Millisecond)
	if err != defs.ENONE || fds[0].Revents&POLLIN == 0 {
		t.Fatalf("expected read end ready after write, n=%d fds=%+v err=%v", n, fds, err)
	}
}

func TestPollTimesOutWhenNothingReady(t *testing.T) {
	g := NewGlobalTable()
	ft := NewFDTable(g)
	rg, _, _ := g.Pipe()
	rfd, _ := ft.Install(rg)

	fds := []PollFD{{FD: rfd, Events: POLLIN}}
	_, err := Poll(ft, fds, 5*time.Millisecond)
	if err != defs.ETIMEOUT {
		t.Fatalf("Poll = %v, want ETIMEOUT", err)
	}
}
