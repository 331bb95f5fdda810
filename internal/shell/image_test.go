package shell

import (
	"bytes"
	"testing"
)

func TestWriteImageThenLoadImageRoundTrips(t *testing.T) {
	src := NewFS()
	src.Open("/sys/bin/init.elf", true, false)
	f, _ := src.Open("/sys/bin/init.elf", false, false)
	f.WriteAt([]byte("\x7fELF..."), 0)
	src.Open("/etc/motd", true, false)
	motd, _ := src.Open("/etc/motd", false, false)
	motd.WriteAt([]byte("hello\n"), 0)

	var buf bytes.Buffer
	n, err := WriteImage(&buf, src)
	if err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	if n != 2 {
		t.Fatalf("WriteImage wrote %d files, want 2", n)
	}

	dst := NewFS()
	n2, err := LoadImage(&buf, dst)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if n2 != 2 {
		t.Fatalf("LoadImage read %d files, want 2", n2)
	}

	got, err := dst.Open("/etc/motd", false, false)
	if err != 0 {
		t.Fatalf("Open(/etc/motd) after load: %v", err)
	}
	b := make([]byte, got.Size())
	got.ReadAt(b, 0)
	if string(b) != "hello\n" {
		t.Fatalf("motd round-trip = %q, want hello", b)
	}
}

func TestLoadImageRejectsBadMagic(t *testing.T) {
	dst := NewFS()
	if _, err := LoadImage(bytes.NewReader([]byte("not an image")), dst); err == nil {
		t.Fatal("expected an error for bad magic")
	}
}
