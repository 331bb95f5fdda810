package libc

import "testing"

func TestMallocFreeReuse(t *testing.T) {
	h := NewHeap(make([]byte, 4096))
	p1 := h.Malloc(64)
	if p1 < 0 {
		t.Fatalf("Malloc(64) failed")
	}
	h.Free(p1)
	p2 := h.Malloc(64)
	if p2 != p1 {
		t.Fatalf("Malloc after Free = %d, want reused offset %d", p2, p1)
	}
}

func TestMallocZeroReturnsNegative(t *testing.T) {
	h := NewHeap(make([]byte, 64))
	if p := h.Malloc(0); p >= 0 {
		t.Fatalf("Malloc(0) = %d, want < 0", p)
	}
}

func TestCallocZeroesMemory(t *testing.T) {
	h := NewHeap(make([]byte, 4096))
	p := h.Malloc(16)
	copy(h.Read(p, 16), []byte("garbage in there"))
	h.Free(p)

	q := h.Calloc(4, 4)
	for i, b := range h.Read(q, 16) {
		if b != 0 {
			t.Fatalf("Calloc byte %d = %d, want 0", i, b)
		}
	}
}

func TestReallocPreservesPrefix(t *testing.T) {
	h := NewHeap(make([]byte, 4096))
	p := h.Malloc(8)
	copy(h.Read(p, 8), []byte("abcdefgh"))
	q := h.Realloc(p, 16)
	if string(h.Read(q, 8)) != "abcdefgh" {
		t.Fatalf("Realloc did not preserve the original 8 bytes")
	}
}

func TestMallocExhaustsArena(t *testing.T) {
	h := NewHeap(make([]byte, 64))
	if p := h.Malloc(1024); p >= 0 {
		t.Fatalf("Malloc(1024) over a 64-byte arena = %d, want -1", p)
	}
}
