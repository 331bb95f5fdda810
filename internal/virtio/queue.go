package virtio

import "encoding/binary"

// Descriptor flags (VirtIO 1.1 §2.7.5).
const (
	descFNext  = 1
	descFWrite = 2
)

const descSize = 16 // addr(8) + len(4) + flags(2) + next(2)

// ChainEntry describes one buffer in a request's descriptor chain.
type ChainEntry struct {
	Addr  uint64
	Len   uint32
	Write bool // device-writable (the driver reads it back)
}

// Queue is a split virtqueue (VirtIO 1.1 §2.7): three flat byte regions for
// the descriptor table, available ring, and used ring, which the caller
// allocates as physically contiguous pages and maps into Desc/Avail/Used
// (pmm.SimMemory.Bytes on the hosted build, a direct HHDM slice on real
// hardware).
type Queue struct {
	Size  uint16
	Desc  []byte
	Avail []byte
	Used  []byte

	freeHead uint16
	numFree  uint16
	lastUsed uint16
	availIdx uint16
}

// NewQueue initializes a freshly zeroed Desc/Avail/Used triple into an empty
// queue of the given size, chaining every descriptor slot onto the free
// list via its next field.
func NewQueue(size uint16, desc, avail, used []byte) *Queue {
	q := &Queue{Size: size, Desc: desc, Avail: avail, Used: used, numFree: size}
	for i := uint16(0); i < size; i++ {
		q.setDescNext(i, i+1)
	}
	return q
}

func (q *Queue) descOff(i uint16) int { return int(i) * descSize }

func (q *Queue) setDesc(i uint16, addr uint64, length uint32, flags uint16, next uint16) {
	off := q.descOff(i)
	binary.LittleEndian.PutUint64(q.Desc[off:], addr)
	binary.LittleEndian.PutUint32(q.Desc[off+8:], length)
	binary.LittleEndian.PutUint16(q.Desc[off+12:], flags)
	binary.LittleEndian.PutUint16(q.Desc[off+14:], next)
}

func (q *Queue) setDescNext(i uint16, next uint16) {
	binary.LittleEndian.PutUint16(q.Desc[q.descOff(i)+14:], next)
}

func (q *Queue) descNext(i uint16) uint16 {
	return binary.LittleEndian.Uint16(q.Desc[q.descOff(i)+14:])
}

// AddChain allocates descriptors for entries off the free list, links them,
// and publishes the chain head in the available ring. It reports false if
// the free list cannot satisfy len(entries) (spec.md §4.7 EQFULL caller).
func (q *Queue) AddChain(entries []ChainEntry) (head uint16, ok bool) {
	if uint16(len(entries)) > q.numFree {
		return 0, false
	}
	head = q.freeHead
	cur := head
	for i, e := range entries {
		flags := uint16(0)
		if e.Write {
			flags |= descFWrite
		}
		next := q.descNext(cur)
		if i < len(entries)-1 {
			flags |= descFNext
		}
		q.setDesc(cur, e.Addr, e.Len, flags, next)
		if i < len(entries)-1 {
			cur = next
		} else {
			q.freeHead = next
		}
	}
	q.numFree -= uint16(len(entries))

	ringIdx := q.availIdx % q.Size
	binary.LittleEndian.PutUint16(q.Avail[4+int(ringIdx)*2:], head)
	q.availIdx++
	binary.LittleEndian.PutUint16(q.Avail[2:], q.availIdx)
	return head, true
}

// NotifyAddr returns a queue's notify register offset: the notify BAR offset
// plus its notify_off scaled by the notify-offset multiplier (VirtIO 1.1
// §4.1.4.4).
func NotifyAddr(notifyBarOffset uint32, notifyOff uint16, multiplier uint32) uint32 {
	return notifyBarOffset + uint32(notifyOff)*multiplier
}

// PopUsed drains one not-yet-seen used-ring entry, freeing its descriptor
// chain back onto the free list, per the used-ring polling loop of spec.md
// §4.7. ok is false once the ring has no new entries.
func (q *Queue) PopUsed() (descHead uint16, writtenLen uint32, ok bool) {
	usedIdx := binary.LittleEndian.Uint16(q.Used[2:])
	if q.lastUsed == usedIdx {
		return 0, 0, false
	}
	ringIdx := q.lastUsed % q.Size
	base := 4 + int(ringIdx)*8
	id := binary.LittleEndian.Uint32(q.Used[base:])
	length := binary.LittleEndian.Uint32(q.Used[base+4:])
	q.lastUsed++

	head := uint16(id)
	// walk and free the chain
	cur := head
	for {
		flags := binary.LittleEndian.Uint16(q.Desc[q.descOff(cur)+12:])
		next := q.descNext(cur)
		q.numFree++
		if flags&descFNext == 0 {
			q.setDescNext(cur, q.freeHead)
			q.freeHead = head
			break
		}
		cur = next
	}
	return head, length, true
}

// RingBytes returns the byte sizes (desc, avail, used) a queue of the given
// size needs, for the caller's allocator.
func RingBytes(size uint16) (descLen, availLen, usedLen int) {
	descLen = int(size) * descSize
	availLen = 4 + int(size)*2 + 2 // flags+idx, ring, used_event (unused)
	usedLen = 4 + int(size)*8 + 2  // flags+idx, ring, avail_event (unused)
	return
}
