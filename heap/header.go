package heap

import (
	"encoding/binary"

	handlegc "github.com/wippyai/handle-gc"
)

// Every allocation starts with a fixed header, encoded little-endian
// directly in the arena:
//
//	offset 0  u32  size       total block length, header included, 8-aligned
//	offset 4  u32  handle     back-reference to the owning table entry
//	offset 8  u16  type       embedder type tag, opaque to the GC
//	offset 10 u16  ref_count  saturating; 0 only on dead blocks
//	offset 12 u8   mark       reachability flag, valid within one cycle
//	offset 13 u8   flags      bit 0 = pinned
//	offset 14 u16  (reserved)
//
// Blocks with handle 0 are fillers: dead padding stamped by compaction to
// keep linear arena walks intact below pinned objects.
const headerSize = 16

// HeaderSize is the fixed per-object arena overhead.
const HeaderSize = headerSize

const flagPinned = 1 << 0

const maxRefCount = 0xFFFF

type header struct {
	size     uint32
	handle   handlegc.Handle
	typ      handlegc.TypeID
	refCount uint16
	mark     uint8
	flags    uint8
}

func loadHeader(b []byte) header {
	return header{
		size:     binary.LittleEndian.Uint32(b[0:4]),
		handle:   handlegc.Handle(binary.LittleEndian.Uint32(b[4:8])),
		typ:      handlegc.TypeID(binary.LittleEndian.Uint16(b[8:10])),
		refCount: binary.LittleEndian.Uint16(b[10:12]),
		mark:     b[12],
		flags:    b[13],
	}
}

func (hd header) store(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], hd.size)
	binary.LittleEndian.PutUint32(b[4:8], uint32(hd.handle))
	binary.LittleEndian.PutUint16(b[8:10], uint16(hd.typ))
	binary.LittleEndian.PutUint16(b[10:12], hd.refCount)
	b[12] = hd.mark
	b[13] = hd.flags
	b[14] = 0
	b[15] = 0
}

func (hd header) pinned() bool {
	return hd.flags&flagPinned != 0
}

// headerAt decodes the header of the block starting at off.
func (h *Heap) headerAt(off int) header {
	return loadHeader(h.region.Bytes(off, headerSize))
}

// storeHeaderAt writes hd over the block header at off.
func (h *Heap) storeHeaderAt(off int, hd header) {
	hd.store(h.region.Bytes(off, headerSize))
}
