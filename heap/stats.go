package heap

import (
	"github.com/wippyai/handle-gc/arena"
	"github.com/wippyai/handle-gc/gcerrors"

	handlegc "github.com/wippyai/handle-gc"
)

// Stats is a read-only snapshot of heap occupancy.
//
// TotalObjects counts every object block in the arena, dead ones included:
// a released object keeps its bytes until the next compaction.
// LiveObjects counts mark bits and is accurate only immediately after a
// collection.
type Stats struct {
	HandleCount    int
	FreeHandles    int
	TotalObjects   int
	LiveObjects    int
	UsedBytes      int
	AvailableBytes int
	Capacity       int
	Collections    uint64
	ReclaimedBytes uint64
}

// Stats walks the free list and the arena and reports current occupancy.
// Pure read, safe at any time.
func (h *Heap) Stats() Stats {
	if h.closed {
		return Stats{}
	}

	s := Stats{
		HandleCount:    len(h.table),
		UsedBytes:      h.region.Used(),
		AvailableBytes: h.region.Available(),
		Capacity:       h.region.Cap(),
		Collections:    h.collections,
		ReclaimedBytes: h.reclaimed,
	}

	for id := h.freeHead; id != handlegc.NullHandle; id = h.table[id].nextFree {
		s.FreeHandles++
	}

	used := h.region.Used()
	for off := 0; off < used; {
		hd := h.headerAt(off)
		if hd.handle != handlegc.NullHandle { // skip compaction fillers
			s.TotalObjects++
			if hd.mark != 0 {
				s.LiveObjects++
			}
		}
		off += int(hd.size)
	}

	return s
}

// Object is a read-only view of one live allocation, as reported by
// Objects.
type Object struct {
	Handle   handlegc.Handle
	Type     handlegc.TypeID
	Size     int // payload bytes, alignment padding included
	RefCount int
	Offset   int // payload offset within the arena
	Pinned   bool
}

// Objects calls fn for every live object in arena order, stopping early
// when fn returns false. Dead blocks awaiting compaction are skipped.
func (h *Heap) Objects(fn func(Object) bool) {
	if h.closed {
		return
	}
	used := h.region.Used()
	for off := 0; off < used; {
		hd := h.headerAt(off)
		size := int(hd.size)
		if id := hd.handle; id != handlegc.NullHandle && int(id) < len(h.table) {
			e := h.table[id]
			if e.occupied && e.dataOff == off+headerSize {
				ok := fn(Object{
					Handle:   id,
					Type:     hd.typ,
					Size:     size - headerSize,
					RefCount: int(hd.refCount),
					Offset:   off + headerSize,
					Pinned:   hd.pinned(),
				})
				if !ok {
					return
				}
			}
		}
		off += size
	}
}

// Reachable computes the set of handles reachable from the root list by
// tracing registered markers. Unlike a collection it leaves mark bits
// untouched; intended for diagnostics.
func (h *Heap) Reachable() map[handlegc.Handle]bool {
	if h.closed {
		return nil
	}
	seen := make(map[handlegc.Handle]bool)
	stack := append([]handlegc.Handle(nil), h.roots...)
	visit := func(child handlegc.Handle) {
		stack = append(stack, child)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		e := h.entryOf(id)
		if e == nil || seen[id] {
			continue
		}
		seen[id] = true

		hd := h.headerAt(e.dataOff - headerSize)
		if fn := h.markers[hd.typ]; fn != nil {
			fn(h.region.Bytes(e.dataOff, int(hd.size)-headerSize), visit)
		}
	}
	return seen
}

// Validate checks heap consistency and returns the first violation found,
// or nil. It is diagnostic-only: nothing is corrected. Intended for test
// suites and debug builds, not hot paths.
//
// Checks: every block size is 8-aligned, at least a header, and inside
// the arena; block sizes sum exactly to the bump pointer; every occupied
// table entry resolves to a header whose handle field names that entry;
// no live object has a zero ref count.
func (h *Heap) Validate() error {
	if h.closed {
		return gcerrors.Closed(gcerrors.PhaseValidate)
	}

	used := h.region.Used()
	off := 0
	for off < used {
		if used-off < headerSize {
			return gcerrors.Corruption("trailing %d bytes below arena top cannot hold a header", used-off)
		}
		hd := h.headerAt(off)
		size := int(hd.size)
		if size < headerSize {
			return gcerrors.Corruption("block at offset %d has size %d, below header size", off, size)
		}
		if size != arena.Align(size) {
			return gcerrors.Corruption("block at offset %d has unaligned size %d", off, size)
		}
		if off+size > used {
			return gcerrors.Corruption("block at offset %d size %d overruns arena top %d", off, size, used)
		}
		if id := hd.handle; id != handlegc.NullHandle {
			if int(id) >= len(h.table) {
				return gcerrors.Corruption("block at offset %d names unknown handle %d", off, id)
			}
			e := h.table[id]
			if e.occupied && e.dataOff == off+headerSize && hd.refCount == 0 {
				return gcerrors.New(gcerrors.PhaseValidate, gcerrors.KindRefUnderflow).
					Handle(id).
					Detail("live object with zero ref count").
					Build()
			}
		}
		off += size
	}
	if off != used {
		return gcerrors.Corruption("block sizes sum to %d, arena top is %d", off, used)
	}

	for i := 1; i < len(h.table); i++ {
		e := h.table[i]
		if !e.occupied {
			continue
		}
		if e.dataOff < headerSize || e.dataOff > used {
			return gcerrors.Corruption("handle %d points outside the arena (offset %d, top %d)", i, e.dataOff, used)
		}
		hd := h.headerAt(e.dataOff - headerSize)
		if hd.handle != handlegc.Handle(i) {
			return gcerrors.Corruption("handle %d back-reference mismatch: header names handle %d", i, hd.handle)
		}
	}

	return nil
}
