package heap

import (
	handlegc "github.com/wippyai/handle-gc"
)

// entry is one handle table slot. An occupied entry records where the
// object's payload currently lives; a free entry threads the free list
// through nextFree instead. The two states never share fields, so a free
// slot has no offset to dereference by mistake.
//
// gen increments every time the entry is remapped by compaction or
// returned to the free list; checked references compare it to detect
// stale access.
type entry struct {
	dataOff  int
	nextFree handlegc.Handle
	gen      uint32
	occupied bool
}

// allocID pops the free list, or extends the table by one slot.
// Table growth rides on Go slice append (amortized doubling); entry 0 is
// permanently reserved as the null handle.
func (h *Heap) allocID() handlegc.Handle {
	if h.freeHead != handlegc.NullHandle {
		id := h.freeHead
		e := &h.table[id]
		h.freeHead = e.nextFree
		e.nextFree = handlegc.NullHandle
		e.occupied = true
		return id
	}
	h.table = append(h.table, entry{occupied: true})
	return handlegc.Handle(len(h.table) - 1)
}

// freeID returns a slot to the free list (LIFO) and bumps its generation
// so outstanding checked references to the old object fail.
func (h *Heap) freeID(id handlegc.Handle) {
	e := &h.table[id]
	e.occupied = false
	e.dataOff = 0
	e.gen++
	e.nextFree = h.freeHead
	h.freeHead = id
}

// entryOf resolves a handle to its occupied table entry, or nil for the
// null handle, an out-of-range ID, or a freed slot.
func (h *Heap) entryOf(id handlegc.Handle) *entry {
	if id == handlegc.NullHandle || int(id) >= len(h.table) {
		return nil
	}
	e := &h.table[id]
	if !e.occupied {
		return nil
	}
	return e
}
