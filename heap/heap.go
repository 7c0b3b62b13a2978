package heap

import (
	"math"

	"go.uber.org/zap"

	handlegc "github.com/wippyai/handle-gc"
	"github.com/wippyai/handle-gc/arena"
	"github.com/wippyai/handle-gc/gcerrors"
)

const defaultHandleCapacity = 1024

// Options configures a heap. The zero value selects the defaults.
type Options struct {
	// Capacity is the arena size in bytes. 0 selects arena.DefaultCapacity;
	// values below arena.MinCapacity are clamped up.
	Capacity int

	// HandleCapacity is the initial handle table capacity. The table grows
	// on demand; this only sizes the first allocation.
	HandleCapacity int
}

// Heap is a handle-indirected, compacting memory manager. Objects are
// bump-allocated from a contiguous arena and addressed through integer
// handles; a collection cycle relocates live objects toward the arena base
// and repairs only the handle table.
//
// A Heap is single-threaded: callers running multiple goroutines must
// serialize every entry point externally. Handles are only meaningful
// against the Heap that issued them.
type Heap struct {
	region   *arena.Region
	table    []entry
	freeHead handlegc.Handle
	roots    []handlegc.Handle
	markers  map[handlegc.TypeID]handlegc.MarkFunc

	markStack []handlegc.Handle

	collections uint64
	reclaimed   uint64
	closed      bool
}

// New creates a heap with its own arena, handle table, and root list.
// Multiple independent heaps can coexist; they share nothing.
func New(opts Options) *Heap {
	hc := opts.HandleCapacity
	if hc <= 0 {
		hc = defaultHandleCapacity
	}
	h := &Heap{
		region:  arena.New(opts.Capacity),
		table:   make([]entry, 1, hc), // slot 0 reserved as the null handle
		roots:   make([]handlegc.Handle, 0, 256),
		markers: make(map[handlegc.TypeID]handlegc.MarkFunc),
	}
	return h
}

// Close releases the arena, handle table, and root list. Every subsequent
// operation fails with a closed error (or returns nil, for Deref).
func (h *Heap) Close() {
	if h.closed {
		return
	}
	h.closed = true
	h.region = nil
	h.table = nil
	h.roots = nil
	h.markers = nil
	h.markStack = nil
}

// RegisterMarker installs the child-discovery hook for a type tag.
// Objects whose type has no marker are opaque leaves. Replacing a marker
// is allowed; passing nil removes it.
func (h *Heap) RegisterMarker(typ handlegc.TypeID, fn handlegc.MarkFunc) {
	if h.closed {
		return
	}
	if fn == nil {
		delete(h.markers, typ)
		return
	}
	h.markers[typ] = fn
}

// Alloc reserves size payload bytes tagged with typ and returns a fresh
// handle with a ref count of 1. When the arena is exhausted it runs one
// mark/compact cycle and retries once; if that also fails it returns the
// null handle and an out-of-memory error, leaving the heap intact.
//
// Alloc is a collection point: any slice previously returned by Deref may
// be invalidated.
func (h *Heap) Alloc(size int, typ handlegc.TypeID) (handlegc.Handle, error) {
	if h.closed {
		return handlegc.NullHandle, gcerrors.Closed(gcerrors.PhaseAlloc)
	}
	if size < 0 || uint64(size) > math.MaxUint32-headerSize {
		return handlegc.NullHandle, gcerrors.New(gcerrors.PhaseAlloc, gcerrors.KindInvalidInput).
			Detail("allocation size %d out of range", size).
			Build()
	}

	total := arena.Align(headerSize + size)
	off, ok := h.region.Alloc(total)
	if !ok {
		h.collect()
		off, ok = h.region.Alloc(total)
		if !ok {
			return handlegc.NullHandle, gcerrors.OutOfMemory(total)
		}
	}

	id := h.allocID()
	h.storeHeaderAt(off, header{
		size:     uint32(total),
		handle:   id,
		typ:      typ,
		refCount: 1,
	})
	h.table[id].dataOff = off + headerSize

	return id, nil
}

// Deref resolves a handle to its payload bytes, or nil for the null
// handle, an unknown handle, or a freed slot.
//
// The returned slice is transient: it aliases the arena and is valid only
// until the next operation that can collect (Alloc, Collect, Close).
// Retain and Release never move memory. Use Checked to hold a reference
// across collection points safely.
func (h *Heap) Deref(id handlegc.Handle) []byte {
	if h.closed {
		return nil
	}
	e := h.entryOf(id)
	if e == nil {
		return nil
	}
	hd := h.headerAt(e.dataOff - headerSize)
	return h.region.Bytes(e.dataOff, int(hd.size)-headerSize)
}

// Retain increments the object's ref count. The count saturates at its
// ceiling (65535) instead of wrapping; a saturated retain is a logged
// no-op. Retaining the null handle is a no-op.
func (h *Heap) Retain(id handlegc.Handle) error {
	if h.closed {
		return gcerrors.Closed(gcerrors.PhaseRetain)
	}
	if id == handlegc.NullHandle {
		return nil
	}
	e := h.entryOf(id)
	if e == nil {
		return gcerrors.InvalidHandle(gcerrors.PhaseRetain, id)
	}
	hoff := e.dataOff - headerSize
	hd := h.headerAt(hoff)
	if hd.refCount == maxRefCount {
		Logger().Warn("ref count saturated, retain ignored",
			zap.Uint32("handle", uint32(id)),
			zap.Uint16("type", uint16(hd.typ)))
		return nil
	}
	hd.refCount++
	h.storeHeaderAt(hoff, hd)
	return nil
}

// Release decrements the object's ref count. On reaching zero the handle
// slot is returned to the free list immediately; the arena bytes stay dead
// in place until the next compaction sweeps them. Releasing the null
// handle is a no-op; releasing a freed handle is an error.
//
// Release never moves memory.
func (h *Heap) Release(id handlegc.Handle) error {
	if h.closed {
		return gcerrors.Closed(gcerrors.PhaseRelease)
	}
	if id == handlegc.NullHandle {
		return nil
	}
	e := h.entryOf(id)
	if e == nil {
		return gcerrors.HandleFreed(gcerrors.PhaseRelease, id)
	}
	hoff := e.dataOff - headerSize
	hd := h.headerAt(hoff)
	if hd.refCount == 0 {
		return gcerrors.RefUnderflow(id)
	}
	hd.refCount--
	h.storeHeaderAt(hoff, hd)
	if hd.refCount == 0 {
		h.freeID(id)
	}
	return nil
}

// Pin marks the object immovable: compaction will never relocate it,
// though it is still reclaimed when unreachable. Live objects above a
// pinned one cannot be compacted past it.
func (h *Heap) Pin(id handlegc.Handle) error {
	return h.setPinned(id, true)
}

// Unpin clears the pin flag.
func (h *Heap) Unpin(id handlegc.Handle) error {
	return h.setPinned(id, false)
}

func (h *Heap) setPinned(id handlegc.Handle, pinned bool) error {
	if h.closed {
		return gcerrors.Closed(gcerrors.PhasePin)
	}
	e := h.entryOf(id)
	if e == nil {
		return gcerrors.InvalidHandle(gcerrors.PhasePin, id)
	}
	hoff := e.dataOff - headerSize
	hd := h.headerAt(hoff)
	if pinned {
		hd.flags |= flagPinned
	} else {
		hd.flags &^= flagPinned
	}
	h.storeHeaderAt(hoff, hd)
	return nil
}

// AddRoot declares the handle reachable regardless of any other
// reference. The root list tolerates duplicates: each AddRoot must be
// matched by exactly one RemoveRoot to fully un-root an object held from
// two call sites.
func (h *Heap) AddRoot(id handlegc.Handle) error {
	if h.closed {
		return gcerrors.Closed(gcerrors.PhaseRoot)
	}
	if h.entryOf(id) == nil {
		return gcerrors.InvalidHandle(gcerrors.PhaseRoot, id)
	}
	h.roots = append(h.roots, id)
	return nil
}

// RemoveRoot removes one matching entry from the root list (swap with
// last); a no-op if the handle is not rooted.
func (h *Heap) RemoveRoot(id handlegc.Handle) {
	if h.closed {
		return
	}
	for i, r := range h.roots {
		if r == id {
			h.roots[i] = h.roots[len(h.roots)-1]
			h.roots = h.roots[:len(h.roots)-1]
			return
		}
	}
}

// Roots returns a copy of the root list, duplicates included.
func (h *Heap) Roots() []handlegc.Handle {
	if h.closed {
		return nil
	}
	out := make([]handlegc.Handle, len(h.roots))
	copy(out, h.roots)
	return out
}
