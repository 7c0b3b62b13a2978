package heap

import (
	handlegc "github.com/wippyai/handle-gc"
	"github.com/wippyai/handle-gc/gcerrors"
)

// Ref is a generation-stamped reference to one object. Unlike the raw
// slice Deref returns, a Ref stays safe to hold across collection points:
// it re-resolves the handle on every access and fails with a stale-handle
// error once compaction has remapped the entry or the handle has been
// freed, instead of silently reading relocated bytes.
type Ref struct {
	heap *Heap
	id   handlegc.Handle
	gen  uint32
}

// Checked returns a generation-stamped reference to the object.
func (h *Heap) Checked(id handlegc.Handle) (Ref, error) {
	if h.closed {
		return Ref{}, gcerrors.Closed(gcerrors.PhaseDeref)
	}
	e := h.entryOf(id)
	if e == nil {
		return Ref{}, gcerrors.InvalidHandle(gcerrors.PhaseDeref, id)
	}
	return Ref{heap: h, id: id, gen: e.gen}, nil
}

// Handle returns the referenced handle.
func (r Ref) Handle() handlegc.Handle {
	return r.id
}

// Bytes resolves the reference to the object's current payload. It fails
// if the heap is closed, the handle has been freed, or the object has
// moved since the Ref was taken.
func (r Ref) Bytes() ([]byte, error) {
	if r.heap == nil || r.heap.closed {
		return nil, gcerrors.Closed(gcerrors.PhaseDeref)
	}
	e := r.heap.entryOf(r.id)
	if e == nil {
		return nil, gcerrors.HandleFreed(gcerrors.PhaseDeref, r.id)
	}
	if e.gen != r.gen {
		return nil, gcerrors.StaleHandle(r.id, r.gen, e.gen)
	}
	hd := r.heap.headerAt(e.dataOff - headerSize)
	return r.heap.region.Bytes(e.dataOff, int(hd.size)-headerSize), nil
}

// Refresh returns a new Ref stamped with the entry's current generation,
// re-validating the handle. Use after a known collection point to keep
// holding the same object.
func (r Ref) Refresh() (Ref, error) {
	if r.heap == nil {
		return Ref{}, gcerrors.Closed(gcerrors.PhaseDeref)
	}
	return r.heap.Checked(r.id)
}
