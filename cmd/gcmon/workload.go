package main

import (
	"encoding/binary"
	"math/rand"

	handlegc "github.com/wippyai/handle-gc"
	"github.com/wippyai/handle-gc/heap"
)

const (
	typeBlob handlegc.TypeID = 1
	typeNode handlegc.TypeID = 2
)

// markNode traces the churn workload's node layout: u32 child count
// followed by that many u32 handles.
func markNode(payload []byte, visit func(handlegc.Handle)) {
	n := binary.LittleEndian.Uint32(payload[0:4])
	for i := 0; i < int(n); i++ {
		visit(handlegc.Handle(binary.LittleEndian.Uint32(payload[4+4*i:])))
	}
}

// workload drives a randomized allocate/reference/release mix against one
// heap, keeping roughly target rooted objects alive.
type workload struct {
	heap   *heap.Heap
	rng    *rand.Rand
	live   []handlegc.Handle
	target int
}

func newWorkload(h *heap.Heap, seed int64, target int) *workload {
	h.RegisterMarker(typeNode, markNode)
	return &workload{
		heap:   h,
		rng:    rand.New(rand.NewSource(seed)),
		target: target,
	}
}

func (w *workload) step() error {
	switch {
	case len(w.live) < w.target || w.rng.Intn(100) < 55:
		return w.allocate()
	case w.rng.Intn(100) < 90:
		return w.dropRandom()
	default:
		w.heap.Collect()
		return nil
	}
}

func (w *workload) allocate() error {
	if w.rng.Intn(100) < 30 {
		id, err := w.heap.Alloc(8+w.rng.Intn(120), typeBlob)
		if err != nil {
			return err
		}
		return w.adopt(id)
	}

	nchildren := w.rng.Intn(5)
	if nchildren > len(w.live) {
		nchildren = len(w.live)
	}
	children := make([]handlegc.Handle, nchildren)
	for i := range children {
		children[i] = w.live[w.rng.Intn(len(w.live))]
	}

	id, err := w.heap.Alloc(4+4*len(children), typeNode)
	if err != nil {
		return err
	}
	p := w.heap.Deref(id)
	binary.LittleEndian.PutUint32(p[0:4], uint32(len(children)))
	for i, c := range children {
		binary.LittleEndian.PutUint32(p[4+4*i:], uint32(c))
	}
	return w.adopt(id)
}

func (w *workload) adopt(id handlegc.Handle) error {
	if err := w.heap.AddRoot(id); err != nil {
		return err
	}
	if w.rng.Intn(100) < 2 {
		if err := w.heap.Pin(id); err != nil {
			return err
		}
	}
	w.live = append(w.live, id)
	return nil
}

func (w *workload) dropRandom() error {
	if len(w.live) == 0 {
		return nil
	}
	i := w.rng.Intn(len(w.live))
	id := w.live[i]
	w.live[i] = w.live[len(w.live)-1]
	w.live = w.live[:len(w.live)-1]

	w.heap.RemoveRoot(id)
	return w.heap.Release(id)
}
