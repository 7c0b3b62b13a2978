package heap

import (
	"encoding/binary"
	"errors"
	"testing"

	handlegc "github.com/wippyai/handle-gc"
	"github.com/wippyai/handle-gc/gcerrors"
)

// node payload layout used by marker tests: u32 child count, then that
// many u32 child handles.
func nodeMarker(payload []byte, visit func(handlegc.Handle)) {
	n := binary.LittleEndian.Uint32(payload[0:4])
	for i := 0; i < int(n); i++ {
		visit(handlegc.Handle(binary.LittleEndian.Uint32(payload[4+4*i:])))
	}
}

func writeNode(p []byte, children ...handlegc.Handle) {
	binary.LittleEndian.PutUint32(p[0:4], uint32(len(children)))
	for i, c := range children {
		binary.LittleEndian.PutUint32(p[4+4*i:], uint32(c))
	}
}

func objectByHandle(h *Heap, id handlegc.Handle) (Object, bool) {
	var out Object
	var found bool
	h.Objects(func(o Object) bool {
		if o.Handle == id {
			out = o
			found = true
			return false
		}
		return true
	})
	return out, found
}

func TestCollect_HandleStability(t *testing.T) {
	h := newTestHeap(t)

	var kept []handlegc.Handle
	for i := 0; i < 8; i++ {
		// interleave garbage so survivors must move
		if _, err := h.Alloc(48, typeBlob); err != nil {
			t.Fatalf("Alloc garbage: %v", err)
		}
		id, err := h.Alloc(16, typeBlob)
		if err != nil {
			t.Fatalf("Alloc: %v", err)
		}
		binary.LittleEndian.PutUint64(h.Deref(id), uint64(0xCAFE0000+i))
		h.AddRoot(id)
		kept = append(kept, id)
	}

	before := make(map[handlegc.Handle]int)
	for _, id := range kept {
		o, ok := objectByHandle(h, id)
		if !ok {
			t.Fatalf("handle %d missing before collect", id)
		}
		before[id] = o.Offset
	}

	h.Collect()

	moved := false
	for i, id := range kept {
		p := h.Deref(id)
		if p == nil {
			t.Fatalf("rooted handle %d lost its mapping", id)
		}
		if got := binary.LittleEndian.Uint64(p); got != uint64(0xCAFE0000+i) {
			t.Fatalf("handle %d payload = %#x after compaction", id, got)
		}
		o, _ := objectByHandle(h, id)
		if o.Offset != before[id] {
			moved = true
		}
	}
	if !moved {
		t.Fatal("expected at least one survivor to relocate")
	}
}

func TestCollect_UnreachableReclamation(t *testing.T) {
	h := newTestHeap(t)

	rooted, _ := h.Alloc(32, typeBlob)
	h.AddRoot(rooted)
	floating, _ := h.Alloc(32, typeBlob)

	h.Collect()

	s := h.Stats()
	if s.LiveObjects != 1 {
		t.Fatalf("LiveObjects = %d, want 1", s.LiveObjects)
	}
	if s.TotalObjects != 1 {
		t.Fatalf("TotalObjects = %d, want 1 after compaction", s.TotalObjects)
	}
	if h.Deref(floating) != nil {
		t.Fatal("unreachable object should be reclaimed")
	}
	if s.UsedBytes != 32+16 {
		t.Fatalf("UsedBytes = %d, want 48", s.UsedBytes)
	}
}

func TestCollect_PinnedImmobility(t *testing.T) {
	h := newTestHeap(t)

	// garbage below the pinned object would otherwise make it slide down
	if _, err := h.Alloc(64, typeBlob); err != nil {
		t.Fatal(err)
	}
	id, _ := h.Alloc(32, typeBlob)
	h.AddRoot(id)
	if err := h.Pin(id); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	copy(h.Deref(id), "immovable")

	before, _ := objectByHandle(h, id)
	h.Collect()
	after, ok := objectByHandle(h, id)
	if !ok {
		t.Fatal("pinned object lost")
	}
	if after.Offset != before.Offset {
		t.Fatalf("pinned object moved: offset %d -> %d", before.Offset, after.Offset)
	}
	if got := string(h.Deref(id)[:9]); got != "immovable" {
		t.Fatalf("pinned payload = %q", got)
	}
	if err := h.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestCollect_PinnedBarrier(t *testing.T) {
	h := newTestHeap(t)

	if _, err := h.Alloc(48, typeBlob); err != nil { // dead, below the pin
		t.Fatal(err)
	}
	a, _ := h.Alloc(32, typeBlob)
	h.AddRoot(a)
	h.Pin(a)
	if _, err := h.Alloc(48, typeBlob); err != nil { // dead, above the pin
		t.Fatal(err)
	}
	b, _ := h.Alloc(32, typeBlob)
	h.AddRoot(b)

	aBefore, _ := objectByHandle(h, a)
	h.Collect()

	aAfter, _ := objectByHandle(h, a)
	bAfter, _ := objectByHandle(h, b)
	if aAfter.Offset != aBefore.Offset {
		t.Fatalf("pinned object moved: %d -> %d", aBefore.Offset, aAfter.Offset)
	}
	// b compacts down to just after a, never behind it
	wantB := aAfter.Offset + aAfter.Size + headerSize
	if bAfter.Offset != wantB {
		t.Fatalf("movable object offset = %d, want %d (just above the pin)", bAfter.Offset, wantB)
	}
	if err := h.Validate(); err != nil {
		t.Fatalf("Validate with pinned hole: %v", err)
	}

	// dead bytes below the pin stay until the pin clears
	if s := h.Stats(); s.UsedBytes <= (32+16)*2 {
		t.Fatalf("UsedBytes = %d, expected the filler hole to persist", s.UsedBytes)
	}

	h.Unpin(a)
	h.Collect()
	if s := h.Stats(); s.UsedBytes != (32+16)*2 {
		t.Fatalf("UsedBytes = %d after unpin, want %d", s.UsedBytes, (32+16)*2)
	}
	if err := h.Validate(); err != nil {
		t.Fatalf("Validate after unpin: %v", err)
	}
}

func TestCollect_MarkerTracesGraph(t *testing.T) {
	h := newTestHeap(t)
	h.RegisterMarker(typeNode, nodeMarker)

	a, _ := h.Alloc(16, typeNode)
	b, _ := h.Alloc(16, typeNode)
	leaf, _ := h.Alloc(16, typeBlob)

	// a -> b -> a cycle, b -> leaf
	writeNode(h.Deref(a), b)
	writeNode(h.Deref(b), a, leaf)
	h.AddRoot(a)

	h.Collect()
	if s := h.Stats(); s.LiveObjects != 3 {
		t.Fatalf("LiveObjects = %d, want 3 (cycle plus leaf)", s.LiveObjects)
	}

	h.RemoveRoot(a)
	h.Collect()
	if s := h.Stats(); s.TotalObjects != 0 {
		t.Fatalf("TotalObjects = %d, want 0 after unrooting the cycle", s.TotalObjects)
	}
	for _, id := range []handlegc.Handle{a, b, leaf} {
		if h.Deref(id) != nil {
			t.Fatalf("handle %d should be dead", id)
		}
	}
}

func TestCollect_DanglingRootIgnored(t *testing.T) {
	h := newTestHeap(t)

	id, _ := h.Alloc(16, typeBlob)
	h.AddRoot(id)
	if err := h.Release(id); err != nil { // handle freed while still rooted
		t.Fatalf("Release: %v", err)
	}

	h.Collect() // must not panic or resurrect the object
	if s := h.Stats(); s.TotalObjects != 0 {
		t.Fatalf("TotalObjects = %d, want 0", s.TotalObjects)
	}
	h.RemoveRoot(id)
	if err := h.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestCollect_EagerReleaseReuseGuard(t *testing.T) {
	h := newTestHeap(t)

	x, _ := h.Alloc(24, typeBlob)
	if err := h.Release(x); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// y recycles x's handle slot while x's dead bytes still sit in the arena
	y, _ := h.Alloc(24, typeBlob)
	if y != x {
		t.Fatalf("expected handle reuse, got %d and %d", x, y)
	}
	copy(h.Deref(y), "second owner")
	h.AddRoot(y)

	// sweeping x's dead block must not free y's recycled handle
	h.Collect()
	p := h.Deref(y)
	if p == nil {
		t.Fatal("recycled handle freed by compaction of the old block")
	}
	if got := string(p[:12]); got != "second owner" {
		t.Fatalf("payload = %q", got)
	}
	if s := h.Stats(); s.FreeHandles != 0 {
		t.Fatalf("FreeHandles = %d, want 0", s.FreeHandles)
	}
	if err := h.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestCollect_PackingInvariant(t *testing.T) {
	h := newTestHeap(t)

	var ids []handlegc.Handle
	for i := 0; i < 32; i++ {
		id, err := h.Alloc(8+i*8, typeBlob)
		if err != nil {
			t.Fatalf("Alloc: %v", err)
		}
		ids = append(ids, id)
	}
	for i, id := range ids {
		if i%3 == 0 {
			h.AddRoot(id)
		}
	}

	h.Collect()

	if err := h.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	sum := 0
	h.Objects(func(o Object) bool {
		sum += o.Size + headerSize
		return true
	})
	if s := h.Stats(); sum != s.UsedBytes {
		t.Fatalf("live block sizes sum to %d, UsedBytes = %d", sum, s.UsedBytes)
	}
}

func TestRef_StaleAfterCompaction(t *testing.T) {
	h := newTestHeap(t)

	if _, err := h.Alloc(64, typeBlob); err != nil { // garbage forces a move
		t.Fatal(err)
	}
	id, _ := h.Alloc(32, typeBlob)
	h.AddRoot(id)
	copy(h.Deref(id), "guarded")

	ref, err := h.Checked(id)
	if err != nil {
		t.Fatalf("Checked: %v", err)
	}
	if _, err := ref.Bytes(); err != nil {
		t.Fatalf("fresh ref should resolve: %v", err)
	}

	h.Collect()

	_, err = ref.Bytes()
	if !errors.Is(err, &gcerrors.Error{Phase: gcerrors.PhaseDeref, Kind: gcerrors.KindStaleHandle}) {
		t.Fatalf("stale ref error = %v, want stale_handle", err)
	}

	fresh, err := ref.Refresh()
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	p, err := fresh.Bytes()
	if err != nil {
		t.Fatalf("refreshed ref: %v", err)
	}
	if got := string(p[:7]); got != "guarded" {
		t.Fatalf("payload after refresh = %q", got)
	}
}

func TestRef_FreedHandle(t *testing.T) {
	h := newTestHeap(t)

	id, _ := h.Alloc(16, typeBlob)
	ref, err := h.Checked(id)
	if err != nil {
		t.Fatalf("Checked: %v", err)
	}
	h.Release(id)

	_, err = ref.Bytes()
	if !errors.Is(err, &gcerrors.Error{Phase: gcerrors.PhaseDeref, Kind: gcerrors.KindHandleFreed}) {
		t.Fatalf("freed ref error = %v, want handle_freed", err)
	}
}

func TestReachable(t *testing.T) {
	h := newTestHeap(t)
	h.RegisterMarker(typeNode, nodeMarker)

	a, _ := h.Alloc(16, typeNode)
	b, _ := h.Alloc(16, typeBlob)
	floating, _ := h.Alloc(16, typeBlob)
	writeNode(h.Deref(a), b)
	h.AddRoot(a)

	seen := h.Reachable()
	if !seen[a] || !seen[b] {
		t.Fatalf("reachable set %v missing rooted graph", seen)
	}
	if seen[floating] {
		t.Fatal("floating object reported reachable")
	}

	// Reachable must not disturb a later real collection
	h.Collect()
	if s := h.Stats(); s.LiveObjects != 2 {
		t.Fatalf("LiveObjects = %d, want 2", s.LiveObjects)
	}
}
