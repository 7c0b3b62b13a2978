package inspect

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"testing"

	handlegc "github.com/wippyai/handle-gc"
	"github.com/wippyai/handle-gc/arena"
	"github.com/wippyai/handle-gc/heap"
)

const (
	typeBlob handlegc.TypeID = 1
	typeNode handlegc.TypeID = 2
)

func nodeMarker(payload []byte, visit func(handlegc.Handle)) {
	n := binary.LittleEndian.Uint32(payload[0:4])
	for i := 0; i < int(n); i++ {
		visit(handlegc.Handle(binary.LittleEndian.Uint32(payload[4+4*i:])))
	}
}

func buildHeap(t *testing.T) (*heap.Heap, handlegc.Handle, handlegc.Handle, handlegc.Handle) {
	t.Helper()
	h := heap.New(heap.Options{Capacity: arena.MinCapacity})
	t.Cleanup(h.Close)
	h.RegisterMarker(typeNode, nodeMarker)

	root, err := h.Alloc(16, typeNode)
	if err != nil {
		t.Fatal(err)
	}
	child, err := h.Alloc(16, typeBlob)
	if err != nil {
		t.Fatal(err)
	}
	floating, err := h.Alloc(32, typeBlob)
	if err != nil {
		t.Fatal(err)
	}

	p := h.Deref(root)
	binary.LittleEndian.PutUint32(p[0:4], 1)
	binary.LittleEndian.PutUint32(p[4:8], uint32(child))
	if err := h.AddRoot(root); err != nil {
		t.Fatal(err)
	}
	return h, root, child, floating
}

func TestCapture_Classification(t *testing.T) {
	h, root, child, floating := buildHeap(t)

	snap := Capture(h)
	if len(snap.Objects) != 3 {
		t.Fatalf("captured %d objects, want 3", len(snap.Objects))
	}

	byHandle := make(map[handlegc.Handle]ObjectInfo)
	for _, o := range snap.Objects {
		byHandle[o.Handle] = o
	}

	if o := byHandle[root]; !o.Reachable || !o.Rooted {
		t.Fatalf("root object = %+v, want rooted and reachable", o)
	}
	if o := byHandle[child]; !o.Reachable || o.Rooted {
		t.Fatalf("child object = %+v, want reachable but not rooted", o)
	}
	if o := byHandle[floating]; o.Reachable {
		t.Fatalf("floating object = %+v, want unreachable", o)
	}

	if live := snap.Live(); len(live) != 2 {
		t.Fatalf("Live() has %d objects, want 2", len(live))
	}
	if fl := snap.Floating(); len(fl) != 1 || fl[0].Handle != floating {
		t.Fatalf("Floating() = %+v", fl)
	}
	if got := snap.FloatingBytes(); got != 32+heap.HeaderSize {
		t.Fatalf("FloatingBytes() = %d, want %d", got, 32+heap.HeaderSize)
	}
}

func TestCapture_IsReadOnly(t *testing.T) {
	h, _, _, _ := buildHeap(t)

	before := h.Stats()
	Capture(h)
	after := h.Stats()

	if before.UsedBytes != after.UsedBytes || before.Collections != after.Collections {
		t.Fatalf("capture mutated the heap: %+v -> %+v", before, after)
	}
	if before.TotalObjects != after.TotalObjects {
		t.Fatalf("capture changed object count: %d -> %d", before.TotalObjects, after.TotalObjects)
	}
}

func TestWriteJSON(t *testing.T) {
	h, root, _, _ := buildHeap(t)

	var buf bytes.Buffer
	if err := Capture(h).WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var decoded Snapshot
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if len(decoded.Objects) != 3 {
		t.Fatalf("decoded %d objects, want 3", len(decoded.Objects))
	}
	if len(decoded.Roots) != 1 || decoded.Roots[0] != root {
		t.Fatalf("decoded roots = %v", decoded.Roots)
	}
	if decoded.Capacity != arena.MinCapacity {
		t.Fatalf("decoded capacity = %d", decoded.Capacity)
	}
}

func TestSnapshot_SurvivesHeapChanges(t *testing.T) {
	h, _, _, floating := buildHeap(t)

	snap := Capture(h)
	h.Release(floating)
	h.Collect()

	// the old snapshot still reports the pre-collection state
	if len(snap.Objects) != 3 {
		t.Fatalf("snapshot changed after collection: %d objects", len(snap.Objects))
	}

	fresh := Capture(h)
	if len(fresh.Objects) != 2 {
		t.Fatalf("fresh snapshot has %d objects, want 2", len(fresh.Objects))
	}
	if fresh.Collections != 1 {
		t.Fatalf("fresh snapshot Collections = %d, want 1", fresh.Collections)
	}
}
