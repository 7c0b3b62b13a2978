// Package inspect provides read-only diagnostics over a live heap:
// point-in-time snapshots, reachability classification, and JSON export
// for offline analysis.
//
// Capturing a snapshot never triggers a collection and never mutates the
// heap; a snapshot is a plain value that remains valid after the heap
// changes or closes.
package inspect

import (
	"encoding/json"
	"io"

	handlegc "github.com/wippyai/handle-gc"
	"github.com/wippyai/handle-gc/heap"
)

// ObjectInfo describes one live object at capture time.
type ObjectInfo struct {
	Handle    handlegc.Handle `json:"handle"`
	Type      handlegc.TypeID `json:"type"`
	Size      int             `json:"size"`
	RefCount  int             `json:"ref_count"`
	Offset    int             `json:"offset"`
	Pinned    bool            `json:"pinned,omitempty"`
	Rooted    bool            `json:"rooted,omitempty"`
	Reachable bool            `json:"reachable"`
}

// Snapshot is a point-in-time view of heap occupancy.
type Snapshot struct {
	Capacity       int               `json:"capacity"`
	UsedBytes      int               `json:"used_bytes"`
	HandleCount    int               `json:"handle_count"`
	FreeHandles    int               `json:"free_handles"`
	Collections    uint64            `json:"collections"`
	ReclaimedBytes uint64            `json:"reclaimed_bytes"`
	Roots          []handlegc.Handle `json:"roots,omitempty"`
	Objects        []ObjectInfo      `json:"objects"`
}

// Capture records every live object, its root status, and its
// reachability from the root list.
func Capture(h *heap.Heap) *Snapshot {
	stats := h.Stats()
	snap := &Snapshot{
		Capacity:       stats.Capacity,
		UsedBytes:      stats.UsedBytes,
		HandleCount:    stats.HandleCount,
		FreeHandles:    stats.FreeHandles,
		Collections:    stats.Collections,
		ReclaimedBytes: stats.ReclaimedBytes,
		Roots:          h.Roots(),
	}

	rooted := make(map[handlegc.Handle]bool, len(snap.Roots))
	for _, r := range snap.Roots {
		rooted[r] = true
	}
	reachable := h.Reachable()

	h.Objects(func(o heap.Object) bool {
		snap.Objects = append(snap.Objects, ObjectInfo{
			Handle:    o.Handle,
			Type:      o.Type,
			Size:      o.Size,
			RefCount:  o.RefCount,
			Offset:    o.Offset,
			Pinned:    o.Pinned,
			Rooted:    rooted[o.Handle],
			Reachable: reachable[o.Handle],
		})
		return true
	})

	return snap
}

// Live returns the objects reachable from the root list.
func (s *Snapshot) Live() []ObjectInfo {
	return s.filter(true)
}

// Floating returns the objects a collection would reclaim: alive in the
// handle table but unreachable from any root.
func (s *Snapshot) Floating() []ObjectInfo {
	return s.filter(false)
}

func (s *Snapshot) filter(reachable bool) []ObjectInfo {
	var out []ObjectInfo
	for _, o := range s.Objects {
		if o.Reachable == reachable {
			out = append(out, o)
		}
	}
	return out
}

// FloatingBytes sums the arena bytes (headers included) held by
// unreachable objects.
func (s *Snapshot) FloatingBytes() int {
	total := 0
	for _, o := range s.Floating() {
		total += o.Size + heap.HeaderSize
	}
	return total
}

// WriteJSON writes the snapshot as indented JSON.
func (s *Snapshot) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
