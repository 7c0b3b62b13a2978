// Package handlegc provides a handle-indirected, compacting memory manager
// for dynamically typed object systems.
//
// Objects live in a single contiguous arena and are addressed through
// integer handles rather than pointers. A handle indexes an indirection
// table that stores the object's current location; compaction relocates
// live objects and repairs only the table, never the object graph. This
// makes object relocation O(live bytes) with no reverse-pointer metadata.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	handlegc/            Root package with handle, type tag, and marker definitions
//	├── arena/           Contiguous bump-allocated byte region
//	├── heap/            Handle table, ref counting, roots, mark/compact cycle
//	├── gcerrors/        Structured error types for diagnostics
//	├── inspect/         Read-only heap snapshots and JSON export
//	└── cmd/gcmon/       CLI workload driver and interactive heap monitor
//
// # Quick Start
//
// Allocate, root, and survive a collection:
//
//	h := heap.New(heap.Options{})
//	defer h.Close()
//
//	obj, err := h.Alloc(64, 1)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	h.AddRoot(obj)
//
//	copy(h.Deref(obj), "payload")
//	h.Collect()
//	fmt.Printf("%s\n", h.Deref(obj)[:7]) // "payload"
//
// # The Dereference Contract
//
// Deref returns a byte slice into the arena that is valid only until the
// next operation that can collect: Alloc, Collect, or Close. Retain and
// Release never move memory. Code that must hold a reference across a
// potential collection point should use Checked, which returns a
// generation-stamped Ref that fails loudly on stale access instead of
// silently reading relocated bytes.
//
// # Embedding Contract
//
// The GC treats payloads as opaque. An embedder that stores handles inside
// object payloads must register a MarkFunc for that TypeID so the mark
// phase can trace through them, and must register every externally held
// handle as a root (or keep it retained) before any operation that can
// collect. The heap is single-threaded; embedders running multiple
// goroutines must serialize all calls externally.
package handlegc
