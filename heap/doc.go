// Package heap implements the handle-indirected compacting collector.
//
// A Heap owns three structures: a contiguous arena (package arena) holding
// every object behind a fixed 16-byte header, a handle table mapping
// integer handles to current payload offsets, and a flat root list. A
// collection cycle marks everything reachable from the roots (tracing
// child handles through per-type MarkFunc hooks) and then slides live
// objects toward the arena base, rewriting only the handle table.
//
// Handle lifecycle is decoupled from memory lifecycle: releasing an
// object's last reference frees its handle slot at once, but the arena
// bytes stay dead in place until the next compaction sweeps past them.
//
// The heap performs no locking. One logical mutator thread drives
// allocation and collection; concurrent embedders must serialize all
// entry points with an external lock.
package heap
