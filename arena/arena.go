// Package arena implements the contiguous byte region that backs all
// GC-managed allocations.
//
// The region is a single byte slice with a bump pointer. Allocation is
// O(1) and returns offsets, not pointers: callers address the region
// through (offset, length) pairs so that a later compaction pass can
// relocate data without invalidating anything but the offsets the heap's
// handle table records. The region never grows; reclaiming space is the
// owning heap's job.
package arena

const (
	// MinCapacity is the smallest region the allocator will create.
	MinCapacity = 1 << 20

	// DefaultCapacity is used when New is given a capacity of 0.
	DefaultCapacity = 64 << 20

	alignment = 8
)

// Region is a bump allocator over one contiguous byte buffer.
// Offsets [0, top) hold allocated data; [top, cap) is unused.
type Region struct {
	buf []byte
	top int
}

// New creates a region of the given capacity in bytes.
// A capacity of 0 selects DefaultCapacity; anything below MinCapacity is
// clamped up to it.
func New(capacity int) *Region {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	return &Region{buf: make([]byte, capacity)}
}

// Align rounds n up to the allocator's alignment.
func Align(n int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}

// Alloc reserves size bytes (rounded up to the alignment) and returns the
// offset of the reservation. It fails with ok=false, leaving the region
// untouched, when the rounded size does not fit.
func (r *Region) Alloc(size int) (offset int, ok bool) {
	if size < 0 {
		return 0, false
	}
	aligned := Align(size)
	if aligned > len(r.buf)-r.top {
		return 0, false
	}
	offset = r.top
	r.top += aligned
	return offset, true
}

// Reset discards all allocations. The caller must guarantee no live data
// remains; the region cannot check.
func (r *Region) Reset() {
	r.top = 0
}

// SetTop moves the bump pointer to n, discarding everything above it.
// Used by compaction, which rewrites [0, n) in place and computes the new
// top directly. Panics if n is outside [0, Cap()] or unaligned.
func (r *Region) SetTop(n int) {
	if n < 0 || n > len(r.buf) || n != Align(n) {
		panic("arena: SetTop out of range")
	}
	r.top = n
}

// Bytes returns the slice of the region at [off, off+n).
// Panics if the range is outside [0, Cap()); callers are expected to pass
// offsets they obtained from Alloc.
func (r *Region) Bytes(off, n int) []byte {
	return r.buf[off : off+n]
}

// Used reports the bytes currently allocated.
func (r *Region) Used() int {
	return r.top
}

// Available reports the bytes remaining for allocation.
func (r *Region) Available() int {
	return len(r.buf) - r.top
}

// Cap reports the total capacity of the region.
func (r *Region) Cap() int {
	return len(r.buf)
}
