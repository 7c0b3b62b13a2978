package heap

import (
	"go.uber.org/zap"

	handlegc "github.com/wippyai/handle-gc"
)

// Collect forces a full mark/compact cycle now. Live objects slide toward
// the arena base; only the handle table is rewritten to reflect the new
// addresses. Pinned live objects stay put and act as compaction barriers:
// dead bytes below a pinned object are stamped as filler and not reclaimed
// until the pin clears.
//
// Collect is a collection point: every slice previously returned by Deref
// must be considered invalid afterwards. The cycle always runs to
// completion; the heap is not reentrant mid-cycle.
func (h *Heap) Collect() {
	if h.closed {
		return
	}
	h.collect()
}

func (h *Heap) collect() {
	usedBefore := h.region.Used()
	h.markAll()
	live := h.compact()
	h.collections++
	freed := usedBefore - h.region.Used()
	h.reclaimed += uint64(freed)

	Logger().Debug("collection complete",
		zap.Uint64("cycle", h.collections),
		zap.Int("live_objects", live),
		zap.Int("reclaimed_bytes", freed),
		zap.Int("used_bytes", h.region.Used()))
}

// markAll clears every block's mark bit, then sets it on everything
// reachable from the root list, tracing child handles through the
// registered markers. Dangling roots (handles already released to zero)
// are skipped: a dead root is a caller bug the mark phase cannot
// distinguish from an ordinary dead object.
func (h *Heap) markAll() {
	// Dead blocks still occupy arena space between collections, so the
	// clearing walk visits live and dead bytes alike.
	used := h.region.Used()
	for off := 0; off < used; {
		hd := h.headerAt(off)
		if hd.mark != 0 {
			hd.mark = 0
			h.storeHeaderAt(off, hd)
		}
		off += int(hd.size)
	}

	h.markStack = append(h.markStack[:0], h.roots...)
	visit := func(child handlegc.Handle) {
		h.markStack = append(h.markStack, child)
	}
	for len(h.markStack) > 0 {
		id := h.markStack[len(h.markStack)-1]
		h.markStack = h.markStack[:len(h.markStack)-1]

		e := h.entryOf(id)
		if e == nil {
			continue
		}
		hoff := e.dataOff - headerSize
		hd := h.headerAt(hoff)
		if hd.mark != 0 {
			continue // cycle or shared child, already traced
		}
		hd.mark = 1
		h.storeHeaderAt(hoff, hd)

		if fn := h.markers[hd.typ]; fn != nil {
			fn(h.region.Bytes(e.dataOff, int(hd.size)-headerSize), visit)
		}
	}
}

// compact walks the arena once with read and write cursors. Marked
// movable blocks are copied down to the write cursor and their table
// entries remapped (generation bumped); marked pinned blocks force the
// write cursor past themselves, stamping the skipped gap as a filler
// block so later linear walks stay consistent; unmarked blocks are
// dropped and their handles freed.
//
// A dead block's handle is freed only if its table entry still points
// back at the block: an eagerly released handle may have been recycled
// for a newer object, and freeing it again would corrupt the table.
func (h *Heap) compact() (live int) {
	read, write := 0, 0
	used := h.region.Used()

	for read < used {
		hd := h.headerAt(read)
		size := int(hd.size)

		switch {
		case hd.mark != 0 && hd.pinned():
			live++
			if write != read {
				h.storeHeaderAt(write, header{size: uint32(read - write)})
			}
			write = read + size

		case hd.mark != 0:
			live++
			if write != read {
				copy(h.region.Bytes(write, size), h.region.Bytes(read, size))
				e := &h.table[hd.handle]
				e.dataOff = write + headerSize
				e.gen++
			}
			write += size

		default:
			if id := hd.handle; id != handlegc.NullHandle && int(id) < len(h.table) {
				e := &h.table[id]
				if e.occupied && e.dataOff == read+headerSize {
					h.freeID(id)
				}
			}
		}

		read += size
	}

	h.region.SetTop(write)
	return live
}
