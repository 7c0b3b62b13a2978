package handlegc

// Handle is an opaque reference to an object managed by a heap.
// Handle 0 is reserved and always invalid. A handle is only meaningful
// against the heap instance that issued it.
type Handle uint32

// NullHandle is the reserved invalid handle.
const NullHandle Handle = 0

// TypeID tags an allocation with an embedder-defined object kind.
// The GC never interprets it; it only selects the MarkFunc used to
// discover child handles during the mark phase.
type TypeID uint16

// MarkFunc reports the child handles referenced by one object's payload.
// The payload slice is transient: it must not be retained after the call
// returns. Implementations call visit once per child handle; visiting
// NullHandle or an already-dead handle is harmless.
//
// Types with no registered MarkFunc are treated as opaque leaves.
type MarkFunc func(payload []byte, visit func(Handle))
