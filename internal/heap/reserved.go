package heap

// Reserved addresses, fixed process-wide (spec.md §3.2). Everything past
// these -- local variables, named constants, and dynamically bump-allocated
// array/hash storage -- is addressed generically through Cells; the bump
// allocator itself (read HEAP_COUNT, increment, store back) is implemented
// as ordinary IR emitted by the lowering pass (internal/lower/collections.go),
// not as a special VM opcode, because spec.md's VM only ever executes
// generic SAVE/LOAD against Cells.
const (
	NoneAddr  uint64 = 0 // null-link sentinel
	Tmp       uint64 = 1 // scratch cell
	HeapCount uint64 = 2 // bump pointer: holds the address of the last allocated cell
)

// HashBuckets is the fixed bucket count for hash objects (spec.md §3.4).
const HashBuckets uint64 = 11
