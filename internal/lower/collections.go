package lower

import (
	"github.com/wsforth/wsc/internal/ast"
	"github.com/wsforth/wsc/internal/heap"
	"github.com/wsforth/wsc/internal/ir"
	"github.com/wsforth/wsc/internal/value"
)

// arraySupportLabels/hashSupportLabels cache the labels of the shared
// runtime-support routines (spec.md §2 item 4, §4.6/§4.7), allocated and
// emitted lazily the first time an array or hash literal/operation needs
// them.
type arraySupportLabels struct {
	bumpAlloc *ir.Label
	grow      *ir.Label
}

// hashSupportLabels caches the labels of the shared chain-walking routines
// Hash#[] and Hash#[]= (and hash-literal insertion) all call into; bucket
// extension reuses arraySupportLabels.bumpAlloc rather than a separate
// allocator.
type hashSupportLabels struct {
	set *ir.Label
	get *ir.Label
}

// hashSetLabel lazily emits the shared hash-insert routine (spec.md §4.7):
// params h, k, v; walks the bucket chain for a matching or empty slot,
// extending the chain if exhausted, then writes key/value and returns v.
func (lw *Lowerer) hashSetLabel() ir.Label {
	if lw.hashSupport.set != nil {
		return *lw.hashSupport.set
	}
	mi := &methodInfo{name: "__hash_set", params: []string{"h", "k", "v"}, label: lw.prog.NewLabel(), builtin: builtinHashSet}
	l := mi.label
	lw.hashSupport.set = &l
	lw.request(mi)
	return l
}

// hashGetLabel lazily emits the shared hash-lookup routine: params h, k;
// returns the stored value or NIL if the chain never matches k.
func (lw *Lowerer) hashGetLabel() ir.Label {
	if lw.hashSupport.get != nil {
		return *lw.hashSupport.get
	}
	mi := &methodInfo{name: "__hash_get", params: []string{"h", "k"}, label: lw.prog.NewLabel(), builtin: builtinHashGet}
	l := mi.label
	lw.hashSupport.get = &l
	lw.request(mi)
	return l
}

func (lw *Lowerer) registerBuiltins() {
	lw.classMethods["Array"] = map[string]*methodInfo{
		"size": {class: "Array", name: "size", label: lw.prog.NewLabel(), builtin: builtinArraySize},
		"push": {class: "Array", name: "push", params: []string{"x"}, label: lw.prog.NewLabel(), builtin: builtinArrayPush},
		"pop":  {class: "Array", name: "pop", label: lw.prog.NewLabel(), builtin: builtinArrayPop},
	}
	lw.classMethods[""] = map[string]*methodInfo{
		"__rtest": {name: "__rtest", params: []string{"x"}, label: lw.prog.NewLabel(), builtin: builtinRtest},
	}
}

// bumpAllocLabel lazily emits a shared routine that bump-allocates n
// (raw, unwrapped) cells and returns the raw address of the first one
// (spec.md §3.2): reads HEAP_COUNT, advances it by n, yields old+1.
func (lw *Lowerer) bumpAllocLabel() ir.Label {
	if lw.arraySupport.bumpAlloc != nil {
		return *lw.arraySupport.bumpAlloc
	}
	mi := &methodInfo{name: "__bump_alloc", params: []string{"n"}, label: lw.prog.NewLabel(), builtin: builtinBumpAlloc}
	l := mi.label
	lw.arraySupport.bumpAlloc = &l
	lw.request(mi)
	return l
}

func builtinBumpAlloc(lw *Lowerer, mi *methodInfo) {
	selfAddr := lw.prog.NewAddr()
	nAddr := lw.prog.NewAddr()
	lw.storeAt(selfAddr) // receiver (NONE), discarded
	lw.storeAt(nAddr)

	lw.loadAt(heap.HeapCount)
	lw.loadAt(nAddr)
	lw.prog.Add() // old+n, the new HEAP_COUNT
	lw.prog.Dup()
	lw.storeAt(heap.HeapCount)
	lw.loadAt(nAddr)
	lw.prog.Sub() // old
	lw.pushInt64(1)
	lw.prog.Add() // old+1, first allocated cell
	lw.prog.End()
}

// arrayGrowLabel lazily emits the shared array-growth routine (spec.md
// §3.3 realloc): doubles capacity, bump-allocates a fresh contiguous
// block, copies live elements, rewrites the descriptor.
func (lw *Lowerer) arrayGrowLabel() ir.Label {
	if lw.arraySupport.grow != nil {
		return *lw.arraySupport.grow
	}
	mi := &methodInfo{name: "__array_grow", params: []string{"desc"}, label: lw.prog.NewLabel(), builtin: builtinArrayGrow}
	l := mi.label
	lw.arraySupport.grow = &l
	lw.request(mi)
	return l
}

func builtinArrayGrow(lw *Lowerer, mi *methodInfo) {
	selfAddr := lw.prog.NewAddr()
	descAddr := lw.prog.NewAddr()
	oldCapAddr := lw.prog.NewAddr()
	newCapAddr := lw.prog.NewAddr()
	oldBlockAddr := lw.prog.NewAddr()
	newBlockAddr := lw.prog.NewAddr()
	iAddr := lw.prog.NewAddr()

	lw.storeAt(selfAddr) // receiver (NONE), discarded
	lw.storeAt(descAddr)

	lw.loadAt(descAddr)
	lw.pushInt64(2)
	lw.prog.Add()
	lw.prog.Load() // cap cell
	lw.storeAt(oldCapAddr)

	lw.loadAt(oldCapAddr)
	lw.pushInt64(2)
	lw.prog.Mul()
	lw.storeAt(newCapAddr)

	lw.loadAt(descAddr)
	lw.prog.Load() // pointer cell (desc+0)
	lw.storeAt(oldBlockAddr)

	lw.loadAt(newCapAddr)
	lw.pushConst(value.WrapSpecial(value.None))
	lw.prog.CallLabel(lw.bumpAllocLabel())
	lw.storeAt(newBlockAddr)

	// copy loop: i from 0 to oldCap-1
	lw.pushInt64(0)
	lw.storeAt(iAddr)
	top := lw.prog.NewLabel()
	done := lw.prog.NewLabel()
	lw.prog.DefLabel(top)
	lw.loadAt(iAddr)
	lw.loadAt(oldCapAddr)
	lw.prog.Sub()
	lw.prog.JumpIfZeroLabel(done) // i == oldCap -> stop (JUMP_IF_ZERO fires when i-oldCap==0)
	// NOTE: the above only stops exactly at i==oldCap; since i only ever
	// increases by 1 from 0, it never overshoots.
	lw.loadAt(oldBlockAddr)
	lw.loadAt(iAddr)
	lw.prog.Add()
	lw.prog.Load()
	lw.loadAt(newBlockAddr)
	lw.loadAt(iAddr)
	lw.prog.Add()
	lw.prog.Save()
	lw.loadAt(iAddr)
	lw.pushInt64(1)
	lw.prog.Add()
	lw.storeAt(iAddr)
	lw.prog.JumpLabel(top)
	lw.prog.DefLabel(done)

	lw.loadAt(newBlockAddr)
	lw.loadAt(descAddr)
	lw.prog.Save() // desc+0 = newBlock
	lw.loadAt(newCapAddr)
	lw.loadAt(descAddr)
	lw.pushInt64(2)
	lw.prog.Add()
	lw.prog.Save() // desc+2 = newCap

	lw.pushConst(value.WrapSpecial(value.Nil))
	lw.prog.End()
}

// lowerArrayLit emits an array literal (spec.md §3.3/§4.1): a static
// 3-cell descriptor followed by cap0 contiguous element cells, cap0 =
// max(10, len*2).
func (lw *Lowerer) lowerArrayLit(n *ast.ArrayLit) error {
	count := uint64(len(n.Elems))
	cap0 := count * 2
	if cap0 < 10 {
		cap0 = 10
	}
	base := lw.prog.NewAddrs(3 + cap0)
	descAddr, blockAddr := base, base+3

	lw.pushAddr(blockAddr)
	lw.storeAt(descAddr)
	lw.pushInt64(int64(count))
	lw.storeAt(descAddr + 1)
	lw.pushInt64(int64(cap0))
	lw.storeAt(descAddr + 2)

	for i, elem := range n.Elems {
		if err := lw.lowerExpr(elem); err != nil {
			return err
		}
		lw.storeAt(blockAddr + uint64(i))
	}

	lw.pushConst(value.Array(descAddr))
	return nil
}

// lowerHashLit emits a hash literal (spec.md §3.4/§4.1): HASH_BUCKETS
// buckets of (key, value, next), keys initialized to NONE.
func (lw *Lowerer) lowerHashLit(n *ast.HashLit) error {
	base := lw.prog.NewAddrs(heap.HashBuckets * 3)
	for i := uint64(0); i < heap.HashBuckets; i++ {
		bucket := base + 3*i
		lw.pushConst(value.WrapSpecial(value.None))
		lw.storeAt(bucket)
		lw.pushInt64(0)
		lw.storeAt(bucket + 1)
		lw.pushInt64(int64(heap.NoneAddr))
		lw.storeAt(bucket + 2)
	}
	hashVal := value.Hash(base)
	for _, pair := range n.Pairs {
		lw.pushConst(hashVal)
		if err := lw.lowerExpr(pair.Key); err != nil {
			return err
		}
		if err := lw.lowerExpr(pair.Value); err != nil {
			return err
		}
		lw.pushConst(value.WrapSpecial(value.None))
		lw.prog.CallLabel(lw.hashSetLabel())
		lw.prog.Pop() // discard hashSet's returned value; the literal keeps hashVal on the Go side
	}
	lw.pushConst(hashVal)
	return nil
}

// builtinHashSet implements Hash#[]=(key,value) (spec.md §4.7), called via
// hashSetLabel() with [hashWrapped, keyWrapped, valueWrapped, NONE] on the
// stack (receiver last, as every call convention requires): walk the bucket
// chain for an existing or empty slot, extending with a fresh bucket when
// the chain is exhausted, then write key/value.
func builtinHashSet(lw *Lowerer, mi *methodInfo) {
	selfAddr := lw.prog.NewAddr()
	hAddr := lw.prog.NewAddr()
	kAddr := lw.prog.NewAddr()
	vAddr := lw.prog.NewAddr()
	curAddr := lw.prog.NewAddr()

	lw.storeAt(selfAddr) // receiver (NONE), discarded
	lw.storeAt(vAddr)
	lw.storeAt(kAddr)
	lw.storeAt(hAddr)

	// bucket = unwrap(hash) + 3 * (unwrap(key) mod HASH_BUCKETS)
	lw.loadAt(kAddr)
	lw.unwrapValue()
	lw.pushInt64(int64(heap.HashBuckets))
	lw.prog.Mod()
	lw.pushInt64(3)
	lw.prog.Mul()
	lw.loadAt(hAddr)
	lw.unwrapValue()
	lw.prog.Add()
	lw.storeAt(curAddr)

	top := lw.prog.NewLabel()
	foundEmpty := lw.prog.NewLabel()
	extend := lw.prog.NewLabel()
	write := lw.prog.NewLabel()
	lw.prog.DefLabel(top)

	lw.loadAt(curAddr)
	lw.prog.Load() // key cell
	lw.prog.Dup()
	lw.pushConst(value.WrapSpecial(value.None))
	lw.prog.Sub()
	lw.prog.JumpIfZeroLabel(foundEmpty) // empty bucket: claim it (stack: key cell value)
	lw.loadAt(kAddr)
	lw.prog.Sub()
	lw.prog.JumpIfZeroLabel(write) // matching key: overwrite value in place (stack empty either way)

	// neither empty nor matching: follow next, or extend.
	lw.loadAt(curAddr)
	lw.pushInt64(2)
	lw.prog.Add()
	lw.prog.Load() // next cell
	lw.prog.Dup()
	lw.pushInt64(int64(heap.NoneAddr))
	lw.prog.Sub()
	lw.prog.JumpIfZeroLabel(extend) // next == NONE_ADDR: chain ends here (stack: next, either way)

	lw.storeAt(curAddr) // cur = next; loop
	lw.prog.JumpLabel(top)

	lw.prog.DefLabel(extend)
	lw.prog.Pop() // discard next (== NONE_ADDR here)
	lw.pushInt64(3)
	lw.pushConst(value.WrapSpecial(value.None))
	lw.prog.CallLabel(lw.bumpAllocLabel())
	lw.prog.Dup()
	// wire cur's next -> the new bucket's key address.
	lw.loadAt(curAddr)
	lw.pushInt64(2)
	lw.prog.Add()
	lw.prog.Save()
	lw.storeAt(curAddr)
	// initialize the new bucket's next to NONE_ADDR.
	lw.pushInt64(int64(heap.NoneAddr))
	lw.loadAt(curAddr)
	lw.pushInt64(2)
	lw.prog.Add()
	lw.prog.Save()
	lw.prog.JumpLabel(write)

	lw.prog.DefLabel(foundEmpty)
	lw.prog.Pop() // discard the leftover key-cell value (NONE, since the bucket is empty)
	lw.prog.JumpLabel(write)

	lw.prog.DefLabel(write)
	// stack is always empty here, from every path that reaches it.
	lw.loadAt(kAddr)
	lw.loadAt(curAddr)
	lw.prog.Save()
	lw.loadAt(vAddr)
	lw.loadAt(curAddr)
	lw.pushInt64(1)
	lw.prog.Add()
	lw.prog.Save()

	lw.loadAt(vAddr)
	lw.prog.End()
}

// builtinHashGet implements Hash#[](key), called via hashGetLabel() with
// [hashWrapped, keyWrapped, NONE] on the stack: NIL if the chain is empty
// or exhausted before a match.
func builtinHashGet(lw *Lowerer, mi *methodInfo) {
	selfAddr := lw.prog.NewAddr()
	hAddr := lw.prog.NewAddr()
	kAddr := lw.prog.NewAddr()
	curAddr := lw.prog.NewAddr()

	lw.storeAt(selfAddr) // receiver (NONE), discarded
	lw.storeAt(kAddr)
	lw.storeAt(hAddr)

	lw.loadAt(kAddr)
	lw.unwrapValue()
	lw.pushInt64(int64(heap.HashBuckets))
	lw.prog.Mod()
	lw.pushInt64(3)
	lw.prog.Mul()
	lw.loadAt(hAddr)
	lw.unwrapValue()
	lw.prog.Add()
	lw.storeAt(curAddr)

	top := lw.prog.NewLabel()
	miss := lw.prog.NewLabel()
	hit := lw.prog.NewLabel()
	done := lw.prog.NewLabel()
	lw.prog.DefLabel(top)

	lw.loadAt(curAddr)
	lw.prog.Load()
	lw.prog.Dup()
	lw.pushConst(value.WrapSpecial(value.None))
	lw.prog.Sub()
	lw.prog.JumpIfZeroLabel(miss)
	lw.loadAt(kAddr)
	lw.prog.Sub()
	lw.prog.JumpIfZeroLabel(hit)

	lw.loadAt(curAddr)
	lw.pushInt64(2)
	lw.prog.Add()
	lw.prog.Load()
	lw.prog.Dup()
	lw.pushInt64(int64(heap.NoneAddr))
	lw.prog.Sub()
	lw.prog.JumpIfZeroLabel(miss)
	lw.storeAt(curAddr)
	lw.prog.JumpLabel(top)

	lw.prog.DefLabel(miss)
	lw.prog.Pop()
	lw.pushConst(value.WrapSpecial(value.Nil))
	lw.prog.JumpLabel(done)

	lw.prog.DefLabel(hit)
	// stack is already empty here: both the key-cell and key operand were
	// consumed computing the comparison that jumped to this label.
	lw.loadAt(curAddr)
	lw.pushInt64(1)
	lw.prog.Add()
	lw.prog.Load()

	lw.prog.DefLabel(done)
	lw.prog.End()
}

func builtinArraySize(lw *Lowerer, mi *methodInfo) {
	selfAddr := lw.prog.NewAddr()
	lw.storeAt(selfAddr)
	lw.loadAt(selfAddr)
	lw.unwrapValue()
	lw.pushInt64(1)
	lw.prog.Add()
	lw.prog.Load()
	lw.wrapInt()
	lw.prog.End()
}

func builtinArrayPush(lw *Lowerer, mi *methodInfo) {
	selfAddr := lw.prog.NewAddr()
	xAddr := lw.prog.NewAddr()
	descAddr := lw.prog.NewAddr()
	lw.storeAt(selfAddr)
	lw.storeAt(xAddr)

	lw.loadAt(selfAddr)
	lw.unwrapValue()
	lw.storeAt(descAddr)

	grown := lw.prog.NewLabel()
	after := lw.prog.NewLabel()
	lw.loadAt(descAddr)
	lw.pushInt64(1)
	lw.prog.Add()
	lw.prog.Load() // size
	lw.loadAt(descAddr)
	lw.pushInt64(2)
	lw.prog.Add()
	lw.prog.Load() // cap
	lw.prog.Sub()
	lw.prog.JumpIfZeroLabel(grown) // size == cap: grow first
	lw.prog.JumpLabel(after)
	lw.prog.DefLabel(grown)
	lw.loadAt(descAddr)
	lw.pushConst(value.WrapSpecial(value.None))
	lw.prog.CallLabel(lw.arrayGrowLabel())
	lw.prog.Pop()
	lw.prog.DefLabel(after)

	lw.loadAt(xAddr)
	lw.loadAt(descAddr)
	lw.prog.Load() // pointer cell (may have just changed from growth)
	lw.loadAt(descAddr)
	lw.pushInt64(1)
	lw.prog.Add()
	lw.prog.Load() // current size
	lw.prog.Add()
	lw.prog.Save() // block[size] = x

	lw.loadAt(descAddr)
	lw.pushInt64(1)
	lw.prog.Add()
	lw.prog.Load()
	lw.pushInt64(1)
	lw.prog.Add()
	lw.loadAt(descAddr)
	lw.pushInt64(1)
	lw.prog.Add()
	lw.prog.Save() // size += 1

	lw.loadAt(selfAddr)
	lw.prog.End()
}

func builtinArrayPop(lw *Lowerer, mi *methodInfo) {
	selfAddr := lw.prog.NewAddr()
	descAddr := lw.prog.NewAddr()
	lw.storeAt(selfAddr)
	lw.loadAt(selfAddr)
	lw.unwrapValue()
	lw.storeAt(descAddr)

	empty := lw.prog.NewLabel()
	done := lw.prog.NewLabel()
	lw.loadAt(descAddr)
	lw.pushInt64(1)
	lw.prog.Add()
	lw.prog.Load()
	lw.prog.JumpIfZeroLabel(empty)

	lw.loadAt(descAddr)
	lw.pushInt64(1)
	lw.prog.Add()
	lw.prog.Load()
	lw.pushInt64(1)
	lw.prog.Sub()
	lw.prog.Dup()
	lw.loadAt(descAddr)
	lw.pushInt64(1)
	lw.prog.Add()
	lw.prog.Save() // size -= 1, keep the new size on the stack

	lw.loadAt(descAddr)
	lw.prog.Load()
	lw.prog.Swap()
	lw.prog.Add()
	lw.prog.Load() // block[new size]
	lw.prog.JumpLabel(done)

	lw.prog.DefLabel(empty)
	lw.pushConst(value.WrapSpecial(value.Nil))

	lw.prog.DefLabel(done)
	lw.prog.End()
}

func builtinRtest(lw *Lowerer, mi *methodInfo) {
	selfAddr := lw.prog.NewAddr()
	xAddr := lw.prog.NewAddr()
	lw.storeAt(selfAddr)
	lw.storeAt(xAddr)

	falsy := lw.prog.NewLabel()
	done := lw.prog.NewLabel()
	lw.loadAt(xAddr)
	lw.pushConst(value.WrapSpecial(value.Nil))
	lw.prog.Sub()
	lw.prog.JumpIfZeroLabel(falsy)
	lw.loadAt(xAddr)
	lw.pushConst(value.WrapSpecial(value.False))
	lw.prog.Sub()
	lw.prog.JumpIfZeroLabel(falsy)
	lw.pushInt64(0)
	lw.prog.JumpLabel(done)
	lw.prog.DefLabel(falsy)
	lw.pushInt64(1)
	lw.prog.DefLabel(done)
	lw.prog.End()
}

// lowerIndex implements recv[key] (spec.md §3.3/§3.4 combined via the
// Index node): dispatch at run time on recv's tag, since the same syntax
// serves both Array#[] and Hash#[].
func (lw *Lowerer) lowerIndex(n *ast.Index) error {
	if err := lw.lowerExpr(n.Recv); err != nil {
		return err
	}
	if err := lw.lowerExpr(n.Key); err != nil {
		return err
	}
	arrayLabel := lw.prog.NewLabel()
	hashLabel := lw.prog.NewLabel()
	done := lw.prog.NewLabel()

	lw.prog.Swap() // stack: key, recv
	lw.prog.Dup()
	lw.tagOf()
	lw.pushInt64(int64(value.TagArray))
	lw.prog.Sub()
	lw.prog.JumpIfZeroLabel(arrayLabel)
	lw.prog.Dup()
	lw.tagOf()
	lw.pushInt64(int64(value.TagHash))
	lw.prog.Sub()
	lw.prog.JumpIfZeroLabel(hashLabel)
	lw.emitRaise(n.At(), "Unknown type of receiver")

	lw.prog.DefLabel(arrayLabel)
	// stack: key, recv (recv on top)
	recvAddr := lw.prog.NewAddr()
	lw.storeAt(recvAddr) // stack: key
	lw.unwrapValue()     // stack: unwrapped key
	lw.loadAt(recvAddr)
	lw.unwrapValue()  // stack: unwrapped key, desc
	lw.prog.Load()    // stack: unwrapped key, block base (desc+0 pointer cell, as push/grow dereference it)
	lw.prog.Add() // stack: element address
	lw.prog.Load()
	lw.prog.JumpLabel(done)

	lw.prog.DefLabel(hashLabel)
	lw.prog.Swap() // stack: recv(hash), key
	lw.pushConst(value.WrapSpecial(value.None))
	lw.prog.CallLabel(lw.hashGetLabel())

	lw.prog.DefLabel(done)
	return nil
}

// lowerIndexAssign implements recv[key] = value.
func (lw *Lowerer) lowerIndexAssign(idx *ast.Index, valueExpr ast.Node) error {
	return lw.lowerIndexAssignValue(idx, func() error { return lw.lowerExpr(valueExpr) })
}

// lowerIndexAssignValue implements recv[key] = <value>, where the value is
// produced by pushValue instead of lowered directly from an ast.Node --
// used both by ordinary Assign-to-Index and by get_as_number/get_as_char
// targeting an indexed lvalue.
func (lw *Lowerer) lowerIndexAssignValue(idx *ast.Index, pushValue func() error) error {
	if err := lw.lowerExpr(idx.Recv); err != nil {
		return err
	}
	if err := lw.lowerExpr(idx.Key); err != nil {
		return err
	}
	if err := pushValue(); err != nil {
		return err
	}
	arrayLabel := lw.prog.NewLabel()
	hashLabel := lw.prog.NewLabel()
	done := lw.prog.NewLabel()

	// stack: recv, key, value
	tmpAddr := lw.prog.NewAddr()
	lw.storeAt(tmpAddr) // stash value, stack: recv, key
	lw.prog.Swap()      // stack: key, recv
	lw.prog.Dup()
	lw.tagOf()
	lw.pushInt64(int64(value.TagArray))
	lw.prog.Sub()
	lw.prog.JumpIfZeroLabel(arrayLabel)
	lw.prog.Dup()
	lw.tagOf()
	lw.pushInt64(int64(value.TagHash))
	lw.prog.Sub()
	lw.prog.JumpIfZeroLabel(hashLabel)
	lw.emitRaise(idx.At(), "Unknown type of receiver")

	lw.prog.DefLabel(arrayLabel)
	// stack: key, recv (recv on top)
	recvAddr := lw.prog.NewAddr()
	lw.storeAt(recvAddr) // stack: key
	lw.unwrapValue()     // stack: unwrapped key
	lw.loadAt(recvAddr)
	lw.unwrapValue()  // stack: unwrapped key, desc
	lw.prog.Load()    // stack: unwrapped key, block base (desc+0 pointer cell, as push/grow dereference it)
	lw.prog.Add() // stack: element address
	lw.loadAt(tmpAddr)
	lw.prog.Swap()
	lw.prog.Save() // stores value at element address
	lw.loadAt(tmpAddr)
	lw.prog.JumpLabel(done)

	lw.prog.DefLabel(hashLabel)
	lw.prog.Swap() // stack: recv(hash), key
	lw.pushAddr(tmpAddr)
	lw.prog.Load()
	lw.pushConst(value.WrapSpecial(value.None))
	lw.prog.CallLabel(lw.hashSetLabel())
	lw.prog.Pop() // discard hashSet's return; the real value is already stashed in tmpAddr
	lw.loadAt(tmpAddr)

	lw.prog.DefLabel(done)
	return nil
}
