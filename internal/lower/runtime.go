package lower

import (
	"github.com/wsforth/wsc/internal/ast"
	"github.com/wsforth/wsc/internal/heap"
	"github.com/wsforth/wsc/internal/ir"
	"github.com/wsforth/wsc/internal/value"
)

// callMethod emits a CALL to mi, queuing it for emission if this is the
// first reference (spec.md §3.6's lazy-emission discipline). It does not by
// itself save/restore the caller's locals -- the receiver must be the very
// top of stack when CALL runs, so anything a call site wants preserved has
// to be pushed *before* that call site's own args/receiver, via saveLocals,
// and popped back after, via restoreLocals. See lowerBarewordCall and
// lowerReceiverCall for the wrapping.
func (lw *Lowerer) callMethod(mi *methodInfo) {
	lw.request(mi)
	lw.prog.CallLabel(mi.label)
}

// saveLocals implements the caller side of spec.md §4.2's local save/restore:
// because every invocation of a method reuses the one set of static
// addresses handed out in emitMethod, a recursive call would otherwise
// clobber the caller's own locals. Pushes the current value of every local
// live in the frame (frame.order, in declaration order) plus the frame's own
// self-slot (selfAddr is just as reused across invocations as any declared
// local) -- emitted before the call's own args/receiver are pushed, so the
// callee still finds its receiver on top of stack when CALL runs. Pair with
// restoreLocals after the call returns.
func (lw *Lowerer) saveLocals() []uint64 {
	locals := make([]uint64, 0, len(lw.frame.order)+1)
	locals = append(locals, lw.frame.selfAddr)
	locals = append(locals, lw.frame.order...)
	for _, addr := range locals {
		lw.loadAt(addr)
	}
	return locals
}

// restoreLocals stashes the call's return value in TMP, pops each local
// saved by saveLocals back into its address (LIFO, mirroring push order),
// then leaves the return value back on top of the stack.
func (lw *Lowerer) restoreLocals(locals []uint64) {
	lw.storeAt(heap.Tmp)
	for i := len(locals) - 1; i >= 0; i-- {
		lw.storeAt(locals[i])
	}
	lw.loadAt(heap.Tmp)
}

// callRtest expects the value to test already on the stack and leaves a raw
// 0 (truthy) or 1 (falsy) in its place, via the shared __rtest routine
// (spec.md §4.3: only NIL and FALSE are falsy).
func (lw *Lowerer) callRtest() {
	lw.pushConst(value.WrapSpecial(value.None)) // receiver, unused by __rtest
	lw.callMethod(lw.classMethods[""]["__rtest"])
}

// emitRaise bakes a `raise` diagnostic (spec.md §6.3/§9) as a literal byte
// sequence -- the path:line:col prefix is always known at compile time --
// followed by EXIT. Used both for user `raise "..."` statements and for the
// compiler-synthesized "Unknown type of receiver" fallback.
func (lw *Lowerer) emitRaise(pos ast.Pos, msg string) {
	line := formatRaise(lw.path, pos, msg)
	for _, r := range line {
		lw.pushInt64(int64(r))
		lw.prog.WriteChar()
	}
	lw.prog.Exit()
}

func formatRaise(path string, pos ast.Pos, msg string) string {
	return pathPrefix(path, pos) + msg + " (Error)\n"
}

func pathPrefix(path string, pos ast.Pos) string {
	return path + ":" + itoa(pos.Line) + ":" + itoa(pos.Col) + ": "
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// lowerCondBranch emits code that jumps to trueLabel iff cond is truthy,
// falling through otherwise. Applies the shortcut forms spec.md §4.4 calls
// out (`x == 0`, `0 == x`, `x < 0`, `0 < x` against a literal zero skip the
// general rtest/equality machinery and test the unwrapped operand directly)
// before falling back to the general case.
func (lw *Lowerer) lowerCondBranch(cond ast.Node, trueLabel ir.Label) error {
	if bin, ok := cond.(*ast.BinOp); ok {
		if operand, ok := zeroShortcutOperand(bin); ok {
			if err := lw.lowerExpr(operand); err != nil {
				return err
			}
			lw.unwrapValue()
			switch bin.Op {
			case "==":
				lw.prog.JumpIfZeroLabel(trueLabel)
			case "<":
				lw.prog.JumpIfNegLabel(trueLabel)
			}
			return nil
		}
	}
	if err := lw.lowerExpr(cond); err != nil {
		return err
	}
	lw.callRtest()
	lw.prog.JumpIfZeroLabel(trueLabel) // __rtest returns 0 for truthy
	return nil
}

// zeroShortcutOperand recognizes `x == 0`, `0 == x`, `x < 0`, `0 < x` and
// returns the non-literal operand. Faithfully literal: `0 < x` collapses to
// the same JUMP_IF_NEG test as `x < 0`, matching the original's shortcut
// rather than testing the operand it actually names.
func zeroShortcutOperand(bin *ast.BinOp) (ast.Node, bool) {
	if bin.Op != "==" && bin.Op != "<" {
		return nil, false
	}
	if isZeroLit(bin.Right) {
		return bin.Left, true
	}
	if isZeroLit(bin.Left) {
		return bin.Right, true
	}
	return nil, false
}

func isZeroLit(n ast.Node) bool {
	lit, ok := n.(*ast.IntLit)
	return ok && (lit.Value == "0" || lit.Value == "+0" || lit.Value == "-0")
}

// emitEquality implements `==`/`!=` (spec.md §4.3): wrapped-value equality,
// producing a wrapped TRUE/FALSE.
func (lw *Lowerer) emitEquality(negate bool) {
	trueLabel := lw.prog.NewLabel()
	done := lw.prog.NewLabel()
	lw.prog.Sub()
	lw.prog.JumpIfZeroLabel(trueLabel)
	if negate {
		lw.pushConst(value.WrapSpecial(value.True))
	} else {
		lw.pushConst(value.WrapSpecial(value.False))
	}
	lw.prog.JumpLabel(done)
	lw.prog.DefLabel(trueLabel)
	if negate {
		lw.pushConst(value.WrapSpecial(value.False))
	} else {
		lw.pushConst(value.WrapSpecial(value.True))
	}
	lw.prog.DefLabel(done)
}

// emitCompare implements `<=>` (spec.md §4.3): both operands already
// unwrapped and subtracted (raw difference on the stack), classified into
// wrapped -1/0/+1.
func (lw *Lowerer) emitCompare() {
	negLabel := lw.prog.NewLabel()
	zeroLabel := lw.prog.NewLabel()
	done := lw.prog.NewLabel()
	lw.prog.Dup()
	lw.prog.JumpIfZeroLabel(zeroLabel)
	lw.prog.Dup()
	lw.prog.JumpIfNegLabel(negLabel)
	lw.prog.Pop()
	lw.pushInt64(1)
	lw.wrapInt()
	lw.prog.JumpLabel(done)
	lw.prog.DefLabel(negLabel)
	lw.prog.Pop()
	lw.pushInt64(-1)
	lw.wrapInt()
	lw.prog.JumpLabel(done)
	lw.prog.DefLabel(zeroLabel)
	lw.prog.Pop()
	lw.pushInt64(0)
	lw.wrapInt()
	lw.prog.DefLabel(done)
}

// emitNot implements `!x` in terms of __rtest.
func (lw *Lowerer) emitNot(x ast.Node) error {
	if err := lw.lowerExpr(x); err != nil {
		return err
	}
	lw.callRtest()
	falseLabel := lw.prog.NewLabel()
	done := lw.prog.NewLabel()
	lw.prog.JumpIfZeroLabel(falseLabel) // rtest==0 means x truthy, so !x is FALSE
	lw.pushConst(value.WrapSpecial(value.True))
	lw.prog.JumpLabel(done)
	lw.prog.DefLabel(falseLabel)
	lw.pushConst(value.WrapSpecial(value.False))
	lw.prog.DefLabel(done)
	return nil
}
