package lower

import (
	"github.com/wsforth/wsc/internal/ast"
	"github.com/wsforth/wsc/internal/ir"
	"github.com/wsforth/wsc/internal/value"
)

// dispatchOrder is the fixed tag order explicit-receiver dispatch tests in
// (spec.md §4.5): Special is never user-definable, so it is skipped.
var dispatchOrder = []struct {
	class string
	tag   value.Tag
}{
	{"Integer", value.TagInt},
	{"Array", value.TagArray},
	{"Hash", value.TagHash},
}

func (lw *Lowerer) lowerCall(n *ast.Call) error {
	if n.Recv == nil {
		return lw.lowerBarewordCall(n)
	}
	return lw.lowerReceiverCall(n)
}

// lowerBarewordCall resolves a no-receiver call entirely at compile time
// (spec.md §4.5): inside a method, the enclosing class's own definition of
// the name wins, passing the current self as receiver; otherwise it falls
// back to the top-level method of that name, passing NONE as receiver. No
// runtime tag test is needed since there is nothing to dispatch on.
func (lw *Lowerer) lowerBarewordCall(n *ast.Call) error {
	var mi *methodInfo
	var pushRecv func()
	if lw.currentClass != "" {
		if m, ok := lw.classMethods[lw.currentClass][n.Name]; ok {
			mi = m
			pushRecv = lw.loadSelf
		}
	}
	if mi == nil {
		if m, ok := lw.classMethods[""][n.Name]; ok {
			mi = m
			pushRecv = func() { lw.pushConst(value.WrapSpecial(value.None)) }
		}
	}
	if mi == nil {
		return &CompileError{Pos: n.At(), Msg: "undefined method " + n.Name}
	}
	saved := lw.saveLocals()
	for _, a := range n.Args {
		if err := lw.lowerExpr(a); err != nil {
			return err
		}
	}
	pushRecv()
	lw.callMethod(mi)
	lw.restoreLocals(saved)
	return nil
}

// lowerReceiverCall lowers `recv.name(args)`: args then receiver are
// pushed, then a chain of Dup/tag-compare/JUMP_IF_ZERO tests (spec.md
// §4.5) picks the one class (among Integer/Array/Hash) that defines name
// and matches the receiver's runtime tag, raising "Unknown type of
// receiver" if none do.
func (lw *Lowerer) lowerReceiverCall(n *ast.Call) error {
	type candidate struct {
		tag value.Tag
		mi  *methodInfo
	}
	var candidates []candidate
	for _, d := range dispatchOrder {
		if m, ok := lw.classMethods[d.class][n.Name]; ok {
			candidates = append(candidates, candidate{d.tag, m})
		}
	}
	if len(candidates) == 0 {
		return &CompileError{Pos: n.At(), Msg: "undefined method " + n.Name}
	}

	saved := lw.saveLocals()
	for _, a := range n.Args {
		if err := lw.lowerExpr(a); err != nil {
			return err
		}
	}
	if err := lw.lowerExpr(n.Recv); err != nil {
		return err
	}
	lw.prog.Dup()
	lw.tagOf()

	done := lw.prog.NewLabel()
	bodyLabels := make([]ir.Label, len(candidates))
	for i, c := range candidates {
		bodyLabels[i] = lw.prog.NewLabel()
		lw.prog.Dup()
		lw.pushInt64(int64(c.tag))
		lw.prog.Sub()
		lw.prog.JumpIfZeroLabel(bodyLabels[i])
	}
	lw.emitRaise(n.At(), "Unknown type of receiver")

	for i, c := range candidates {
		lw.prog.DefLabel(bodyLabels[i])
		lw.prog.Pop() // discard the leftover tag value
		lw.callMethod(c.mi)
		lw.restoreLocals(saved)
		if i != len(candidates)-1 {
			lw.prog.JumpLabel(done)
		}
	}
	lw.prog.DefLabel(done)
	return nil
}

func classTag(name string) (value.Tag, bool) {
	switch name {
	case "Integer":
		return value.TagInt, true
	case "Array":
		return value.TagArray, true
	case "Hash":
		return value.TagHash, true
	default:
		return 0, false
	}
}

// lowerIsA implements `x.is_a?(K)` (spec.md §4.5): a runtime tag compare
// against one of the three user-visible classes.
func (lw *Lowerer) lowerIsA(n *ast.IsA) error {
	tag, ok := classTag(n.Class)
	if !ok {
		return &CompileError{Pos: n.At(), Msg: "unknown class " + n.Class}
	}
	if err := lw.lowerExpr(n.X); err != nil {
		return err
	}
	lw.tagOf()
	lw.pushInt64(int64(tag))
	lw.prog.Sub()

	trueLabel := lw.prog.NewLabel()
	done := lw.prog.NewLabel()
	lw.prog.JumpIfZeroLabel(trueLabel)
	lw.pushConst(value.WrapSpecial(value.False))
	lw.prog.JumpLabel(done)
	lw.prog.DefLabel(trueLabel)
	lw.pushConst(value.WrapSpecial(value.True))
	lw.prog.DefLabel(done)
	return nil
}

// lowerBuiltin implements the four direct I/O primitives (spec.md §4.1):
// put_as_number/put_as_char write an unwrapped operand directly; get_as_*
// read into a fresh cell, wrap the result as an INT, and assign it to the
// given lvalue (an Ident or an Index target).
func (lw *Lowerer) lowerBuiltin(n *ast.Builtin) error {
	switch n.Name {
	case "put_as_number":
		if err := lw.lowerExpr(n.Arg); err != nil {
			return err
		}
		lw.unwrapValue()
		lw.prog.WriteNum()
		lw.pushConst(value.WrapSpecial(value.Nil))
		return nil
	case "put_as_char":
		if err := lw.lowerExpr(n.Arg); err != nil {
			return err
		}
		lw.unwrapValue()
		lw.prog.WriteChar()
		lw.pushConst(value.WrapSpecial(value.Nil))
		return nil
	case "get_as_number":
		return lw.lowerGetInto(n, false)
	case "get_as_char":
		return lw.lowerGetInto(n, true)
	default:
		return &CompileError{Pos: n.At(), Msg: "unknown builtin " + n.Name}
	}
}

func (lw *Lowerer) lowerGetInto(n *ast.Builtin, isChar bool) error {
	tmp := lw.prog.NewAddr()
	lw.pushAddr(tmp)
	if isChar {
		lw.prog.ReadChar()
	} else {
		lw.prog.ReadNum()
	}
	pushValue := func() error {
		lw.loadAt(tmp)
		lw.wrapInt()
		return nil
	}

	switch target := n.Arg.(type) {
	case *ast.Ident:
		addr, ok := lw.frame.addrs[target.Name]
		if !ok {
			return &CompileError{Pos: n.At(), Msg: "undefined local " + target.Name}
		}
		if err := pushValue(); err != nil {
			return err
		}
		lw.prog.Dup()
		lw.storeAt(addr)
		return nil
	case *ast.Index:
		return lw.lowerIndexAssignValue(target, pushValue)
	default:
		return &CompileError{Pos: n.At(), Msg: "invalid assignment target"}
	}
}
