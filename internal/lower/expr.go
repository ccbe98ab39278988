package lower

import (
	"fmt"
	"math/big"

	"github.com/wsforth/wsc/internal/ast"
	"github.com/wsforth/wsc/internal/value"
)

func parseBigDecimal(s string) (*big.Int, bool) {
	return new(big.Int).SetString(s, 10)
}

// lowerBodyDiscard lowers a statement list where no value is wanted (the
// top-level program body): every statement's result is popped.
func (lw *Lowerer) lowerBodyDiscard(stmts []ast.Node) error {
	for _, n := range stmts {
		if isDefNode(n) {
			continue
		}
		if err := lw.lowerExpr(n); err != nil {
			return err
		}
		lw.prog.Pop()
	}
	return nil
}

// lowerBody lowers a method body, leaving the last statement's value as the
// return value (NIL if the body is empty, spec.md §4.2).
func (lw *Lowerer) lowerBody(stmts []ast.Node) error {
	live := make([]ast.Node, 0, len(stmts))
	for _, n := range stmts {
		if !isDefNode(n) {
			live = append(live, n)
		}
	}
	if len(live) == 0 {
		lw.pushConst(value.WrapSpecial(value.Nil))
		return nil
	}
	for _, n := range live[:len(live)-1] {
		if err := lw.lowerExpr(n); err != nil {
			return err
		}
		lw.prog.Pop()
	}
	return lw.lowerExpr(live[len(live)-1])
}

func isDefNode(n ast.Node) bool {
	switch n.(type) {
	case *ast.MethodDef, *ast.ClassDef:
		return true
	default:
		return false
	}
}

// lowerExpr lowers n, leaving exactly one wrapped value on the stack.
func (lw *Lowerer) lowerExpr(n ast.Node) error {
	switch n := n.(type) {
	case *ast.IntLit:
		return lw.lowerIntLit(n)
	case *ast.CharLit:
		lw.pushConst(value.Int(int64(n.Value)))
		return nil
	case *ast.BoolLit:
		if n.Value {
			lw.pushConst(value.WrapSpecial(value.True))
		} else {
			lw.pushConst(value.WrapSpecial(value.False))
		}
		return nil
	case *ast.NilLit:
		lw.pushConst(value.WrapSpecial(value.Nil))
		return nil
	case *ast.Self:
		lw.loadSelf()
		return nil
	case *ast.Ident:
		return lw.lowerIdent(n)
	case *ast.ArrayLit:
		return lw.lowerArrayLit(n)
	case *ast.HashLit:
		return lw.lowerHashLit(n)
	case *ast.BinOp:
		return lw.lowerBinOp(n)
	case *ast.Not:
		return lw.emitNot(n.X)
	case *ast.Assign:
		return lw.lowerAssign(n)
	case *ast.Index:
		return lw.lowerIndex(n)
	case *ast.If:
		return lw.lowerIf(n)
	case *ast.Case:
		return lw.lowerCase(n)
	case *ast.While:
		return lw.lowerWhile(n)
	case *ast.Call:
		return lw.lowerCall(n)
	case *ast.IsA:
		return lw.lowerIsA(n)
	case *ast.Builtin:
		return lw.lowerBuiltin(n)
	case *ast.Raise:
		lw.emitRaise(n.At(), n.Message)
		return nil
	case *ast.Exit:
		lw.prog.Exit()
		return nil
	default:
		return &CompileError{Pos: n.At(), Msg: fmt.Sprintf("cannot lower %T", n)}
	}
}

func (lw *Lowerer) lowerIntLit(n *ast.IntLit) error {
	big, ok := parseBigDecimal(n.Value)
	if !ok {
		return &CompileError{Pos: n.At(), Msg: "invalid integer literal " + n.Value}
	}
	lw.pushConst(value.BigInt(big))
	return nil
}

func (lw *Lowerer) lowerIdent(n *ast.Ident) error {
	if addr, ok := lw.frame.addrs[n.Name]; ok {
		lw.loadAt(addr)
		return nil
	}
	return &CompileError{Pos: n.At(), Msg: "undefined local " + n.Name}
}

func (lw *Lowerer) lowerAssign(n *ast.Assign) error {
	switch target := n.Target.(type) {
	case *ast.Ident:
		addr, ok := lw.frame.addrs[target.Name]
		if !ok {
			return &CompileError{Pos: n.At(), Msg: "undefined local " + target.Name}
		}
		if err := lw.lowerExpr(n.Value); err != nil {
			return err
		}
		lw.prog.Dup()
		lw.storeAt(addr)
		return nil
	case *ast.Index:
		return lw.lowerIndexAssign(target, n.Value)
	default:
		return &CompileError{Pos: n.At(), Msg: "invalid assignment target"}
	}
}

var arithOps = map[string]bool{"+": true, "-": true, "*": true, "/": true, "%": true}
var comparePrelude = map[string]bool{"<": true, ">": true, "<=": true, ">=": true}

func (lw *Lowerer) lowerBinOp(n *ast.BinOp) error {
	switch {
	case arithOps[n.Op]:
		if err := lw.lowerExpr(n.Left); err != nil {
			return err
		}
		lw.unwrapValue()
		if err := lw.lowerExpr(n.Right); err != nil {
			return err
		}
		lw.unwrapValue()
		switch n.Op {
		case "+":
			lw.prog.Add()
		case "-":
			lw.prog.Sub()
		case "*":
			lw.prog.Mul()
		case "/":
			lw.emitDiv()
		case "%":
			lw.emitMod()
		}
		lw.wrapInt()
		return nil
	case n.Op == "==" || n.Op == "!=":
		if err := lw.lowerExpr(n.Left); err != nil {
			return err
		}
		if err := lw.lowerExpr(n.Right); err != nil {
			return err
		}
		lw.emitEquality(n.Op == "!=")
		return nil
	case n.Op == "<=>":
		if err := lw.lowerExpr(n.Left); err != nil {
			return err
		}
		lw.unwrapValue()
		if err := lw.lowerExpr(n.Right); err != nil {
			return err
		}
		lw.unwrapValue()
		lw.prog.Sub()
		lw.emitCompare()
		return nil
	case comparePrelude[n.Op]:
		// Not core primitives (spec.md §4.3): `<`, `>`, `<=`, `>=` are
		// prelude methods defined on Integer purely in terms of `<=>`, so
		// they lower as an ordinary explicit-receiver call.
		call := ast.NewCall(n.At(), n.Left, n.Op, []ast.Node{n.Right})
		return lw.lowerCall(call)
	default:
		return &CompileError{Pos: n.At(), Msg: "unknown operator " + n.Op}
	}
}

// emitDiv/emitMod consume two raw (unwrapped) operands and leave a raw
// result, honoring the configured DivMode. The VM's native DIV/MOD are
// Euclidean (remainder always in [0, |b|)), which coincides with floor
// division only for a positive divisor: for a negative divisor Euclidean
// division rounds the quotient toward +infinity instead, so emitFloorQuotRem
// corrects it back to true floor division. DivTrunc further corrects the
// floor result to round toward zero: when the floor remainder is nonzero and
// the operand signs differ, the truncating quotient is one greater and the
// truncating remainder is the floor one minus the divisor.
func (lw *Lowerer) emitDiv() {
	if lw.divMode == DivFloor {
		lw.emitFloorQuotRem(true)
		return
	}
	lw.emitTruncQuotRem(true)
}

func (lw *Lowerer) emitMod() {
	if lw.divMode == DivFloor {
		lw.emitFloorQuotRem(false)
		return
	}
	lw.emitTruncQuotRem(false)
}

// emitFloorDivMod expects raw [a, b] on the stack (already consumed) and
// stores a, b, and the true floor quotient/remainder into fresh addresses,
// which it returns. The VM's Div/Mod opcodes are Euclidean, so for b < 0
// with a nonzero remainder the Euclidean quotient/remainder are one step
// toward +infinity from the floor ones and need correcting back.
func (lw *Lowerer) emitFloorDivMod() (aAddr, bAddr, qAddr, rAddr uint64) {
	aAddr = lw.prog.NewAddr()
	bAddr = lw.prog.NewAddr()
	lw.storeAt(bAddr)
	lw.storeAt(aAddr)

	lw.loadAt(aAddr)
	lw.loadAt(bAddr)
	lw.prog.Div()
	qAddr = lw.prog.NewAddr()
	lw.storeAt(qAddr)

	lw.loadAt(aAddr)
	lw.loadAt(bAddr)
	lw.prog.Mod()
	rAddr = lw.prog.NewAddr()
	lw.storeAt(rAddr)

	skip := lw.prog.NewLabel()
	negB := lw.prog.NewLabel()

	lw.loadAt(rAddr)
	lw.prog.JumpIfZeroLabel(skip) // r == 0: Euclidean and floor already agree
	lw.loadAt(bAddr)
	lw.prog.JumpIfNegLabel(negB) // b < 0: Euclidean rounded toward +infinity
	lw.prog.JumpLabel(skip)      // b > 0: Euclidean already is floor

	lw.prog.DefLabel(negB)
	lw.loadAt(qAddr)
	lw.pushInt64(1)
	lw.prog.Sub()
	lw.storeAt(qAddr)
	lw.loadAt(rAddr)
	lw.loadAt(bAddr)
	lw.prog.Add()
	lw.storeAt(rAddr)

	lw.prog.DefLabel(skip)
	return aAddr, bAddr, qAddr, rAddr
}

// emitFloorQuotRem expects raw [a, b] on the stack and leaves the flooring
// quotient (wantQuot) or remainder.
func (lw *Lowerer) emitFloorQuotRem(wantQuot bool) {
	_, _, qAddr, rAddr := lw.emitFloorDivMod()
	if wantQuot {
		lw.loadAt(qAddr)
	} else {
		lw.loadAt(rAddr)
	}
}

// emitTruncQuotRem expects raw [a, b] on the stack and leaves the truncating
// quotient (wantQuot) or remainder, built on top of the true floor
// quotient/remainder from emitFloorDivMod.
func (lw *Lowerer) emitTruncQuotRem(wantQuot bool) {
	aAddr, bAddr, qAddr, rAddr := lw.emitFloorDivMod()

	skip := lw.prog.NewLabel()
	done := lw.prog.NewLabel()

	lw.loadAt(rAddr)
	lw.prog.JumpIfZeroLabel(skip) // r == 0: already exact, no correction needed

	// signs differ iff a and b land on opposite sides of zero; test via
	// (a<0) xor (b<0) using the unwrapped raw operands directly.
	negA := lw.prog.NewLabel()
	differ := lw.prog.NewLabel()
	lw.loadAt(aAddr)
	lw.prog.JumpIfNegLabel(negA)
	lw.loadAt(bAddr)
	lw.prog.JumpIfNegLabel(differ) // a>=0, b<0 -> differ
	lw.prog.JumpLabel(skip)        // a>=0, b>=0 -> same sign
	lw.prog.DefLabel(negA)
	lw.loadAt(bAddr)
	lw.prog.JumpIfNegLabel(skip) // a<0, b<0 -> same sign
	lw.prog.JumpLabel(differ)    // a<0, b>=0 -> differ
	lw.prog.DefLabel(differ)

	if wantQuot {
		lw.loadAt(qAddr)
		lw.pushInt64(1)
		lw.prog.Add()
	} else {
		lw.loadAt(rAddr)
		lw.loadAt(bAddr)
		lw.prog.Sub()
	}
	lw.prog.JumpLabel(done)

	lw.prog.DefLabel(skip)
	if wantQuot {
		lw.loadAt(qAddr)
	} else {
		lw.loadAt(rAddr)
	}
	lw.prog.DefLabel(done)
}
