package lower

import (
	"github.com/wsforth/wsc/internal/ast"
	"github.com/wsforth/wsc/internal/ir"
	"github.com/wsforth/wsc/internal/value"
)

// lowerIf lowers `if cond then A else B end` as an expression: the taken
// branch's value is left on the stack (spec.md §4.4). `unless` is parsed
// with Then/Else already swapped, so it needs no special handling here.
func (lw *Lowerer) lowerIf(n *ast.If) error {
	thenLabel := lw.prog.NewLabel()
	done := lw.prog.NewLabel()

	if err := lw.lowerCondBranch(n.Cond, thenLabel); err != nil {
		return err
	}
	if err := lw.lowerBody(n.Else); err != nil {
		return err
	}
	lw.prog.JumpLabel(done)
	lw.prog.DefLabel(thenLabel)
	if err := lw.lowerBody(n.Then); err != nil {
		return err
	}
	lw.prog.DefLabel(done)
	return nil
}

// lowerCase lowers `case subject when m1, m2 then ... else ... end`
// (spec.md §4.4): each `when` clause tests the subject against its match
// list with `==`, in order; the first matching clause's body is the
// result, falling back to Else (or NIL) if none match.
func (lw *Lowerer) lowerCase(n *ast.Case) error {
	subjAddr := lw.prog.NewAddr()
	if err := lw.lowerExpr(n.Subject); err != nil {
		return err
	}
	lw.storeAt(subjAddr)

	done := lw.prog.NewLabel()
	var next ir.Label
	for _, when := range n.Whens {
		bodyLabel := lw.prog.NewLabel()
		for _, m := range when.Matches {
			lw.loadAt(subjAddr)
			if err := lw.lowerExpr(m); err != nil {
				return err
			}
			lw.prog.Sub()
			lw.prog.JumpIfZeroLabel(bodyLabel)
		}
		next = lw.prog.NewLabel()
		lw.prog.JumpLabel(next)
		lw.prog.DefLabel(bodyLabel)
		if err := lw.lowerBody(when.Body); err != nil {
			return err
		}
		lw.prog.JumpLabel(done)
		lw.prog.DefLabel(next)
	}
	if err := lw.lowerBody(n.Else); err != nil {
		return err
	}
	lw.prog.DefLabel(done)
	return nil
}

// lowerWhile lowers `while cond body end` (spec.md §4.4): an expression
// whose value is always NIL, since the loop's exit is driven purely by
// condition falsiness rather than a break value.
func (lw *Lowerer) lowerWhile(n *ast.While) error {
	top := lw.prog.NewLabel()
	bodyLabel := lw.prog.NewLabel()
	done := lw.prog.NewLabel()

	lw.prog.DefLabel(top)
	if err := lw.lowerCondBranch(n.Cond, bodyLabel); err != nil {
		return err
	}
	lw.prog.JumpLabel(done)
	lw.prog.DefLabel(bodyLabel)
	if err := lw.lowerBodyDiscard(n.Body); err != nil {
		return err
	}
	lw.prog.JumpLabel(top)
	lw.prog.DefLabel(done)

	lw.pushConst(value.WrapSpecial(value.Nil))
	return nil
}
