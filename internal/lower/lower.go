// Package lower implements the expression/statement lowering pass (spec.md
// §4.2-§4.7): a recursive AST->IR translator carrying a compile-time
// local-variable stack, a lazily-populated method-definition registry, and
// the per-class dispatch table that chooses between typed method dispatch
// and the top-level fallback.
//
// Grounded on third.go's hand-lowering-by-hand technique (expressing a
// high-level construct as a fixed sequence of stack-machine primitives) as
// the idiomatic model for this codebase's style, and internals.go's
// compileHeader/lookup for the label-table/lazy-emission discipline.
package lower

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/wsforth/wsc/internal/ast"
	"github.com/wsforth/wsc/internal/ir"
	"github.com/wsforth/wsc/internal/value"
)

// DivMode resolves spec.md §9's DIV/MOD open question at lowering time (not
// at the VM, which always runs Euclidean division -- see internal/vm/vm.go's
// divide/modulo doc comment for why that split exists).
type DivMode int

const (
	// DivFloor rounds quotients toward negative infinity, so remainders take
	// the sign of the divisor. The VM's Euclidean DIV/MOD already agree with
	// this for a positive divisor; for a negative divisor the emitted code
	// corrects their result (emitFloorDivMod). Default.
	DivFloor DivMode = iota
	// DivTrunc emits a correction sequence so quotients round toward zero
	// and remainders take the sign of the dividend (Go/C semantics).
	DivTrunc
)

// CompileError is a host-level lowering failure (spec.md §7): the source
// parses but uses the accepted grammar in a way the compiler cannot lower
// (an undefined method, local or class, an unknown builtin or operator, an
// invalid assignment target or integer literal).
type CompileError struct {
	Pos ast.Pos
	Msg string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Path, e.Pos.Line, e.Pos.Col, e.Msg)
}

// methodInfo is one entry of the method-definition registry (spec.md §3.6):
// populated eagerly when a def/class clause is scanned, consumed lazily
// when a call site first resolves it.
type methodInfo struct {
	class  string
	name   string
	params []string
	body   []ast.Node

	// builtin, when set, replaces AST-body lowering with a hand-written IR
	// emission function -- used for the Array/Hash primitives spec.md
	// §4.6/§4.7 specify as runtime support rather than user source.
	builtin func(lw *Lowerer, mi *methodInfo)

	label     ir.Label
	requested bool
	emitted   bool
}

// frame is the compile-time local-variable frame (spec.md §3.6): the set
// of statically-assigned addresses live while lowering one method body (or
// the implicit top-level body).
type frame struct {
	selfAddr uint64
	addrs    map[string]uint64
	order    []uint64 // addresses in assignment order; saveLocals/restoreLocals walk this
}

func newFrame(selfAddr uint64) *frame {
	return &frame{selfAddr: selfAddr, addrs: make(map[string]uint64)}
}

func (f *frame) declare(name string, addr uint64) {
	if _, ok := f.addrs[name]; ok {
		return
	}
	f.addrs[name] = addr
	f.order = append(f.order, addr)
}

// Lowerer carries the three lowering-time tables spec.md §3.6 describes.
type Lowerer struct {
	prog *ir.Program
	path string

	classMethods map[string]map[string]*methodInfo // "" = top-level
	pending      []*methodInfo

	frame        *frame
	currentClass string

	divMode DivMode

	arraySupport arraySupportLabels
	hashSupport  hashSupportLabels
}

// Option configures a Lowerer.
type Option func(*Lowerer)

// WithDivMode selects DIV/MOD rounding for the dialect's `/` and `%`.
func WithDivMode(mode DivMode) Option {
	return func(lw *Lowerer) { lw.divMode = mode }
}

// Lower translates a parsed program into IR. path labels `raise`
// diagnostics (spec.md §6.3).
func Lower(path string, prog *ast.Program, opts ...Option) (*ir.Program, error) {
	lw := &Lowerer{
		prog:         &ir.Program{},
		path:         path,
		classMethods: map[string]map[string]*methodInfo{},
	}
	for _, opt := range opts {
		opt(lw)
	}
	lw.registerBuiltins()

	top := newFrame(lw.prog.NewAddr())
	lw.frame = top
	lw.currentClass = ""

	lw.pushConst(value.WrapSpecial(value.None))
	lw.storeAt(top.selfAddr)

	if err := lw.collectDefs(prog.Stmts); err != nil {
		return nil, err
	}
	lw.hoistLocals(top, prog.Stmts)
	if err := lw.lowerBodyDiscard(prog.Stmts); err != nil {
		return nil, err
	}
	lw.prog.Exit()

	if err := lw.drainPending(); err != nil {
		return nil, err
	}
	return lw.prog, nil
}

func (lw *Lowerer) drainPending() error {
	for len(lw.pending) > 0 {
		mi := lw.pending[0]
		lw.pending = lw.pending[1:]
		if mi.emitted {
			continue
		}
		mi.emitted = true
		if err := lw.emitMethod(mi); err != nil {
			return err
		}
	}
	return nil
}

func (lw *Lowerer) emitMethod(mi *methodInfo) error {
	lw.prog.DefLabel(mi.label)
	if mi.builtin != nil {
		mi.builtin(lw, mi)
		return nil
	}

	selfAddr := lw.prog.NewAddr()
	fr := newFrame(selfAddr)
	for _, p := range mi.params {
		fr.declare(p, lw.prog.NewAddr())
	}

	savedFrame, savedClass := lw.frame, lw.currentClass
	lw.frame, lw.currentClass = fr, mi.class

	lw.storeAt(selfAddr) // receiver was pushed last by the caller
	for i := len(mi.params) - 1; i >= 0; i-- {
		lw.storeAt(fr.addrs[mi.params[i]])
	}

	if err := lw.collectDefs(mi.body); err != nil {
		return err
	}
	lw.hoistLocals(fr, mi.body)
	if err := lw.lowerBody(mi.body); err != nil {
		return err
	}

	lw.frame, lw.currentClass = savedFrame, savedClass
	lw.prog.End()
	return nil
}

// hoistLocals assigns a fresh static address to every name first written
// via plain-Ident assignment within stmts, in first-occurrence order,
// without descending into nested MethodDef/ClassDef bodies (those get their
// own frame when, and if, they are lowered).
func (lw *Lowerer) hoistLocals(fr *frame, stmts []ast.Node) {
	var walk func(n ast.Node)
	walkBody := func(nodes []ast.Node) {
		for _, n := range nodes {
			walk(n)
		}
	}
	walk = func(n ast.Node) {
		switch n := n.(type) {
		case *ast.Assign:
			if id, ok := n.Target.(*ast.Ident); ok {
				fr.declare(id.Name, lw.prog.NewAddr())
			}
			walk(n.Value)
		case *ast.If:
			walk(n.Cond)
			walkBody(n.Then)
			walkBody(n.Else)
		case *ast.Case:
			walk(n.Subject)
			for _, w := range n.Whens {
				walkBody(w.Matches)
				walkBody(w.Body)
			}
			walkBody(n.Else)
		case *ast.While:
			walk(n.Cond)
			walkBody(n.Body)
		case *ast.BinOp:
			walk(n.Left)
			walk(n.Right)
		case *ast.Not:
			walk(n.X)
		case *ast.Index:
			walk(n.Recv)
			walk(n.Key)
		case *ast.Call:
			if n.Recv != nil {
				walk(n.Recv)
			}
			walkBody(n.Args)
		case *ast.ArrayLit:
			walkBody(n.Elems)
		case *ast.HashLit:
			for _, pr := range n.Pairs {
				walk(pr.Key)
				walk(pr.Value)
			}
		case *ast.Builtin:
			if n.Arg != nil {
				walk(n.Arg)
			}
		case *ast.IsA:
			walk(n.X)
		case *ast.MethodDef, *ast.ClassDef:
			// collected separately; do not hoist into this frame.
		}
	}
	walkBody(stmts)
}

// collectDefs registers every MethodDef/ClassDef reachable from stmts
// (descending into if/while/case bodies, but not into another method's
// body) into the global method registry, eagerly, as spec.md §3.6
// requires.
func (lw *Lowerer) collectDefs(stmts []ast.Node) error {
	var walk func(n ast.Node) error
	walkBody := func(nodes []ast.Node) error {
		for _, n := range nodes {
			if err := walk(n); err != nil {
				return err
			}
		}
		return nil
	}
	walk = func(n ast.Node) error {
		switch n := n.(type) {
		case *ast.MethodDef:
			lw.register(n.Class, n.Name, n.Params, n.Body)
		case *ast.ClassDef:
			for _, m := range n.Methods {
				lw.register(m.Class, m.Name, m.Params, m.Body)
			}
		case *ast.If:
			return walkErr(walkBody(n.Then), walkBody(n.Else))
		case *ast.Case:
			for _, w := range n.Whens {
				if err := walkBody(w.Body); err != nil {
					return err
				}
			}
			return walkBody(n.Else)
		case *ast.While:
			return walkBody(n.Body)
		}
		return nil
	}
	return walkBody(stmts)
}

func walkErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (lw *Lowerer) register(class, name string, params []string, body []ast.Node) {
	if lw.classMethods[class] == nil {
		lw.classMethods[class] = map[string]*methodInfo{}
	}
	lw.classMethods[class][name] = &methodInfo{
		class: class, name: name, params: params, body: body,
		label: lw.prog.NewLabel(),
	}
}

func (lw *Lowerer) request(mi *methodInfo) {
	if mi.requested {
		return
	}
	mi.requested = true
	lw.pending = append(lw.pending, mi)
}

// --- small codegen helpers shared by every lowering file in this package ---

func (lw *Lowerer) pushConst(w *big.Int) { lw.prog.PushInt(w.String()) }

func (lw *Lowerer) pushAddr(addr uint64) { lw.prog.PushInt(strconv.FormatUint(addr, 10)) }

func (lw *Lowerer) pushInt64(n int64) { lw.prog.PushInt(strconv.FormatInt(n, 10)) }

// storeAt stores the value currently on top of the stack into addr.
func (lw *Lowerer) storeAt(addr uint64) {
	lw.pushAddr(addr)
	lw.prog.Save()
}

// loadAt pushes the value currently stored at addr.
func (lw *Lowerer) loadAt(addr uint64) {
	lw.pushAddr(addr)
	lw.prog.Load()
}

func (lw *Lowerer) loadSelf() { lw.loadAt(lw.frame.selfAddr) }

// wrapInt rewraps a raw machine integer already on the stack as an INT
// value: (payload<<2)|tag, implemented with MUL/ADD since IR has no shift.
func (lw *Lowerer) wrapInt() {
	lw.pushInt64(4)
	lw.prog.Mul()
	lw.pushInt64(int64(value.TagInt))
	lw.prog.Add()
}

// unwrapValue turns a wrapped value on the stack into its raw payload via
// floor division by 4 -- valid for every tag since all four wrap the same
// way (payload*4 + tag, tag in 0..3), and floor division here is always the
// VM's fixed Euclidean DIV regardless of the dialect's own DivMode.
func (lw *Lowerer) unwrapValue() {
	lw.pushInt64(4)
	lw.prog.Div()
}

// tagOf replaces the wrapped value on top of the stack with its tag (0-3).
func (lw *Lowerer) tagOf() {
	lw.pushInt64(4)
	lw.prog.Mod()
}

