// Package vm implements the interpreter of the shared IR (spec.md §2 item
// 7): a single stack of arbitrary-precision integers, a call stack, and the
// paged heap from internal/heap. It is the runtime for both halves of the
// toolchain -- a decoded Whitespace file, or IR freshly produced by
// internal/lower -- since both ultimately reduce to an *ir.Program.
//
// Grounded on the teacher's first.go/internals.go VM struct and its
// step/exec loop (stack, mem, prog counter, panic-based halt), generalized
// from a fixed FIRST/THIRD opcode table to spec.md's IR opcode set, and
// from machine-word ints to *big.Int cells/stack values.
package vm

import (
	"context"
	"errors"
	"io"
	"math/big"

	"github.com/wsforth/wsc/internal/flushio"
	"github.com/wsforth/wsc/internal/heap"
	"github.com/wsforth/wsc/internal/ir"
	"github.com/wsforth/wsc/internal/panicerr"
	"github.com/wsforth/wsc/internal/runeio"
)

// VM is a Whitespace/IR virtual machine.
type VM struct {
	in  runeio.Reader
	out flushio.WriteFlusher

	logfn func(mess string, args ...interface{})

	cells     heap.Cells
	stack     []*big.Int
	callStack []int

	instrs   []ir.Instr
	labelPos map[ir.Label]int
	pc       int
}

// New constructs a VM, applying defaults (discard output, empty input) and
// then the given options in order.
func New(opts ...Option) *VM {
	vm := &VM{}
	for _, opt := range defaultOptions {
		opt.apply(vm)
	}
	for _, opt := range opts {
		opt.apply(vm)
	}
	return vm
}

// Run loads prog and executes it to completion: normal EXIT, a `raise`
// (which is just emitted bytes followed by EXIT, not a distinct condition
// the VM can see), or a host-level failure. It returns nil on normal halt,
// and a non-nil error only for host-level failures (spec.md §7) -- matching
// the CLI's documented "exit zero even after raise" quirk (spec.md §6.2,
// §9).
func (vm *VM) Run(ctx context.Context, prog *ir.Program) error {
	err := panicerr.Recover("vm", func() error {
		return vm.run(ctx, prog)
	})
	if err == nil {
		return nil
	}
	var h haltError
	if errors.As(err, &h) {
		return h.error
	}
	return err
}

func (vm *VM) run(ctx context.Context, prog *ir.Program) error {
	vm.instrs = prog.Instrs
	vm.labelPos = make(map[ir.Label]int, len(prog.Instrs))
	for i, in := range prog.Instrs {
		if in.Op == ir.Def {
			vm.labelPos[in.Label] = i
		}
	}
	vm.cells.Stor(heap.HeapCount, big.NewInt(int64(prog.LastStaticAddr())))
	vm.pc = 0

	for vm.pc < len(vm.instrs) {
		if err := ctx.Err(); err != nil {
			vm.halt(err)
		}
		vm.step()
	}
	return nil
}

func (vm *VM) halt(err error) {
	if vm.out != nil {
		if ferr := vm.out.Flush(); err == nil {
			err = ferr
		}
	}
	vm.logf("halt: %v", err)
	panic(haltError{err})
}

func (vm *VM) logf(mess string, args ...interface{}) {
	if vm.logfn != nil {
		vm.logfn(mess, args...)
	}
}

func (vm *VM) step() {
	in := vm.instrs[vm.pc]
	vm.logf("@%d %v -- stack:%v calls:%v", vm.pc, in, vm.stack, vm.callStack)
	vm.pc++

	switch in.Op {
	case ir.Push:
		n, ok := new(big.Int).SetString(in.Int, 10)
		if !ok {
			vm.halt(errors.New("invalid integer literal " + in.Int))
		}
		vm.push(n)
	case ir.Dup:
		v := vm.peek()
		vm.push(new(big.Int).Set(v))
	case ir.Swap:
		n := len(vm.stack)
		if n < 2 {
			vm.halt(ErrStackUnderflow)
		}
		vm.stack[n-1], vm.stack[n-2] = vm.stack[n-2], vm.stack[n-1]
	case ir.Pop:
		vm.pop()

	case ir.Add:
		b, a := vm.pop(), vm.pop()
		vm.push(new(big.Int).Add(a, b))
	case ir.Sub:
		b, a := vm.pop(), vm.pop()
		vm.push(new(big.Int).Sub(a, b))
	case ir.Mul:
		b, a := vm.pop(), vm.pop()
		vm.push(new(big.Int).Mul(a, b))
	case ir.Div:
		b, a := vm.pop(), vm.pop()
		vm.push(vm.divide(a, b))
	case ir.Mod:
		b, a := vm.pop(), vm.pop()
		vm.push(vm.modulo(a, b))

	case ir.Save:
		addr, val := vm.popAddr(), vm.pop()
		if err := vm.cells.Stor(addr, val); err != nil {
			vm.halt(err)
		}
	case ir.Load:
		addr := vm.popAddr()
		v, err := vm.cells.Load(addr)
		if err != nil {
			vm.halt(err)
		}
		vm.push(v)

	case ir.WriteChar:
		v := vm.pop()
		vm.writeRune(rune(v.Int64()))
	case ir.WriteNum:
		v := vm.pop()
		vm.writeString(v.String())
	case ir.ReadChar:
		addr := vm.popAddr()
		r, _, err := vm.in.ReadRune()
		vm.haltif(err)
		if err := vm.cells.Stor(addr, big.NewInt(int64(r))); err != nil {
			vm.halt(err)
		}
	case ir.ReadNum:
		addr := vm.popAddr()
		n := vm.readNumber()
		if err := vm.cells.Stor(addr, n); err != nil {
			vm.halt(err)
		}

	case ir.Def:
		// no-op landing marker; executed both when falling through and as
		// the first instruction after a CALL or jump to its label.

	case ir.Call:
		pos, ok := vm.labelPos[in.Label]
		if !ok {
			vm.halt(UnknownLabelError(in.Label))
		}
		vm.callStack = append(vm.callStack, vm.pc)
		vm.pc = pos
	case ir.Jump:
		vm.pc = vm.mustLabel(in.Label)
	case ir.JumpIfZero:
		if v := vm.pop(); v.Sign() == 0 {
			vm.pc = vm.mustLabel(in.Label)
		}
	case ir.JumpIfNeg:
		if v := vm.pop(); v.Sign() < 0 {
			vm.pc = vm.mustLabel(in.Label)
		}
	case ir.End:
		n := len(vm.callStack)
		if n == 0 {
			vm.halt(ErrCallUnderflow)
		}
		vm.pc = vm.callStack[n-1]
		vm.callStack = vm.callStack[:n-1]
	case ir.Exit:
		vm.halt(nil)

	default:
		vm.halt(UnknownOpError(in.Op))
	}
}

func (vm *VM) mustLabel(l ir.Label) int {
	pos, ok := vm.labelPos[l]
	if !ok {
		vm.halt(UnknownLabelError(l))
	}
	return pos
}

func (vm *VM) push(v *big.Int) { vm.stack = append(vm.stack, v) }

func (vm *VM) peek() *big.Int {
	if len(vm.stack) == 0 {
		vm.halt(ErrStackUnderflow)
	}
	return vm.stack[len(vm.stack)-1]
}

func (vm *VM) pop() *big.Int {
	n := len(vm.stack)
	if n == 0 {
		vm.halt(ErrStackUnderflow)
	}
	v := vm.stack[n-1]
	vm.stack = vm.stack[:n-1]
	return v
}

func (vm *VM) popAddr() uint64 {
	v := vm.pop()
	return v.Uint64()
}

func (vm *VM) haltif(err error) {
	if err != nil {
		vm.halt(err)
	}
}

// divide and modulo implement the IR's DIV/MOD opcodes as fixed Euclidean
// division (big.Int's native Div/Mod): the remainder is always in
// [0, |b|). This is unconditional at the VM level -- tag arithmetic
// (internal/lower's emitted unwrap/rewrap and dispatch code) requires one
// unambiguous mod-4 regardless of how the dialect's own `/`/`%` operators
// are configured, so the truncating-toward-zero alternative spec.md §9
// leaves open is handled entirely by internal/lower, which emits a
// correction sequence around these two opcodes rather than asking the VM
// to run in two different arithmetic modes.
func (vm *VM) divide(a, b *big.Int) *big.Int {
	if b.Sign() == 0 {
		vm.halt(ErrDivByZero)
	}
	return new(big.Int).Div(a, b)
}

func (vm *VM) modulo(a, b *big.Int) *big.Int {
	if b.Sign() == 0 {
		vm.halt(ErrDivByZero)
	}
	return new(big.Int).Mod(a, b)
}

func (vm *VM) writeRune(r rune) {
	if _, err := runeio.WriteANSIRune(vm.out, r); err != nil {
		vm.halt(err)
	}
}

func (vm *VM) writeString(s string) {
	if _, err := runeio.WriteANSIString(vm.out, s); err != nil {
		vm.halt(err)
	}
}

// readNumber reads a decimal-terminated line as a big.Int (READ_NUM,
// spec.md §3.5): digits (optionally signed) up to and including the
// terminating newline, which is consumed but not included.
func (vm *VM) readNumber() *big.Int {
	var sb []byte
	for {
		r, _, err := vm.in.ReadRune()
		if err == io.EOF {
			if len(sb) == 0 {
				vm.halt(io.EOF)
			}
			break
		}
		vm.haltif(err)
		if r == '\n' {
			break
		}
		sb = append(sb, byte(r))
	}
	n, ok := new(big.Int).SetString(string(sb), 10)
	if !ok {
		vm.halt(errors.New("invalid number in input: " + string(sb)))
	}
	return n
}
