// Package ir defines the flat, typed instruction stream (spec.md §3.5) that
// both halves of the toolchain share: the lowering pass emits it, the
// encoder turns it into Whitespace source text, the decoder reads it back
// out of Whitespace source text, and the VM executes it directly.
package ir

import "fmt"

// Op names an IR opcode.
type Op uint8

const (
	Push Op = iota
	Dup
	Swap
	Pop

	Add
	Sub
	Mul
	Div
	Mod

	Save
	Load

	WriteChar
	WriteNum
	ReadChar
	ReadNum

	Def
	Call
	Jump
	JumpIfZero
	JumpIfNeg
	End
	Exit
)

var opNames = [...]string{
	Push: "push", Dup: "dup", Swap: "swap", Pop: "pop",
	Add: "add", Sub: "sub", Mul: "mul", Div: "div", Mod: "mod",
	Save: "save", Load: "load",
	WriteChar: "write_char", WriteNum: "write_num", ReadChar: "read_char", ReadNum: "read_num",
	Def: "def", Call: "call", Jump: "jump", JumpIfZero: "jz", JumpIfNeg: "jn", End: "end", Exit: "exit",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", op)
}

// HasIntArg reports whether op carries a PUSH-style arbitrary-precision
// integer argument.
func (op Op) HasIntArg() bool { return op == Push }

// HasLabelArg reports whether op carries a label argument.
func (op Op) HasLabelArg() bool {
	switch op {
	case Def, Call, Jump, JumpIfZero, JumpIfNeg:
		return true
	default:
		return false
	}
}

// Label identifies a DEF/CALL/JUMP target. Labels are assigned by Program's
// allocator and are static once lowering completes.
type Label uint64

// Instr is a single IR instruction. Arg is only meaningful when Op.HasIntArg
// or Op.HasLabelArg is true; for HasIntArg, it holds the decimal string of
// an arbitrary-precision integer so Instr stays a plain comparable-ish
// value type without importing math/big here.
type Instr struct {
	Op    Op
	Int   string // decimal, optionally signed; valid iff Op.HasIntArg()
	Label Label  // valid iff Op.HasLabelArg()
}

func (in Instr) String() string {
	switch {
	case in.Op.HasIntArg():
		return fmt.Sprintf("%v %s", in.Op, in.Int)
	case in.Op.HasLabelArg():
		return fmt.Sprintf("%v L%d", in.Op, in.Label)
	default:
		return in.Op.String()
	}
}

// Program is the flat ordered instruction sequence plus the two
// monotonically increasing counters spec.md §3.6 requires: a fresh-label
// counter and a fresh static-heap-address counter.
type Program struct {
	Instrs []Instr

	nextLabel Label
	nextAddr  uint64
}

// NewLabel allocates a fresh label, never reused.
func (p *Program) NewLabel() Label {
	p.nextLabel++
	return p.nextLabel
}

// NewAddr allocates a fresh static heap address, never reused. Static
// addresses are handed out starting at 3 -- 0, 1, 2 are the reserved
// NONE_ADDR/TMP/HEAP_COUNT cells (spec.md §3.2).
func (p *Program) NewAddr() uint64 {
	if p.nextAddr == 0 {
		p.nextAddr = 3
	}
	addr := p.nextAddr
	p.nextAddr++
	return addr
}

// NewAddrs allocates n consecutive fresh static addresses, returning the
// first. Used for array/hash literal backing storage and multi-cell
// descriptors.
func (p *Program) NewAddrs(n uint64) uint64 {
	if p.nextAddr == 0 {
		p.nextAddr = 3
	}
	addr := p.nextAddr
	p.nextAddr += n
	return addr
}

// LastStaticAddr returns one past the highest address ever handed out by
// NewAddr/NewAddrs -- the value HEAP_COUNT is initialized to before user code
// runs (spec.md §3.2).
func (p *Program) LastStaticAddr() uint64 {
	if p.nextAddr == 0 {
		return 3
	}
	return p.nextAddr
}

// FromCache reconstructs a Program previously produced by a lowering run,
// given its instruction stream and the static-address count LastStaticAddr
// reported when lowering finished. Used by internal/cache to hand the VM a
// Program restored from disk without re-running the lowering pass: nextLabel
// is left zero since a cached Program is never lowered into further (no more
// NewLabel calls follow), only run or re-encoded.
func FromCache(instrs []Instr, staticAddrCount uint64) *Program {
	return &Program{Instrs: instrs, nextAddr: staticAddrCount}
}

func (p *Program) emit(in Instr) { p.Instrs = append(p.Instrs, in) }

func (p *Program) PushInt(decimal string)  { p.emit(Instr{Op: Push, Int: decimal}) }
func (p *Program) Dup()                    { p.emit(Instr{Op: Dup}) }
func (p *Program) Swap()                   { p.emit(Instr{Op: Swap}) }
func (p *Program) Pop()                    { p.emit(Instr{Op: Pop}) }
func (p *Program) Add()                    { p.emit(Instr{Op: Add}) }
func (p *Program) Sub()                    { p.emit(Instr{Op: Sub}) }
func (p *Program) Mul()                    { p.emit(Instr{Op: Mul}) }
func (p *Program) Div()                    { p.emit(Instr{Op: Div}) }
func (p *Program) Mod()                    { p.emit(Instr{Op: Mod}) }
func (p *Program) Save()                   { p.emit(Instr{Op: Save}) }
func (p *Program) Load()                   { p.emit(Instr{Op: Load}) }
func (p *Program) WriteChar()              { p.emit(Instr{Op: WriteChar}) }
func (p *Program) WriteNum()               { p.emit(Instr{Op: WriteNum}) }
func (p *Program) ReadChar()               { p.emit(Instr{Op: ReadChar}) }
func (p *Program) ReadNum()                { p.emit(Instr{Op: ReadNum}) }
func (p *Program) DefLabel(l Label)        { p.emit(Instr{Op: Def, Label: l}) }
func (p *Program) CallLabel(l Label)       { p.emit(Instr{Op: Call, Label: l}) }
func (p *Program) JumpLabel(l Label)       { p.emit(Instr{Op: Jump, Label: l}) }
func (p *Program) JumpIfZeroLabel(l Label) { p.emit(Instr{Op: JumpIfZero, Label: l}) }
func (p *Program) JumpIfNegLabel(l Label)  { p.emit(Instr{Op: JumpIfNeg, Label: l}) }
func (p *Program) End()                    { p.emit(Instr{Op: End}) }
func (p *Program) Exit()                   { p.emit(Instr{Op: Exit}) }
