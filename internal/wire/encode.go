package wire

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/wsforth/wsc/internal/ir"
)

// Encode renders prog as Whitespace source text. Encoding is the inverse of
// Decode: each instruction yields a deterministic fixed byte sequence
// (spec.md §6.1).
func Encode(prog *ir.Program) ([]byte, error) {
	var buf bytes.Buffer
	for _, in := range prog.Instrs {
		if err := encodeInstr(&buf, in); err != nil {
			return nil, fmt.Errorf("encode %v: %w", in, err)
		}
	}
	return buf.Bytes(), nil
}

func encodeInstr(buf *bytes.Buffer, in ir.Instr) error {
	switch in.Op {
	case ir.Push:
		n, ok := new(big.Int).SetString(in.Int, 10)
		if !ok {
			return fmt.Errorf("invalid integer literal %q", in.Int)
		}
		writeSyms(buf, S, S)
		writeNumber(buf, n)
	case ir.Dup:
		writeSyms(buf, S, L, S)
	case ir.Swap:
		writeSyms(buf, S, L, T)
	case ir.Pop:
		writeSyms(buf, S, L, L)

	case ir.Add:
		writeSyms(buf, T, S, S, S)
	case ir.Sub:
		writeSyms(buf, T, S, S, T)
	case ir.Mul:
		writeSyms(buf, T, S, S, L)
	case ir.Div:
		writeSyms(buf, T, S, T, S)
	case ir.Mod:
		writeSyms(buf, T, S, T, T)

	case ir.Save:
		writeSyms(buf, T, T, S)
	case ir.Load:
		writeSyms(buf, T, T, T)

	case ir.Def:
		writeSyms(buf, L, S, S)
		writeLabel(buf, in.Label)
	case ir.Call:
		writeSyms(buf, L, S, T)
		writeLabel(buf, in.Label)
	case ir.Jump:
		writeSyms(buf, L, S, L)
		writeLabel(buf, in.Label)
	case ir.JumpIfZero:
		writeSyms(buf, L, T, S)
		writeLabel(buf, in.Label)
	case ir.JumpIfNeg:
		writeSyms(buf, L, T, T)
		writeLabel(buf, in.Label)
	case ir.End:
		writeSyms(buf, L, T, L)
	case ir.Exit:
		writeSyms(buf, L, L, L)

	case ir.WriteChar:
		writeSyms(buf, T, L, S, S)
	case ir.WriteNum:
		writeSyms(buf, T, L, S, T)
	case ir.ReadChar:
		writeSyms(buf, T, L, T, S)
	case ir.ReadNum:
		writeSyms(buf, T, L, T, T)

	default:
		return fmt.Errorf("unknown opcode %v", in.Op)
	}
	return nil
}

func writeSyms(buf *bytes.Buffer, syms ...Symbol) {
	for _, s := range syms {
		buf.WriteByte(s.byte())
	}
}

// writeNumber emits a sign bit (S=+, T=-) followed by the MSB-first binary
// magnitude (S=0, T=1), terminated by L. Zero is encoded as a sign bit with
// no magnitude bits at all.
func writeNumber(buf *bytes.Buffer, n *big.Int) {
	if n.Sign() < 0 {
		writeSyms(buf, T)
	} else {
		writeSyms(buf, S)
	}
	writeMagnitude(buf, n)
	writeSyms(buf, L)
}

// writeLabel emits an unsigned, unterminated-until-L bit string (no sign
// bit) naming a label.
func writeLabel(buf *bytes.Buffer, l ir.Label) {
	n := new(big.Int).SetUint64(uint64(l))
	writeMagnitude(buf, n)
	writeSyms(buf, L)
}

func writeMagnitude(buf *bytes.Buffer, n *big.Int) {
	abs := new(big.Int).Abs(n)
	if abs.Sign() == 0 {
		return
	}
	bits := abs.Text(2)
	for _, r := range bits {
		if r == '1' {
			writeSyms(buf, T)
		} else {
			writeSyms(buf, S)
		}
	}
}
