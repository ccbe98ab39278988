package vm_test

import (
	"bytes"
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsforth/wsc/internal/ir"
	"github.com/wsforth/wsc/internal/vm"
)

func runProgram(t *testing.T, p *ir.Program, opts ...vm.Option) (string, error) {
	t.Helper()
	var out bytes.Buffer
	v := vm.New(append([]vm.Option{vm.WithOutput(&out)}, opts...)...)
	err := v.Run(context.Background(), p)
	return out.String(), err
}

func Test_arithmeticAndOutput(t *testing.T) {
	var p ir.Program
	p.PushInt("3")
	p.PushInt("2")
	p.Add()
	p.WriteNum()
	p.Exit()

	out, err := runProgram(t, &p)
	require.NoError(t, err)
	assert.Equal(t, "5", out)
}

func Test_swapReordersTopTwo(t *testing.T) {
	var p ir.Program
	p.PushInt("1")
	p.PushInt("2")
	p.Swap()
	p.WriteNum() // top is 1
	p.WriteNum() // then 2
	p.Exit()

	out, err := runProgram(t, &p)
	require.NoError(t, err)
	assert.Equal(t, "12", out)
}

func Test_dupWritesSameValueTwice(t *testing.T) {
	var p ir.Program
	p.PushInt("7")
	p.Dup()
	p.WriteNum()
	p.WriteNum()
	p.Exit()

	out, err := runProgram(t, &p)
	require.NoError(t, err)
	assert.Equal(t, "77", out)
}

func Test_saveLoadRoundtrip(t *testing.T) {
	const addr = 10
	var p ir.Program
	p.PushInt("99")
	p.PushInt(strconv.Itoa(addr))
	p.Save()
	p.PushInt(strconv.Itoa(addr))
	p.Load()
	p.WriteNum()
	p.Exit()

	out, err := runProgram(t, &p)
	require.NoError(t, err)
	assert.Equal(t, "99", out)
}

func Test_countdownLoop(t *testing.T) {
	// x = 3; while x != 0 { write_num(x); x = x - 1 }; writes "321".
	const addr = 10
	var p ir.Program
	top := p.NewLabel()
	done := p.NewLabel()

	p.PushInt("3")
	p.PushInt(strconv.Itoa(addr))
	p.Save()

	p.DefLabel(top)
	p.PushInt(strconv.Itoa(addr))
	p.Load()
	p.JumpIfZeroLabel(done)

	p.PushInt(strconv.Itoa(addr))
	p.Load()
	p.WriteNum()

	p.PushInt(strconv.Itoa(addr))
	p.Load()
	p.PushInt("1")
	p.Sub()
	p.PushInt(strconv.Itoa(addr))
	p.Save()

	p.JumpLabel(top)
	p.DefLabel(done)
	p.Exit()

	out, err := runProgram(t, &p)
	require.NoError(t, err)
	assert.Equal(t, "321", out)
}

func Test_jumpIfNeg(t *testing.T) {
	var p ir.Program
	neg := p.NewLabel()
	after := p.NewLabel()

	p.PushInt("-5")
	p.JumpIfNegLabel(neg)
	p.PushInt("80") // 'P', taken only if JumpIfNeg did NOT branch
	p.WriteChar()
	p.JumpLabel(after)
	p.DefLabel(neg)
	p.PushInt("78") // 'N'
	p.WriteChar()
	p.DefLabel(after)
	p.Exit()

	out, err := runProgram(t, &p)
	require.NoError(t, err)
	assert.Equal(t, "N", out)
}

func Test_callEndRoundtrip(t *testing.T) {
	var p ir.Program
	after := p.NewLabel()
	fn := p.NewLabel()

	p.JumpLabel(after)
	p.DefLabel(fn)
	p.PushInt("88") // 'X'
	p.WriteChar()
	p.End()
	p.DefLabel(after)

	p.CallLabel(fn)
	p.CallLabel(fn)
	p.Exit()

	out, err := runProgram(t, &p)
	require.NoError(t, err)
	assert.Equal(t, "XX", out)
}

func Test_divModAreAlwaysEuclidean(t *testing.T) {
	// The VM's DIV/MOD opcodes are unconditionally Euclidean -- internal/lower
	// is responsible for emitting a truncating correction when the dialect's
	// own `/`/`%` are configured for DivTrunc (see vm.go's divide/modulo doc
	// comment).
	var p ir.Program
	p.PushInt("-7")
	p.PushInt("2")
	p.Div()
	p.WriteNum()
	p.PushInt("-7")
	p.PushInt("2")
	p.Mod()
	p.WriteNum()
	p.Exit()

	out, err := runProgram(t, &p)
	require.NoError(t, err)
	assert.Equal(t, "-41", out, "euclidean div -7/2 = -4, mod -7%2 = 1")
}

func Test_readCharAndNum(t *testing.T) {
	const charAddr, numAddr = 10, 20
	var p ir.Program
	p.PushInt(strconv.Itoa(charAddr))
	p.ReadChar()
	p.PushInt(strconv.Itoa(charAddr))
	p.Load()
	p.WriteChar()

	p.PushInt(strconv.Itoa(numAddr))
	p.ReadNum()
	p.PushInt(strconv.Itoa(numAddr))
	p.Load()
	p.WriteNum()
	p.Exit()

	var out bytes.Buffer
	in := bytes.NewBufferString("A42\n")
	v := vm.New(vm.WithInput(in), vm.WithOutput(&out))
	require.NoError(t, v.Run(context.Background(), &p))
	assert.Equal(t, "A42", out.String())
}

func Test_exitHaltsCleanly(t *testing.T) {
	var p ir.Program
	p.PushInt("1")
	p.Exit()
	p.PushInt("2") // unreachable
	p.WriteNum()

	out, err := runProgram(t, &p)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func Test_stackUnderflow(t *testing.T) {
	var p ir.Program
	p.Pop()
	p.Exit()

	_, err := runProgram(t, &p)
	require.Error(t, err)
	assert.ErrorIs(t, err, vm.ErrStackUnderflow)
}

func Test_callStackUnderflow(t *testing.T) {
	var p ir.Program
	p.End()
	p.Exit()

	_, err := runProgram(t, &p)
	require.Error(t, err)
	assert.ErrorIs(t, err, vm.ErrCallUnderflow)
}

func Test_divByZero(t *testing.T) {
	var p ir.Program
	p.PushInt("1")
	p.PushInt("0")
	p.Div()
	p.Exit()

	_, err := runProgram(t, &p)
	require.Error(t, err)
	assert.ErrorIs(t, err, vm.ErrDivByZero)
}

func Test_emptyInputHaltsWithoutError(t *testing.T) {
	// The default input is empty; a program that exits before touching it
	// halts without error.
	var p ir.Program
	p.Exit()

	v := vm.New()
	err := v.Run(context.Background(), &p)
	require.NoError(t, err)
}
