package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsforth/wsc/internal/ir"
)

func Test_labelAllocatorIsMonotonic(t *testing.T) {
	var p ir.Program
	a, b, c := p.NewLabel(), p.NewLabel(), p.NewLabel()
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, b, c)
	assert.True(t, a < b && b < c, "labels increase monotonically")
}

func Test_addrAllocatorStartsPastReserved(t *testing.T) {
	var p ir.Program
	first := p.NewAddr()
	require.Equal(t, uint64(3), first, "addresses 0,1,2 are reserved (NONE_ADDR,TMP,HEAP_COUNT)")

	block := p.NewAddrs(5)
	assert.Equal(t, first+1, block)
	assert.Equal(t, block+5, p.LastStaticAddr())
}

func Test_emitHelpers(t *testing.T) {
	var p ir.Program
	l := p.NewLabel()
	p.PushInt("42")
	p.DefLabel(l)
	p.Add()
	p.JumpIfZeroLabel(l)
	p.Exit()

	require.Len(t, p.Instrs, 5)
	assert.Equal(t, ir.Push, p.Instrs[0].Op)
	assert.Equal(t, "42", p.Instrs[0].Int)
	assert.Equal(t, ir.Def, p.Instrs[1].Op)
	assert.Equal(t, l, p.Instrs[1].Label)
	assert.Equal(t, ir.Add, p.Instrs[2].Op)
	assert.Equal(t, ir.JumpIfZero, p.Instrs[3].Op)
	assert.Equal(t, ir.Exit, p.Instrs[4].Op)
}

func Test_opArgClassification(t *testing.T) {
	assert.True(t, ir.Push.HasIntArg())
	assert.False(t, ir.Add.HasIntArg())
	for _, op := range []ir.Op{ir.Def, ir.Call, ir.Jump, ir.JumpIfZero, ir.JumpIfNeg} {
		assert.True(t, op.HasLabelArg(), "%v should carry a label arg", op)
	}
	assert.False(t, ir.End.HasLabelArg())
}
