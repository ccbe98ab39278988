package wire_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsforth/wsc/internal/ir"
	"github.com/wsforth/wsc/internal/wire"
)

func sampleProgram() *ir.Program {
	var p ir.Program
	top := p.NewLabel()
	p.PushInt("5")
	p.PushInt("-3")
	p.Add()
	p.DefLabel(top)
	p.Dup()
	p.JumpIfZeroLabel(top)
	p.WriteNum()
	p.WriteChar()
	p.PushInt("0")
	p.CallLabel(top)
	p.Swap()
	p.Pop()
	p.Save()
	p.Load()
	p.ReadChar()
	p.ReadNum()
	p.JumpIfNegLabel(top)
	p.JumpLabel(top)
	p.End()
	p.Exit()
	return &p
}

func Test_encodeOnlyUsesSignificantBytes(t *testing.T) {
	p := sampleProgram()
	out, err := wire.Encode(p)
	require.NoError(t, err)
	for _, b := range out {
		assert.True(t, b == ' ' || b == '\t' || b == '\n', "byte %q must be S/T/L", b)
	}
}

func Test_roundtripEncodeDecode(t *testing.T) {
	p := sampleProgram()
	out, err := wire.Encode(p)
	require.NoError(t, err)

	decoded, err := wire.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, p.Instrs, decoded.Instrs)
}

func Test_decodeIgnoresComments(t *testing.T) {
	p := sampleProgram()
	out, err := wire.Encode(p)
	require.NoError(t, err)

	var commented bytes.Buffer
	commented.WriteString("this-is-a-comment;")
	for _, b := range out {
		commented.WriteByte(b)
		commented.WriteString("#") // comment byte interleaved
	}

	decoded, err := wire.Decode(&commented)
	require.NoError(t, err)
	assert.Equal(t, p.Instrs, decoded.Instrs)
}

func Test_roundtripLargeMagnitude(t *testing.T) {
	var p ir.Program
	p.PushInt("123456789012345678901234567890")
	p.PushInt("-999999999999999999999999999999")
	p.Exit()

	out, err := wire.Encode(&p)
	require.NoError(t, err)
	decoded, err := wire.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, p.Instrs, decoded.Instrs)
}

func Test_decodeErrorOnTruncatedNumber(t *testing.T) {
	// PUSH prefix ("S S") followed by a sign bit but no terminator.
	_, err := wire.Decode(bytes.NewReader([]byte{' ', ' ', '\t'}))
	require.Error(t, err)
	var decErr wire.DecodeError
	assert.ErrorAs(t, err, &decErr)
}

func Test_decodeErrorOnInvalidCommand(t *testing.T) {
	// "T S L L": the arithmetic IMP (T S) followed by L L, which is none of
	// the arithmetic commands SS/ST/SL/TS/TT.
	_, err := wire.Decode(bytes.NewReader([]byte{'\t', ' ', '\n', '\n'}))
	require.Error(t, err)
}
