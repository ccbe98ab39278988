package value_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsforth/wsc/internal/value"
)

func Test_wrapUnwrapRoundtrip(t *testing.T) {
	for _, tc := range []struct {
		name    string
		payload int64
		tag     value.Tag
	}{
		{"zero int", 0, value.TagInt},
		{"positive int", 42, value.TagInt},
		{"negative int", -42, value.TagInt},
		{"array addr", 1000, value.TagArray},
		{"hash addr", 7, value.TagHash},
		{"special", int64(value.True), value.TagSpecial},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := value.WrapInt64(tc.payload, tc.tag)
			require.Equal(t, tc.tag, value.TagOf(w), "tag survives wrap")
			require.Equal(t, big.NewInt(tc.payload).String(), value.Unwrap(w).String(), "payload survives unwrap")
		})
	}
}

func Test_bigPayloadRoundtrip(t *testing.T) {
	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	w := value.BigInt(huge)
	assert.Equal(t, value.TagInt, value.TagOf(w))
	assert.Equal(t, huge, value.Unwrap(w))

	neg := new(big.Int).Neg(huge)
	w = value.BigInt(neg)
	assert.Equal(t, neg, value.Unwrap(w))
}

func Test_truthiness(t *testing.T) {
	assert.True(t, value.IsFalsy(value.WrapSpecial(value.Nil)))
	assert.True(t, value.IsFalsy(value.WrapSpecial(value.False)))
	assert.True(t, value.IsTruthy(value.WrapSpecial(value.True)))
	assert.True(t, value.IsTruthy(value.Int(0)), "wrapped zero is truthy")
	assert.True(t, value.IsTruthy(value.Array(0)), "empty array value is truthy")
}

func Test_equalCrossKind(t *testing.T) {
	a := value.Int(5)
	b := value.Array(5 >> 2) // deliberately not an accidental collision in practice
	assert.False(t, value.Equal(a, value.WrapSpecial(value.Nil)))
	assert.True(t, value.Equal(a, value.Int(5)))
	_ = b
}

func Test_compare(t *testing.T) {
	assert.Equal(t, 0, value.Compare(value.Int(3), value.Int(3)))
	assert.Equal(t, -1, value.Compare(value.Int(2), value.Int(3)))
	assert.Equal(t, 1, value.Compare(value.Int(3), value.Int(2)))
}

func Test_classCodeOf(t *testing.T) {
	assert.Equal(t, value.ClassInt, value.ClassCodeOf(value.TagInt))
	assert.Equal(t, value.ClassArray, value.ClassCodeOf(value.TagArray))
	assert.Equal(t, value.ClassHash, value.ClassCodeOf(value.TagHash))
	assert.Equal(t, value.ClassSpecial, value.ClassCodeOf(value.TagSpecial))
}
