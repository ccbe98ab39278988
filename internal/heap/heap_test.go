package heap_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsforth/wsc/internal/heap"
)

func big_(n int64) *big.Int { return big.NewInt(n) }

func expectAt(t *testing.T, m *heap.Cells, addr uint64, values ...int64) {
	t.Helper()
	buf := make([]*big.Int, len(values))
	require.NoError(t, m.LoadInto(addr, buf))
	for i, v := range values {
		assert.Equal(t, big_(v), buf[i], "cell @%d", addr+uint64(i))
	}
}

func Test_cellsBasic(t *testing.T) {
	var m heap.Cells
	m.SetPageSize(4)

	v, err := m.Load(0)
	require.NoError(t, err)
	assert.Equal(t, big_(0), v)
	assert.Equal(t, uint64(0), m.Size())

	require.NoError(t, m.Stor(0, big_(9)))
	v, err = m.Load(0)
	require.NoError(t, err)
	assert.Equal(t, big_(9), v)
	expectAt(t, &m, 1, 0, 0, 0)
}

func Test_cellsPageHole(t *testing.T) {
	var m heap.Cells
	m.SetPageSize(4)
	require.NoError(t, m.Stor(0, big_(9)))
	require.NoError(t, m.Stor(0x5, big_(1), big_(2), big_(3), big_(4), big_(5), big_(6)))

	expectAt(t, &m, 0,
		9, 0, 0, 0,
		0, 1, 2, 3,
		4, 5, 6, 0)
}

func Test_cellsLimit(t *testing.T) {
	var m heap.Cells
	m.SetLimit(10)
	err := m.Stor(20, big_(1))
	require.Error(t, err)
	var limErr heap.LimitError
	assert.ErrorAs(t, err, &limErr)
	assert.Equal(t, "stor", limErr.Op)
}

func Test_cellsDeepCopyNotAliased(t *testing.T) {
	var m heap.Cells
	shared := big_(1)
	require.NoError(t, m.Stor(0, shared))
	shared.SetInt64(999)

	v, err := m.Load(0)
	require.NoError(t, err)
	assert.Equal(t, big_(1), v, "Stor must snapshot its argument, not alias it")
}
