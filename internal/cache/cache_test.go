package cache_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsforth/wsc/internal/cache"
	"github.com/wsforth/wsc/internal/ir"
)

func sampleProgram() *ir.Program {
	var p ir.Program
	p.PushInt("3")
	p.PushInt("4")
	p.Add()
	p.Exit()
	p.NewAddr() // advances the static-address counter so LastStaticAddr is interesting
	return &p
}

func TestCacheMissThenHit(t *testing.T) {
	c, err := cache.Open(filepath.Join(t.TempDir(), "wsc-cache"))
	require.NoError(t, err)

	key := cache.NewKey([]byte("1 + 1"), "div-mode=floor")

	_, ok, err := c.Get(key)
	require.NoError(t, err)
	assert.False(t, ok)

	prog := sampleProgram()
	require.NoError(t, c.Put(key, prog))

	got, ok, err := c.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, prog.Instrs, got.Instrs)
	assert.Equal(t, prog.LastStaticAddr(), got.LastStaticAddr())
}

func TestKeyDistinguishesConfig(t *testing.T) {
	src := []byte("put_as_number(1)")
	a := cache.NewKey(src, "div-mode=floor")
	b := cache.NewKey(src, "div-mode=trunc")
	assert.NotEqual(t, a, b)
}

func TestKeyDistinguishesSource(t *testing.T) {
	a := cache.NewKey([]byte("put_as_number(1)"), "div-mode=floor")
	b := cache.NewKey([]byte("put_as_number(2)"), "div-mode=floor")
	assert.NotEqual(t, a, b)
}

func TestPutOverwrites(t *testing.T) {
	c, err := cache.Open(filepath.Join(t.TempDir(), "wsc-cache"))
	require.NoError(t, err)
	key := cache.NewKey([]byte("x"), "")

	first := sampleProgram()
	require.NoError(t, c.Put(key, first))

	second := sampleProgram()
	second.PushInt("99")
	require.NoError(t, c.Put(key, second))

	got, ok, err := c.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.Instrs, got.Instrs)
}
