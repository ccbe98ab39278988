package lower_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsforth/wsc/internal/lower"
	"github.com/wsforth/wsc/internal/parse"
	"github.com/wsforth/wsc/internal/prelude"
	"github.com/wsforth/wsc/internal/vm"
)

// compileAndRun is the minimal pipeline lowering tests need: no cache, no
// CLI -- just parse, prepend the prelude (which defines the non-zero `<`,
// `>`, `<=`, `>=` comparisons several tests use), Lower, vm.Run.
func compileAndRun(t *testing.T, src, stdin string, opts ...lower.Option) string {
	t.Helper()
	prog, err := parse.Parse("t.wsrb", strings.NewReader(src))
	require.NoError(t, err)
	preludeStmts, err := prelude.Program()
	require.NoError(t, err)
	prog.Stmts = append(preludeStmts, prog.Stmts...)

	ir, err := lower.Lower("t.wsrb", prog, opts...)
	require.NoError(t, err)

	var out strings.Builder
	machine := vm.New(vm.WithInput(strings.NewReader(stdin)), vm.WithOutput(&out))
	require.NoError(t, machine.Run(context.Background(), ir))
	return out.String()
}

func TestArithmetic(t *testing.T) {
	assert.Equal(t, "5", compileAndRun(t, `put_as_number 3 + 2`, ""))
	assert.Equal(t, "6", compileAndRun(t, `put_as_number 2 * 3`, ""))
	assert.Equal(t, "1", compileAndRun(t, `put_as_number 7 % 3`, ""))
}

func TestDivModeFloorVsTrunc(t *testing.T) {
	// -7 / 2: floors to -4, truncates to -3 (spec.md §9's open question).
	assert.Equal(t, "-4", compileAndRun(t, `put_as_number (0-7)/2`, "", lower.WithDivMode(lower.DivFloor)))
	assert.Equal(t, "-3", compileAndRun(t, `put_as_number (0-7)/2`, "", lower.WithDivMode(lower.DivTrunc)))
}

func TestDivModeNegativeDivisor(t *testing.T) {
	// 7 / -3: the VM's native DIV/MOD are Euclidean, which only coincides
	// with floor division for a positive divisor -- a negative divisor needs
	// correcting back to true floor (-3, rem -2) and true trunc (-2, rem 1).
	assert.Equal(t, "-3", compileAndRun(t, `put_as_number 7/(0-3)`, "", lower.WithDivMode(lower.DivFloor)))
	assert.Equal(t, "-2", compileAndRun(t, `put_as_number 7%(0-3)`, "", lower.WithDivMode(lower.DivFloor)))
	assert.Equal(t, "-2", compileAndRun(t, `put_as_number 7/(0-3)`, "", lower.WithDivMode(lower.DivTrunc)))
	assert.Equal(t, "1", compileAndRun(t, `put_as_number 7%(0-3)`, "", lower.WithDivMode(lower.DivTrunc)))

	// -7 / -3: both negative, Euclidean again overshoots the floor quotient.
	assert.Equal(t, "2", compileAndRun(t, `put_as_number (0-7)/(0-3)`, "", lower.WithDivMode(lower.DivFloor)))
	assert.Equal(t, "-1", compileAndRun(t, `put_as_number (0-7)%(0-3)`, "", lower.WithDivMode(lower.DivFloor)))
	assert.Equal(t, "2", compileAndRun(t, `put_as_number (0-7)/(0-3)`, "", lower.WithDivMode(lower.DivTrunc)))
	assert.Equal(t, "-1", compileAndRun(t, `put_as_number (0-7)%(0-3)`, "", lower.WithDivMode(lower.DivTrunc)))
}

func TestWhileLoopDigitPrinting(t *testing.T) {
	src := `x = -10; while x < 0; put_as_number 10 + x; x = x + 1; end`
	assert.Equal(t, "0123456789", compileAndRun(t, src, ""))
}

func TestRecursiveFibonacci(t *testing.T) {
	src := `def f(n) if n < 2 then 1 else f(n-1)+f(n-2) end end; put_as_number f(10)`
	assert.Equal(t, "89", compileAndRun(t, src, ""))
}

func TestArrayIndexGetSet(t *testing.T) {
	src := `x = [1,2,3]; x[1] = 7; put_as_number x[0]; put_as_number x[1]; put_as_number x[2]`
	assert.Equal(t, "175", compileAndRun(t, src, ""))
}

func TestArrayGrowPastInitialCapacity(t *testing.T) {
	src := `x = []
i = 0
while i < 20
  x.push(i)
  i = i + 1
end
i = 0
while i < 20
  put_as_number x[i]
  i = i + 1
end`
	want := "0123456789" + "10111213141516171819"
	assert.Equal(t, want, compileAndRun(t, src, ""))
}

func TestArrayIndexSurvivesPushGrowth(t *testing.T) {
	// Literal starts with capacity 10; pushing past it forces
	// builtinArrayGrow to bump-allocate a fresh block and rewrite desc+0.
	// Index get/set must follow that pointer rather than the abandoned
	// original block.
	src := `x = []
i = 0
while i < 15
  x.push(i)
  i = i + 1
end
x[3] = 99
put_as_number x.size()
put_as_number x[0]
put_as_number x[3]
put_as_number x[14]`
	// size 15, x[0]==0 (untouched), x[3]==99 (overwritten), x[14]==14 (last pushed).
	assert.Equal(t, "15" + "0" + "99" + "14", compileAndRun(t, src, ""))
}

func TestHashLiteralLookup(t *testing.T) {
	src := `x = {1=>42,12=>4}; put_as_number x[1]; put_as_char ','; put_as_number x[12]`
	assert.Equal(t, "42,4", compileAndRun(t, src, ""))
}

func TestHashOverwriteExistingKey(t *testing.T) {
	src := `x = {1=>42}; x[1] = 99; put_as_number x[1]`
	assert.Equal(t, "99", compileAndRun(t, src, ""))
}

func TestMethodCallsDoNotCorruptOuterLocals(t *testing.T) {
	src := `def double(n) n * 2 end
a = 3
b = double(10)
put_as_number a
put_as_number b`
	assert.Equal(t, "320", compileAndRun(t, src, ""))
}

func TestTruthiness(t *testing.T) {
	// NIL and FALSE are falsy; a wrapped 0 and an empty array are truthy.
	src := `if nil then put_as_char 'y' else put_as_char 'n' end
if false then put_as_char 'y' else put_as_char 'n' end
if 0 then put_as_char 'y' else put_as_char 'n' end
if [] then put_as_char 'y' else put_as_char 'n' end`
	assert.Equal(t, "nnyy", compileAndRun(t, src, ""))
}
