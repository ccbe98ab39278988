package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsforth/wsc/internal/vm"
)

// End-to-end golden table (spec.md §8's scenarios): dialect source and stdin
// in, stdout out, compiling straight through compileSource and running the
// resulting IR directly on the VM (no text round-trip -- that's wire_test.go's
// job).
func TestEndToEndScenarios(t *testing.T) {
	cases := []struct {
		name   string
		source string
		stdin  string
		want   string
	}{
		{
			name:   "arithmetic",
			source: `put_as_number 3 + 2`,
			want:   "5",
		},
		{
			name:   "while loop digit printing",
			source: `x = -10; while x < 0; put_as_number 10 + x; x = x + 1; end`,
			want:   "0123456789",
		},
		{
			name:   "recursive fibonacci",
			source: `def f(n) if n < 2 then 1 else f(n-1)+f(n-2) end end; put_as_number f(10)`,
			want:   "89",
		},
		{
			name:   "array index get and set",
			source: `x = [1,2,3]; x[1] = 7; put_as_number x[0]; put_as_number x[1]; put_as_number x[2]`,
			want:   "175",
		},
		{
			name:   "hash literal lookup",
			source: `x = {1=>42,12=>4}; put_as_number x[1]; put_as_char ','; put_as_number x[12]`,
			want:   "42,4",
		},
		{
			name: "fizzbuzz",
			source: `n = 0
get_as_number n
i = 1
while i <= n
  if i % 15 == 0 then put_as_char 'f'; put_as_char 'i'; put_as_char 'z'; put_as_char 'z'; put_as_char 'b'; put_as_char 'u'; put_as_char 'z'; put_as_char 'z'
  else
    if i % 3 == 0 then put_as_char 'f'; put_as_char 'i'; put_as_char 'z'; put_as_char 'z'
    else
      if i % 5 == 0 then put_as_char 'b'; put_as_char 'u'; put_as_char 'z'; put_as_char 'z'
      else put_as_number i
      end
    end
  end
  put_as_char ' '
  i = i + 1
end`,
			stdin: "15\n",
			want:  "1 2 fizz 4 buzz fizz 7 8 fizz buzz 11 fizz 13 14 fizzbuzz ",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prog, err := compileSource(tc.name, []byte(tc.source), defaultConfig())
			require.NoError(t, err)

			var out strings.Builder
			machine := vm.New(vm.WithInput(strings.NewReader(tc.stdin)), vm.WithOutput(&out))
			err = machine.Run(context.Background(), prog)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.String())
		})
	}
}
