package prelude_test

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

func TestSourceParses(t *testing.T) {
	_, err := parse.Parse("<prelude>", strings.NewReader(prelude.Source()))
	require.NoError(t, err)
}

// run lowers and executes src with the prelude's statements prepended, the
// same way commands.go's compileSource wires the prelude into a user file.
func run(t *testing.T, src string) string {
	t.Helper()
	preludeStmts, err := prelude.Program()
	require.NoError(t, err)

	userProg, err := parse.Parse("t.wsrb", strings.NewReader(src))
	require.NoError(t, err)
	userProg.Stmts = append(preludeStmts, userProg.Stmts...)

	prog, err := lower.Lower("t.wsrb", userProg)
	require.NoError(t, err)

	var out strings.Builder
	machine := vm.New(vm.WithOutput(&out))
	require.NoError(t, machine.Run(context.Background(), prog))
	return out.String()
}

func TestOrderedComparisons(t *testing.T) {
	cases := []struct {
		name, src, want string
	}{
		// booleans are wrapped Special values (True payload 2, False payload 0,
		// per internal/value's encoding), not 1/0 -- put_as_number prints the
		// raw unwrapped payload regardless of tag.
		{"less than true", `put_as_number 3 < 5`, "2"},
		{"less than false", `put_as_number 5 < 3`, "0"},
		{"greater than", `put_as_number 5 > 3`, "2"},
		{"less-or-equal on equal", `put_as_number 3 <= 3`, "2"},
		{"greater-or-equal false", `put_as_number 3 >= 5`, "0"},
		{"abs of negative", `put_as_number (0 - 7).abs()`, "7"},
		{"abs of positive", `put_as_number 7.abs()`, "7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, run(t, tc.src))
		})
	}
}

func TestArrayHelpers(t *testing.T) {
	cases := []struct {
		name, src, want string
	}{
		{"empty? on empty array", `put_as_number [].empty?()`, "2"},
		{"empty? on nonempty array", `put_as_number [1].empty?()`, "0"},
		{"first element", `put_as_number [9,2,3].first()`, "9"},
		{"last element", `put_as_number [9,2,3].last()`, "3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, run(t, tc.src))
		})
	}
}
