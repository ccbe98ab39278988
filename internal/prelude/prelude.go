// Package prelude supplies the small set of Wsrb-dialect method definitions
// that spec.md describes as built on top of the core primitives rather than
// as VM opcodes in their own right (spec.md §4.3: `<`, `>`, `<=`, `>=` are
// Integer methods defined in terms of `<=>`). It also adds a few ordinary
// list helpers on Array, in the same spirit, so a program gets more than the
// bare size/push/pop trio for free.
//
// Grounded on third.go's thirdSource.WriteTo technique: the body text is
// assembled line by line through a small helper closure, with the
// rationale for each definition kept as an inline comment next to the line
// that needs it. Unlike third.go, the emitted text is itself parsed by this
// same module's own front end (internal/parse) rather than hand-assembled
// opcodes -- the prelude is ordinary Wsrb source, not IR.
package prelude

import (
	"bytes"
	"strings"

	"github.com/wsforth/wsc/internal/ast"
	"github.com/wsforth/wsc/internal/parse"
)

// sourcePath labels parse and lowering errors positioned inside the prelude;
// a user program can never actually produce this path, so such an error
// always means a bug in the prelude itself. Run-time raise lines (spec.md
// §6.3) from prelude methods carry the path given to lower.Lower instead.
const sourcePath = "<prelude>"

// Source renders the prelude's Wsrb text.
func Source() string {
	var buf bytes.Buffer
	line := func(s string) { buf.WriteString(s); buf.WriteByte('\n') }

	// <=> already classifies sign into wrapped -1/0/+1 (internal/lower's
	// emitCompare); the four ordered comparisons are nothing but a name for
	// one of its three outcomes.
	line(`class Integer`)
	line(`  def <(other)`)
	line(`    (self <=> other) == -1`)
	line(`  end`)
	line(`  def >(other)`)
	line(`    (self <=> other) == 1`)
	line(`  end`)
	line(`  def <=(other)`)
	line(`    (self <=> other) != 1`)
	line(`  end`)
	line(`  def >=(other)`)
	line(`    (self <=> other) != -1`)
	line(`  end`)
	line(`  def abs()`)
	line(`    if self < 0 then 0 - self else self end`)
	line(`  end`)
	line(`end`)

	// Array's three built-in primitives (size/push/pop) are enough to define
	// every other list convenience purely in dialect source.
	line(`class Array`)
	line(`  def empty?()`)
	line(`    self.size() == 0`)
	line(`  end`)
	line(`  def first()`)
	line(`    if self.size() == 0 then nil else self[0] end`)
	line(`  end`)
	line(`  def last()`)
	line(`    if self.size() == 0 then nil else self[self.size() - 1] end`)
	line(`  end`)
	line(`end`)

	return buf.String()
}

// Program parses the prelude source, returning its statement list ready to
// be prepended to a user program's own (spec.md's method registry is
// populated by a single eager collectDefs pass over the whole statement
// list, so prepending rather than lowering separately keeps one registry
// instead of two).
func Program() ([]ast.Node, error) {
	prog, err := parse.Parse(sourcePath, strings.NewReader(Source()))
	if err != nil {
		return nil, err
	}
	return prog.Stmts, nil
}
