package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Grounded on vovakirdan-surge's internal/version colorized-output idiom:
// module-level color.New(...) values reused across calls rather than
// allocated fresh each time.
var (
	errLabel  = color.New(color.FgRed, color.Bold)
	warnLabel = color.New(color.FgYellow, color.Bold)
	pathLabel = color.New(color.FgCyan)
)

// reportError prints err to w, prefixed with a colorized "error:" label and
// path if known. Parse errors and lowering errors already carry their own
// path/line text (internal/parse and internal/lower both format their own
// messages), so for those the path appears twice.
func reportError(w io.Writer, path string, err error) {
	errLabel.Fprint(w, "error: ")
	if path != "" {
		pathLabel.Fprintf(w, "%s: ", path)
	}
	fmt.Fprintln(w, err)
}

func reportWarning(w io.Writer, format string, args ...interface{}) {
	warnLabel.Fprint(w, "warning: ")
	fmt.Fprintf(w, format+"\n", args...)
}
