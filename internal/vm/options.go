package vm

import (
	"io"
	"io/ioutil"

	"github.com/wsforth/wsc/internal/flushio"
	"github.com/wsforth/wsc/internal/runeio"
)

// Option configures a VM at construction time, following the teacher's
// functional-options pattern (api.go/options.go: VMOption/New).
type Option interface{ apply(vm *VM) }

type optionFunc func(vm *VM)

func (f optionFunc) apply(vm *VM) { f(vm) }

// WithInput sets the VM's input stream, used by READ_CHAR/READ_NUM.
func WithInput(r io.Reader) Option {
	return optionFunc(func(vm *VM) { vm.in = runeio.NewReader(r) })
}

// WithOutput sets the VM's output stream, used by WRITE_CHAR/WRITE_NUM.
func WithOutput(w io.Writer) Option {
	return optionFunc(func(vm *VM) { vm.out = flushio.NewWriteFlusher(w) })
}

// WithTee additionally mirrors all output to w, e.g. for a trace log.
func WithTee(w io.Writer) Option {
	return optionFunc(func(vm *VM) {
		vm.out = flushio.WriteFlushers(vm.out, flushio.NewWriteFlusher(w))
	})
}

// WithMemLimit caps the highest heap address reachable before a LimitError
// is raised as a host-level failure.
func WithMemLimit(limit uint64) Option {
	return optionFunc(func(vm *VM) { vm.cells.SetLimit(limit) })
}

// WithLogf enables step-level trace logging.
func WithLogf(logfn func(mess string, args ...interface{})) Option {
	return optionFunc(func(vm *VM) { vm.logfn = logfn })
}

var defaultOptions = []Option{
	WithInput(emptyReader{}),
	WithOutput(ioutil.Discard),
}

// emptyReader reads nothing, immediately returning io.EOF -- used as a
// harmless default input before WithInput is applied by the caller.
type emptyReader struct{}

func (emptyReader) Read(p []byte) (int, error) { return 0, io.EOF }
