package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wsforth/wsc/internal/ast"
	"github.com/wsforth/wsc/internal/cache"
	"github.com/wsforth/wsc/internal/ir"
	"github.com/wsforth/wsc/internal/logio"
	"github.com/wsforth/wsc/internal/lower"
	"github.com/wsforth/wsc/internal/parse"
	"github.com/wsforth/wsc/internal/prelude"
	"github.com/wsforth/wsc/internal/vm"
	"github.com/wsforth/wsc/internal/wire"
)

// Grounded on vovakirdan-surge's cmd/surge/run.go: one cobra.Command var per
// subcommand, flags registered in an init(), the RunE body reading flags back
// through cmd.Flags().

var cfg projectConfig

var rootCmd = &cobra.Command{
	Use:   "wsc",
	Short: "wsc compiles and runs the Wsrb dialect and raw Whitespace programs",
}

func init() {
	rootCmd.PersistentFlags().Bool("trace", false, "enable step-level VM tracing")
	rootCmd.PersistentFlags().Uint64("mem-limit", 0, "heap growth ceiling (0 = unlimited)")
	rootCmd.PersistentFlags().String("div-mode", "", `DIV/MOD rounding: "floor" or "trunc" (overrides .wsc.toml)`)

	rootCmd.AddCommand(runCmd, compileCmd, buildCmd)
}

func resolveConfig(cmd *cobra.Command) projectConfig {
	c := cfg
	if trace, _ := cmd.Flags().GetBool("trace"); trace {
		c.Trace = true
	}
	if limit, _ := cmd.Flags().GetUint64("mem-limit"); limit != 0 {
		c.MemLimit = limit
	}
	if mode, _ := cmd.Flags().GetString("div-mode"); mode != "" {
		c.DivMode = mode
	}
	return c
}

type nopWriteCloser struct{ *os.File }

func (nopWriteCloser) Close() error { return nil }

// vmOptions builds the shared set of VM options (§A.1/§A.3: trace + mem
// limit are both config/flag driven, input/output always stdio). Trace
// output goes through internal/logio's leveled Logger, the same
// mark-prefixed step-tracing facility the teacher's own `--trace` flag used,
// rather than a bare fmt.Fprintf.
func vmOptions(c projectConfig) []vm.Option {
	opts := []vm.Option{
		vm.WithInput(os.Stdin),
		vm.WithOutput(os.Stdout),
	}
	if c.Trace {
		var logger logio.Logger
		logger.SetOutput(nopWriteCloser{os.Stderr})
		opts = append(opts, vm.WithLogf(logger.Leveledf("trace")))
	}
	if c.MemLimit != 0 {
		opts = append(opts, vm.WithMemLimit(c.MemLimit))
	}
	return opts
}

// runExitCode computes the process exit code for a VM run per spec.md §6.2:
// a `raise` in user code is not a host error -- it already printed its own
// formatted line via emitted WriteChar instructions and the VM returned nil.
// Only a genuine host-level failure (wire-format error, heap-limit error,
// read-on-EOF) makes the process exit non-zero.
func runExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

var runCmd = &cobra.Command{
	Use:   "run <file.ws>",
	Short: "decode and execute a Whitespace file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		prog, err := wire.Decode(f)
		if err != nil {
			reportError(os.Stderr, path, err)
			os.Exit(1)
		}

		c := resolveConfig(cmd)
		machine := vm.New(vmOptions(c)...)
		runErr := machine.Run(context.Background(), prog)
		if runErr != nil {
			reportError(os.Stderr, path, runErr)
		}
		os.Exit(runExitCode(runErr))
		return nil
	},
}

var compileCheck bool

var compileCmd = &cobra.Command{
	Use:   "compile <file.wsrb>",
	Short: "lower a dialect file to Whitespace source text on stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		c := resolveConfig(cmd)

		prog, err := compileFile(path, c)
		if err != nil {
			reportError(os.Stderr, path, err)
			os.Exit(1)
		}
		if compileCheck {
			// §C: discard the emitted text, report success/failure only.
			return nil
		}

		out, err := wire.Encode(prog)
		if err != nil {
			reportError(os.Stderr, path, err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return nil
	},
}

func init() {
	compileCmd.Flags().BoolVar(&compileCheck, "check", false, "run the lowering pass and report errors only, without emitting output")
}

var buildCache bool

var buildCmd = &cobra.Command{
	Use:   "build <file.wsrb>...",
	Short: "compile and execute a dialect file in one step",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := resolveConfig(cmd)

		if buildCache {
			return buildWithCache(cmd.Context(), args, c)
		}
		if len(args) != 1 {
			return fmt.Errorf("build: exactly one file required without --cache")
		}

		path := args[0]
		prog, err := compileFile(path, c)
		if err != nil {
			reportError(os.Stderr, path, err)
			os.Exit(1)
		}

		machine := vm.New(vmOptions(c)...)
		runErr := machine.Run(context.Background(), prog)
		if runErr != nil {
			reportError(os.Stderr, path, runErr)
		}
		os.Exit(runExitCode(runErr))
		return nil
	},
}

func init() {
	buildCmd.Flags().BoolVar(&buildCache, "cache", false, "compile multiple files concurrently, consulting/populating the IR cache")
}

// compileFile parses, prepends the prelude, and lowers one dialect file.
func compileFile(path string, c projectConfig) (*ir.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return compileSource(path, src, c)
}

func compileSource(path string, src []byte, c projectConfig) (*ir.Program, error) {
	userProg, err := parse.Parse(path, strings.NewReader(string(src)))
	if err != nil {
		return nil, err
	}
	preludeStmts, err := prelude.Program()
	if err != nil {
		return nil, fmt.Errorf("internal error building prelude: %w", err)
	}
	userProg.Stmts = append(append([]ast.Node{}, preludeStmts...), userProg.Stmts...)

	return lower.Lower(path, userProg, lower.WithDivMode(c.divMode()))
}

// buildWithCache compiles every file in paths concurrently (one errgroup
// goroutine per file; no concurrency limit is set), consulting the on-disk cache first and populating it on a miss, then runs
// each resulting program in turn. Grounded on vovakirdan-surge's batch
// compile driver, which fans out per-file work through errgroup.Group and
// joins before running anything sequentially.
func buildWithCache(ctx context.Context, paths []string, c projectConfig) error {
	ch, err := cache.Open(c.cacheDir())
	if err != nil {
		return err
	}

	progs := make([]*ir.Program, len(paths))
	g, _ := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			src, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			key := cache.NewKey(src, c.DivMode)
			if prog, ok, err := ch.Get(key); err == nil && ok {
				progs[i] = prog
				return nil
			}
			prog, err := compileSource(path, src, c)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := ch.Put(key, prog); err != nil {
				reportWarning(os.Stderr, "%s: failed to populate cache: %v", path, err)
			}
			progs[i] = prog
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		reportError(os.Stderr, "", err)
		os.Exit(1)
	}

	for i, path := range paths {
		machine := vm.New(vmOptions(c)...)
		if err := machine.Run(ctx, progs[i]); err != nil {
			reportError(os.Stderr, path, err)
			os.Exit(1)
		}
	}
	return nil
}
