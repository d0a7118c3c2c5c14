package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/term"

	"tracec/internal/trace"
	"tracec/internal/version"
)

// exitError carries a process exit code for failures that were already
// reported, such as programs with errors.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// cli owns the command tree and whatever the persistent pre-run set up.
type cli struct {
	root     *cobra.Command
	cleanups []func() error
	// ring holds recent trace events for a dump on panic.
	ring *trace.RingTracer

	traceLevel trace.Level
	traceFmt   trace.Format
	traceMode  trace.StorageMode
}

func newCLI() *cli {
	c := &cli{traceMode: trace.ModeStream}
	root := &cobra.Command{
		Use:           "tracec",
		Short:         "Semantic checker for tracing programs",
		Long:          `tracec resolves types, probe contexts and map shapes of tracing programs and reports diagnostics`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.setupTracing(cmd); err != nil {
				return err
			}
			return c.setupProfiling(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String("color", "", "colorize output (auto|on|off); defaults to output.color of tracec.toml")
	pf.Bool("quiet", false, "suppress non-essential output")
	pf.Bool("timings", false, "show timing information")
	pf.Int("max-diagnostics", 0, "maximum number of diagnostics to keep (0 = from config)")
	pf.String("trace", "", "trace output file (- for stderr)")
	pf.Var(&c.traceLevel, "trace-level", "trace level (off|error|phase|detail|debug)")
	pf.Var(&c.traceFmt, "trace-format", "trace format (auto|text|ndjson|zap)")
	pf.Var(&c.traceMode, "trace-mode", "trace storage mode (stream|ring|both)")
	pf.Int("trace-ring-size", 4096, "ring buffer size for ring mode")
	pf.Duration("trace-heartbeat", 0, "emit heartbeat events at this interval (0 = off)")
	pf.String("cpu-profile", "", "write a CPU profile to this file")
	pf.String("mem-profile", "", "write a heap profile to this file")
	pf.String("runtime-trace", "", "write a runtime trace to this file")

	root.AddCommand(newCheckCmd(), newDumpCmd(), newMetaCmd(), newVersionCmd())
	c.root = root
	return c
}

// execute runs the command line and returns the process exit code.
func (c *cli) execute(ctx context.Context, args []string) (code int) {
	defer func() {
		if r := recover(); r != nil {
			c.dumpTrace()
			panic(r)
		}
	}()
	c.root.SetArgs(args)
	err := c.root.ExecuteContext(ctx)
	err = multierr.Append(err, c.close())

	var exit exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exit) && len(multierr.Errors(err)) == 1:
		return exit.code
	default:
		for _, e := range multierr.Errors(err) {
			if !errors.As(e, &exit) {
				fmt.Fprintf(c.root.ErrOrStderr(), "error: %v\n", e) //nolint:errcheck
			}
		}
		if errors.As(err, &exit) {
			return exit.code
		}
		return 2
	}
}

func (c *cli) close() error {
	var err error
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		err = multierr.Append(err, c.cleanups[i]())
	}
	c.cleanups = nil
	return err
}

const panicTail = 256

func (c *cli) dumpTrace() {
	if c.ring == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "trace: last %d events before panic:\n", panicTail) //nolint:errcheck
	if err := c.ring.DumpTail(os.Stderr, trace.FormatText, panicTail); err != nil {
		fmt.Fprintf(os.Stderr, "trace: dump error: %v\n", err) //nolint:errcheck
	}
}

// useColor resolves auto|on|off against the writer.
func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "on":
		return true
	case "off":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// colorMode prefers the flag over the configured value.
func colorMode(cmd *cobra.Command, configured string) (string, error) {
	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		return "", fmt.Errorf("failed to get color flag: %w", err)
	}
	if mode == "" {
		mode = configured
	}
	switch mode {
	case "", "auto":
		return "auto", nil
	case "on", "off":
		return mode, nil
	}
	return "", fmt.Errorf("invalid color mode %q (must be auto, on or off)", mode)
}
