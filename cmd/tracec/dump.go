package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tracec/internal/diagfmt"
	"tracec/internal/driver"
)

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump [flags] <program.yaml>",
		Short: "Print the typed AST of a program",
		Args:  cobra.ExactArgs(1),
		RunE:  runDump,
	}
	f := cmd.Flags()
	f.Bool("maps", false, "print map and variable type tables instead of the tree")
	f.Bool("spans", false, "annotate items and statements with source ranges")
	f.Bool("untyped", false, "do not annotate expressions with types")
	f.String("btf", "", "BTF file with kernel types, or \"kernel\" for the running kernel")
	f.StringArray("catalog", nil, "YAML metadata catalog (repeatable)")
	f.Bool("no-cache", false, "do not use the catalog snapshot cache")
	return cmd
}

// runDump checks the program and prints what sema resolved. Diagnostics go
// to stderr; the dump is printed even when checking stopped early.
func runDump(cmd *cobra.Command, args []string) error {
	cf, err := readCheckFlags(cmd, args[0])
	if err != nil {
		return err
	}
	f := cmd.Flags()
	maps, err := f.GetBool("maps")
	if err != nil {
		return fmt.Errorf("failed to get maps flag: %w", err)
	}
	spans, err := f.GetBool("spans")
	if err != nil {
		return fmt.Errorf("failed to get spans flag: %w", err)
	}
	untyped, err := f.GetBool("untyped")
	if err != nil {
		return fmt.Errorf("failed to get untyped flag: %w", err)
	}

	res, err := driver.Check(cmd.Context(), args[0], cf.opts)
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}
	if res.Bag.Len() > 0 && !cf.quiet {
		if err := diagfmt.Short(cmd.ErrOrStderr(), res.Bag, res.FileSet, false); err != nil {
			return err
		}
	}
	if res.Program == nil {
		return exitError{code: 1}
	}

	out := cmd.OutOrStdout()
	if maps {
		if res.Sema.Tables == nil {
			return fmt.Errorf("type resolution did not run")
		}
		fmt.Fprint(out, renderTables(res.Sema.Tables, res.Sema.Types, cf.color)) //nolint:errcheck
	} else {
		opts := diagfmt.TreeOpts{Spans: spans}
		if !untyped {
			opts.Types = res.Sema.Types
		}
		if err := diagfmt.Tree(out, res.Program.Builder, res.Program.File, res.FileSet, opts); err != nil {
			return err
		}
	}
	if cf.timings && res.Timing != nil {
		printTimings(cmd.ErrOrStderr(), *res.Timing)
	}
	if !res.Ok() {
		return exitError{code: 1}
	}
	return nil
}
