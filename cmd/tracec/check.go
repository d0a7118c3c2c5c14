package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"tracec/internal/config"
	"tracec/internal/diag"
	"tracec/internal/diagfmt"
	"tracec/internal/driver"
	"tracec/internal/observ"
	"tracec/internal/source"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [flags] <program.yaml|directory>",
		Short: "Check a program document or every program in a directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}
	f := cmd.Flags()
	f.String("format", "", "output format (pretty|short|json); defaults to output.format of tracec.toml")
	f.String("btf", "", "BTF file with kernel types, or \"kernel\" for the running kernel")
	f.StringArray("catalog", nil, "YAML metadata catalog (repeatable)")
	f.Int("jobs", 0, "max parallel workers for directory processing (0=auto)")
	f.Bool("warnings-as-errors", false, "treat warnings as errors")
	f.Bool("no-warnings", false, "ignore warnings in diagnostics")
	f.Bool("strict-bugs", false, "panic on internal invariant violations")
	f.Bool("with-notes", false, "include diagnostic notes in output")
	f.Bool("fullpath", false, "emit absolute file paths in output")
	f.Bool("no-cache", false, "do not use the catalog snapshot cache")
	return cmd
}

// checkFlags are the flags shared by check and dump.
type checkFlags struct {
	cfg       *config.Config
	opts      driver.Options
	color     bool
	quiet     bool
	timings   bool
	withNotes bool
	pathMode  diagfmt.PathMode
}

func readCheckFlags(cmd *cobra.Command, path string) (*checkFlags, error) {
	f := cmd.Flags()
	cfg, err := driver.DiscoverConfig(path)
	if err != nil {
		return nil, err
	}
	out := &checkFlags{cfg: cfg, pathMode: diagfmt.PathModeAuto}

	mode, err := colorMode(cmd, cfg.Output.Color)
	if err != nil {
		return nil, err
	}
	out.color = useColor(mode, cmd.OutOrStdout())
	if out.quiet, err = f.GetBool("quiet"); err != nil {
		return nil, fmt.Errorf("failed to get quiet flag: %w", err)
	}
	if out.timings, err = f.GetBool("timings"); err != nil {
		return nil, fmt.Errorf("failed to get timings flag: %w", err)
	}
	maxDiagnostics, err := f.GetInt("max-diagnostics")
	if err != nil {
		return nil, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	btf, err := f.GetString("btf")
	if err != nil {
		return nil, fmt.Errorf("failed to get btf flag: %w", err)
	}
	catalogs, err := f.GetStringArray("catalog")
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog flag: %w", err)
	}
	noCache, err := f.GetBool("no-cache")
	if err != nil {
		return nil, fmt.Errorf("failed to get no-cache flag: %w", err)
	}

	out.opts = driver.Options{
		Config:         cfg,
		Catalogs:       catalogs,
		BTF:            btf,
		NoCache:        noCache,
		MaxDiagnostics: maxDiagnostics,
		EnableTimings:  out.timings,
		Progress:       progressSink(cmd.Context()),
	}
	return out, nil
}

// runCheck checks one document or a directory tree, prints diagnostics in
// the selected format and fails with exit code 1 when any program has
// errors.
func runCheck(cmd *cobra.Command, args []string) error {
	path := args[0]
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	cf, err := readCheckFlags(cmd, path)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	format, err := f.GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	if format == "" {
		format = cf.cfg.Output.Format
	}
	switch format {
	case "pretty", "short", "json":
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	noWarnings, err := f.GetBool("no-warnings")
	if err != nil {
		return fmt.Errorf("failed to get no-warnings flag: %w", err)
	}
	warningsAsErrors, err := f.GetBool("warnings-as-errors")
	if err != nil {
		return fmt.Errorf("failed to get warnings-as-errors flag: %w", err)
	}
	if noWarnings && warningsAsErrors {
		return fmt.Errorf("no-warnings and warnings-as-errors flags cannot be used together")
	}
	if cf.opts.StrictBugs, err = f.GetBool("strict-bugs"); err != nil {
		return fmt.Errorf("failed to get strict-bugs flag: %w", err)
	}
	if cf.withNotes, err = f.GetBool("with-notes"); err != nil {
		return fmt.Errorf("failed to get with-notes flag: %w", err)
	}
	fullPath, err := f.GetBool("fullpath")
	if err != nil {
		return fmt.Errorf("failed to get fullpath flag: %w", err)
	}
	if fullPath {
		cf.pathMode = diagfmt.PathModeAbsolute
	}
	cf.opts.IgnoreWarnings = noWarnings
	cf.opts.WarningsAsErrors = warningsAsErrors

	var results []*driver.Result
	var fileSet *source.FileSet
	var timing *observ.Report
	if st.IsDir() {
		jobs, err := f.GetInt("jobs")
		if err != nil {
			return fmt.Errorf("failed to get jobs flag: %w", err)
		}
		dir, err := driver.CheckDir(cmd.Context(), path, cf.opts, jobs)
		if err != nil {
			return fmt.Errorf("check failed: %w", err)
		}
		results, fileSet, timing = dir.Results, dir.FileSet, dir.Timing
	} else {
		res, err := driver.Check(cmd.Context(), path, cf.opts)
		if err != nil {
			return fmt.Errorf("check failed: %w", err)
		}
		results, fileSet, timing = []*driver.Result{res}, res.FileSet, res.Timing
	}

	out := cmd.OutOrStdout()
	if err := renderResults(out, format, results, fileSet, cf, st.IsDir()); err != nil {
		return err
	}
	if cf.timings && timing != nil {
		printTimings(cmd.ErrOrStderr(), *timing)
	}

	failed := 0
	for _, r := range results {
		if !r.Ok() {
			failed++
		}
	}
	if !cf.quiet && format == "pretty" {
		printSummary(cmd.ErrOrStderr(), results, failed)
	}
	if failed > 0 {
		return exitError{code: 1}
	}
	return nil
}

func renderResults(w io.Writer, format string, results []*driver.Result, fs *source.FileSet, cf *checkFlags, dir bool) error {
	switch format {
	case "short":
		all := diag.NewBag(0)
		for _, r := range results {
			all.Merge(r.Bag)
		}
		return diagfmt.Short(w, all, fs, cf.withNotes)
	case "json":
		jsonOpts := diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         cf.pathMode,
			IncludeNotes:     cf.withNotes,
		}
		if !dir {
			return diagfmt.JSON(w, results[0].Bag, fs, jsonOpts)
		}
		output := make(map[string]diagfmt.DiagnosticsOutput, len(results))
		for _, r := range results {
			output[r.Path] = diagfmt.BuildDiagnosticsOutput(r.Bag, fs, jsonOpts)
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(output); err != nil {
			return fmt.Errorf("failed to encode diagnostics output: %w", err)
		}
		return nil
	default:
		prettyOpts := diagfmt.PrettyOpts{
			Color:     cf.color,
			Context:   2,
			PathMode:  cf.pathMode,
			ShowNotes: cf.withNotes,
			ShowHints: true,
		}
		printed := false
		for _, r := range results {
			if r.Bag.Len() == 0 {
				continue
			}
			if printed {
				fmt.Fprintln(w) //nolint:errcheck
			}
			if dir {
				fmt.Fprintf(w, "== %s ==\n", r.Path) //nolint:errcheck
			}
			diagfmt.Pretty(w, r.Bag, fs, prettyOpts)
			printed = true
		}
		return nil
	}
}

func printSummary(w io.Writer, results []*driver.Result, failed int) {
	var errs, warns int
	for _, r := range results {
		errs += r.Bag.Count(diag.SevError) + r.Bag.Count(diag.SevBug)
		warns += r.Bag.Count(diag.SevWarning)
	}
	if failed == 0 {
		fmt.Fprintf(w, "ok: %d program(s), %d warning(s)\n", len(results), warns) //nolint:errcheck
		return
	}
	fmt.Fprintf(w, "failed: %d of %d program(s), %d error(s), %d warning(s)\n", failed, len(results), errs, warns) //nolint:errcheck
}

func printTimings(w io.Writer, r observ.Report) {
	fmt.Fprint(w, r.Summary()) //nolint:errcheck
}
