package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tracec/internal/meta"
)

func newMetaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta",
		Short: "Work with type metadata",
	}
	cmd.AddCommand(newSnapshotCmd())
	return cmd
}

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot --btf <file> -o <file.mp>",
		Short: "Capture BTF or catalog entries into a msgpack snapshot",
		Long: `snapshot copies the requested structs, functions, globals and enums
from a BTF file (or YAML catalogs) into a msgpack catalog that check
and dump accept through the snapshot cache or --catalog.`,
		Args: cobra.NoArgs,
		RunE: runSnapshot,
	}
	f := cmd.Flags()
	f.String("btf", "", "BTF file to read, or \"kernel\" for the running kernel")
	f.StringArray("catalog", nil, "YAML catalog to read (repeatable)")
	f.StringP("output", "o", "", "snapshot file to write")
	f.StringSlice("struct", nil, "struct names to capture")
	f.StringSlice("func", nil, "function names to capture")
	f.StringSlice("global", nil, "global variable names to capture")
	f.StringSlice("enum", nil, "enum names to capture")
	f.Bool("iterators", false, "capture every BPF iterator and its context")
	return cmd
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	btf, err := f.GetString("btf")
	if err != nil {
		return fmt.Errorf("failed to get btf flag: %w", err)
	}
	catalogs, err := f.GetStringArray("catalog")
	if err != nil {
		return fmt.Errorf("failed to get catalog flag: %w", err)
	}
	output, err := f.GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	if output == "" {
		return errors.New("--output is required")
	}
	if btf == "" && len(catalogs) == 0 {
		return errors.New("one of --btf or --catalog is required")
	}

	var req meta.CaptureRequest
	if req.Structs, err = f.GetStringSlice("struct"); err != nil {
		return fmt.Errorf("failed to get struct flag: %w", err)
	}
	if req.Funcs, err = f.GetStringSlice("func"); err != nil {
		return fmt.Errorf("failed to get func flag: %w", err)
	}
	if req.Globals, err = f.GetStringSlice("global"); err != nil {
		return fmt.Errorf("failed to get global flag: %w", err)
	}
	if req.Enums, err = f.GetStringSlice("enum"); err != nil {
		return fmt.Errorf("failed to get enum flag: %w", err)
	}
	if req.Iterators, err = f.GetBool("iterators"); err != nil {
		return fmt.Errorf("failed to get iterators flag: %w", err)
	}

	var chain meta.Chain
	for _, path := range catalogs {
		c, err := meta.LoadCatalog(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		chain = append(chain, c)
	}
	switch btf {
	case "":
	case "kernel":
		p, err := meta.KernelBTF()
		if err != nil {
			return err
		}
		chain = append(chain, p)
	default:
		p, err := meta.LoadBTF(btf)
		if err != nil {
			return err
		}
		chain = append(chain, p)
	}

	cat, err := meta.Capture(chain, req)
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}
	if err := meta.SaveSnapshot(output, cat); err != nil {
		return err
	}
	quiet, err := f.GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	if !quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s: %d struct(s), %d enum(s), %d func(s), %d global(s), %d iterator(s)\n", //nolint:errcheck
			output, len(cat.Structs), len(cat.Enums), len(cat.Funcs), len(cat.Globals), len(cat.Iters))
	}
	return nil
}
