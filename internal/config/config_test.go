package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/multierr"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[limits]
max_iterations = 8

[unstable]
map_decl = true

[metadata]
catalogs = ["meta/kernel.yaml", "/abs/user.yaml"]
btf = "kernel"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Limits.MaxIterations != 8 || cfg.Limits.MaxStrlen != 1024 || cfg.Limits.MaxDiagnostics != 100 {
		t.Fatalf("limits = %+v", cfg.Limits)
	}
	if !cfg.Unstable.MapDecl || !cfg.Features.GetFuncIP {
		t.Fatalf("flags = %+v %+v", cfg.Unstable, cfg.Features)
	}
	want := []string{filepath.Join(dir, "meta", "kernel.yaml"), "/abs/user.yaml"}
	if len(cfg.Metadata.Catalogs) != 2 || cfg.Metadata.Catalogs[0] != want[0] || cfg.Metadata.Catalogs[1] != want[1] {
		t.Fatalf("catalogs = %v, want %v", cfg.Metadata.Catalogs, want)
	}
	if cfg.Metadata.BTF != "kernel" {
		t.Fatalf("btf = %q", cfg.Metadata.BTF)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[limits]\nmax_strlenn = 10\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "limits.max_strlenn") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidateCollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Limits.MaxIterations = 0
	cfg.Output.Color = "sometimes"
	cfg.Output.Format = "xml"
	err := cfg.Validate()
	if n := len(multierr.Errors(err)); n != 3 {
		t.Fatalf("want 3 errors, got %d: %v", n, err)
	}
}

func TestDiscoverWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[output]\nformat = \"short\"\n")
	deep := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg, err := Discover(deep)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if cfg.Output.Format != "short" || cfg.Path != filepath.Join(root, FileName) {
		t.Fatalf("cfg = %+v", cfg)
	}
}
