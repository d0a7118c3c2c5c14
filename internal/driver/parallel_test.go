package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestCheckDir(t *testing.T) {
	root := writeTree(t, map[string]string{
		"tracec.toml": "[metadata]\ncatalogs = [\"meta/kernel.yaml\"]\n",
		"meta/kernel.yaml": `
funcs:
  - name: vfs_read
    return: long
    params:
      - {name: file, type: "void *"}
      - {name: count, type: "unsigned long"}
`,
		"a_clean.yaml":        "probes:\n  - attach: BEGIN\n    body:\n      - {set: [\"@a\", 1]}\n",
		"b_bad.yaml":          "probes:\n  - attach: fentry:vfs_read\n    body:\n      - {field: [args, nope]}\n",
		"nested/c_clean.yaml": "probes:\n  - attach: fentry:vfs_read\n    body:\n      - {set: [\"@b\", {field: [args, count]}]}\n",
		".hidden/skip.yaml":   "not: a program\n",
		"README.md":           "ignored\n",
	})

	out, err := CheckDir(context.Background(), root, Options{NoCache: true, EnableTimings: true}, 2)
	if err != nil {
		t.Fatalf("check dir: %v", err)
	}
	if len(out.Results) != 3 {
		for _, r := range out.Results {
			t.Logf("checked %s", r.Path)
		}
		t.Fatalf("want 3 programs, got %d", len(out.Results))
	}
	want := []struct {
		base string
		ok   bool
	}{
		{"a_clean.yaml", true},
		{"b_bad.yaml", false},
		{"c_clean.yaml", true},
	}
	for i, w := range want {
		r := out.Results[i]
		if filepath.Base(r.Path) != w.base {
			t.Fatalf("result %d is %s, want %s", i, r.Path, w.base)
		}
		if r.Ok() != w.ok {
			t.Fatalf("%s: ok = %v, diagnostics %v", w.base, r.Ok(), r.Bag.Items())
		}
	}
	if out.Ok() {
		t.Fatal("directory with a bad program reported ok")
	}
	if out.Timing == nil || len(out.Timing.Phases) == 0 || out.Timing.Phases[0].Runs != 3 {
		t.Fatalf("timing = %+v", out.Timing)
	}
}

func TestCheckDirEmpty(t *testing.T) {
	out, err := CheckDir(context.Background(), t.TempDir(), Options{NoCache: true}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 0 || !out.Ok() {
		t.Fatalf("out = %+v", out)
	}
}

func TestDiscoverConfigFromFile(t *testing.T) {
	root := writeTree(t, map[string]string{
		"tracec.toml":  "[output]\nformat = \"json\"\n",
		"progs/p.yaml": "probes: []\n",
	})
	cfg, err := DiscoverConfig(filepath.Join(root, "progs", "p.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Output.Format != "json" {
		t.Fatalf("format = %q", cfg.Output.Format)
	}
}
