package driver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tracec/internal/config"
	"tracec/internal/diag"
	"tracec/internal/testkit"
)

// materialize writes the sections of s into a fresh directory and returns
// the program path.
func materialize(t *testing.T, s *testkit.Scenario) string {
	t.Helper()
	dir := t.TempDir()
	write := func(name string, data []byte) {
		if data == nil {
			return
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write(testkit.ProgramFile, s.Program)
	write(testkit.CatalogFile, s.Catalog)
	write(testkit.ConfigFile, s.Config)
	return filepath.Join(dir, testkit.ProgramFile)
}

func TestScenarios(t *testing.T) {
	scenarios, err := testkit.Scenarios("testdata")
	if err != nil {
		t.Fatal(err)
	}
	if len(scenarios) == 0 {
		t.Fatal("no scenarios")
	}
	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			res, err := Check(context.Background(), materialize(t, s), Options{NoCache: true})
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if err := s.Match(res.Bag.Items()); err != nil {
				t.Fatalf("%s\n%s", err, diag.FormatLines(res.Bag.Items(), res.FileSet, false))
			}
			if len(s.Want) == 0 && !res.Ok() {
				t.Fatalf("clean program not ok: %v", res.Sema.Err)
			}
		})
	}
}

const unusedMapProgram = `
maps:
  - {name: "@h", type: percpuhash, max_entries: 10}
  - {name: "@idle", type: hash, max_entries: 10}
probes:
  - attach: BEGIN
    body:
      - {set: [{"@h": pid}, {call: [count]}]}
`

func mapDeclConfig() *config.Config {
	cfg := config.Default()
	cfg.Unstable.MapDecl = true
	return cfg
}

func TestWarningFilters(t *testing.T) {
	ctx := context.Background()

	res, err := CheckSource(ctx, "p.yaml", []byte(unusedMapProgram), Options{Config: mapDeclConfig()})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Ok() || res.Bag.Count(diag.SevWarning) != 1 {
		t.Fatalf("want one warning and ok, got:\n%s", diag.FormatLines(res.Bag.Items(), res.FileSet, false))
	}

	res, err = CheckSource(ctx, "p.yaml", []byte(unusedMapProgram), Options{Config: mapDeclConfig(), WarningsAsErrors: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Ok() || res.Bag.Count(diag.SevError) != 1 {
		t.Fatalf("warning not promoted: %v", res.Bag.Items())
	}

	res, err = CheckSource(ctx, "p.yaml", []byte(unusedMapProgram), Options{Config: mapDeclConfig(), IgnoreWarnings: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Bag.Len() != 0 {
		t.Fatalf("warnings kept: %v", res.Bag.Items())
	}
}

func TestTimings(t *testing.T) {
	res, err := CheckSource(context.Background(), "p.yaml", []byte("probes:\n  - attach: BEGIN\n    body:\n      - {set: [\"@a\", 1]}\n"),
		Options{EnableTimings: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Timing == nil {
		t.Fatal("no timing report")
	}
	var names []string
	for _, p := range res.Timing.Phases {
		names = append(names, p.Name)
	}
	got := strings.Join(names, ",")
	if got != "decode,context,control-flow,resolve-types,type-check" {
		t.Fatalf("phases = %s", got)
	}
}

func TestMaxDiagnosticsOverride(t *testing.T) {
	cfg := config.Default()
	res, err := CheckSource(context.Background(), "p.yaml", []byte("probes: []\n"), Options{Config: cfg, MaxDiagnostics: 7})
	if err != nil {
		t.Fatal(err)
	}
	if res.Bag.Cap() != 7 {
		t.Fatalf("cap = %d", res.Bag.Cap())
	}
}

func TestCheckMissingFile(t *testing.T) {
	_, err := Check(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), Options{Config: config.Default()})
	if err == nil || !strings.Contains(err.Error(), "failed to load program") {
		t.Fatalf("err = %v", err)
	}
}

func TestMissingCatalogIsAnError(t *testing.T) {
	_, err := CheckSource(context.Background(), "p.yaml", []byte("probes: []\n"),
		Options{Config: config.Default(), Catalogs: []string{filepath.Join(t.TempDir(), "absent.yaml")}, NoCache: true})
	if err == nil || !strings.Contains(err.Error(), "failed to read catalog") {
		t.Fatalf("err = %v", err)
	}
}
