package testkit

import (
	"strings"
	"testing"

	"go.uber.org/multierr"

	"tracec/internal/astio"
	"tracec/internal/diag"
	"tracec/internal/source"
)

const archive = `aggregate read into a scratch variable
-- program.yaml --
probes:
  - attach: BEGIN
    body:
      - {set: ["@a", {call: [hist, pid]}]}
      - {set: [$b, "@a"]}
-- want --
# the hint is checked by sema tests
error TYP4041 cannot be assigned to a scratch variable
warning FLW3001
`

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario("agg", []byte(archive))
	if err != nil {
		t.Fatal(err)
	}
	if s.Comment != "aggregate read into a scratch variable" {
		t.Fatalf("comment = %q", s.Comment)
	}
	if !strings.Contains(string(s.Program), "hist") || s.Catalog != nil {
		t.Fatalf("sections not split: %+v", s)
	}
	if len(s.Want) != 2 {
		t.Fatalf("want = %v", s.Want)
	}
	if w := s.Want[0]; w.Severity != diag.SevError || w.ID != "TYP4041" || w.Text != "cannot be assigned to a scratch variable" {
		t.Fatalf("first expectation = %+v", w)
	}
	if w := s.Want[1]; w.Severity != diag.SevWarning || w.Text != "" {
		t.Fatalf("second expectation = %+v", w)
	}
}

func TestParseScenarioErrors(t *testing.T) {
	for name, data := range map[string]string{
		"no program":   "-- want --\nerror TYP4041\n",
		"bad severity": "-- program.yaml --\n{}\n-- want --\nfatal TYP4041\n",
		"short want":   "-- program.yaml --\n{}\n-- want --\nerror\n",
		"unknown file": "-- program.yaml --\n{}\n-- notes.md --\nhi\n",
	} {
		if _, err := ParseScenario(name, []byte(data)); err == nil {
			t.Errorf("%s: no error", name)
		}
	}
}

func TestMatch(t *testing.T) {
	s, err := ParseScenario("agg", []byte(archive))
	if err != nil {
		t.Fatal(err)
	}
	got := []diag.Diagnostic{
		{Severity: diag.SevWarning, Code: diag.FlwUnreachableStmt, Message: "Unreachable statement."},
		{Severity: diag.SevError, Code: diag.TypAggregateToVar, Message: "Map value 'hist' cannot be assigned to a scratch variable."},
		{Severity: diag.SevInfo, Code: diag.ChkInfo, Message: "ignored"},
	}
	if err := s.Match(got); err != nil {
		t.Fatalf("match: %v", err)
	}

	extra := append(got, diag.Diagnostic{Severity: diag.SevError, Code: diag.TypMismatch, Message: "boom"})
	err = s.Match(extra[1:])
	if n := len(multierr.Errors(err)); n != 2 {
		t.Fatalf("want missing+unexpected, got %d: %v", n, err)
	}
}

func TestSpanInvariants(t *testing.T) {
	fs := source.NewFileSet()
	bag := diag.NewBag(10)
	prog := astio.Parse(fs, "p.yaml", []byte(`
subprogs:
  - name: f
    body: [{return: {"+": [1, 2]}}]
probes:
  - attach: BEGIN
    pred: {"==": [pid, 1]}
    body: [{call: exit}]
`), diag.BagReporter{Bag: bag})
	if bag.Len() != 0 {
		t.Fatalf("decode: %s", bag.Items()[0].Message)
	}
	if err := CheckSpanInvariants(prog.Builder, prog.File, fs.Get(prog.Source)); err != nil {
		t.Fatal(err)
	}
}
