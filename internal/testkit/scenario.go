package testkit

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/tools/txtar"

	"tracec/internal/diag"
)

// Names of the sections a scenario archive may hold.
const (
	ProgramFile = "program.yaml"
	CatalogFile = "catalog.yaml"
	ConfigFile  = "tracec.toml"
	WantFile    = "want"
)

// Expectation is one line of the want section:
//
//	error TYP4041 cannot be assigned to a scratch variable
//
// The last field is a substring of the message and may be empty.
type Expectation struct {
	Severity diag.Severity
	ID       string
	Text     string
}

func (e Expectation) String() string {
	return strings.TrimSpace(fmt.Sprintf("%s %s %s", e.Severity.Label(), e.ID, e.Text))
}

func (e Expectation) matches(d diag.Diagnostic) bool {
	return d.Severity == e.Severity && d.Code.ID() == e.ID && strings.Contains(d.Message, e.Text)
}

// Scenario is a program together with what checking it should report.
type Scenario struct {
	Name    string
	Comment string
	Program []byte
	Catalog []byte
	Config  []byte
	Want    []Expectation
}

// LoadScenario reads one .txtar archive.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- test fixtures
	if err != nil {
		return nil, err
	}
	return ParseScenario(strings.TrimSuffix(filepath.Base(path), ".txtar"), data)
}

// Scenarios loads every .txtar archive of dir in name order.
func Scenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.txtar"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// ParseScenario decodes archive data. A scenario without a want section
// expects a clean check.
func ParseScenario(name string, data []byte) (*Scenario, error) {
	ar := txtar.Parse(data)
	s := &Scenario{Name: name, Comment: strings.TrimSpace(string(ar.Comment))}
	for _, f := range ar.Files {
		switch f.Name {
		case ProgramFile:
			s.Program = f.Data
		case CatalogFile:
			s.Catalog = f.Data
		case ConfigFile:
			s.Config = f.Data
		case WantFile:
			want, err := parseWant(f.Data)
			if err != nil {
				return nil, err
			}
			s.Want = want
		default:
			return nil, fmt.Errorf("unknown section %q", f.Name)
		}
	}
	if s.Program == nil {
		return nil, fmt.Errorf("scenario %s has no %s", name, ProgramFile)
	}
	return s, nil
}

func parseWant(data []byte) ([]Expectation, error) {
	var out []Expectation
	sc := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.SplitN(text, " ", 3)
		if len(fields) < 2 {
			return nil, fmt.Errorf("want:%d: expected \"severity ID [text]\"", line)
		}
		sev, ok := parseSeverity(fields[0])
		if !ok {
			return nil, fmt.Errorf("want:%d: unknown severity %q", line, fields[0])
		}
		e := Expectation{Severity: sev, ID: fields[1]}
		if len(fields) == 3 {
			e.Text = strings.TrimSpace(fields[2])
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

func parseSeverity(s string) (diag.Severity, bool) {
	for _, sev := range []diag.Severity{diag.SevInfo, diag.SevWarning, diag.SevError, diag.SevBug} {
		if sev.Label() == s {
			return sev, true
		}
	}
	return diag.SevInfo, false
}

// Match compares reported diagnostics with the expectations. Every
// expectation consumes one diagnostic; warnings and worse that nothing
// expected are errors too, infos are ignored.
func (s *Scenario) Match(got []diag.Diagnostic) error {
	used := make([]bool, len(got))
	var err error
	for _, e := range s.Want {
		found := false
		for i, d := range got {
			if !used[i] && e.matches(d) {
				used[i], found = true, true
				break
			}
		}
		if !found {
			err = multierr.Append(err, fmt.Errorf("missing: %s", e))
		}
	}
	for i, d := range got {
		if used[i] || d.Severity < diag.SevWarning {
			continue
		}
		err = multierr.Append(err, fmt.Errorf("unexpected: %s %s %s", d.Severity.Label(), d.Code.ID(), d.Message))
	}
	return err
}
