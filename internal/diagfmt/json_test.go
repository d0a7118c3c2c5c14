package diagfmt

import (
	"bytes"
	"encoding/json"
	"testing"

	"tracec/internal/diag"
	"tracec/internal/source"
)

func TestJSONBasic(t *testing.T) {
	bag, fs, _ := sampleBag(t)

	var buf bytes.Buffer
	err := JSON(&buf, bag, fs, JSONOpts{IncludePositions: true, PathMode: PathModeBasename, IncludeNotes: true})
	if err != nil {
		t.Fatalf("JSON() error: %v", err)
	}

	var output DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if output.Count != 1 || len(output.Diagnostics) != 1 {
		t.Fatalf("count = %d, diagnostics = %d", output.Count, len(output.Diagnostics))
	}
	if output.Errors != 1 || output.Warnings != 0 {
		t.Errorf("errors/warnings = %d/%d", output.Errors, output.Warnings)
	}

	d := output.Diagnostics[0]
	if d.Severity != "ERROR" || d.Code != "TYP4041" {
		t.Errorf("severity/code = %s/%s", d.Severity, d.Code)
	}
	if d.Title != diag.TypAggregateToVar.Title() {
		t.Errorf("title = %q", d.Title)
	}
	if d.Hint != "assign it to a map instead" {
		t.Errorf("hint = %q", d.Hint)
	}
	if d.Location.File != "hist.yaml" || d.Location.StartLine != 4 || d.Location.StartCol != 22 {
		t.Errorf("location = %+v", d.Location)
	}
	if len(d.Notes) != 1 || d.Notes[0].Location.StartLine != 2 {
		t.Errorf("notes = %+v", d.Notes)
	}
}

func TestJSONWithoutPositions(t *testing.T) {
	bag, fs, _ := sampleBag(t)
	out := BuildDiagnosticsOutput(bag, fs, JSONOpts{PathMode: PathModeBasename})
	loc := out.Diagnostics[0].Location
	if loc.StartLine != 0 || loc.StartCol != 0 || loc.EndByte <= loc.StartByte {
		t.Errorf("location = %+v", loc)
	}
	if out.Diagnostics[0].Notes != nil {
		t.Errorf("notes included: %+v", out.Diagnostics[0].Notes)
	}
}

func TestJSONMaxAndDropped(t *testing.T) {
	fs := source.NewFileSet()
	id := fs.AddVirtual("p.yaml", []byte("probes: []\n"))
	bag := diag.NewBag(3)
	for range 5 {
		bag.Add(diag.New(diag.SevWarning, diag.MapUnused, source.Span{File: id, Start: 0, End: 6}, "Unused map: @x"))
	}

	out := BuildDiagnosticsOutput(bag, fs, JSONOpts{Max: 2})
	if out.Count != 2 || len(out.Diagnostics) != 2 {
		t.Fatalf("count = %d", out.Count)
	}
	if out.Dropped != 2 || out.Warnings != 2 || out.Errors != 0 {
		t.Fatalf("dropped = %d, warnings = %d, errors = %d", out.Dropped, out.Warnings, out.Errors)
	}
	if out.Diagnostics[0].Severity != "WARNING" {
		t.Fatalf("severity = %s", out.Diagnostics[0].Severity)
	}
}

func TestJSONEmptyBag(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, diag.NewBag(1), source.NewFileSet(), JSONOpts{}); err != nil {
		t.Fatal(err)
	}
	var output DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatal(err)
	}
	if output.Count != 0 || output.Diagnostics == nil {
		t.Fatalf("output = %+v", output)
	}
}
