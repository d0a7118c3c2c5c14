package diagfmt

import (
	"bytes"
	"strings"
	"testing"

	"tracec/internal/diag"
	"tracec/internal/source"
)

func sampleBag(t *testing.T) (*diag.Bag, *source.FileSet, source.FileID) {
	t.Helper()
	fs := source.NewFileSet()
	content := []byte("probes:\n  - attach: BEGIN\n    body:\n      - {set: [\"@h\", {call: [hist]}]}\n")
	id := fs.AddVirtual("/home/user/project/progs/hist.yaml", content)
	start := uint32(bytes.Index(content, []byte("{call")))
	d := diag.NewError(diag.TypAggregateToVar, source.Span{File: id, Start: start, End: start + 14}, "hist() cannot be assigned to a scratch variable")
	d.Hint = "assign it to a map instead"
	d.Notes = []diag.Note{{Span: source.Span{File: id, Start: 12, End: 17}, Msg: "in this probe"}}
	bag := diag.NewBag(10)
	bag.Add(d)
	return bag, fs, id
}

func TestPathModes(t *testing.T) {
	bag, fs, _ := sampleBag(t)
	tests := []struct {
		name string
		mode PathMode
		base string
		want string
	}{
		{"absolute", PathModeAbsolute, "", "/home/user/project/progs/hist.yaml:4:"},
		{"relative", PathModeRelative, "/home/user/project", "progs/hist.yaml:4:"},
		{"basename", PathModeBasename, "", "hist.yaml:4:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Pretty(&buf, bag, fs, PrettyOpts{PathMode: tt.mode, BaseDir: tt.base})
			first, _, _ := strings.Cut(buf.String(), "\n")
			if !strings.HasPrefix(first, tt.want) {
				t.Fatalf("header %q, want prefix %q", first, tt.want)
			}
		})
	}
}

func TestPrettyHeaderAndCaret(t *testing.T) {
	bag, fs, _ := sampleBag(t)
	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{PathMode: PathModeBasename})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("want header, line and caret, got:\n%s", buf.String())
	}
	if lines[0] != "hist.yaml:4:22: ERROR TYP4041: hist() cannot be assigned to a scratch variable" {
		t.Fatalf("header = %q", lines[0])
	}
	src := lines[1][strings.Index(lines[1], "|")+2:]
	caret := lines[2][strings.Index(lines[2], "|")+2:]
	col := strings.Index(caret, "^")
	if src[col:col+5] != "{call" {
		t.Fatalf("caret under %q\n%s", src[col:], buf.String())
	}
	if strings.Count(caret, "~") != 13 {
		t.Fatalf("underline = %q", caret)
	}
	if strings.Contains(buf.String(), "\x1b[") {
		t.Fatal("escape codes with color off")
	}
}

func TestPrettyNotesAndHints(t *testing.T) {
	bag, fs, _ := sampleBag(t)
	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{PathMode: PathModeBasename, ShowNotes: true, ShowHints: true})
	out := buf.String()
	if !strings.Contains(out, "  note: hist.yaml:2:5: in this probe\n") {
		t.Errorf("note missing:\n%s", out)
	}
	if !strings.Contains(out, "  = hint: assign it to a map instead\n") {
		t.Errorf("hint missing:\n%s", out)
	}
}

func TestPrettyWideRunes(t *testing.T) {
	fs := source.NewFileSet()
	content := []byte("probes: [{attach: BEGIN, body: [{str: \"日本\"}, nope]}]\n")
	id := fs.AddVirtual("wide.yaml", content)
	start := uint32(bytes.Index(content, []byte("nope")))
	bag := diag.NewBag(1)
	bag.Add(diag.NewError(diag.InpUnknownNode, source.Span{File: id, Start: start, End: start + 4}, "unknown node"))

	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	caret := lines[2][strings.Index(lines[2], "|")+2:]
	// два широких символа занимают четыре колонки
	want := len("probes: [{attach: BEGIN, body: [{str: \"") + 4 + len("\"}, ")
	if got := strings.Index(caret, "^"); got != want {
		t.Fatalf("caret at %d, want %d\n%s", got, want, buf.String())
	}
}

func TestPrettyContextLines(t *testing.T) {
	bag, fs, _ := sampleBag(t)
	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{Context: 2})
	out := buf.String()
	for _, want := range []string{"2 |   - attach: BEGIN", "3 |     body:", "4 |       - {set:"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
}

func TestPrettyColor(t *testing.T) {
	bag, fs, _ := sampleBag(t)
	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{Color: true})
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("no escape codes with color on:\n%q", buf.String())
	}
}

func TestShort(t *testing.T) {
	bag, fs, _ := sampleBag(t)
	var buf bytes.Buffer
	if err := Short(&buf, bag, fs, false); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "error TYP4041 ") || !strings.HasSuffix(buf.String(), "(hint: assign it to a map instead)\n") {
		t.Fatalf("short = %q", buf.String())
	}

	buf.Reset()
	if err := Short(&buf, diag.NewBag(1), fs, false); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Fatalf("empty bag printed %q", buf.String())
	}
}
