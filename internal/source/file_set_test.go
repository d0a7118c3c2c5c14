package source

import (
	"testing"
)

func TestFileSetVersioning(t *testing.T) {
	fs := NewFileSet()

	id1 := fs.AddVirtual("probe.yaml", []byte("probes: []"))
	id2 := fs.AddVirtual("probe.yaml", []byte("probes: [1]"))
	if id1 == id2 {
		t.Fatalf("expected fresh id for second add, got %d twice", id1)
	}
	latest, ok := fs.GetLatest("./probe.yaml")
	if !ok || latest != id2 {
		t.Fatalf("GetLatest = %d,%v; want %d,true", latest, ok, id2)
	}
	if got := string(fs.Get(id1).Content); got != "probes: []" {
		t.Fatalf("old version lost: %q", got)
	}
	if fs.Get(FileID(99)) != nil {
		t.Fatalf("expected nil for unknown id")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
		flags FileFlags
	}{
		{"plain", "a\nb", "a\nb", 0},
		{"bom", "\xEF\xBB\xBFa", "a", FileHadBOM},
		{"crlf", "a\r\nb\r\n", "a\nb\n", FileNormalizedCRLF},
		{"lone cr kept", "a\rb", "a\rb", 0},
		{"nfc", "e\u0301", "\u00e9", FileNormalizedNFC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, flags := Normalize([]byte(tt.in))
			if string(got) != tt.want {
				t.Fatalf("content = %q; want %q", got, tt.want)
			}
			if flags != tt.flags {
				t.Fatalf("flags = %b; want %b", flags, tt.flags)
			}
		})
	}
}

func TestResolveAndOffset(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("x", []byte("ab\ncde\n\nf"))

	cases := []struct {
		off  uint32
		want LineCol
	}{
		{0, LineCol{1, 1}},
		{2, LineCol{1, 3}},
		{3, LineCol{2, 1}},
		{5, LineCol{2, 3}},
		{7, LineCol{3, 1}},
		{8, LineCol{4, 1}},
	}
	for _, c := range cases {
		start, _ := fs.Resolve(Span{File: id, Start: c.off, End: c.off})
		if start != c.want {
			t.Fatalf("Resolve(%d) = %+v; want %+v", c.off, start, c.want)
		}
		if back := fs.Offset(id, c.want.Line, c.want.Col); back != c.off {
			t.Fatalf("Offset(%+v) = %d; want %d", c.want, back, c.off)
		}
	}
	if got := fs.Offset(id, 50, 1); got != 9 {
		t.Fatalf("Offset past end = %d; want 9", got)
	}
}

func TestGetLine(t *testing.T) {
	fs := NewFileSet()
	f := fs.Get(fs.AddVirtual("x", []byte("first\nsecond\n")))
	if got := f.GetLine(1); got != "first" {
		t.Fatalf("line 1 = %q", got)
	}
	if got := f.GetLine(2); got != "second" {
		t.Fatalf("line 2 = %q", got)
	}
	if got := f.GetLine(3); got != "" {
		t.Fatalf("line 3 = %q", got)
	}
	if got := f.GetLine(0); got != "" {
		t.Fatalf("line 0 = %q", got)
	}
}

func TestSpanCover(t *testing.T) {
	a := Span{File: 1, Start: 4, End: 8}
	b := Span{File: 1, Start: 2, End: 5}
	if got := a.Cover(b); got != (Span{File: 1, Start: 2, End: 8}) {
		t.Fatalf("Cover = %v", got)
	}
	if got := a.Cover(Span{File: 2, Start: 0, End: 1}); got != a {
		t.Fatalf("cross-file Cover changed span: %v", got)
	}
	if !a.Cover(b).Contains(a) || a.Contains(b) {
		t.Fatalf("Contains mismatch")
	}
	if !b.Before(a) || a.Before(b) {
		t.Fatalf("Before mismatch")
	}
}
