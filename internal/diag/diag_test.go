package diag

import (
	"testing"

	"tracec/internal/source"
)

func TestBagLimitKeepsErrors(t *testing.T) {
	bag := NewBag(1)
	sp := source.Span{File: 0, Start: 1, End: 2}
	if !bag.Add(New(SevWarning, TypSignMismatch, sp, "w1")) {
		t.Fatalf("first warning rejected")
	}
	if bag.Add(New(SevWarning, TypSignMismatch, sp, "w2")) {
		t.Fatalf("warning past limit accepted")
	}
	if !bag.Add(NewError(TypMismatch, sp, "e")) {
		t.Fatalf("error past limit rejected")
	}
	if bag.Ok() || bag.Dropped() != 1 || bag.Len() != 2 {
		t.Fatalf("unexpected ledger state: ok=%v dropped=%d len=%d", bag.Ok(), bag.Dropped(), bag.Len())
	}
}

func TestBugIsError(t *testing.T) {
	bag := NewBag(0)
	ReportBug(BagReporter{Bag: bag}, source.Span{}, "unreachable").Emit()
	if !bag.HasErrors() || !bag.HasBugs() {
		t.Fatalf("bug must make the ledger not ok")
	}
	if got := bag.Items()[0].Code.ID(); got != "BUG9001" {
		t.Fatalf("bug code id = %s", got)
	}
}

func TestDedupReporter(t *testing.T) {
	bag := NewBag(0)
	r := NewDedupReporter(BagReporter{Bag: bag})
	sp := source.Span{File: 0, Start: 3, End: 7}
	for i := 0; i < 3; i++ {
		ReportWarning(r, FlwUnreachableStmt, sp, "Unreachable statement.").Emit()
	}
	ReportWarning(r, FlwUnreachableStmt, source.Span{Start: 9, End: 10}, "Unreachable statement.").Emit()
	if bag.Len() != 2 {
		t.Fatalf("expected 2 unique diagnostics, got %d", bag.Len())
	}
}

func TestBuilderEmitsOnce(t *testing.T) {
	bag := NewBag(0)
	b := ReportError(BagReporter{Bag: bag}, MapAggregateCopy, source.Span{}, "msg").
		WithNote(source.Span{Start: 4, End: 5}, "declared here").
		WithHint("call it directly")
	b.Emit()
	b.Emit()
	if bag.Len() != 1 {
		t.Fatalf("Emit reported %d times", bag.Len())
	}
	d := bag.Items()[0]
	if d.Hint != "call it directly" || len(d.Notes) != 1 {
		t.Fatalf("builder lost details: %+v", d)
	}
}

func TestSortAndFormatLines(t *testing.T) {
	fs := source.NewFileSet()
	id := fs.AddVirtual("probe.yaml", []byte("a\nbb\nccc\n"))
	bag := NewBag(0)
	bag.Add(New(SevWarning, TypSignMismatch, source.Span{File: id, Start: 5, End: 6}, "later"))
	bag.Add(New(SevError, TypMismatch, source.Span{File: id, Start: 2, End: 4}, "first\nline").WithHint("cast it"))
	bag.Sort()
	if bag.Items()[0].Message != "first\nline" {
		t.Fatalf("sort did not order by position")
	}
	want := "error TYP4003 probe.yaml:2:1 first line (hint: cast it)\n" +
		"warning TYP4010 probe.yaml:3:1 later"
	if got := FormatLines(bag.Items(), fs, false); got != want {
		t.Fatalf("FormatLines:\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestCodeIDs(t *testing.T) {
	cases := map[Code]string{
		InpBadDocument:     "INP1001",
		CtxNoDebugInfo:     "CTX2001",
		FlwUnreachableStmt: "FLW3001",
		TypUnresolved:      "TYP4001",
		MapUndefined:       "MAP5001",
		ChkArity:           "CHK6002",
		MetNotFound:        "MET7001",
	}
	for code, want := range cases {
		if got := code.ID(); got != want {
			t.Fatalf("%d.ID() = %s; want %s", code, got, want)
		}
		if code.Title() == codeDescription[UnknownCode] {
			t.Fatalf("%s has no title", want)
		}
	}
}
