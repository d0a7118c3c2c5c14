package diagfmt

import (
	"context"
	"strings"
	"testing"

	"tracec/internal/astio"
	"tracec/internal/diag"
	"tracec/internal/meta"
	"tracec/internal/sema"
	"tracec/internal/source"
)

const treeDoc = `
probes:
  - attach: BEGIN
    body:
      - {set: ["@a", 1]}
      - {let: ["$x", "", {"+": [2, 3]}]}
`

func TestTreeUntyped(t *testing.T) {
	fs := source.NewFileSet()
	bag := diag.NewBag(10)
	prog := astio.Parse(fs, "tree.yaml", []byte(treeDoc), diag.BagReporter{Bag: bag})
	if bag.Len() != 0 {
		t.Fatalf("decode: %v", bag.Items())
	}

	var sb strings.Builder
	if err := Tree(&sb, prog.Builder, prog.File, fs, TreeOpts{}); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	for _, want := range []string{
		"Program tree.yaml\n",
		"└─ Probe BEGIN\n",
		"   ├─ AssignMapStatement\n",
		"   │  ├─ Map @a\n",
		"   │  └─ Integer 1\n",
		"Binop +\n",
		"Integer 2\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
	if strings.Contains(out, " :: ") {
		t.Errorf("types printed without interner:\n%s", out)
	}
}

func TestTreeTyped(t *testing.T) {
	fs := source.NewFileSet()
	bag := diag.NewBag(10)
	prog := astio.Parse(fs, "tree.yaml", []byte(treeDoc), diag.BagReporter{Bag: bag})
	res := sema.Check(context.Background(), prog.Builder, prog.File, bag, sema.Options{Provider: meta.Chain{}})
	if !res.Ok() {
		t.Fatalf("check: %v %v", res.Err, bag.Items())
	}

	var sb strings.Builder
	if err := Tree(&sb, prog.Builder, prog.File, fs, TreeOpts{Types: res.Types, Spans: true}); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	if !strings.Contains(out, "Map @a :: ") {
		t.Errorf("map not typed:\n%s", out)
	}
	if !strings.Contains(out, "Probe BEGIN (3:5-") {
		t.Errorf("probe span missing:\n%s", out)
	}
}

func TestTreeUnknownFile(t *testing.T) {
	prog := astio.Parse(source.NewFileSet(), "x.yaml", []byte("probes: []\n"), diag.BagReporter{Bag: diag.NewBag(1)})
	if err := Tree(&strings.Builder{}, prog.Builder, prog.File+7, nil, TreeOpts{}); err == nil {
		t.Fatal("expected error")
	}
}
