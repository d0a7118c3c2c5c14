package astio

import (
	"strings"
	"testing"

	"tracec/internal/ast"
	"tracec/internal/diag"
	"tracec/internal/source"
)

func parse(t *testing.T, doc string) (*Program, *diag.Bag) {
	t.Helper()
	bag := diag.NewBag(100)
	prog := Parse(source.NewFileSet(), "test.yaml", []byte(doc), diag.BagReporter{Bag: bag})
	return prog, bag
}

func mustParse(t *testing.T, doc string) *Program {
	t.Helper()
	prog, bag := parse(t, doc)
	if bag.Len() != 0 {
		for _, d := range bag.Items() {
			t.Errorf("unexpected diagnostic: %s", d.Message)
		}
		t.FailNow()
	}
	return prog
}

func probeBody(t *testing.T, prog *Program, i int) []ast.StmtID {
	t.Helper()
	probes := prog.Builder.Probes(prog.File)
	if len(probes) <= i {
		t.Fatalf("want probe %d, have %d", i, len(probes))
	}
	p, _ := prog.Builder.Items.Probe(probes[i])
	blk, ok := prog.Builder.Exprs.Block(p.Body)
	if !ok {
		t.Fatalf("probe body is %s", prog.Builder.Exprs.Kind(p.Body))
	}
	return blk.Stmts
}

func TestDecodeProbe(t *testing.T) {
	prog := mustParse(t, `
probes:
  - attach: ["kprobe:do_nanosleep", "tracepoint:sched:sched_switch"]
    pred: {"==": [pid, 1]}
    body:
      - {set: [{"@m": tid}, {call: [count]}]}
      - {set: [$x, -5]}
      - return
`)
	probes := prog.Builder.Probes(prog.File)
	if len(probes) != 1 {
		t.Fatalf("probes = %d", len(probes))
	}
	p, _ := prog.Builder.Items.Probe(probes[0])
	if len(p.AttachPoints) != 2 {
		t.Fatalf("attach points = %d", len(p.AttachPoints))
	}
	if ap := p.AttachPoints[1]; ap.Provider != ast.ProbeTracepoint || ap.Target != "sched" || ap.Func != "sched_switch" {
		t.Fatalf("unexpected attach point %+v", ap)
	}
	if bd, ok := prog.Builder.Exprs.Binary(p.Pred); !ok || bd.Op != ast.OpEq {
		t.Fatalf("predicate is %s", prog.Builder.Exprs.Kind(p.Pred))
	}

	stmts := probeBody(t, prog, 0)
	if len(stmts) != 3 {
		t.Fatalf("stmts = %d", len(stmts))
	}
	am, ok := prog.Builder.Stmts.AssignMap(stmts[0])
	if !ok {
		t.Fatalf("first statement is %s", prog.Builder.Stmts.Kind(stmts[0]))
	}
	md, _ := prog.Builder.Exprs.Map(am.Map)
	if md.Name != "@m" || !md.Key.IsValid() {
		t.Fatalf("map = %+v", md)
	}
	if cd, ok := prog.Builder.Exprs.Call(am.Value); !ok || cd.Func != "count" || len(cd.Args) != 0 {
		t.Fatalf("value is not count()")
	}
	av, ok := prog.Builder.Stmts.AssignVar(stmts[1])
	if !ok {
		t.Fatalf("second statement is %s", prog.Builder.Stmts.Kind(stmts[1]))
	}
	lit, ok := prog.Builder.Exprs.Integer(av.Value)
	if !ok || lit.Value != 5 || !lit.Negative {
		t.Fatalf("value = %+v", lit)
	}
	if jd, ok := prog.Builder.Stmts.Jump(stmts[2]); !ok || jd.Kind != ast.JumpReturn {
		t.Fatalf("last statement is not return")
	}
}

func TestDecodeScalars(t *testing.T) {
	prog := mustParse(t, `
probes:
  - attach: BEGIN
    body:
      - {call: [printf, "%d %s\n", 0x10, comm]}
      - {call: [print, true]}
      - {call: [print, {str: "@not_a_map"}]}
      - {call: [print, "@a_map"]}
`)
	stmts := probeBody(t, prog, 0)
	exprs := prog.Builder.Exprs
	first, _ := prog.Builder.Stmts.Expr(stmts[0])
	cd, _ := exprs.Call(first.Expr)
	if len(cd.Args) != 3 {
		t.Fatalf("printf args = %d", len(cd.Args))
	}
	if s, ok := exprs.StringLit(cd.Args[0]); !ok || s.Value != "%d %s\n" {
		t.Fatalf("format = %v", exprs.Kind(cd.Args[0]))
	}
	if lit, ok := exprs.Integer(cd.Args[1]); !ok || lit.Value != 16 {
		t.Fatalf("hex literal not decoded")
	}
	if b, ok := exprs.Builtin(cd.Args[2]); !ok || b.Name != "comm" {
		t.Fatalf("comm is %s", exprs.Kind(cd.Args[2]))
	}
	second, _ := prog.Builder.Stmts.Expr(stmts[1])
	cd, _ = exprs.Call(second.Expr)
	if _, ok := exprs.Boolean(cd.Args[0]); !ok {
		t.Fatalf("true is %s", exprs.Kind(cd.Args[0]))
	}
	third, _ := prog.Builder.Stmts.Expr(stmts[2])
	cd, _ = exprs.Call(third.Expr)
	if _, ok := exprs.StringLit(cd.Args[0]); !ok {
		t.Fatalf("str node must stay a string, got %s", exprs.Kind(cd.Args[0]))
	}
	fourth, _ := prog.Builder.Stmts.Expr(stmts[3])
	cd, _ = exprs.Call(fourth.Expr)
	if _, ok := exprs.Map(cd.Args[0]); !ok {
		t.Fatalf("quoted @ scalar must be a map, got %s", exprs.Kind(cd.Args[0]))
	}
}

func TestDecodeLetExpands(t *testing.T) {
	prog := mustParse(t, `
probes:
  - attach: BEGIN
    body:
      - {let: [$x, uint8, 1]}
      - {let: [$y]}
`)
	stmts := probeBody(t, prog, 0)
	if len(stmts) != 3 {
		t.Fatalf("stmts = %d, want decl+assign+decl", len(stmts))
	}
	decl, ok := prog.Builder.Stmts.VarDecl(stmts[0])
	if !ok || decl.TypeName != "uint8" {
		t.Fatalf("first statement is not a typed declaration")
	}
	if _, ok := prog.Builder.Stmts.AssignVar(stmts[1]); !ok {
		t.Fatalf("second statement is not the assignment")
	}
	if decl, _ := prog.Builder.Stmts.VarDecl(stmts[2]); decl.TypeName != "" {
		t.Fatalf("untyped declaration got %q", decl.TypeName)
	}
}

func TestDecodeSubprogsAndMaps(t *testing.T) {
	prog := mustParse(t, `
maps:
  - {name: "@h", type: percpuhash, max_entries: 10}
subprogs:
  - name: add
    params: [{name: $a, type: int64}, {name: $b, type: int64}]
    return: int64
    body:
      - {return: {"+": [$a, $b]}}
`)
	decls := prog.Builder.MapDecls(prog.File)
	if len(decls) != 1 {
		t.Fatalf("map decls = %d", len(decls))
	}
	md, _ := prog.Builder.Items.MapDecl(decls[0])
	if md.Name != "@h" || md.BpfType != "percpuhash" || md.MaxEntries != 10 {
		t.Fatalf("decl = %+v", md)
	}
	subs := prog.Builder.Subprogs(prog.File)
	if len(subs) != 1 {
		t.Fatalf("subprogs = %d", len(subs))
	}
	sp, _ := prog.Builder.Items.Subprog(subs[0])
	if sp.Name != "add" || len(sp.Params) != 2 || sp.ReturnTypeName != "int64" {
		t.Fatalf("subprog = %+v", sp)
	}
}

func TestDecodeSpans(t *testing.T) {
	doc := "probes:\n  - attach: BEGIN\n    body:\n      - {call: [exit]}\n"
	prog := mustParse(t, doc)
	stmts := probeBody(t, prog, 0)
	es, _ := prog.Builder.Stmts.Expr(stmts[0])
	sp := prog.Builder.Exprs.Span(es.Expr)
	want := uint32(strings.Index(doc, "{call"))
	if sp.Start != want {
		t.Fatalf("span start = %d, want %d", sp.Start, want)
	}
	if got := doc[sp.Start:sp.End]; !strings.HasPrefix(got, "{call: [exit") {
		t.Fatalf("span covers %q", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code diag.Code
	}{
		{"syntax", "probes: [", diag.InpBadDocument},
		{"provider", "probes:\n  - attach: bogus:x\n", diag.InpBadAttachPoint},
		{"tracepoint arity", "probes:\n  - attach: tracepoint:sched\n", diag.InpBadAttachPoint},
		{"unknown node", "probes:\n  - attach: BEGIN\n    body:\n      - {frobnicate: 1}\n", diag.InpUnknownNode},
		{"missing attach", "probes:\n  - body: []\n", diag.InpMissingField},
		{"unknown field", "probes:\n  - attach: BEGIN\n    color: red\n", diag.InpUnknownNode},
		{"duplicate subprog", "subprogs:\n  - name: f\n  - name: f\n", diag.InpDuplicateSubprog},
		{"bad map name", "maps:\n  - {name: m, type: hash}\n", diag.InpBadLiteral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, bag := parse(t, tt.doc)
			items := bag.Items()
			if len(items) == 0 {
				t.Fatalf("no diagnostics")
			}
			if items[0].Code != tt.code {
				t.Fatalf("code = %v, want %v (%s)", items[0].Code, tt.code, items[0].Message)
			}
		})
	}
}

func TestParseAttachPoint(t *testing.T) {
	tests := []struct {
		raw  string
		want ast.AttachPoint
	}{
		{"BEGIN", ast.AttachPoint{Provider: ast.ProbeSpecial, Func: "BEGIN"}},
		{"kprobe:vfs_read", ast.AttachPoint{Provider: ast.ProbeKprobe, Func: "vfs_read"}},
		{"fentry:btrfs:btrfs_sync_file", ast.AttachPoint{Provider: ast.ProbeFentry, Target: "btrfs", Func: "btrfs_sync_file"}},
		{"uprobe:/bin/bash:readline", ast.AttachPoint{Provider: ast.ProbeUprobe, Target: "/bin/bash", Func: "readline"}},
		{"usdt:/bin/app:prov:start", ast.AttachPoint{Provider: ast.ProbeUsdt, Target: "/bin/app", Func: "prov:start"}},
		{"profile:hz:99", ast.AttachPoint{Provider: ast.ProbeProfile, Target: "hz", Freq: 99}},
		{"watchpoint:0x1000:8:rw", ast.AttachPoint{Provider: ast.ProbeWatchpoint, Address: 0x1000, Len: 8, Mode: "rw"}},
		{"iter:task", ast.AttachPoint{Provider: ast.ProbeIter, Func: "task"}},
	}
	for _, tt := range tests {
		got, err := ParseAttachPoint(tt.raw)
		if err != nil {
			t.Fatalf("%s: %v", tt.raw, err)
		}
		tt.want.Raw = tt.raw
		if got != tt.want {
			t.Fatalf("%s: got %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}
