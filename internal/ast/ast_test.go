package ast

import (
	"testing"

	"tracec/internal/source"
	"tracec/internal/types"
)

func sp(start, end uint32) source.Span {
	return source.Span{File: 1, Start: start, End: end}
}

func TestArenaIsOneBased(t *testing.T) {
	a := NewArena[int](0)
	if a.Get(0) != nil {
		t.Fatalf("slot 0 must be empty")
	}
	id := a.Allocate(7)
	if id != 1 {
		t.Fatalf("first id = %d, want 1", id)
	}
	if got := *a.Get(id); got != 7 {
		t.Fatalf("got %d", got)
	}
	if a.Get(2) != nil {
		t.Fatalf("out of range must be nil")
	}
}

func TestReplaceVisibleToParent(t *testing.T) {
	b := NewBuilder(Hints{})
	left := b.Exprs.NewInteger(sp(0, 1), 1, false)
	right := b.Exprs.NewInteger(sp(4, 5), 2, false)
	sum := b.Exprs.NewBinary(sp(0, 5), OpAdd, left, right)

	folded := b.Exprs.NewInteger(sp(0, 5), 3, false)
	b.Exprs.Replace(sum, folded)

	lit, ok := b.Exprs.Integer(sum)
	if !ok {
		t.Fatalf("slot %d is %s after replace", sum, b.Exprs.Kind(sum))
	}
	if lit.Value != 3 {
		t.Fatalf("value = %d", lit.Value)
	}
}

func TestWrapInsertsImplicitCast(t *testing.T) {
	b := NewBuilder(Hints{})
	val := b.Exprs.NewInteger(sp(0, 1), 1, false)
	b.Exprs.SetType(val, 3)
	st := b.Stmts.NewExpr(sp(0, 1), val)

	inner := b.Exprs.Wrap(val, 9)

	data, _ := b.Stmts.Expr(st)
	cast, ok := b.Exprs.Cast(data.Expr)
	if !ok {
		t.Fatalf("statement should now hold a cast, got %s", b.Exprs.Kind(data.Expr))
	}
	if !cast.Implicit || cast.Value != inner {
		t.Fatalf("unexpected cast payload %+v", cast)
	}
	if b.Exprs.TypeOf(data.Expr) != 9 {
		t.Fatalf("cast type = %d", b.Exprs.TypeOf(data.Expr))
	}
	if b.Exprs.TypeOf(inner) != 3 {
		t.Fatalf("inner keeps its type, got %d", b.Exprs.TypeOf(inner))
	}
	if _, ok := b.Exprs.Integer(inner); !ok {
		t.Fatalf("inner should be the literal")
	}
}

func TestZeroIsNeverNegative(t *testing.T) {
	b := NewBuilder(Hints{})
	id := b.Exprs.NewInteger(sp(0, 2), 0, true)
	lit, _ := b.Exprs.Integer(id)
	if lit.Negative {
		t.Fatalf("-0 must normalize")
	}
	neg := b.Exprs.NewInteger(sp(0, 2), 5, true)
	lit, _ = b.Exprs.Integer(neg)
	if lit.Int64() != -5 {
		t.Fatalf("Int64 = %d", lit.Int64())
	}
}

func TestCloneIsDeep(t *testing.T) {
	b := NewBuilder(Hints{})
	key := b.Exprs.NewVariable(sp(3, 5), "$k")
	m := b.Exprs.NewMap(sp(0, 6), "@m", key)
	assign := b.Stmts.NewAssignVar(sp(0, 10), b.Exprs.NewVariable(sp(0, 2), "$x"), m)
	blk := b.Exprs.NewBlock(sp(0, 12), []StmtID{assign}, NoExprID)
	b.Exprs.SetType(blk, types.TypeID(4))

	clone := b.CloneExpr(blk)
	if clone == blk {
		t.Fatalf("clone must allocate")
	}
	if b.Exprs.TypeOf(clone) != 4 {
		t.Fatalf("clone keeps type")
	}
	cb, _ := b.Exprs.Block(clone)
	if len(cb.Stmts) != 1 || cb.Stmts[0] == assign {
		t.Fatalf("statements must be copied: %v", cb.Stmts)
	}
	av, _ := b.Stmts.AssignVar(cb.Stmts[0])
	cm, ok := b.Exprs.Map(av.Value)
	if !ok || av.Value == m {
		t.Fatalf("map access must be copied")
	}
	if cm.Key == key || cm.Name != "@m" {
		t.Fatalf("key must be copied: %+v", cm)
	}

	// изменение копии не трогает оригинал
	cv, _ := b.Exprs.Variable(cm.Key)
	cv.Name = "$other"
	orig, _ := b.Exprs.Variable(key)
	if orig.Name != "$k" {
		t.Fatalf("original mutated: %q", orig.Name)
	}
}

func TestInspectVisitsBlocks(t *testing.T) {
	b := NewBuilder(Hints{})
	one := b.Exprs.NewInteger(sp(0, 1), 1, false)
	inner := b.Block(sp(0, 3), b.ExprStmt(one))
	cond := b.Exprs.NewBoolean(sp(0, 4), true)
	ifx := b.Exprs.NewIf(sp(0, 10), cond, inner, NoExprID)

	var kinds []ExprKind
	b.InspectExpr(ifx, func(id ExprID) bool {
		kinds = append(kinds, b.Exprs.Kind(id))
		return true
	})
	want := []ExprKind{ExprIf, ExprBoolean, ExprBlock, ExprInteger}
	if len(kinds) != len(want) {
		t.Fatalf("visited %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("visited %v, want %v", kinds, want)
		}
	}

	count := 0
	b.InspectExpr(ifx, func(id ExprID) bool {
		count++
		return b.Exprs.Kind(id) != ExprBlock
	})
	if count != 3 {
		t.Fatalf("pruned walk visited %d nodes", count)
	}
}

func TestBuilderItemsByKind(t *testing.T) {
	b := NewBuilder(Hints{})
	file := b.NewFile(sp(0, 100))
	b.PushItem(file, b.Items.NewMapDecl(sp(0, 10), "@m", "hash", 10))
	b.PushItem(file, b.Items.NewProbe(sp(11, 40), []AttachPoint{{Provider: ProbeKprobe, Func: "f"}}, NoExprID, b.Block(sp(20, 40))))
	b.PushItem(file, b.Items.NewSubprog(sp(41, 80), "f", nil, "void", b.Block(sp(60, 80))))

	if n := len(b.MapDecls(file)); n != 1 {
		t.Fatalf("map decls = %d", n)
	}
	probes := b.Probes(file)
	if len(probes) != 1 {
		t.Fatalf("probes = %d", len(probes))
	}
	p, _ := b.Items.Probe(probes[0])
	if p.Name() != "kprobe:f" {
		t.Fatalf("probe name = %q", p.Name())
	}
	if n := len(b.Subprogs(file)); n != 1 {
		t.Fatalf("subprogs = %d", n)
	}
}

func TestParseProbeTypeAliases(t *testing.T) {
	cases := map[string]ProbeType{
		"kprobe":     ProbeKprobe,
		"kr":         ProbeKretprobe,
		"kfunc":      ProbeFentry,
		"BEGIN":      ProbeSpecial,
		"Tracepoint": ProbeTracepoint,
		"nope":       ProbeInvalid,
	}
	for in, want := range cases {
		if got := ParseProbeType(in); got != want {
			t.Fatalf("ParseProbeType(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestBinaryOpRoundTrip(t *testing.T) {
	for op := OpAdd; op <= OpLogOr; op++ {
		got, ok := ParseBinaryOp(op.String())
		if !ok || got != op {
			t.Fatalf("%s did not round-trip", op)
		}
	}
	if !OpLe.IsComparison() || OpAdd.IsComparison() {
		t.Fatalf("IsComparison wrong")
	}
}
