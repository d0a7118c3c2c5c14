package sema

import (
	"context"
	"slices"
	"strings"
	"testing"

	"tracec/internal/ast"
	"tracec/internal/diag"
	"tracec/internal/meta"
	"tracec/internal/pass"
	"tracec/internal/source"
	"tracec/internal/types"
)

const widenedMap = `
probes:
  - attach: BEGIN
    body:
      - {set: ["@x", pid]}
      - {set: ["@x", nsecs]}
      - {set: ["@y", 1]}
      - {set: ["@y", {"+": [pid, 2]}]}
`

// Resolving an already resolved tree must not allocate or rewrite nodes.
func TestResolveIsIdempotent(t *testing.T) {
	c := checkDoc(t, widenedMap, Options{})
	c.requireClean(t)

	b := c.prog.Builder
	before := append([]ast.Expr(nil), b.Exprs.Arena.Slice()...)
	var casts int
	for _, x := range before {
		if x.Kind == ast.ExprCast {
			casts++
		}
	}
	if casts == 0 {
		t.Fatal("first run inserted no casts")
	}

	bag := diag.NewBag(50)
	s := NewSession(Options{Types: c.res.Types, Provider: meta.Chain{}})
	u := pass.NewUnit(b, c.prog.File, bag)
	pass.Put(u, ContextTypes, c.res.Context)
	if err := s.runResolve(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	if bag.HasErrors() {
		t.Fatalf("second run reported: %s", bag.Items()[0].Message)
	}

	after := b.Exprs.Arena.Slice()
	if len(after) != len(before) {
		t.Fatalf("second run allocated %d nodes", len(after)-len(before))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("node %d changed: %+v -> %+v", i+1, before[i], after[i])
		}
	}
}

func (c checked) varInfo(t *testing.T, name string) *VarInfo {
	t.Helper()
	if c.res.Tables == nil {
		t.Fatalf("no tables")
	}
	for _, v := range c.res.Tables.Vars {
		if v.Name == name {
			return v
		}
	}
	t.Fatalf("variable %s not recorded", name)
	return nil
}

func (c checked) probeBody(t *testing.T, i int) *ast.BlockData {
	t.Helper()
	b := c.prog.Builder
	probe, _ := b.Items.Probe(b.Probes(c.prog.File)[i])
	blk, ok := b.Exprs.Block(probe.Body)
	if !ok {
		t.Fatalf("probe %d body is not a block", i)
	}
	return blk
}

// assignedValue returns the value of the n-th statement of the first probe,
// which must assign a map.
func (c checked) assignedValue(t *testing.T, n int) ast.ExprID {
	t.Helper()
	st := c.probeBody(t, 0).Stmts[n]
	d, ok := c.prog.Builder.Stmts.AssignMap(st)
	if !ok {
		t.Fatalf("statement %d is %s", n, c.prog.Builder.Stmts.Kind(st))
	}
	return d.Value
}

func TestContextLiftedIntoLocal(t *testing.T) {
	c := checkDoc(t, `
probes:
  - attach: fentry:vfs_read
    body:
      - {set: ["@a", {field: [args, count]}]}
      - {set: ["@b", {field: [args, count]}]}
`, Options{Provider: catalog(t)})
	c.requireClean(t)

	b := c.prog.Builder
	blk := c.probeBody(t, 0)
	if len(blk.Stmts) < 3 {
		t.Fatalf("body has %d statements", len(blk.Stmts))
	}
	assign, ok := b.Stmts.AssignVar(blk.Stmts[0])
	if !ok {
		t.Fatalf("first statement is %s", b.Stmts.Kind(blk.Stmts[0]))
	}
	if vd, _ := b.Exprs.Variable(assign.Var); vd == nil || vd.Name != ctxVarName {
		t.Fatalf("lifted target = %+v", vd)
	}
	if bd, _ := b.Exprs.Builtin(assign.Value); bd == nil || bd.Name != builtinCtx {
		t.Fatalf("lifted value is %s", b.Exprs.Kind(assign.Value))
	}

	probe, _ := b.Items.Probe(b.Probes(c.prog.File)[0])
	var builtins, locals int
	b.InspectExpr(probe.Body, func(id ast.ExprID) bool {
		if bd, ok := b.Exprs.Builtin(id); ok && bd.Name == builtinCtx {
			builtins++
		}
		if vd, ok := b.Exprs.Variable(id); ok && vd.Name == ctxVarName {
			locals++
		}
		return true
	})
	if builtins != 1 {
		t.Fatalf("%d ctx builtins left in the body", builtins)
	}
	// цель присваивания и оба чтения
	if locals != 3 {
		t.Fatalf("%d ctx locals, want 3", locals)
	}
	ctx := c.res.Types.MustLookup(b.Exprs.TypeOf(assign.Var))
	if ctx.Kind != types.KindPointer || !ctx.IsCtxAccess() {
		t.Fatalf("ctx local typed %s", types.Label(c.res.Types, b.Exprs.TypeOf(assign.Var)))
	}
}

func TestNoLiftWithoutContext(t *testing.T) {
	c := checkDoc(t, probeDoc(`      - {set: ["@a", 1]}`+"\n"), Options{})
	c.requireClean(t)
	blk := c.probeBody(t, 0)
	if _, ok := c.prog.Builder.Stmts.AssignMap(blk.Stmts[0]); !ok {
		t.Fatalf("first statement is %s", c.prog.Builder.Stmts.Kind(blk.Stmts[0]))
	}
}

func TestMapLoopTuple(t *testing.T) {
	c := checkDoc(t, `
probes:
  - attach: BEGIN
    body:
      - {set: [{"@m": pid}, {cast: [int32, 5]}]}
      - {set: [$base, {cast: [int64, 3]}]}
      - {for: [$kv, "@m", [{set: ["@out", {"+": [$base, {tindex: [$kv, 1]}]}]}]]}
`, Options{Features: AllFeatures()})
	c.requireClean(t)
	in := c.res.Types
	m := c.mapInfo(t, "@m")

	kv := c.varInfo(t, "$kv")
	elems := in.TupleElems(kv.Type)
	if len(elems) != 2 || elems[0] != m.KeyType(in) || elems[1] != m.ValueType(in) {
		t.Fatalf("$kv = %s", types.Label(in, kv.Type))
	}
	if got := types.Label(in, c.mapInfo(t, "@out").ValueType(in)); got != "int64" {
		t.Fatalf("@out stored as %s", got)
	}

	var loop *ast.ForData
	for _, st := range c.probeBody(t, 0).Stmts {
		if fd, ok := c.prog.Builder.Stmts.For(st); ok {
			loop = fd
		}
	}
	if loop == nil {
		t.Fatal("no for statement")
	}
	if !slices.Equal(loop.FreeVars, []string{"$base"}) {
		t.Fatalf("free variables = %v", loop.FreeVars)
	}
	rec, ok := in.RecordInfo(loop.CtxType)
	if !ok || len(rec.Fields) != 1 {
		t.Fatalf("loop context = %s", types.Label(in, loop.CtxType))
	}
	f := rec.Fields[0]
	ptr := in.MustLookup(f.Type)
	if f.Name != "$base" || ptr.Kind != types.KindPointer || ptr.AS != types.ASBpf || ptr.Elem != in.Builtins().Int64 {
		t.Fatalf("loop context field %s: %s", f.Name, types.Label(in, f.Type))
	}
}

func TestMapLoopWithoutCaptures(t *testing.T) {
	c := checkDoc(t, `
probes:
  - attach: BEGIN
    body:
      - {set: [{"@m": 1}, 2]}
      - {for: [$kv, "@m", [{call: [print, {tindex: [$kv, 0]}]}]]}
`, Options{Features: AllFeatures()})
	c.requireClean(t)
	for _, st := range c.probeBody(t, 0).Stmts {
		fd, ok := c.prog.Builder.Stmts.For(st)
		if !ok {
			continue
		}
		if len(fd.FreeVars) != 0 {
			t.Fatalf("free variables = %v", fd.FreeVars)
		}
		rec, ok := c.res.Types.RecordInfo(fd.CtxType)
		if !ok || len(rec.Fields) != 0 {
			t.Fatalf("loop context = %s", types.Label(c.res.Types, fd.CtxType))
		}
		return
	}
	t.Fatal("no for statement")
}

func TestMapLoopNeedsFeature(t *testing.T) {
	c := checkDoc(t, `
probes:
  - attach: BEGIN
    body:
      - {set: [{"@m": 1}, 2]}
      - {for: [$kv, "@m", [{call: [print, 1]}]]}
`, Options{})
	c.requireOne(t, diag.ChkFeatureMissing, "for_each_map_elem")
}

func TestTernaryArmsPromote(t *testing.T) {
	t.Run("Casts", func(t *testing.T) {
		c := checkDoc(t, probeDoc(`      - {set: ["@t", {if: [pid, {cast: [int8, 1]}, {cast: [int64, 2]}]}]}`+"\n"), Options{})
		c.requireClean(t)
		exprs := c.prog.Builder.Exprs
		in := c.res.Types
		id := firstOfKind(t, exprs, ast.ExprIf)
		d, _ := exprs.If(id)
		if got := types.Label(in, exprs.TypeOf(id)); got != "int64" {
			t.Fatalf("ternary typed %s", got)
		}
		// узкая ветка оборачивается неявным приведением
		cd, ok := exprs.Cast(d.Then)
		if !ok || !cd.Implicit || exprs.TypeOf(d.Then) != in.Builtins().Int64 {
			t.Fatalf("then arm is %s %s", exprs.Kind(d.Then), types.Label(in, exprs.TypeOf(d.Then)))
		}
		inner, ok := exprs.Cast(cd.Value)
		if !ok || inner.Implicit || exprs.TypeOf(cd.Value) != in.Builtins().Int8 {
			t.Fatalf("explicit cast lost: %s", exprs.Kind(cd.Value))
		}
		if ecd, ok := exprs.Cast(d.Else); !ok || ecd.Implicit {
			t.Fatalf("else arm rewrapped")
		}
	})
	t.Run("Literal", func(t *testing.T) {
		c := checkDoc(t, probeDoc(`      - {set: [$t, {if: [pid, 1, {cast: [int16, 2]}]}]}`+"\n"), Options{})
		c.requireClean(t)
		if got := types.Label(c.res.Types, c.varInfo(t, "$t").Type); got != "int16" {
			t.Fatalf("$t typed %s", got)
		}
		exprs := c.prog.Builder.Exprs
		in := c.res.Types
		d, _ := exprs.If(firstOfKind(t, exprs, ast.ExprIf))
		// литерал перетипизируется на месте
		if _, ok := exprs.Integer(d.Then); !ok || exprs.TypeOf(d.Then) != in.Builtins().Int16 {
			t.Fatalf("then arm is %s %s", exprs.Kind(d.Then), types.Label(in, exprs.TypeOf(d.Then)))
		}
	})
	t.Run("Mismatch", func(t *testing.T) {
		c := checkDoc(t, probeDoc(`      - {set: ["@t", {if: [pid, 1, "s"]}]}`+"\n"), Options{})
		c.requireOne(t, diag.TypTernaryMismatch, "Ternary operator must return the same type")
	})
}

const layoutCatalog = `
structs:
  - name: struct inner
    size: 16
    fields:
      - {name: flags, type: "unsigned short", offset: 0}
      - {name: port, type: int, offset: 4}
  - name: struct sock
    size: 32
    fields:
      - {name: family, type: "unsigned short", offset: 0}
      - {name: inner, type: "struct inner", offset: 8}
`

func layout(t *testing.T) meta.Provider {
	t.Helper()
	c, err := meta.DecodeCatalog(strings.NewReader(layoutCatalog))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func TestSizeofOffsetofFold(t *testing.T) {
	c := checkDoc(t, `
probes:
  - attach: BEGIN
    body:
      - {set: ["@s", {sizeof: "struct sock"}]}
      - {set: ["@o", {offsetof: ["struct sock", inner, port]}]}
      - {set: [$x, {cast: [int16, 1]}]}
      - {set: ["@v", {sizeof: $x}]}
`, Options{Provider: layout(t)})
	c.requireClean(t)
	exprs := c.prog.Builder.Exprs
	for _, tt := range []struct {
		stmt int
		want uint64
	}{{0, 32}, {1, 12}, {3, 2}} {
		v := c.assignedValue(t, tt.stmt)
		for {
			cd, ok := exprs.Cast(v)
			if !ok || !cd.Implicit {
				break
			}
			v = cd.Value
		}
		lit, ok := exprs.Integer(v)
		if !ok {
			t.Fatalf("statement %d value is %s", tt.stmt, exprs.Kind(v))
		}
		if lit.Value != tt.want {
			t.Fatalf("statement %d folded to %d, want %d", tt.stmt, lit.Value, tt.want)
		}
	}
}

func TestSizeofOffsetofErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
		code diag.Code
		msg  string
	}{
		{"unknown struct", `{sizeof: "struct nope"}`, diag.TypUnknownStruct, "Unknown struct/union: 'struct nope'"},
		{"unknown field", `{offsetof: ["struct sock", nope]}`, diag.TypUnknownField, "has no field named 'nope'"},
		{"through scalar", `{offsetof: ["struct sock", family, x]}`, diag.TypBadFieldAccess, "is not a record type"},
		{"unknown type", `{sizeof: mystery_t}`, diag.TypUnknownType, "Cannot resolve unknown type \"mystery_t\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := checkDoc(t, probeDoc(`      - {set: ["@s", `+tt.expr+`]}`+"\n"), Options{Provider: layout(t)})
			c.requireOne(t, tt.code, tt.msg)
		})
	}
}

// A comptime condition that depends on a map typed later in the program is
// undecided on the first visit; deciding it resets convergence, so the run
// takes more iterations than one where it is decided right away.
func TestComptimeIfDecidedLate(t *testing.T) {
	const branch = `{if: [{comptime: {"==": [{sizeof: "@m"}, 8]}}, [{set: ["@r", 1]}], [{set: ["@r", "s"]}]]}`
	late := checkDoc(t, `
probes:
  - attach: BEGIN
    body:
      - `+branch+`
  - attach: END
    body:
      - {set: ["@m", {cast: [uint64, 1]}]}
`, Options{})
	late.requireClean(t)
	early := checkDoc(t, `
probes:
  - attach: BEGIN
    body:
      - {set: ["@m", {cast: [uint64, 1]}]}
      - `+branch+`
`, Options{})
	early.requireClean(t)

	for _, c := range []checked{late, early} {
		if k := c.res.Types.Kind(c.mapInfo(t, "@r").ValueType(c.res.Types)); k != types.KindInt {
			t.Fatalf("@r value kind = %v, the else arm was taken", k)
		}
		if n := len(c.withCode(diag.BugInternal)); n != 0 {
			t.Fatalf("%d internal errors", n)
		}
	}
	if late.res.Tables.Iterations <= early.res.Tables.Iterations {
		t.Fatalf("iterations: late %d, early %d", late.res.Tables.Iterations, early.res.Tables.Iterations)
	}
	// невыбранная ветка удалена из дерева
	exprs := late.prog.Builder.Exprs
	probe, _ := late.prog.Builder.Items.Probe(late.prog.Builder.Probes(late.prog.File)[0])
	late.prog.Builder.InspectExpr(probe.Body, func(id ast.ExprID) bool {
		if s, ok := exprs.StringLit(id); ok && s.Value == "s" {
			t.Errorf("discarded arm still reachable")
		}
		if exprs.Kind(id) == ast.ExprIf {
			t.Errorf("comptime if survived resolution")
		}
		return true
	})
}

// requireElementCasts checks that value was rebuilt as a literal whose
// elements are implicit casts over reads of the variable src.
func requireElementCasts(t *testing.T, c checked, value ast.ExprID, kind ast.ExprKind, src string) {
	t.Helper()
	exprs, in := c.prog.Builder.Exprs, c.res.Types
	var elems []ast.ExprID
	var want []types.TypeID
	switch kind {
	case ast.ExprTuple:
		td, ok := exprs.Tuple(value)
		if !ok {
			t.Fatalf("value is %s, want a tuple", exprs.Kind(value))
		}
		elems = td.Elems
		want = in.TupleElems(exprs.TypeOf(value))
	case ast.ExprRecord:
		rd, ok := exprs.Record(value)
		if !ok {
			t.Fatalf("value is %s, want a record", exprs.Kind(value))
		}
		info, _ := in.RecordInfo(exprs.TypeOf(value))
		for _, f := range rd.Fields {
			elems = append(elems, f.Expr)
			ft, ok := info.Field(f.Name)
			if !ok {
				t.Fatalf("field %s missing from %s", f.Name, types.Label(in, exprs.TypeOf(value)))
			}
			want = append(want, ft.Type)
		}
	}
	if len(elems) != 2 || len(want) != 2 {
		t.Fatalf("elements %d, types %d", len(elems), len(want))
	}
	for i, e := range elems {
		cd, ok := exprs.Cast(e)
		if !ok || !cd.Implicit {
			t.Fatalf("element %d is %s, want an implicit cast", i, exprs.Kind(e))
		}
		if exprs.TypeOf(e) != want[i] {
			t.Fatalf("element %d: %s, want %s", i, types.Label(in, exprs.TypeOf(e)), types.Label(in, want[i]))
		}
		read := cd.Value
		var target ast.ExprID
		if ti, ok := exprs.TupleIndex(read); ok {
			target = ti.Target
		} else if fd, ok := exprs.Field(read); ok {
			target = fd.Target
		} else {
			t.Fatalf("element %d reads through %s", i, exprs.Kind(read))
		}
		if v, ok := exprs.Variable(target); !ok || v.Name != src {
			t.Fatalf("element %d reads %s", i, exprs.Kind(target))
		}
	}
}

func (c checked) assignedVarValue(t *testing.T, n int) ast.ExprID {
	t.Helper()
	st := c.probeBody(t, 0).Stmts[n]
	d, ok := c.prog.Builder.Stmts.AssignVar(st)
	if !ok {
		t.Fatalf("statement %d is %s", n, c.prog.Builder.Stmts.Kind(st))
	}
	return d.Value
}

func TestTupleReadWidenedPerElement(t *testing.T) {
	c := checkDoc(t, `
probes:
  - attach: BEGIN
    body:
      - {set: [$w, {tuple: [nsecs, nsecs]}]}
      - {set: [$n, {tuple: [pid, pid]}]}
      - {set: [$w, $n]}
      - {set: ["@m", $n]}
`, Options{})
	c.requireClean(t)
	requireElementCasts(t, c, c.assignedVarValue(t, 2), ast.ExprTuple, "$n")
	requireElementCasts(t, c, c.assignedValue(t, 3), ast.ExprTuple, "$n")
	in := c.res.Types
	if got := c.prog.Builder.Exprs.TypeOf(c.assignedValue(t, 3)); got != c.mapInfo(t, "@m").ValueType(in) {
		t.Fatalf("@m value %s", types.Label(in, got))
	}
}

func TestRecordReadWidenedPerField(t *testing.T) {
	c := checkDoc(t, `
probes:
  - attach: BEGIN
    body:
      - {set: [$w, {record: {a: nsecs, b: nsecs}}]}
      - {set: [$n, {record: {b: pid, a: pid}}]}
      - {set: [$w, $n]}
`, Options{})
	c.requireClean(t)
	requireElementCasts(t, c, c.assignedVarValue(t, 2), ast.ExprRecord, "$n")
}

func TestRepeatableReads(t *testing.T) {
	exprs := ast.NewExprs(16)
	r := &resolver{exprs: exprs}
	sp := source.NoSpan
	pid := exprs.NewBuiltin(sp, "pid")
	cases := []struct {
		name string
		id   ast.ExprID
		want bool
	}{
		{"variable", exprs.NewVariable(sp, "$n"), true},
		{"scalar map", exprs.NewMap(sp, "@m", ast.NoExprID), true},
		{"literal key", exprs.NewMap(sp, "@m", exprs.NewInteger(sp, 1, false)), true},
		{"builtin key", exprs.NewMap(sp, "@m", pid), true},
		{"computed key", exprs.NewMap(sp, "@m", exprs.NewBinary(sp, ast.OpAdd, pid, exprs.NewInteger(sp, 1, false))), false},
		{"call", exprs.NewCall(sp, "kstack", nil), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.repeatable(tc.id); got != tc.want {
				t.Fatalf("repeatable = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestComptimeFoldsBitwise(t *testing.T) {
	c := checkDoc(t, `
probes:
  - attach: BEGIN
    body:
      - {set: ["@and", {comptime: {"&": [6, 3]}}]}
      - {set: ["@or", {comptime: {"|": [6, 3]}}]}
      - {set: ["@xor", {comptime: {"^": [6, 3]}}]}
      - {set: ["@shl", {comptime: {"<<": [1, 4]}}]}
`, Options{})
	c.requireClean(t)
	exprs := c.prog.Builder.Exprs
	for i, want := range []uint64{2, 7, 5, 16} {
		v := c.assignedValue(t, i)
		for {
			cd, ok := exprs.Cast(v)
			if !ok || !cd.Implicit {
				break
			}
			v = cd.Value
		}
		ct, ok := exprs.Comptime(v)
		if !ok {
			t.Fatalf("statement %d value is %s", i, exprs.Kind(v))
		}
		lit, ok := exprs.Integer(ct.Expr)
		if !ok {
			t.Fatalf("statement %d not folded: %s", i, exprs.Kind(ct.Expr))
		}
		if lit.Value != want {
			t.Fatalf("statement %d folded to %d, want %d", i, lit.Value, want)
		}
	}
}
