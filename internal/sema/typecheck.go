package sema

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"tracec/internal/ast"
	"tracec/internal/diag"
	"tracec/internal/pass"
	"tracec/internal/source"
	"tracec/internal/trace"
	"tracec/internal/types"
)

// bpfMapTypes are the storage kinds a map declaration may name.
var bpfMapTypes = []string{"hash", "lruhash", "percpuhash", "percpulruhash", "array", "percpuarray"}

// formatRe matches one printf conversion; group 1 is an escaped percent,
// group 2 the conversion.
var formatRe = regexp.MustCompile(`%(?:(%)|[-+ #0]*[0-9]*(?:\.[0-9]+)?(?:hh|h|ll|l|z|j)?(r[xh]?|[a-zA-Z]))`)

// formatCalls take a printf-style format as first argument.
var formatCalls = map[string]bool{
	"printf": true, "errorf": true, "system": true, "cat": true, "debugf": true,
}

// maxDebugfArgs is the bpf_trace_printk limit.
const maxDebugfArgs = 3

// checker validates the resolved program once. It never changes types;
// the only rewrite is the dereference in front of field accesses on
// context pointers.
type checker struct {
	b      *ast.Builder
	exprs  *ast.Exprs
	in     *types.Interner
	opts   *Options
	file   ast.FileID
	rep    diag.Reporter
	bugs   bugReporter
	tables *Tables
}

func (s *Session) runTypeCheck(ctx context.Context, u *pass.Unit) error {
	tables, err := pass.Get(u, TypesResolved)
	if err != nil {
		return err
	}
	c := &checker{
		b:      u.Builder,
		exprs:  u.Builder.Exprs,
		in:     s.types,
		opts:   &s.opts,
		file:   u.File,
		rep:    u.Reporter(),
		bugs:   bugReporter{rep: u.Reporter(), strict: s.opts.PanicOnBug},
		tables: tables,
	}
	tracer := trace.FromContext(ctx)
	parent := trace.CurrentSpan(ctx).SpanID

	c.checkMaps()
	for _, item := range u.Builder.Subprogs(u.File) {
		if err := ctx.Err(); err != nil {
			return err
		}
		sp, _ := u.Builder.Items.Subprog(item)
		span := trace.Begin(tracer, trace.ScopeUnit, "function", parent).WithExtra("name", sp.Name)
		c.walk(sp.Body)
		span.End("")
	}
	for _, item := range u.Builder.Probes(u.File) {
		if err := ctx.Err(); err != nil {
			return err
		}
		probe, _ := u.Builder.Items.Probe(item)
		span := trace.Begin(tracer, trace.ScopeUnit, "probe", parent).WithExtra("name", probe.Name())
		if probe.Pred.IsValid() {
			c.walk(probe.Pred)
		}
		c.walk(probe.Body)
		span.End("")
	}
	pass.Mark(u, TypeChecked.Product())
	return nil
}

func (c *checker) label(t types.TypeID) string {
	return types.Label(c.in, t)
}

func (c *checker) errorf(code diag.Code, span source.Span, format string, args ...any) {
	diag.ReportError(c.rep, code, span, fmt.Sprintf(format, args...)).Emit()
}

func (c *checker) walk(root ast.ExprID) {
	c.b.InspectExpr(root, func(id ast.ExprID) bool {
		c.checkExpr(id)
		return true
	})
}

func (c *checker) checkExpr(id ast.ExprID) {
	switch c.exprs.Kind(id) {
	case ast.ExprCall:
		c.checkCall(id)
	case ast.ExprCast:
		c.checkCast(id)
	case ast.ExprField:
		if c.requireTyped(id) {
			c.checkField(id)
			c.derefField(id)
		}
	case ast.ExprBinary:
		if c.requireTyped(id) {
			c.checkBinary(id)
		}
	case ast.ExprUnary:
		if c.requireTyped(id) {
			c.checkUnary(id)
		}
	case ast.ExprIndex:
		if c.requireTyped(id) {
			c.checkIndex(id)
		}
	case ast.ExprTupleIndex:
		if c.requireTyped(id) {
			c.checkTupleIndex(id)
		}
	}
}

func (c *checker) requireTyped(id ast.ExprID) bool {
	if c.exprs.TypeOf(id) == types.None {
		c.bugs.bug(c.exprs.Span(id), "%s expression left untyped", c.exprs.Kind(id))
		return false
	}
	return true
}

func isIntegerLike(in *types.Interner, t types.TypeID) bool {
	return t != types.None && in.MustLookup(t).IsIntegerLike()
}

// truthy kinds may stand in a condition.
func truthy(k types.Kind) bool {
	switch k {
	case types.KindInt, types.KindBool, types.KindPointer, types.KindEnum:
		return true
	}
	return false
}

// checkBinary re-validates operand compatibility after resolution. Integer
// operands must have been promoted to one width.
func (c *checker) checkBinary(id ast.ExprID) {
	d, _ := c.exprs.Binary(id)
	lt, rt := c.exprs.TypeOf(d.Left), c.exprs.TypeOf(d.Right)
	span := c.exprs.Span(id)
	if lt == types.None || rt == types.None {
		c.bugs.bug(span, "operand of '%s' left untyped", d.Op)
		return
	}
	in := c.in
	lk, rk := in.Kind(lt), in.Kind(rt)
	incompatible := func() {
		c.bugs.bug(span, "operands of '%s' are incompatible: %s and %s", d.Op, c.label(lt), c.label(rt))
	}
	if d.Op.IsLogical() {
		if !truthy(lk) || !truthy(rk) {
			incompatible()
		}
		return
	}
	equality := d.Op == ast.OpEq || d.Op == ast.OpNe
	switch {
	case isIntegerLike(in, lt) && isIntegerLike(in, rt):
		if lk == types.KindInt && rk == types.KindInt && !d.Op.IsShift() && in.Size(lt) != in.Size(rt) {
			c.bugs.bug(span, "operands of '%s' were not promoted: %s and %s", d.Op, c.label(lt), c.label(rt))
		}
	case lk == types.KindPointer || rk == types.KindPointer:
		if (lk != types.KindPointer && !isIntegerLike(in, lt)) || (rk != types.KindPointer && !isIntegerLike(in, rt)) {
			incompatible()
		}
	case lk == types.KindString && rk == types.KindString:
		if !equality {
			incompatible()
		}
	case equality && in.Equal(lt, rt):
	default:
		incompatible()
	}
}

func (c *checker) checkUnary(id ast.ExprID) {
	d, _ := c.exprs.Unary(id)
	t := c.exprs.TypeOf(d.Operand)
	span := c.exprs.Span(id)
	if t == types.None {
		c.bugs.bug(span, "operand of '%s' left untyped", d.Op)
		return
	}
	k := c.in.Kind(t)
	ok := true
	switch d.Op {
	case ast.OpLogNot:
		ok = truthy(k)
	case ast.OpBitNot, ast.OpNeg:
		ok = isIntegerLike(c.in, t)
	case ast.OpDeref:
		ok = k == types.KindPointer && c.in.Kind(c.in.Elem(t)) != types.KindVoid
	case ast.OpIncr, ast.OpDecr:
		ok = k == types.KindInt || k == types.KindPointer
	}
	if !ok {
		c.bugs.bug(span, "operator '%s' applied to %s", d.Op, c.label(t))
	}
}

func (c *checker) checkIndex(id ast.ExprID) {
	d, _ := c.exprs.Index(id)
	target, idx := c.exprs.TypeOf(d.Target), c.exprs.TypeOf(d.Index)
	span := c.exprs.Span(id)
	if target == types.None || idx == types.None {
		c.bugs.bug(span, "index operand left untyped")
		return
	}
	if k := c.in.Kind(target); k != types.KindArray && k != types.KindPointer {
		c.bugs.bug(span, "index into %s", c.label(target))
		return
	}
	if !isIntegerLike(c.in, idx) {
		c.bugs.bug(span, "non-integer index %s", c.label(idx))
	}
}

func (c *checker) checkTupleIndex(id ast.ExprID) {
	d, _ := c.exprs.TupleIndex(id)
	t := c.exprs.TypeOf(d.Target)
	span := c.exprs.Span(id)
	if c.in.Kind(t) != types.KindTuple {
		c.bugs.bug(span, "tuple index on %s", c.label(t))
		return
	}
	if n := len(c.in.TupleElems(t)); int(d.Index) >= n {
		c.bugs.bug(span, "tuple index %d out of range for %d elements", d.Index, n)
	}
}

// checkField re-validates the field lookup: the record must be defined,
// carry the field, and pointer fields may only be tagged rcu.
func (c *checker) checkField(id ast.ExprID) {
	fd, _ := c.exprs.Field(id)
	in := c.in
	span := c.exprs.Span(id)
	rec := c.exprs.TypeOf(fd.Target)
	if tt := in.MustLookup(rec); tt.Kind == types.KindPointer && tt.IsCtxAccess() {
		rec = tt.Elem
	}
	info, ok := in.RecordInfo(rec)
	if !ok || !info.Defined {
		c.bugs.bug(span, "field '%s' accessed on %s", fd.Field, c.label(c.exprs.TypeOf(fd.Target)))
		return
	}
	field, ok := info.Field(fd.Field)
	if !ok {
		c.bugs.bug(span, "%s has no field '%s'", c.label(rec), fd.Field)
		return
	}
	if field.Tag != "" && field.Tag != "rcu" {
		c.bugs.bug(span, "field '%s' carries unsupported tag %s", fd.Field, field.Tag)
	}
}

// derefField makes the load through a context pointer explicit:
// `args.x` becomes `(*args).x`.
func (c *checker) derefField(id ast.ExprID) {
	fd, _ := c.exprs.Field(id)
	target := fd.Target
	tt := c.in.MustLookup(c.exprs.TypeOf(target))
	if tt.Kind != types.KindPointer || !tt.IsCtxAccess() {
		return
	}
	deref := c.exprs.NewUnary(c.exprs.Span(target), ast.OpDeref, target, false)
	c.exprs.SetType(deref, tt.Elem)
	// аллокация могла сдвинуть слот
	fd, _ = c.exprs.Field(id)
	fd.Target = deref
}

func (c *checker) checkCast(id ast.ExprID) {
	cd, _ := c.exprs.Cast(id)
	from, to := c.exprs.TypeOf(cd.Value), c.exprs.TypeOf(id)
	if from == types.None || to == types.None {
		c.bugs.bug(c.exprs.Span(id), "cast left untyped")
		return
	}
	switch {
	case cd.Implicit:
		if !implicitCastLegal(c.in, from, to) {
			c.bugs.bug(c.exprs.Span(id), "invalid implicit cast from %s to %s", c.label(from), c.label(to))
		}
	case cd.TypeName != "":
		if !explicitCastLegal(c.in, from, to) {
			c.errorf(diag.TypBadCast, c.exprs.Span(id), "Cannot cast from \"%s\" to \"%s\"", c.label(from), c.label(to))
		}
	}
}

func (c *checker) isSubprog(name string) bool {
	for _, item := range c.b.Subprogs(c.file) {
		if sp, ok := c.b.Items.Subprog(item); ok && sp.Name == name {
			return true
		}
	}
	return false
}

func (c *checker) checkCall(id ast.ExprID) {
	cd := *mustCall(c.exprs, id)
	span := c.exprs.Span(id)
	if c.exprs.TypeOf(id) == types.None {
		c.bugs.bug(span, "call to %s() left untyped", cd.Func)
		return
	}
	cs, ok := callSpecs[cd.Func]
	if !ok || c.isSubprog(cd.Func) {
		return
	}
	if _, bad := arityError(cd.Func, cs, len(cd.Args)); bad {
		c.bugs.bug(span, "%s() reached the type checker with %d arguments", cd.Func, len(cd.Args))
		return
	}
	for i, arg := range cd.Args {
		spec := cs.arg(i)
		if spec.kind == argMap {
			continue
		}
		t := c.exprs.TypeOf(arg)
		if spec.literal {
			if _, ok := evalConst(c.exprs, arg); !ok {
				c.errorf(diag.ChkLiteralRequired, c.exprs.Span(arg), "%s() expects a %s literal (%s provided)",
					cd.Func, spec.kind, c.label(t))
				continue
			}
		}
		if spec.kind != argAny && t != types.None && !argMatches(c.in, spec.kind, t) {
			c.errorf(diag.ChkArgType, c.exprs.Span(arg), "%s() only supports %s arguments (%s provided)",
				cd.Func, spec.kind, c.label(t))
		}
	}
	switch {
	case formatCalls[cd.Func]:
		c.checkFormat(id, cd.Func, cd.Args)
	case cd.Func == "print" && !c.isWholeMap(cd.Args[0]):
		if why := c.unprintable(c.exprs.TypeOf(cd.Args[0])); why != "" {
			c.errorf(diag.ChkNotPrintable, span, "print() doesn't support %s", why)
		}
	}
}

func (c *checker) isWholeMap(id ast.ExprID) bool {
	md, ok := c.exprs.Map(id)
	return ok && !md.Key.IsValid()
}

// unprintable names what makes t impossible to format, or returns "".
func (c *checker) unprintable(t types.TypeID) string {
	tt := c.in.MustLookup(t)
	switch tt.Kind {
	case types.KindNone, types.KindVoid:
		return "void values"
	case types.KindStackMode, types.KindTimestampMode:
		return tt.Kind.String() + " identifiers"
	case types.KindPointer:
		if tt.IsCtxAccess() {
			return "context pointers"
		}
	}
	if tt.IsAggregate() && !tt.IsCastableMap() {
		return c.label(t) + " values outside of a map"
	}
	return ""
}

// checkFormat matches the conversions of a format string with the values
// passed after it.
func (c *checker) checkFormat(id ast.ExprID, name string, args []ast.ExprID) {
	span := c.exprs.Span(id)
	format, ok := evalConst(c.exprs, args[0])
	if !ok || format.kind != constString {
		return
	}
	values := args[1:]
	if name == "debugf" && len(values) > maxDebugfArgs {
		c.errorf(diag.ChkArity, span, "debugf: cannot use more than %d conversion specifiers", maxDebugfArgs)
		return
	}
	var convs []string
	for _, m := range formatRe.FindAllStringSubmatch(format.s, -1) {
		if m[1] == "%" {
			continue
		}
		convs = append(convs, m[2])
	}
	for _, conv := range convs {
		if formatClass(conv) == "" {
			c.errorf(diag.ChkArgType, span, "%s: Unknown format string token: %%%s", name, conv)
			return
		}
	}
	switch {
	case len(values) < len(convs):
		c.errorf(diag.ChkArity, span, "%s: Not enough arguments for format string (%d supplied, %d expected)",
			name, len(values), len(convs))
		return
	case len(values) > len(convs):
		c.errorf(diag.ChkArity, span, "%s: Too many arguments for format string (%d supplied, %d expected)",
			name, len(values), len(convs))
		return
	}
	for i, conv := range convs {
		v := values[i]
		t := c.exprs.TypeOf(v)
		if why := c.unprintable(t); why != "" {
			c.errorf(diag.ChkNotPrintable, c.exprs.Span(v), "%s: %s are not printable", name, why)
			continue
		}
		tt := c.in.MustLookup(t)
		switch formatClass(conv) {
		case "integer":
			if !tt.IsIntegerLike() && tt.Kind != types.KindPointer && !tt.IsCastableMap() {
				c.errorf(diag.ChkArgType, c.exprs.Span(v), "%s: %%%s specifier expects a value of type integer (%s supplied)",
					name, conv, c.label(t))
			}
		case "buffer":
			if tt.Kind != types.KindBuffer {
				c.errorf(diag.ChkArgType, c.exprs.Span(v), "%s: %%%s specifier expects a value of type buffer (%s supplied)",
					name, conv, c.label(t))
			}
		}
	}
}

// formatClass groups conversions by the values they print.
func formatClass(conv string) string {
	switch conv {
	case "d", "i", "u", "x", "X", "o", "c", "p":
		return "integer"
	case "s":
		return "any"
	case "r", "rx", "rh":
		return "buffer"
	}
	return ""
}

// checkMaps validates map declarations against how the maps are used.
func (c *checker) checkMaps() {
	for _, name := range c.tables.MapNames() {
		m := c.tables.Maps[name]
		if !m.Decl.IsValid() {
			if m.Value == types.None {
				c.bugs.bug(m.Span, "map %s has no value type", name)
			}
			continue
		}
		span := c.b.Items.Get(m.Decl).Span
		if !c.opts.UnstableMapDecl {
			diag.ReportError(c.rep, diag.MapDeclDisabled, span, "Map declarations are not enabled by default.").
				WithHint("set `map_decl = true` in the [unstable] section of tracec.toml").
				Emit()
			continue
		}
		if !slices.Contains(bpfMapTypes, m.BpfType) {
			diag.ReportError(c.rep, diag.MapDeclInvalidType, span, "Invalid bpf map type: "+m.BpfType).
				WithHint("Valid map types: " + strings.Join(bpfMapTypes, ", ")).
				Emit()
			continue
		}
		if m.BpfType == "percpuarray" && m.MaxEntries != 1 {
			c.errorf(diag.MapDeclMaxEntries, span, "Max entries can only be 1 for map type percpuarray")
			continue
		}
		if !m.Used {
			diag.ReportWarning(c.rep, diag.MapUnused, span, "Unused map: "+name).Emit()
			continue
		}
		c.checkStorage(span, m)
	}
}

// checkStorage compares the declared storage with the one the map's
// value and key shape need.
func (c *checker) checkStorage(span source.Span, m *MapInfo) {
	if m.Value == types.None {
		return
	}
	keyed := m.Shape == ShapeKeyed
	aggregate := c.in.MustLookup(m.Value).IsAggregate()
	isArray := strings.HasSuffix(m.BpfType, "array")
	if keyed && isArray {
		c.errorf(diag.ChkMapStorage, span, "Map type %s does not support keys; declare %s as a hash map", m.BpfType, m.Name)
		return
	}
	if aggregate == strings.HasPrefix(m.BpfType, "percpu") {
		return
	}
	want := "hash"
	if !keyed {
		want = "array"
	}
	if aggregate {
		want = "percpu" + want
	}
	c.errorf(diag.MapDeclIncompat, span, "Incompatible map types. Type from declaration: %s. Type from value/key type: %s",
		m.BpfType, want)
}
