package sema

import (
	"context"
	"fmt"
	"strings"

	"tracec/internal/ast"
	"tracec/internal/diag"
	"tracec/internal/meta"
	"tracec/internal/pass"
	"tracec/internal/source"
	"tracec/internal/trace"
	"tracec/internal/types"
)

// ResolvedContext describes what a probe receives: the raw context and,
// when known, the typed argument record.
type ResolvedContext struct {
	Provider ast.ProbeType
	// Ctx is the type of the ctx builtin, a pointer flagged as context access.
	Ctx types.TypeID
	// Args is the argument record read through registers, or types.None when
	// arguments live directly in the record Ctx points to.
	Args types.TypeID
}

// ContextInfo is the product of context resolution.
type ContextInfo struct {
	Probes map[ast.ItemID]*ResolvedContext
}

// Of returns the resolved context of a probe, nil when the probe never
// touched its context.
func (c *ContextInfo) Of(item ast.ItemID) *ResolvedContext {
	if c == nil {
		return nil
	}
	return c.Probes[item]
}

// contextError is a failed resolution; reported once per probe.
type contextError struct {
	code diag.Code
	msg  string
}

// resolveAttachPoint maps one attach point to its context.
func (s *Session) resolveAttachPoint(ap *ast.AttachPoint) (ResolvedContext, *contextError) {
	in := s.types
	im := s.imp
	rc := ResolvedContext{Provider: ap.Provider}
	as := addrSpaceOf(ap.Provider)

	ctxPtr := func(rec types.TypeID, space types.AddrSpace) types.TypeID {
		return in.WithFlags(in.Pointer(rec, space), types.FlagCtxAccess)
	}
	ptRegs := func() types.TypeID {
		id, err := im.Struct("struct pt_regs")
		if err != nil {
			return in.LookupOrAddStruct("struct pt_regs")
		}
		return id
	}

	switch ap.Provider {
	case ast.ProbeFentry, ast.ProbeFexit:
		fn, err := im.Func(ap.Func)
		if err != nil {
			return rc, &contextError{code: diag.CtxNoDebugInfo, msg: fmt.Sprintf("No BTF found for function '%s'", ap.Func)}
		}
		rec, err := im.ArgsRecord(fn, ap.Provider == ast.ProbeFexit)
		if err != nil {
			return rc, &contextError{code: diag.CtxUnknownStruct, msg: err.Error()}
		}
		rc.Ctx = ctxPtr(in.WithFlags(rec, types.FlagFuncArg), as)
	case ast.ProbeRawTracepoint:
		fn, err := im.Func("btf_trace_" + ap.Func)
		if err != nil {
			return rc, &contextError{code: diag.CtxNoDebugInfo, msg: fmt.Sprintf("No BTF found for raw tracepoint '%s'", ap.Func)}
		}
		// первый параметр btf_trace_* - служебный void *__data
		if len(fn.Params) > 0 && fn.Params[0].Type.Kind == meta.KindPointer {
			trimmed := *fn
			trimmed.Params = fn.Params[1:]
			fn = &trimmed
		}
		rec, err := im.ArgsRecord(fn, false)
		if err != nil {
			return rc, &contextError{code: diag.CtxUnknownStruct, msg: err.Error()}
		}
		rc.Ctx = ctxPtr(in.WithFlags(rec, types.FlagFuncArg), as)
	case ast.ProbeTracepoint:
		format, err := im.provider.TracepointFormat(ap.Target, ap.Func)
		if err != nil {
			code := diag.CtxTracepointFormat
			if isNotFound(err) {
				code = diag.CtxNoDebugInfo
			}
			return rc, &contextError{code: code, msg: fmt.Sprintf("Unable to read the format of tracepoint %s:%s: %v", ap.Target, ap.Func, err)}
		}
		rec, err := s.defineTracepoint(format)
		if err != nil {
			return rc, &contextError{code: diag.CtxTracepointFormat, msg: err.Error()}
		}
		rc.Ctx = ctxPtr(in.WithFlags(rec, types.FlagTPArg), as)
	case ast.ProbeUprobe, ast.ProbeUretprobe:
		rc.Ctx = ctxPtr(ptRegs(), types.ASKernel)
		fn, err := im.provider.DebugArgs(ap.Target, ap.Func)
		if err != nil {
			return rc, nil
		}
		rec, err := im.ArgsRecord(fn, ap.Provider == ast.ProbeUretprobe)
		if err != nil {
			return rc, &contextError{code: diag.CtxUnknownStruct, msg: err.Error()}
		}
		rc.Args = in.WithFlags(s.retagPointers(rec, types.ASUser), types.FlagFuncArg)
	case ast.ProbeKprobe, ast.ProbeKretprobe:
		rc.Ctx = ctxPtr(ptRegs(), types.ASKernel)
		if fn, err := im.Func(ap.Func); err == nil && ap.Provider == ast.ProbeKprobe {
			if rec, err := im.ArgsRecord(fn, false); err == nil {
				rc.Args = in.WithFlags(s.retagPointers(rec, types.ASKernel), types.FlagFuncArg)
			}
		}
	case ast.ProbeUsdt:
		rc.Ctx = ctxPtr(ptRegs(), types.ASKernel)
	case ast.ProbeWatchpoint, ast.ProbeAsyncWatchpoint, ast.ProbeHardware,
		ast.ProbeSoftware, ast.ProbeInterval, ast.ProbeProfile:
		perf, err := im.Struct("struct bpf_perf_event_data")
		if err != nil {
			perf = in.LookupOrAddStruct("struct bpf_perf_event_data")
		}
		rc.Ctx = ctxPtr(perf, types.ASKernel)
	case ast.ProbeIter:
		rec, err := im.Struct(meta.IterStructName(ap.Func))
		if err != nil {
			return rc, &contextError{code: diag.CtxUnknownStruct, msg: fmt.Sprintf("Unknown iterator: %s", ap.Func)}
		}
		rc.Ctx = ctxPtr(rec, types.ASKernel)
	default:
		rc.Ctx = in.WithFlags(in.Builtins().VoidPtr, types.FlagCtxAccess)
	}
	return rc, nil
}

// defineTracepoint registers a tracepoint record. Pointers whose address
// space cannot be told from the format are taken to be kernel pointers.
func (s *Session) defineTracepoint(format *meta.Struct) (types.TypeID, error) {
	id := s.types.LookupOrAddStruct(format.Name)
	if info, ok := s.types.RecordInfo(id); ok && info.Defined {
		return id, nil
	}
	fields, err := s.imp.fields(format.Fields)
	if err != nil {
		return types.None, fmt.Errorf("%s: %w", format.Name, err)
	}
	for i := range fields {
		if s.types.Kind(fields[i].Type) == types.KindPointer {
			fields[i].Type = s.types.WithAS(fields[i].Type, types.ASKernel)
		}
	}
	s.types.DefineStruct(id, fields, format.Size)
	return id, nil
}

// retagPointers returns an anonymous record with pointer fields moved into as.
func (s *Session) retagPointers(rec types.TypeID, as types.AddrSpace) types.TypeID {
	info, ok := s.types.RecordInfo(rec)
	if !ok {
		return rec
	}
	fields := append([]types.Field(nil), info.Fields...)
	for i := range fields {
		fields[i].Type = s.types.WithAS(fields[i].Type, as)
	}
	return s.types.AnonRecord(fields)
}

// sameLayout compares two argument records field by field.
func sameLayout(in *types.Interner, a, b types.TypeID) bool {
	if a == b {
		return true
	}
	ra, okA := in.RecordInfo(a)
	rb, okB := in.RecordInfo(b)
	if !okA || !okB || len(ra.Fields) != len(rb.Fields) {
		return false
	}
	for i := range ra.Fields {
		fa, fb := ra.Fields[i], rb.Fields[i]
		if fa.Name != fb.Name || fa.Offset != fb.Offset || !in.Equal(fa.Type, fb.Type) {
			return false
		}
	}
	return true
}

// ctxResolver rewrites context builtins of one file.
type ctxResolver struct {
	s     *Session
	b     *ast.Builder
	rep   diag.Reporter
	bugs  bugReporter
	info  *ContextInfo
	item  ast.ItemID
	probe *ast.ProbeItem
	inFor int
	// failed is set once resolution of the current probe reported an error.
	failed bool
}

func (s *Session) runContext(ctx context.Context, u *pass.Unit) error {
	c := &ctxResolver{
		s:    s,
		b:    u.Builder,
		rep:  u.Reporter(),
		bugs: bugReporter{rep: u.Reporter(), strict: s.opts.PanicOnBug},
		info: &ContextInfo{Probes: make(map[ast.ItemID]*ResolvedContext)},
	}
	tracer := trace.FromContext(ctx)
	parent := trace.CurrentSpan(ctx).SpanID
	for _, item := range u.Builder.Probes(u.File) {
		probe, _ := u.Builder.Items.Probe(item)
		span := trace.Begin(tracer, trace.ScopeUnit, "probe", parent).WithExtra("name", probe.Name())
		c.item, c.probe, c.failed = item, probe, false
		if probe.Pred.IsValid() {
			c.walkExpr(probe.Pred)
		}
		c.walkExpr(probe.Body)
		if u.Bag.Ok() {
			c.lift()
			c.checkLeftovers()
		}
		span.End("")
	}
	// вне проб контекста нет
	c.item, c.probe = ast.NoItemID, nil
	for _, item := range u.Builder.Subprogs(u.File) {
		sp, _ := u.Builder.Items.Subprog(item)
		c.walkExpr(sp.Body)
	}
	pass.Put(u, ContextTypes, c.info)
	return nil
}

// ensure resolves the current probe's context on first use.
func (c *ctxResolver) ensure(span source.Span, builtin string) *ResolvedContext {
	if rc := c.info.Probes[c.item]; rc != nil {
		return rc
	}
	if c.failed {
		return nil
	}
	if c.probe == nil {
		c.failed = true
		return nil
	}
	aps := c.probe.AttachPoints
	if len(aps) == 0 {
		c.failed = true
		return nil
	}
	for i := 1; i < len(aps); i++ {
		if aps[i].Provider != aps[0].Provider {
			c.failed = true
			diag.ReportError(c.rep, diag.CtxAmbiguousProbe, span,
				fmt.Sprintf("The %s builtin is ambiguous: probe attaches to both '%s' and '%s'", builtin, aps[0].Provider, aps[i].Provider)).
				WithNote(aps[i].Span, "attach point of a different type").Emit()
			return nil
		}
	}
	first, cerr := c.s.resolveAttachPoint(&aps[0])
	if cerr != nil {
		c.failed = true
		diag.ReportError(c.rep, cerr.code, span, cerr.msg).WithNote(aps[0].Span, "attach point "+aps[0].Name()).Emit()
		return nil
	}
	for i := 1; i < len(aps); i++ {
		other, cerr := c.s.resolveAttachPoint(&aps[i])
		if cerr != nil {
			c.failed = true
			diag.ReportError(c.rep, cerr.code, span, cerr.msg).WithNote(aps[i].Span, "attach point "+aps[i].Name()).Emit()
			return nil
		}
		ctxA, ctxB := c.s.types.Elem(first.Ctx), c.s.types.Elem(other.Ctx)
		if !sameLayout(c.s.types, ctxA, ctxB) || (first.Args != other.Args && !sameLayout(c.s.types, first.Args, other.Args)) {
			c.failed = true
			diag.ReportError(c.rep, diag.CtxArgsIncompatible, span, "Probe has attach points with mixed arguments").
				WithNote(aps[i].Span, aps[i].Name()).Emit()
			return nil
		}
	}
	rc := first
	c.info.Probes[c.item] = &rc
	return &rc
}

func (c *ctxResolver) walkStmt(id ast.StmtID) {
	if f, ok := c.b.Stmts.For(id); ok {
		loop := *f
		for _, e := range []ast.ExprID{loop.Var, loop.Iterable, loop.RangeStart, loop.RangeEnd} {
			if e.IsValid() {
				c.walkExpr(e)
			}
		}
		c.inFor++
		c.walkExpr(loop.Body)
		c.inFor--
		return
	}
	for _, e := range c.b.StmtExprs(id) {
		c.walkExpr(e)
	}
}

func (c *ctxResolver) walkExpr(id ast.ExprID) {
	exprs := c.b.Exprs
	switch exprs.Kind(id) {
	case ast.ExprInvalid:
		return
	case ast.ExprField:
		fd := *mustField(exprs, id)
		if bd, ok := exprs.Builtin(fd.Target); ok && bd.Name == builtinArgs {
			if c.forbidden(id, builtinArgs) {
				return
			}
			c.rewriteArgsField(id, fd.Field)
			return
		}
		c.walkExpr(fd.Target)
		return
	case ast.ExprBuiltin:
		bd, _ := exprs.Builtin(id)
		name := bd.Name
		if name != builtinRetval && !isContextBuiltin(name) {
			return
		}
		if c.forbidden(id, name) {
			return
		}
		switch name {
		case builtinCtx:
			c.ensure(exprs.Span(id), name)
		case builtinArgs:
			c.rewriteBareArgs(id)
		case builtinRawRet:
			c.rewriteRetval(id)
		case builtinRetval:
			if probeKind(c.probe) == ast.ProbeFexit {
				c.ensure(exprs.Span(id), name)
			}
		default:
			n, _ := argIndex(name)
			c.rewriteArgN(id, n)
		}
		return
	case ast.ExprBlock:
		blk, _ := exprs.Block(id)
		data := *blk
		for _, st := range data.Stmts {
			c.walkStmt(st)
		}
		if data.Value.IsValid() {
			c.walkExpr(data.Value)
		}
		return
	}
	for _, child := range c.b.ExprChildren(id) {
		c.walkExpr(child)
	}
}

func mustField(exprs *ast.Exprs, id ast.ExprID) *ast.FieldData {
	fd, _ := exprs.Field(id)
	return fd
}

// forbidden reports context builtins that cannot be used at this position.
func (c *ctxResolver) forbidden(id ast.ExprID, name string) bool {
	span := c.b.Exprs.Span(id)
	if c.probe == nil {
		diag.ReportError(c.rep, diag.CtxBuiltinNotAllowed, span,
			fmt.Sprintf("Builtin %s not supported outside probe", name)).Emit()
		return true
	}
	if c.inFor > 0 {
		diag.ReportError(c.rep, diag.CtxBuiltinNotAllowed, span,
			fmt.Sprintf("'%s' builtin is not allowed in a for-loop", name)).Emit()
		return true
	}
	return false
}

// ctxRecord returns the record the context pointer refers to, if it is a
// defined record.
func (c *ctxResolver) ctxRecord(rc *ResolvedContext) (*types.RecordInfo, bool) {
	in := c.s.types
	if in.Kind(rc.Ctx) != types.KindPointer {
		return nil, false
	}
	info, ok := in.RecordInfo(in.Elem(rc.Ctx))
	if !ok || !info.Defined {
		return nil, false
	}
	return info, true
}

// noArgs reports why an args access cannot be served.
func (c *ctxResolver) noArgs(span source.Span, rc *ResolvedContext) {
	ap := c.probe.AttachPoints[0]
	switch rc.Provider {
	case ast.ProbeUprobe, ast.ProbeUretprobe:
		diag.ReportError(c.rep, diag.CtxNoDebugInfo, span,
			fmt.Sprintf("No debug info found for %s:%s", ap.Target, ap.Func)).Emit()
	case ast.ProbeKprobe, ast.ProbeKretprobe:
		diag.ReportError(c.rep, diag.CtxNoDebugInfo, span,
			fmt.Sprintf("No BTF found for function '%s'", ap.Func)).Emit()
	default:
		diag.ReportError(c.rep, diag.CtxUnusable, span,
			fmt.Sprintf("The args builtin can not be used with '%s' probes", rc.Provider)).Emit()
	}
}

func (c *ctxResolver) newCtx(span source.Span) ast.ExprID {
	return c.b.Exprs.NewBuiltin(span, builtinCtx)
}

func (c *ctxResolver) rewriteArgsField(slot ast.ExprID, field string) {
	span := c.b.Exprs.Span(slot)
	rc := c.ensure(span, builtinArgs)
	if rc == nil {
		return
	}
	in := c.s.types
	if rc.Args != types.None {
		info, _ := in.RecordInfo(rc.Args)
		for i, f := range info.Fields {
			if f.Name == field {
				c.replaceWithArg(slot, rc, i)
				return
			}
		}
		diag.ReportError(c.rep, diag.CtxUnknownField, span, "Unknown field: "+field).Emit()
		return
	}
	info, ok := c.ctxRecord(rc)
	if !ok {
		c.noArgs(span, rc)
		return
	}
	if !info.HasField(field) {
		diag.ReportError(c.rep, diag.CtxUnknownField, span, "Unknown field: "+field).Emit()
		return
	}
	access := c.b.Exprs.NewField(span, c.newCtx(span), field)
	c.b.Exprs.Replace(slot, access)
}

func (c *ctxResolver) rewriteArgN(slot ast.ExprID, n int) {
	span := c.b.Exprs.Span(slot)
	switch probeKind(c.probe) {
	case ast.ProbeKprobe, ast.ProbeUprobe, ast.ProbeUsdt, ast.ProbeRawTracepoint:
	default:
		diag.ReportError(c.rep, diag.CtxBuiltinNotAllowed, span,
			"The argN builtin can only be used with 'kprobes', 'uprobes' and 'usdt' probes").Emit()
		return
	}
	rc := c.ensure(span, fmt.Sprintf("arg%d", n))
	if rc == nil {
		return
	}
	if rc.Args == types.None {
		if info, ok := c.ctxRecord(rc); ok {
			// в записи tracepoint первые поля служебные
			skip := 0
			for skip < len(info.Fields) && isCommonField(info.Fields[skip].Name) {
				skip++
			}
			if skip+n < len(info.Fields) {
				access := c.b.Exprs.NewField(span, c.newCtx(span), info.Fields[skip+n].Name)
				c.b.Exprs.Replace(slot, access)
				return
			}
			diag.ReportError(c.rep, diag.CtxBadArgIndex, span,
				fmt.Sprintf("arg%d is out of range: the probe has %d arguments", n, len(info.Fields)-skip)).Emit()
			return
		}
	}
	c.replaceWithArg(slot, rc, n)
}

func isCommonField(name string) bool {
	return strings.HasPrefix(name, commonTPPrefix) || strings.HasPrefix(name, "__")
}

// argExpr reads argument i from registers, cast to its declared type when
// the argument record knows it.
func (c *ctxResolver) argExpr(span source.Span, rc *ResolvedContext, i int) ast.ExprID {
	exprs := c.b.Exprs
	idx := exprs.NewInteger(span, uint64(i), false) // #nosec G115 -- i >= 0
	call := exprs.NewCall(span, argCallName, []ast.ExprID{idx})
	if rc.Args == types.None {
		return call
	}
	info, _ := c.s.types.RecordInfo(rc.Args)
	if i >= len(info.Fields) {
		return call
	}
	// явный каст без имени типа: резолвер не перенацеливает его
	cast := exprs.NewCast(span, "", call)
	exprs.SetType(cast, info.Fields[i].Type)
	return cast
}

func (c *ctxResolver) replaceWithArg(slot ast.ExprID, rc *ResolvedContext, i int) {
	access := c.argExpr(c.b.Exprs.Span(slot), rc, i)
	c.b.Exprs.Replace(slot, access)
}

func (c *ctxResolver) rewriteBareArgs(slot ast.ExprID) {
	exprs := c.b.Exprs
	span := exprs.Span(slot)
	rc := c.ensure(span, builtinArgs)
	if rc == nil {
		return
	}
	if rc.Args != types.None {
		info, _ := c.s.types.RecordInfo(rc.Args)
		names := make([]string, 0, len(info.Fields))
		for _, f := range info.Fields {
			names = append(names, f.Name)
		}
		fields := make([]ast.NamedExpr, 0, len(names))
		for i, name := range names {
			if name == retvalField {
				continue
			}
			fields = append(fields, ast.NamedExpr{Name: name, Span: span, Expr: c.argExpr(span, rc, i)})
		}
		rec := exprs.NewRecord(span, fields)
		exprs.Replace(slot, rec)
		return
	}
	if _, ok := c.ctxRecord(rc); !ok {
		c.noArgs(span, rc)
		return
	}
	deref := exprs.NewUnary(span, ast.OpDeref, c.newCtx(span), false)
	exprs.Replace(slot, deref)
}

func (c *ctxResolver) rewriteRetval(slot ast.ExprID) {
	exprs := c.b.Exprs
	span := exprs.Span(slot)
	if rc := c.ensure(span, builtinRawRet); rc != nil {
		if info, ok := c.ctxRecord(rc); ok && info.HasField(retvalField) {
			exprs.Replace(slot, exprs.NewField(span, c.newCtx(span), retvalField))
			return
		}
	}
	exprs.Replace(slot, exprs.NewBuiltin(span, builtinRetval))
}

// lift binds every ctx use in the probe body to one local assigned at the
// top of the body.
func (c *ctxResolver) lift() {
	exprs := c.b.Exprs
	var uses []ast.ExprID
	c.b.InspectExpr(c.probe.Body, func(id ast.ExprID) bool {
		if bd, ok := exprs.Builtin(id); ok && bd.Name == builtinCtx {
			uses = append(uses, id)
		}
		return true
	})
	if len(uses) == 0 {
		return
	}
	first := exprs.Span(uses[0])
	for _, id := range uses {
		v := exprs.NewVariable(exprs.Span(id), ctxVarName)
		exprs.Replace(id, v)
	}
	value := exprs.NewBuiltin(first, builtinCtx)
	target := exprs.NewVariable(first, ctxVarName)
	assign := c.b.Stmts.NewAssignVar(first, target, value)
	blk, ok := exprs.Block(c.probe.Body)
	if !ok {
		c.bugs.bug(first, "probe body is not a block")
		return
	}
	blk.Stmts = append([]ast.StmtID{assign}, blk.Stmts...)
}

// checkLeftovers flags context builtins that survived rewriting.
func (c *ctxResolver) checkLeftovers() {
	exprs := c.b.Exprs
	c.b.InspectExpr(c.probe.Body, func(id ast.ExprID) bool {
		bd, ok := exprs.Builtin(id)
		if !ok {
			return true
		}
		if bd.Name == builtinArgs || bd.Name == builtinRawRet {
			c.bugs.bug(exprs.Span(id), "errant %s builtin after context resolution", bd.Name)
			return true
		}
		if _, isArg := argIndex(bd.Name); isArg {
			c.bugs.bug(exprs.Span(id), "errant %s builtin after context resolution", bd.Name)
		}
		return true
	})
}
