package sema

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"tracec/internal/ast"
	"tracec/internal/diag"
	"tracec/internal/pass"
	"tracec/internal/source"
	"tracec/internal/trace"
	"tracec/internal/types"
)

// Tables are the program-wide type tables left by resolution.
type Tables struct {
	Maps map[string]*MapInfo
	// Vars lists scratch variables in creation order.
	Vars []*VarInfo
	// Iterations is the number of visits the fixpoint needed.
	Iterations int
	// Exhausted is set when the iteration ceiling forced the last visit.
	Exhausted bool
}

// MapNames returns map names sorted.
func (t *Tables) MapNames() []string {
	names := make([]string, 0, len(t.Maps))
	for name := range t.Maps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VarInfo is one scratch variable.
type VarInfo struct {
	Name string
	// Scope is the block the variable lives in.
	Scope ast.ExprID
	Item  ast.ItemID
	Span  source.Span
	Type  types.TypeID
	// CanResize is false once an explicit type fixes the variable's size.
	CanResize bool
	Declared  bool
	Assigned  bool
	DeclStmt  ast.StmtID
}

// loopFrame tracks one for-loop body while it is visited.
type loopFrame struct {
	// base is the scope depth of the loop body; variables found below it
	// are free in the body.
	base int
	free map[string]*VarInfo
}

// resolver is the fixpoint engine. One value lives for the whole pass; the
// per-iteration fields are reset by iterate.
type resolver struct {
	s       *Session
	b       *ast.Builder
	exprs   *ast.Exprs
	stmts   *ast.Stmts
	in      *types.Interner
	imp     *importer
	opts    *Options
	file    ast.FileID
	rep     diag.Reporter
	ctxInfo *ContextInfo
	tracer  trace.Tracer
	span    uint64

	// per iteration
	final      bool
	first      bool
	unresolved int
	branches   []ast.ExprID
	poisoned   map[ast.ExprID]bool

	// current item
	item    ast.ItemID
	probe   *ast.ProbeItem
	subprog *ast.SubprogItem

	scopes []ast.ExprID
	vars   map[ast.ExprID]map[string]*VarInfo
	order  []*VarInfo
	maps   map[string]*MapInfo
	loops  []*loopFrame
	// mapValue is the value slot of the map assignment being visited;
	// aggregate calls are only legal there.
	mapValue ast.ExprID
}

func newResolver(s *Session, u *pass.Unit, info *ContextInfo, tracer trace.Tracer, parent uint64) *resolver {
	return &resolver{
		s:       s,
		b:       u.Builder,
		exprs:   u.Builder.Exprs,
		stmts:   u.Builder.Stmts,
		in:      s.types,
		imp:     s.imp,
		opts:    &s.opts,
		file:    u.File,
		rep:     diag.NewDedupReporter(u.Reporter()),
		ctxInfo: info,
		tracer:  tracer,
		span:    parent,
		vars:    make(map[ast.ExprID]map[string]*VarInfo),
		maps:    make(map[string]*MapInfo),
	}
}

func (s *Session) runResolve(ctx context.Context, u *pass.Unit) error {
	info, err := pass.Get(u, ContextTypes)
	if err != nil {
		return err
	}
	tracer := trace.FromContext(ctx)
	r := newResolver(s, u, info, tracer, trace.CurrentSpan(ctx).SpanID)
	r.collectDecls()

	var conv Convergence
	var last Observation
	for !conv.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		span := trace.Begin(tracer, trace.ScopeUnit, "iteration", r.span).
			WithExtra("iteration", strconv.Itoa(conv.Iteration+1)).
			WithExtra("state", conv.Phase.String())
		last = r.iterate(conv)
		span.WithExtra("unresolved", strconv.Itoa(last.Unresolved))
		span.End("")
		if u.Bag.HasErrors() && !conv.Conclusive() {
			conv.Iteration++
			break
		}
		conv = conv.Step(last, s.opts.Limits.MaxIterations)
	}
	if conv.Exhausted && last.Unresolved > 0 {
		diag.ReportError(r.rep, diag.TypNotConverged, r.b.Files.Get(u.File).Span,
			fmt.Sprintf("type resolution did not converge after %d iterations", s.opts.Limits.MaxIterations)).Emit()
	}

	pass.Put(u, TypesResolved, &Tables{
		Maps:       r.maps,
		Vars:       r.order,
		Iterations: conv.Iteration,
		Exhausted:  conv.Exhausted,
	})
	return nil
}

// iterate visits the whole file once.
func (r *resolver) iterate(conv Convergence) Observation {
	r.final = conv.Conclusive()
	r.first = conv.Iteration == 0
	r.unresolved = 0
	r.branches = r.branches[:0]
	r.poisoned = make(map[ast.ExprID]bool)

	for _, item := range r.b.Subprogs(r.file) {
		r.visitSubprog(item)
	}
	for _, item := range r.b.Probes(r.file) {
		r.visitProbe(item)
	}
	r.item, r.probe, r.subprog = ast.NoItemID, nil, nil
	if r.final {
		r.finishVars()
	}
	return Observation{Unresolved: r.unresolved, Branches: NewBranchSet(r.branches...)}
}

func (r *resolver) visitProbe(item ast.ItemID) {
	probe, _ := r.b.Items.Probe(item)
	r.item, r.probe, r.subprog = item, probe, nil
	if trace.On(r.tracer, trace.ScopeNode) {
		trace.Point(r.tracer, trace.ScopeNode, "probe", r.span, probe.Name(), nil)
	}
	if probe.Pred.IsValid() {
		// предикат не видит переменных тела
		pred := probe.Pred
		r.visit(pred)
		r.checkCondition(pred, "predicate")
	}
	r.visit(probe.Body)
}

func (r *resolver) visitSubprog(item ast.ItemID) {
	sp, _ := r.b.Items.Subprog(item)
	r.item, r.probe, r.subprog = item, nil, sp
	span := r.b.Items.Get(item).Span

	if sp.ReturnType == types.None {
		sp.ReturnType = r.in.Builtins().Void
		if sp.ReturnTypeName != "" && sp.ReturnTypeName != "void" {
			t, err := r.imp.Parse(sp.ReturnTypeName)
			if err != nil {
				r.errorf(diag.TypUnknownType, span, "Cannot resolve unknown type \"%s\"", sp.ReturnTypeName)
				sp.ReturnType = types.None
			} else {
				sp.ReturnType = t
			}
		}
	}
	// параметры объявлены в верхней области тела
	scope := r.scope(sp.Body)
	for i := range sp.Params {
		p := &sp.Params[i]
		if p.Type == types.None {
			t, err := r.imp.Parse(p.TypeName)
			if err != nil {
				r.errorf(diag.TypUnknownType, p.Span, "Cannot resolve unknown type \"%s\"", p.TypeName)
				continue
			}
			p.Type = t
		}
		if scope[p.Name] == nil {
			v := r.newVar(p.Name, sp.Body, p.Span)
			v.Type, v.CanResize, v.Declared, v.Assigned = p.Type, false, true, true
		}
	}
	r.visit(sp.Body)
}

// Diagnostics ---------------------------------------------------------------

func (r *resolver) errorf(code diag.Code, span source.Span, format string, args ...any) {
	diag.ReportError(r.rep, code, span, fmt.Sprintf(format, args...)).Emit()
}

func (r *resolver) warnf(code diag.Code, span source.Span, format string, args ...any) {
	diag.ReportWarning(r.rep, code, span, fmt.Sprintf(format, args...)).Emit()
}

// fail reports an error at expression id and poisons it.
func (r *resolver) fail(id ast.ExprID, code diag.Code, format string, args ...any) {
	r.errorf(code, r.exprs.Span(id), format, args...)
	r.poison(id)
}

func (r *resolver) poison(id ast.ExprID) {
	if id.IsValid() {
		r.poisoned[id] = true
	}
}

// deferf reports an error only on the conclusive pass; before that the
// node counts as unresolved so later iterations can still fix it.
func (r *resolver) deferf(id ast.ExprID, code diag.Code, format string, args ...any) {
	if r.final {
		r.fail(id, code, format, args...)
		return
	}
	r.unresolved++
}

func (r *resolver) label(t types.TypeID) string {
	return types.Label(r.in, t)
}

// Visiting ------------------------------------------------------------------

// visit types one expression and accounts for it when it stays unresolved.
func (r *resolver) visit(id ast.ExprID) {
	if !id.IsValid() {
		return
	}
	r.visitExpr(id)
	if r.exprs.TypeOf(id) != types.None {
		return
	}
	children := r.b.ExprChildren(id)
	if r.poisoned[id] {
		return
	}
	origin := true
	for _, c := range children {
		if r.poisoned[c] {
			r.poison(id)
			return
		}
		if r.exprs.TypeOf(c) == types.None {
			origin = false
		}
	}
	r.unresolved++
	if r.final && origin {
		r.fail(id, diag.TypUnresolved, "Unable to resolve the type of this %s expression", r.exprs.Kind(id))
	}
}

// visitAll visits ids in order.
func (r *resolver) visitAll(ids []ast.ExprID) {
	for _, id := range ids {
		r.visit(id)
	}
}

// typed reports whether every id already has a type.
func (r *resolver) typed(ids ...ast.ExprID) bool {
	for _, id := range ids {
		if id.IsValid() && r.exprs.TypeOf(id) == types.None {
			return false
		}
	}
	return true
}

// unwrapImplicit returns the node the resolver's implicit casts wrap.
func (r *resolver) unwrapImplicit(id ast.ExprID) ast.ExprID {
	for {
		cd, ok := r.exprs.Cast(id)
		if !ok || !cd.Implicit {
			return id
		}
		id = cd.Value
	}
}

// natural is the type of id before any implicit cast inserted by the
// resolver. Integer literals report their smallest type.
func (r *resolver) natural(id ast.ExprID) types.TypeID {
	id = r.unwrapImplicit(id)
	if lit, ok := r.exprs.Integer(id); ok {
		return r.in.Intern(types.LiteralType(lit.Value, lit.Negative))
	}
	return r.exprs.TypeOf(id)
}

// Scopes --------------------------------------------------------------------

func (r *resolver) scope(block ast.ExprID) map[string]*VarInfo {
	sc := r.vars[block]
	if sc == nil {
		sc = make(map[string]*VarInfo)
		r.vars[block] = sc
	}
	return sc
}

func (r *resolver) pushScope(block ast.ExprID) {
	r.scopes = append(r.scopes, block)
	r.scope(block)
}

func (r *resolver) popScope() {
	r.scopes = r.scopes[:len(r.scopes)-1]
}

// lookupVar finds name in the open scopes, innermost first. depth is the
// index of the scope holding it.
func (r *resolver) lookupVar(name string) (*VarInfo, int) {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if v := r.vars[r.scopes[i]][name]; v != nil {
			for _, lf := range r.loops {
				if i < lf.base {
					lf.free[name] = v
				}
			}
			return v, i
		}
	}
	return nil, -1
}

func (r *resolver) newVar(name string, scope ast.ExprID, span source.Span) *VarInfo {
	v := &VarInfo{Name: name, Scope: scope, Item: r.item, Span: span, CanResize: true}
	r.scope(scope)[name] = v
	r.order = append(r.order, v)
	return v
}

func (r *resolver) innermost() ast.ExprID {
	if len(r.scopes) == 0 {
		return ast.NoExprID
	}
	return r.scopes[len(r.scopes)-1]
}

// finishVars reports declared variables that were never assigned.
func (r *resolver) finishVars() {
	for _, v := range r.order {
		if v.Declared && !v.Assigned {
			r.warnf(diag.TypVarNeverAssigned, v.Span, "Variable %s never assigned to.", v.Name)
		}
	}
}

// checkCondition validates the type of an if/while/predicate condition.
func (r *resolver) checkCondition(id ast.ExprID, what string) {
	t := r.exprs.TypeOf(id)
	if t == types.None {
		return
	}
	switch r.in.Kind(t) {
	case types.KindInt, types.KindBool, types.KindPointer, types.KindEnum:
		return
	}
	r.fail(id, diag.TypInvalidCondition, "Invalid condition in %s: %s", what, r.label(t))
}
