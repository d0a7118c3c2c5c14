package sema

import (
	"context"
	"fmt"

	"tracec/internal/ast"
	"tracec/internal/diag"
	"tracec/internal/pass"
	"tracec/internal/trace"
)

// jumpSet is a small set of jump kinds.
type jumpSet uint8

func jumps(kinds ...ast.JumpKind) jumpSet {
	var s jumpSet
	for _, k := range kinds {
		s |= 1 << k
	}
	return s
}

func (s jumpSet) has(k ast.JumpKind) bool { return s&(1<<k) != 0 }

var (
	jumpsLoop   = jumps(ast.JumpContinue, ast.JumpBreak)
	jumpsReturn = jumps(ast.JumpReturn)
)

// flowChecker fences unreachable code, rejects jumps outside their context
// and makes every path of a body end in an explicit jump.
type flowChecker struct {
	b   *ast.Builder
	rep diag.Reporter
}

func (s *Session) runControlFlow(ctx context.Context, u *pass.Unit) error {
	f := &flowChecker{b: u.Builder, rep: u.Reporter()}
	tracer := trace.FromContext(ctx)
	parent := trace.CurrentSpan(ctx).SpanID

	// exit() превращается в exit() + return, дальше это обычный return
	for _, item := range u.Builder.Probes(u.File) {
		probe, _ := u.Builder.Items.Probe(item)
		f.exitReturn(probe.Body)
	}
	for _, item := range u.Builder.Subprogs(u.File) {
		sp, _ := u.Builder.Items.Subprog(item)
		f.exitReturn(sp.Body)
	}

	for _, item := range u.Builder.Subprogs(u.File) {
		sp, _ := u.Builder.Items.Subprog(item)
		span := trace.Begin(tracer, trace.ScopeUnit, "function", parent).WithExtra("name", sp.Name)
		body, void := sp.Body, sp.ReturnTypeName == "" || sp.ReturnTypeName == "void"
		f.disallow(body, jumpsLoop, "function")
		if !f.terminates(body, jumpsReturn) {
			if void {
				f.inject(ast.JumpReturn, body)
			} else {
				diag.ReportError(f.rep, diag.FlwMissingReturn, u.Builder.Items.Get(item).Span,
					"Not all code paths returned a value").Emit()
			}
		}
		f.injectLoops(body)
		span.End("")
	}
	for _, item := range u.Builder.Probes(u.File) {
		probe, _ := u.Builder.Items.Probe(item)
		span := trace.Begin(tracer, trace.ScopeUnit, "probe", parent).WithExtra("name", probe.Name())
		body := probe.Body
		f.disallow(body, jumpsLoop, "probe")
		if !f.terminates(body, jumpsReturn) {
			f.inject(ast.JumpReturn, body)
		}
		f.injectLoops(body)
		span.End("")
	}
	pass.Mark(u, ControlFlowChecked.Product())
	return nil
}

// exitReturn places a return after every exit() call.
func (f *flowChecker) exitReturn(root ast.ExprID) {
	exprs := f.b.Exprs
	var calls []ast.ExprID
	f.b.InspectExpr(root, func(id ast.ExprID) bool {
		if cd, ok := exprs.Call(id); ok && cd.Func == "exit" && len(cd.Args) <= 1 && !cd.Injected {
			calls = append(calls, id)
		}
		return true
	})
	// вложенные вызовы раньше внешних: слот внешнего остаётся валидным
	for i := len(calls) - 1; i >= 0; i-- {
		cd, _ := exprs.Call(calls[i])
		cd.Injected = true
		f.inject(ast.JumpReturn, calls[i])
	}
}

// disallow reports jumps of the given kinds reachable without crossing a
// loop body, then recurses into loops with their own rules.
func (f *flowChecker) disallow(root ast.ExprID, bad jumpSet, where string) {
	f.walkStmts(root, func(id ast.StmtID) bool {
		stmts := f.b.Stmts
		switch stmts.Kind(id) {
		case ast.StmtJump:
			jd, _ := stmts.Jump(id)
			if bad.has(jd.Kind) {
				diag.ReportError(f.rep, diag.FlwJumpNotAllowed, stmts.Span(id),
					fmt.Sprintf("'%s' statement is not allowed in a %s", jd.Kind, where)).Emit()
			}
		case ast.StmtFor:
			fd, _ := stmts.For(id)
			f.disallow(fd.Body, jumpsReturn, "for-loop")
			return false
		case ast.StmtWhile:
			wd, _ := stmts.While(id)
			inner := jumpSet(0)
			if bad.has(ast.JumpReturn) {
				inner = jumpsReturn
			}
			f.disallow(wd.Body, inner, "while-loop")
			return false
		}
		return true
	})
}

// walkStmts visits every statement under root. Returning false from fn
// skips the statement's children.
func (f *flowChecker) walkStmts(root ast.ExprID, fn func(ast.StmtID) bool) {
	var visitExpr func(ast.ExprID)
	var visitStmt func(ast.StmtID)
	visitStmt = func(id ast.StmtID) {
		if !fn(id) {
			return
		}
		for _, e := range f.b.StmtExprs(id) {
			visitExpr(e)
		}
	}
	visitExpr = func(id ast.ExprID) {
		if !id.IsValid() {
			return
		}
		if blk, ok := f.b.Exprs.Block(id); ok {
			data := *blk
			for _, st := range data.Stmts {
				visitStmt(st)
			}
			visitExpr(data.Value)
			return
		}
		for _, child := range f.b.ExprChildren(id) {
			visitExpr(child)
		}
	}
	visitExpr(root)
}

// injectLoops makes every loop body under root end in continue.
func (f *flowChecker) injectLoops(root ast.ExprID) {
	f.walkStmts(root, func(id ast.StmtID) bool {
		stmts := f.b.Stmts
		switch stmts.Kind(id) {
		case ast.StmtFor:
			fd, _ := stmts.For(id)
			body := fd.Body
			if !f.terminates(body, jumpsLoop) {
				f.inject(ast.JumpContinue, body)
			}
		case ast.StmtWhile:
			wd, _ := stmts.While(id)
			body := wd.Body
			if !f.terminates(body, jumps(ast.JumpContinue, ast.JumpBreak, ast.JumpReturn)) {
				f.inject(ast.JumpContinue, body)
			}
		}
		return true
	})
}

// terminates reports whether every path through id ends in one of kinds.
// Blocks are fenced as a side effect: statements after the first
// terminating one move into an unreachable branch.
func (f *flowChecker) terminates(id ast.ExprID, kinds jumpSet) bool {
	if !id.IsValid() {
		return false
	}
	exprs := f.b.Exprs
	switch exprs.Kind(id) {
	case ast.ExprBlock:
		return f.fence(id, kinds)
	case ast.ExprIf:
		d := *mustIf(exprs, id)
		if lit, ok := exprs.Boolean(d.Cond); ok {
			if lit.Value {
				return f.terminates(d.Then, kinds)
			}
			return f.terminates(d.Else, kinds)
		}
		if f.terminates(d.Cond, kinds) {
			return true
		}
		then := f.terminates(d.Then, kinds)
		other := f.terminates(d.Else, kinds)
		return then && other
	case ast.ExprBinary:
		d, _ := exprs.Binary(id)
		left, right := d.Left, d.Right
		return f.terminates(left, kinds) || f.terminates(right, kinds)
	case ast.ExprIndex:
		d, _ := exprs.Index(id)
		target, index := d.Target, d.Index
		return f.terminates(target, kinds) || f.terminates(index, kinds)
	case ast.ExprUnary, ast.ExprField, ast.ExprTupleIndex, ast.ExprCast,
		ast.ExprComptime, ast.ExprSizeof:
		for _, child := range f.b.ExprChildren(id) {
			if f.terminates(child, kinds) {
				return true
			}
		}
	}
	return false
}

func (f *flowChecker) stmtTerminates(id ast.StmtID, kinds jumpSet) bool {
	stmts := f.b.Stmts
	switch stmts.Kind(id) {
	case ast.StmtJump:
		jd, _ := stmts.Jump(id)
		return kinds.has(jd.Kind)
	case ast.StmtExpr:
		d, _ := stmts.Expr(id)
		return f.terminates(d.Expr, kinds)
	case ast.StmtAssignVar:
		d, _ := stmts.AssignVar(id)
		return f.terminates(d.Value, kinds)
	case ast.StmtAssignMap:
		d, _ := stmts.AssignMap(id)
		value := d.Value
		if md, ok := f.b.Exprs.Map(d.Map); ok && md.Key.IsValid() && f.terminates(md.Key, kinds) {
			return true
		}
		return f.terminates(value, kinds)
	case ast.StmtUnroll:
		d, _ := stmts.Unroll(id)
		count, body := d.Count, d.Body
		return f.terminates(count, kinds) || f.terminates(body, kinds)
	case ast.StmtFor:
		d, _ := stmts.For(id)
		start, end := d.RangeStart, d.RangeEnd
		return f.terminates(start, kinds) || f.terminates(end, kinds)
	case ast.StmtWhile:
		d, _ := stmts.While(id)
		cond, body := d.Cond, d.Body
		if f.terminates(cond, kinds) {
			return true
		}
		// break/continue внутри цикла не выходят наружу, return выходит
		return kinds.has(ast.JumpReturn) && f.terminates(body, jumpsReturn)
	}
	return false
}

// fence checks a block statement by statement. Once a statement
// terminates, the rest of the block is unreachable: it is kept for type
// inference under an if (true) ... else ... so the block ends in a single
// terminating statement.
func (f *flowChecker) fence(id ast.ExprID, kinds jumpSet) bool {
	exprs := f.b.Exprs
	blk, _ := exprs.Block(id)
	data := *blk
	for i, st := range data.Stmts {
		if !f.stmtTerminates(st, kinds) {
			continue
		}
		rest := data.Stmts[i+1:]
		if len(rest) == 0 && !data.Value.IsValid() {
			return true
		}
		span := f.b.Stmts.Span(st)
		if len(rest) > 0 {
			diag.ReportWarning(f.rep, diag.FlwUnreachableStmt, f.b.Stmts.Span(rest[0]), "Unreachable statement.").Emit()
		}
		dead := append([]ast.StmtID(nil), rest...)
		if data.Value.IsValid() {
			diag.ReportWarning(f.rep, diag.FlwUnreachableExpr, exprs.Span(data.Value),
				"Unreachable expression; block type is implicitly none.").Emit()
			dead = append(dead, f.b.ExprStmt(data.Value))
		}
		deadSpan := span
		if len(dead) > 0 {
			deadSpan = f.b.Stmts.Span(dead[0]).Cover(f.b.Stmts.Span(dead[len(dead)-1]))
		}
		live := f.b.Block(span, st)
		unreachable := f.b.Block(deadSpan, dead...)
		cond := exprs.NewBoolean(span, true)
		guard := exprs.NewIf(span.Cover(deadSpan), cond, live, unreachable)
		fenced := f.b.ExprStmt(guard)

		stmts := append(append([]ast.StmtID(nil), data.Stmts[:i]...), fenced)
		blk, _ = exprs.Block(id)
		blk.Stmts = stmts
		blk.Value = ast.NoExprID
		return f.terminates(guard, kinds)
	}
	if data.Value.IsValid() {
		return f.terminates(data.Value, kinds)
	}
	return false
}

// inject makes every path through slot end in a jump of kind.
func (f *flowChecker) inject(kind ast.JumpKind, slot ast.ExprID) {
	exprs := f.b.Exprs
	span := exprs.Span(slot)
	switch exprs.Kind(slot) {
	case ast.ExprBlock:
		blk, _ := exprs.Block(slot)
		data := *blk
		if data.Value.IsValid() {
			f.inject(kind, data.Value)
			return
		}
		if n := len(data.Stmts); n > 0 {
			if es, ok := f.b.Stmts.Expr(data.Stmts[n-1]); ok {
				f.inject(kind, es.Expr)
				return
			}
		}
		jump := f.b.Stmts.NewJump(span, kind, ast.NoExprID)
		blk, _ = exprs.Block(slot)
		blk.Stmts = append(append([]ast.StmtID(nil), blk.Stmts...), jump)
		return
	case ast.ExprIf:
		d := *mustIf(exprs, slot)
		jumpKinds := jumps(kind)
		if !f.terminates(d.Then, jumpKinds) {
			f.inject(kind, d.Then)
		}
		if !d.Else.IsValid() {
			jump := f.b.Stmts.NewJump(span, kind, ast.NoExprID)
			other := f.b.Block(span, jump)
			iff, _ := exprs.If(slot)
			iff.Else = other
			return
		}
		if !f.terminates(d.Else, jumpKinds) {
			f.inject(kind, d.Else)
		}
		return
	}
	inner := exprs.Move(slot)
	jump := f.b.Stmts.NewJump(span, kind, ast.NoExprID)
	blk := f.b.Block(span, f.b.ExprStmt(inner), jump)
	exprs.Replace(slot, blk)
}

func mustIf(exprs *ast.Exprs, id ast.ExprID) *ast.IfData {
	d, _ := exprs.If(id)
	return d
}
