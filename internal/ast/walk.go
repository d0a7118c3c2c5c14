package ast

// ExprChildren returns the direct sub-expressions of id in evaluation order.
// Statements inside blocks are not expanded; use StmtExprs for those.
func (b *Builder) ExprChildren(id ExprID) []ExprID {
	x := b.Exprs.Get(id)
	if x == nil {
		return nil
	}
	e := b.Exprs
	p := uint32(x.Payload)
	var out []ExprID
	switch x.Kind {
	case ExprCall:
		out = append(out, e.Calls.Get(p).Args...)
	case ExprSizeof:
		out = append(out, e.Sizeofs.Get(p).Expr)
	case ExprOffsetof:
		out = append(out, e.Offsetofs.Get(p).Expr)
	case ExprMap:
		out = append(out, e.Maps.Get(p).Key)
	case ExprBinary:
		d := e.Binaries.Get(p)
		out = append(out, d.Left, d.Right)
	case ExprUnary:
		out = append(out, e.Unaries.Get(p).Operand)
	case ExprField:
		out = append(out, e.Fields.Get(p).Target)
	case ExprIndex:
		d := e.Indices.Get(p)
		out = append(out, d.Target, d.Index)
	case ExprTupleIndex:
		out = append(out, e.TupleIndices.Get(p).Target)
	case ExprCast:
		out = append(out, e.Casts.Get(p).Value)
	case ExprTuple:
		out = append(out, e.Tuples.Get(p).Elems...)
	case ExprRecord:
		for _, f := range e.Records.Get(p).Fields {
			out = append(out, f.Expr)
		}
	case ExprIf:
		d := e.Ifs.Get(p)
		out = append(out, d.Cond, d.Then, d.Else)
	case ExprBlock:
		out = append(out, e.Blocks.Get(p).Value)
	case ExprComptime:
		out = append(out, e.Comptimes.Get(p).Expr)
	}
	return compactExprs(out)
}

// StmtExprs returns the expressions owned directly by a statement.
func (b *Builder) StmtExprs(id StmtID) []ExprID {
	st := b.Stmts.Get(id)
	if st == nil {
		return nil
	}
	s := b.Stmts
	p := uint32(st.Payload)
	var out []ExprID
	switch st.Kind {
	case StmtExpr:
		out = append(out, s.Exprs.Get(p).Expr)
	case StmtVarDecl:
		out = append(out, s.VarDecls.Get(p).Var)
	case StmtAssignVar:
		d := s.AssignVars.Get(p)
		out = append(out, d.Value, d.Var)
	case StmtAssignMap:
		d := s.AssignMaps.Get(p)
		out = append(out, d.Map, d.Value)
	case StmtJump:
		out = append(out, s.Jumps.Get(p).Value)
	case StmtWhile:
		d := s.Whiles.Get(p)
		out = append(out, d.Cond, d.Body)
	case StmtFor:
		d := s.Fors.Get(p)
		out = append(out, d.Var, d.Iterable, d.RangeStart, d.RangeEnd, d.Body)
	case StmtUnroll:
		d := s.Unrolls.Get(p)
		out = append(out, d.Count, d.Body)
	}
	return compactExprs(out)
}

func compactExprs(ids []ExprID) []ExprID {
	out := ids[:0]
	for _, id := range ids {
		if id.IsValid() {
			out = append(out, id)
		}
	}
	return out
}

// InspectExpr walks the tree rooted at id depth-first, descending into block
// statements. fn returning false prunes the subtree.
func (b *Builder) InspectExpr(id ExprID, fn func(ExprID) bool) {
	if !id.IsValid() || !fn(id) {
		return
	}
	if blk, ok := b.Exprs.Block(id); ok {
		for _, st := range blk.Stmts {
			b.InspectStmt(st, fn)
		}
	}
	for _, child := range b.ExprChildren(id) {
		b.InspectExpr(child, fn)
	}
}

// InspectStmt walks every expression reachable from a statement.
func (b *Builder) InspectStmt(id StmtID, fn func(ExprID) bool) {
	for _, child := range b.StmtExprs(id) {
		b.InspectExpr(child, fn)
	}
}
