package ast

// CloneExpr deep-copies the tree rooted at id, statements included, and
// returns the root of the copy. Resolved types are copied too.
func (b *Builder) CloneExpr(id ExprID) ExprID {
	x := b.Exprs.Get(id)
	if x == nil {
		return NoExprID
	}
	e := b.Exprs
	p := uint32(x.Payload)
	var out ExprID
	switch x.Kind {
	case ExprInteger:
		d := *e.Integers.Get(p)
		out = e.NewInteger(x.Span, d.Value, d.Negative)
	case ExprBoolean:
		out = e.NewBoolean(x.Span, e.Booleans.Get(p).Value)
	case ExprString:
		out = e.NewString(x.Span, e.Strings.Get(p).Value)
	case ExprBuiltin:
		out = e.NewBuiltin(x.Span, e.Builtins.Get(p).Name)
	case ExprIdent:
		out = e.NewIdent(x.Span, e.Idents.Get(p).Name)
	case ExprCall:
		d := *e.Calls.Get(p)
		out = e.NewCall(x.Span, d.Func, b.cloneExprs(d.Args))
		e.Calls.Get(uint32(e.Get(out).Payload)).Injected = d.Injected
	case ExprSizeof:
		d := *e.Sizeofs.Get(p)
		out = e.NewSizeof(x.Span, d.TypeName, b.CloneExpr(d.Expr))
	case ExprOffsetof:
		d := *e.Offsetofs.Get(p)
		out = e.NewOffsetof(x.Span, d.TypeName, b.CloneExpr(d.Expr), d.Fields)
	case ExprMap:
		d := *e.Maps.Get(p)
		out = e.NewMap(x.Span, d.Name, b.CloneExpr(d.Key))
	case ExprVariable:
		out = e.NewVariable(x.Span, e.Variables.Get(p).Name)
	case ExprBinary:
		d := *e.Binaries.Get(p)
		out = e.NewBinary(x.Span, d.Op, b.CloneExpr(d.Left), b.CloneExpr(d.Right))
	case ExprUnary:
		d := *e.Unaries.Get(p)
		out = e.NewUnary(x.Span, d.Op, b.CloneExpr(d.Operand), d.Postfix)
	case ExprField:
		d := *e.Fields.Get(p)
		out = e.NewField(x.Span, b.CloneExpr(d.Target), d.Field)
	case ExprIndex:
		d := *e.Indices.Get(p)
		out = e.NewIndex(x.Span, b.CloneExpr(d.Target), b.CloneExpr(d.Index))
	case ExprTupleIndex:
		d := *e.TupleIndices.Get(p)
		out = e.NewTupleIndex(x.Span, b.CloneExpr(d.Target), d.Index)
	case ExprCast:
		d := *e.Casts.Get(p)
		out = e.NewCast(x.Span, d.TypeName, b.CloneExpr(d.Value))
		e.Casts.Get(uint32(e.Get(out).Payload)).Implicit = d.Implicit
	case ExprTuple:
		out = e.NewTuple(x.Span, b.cloneExprs(e.Tuples.Get(p).Elems))
	case ExprRecord:
		src := e.Records.Get(p).Fields
		fields := make([]NamedExpr, len(src))
		for i, f := range src {
			fields[i] = NamedExpr{Name: f.Name, Span: f.Span, Expr: b.CloneExpr(f.Expr)}
		}
		out = e.NewRecord(x.Span, fields)
	case ExprIf:
		d := *e.Ifs.Get(p)
		out = e.NewIf(x.Span, b.CloneExpr(d.Cond), b.CloneExpr(d.Then), b.CloneExpr(d.Else))
	case ExprBlock:
		d := *e.Blocks.Get(p)
		stmts := make([]StmtID, len(d.Stmts))
		for i, st := range d.Stmts {
			stmts[i] = b.CloneStmt(st)
		}
		out = e.NewBlock(x.Span, stmts, b.CloneExpr(d.Value))
	case ExprComptime:
		out = e.NewComptime(x.Span, b.CloneExpr(e.Comptimes.Get(p).Expr))
	default:
		return NoExprID
	}
	e.Get(out).Type = x.Type
	return out
}

func (b *Builder) cloneExprs(ids []ExprID) []ExprID {
	out := make([]ExprID, len(ids))
	for i, id := range ids {
		out[i] = b.CloneExpr(id)
	}
	return out
}

// CloneStmt deep-copies a statement.
func (b *Builder) CloneStmt(id StmtID) StmtID {
	st := b.Stmts.Get(id)
	if st == nil {
		return NoStmtID
	}
	s := b.Stmts
	p := uint32(st.Payload)
	switch st.Kind {
	case StmtExpr:
		return s.NewExpr(st.Span, b.CloneExpr(s.Exprs.Get(p).Expr))
	case StmtVarDecl:
		d := *s.VarDecls.Get(p)
		return s.NewVarDecl(st.Span, b.CloneExpr(d.Var), d.TypeName)
	case StmtAssignVar:
		d := *s.AssignVars.Get(p)
		return s.NewAssignVar(st.Span, b.CloneExpr(d.Var), b.CloneExpr(d.Value))
	case StmtAssignMap:
		d := *s.AssignMaps.Get(p)
		return s.NewAssignMap(st.Span, b.CloneExpr(d.Map), b.CloneExpr(d.Value))
	case StmtJump:
		d := *s.Jumps.Get(p)
		return s.NewJump(st.Span, d.Kind, b.CloneExpr(d.Value))
	case StmtWhile:
		d := *s.Whiles.Get(p)
		return s.NewWhile(st.Span, b.CloneExpr(d.Cond), b.CloneExpr(d.Body))
	case StmtFor:
		d := *s.Fors.Get(p)
		var out StmtID
		if d.IsRange() {
			out = s.NewForRange(st.Span, b.CloneExpr(d.Var), b.CloneExpr(d.RangeStart), b.CloneExpr(d.RangeEnd), b.CloneExpr(d.Body))
		} else {
			out = s.NewForMap(st.Span, b.CloneExpr(d.Var), b.CloneExpr(d.Iterable), b.CloneExpr(d.Body))
		}
		clone, _ := s.For(out)
		clone.CtxType = d.CtxType
		clone.FreeVars = append([]string(nil), d.FreeVars...)
		return out
	case StmtUnroll:
		d := *s.Unrolls.Get(p)
		return s.NewUnroll(st.Span, b.CloneExpr(d.Count), b.CloneExpr(d.Body))
	}
	return NoStmtID
}
