package diagfmt

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"tracec/internal/ast"
	"tracec/internal/source"
	"tracec/internal/types"
)

// TreeOpts configures Tree.
type TreeOpts struct {
	// Types annotates resolved expressions with their type when set.
	Types *types.Interner
	// Spans appends line:col ranges to items and statements.
	Spans bool
}

type treeNode struct {
	label    string
	children []*treeNode
}

func (n *treeNode) add(children ...*treeNode) *treeNode {
	for _, c := range children {
		if c != nil {
			n.children = append(n.children, c)
		}
	}
	return n
}

type treeBuilder struct {
	b    *ast.Builder
	fs   *source.FileSet
	opts TreeOpts
}

// Tree writes the program of file as an indented tree:
//
//	Program prog.yaml
//	└─ Probe kprobe:do_nanosleep
//	   └─ AssignMapStatement
//	      ├─ Map @m :: hash[uint32]int64
//	      ...
func Tree(w io.Writer, b *ast.Builder, file ast.FileID, fs *source.FileSet, opts TreeOpts) error {
	f := b.Files.Get(file)
	if f == nil {
		return fmt.Errorf("file %d not found", file)
	}
	tb := &treeBuilder{b: b, fs: fs, opts: opts}
	header := "Program"
	if fs != nil {
		if sf := fs.Get(f.Span.File); sf != nil {
			header += " " + sf.FormatPath("auto", "")
		}
	}
	root := &treeNode{label: header}
	for _, it := range f.Items {
		root.add(tb.item(it))
	}
	var sb strings.Builder
	sb.WriteString(root.label)
	sb.WriteByte('\n')
	writeChildren(&sb, root, "")
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeChildren(sb *strings.Builder, n *treeNode, prefix string) {
	for i, c := range n.children {
		marker, next := "├─ ", "│  "
		if i == len(n.children)-1 {
			marker, next = "└─ ", "   "
		}
		sb.WriteString(prefix + marker + c.label + "\n")
		writeChildren(sb, c, prefix+next)
	}
}

func (tb *treeBuilder) span(sp source.Span) string {
	if !tb.opts.Spans || tb.fs == nil {
		return ""
	}
	start, end := tb.fs.Resolve(sp)
	return fmt.Sprintf(" (%d:%d-%d:%d)", start.Line, start.Col, end.Line, end.Col)
}

func (tb *treeBuilder) item(id ast.ItemID) *treeNode {
	it := tb.b.Items.Get(id)
	if it == nil {
		return &treeNode{label: "<nil item>"}
	}
	switch it.Kind {
	case ast.ItemMapDecl:
		d, _ := tb.b.Items.MapDecl(id)
		return &treeNode{label: fmt.Sprintf("MapDecl %s %s(%d)%s", d.Name, d.BpfType, d.MaxEntries, tb.span(it.Span))}
	case ast.ItemSubprog:
		sp, _ := tb.b.Items.Subprog(id)
		params := make([]string, len(sp.Params))
		for i, p := range sp.Params {
			params[i] = p.TypeName + " " + p.Name
		}
		ret := sp.ReturnTypeName
		if ret == "" {
			ret = "void"
		}
		n := &treeNode{label: fmt.Sprintf("Subprog %s(%s): %s%s", sp.Name, strings.Join(params, ", "), ret, tb.span(it.Span))}
		return n.add(tb.blockChildren(sp.Body)...)
	case ast.ItemProbe:
		p, _ := tb.b.Items.Probe(id)
		n := &treeNode{label: "Probe " + p.Name() + tb.span(it.Span)}
		if p.Pred.IsValid() {
			n.add((&treeNode{label: "Predicate"}).add(tb.expr(p.Pred)))
		}
		return n.add(tb.blockChildren(p.Body)...)
	}
	return &treeNode{label: "<unknown item>"}
}

// blockChildren flattens a body block into its statements.
func (tb *treeBuilder) blockChildren(id ast.ExprID) []*treeNode {
	blk, ok := tb.b.Exprs.Block(id)
	if !ok {
		return []*treeNode{tb.expr(id)}
	}
	out := make([]*treeNode, 0, len(blk.Stmts)+1)
	for _, st := range blk.Stmts {
		out = append(out, tb.stmt(st))
	}
	if blk.Value.IsValid() {
		out = append(out, tb.expr(blk.Value))
	}
	return out
}

func (tb *treeBuilder) stmt(id ast.StmtID) *treeNode {
	s := tb.b.Stmts
	n := &treeNode{label: s.Kind(id).String() + tb.span(s.Span(id))}
	switch s.Kind(id) {
	case ast.StmtExpr:
		d, _ := s.Expr(id)
		n.add(tb.expr(d.Expr))
	case ast.StmtVarDecl:
		d, _ := s.VarDecl(id)
		if d.TypeName != "" {
			n.label += " : " + d.TypeName
		}
		n.add(tb.expr(d.Var))
	case ast.StmtAssignVar:
		d, _ := s.AssignVar(id)
		n.add(tb.expr(d.Var), tb.expr(d.Value))
	case ast.StmtAssignMap:
		d, _ := s.AssignMap(id)
		n.add(tb.expr(d.Map), tb.expr(d.Value))
	case ast.StmtJump:
		d, _ := s.Jump(id)
		n.label = "Jump " + d.Kind.String() + tb.span(s.Span(id))
		n.add(tb.expr(d.Value))
	case ast.StmtWhile:
		d, _ := s.While(id)
		n.add(tb.expr(d.Cond), (&treeNode{label: "Body"}).add(tb.blockChildren(d.Body)...))
	case ast.StmtFor:
		d, _ := s.For(id)
		n.add(tb.expr(d.Var))
		if d.IsRange() {
			n.add((&treeNode{label: "Range"}).add(tb.expr(d.RangeStart), tb.expr(d.RangeEnd)))
		} else {
			n.add(tb.expr(d.Iterable))
		}
		if len(d.FreeVars) > 0 {
			n.add(&treeNode{label: "Captures " + strings.Join(d.FreeVars, ", ")})
		}
		n.add((&treeNode{label: "Body"}).add(tb.blockChildren(d.Body)...))
	case ast.StmtUnroll:
		d, _ := s.Unroll(id)
		n.add(tb.expr(d.Count), (&treeNode{label: "Body"}).add(tb.blockChildren(d.Body)...))
	}
	return n
}

func (tb *treeBuilder) expr(id ast.ExprID) *treeNode {
	if !id.IsValid() {
		return nil
	}
	e := tb.b.Exprs
	x := e.Get(id)
	if x == nil {
		return &treeNode{label: "<nil expr>"}
	}
	n := &treeNode{label: x.Kind.String()}
	detail := ""
	switch x.Kind {
	case ast.ExprInteger:
		d, _ := e.Integer(id)
		detail = strconv.FormatInt(d.Int64(), 10)
		if !d.Negative {
			detail = strconv.FormatUint(d.Value, 10)
		}
	case ast.ExprBoolean:
		d, _ := e.Boolean(id)
		detail = strconv.FormatBool(d.Value)
	case ast.ExprString:
		d, _ := e.StringLit(id)
		detail = strconv.Quote(d.Value)
	case ast.ExprBuiltin:
		d, _ := e.Builtin(id)
		detail = d.Name
	case ast.ExprIdent:
		d, _ := e.Ident(id)
		detail = d.Name
	case ast.ExprCall:
		d, _ := e.Call(id)
		detail = d.Func
	case ast.ExprSizeof:
		d, _ := e.Sizeof(id)
		detail = d.TypeName
	case ast.ExprOffsetof:
		d, _ := e.Offsetof(id)
		detail = strings.TrimSpace(d.TypeName + " " + strings.Join(d.Fields, "."))
	case ast.ExprMap:
		d, _ := e.Map(id)
		detail = d.Name
	case ast.ExprVariable:
		d, _ := e.Variable(id)
		detail = d.Name
	case ast.ExprBinary:
		d, _ := e.Binary(id)
		detail = d.Op.String()
	case ast.ExprUnary:
		d, _ := e.Unary(id)
		detail = d.Op.String()
		if d.Postfix {
			detail += " (postfix)"
		}
	case ast.ExprField:
		d, _ := e.Field(id)
		detail = "." + d.Field
	case ast.ExprTupleIndex:
		d, _ := e.TupleIndex(id)
		detail = "." + strconv.FormatUint(uint64(d.Index), 10)
	case ast.ExprCast:
		d, _ := e.Cast(id)
		detail = "(" + d.TypeName + ")"
		if d.Implicit {
			detail = "implicit"
		}
	case ast.ExprRecord:
		d, _ := e.Record(id)
		for _, f := range d.Fields {
			n.add((&treeNode{label: f.Name}).add(tb.expr(f.Expr)))
		}
	case ast.ExprIf:
		d, _ := e.If(id)
		n.add(tb.expr(d.Cond))
		n.add((&treeNode{label: "Then"}).add(tb.blockChildren(d.Then)...))
		if d.Else.IsValid() {
			n.add((&treeNode{label: "Else"}).add(tb.blockChildren(d.Else)...))
		}
	case ast.ExprBlock:
		n.add(tb.blockChildren(id)...)
	}
	if detail != "" {
		n.label += " " + detail
	}
	if in := tb.opts.Types; in != nil && x.Type != types.None {
		n.label += " :: " + types.Label(in, x.Type)
	}
	switch x.Kind {
	case ast.ExprRecord, ast.ExprIf, ast.ExprBlock:
	default:
		for _, c := range tb.b.ExprChildren(id) {
			n.add(tb.expr(c))
		}
	}
	return n
}
