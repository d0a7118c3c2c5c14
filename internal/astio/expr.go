package astio

import (
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"tracec/internal/ast"
	"tracec/internal/diag"
)

var intRe = regexp.MustCompile(`^-?(0[xX][0-9a-fA-F]+|0[bB][01]+|0[oO]?[0-7]+|[0-9]+)$`)

func quoted(n *yaml.Node) bool {
	return n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) != 0
}

// stmts decodes a statement list. `let` with a value expands to two
// statements.
func (d *decoder) stmts(n *yaml.Node) []ast.StmtID {
	var out []ast.StmtID
	for _, c := range d.seq(n) {
		out = append(out, d.stmt(c)...)
	}
	return out
}

func (d *decoder) block(n *yaml.Node) ast.ExprID {
	return d.b.Block(d.span(n), d.stmts(n)...)
}

func (d *decoder) stmt(n *yaml.Node) []ast.StmtID {
	sp := d.span(n)
	stmts := d.b.Stmts
	if n.Kind == yaml.ScalarNode && !quoted(n) {
		switch n.Value {
		case "return":
			return []ast.StmtID{stmts.NewJump(sp, ast.JumpReturn, ast.NoExprID)}
		case "break":
			return []ast.StmtID{stmts.NewJump(sp, ast.JumpBreak, ast.NoExprID)}
		case "continue":
			return []ast.StmtID{stmts.NewJump(sp, ast.JumpContinue, ast.NoExprID)}
		}
	}
	key, val, ok := single(n)
	if !ok {
		return []ast.StmtID{d.b.ExprStmt(d.expr(n))}
	}
	switch key {
	case "return":
		return []ast.StmtID{stmts.NewJump(sp, ast.JumpReturn, d.expr(val))}
	case "let":
		return d.let(n, val)
	case "set":
		args, ok := d.args(val, 2, 2, "set")
		if !ok {
			return nil
		}
		return d.assign(n, args[0], d.expr(args[1]))
	case "while":
		args, ok := d.args(val, 2, 2, "while")
		if !ok {
			return nil
		}
		return []ast.StmtID{stmts.NewWhile(sp, d.expr(args[0]), d.block(args[1]))}
	case "for":
		args, ok := d.args(val, 3, 4, "for")
		if !ok {
			return nil
		}
		v := d.variable(args[0])
		if len(args) == 3 {
			return []ast.StmtID{stmts.NewForMap(sp, v, d.expr(args[1]), d.block(args[2]))}
		}
		return []ast.StmtID{stmts.NewForRange(sp, v, d.expr(args[1]), d.expr(args[2]), d.block(args[3]))}
	case "unroll":
		args, ok := d.args(val, 2, 2, "unroll")
		if !ok {
			return nil
		}
		return []ast.StmtID{stmts.NewUnroll(sp, d.expr(args[0]), d.block(args[1]))}
	case "if":
		args, ok := d.args(val, 2, 3, "if")
		if !ok {
			return nil
		}
		elseID := ast.NoExprID
		if len(args) == 3 {
			elseID = d.block(args[2])
		}
		return []ast.StmtID{d.b.ExprStmt(d.b.Exprs.NewIf(sp, d.expr(args[0]), d.block(args[1]), elseID))}
	}
	return []ast.StmtID{d.b.ExprStmt(d.expr(n))}
}

// let: [$x] | [$x, type] | [$x, type, value]; an empty type leaves the
// variable untyped.
func (d *decoder) let(n, val *yaml.Node) []ast.StmtID {
	args, ok := d.args(val, 1, 3, "let")
	if !ok {
		return nil
	}
	typeName := ""
	if len(args) > 1 {
		typeName = name(args[1].Value)
	}
	v := d.variable(args[0])
	if v == ast.NoExprID {
		return nil
	}
	out := []ast.StmtID{d.b.Stmts.NewVarDecl(d.span(n), v, typeName)}
	if len(args) == 3 {
		target := d.b.Exprs.NewVariable(d.span(args[0]), name(args[0].Value))
		out = append(out, d.b.Stmts.NewAssignVar(d.span(n), target, d.expr(args[2])))
	}
	return out
}

func (d *decoder) assign(n, target *yaml.Node, value ast.ExprID) []ast.StmtID {
	sp := d.span(n)
	if target.Kind == yaml.ScalarNode && strings.HasPrefix(target.Value, "$") {
		return []ast.StmtID{d.b.Stmts.NewAssignVar(sp, d.variable(target), value)}
	}
	lhs := d.expr(target)
	if d.b.Exprs.Kind(lhs) != ast.ExprMap {
		d.errorf(diag.InpBadDocument, target, "can only assign to variables and maps")
		return nil
	}
	return []ast.StmtID{d.b.Stmts.NewAssignMap(sp, lhs, value)}
}

func (d *decoder) variable(n *yaml.Node) ast.ExprID {
	if n.Kind != yaml.ScalarNode || !strings.HasPrefix(n.Value, "$") {
		d.errorf(diag.InpBadLiteral, n, "expected a variable, got %q", n.Value)
		return ast.NoExprID
	}
	return d.b.Exprs.NewVariable(d.span(n), name(n.Value))
}

// single splits a one-key mapping.
func single(n *yaml.Node) (string, *yaml.Node, bool) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return "", nil, false
	}
	return n.Content[0].Value, n.Content[1], true
}

// args checks the operand list of a node.
func (d *decoder) args(n *yaml.Node, minN, maxN int, what string) ([]*yaml.Node, bool) {
	if n.Kind != yaml.SequenceNode || len(n.Content) < minN || len(n.Content) > maxN {
		if minN == maxN {
			d.errorf(diag.InpBadDocument, n, "%s expects %d operands", what, minN)
		} else {
			d.errorf(diag.InpBadDocument, n, "%s expects %d to %d operands", what, minN, maxN)
		}
		return nil, false
	}
	return n.Content, true
}

func (d *decoder) exprs(ns []*yaml.Node) []ast.ExprID {
	out := make([]ast.ExprID, 0, len(ns))
	for _, c := range ns {
		out = append(out, d.expr(c))
	}
	return out
}

// expr decodes one expression. Errors produce a zero integer so the tree
// stays well formed.
func (d *decoder) expr(n *yaml.Node) ast.ExprID {
	sp := d.span(n)
	exprs := d.b.Exprs
	switch n.Kind {
	case yaml.ScalarNode:
		return d.scalar(n)
	case yaml.SequenceNode:
		d.errorf(diag.InpUnknownNode, n, "a list is not an expression; use {tuple: [...]}")
		return exprs.NewInteger(sp, 0, false)
	case yaml.AliasNode:
		return d.expr(n.Alias)
	}
	key, val, ok := single(n)
	if !ok {
		d.errorf(diag.InpUnknownNode, n, "expression mappings take exactly one key")
		return exprs.NewInteger(sp, 0, false)
	}
	if strings.HasPrefix(key, "@") {
		return exprs.NewMap(sp, name(key), d.expr(val))
	}
	if op, ok := ast.ParseBinaryOp(key); ok && val.Kind == yaml.SequenceNode {
		args, ok := d.args(val, 2, 2, key)
		if !ok {
			return exprs.NewInteger(sp, 0, false)
		}
		return exprs.NewBinary(sp, op, d.expr(args[0]), d.expr(args[1]))
	}
	switch key {
	case "!", "~", "-", "*", "++", "--":
		op, _ := ast.ParseUnaryOp(key)
		return exprs.NewUnary(sp, op, d.expr(val), false)
	case "post++":
		return exprs.NewUnary(sp, ast.OpIncr, d.expr(val), true)
	case "post--":
		return exprs.NewUnary(sp, ast.OpDecr, d.expr(val), true)
	case "call":
		if val.Kind == yaml.ScalarNode {
			return exprs.NewCall(sp, name(val.Value), nil)
		}
		args, ok := d.args(val, 1, 1<<10, "call")
		if !ok {
			return exprs.NewInteger(sp, 0, false)
		}
		return exprs.NewCall(sp, name(args[0].Value), d.exprs(args[1:]))
	case "field":
		args, ok := d.args(val, 2, 2, "field")
		if !ok {
			return exprs.NewInteger(sp, 0, false)
		}
		return exprs.NewField(sp, d.expr(args[0]), name(args[1].Value))
	case "index":
		args, ok := d.args(val, 2, 2, "index")
		if !ok {
			return exprs.NewInteger(sp, 0, false)
		}
		return exprs.NewIndex(sp, d.expr(args[0]), d.expr(args[1]))
	case "tindex":
		args, ok := d.args(val, 2, 2, "tindex")
		if !ok {
			return exprs.NewInteger(sp, 0, false)
		}
		idx, err := strconv.ParseUint(args[1].Value, 10, 32)
		if err != nil {
			d.errorf(diag.InpBadLiteral, args[1], "invalid tuple index %q", args[1].Value)
			return exprs.NewInteger(sp, 0, false)
		}
		return exprs.NewTupleIndex(sp, d.expr(args[0]), uint32(idx)) // #nosec G115 -- parsed with bitSize 32
	case "cast":
		args, ok := d.args(val, 2, 2, "cast")
		if !ok {
			return exprs.NewInteger(sp, 0, false)
		}
		return exprs.NewCast(sp, name(args[0].Value), d.expr(args[1]))
	case "tuple":
		return exprs.NewTuple(sp, d.exprs(d.seq(val)))
	case "record":
		if !d.mapping(val, "record") {
			return exprs.NewInteger(sp, 0, false)
		}
		fields := make([]ast.NamedExpr, 0, len(val.Content)/2)
		for i := 0; i+1 < len(val.Content); i += 2 {
			fields = append(fields, ast.NamedExpr{Name: name(val.Content[i].Value), Expr: d.expr(val.Content[i+1])})
		}
		return exprs.NewRecord(sp, fields)
	case "if":
		args, ok := d.args(val, 3, 3, "if")
		if !ok {
			return exprs.NewInteger(sp, 0, false)
		}
		arm := func(a *yaml.Node) ast.ExprID {
			if a.Kind == yaml.SequenceNode {
				return d.block(a)
			}
			return d.expr(a)
		}
		return exprs.NewIf(sp, d.expr(args[0]), arm(args[1]), arm(args[2]))
	case "block":
		if val.Kind == yaml.MappingNode {
			bf := d.fields(val, "stmts", "value")
			var stmts []ast.StmtID
			if s := bf["stmts"]; s != nil {
				stmts = d.stmts(s)
			}
			value := ast.NoExprID
			if v := bf["value"]; v != nil {
				value = d.expr(v)
			}
			return exprs.NewBlock(sp, stmts, value)
		}
		return d.block(val)
	case "sizeof":
		if val.Kind == yaml.ScalarNode && !strings.HasPrefix(val.Value, "$") && !strings.HasPrefix(val.Value, "@") {
			return exprs.NewSizeof(sp, name(val.Value), ast.NoExprID)
		}
		return exprs.NewSizeof(sp, "", d.expr(val))
	case "offsetof":
		args, ok := d.args(val, 2, 64, "offsetof")
		if !ok {
			return exprs.NewInteger(sp, 0, false)
		}
		path := make([]string, 0, len(args)-1)
		for _, f := range args[1:] {
			path = append(path, name(f.Value))
		}
		base := args[0]
		if base.Kind == yaml.ScalarNode && !strings.HasPrefix(base.Value, "$") && !strings.HasPrefix(base.Value, "@") {
			return exprs.NewOffsetof(sp, name(base.Value), ast.NoExprID, path)
		}
		return exprs.NewOffsetof(sp, "", d.expr(base), path)
	case "comptime":
		return exprs.NewComptime(sp, d.expr(val))
	case "ident":
		return exprs.NewIdent(sp, name(val.Value))
	case "builtin":
		return exprs.NewBuiltin(sp, name(val.Value))
	case "str":
		return exprs.NewString(sp, val.Value)
	}
	d.errorf(diag.InpUnknownNode, n, "unknown expression %q", key)
	return exprs.NewInteger(sp, 0, false)
}

func (d *decoder) scalar(n *yaml.Node) ast.ExprID {
	sp := d.span(n)
	exprs := d.b.Exprs
	v := n.Value
	// YAML wants "@m" quoted, so maps win over string literals
	if strings.HasPrefix(v, "@") {
		return exprs.NewMap(sp, name(v), ast.NoExprID)
	}
	if quoted(n) {
		return exprs.NewString(sp, v)
	}
	switch {
	case intRe.MatchString(v):
		neg := strings.HasPrefix(v, "-")
		digits := strings.TrimPrefix(v, "-")
		mag, err := strconv.ParseUint(digits, 0, 64)
		if err != nil {
			d.errorf(diag.InpBadLiteral, n, "integer literal out of range: %s", v)
			return exprs.NewInteger(sp, 0, false)
		}
		return exprs.NewInteger(sp, mag, neg)
	case v == "true" || v == "false":
		return exprs.NewBoolean(sp, v == "true")
	case strings.HasPrefix(v, "$"):
		return exprs.NewVariable(sp, name(v))
	case v == "":
		d.errorf(diag.InpBadLiteral, n, "empty expression")
		return exprs.NewInteger(sp, 0, false)
	}
	return exprs.NewBuiltin(sp, name(v))
}
