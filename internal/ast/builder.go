package ast

import (
	"tracec/internal/source"
)

type Hints struct{ Files, Items, Stmts, Exprs uint }

// Builder owns every arena of one compilation. Passes receive the builder
// and mutate nodes in place through it.
type Builder struct {
	Files *Files
	Items *Items
	Stmts *Stmts
	Exprs *Exprs
}

func NewBuilder(hints Hints) *Builder {
	if hints.Files == 0 {
		hints.Files = 1 << 2
	}
	if hints.Items == 0 {
		hints.Items = 1 << 6
	}
	if hints.Stmts == 0 {
		hints.Stmts = 1 << 8
	}
	if hints.Exprs == 0 {
		hints.Exprs = 1 << 9
	}
	return &Builder{
		Files: NewFiles(hints.Files),
		Items: NewItems(hints.Items),
		Stmts: NewStmts(hints.Stmts),
		Exprs: NewExprs(hints.Exprs),
	}
}

func (b *Builder) NewFile(sp source.Span) FileID {
	return b.Files.New(sp)
}

func (b *Builder) PushItem(file FileID, item ItemID) {
	f := b.Files.Get(file)
	f.Items = append(f.Items, item)
}

// Probes returns the probe items of file in source order.
func (b *Builder) Probes(file FileID) []ItemID {
	return b.itemsOf(file, ItemProbe)
}

// Subprogs returns the subprogram items of file in source order.
func (b *Builder) Subprogs(file FileID) []ItemID {
	return b.itemsOf(file, ItemSubprog)
}

// MapDecls returns the map declaration items of file in source order.
func (b *Builder) MapDecls(file FileID) []ItemID {
	return b.itemsOf(file, ItemMapDecl)
}

func (b *Builder) itemsOf(file FileID, kind ItemKind) []ItemID {
	f := b.Files.Get(file)
	if f == nil {
		return nil
	}
	var out []ItemID
	for _, id := range f.Items {
		if item := b.Items.Get(id); item != nil && item.Kind == kind {
			out = append(out, id)
		}
	}
	return out
}

// Block wraps stmts into a block expression spanning them.
func (b *Builder) Block(sp source.Span, stmts ...StmtID) ExprID {
	return b.Exprs.NewBlock(sp, stmts, NoExprID)
}

// ExprStmt is a shortcut for wrapping an expression into a statement.
func (b *Builder) ExprStmt(expr ExprID) StmtID {
	return b.Stmts.NewExpr(b.Exprs.Span(expr), expr)
}
