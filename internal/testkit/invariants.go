package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"tracec/internal/ast"
	"tracec/internal/source"
)

// CheckSpanInvariants runs span invariants on a decoded program:
// 1) the file span lies within the document content
// 2) every item span is non-empty and inside the file span
// 3) every expression reachable from an item lies inside the file span
func CheckSpanInvariants(b *ast.Builder, fileID ast.FileID, sf *source.File) error {
	if b == nil || sf == nil {
		return fmt.Errorf("nil builder or file")
	}
	f := b.Files.Get(fileID)
	if f == nil {
		return fmt.Errorf("file node not found")
	}
	if f.Span.File != sf.ID {
		return fmt.Errorf("file span points to different file id: got=%d want=%d", f.Span.File, sf.ID)
	}
	lenContent, err := safecast.Conv[uint32](len(sf.Content))
	if err != nil {
		return fmt.Errorf("len content overflow: %w", err)
	}
	if f.Span.End > lenContent {
		return fmt.Errorf("file span end beyond content: %d > %d", f.Span.End, lenContent)
	}

	inside := func(what string, sp source.Span) error {
		if sp.File != sf.ID {
			return fmt.Errorf("%s span file mismatch: got=%d want=%d", what, sp.File, sf.ID)
		}
		if sp.Start < f.Span.Start || sp.End > f.Span.End {
			return fmt.Errorf("%s span %v is outside file span %v", what, sp, f.Span)
		}
		return nil
	}

	for _, it := range f.Items {
		item := b.Items.Get(it)
		if item == nil {
			return fmt.Errorf("nil item for id=%d", it)
		}
		if item.Span.End <= item.Span.Start {
			return fmt.Errorf("empty item span: %v", item.Span)
		}
		if err := inside("item", item.Span); err != nil {
			return err
		}
		var roots []ast.ExprID
		if p, ok := b.Items.Probe(it); ok {
			roots = append(roots, p.Pred, p.Body)
		}
		if sp, ok := b.Items.Subprog(it); ok {
			roots = append(roots, sp.Body)
		}
		for _, root := range roots {
			if !root.IsValid() {
				continue
			}
			var bad error
			b.InspectExpr(root, func(id ast.ExprID) bool {
				if bad != nil {
					return false
				}
				bad = inside(b.Exprs.Kind(id).String(), b.Exprs.Span(id))
				return bad == nil
			})
			if bad != nil {
				return bad
			}
		}
	}
	return nil
}
