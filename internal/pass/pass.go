// Package pass runs the fixed sequence of front-end passes over one program.
//
// Passes exchange typed products through a Unit. A pass declares the
// products it requires and the products it provides; the Manager refuses to
// start a pipeline whose requirements can never be met and stops before the
// first pass that would run on a ledger holding errors.
package pass

import (
	"context"
	"errors"
	"fmt"

	"tracec/internal/ast"
	"tracec/internal/diag"
)

var (
	// ErrMissingProduct reports a required product that no earlier pass provides.
	ErrMissingProduct = errors.New("pass: missing product")
	// ErrLedgerNotClean reports a pipeline halted because the ledger holds errors.
	ErrLedgerNotClean = errors.New("pass: diagnostics ledger holds errors")
)

// Product names a value one pass hands to a later one.
type Product string

// Key is a typed handle for a Product.
type Key[T any] struct {
	name Product
}

// NewKey declares a product carrying values of type T.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: Product(name)}
}

// Product returns the untyped product name.
func (k Key[T]) Product() Product { return k.name }

// Pass is one step of the pipeline.
type Pass struct {
	Name     string
	Requires []Product
	Provides []Product
	Run      func(ctx context.Context, u *Unit) error
}

// Unit is the program a pipeline works on, with its ledger and products.
type Unit struct {
	Builder *ast.Builder
	File    ast.FileID
	Bag     *diag.Bag

	products map[Product]any
}

// NewUnit wraps a parsed program. A nil bag gets an unbounded one.
func NewUnit(b *ast.Builder, file ast.FileID, bag *diag.Bag) *Unit {
	if bag == nil {
		bag = diag.NewBag(0)
	}
	return &Unit{Builder: b, File: file, Bag: bag, products: make(map[Product]any)}
}

// Reporter returns a reporter writing into the unit's ledger.
func (u *Unit) Reporter() diag.Reporter {
	return diag.BagReporter{Bag: u.Bag}
}

// Has reports whether p was produced.
func (u *Unit) Has(p Product) bool {
	_, ok := u.products[p]
	return ok
}

// Products lists produced product names in no particular order.
func (u *Unit) Products() []Product {
	out := make([]Product, 0, len(u.products))
	for p := range u.products {
		out = append(out, p)
	}
	return out
}

// Put stores a product value.
func Put[T any](u *Unit, k Key[T], v T) {
	u.products[k.name] = v
}

// Get fetches a product value.
func Get[T any](u *Unit, k Key[T]) (T, error) {
	var zero T
	v, ok := u.products[k.name]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrMissingProduct, k.name)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %T", ErrMissingProduct, k.name, v)
	}
	return typed, nil
}

// Mark records a product that carries no value.
func Mark(u *Unit, p Product) {
	u.products[p] = struct{}{}
}
