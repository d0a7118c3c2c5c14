package sema

import (
	"context"
	"errors"

	"tracec/internal/ast"
	"tracec/internal/diag"
	"tracec/internal/meta"
	"tracec/internal/observ"
	"tracec/internal/pass"
	"tracec/internal/types"
)

// Products exchanged by the semantic passes.
var (
	ContextTypes       = pass.NewKey[*ContextInfo]("context-resolved")
	ControlFlowChecked = pass.NewKey[struct{}]("control-flow-checked")
	TypesResolved      = pass.NewKey[*Tables]("types-resolved")
	TypeChecked        = pass.NewKey[struct{}]("type-checked")
)

// Limits bound what programs may ask for.
type Limits struct {
	// MaxStrlen is the largest string the program may hold, terminator
	// included.
	MaxStrlen uint32
	// MaxIterations caps resolver visits before the conclusive one.
	MaxIterations int
	// MaxMapKeys is the default number of entries of undeclared maps.
	MaxMapKeys uint64
}

// DefaultLimits mirrors the defaults of the reference tool.
func DefaultLimits() Limits {
	return Limits{MaxStrlen: 1024, MaxIterations: 64, MaxMapKeys: 4096}
}

// Features are kernel capabilities some constructs depend on.
type Features struct {
	ForEachMapElem      bool
	MapLookupPercpuElem bool
	GetFuncIP           bool
}

// AllFeatures enables every optional kernel feature.
func AllFeatures() Features {
	return Features{ForEachMapElem: true, MapLookupPercpuElem: true, GetFuncIP: true}
}

// Options configure the semantic passes.
type Options struct {
	// Types is shared with later stages; a fresh interner is used when nil.
	Types *types.Interner
	// Provider serves kernel and user-space type metadata.
	Provider meta.Provider
	Limits   Limits
	Features Features
	// UnstableMapDecl enables `let @m = hash(n);` declarations.
	UnstableMapDecl bool
	// PanicOnBug turns internal errors into panics carrying *InternalError.
	PanicOnBug bool
	// Timer and Progress are handed to the pass manager.
	Timer    *observ.Timer
	Progress pass.ProgressSink
}

// Session holds state shared by the semantic passes of one program.
type Session struct {
	opts  Options
	types *types.Interner
	imp   *importer
}

// NewSession prepares a session; zero limits fall back to DefaultLimits.
func NewSession(opts Options) *Session {
	def := DefaultLimits()
	if opts.Limits.MaxStrlen == 0 {
		opts.Limits.MaxStrlen = def.MaxStrlen
	}
	if opts.Limits.MaxIterations == 0 {
		opts.Limits.MaxIterations = def.MaxIterations
	}
	if opts.Limits.MaxMapKeys == 0 {
		opts.Limits.MaxMapKeys = def.MaxMapKeys
	}
	in := opts.Types
	if in == nil {
		in = types.NewInterner()
		opts.Types = in
	}
	return &Session{opts: opts, types: in, imp: newImporter(in, opts.Provider)}
}

// Types returns the session interner.
func (s *Session) Types() *types.Interner { return s.types }

// Passes returns the semantic pipeline in execution order.
func (s *Session) Passes() []pass.Pass {
	return []pass.Pass{
		{
			Name:     "context",
			Provides: []pass.Product{ContextTypes.Product()},
			Run:      s.runContext,
		},
		{
			Name:     "control-flow",
			Requires: []pass.Product{ContextTypes.Product()},
			Provides: []pass.Product{ControlFlowChecked.Product()},
			Run:      s.runControlFlow,
		},
		{
			Name:     "resolve-types",
			Requires: []pass.Product{ContextTypes.Product(), ControlFlowChecked.Product()},
			Provides: []pass.Product{TypesResolved.Product()},
			Run:      s.runResolve,
		},
		{
			Name:     "type-check",
			Requires: []pass.Product{TypesResolved.Product()},
			Provides: []pass.Product{TypeChecked.Product()},
			Run:      s.runTypeCheck,
		},
	}
}

// Result is what Check hands back.
type Result struct {
	Types   *types.Interner
	Context *ContextInfo
	Tables  *Tables
	// Err is non-nil when the pipeline stopped early: a halted ledger
	// (pass.ErrLedgerNotClean), a cancelled context or an infrastructure
	// failure.
	Err error
}

// Ok reports whether every semantic pass ran to completion.
func (r Result) Ok() bool { return r.Err == nil && r.Tables != nil }

// Check runs the semantic passes over one parsed program, reporting into bag.
func Check(ctx context.Context, b *ast.Builder, file ast.FileID, bag *diag.Bag, opts Options) Result {
	s := NewSession(opts)
	u := pass.NewUnit(b, file, bag)
	m := pass.NewManager(s.Passes()...)
	m.Timer = opts.Timer
	m.Sink = opts.Progress
	err := m.Run(ctx, u)
	res := Result{Types: s.types, Err: err}
	if info, gerr := pass.Get(u, ContextTypes); gerr == nil {
		res.Context = info
	}
	if tables, gerr := pass.Get(u, TypesResolved); gerr == nil {
		res.Tables = tables
	}
	if err == nil && u.Bag.HasErrors() {
		res.Err = pass.ErrLedgerNotClean
	}
	return res
}

// Halted reports whether err only means that user errors stopped the pipeline.
func Halted(err error) bool {
	return errors.Is(err, pass.ErrLedgerNotClean)
}
