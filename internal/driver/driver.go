// Package driver checks program documents end to end: decoding, metadata
// loading, the semantic passes and diagnostic post-processing.
package driver

import (
	"context"
	"fmt"
	"path/filepath"

	"tracec/internal/astio"
	"tracec/internal/config"
	"tracec/internal/diag"
	"tracec/internal/meta"
	"tracec/internal/observ"
	"tracec/internal/pass"
	"tracec/internal/sema"
	"tracec/internal/source"
	"tracec/internal/trace"
)

// Options configure Check and CheckDir.
type Options struct {
	// Config supplies limits and metadata sources. When nil, tracec.toml is
	// discovered above the program (or the directory) being checked.
	Config *config.Config
	// Catalogs are loaded after the configured ones.
	Catalogs []string
	// BTF overrides [metadata] btf.
	BTF string
	// Provider is consulted before every configured source.
	Provider meta.Provider
	// NoCache disables the catalog snapshot cache.
	NoCache bool
	// MaxDiagnostics overrides [limits] max_diagnostics when positive.
	MaxDiagnostics   int
	IgnoreWarnings   bool
	WarningsAsErrors bool
	// StrictBugs panics on internal invariant violations.
	StrictBugs    bool
	EnableTimings bool
	// Progress receives pass events; it must tolerate concurrent calls in
	// CheckDir.
	Progress pass.ProgressSink
}

// Result is the outcome of checking one program.
type Result struct {
	Path    string
	FileSet *source.FileSet
	Program *astio.Program
	Bag     *diag.Bag
	Sema    sema.Result
	Timing  *observ.Report
}

// Ok reports whether the program passed every check.
func (r *Result) Ok() bool {
	return r != nil && r.Bag.Ok() && r.Sema.Ok()
}

// session is what programs checked together share.
type session struct {
	cfg      *config.Config
	opts     Options
	provider meta.Provider
}

func newSession(startDir string, opts Options) (*session, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Discover(startDir); err != nil {
			return nil, err
		}
	}
	src := Sources{
		Extra:    opts.Provider,
		Catalogs: append(append([]string(nil), cfg.Metadata.Catalogs...), opts.Catalogs...),
		BTF:      cfg.Metadata.BTF,
	}
	if opts.BTF != "" {
		src.BTF = opts.BTF
	}
	if !opts.NoCache && len(src.Catalogs) > 0 {
		cache, err := OpenSnapshotCache(cfg.Metadata.Cache, "tracec")
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot cache: %w", err)
		}
		src.Cache = cache
	}
	provider, err := OpenProvider(src)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, opts: opts, provider: provider}, nil
}

func (s *session) maxDiagnostics() int {
	if s.opts.MaxDiagnostics > 0 {
		return s.opts.MaxDiagnostics
	}
	return s.cfg.Limits.MaxDiagnostics
}

func (s *session) semaOptions(timer *observ.Timer) sema.Options {
	lim := s.cfg.Limits
	feat := s.cfg.Features
	return sema.Options{
		Provider: s.provider,
		Limits: sema.Limits{
			MaxStrlen:     lim.MaxStrlen,
			MaxIterations: lim.MaxIterations,
			MaxMapKeys:    lim.MaxMapKeys,
		},
		Features: sema.Features{
			ForEachMapElem:      feat.ForEachMapElem,
			MapLookupPercpuElem: feat.MapLookupPercpuElem,
			GetFuncIP:           feat.GetFuncIP,
		},
		UnstableMapDecl: s.cfg.Unstable.MapDecl,
		PanicOnBug:      s.opts.StrictBugs,
		Timer:           timer,
		Progress:        s.opts.Progress,
	}
}

// Check decodes and checks the program document at path.
func Check(ctx context.Context, path string, opts Options) (*Result, error) {
	s, err := newSession(filepath.Dir(path), opts)
	if err != nil {
		return nil, err
	}
	fs := source.NewFileSet()
	id, err := fs.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	return s.check(ctx, fs, id)
}

// CheckSource checks an in-memory document; name is only used in
// diagnostics. Without opts.Config the defaults apply.
func CheckSource(ctx context.Context, name string, content []byte, opts Options) (*Result, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	s, err := newSession("", opts)
	if err != nil {
		return nil, err
	}
	fs := source.NewFileSet()
	return s.check(ctx, fs, fs.AddVirtual(name, content))
}

// check only reads fs, so programs of one file set may be checked in
// parallel.
func (s *session) check(ctx context.Context, fs *source.FileSet, id source.FileID) (*Result, error) {
	file := fs.Get(id)
	ctx, span := trace.StartSpan(ctx, trace.ScopeDriver, "check")
	span.WithExtra("path", file.Path)

	var timer *observ.Timer
	begin := func(string) int { return -1 }
	end := func(int, string) {}
	if s.opts.EnableTimings {
		timer = observ.NewTimer()
		begin = timer.Begin
		end = timer.End
	}

	bag := diag.NewBag(s.maxDiagnostics())
	idx := begin("decode")
	prog := astio.Decode(fs, id, diag.BagReporter{Bag: bag})
	note := ""
	if f := prog.Builder.Files.Get(prog.File); f != nil {
		note = fmt.Sprintf("items=%d", len(f.Items))
	}
	end(idx, note)

	res := &Result{Path: file.Path, FileSet: fs, Program: prog, Bag: bag}
	res.Sema = sema.Check(ctx, prog.Builder, prog.File, bag, s.semaOptions(timer))

	if s.opts.IgnoreWarnings {
		bag.Filter(func(d diag.Diagnostic) bool {
			return d.Severity >= diag.SevError
		})
	}
	if s.opts.WarningsAsErrors {
		bag.Transform(func(d diag.Diagnostic) diag.Diagnostic {
			if d.Severity == diag.SevWarning {
				d.Severity = diag.SevError
			}
			return d
		})
	}
	bag.Sort()

	if timer != nil {
		report := timer.Report()
		res.Timing = &report
	}
	span.End(fmt.Sprintf("errors=%d warnings=%d", bag.Count(diag.SevError), bag.Count(diag.SevWarning)))

	if err := res.Sema.Err; err != nil && !sema.Halted(err) {
		return res, err
	}
	return res, nil
}
