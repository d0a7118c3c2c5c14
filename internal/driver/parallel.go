package driver

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"tracec/internal/config"
	"tracec/internal/diag"
	"tracec/internal/observ"
	"tracec/internal/source"
)

// DirResult collects the programs of one directory.
type DirResult struct {
	FileSet *source.FileSet
	// Results are in path order; a program that failed to load has a
	// result with an InpBadDocument diagnostic and no Program.
	Results []*Result
	// Timing merges per-program reports by phase name.
	Timing *observ.Report
}

// Ok reports whether every program passed.
func (d *DirResult) Ok() bool {
	for _, r := range d.Results {
		if !r.Ok() {
			return false
		}
	}
	return true
}

// listPrograms returns program documents under dir, sorted. Catalogs and
// the config file are not programs.
func listPrograms(dir string, skip map[string]struct{}) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml", ".json":
		default:
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if _, ok := skip[abs]; ok {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// CheckDir checks every program under dir with up to jobs workers
// (GOMAXPROCS when jobs <= 0). Metadata is loaded once and shared.
func CheckDir(ctx context.Context, dir string, opts Options, jobs int) (*DirResult, error) {
	s, err := newSession(dir, opts)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]struct{})
	for _, p := range append(append([]string(nil), s.cfg.Metadata.Catalogs...), opts.Catalogs...) {
		if abs, err := filepath.Abs(p); err == nil {
			skip[abs] = struct{}{}
		}
	}
	files, err := listPrograms(dir, skip)
	if err != nil {
		return nil, err
	}

	// FileSet заполняется до запуска воркеров, дальше только читается
	fileSet := source.NewFileSet()
	fileIDs := make(map[string]source.FileID, len(files))
	loadErrors := make(map[string]error)
	for _, path := range files {
		id, err := fileSet.Load(path)
		if err != nil {
			// пустой документ, чтобы у диагностики был путь
			id = fileSet.AddVirtual(path, nil)
			loadErrors[path] = err
		}
		fileIDs[path] = id
	}

	out := &DirResult{FileSet: fileSet, Results: make([]*Result, len(files))}
	if len(files) == 0 {
		return out, nil
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(files)))
	for i, path := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			if loadErr, failed := loadErrors[path]; failed {
				bag := diag.NewBag(s.maxDiagnostics())
				bag.Add(diag.NewError(diag.InpBadDocument, source.Span{File: fileIDs[path]}, "failed to load program: "+loadErr.Error()))
				out.Results[i] = &Result{Path: path, FileSet: fileSet, Bag: bag}
				return nil
			}
			// индекс i уникален для горутины, мьютекс не нужен
			res, err := s.check(gctx, fileSet, fileIDs[path])
			out.Results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	if opts.EnableTimings {
		reports := make([]observ.Report, 0, len(out.Results))
		for _, r := range out.Results {
			if r != nil && r.Timing != nil {
				reports = append(reports, *r.Timing)
			}
		}
		merged := observ.Merge(reports...)
		out.Timing = &merged
	}
	return out, nil
}

// DiscoverConfig runs config.Discover from path, or from its directory
// when path is a file.
func DiscoverConfig(path string) (*config.Config, error) {
	dir := path
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		dir = filepath.Dir(path)
	}
	return config.Discover(dir)
}
