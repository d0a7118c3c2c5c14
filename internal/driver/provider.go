package driver

import (
	"errors"
	"fmt"
	"sync"

	"tracec/internal/meta"
)

// KernelBTF is the [metadata] btf value selecting the running kernel.
const KernelBTF = "kernel"

// Sources lists where type metadata comes from, in lookup order: the
// extra provider, then catalogs, then BTF. Tracefs formats are appended
// when BTF is the running kernel.
type Sources struct {
	Extra    meta.Provider
	Catalogs []string
	BTF      string
	Cache    *SnapshotCache
}

// OpenProvider loads every source. The result is safe for concurrent use.
func OpenProvider(src Sources) (meta.Provider, error) {
	var chain meta.Chain
	if src.Extra != nil {
		chain = append(chain, src.Extra)
	}
	if len(src.Catalogs) > 0 {
		merged := &meta.Catalog{}
		for _, path := range src.Catalogs {
			cat, err := src.Cache.LoadCatalog(path)
			if err != nil {
				return nil, err
			}
			merged.Merge(cat)
		}
		chain = append(chain, merged)
	}
	switch src.BTF {
	case "":
	case KernelBTF:
		p, err := meta.KernelBTF()
		if err != nil {
			return nil, err
		}
		chain = append(chain, p)
		// форматы tracepoint'ов в BTF не попадают
		if tfs, err := meta.NewTracefs(""); err == nil {
			chain = append(chain, tfs)
		} else if !errors.Is(err, meta.ErrNotFound) {
			return nil, fmt.Errorf("failed to open tracefs: %w", err)
		}
	default:
		p, err := meta.LoadBTF(src.BTF)
		if err != nil {
			return nil, err
		}
		chain = append(chain, p)
	}
	return &syncProvider{p: chain}, nil
}

// syncProvider serialises lookups: catalogs and BTF providers memoise
// decoded records.
type syncProvider struct {
	mu sync.Mutex
	p  meta.Provider
}

var _ meta.Provider = (*syncProvider)(nil)

func (s *syncProvider) Struct(name string) (*meta.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Struct(name)
}

func (s *syncProvider) Enum(name string) (*meta.Enum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Enum(name)
}

func (s *syncProvider) Func(name string) (*meta.Func, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Func(name)
}

func (s *syncProvider) Global(name string) (*meta.Type, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Global(name)
}

func (s *syncProvider) Iterators() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Iterators()
}

func (s *syncProvider) TracepointFormat(category, event string) (*meta.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.TracepointFormat(category, event)
}

func (s *syncProvider) DebugArgs(target, fn string) (*meta.Func, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.DebugArgs(target, fn)
}
