package meta

import (
	"errors"
	"sort"
)

// Chain asks providers in order. ErrNotFound falls through to the next
// provider; any other error stops the lookup.
type Chain []Provider

var _ Provider = Chain(nil)

func chainLookup[T any](c Chain, notFound error, q func(Provider) (T, error)) (T, error) {
	var zero T
	for _, p := range c {
		v, err := q(p)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return zero, err
		}
		notFound = err
	}
	return zero, notFound
}

func (c Chain) Struct(name string) (*Struct, error) {
	return chainLookup(c, errNotFound(name), func(p Provider) (*Struct, error) { return p.Struct(name) })
}

func (c Chain) Enum(name string) (*Enum, error) {
	return chainLookup(c, errNotFound(name), func(p Provider) (*Enum, error) { return p.Enum(name) })
}

func (c Chain) Func(name string) (*Func, error) {
	return chainLookup(c, errNotFound(name), func(p Provider) (*Func, error) { return p.Func(name) })
}

func (c Chain) Global(name string) (*Type, error) {
	return chainLookup(c, errNotFound(name), func(p Provider) (*Type, error) { return p.Global(name) })
}

func (c Chain) TracepointFormat(category, event string) (*Struct, error) {
	return chainLookup(c, errNotFound(category+":"+event), func(p Provider) (*Struct, error) {
		return p.TracepointFormat(category, event)
	})
}

func (c Chain) DebugArgs(target, fn string) (*Func, error) {
	return chainLookup(c, errNotFound(target+":"+fn), func(p Provider) (*Func, error) {
		return p.DebugArgs(target, fn)
	})
}

// Iterators merges the iterator names of every provider.
func (c Chain) Iterators() ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range c {
		names, err := p.Iterators()
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

type notFoundError string

func (e notFoundError) Error() string { return "meta: not found: " + string(e) }
func (e notFoundError) Unwrap() error { return ErrNotFound }

func errNotFound(what string) error { return notFoundError(what) }
