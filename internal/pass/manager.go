package pass

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"tracec/internal/observ"
	"tracec/internal/trace"
)

// Manager owns the ordered pass list.
type Manager struct {
	passes []Pass
	// Timer, when set, records one phase per executed pass.
	Timer *observ.Timer
	// Sink, when set, receives progress events.
	Sink ProgressSink
}

// NewManager creates a manager with the given passes in order.
func NewManager(passes ...Pass) *Manager {
	return &Manager{passes: append([]Pass(nil), passes...)}
}

// Add appends passes to the end of the pipeline.
func (m *Manager) Add(passes ...Pass) *Manager {
	m.passes = append(m.passes, passes...)
	return m
}

// Names returns pass names in execution order.
func (m *Manager) Names() []string {
	out := make([]string, len(m.passes))
	for i, p := range m.passes {
		out[i] = p.Name
	}
	return out
}

// Validate checks that every requirement is provided by an earlier pass or
// is present in seed.
func (m *Manager) Validate(seed ...Product) error {
	have := make(map[Product]struct{}, len(seed))
	for _, p := range seed {
		have[p] = struct{}{}
	}
	for _, p := range m.passes {
		for _, req := range p.Requires {
			if _, ok := have[req]; !ok {
				return fmt.Errorf("%w: %q requires %s which no earlier pass provides", ErrMissingProduct, p.Name, req)
			}
		}
		for _, prov := range p.Provides {
			have[prov] = struct{}{}
		}
	}
	return nil
}

// Run executes the pipeline over u. It stops with ErrLedgerNotClean before the
// first pass that would see errors in the ledger and with ErrMissingProduct if
// a pass did not produce what it declared.
func (m *Manager) Run(ctx context.Context, u *Unit) error {
	if err := m.Validate(u.Products()...); err != nil {
		return err
	}

	for i, p := range m.passes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if u.Bag.HasErrors() {
			for _, rest := range m.passes[i:] {
				emit(m.Sink, rest.Name, StatusSkipped, nil, 0)
			}
			return fmt.Errorf("%w: halted before %q", ErrLedgerNotClean, p.Name)
		}
		if err := m.runOne(ctx, u, p); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) runOne(ctx context.Context, u *Unit, p Pass) error {
	passCtx, span := trace.StartSpan(ctx, trace.ScopePass, p.Name)
	emit(m.Sink, p.Name, StatusWorking, nil, 0)

	before := u.Bag.Len()
	start := time.Now()
	var err error
	run := func() error {
		if p.Run == nil {
			return nil
		}
		return p.Run(passCtx, u)
	}
	if m.Timer != nil {
		err = m.Timer.Measure(p.Name, run)
	} else {
		err = run()
	}
	if err == nil {
		for _, prov := range p.Provides {
			if !u.Has(prov) {
				err = fmt.Errorf("%w: %q did not produce %s", ErrMissingProduct, p.Name, prov)
				break
			}
		}
	}
	elapsed := time.Since(start)

	span.WithExtra("diagnostics", strconv.Itoa(u.Bag.Len()-before))
	if err != nil {
		span.End(err.Error())
		emit(m.Sink, p.Name, StatusError, err, elapsed)
		return fmt.Errorf("pass %s: %w", p.Name, err)
	}
	span.End("")
	emit(m.Sink, p.Name, StatusDone, nil, elapsed)
	return nil
}
