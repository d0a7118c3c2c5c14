package trace

import "go.uber.org/multierr"

// MultiTracer copies every event to each of its tracers.
type MultiTracer struct {
	gate
	tracers []Tracer
	ring    *RingTracer
}

// NewMultiTracer skips nil tracers. The first RingTracer among
// them is remembered for crash dumps.
func NewMultiTracer(level Level, tracers ...Tracer) *MultiTracer {
	m := &MultiTracer{gate: gate{level: level}}
	for _, tr := range tracers {
		if tr == nil {
			continue
		}
		if r, ok := tr.(*RingTracer); ok && m.ring == nil {
			m.ring = r
		}
		m.tracers = append(m.tracers, tr)
	}
	return m
}

func (m *MultiTracer) Emit(ev *Event) {
	for _, tr := range m.tracers {
		// каждый приёмник может переписать Seq
		cp := *ev
		tr.Emit(&cp)
	}
}

func (m *MultiTracer) Flush() error {
	return m.each(Tracer.Flush)
}

func (m *MultiTracer) Close() error {
	return m.each(Tracer.Close)
}

func (m *MultiTracer) each(fn func(Tracer) error) error {
	var err error
	for _, tr := range m.tracers {
		err = multierr.Append(err, fn(tr))
	}
	return err
}

// Ring returns the ring kept for crash dumps, or nil.
func (m *MultiTracer) Ring() *RingTracer { return m.ring }
