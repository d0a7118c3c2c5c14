package observ

import (
	"fmt"
	"strings"
	"time"
)

type phase struct {
	name  string
	start time.Time
	dur   time.Duration
	note  string
}

// Timer records pass durations of one program. Not safe for concurrent
// use: directory checks keep one Timer per program and Merge the reports.
type Timer struct {
	phases []phase
}

func NewTimer() *Timer { return &Timer{phases: make([]phase, 0, 6)} }

// Begin opens a phase; the index goes back to End.
func (t *Timer) Begin(name string) int {
	t.phases = append(t.phases, phase{name: name, start: time.Now()})
	return len(t.phases) - 1
}

// End closes phase idx; unknown indexes are ignored.
func (t *Timer) End(idx int, note string) {
	if idx < 0 || idx >= len(t.phases) {
		return
	}
	p := &t.phases[idx]
	p.dur, p.note = time.Since(p.start), note
}

// Measure times fn as one phase. The error text of fn becomes the note.
func (t *Timer) Measure(name string, fn func() error) error {
	idx := t.Begin(name)
	err := fn()
	if err != nil {
		t.End(idx, err.Error())
	} else {
		t.End(idx, "")
	}
	return err
}

func (t *Timer) Summary() string { return t.Report().Summary() }

// PhaseReport is one row of a timing report. For merged reports DurationMS
// is the sum over Runs and MaxMS the slowest single run.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	MaxMS      float64 `json:"max_ms,omitempty"`
	Runs       int     `json:"runs,omitempty"`
	Note       string  `json:"note,omitempty"`
}

type Report struct {
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

func (t *Timer) Report() Report {
	var r Report
	for _, p := range t.phases {
		ms := millis(p.dur)
		r.TotalMS += ms
		r.Phases = append(r.Phases, PhaseReport{Name: p.name, DurationMS: ms, MaxMS: ms, Runs: 1, Note: p.note})
	}
	return r
}

// Merge sums reports phase by phase; phases keep the order in which they
// first appear. Notes are dropped.
func Merge(reports ...Report) Report {
	var out Report
	index := make(map[string]int)
	for _, r := range reports {
		out.TotalMS += r.TotalMS
		for _, p := range r.Phases {
			runs := max(p.Runs, 1)
			slowest := max(p.MaxMS, p.DurationMS/float64(runs))
			i, seen := index[p.Name]
			if !seen {
				i = len(out.Phases)
				index[p.Name] = i
				out.Phases = append(out.Phases, PhaseReport{Name: p.Name})
			}
			m := &out.Phases[i]
			m.DurationMS += p.DurationMS
			m.Runs += runs
			m.MaxMS = max(m.MaxMS, slowest)
		}
	}
	return out
}

// Summary renders the report as an aligned table:
//
//	timings:
//	  resolve-types           1.20 ms  40.0%  x3 max 0.60 ms
//	  total                   3.00 ms
func (r Report) Summary() string {
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, p := range r.Phases {
		fmt.Fprintf(&sb, "  %-20s %7.2f ms", p.Name, p.DurationMS)
		if r.TotalMS > 0 {
			fmt.Fprintf(&sb, " %5.1f%%", 100*p.DurationMS/r.TotalMS)
		}
		if p.Runs > 1 {
			fmt.Fprintf(&sb, "  x%d max %.2f ms", p.Runs, p.MaxMS)
		}
		if p.Note != "" {
			sb.WriteString("  // " + p.Note)
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "  %-20s %7.2f ms\n", "total", r.TotalMS)
	return sb.String()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
