package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"tracec/internal/diag"
	"tracec/internal/source"
)

const tabWidth = 4

type palette struct {
	sev     map[diag.Severity]*color.Color
	message *color.Color
	gutter  *color.Color
	caret   *color.Color
	note    *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		sev: map[diag.Severity]*color.Color{
			diag.SevInfo:    color.New(color.FgCyan, color.Bold),
			diag.SevWarning: color.New(color.FgYellow, color.Bold),
			diag.SevError:   color.New(color.FgRed, color.Bold),
			diag.SevBug:     color.New(color.FgMagenta, color.Bold),
		},
		message: color.New(color.Bold),
		gutter:  color.New(color.FgBlue),
		caret:   color.New(color.FgGreen, color.Bold),
		note:    color.New(color.FgCyan),
	}
	all := []*color.Color{p.message, p.gutter, p.caret, p.note}
	for _, c := range p.sev {
		all = append(all, c)
	}
	// глобальный color.NoColor не должен влиять на явный выбор
	for _, c := range all {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Pretty форматирует диагностики в человекочитаемый вид.
// Идёт по bag.Items() (ожидается bag.Sort() заранее).
// Для каждого diag печатает:
// <path>:<line>:<col>: <SEV> <CODE>: <Message>
// затем контекст строки с подчёркиванием ^~~~ по Span, затем Notes и hint.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) {
	p := newPalette(opts.Color)
	for i, d := range bag.Items() {
		if i > 0 {
			fmt.Fprintln(w) //nolint:errcheck
		}
		prettyOne(w, &d, fs, opts, p)
	}
}

func prettyOne(w io.Writer, d *diag.Diagnostic, fs *source.FileSet, opts PrettyOpts, p palette) {
	f := fs.Get(d.Primary.File)
	start, _ := fs.Resolve(d.Primary)
	fmt.Fprintf(w, "%s:%d:%d: %s %s: %s\n", //nolint:errcheck
		formatPath(f, opts.PathMode, opts.BaseDir), start.Line, start.Col,
		p.sev[d.Severity].Sprint(d.Severity.String()), d.Code.ID(), p.message.Sprint(d.Message))
	if f != nil {
		snippet(w, fs, f, d.Primary, int(opts.Context), p)
	}
	if opts.ShowNotes {
		for _, n := range d.Notes {
			nf := fs.Get(n.Span.File)
			pos, _ := fs.Resolve(n.Span)
			fmt.Fprintf(w, "  %s %s:%d:%d: %s\n", p.note.Sprint("note:"), //nolint:errcheck
				formatPath(nf, opts.PathMode, opts.BaseDir), pos.Line, pos.Col, n.Msg)
		}
	}
	if opts.ShowHints && d.Hint != "" {
		lines := strings.Split(d.Hint, "\n")
		fmt.Fprintf(w, "  %s %s\n", p.note.Sprint("= hint:"), lines[0]) //nolint:errcheck
		for _, l := range lines[1:] {
			fmt.Fprintf(w, "          %s\n", l) //nolint:errcheck
		}
	}
}

// snippet prints the primary line (with context lines above it) and a
// caret underline aligned by display width.
func snippet(w io.Writer, fs *source.FileSet, f *source.File, sp source.Span, context int, p palette) {
	start, end := fs.Resolve(sp)
	line := f.GetLine(start.Line)
	if line == "" && sp.Empty() {
		return
	}

	first := start.Line
	for context > 0 && first > 1 {
		first--
		context--
	}
	gutterWidth := len(fmt.Sprint(start.Line))
	for n := first; n <= start.Line; n++ {
		fmt.Fprintf(w, "%s %s\n", p.gutter.Sprintf("%*d |", gutterWidth, n), expandTabs(f.GetLine(n))) //nolint:errcheck
	}

	col := int(start.Col) - 1
	if col > len(line) {
		col = len(line)
	}
	stop := len(line)
	if end.Line == start.Line {
		stop = min(int(end.Col)-1, len(line))
	}
	pad := runewidth.StringWidth(expandTabs(line[:col]))
	width := 1
	if stop > col {
		width = max(runewidth.StringWidth(expandTabs(line[col:stop])), 1)
	}
	marks := "^" + strings.Repeat("~", width-1)
	fmt.Fprintf(w, "%s %s%s\n", p.gutter.Sprintf("%*s |", gutterWidth, ""), strings.Repeat(" ", pad), p.caret.Sprint(marks)) //nolint:errcheck
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", strings.Repeat(" ", tabWidth))
}
