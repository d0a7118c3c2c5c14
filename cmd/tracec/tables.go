package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"

	"tracec/internal/sema"
	"tracec/internal/types"
)

type tableStyles struct {
	border lipgloss.Style
	header lipgloss.Style
	name   lipgloss.Style
	cell   lipgloss.Style
	title  lipgloss.Style
}

func newTableStyles(colored bool) tableStyles {
	r := lipgloss.NewRenderer(os.Stdout)
	if colored {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return tableStyles{
		border: r.NewStyle().Foreground(lipgloss.Color("8")),
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1),
		name:   r.NewStyle().Foreground(lipgloss.Color("3")).Padding(0, 1),
		cell:   r.NewStyle().Padding(0, 1),
		title:  r.NewStyle().Bold(true),
	}
}

func (s tableStyles) table(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.border).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == 0:
				return s.header
			case col == 0:
				return s.name
			default:
				return s.cell
			}
		})
}

// renderTables prints the resolved map and scratch variable types.
func renderTables(t *sema.Tables, in *types.Interner, colored bool) string {
	s := newTableStyles(colored)
	var sb strings.Builder

	sb.WriteString(s.title.Render("Maps") + "\n")
	if len(t.Maps) == 0 {
		sb.WriteString("(none)\n")
	} else {
		maps := s.table("NAME", "KEY", "VALUE", "KIND", "MAX ENTRIES", "USED")
		for _, name := range t.MapNames() {
			m := t.Maps[name]
			maps.Row(name,
				types.Label(in, m.KeyType(in)),
				types.Label(in, m.ValueType(in)),
				orDash(m.BpfType),
				orDash(maxEntries(m.MaxEntries)),
				yesNo(m.Used))
		}
		sb.WriteString(maps.Render() + "\n")
	}

	sb.WriteString(s.title.Render("Variables") + "\n")
	if len(t.Vars) == 0 {
		sb.WriteString("(none)\n")
	} else {
		vars := s.table("NAME", "TYPE", "DECLARED", "ASSIGNED")
		for _, v := range t.Vars {
			vars.Row(v.Name, types.Label(in, v.Type), yesNo(v.Declared), yesNo(v.Assigned))
		}
		sb.WriteString(vars.Render() + "\n")
	}

	sb.WriteString("fixpoint iterations: " + strconv.Itoa(t.Iterations))
	if t.Exhausted {
		sb.WriteString(" (ceiling reached)")
	}
	sb.WriteString("\n")
	return sb.String()
}

func maxEntries(n uint64) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(n, 10)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
