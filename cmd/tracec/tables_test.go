package main

import (
	"strings"
	"testing"
)

func TestTableHeaderRowIsStyled(t *testing.T) {
	out := newTableStyles(true).table("NAME", "TYPE").Row("$x", "int64").Render()
	var header, body string
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.Contains(line, "NAME"):
			header = line
		case strings.Contains(line, "$x"):
			body = line
		}
	}
	if !strings.Contains(header, "\x1b[1") {
		t.Errorf("header is not bold: %q", header)
	}
	if body == "" || strings.Contains(body, "\x1b[1;") || strings.Contains(body, "\x1b[1m") {
		t.Errorf("body row styled as header: %q", body)
	}
}

func TestTableWithoutColor(t *testing.T) {
	out := newTableStyles(false).table("NAME", "TYPE").Row("$x", "int64").Render()
	if strings.Contains(out, "\x1b[") {
		t.Errorf("escape codes with color off:\n%s", out)
	}
	if !strings.Contains(out, "NAME") || !strings.Contains(out, "int64") {
		t.Errorf("table:\n%s", out)
	}
}
