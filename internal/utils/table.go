package utils

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// NewTable returns a rounded table that renders to w.
func NewTable(w io.Writer, header ...interface{}) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	if len(header) > 0 {
		t.AppendHeader(table.Row(header))
	}
	return t
}
