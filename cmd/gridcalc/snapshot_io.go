package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/jasoncui/project-spreadsheet/packages/spreadsheet"
)

// readSnapshot decodes a snapshot from path, or from stdin when path is "-".
func (c *cli) readSnapshot(path string) (spreadsheet.Snapshot, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("--in is required")
	}
	var r io.Reader = c.stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("read snapshot file: %w", err)
		}
		defer f.Close()
		r = f
	}
	snap, err := spreadsheet.DecodeSnapshot(r)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot json: %w", err)
	}
	return snap, nil
}

// writeSnapshot encodes snap to path, or to stdout when path is "-".
func (c *cli) writeSnapshot(path string, snap spreadsheet.Snapshot) error {
	var buf bytes.Buffer
	if err := snap.Encode(&buf); err != nil {
		return fmt.Errorf("encode snapshot json: %w", err)
	}
	if path == "" || path == "-" {
		if _, err := c.stdout.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("write snapshot to stdout: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}
	return nil
}

// markdownTable lays out the extent of wb as a markdown table with column
// letters and row numbers.
func markdownTable(wb *spreadsheet.Workbook, formulas bool) string {
	rows, cols := wb.Extent()
	if rows == 0 {
		return "_empty workbook_"
	}

	var b strings.Builder
	b.WriteString("|   |")
	for col := range cols {
		b.WriteString(" " + spreadsheet.ColumnLabel(col) + " |")
	}
	b.WriteString("\n|---|")
	for range cols {
		b.WriteString("---|")
	}
	for row := range rows {
		fmt.Fprintf(&b, "\n| %d |", row+1)
		for col := range cols {
			rec, _ := wb.Get(spreadsheet.EncodeAddress(row, col))
			text := rec.Value
			if formulas && rec.IsFormula() {
				text = rec.Formula
			}
			b.WriteString(" " + escapeCell(text) + " |")
		}
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// terminalWidth reports the width of w when it is a terminal.
func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 80, true
	}
	return width, true
}

// renderMarkdown renders md for the terminal, falling back to the raw text.
func renderMarkdown(md string, width int) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(width, 24)),
	)
	if err != nil {
		return md
	}
	rendered, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(rendered, "\n")
}
