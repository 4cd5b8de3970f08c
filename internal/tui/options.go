package tui

import (
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
)

// Option configures a Model.
type Option func(*Model)

const (
	defaultColumnWidth = 12
	minColumnWidth     = 3
)

// WithSaver enables ctrl+s, storing the workbook under name.
func WithSaver(saver Saver, name string) Option {
	return func(m *Model) {
		m.saver = saver
		if name != "" {
			m.name = name
		}
	}
}

// WithShowFormulas renders formula text instead of computed values.
func WithShowFormulas(show bool) Option {
	return func(m *Model) {
		m.showFormulas = show
	}
}

// WithColumnWidth sets the rendered width of every grid column.
func WithColumnWidth(width int) Option {
	return func(m *Model) {
		if width >= minColumnWidth {
			m.columnWidth = width
		}
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copyText = write
		}
	}
}

// WithLogger routes model diagnostics to logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func systemClipboard(text string) error {
	return clipboard.WriteAll(text)
}
