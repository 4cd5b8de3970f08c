package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/log"

	"github.com/jasoncui/project-spreadsheet/packages/spreadsheet"
)

// Saver persists a workbook snapshot under a name and returns its id.
type Saver interface {
	Save(ctx context.Context, name string, snap spreadsheet.Snapshot) (string, error)
}

// savedMsg reports the outcome of an asynchronous save.
type savedMsg struct {
	name string
	id   string
	err  error
}

// fallback terminal size until the first WindowSizeMsg arrives
const (
	fallbackWidth  = 80
	fallbackHeight = 24
)

// chrome is the number of non-grid lines: title, formula bar, column header,
// status and the short help bar.
const chrome = 5

// Model is the bubbletea model for the grid editor. All workbook changes go
// through the controller.
type Model struct {
	ctrl   *spreadsheet.Controller
	saver  Saver
	name   string
	logger *log.Logger

	copyText     func(string) error
	showFormulas bool
	columnWidth  int

	width     int
	height    int
	rowOffset int
	colOffset int

	status string
	err    error
	dirty  bool

	help help.Model
	keys keyMap
}

// NewModel builds a model over ctrl and selects A1.
func NewModel(ctrl *spreadsheet.Controller, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		ctrl:        ctrl,
		name:        "untitled",
		logger:      log.Default(),
		copyText:    systemClipboard,
		columnWidth: defaultColumnWidth,
		status:      "ready",
		help:        h,
		keys:        newKeyMap(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	if _, ok := ctrl.ActiveCell(); !ok {
		_ = ctrl.Select(spreadsheet.NewCellAddress(0, 0), false)
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.SetWidth(msg.Width)
		m.scrollToActive()
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.fail(fmt.Errorf("save %s: %w", msg.name, msg.err))
			return m, nil
		}
		m.dirty = false
		m.err = nil
		m.status = "saved " + msg.name
		m.logger.Info("workbook saved", "name", msg.name, "id", msg.id)
		return m, nil

	case tea.KeyPressMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.toggleHelp):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
		var cmd tea.Cmd
		if m.ctrl.Mode() == spreadsheet.ModeEditing {
			m = m.handleEditKey(msg)
		} else {
			m, cmd = m.handleGridKey(msg)
		}
		m.scrollToActive()
		return m, cmd
	}
	return m, nil
}

// handleEditKey handles keys while the edit buffer is open.
func (m Model) handleEditKey(msg tea.KeyPressMsg) Model {
	switch {
	case key.Matches(msg, m.keys.cancel):
		m.apply(m.ctrl.CancelEdit(), "edit cancelled")
	case key.Matches(msg, m.keys.confirmUp):
		m.confirm(spreadsheet.DirUp)
	case msg.String() == "enter":
		m.confirm(spreadsheet.DirDown)
	case key.Matches(msg, m.keys.next):
		m.confirm(spreadsheet.DirNext)
	case key.Matches(msg, m.keys.prev):
		m.confirm(spreadsheet.DirPrev)
	case key.Matches(msg, m.keys.moveUp):
		m.confirm(spreadsheet.DirUp)
	case key.Matches(msg, m.keys.moveDown):
		m.confirm(spreadsheet.DirDown)
	case key.Matches(msg, m.keys.moveLeft):
		m.confirm(spreadsheet.DirLeft)
	case key.Matches(msg, m.keys.moveRight):
		m.confirm(spreadsheet.DirRight)
	case key.Matches(msg, m.keys.erase):
		buf := []rune(m.ctrl.EditBuffer())
		if len(buf) > 0 {
			m.apply(m.ctrl.UpdateBuffer(string(buf[:len(buf)-1])), "")
		}
	default:
		if text, ok := printable(msg); ok {
			m.apply(m.ctrl.UpdateBuffer(m.ctrl.EditBuffer()+text), "")
		}
	}
	return m
}

// handleGridKey handles keys while a cell or range is selected.
func (m Model) handleGridKey(msg tea.KeyPressMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.moveUp):
		m.move(spreadsheet.DirUp)
	case key.Matches(msg, m.keys.moveDown):
		m.move(spreadsheet.DirDown)
	case key.Matches(msg, m.keys.moveLeft):
		m.move(spreadsheet.DirLeft)
	case key.Matches(msg, m.keys.moveRight):
		m.move(spreadsheet.DirRight)
	case key.Matches(msg, m.keys.next):
		m.move(spreadsheet.DirNext)
	case key.Matches(msg, m.keys.prev):
		m.move(spreadsheet.DirPrev)
	case key.Matches(msg, m.keys.extendUp):
		m.extend(spreadsheet.DirUp)
	case key.Matches(msg, m.keys.extendDown):
		m.extend(spreadsheet.DirDown)
	case key.Matches(msg, m.keys.extendLeft):
		m.extend(spreadsheet.DirLeft)
	case key.Matches(msg, m.keys.extendRight):
		m.extend(spreadsheet.DirRight)
	case key.Matches(msg, m.keys.edit):
		m.apply(m.ctrl.BeginEdit(), "editing")
	case key.Matches(msg, m.keys.cancel):
		if active, ok := m.ctrl.ActiveCell(); ok {
			m.apply(m.ctrl.Select(active, false), "ready")
		}
	case key.Matches(msg, m.keys.clear):
		if err := m.ctrl.ClearSelection(); err != nil {
			m.fail(err)
		} else {
			m.dirty = true
			m.status = "cleared " + m.selectionLabel()
		}
	case key.Matches(msg, m.keys.copyValue):
		m.copyActive()
	case key.Matches(msg, m.keys.formulas):
		m.showFormulas = !m.showFormulas
		if m.showFormulas {
			m.status = "showing formulas"
		} else {
			m.status = "showing values"
		}
	case key.Matches(msg, m.keys.save):
		return m, m.saveCmd()
	default:
		if text, ok := printable(msg); ok {
			m.apply(m.ctrl.BeginEditWith(text), "editing")
		}
	}
	return m, nil
}

// confirm commits the buffer and moves the active cell.
func (m *Model) confirm(dir spreadsheet.Direction) {
	active, _ := m.ctrl.ActiveCell()
	if err := m.ctrl.ConfirmAndMove(dir, false); err != nil {
		m.fail(err)
		return
	}
	m.dirty = true
	m.err = nil
	m.status = "updated " + active.String()
}

func (m *Model) move(dir spreadsheet.Direction) {
	if _, err := m.ctrl.MoveActive(dir); err != nil {
		m.fail(err)
	}
}

func (m *Model) extend(dir spreadsheet.Direction) {
	if _, err := m.ctrl.ExtendSelection(dir); err != nil {
		m.fail(err)
		return
	}
	m.status = "selected " + m.selectionLabel()
}

func (m *Model) copyActive() {
	active, ok := m.ctrl.ActiveCell()
	if !ok {
		return
	}
	value := m.ctrl.Engine().Value(active)
	if err := m.copyText(value); err != nil {
		m.fail(fmt.Errorf("copy %s: %w", active, err))
		return
	}
	m.status = "copied " + active.String()
}

// saveCmd snapshots the workbook now and stores it off the update loop.
func (m Model) saveCmd() tea.Cmd {
	if m.saver == nil {
		m.logger.Warn("save requested without a store")
		return func() tea.Msg {
			return savedMsg{name: m.name, err: errors.New("no store configured")}
		}
	}
	saver, name := m.saver, m.name
	snap := m.ctrl.Engine().Snapshot()
	return func() tea.Msg {
		id, err := saver.Save(context.Background(), name, snap)
		return savedMsg{name: name, id: id, err: err}
	}
}

// apply records err, or sets status when the action succeeded.
func (m *Model) apply(err error, status string) {
	if err != nil {
		m.fail(err)
		return
	}
	m.err = nil
	if status != "" {
		m.status = status
	}
}

func (m *Model) fail(err error) {
	m.err = err
	m.status = err.Error()
	m.logger.Debug("grid action failed", "err", err, "code", spreadsheet.ErrorCodeOf(err))
}

func (m Model) selectionLabel() string {
	if r, ok := m.ctrl.SelectedRange(); ok {
		return r.String()
	}
	if active, ok := m.ctrl.ActiveCell(); ok {
		return active.String()
	}
	return ""
}

// printable returns the text of a key press that should be typed into a cell.
func printable(msg tea.KeyPressMsg) (string, bool) {
	if msg.Text == "" || msg.Mod&(tea.ModCtrl|tea.ModAlt) != 0 {
		return "", false
	}
	for _, r := range msg.Text {
		if r < ' ' || r == 0x7f {
			return "", false
		}
	}
	return msg.Text, true
}

func (m Model) size() (int, int) {
	w, h := m.width, m.height
	if w <= 0 {
		w = fallbackWidth
	}
	if h <= 0 {
		h = fallbackHeight
	}
	return w, h
}

func (m Model) rowHeaderWidth() int {
	return len(strconv.Itoa(m.ctrl.Bounds().Rows)) + 1
}

// visibleRows is the number of grid rows that fit on screen.
func (m Model) visibleRows() int {
	_, h := m.size()
	return min(max(1, h-chrome), m.ctrl.Bounds().Rows)
}

// visibleCols is the number of grid columns that fit on screen.
func (m Model) visibleCols() int {
	w, _ := m.size()
	return min(max(1, (w-m.rowHeaderWidth())/m.columnWidth), m.ctrl.Bounds().Cols)
}

// scrollToActive shifts the window so the active cell stays on screen.
func (m *Model) scrollToActive() {
	active, ok := m.ctrl.ActiveCell()
	if !ok {
		return
	}
	rows, cols := m.visibleRows(), m.visibleCols()
	if active.Row < m.rowOffset {
		m.rowOffset = active.Row
	} else if active.Row >= m.rowOffset+rows {
		m.rowOffset = active.Row - rows + 1
	}
	if active.Col < m.colOffset {
		m.colOffset = active.Col
	} else if active.Col >= m.colOffset+cols {
		m.colOffset = active.Col - cols + 1
	}
}

// View implements tea.Model.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	return v
}

func (m Model) render() string {
	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(muted)
	statusStyle := lipgloss.NewStyle().Foreground(dim)
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	activeStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(accent)
	rangeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("237"))
	failedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	var b strings.Builder

	title := titleStyle.Render("gridcalc") + "  " + m.name
	title += statusStyle.Render("  [" + m.ctrl.Mode().String() + "]")
	if m.dirty {
		title += statusStyle.Render("  modified")
	}
	b.WriteString(title)
	b.WriteByte('\n')

	b.WriteString(m.formulaBar())
	b.WriteByte('\n')

	rhw := m.rowHeaderWidth()
	cw := m.columnWidth
	rows, cols := m.visibleRows(), m.visibleCols()

	b.WriteString(strings.Repeat(" ", rhw))
	for c := m.colOffset; c < m.colOffset+cols; c++ {
		b.WriteString(headerStyle.Render(fit(m.ctrl.ColumnLabel(c), cw-1, alignCenter)))
		b.WriteByte(' ')
	}
	b.WriteByte('\n')

	for r := m.rowOffset; r < m.rowOffset+rows; r++ {
		b.WriteString(headerStyle.Render(fit(strconv.Itoa(r+1), rhw-1, alignRight)))
		b.WriteByte(' ')
		for c := m.colOffset; c < m.colOffset+cols; c++ {
			addr := spreadsheet.NewCellAddress(r, c)
			text, align, failed := m.cellText(addr)
			cell := fit(text, cw-1, align)
			switch {
			case m.ctrl.IsActive(addr):
				cell = activeStyle.Render(cell)
			case m.ctrl.IsInRange(addr):
				cell = rangeStyle.Render(cell)
			case failed:
				cell = failedStyle.Render(cell)
			}
			b.WriteString(cell)
			b.WriteByte(' ')
		}
		b.WriteByte('\n')
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render("error: " + m.status))
	} else {
		b.WriteString(statusStyle.Render(m.status))
	}
	b.WriteByte('\n')
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// formulaBar shows the active address and either the edit buffer or the
// active cell's content.
func (m Model) formulaBar() string {
	active, ok := m.ctrl.ActiveCell()
	if !ok {
		return ""
	}
	label := lipgloss.NewStyle().Bold(true).Render(fit(active.String(), 6, alignLeft))
	if m.ctrl.Mode() == spreadsheet.ModeEditing {
		return label + " " + m.ctrl.EditBuffer() + "▏"
	}
	rec, _ := m.ctrl.CellAt(active)
	return label + " " + rec.Content()
}

// cellText returns what a grid cell displays and how it aligns.
func (m Model) cellText(addr spreadsheet.CellAddress) (string, alignment, bool) {
	rec, ok := m.ctrl.CellAt(addr)
	if !ok {
		return "", alignLeft, false
	}
	if m.showFormulas && rec.IsFormula() {
		return rec.Formula, alignLeft, false
	}
	if rec.Failed() {
		return rec.Value, alignLeft, true
	}
	if rec.Kind == spreadsheet.KindNumber || (rec.IsFormula() && isNumeric(rec.Value)) {
		return rec.Value, alignRight, false
	}
	return rec.Value, alignLeft, false
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

type alignment int

const (
	alignLeft alignment = iota
	alignRight
	alignCenter
)

// fit truncates or pads s to exactly width display cells.
func fit(s string, width int, align alignment) string {
	s = truncate(s, width)
	pad := width - lipgloss.Width(s)
	if pad <= 0 {
		return s
	}
	switch align {
	case alignRight:
		return strings.Repeat(" ", pad) + s
	case alignCenter:
		left := pad / 2
		return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
	default:
		return s + strings.Repeat(" ", pad)
	}
}

// truncate shortens s to max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	if max <= 1 {
		return string(rs[:max])
	}
	return string(rs[:max-1]) + "…"
}
