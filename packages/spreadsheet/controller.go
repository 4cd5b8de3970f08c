package spreadsheet

import (
	"errors"
	"fmt"
)

// Mode is the controller's interaction state
type Mode int

const (
	ModeIdle Mode = iota
	ModeSelected
	ModeEditing
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeSelected:
		return "selected"
	case ModeEditing:
		return "editing"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Direction is a one-step movement of the active cell
type Direction int

const (
	DirUp Direction = iota
	DirDown
	DirLeft
	DirRight
	DirNext // right, wrapping to the first column of the next row
	DirPrev // left, wrapping to the last column of the previous row
)

// Bounds is the visible grid size
type Bounds struct {
	Rows int
	Cols int
}

// DefaultBounds matches a 50 row, A-Z grid
var DefaultBounds = Bounds{Rows: 50, Cols: 26}

// Contains reports whether addr is inside the bounds
func (b Bounds) Contains(addr CellAddress) bool {
	return addr.Row >= 0 && addr.Col >= 0 && addr.Row < b.Rows && addr.Col < b.Cols
}

// Controller is the only writer of an Engine's workbook during interactive
// use. It tracks the active cell, the selected range and the edit buffer.
//
//	Idle --Select--> Selected --BeginEdit--> Editing
//	Editing --ConfirmEdit/CancelEdit--> Selected
//
// A selected range may exist alongside Selected.
type Controller struct {
	engine *Engine
	bounds Bounds

	mode      Mode
	active    CellAddress
	hasActive bool
	selection CellRange
	hasRange  bool
	buffer    string
}

// NewController creates a controller over engine. Non-positive bounds fall
// back to DefaultBounds.
func NewController(engine *Engine, bounds Bounds) *Controller {
	if bounds.Rows <= 0 || bounds.Cols <= 0 {
		bounds = DefaultBounds
	}
	return &Controller{
		engine: engine,
		bounds: bounds,
	}
}

// Engine returns the engine being edited
func (c *Controller) Engine() *Engine { return c.engine }

// Bounds returns the grid bounds
func (c *Controller) Bounds() Bounds { return c.bounds }

// Mode returns the current mode
func (c *Controller) Mode() Mode { return c.mode }

// ActiveCell returns the active cell, if any
func (c *Controller) ActiveCell() (CellAddress, bool) { return c.active, c.hasActive }

// SelectedRange returns the selected range, if any
func (c *Controller) SelectedRange() (CellRange, bool) { return c.selection, c.hasRange }

// EditBuffer returns the text being edited
func (c *Controller) EditBuffer() string { return c.buffer }

// CellAt returns the record at addr
func (c *Controller) CellAt(addr CellAddress) (CellRecord, bool) {
	return c.engine.Cell(addr)
}

// IsActive reports whether addr is the active cell
func (c *Controller) IsActive(addr CellAddress) bool {
	return c.hasActive && c.active == addr
}

// IsInRange reports whether addr is inside the selected range
func (c *Controller) IsInRange(addr CellAddress) bool {
	return c.hasRange && c.selection.Contains(addr)
}

// ColumnLabel returns the header label for a column index
func (c *Controller) ColumnLabel(col int) string {
	return ColumnLabel(col)
}

// Select makes addr the active cell. With extend set and an active cell
// present, it selects the range from the active cell to addr and keeps the
// active cell. A live edit is confirmed first; if that confirmation fails
// the selection still moves and the confirmation error is returned.
func (c *Controller) Select(addr CellAddress, extend bool) error {
	if !c.bounds.Contains(addr) {
		return NewApplicationError(OutOfRange, fmt.Sprintf("select %s", addr), ErrOutOfBounds)
	}

	var commitErr error
	if c.mode == ModeEditing {
		commitErr = c.ConfirmEdit()
	}

	if extend && c.hasActive {
		c.selection = CellRange{Start: c.active, End: addr}
		c.hasRange = true
	} else {
		c.active = addr
		c.hasActive = true
		c.selection = CellRange{}
		c.hasRange = false
	}
	c.mode = ModeSelected
	return commitErr
}

// BeginEdit enters edit mode on the active cell. The buffer starts with the
// cell's formula, else its value, else empty.
func (c *Controller) BeginEdit() error {
	if c.mode != ModeSelected {
		return c.stateError("begin edit")
	}
	rec, _ := c.engine.Cell(c.active)
	c.buffer = rec.Content()
	c.mode = ModeEditing
	return nil
}

// BeginEditWith enters edit mode replacing the cell content with text, as
// when typing over a selected cell.
func (c *Controller) BeginEditWith(text string) error {
	if c.mode != ModeSelected {
		return c.stateError("begin edit")
	}
	c.buffer = text
	c.mode = ModeEditing
	return nil
}

// UpdateBuffer replaces the edit buffer
func (c *Controller) UpdateBuffer(text string) error {
	if c.mode != ModeEditing {
		return c.stateError("update buffer")
	}
	c.buffer = text
	return nil
}

// ConfirmEdit commits the buffer to the active cell and returns to
// Selected. An empty buffer clears the cell. A circular reference is
// returned as an error wrapping ErrCircularReference; the workbook is left
// unchanged and the mode still returns to Selected.
func (c *Controller) ConfirmEdit() error {
	if c.mode != ModeEditing {
		return c.stateError("confirm edit")
	}

	content := c.buffer
	c.buffer = ""
	c.mode = ModeSelected

	if err := c.engine.Commit(c.active, content); err != nil {
		if errors.Is(err, ErrCircularReference) {
			return err
		}
		return fmt.Errorf("confirm edit at %s: %w", c.active, err)
	}
	return nil
}

// CancelEdit discards the buffer and returns to Selected
func (c *Controller) CancelEdit() error {
	if c.mode != ModeEditing {
		return c.stateError("cancel edit")
	}
	c.buffer = ""
	c.mode = ModeSelected
	return nil
}

// ConfirmAndMove confirms the edit, then moves the active cell one step in
// dir. When openForEdit is set the new active cell is opened for editing.
// If the confirmation is rejected the active cell does not move.
func (c *Controller) ConfirmAndMove(dir Direction, openForEdit bool) error {
	if err := c.ConfirmEdit(); err != nil {
		return err
	}
	if _, err := c.MoveActive(dir); err != nil {
		return err
	}
	if openForEdit {
		return c.BeginEdit()
	}
	return nil
}

// ClearSelection deletes every cell in the selected range, or the active
// cell when there is no range.
func (c *Controller) ClearSelection() error {
	if c.mode != ModeSelected {
		return c.stateError("clear selection")
	}
	if !c.hasRange {
		return c.engine.Clear(c.active)
	}

	var addrs []CellAddress
	for addr := range c.selection.IterateCells(c.engine.Workbook()) {
		addrs = append(addrs, addr)
	}
	return c.engine.Clear(addrs...)
}

// MoveActive moves the active cell one step in dir and drops any range. A
// move past the grid edge is a no-op and reports false.
func (c *Controller) MoveActive(dir Direction) (bool, error) {
	if c.mode != ModeSelected {
		return false, c.stateError("move")
	}

	next, ok := c.step(c.active, dir)
	if !ok {
		return false, nil
	}
	c.active = next
	c.selection = CellRange{}
	c.hasRange = false
	return true, nil
}

// ExtendSelection grows or shrinks the selected range by moving its free
// corner one step in dir. The active cell stays the anchor.
func (c *Controller) ExtendSelection(dir Direction) (bool, error) {
	if c.mode != ModeSelected {
		return false, c.stateError("extend selection")
	}

	corner := c.active
	if c.hasRange {
		corner = c.selection.End
	}
	next, ok := c.step(corner, dir)
	if !ok {
		return false, nil
	}
	return true, c.Select(next, true)
}

func (c *Controller) step(from CellAddress, dir Direction) (CellAddress, bool) {
	var next CellAddress
	switch dir {
	case DirUp:
		next = from.Offset(-1, 0)
	case DirDown:
		next = from.Offset(1, 0)
	case DirLeft:
		next = from.Offset(0, -1)
	case DirRight:
		next = from.Offset(0, 1)
	case DirNext:
		next = from.Offset(0, 1)
		if next.Col >= c.bounds.Cols {
			next = CellAddress{Row: from.Row + 1, Col: 0}
		}
	case DirPrev:
		next = from.Offset(0, -1)
		if next.Col < 0 {
			next = CellAddress{Row: from.Row - 1, Col: c.bounds.Cols - 1}
		}
	default:
		return from, false
	}
	if !c.bounds.Contains(next) {
		return from, false
	}
	return next, true
}

func (c *Controller) stateError(op string) error {
	return NewApplicationError(FailedPrecondition, fmt.Sprintf("%s in %s mode", op, c.mode), ErrInvalidState)
}
