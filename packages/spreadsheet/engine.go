package spreadsheet

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

// Engine owns one workbook together with its formula table and dependency
// graph. Every mutation works on a copy of that state and swaps it in only
// after recalculation completes, so readers never observe a half-applied
// commit. An Engine is not safe for concurrent use.
type Engine struct {
	storage *Storage
	logger  *log.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger used for commit and recalculation events
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine over an empty workbook
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		storage: newStorage(nil),
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cell returns the record at addr. It makes Engine a CellReader.
func (e *Engine) Cell(addr CellAddress) (CellRecord, bool) {
	return e.storage.workbook.Cell(addr)
}

// Value returns the display value at addr, empty for an empty cell
func (e *Engine) Value(addr CellAddress) string {
	rec, _ := e.storage.workbook.Cell(addr)
	return rec.Value
}

// Workbook returns the current workbook. Callers must treat it as read-only;
// the next commit replaces it rather than mutating it.
func (e *Engine) Workbook() *Workbook {
	return e.storage.workbook
}

// Dependents returns every formula cell that reads addr, directly or
// transitively, row-major
func (e *Engine) Dependents(addr CellAddress) []CellAddress {
	return e.storage.dependencyGraph.GetAllDependents(addr)
}

// Precedents returns the cells the formula at addr reads directly
func (e *Engine) Precedents(addr CellAddress) []CellAddress {
	return e.storage.dependencyGraph.GetDirectPrecedents(addr)
}

// WouldCycle reports whether committing formula at addr would be rejected
// as a circular reference
func (e *Engine) WouldCycle(addr CellAddress, formula string) bool {
	return IsFormula(formula) && HasCycle(formula, e.storage.workbook, addr)
}

// Commit stores raw content at addr and recalculates everything that reads
// it. Content starting with FormulaPrefix is a formula; other content is a
// literal whose kind is inferred. Empty content clears the cell. A formula
// that would create a circular reference is rejected with
// ErrCircularReference and nothing changes.
func (e *Engine) Commit(addr CellAddress, content string) error {
	if !addr.Valid() {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("commit at row %d col %d", addr.Row, addr.Col), ErrInvalidAddress)
	}
	if content == "" {
		return e.Clear(addr)
	}

	if IsFormula(content) && HasCycle(content, e.storage.workbook, addr) {
		e.logger.Warn("rejected circular reference", "cell", addr, "formula", content)
		return NewApplicationError(FailedPrecondition, fmt.Sprintf("commit %s", addr), ErrCircularReference)
	}

	next := e.storage.clone()
	prev, existed := next.workbook.Cell(addr)

	rec := CellRecord{Format: prev.Format}
	if IsFormula(content) {
		rec.Kind = KindFormula
		rec.Formula = content
		rec.Value = prev.Value // replaced by evaluation below
	} else {
		rec.Kind = inferKind(content)
		rec.Value = content
	}
	next.workbook.set(addr, rec)
	next.bindCell(addr)

	if !existed || prev.Value != rec.Value || prev.Kind != rec.Kind {
		next.dependencyGraph.MarkDependentsDirty(addr)
	}

	stats, err := next.propagate([]CellAddress{addr})
	if err != nil {
		return e.internalError(addr, err)
	}

	e.storage = next
	committed, _ := next.workbook.Cell(addr)
	e.logger.Debug("committed cell",
		"cell", addr,
		"kind", committed.Kind,
		"value", committed.Value,
		"evaluated", stats.Evaluated,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
	)
	return nil
}

// Clear removes the records at addrs and recalculates their dependents,
// which then read the cleared cells as empty. Clearing an empty cell is a
// no-op.
func (e *Engine) Clear(addrs ...CellAddress) error {
	for _, addr := range addrs {
		if !addr.Valid() {
			return NewApplicationError(InvalidArgument, fmt.Sprintf("clear at row %d col %d", addr.Row, addr.Col), ErrInvalidAddress)
		}
	}

	next := e.storage.clone()
	var seeds []CellAddress
	for _, addr := range addrs {
		if !next.workbook.remove(addr) {
			continue
		}
		next.unbindCell(addr)
		next.dependencyGraph.MarkDependentsDirty(addr)
		seeds = append(seeds, addr)
	}
	if len(seeds) == 0 {
		return nil
	}

	stats, err := next.propagate(seeds)
	if err != nil {
		return e.internalError(seeds[0], err)
	}

	e.storage = next
	e.logger.Debug("cleared cells", "count", len(seeds), "evaluated", stats.Evaluated, "failed", stats.Failed)
	return nil
}

// RecalculateAll rebuilds the dependency graph from the workbook and
// evaluates every formula cell in dependency order. On a consistent
// workbook it changes nothing.
func (e *Engine) RecalculateAll() error {
	next := e.storage.clone()
	next.rebind()

	stats, err := next.recalculateAll()
	if err != nil {
		e.logger.Error("full recalculation failed", "err", err)
		return NewApplicationError(Internal, "recalculate", err)
	}

	e.storage = next
	e.logger.Debug("recalculated workbook", "evaluated", stats.Evaluated, "failed", stats.Failed)
	return nil
}

func (e *Engine) internalError(addr CellAddress, err error) error {
	e.logger.Error("recalculation aborted", "cell", addr, "err", err)
	if errors.Is(err, ErrInconsistentGraph) {
		return NewApplicationError(Internal, fmt.Sprintf("recalculate from %s", addr), err)
	}
	return NewApplicationError(Unknown, fmt.Sprintf("recalculate from %s", addr), err)
}
