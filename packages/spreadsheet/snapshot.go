package spreadsheet

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// SnapshotCell is the serialized form of one cell
type SnapshotCell struct {
	Value   string          `json:"value"`
	Formula string          `json:"formula,omitempty"`
	Kind    Kind            `json:"kind,omitempty"`
	Format  json.RawMessage `json:"format,omitempty"`
}

// Snapshot is the import/export shape of a workbook: canonical address text
// to cell.
type Snapshot map[string]SnapshotCell

// DecodeSnapshot reads a JSON snapshot
func DecodeSnapshot(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap == nil {
		snap = Snapshot{}
	}
	return snap, nil
}

// Encode writes the snapshot as indented JSON with keys in sorted order
func (s Snapshot) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// empty reports whether the cell carries nothing worth keeping
func (c SnapshotCell) empty() bool {
	format := strings.TrimSpace(string(c.Format))
	return c.Value == "" &&
		strings.TrimSpace(c.Formula) == "" &&
		c.Kind == "" &&
		(format == "" || format == "null")
}

// record normalizes a snapshot cell. Formula text gains the prefix if it
// lacks one; a missing or unknown kind is inferred.
func (c SnapshotCell) record() CellRecord {
	rec := CellRecord{Value: c.Value, Format: c.Format}

	if formula := strings.TrimSpace(c.Formula); formula != "" {
		if !IsFormula(formula) {
			formula = FormulaPrefix + formula
		}
		rec.Formula = formula
		rec.Kind = KindFormula
		return rec
	}

	switch {
	case c.Kind.Valid() && c.Kind != KindFormula:
		rec.Kind = c.Kind
	case c.Value == "":
		// format-only cell; an unset kind stays unset
	default:
		rec.Kind = inferKind(c.Value)
	}
	return rec
}

// BuildWorkbook validates a snapshot and turns it into a workbook without
// evaluating anything. Keys must be canonical address text, and formulas
// must not form a circular reference.
func BuildWorkbook(snap Snapshot) (*Workbook, error) {
	wb := NewWorkbook()
	for key, cell := range snap {
		addr, err := ParseAddress(key)
		if err != nil {
			return nil, NewApplicationError(InvalidArgument, "load snapshot", err)
		}
		if addr.String() != key {
			return nil, NewApplicationError(InvalidArgument, "load snapshot", fmt.Errorf("%w: %q is not canonical", ErrInvalidAddress, key))
		}
		if cell.empty() {
			continue
		}
		wb.set(addr, cell.record())
	}

	for addr, rec := range wb.All() {
		if rec.IsFormula() && HasCycle(rec.Formula, wb, addr) {
			return nil, NewApplicationError(FailedPrecondition, fmt.Sprintf("load snapshot at %s", addr), ErrCircularReference)
		}
	}
	return wb, nil
}

// LoadSnapshot replaces the workbook with the snapshot's cells and runs a
// full recalculation. On error the engine keeps its previous workbook.
func (e *Engine) LoadSnapshot(snap Snapshot) error {
	wb, err := BuildWorkbook(snap)
	if err != nil {
		return err
	}

	next := newStorage(wb)
	next.rebind()
	stats, err := next.recalculateAll()
	if err != nil {
		return NewApplicationError(Internal, "load snapshot", err)
	}

	e.storage = next
	e.logger.Info("loaded snapshot", "cells", wb.Len(), "formulas", stats.Evaluated, "failed", stats.Failed)
	return nil
}

// Snapshot serializes the current workbook
func (e *Engine) Snapshot() Snapshot {
	snap := make(Snapshot, e.storage.workbook.Len())
	for addr, rec := range e.storage.workbook.All() {
		snap[addr.String()] = SnapshotCell{
			Value:   rec.Value,
			Formula: rec.Formula,
			Kind:    rec.Kind,
			Format:  rec.Format,
		}
	}
	return snap
}
