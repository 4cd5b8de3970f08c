package spreadsheet

import (
	"iter"
	"maps"
	"slices"
)

// Workbook maps canonical address text to cell records. An absent key is an
// empty cell. Records are values, so a cloned workbook never shares mutable
// state with its source.
type Workbook struct {
	cells map[string]CellRecord
}

// NewWorkbook returns an empty workbook
func NewWorkbook() *Workbook {
	return &Workbook{cells: make(map[string]CellRecord)}
}

// Cell returns the record at addr
func (w *Workbook) Cell(addr CellAddress) (CellRecord, bool) {
	rec, exists := w.cells[addr.String()]
	return rec, exists
}

// Get returns the record stored under address text
func (w *Workbook) Get(key string) (CellRecord, bool) {
	rec, exists := w.cells[key]
	return rec, exists
}

func (w *Workbook) set(addr CellAddress, rec CellRecord) {
	w.cells[addr.String()] = rec
}

func (w *Workbook) remove(addr CellAddress) bool {
	key := addr.String()
	if _, exists := w.cells[key]; !exists {
		return false
	}
	delete(w.cells, key)
	return true
}

// Len returns the number of non-empty cells
func (w *Workbook) Len() int {
	return len(w.cells)
}

// Addresses returns every non-empty cell, row-major
func (w *Workbook) Addresses() []CellAddress {
	addrs := make([]CellAddress, 0, len(w.cells))
	for key := range w.cells {
		// keys are always written through set, so they decode
		if addr, err := ParseAddress(key); err == nil {
			addrs = append(addrs, addr)
		}
	}
	slices.SortFunc(addrs, compareAddresses)
	return addrs
}

// All iterates non-empty cells row-major
func (w *Workbook) All() iter.Seq2[CellAddress, CellRecord] {
	return func(yield func(CellAddress, CellRecord) bool) {
		for _, addr := range w.Addresses() {
			if !yield(addr, w.cells[addr.String()]) {
				return
			}
		}
	}
}

// FormulaCells returns every formula cell, row-major
func (w *Workbook) FormulaCells() []CellAddress {
	var addrs []CellAddress
	for addr, rec := range w.All() {
		if rec.IsFormula() {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// Extent returns the number of rows and columns spanned by non-empty cells,
// measured from A1.
func (w *Workbook) Extent() (rows, cols int) {
	for _, addr := range w.Addresses() {
		rows = max(rows, addr.Row+1)
		cols = max(cols, addr.Col+1)
	}
	return rows, cols
}

// Clone copies the workbook
func (w *Workbook) Clone() *Workbook {
	return &Workbook{cells: maps.Clone(w.cells)}
}
