package spreadsheet

import (
	"fmt"
	"iter"
)

// RangeAddress is a normalized rectangle of cells, inclusive on both ends
type RangeAddress struct {
	StartRow    int
	StartColumn int
	EndRow      int
	EndColumn   int
}

// CellRange is a rectangular selection anchored at Start and extended to
// End. Either corner may be the top-left one.
type CellRange struct {
	Start CellAddress
	End   CellAddress
}

// GetBounds returns the normalized range boundaries
func (r CellRange) GetBounds() RangeAddress {
	return RangeAddress{
		StartRow:    min(r.Start.Row, r.End.Row),
		StartColumn: min(r.Start.Col, r.End.Col),
		EndRow:      max(r.Start.Row, r.End.Row),
		EndColumn:   max(r.Start.Col, r.End.Col),
	}
}

// Contains reports whether addr lies inside the range
func (r CellRange) Contains(addr CellAddress) bool {
	b := r.GetBounds()
	return addr.Row >= b.StartRow && addr.Row <= b.EndRow &&
		addr.Col >= b.StartColumn && addr.Col <= b.EndColumn
}

// Size returns the number of cells covered
func (r CellRange) Size() int {
	b := r.GetBounds()
	return (b.EndRow - b.StartRow + 1) * (b.EndColumn - b.StartColumn + 1)
}

// String renders the range as "A1:C3" with the top-left corner first
func (r CellRange) String() string {
	b := r.GetBounds()
	return fmt.Sprintf("%s:%s", EncodeAddress(b.StartRow, b.StartColumn), EncodeAddress(b.EndRow, b.EndColumn))
}

// Iterate returns an iterator over every address in the range, row-major
func (r CellRange) Iterate() iter.Seq[CellAddress] {
	return func(yield func(CellAddress) bool) {
		b := r.GetBounds()
		for row := b.StartRow; row <= b.EndRow; row++ {
			for col := b.StartColumn; col <= b.EndColumn; col++ {
				if !yield(CellAddress{Row: row, Col: col}) {
					return
				}
			}
		}
	}
}

// IterateCells returns an iterator over the non-empty cells in the range,
// row-major. Walking the workbook instead of the rectangle keeps large
// selections cheap.
func (r CellRange) IterateCells(wb *Workbook) iter.Seq2[CellAddress, CellRecord] {
	return func(yield func(CellAddress, CellRecord) bool) {
		if wb == nil {
			return
		}
		for addr, rec := range wb.All() {
			if !r.Contains(addr) {
				continue
			}
			if !yield(addr, rec) {
				return
			}
		}
	}
}
