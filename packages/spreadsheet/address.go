package spreadsheet

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrInvalidAddress is returned when address text does not match
// <uppercase letters><digits> or names a row or column outside the grid.
var ErrInvalidAddress = errors.New("invalid cell address")

// maxIndex is the largest row or column. Encoding works in uint64 so the
// one-based forms of maxIndex do not overflow.
const maxIndex = math.MaxInt

// CellAddress is a zero-based (row, column) grid coordinate. The textual
// form ("A1", "AA10") is derived, never stored.
type CellAddress struct {
	Row int
	Col int
}

// NewCellAddress is shorthand for CellAddress{Row: row, Col: col}.
func NewCellAddress(row, col int) CellAddress {
	return CellAddress{Row: row, Col: col}
}

// Valid reports whether both coordinates are within the addressable grid.
func (a CellAddress) Valid() bool {
	return a.Row >= 0 && a.Col >= 0 && a.Row <= maxIndex && a.Col <= maxIndex
}

// String returns the canonical address text.
func (a CellAddress) String() string {
	return EncodeAddress(a.Row, a.Col)
}

// Offset returns the address moved by the given deltas. The result may be
// invalid.
func (a CellAddress) Offset(rows, cols int) CellAddress {
	return CellAddress{Row: a.Row + rows, Col: a.Col + cols}
}

// compareAddresses orders addresses row-major.
func compareAddresses(a, b CellAddress) int {
	if a.Row != b.Row {
		if a.Row < b.Row {
			return -1
		}
		return 1
	}
	if a.Col != b.Col {
		if a.Col < b.Col {
			return -1
		}
		return 1
	}
	return 0
}

// ColumnLabel returns the bijective base-26 letters for a zero-based
// column: 0 is "A", 25 is "Z", 26 is "AA". Negative columns have no label.
func ColumnLabel(col int) string {
	if col < 0 {
		return ""
	}

	// 26^14 > 2^63, so 14 letters cover every int
	var buf [14]byte
	i := len(buf)
	for n := uint64(col) + 1; n > 0; n = (n - 1) / 26 {
		i--
		buf[i] = byte('A' + (n-1)%26)
	}
	return string(buf[i:])
}

// EncodeAddress renders zero-based coordinates as address text.
func EncodeAddress(row, col int) string {
	if row < 0 {
		return ColumnLabel(col) + strconv.Itoa(row+1)
	}
	return ColumnLabel(col) + strconv.FormatUint(uint64(row)+1, 10)
}

// DecodeAddress parses address text into zero-based coordinates.
func DecodeAddress(text string) (row int, col int, err error) {
	letterEnd := 0
	for letterEnd < len(text) && text[letterEnd] >= 'A' && text[letterEnd] <= 'Z' {
		letterEnd++
	}
	if letterEnd == 0 || letterEnd == len(text) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidAddress, text)
	}
	for i := letterEnd; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidAddress, text)
		}
	}

	// A=1 .. Z=26, accumulated left to right
	const limit = uint64(maxIndex) + 1
	var acc uint64
	for i := 0; i < letterEnd; i++ {
		digit := uint64(text[i]-'A') + 1
		if acc > (limit-digit)/26 {
			return 0, 0, fmt.Errorf("%w: column out of range in %q", ErrInvalidAddress, text)
		}
		acc = acc*26 + digit
	}

	rowNum, parseErr := strconv.ParseUint(text[letterEnd:], 10, 64)
	if parseErr != nil || rowNum < 1 || rowNum > limit {
		return 0, 0, fmt.Errorf("%w: row out of range in %q", ErrInvalidAddress, text)
	}

	return int(rowNum - 1), int(acc - 1), nil
}

// ParseAddress decodes address text into a CellAddress.
func ParseAddress(text string) (CellAddress, error) {
	row, col, err := DecodeAddress(text)
	if err != nil {
		return CellAddress{}, err
	}
	return CellAddress{Row: row, Col: col}, nil
}

// MustParseAddress is like ParseAddress but panics on malformed text. It is
// meant for literals in tests and fixtures.
func MustParseAddress(text string) CellAddress {
	addr, err := ParseAddress(text)
	if err != nil {
		panic(err)
	}
	return addr
}
