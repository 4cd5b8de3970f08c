package spreadsheet

import "encoding/json"

// Primitive represents evaluated formula values.
// types:
//   - float64: numeric values
//   - string: text values
//   - bool: boolean values (TRUE/FALSE)
//   - nil: empty cells
type Primitive any

// FormulaPrefix marks cell content as a formula.
const FormulaPrefix = "="

// ErrorValue is the display value stored in a cell whose formula failed to
// parse or evaluate.
const ErrorValue = "#ERROR!"

// Kind is the inferred or declared type of a cell's content.
type Kind string

const (
	KindText    Kind = "text"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindDate    Kind = "date"
	KindFormula Kind = "formula"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindNumber, KindBoolean, KindDate, KindFormula:
		return true
	}
	return false
}

// CellRecord is the stored state of one non-empty cell.
type CellRecord struct {
	Value   string          // last computed display value, possibly ErrorValue
	Formula string          // raw formula text including the prefix; empty unless Kind is KindFormula
	Kind    Kind            // content kind
	Format  json.RawMessage // opaque display attributes, passed through untouched
}

// IsFormula reports whether the record holds a formula.
func (r CellRecord) IsFormula() bool {
	return r.Kind == KindFormula && r.Formula != ""
}

// Failed reports whether the record is a formula whose last evaluation
// produced ErrorValue.
func (r CellRecord) Failed() bool {
	return r.IsFormula() && r.Value == ErrorValue
}

// Content returns what an editor shows for the cell: the formula text if
// present, else the literal value.
func (r CellRecord) Content() string {
	if r.IsFormula() {
		return r.Formula
	}
	return r.Value
}

// ErrorCode classifies formula evaluation failures. Every code displays as
// ErrorValue in the cell; the code is kept for diagnostics.
type ErrorCode uint8

const (
	ErrorCodeParse ErrorCode = 1 // malformed formula text
	ErrorCodeName  ErrorCode = 2 // unrecognized identifier
	ErrorCodeValue ErrorCode = 3 // wrong operand type
	ErrorCodeDiv0  ErrorCode = 4 // division by zero
	ErrorCodeNum   ErrorCode = 5 // result not a finite number
	ErrorCodeRef   ErrorCode = 6 // referenced cell holds an error
)

// ErrorMapper maps error codes to their conventional short names.
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeParse: "#PARSE!",
	ErrorCodeName:  "#NAME?",
	ErrorCodeValue: "#VALUE!",
	ErrorCodeDiv0:  "#DIV/0!",
	ErrorCodeNum:   "#NUM!",
	ErrorCodeRef:   "#REF!",
}

// EvalError is a formula failure. It never escapes a commit; it is turned
// into ErrorValue in the cell.
type EvalError struct {
	Code    ErrorCode
	Message string
}

func (e *EvalError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ErrorMapper[e.Code]
}

func NewEvalError(code ErrorCode, message string) *EvalError {
	if message == "" {
		message = ErrorMapper[code]
	}
	return &EvalError{
		Code:    code,
		Message: message,
	}
}
