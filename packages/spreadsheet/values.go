package spreadsheet

import (
	"math"
	"strconv"
	"strings"
)

// parseNumber reports whether literal text reads as a finite number.
// Surrounding whitespace is ignored.
func parseNumber(text string) (float64, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, false
	}
	num, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
		return 0, false
	}
	return num, true
}

// inferKind classifies literal (non-formula) content.
func inferKind(text string) Kind {
	if _, ok := parseNumber(text); ok {
		return KindNumber
	}
	return KindText
}

// IsFormula reports whether raw cell content is a formula.
func IsFormula(content string) bool {
	return strings.HasPrefix(content, FormulaPrefix)
}

// toNumber converts an operand for arithmetic. Text never converts.
func toNumber(value Primitive) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

// toString converts value to its display text.
func toString(value Primitive) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return formatNumber(v)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return ""
	}
}

// formatNumber renders the shortest decimal form that round-trips, switching
// to exponent notation for very large or very small magnitudes.
func formatNumber(v float64) string {
	if v == 0 {
		return "0" // also folds -0
	}
	abs := math.Abs(v)
	if abs >= 1e21 || abs < 1e-6 {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// comparePrimitives returns -1, 0 or 1, or -2 when the values cannot be
// ordered. Empty sorts before everything; numbers before text; text
// compares case-insensitively.
func comparePrimitives(left, right Primitive) int {
	if left == nil && right == nil {
		return 0
	}
	if left == nil {
		left = emptyFor(right)
	}
	if right == nil {
		right = emptyFor(left)
	}

	leftNum, leftIsNum := left.(float64)
	rightNum, rightIsNum := right.(float64)
	if leftIsNum && rightIsNum {
		switch {
		case leftNum < rightNum:
			return -1
		case leftNum > rightNum:
			return 1
		}
		return 0
	}

	leftBool, leftIsBool := left.(bool)
	rightBool, rightIsBool := right.(bool)
	if leftIsBool && rightIsBool {
		switch {
		case leftBool == rightBool:
			return 0
		case !leftBool:
			return -1
		}
		return 1
	}

	leftStr, leftIsStr := left.(string)
	rightStr, rightIsStr := right.(string)
	if leftIsStr && rightIsStr {
		return strings.Compare(strings.ToLower(leftStr), strings.ToLower(rightStr))
	}

	// mixed types: numbers < text < booleans
	if rank(left) < rank(right) {
		return -1
	}
	if rank(left) > rank(right) {
		return 1
	}
	return -2
}

// emptyFor returns the zero value matching other's type so that an empty
// cell compares like 0, "" or FALSE.
func emptyFor(other Primitive) Primitive {
	switch other.(type) {
	case string:
		return ""
	case bool:
		return false
	default:
		return 0.0
	}
}

func rank(value Primitive) int {
	switch value.(type) {
	case float64:
		return 1
	case string:
		return 2
	case bool:
		return 3
	default:
		return 0
	}
}
