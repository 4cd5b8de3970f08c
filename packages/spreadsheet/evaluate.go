package spreadsheet

import (
	"errors"
	"slices"
)

// ParseFormula tokenizes and parses formula text, including the leading
// prefix. Failures are *EvalError values.
func ParseFormula(formula string) (ASTNode, error) {
	tokens, err := NewLexer(formula).Tokenize()
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).Parse()
}

// Evaluate computes the display value of a formula against cells. On any
// parse or evaluation failure it returns ErrorValue and false.
func Evaluate(formula string, cells CellReader) (string, bool) {
	ast, err := ParseFormula(formula)
	if err != nil {
		return ErrorValue, false
	}
	value, err := evaluateAST(ast, cells)
	if err != nil {
		return ErrorValue, false
	}
	return value, true
}

// evaluateAST runs a parsed formula and renders the result.
func evaluateAST(ast ASTNode, cells CellReader) (string, error) {
	if ast == nil {
		return "", NewEvalError(ErrorCodeParse, "formula did not parse")
	}
	result, err := ast.Eval(cells)
	if err != nil {
		var evalErr *EvalError
		if errors.As(err, &evalErr) {
			return "", evalErr
		}
		return "", NewEvalError(ErrorCodeValue, err.Error())
	}
	return toString(result), nil
}

// References returns the distinct, decodable addresses a formula mentions,
// in order of first appearance. A formula that does not parse references
// nothing.
func References(formula string) []CellAddress {
	ast, err := ParseFormula(formula)
	if err != nil {
		return nil
	}
	return astReferences(ast)
}

// astReferences walks the tree collecting cell references
func astReferences(node ASTNode) []CellAddress {
	var refs []CellAddress
	var walk func(ASTNode)
	walk = func(n ASTNode) {
		switch n := n.(type) {
		case *CellRefNode:
			if n.Valid && !slices.Contains(refs, n.Address) {
				refs = append(refs, n.Address)
			}
		case *BinaryOpNode:
			walk(n.Left)
			walk(n.Right)
		case *UnaryOpNode:
			walk(n.Operand)
		}
	}
	if node != nil {
		walk(node)
	}
	return refs
}
