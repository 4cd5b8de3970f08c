package spreadsheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type NodePosition struct {
	Start int
	End   int
}

// CellReader gives formula evaluation read access to cell records.
type CellReader interface {
	Cell(addr CellAddress) (CellRecord, bool)
}

// ASTNode is a parsed formula expression. Dependency extraction and
// deduplication walk the tree rather than the formula text.
type ASTNode interface {
	Eval(cells CellReader) (Primitive, error)
	GetPosition() NodePosition
	ToString() string
}

// Parser parses tokens into an AST
type Parser struct {
	tokens []Token
	pos    int
	depth  int // right-recursive power operands
}

// StringNode represents a string literal
type StringNode struct {
	Value    string
	Position NodePosition
}

func (n *StringNode) Eval(CellReader) (Primitive, error) {
	return n.Value, nil
}

func (n *StringNode) GetPosition() NodePosition {
	return n.Position
}

func (n *StringNode) ToString() string {
	escaped := strings.ReplaceAll(n.Value, "\"", "\"\"")
	return fmt.Sprintf("\"%s\"", escaped)
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value    float64
	Position NodePosition
}

func (n *NumberNode) Eval(CellReader) (Primitive, error) {
	return n.Value, nil
}

func (n *NumberNode) GetPosition() NodePosition {
	return n.Position
}

func (n *NumberNode) ToString() string {
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

// BooleanNode represents a boolean literal
type BooleanNode struct {
	Value    bool
	Position NodePosition
}

func (n *BooleanNode) Eval(CellReader) (Primitive, error) {
	return n.Value, nil
}

func (n *BooleanNode) GetPosition() NodePosition {
	return n.Position
}

func (n *BooleanNode) ToString() string {
	if n.Value {
		return "TRUE"
	}
	return "FALSE"
}

// CellRefNode represents an absolute cell reference. A reference whose text
// has the address shape but does not decode (A0, out of range) is kept with
// Valid unset and reads as an empty cell.
type CellRefNode struct {
	Address  CellAddress
	Text     string
	Valid    bool
	Position NodePosition
}

func (n *CellRefNode) Eval(cells CellReader) (Primitive, error) {
	if !n.Valid {
		return 0.0, nil
	}

	rec, exists := cells.Cell(n.Address)
	if !exists || rec.Value == "" {
		return 0.0, nil
	}
	if rec.Failed() {
		return nil, NewEvalError(ErrorCodeRef, fmt.Sprintf("%s holds an error", n.Text))
	}
	if num, ok := parseNumber(rec.Value); ok {
		return num, nil
	}
	if rec.Kind == KindBoolean {
		switch strings.ToUpper(rec.Value) {
		case "TRUE":
			return true, nil
		case "FALSE":
			return false, nil
		}
	}
	return rec.Value, nil
}

func (n *CellRefNode) GetPosition() NodePosition {
	return n.Position
}

func (n *CellRefNode) ToString() string {
	if n.Valid {
		return n.Address.String()
	}
	return n.Text
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Op       BinaryOp
	Left     ASTNode
	Right    ASTNode
	Position NodePosition
}

func (n *BinaryOpNode) Eval(cells CellReader) (Primitive, error) {
	leftVal, err := n.Left.Eval(cells)
	if err != nil {
		return nil, err
	}
	rightVal, err := n.Right.Eval(cells)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case BinOpAdd, BinOpSubtract, BinOpMultiply, BinOpDivide, BinOpPower:
		return n.arithmetic(leftVal, rightVal)

	case BinOpConcat:
		return toString(leftVal) + toString(rightVal), nil

	case BinOpEqual:
		return comparePrimitives(leftVal, rightVal) == 0, nil

	case BinOpNotEqual:
		return comparePrimitives(leftVal, rightVal) != 0, nil
	}

	cmp := comparePrimitives(leftVal, rightVal)
	if cmp == -2 {
		return nil, NewEvalError(ErrorCodeValue, "cannot compare these values")
	}
	switch n.Op {
	case BinOpLess:
		return cmp < 0, nil
	case BinOpLessEqual:
		return cmp <= 0, nil
	case BinOpGreater:
		return cmp > 0, nil
	case BinOpGreaterEqual:
		return cmp >= 0, nil
	default:
		return nil, NewEvalError(ErrorCodeValue, "unknown operator")
	}
}

func (n *BinaryOpNode) arithmetic(leftVal, rightVal Primitive) (Primitive, error) {
	leftNum, leftOk := toNumber(leftVal)
	rightNum, rightOk := toNumber(rightVal)
	if !leftOk || !rightOk {
		return nil, NewEvalError(ErrorCodeValue, fmt.Sprintf("%s requires numeric values", n.opName()))
	}

	var result float64
	switch n.Op {
	case BinOpAdd:
		result = leftNum + rightNum
	case BinOpSubtract:
		result = leftNum - rightNum
	case BinOpMultiply:
		result = leftNum * rightNum
	case BinOpDivide:
		if rightNum == 0 {
			return nil, NewEvalError(ErrorCodeDiv0, "division by zero")
		}
		result = leftNum / rightNum
	case BinOpPower:
		result = math.Pow(leftNum, rightNum)
	}

	if math.IsNaN(result) || math.IsInf(result, 0) {
		return nil, NewEvalError(ErrorCodeNum, fmt.Sprintf("%s result is not a finite number", n.opName()))
	}
	return result, nil
}

func (n *BinaryOpNode) opName() string {
	switch n.Op {
	case BinOpAdd:
		return "addition"
	case BinOpSubtract:
		return "subtraction"
	case BinOpMultiply:
		return "multiplication"
	case BinOpDivide:
		return "division"
	case BinOpPower:
		return "power"
	}
	return "operator"
}

func (n *BinaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *BinaryOpNode) ToString() string {
	opStr := ""
	switch n.Op {
	case BinOpAdd:
		opStr = "+"
	case BinOpSubtract:
		opStr = "-"
	case BinOpMultiply:
		opStr = "*"
	case BinOpDivide:
		opStr = "/"
	case BinOpPower:
		opStr = "^"
	case BinOpConcat:
		opStr = "&"
	case BinOpEqual:
		opStr = "="
	case BinOpNotEqual:
		opStr = "<>"
	case BinOpLess:
		opStr = "<"
	case BinOpLessEqual:
		opStr = "<="
	case BinOpGreater:
		opStr = ">"
	case BinOpGreaterEqual:
		opStr = ">="
	}
	return fmt.Sprintf("(%s%s%s)", n.Left.ToString(), opStr, n.Right.ToString())
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Op       UnaryOp
	Operand  ASTNode
	Position NodePosition
}

func (n *UnaryOpNode) Eval(cells CellReader) (Primitive, error) {
	val, err := n.Operand.Eval(cells)
	if err != nil {
		return nil, err
	}

	num, ok := toNumber(val)
	if !ok {
		return nil, NewEvalError(ErrorCodeValue, "unary operator requires a numeric value")
	}

	switch n.Op {
	case UnaryOpPlus:
		return num, nil
	case UnaryOpMinus:
		return -num, nil
	case UnaryOpPercent:
		return num / 100.0, nil
	default:
		return nil, NewEvalError(ErrorCodeValue, "unknown unary operator")
	}
}

func (n *UnaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *UnaryOpNode) ToString() string {
	switch n.Op {
	case UnaryOpMinus:
		return "-" + n.Operand.ToString()
	case UnaryOpPercent:
		return fmt.Sprintf("(%s%%)", n.Operand.ToString())
	}
	return "+" + n.Operand.ToString()
}

// NewParser creates a new parser over a token stream produced by Lexer
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses the tokens into an AST
func (p *Parser) Parse() (ASTNode, error) {
	if len(p.tokens) == 0 {
		return nil, NewEvalError(ErrorCodeParse, "no tokens to parse")
	}
	if p.tokens[p.pos].Type != TokenEquals {
		return nil, NewEvalError(ErrorCodeParse, "formula must start with '='")
	}
	p.pos++

	node, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenEOF {
		value := ""
		if p.pos < len(p.tokens) {
			value = p.tokens[p.pos].Value
		}
		return nil, NewEvalError(ErrorCodeParse, fmt.Sprintf("unexpected token after expression: %s", value))
	}
	return node, nil
}

func (p *Parser) peekBinaryOp() (string, bool) {
	if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenBinaryOp {
		return "", false
	}
	return p.tokens[p.pos].Value, true
}

func binary(op BinaryOp, left, right ASTNode) ASTNode {
	return &BinaryOpNode{
		Op:       op,
		Left:     left,
		Right:    right,
		Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
	}
}

// parseComparison handles comparison operators (lowest precedence)
func (p *Parser) parseComparison() (ASTNode, error) {
	left, err := p.parseConcatenation()
	if err != nil {
		return nil, err
	}

	for {
		value, ok := p.peekBinaryOp()
		if !ok {
			return left, nil
		}
		var op BinaryOp
		switch value {
		case "=":
			op = BinOpEqual
		case "<>", "!=":
			op = BinOpNotEqual
		case "<":
			op = BinOpLess
		case "<=":
			op = BinOpLessEqual
		case ">":
			op = BinOpGreater
		case ">=":
			op = BinOpGreaterEqual
		default:
			return left, nil
		}
		p.pos++

		right, err := p.parseConcatenation()
		if err != nil {
			return nil, err
		}
		left = binary(op, left, right)
	}
}

// parseConcatenation handles the text concatenation operator
func (p *Parser) parseConcatenation() (ASTNode, error) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}

	for {
		value, ok := p.peekBinaryOp()
		if !ok || value != "&" {
			return left, nil
		}
		p.pos++

		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}
		left = binary(BinOpConcat, left, right)
	}
}

// parseAddition handles addition and subtraction
func (p *Parser) parseAddition() (ASTNode, error) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}

	for {
		value, ok := p.peekBinaryOp()
		if !ok {
			return left, nil
		}
		var op BinaryOp
		switch value {
		case "+":
			op = BinOpAdd
		case "-":
			op = BinOpSubtract
		default:
			return left, nil
		}
		p.pos++

		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}
		left = binary(op, left, right)
	}
}

// parseMultiplication handles multiplication and division
func (p *Parser) parseMultiplication() (ASTNode, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}

	for {
		value, ok := p.peekBinaryOp()
		if !ok {
			return left, nil
		}
		var op BinaryOp
		switch value {
		case "*":
			op = BinOpMultiply
		case "/":
			op = BinOpDivide
		default:
			return left, nil
		}
		p.pos++

		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = binary(op, left, right)
	}
}

// parsePower handles exponentiation
func (p *Parser) parsePower() (ASTNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	// right-associative
	if value, ok := p.peekBinaryOp(); ok && value == "^" {
		p.pos++
		if p.depth >= maxNestingDepth {
			return nil, NewEvalError(ErrorCodeParse, "exponents chained too deeply")
		}
		p.depth++
		right, err := p.parsePower()
		p.depth--
		if err != nil {
			return nil, err
		}
		return binary(BinOpPower, left, right), nil
	}
	return left, nil
}

// parseUnary handles prefix + and -
func (p *Parser) parseUnary() (ASTNode, error) {
	if p.pos >= len(p.tokens) {
		return nil, NewEvalError(ErrorCodeParse, "unexpected end of expression")
	}

	tok := p.tokens[p.pos]
	if tok.Type != TokenUnaryPrefixOp {
		return p.parsePostfix()
	}

	op := UnaryOpPlus
	if tok.Value == "-" {
		op = UnaryOpMinus
	}
	p.pos++
	operand, err := p.parseUnary() // chained unary operators
	if err != nil {
		return nil, err
	}
	return &UnaryOpNode{
		Op:       op,
		Operand:  operand,
		Position: NodePosition{Start: tok.Pos, End: operand.GetPosition().End},
	}, nil
}

// parsePostfix handles postfix percent, possibly repeated
func (p *Parser) parsePostfix() (ASTNode, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenUnaryPostfixOp {
		endPos := p.tokens[p.pos].Pos + 1
		p.pos++
		node = &UnaryOpNode{
			Op:       UnaryOpPercent,
			Operand:  node,
			Position: NodePosition{Start: node.GetPosition().Start, End: endPos},
		}
	}
	return node, nil
}

// parsePrimary handles literals, references and parentheses
func (p *Parser) parsePrimary() (ASTNode, error) {
	if p.pos >= len(p.tokens) {
		return nil, NewEvalError(ErrorCodeParse, "unexpected end of expression")
	}

	tok := p.tokens[p.pos]
	switch tok.Type {
	case TokenNumber:
		p.pos++
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil || math.IsInf(val, 0) {
			return nil, NewEvalError(ErrorCodeNum, fmt.Sprintf("invalid number: %s", tok.Value))
		}
		return &NumberNode{
			Value:    val,
			Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
		}, nil

	case TokenString:
		p.pos++
		return &StringNode{
			Value:    tok.Value,
			Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value) + 2}, // +2 for quotes
		}, nil

	case TokenBoolean:
		p.pos++
		return &BooleanNode{
			Value:    tok.Value == "TRUE",
			Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
		}, nil

	case TokenCell:
		p.pos++
		return parseCellReference(tok), nil

	case TokenLeftParen:
		p.pos++
		node, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenRightParen {
			return nil, NewEvalError(ErrorCodeParse, "expected closing parenthesis")
		}
		p.pos++
		return node, nil

	default:
		return nil, NewEvalError(ErrorCodeParse, fmt.Sprintf("unexpected token: %s", tok.Value))
	}
}

// parseCellReference turns a cell token into a CellRefNode. Decoding
// failures are not parse errors; the reference reads as empty.
func parseCellReference(tok Token) *CellRefNode {
	node := &CellRefNode{
		Text:     tok.Value,
		Position: NodePosition{Start: tok.Pos, End: tok.Pos + len(tok.Value)},
	}
	if addr, err := ParseAddress(tok.Value); err == nil {
		node.Address = addr
		node.Valid = true
	}
	return node
}
