package spreadsheet

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenEquals
	TokenNumber
	TokenString
	TokenBoolean
	TokenCell
	TokenUnaryPrefixOp
	TokenUnaryPostfixOp
	TokenBinaryOp
	TokenLeftParen
	TokenRightParen
	TokenError
)

// BinaryOp represents binary operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpPower
	BinOpConcat
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
)

// UnaryOp represents unary operators in AST nodes
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
	UnaryOpPercent
)

// character classification constants. slightly easier to read.
const (
	charNull      = 0
	charTab       = '\t'
	charNewline   = '\n'
	charReturn    = '\r'
	charSpace     = ' '
	charQuote     = '"'
	charPercent   = '%'
	charAmpersand = '&'
	charLParen    = '('
	charRParen    = ')'
	charAsterisk  = '*'
	charPlus      = '+'
	charMinus     = '-'
	charPeriod    = '.'
	charSlash     = '/'
	charLess      = '<'
	charEqual     = '='
	charGreater   = '>'
	charCaret     = '^'
	charExclaim   = '!'
)

// TokenState represents the lexer state for validation
type TokenState int

const (
	StateStart TokenState = iota
	StateAfterEquals
	StateAfterValue
	StateAfterOperator
	StateAfterLeftParen
	StateAfterRightParen
)

// operand tokens that may begin a value
var operandTokens = map[TokenType]bool{
	TokenNumber:        true,
	TokenString:        true,
	TokenBoolean:       true,
	TokenCell:          true,
	TokenLeftParen:     true,
	TokenUnaryPrefixOp: true,
}

// tokenTransitions maps the current state to valid next token types
var tokenTransitions = map[TokenState]map[TokenType]bool{
	StateStart: {
		TokenEquals: true, // formula prefix only
	},
	StateAfterEquals:    operandTokens,
	StateAfterOperator:  operandTokens,
	StateAfterLeftParen: operandTokens,
	StateAfterValue: {
		TokenBinaryOp:       true,
		TokenUnaryPostfixOp: true, // for %
		TokenRightParen:     true,
		TokenEOF:            true,
		// no consecutive values
	},
	StateAfterRightParen: {
		TokenBinaryOp:       true,
		TokenUnaryPostfixOp: true,
		TokenRightParen:     true,
		TokenEOF:            true,
	},
}

// Token represents a lexical token with position information
type Token struct {
	Type  TokenType
	Value string
	Pos   int       // rune position in input
	Code  ErrorCode // set on TokenError only
}

// maxNestingDepth bounds how deeply a formula may nest, so parsing and
// evaluation recurse a bounded number of times.
const maxNestingDepth = 256

// Lexer tokenizes formula expressions. Input must start with the formula
// prefix.
type Lexer struct {
	input      string
	runes      []rune
	pos        int
	state      TokenState
	parenDepth int
	prefixRun  int // consecutive unary prefix operators
	tokens     []Token
}

// NewLexer creates a new lexer for the given formula input
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		runes:  []rune(input),
		state:  StateStart,
		tokens: []Token{},
	}
}

// Tokenize tokenizes the entire input. On failure it returns a
// *EvalError with ErrorCodeParse or ErrorCodeName.
func (l *Lexer) Tokenize() ([]Token, error) {
	if len(l.runes) == 0 || l.runes[0] != charEqual {
		return nil, NewEvalError(ErrorCodeParse, "formula must start with '='")
	}

	for {
		l.skipWhitespace()
		if l.pos >= len(l.runes) {
			break
		}

		tok := l.nextToken()
		if tok.Type == TokenError {
			return nil, NewEvalError(tok.Code, tok.Value)
		}
		if !l.validateTransition(tok.Type) {
			return nil, NewEvalError(ErrorCodeParse, "unexpected token: "+tok.Value)
		}
		l.tokens = append(l.tokens, tok)
		l.updateState(tok.Type)
	}

	if l.parenDepth > 0 {
		return nil, NewEvalError(ErrorCodeParse, "unbalanced parentheses: missing closing parenthesis")
	}
	if !l.validateTransition(TokenEOF) {
		return nil, NewEvalError(ErrorCodeParse, "unexpected end of formula")
	}

	l.tokens = append(l.tokens, Token{Type: TokenEOF, Pos: l.pos})
	return l.tokens, nil
}

// validateTransition checks if the token type is valid in current state
func (l *Lexer) validateTransition(tokenType TokenType) bool {
	validTokens, exists := tokenTransitions[l.state]
	if !exists {
		return false
	}
	return validTokens[tokenType]
}

// updateState updates the lexer state based on the token type
func (l *Lexer) updateState(tokenType TokenType) {
	if tokenType == TokenUnaryPrefixOp {
		l.prefixRun++
	} else {
		l.prefixRun = 0
	}
	switch tokenType {
	case TokenEquals:
		l.state = StateAfterEquals
	case TokenNumber, TokenString, TokenBoolean, TokenCell:
		l.state = StateAfterValue
	case TokenUnaryPrefixOp, TokenBinaryOp:
		l.state = StateAfterOperator
	case TokenUnaryPostfixOp:
		// postfix operators keep the current state
	case TokenLeftParen:
		l.state = StateAfterLeftParen
	case TokenRightParen:
		l.state = StateAfterRightParen
	}
}

// nextToken returns the next token from the input
func (l *Lexer) nextToken() Token {
	startPos := l.pos
	ch := l.current()

	if ch == charQuote {
		return l.scanString()
	}

	if l.isDigit(ch) || (ch == charPeriod && l.isDigit(l.peek(1))) {
		return l.scanNumber()
	}

	switch ch {
	case charLParen:
		l.pos++
		l.parenDepth++
		if l.parenDepth > maxNestingDepth {
			return errorToken(ErrorCodeParse, "parentheses nested too deeply", startPos)
		}
		return Token{Type: TokenLeftParen, Value: "(", Pos: startPos}
	case charRParen:
		l.pos++
		l.parenDepth--
		if l.parenDepth < 0 {
			return errorToken(ErrorCodeParse, "unexpected closing parenthesis", startPos)
		}
		return Token{Type: TokenRightParen, Value: ")", Pos: startPos}
	case charPlus, charMinus:
		return l.scanUnaryPrefixOrBinaryOp()
	case charAsterisk, charSlash, charCaret, charAmpersand, charLess, charGreater, charExclaim:
		return l.scanBinaryOp()
	case charPercent:
		l.pos++
		return Token{Type: TokenUnaryPostfixOp, Value: "%", Pos: startPos}
	case charEqual:
		l.pos++
		if startPos == 0 {
			return Token{Type: TokenEquals, Value: "=", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: "=", Pos: startPos}
	}

	if l.isAlpha(ch) {
		return l.scanNameOrCell()
	}

	l.pos++
	return errorToken(ErrorCodeParse, "unexpected character: "+string(ch), startPos)
}

func errorToken(code ErrorCode, message string, pos int) Token {
	return Token{Type: TokenError, Value: message, Pos: pos, Code: code}
}

// substring returns a substring of the original input based on rune positions
func (l *Lexer) substring(start, end int) string {
	if start < 0 || end > len(l.runes) || start > end {
		return ""
	}
	return string(l.runes[start:end])
}

func (l *Lexer) current() rune {
	if l.pos >= len(l.runes) {
		return charNull
	}
	return l.runes[l.pos]
}

func (l *Lexer) peek(offset int) rune {
	pos := l.pos + offset
	if pos >= len(l.runes) || pos < 0 {
		return charNull
	}
	return l.runes[pos]
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.runes) {
		switch l.current() {
		case charSpace, charTab, charNewline, charReturn:
			l.pos++
		default:
			return
		}
	}
}

func (l *Lexer) isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func (l *Lexer) isAlphaNumeric(ch rune) bool {
	return l.isAlpha(ch) || l.isDigit(ch)
}

// scanNumber scans a number token including decimals and scientific notation
func (l *Lexer) scanNumber() Token {
	startPos := l.pos

	for l.isDigit(l.current()) {
		l.pos++
	}

	if l.current() == charPeriod && l.isDigit(l.peek(1)) {
		l.pos++ // consume '.'
		for l.isDigit(l.current()) {
			l.pos++
		}
	}

	if l.current() == 'e' || l.current() == 'E' {
		savedPos := l.pos
		l.pos++
		if l.current() == charPlus || l.current() == charMinus {
			l.pos++
		}
		if !l.isDigit(l.current()) {
			// not an exponent; leave the letter for the next token
			l.pos = savedPos
		} else {
			for l.isDigit(l.current()) {
				l.pos++
			}
		}
	}

	return Token{Type: TokenNumber, Value: l.substring(startPos, l.pos), Pos: startPos}
}

// scanString scans a string literal with support for double-quote escapes
func (l *Lexer) scanString() Token {
	startPos := l.pos
	l.pos++ // consume opening quote

	var result []rune
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch != charQuote {
			result = append(result, ch)
			l.pos++
			continue
		}
		if l.peek(1) == charQuote {
			result = append(result, charQuote)
			l.pos += 2
			continue
		}
		l.pos++ // closing quote
		return Token{Type: TokenString, Value: string(result), Pos: startPos}
	}

	return errorToken(ErrorCodeParse, "unclosed string literal", startPos)
}

// scanNameOrCell scans cell addresses and the boolean literals. Anything
// else made of letters and digits is an unknown name.
func (l *Lexer) scanNameOrCell() Token {
	startPos := l.pos
	for l.isAlphaNumeric(l.current()) {
		l.pos++
	}
	value := l.substring(startPos, l.pos)

	if value == "TRUE" || value == "FALSE" {
		return Token{Type: TokenBoolean, Value: value, Pos: startPos}
	}
	if l.isCell(value) {
		return Token{Type: TokenCell, Value: value, Pos: startPos}
	}
	return errorToken(ErrorCodeName, "unknown name: "+value, startPos)
}

// isCell checks if a string has the address shape: uppercase letters
// followed by digits. Range checks happen when the address is decoded.
func (l *Lexer) isCell(s string) bool {
	letterEnd := 0
	for letterEnd < len(s) && s[letterEnd] >= 'A' && s[letterEnd] <= 'Z' {
		letterEnd++
	}
	if letterEnd == 0 || letterEnd == len(s) {
		return false
	}
	for i := letterEnd; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// scanUnaryPrefixOrBinaryOp scans + and - which can be either unary
// prefix or binary
func (l *Lexer) scanUnaryPrefixOrBinaryOp() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++

	if l.isUnaryContext() {
		if l.prefixRun >= maxNestingDepth {
			return errorToken(ErrorCodeParse, "too many prefix operators", startPos)
		}
		return Token{Type: TokenUnaryPrefixOp, Value: string(ch), Pos: startPos}
	}
	return Token{Type: TokenBinaryOp, Value: string(ch), Pos: startPos}
}

// scanBinaryOp scans binary operators
func (l *Lexer) scanBinaryOp() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++

	switch ch {
	case charLess:
		switch l.current() {
		case charEqual:
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "<=", Pos: startPos}
		case charGreater:
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "<>", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: "<", Pos: startPos}
	case charGreater:
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: ">=", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: ">", Pos: startPos}
	case charExclaim:
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "!=", Pos: startPos}
		}
		return errorToken(ErrorCodeParse, "unexpected '!'", startPos)
	case charAsterisk, charSlash, charCaret, charAmpersand:
		return Token{Type: TokenBinaryOp, Value: string(ch), Pos: startPos}
	}

	return errorToken(ErrorCodeParse, "unknown operator", startPos)
}

// isUnaryContext checks if the current context allows for unary operators
func (l *Lexer) isUnaryContext() bool {
	switch l.state {
	case StateAfterEquals, StateAfterOperator, StateAfterLeftParen:
		return true
	default:
		return false
	}
}
