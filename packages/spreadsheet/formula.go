package spreadsheet

import "maps"

// ASTKey is the normalized text of a parsed formula. Two formulas with the
// same structure (ignoring whitespace and redundant parentheses) share a
// key and are parsed and stored once.
type ASTKey string

// FormulaTable interns parsed formulas and tracks which cells use them.
type FormulaTable struct {
	astIndex  map[ASTKey]uint32  // normalized AST -> formula ID
	astCache  map[uint32]ASTNode // formula ID -> parsed AST
	refCounts map[uint32]int     // formula ID -> number of cells using it

	cellsUsingFormula map[uint32]map[CellAddress]struct{} // formula ID -> cells using it
	formulaAtCell     map[CellAddress]uint32              // cell -> formula ID

	nextID uint32
}

// NewFormulaTable creates a new formula table
func NewFormulaTable() *FormulaTable {
	return &FormulaTable{
		astIndex:          make(map[ASTKey]uint32),
		astCache:          make(map[uint32]ASTNode),
		refCounts:         make(map[uint32]int),
		cellsUsingFormula: make(map[uint32]map[CellAddress]struct{}),
		formulaAtCell:     make(map[CellAddress]uint32),
		nextID:            1, // 0 means no formula
	}
}

func normalizeAST(ast ASTNode) ASTKey {
	if ast == nil {
		return ""
	}
	return ASTKey(ast.ToString())
}

// InternFormula binds ast to cell, replacing whatever the cell used before,
// and returns the formula ID.
func (ft *FormulaTable) InternFormula(ast ASTNode, cell CellAddress) uint32 {
	key := normalizeAST(ast)

	id, exists := ft.astIndex[key]
	if exists && ft.formulaAtCell[cell] == id {
		return id
	}
	ft.ReleaseCell(cell)

	if !exists {
		id = ft.nextID
		ft.nextID++
		ft.astIndex[key] = id
		ft.astCache[id] = ast
	}

	ft.refCounts[id]++
	if ft.cellsUsingFormula[id] == nil {
		ft.cellsUsingFormula[id] = make(map[CellAddress]struct{})
	}
	ft.cellsUsingFormula[id][cell] = struct{}{}
	ft.formulaAtCell[cell] = id
	return id
}

// ReleaseCell unbinds the formula at cell, dropping the formula when no
// other cell uses it. It reports whether the cell had a formula.
func (ft *FormulaTable) ReleaseCell(cell CellAddress) bool {
	id, exists := ft.formulaAtCell[cell]
	if !exists {
		return false
	}
	delete(ft.formulaAtCell, cell)

	if cells, ok := ft.cellsUsingFormula[id]; ok {
		delete(cells, cell)
		if len(cells) == 0 {
			delete(ft.cellsUsingFormula, id)
		}
	}

	ft.refCounts[id]--
	if ft.refCounts[id] <= 0 {
		ft.removeFormula(id)
	}
	return true
}

func (ft *FormulaTable) removeFormula(id uint32) {
	if ast, ok := ft.astCache[id]; ok {
		delete(ft.astIndex, normalizeAST(ast))
	}
	delete(ft.astCache, id)
	delete(ft.refCounts, id)
	delete(ft.cellsUsingFormula, id)
}

// GetAST retrieves the cached AST for a formula ID
func (ft *FormulaTable) GetAST(id uint32) (ASTNode, bool) {
	ast, exists := ft.astCache[id]
	return ast, exists
}

// GetFormulaAtCell returns the formula ID bound to cell
func (ft *FormulaTable) GetFormulaAtCell(cell CellAddress) (uint32, bool) {
	id, exists := ft.formulaAtCell[cell]
	return id, exists
}

// ASTAtCell returns the parsed formula bound to cell
func (ft *FormulaTable) ASTAtCell(cell CellAddress) (ASTNode, bool) {
	id, exists := ft.GetFormulaAtCell(cell)
	if !exists {
		return nil, false
	}
	return ft.GetAST(id)
}

// GetCellsUsingFormula returns the cells bound to a formula, row-major
func (ft *FormulaTable) GetCellsUsingFormula(id uint32) []CellAddress {
	return sortedAddresses(maps.Keys(ft.cellsUsingFormula[id]))
}

// GetReferenceCount returns how many cells use a formula
func (ft *FormulaTable) GetReferenceCount(id uint32) int {
	return ft.refCounts[id]
}

// Count returns the number of distinct formulas
func (ft *FormulaTable) Count() int {
	return len(ft.astCache)
}

// TotalReferences returns the number of cells bound to any formula
func (ft *FormulaTable) TotalReferences() int {
	return len(ft.formulaAtCell)
}

// Clone copies the table. ASTs are immutable and shared.
func (ft *FormulaTable) Clone() *FormulaTable {
	clone := &FormulaTable{
		astIndex:          maps.Clone(ft.astIndex),
		astCache:          maps.Clone(ft.astCache),
		refCounts:         maps.Clone(ft.refCounts),
		cellsUsingFormula: make(map[uint32]map[CellAddress]struct{}, len(ft.cellsUsingFormula)),
		formulaAtCell:     maps.Clone(ft.formulaAtCell),
		nextID:            ft.nextID,
	}
	for id, cells := range ft.cellsUsingFormula {
		clone.cellsUsingFormula[id] = maps.Clone(cells)
	}
	return clone
}

// Clear removes all formulas
func (ft *FormulaTable) Clear() {
	clear(ft.astIndex)
	clear(ft.astCache)
	clear(ft.refCounts)
	clear(ft.cellsUsingFormula)
	clear(ft.formulaAtCell)
	ft.nextID = 1
}
