package spreadsheet

// Storage holds the tables an Engine swaps as a unit on every commit
type Storage struct {
	workbook        *Workbook
	formulas        *FormulaTable
	dependencyGraph *DependencyGraph
}

func newStorage(wb *Workbook) *Storage {
	if wb == nil {
		wb = NewWorkbook()
	}
	return &Storage{
		workbook:        wb,
		formulas:        NewFormulaTable(),
		dependencyGraph: NewDependencyGraph(),
	}
}

func (s *Storage) clone() *Storage {
	return &Storage{
		workbook:        s.workbook.Clone(),
		formulas:        s.formulas.Clone(),
		dependencyGraph: s.dependencyGraph.Clone(),
	}
}

// bindCell refreshes the formula table and the precedent edges of addr from
// its current record.
func (s *Storage) bindCell(addr CellAddress) {
	rec, exists := s.workbook.Cell(addr)
	if !exists || !rec.IsFormula() {
		s.unbindCell(addr)
		return
	}

	ast, err := ParseFormula(rec.Formula)
	if err != nil {
		// evaluates to ErrorValue and reads nothing
		s.unbindCell(addr)
		return
	}
	s.formulas.InternFormula(ast, addr)
	s.dependencyGraph.SetPrecedents(addr, astReferences(ast))
}

func (s *Storage) unbindCell(addr CellAddress) {
	s.formulas.ReleaseCell(addr)
	s.dependencyGraph.ClearDependencies(addr)
}

// rebind discards the formula table and graph and rebuilds both from the
// workbook.
func (s *Storage) rebind() {
	s.formulas.Clear()
	s.dependencyGraph.Clear()
	for _, addr := range s.workbook.FormulaCells() {
		s.bindCell(addr)
	}
}
