package spreadsheet

// PassStats summarizes one recalculation pass
type PassStats struct {
	Evaluated int // formula cells evaluated
	Failed    int // evaluations that produced ErrorValue
	Skipped   int // dependents left alone because nothing they read changed
}

// evaluateCell recomputes the formula at addr in place. It reports whether
// the display value changed and returns the evaluation failure, if any,
// after storing ErrorValue.
func (s *Storage) evaluateCell(addr CellAddress) (bool, error) {
	rec, exists := s.workbook.Cell(addr)
	if !exists || !rec.IsFormula() {
		return false, nil
	}

	value := ErrorValue
	var evalErr error
	if ast, ok := s.formulas.ASTAtCell(addr); ok {
		if v, err := evaluateAST(ast, s.workbook); err != nil {
			evalErr = err
		} else {
			value = v
		}
	} else {
		_, evalErr = ParseFormula(rec.Formula)
		if evalErr == nil {
			evalErr = NewEvalError(ErrorCodeParse, "formula is not bound")
		}
	}

	changed := rec.Value != value
	rec.Value = value
	s.workbook.set(addr, rec)
	return changed, evalErr
}

// propagate recomputes seeds and their transitive dependents in
// topological order. Callers mark the readers of every seed whose value
// changed as dirty first. A dependent is evaluated only while dirty, and a
// value change marks its own readers in turn.
func (s *Storage) propagate(seeds []CellAddress) (PassStats, error) {
	var stats PassStats
	graph := s.dependencyGraph
	defer graph.ClearAllDirty()

	isSeed := make(map[CellAddress]bool, len(seeds))
	affected := make([]CellAddress, 0, len(seeds))
	for _, seed := range seeds {
		if isSeed[seed] {
			continue
		}
		isSeed[seed] = true
		affected = append(affected, seed)
	}
	for _, seed := range seeds {
		for _, dep := range graph.GetAllDependents(seed) {
			if !isSeed[dep] {
				affected = append(affected, dep)
			}
		}
	}

	order, err := graph.CalculationOrder(affected)
	if err != nil {
		return stats, err
	}

	for _, addr := range order {
		if !isSeed[addr] && !graph.IsDirty(addr) {
			stats.Skipped++
			continue
		}

		rec, exists := s.workbook.Cell(addr)
		if exists && rec.IsFormula() {
			valueChanged, evalErr := s.evaluateCell(addr)
			stats.Evaluated++
			if evalErr != nil {
				stats.Failed++
			}
			if valueChanged {
				graph.MarkDependentsDirty(addr)
			}
		}
		graph.ClearDirty(addr)
	}
	return stats, nil
}

// recalculateAll evaluates every formula cell in dependency order
func (s *Storage) recalculateAll() (PassStats, error) {
	var stats PassStats

	order, err := s.dependencyGraph.CalculationOrder(s.workbook.FormulaCells())
	if err != nil {
		return stats, err
	}
	for _, addr := range order {
		_, evalErr := s.evaluateCell(addr)
		stats.Evaluated++
		if evalErr != nil {
			stats.Failed++
		}
	}
	return stats, nil
}
