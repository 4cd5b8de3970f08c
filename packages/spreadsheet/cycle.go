package spreadsheet

// HasCycle reports whether storing formula at origin would create a
// circular reference. It walks references depth-first through the formulas
// already in cells, tracking the current path, so a diamond of shared
// precedents is not mistaken for a cycle. A formula that does not parse
// reads nothing, so it never closes a cycle; it is stored as ErrorValue
// without graph edges.
func HasCycle(formula string, cells CellReader, origin CellAddress) bool {
	c := &cycleCheck{
		cells:  cells,
		origin: origin,
		onPath: map[CellAddress]struct{}{origin: {}},
		clean:  make(map[CellAddress]struct{}),
	}
	return c.visit(References(formula))
}

type cycleCheck struct {
	cells  CellReader
	origin CellAddress
	onPath map[CellAddress]struct{}
	// subtrees already explored without reaching the origin or the path
	clean map[CellAddress]struct{}
}

func (c *cycleCheck) visit(refs []CellAddress) bool {
	for _, ref := range refs {
		if ref == c.origin {
			return true
		}
		if _, seen := c.onPath[ref]; seen {
			return true
		}
		if _, done := c.clean[ref]; done {
			continue
		}

		rec, exists := c.cells.Cell(ref)
		if !exists || !rec.IsFormula() {
			continue
		}

		c.onPath[ref] = struct{}{}
		found := c.visit(References(rec.Formula))
		delete(c.onPath, ref)
		if found {
			return true
		}
		c.clean[ref] = struct{}{}
	}
	return false
}
