package spreadsheet

import (
	"errors"
	"iter"
	"maps"
	"slices"
)

// ErrInconsistentGraph means the dependency graph contains a cycle. Commits
// reject cycles up front, so this signals a broken invariant.
var ErrInconsistentGraph = errors.New("dependency graph contains a cycle")

// DependencyNode represents a cell in the dependency graph
type DependencyNode struct {
	Address CellAddress

	CellPrecedents map[CellAddress]*DependencyNode // cells this cell reads
	CellDependents map[CellAddress]*DependencyNode // formula cells that read this cell
}

// DependencyGraph is the reverse-dependency index used to order
// recalculation. Nodes exist only while they have an edge. The dirty set
// holds cells that read a changed value and must be re-evaluated.
type DependencyGraph struct {
	nodes    map[CellAddress]*DependencyNode
	dirtySet map[CellAddress]struct{}
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:    make(map[CellAddress]*DependencyNode),
		dirtySet: make(map[CellAddress]struct{}),
	}
}

// GetOrCreateNode gets an existing node or creates a new one
func (dg *DependencyGraph) GetOrCreateNode(addr CellAddress) *DependencyNode {
	if node, exists := dg.nodes[addr]; exists {
		return node
	}

	node := &DependencyNode{
		Address:        addr,
		CellPrecedents: make(map[CellAddress]*DependencyNode),
		CellDependents: make(map[CellAddress]*DependencyNode),
	}
	dg.nodes[addr] = node
	return node
}

// GetNode retrieves a node if it exists
func (dg *DependencyGraph) GetNode(addr CellAddress) (*DependencyNode, bool) {
	node, exists := dg.nodes[addr]
	return node, exists
}

// cleanupNodeIfEmpty removes a node once it has no edges left
func (dg *DependencyGraph) cleanupNodeIfEmpty(addr CellAddress) {
	node, exists := dg.nodes[addr]
	if !exists {
		return
	}
	if len(node.CellPrecedents) > 0 || len(node.CellDependents) > 0 {
		return
	}
	delete(dg.nodes, addr)
	delete(dg.dirtySet, addr)
}

// AddCellDependency records that from reads to
func (dg *DependencyGraph) AddCellDependency(from, to CellAddress) {
	fromNode := dg.GetOrCreateNode(from)
	toNode := dg.GetOrCreateNode(to)

	fromNode.CellPrecedents[to] = toNode
	toNode.CellDependents[from] = fromNode
}

// RemoveCellDependency removes a cell-to-cell dependency
func (dg *DependencyGraph) RemoveCellDependency(from, to CellAddress) bool {
	fromNode, fromExists := dg.nodes[from]
	toNode, toExists := dg.nodes[to]
	if !fromExists || !toExists {
		return false
	}

	delete(fromNode.CellPrecedents, to)
	delete(toNode.CellDependents, from)

	dg.cleanupNodeIfEmpty(from)
	dg.cleanupNodeIfEmpty(to)
	return true
}

// ClearDependencies drops every precedent edge of addr. Edges from other
// formulas into addr are kept.
func (dg *DependencyGraph) ClearDependencies(addr CellAddress) {
	node, exists := dg.nodes[addr]
	if !exists {
		return
	}
	for precedentAddr := range node.CellPrecedents {
		dg.RemoveCellDependency(addr, precedentAddr)
	}
}

// SetPrecedents replaces the precedents of addr with refs. Self references
// are ignored.
func (dg *DependencyGraph) SetPrecedents(addr CellAddress, refs []CellAddress) {
	dg.ClearDependencies(addr)
	for _, ref := range refs {
		if ref == addr {
			continue
		}
		dg.AddCellDependency(addr, ref)
	}
}

// MarkDirty marks a cell as needing recalculation
func (dg *DependencyGraph) MarkDirty(addr CellAddress) {
	dg.dirtySet[addr] = struct{}{}
}

// MarkDependentsDirty marks every direct reader of addr. Call it when the
// value at addr changes.
func (dg *DependencyGraph) MarkDependentsDirty(addr CellAddress) {
	node, exists := dg.nodes[addr]
	if !exists {
		return
	}
	for dependent := range node.CellDependents {
		dg.dirtySet[dependent] = struct{}{}
	}
}

// IsDirty reports whether addr is waiting for recalculation
func (dg *DependencyGraph) IsDirty(addr CellAddress) bool {
	_, dirty := dg.dirtySet[addr]
	return dirty
}

// ClearDirty clears the dirty flag for a cell
func (dg *DependencyGraph) ClearDirty(addr CellAddress) {
	delete(dg.dirtySet, addr)
}

// ClearAllDirty clears all dirty flags
func (dg *DependencyGraph) ClearAllDirty() {
	clear(dg.dirtySet)
}

// DirtyCells returns the dirty set in row-major order
func (dg *DependencyGraph) DirtyCells() []CellAddress {
	return sortedAddresses(maps.Keys(dg.dirtySet))
}

// GetDirectDependents returns cells directly reading this cell, row-major
func (dg *DependencyGraph) GetDirectDependents(addr CellAddress) []CellAddress {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}
	return sortedAddresses(maps.Keys(node.CellDependents))
}

// GetAllDependents returns all cells affected by this cell (transitive
// closure), excluding the cell itself
func (dg *DependencyGraph) GetAllDependents(addr CellAddress) []CellAddress {
	visited := map[CellAddress]struct{}{addr: {}}
	var result []CellAddress

	stack := []CellAddress{addr}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node, exists := dg.nodes[current]
		if !exists {
			continue
		}
		for dependentAddr := range node.CellDependents {
			if _, seen := visited[dependentAddr]; seen {
				continue
			}
			visited[dependentAddr] = struct{}{}
			result = append(result, dependentAddr)
			stack = append(stack, dependentAddr)
		}
	}

	slices.SortFunc(result, compareAddresses)
	return result
}

// GetDirectPrecedents returns cells this cell directly reads, row-major
func (dg *DependencyGraph) GetDirectPrecedents(addr CellAddress) []CellAddress {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}
	return sortedAddresses(maps.Keys(node.CellPrecedents))
}

// CalculationOrder orders cells so that every cell comes after the cells
// it reads, considering only edges between members of cells (Kahn's
// algorithm). Ties break row-major so the order is deterministic. A cycle
// among cells returns ErrInconsistentGraph.
func (dg *DependencyGraph) CalculationOrder(cells []CellAddress) ([]CellAddress, error) {
	members := make(map[CellAddress]struct{}, len(cells))
	for _, addr := range cells {
		members[addr] = struct{}{}
	}

	inDegree := make(map[CellAddress]int, len(members))
	for addr := range members {
		inDegree[addr] = 0
		if node, exists := dg.nodes[addr]; exists {
			for precedent := range node.CellPrecedents {
				if _, in := members[precedent]; in {
					inDegree[addr]++
				}
			}
		}
	}

	var ready []CellAddress
	for addr, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, addr)
		}
	}

	order := make([]CellAddress, 0, len(members))
	for len(ready) > 0 {
		slices.SortFunc(ready, compareAddresses)
		var next []CellAddress
		for _, addr := range ready {
			order = append(order, addr)
			node, exists := dg.nodes[addr]
			if !exists {
				continue
			}
			for dependent := range node.CellDependents {
				if _, in := members[dependent]; !in {
					continue
				}
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		ready = next
	}

	if len(order) != len(members) {
		return nil, ErrInconsistentGraph
	}
	return order, nil
}

// HasCycle checks whether any cycle exists in the whole graph
func (dg *DependencyGraph) HasCycle() bool {
	_, err := dg.CalculationOrder(slices.Collect(maps.Keys(dg.nodes)))
	return err != nil
}

// NodeCount returns the number of nodes in the graph
func (dg *DependencyGraph) NodeCount() int {
	return len(dg.nodes)
}

// Clone returns a deep copy of the graph
func (dg *DependencyGraph) Clone() *DependencyGraph {
	clone := NewDependencyGraph()
	for addr, node := range dg.nodes {
		for precedent := range node.CellPrecedents {
			clone.AddCellDependency(addr, precedent)
		}
	}
	for addr := range dg.dirtySet {
		clone.MarkDirty(addr)
	}
	return clone
}

// Clear removes all nodes from the graph
func (dg *DependencyGraph) Clear() {
	clear(dg.nodes)
	clear(dg.dirtySet)
}

func sortedAddresses(seq iter.Seq[CellAddress]) []CellAddress {
	result := slices.Collect(seq)
	slices.SortFunc(result, compareAddresses)
	return result
}
