package spreadsheet

import "encoding/json"

// DemoSnapshot returns a small price list with per-row totals and a grand
// total, handy for trying the editor.
func DemoSnapshot() Snapshot {
	header := json.RawMessage(`{"bold":true,"align":"center"}`)
	return Snapshot{
		"A1": {Value: "Product", Format: header},
		"B1": {Value: "Quantity", Format: header},
		"C1": {Value: "Price", Format: header},
		"D1": {Value: "Total", Format: header},
		"A2": {Value: "Apple"},
		"B2": {Value: "5", Kind: KindNumber},
		"C2": {Value: "1.20", Kind: KindNumber},
		"D2": {Formula: "=B2*C2", Kind: KindFormula},
		"A3": {Value: "Orange"},
		"B3": {Value: "3", Kind: KindNumber},
		"C3": {Value: "0.80", Kind: KindNumber},
		"D3": {Formula: "=B3*C3", Kind: KindFormula},
		"A4": {Value: "Banana"},
		"B4": {Value: "2", Kind: KindNumber},
		"C4": {Value: "0.60", Kind: KindNumber},
		"D4": {Formula: "=B4*C4", Kind: KindFormula},
		"D5": {Formula: "=D2+D3+D4", Kind: KindFormula, Format: json.RawMessage(`{"bold":true}`)},
	}
}
