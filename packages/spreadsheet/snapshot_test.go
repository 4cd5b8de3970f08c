package spreadsheet

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	engine := NewEngine(WithLogger(quietLogger()))
	if err := engine.LoadSnapshot(DemoSnapshot()); err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}

	var buf bytes.Buffer
	if err := engine.Snapshot().Encode(&buf); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	decoded, err := DecodeSnapshot(&buf)
	if err != nil {
		t.Fatalf("DecodeSnapshot() error = %v", err)
	}

	reloaded := NewEngine(WithLogger(quietLogger()))
	if err := reloaded.LoadSnapshot(decoded); err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}

	original := engine.Snapshot()
	again := reloaded.Snapshot()
	if len(original) != len(again) {
		t.Fatalf("round trip has %d cells, want %d", len(again), len(original))
	}
	for key, cell := range original {
		got, ok := again[key]
		if !ok {
			t.Errorf("%s missing after round trip", key)
			continue
		}
		if got.Value != cell.Value || got.Formula != cell.Formula || got.Kind != cell.Kind {
			t.Errorf("%s = %+v, want %+v", key, got, cell)
		}
		if compactJSON(t, got.Format) != compactJSON(t, cell.Format) {
			t.Errorf("%s format = %s, want %s", key, got.Format, cell.Format)
		}
	}
}

func TestSnapshotRoundTripKeepsFormatOnlyCells(t *testing.T) {
	input := `{
		"A1": {"value": "", "kind": "text", "format": {"bold": true}},
		"B1": {"value": "x", "kind": "text"},
		"C1": {"value": "", "format": {"italic": true}},
		"D1": {"value": "", "kind": "number"},
		"E1": {"value": ""},
		"F1": {"value": "", "format": null}
	}`
	snap, err := DecodeSnapshot(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeSnapshot() error = %v", err)
	}
	engine := NewEngine(WithLogger(quietLogger()))
	if err := engine.LoadSnapshot(snap); err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}

	out := engine.Snapshot()
	want := map[string]SnapshotCell{
		"A1": {Kind: KindText, Format: json.RawMessage(`{"bold":true}`)},
		"B1": {Value: "x", Kind: KindText},
		"C1": {Format: json.RawMessage(`{"italic":true}`)},
		"D1": {Kind: KindNumber},
	}
	if len(out) != len(want) {
		t.Fatalf("round trip has %d cells, want %d: %+v", len(out), len(want), out)
	}
	for key, cell := range want {
		got, ok := out[key]
		if !ok {
			t.Errorf("%s dropped on round trip", key)
			continue
		}
		if got.Value != cell.Value || got.Formula != cell.Formula || got.Kind != cell.Kind {
			t.Errorf("%s = %+v, want %+v", key, got, cell)
		}
		if compactJSON(t, got.Format) != compactJSON(t, cell.Format) {
			t.Errorf("%s format = %s, want %s", key, got.Format, cell.Format)
		}
	}

	// an empty formatted cell reads as empty from formulas
	if err := engine.Commit(MustParseAddress("G1"), "=A1+C1+1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if rec, _ := engine.Cell(MustParseAddress("G1")); rec.Value != "1" {
		t.Errorf("G1 = %q, want 1", rec.Value)
	}
}

// compactJSON strips the indentation Encode adds around format objects
func compactJSON(t *testing.T, raw []byte) string {
	t.Helper()
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		t.Fatalf("json.Compact(%s) error = %v", raw, err)
	}
	return buf.String()
}

func TestDemoSnapshot(t *testing.T) {
	engine := NewEngine(WithLogger(quietLogger()))
	if err := engine.LoadSnapshot(DemoSnapshot()); err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}

	tc := &SheetTestCase{t: t, name: "demo", engine: engine}
	tc.AssertValue("A1", "Product").
		AssertValue("D2", "6").
		AssertValue("C2", "1.20").
		AssertKind("D2", KindFormula).
		AssertNumber("D3", 2.4).
		AssertNumber("D4", 1.2).
		AssertNumber("D5", 9.6).
		Set("B4", "10").
		AssertNumber("D4", 6).
		AssertNumber("D5", 14.4).
		End()

	rec, _ := engine.Cell(MustParseAddress("D5"))
	if string(rec.Format) != `{"bold":true}` {
		t.Errorf("D5 format = %s", rec.Format)
	}
}

func TestDecodeSnapshot(t *testing.T) {
	input := `{
		"A1": {"value": "5"},
		"A2": {"value": "", "formula": "A1*2"},
		"A3": {"value": "TRUE", "kind": "boolean"},
		"A4": {"value": "2024-01-01", "kind": "date"},
		"A5": {"value": "x", "kind": "bogus"},
		"A6": {"value": ""},
		"A7": {"value": "=A1", "kind": "formula"},
		"A8": {"value": "stale", "formula": "=A1+1", "format": {"color": "red", "size": 12}}
	}`

	snap, err := DecodeSnapshot(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeSnapshot() error = %v", err)
	}
	engine := NewEngine(WithLogger(quietLogger()))
	if err := engine.LoadSnapshot(snap); err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}

	tc := &SheetTestCase{t: t, name: "decode", engine: engine}
	tc.AssertKind("A1", KindNumber).
		AssertFormula("A2", "=A1*2").
		AssertValue("A2", "10").
		AssertKind("A3", KindBoolean).
		AssertKind("A4", KindDate).
		AssertKind("A5", KindText).
		AssertEmpty("A6").
		AssertKind("A7", KindText).
		AssertValue("A8", "6").
		Set("A9", "=A3+1").
		AssertValue("A9", "2").
		End()

	rec, _ := engine.Cell(MustParseAddress("A8"))
	if string(rec.Format) != `{"color": "red", "size": 12}` {
		t.Errorf("A8 format = %s, want it passed through untouched", rec.Format)
	}
}

func TestDecodeSnapshotEmpty(t *testing.T) {
	for _, input := range []string{"{}", "null"} {
		snap, err := DecodeSnapshot(strings.NewReader(input))
		if err != nil {
			t.Fatalf("DecodeSnapshot(%s) error = %v", input, err)
		}
		if snap == nil || len(snap) != 0 {
			t.Errorf("DecodeSnapshot(%s) = %v, want empty", input, snap)
		}
	}

	if _, err := DecodeSnapshot(strings.NewReader("[1,2]")); err == nil {
		t.Error("DecodeSnapshot([1,2]) succeeded")
	}
}

func TestLoadSnapshotRejects(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want error
		code AppErrorCode
	}{
		{
			name: "lowercase key",
			snap: Snapshot{"a1": {Value: "1"}},
			want: ErrInvalidAddress,
			code: InvalidArgument,
		},
		{
			name: "row zero",
			snap: Snapshot{"A0": {Value: "1"}},
			want: ErrInvalidAddress,
			code: InvalidArgument,
		},
		{
			name: "leading zero",
			snap: Snapshot{"A01": {Value: "1"}},
			want: ErrInvalidAddress,
			code: InvalidArgument,
		},
		{
			name: "cycle",
			snap: Snapshot{
				"A1": {Formula: "=B1"},
				"B1": {Formula: "=C1"},
				"C1": {Formula: "=A1"},
			},
			want: ErrCircularReference,
			code: FailedPrecondition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(WithLogger(quietLogger()))
			if err := engine.Commit(MustParseAddress("Z1"), "keep"); err != nil {
				t.Fatalf("Commit() error = %v", err)
			}

			err := engine.LoadSnapshot(tt.snap)
			if !errors.Is(err, tt.want) {
				t.Fatalf("LoadSnapshot() error = %v, want %v", err, tt.want)
			}
			if ErrorCodeOf(err) != tt.code {
				t.Errorf("ErrorCodeOf() = %v, want %v", ErrorCodeOf(err), tt.code)
			}
			if engine.Value(MustParseAddress("Z1")) != "keep" {
				t.Error("failed load replaced the workbook")
			}
		})
	}
}

func TestLoadSnapshotReplacesWorkbook(t *testing.T) {
	engine := NewEngine(WithLogger(quietLogger()))
	if err := engine.Commit(MustParseAddress("Z1"), "old"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := engine.LoadSnapshot(Snapshot{"A1": {Value: "3"}, "B1": {Formula: "=A1*A1"}}); err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}

	tc := &SheetTestCase{t: t, name: "replace", engine: engine}
	tc.AssertEmpty("Z1").
		AssertValue("B1", "9").
		Set("A1", "4").
		AssertValue("B1", "16").
		End()

	if got := addrStrings(engine.Dependents(MustParseAddress("A1"))); len(got) != 1 || got[0] != "B1" {
		t.Errorf("Dependents(A1) = %v, want [B1]", got)
	}
	if got := addrStrings(engine.Precedents(MustParseAddress("B1"))); len(got) != 1 || got[0] != "A1" {
		t.Errorf("Precedents(B1) = %v, want [A1]", got)
	}
}

func TestWorkbookExtent(t *testing.T) {
	wb, err := BuildWorkbook(Snapshot{
		"C2": {Value: "x"},
		"A4": {Value: "", Format: json.RawMessage(`{"bold":true}`)},
	})
	if err != nil {
		t.Fatalf("BuildWorkbook() error = %v", err)
	}
	if rows, cols := wb.Extent(); rows != 4 || cols != 3 {
		t.Errorf("Extent() = %d, %d, want 4, 3", rows, cols)
	}
	if rec, ok := wb.Get("C2"); !ok || rec.Value != "x" {
		t.Errorf("Get(C2) = %+v, %v", rec, ok)
	}
	if _, ok := wb.Get("c2"); ok {
		t.Error("Get(c2) found a cell under non-canonical text")
	}
	if rows, cols := NewWorkbook().Extent(); rows != 0 || cols != 0 {
		t.Errorf("empty Extent() = %d, %d", rows, cols)
	}
}
