package spreadsheet

import (
	"errors"
	"io"
	"math"
	"strconv"
	"testing"

	"github.com/charmbracelet/log"
)

type SheetTestCase struct {
	t      *testing.T
	name   string
	engine *Engine
	err    error
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.DebugLevel})
}

func NewSheetTestCase(t *testing.T, name string) *SheetTestCase {
	return &SheetTestCase{
		t:      t,
		name:   name,
		engine: NewEngine(WithLogger(quietLogger())),
	}
}

func (tc *SheetTestCase) Set(address string, content string) *SheetTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.engine.Commit(MustParseAddress(address), content)
	if tc.err != nil {
		tc.t.Errorf("%s: Commit(%s, %q) failed: %v", tc.name, address, content, tc.err)
	}
	return tc
}

// Try commits without failing the test; pair it with ExpectError.
func (tc *SheetTestCase) Try(address string, content string) *SheetTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.engine.Commit(MustParseAddress(address), content)
	return tc
}

func (tc *SheetTestCase) Clear(addresses ...string) *SheetTestCase {
	if tc.err != nil {
		return tc
	}
	addrs := make([]CellAddress, len(addresses))
	for i, a := range addresses {
		addrs[i] = MustParseAddress(a)
	}
	tc.err = tc.engine.Clear(addrs...)
	if tc.err != nil {
		tc.t.Errorf("%s: Clear(%v) failed: %v", tc.name, addresses, tc.err)
	}
	return tc
}

func (tc *SheetTestCase) RecalculateAll() *SheetTestCase {
	if tc.err != nil {
		return tc
	}
	tc.err = tc.engine.RecalculateAll()
	if tc.err != nil {
		tc.t.Errorf("%s: RecalculateAll() failed: %v", tc.name, tc.err)
	}
	return tc
}

func (tc *SheetTestCase) AssertValue(address string, expected string) *SheetTestCase {
	if tc.err != nil {
		return tc
	}
	actual := tc.engine.Value(MustParseAddress(address))
	if actual != expected {
		tc.t.Errorf("%s: Cell %s = %q, want %q", tc.name, address, actual, expected)
	}
	return tc
}

func (tc *SheetTestCase) AssertNumber(address string, expected float64) *SheetTestCase {
	if tc.err != nil {
		return tc
	}
	actual := tc.engine.Value(MustParseAddress(address))
	num, err := strconv.ParseFloat(actual, 64)
	if err != nil {
		tc.t.Errorf("%s: Cell %s = %q, want number %v", tc.name, address, actual, expected)
		return tc
	}
	if math.Abs(num-expected) > 1e-10 {
		tc.t.Errorf("%s: Cell %s = %v, want %v", tc.name, address, num, expected)
	}
	return tc
}

func (tc *SheetTestCase) AssertErr(address string) *SheetTestCase {
	return tc.AssertValue(address, ErrorValue)
}

func (tc *SheetTestCase) AssertEmpty(address string) *SheetTestCase {
	if tc.err != nil {
		return tc
	}
	if rec, exists := tc.engine.Cell(MustParseAddress(address)); exists {
		tc.t.Errorf("%s: Cell %s = %+v, want empty", tc.name, address, rec)
	}
	return tc
}

func (tc *SheetTestCase) AssertKind(address string, expected Kind) *SheetTestCase {
	if tc.err != nil {
		return tc
	}
	rec, _ := tc.engine.Cell(MustParseAddress(address))
	if rec.Kind != expected {
		tc.t.Errorf("%s: Cell %s kind = %q, want %q", tc.name, address, rec.Kind, expected)
	}
	return tc
}

func (tc *SheetTestCase) AssertFormula(address string, expected string) *SheetTestCase {
	if tc.err != nil {
		return tc
	}
	rec, _ := tc.engine.Cell(MustParseAddress(address))
	if rec.Formula != expected {
		tc.t.Errorf("%s: Cell %s formula = %q, want %q", tc.name, address, rec.Formula, expected)
	}
	return tc
}

func (tc *SheetTestCase) ExpectError(target error, expectedCode AppErrorCode) *SheetTestCase {
	if tc.err == nil {
		tc.t.Errorf("%s: Expected error %v, but got no error", tc.name, target)
		return tc
	}
	if !errors.Is(tc.err, target) {
		tc.t.Errorf("%s: Got error %v, want %v", tc.name, tc.err, target)
	}
	if code := ErrorCodeOf(tc.err); code != expectedCode {
		tc.t.Errorf("%s: Got error code %v, want %v", tc.name, code, expectedCode)
	}
	tc.err = nil
	return tc
}

func (tc *SheetTestCase) End() {
}

func TestLiteralKinds(t *testing.T) {
	t.Run("Numbers", func(t *testing.T) {
		NewSheetTestCase(t, "Integer literal").
			Set("A1", "5").
			AssertValue("A1", "5").
			AssertKind("A1", KindNumber).
			AssertFormula("A1", "").
			End()

		NewSheetTestCase(t, "Decimal literal keeps its text").
			Set("A1", "1.20").
			AssertValue("A1", "1.20").
			AssertKind("A1", KindNumber).
			End()

		NewSheetTestCase(t, "Negative and exponent").
			Set("A1", "-3").
			Set("A2", "1e3").
			AssertKind("A1", KindNumber).
			AssertKind("A2", KindNumber).
			End()
	})

	t.Run("Text", func(t *testing.T) {
		NewSheetTestCase(t, "Word").
			Set("A1", "Apple").
			AssertValue("A1", "Apple").
			AssertKind("A1", KindText).
			End()

		NewSheetTestCase(t, "NaN is text").
			Set("A1", "NaN").
			Set("A2", "Inf").
			AssertKind("A1", KindText).
			AssertKind("A2", KindText).
			End()
	})
}

func TestArithmetic(t *testing.T) {
	cases := []struct {
		formula string
		want    string
	}{
		{"=1+2", "3"},
		{"=10-4", "6"},
		{"=6*7", "42"},
		{"=10/4", "2.5"},
		{"=2+3*4", "14"},
		{"=(2+3)*4", "20"},
		{"=2^10", "1024"},
		{"=2^3^2", "512"},
		{"=-5+2", "-3"},
		{"=--5", "5"},
		{"=50%", "0.5"},
		{"=.5*4", "2"},
		{"=1e3/10", "100"},
		{"= 1 + 2 ", "3"},
		{"=0-0", "0"},
	}

	for _, c := range cases {
		t.Run(c.formula, func(t *testing.T) {
			NewSheetTestCase(t, c.formula).
				Set("A1", c.formula).
				AssertValue("A1", c.want).
				AssertKind("A1", KindFormula).
				AssertFormula("A1", c.formula).
				End()
		})
	}
}

func TestTextAndComparison(t *testing.T) {
	cases := []struct {
		formula string
		want    string
	}{
		{`="Hello"`, "Hello"},
		{`="a"&"b"`, "ab"},
		{`="say ""hi"""`, `say "hi"`},
		{`="n="&1+1`, "n=2"},
		{`=1<2`, "TRUE"},
		{`=2<=1`, "FALSE"},
		{`=3>2`, "TRUE"},
		{`=3>=3`, "TRUE"},
		{`=1=1`, "TRUE"},
		{`=1<>1`, "FALSE"},
		{`=1!=2`, "TRUE"},
		{`="abc"="ABC"`, "TRUE"},
		{`="a"<"b"`, "TRUE"},
		{`=TRUE`, "TRUE"},
		{`=TRUE+1`, "2"},
		{`="Hello 世界"`, "Hello 世界"},
	}

	for _, c := range cases {
		t.Run(c.formula, func(t *testing.T) {
			NewSheetTestCase(t, c.formula).
				Set("A1", c.formula).
				AssertValue("A1", c.want).
				End()
		})
	}
}

func TestEvaluationFailures(t *testing.T) {
	cases := []string{
		"=",
		"=1+",
		"=(1+2",
		"=1+2)",
		"=1/0",
		"=A1B",
		"=a1+1",
		"=SUM(B1)",
		"=foo",
		`="unclosed`,
		"=1 2",
		"=1$",
		`="a"+1`,
		`=-"a"`,
		"=10^400",
		"=(-8)^0.5",
	}

	for _, formula := range cases {
		t.Run(formula, func(t *testing.T) {
			NewSheetTestCase(t, formula).
				Set("A1", formula).
				AssertErr("A1").
				AssertFormula("A1", formula).
				AssertKind("A1", KindFormula).
				End()
		})
	}
}

func TestCellReferences(t *testing.T) {
	t.Run("SampleRow", func(t *testing.T) {
		NewSheetTestCase(t, "Quantity times price").
			Set("B2", "5").
			Set("C2", "1.20").
			Set("D2", "=B2*C2").
			AssertValue("D2", "6").
			End()
	})

	t.Run("EmptyReadsZero", func(t *testing.T) {
		NewSheetTestCase(t, "Absent cell").
			Set("A1", "=B1*2+1").
			AssertValue("A1", "1").
			End()
	})

	t.Run("InvalidAddressReadsZero", func(t *testing.T) {
		NewSheetTestCase(t, "Row zero").
			Set("A1", "=A0+1").
			AssertValue("A1", "1").
			End()
	})

	t.Run("TextReference", func(t *testing.T) {
		NewSheetTestCase(t, "Concatenate text cells").
			Set("A1", "Hello").
			Set("A2", "World").
			Set("A3", `=A1&" "&A2`).
			AssertValue("A3", "Hello World").
			End()

		NewSheetTestCase(t, "Compare text cells").
			Set("A1", "apple").
			Set("A2", `=A1="apple"`).
			AssertValue("A2", "TRUE").
			End()
	})

	t.Run("TextInArithmetic", func(t *testing.T) {
		NewSheetTestCase(t, "Error stays local").
			Set("A1", "hello").
			Set("B1", "4").
			Set("C1", "=A1+1").
			Set("D1", "=B1*2").
			AssertErr("C1").
			AssertValue("D1", "8").
			End()
	})

	t.Run("ErrorPropagates", func(t *testing.T) {
		NewSheetTestCase(t, "Reading a failed formula fails").
			Set("A1", "=1/0").
			Set("B1", "=A1+1").
			AssertErr("A1").
			AssertErr("B1").
			End()

		NewSheetTestCase(t, "Literal error text is just text").
			Set("A1", ErrorValue).
			Set("B1", `=A1&"!"`).
			AssertKind("A1", KindText).
			AssertValue("B1", ErrorValue+"!").
			End()
	})
}

func TestUpdateAndRecalculation(t *testing.T) {
	t.Run("CellUpdates", func(t *testing.T) {
		NewSheetTestCase(t, "Update dependent cells").
			Set("A1", "10").
			Set("B1", "=A1*2").
			AssertValue("B1", "20").
			Set("A1", "15").
			AssertValue("B1", "30").
			End()
	})

	t.Run("FormulaChanges", func(t *testing.T) {
		NewSheetTestCase(t, "Change formula").
			Set("A1", "10").
			Set("B1", "=A1*2").
			AssertValue("B1", "20").
			Set("B1", "=A1+5").
			AssertValue("B1", "15").
			Set("A1", "1").
			AssertValue("B1", "6").
			End()
	})

	t.Run("FormulaToLiteral", func(t *testing.T) {
		NewSheetTestCase(t, "Replace formula with a value").
			Set("A1", "=2*3").
			Set("B1", "=A1+1").
			AssertValue("B1", "7").
			Set("A1", "10").
			AssertKind("A1", KindNumber).
			AssertFormula("A1", "").
			AssertValue("B1", "11").
			End()
	})

	t.Run("Chain", func(t *testing.T) {
		NewSheetTestCase(t, "Chained totals").
			Set("B2", "5").
			Set("C2", "2").
			Set("D2", "=B2*C2").
			Set("B3", "3").
			Set("C3", "4").
			Set("D3", "=B3*C3").
			Set("D5", "=D2+D3").
			AssertValue("D5", "22").
			Set("B2", "6").
			AssertValue("D2", "12").
			AssertValue("D5", "24").
			End()
	})

	t.Run("Diamond", func(t *testing.T) {
		NewSheetTestCase(t, "Shared precedent").
			Set("A1", "1").
			Set("B1", "=A1+1").
			Set("C1", "=A1*10").
			Set("D1", "=B1+C1").
			AssertValue("D1", "12").
			Set("A1", "2").
			AssertValue("D1", "23").
			End()
	})

	t.Run("FormulaBeforePrecedent", func(t *testing.T) {
		NewSheetTestCase(t, "Dependent entered first").
			Set("A1", "=B1+C1").
			AssertValue("A1", "0").
			Set("B1", "2").
			AssertValue("A1", "2").
			Set("C1", "3").
			AssertValue("A1", "5").
			End()
	})

	t.Run("RecoverFromError", func(t *testing.T) {
		NewSheetTestCase(t, "Fix divisor").
			Set("A1", "0").
			Set("B1", "=10/A1").
			Set("C1", "=B1+1").
			AssertErr("B1").
			AssertErr("C1").
			Set("A1", "5").
			AssertValue("B1", "2").
			AssertValue("C1", "3").
			End()
	})

	t.Run("ClearAndRecalculate", func(t *testing.T) {
		NewSheetTestCase(t, "Remove referenced cell").
			Set("A1", "10").
			Set("B1", "=A1*2").
			AssertValue("B1", "20").
			Clear("A1").
			AssertEmpty("A1").
			AssertValue("B1", "0").
			End()
	})

	t.Run("EmptyContentClears", func(t *testing.T) {
		NewSheetTestCase(t, "Commit empty").
			Set("A1", "10").
			Set("B1", "=A1+1").
			Set("A1", "").
			AssertEmpty("A1").
			AssertValue("B1", "1").
			End()
	})

	t.Run("ClearFormulaDropsEdges", func(t *testing.T) {
		tc := NewSheetTestCase(t, "Cleared formula no longer depends").
			Set("A1", "1").
			Set("B1", "=A1").
			Clear("B1").
			Set("A1", "2").
			AssertEmpty("B1")
		if deps := tc.engine.Dependents(MustParseAddress("A1")); len(deps) != 0 {
			t.Errorf("Dependents(A1) = %v, want none", deps)
		}
		tc.End()
	})

	t.Run("RecalculateAllIsIdempotent", func(t *testing.T) {
		tc := NewSheetTestCase(t, "Full pass changes nothing").
			Set("A1", "3").
			Set("A2", "=A1*A1").
			Set("A3", "=A2-A1").
			Set("A4", "=1/0")
		before := tc.engine.Snapshot()
		tc.RecalculateAll().
			AssertValue("A2", "9").
			AssertValue("A3", "6").
			AssertErr("A4")
		after := tc.engine.Snapshot()
		for key, cell := range before {
			if after[key].Value != cell.Value || after[key].Kind != cell.Kind || after[key].Formula != cell.Formula {
				t.Errorf("%s changed: %+v -> %+v", key, cell, after[key])
			}
		}
		tc.End()
	})
}

func TestCircularReferences(t *testing.T) {
	t.Run("SelfReference", func(t *testing.T) {
		NewSheetTestCase(t, "Self").
			Try("A1", "=A1+1").
			ExpectError(ErrCircularReference, FailedPrecondition).
			AssertEmpty("A1").
			End()
	})

	t.Run("TwoCell", func(t *testing.T) {
		NewSheetTestCase(t, "A1 -> B1 -> A1").
			Set("A1", "=B1").
			Try("B1", "=A1").
			ExpectError(ErrCircularReference, FailedPrecondition).
			AssertEmpty("B1").
			AssertValue("A1", "0").
			End()
	})

	t.Run("DeepChain", func(t *testing.T) {
		NewSheetTestCase(t, "Deep circular chain").
			Set("A1", "=A2").
			Set("A2", "=A3").
			Set("A3", "=A4").
			Set("A4", "=A5").
			Try("A5", "=A1").
			ExpectError(ErrCircularReference, FailedPrecondition).
			AssertEmpty("A5").
			End()
	})

	t.Run("RejectedEditKeepsPreviousContent", func(t *testing.T) {
		NewSheetTestCase(t, "Existing value survives").
			Set("A1", "=B1+1").
			Set("B1", "7").
			Try("B1", "=A1").
			ExpectError(ErrCircularReference, FailedPrecondition).
			AssertValue("B1", "7").
			AssertKind("B1", KindNumber).
			AssertValue("A1", "8").
			End()
	})

	t.Run("MalformedFormulaHasNoReferences", func(t *testing.T) {
		NewSheetTestCase(t, "Unparsable self reference").
			Set("A1", "=A1+)").
			AssertErr("A1").
			AssertFormula("A1", "=A1+)").
			Set("B1", "=A1").
			AssertErr("B1").
			Try("A1", "=A1+1").
			ExpectError(ErrCircularReference, FailedPrecondition).
			AssertFormula("A1", "=A1+)").
			End()
	})

	t.Run("DiamondIsNotACycle", func(t *testing.T) {
		NewSheetTestCase(t, "Shared precedent").
			Set("A1", "1").
			Set("B1", "=A1").
			Set("C1", "=A1").
			Set("D1", "=B1+C1").
			AssertValue("D1", "2").
			End()
	})
}

func TestCommitValidation(t *testing.T) {
	engine := NewEngine(WithLogger(quietLogger()))
	err := engine.Commit(CellAddress{Row: -1, Col: 0}, "1")
	if !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("Commit(-1,0) error = %v, want ErrInvalidAddress", err)
	}
	if ErrorCodeOf(err) != InvalidArgument {
		t.Fatalf("ErrorCodeOf = %v, want InvalidArgument", ErrorCodeOf(err))
	}
	if err := engine.Clear(MustParseAddress("Z9")); err != nil {
		t.Fatalf("Clear(empty) error = %v", err)
	}
}

func TestFormatSurvivesEdits(t *testing.T) {
	engine := NewEngine(WithLogger(quietLogger()))
	if err := engine.LoadSnapshot(Snapshot{"A1": {Value: "x", Format: []byte(`{"bold":true}`)}}); err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if err := engine.Commit(MustParseAddress("A1"), "=1+1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	rec, _ := engine.Cell(MustParseAddress("A1"))
	if string(rec.Format) != `{"bold":true}` {
		t.Fatalf("Format = %s, want bold", rec.Format)
	}
}

func TestIndependentEngines(t *testing.T) {
	a := NewEngine(WithLogger(quietLogger()))
	b := NewEngine(WithLogger(quietLogger()))
	if err := a.Commit(MustParseAddress("A1"), "1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if _, exists := b.Cell(MustParseAddress("A1")); exists {
		t.Fatal("engines share state")
	}
}

func TestWorkbookIsReplacedNotMutated(t *testing.T) {
	engine := NewEngine(WithLogger(quietLogger()))
	if err := engine.Commit(MustParseAddress("A1"), "1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	before := engine.Workbook()
	if err := engine.Commit(MustParseAddress("A1"), "2"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if rec, _ := before.Cell(MustParseAddress("A1")); rec.Value != "1" {
		t.Fatalf("old workbook A1 = %q, want 1", rec.Value)
	}
	if engine.Value(MustParseAddress("A1")) != "2" {
		t.Fatalf("A1 = %q, want 2", engine.Value(MustParseAddress("A1")))
	}
}
