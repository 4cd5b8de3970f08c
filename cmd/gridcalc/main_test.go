package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"

	"github.com/jasoncui/project-spreadsheet/internal/config"
	"github.com/jasoncui/project-spreadsheet/packages/spreadsheet"
)

// scriptedProgram drives a model without a terminal.
type scriptedProgram struct {
	model tea.Model
	runFn func(tea.Model) (tea.Model, error)
}

func (p scriptedProgram) Run() (tea.Model, error) {
	if p.runFn == nil {
		return p.model, nil
	}
	return p.runFn(p.model)
}

// applyModelMsg applies one message and any resulting command chain.
func applyModelMsg(t *testing.T, model tea.Model, msg tea.Msg) tea.Model {
	t.Helper()
	updated, cmd := model.Update(msg)
	for i := 0; i < 4 && cmd != nil; i++ {
		updated, cmd = updated.Update(cmd())
	}
	return updated
}

func withProgram(t *testing.T, runFn func(tea.Model) (tea.Model, error)) {
	t.Helper()
	prev := programFactory
	programFactory = func(m tea.Model) program {
		return scriptedProgram{model: m, runFn: runFn}
	}
	t.Cleanup(func() { programFactory = prev })
}

// testEnv isolates user dirs and returns the global flags for a temp
// config and database.
func testEnv(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("GRIDCALC_CONFIG", "")
	t.Setenv("GRIDCALC_DB_PATH", "")
	return []string{
		"--config", filepath.Join(dir, "config.toml"),
		"--db", filepath.Join(dir, "gridcalc.db"),
	}
}

func runCLI(t *testing.T, global []string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append(append([]string{}, global...), args...), nil, &stdout, &stderr)
	return stdout.String(), err
}

func mustRunCLI(t *testing.T, global []string, args ...string) string {
	t.Helper()
	out, err := runCLI(t, global, args...)
	if err != nil {
		t.Fatalf("run %v error = %v", args, err)
	}
	return out
}

func writeDemoFile(t *testing.T, global []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out", "demo.json")
	mustRunCLI(t, global, "demo", "--out", path)
	return path
}

func TestRunDemoPrintsRecalculatedSnapshot(t *testing.T) {
	global := testEnv(t)
	out := mustRunCLI(t, global, "demo")

	snap, err := spreadsheet.DecodeSnapshot(strings.NewReader(out))
	if err != nil {
		t.Fatalf("DecodeSnapshot() error = %v", err)
	}
	if snap["D2"].Value != "6" || snap["D2"].Formula != "=B2*C2" {
		t.Fatalf("D2 = %+v", snap["D2"])
	}
	if snap["A1"].Value != "Product" {
		t.Fatalf("A1 = %+v", snap["A1"])
	}
}

func TestRunEval(t *testing.T) {
	global := testEnv(t)
	path := writeDemoFile(t, global)

	out := mustRunCLI(t, global, "eval", "--in", path, "--cell", "D2")
	if out != "6\n" {
		t.Fatalf("eval D2 = %q, want 6", out)
	}
	out = mustRunCLI(t, global, "eval", "--in", path, "--cell", "Z50")
	if out != "\n" {
		t.Fatalf("eval empty cell = %q", out)
	}

	if _, err := runCLI(t, global, "eval", "--in", path, "--cell", "d2"); !errors.Is(err, spreadsheet.ErrInvalidAddress) {
		t.Fatalf("eval lowercase error = %v, want ErrInvalidAddress", err)
	}
	if _, err := runCLI(t, global, "eval", "--in", filepath.Join(t.TempDir(), "missing.json"), "--cell", "A1"); err == nil {
		t.Fatal("expected error for missing input file")
	}
}

func TestRunShowPlain(t *testing.T) {
	global := testEnv(t)
	path := writeDemoFile(t, global)

	out := mustRunCLI(t, global, "show", "--in", path, "--plain")
	for _, want := range []string{
		"|   | A | B | C | D |",
		"| 1 | Product | Quantity | Price | Total |",
		"| 2 | Apple | 5 | 1.20 | 6 |",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q:\n%s", want, out)
		}
	}

	out = mustRunCLI(t, global, "show", "--in", path, "--plain", "--formulas")
	if !strings.Contains(out, "| 2 | Apple | 5 | 1.20 | =B2*C2 |") {
		t.Fatalf("show --formulas output:\n%s", out)
	}
}

func TestMarkdownTable(t *testing.T) {
	if got := markdownTable(spreadsheet.NewWorkbook(), false); got != "_empty workbook_" {
		t.Fatalf("empty table = %q", got)
	}
	wb, err := spreadsheet.BuildWorkbook(spreadsheet.Snapshot{
		"B2": {Value: "a|b", Kind: spreadsheet.KindText},
	})
	if err != nil {
		t.Fatalf("BuildWorkbook() error = %v", err)
	}
	got := markdownTable(wb, false)
	want := "|   | A | B |\n|---|---|---|\n| 1 |  |  |\n| 2 |  | a\\|b |"
	if got != want {
		t.Fatalf("markdownTable() = %q, want %q", got, want)
	}
}

func TestRunImportExportListDelete(t *testing.T) {
	global := testEnv(t)
	path := writeDemoFile(t, global)

	if out := mustRunCLI(t, global, "list"); out != "no workbooks\n" {
		t.Fatalf("list before import = %q", out)
	}

	id := strings.TrimSpace(mustRunCLI(t, global, "import", "--in", path, "--name", "prices"))
	if id == "" {
		t.Fatal("import printed no id")
	}

	out := mustRunCLI(t, global, "list")
	if !strings.Contains(out, "prices") || !strings.Contains(out, "17 cells") {
		t.Fatalf("list = %q", out)
	}

	exported := filepath.Join(t.TempDir(), "prices.json")
	mustRunCLI(t, global, "export", "--name", "prices", "--out", exported)
	content, err := os.ReadFile(exported)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	snap, err := spreadsheet.DecodeSnapshot(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("DecodeSnapshot() error = %v", err)
	}
	if snap["D5"].Formula != "=D2+D3+D4" {
		t.Fatalf("D5 = %+v", snap["D5"])
	}

	mustRunCLI(t, global, "delete", "prices")
	if _, err := runCLI(t, global, "export", "--name", "prices"); err == nil {
		t.Fatal("expected export of deleted workbook to fail")
	}
}

func TestRunImportRejectsCycles(t *testing.T) {
	global := testEnv(t)
	path := filepath.Join(t.TempDir(), "cycle.json")
	content := `{"A1": {"value": "", "formula": "=B1"}, "B1": {"value": "", "formula": "=A1"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := runCLI(t, global, "import", "--in", path, "--name", "loop")
	if !errors.Is(err, spreadsheet.ErrCircularReference) {
		t.Fatalf("import error = %v, want ErrCircularReference", err)
	}
	if out := mustRunCLI(t, global, "list"); out != "no workbooks\n" {
		t.Fatalf("list after rejected import = %q", out)
	}
}

func TestRunEditSavesThroughStore(t *testing.T) {
	global := testEnv(t)
	withProgram(t, func(m tea.Model) (tea.Model, error) {
		m = applyModelMsg(t, m, tea.KeyPressMsg{Code: '4', Text: "4"})
		m = applyModelMsg(t, m, tea.KeyPressMsg{Code: '2', Text: "2"})
		m = applyModelMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
		m = applyModelMsg(t, m, tea.KeyPressMsg{Code: 's', Mod: tea.ModCtrl})
		return m, nil
	})

	mustRunCLI(t, global)

	out := mustRunCLI(t, global, "export", "--name", "demo")
	snap, err := spreadsheet.DecodeSnapshot(strings.NewReader(out))
	if err != nil {
		t.Fatalf("DecodeSnapshot() error = %v", err)
	}
	if snap["A1"].Value != "42" || snap["D2"].Value != "6" {
		t.Fatalf("saved demo A1=%+v D2=%+v", snap["A1"], snap["D2"])
	}
}

func TestRunEditNewWorkbookIsNotSavedUntilAsked(t *testing.T) {
	global := testEnv(t)
	withProgram(t, nil)

	mustRunCLI(t, global, "edit", "fresh")
	if out := mustRunCLI(t, global, "list"); out != "no workbooks\n" {
		t.Fatalf("list = %q", out)
	}
}

func TestRunEditReportsProgramError(t *testing.T) {
	global := testEnv(t)
	withProgram(t, func(tea.Model) (tea.Model, error) {
		return nil, errors.New("no tty")
	})
	if _, err := runCLI(t, global, "edit"); err == nil || !strings.Contains(err.Error(), "no tty") {
		t.Fatalf("edit error = %v", err)
	}
}

func TestRunUsesConfigFile(t *testing.T) {
	global := testEnv(t)
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "gridcalc.log")
	cfgPath := filepath.Join(dir, "config.toml")
	cfg := config.Default(filepath.Join(dir, "ignored.db"))
	cfg.Logging.Level = "debug"
	cfg.Logging.File = logPath
	if err := config.Save(cfgPath, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// --db still wins over the config file
	args := []string{"--config", cfgPath, global[2], global[3]}
	mustRunCLI(t, args, "list")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile(log) error = %v", err)
	}
	if !strings.Contains(string(content), "opening sqlite store") {
		t.Fatalf("log file missing store event:\n%s", content)
	}
	if _, err := os.Stat(filepath.Join(dir, "ignored.db")); !os.IsNotExist(err) {
		t.Fatalf("config db path was used, stat err = %v", err)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	global := testEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(cfgPath, []byte("[grid]\nrows = -1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err := runCLI(t, []string{"--config", cfgPath, global[2], global[3]}, "list")
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("error = %v, want load config failure", err)
	}
}

func TestRuntimeLoggerSinks(t *testing.T) {
	if _, err := newRuntimeLogger(nil, "gridcalc", config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatal("expected invalid level error")
	}

	var console bytes.Buffer
	logger, err := newRuntimeLogger(&console, "gridcalc", config.LoggingConfig{Level: "info"})
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	logger.Debug("hidden")
	logger.Info("shown", "k", "v")
	if out := console.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("console output = %q", out)
	}

	console.Reset()
	logger.SetConsoleEnabled(false)
	logger.Warn("muted")
	logger.Core().Error("also muted")
	if console.Len() != 0 {
		t.Fatalf("muted console received %q", console.String())
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
