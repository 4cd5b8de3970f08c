package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/jasoncui/project-spreadsheet/internal/adapters/storage/sqlite"
	"github.com/jasoncui/project-spreadsheet/internal/config"
	"github.com/jasoncui/project-spreadsheet/internal/platform"
	"github.com/jasoncui/project-spreadsheet/internal/tui"
	"github.com/jasoncui/project-spreadsheet/packages/spreadsheet"
)

// version is set at build time.
var version = "dev"

// demoName is the workbook name used when the editor opens the sample.
const demoName = "demo"

// program is the part of tea.Program the editor needs.
type program interface {
	Run() (tea.Model, error)
}

// programFactory builds the TUI program; tests replace it.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// cli carries the state shared by every command: resolved config, the
// runtime logger and the standard streams.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	dbPath     string

	cfg    config.Config
	logger *runtimeLogger
}

// run builds the command tree and executes it with args.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	if stdin == nil {
		stdin = strings.NewReader("")
	}

	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	defer func() {
		if err := c.logger.Close(); err != nil {
			_, _ = fmt.Fprintf(stderr, "warning: close log file: %v\n", err)
		}
	}()

	root := c.newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

func (c *cli) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gridcalc [name]",
		Short: "A terminal spreadsheet with live formula recalculation",
		Long: `gridcalc edits grids of cells holding literals or formulas such as =B2*C2.
Changing a cell recalculates every cell that depends on it. Circular
references are rejected when they are entered.

Workbooks are stored in a local sqlite database. Without a name the editor
opens the sample price list.`,
		Args:              cobra.MaximumNArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		RunE:              c.runEdit,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to config TOML")
	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "path to sqlite database")

	root.AddCommand(
		c.newEditCmd(),
		c.newDemoCmd(),
		c.newShowCmd(),
		c.newEvalCmd(),
		c.newImportCmd(),
		c.newExportCmd(),
		c.newListCmd(),
		c.newDeleteCmd(),
	)
	return root
}

// setup resolves paths, loads config and builds the runtime logger.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	paths, err := platform.DefaultPaths()
	if err != nil {
		return err
	}

	configPath := strings.TrimSpace(c.configPath)
	if configPath == "" {
		if env := strings.TrimSpace(os.Getenv("GRIDCALC_CONFIG")); env != "" {
			configPath = env
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(c.dbPath)
	if dbPath == "" {
		dbPath = strings.TrimSpace(os.Getenv("GRIDCALC_DB_PATH"))
	}

	cfg, err := config.Load(configPath, config.Default(paths.DBPath))
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	c.cfg = cfg

	logger, err := newRuntimeLogger(c.stderr, platform.AppName, cfg.Logging)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	c.logger = logger

	logger.Debug("configuration loaded",
		"command", cmd.Name(),
		"config_path", configPath,
		"db_path", cfg.Storage.Path,
		"log_level", cfg.Logging.Level,
		"log_file", logger.FilePath(),
	)
	return nil
}

// openStore opens the configured workbook database.
func (c *cli) openStore() (*sqlite.Store, error) {
	c.logger.Debug("opening sqlite store", "db_path", c.cfg.Storage.Path)
	store, err := sqlite.Open(c.cfg.Storage.Path)
	if err != nil {
		c.logger.Error("sqlite open failed", "db_path", c.cfg.Storage.Path, "err", err)
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return store, nil
}

func (c *cli) closeStore(store *sqlite.Store) {
	if err := store.Close(); err != nil {
		c.logger.Warn("sqlite close failed", "db_path", c.cfg.Storage.Path, "err", err)
	}
}

// newEngine builds an engine loaded with snap.
func (c *cli) newEngine(snap spreadsheet.Snapshot) (*spreadsheet.Engine, error) {
	engine := spreadsheet.NewEngine(spreadsheet.WithLogger(c.logger.Core()))
	if err := engine.LoadSnapshot(snap); err != nil {
		return nil, err
	}
	return engine, nil
}

func (c *cli) newEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit [name]",
		Short: "Open a workbook in the terminal editor",
		Long: `Open a stored workbook in the terminal editor. A name that is not stored yet
starts an empty workbook; ctrl+s saves it under that name. Without a name the
sample price list opens and saves as "demo".`,
		Args: cobra.MaximumNArgs(1),
		RunE: c.runEdit,
	}
}

func (c *cli) runEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := demoName
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}
	if name == "" {
		return sqlite.ErrInvalidName
	}

	store, err := c.openStore()
	if err != nil {
		return err
	}
	defer c.closeStore(store)

	snap, err := store.Load(ctx, name)
	switch {
	case errors.Is(err, sqlite.ErrNotFound) && len(args) == 0:
		snap = spreadsheet.DemoSnapshot()
	case errors.Is(err, sqlite.ErrNotFound):
		snap = spreadsheet.Snapshot{}
		c.logger.Info("starting new workbook", "name", name)
	case err != nil:
		return fmt.Errorf("load workbook %q: %w", name, err)
	}

	// the console would draw over the editor
	c.logger.SetConsoleEnabled(false)
	defer c.logger.SetConsoleEnabled(true)

	engine, err := c.newEngine(snap)
	if err != nil {
		return fmt.Errorf("load workbook %q: %w", name, err)
	}
	ctrl := spreadsheet.NewController(engine, spreadsheet.Bounds{Rows: c.cfg.Grid.Rows, Cols: c.cfg.Grid.Cols})
	m := tui.NewModel(ctrl,
		tui.WithSaver(store, name),
		tui.WithShowFormulas(c.cfg.Display.ShowFormulas),
		tui.WithColumnWidth(c.cfg.Display.ColumnWidth),
		tui.WithLogger(c.logger.Core()),
	)

	c.logger.Info("starting tui program loop", "name", name, "cells", len(snap))
	if _, err := programFactory(m).Run(); err != nil {
		c.logger.Error("tui program terminated with error", "err", err)
		return fmt.Errorf("run tui program: %w", err)
	}
	return nil
}

func (c *cli) newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Print the sample workbook as snapshot JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, _ := cmd.Flags().GetString("out")
			engine, err := c.newEngine(spreadsheet.DemoSnapshot())
			if err != nil {
				return err
			}
			return c.writeSnapshot(out, engine.Snapshot())
		},
	}
	cmd.Flags().String("out", "-", "output file path ('-' for stdout)")
	return cmd
}

func (c *cli) newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Recalculate a snapshot file and print it as a table",
		Long: `Load a snapshot JSON file, recalculate every formula and print the grid as a
markdown table. On a terminal the table is rendered; use --plain for raw
markdown.`,
		Args: cobra.NoArgs,
		RunE: c.runShow,
	}
	cmd.Flags().String("in", "", "input snapshot JSON file ('-' for stdin)")
	cmd.Flags().Bool("formulas", false, "show formula text instead of values")
	cmd.Flags().Bool("plain", false, "print markdown without terminal rendering")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func (c *cli) runShow(cmd *cobra.Command, _ []string) error {
	in, _ := cmd.Flags().GetString("in")
	formulas, _ := cmd.Flags().GetBool("formulas")
	plain, _ := cmd.Flags().GetBool("plain")
	if !cmd.Flags().Changed("formulas") {
		formulas = c.cfg.Display.ShowFormulas
	}

	snap, err := c.readSnapshot(in)
	if err != nil {
		return err
	}
	engine, err := c.newEngine(snap)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	md := markdownTable(engine.Workbook(), formulas)
	if !plain {
		if width, ok := terminalWidth(c.stdout); ok {
			md = renderMarkdown(md, width)
		}
	}
	_, err = fmt.Fprintln(c.stdout, md)
	return err
}

func (c *cli) newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Print the computed value of one cell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, _ := cmd.Flags().GetString("in")
			cell, _ := cmd.Flags().GetString("cell")

			addr, err := spreadsheet.ParseAddress(strings.TrimSpace(cell))
			if err != nil {
				return fmt.Errorf("--cell %q: %w", cell, err)
			}
			snap, err := c.readSnapshot(in)
			if err != nil {
				return err
			}
			engine, err := c.newEngine(snap)
			if err != nil {
				return fmt.Errorf("load snapshot: %w", err)
			}
			_, err = fmt.Fprintln(c.stdout, engine.Value(addr))
			return err
		},
	}
	cmd.Flags().String("in", "", "input snapshot JSON file ('-' for stdin)")
	cmd.Flags().String("cell", "", "cell address, e.g. D5")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("cell")
	return cmd
}

func (c *cli) newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store a snapshot file as a named workbook",
		Long: `Validate a snapshot JSON file, recalculate it and store it under --name,
replacing any workbook with that name. Snapshots with malformed addresses or
circular references are rejected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, _ := cmd.Flags().GetString("in")
			name, _ := cmd.Flags().GetString("name")

			snap, err := c.readSnapshot(in)
			if err != nil {
				return err
			}
			engine, err := c.newEngine(snap)
			if err != nil {
				return fmt.Errorf("load snapshot: %w", err)
			}

			store, err := c.openStore()
			if err != nil {
				return err
			}
			defer c.closeStore(store)

			id, err := store.Save(cmd.Context(), name, engine.Snapshot())
			if err != nil {
				return fmt.Errorf("import %q: %w", name, err)
			}
			c.logger.Info("workbook imported", "name", name, "id", id, "cells", len(snap))
			_, err = fmt.Fprintln(c.stdout, id)
			return err
		},
	}
	cmd.Flags().String("in", "", "input snapshot JSON file ('-' for stdin)")
	cmd.Flags().String("name", "", "workbook name")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (c *cli) newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a stored workbook as snapshot JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			out, _ := cmd.Flags().GetString("out")

			store, err := c.openStore()
			if err != nil {
				return err
			}
			defer c.closeStore(store)

			snap, err := store.Load(cmd.Context(), name)
			if err != nil {
				return fmt.Errorf("export %q: %w", name, err)
			}
			return c.writeSnapshot(out, snap)
		},
	}
	cmd.Flags().String("name", "", "workbook name")
	cmd.Flags().String("out", "-", "output file path ('-' for stdout)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (c *cli) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored workbooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			defer c.closeStore(store)

			infos, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list workbooks: %w", err)
			}
			if len(infos) == 0 {
				_, err = fmt.Fprintln(c.stdout, "no workbooks")
				return err
			}
			for _, info := range infos {
				_, err = fmt.Fprintf(c.stdout, "%-24s %6d cells  updated %s\n",
					info.Name, info.Cells, info.UpdatedAt.Format("2006-01-02 15:04"))
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (c *cli) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			defer c.closeStore(store)

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete %q: %w", args[0], err)
			}
			c.logger.Info("workbook deleted", "name", args[0])
			return nil
		},
	}
}
