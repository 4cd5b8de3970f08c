package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	charmLog "github.com/charmbracelet/log"
	toml "github.com/pelletier/go-toml/v2"
)

// Grid size limits. The editor renders every column label and row number,
// so the bounds stay small enough to page through.
const (
	DefaultRows        = 50
	DefaultCols        = 26
	MaxRows            = 10000
	MaxCols            = 702 // A..ZZ
	DefaultColumnWidth = 12
)

type Config struct {
	Grid    GridConfig    `toml:"grid"`
	Logging LoggingConfig `toml:"logging"`
	Storage StorageConfig `toml:"storage"`
	Display DisplayConfig `toml:"display"`
}

type GridConfig struct {
	Rows int `toml:"rows"`
	Cols int `toml:"cols"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	// File receives logfmt output in addition to the console. Empty disables it.
	File string `toml:"file"`
}

type StorageConfig struct {
	Path string `toml:"path"`
}

type DisplayConfig struct {
	ColumnWidth  int  `toml:"column_width"`
	ShowFormulas bool `toml:"show_formulas"`
}

func Default(dbPath string) Config {
	return Config{
		Grid: GridConfig{
			Rows: DefaultRows,
			Cols: DefaultCols,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Path: dbPath,
		},
		Display: DisplayConfig{
			ColumnWidth:  DefaultColumnWidth,
			ShowFormulas: false,
		},
	}
}

// Load reads a TOML file over defaults. A missing or empty file yields the
// defaults unchanged.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}

	if c.Grid.Rows < 1 || c.Grid.Rows > MaxRows {
		return fmt.Errorf("grid.rows must be between 1 and %d, got %d", MaxRows, c.Grid.Rows)
	}
	if c.Grid.Cols < 1 || c.Grid.Cols > MaxCols {
		return fmt.Errorf("grid.cols must be between 1 and %d, got %d", MaxCols, c.Grid.Cols)
	}

	if _, err := charmLog.ParseLevel(strings.TrimSpace(c.Logging.Level)); err != nil {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	if c.Display.ColumnWidth < 3 || c.Display.ColumnWidth > 80 {
		return fmt.Errorf("display.column_width must be between 3 and 80, got %d", c.Display.ColumnWidth)
	}

	return nil
}

// Save writes cfg as TOML, creating the parent directory if needed.
func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
