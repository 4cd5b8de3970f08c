package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jasoncui/project-spreadsheet/packages/spreadsheet"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

var (
	// ErrNotFound is returned when no workbook has the requested name.
	ErrNotFound = errors.New("workbook not found")
	// ErrInvalidName rejects blank workbook names.
	ErrInvalidName = errors.New("workbook name is required")
)

// WorkbookInfo describes one stored workbook.
type WorkbookInfo struct {
	ID        string
	Name      string
	Cells     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists workbook snapshots, one row per non-empty cell.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database file at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newStore(db)
}

// OpenInMemory opens a private in-memory database. Each call gets its own
// database.
func OpenInMemory() (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// the database lives as long as one connection holds it
	db.SetMaxOpenConns(1)
	return newStore(db)
}

func newStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the schema.
func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workbooks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS cells (
			workbook_id TEXT NOT NULL,
			address TEXT NOT NULL,
			row_idx INTEGER NOT NULL,
			col_idx INTEGER NOT NULL,
			value TEXT NOT NULL DEFAULT '',
			formula TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT '',
			format_json TEXT,
			PRIMARY KEY(workbook_id, address),
			FOREIGN KEY(workbook_id) REFERENCES workbooks(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cells_workbook_position ON cells(workbook_id, row_idx, col_idx);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// Save stores snap under name, replacing any workbook with that name, and
// returns the workbook id. Ids are stable across saves of the same name.
func (s *Store) Save(ctx context.Context, name string, snap spreadsheet.Snapshot) (id string, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := ts(s.now())
	err = tx.QueryRowContext(ctx, `SELECT id FROM workbooks WHERE name = ?`, name).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workbooks(id, name, created_at, updated_at)
			VALUES (?, ?, ?, ?)
		`, id, name, now, now)
	case err == nil:
		_, err = tx.ExecContext(ctx, `UPDATE workbooks SET updated_at = ? WHERE id = ?`, now, id)
	}
	if err != nil {
		return "", fmt.Errorf("upsert workbook %q: %w", name, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM cells WHERE workbook_id = ?`, id); err != nil {
		return "", fmt.Errorf("clear cells: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cells(workbook_id, address, row_idx, col_idx, value, formula, kind, format_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for key, cell := range snap {
		var addr spreadsheet.CellAddress
		addr, err = spreadsheet.ParseAddress(key)
		if err != nil {
			return "", fmt.Errorf("save cell %q: %w", key, err)
		}
		if _, err = stmt.ExecContext(ctx, id, key, addr.Row, addr.Col, cell.Value, cell.Formula, string(cell.Kind), nullableJSON(cell.Format)); err != nil {
			return "", fmt.Errorf("save cell %s: %w", key, err)
		}
	}

	err = tx.Commit()
	return id, err
}

// Load returns the snapshot stored under name.
func (s *Store) Load(ctx context.Context, name string) (spreadsheet.Snapshot, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM workbooks WHERE name = ?`, strings.TrimSpace(name)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT address, value, formula, kind, format_json
		FROM cells
		WHERE workbook_id = ?
		ORDER BY row_idx ASC, col_idx ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := spreadsheet.Snapshot{}
	for rows.Next() {
		var (
			address string
			cell    spreadsheet.SnapshotCell
			kind    string
			format  sql.NullString
		)
		if err := rows.Scan(&address, &cell.Value, &cell.Formula, &kind, &format); err != nil {
			return nil, err
		}
		cell.Kind = spreadsheet.Kind(kind)
		if format.Valid && format.String != "" {
			cell.Format = json.RawMessage(format.String)
		}
		snap[address] = cell
	}
	return snap, rows.Err()
}

// List returns every stored workbook ordered by name.
func (s *Store) List(ctx context.Context) ([]WorkbookInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.created_at, w.updated_at, COUNT(c.address)
		FROM workbooks w
		LEFT JOIN cells c ON c.workbook_id = w.id
		GROUP BY w.id, w.name, w.created_at, w.updated_at
		ORDER BY w.name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []WorkbookInfo{}
	for rows.Next() {
		var (
			info       WorkbookInfo
			createdRaw string
			updatedRaw string
		)
		if err := rows.Scan(&info.ID, &info.Name, &createdRaw, &updatedRaw, &info.Cells); err != nil {
			return nil, err
		}
		info.CreatedAt = parseTS(createdRaw)
		info.UpdatedAt = parseTS(updatedRaw)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete removes the workbook stored under name and its cells.
func (s *Store) Delete(ctx context.Context, name string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM workbooks WHERE name = ?`, strings.TrimSpace(name)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM cells WHERE workbook_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM workbooks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// translateNoRows maps an update that touched nothing to ErrNotFound.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(v string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
