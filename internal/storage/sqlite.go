package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/types"
)

// SQLiteStore keeps the catalog in a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at dsn.
func NewSQLiteStore(dsn string, logger *slog.Logger) (*SQLiteStore, error) {
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// One writer; also keeps an in-memory database on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "sqlite_storage"),
	}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Ensure(ctx context.Context, d *category.Descriptor) error {
	if _, err := s.db.ExecContext(ctx, sqliteDialect.createTable(d)); err != nil {
		return &types.StorageError{Backend: s.Name(), Op: "ensure", Err: err}
	}

	existing, err := s.existingColumns(ctx, d.Table())
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Op: "ensure", Err: err}
	}
	for _, c := range missingColumns(d, existing) {
		if _, err := s.db.ExecContext(ctx, sqliteDialect.addColumn(d.Table(), c)); err != nil {
			return &types.StorageError{Backend: s.Name(), Op: "ensure", Err: err}
		}
		s.logger.Info("column added", "table", d.Table(), "column", c.name)
	}
	return nil
}

func (s *SQLiteStore) existingColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+quote(table)+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	maps, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	cols := make(map[string]bool, len(maps))
	for _, m := range maps {
		if name, ok := m["name"].(string); ok {
			cols[name] = true
		}
	}
	return cols, nil
}

func (s *SQLiteStore) Load(ctx context.Context, d *category.Descriptor) (map[string]*types.CatalogRecord, error) {
	records, err := s.Query(ctx, d, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*types.CatalogRecord, len(records))
	for _, r := range records {
		out[r.ID] = r
	}
	return out, nil
}

func (s *SQLiteStore) Query(ctx context.Context, d *category.Descriptor, conds []category.Condition) ([]*types.CatalogRecord, error) {
	stmt, args, err := sqliteDialect.query(d, conds)
	if err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Op: "query", Err: err}
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Op: "query", Err: err}
	}
	defer rows.Close()

	maps, err := scanRows(rows)
	if err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Op: "query", Err: err}
	}
	records := make([]*types.CatalogRecord, len(maps))
	for i, m := range maps {
		records[i] = recordFromRow(d, m)
	}
	return records, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, d *category.Descriptor, rec *types.CatalogRecord) error {
	stmt, args := sqliteDialect.upsert(d, rec)
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return upsertError(s.Name(), rec, err)
	}
	s.logger.Debug("record stored", "table", d.Table(), "asin", rec.ID)
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanRows reads every row into a column-name map.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, normalizeRow(row))
	}
	return out, rows.Err()
}
