package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/types"
)

// PostgresStore keeps the catalog in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects a pool to dsn.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	return &PostgresStore{
		pool:   pool,
		logger: logger.With("component", "postgres_storage"),
	}, nil
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Ensure(ctx context.Context, d *category.Descriptor) error {
	if _, err := s.pool.Exec(ctx, postgresDialect.createTable(d)); err != nil {
		return &types.StorageError{Backend: s.Name(), Op: "ensure", Err: err}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`,
		d.Table())
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Op: "ensure", Err: err}
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Op: "ensure", Err: err}
	}
	existing := make(map[string]bool, len(names))
	for _, n := range names {
		existing[n] = true
	}

	for _, c := range missingColumns(d, existing) {
		if _, err := s.pool.Exec(ctx, postgresDialect.addColumn(d.Table(), c)); err != nil {
			return &types.StorageError{Backend: s.Name(), Op: "ensure", Err: err}
		}
		s.logger.Info("column added", "table", d.Table(), "column", c.name)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, d *category.Descriptor) (map[string]*types.CatalogRecord, error) {
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

func (s *PostgresStore) Query(ctx context.Context, d *category.Descriptor, conds []category.Condition) ([]*types.CatalogRecord, error) {
	stmt, args, err := postgresDialect.query(d, conds)
	if err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Op: "query", Err: err}
	}

	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Op: "query", Err: err}
	}
	defer rows.Close()

	var records []*types.CatalogRecord
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, &types.StorageError{Backend: s.Name(), Op: "query", Err: err}
		}
		row := make(map[string]any, len(values))
		for i, fd := range rows.FieldDescriptions() {
			row[fd.Name] = values[i]
		}
		records = append(records, recordFromRow(d, normalizeRow(row)))
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Op: "query", Err: err}
	}
	return records, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, d *category.Descriptor, rec *types.CatalogRecord) error {
	stmt, args := postgresDialect.upsert(d, rec)
	if _, err := s.pool.Exec(ctx, stmt, args...); err != nil {
		return upsertError(s.Name(), rec, err)
	}
	s.logger.Debug("record stored", "table", d.Table(), "asin", rec.ID)
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
