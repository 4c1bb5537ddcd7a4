// Package storage persists catalog records, one table or collection per
// category, and exports them to files.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/config"
	"github.com/IshaanNene/unitscout/internal/types"
)

// Store is the interface for all catalog backends.
type Store interface {
	// Ensure creates the category table and adds any missing columns.
	Ensure(ctx context.Context, d *category.Descriptor) error

	// Load returns every stored record of the category keyed by identifier.
	Load(ctx context.Context, d *category.Descriptor) (map[string]*types.CatalogRecord, error)

	// Query returns records matching every condition, sorted ascending by
	// the category's score field with missing values last.
	Query(ctx context.Context, d *category.Descriptor, conds []category.Condition) ([]*types.CatalogRecord, error)

	// Upsert inserts or replaces one record keyed by identifier. The
	// original created_at is kept on update.
	Upsert(ctx context.Context, d *category.Descriptor, rec *types.CatalogRecord) error

	// Close releases the connection.
	Close() error

	// Name returns the backend identifier.
	Name() string
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite", "":
		return NewSQLiteStore(cfg.DSN, logger)
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, cfg.DSN, logger)
	case "mongodb", "mongo":
		return NewMongoStore(ctx, cfg.DSN, cfg.Database, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// recordFromRow rebuilds a record from a stored row and coerces its
// attributes to the category's declared kinds.
func recordFromRow(d *category.Descriptor, row map[string]any) *types.CatalogRecord {
	rec := types.RecordFromMap(row)
	d.Coerce(rec.Attributes)
	return rec
}

func upsertError(backend string, rec *types.CatalogRecord, err error) error {
	return &types.StorageError{Backend: backend, Op: "upsert", ID: rec.ID, Err: err}
}
