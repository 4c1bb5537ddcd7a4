package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/types"
)

// Exporter writes catalog records to a file.
type Exporter interface {
	// Write appends records to the output.
	Write(records []*types.CatalogRecord) error

	// Close flushes pending writes and closes the file.
	Close() error

	// Path returns the output file path.
	Path() string
}

// NewExporter creates the exporter for format ("json", "jsonl" or "csv")
// writing <dir>/<category>.<format>.
func NewExporter(format, dir string, d *category.Descriptor, logger *slog.Logger) (Exporter, error) {
	path := filepath.Join(dir, d.Name+"."+format)
	switch format {
	case "json":
		return NewJSONExporter(path, logger)
	case "jsonl":
		return NewJSONLExporter(path, logger)
	case "csv":
		return NewCSVExporter(path, Columns(d), logger)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

// --- JSON Export ---

// JSONExporter buffers records and writes them as one indented JSON array
// on Close.
type JSONExporter struct {
	path    string
	records []*types.CatalogRecord
	logger  *slog.Logger
}

// NewJSONExporter creates a JSON array exporter.
func NewJSONExporter(path string, logger *slog.Logger) (*JSONExporter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &JSONExporter{
		path:    path,
		records: make([]*types.CatalogRecord, 0),
		logger:  logger.With("component", "json_export"),
	}, nil
}

func (e *JSONExporter) Path() string { return e.path }

func (e *JSONExporter) Write(records []*types.CatalogRecord) error {
	e.records = append(e.records, records...)
	return nil
}

func (e *JSONExporter) Close() error {
	f, err := createFile(e.path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e.records); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}

	e.logger.Info("JSON written", "path", e.path, "records", len(e.records))
	return nil
}

// --- JSONL Export ---

// JSONLExporter streams one JSON object per line.
type JSONLExporter struct {
	path   string
	file   *os.File
	enc    *json.Encoder
	count  int
	logger *slog.Logger
}

// NewJSONLExporter creates a newline-delimited JSON exporter.
func NewJSONLExporter(path string, logger *slog.Logger) (*JSONLExporter, error) {
	f, err := createFile(path)
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &JSONLExporter{
		path:   path,
		file:   f,
		enc:    enc,
		logger: logger.With("component", "jsonl_export"),
	}, nil
}

func (e *JSONLExporter) Path() string { return e.path }

func (e *JSONLExporter) Write(records []*types.CatalogRecord) error {
	for _, r := range records {
		if err := e.enc.Encode(r); err != nil {
			return fmt.Errorf("encode JSONL: %w", err)
		}
		e.count++
	}
	return nil
}

func (e *JSONLExporter) Close() error {
	e.logger.Info("JSONL written", "path", e.path, "records", e.count)
	return e.file.Close()
}

// --- CSV Export ---

// CSVExporter writes one row per record with the category's columns as the
// header.
type CSVExporter struct {
	path    string
	file    *os.File
	writer  *csv.Writer
	headers []string
	wrote   bool
	count   int
	logger  *slog.Logger
}

// NewCSVExporter creates a CSV exporter with the given column order.
func NewCSVExporter(path string, headers []string, logger *slog.Logger) (*CSVExporter, error) {
	f, err := createFile(path)
	if err != nil {
		return nil, err
	}
	return &CSVExporter{
		path:    path,
		file:    f,
		writer:  csv.NewWriter(f),
		headers: headers,
		logger:  logger.With("component", "csv_export"),
	}, nil
}

func (e *CSVExporter) Path() string { return e.path }

func (e *CSVExporter) Write(records []*types.CatalogRecord) error {
	if !e.wrote {
		if err := e.writer.Write(e.headers); err != nil {
			return fmt.Errorf("write CSV header: %w", err)
		}
		e.wrote = true
	}

	for _, r := range records {
		flat := r.ToFlatMap()
		row := make([]string, len(e.headers))
		for i, h := range e.headers {
			row[i] = flat[h]
		}
		if err := e.writer.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
		e.count++
	}

	e.writer.Flush()
	return e.writer.Error()
}

func (e *CSVExporter) Close() error {
	if !e.wrote {
		// Header only, so an empty catalog still yields a valid file.
		if err := e.Write(nil); err != nil {
			e.file.Close()
			return err
		}
	}
	e.logger.Info("CSV written", "path", e.path, "records", e.count)
	e.writer.Flush()
	return e.file.Close()
}
