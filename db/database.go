package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"massprint/models"

	_ "github.com/marcboeker/go-duckdb/v2"
	"go.uber.org/zap"
)

// ConfigKeyPrinter is the config table key holding the last selected printer
const ConfigKeyPrinter = "printer"

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Database handles all database operations
type Database struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDatabase creates a new database instance
func NewDatabase(logger *zap.Logger) *Database {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Database{logger: logger}
}

// NewDatabaseFromDB wraps an already opened connection. The schema is not created.
func NewDatabaseFromDB(conn *sql.DB, logger *zap.Logger) *Database {
	d := NewDatabase(logger)
	d.db = conn
	return d
}

// Init opens the DuckDB database and creates tables
func (d *Database) Init(dbPath string) error {
	var err error
	d.db, err = sql.Open("duckdb", dbPath)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}

	// mod_time_ns keeps full nanosecond precision; TIMESTAMP would truncate to
	// microseconds and every comparison against the filesystem would miss.
	createTablesSQL := `
	CREATE TABLE IF NOT EXISTS files (
		path VARCHAR PRIMARY KEY,
		size BIGINT NOT NULL,
		mod_time_ns BIGINT NOT NULL,
		printed BOOLEAN NOT NULL DEFAULT false,
		printed_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS config (
		key VARCHAR PRIMARY KEY,
		value VARCHAR
	);
	`

	if _, err = d.db.Exec(createTablesSQL); err != nil {
		return fmt.Errorf("error creating tables: %w", err)
	}

	d.logger.Info("database initialized", zap.String("path", dbPath))
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// SyncPending compares candidates against stored records and returns the paths that
// still need printing. Each returned path is upserted with its new fingerprint and
// printed reset to false. The whole pass is committed as one transaction.
func (d *Database) SyncPending(ctx context.Context, candidates []models.FileRecord) ([]string, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	pending := make([]string, 0, len(candidates))
	for _, c := range candidates {
		stored, err := getFile(ctx, tx, c.Path)
		if err != nil {
			return nil, err
		}
		if stored != nil && stored.Printed && stored.Fingerprint().Equal(c.Fingerprint()) {
			continue
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO files (path, size, mod_time_ns, printed)
			VALUES (?, ?, ?, false)
			ON CONFLICT (path) DO UPDATE SET
			size = excluded.size,
			mod_time_ns = excluded.mod_time_ns,
			printed = false
		`, c.Path, c.Size, c.ModTime.UnixNano()); err != nil {
			return nil, fmt.Errorf("error upserting file %s: %w", c.Path, err)
		}
		pending = append(pending, c.Path)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing pending files: %w", err)
	}
	return pending, nil
}

// GetFile retrieves a record by path. It returns nil when the path is unknown.
func (d *Database) GetFile(ctx context.Context, path string) (*models.FileRecord, error) {
	return getFile(ctx, d.db, path)
}

func getFile(ctx context.Context, q querier, path string) (*models.FileRecord, error) {
	row := q.QueryRowContext(ctx,
		"SELECT path, size, mod_time_ns, printed, printed_at FROM files WHERE path = ?", path)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading file %s: %w", path, err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.FileRecord, error) {
	var (
		rec       models.FileRecord
		modTimeNs int64
		printedAt sql.NullTime
	)
	if err := s.Scan(&rec.Path, &rec.Size, &modTimeNs, &rec.Printed, &printedAt); err != nil {
		return nil, err
	}
	rec.ModTime = time.Unix(0, modTimeNs)
	if printedAt.Valid {
		t := printedAt.Time
		rec.PrintedAt = &t
	}
	return &rec, nil
}

// MarkPrinted flags the record as printed. It reports whether a record was updated.
func (d *Database) MarkPrinted(ctx context.Context, path string, at time.Time) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		"UPDATE files SET printed = true, printed_at = ? WHERE path = ?", at, path)
	if err != nil {
		return false, fmt.Errorf("error marking %s printed: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error marking %s printed: %w", path, err)
	}
	return n > 0, nil
}

// SetConfig stores a configuration value, replacing any previous one
func (d *Database) SetConfig(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("error setting %s: %w", key, err)
	}
	return nil
}

// GetConfig returns a configuration value and whether it exists
func (d *Database) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value sql.NullString
	err := d.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error reading %s: %w", key, err)
	}
	return value.String, value.Valid, nil
}

// ListFiles retrieves all records ordered by path
func (d *Database) ListFiles(ctx context.Context) ([]models.FileRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT path, size, mod_time_ns, printed, printed_at
		FROM files
		ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("error listing files: %w", err)
	}
	defer rows.Close()

	var files []models.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			d.logger.Warn("error scanning file row", zap.Error(err))
			continue
		}
		files = append(files, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error listing files: %w", err)
	}
	return files, nil
}

// GetStats retrieves statistics from the database
func (d *Database) GetStats(ctx context.Context) (*models.Stats, error) {
	var (
		stats       models.Stats
		lastPrinted sql.NullTime
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE printed),
			CAST(COALESCE(SUM(size), 0) AS BIGINT),
			MAX(printed_at)
		FROM files
	`).Scan(&stats.TotalFiles, &stats.PrintedFiles, &stats.TotalSize, &lastPrinted)
	if err != nil {
		return nil, fmt.Errorf("error getting file stats: %w", err)
	}
	stats.PendingFiles = stats.TotalFiles - stats.PrintedFiles
	if lastPrinted.Valid {
		t := lastPrinted.Time
		stats.LastPrintedAt = &t
	}

	printer, ok, err := d.GetConfig(ctx, ConfigKeyPrinter)
	if err != nil {
		return nil, err
	}
	if ok {
		stats.Printer = printer
	}
	return &stats, nil
}
