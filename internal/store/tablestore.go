// Package store publishes compatibility tables to Postgres so other services
// can query which catalog names a browser version supports.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	"github.com/shortontech/featurefp/internal/compat"
	"github.com/shortontech/featurefp/pkg/logger"
)

// validTableNameRegex ensures table names only contain safe characters
// PostgreSQL identifiers: start with letter or underscore, followed by letters, digits, or underscores
var validTableNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var copyColumns = []string{"catalog_tag", "position", "browser_key", "family", "version", "features"}

// TableStore writes one row per table key: the key, its parsed family and
// version, and the supported names as a text array.
type TableStore struct {
	db    *sql.DB
	table string
	log   logger.Logger
}

// Open connects with lib/pq and verifies the connection.
func Open(ctx context.Context, dsn, table string, log logger.Logger) (*TableStore, error) {
	if err := validateTableName(table); err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(db, table, log)
}

// New wraps an existing handle.
func New(db *sql.DB, table string, log logger.Logger) (*TableStore, error) {
	if err := validateTableName(table); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Default()
	}
	return &TableStore{db: db, table: table, log: log}, nil
}

func (s *TableStore) Close() error { return s.db.Close() }

// EnsureSchema creates the table and its lookup index if missing.
func (s *TableStore) EnsureSchema(ctx context.Context) error {
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		catalog_tag  TEXT        NOT NULL,
		position     INTEGER     NOT NULL,
		browser_key  TEXT        NOT NULL,
		family       TEXT        NOT NULL,
		version      INTEGER     NOT NULL,
		features     TEXT[]      NOT NULL,
		published_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (catalog_tag, browser_key)
	)`, pq.QuoteIdentifier(s.table))
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (family, version)`,
		pq.QuoteIdentifier("idx_"+s.table+"_family"), pq.QuoteIdentifier(s.table))
	if _, err := s.db.ExecContext(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Publish replaces every row of tag with table in one transaction using COPY.
// It returns the number of keys written.
func (s *TableStore) Publish(ctx context.Context, tag string, table *compat.Table) (n int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	del := fmt.Sprintf(`DELETE FROM %s WHERE catalog_tag = $1`, pq.QuoteIdentifier(s.table))
	if _, err = tx.ExecContext(ctx, del, tag); err != nil {
		return 0, fmt.Errorf("failed to clear tag %s: %w", tag, err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(s.table, copyColumns...))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy: %w", err)
	}
	for i, key := range table.Keys() {
		family, version, ok := compat.SplitKey(key)
		if !ok {
			_ = stmt.Close()
			return 0, fmt.Errorf("invalid table key %q", key)
		}
		names, _ := table.Features(key)
		if _, err = stmt.ExecContext(ctx, tag, i, key, family, version, pq.Array(names)); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("failed to copy row %s: %w", key, err)
		}
		n++
	}
	if _, err = stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return 0, fmt.Errorf("failed to flush copy: %w", err)
	}
	if err = stmt.Close(); err != nil {
		return 0, fmt.Errorf("failed to close copy: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	s.log.Info("store: table published",
		logger.F("table", s.table), logger.F("catalog_tag", tag), logger.F("keys", n))
	return n, nil
}

// Load reads back the rows of tag in their published order.
func (s *TableStore) Load(ctx context.Context, tag string) (*compat.Table, error) {
	q := fmt.Sprintf(`SELECT browser_key, features FROM %s WHERE catalog_tag = $1 ORDER BY position`,
		pq.QuoteIdentifier(s.table))
	rows, err := s.db.QueryContext(ctx, q, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to query tag %s: %w", tag, err)
	}
	defer rows.Close()

	table := &compat.Table{}
	for rows.Next() {
		var key string
		var names []string
		if err := rows.Scan(&key, pq.Array(&names)); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		table.Append(key, names...)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if table.Len() == 0 {
		return nil, fmt.Errorf("no rows for tag %s", tag)
	}
	return table, nil
}

// validateTableName ensures the table name is safe to use in SQL queries
func validateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	if len(name) > 63 {
		return fmt.Errorf("table name too long (max 63 characters): %s", name)
	}
	if !validTableNameRegex.MatchString(name) {
		return fmt.Errorf("invalid table name (must start with letter or underscore, contain only alphanumeric and underscores): %s", name)
	}
	return nil
}
