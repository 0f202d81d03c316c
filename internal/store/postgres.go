package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/redforge/riskscan/internal/errors"
	"github.com/redforge/riskscan/internal/logging"
	"github.com/redforge/riskscan/internal/metrics"
)

// PostgresConfig holds connection settings for the Postgres store.
type PostgresConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	Database        string        `yaml:"database" json:"database"`
	Username        string        `yaml:"username" json:"username"`
	Password        string        `yaml:"password" json:"password"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// DSN builds the lib/pq connection string.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, sslMode)
}

// PostgresStore persists documents in a single JSONB-backed table.
type PostgresStore struct {
	db *sqlx.DB
}

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	fields     JSONB NOT NULL DEFAULT '{}'::jsonb,
	PRIMARY KEY (collection, id)
)`

// NewPostgresStore connects to Postgres and ensures the documents table exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, errors.WrapStoreError(errors.CodeStoreUnavailable, "failed to connect to postgres", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if _, err := db.ExecContext(ctx, documentsSchema); err != nil {
		db.Close()
		return nil, errors.WrapStoreError(errors.CodeStoreUnavailable, "failed to ensure documents table", err)
	}

	logging.InfoStore("connected to postgres store",
		"host", cfg.Host, "database", cfg.Database)
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing connection, used by tests.
func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create writes a document, replacing any existing one with the same id.
func (s *PostgresStore) Create(ctx context.Context, collection, id string, fields Document) error {
	start := time.Now()
	payload, err := json.Marshal(fields)
	if err != nil {
		return errors.WrapStoreError(errors.CodeStoreQuery, "failed to encode document", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, fields) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id) DO UPDATE SET fields = EXCLUDED.fields`,
		collection, id, payload)
	metrics.Global().RecordStoreOperation("create", time.Since(start), err == nil)
	if err != nil {
		return errors.WrapStoreError(errors.CodeStoreQuery, "failed to write document", err)
	}
	return nil
}

// Get retrieves a document by id.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	start := time.Now()
	var payload []byte
	err := s.db.GetContext(ctx, &payload,
		`SELECT fields FROM documents WHERE collection = $1 AND id = $2`,
		collection, id)
	metrics.Global().RecordStoreOperation("get", time.Since(start), err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, errors.ErrDocumentNotFound(collection, id)
	}
	if err != nil {
		return nil, errors.WrapStoreError(errors.CodeStoreQuery, "failed to read document", err)
	}

	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, errors.WrapStoreError(errors.CodeStoreQuery, "failed to decode document", err)
	}
	return doc, nil
}

// Update merges fields into an existing document using JSONB concatenation.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields Document) error {
	start := time.Now()
	payload, err := json.Marshal(fields)
	if err != nil {
		return errors.WrapStoreError(errors.CodeStoreQuery, "failed to encode document", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET fields = fields || $3 WHERE collection = $1 AND id = $2`,
		collection, id, payload)
	metrics.Global().RecordStoreOperation("update", time.Since(start), err == nil)
	if err != nil {
		return errors.WrapStoreError(errors.CodeStoreQuery, "failed to update document", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.WrapStoreError(errors.CodeStoreQuery, "failed to check update result", err)
	}
	if affected == 0 {
		return errors.ErrDocumentNotFound(collection, id)
	}
	return nil
}

// Delete removes a document.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	start := time.Now()
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id)
	metrics.Global().RecordStoreOperation("delete", time.Since(start), err == nil)
	if err != nil {
		return errors.WrapStoreError(errors.CodeStoreQuery, "failed to delete document", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.WrapStoreError(errors.CodeStoreQuery, "failed to check delete result", err)
	}
	if affected == 0 {
		return errors.ErrDocumentNotFound(collection, id)
	}
	return nil
}

// QueryDocuments returns matching documents using JSONB text extraction for
// equality filters and ordering.
func (s *PostgresStore) QueryDocuments(ctx context.Context, collection string, q Query) ([]Document, error) {
	start := time.Now()

	var sb strings.Builder
	sb.WriteString(`SELECT fields FROM documents WHERE collection = $1`)
	args := []interface{}{collection}

	for _, f := range q.Filters {
		args = append(args, f.Field, fmt.Sprint(f.Value))
		sb.WriteString(fmt.Sprintf(" AND fields->>$%d = $%d", len(args)-1, len(args)))
	}
	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		sb.WriteString(fmt.Sprintf(" ORDER BY fields->>$%d", len(args)))
		if q.Descending {
			sb.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}

	rows, err := s.db.QueryxContext(ctx, sb.String(), args...)
	metrics.Global().RecordStoreOperation("query", time.Since(start), err == nil)
	if err != nil {
		return nil, errors.WrapStoreError(errors.CodeStoreQuery, "failed to query documents", err)
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.WrapStoreError(errors.CodeStoreQuery, "failed to scan document row", err)
		}
		var doc Document
		if err := json.Unmarshal(payload, &doc); err != nil {
			return nil, errors.WrapStoreError(errors.CodeStoreQuery, "failed to decode document", err)
		}
		results = append(results, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStoreError(errors.CodeStoreQuery, "failed to iterate documents", err)
	}
	return results, nil
}

// Ping verifies the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.WrapStoreError(errors.CodeStoreUnavailable, "postgres unreachable", err)
	}
	metrics.Global().SetStoreConnections(s.db.Stats().OpenConnections)
	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
