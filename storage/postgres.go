package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresStore is a RecordStore keeping each collection in its own table of
// (id TEXT PRIMARY KEY, data JSONB). Field lookups use data->>field.
type PostgresStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	prefix  string
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTablePrefix prefixes every collection table name.
func WithTablePrefix(prefix string) PostgresOption {
	return func(s *PostgresStore) {
		s.prefix = prefix
	}
}

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		prefix:  "newsdesk_",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (s *PostgresStore) table(collection string) (string, error) {
	if err := ValidateName(collection); err != nil {
		return "", err
	}
	return pq.QuoteIdentifier(s.prefix + collection), nil
}

// EnsureCollection creates the collection table and an expression index per field.
func (s *PostgresStore) EnsureCollection(ctx context.Context, collection string, indexFields ...string) error {
	table, err := s.table(collection)
	if err != nil {
		return err
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, data JSONB NOT NULL)`, table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", collection, err)
	}

	for _, field := range indexFields {
		if err := ValidateName(field); err != nil {
			return err
		}
		index := pq.QuoteIdentifier(fmt.Sprintf("%s%s_%s_idx", s.prefix, collection, field))
		stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s ((data->>%s))`, index, table, pq.QuoteLiteral(field))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index %s.%s: %w", collection, field, err)
		}
	}
	return nil
}

func (s *PostgresStore) findQuery(collection, field string, value any) (string, []any, error) {
	table, err := s.table(collection)
	if err != nil {
		return "", nil, err
	}
	if err := ValidateName(field); err != nil {
		return "", nil, err
	}
	return s.builder.
		Select("id", "data").
		From(table).
		Where("data->>? = ?", field, fmt.Sprint(value)).
		OrderBy("id").
		Limit(1).
		ToSql()
}

func (s *PostgresStore) insertQuery(collection, id string, fields Fields) (string, []any, error) {
	table, err := s.table(collection)
	if err != nil {
		return "", nil, err
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", nil, fmt.Errorf("marshal record: %w", err)
	}
	return s.builder.
		Insert(table).
		Columns("id", "data").
		Values(id, string(payload)).
		ToSql()
}

func (s *PostgresStore) updateQuery(collection, id string, fields Fields) (string, []any, error) {
	table, err := s.table(collection)
	if err != nil {
		return "", nil, err
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", nil, fmt.Errorf("marshal record: %w", err)
	}
	return s.builder.
		Update(table).
		Set("data", sq.Expr("data || ?::jsonb", string(payload))).
		Where(sq.Eq{"id": id}).
		ToSql()
}

// FindOneByField returns the first record (by id) whose field equals value.
func (s *PostgresStore) FindOneByField(ctx context.Context, collection, field string, value any) (*Record, error) {
	query, args, err := s.findQuery(collection, field, value)
	if err != nil {
		return nil, err
	}

	var (
		id   string
		data []byte
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyPQError(fmt.Errorf("query %s: %w", collection, err))
	}

	var fields Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, rejected(fmt.Errorf("decode %s/%s: %w", collection, id, err))
	}
	return &Record{ID: id, Fields: fields}, nil
}

// Insert stores a new record under a fresh UUID.
func (s *PostgresStore) Insert(ctx context.Context, collection string, fields Fields) (string, error) {
	id := uuid.New().String()
	stored := fields.Clone()
	stored[FieldID] = id

	query, args, err := s.insertQuery(collection, id, stored)
	if err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", classifyPQError(fmt.Errorf("insert %s: %w", collection, err))
	}
	return id, nil
}

// Update merges fields into the stored JSON document.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	query, args, err := s.updateQuery(collection, id, fields)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classifyPQError(fmt.Errorf("update %s/%s: %w", collection, id, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// classifyPQError wraps syntax, data and constraint errors in ErrRejected.
// Connection and resource errors are returned as is.
func classifyPQError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code.Class() {
	case "22", "23", "42":
		return rejected(err)
	}
	return err
}
