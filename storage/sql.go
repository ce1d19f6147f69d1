package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect holds the driver name and statements of one SQL database.
type Dialect struct {
	Name   string
	Driver string

	create string
	get    string
	upsert string
}

var (
	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite",
		create: `CREATE TABLE IF NOT EXISTS %s (state_key TEXT PRIMARY KEY, state_value BLOB NOT NULL, updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP)`,
		get:    `SELECT state_value FROM %s WHERE state_key = ?`,
		upsert: `INSERT INTO %s (state_key, state_value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT (state_key) DO UPDATE SET state_value = excluded.state_value, updated_at = excluded.updated_at`,
	}
	Postgres = Dialect{
		Name:   "postgres",
		Driver: "postgres",
		create: `CREATE TABLE IF NOT EXISTS %s (state_key TEXT PRIMARY KEY, state_value BYTEA NOT NULL, updated_at TIMESTAMPTZ DEFAULT now())`,
		get:    `SELECT state_value FROM %s WHERE state_key = $1`,
		upsert: `INSERT INTO %s (state_key, state_value, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (state_key) DO UPDATE SET state_value = EXCLUDED.state_value, updated_at = EXCLUDED.updated_at`,
	}
)

// SQLKV stores values in a single key/value table.
type SQLKV struct {
	db      *sql.DB
	getSQL  string
	saveSQL string
}

// OpenSQL opens a database for the dialect and prepares the state table.
func OpenSQL(ctx context.Context, d Dialect, dsn, table string) (*SQLKV, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Name, err)
	}
	if d.Driver == SQLite.Driver {
		// every sqlite connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	kv, err := NewSQLKV(ctx, db, d, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return kv, nil
}

// NewSQLKV creates the state table if absent.
func NewSQLKV(ctx context.Context, db *sql.DB, d Dialect, table string) (*SQLKV, error) {
	if !validIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(d.create, table)); err != nil {
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}
	return &SQLKV{
		db:      db,
		getSQL:  fmt.Sprintf(d.get, table),
		saveSQL: fmt.Sprintf(d.upsert, table),
	}, nil
}

func (s *SQLKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, s.getSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *SQLKV) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, s.saveSQL, key, value)
	return err
}

func (s *SQLKV) Close() error {
	return s.db.Close()
}

func validIdentifier(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
