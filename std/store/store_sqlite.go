package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`

type SqliteStore struct {
	db *sql.DB
	tx *sql.Tx
}

func NewSqliteStore(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (s *SqliteStore) exec() execer {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *SqliteStore) Get(key string) ([]byte, error) {
	if s.tx != nil {
		return nil, fmt.Errorf("get within a write transaction")
	}
	var value []byte
	err := s.db.QueryRow("SELECT value FROM kv WHERE key=?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return value, err
}

func (s *SqliteStore) Put(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.exec().Exec("INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)", key, value)
	return err
}

func (s *SqliteStore) Delete(key string) error {
	_, err := s.exec().Exec("DELETE FROM kv WHERE key=?", key)
	return err
}

func (s *SqliteStore) List(prefix string) ([]Record, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := s.db.Query(`SELECT key, value FROM kv WHERE key LIKE ? ESCAPE '\' ORDER BY key`, escaped+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Key, &r.Value); err != nil {
			return nil, err
		}
		// LIKE is case-insensitive for ASCII
		if strings.HasPrefix(r.Key, prefix) {
			out = append(out, r)
		}
	}
	return out, rows.Err()
}

func (s *SqliteStore) Begin() (Store, error) {
	if s.tx != nil {
		return nil, fmt.Errorf("nested write transaction")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	return &SqliteStore{db: s.db, tx: tx}, nil
}

func (s *SqliteStore) Commit() error {
	if s.tx == nil {
		return fmt.Errorf("commit without a write transaction")
	}
	return s.tx.Commit()
}

func (s *SqliteStore) Rollback() error {
	if s.tx == nil {
		return fmt.Errorf("rollback without a write transaction")
	}
	return s.tx.Rollback()
}
