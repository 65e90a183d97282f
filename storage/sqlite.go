package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS caches (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS entries (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	cache TEXT NOT NULL,
	key TEXT NOT NULL,
	stored INTEGER NOT NULL,
	bytes BLOB,
	UNIQUE (cache, key)
);
`

// SQLiteStorage persists generations in a SQLite database.
// Insertion order is the autoincrement sequence of the entries table,
// so a replaced key always gets a newer sequence number.
type SQLiteStorage struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStorage opens (and migrates) the database in the given file.
// Use "file::memory:?cache=shared" for an in-memory database.
func NewSQLiteStorage(filename string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	return &SQLiteStorage{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) Open(name string) (Cache, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.db.Exec("INSERT OR IGNORE INTO caches (name) VALUES (?)", name); err != nil {
		return nil, err
	}
	return sqliteCache{s, name}, nil
}

func (s *SQLiteStorage) Has(name string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM caches WHERE name = ?", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStorage) Delete(name string) (bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM entries WHERE cache = ?", name); err != nil {
		return false, err
	}
	result, err := tx.Exec("DELETE FROM caches WHERE name = ?", name)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, tx.Commit()
}

func (s *SQLiteStorage) Names() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM caches ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStorage) All(prefix string) ([]Entry, error) {
	return s.query(`SELECT e.cache, e.key, e.stored, e.bytes FROM entries e
		JOIN caches c ON c.name = e.cache
		WHERE substr(e.key, 1, length(?)) = ?
		ORDER BY c.id, e.seq`, prefix, prefix)
}

func (s *SQLiteStorage) query(query string, args ...any) ([]Entry, error) {
	entries := make([]Entry, 0)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return entries, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry Entry
		var stored int64
		if err := rows.Scan(&entry.Cache, &entry.Key, &stored, &entry.Bytes); err != nil {
			return entries, err
		}
		entry.StoredAt = time.UnixMilli(stored)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type sqliteCache struct {
	s    *SQLiteStorage
	name string
}

func (c sqliteCache) Name() string {
	return c.name
}

func (c sqliteCache) All(prefix string) ([]Entry, error) {
	return c.s.query(`SELECT cache, key, stored, bytes FROM entries
		WHERE cache = ? AND substr(key, 1, length(?)) = ?
		ORDER BY seq`, c.name, prefix, prefix)
}

func (c sqliteCache) Put(entry Entry) error {
	return c.PutAll([]Entry{entry})
}

func (c sqliteCache) PutAll(entries []Entry) error {
	c.s.writeMutex.Lock()
	defer c.s.writeMutex.Unlock()
	tx, err := c.s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("INSERT OR IGNORE INTO caches (name) VALUES (?)", c.name); err != nil {
		return err
	}
	for _, e := range entries {
		_, err := tx.Exec("INSERT OR REPLACE INTO entries (cache, key, stored, bytes) VALUES (?, ?, ?, ?)",
			c.name, e.Key, e.StoredAt.UnixMilli(), e.Bytes)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (c sqliteCache) Delete(key string) (bool, error) {
	c.s.writeMutex.Lock()
	defer c.s.writeMutex.Unlock()
	result, err := c.s.db.Exec("DELETE FROM entries WHERE cache = ? AND key = ?", c.name, key)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func (c sqliteCache) Keys() ([]string, error) {
	rows, err := c.s.db.Query("SELECT key FROM entries WHERE cache = ? ORDER BY seq", c.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
