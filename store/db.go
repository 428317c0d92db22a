// Package store owns the SQLite catalog: schema, incremental ingest, scan
// state and the read-side queries. All writes go through a single mutex so
// the import and scan workers never interleave transactions; readers use a
// separate read-only connection pool and are never blocked by writers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/xuyicheng33/IPC-QUERY/pkg/logger"
)

const (
	busyTimeoutMS = 5000
	cacheSizeKB   = -20000
)

func rwDSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=cache_size(%d)&_pragma=temp_store(2)",
		path, busyTimeoutMS, cacheSizeKB,
	)
}

func roDSN(path string) string {
	return fmt.Sprintf(
		"file:%s?mode=ro&_pragma=busy_timeout(%d)&_pragma=query_only(1)&_pragma=cache_size(%d)&_pragma=temp_store(2)",
		path, busyTimeoutMS, cacheSizeKB,
	)
}

// Store is the catalog database handle.
type Store struct {
	path string

	rw *sql.DB
	ro *sql.DB

	// writeMu serializes all mutations across import and scan workers.
	writeMu sync.Mutex
}

// Open opens (creating if needed) the catalog at path and ensures the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	rw, err := sql.Open("sqlite", rwDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows exactly one writer; a larger pool just trades the write
	// mutex for SQLITE_BUSY errors.
	rw.SetMaxOpenConns(1)

	if err := EnsureSchema(rw); err != nil {
		rw.Close()
		return nil, err
	}

	ro, err := sql.Open("sqlite", roDSN(path))
	if err != nil {
		rw.Close()
		return nil, fmt.Errorf("open read-only database: %w", err)
	}
	ro.SetMaxOpenConns(8)

	logger.Info(context.Background(), "database opened", "path", path)
	return &Store{path: path, rw: rw, ro: ro}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Reader returns the read-only connection pool.
func (s *Store) Reader() *sql.DB { return s.ro }

// Close closes both connection pools.
func (s *Store) Close() error {
	roErr := s.ro.Close()
	rwErr := s.rw.Close()
	if rwErr != nil {
		return rwErr
	}
	return roErr
}

// withWrite runs fn with the process-wide write lock held.
func (s *Store) withWrite(fn func(db *sql.DB) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return fn(s.rw)
}
