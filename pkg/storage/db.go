package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Common storage errors
var (
	// ErrWorkspaceNotFound is returned when no workspace has the requested name
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrAlreadyExists is returned when a record or workspace key is already taken
	ErrAlreadyExists = errors.New("already exists")
)

// DB wraps the SQLite connection holding history and workspaces
type DB struct {
	conn   *sql.DB
	logger *logrus.Logger
}

// NewDB opens the database at dbPath and runs migrations
func NewDB(dbPath string, logger *logrus.Logger) (*DB, error) {
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, logger: logger}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Debugf("Opened history database at %s", dbPath)
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetConn returns the underlying database connection
func (db *DB) GetConn() *sql.DB {
	return db.conn
}

// migrate creates the necessary tables if they don't exist
func (db *DB) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS action_history (
		opportunity_id TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL,
		resource_address TEXT NOT NULL,
		opportunity_title TEXT NOT NULL,
		applied_iac_content TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		backend_config_json TEXT NOT NULL
	);
	`

	if _, err := db.conn.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
