package bolt

import (
	"os"
	"path/filepath"

	"github.com/asdine/storm/v3"
)

// DB represents a database
type DB struct {
	path    string
	stormDB *storm.DB
}

// NewDB returns new database
func NewDB(path string) *DB {
	return &DB{
		path: path,
	}
}

// Open opens new database connection
func (db *DB) Open() error {
	if err := os.MkdirAll(filepath.Dir(db.path), 0o755); err != nil {
		return err
	}

	stormDB, err := storm.Open(db.path)
	if err != nil {
		return err
	}
	db.stormDB = stormDB

	return nil
}

// Close closes database connection
func (db *DB) Close() error {
	if db.stormDB != nil {
		return db.stormDB.Close()
	}

	return nil
}
