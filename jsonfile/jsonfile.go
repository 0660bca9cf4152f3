// Package jsonfile stores the subscriber list as a single JSON document. Every mutation
// rewrites the whole file under an in-process mutex and an advisory file lock, so the
// web server and the send command can share it.
package jsonfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/athomewithrose/homeletter"
)

// DB represents the subscriber file
type DB struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

type database struct {
	Subscribers []homeletter.Subscriber `json:"subscribers"`
	LastUpdated time.Time               `json:"lastUpdated"`
}

// NewDB returns new database
func NewDB(path string) *DB {
	return &DB{
		path: path,
	}
}

// Open creates the data directory and prepares the lock file
func (db *DB) Open() error {
	if db.path == "" {
		return errors.New("path required")
	}

	if err := os.MkdirAll(filepath.Dir(db.path), 0o755); err != nil {
		return errors.Wrap(err, "os.MkdirAll")
	}
	db.lock = flock.New(db.path + ".lock")

	return nil
}

// Close releases the lock file
func (db *DB) Close() error {
	if db.lock == nil {
		return nil
	}
	return db.lock.Close()
}

func (db *DB) view(fn func(d *database) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.lock.RLock(); err != nil {
		return errors.Wrap(err, "flock.RLock")
	}
	defer func() {
		_ = db.lock.Unlock()
	}()

	d, err := db.read()
	if err != nil {
		return err
	}

	return fn(d)
}

// update runs fn on the current contents and writes them back when fn reports a change.
func (db *DB) update(now time.Time, fn func(d *database) (bool, error)) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.lock.Lock(); err != nil {
		return errors.Wrap(err, "flock.Lock")
	}
	defer func() {
		_ = db.lock.Unlock()
	}()

	d, err := db.read()
	if err != nil {
		return err
	}

	changed, err := fn(d)
	if err != nil || !changed {
		return err
	}

	d.LastUpdated = now.UTC()
	return db.write(d)
}

func (db *DB) read() (*database, error) {
	data, err := os.ReadFile(db.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &database{Subscribers: []homeletter.Subscriber{}}, nil
		}
		return nil, errors.Wrap(err, "os.ReadFile")
	}

	var d database
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", filepath.Base(db.path))
	}

	return &d, nil
}

func (db *DB) write(d *database) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return errors.Wrap(err, "json.MarshalIndent")
	}

	tmp, err := os.CreateTemp(filepath.Dir(db.path), ".subscribers-*.json")
	if err != nil {
		return errors.Wrap(err, "os.CreateTemp")
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close")
	}

	return errors.Wrap(os.Rename(tmp.Name(), db.path), "os.Rename")
}
