package bolt

import (
	"time"

	"github.com/asdine/storm/v3"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

const lockTimeout = time.Second

// ErrLocked is returned by Open when another process holds the database file.
// A bolt database serves a single process, so run new post notifications from
// serve (feed.cron) or switch to the sqlite backend.
var ErrLocked = errors.New("bolt database is locked by another process")

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
	stormDB, err := storm.Open(db.path, storm.BoltOptions(0600, &bolt.Options{Timeout: lockTimeout}))
	if errors.Is(err, bolt.ErrTimeout) {
		return errors.Wrap(ErrLocked, db.path)
	} else if err != nil {
		return err
	}
	db.stormDB = stormDB

	return db.stormDB.Init(&registration{})
}

// Close closes database connection
func (db *DB) Close() error {
	if db.stormDB != nil {
		return db.stormDB.Close()
	}

	return nil
}
