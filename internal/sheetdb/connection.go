package sheetdb

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sheetengine/sheetengine/internal/logging"
)

var log = logging.GetLogger("sheetdb")

// Connection wraps one category database file. All reads issue
// directly against it; all writes are expected to route through a
// daemon client's ExecBatch instead (see daemonapi), never through
// DB().Exec directly, except when the connection IS a writer-side
// handle (the daemon's, or an administrative tool's via WriterConn).
type Connection struct {
	db   *sql.DB
	path string
}

const connDSNParams = "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"

// OpenExisting opens a SQLite file in WAL mode with the pragmas the
// engine relies on everywhere: foreign keys on, 5s busy timeout,
// NORMAL synchronous (durable enough under WAL without fsync-per-commit
// cost). Every read path uses this.
func OpenExisting(path string) (*Connection, error) {
	db, err := sql.Open("sqlite3", path+connDSNParams)
	if err != nil {
		return nil, Sqlite(err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, Sqlite(err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, Sqlite(err)
	}
	return &Connection{db: db, path: path}, nil
}

// CreateNew opens (creating if absent) a category database and
// provisions the global catalog plus migration-tracking table.
func CreateNew(path string) (*Connection, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, IOErr(err)
	}
	conn, err := OpenExisting(path)
	if err != nil {
		return nil, err
	}
	if err := EnsureGlobalMetadata(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// WriterConn opens a connection restricted to a single physical
// connection, matching the teacher's single-writer pool discipline.
// The daemon opens its per-category handles with this; sheetctl also
// uses it to write directly while the daemon is not serving the file.
func WriterConn(path string) (*Connection, error) {
	conn, err := CreateNew(path)
	if err != nil {
		return nil, err
	}
	conn.db.SetMaxOpenConns(1)
	conn.db.SetMaxIdleConns(1)
	conn.db.SetConnMaxLifetime(time.Hour)
	return conn, nil
}

func (c *Connection) DB() *sql.DB   { return c.db }
func (c *Connection) Path() string  { return c.path }

func (c *Connection) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Checkpoint issues a PASSIVE WAL checkpoint so subsequent reader
// connections observe schema changes made by the last batch of DDL.
func (c *Connection) Checkpoint() error {
	_, err := c.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
	if err != nil {
		return Sqlite(err)
	}
	return nil
}

// CheckpointTruncate issues a full TRUNCATE checkpoint, used by
// long-lived daemon maintenance, not on the per-write hot path.
func (c *Connection) CheckpointTruncate() error {
	_, err := c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return Sqlite(err)
	}
	return nil
}

// TableExists checks sqlite_master directly.
func TableExists(conn *Connection, name string) (bool, error) {
	var n string
	err := conn.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, Sqlite(err)
	}
	return true, nil
}

// GetTableType reads table_type for name from the global catalog, or
// "" if name is not registered there at all (e.g. it is itself
// `_Metadata` or `_SchemaMigrations`).
func GetTableType(conn *Connection, name string) (string, error) {
	var tt string
	err := conn.db.QueryRow(`SELECT table_type FROM _Metadata WHERE table_name=?`, name).Scan(&tt)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", Sqlite(err)
	}
	return tt, nil
}
