package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/consensus.report/internal/monitoring"
)

// DB is the sqlite database holding imported classifications and saved
// consensus runs.
type DB struct {
	*sql.DB
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// Open opens (creating if needed) the sqlite database at path and applies
// the connection pragmas. It does not migrate; call MigrateUp for that.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// sqlite allows one writer; a single connection also keeps the
	// per-connection pragmas in force for every statement.
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return &DB{db}, nil
}

// OpenMigrated opens path and applies every pending migration.
func OpenMigrated(path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	version, _, err := db.MigrateVersion()
	if err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Logf("db: %s at schema version %d", path, version)
	return db, nil
}
