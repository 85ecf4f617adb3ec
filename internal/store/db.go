package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Database drivers.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

const sqlitePrefix = "sqlite3://"

// Driver picks the database/sql driver for a DATABASE_URL. URLs of the form
// sqlite3://path open a local SQLite file; everything else goes to Postgres.
func Driver(databaseURL string) string {
	if strings.HasPrefix(databaseURL, sqlitePrefix) {
		return DriverSQLite
	}
	return DriverPostgres
}

func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	driver := Driver(databaseURL)
	dsn := databaseURL
	if driver == DriverSQLite {
		dsn = sqliteDSN(strings.TrimPrefix(databaseURL, sqlitePrefix))
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if driver == DriverSQLite {
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}
