package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite3"

	sqliteBusyTimeout = "5000"
)

//go:embed migrations
var migrations embed.FS

type SqlChatRepository struct {
	conn   *sql.DB
	driver string
}

// Open connects to the store behind dsn and brings its schema up to date.
// For sqlite3 the dsn is the path of the database file.
func Open(driver, dsn string) (*SqlChatRepository, error) {
	var (
		db  *sql.DB
		err error
	)

	switch driver {
	case DriverPostgres:
		db, err = sql.Open(DriverPostgres, dsn)
	case DriverSqlite:
		db, err = openSqlite(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if err := runMigrations(db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SqlChatRepository{conn: db, driver: driver}, nil
}

func openSqlite(path string) (*sql.DB, error) {
	params := make(url.Values)
	params.Add("_foreign_keys", "true")
	params.Add("_busy_timeout", sqliteBusyTimeout)
	params.Add("mode", "rwc")

	db, err := sql.Open(DriverSqlite, fmt.Sprintf("file:%s?%s", path, params.Encode()))
	if err != nil {
		return nil, err
	}

	// a single writer keeps sqlite from returning SQLITE_BUSY under load
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func runMigrations(db *sql.DB, driver string) error {
	src, err := iofs.New(migrations, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	var m *migrate.Migrate
	switch driver {
	case DriverPostgres:
		instance, err := postgres.WithInstance(db, &postgres.Config{})
		if err != nil {
			return err
		}
		m, err = migrate.NewWithInstance("iofs", src, driver, instance)
		if err != nil {
			return err
		}
	case DriverSqlite:
		instance, err := sqlite3.WithInstance(db, &sqlite3.Config{})
		if err != nil {
			return err
		}
		m, err = migrate.NewWithInstance("iofs", src, driver, instance)
		if err != nil {
			return err
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

// rebind rewrites '?' placeholders into the numbered form postgres expects.
func (db *SqlChatRepository) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}

	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8)
	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}

	return b.String()
}

func (db *SqlChatRepository) Ping() error {
	return db.conn.Ping()
}

func (db *SqlChatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
