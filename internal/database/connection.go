// Package database stores scraped posts and comments in PostgreSQL or
// SQLite.
package database

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"fbscrape/internal/config"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLitePath = "data/fbscrape.db"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// goose keeps its settings in package globals.
var gooseMu sync.Mutex

type DB struct {
	conn   *sqlx.DB
	driver string
	logger *logrus.Logger
}

// Open connects to the configured database and applies the migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *logrus.Logger) (*DB, error) {
	var (
		driverName string
		dsn        string
	)
	switch cfg.Driver {
	case DriverPostgres:
		driverName = "postgres"
		dsn = cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
		}
		logger.Infof("Connecting to database: host=%s port=%d dbname=%s user=%s", cfg.Host, cfg.Port, cfg.Name, cfg.User)
	case DriverSQLite:
		driverName = "sqlite"
		path := cfg.DSN
		if path == "" {
			path = cfg.Name
		}
		if path == "" {
			path = defaultSQLitePath
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, errors.Wrap(err, "create database directory")
			}
		}
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
		logger.Infof("Opening SQLite database: %s", path)
	default:
		return nil, errors.Errorf("unsupported database driver %q", cfg.Driver)
	}

	conn, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	if cfg.Driver == DriverSQLite {
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn, driver: cfg.Driver, logger: logger}
	if err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("Database connection established")
	return db, nil
}

func (db *DB) RunMigrations() error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	db.logger.Info("Running database migrations...")
	goose.SetBaseFS(migrations)
	goose.SetLogger(db.logger)

	dialect, dir := "postgres", "migrations/postgres"
	if db.driver == DriverSQLite {
		dialect, dir = "sqlite3", "migrations/sqlite"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return errors.Wrap(err, "set migration dialect")
	}
	if err := goose.Up(db.conn.DB, dir); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	db.logger.Info("Migrations completed successfully")
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.conn.Close()
}
